package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"
)

// RoutePoint GPS 轨迹点
type RoutePoint struct {
	Latitude  float64
	Longitude float64
	Altitude  *float64
	Timestamp time.Time
}

type routePointJSON struct {
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
	Timestamp string   `json:"timestamp"`
}

// GPSRoute 运动轨迹，保留原始 JSON，按需逐点解码
type GPSRoute struct {
	raw json.RawMessage
}

// NewGPSRoute 空数组或 null 返回 nil
func NewGPSRoute(raw json.RawMessage) *GPSRoute {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		return nil
	}
	cp := make(json.RawMessage, len(trimmed))
	copy(cp, trimmed)
	return &GPSRoute{raw: cp}
}

// Raw 原始 JSON（写入 route_points 列）
func (r *GPSRoute) Raw() json.RawMessage {
	if r == nil {
		return nil
	}
	return r.raw
}

func (r *GPSRoute) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return r.raw, nil
}

func (r *GPSRoute) UnmarshalJSON(b []byte) error {
	r.raw = append(r.raw[:0], b...)
	return nil
}

// Points 逐点解码轨迹；遇到第一个错误后停止
func (r *GPSRoute) Points() iter.Seq2[RoutePoint, error] {
	return func(yield func(RoutePoint, error) bool) {
		if r == nil {
			return
		}
		dec := json.NewDecoder(bytes.NewReader(r.raw))
		tok, err := dec.Token()
		if err != nil {
			yield(RoutePoint{}, fmt.Errorf("route: %w", err))
			return
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			yield(RoutePoint{}, errors.New("route: expected a JSON array"))
			return
		}
		for i := 0; dec.More(); i++ {
			var raw routePointJSON
			if err := dec.Decode(&raw); err != nil {
				yield(RoutePoint{}, fmt.Errorf("route point %d: %w", i, err))
				return
			}
			p, err := raw.point()
			if err != nil {
				yield(RoutePoint{}, fmt.Errorf("route point %d: %w", i, err))
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (p routePointJSON) point() (RoutePoint, error) {
	lat, lon := p.Latitude, p.Longitude
	if lat == nil {
		lat = p.Lat
	}
	if lon == nil {
		lon = p.Lon
	}
	if lat == nil || lon == nil {
		return RoutePoint{}, errors.New("missing latitude or longitude")
	}
	t, err := ParseTimestamp(p.Timestamp)
	if err != nil {
		return RoutePoint{}, err
	}
	return RoutePoint{Latitude: *lat, Longitude: *lon, Altitude: p.Altitude, Timestamp: t}, nil
}
