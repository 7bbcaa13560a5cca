package sentry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// Config Sentry 配置
type Config struct {
	DSN         string
	Environment string
	Release     string
	ServerName  string
}

// Init 初始化 Sentry；DSN 为空时不启用
func Init(cfg Config, logger *zap.Logger) error {
	if cfg.DSN == "" {
		logger.Info("Sentry DSN not configured, error tracking disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		ServerName:  cfg.ServerName,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			// 上传内容属于健康数据，不随事件发送
			if event.Request != nil {
				event.Request.Data = ""
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
			}
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}

	logger.Info("Sentry initialized",
		zap.String("environment", cfg.Environment),
		zap.String("release", cfg.Release),
	)
	return nil
}

// CaptureException 上报错误，tags 作为事件标签
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush 等待事件发送完成
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// Recover 捕获 panic 并上报，返回转换后的错误；没有 panic 时返回 nil
func Recover(r any, tags map[string]string) error {
	if r == nil {
		return nil
	}
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", r)
	}
	CaptureException(err, tags)
	return err
}
