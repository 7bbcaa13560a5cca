package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-health-ingest/common/mqtt"
	"wisefido-health-ingest/internal/models"
)

// Ingester 上传入口（service.IngestService）
type Ingester interface {
	Ingest(ctx context.Context, userID uuid.UUID, body []byte) (*models.IngestReport, error)
}

// Subscriber MQTT 订阅（common/mqtt.Client）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer 订阅 health/data/+，主题最后一段为用户 ID，走与 HTTP 相同的大小判定
type MQTTConsumer struct {
	ingester Ingester
	topic    string
	qos      byte
	logger   *zap.Logger
}

// NewMQTTConsumer 创建 MQTT 上传消费者
func NewMQTTConsumer(ingester Ingester, topic string, qos byte, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		ingester: ingester,
		topic:    topic,
		qos:      qos,
		logger:   logger,
	}
}

// Start 订阅主题；ctx 用于取消进行中的上传
func (c *MQTTConsumer) Start(ctx context.Context, sub Subscriber) error {
	handler := func(topic string, payload []byte) error {
		return c.HandleMessage(ctx, topic, payload)
	}
	if err := sub.Subscribe(c.topic, c.qos, handler); err != nil {
		return err
	}
	c.logger.Info("MQTT ingest consumer subscribed", zap.String("topic", c.topic))
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop(sub Subscriber) error {
	return sub.Unsubscribe(c.topic)
}

// HandleMessage 处理一条上传消息
func (c *MQTTConsumer) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	userID, err := userFromTopic(topic)
	if err != nil {
		return err
	}

	report, err := c.ingester.Ingest(ctx, userID, payload)
	if err != nil {
		if errors.Is(err, models.ErrInvalidPayload) || errors.Is(err, models.ErrPayloadTooLarge) {
			c.logger.Warn("Rejected MQTT upload",
				zap.String("topic", topic),
				zap.Error(err),
			)
			return nil
		}
		return fmt.Errorf("failed to ingest MQTT upload: %w", err)
	}

	fields := []zap.Field{
		zap.String("user_id", userID.String()),
		zap.String("mode", report.Mode),
		zap.Int("processed", report.ProcessedCount),
		zap.Int("failed", report.FailedCount),
	}
	if report.JobID != nil {
		fields = append(fields, zap.String("job_id", report.JobID.String()))
	}
	c.logger.Info("MQTT upload ingested", fields...)
	return nil
}

func userFromTopic(topic string) (uuid.UUID, error) {
	i := strings.LastIndexByte(topic, '/')
	if i < 0 || i == len(topic)-1 {
		return uuid.Nil, fmt.Errorf("topic %q has no user segment", topic)
	}
	id, err := uuid.Parse(topic[i+1:])
	if err != nil {
		return uuid.Nil, fmt.Errorf("topic %q: invalid user id: %w", topic, err)
	}
	return id, nil
}
