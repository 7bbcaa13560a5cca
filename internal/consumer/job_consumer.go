package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	rediscommon "wisefido-health-ingest/common/redis"
	"wisefido-health-ingest/internal/models"
)

// JobRunner 执行一个后台任务
// 返回 nil 或包含 models.ErrJobFailed 的错误表示任务已到终态，消息可以确认；
// 其他错误时消息留在 pending 列表，之后按 RetryInterval 重新投递。
type JobRunner interface {
	RunJob(ctx context.Context, jobID uuid.UUID) error
}

// JobConsumerConfig 任务流消费配置
type JobConsumerConfig struct {
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int64
	Concurrency   int
	Block         time.Duration
	RetryInterval time.Duration // 重新投递本消费者 pending 消息的间隔，默认 30 秒
}

// JobConsumer 从 Redis Streams 读取任务 ID 并执行，并发数受信号量限制
type JobConsumer struct {
	cfg         JobConsumerConfig
	redisClient *redis.Client
	runner      JobRunner
	logger      *zap.Logger
	sem         chan struct{}
	wg          sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewJobConsumer 创建任务消费者
func NewJobConsumer(cfg JobConsumerConfig, redisClient *redis.Client, runner JobRunner, logger *zap.Logger) *JobConsumer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	return &JobConsumer{
		cfg:         cfg,
		redisClient: redisClient,
		runner:      runner,
		logger:      logger,
		sem:         make(chan struct{}, cfg.Concurrency),
		inflight:    make(map[string]struct{}),
	}
}

// Start 启动消费循环，ctx 取消后等待进行中的任务结束再返回
func (c *JobConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, c.cfg.Stream, c.cfg.ConsumerGroup); err != nil {
		return err
	}
	defer c.wg.Wait()

	c.logger.Info("Job consumer started",
		zap.String("stream", c.cfg.Stream),
		zap.String("consumer_group", c.cfg.ConsumerGroup),
		zap.String("consumer_name", c.cfg.ConsumerName),
		zap.Int("concurrency", c.cfg.Concurrency),
	)

	backoff := time.Second
	maxBackoff := 30 * time.Second
	var lastRetry time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if time.Since(lastRetry) >= c.cfg.RetryInterval {
			lastRetry = time.Now()
			if err := c.retryPending(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("Failed to read pending jobs", zap.Error(err))
			}
		}

		if err := c.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume job stream",
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = time.Second
	}
}

func (c *JobConsumer) consume(ctx context.Context) error {
	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		c.cfg.Stream,
		c.cfg.ConsumerGroup,
		c.cfg.ConsumerName,
		c.cfg.BatchSize,
		c.cfg.Block,
	)
	if err != nil {
		return fmt.Errorf("failed to read from stream %s: %w", c.cfg.Stream, err)
	}
	c.dispatch(ctx, messages)
	return nil
}

// retryPending 重新投递本消费者已读取但未确认的消息
func (c *JobConsumer) retryPending(ctx context.Context) error {
	messages, err := rediscommon.ReadPendingFromStream(
		ctx,
		c.redisClient,
		c.cfg.Stream,
		c.cfg.ConsumerGroup,
		c.cfg.ConsumerName,
		c.cfg.BatchSize,
	)
	if err != nil {
		return fmt.Errorf("failed to read pending from stream %s: %w", c.cfg.Stream, err)
	}
	if len(messages) > 0 {
		c.logger.Info("Retrying pending jobs", zap.Int("count", len(messages)))
	}
	c.dispatch(ctx, messages)
	return nil
}

func (c *JobConsumer) dispatch(ctx context.Context, messages []rediscommon.StreamMessage) {
	for _, msg := range messages {
		jobID, err := parseJobID(msg.Values)
		if err != nil {
			c.logger.Error("Dropping malformed job message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			c.ack(msg.ID)
			continue
		}

		// 未确认的消息留在 pending 列表，重启后可认领
		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		if ctx.Err() != nil {
			<-c.sem
			return
		}
		if !c.claim(msg.ID) {
			<-c.sem
			continue
		}

		c.wg.Add(1)
		go func(id string, jobID uuid.UUID) {
			defer c.wg.Done()
			defer func() { <-c.sem }()
			defer c.release(id)
			c.run(ctx, id, jobID)
		}(msg.ID, jobID)
	}
}

// claim 标记消息正在处理，已在处理中时返回 false
func (c *JobConsumer) claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[id]; ok {
		return false
	}
	c.inflight[id] = struct{}{}
	return true
}

func (c *JobConsumer) release(id string) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
}

// run 执行任务，只在任务到达终态时确认消息
func (c *JobConsumer) run(ctx context.Context, msgID string, jobID uuid.UUID) {
	err := c.runner.RunJob(ctx, jobID)
	switch {
	case err == nil:
		c.ack(msgID)
	case errors.Is(err, models.ErrJobFailed):
		c.logger.Error("Job failed",
			zap.String("job_id", jobID.String()),
			zap.Error(err),
		)
		c.ack(msgID)
	default:
		c.logger.Warn("Job not finished, leaving message pending",
			zap.String("job_id", jobID.String()),
			zap.String("message_id", msgID),
			zap.Error(err),
		)
	}
}

func (c *JobConsumer) ack(id string) {
	if err := rediscommon.Ack(context.Background(), c.redisClient, c.cfg.Stream, c.cfg.ConsumerGroup, id); err != nil {
		c.logger.Warn("Failed to ack job message", zap.String("message_id", id), zap.Error(err))
	}
}

func parseJobID(values map[string]interface{}) (uuid.UUID, error) {
	raw, ok := values["job_id"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("missing job_id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid job_id %q: %w", raw, err)
	}
	return id, nil
}
