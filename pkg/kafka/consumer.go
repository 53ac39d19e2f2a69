package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/config"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/tasks"
)

// Handler 处理某个队列上的一条任务。
// 返回实现了 Terminal() bool 且为 true 的错误时，任务不会被重试。
type Handler interface {
	Handle(ctx context.Context, job model.Job) error
}

// HandlerFunc 让普通函数满足 Handler。
type HandlerFunc func(ctx context.Context, job model.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job model.Job) error {
	return f(ctx, job)
}

// AttemptCounter 记录任务失败次数，由 Redis 实现。
type AttemptCounter interface {
	IncrAttempts(ctx context.Context, queue, jobID string) (int64, error)
	ResetAttempts(ctx context.Context, queue, jobID string) error
}

// Publisher 写入原始消息，用于重投与死信。
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error
}

// attemptsHeader 随重投消息携带的失败次数，Redis 计数不可用时以它为准。
const attemptsHeader = "x-attempts"

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 从单个队列拉取任务并交给 Handler，手动提交 offset。
type Consumer struct {
	queue        string
	reader       messageReader
	handler      Handler
	publisher    Publisher
	attempts     AttemptCounter
	maxAttempts  int64
	retryBackoff time.Duration
}

// NewConsumer 为指定队列创建消费者，消费组为 <group_prefix>-<queue>。
func NewConsumer(cfg config.KafkaConfig, queue string, handler Handler, publisher Publisher, attempts AttemptCounter) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokerList(cfg.Brokers),
		Topic:    queue,
		GroupID:  fmt.Sprintf("%s-%s", cfg.GroupPrefix, queue),
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	})
	return newConsumer(queue, r, handler, publisher, attempts, cfg.MaxAttempts, cfg.RetryBackoff)
}

func newConsumer(queue string, r messageReader, handler Handler, publisher Publisher, attempts AttemptCounter, maxAttempts int, backoff time.Duration) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Consumer{
		queue:        queue,
		reader:       r,
		handler:      handler,
		publisher:    publisher,
		attempts:     attempts,
		maxAttempts:  int64(maxAttempts),
		retryBackoff: backoff,
	}
}

// Run 循环消费直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("Kafka 消费者已启动，正在监听队列 '%s'", c.queue)
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Infof("队列 '%s' 消费者停止", c.queue)
				return nil
			}
			return fmt.Errorf("从队列 %s 读取消息失败: %w", c.queue, err)
		}

		if c.process(ctx, m) {
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: queue=%s offset=%d err=%v", c.queue, m.Offset, err)
			}
		}
	}
}

// Close 关闭底层 reader。
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// process 处理一条消息并返回是否应提交 offset。
func (c *Consumer) process(ctx context.Context, m kafka.Message) bool {
	var job model.Job
	if err := json.Unmarshal(m.Value, &job); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析队列消息: queue=%s err=%v value=%s", c.queue, err, string(m.Value))
		return true
	}

	logger := log.With("queue", c.queue, "jobId", job.ID, "chatSessionId", job.ChatSessionID, "type", job.Type)
	logger.Infow("开始处理任务", "offset", m.Offset)

	err := c.handler.Handle(ctx, job)
	if err == nil {
		if job.ID != "" {
			_ = c.attempts.ResetAttempts(ctx, c.queue, job.ID)
		}
		logger.Info("任务处理成功")
		return true
	}

	if IsTerminal(err) {
		logger.Warnw("任务终止，不再重试", "error", err)
		return true
	}

	attempts := headerAttempts(m) + 1
	if counted, incErr := c.attempts.IncrAttempts(ctx, c.queue, job.ID); incErr != nil {
		logger.Errorw("记录失败次数失败，改用消息头计数", "error", incErr, "attempts", attempts)
	} else if counted > attempts {
		attempts = counted
	}

	if attempts >= c.maxAttempts {
		logger.Errorw("任务多次失败，转入死信队列", "attempts", attempts, "error", err)
		if pubErr := c.publisher.Publish(ctx, tasks.DeadLetter(c.queue), m.Key, m.Value, withAttempts(m.Headers, attempts)...); pubErr != nil {
			logger.Errorw("写入死信队列失败", "error", pubErr)
		}
		return true
	}

	logger.Warnw("任务处理失败，稍后重投", "attempts", attempts, "error", err)
	if !sleepCtx(ctx, c.retryBackoff*time.Duration(attempts)) {
		return false
	}
	if pubErr := c.publisher.Publish(ctx, c.queue, m.Key, m.Value, withAttempts(m.Headers, attempts)...); pubErr != nil {
		// 不提交 offset，依赖重启或再均衡后的重新投递
		logger.Errorw("重投任务失败", "error", pubErr)
		return false
	}
	return true
}

// IsTerminal 判断错误是否声明自己不可重试。
func IsTerminal(err error) bool {
	var t interface{ Terminal() bool }
	if errors.As(err, &t) {
		return t.Terminal()
	}
	return errors.Is(err, model.ErrInvalidJob)
}

// headerAttempts 读取消息头中已记录的失败次数，缺失或非法时为 0。
func headerAttempts(m kafka.Message) int64 {
	for _, h := range m.Headers {
		if h.Key != attemptsHeader {
			continue
		}
		n, err := strconv.ParseInt(string(h.Value), 10, 64)
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

func withAttempts(headers []kafka.Header, attempts int64) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers)+1)
	for _, h := range headers {
		if h.Key != attemptsHeader {
			out = append(out, h)
		}
	}
	return append(out, kafka.Header{Key: attemptsHeader, Value: []byte(strconv.FormatInt(attempts, 10))})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
