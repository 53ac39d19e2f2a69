// Package pipeline 定义了辅导反馈流水线的各个阶段。
// 每个阶段实现 Handle(ctx, job)，由 cmd/worker 绑定到对应的队列上。
package pipeline

import (
	"context"
	"errors"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
)

// Enqueuer 把任务写入命名队列。
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, job model.Job) error
}

// ReplyPublisher 把回复推送给在线客户端。
type ReplyPublisher interface {
	PublishText(ctx context.Context, event model.TextReplyEvent) error
	PublishAudio(ctx context.Context, event model.AudioReplyEvent) error
	PublishFailure(ctx context.Context, messageType model.MessageType, event model.FailureEvent) error
}

// MessageIndexer 是可选的检索索引，写入失败不影响持久化结果。
type MessageIndexer interface {
	IndexMessage(ctx context.Context, msg model.Message) error
}

// TerminalError 表示重试无法修复的失败，队列应直接确认而不是重新投递。
type TerminalError struct {
	Reason string
	Err    error
}

func (e *TerminalError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *TerminalError) Unwrap() error { return e.Err }

// Terminal 供队列消费者识别。
func (e *TerminalError) Terminal() bool { return true }

func terminal(reason string, err error) error {
	return &TerminalError{Reason: reason, Err: err}
}

// IsTerminal 判断错误是否为终止性失败。
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}

// validated 在任何外部调用之前校验载荷。
func validated(job model.Job) error {
	if err := job.Validate(); err != nil {
		return terminal("invalid payload", err)
	}
	return nil
}
