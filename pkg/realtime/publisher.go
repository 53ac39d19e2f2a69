// Package realtime 通过 Redis pub/sub 把 AI 回复推送给在线客户端，尽力而为，不做确认与重试。
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/tasks"
)

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher 向固定的两个频道发布回复事件。
type Publisher struct {
	rdb redisPublisher
}

// NewPublisher 使用注入的 Redis 客户端创建发布者。
func NewPublisher(rdb redisPublisher) *Publisher {
	return &Publisher{rdb: rdb}
}

// PublishText 发布文本回复到 text-message-channel。
func (p *Publisher) PublishText(ctx context.Context, event model.TextReplyEvent) error {
	return p.publish(ctx, tasks.ChannelTextMessage, event)
}

// PublishAudio 发布语音回复到 audio-message-channel。
func (p *Publisher) PublishAudio(ctx context.Context, event model.AudioReplyEvent) error {
	return p.publish(ctx, tasks.ChannelAudioMessage, event)
}

// PublishFailure 在对应模态的频道上发布失败事件。
func (p *Publisher) PublishFailure(ctx context.Context, messageType model.MessageType, event model.FailureEvent) error {
	channel := tasks.ChannelTextMessage
	if messageType == model.MessageTypeAudio {
		channel = tasks.ChannelAudioMessage
	}
	return p.publish(ctx, channel, event)
}

func (p *Publisher) publish(ctx context.Context, channel string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", channel, err)
	}
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}
