package realtime

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/tasks"
)

// Envelope 是转发给客户端的一条事件。
type Envelope struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// Subscriber 订阅两个回复频道，只把属于指定会话的事件交给调用方。
type Subscriber struct {
	rdb *redis.Client
}

// NewSubscriber 使用给定的 Redis 客户端创建订阅者。
func NewSubscriber(rdb *redis.Client) *Subscriber {
	return &Subscriber{rdb: rdb}
}

// Subscribe 阻塞直到 ctx 取消或 deliver 返回错误。连接前发布的事件不会补发。
func (s *Subscriber) Subscribe(ctx context.Context, chatSessionID string, deliver func(Envelope) error) error {
	ps := s.rdb.Subscribe(ctx, tasks.ChannelTextMessage, tasks.ChannelAudioMessage)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return err
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if !MatchesSession([]byte(msg.Payload), chatSessionID) {
				continue
			}
			if err := deliver(Envelope{Channel: msg.Channel, Payload: json.RawMessage(msg.Payload)}); err != nil {
				return err
			}
		}
	}
}

// MatchesSession 判断事件是否属于给定会话。无法解析的事件直接丢弃。
func MatchesSession(payload []byte, chatSessionID string) bool {
	var head struct {
		ChatSessionID string `json:"chatSessionId"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		log.Warnf("[Realtime] 丢弃无法解析的事件: %v", err)
		return false
	}
	return head.ChatSessionID != "" && head.ChatSessionID == chatSessionID
}
