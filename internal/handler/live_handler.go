package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/realtime"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// SessionSubscriber 按会话订阅实时回复。
type SessionSubscriber interface {
	Subscribe(ctx context.Context, chatSessionID string, deliver func(realtime.Envelope) error) error
}

// LiveHandler 把 Redis 频道上属于某个会话的回复转发到 WebSocket。
type LiveHandler struct {
	subscriber SessionSubscriber
}

// NewLiveHandler 创建一个新的 LiveHandler。
func NewLiveHandler(subscriber SessionSubscriber) *LiveHandler {
	return &LiveHandler{subscriber: subscriber}
}

// Handle 处理一个传入的 WebSocket 连接。
func (h *LiveHandler) Handle(c *gin.Context) {
	chatSessionID := c.Param("chatSessionId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立，会话: %s", chatSessionID)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 客户端只接收，不发送；读取循环用于感知断开
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = h.subscriber.Subscribe(ctx, chatSessionID, func(env realtime.Envelope) error {
		return conn.WriteJSON(env)
	})
	if err != nil {
		log.Warnf("会话 %s 的实时推送结束: %v", chatSessionID, err)
	}
	log.Infof("WebSocket 连接已关闭，会话: %s", chatSessionID)
}
