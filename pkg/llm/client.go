// Package llm 封装生成辅导回复的大模型客户端。
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/config"
)

var (
	// ErrEmptyReply 表示模型没有返回任何内容。
	ErrEmptyReply = errors.New("model returned an empty reply")
	// ErrSchemaMismatch 表示模型输出不符合回复的 JSON 约定。
	ErrSchemaMismatch = errors.New("model reply does not match the output schema")
)

// Client 定义了生成模型客户端的接口。
type Client interface {
	// Generate 以 system prompt 与 role-based 历史调用模型，返回符合 {content: string} 约定的回复。
	Generate(ctx context.Context, systemPrompt string, history []Message) (*Reply, error)
}

// 发送给生成模型的角色标签。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply 是模型的结构化输出。
type Reply struct {
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

func generationFromConfig(cfg config.LLMGenerationConfig) GenerationParams {
	var gp GenerationParams
	if cfg.Temperature != 0 {
		t := cfg.Temperature
		gp.Temperature = &t
	}
	if cfg.TopP != 0 {
		p := cfg.TopP
		gp.TopP = &p
	}
	if cfg.MaxTokens != 0 {
		m := cfg.MaxTokens
		gp.MaxTokens = &m
	}
	return gp
}

// NewClient 根据配置中的 provider 创建对应的模型客户端。
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "", "openai", "deepseek":
		return NewOpenAIClient(cfg, &http.Client{Timeout: cfg.Timeout}), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
