package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/config"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
)

// openAIClient 调用 OpenAI 兼容的 /chat/completions 接口（DeepSeek 等）。
type openAIClient struct {
	cfg    config.LLMConfig
	gen    GenerationParams
	client *http.Client
}

// NewOpenAIClient 创建 OpenAI 兼容 chat completions 接口的客户端。
func NewOpenAIClient(cfg config.LLMConfig, httpClient *http.Client) Client {
	return &openAIClient{
		cfg:    cfg,
		gen:    generationFromConfig(cfg.Generation),
		client: httpClient,
	}
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// StatusError 表示接口返回了非 200 状态码。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat api returned non-200 status: %d, body: %s", e.StatusCode, e.Body)
}

// Generate 发送 system prompt 与历史消息并解析 JSON 回复。
func (c *openAIClient) Generate(ctx context.Context, systemPrompt string, history []Message) (*Reply, error) {
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{Role: "system", Content: systemPrompt + "\n\nRespond with a JSON object of the form {\"content\": \"<your reply>\"}."})
	messages = append(messages, history...)

	reqBody := chatRequest{
		Model:          c.cfg.Model,
		Messages:       messages,
		Stream:         false,
		Temperature:    c.gen.Temperature,
		TopP:           c.gen.TopP,
		MaxTokens:      c.gen.MaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, ErrEmptyReply
	}

	reply, err := parseReply(chatResp.Choices[0].Message.Content)
	if err != nil {
		log.Warnf("[LLMClient] 模型输出不符合约定: %v", err)
		return nil, err
	}
	return reply, nil
}
