package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/config"
)

const defaultGeminiModel = "gemini-2.0-flash"

type geminiClient struct {
	client *genai.Client
	model  string
	gen    GenerationParams
}

// NewGeminiClient 创建基于 Gemini API 的客户端，以 JSON schema 约束输出。
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &geminiClient{client: client, model: model, gen: generationFromConfig(cfg.Generation)}, nil
}

func (g *geminiClient) Generate(ctx context.Context, systemPrompt string, history []Message) (*Reply, error) {
	contents := geminiContents(history)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"content": {Type: genai.TypeString},
			},
			Required: []string{"content"},
		},
	}
	if g.gen.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*g.gen.Temperature))
	}
	if g.gen.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*g.gen.TopP))
	}
	if g.gen.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*g.gen.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}
	if resp == nil {
		return nil, ErrEmptyReply
	}
	return parseReply(resp.Text())
}

// geminiContents 把对话历史转换为 Gemini 的 user/model 角色。
func geminiContents(history []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	return contents
}
