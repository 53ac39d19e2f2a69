package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const replySchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"content": { "type": "string", "minLength": 1 }
	},
	"required": ["content"]
}`

var replySchema = jsonschema.MustCompileString("reply.schema.json", replySchemaJSON)

// parseReply 校验模型的原始 JSON 输出并解析为 Reply。
// 部分模型会把 JSON 包在 ```json 代码块里，这里先剥掉。
func parseReply(raw string) (*Reply, error) {
	raw = stripCodeFence(raw)
	if raw == "" {
		return nil, ErrEmptyReply
	}

	var payload interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if err := replySchema.Validate(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	var reply Reply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	// 只有空白的回复同样视为空
	if strings.TrimSpace(reply.Content) == "" {
		return nil, ErrEmptyReply
	}
	return &reply, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
