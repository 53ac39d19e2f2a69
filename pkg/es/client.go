// Package es 提供了聊天记录的 Elasticsearch 检索索引，供教师端按会话或关键词查找。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/config"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
)

const messageMapping = `{
	"mappings": {
		"properties": {
			"message_id":      { "type": "long" },
			"chat_session_id": { "type": "keyword" },
			"classroom_id":    { "type": "keyword" },
			"lesson_id":       { "type": "keyword" },
			"sender_id":       { "type": "keyword" },
			"is_bot":          { "type": "boolean" },
			"message_type":    { "type": "keyword" },
			"content":         { "type": "text" },
			"sequence":        { "type": "long" },
			"created_at":      { "type": "date" }
		}
	}
}`

// MessageIndex 把持久化后的消息写入检索索引。
type MessageIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// messageDocument 是索引中的文档结构。
type messageDocument struct {
	MessageID     uint      `json:"message_id"`
	ChatSessionID string    `json:"chat_session_id"`
	ClassroomID   string    `json:"classroom_id"`
	LessonID      string    `json:"lesson_id"`
	SenderID      string    `json:"sender_id,omitempty"`
	IsBot         bool      `json:"is_bot"`
	MessageType   string    `json:"message_type"`
	Content       string    `json:"content"`
	Sequence      int64     `json:"sequence"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewMessageIndex 初始化 Elasticsearch 客户端并确保索引存在。
func NewMessageIndex(esCfg config.ElasticsearchConfig) (*MessageIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, err
	}
	idx := &MessageIndex{client: client, indexName: esCfg.IndexName}
	if err := idx.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return idx, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (m *MessageIndex) createIndexIfNotExists() error {
	res, err := m.client.Indices.Exists([]string{m.indexName})
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", m.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = m.client.Indices.Create(
		m.indexName,
		m.client.Indices.Create.WithBody(strings.NewReader(messageMapping)),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", m.indexName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引时 Elasticsearch 返回错误: %s", res.String())
	}

	log.Infof("索引 '%s' 创建成功", m.indexName)
	return nil
}

// IndexMessage 将单条消息写入索引，文档 ID 即消息 ID。
func (m *MessageIndex) IndexMessage(ctx context.Context, msg model.Message) error {
	doc := messageDocument{
		MessageID:     msg.ID,
		ChatSessionID: msg.ChatSessionID,
		ClassroomID:   msg.ClassroomID,
		LessonID:      msg.LessonID,
		IsBot:         msg.IsBot,
		MessageType:   string(msg.MessageType),
		Content:       msg.Content,
		Sequence:      msg.Sequence,
		CreatedAt:     msg.CreatedAt,
	}
	if msg.SenderID != nil {
		doc.SenderID = *msg.SenderID
	}
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      m.indexName,
		DocumentID: fmt.Sprintf("%d", msg.ID),
		Body:       bytes.NewReader(docBytes),
	}
	res, err := req.Do(ctx, m.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引消息到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index message")
	}
	return nil
}
