package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
)

// MessageRepository 定义了聊天记录的追加与查询操作。流水线从不更新或删除消息。
type MessageRepository interface {
	AppendMessage(ctx context.Context, msg *model.Message) (*model.Message, error)
	// ListUserMessages 返回某学生在会话中发送的消息，最新的在前，不含机器人消息。
	ListUserMessages(ctx context.Context, chatSessionID, userID string, limit int) ([]model.Message, error)
	// ListSessionMessages 按时间顺序返回整个会话的记录。
	ListSessionMessages(ctx context.Context, chatSessionID string, limit int) ([]model.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// AppendMessage 插入一条消息并返回带有 ID 和 CreatedAt 的记录。
func (r *messageRepository) AppendMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return msg, nil
}

func (r *messageRepository) ListUserMessages(ctx context.Context, chatSessionID, userID string, limit int) ([]model.Message, error) {
	var messages []model.Message
	q := r.db.WithContext(ctx).
		Where("chat_session_id = ? AND sender_id = ? AND is_bot = ?", chatSessionID, userID, false).
		Order("created_at desc").
		Order("sequence desc").
		Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list user messages: %w", err)
	}
	return messages, nil
}

func (r *messageRepository) ListSessionMessages(ctx context.Context, chatSessionID string, limit int) ([]model.Message, error) {
	var messages []model.Message
	q := r.db.WithContext(ctx).
		Where("chat_session_id = ?", chatSessionID).
		Order("created_at asc").
		Order("sequence asc").
		Order("id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list session messages: %w", err)
	}
	return messages, nil
}
