// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/repository"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/tasks"
)

// defaultHistoryLimit 是查询会话记录时的默认条数上限。
const defaultHistoryLimit = 200

// Enqueuer 把任务写入命名队列。
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, job model.Job) error
}

// AudioUploader 保存学生上传的语音。
type AudioUploader interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// SubmitMessageRequest 是提交一条学生消息的请求体。
type SubmitMessageRequest struct {
	Type          model.MessageType `json:"type" binding:"required,oneof=TEXT AUDIO"`
	ClassroomID   string            `json:"classroomId" binding:"required"`
	LessonID      string            `json:"lessonId" binding:"required"`
	UserID        string            `json:"userId" binding:"required"`
	ChatSessionID string            `json:"chatSessionId" binding:"required"`
	Content       string            `json:"content"`
	AudioURL      string            `json:"audioUrl"`
}

// AudioUpload 是一段待保存的语音文件。
type AudioUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// MessageService 定义了消息入口的业务逻辑。
type MessageService interface {
	// Submit 生成任务 ID，校验后写入 route-message-queue。
	Submit(ctx context.Context, req SubmitMessageRequest) (model.Job, error)
	// SubmitAudio 先把语音存入对象存储，再以 AUDIO 消息提交。
	SubmitAudio(ctx context.Context, req SubmitMessageRequest, audio AudioUpload) (model.Job, error)
	History(ctx context.Context, chatSessionID string, limit int) ([]model.Message, error)
}

type messageService struct {
	queue    Enqueuer
	messages repository.MessageRepository
	audio    AudioUploader
}

// NewMessageService 创建一个新的 MessageService。audio 为 nil 时不支持语音上传。
func NewMessageService(queue Enqueuer, messages repository.MessageRepository, audio AudioUploader) MessageService {
	return &messageService{queue: queue, messages: messages, audio: audio}
}

func (s *messageService) Submit(ctx context.Context, req SubmitMessageRequest) (model.Job, error) {
	job := model.Job{
		ID:            uuid.NewString(),
		Stage:         model.StageReceived,
		Type:          req.Type,
		ClassroomID:   req.ClassroomID,
		LessonID:      req.LessonID,
		UserID:        req.UserID,
		ChatSessionID: req.ChatSessionID,
		Content:       req.Content,
		AudioURL:      req.AudioURL,
	}
	if err := job.Validate(); err != nil {
		return model.Job{}, err
	}
	if err := s.queue.Enqueue(ctx, tasks.QueueRouteMessage, job); err != nil {
		return model.Job{}, fmt.Errorf("enqueue message: %w", err)
	}
	log.Infof("消息已提交, JobID: %s, Type: %s, ChatSessionID: %s", job.ID, job.Type, job.ChatSessionID)
	return job, nil
}

func (s *messageService) SubmitAudio(ctx context.Context, req SubmitMessageRequest, audio AudioUpload) (model.Job, error) {
	if s.audio == nil {
		return model.Job{}, fmt.Errorf("audio uploads are not configured")
	}
	if len(audio.Data) == 0 {
		return model.Job{}, fmt.Errorf("%w: empty audio upload", model.ErrInvalidJob)
	}
	ext := strings.ToLower(path.Ext(audio.FileName))
	key := fmt.Sprintf("uploads/%s/%s%s", req.ChatSessionID, uuid.NewString(), ext)
	if err := s.audio.Put(ctx, key, audio.Data, audio.ContentType); err != nil {
		return model.Job{}, fmt.Errorf("store audio: %w", err)
	}

	req.Type = model.MessageTypeAudio
	req.AudioURL = key
	req.Content = ""
	return s.Submit(ctx, req)
}

func (s *messageService) History(ctx context.Context, chatSessionID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	return s.messages.ListSessionMessages(ctx, chatSessionID, limit)
}
