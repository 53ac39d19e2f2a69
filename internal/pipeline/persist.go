package pipeline

import (
	"context"
	"fmt"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/repository"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
)

// recorder 是两个持久化阶段共用的写入逻辑。
type recorder struct {
	messages  repository.MessageRepository
	sequences repository.SequenceRepository
	index     MessageIndexer
}

func (r recorder) record(ctx context.Context, msg *model.Message) error {
	seq, err := r.sequences.NextSequence(ctx, msg.ChatSessionID)
	if err != nil {
		return err
	}
	msg.Sequence = seq

	saved, err := r.messages.AppendMessage(ctx, msg)
	if err != nil {
		return err
	}
	if r.index != nil {
		if err := r.index.IndexMessage(ctx, *saved); err != nil {
			log.Warnf("消息索引失败, MessageID: %d, Error: %v", saved.ID, err)
		}
	}
	return nil
}

// InboundPersistence 记录学生发送的消息。
type InboundPersistence struct {
	recorder
}

// NewInboundPersistence 创建一个新的 InboundPersistence 实例。index 可以为 nil。
func NewInboundPersistence(messages repository.MessageRepository, sequences repository.SequenceRepository, index MessageIndexer) *InboundPersistence {
	return &InboundPersistence{recorder{messages: messages, sequences: sequences, index: index}}
}

// Handle 处理 save-incoming-user-message-to-db 上的任务。
// 语音消息只有在识别成功后才会落库，内容为识别文本。
func (p *InboundPersistence) Handle(ctx context.Context, job model.Job) error {
	if err := validated(job); err != nil {
		return err
	}
	if job.IsAudio() && job.Stage != model.StageTranscribed {
		return terminal("untranscribed audio is not persisted",
			fmt.Errorf("%w: stage %s", model.ErrInvalidJob, job.Stage))
	}
	if !job.IsAudio() && job.Stage != model.StageReceived {
		return terminal("inbound persistence only accepts received TEXT jobs",
			fmt.Errorf("%w: stage %s", model.ErrInvalidJob, job.Stage))
	}

	sender := job.UserID
	msg := &model.Message{
		ChatSessionID: job.ChatSessionID,
		ClassroomID:   job.ClassroomID,
		LessonID:      job.LessonID,
		SenderID:      &sender,
		IsBot:         false,
		MessageType:   job.Type,
		Content:       job.UserText(),
		AudioURL:      job.AudioURL,
		JobID:         job.ID,
	}
	if err := p.record(ctx, msg); err != nil {
		log.Errorf("[InboundPersistence] 保存学生消息失败, JobID: %s, Error: %v", job.ID, err)
		return fmt.Errorf("persist inbound message: %w", err)
	}
	log.Infof("[InboundPersistence] 学生消息已保存, JobID: %s, ChatSessionID: %s, Sequence: %d", job.ID, job.ChatSessionID, msg.Sequence)
	return nil
}

// OutboundPersistence 记录 AI 的回复。重复投递会产生重复记录，这里不做去重。
type OutboundPersistence struct {
	recorder
}

// NewOutboundPersistence 创建一个新的 OutboundPersistence 实例。index 可以为 nil。
func NewOutboundPersistence(messages repository.MessageRepository, sequences repository.SequenceRepository, index MessageIndexer) *OutboundPersistence {
	return &OutboundPersistence{recorder{messages: messages, sequences: sequences, index: index}}
}

// Handle 处理 save-ai-response-queue 上的任务。
func (p *OutboundPersistence) Handle(ctx context.Context, job model.Job) error {
	if err := validated(job); err != nil {
		return err
	}
	if !job.AtLeast(model.StageFeedback) {
		return terminal("outbound persistence needs a job with feedback",
			fmt.Errorf("%w: stage %s", model.ErrInvalidJob, job.Stage))
	}

	msg := &model.Message{
		ChatSessionID: job.ChatSessionID,
		ClassroomID:   job.ClassroomID,
		LessonID:      job.LessonID,
		SenderID:      nil,
		IsBot:         true,
		MessageType:   job.Type,
		Content:       job.AIFeedback,
		AudioURL:      job.URL,
		JobID:         job.ID,
	}
	if err := p.record(ctx, msg); err != nil {
		log.Errorf("[OutboundPersistence] 保存 AI 回复失败, JobID: %s, Error: %v", job.ID, err)
		return fmt.Errorf("persist outbound message: %w", err)
	}
	log.Infof("[OutboundPersistence] AI 回复已保存, JobID: %s, ChatSessionID: %s, Sequence: %d", job.ID, job.ChatSessionID, msg.Sequence)
	return nil
}
