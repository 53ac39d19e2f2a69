package pipeline

import (
	"context"
	"fmt"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/speech"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/tasks"
)

// TextToSpeech 把 AI 回复合成为语音，推送给客户端后交给出站持久化。
type TextToSpeech struct {
	synthesizer speech.Synthesizer
	queue       Enqueuer
	publisher   ReplyPublisher
}

// NewTextToSpeech 创建一个新的 TextToSpeech 实例。
func NewTextToSpeech(synthesizer speech.Synthesizer, queue Enqueuer, publisher ReplyPublisher) *TextToSpeech {
	return &TextToSpeech{synthesizer: synthesizer, queue: queue, publisher: publisher}
}

// speechKey 是合成语音在对象存储中的键（不含扩展名）。
func speechKey(job model.Job) string {
	return fmt.Sprintf("replies/%s/%s", job.ChatSessionID, job.ID)
}

// Handle 处理 text-to-speech-queue 上的任务。
func (t *TextToSpeech) Handle(ctx context.Context, job model.Job) error {
	if err := validated(job); err != nil {
		return err
	}
	if !job.IsAudio() || job.Stage != model.StageFeedback {
		return terminal("text-to-speech only accepts AUDIO jobs with feedback",
			fmt.Errorf("%w: type %s stage %s", model.ErrInvalidJob, job.Type, job.Stage))
	}

	log.Infof("[TextToSpeech] 步骤1: 开始合成, JobID: %s, 文本长度: %d", job.ID, len(job.AIFeedback))
	url, err := t.synthesizer.Synthesize(ctx, job.AIFeedback, speechKey(job))
	if err != nil {
		// 合成失败时不推送任何 URL
		log.Errorf("[TextToSpeech] 合成失败, JobID: %s, Error: %v", job.ID, err)
		return fmt.Errorf("synthesize reply: %w", err)
	}
	next, err := job.WithSpeech(url)
	if err != nil {
		return fmt.Errorf("synthesize reply: %w", err)
	}

	event := model.AudioReplyEvent{
		AIFeedback:    next.AIFeedback,
		URL:           next.URL,
		ChatSessionID: next.ChatSessionID,
		UserID:        next.UserID,
	}
	if err := t.publisher.PublishAudio(ctx, event); err != nil {
		log.Warnf("[TextToSpeech] 推送语音回复失败, JobID: %s, Error: %v", job.ID, err)
	}

	if err := t.queue.Enqueue(ctx, tasks.QueueSaveAIResponse, next); err != nil {
		return fmt.Errorf("enqueue save-ai-response: %w", err)
	}
	log.Infof("[TextToSpeech] 步骤2: 已推送到 %s 并转发至 %s, JobID: %s", tasks.ChannelAudioMessage, tasks.QueueSaveAIResponse, job.ID)
	return nil
}
