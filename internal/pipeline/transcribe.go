package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/speech"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/tasks"
)

// SpeechToText 把语音消息转成文本后交给反馈阶段和入站持久化。
type SpeechToText struct {
	transcriber speech.Transcriber
	queue       Enqueuer
}

// NewSpeechToText 创建一个新的 SpeechToText 实例。
func NewSpeechToText(transcriber speech.Transcriber, queue Enqueuer) *SpeechToText {
	return &SpeechToText{transcriber: transcriber, queue: queue}
}

// Handle 处理 speech-to-text-queue 上的任务。
func (s *SpeechToText) Handle(ctx context.Context, job model.Job) error {
	if err := validated(job); err != nil {
		return err
	}
	if !job.IsAudio() || job.Stage != model.StageReceived {
		return terminal("speech-to-text only accepts received AUDIO jobs",
			fmt.Errorf("%w: type %s stage %s", model.ErrInvalidJob, job.Type, job.Stage))
	}

	log.Infof("[SpeechToText] 步骤1: 开始识别, JobID: %s, AudioURL: %s", job.ID, job.AudioURL)
	text, err := s.transcriber.Transcribe(ctx, job.AudioURL)
	if err != nil {
		log.Errorf("[SpeechToText] 识别失败, JobID: %s, Error: %v", job.ID, err)
		return fmt.Errorf("transcribe %s: %w", job.AudioURL, err)
	}
	// 空识别结果按失败处理，交给队列重试，而不是把空文本传下去
	if strings.TrimSpace(text) == "" {
		log.Warnf("[SpeechToText] 识别结果为空, JobID: %s", job.ID)
		return fmt.Errorf("transcribe %s: %w", job.AudioURL, speech.ErrEmptyTranscript)
	}

	next, err := job.WithTranscript(text)
	if err != nil {
		return terminal("attach transcript", err)
	}
	log.Infof("[SpeechToText] 步骤2: 识别完成, JobID: %s, 文本长度: %d", job.ID, len(text))

	return fanOut(ctx, s.queue, next, tasks.QueueGenerateAIReply, tasks.QueueSaveUserMessage)
}
