// Package model 包含了应用的数据模型定义。
package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MessageType 是任务载荷与消息记录的模态。
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeAudio MessageType = "AUDIO"
)

// Stage 标记载荷已经经过的最后一个阶段。字段只会随阶段推进而增加，不会被移除。
type Stage string

const (
	StageReceived    Stage = "received"
	StageTranscribed Stage = "transcribed"
	StageFeedback    Stage = "feedback"
	StageSynthesized Stage = "synthesized"
)

var stageOrder = map[Stage]int{
	StageReceived:    0,
	StageTranscribed: 1,
	StageFeedback:    2,
	StageSynthesized: 3,
}

// ErrInvalidJob 表示载荷缺少必需字段或阶段与字段不一致。
var ErrInvalidJob = errors.New("invalid job payload")

var validate = validator.New()

// Job 是在队列之间传递的载荷。
type Job struct {
	ID            string      `json:"id" validate:"required"`
	Stage         Stage       `json:"stage" validate:"required,oneof=received transcribed feedback synthesized"`
	Type          MessageType `json:"type" validate:"required,oneof=TEXT AUDIO"`
	ClassroomID   string      `json:"classroomId" validate:"required"`
	LessonID      string      `json:"lessonId" validate:"required"`
	UserID        string      `json:"userId" validate:"required"`
	ChatSessionID string      `json:"chatSessionId" validate:"required"`

	Content  string `json:"content,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`

	// Text 由语音识别阶段写入。
	Text string `json:"text,omitempty"`
	// AIFeedback 由反馈阶段写入。
	AIFeedback string `json:"aiFeedback,omitempty"`
	// URL 是合成语音的位置，由语音合成阶段写入。
	URL string `json:"url,omitempty"`
}

// Validate 校验公共标识字段以及当前阶段要求的字段。
func (j Job) Validate() error {
	if err := validate.Struct(j); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return fmt.Errorf("%w: invalid fields %s", ErrInvalidJob, strings.Join(fields, ","))
		}
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	switch j.Type {
	case MessageTypeText:
		if strings.TrimSpace(j.Content) == "" {
			return fmt.Errorf("%w: TEXT job requires content", ErrInvalidJob)
		}
		if j.Stage == StageTranscribed || j.Stage == StageSynthesized {
			return fmt.Errorf("%w: TEXT job cannot be at stage %s", ErrInvalidJob, j.Stage)
		}
	case MessageTypeAudio:
		if j.AudioURL == "" {
			return fmt.Errorf("%w: AUDIO job requires audioUrl", ErrInvalidJob)
		}
		if j.After(StageReceived) && strings.TrimSpace(j.Text) == "" {
			return fmt.Errorf("%w: AUDIO job at stage %s requires text", ErrInvalidJob, j.Stage)
		}
	}

	if j.AtLeast(StageFeedback) && j.AIFeedback == "" {
		return fmt.Errorf("%w: stage %s requires aiFeedback", ErrInvalidJob, j.Stage)
	}
	if j.Stage == StageSynthesized && j.URL == "" {
		return fmt.Errorf("%w: stage %s requires url", ErrInvalidJob, j.Stage)
	}
	return nil
}

// AtLeast 判断载荷是否已到达（或越过）给定阶段。
func (j Job) AtLeast(s Stage) bool {
	return stageOrder[j.Stage] >= stageOrder[s]
}

// After 判断载荷是否已越过给定阶段。
func (j Job) After(s Stage) bool {
	return stageOrder[j.Stage] > stageOrder[s]
}

// IsAudio 判断任务是否为语音模态。
func (j Job) IsAudio() bool {
	return j.Type == MessageTypeAudio
}

// UserText 返回学生本条消息的文本：文本消息为 content，语音消息为识别结果。
func (j Job) UserText() string {
	if j.IsAudio() {
		return j.Text
	}
	return j.Content
}

// WithTranscript 返回附带识别文本的副本。
func (j Job) WithTranscript(text string) (Job, error) {
	if !j.IsAudio() {
		return Job{}, fmt.Errorf("%w: only AUDIO jobs can be transcribed", ErrInvalidJob)
	}
	if strings.TrimSpace(text) == "" {
		return Job{}, fmt.Errorf("%w: empty transcript", ErrInvalidJob)
	}
	next := j
	next.Text = text
	next.Stage = StageTranscribed
	return next, nil
}

// WithFeedback 返回附带 AI 回复的副本。
func (j Job) WithFeedback(feedback string) (Job, error) {
	if strings.TrimSpace(feedback) == "" {
		return Job{}, fmt.Errorf("%w: empty aiFeedback", ErrInvalidJob)
	}
	next := j
	next.AIFeedback = feedback
	next.Stage = StageFeedback
	return next, nil
}

// WithSpeech 返回附带合成语音地址的副本。
func (j Job) WithSpeech(url string) (Job, error) {
	if !j.IsAudio() || j.AIFeedback == "" {
		return Job{}, fmt.Errorf("%w: speech requires an AUDIO job with aiFeedback", ErrInvalidJob)
	}
	if url == "" {
		return Job{}, fmt.Errorf("%w: empty url", ErrInvalidJob)
	}
	next := j
	next.URL = url
	next.Stage = StageSynthesized
	return next, nil
}
