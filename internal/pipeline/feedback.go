package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/config"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/repository"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/llm"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/tasks"
)

// FeedbackOptions 控制反馈阶段的行为。
type FeedbackOptions struct {
	BotName        string
	HistoryLimit   int
	NotifyFailures bool
	Retry          config.RetryConfig
}

// FeedbackOptionsFromConfig 从配置组装 FeedbackOptions。
func FeedbackOptionsFromConfig(tutor config.TutorConfig, retry config.RetryConfig) FeedbackOptions {
	return FeedbackOptions{
		BotName:        tutor.BotName,
		HistoryLimit:   tutor.HistoryLimit,
		NotifyFailures: tutor.NotifyFailures,
		Retry:          retry,
	}
}

// Feedback 是流水线的核心阶段：解析课程、判断模式、组装历史、调用模型并分发回复。
type Feedback struct {
	lessons   repository.LessonRepository
	messages  repository.MessageRepository
	generator llm.Client
	queue     Enqueuer
	publisher ReplyPublisher
	opts      FeedbackOptions
}

// NewFeedback 创建一个新的 Feedback 实例。
func NewFeedback(
	lessons repository.LessonRepository,
	messages repository.MessageRepository,
	generator llm.Client,
	queue Enqueuer,
	publisher ReplyPublisher,
	opts FeedbackOptions,
) *Feedback {
	if opts.BotName == "" {
		opts.BotName = "Bolchaal"
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	return &Feedback{
		lessons:   lessons,
		messages:  messages,
		generator: generator,
		queue:     queue,
		publisher: publisher,
		opts:      opts,
	}
}

// Handle 处理 generate-ai-feedback-queue 上的任务。
func (f *Feedback) Handle(ctx context.Context, job model.Job) error {
	if err := validated(job); err != nil {
		return err
	}
	if job.AtLeast(model.StageFeedback) || (job.IsAudio() && job.Stage != model.StageTranscribed) {
		return terminal("feedback needs a received TEXT or transcribed AUDIO job",
			fmt.Errorf("%w: type %s stage %s", model.ErrInvalidJob, job.Type, job.Stage))
	}
	logger := log.With("jobId", job.ID, "chatSessionId", job.ChatSessionID, "type", job.Type)

	// 1. 解析课程配置
	logger.Infof("[Feedback] 步骤1: 读取课程配置, LessonID: %s", job.LessonID)
	lesson, err := f.lessons.GetLesson(ctx, job.LessonID)
	if errors.Is(err, repository.ErrLessonNotFound) {
		logger.Warnf("[Feedback] 课程不存在, LessonID: %s, 任务终止", job.LessonID)
		f.notifyFailure(ctx, job, "lesson not found")
		return terminal("lesson not found", err)
	}
	if err != nil {
		return fmt.Errorf("load lesson: %w", err)
	}

	// 2. 判断模式
	mode := DetectMode(job.UserText())
	logger.Infof("[Feedback] 步骤2: 模式为 %s", mode)

	// 3. 组装历史
	history, studentName, err := f.assemble(ctx, mode, job)
	if err != nil {
		return err
	}
	logger.Infof("[Feedback] 步骤3: 历史组装完成, 条数: %d", len(history))

	// 4. 构建 system prompt
	systemPrompt := BuildSystemPrompt(mode, *lesson, f.opts.BotName, studentName)

	// 5. 调用模型（带指数退避）
	reply, err := f.generate(ctx, systemPrompt, history)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Errorf("[Feedback] 模型调用在 %d 次尝试后仍失败: %v", f.opts.Retry.MaxAttempts, err)
		f.notifyFailure(ctx, job, "could not generate a reply")
		return terminal("model call failed", err)
	}
	logger.Infof("[Feedback] 步骤5: 模型回复完成, 长度: %d", len(reply))

	// 6. 分发
	next, err := job.WithFeedback(reply)
	if err != nil {
		return terminal("attach feedback", err)
	}
	if next.IsAudio() {
		if err := f.queue.Enqueue(ctx, tasks.QueueTextToSpeech, next); err != nil {
			return fmt.Errorf("enqueue text-to-speech: %w", err)
		}
		logger.Infof("[Feedback] 步骤6: 已转发至 %s", tasks.QueueTextToSpeech)
		return nil
	}

	if err := f.queue.Enqueue(ctx, tasks.QueueSaveAIResponse, next); err != nil {
		return fmt.Errorf("enqueue save-ai-response: %w", err)
	}
	event := model.TextReplyEvent{
		AIFeedback:    next.AIFeedback,
		ChatSessionID: next.ChatSessionID,
		UserID:        next.UserID,
	}
	// 推送是尽力而为的，失败时客户端可以从消息记录中补齐
	if err := f.publisher.PublishText(ctx, event); err != nil {
		logger.Warnf("[Feedback] 推送文本回复失败: %v", err)
	}
	logger.Infof("[Feedback] 步骤6: 已转发至 %s 并推送到 %s", tasks.QueueSaveAIResponse, tasks.ChannelTextMessage)
	return nil
}

// assemble 返回发送给模型的历史，FEEDBACK 模式下还返回学生姓名。
func (f *Feedback) assemble(ctx context.Context, mode Mode, job model.Job) ([]llm.Message, string, error) {
	current := []llm.Message{{Role: llm.RoleUser, Content: job.UserText()}}
	if mode == ModeConversation {
		return current, "", nil
	}

	prior, err := f.messages.ListUserMessages(ctx, job.ChatSessionID, job.UserID, f.opts.HistoryLimit)
	if err != nil {
		return nil, "", fmt.Errorf("load history: %w", err)
	}
	history := make([]llm.Message, 0, len(prior))
	for _, m := range prior {
		if m.IsBot || m.SenderID == nil || *m.SenderID != job.UserID {
			continue
		}
		history = append(history, llm.Message{Role: llm.RoleUser, Content: m.Content})
	}
	// 学生还没有任何已保存的消息时，至少把本条消息交给模型
	if len(history) == 0 {
		history = current
	}

	name, err := f.lessons.GetStudentName(ctx, job.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("load student name: %w", err)
	}
	return history, name, nil
}

func (f *Feedback) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if f.opts.Retry.InitialInterval > 0 {
		b.InitialInterval = f.opts.Retry.InitialInterval
	}
	if f.opts.Retry.MaxInterval > 0 {
		b.MaxInterval = f.opts.Retry.MaxInterval
	}
	if f.opts.Retry.Multiplier > 0 {
		b.Multiplier = f.opts.Retry.Multiplier
	}
	// 次数由 WithMaxRetries 控制
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.opts.Retry.MaxAttempts-1)), ctx)
}

func (f *Feedback) generate(ctx context.Context, systemPrompt string, history []llm.Message) (string, error) {
	var content string
	attempt := 0
	op := func() error {
		attempt++
		reply, err := f.generator.Generate(ctx, systemPrompt, history)
		if err != nil {
			return err
		}
		content = reply.Content
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warnf("[Feedback] 第 %d 次模型调用失败, %s 后重试: %v", attempt, wait, err)
	}
	if err := backoff.RetryNotify(op, f.newBackOff(ctx), notify); err != nil {
		return "", err
	}
	return content, nil
}

func (f *Feedback) notifyFailure(ctx context.Context, job model.Job, reason string) {
	if !f.opts.NotifyFailures {
		return
	}
	event := model.FailureEvent{
		Error:         reason,
		ChatSessionID: job.ChatSessionID,
		UserID:        job.UserID,
	}
	if err := f.publisher.PublishFailure(ctx, job.Type, event); err != nil {
		log.Warnf("[Feedback] 推送失败事件失败, JobID: %s, Error: %v", job.ID, err)
	}
}
