package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/config"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/repository"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/llm"
)

type enqueued struct {
	queue string
	job   model.Job
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []enqueued
	err  map[string]error
}

func (q *fakeQueue) Enqueue(_ context.Context, queue string, job model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.err[queue]; err != nil {
		return err
	}
	q.jobs = append(q.jobs, enqueued{queue: queue, job: job})
	return nil
}

func (q *fakeQueue) count(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.jobs {
		if e.queue == queue {
			n++
		}
	}
	return n
}

func (q *fakeQueue) last(queue string) (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.jobs) - 1; i >= 0; i-- {
		if q.jobs[i].queue == queue {
			return q.jobs[i].job, true
		}
	}
	return model.Job{}, false
}

func (q *fakeQueue) total() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type fakePublisher struct {
	mu       sync.Mutex
	texts    []model.TextReplyEvent
	audios   []model.AudioReplyEvent
	failures []model.FailureEvent
	err      error
}

func (p *fakePublisher) PublishText(_ context.Context, e model.TextReplyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, e)
	return p.err
}

func (p *fakePublisher) PublishAudio(_ context.Context, e model.AudioReplyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audios = append(p.audios, e)
	return p.err
}

func (p *fakePublisher) PublishFailure(_ context.Context, _ model.MessageType, e model.FailureEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, e)
	return p.err
}

type fakeLessons struct {
	lessons map[string]model.Lesson
	names   map[string]string
	err     error
}

func (f *fakeLessons) GetLesson(_ context.Context, id string) (*model.Lesson, error) {
	if f.err != nil {
		return nil, f.err
	}
	l, ok := f.lessons[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrLessonNotFound, id)
	}
	return &l, nil
}

func (f *fakeLessons) GetStudentName(_ context.Context, id string) (string, error) {
	return f.names[id], nil
}

type memMessages struct {
	mu   sync.Mutex
	rows []model.Message
}

func (m *memMessages) AppendMessage(_ context.Context, msg *model.Message) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = uint(len(m.rows) + 1)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.rows = append(m.rows, *msg)
	return msg, nil
}

func (m *memMessages) ListUserMessages(_ context.Context, session, user string, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Message
	for _, r := range m.rows {
		if r.ChatSessionID == session && !r.IsBot && r.SenderID != nil && *r.SenderID == user {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memMessages) ListSessionMessages(_ context.Context, session string, _ int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Message
	for _, r := range m.rows {
		if r.ChatSessionID == session {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memMessages) all() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.rows...)
}

type memSequences struct {
	mu  sync.Mutex
	seq map[string]int64
}

func (s *memSequences) NextSequence(_ context.Context, session string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == nil {
		s.seq = map[string]int64{}
	}
	s.seq[session]++
	return s.seq[session], nil
}

type modelCall struct {
	systemPrompt string
	history      []llm.Message
}

// fakeModel 在前 failures 次调用时返回错误。
type fakeModel struct {
	mu       sync.Mutex
	failures int
	reply    string
	calls    []modelCall
}

func (f *fakeModel) Generate(_ context.Context, systemPrompt string, history []llm.Message) (*llm.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, modelCall{systemPrompt: systemPrompt, history: history})
	if len(f.calls) <= f.failures {
		return nil, errors.New("provider unavailable")
	}
	return &llm.Reply{Content: f.reply}, nil
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeSynthesizer struct {
	url  string
	err  error
	keys []string
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string, key string) (string, error) {
	f.keys = append(f.keys, key)
	return f.url, f.err
}

func testOptions() FeedbackOptions {
	return FeedbackOptions{
		BotName:        "Bolchaal",
		HistoryLimit:   20,
		NotifyFailures: true,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			Multiplier:      2,
		},
	}
}

func testLessons() *fakeLessons {
	return &fakeLessons{
		lessons: map[string]model.Lesson{
			"L1": {
				ID:            "L1",
				ClassroomID:   "C1",
				Title:         "At the market",
				Purpose:       "Buy fruit politely",
				KeyVocabulary: "apple, kilo, price",
				KeyGrammar:    "could I have",
				StudentTask:   "Order three items",
			},
		},
		names: map[string]string{"U1": "Asha"},
	}
}

func textJob(content string) model.Job {
	return model.Job{
		ID:            "job-1",
		Stage:         model.StageReceived,
		Type:          model.MessageTypeText,
		ClassroomID:   "C1",
		LessonID:      "L1",
		UserID:        "U1",
		ChatSessionID: "S1",
		Content:       content,
	}
}

func audioJob() model.Job {
	return model.Job{
		ID:            "job-2",
		Stage:         model.StageReceived,
		Type:          model.MessageTypeAudio,
		ClassroomID:   "C1",
		LessonID:      "L1",
		UserID:        "U1",
		ChatSessionID: "S1",
		AudioURL:      "uploads/S1/clip.webm",
	}
}
