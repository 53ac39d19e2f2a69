package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/llm"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/tasks"
)

func TestFeedbackLessonNotFound(t *testing.T) {
	q := &fakeQueue{}
	pub := &fakePublisher{}
	m := &fakeModel{reply: "hi"}
	f := NewFeedback(testLessons(), &memMessages{}, m, q, pub, testOptions())

	job := textJob("Hello")
	job.LessonID = "missing"
	err := f.Handle(context.Background(), job)
	if !IsTerminal(err) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if !strings.Contains(err.Error(), "lesson not found") {
		t.Errorf("error should describe the missing lesson: %v", err)
	}
	if q.total() != 0 {
		t.Error("nothing should be enqueued for a missing lesson")
	}
	if m.callCount() != 0 {
		t.Error("model must not be called for a missing lesson")
	}
	if len(pub.failures) != 1 || pub.failures[0].ChatSessionID != "S1" {
		t.Errorf("expected one failure event, got %+v", pub.failures)
	}
}

func TestFeedbackLessonLookupErrorIsRetriable(t *testing.T) {
	lessons := testLessons()
	lessons.err = errors.New("connection reset")
	err := NewFeedback(lessons, &memMessages{}, &fakeModel{}, &fakeQueue{}, &fakePublisher{}, testOptions()).
		Handle(context.Background(), textJob("Hello"))
	if err == nil || IsTerminal(err) {
		t.Fatalf("expected retriable error, got %v", err)
	}
}

func TestFeedbackRetriesModelThenSucceeds(t *testing.T) {
	q := &fakeQueue{}
	pub := &fakePublisher{}
	m := &fakeModel{failures: 2, reply: "Great job! Could you say that as a full sentence?"}
	f := NewFeedback(testLessons(), &memMessages{}, m, q, pub, testOptions())

	if err := f.Handle(context.Background(), textJob("apples")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if m.callCount() != 3 {
		t.Errorf("model calls = %d, want 3", m.callCount())
	}
	if q.count(tasks.QueueSaveAIResponse) != 1 || q.total() != 1 {
		t.Errorf("expected exactly one outbound enqueue, got %+v", q.jobs)
	}
	if len(pub.texts) != 1 {
		t.Fatalf("text publishes = %d, want 1", len(pub.texts))
	}
	ev := pub.texts[0]
	if ev.AIFeedback != m.reply || ev.ChatSessionID != "S1" || ev.UserID != "U1" {
		t.Errorf("unexpected event %+v", ev)
	}
	job, _ := q.last(tasks.QueueSaveAIResponse)
	if job.Stage != model.StageFeedback || job.AIFeedback != m.reply || job.Content != "apples" {
		t.Errorf("unexpected outbound job %+v", job)
	}
}

func TestFeedbackModelRetriesExhausted(t *testing.T) {
	q := &fakeQueue{}
	pub := &fakePublisher{}
	m := &fakeModel{failures: 10}
	f := NewFeedback(testLessons(), &memMessages{}, m, q, pub, testOptions())

	err := f.Handle(context.Background(), textJob("Hello"))
	if !IsTerminal(err) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if m.callCount() != 3 {
		t.Errorf("model calls = %d, want 3", m.callCount())
	}
	if q.total() != 0 || len(pub.texts) != 0 {
		t.Error("nothing should be delivered when the model fails")
	}
	if len(pub.failures) != 1 {
		t.Errorf("failure events = %d, want 1", len(pub.failures))
	}
}

func TestFeedbackFailureNotificationDisabled(t *testing.T) {
	pub := &fakePublisher{}
	opts := testOptions()
	opts.NotifyFailures = false
	job := textJob("Hello")
	job.LessonID = "missing"
	_ = NewFeedback(testLessons(), &memMessages{}, &fakeModel{}, &fakeQueue{}, pub, opts).Handle(context.Background(), job)
	if len(pub.failures) != 0 {
		t.Fatal("failure events should not be published when disabled")
	}
}

func TestFeedbackModeHistory(t *testing.T) {
	messages := &memMessages{}
	u1, u2 := "U1", "U2"
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	seed := []model.Message{
		{ChatSessionID: "S1", SenderID: &u1, Content: "first", CreatedAt: base},
		{ChatSessionID: "S1", IsBot: true, Content: "bot reply", CreatedAt: base.Add(time.Minute)},
		{ChatSessionID: "S1", SenderID: &u1, Content: "second", CreatedAt: base.Add(2 * time.Minute)},
		{ChatSessionID: "S1", SenderID: &u2, Content: "someone else", CreatedAt: base.Add(3 * time.Minute)},
		{ChatSessionID: "S2", SenderID: &u1, Content: "other session", CreatedAt: base.Add(4 * time.Minute)},
		{ChatSessionID: "S1", SenderID: &u1, Content: "third !feedback", CreatedAt: base.Add(5 * time.Minute)},
	}
	for i := range seed {
		if _, err := messages.AppendMessage(context.Background(), &seed[i]); err != nil {
			t.Fatal(err)
		}
	}

	m := &fakeModel{reply: "report"}
	f := NewFeedback(testLessons(), messages, m, &fakeQueue{}, &fakePublisher{}, testOptions())
	if err := f.Handle(context.Background(), textJob("third !feedback")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	call := m.calls[0]
	var got []string
	for _, h := range call.history {
		if h.Role != llm.RoleUser {
			t.Errorf("unexpected role %q in feedback history", h.Role)
		}
		got = append(got, h.Content)
	}
	want := []string{"third !feedback", "second", "first"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("history = %v, want %v", got, want)
	}
	if !strings.Contains(call.systemPrompt, "Asha") {
		t.Error("feedback prompt should include the student name")
	}
}

func TestConversationModeHistory(t *testing.T) {
	messages := &memMessages{}
	u1 := "U1"
	_, _ = messages.AppendMessage(context.Background(), &model.Message{ChatSessionID: "S1", SenderID: &u1, Content: "earlier"})

	m := &fakeModel{reply: "Tell me more."}
	f := NewFeedback(testLessons(), messages, m, &fakeQueue{}, &fakePublisher{}, testOptions())
	if err := f.Handle(context.Background(), textJob("I like mango")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	h := m.calls[0].history
	if len(h) != 1 || h[0].Role != llm.RoleUser || h[0].Content != "I like mango" {
		t.Errorf("conversation history = %+v", h)
	}
	if !strings.Contains(m.calls[0].systemPrompt, "Buy fruit politely") {
		t.Error("conversation prompt should carry the lesson purpose")
	}
}

func TestFeedbackAudioGoesToSpeech(t *testing.T) {
	q := &fakeQueue{}
	pub := &fakePublisher{}
	job, err := audioJob().WithTranscript("I want two kilo apple")
	if err != nil {
		t.Fatal(err)
	}
	f := NewFeedback(testLessons(), &memMessages{}, &fakeModel{reply: "Say: two kilos of apples."}, q, pub, testOptions())
	if err := f.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if q.count(tasks.QueueTextToSpeech) != 1 || q.total() != 1 {
		t.Errorf("audio feedback should only go to text-to-speech, got %+v", q.jobs)
	}
	if len(pub.texts) != 0 {
		t.Error("audio replies are published after synthesis")
	}
}

func TestFeedbackRejectsUntranscribedAudio(t *testing.T) {
	m := &fakeModel{reply: "x"}
	err := NewFeedback(testLessons(), &memMessages{}, m, &fakeQueue{}, &fakePublisher{}, testOptions()).
		Handle(context.Background(), audioJob())
	if !IsTerminal(err) || m.callCount() != 0 {
		t.Fatalf("expected terminal error before any model call, got %v", err)
	}
}
