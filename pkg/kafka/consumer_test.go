package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/tasks"
)

type published struct {
	topic   string
	key     []byte
	value   []byte
	headers []kafka.Header
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, key, value []byte, headers ...kafka.Header) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, key: key, value: value, headers: headers})
	return nil
}

type fakeAttempts struct {
	counts map[string]int64
	resets int
}

func (a *fakeAttempts) IncrAttempts(_ context.Context, queue, jobID string) (int64, error) {
	if a.counts == nil {
		a.counts = map[string]int64{}
	}
	a.counts[queue+jobID]++
	return a.counts[queue+jobID], nil
}

func (a *fakeAttempts) ResetAttempts(_ context.Context, queue, jobID string) error {
	delete(a.counts, queue+jobID)
	a.resets++
	return nil
}

// downAttempts 模拟 Redis 不可用。
type downAttempts struct{}

func (downAttempts) IncrAttempts(context.Context, string, string) (int64, error) {
	return 0, errors.New("redis: connection refused")
}

func (downAttempts) ResetAttempts(context.Context, string, string) error {
	return errors.New("redis: connection refused")
}

type terminalErr struct{}

func (terminalErr) Error() string  { return "lesson not found" }
func (terminalErr) Terminal() bool { return true }

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func jobMessage(t *testing.T, offset int64) kafka.Message {
	t.Helper()
	b, err := json.Marshal(model.Job{ID: "job-1", ChatSessionID: "S1", Type: model.MessageTypeText})
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Offset: offset, Key: []byte("S1"), Value: b}
}

func TestConsumerProcess(t *testing.T) {
	queue := tasks.QueueGenerateAIReply
	transient := errors.New("db timeout")

	t.Run("success commits and resets attempts", func(t *testing.T) {
		pub, att := &fakePublisher{}, &fakeAttempts{}
		c := newConsumer(queue, &fakeReader{}, HandlerFunc(func(context.Context, model.Job) error { return nil }), pub, att, 3, 0)
		if !c.process(context.Background(), jobMessage(t, 1)) {
			t.Fatal("expected commit")
		}
		if att.resets != 1 || len(pub.msgs) != 0 {
			t.Fatalf("resets=%d published=%d", att.resets, len(pub.msgs))
		}
	})

	t.Run("malformed message is committed", func(t *testing.T) {
		pub := &fakePublisher{}
		c := newConsumer(queue, &fakeReader{}, HandlerFunc(func(context.Context, model.Job) error {
			t.Fatal("handler must not run")
			return nil
		}), pub, &fakeAttempts{}, 3, 0)
		if !c.process(context.Background(), kafka.Message{Value: []byte("{not json")}) {
			t.Fatal("expected commit")
		}
	})

	t.Run("terminal error is not retried", func(t *testing.T) {
		pub := &fakePublisher{}
		c := newConsumer(queue, &fakeReader{}, HandlerFunc(func(context.Context, model.Job) error {
			return fmt.Errorf("feedback: %w", terminalErr{})
		}), pub, &fakeAttempts{}, 3, 0)
		if !c.process(context.Background(), jobMessage(t, 1)) {
			t.Fatal("expected commit")
		}
		if len(pub.msgs) != 0 {
			t.Fatalf("terminal failure must not be republished: %+v", pub.msgs)
		}
	})

	t.Run("invalid job is not retried", func(t *testing.T) {
		pub := &fakePublisher{}
		c := newConsumer(queue, &fakeReader{}, HandlerFunc(func(context.Context, model.Job) error {
			return model.ErrInvalidJob
		}), pub, &fakeAttempts{}, 3, 0)
		c.process(context.Background(), jobMessage(t, 1))
		if len(pub.msgs) != 0 {
			t.Fatal("invalid job must not be republished")
		}
	})

	t.Run("transient error is republished then dead-lettered", func(t *testing.T) {
		pub, att := &fakePublisher{}, &fakeAttempts{}
		c := newConsumer(queue, &fakeReader{}, HandlerFunc(func(context.Context, model.Job) error { return transient }), pub, att, 3, 0)

		for i := 0; i < 3; i++ {
			if !c.process(context.Background(), jobMessage(t, int64(i))) {
				t.Fatalf("attempt %d should commit", i+1)
			}
		}
		if len(pub.msgs) != 3 {
			t.Fatalf("expected 2 retries + 1 dead letter, got %d", len(pub.msgs))
		}
		if pub.msgs[0].topic != queue || pub.msgs[1].topic != queue {
			t.Fatalf("retries should go back to %s: %+v", queue, pub.msgs)
		}
		if pub.msgs[2].topic != tasks.DeadLetter(queue) {
			t.Fatalf("last publish should be dead letter, got %s", pub.msgs[2].topic)
		}
	})

	t.Run("retries stay bounded when attempt counter is down", func(t *testing.T) {
		pub := &fakePublisher{}
		c := newConsumer(queue, &fakeReader{}, HandlerFunc(func(context.Context, model.Job) error { return transient }), pub, downAttempts{}, 3, 0)

		msg := jobMessage(t, 1)
		deliveries := 0
		for deliveries < 20 {
			deliveries++
			if !c.process(context.Background(), msg) {
				t.Fatalf("delivery %d should commit", deliveries)
			}
			last := pub.msgs[len(pub.msgs)-1]
			if last.topic == tasks.DeadLetter(queue) {
				break
			}
			msg = kafka.Message{Offset: int64(deliveries + 1), Key: last.key, Value: last.value, Headers: last.headers}
		}
		if deliveries != 3 {
			t.Fatalf("expected dead letter on delivery 3, got %d deliveries", deliveries)
		}
		if got := headerAttempts(kafka.Message{Headers: pub.msgs[len(pub.msgs)-1].headers}); got != 3 {
			t.Fatalf("dead letter attempts header = %d", got)
		}
	})

	t.Run("header count wins over a lower redis count", func(t *testing.T) {
		pub := &fakePublisher{}
		c := newConsumer(queue, &fakeReader{}, HandlerFunc(func(context.Context, model.Job) error { return transient }), pub, &fakeAttempts{}, 3, 0)

		msg := jobMessage(t, 1)
		msg.Headers = withAttempts(nil, 2)
		c.process(context.Background(), msg)
		if len(pub.msgs) != 1 || pub.msgs[0].topic != tasks.DeadLetter(queue) {
			t.Fatalf("expected dead letter, got %+v", pub.msgs)
		}
	})

	t.Run("failed republish leaves offset uncommitted", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("broker down")}
		c := newConsumer(queue, &fakeReader{}, HandlerFunc(func(context.Context, model.Job) error { return transient }), pub, &fakeAttempts{}, 3, 0)
		if c.process(context.Background(), jobMessage(t, 1)) {
			t.Fatal("expected no commit")
		}
	})
}

func TestConsumerRunStopsOnCancel(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{jobMessage(t, 7), jobMessage(t, 8)}}
	ctx, cancel := context.WithCancel(context.Background())
	handled := 0
	c := newConsumer(tasks.QueueRouteMessage, reader, HandlerFunc(func(context.Context, model.Job) error {
		handled++
		if handled == 2 {
			cancel()
		}
		return nil
	}), &fakePublisher{}, &fakeAttempts{}, 3, 0)

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if handled != 2 {
		t.Fatalf("handled = %d", handled)
	}
	if len(reader.committed) < 1 || reader.committed[0] != 7 {
		t.Fatalf("committed = %v", reader.committed)
	}
}
