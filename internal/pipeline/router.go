package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/tasks"
)

// Router 按模态把新消息分发到下游队列。
type Router struct {
	queue Enqueuer
}

// NewRouter 创建一个新的 Router 实例。
func NewRouter(queue Enqueuer) *Router {
	return &Router{queue: queue}
}

// Handle 处理 route-message-queue 上的任务。
// TEXT 同时进入反馈与入站持久化；AUDIO 先做语音识别，持久化推迟到识别之后。
func (r *Router) Handle(ctx context.Context, job model.Job) error {
	if err := validated(job); err != nil {
		return err
	}
	if job.Stage != model.StageReceived {
		return terminal("router only accepts received jobs", fmt.Errorf("%w: stage %s", model.ErrInvalidJob, job.Stage))
	}
	log.Infof("[Router] 收到消息, JobID: %s, Type: %s, ChatSessionID: %s", job.ID, job.Type, job.ChatSessionID)

	if job.IsAudio() {
		if err := r.queue.Enqueue(ctx, tasks.QueueSpeechToText, job); err != nil {
			return fmt.Errorf("enqueue speech-to-text: %w", err)
		}
		log.Infof("[Router] 语音消息已转发至 %s, JobID: %s", tasks.QueueSpeechToText, job.ID)
		return nil
	}

	if err := fanOut(ctx, r.queue, job, tasks.QueueGenerateAIReply, tasks.QueueSaveUserMessage); err != nil {
		return err
	}
	log.Infof("[Router] 文本消息已转发至 %s 和 %s, JobID: %s", tasks.QueueGenerateAIReply, tasks.QueueSaveUserMessage, job.ID)
	return nil
}

// fanOut 并发地把同一载荷写入多个队列，返回第一个错误。
func fanOut(ctx context.Context, queue Enqueuer, job model.Job, queues ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range queues {
		name := name
		g.Go(func() error {
			if err := queue.Enqueue(gctx, name, job); err != nil {
				return fmt.Errorf("enqueue %s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
