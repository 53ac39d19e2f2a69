// Package main 是流水线 worker 的入口点，worker.queues 决定本进程消费哪些队列。
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/config"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/model"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/pipeline"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/repository"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/database"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/es"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/kafka"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/llm"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/realtime"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/speech"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/storage"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/tasks"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("worker 异常退出", err)
		log.Sync()
		os.Exit(1)
	}
	log.Info("worker 已优雅关闭")
}

func run(ctx context.Context, cfg *config.Config) error {
	// 3. 初始化数据库和 Redis
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		return err
	}
	defer database.CloseMySQL(db)
	if cfg.Database.MySQL.AutoMigrate {
		if err := db.AutoMigrate(&model.Lesson{}, &model.Student{}, &model.Message{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	rdb, err := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	store, err := storage.NewAudioStore(ctx, cfg.MinIO)
	if err != nil {
		return err
	}

	// Elasticsearch 是可选的检索索引
	var index pipeline.MessageIndexer
	if cfg.Elasticsearch.Enabled {
		idx, err := es.NewMessageIndex(cfg.Elasticsearch)
		if err != nil {
			log.Warnf("Elasticsearch 初始化失败，消息将不会被索引: %v", err)
		} else {
			index = idx
		}
	}

	// 4. 初始化外部服务客户端
	llmClient, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	transcriber, err := speech.NewTranscriber(ctx, cfg.Speech, store)
	if err != nil {
		return err
	}
	if closer, ok := transcriber.(io.Closer); ok {
		defer closer.Close()
	}
	synthesizer, err := speech.NewSynthesizer(ctx, cfg.Speech, store)
	if err != nil {
		return err
	}

	// 5. 初始化 Repository 与各阶段
	lessons := repository.NewLessonRepository(db)
	messages := repository.NewMessageRepository(db)
	counters := repository.NewCounterRepository(rdb)
	publisher := realtime.NewPublisher(rdb)

	feedback := pipeline.NewFeedback(lessons, messages, llmClient, producer, publisher,
		pipeline.FeedbackOptionsFromConfig(cfg.Tutor, cfg.LLM.Retry))

	stages := map[string]kafka.Handler{
		tasks.QueueRouteMessage:    pipeline.NewRouter(producer),
		tasks.QueueSpeechToText:    pipeline.NewSpeechToText(transcriber, producer),
		tasks.QueueGenerateAIReply: feedback,
		tasks.QueueTextToSpeech:    pipeline.NewTextToSpeech(synthesizer, producer, publisher),
		tasks.QueueSaveUserMessage: pipeline.NewInboundPersistence(messages, counters, index),
		tasks.QueueSaveAIResponse:  pipeline.NewOutboundPersistence(messages, counters, index),
	}

	queues := cfg.Worker.Queues
	if len(queues) == 0 {
		queues = tasks.AllQueues()
	}

	// 6. 启动 Kafka 消费者，任一消费者出错时整体退出
	g, gctx := errgroup.WithContext(ctx)
	consumers := make([]*kafka.Consumer, 0, len(queues))
	for _, queue := range queues {
		handler, ok := stages[queue]
		if !ok {
			return fmt.Errorf("unknown queue %q in worker.queues", queue)
		}
		consumer := kafka.NewConsumer(cfg.Kafka, queue, handler, producer, counters)
		consumers = append(consumers, consumer)
		g.Go(func() error { return consumer.Run(gctx) })
		log.Infof("消费者已启动, Queue: %s", queue)
	}
	defer func() {
		for _, c := range consumers {
			if err := c.Close(); err != nil {
				log.Warnf("关闭消费者失败: %v", err)
			}
		}
	}()

	return g.Wait()
}
