// Package main 是 HTTP 入口与实时推送网关的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/config"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/handler"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/middleware"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/repository"
	"github.com/sahilahluwalia/bolchaal-sub000/internal/service"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/database"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/kafka"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/log"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/realtime"
	"github.com/sahilahluwalia/bolchaal-sub000/pkg/storage"
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
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 和队列生产者
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatal("MySQL 初始化失败", err)
	}
	defer database.CloseMySQL(db)

	rdb, err := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatal("Redis 初始化失败", err)
	}
	defer rdb.Close()

	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 语音上传依赖 MinIO，不可用时只关闭该功能
	var uploader service.AudioUploader
	if store, err := storage.NewAudioStore(context.Background(), cfg.MinIO); err != nil {
		log.Warnf("MinIO 初始化失败，语音上传不可用: %v", err)
	} else {
		uploader = store
	}

	// 4. 初始化 Service (依赖注入)
	messageService := service.NewMessageService(producer, repository.NewMessageRepository(db), uploader)
	messageHandler := handler.NewMessageHandler(messageService)
	liveHandler := handler.NewLiveHandler(realtime.NewSubscriber(rdb))
	healthHandler := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"mysql": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	// 5. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 6. 注册路由
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/ws/sessions/:chatSessionId", liveHandler.Handle)
	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/messages", messageHandler.Submit)
		sessions := apiV1.Group("/sessions/:chatSessionId")
		{
			sessions.POST("/audio", messageHandler.SubmitAudio)
			sessions.GET("/messages", messageHandler.History)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// WebSocket 连接已被劫持，Shutdown 不会等待它们
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
