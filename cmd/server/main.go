// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"next-chatbot-go/internal/config"
	"next-chatbot-go/internal/handler"
	"next-chatbot-go/internal/middleware"
	"next-chatbot-go/internal/pipeline"
	"next-chatbot-go/internal/repository"
	"next-chatbot-go/internal/service"
	"next-chatbot-go/pkg/assistant"
	"next-chatbot-go/pkg/database"
	"next-chatbot-go/pkg/es"
	"next-chatbot-go/pkg/kafka"
	"next-chatbot-go/pkg/log"
	"next-chatbot-go/pkg/mail"
	"next-chatbot-go/pkg/storage"
	"next-chatbot-go/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化 Redis 和 MySQL，MySQL 只保存用户档案，连不上时跳过
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelInit()
	rdb, err := database.OpenRedis(initCtx, cfg.Database.Redis)
	if err != nil {
		log.Fatal("Redis 初始化失败", err)
	}
	defer rdb.Close()

	var userRepository repository.UserRepository
	if cfg.Database.MySQL.DSN != "" {
		db, err := database.OpenMySQL(cfg.Database.MySQL.DSN)
		if err != nil {
			log.Warnf("MySQL 不可用，不记录用户档案: %v", err)
		} else {
			userRepository = repository.NewUserRepository(db)
		}
	}

	// 4. 初始化 Repository
	localStore := repository.NewLocalStore(rdb, cfg.Storage.Namespace)
	sessionStore := repository.NewSessionStore(rdb, cfg.Storage.SessionTTL)
	transcriptRepo := repository.NewTranscriptRepository(localStore)
	identityRepo := repository.NewIdentityRepository(localStore, sessionStore)
	preferenceRepo := repository.NewPreferenceRepository(localStore)
	blacklist := repository.NewTokenBlacklist(rdb)

	// 5. 初始化外部客户端
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	assistantClient := assistant.NewClient(cfg.Assistant)
	mailHTTP := &http.Client{Timeout: cfg.Mail.Timeout}
	var sender mail.Sender
	if cfg.Mail.Provider == "backend" {
		sender = mail.NewBackendSender(cfg.Assistant, cfg.Mail, mailHTTP)
	} else {
		sender = mail.NewGmailSender(cfg.Mail, mailHTTP)
	}
	log.Infof("邮件通道: %s", cfg.Mail.Provider)

	// 6. 可选的归档流水线：Kafka 任务 -> MinIO 快照 + Elasticsearch 索引
	var (
		producer  *kafka.Producer
		searcher  service.TranscriptSearcher
		linker    service.SnapshotLinker
		publisher service.ArchivePublisher
	)
	consumerCtx, stopConsume := context.WithCancel(context.Background())
	defer stopConsume()
	consumerDone := make(chan struct{})
	if cfg.Archive.Enabled {
		snapshots, err := storage.NewTranscriptStore(initCtx, cfg.MinIO)
		if err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		esClient, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			log.Fatal("Elasticsearch 初始化失败", err)
		}
		index := es.NewTranscriptIndex(esClient, cfg.Elasticsearch.IndexName)
		if err := index.EnsureIndex(initCtx); err != nil {
			log.Fatal("Elasticsearch 索引初始化失败", err)
		}

		producer = kafka.NewProducer(cfg.Kafka)
		publisher = producer
		searcher = index
		linker = snapshots

		// 7. 启动后台 Kafka 消费者
		processor := pipeline.NewProcessor(snapshots, index)
		go func() {
			defer close(consumerDone)
			kafka.StartConsumer(consumerCtx, cfg.Kafka, processor, kafka.NewAttemptTracker(rdb))
		}()
	} else {
		close(consumerDone)
		log.Info("对话归档未启用")
	}

	// 8. 初始化 Service (依赖注入)
	conversations := service.NewConversationManager(transcriptRepo, cfg.Chat.RevealInterval)
	limiter := middleware.NewClientRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go conversations.RunSweeper(sweepCtx, cfg.Chat.IdleTimeout, cfg.Chat.SweepInterval)
	go limiter.RunPruner(sweepCtx, cfg.RateLimit.IdleTimeout, cfg.Chat.SweepInterval)
	userService := service.NewUserService(identityRepo, preferenceRepo, blacklist, userRepository, conversations, jwtManager)
	chatService := service.NewChatService(conversations, assistantClient, identityRepo, preferenceRepo, publisher, cfg.Chat.ProcessingText)
	historyService := service.NewHistoryService(assistantClient, identityRepo, cfg.Chat.TimeLocation())
	mailService := service.NewMailService(conversations, identityRepo, sender)
	archiveService := service.NewArchiveService(searcher, linker, preferenceRepo)

	// 9. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Services{
		User:    userService,
		Chat:    chatService,
		History: historyService,
		Mail:    mailService,
		Archive: archiveService,
	}, jwtManager, limiter)

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

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 正在显示的回复直接写完，保证存储里是完整内容
	stopSweep()
	conversations.Shutdown()

	stopConsume()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}
