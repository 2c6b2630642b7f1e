package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/Tavern/config"
	"github.com/Gopher0727/Tavern/internal/activity"
	"github.com/Gopher0727/Tavern/internal/api"
	"github.com/Gopher0727/Tavern/internal/handler"
	"github.com/Gopher0727/Tavern/internal/pkg/kafka"
	"github.com/Gopher0727/Tavern/internal/repository"
	"github.com/Gopher0727/Tavern/internal/repository/memory"
	"github.com/Gopher0727/Tavern/internal/service"
	"github.com/Gopher0727/Tavern/internal/storage"
	"github.com/Gopher0727/Tavern/middleware/jwt"
	logger "github.com/Gopher0727/Tavern/middleware/log"
	"github.com/Gopher0727/Tavern/utils/ratelimit"
	"github.com/Gopher0727/Tavern/utils/snowflake"
)

func main() {
	defaultPath := os.Getenv("TAVERN_CONFIG")
	if defaultPath == "" {
		defaultPath = "./config.toml"
	}
	configPath := flag.String("config", defaultPath, "path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	appLogger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化 Redis（可选：成员缓存、限流、活动流）
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient, err = storage.InitRedis(ctx, cfg.Redis)
		if err != nil {
			appLogger.Fatal("redis 初始化失败", zap.Error(err))
		}
		defer redisClient.Close()
	}

	// 初始化仓储层
	var store repository.Store
	if cfg.Database.Driver == "memory" {
		appLogger.Warn("using in-memory store, data is lost on restart")
		store = memory.NewStore()
	} else {
		db, err := storage.OpenDatabase(cfg.Database)
		if err != nil {
			appLogger.Fatal("数据库初始化失败", zap.Error(err))
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		var opts []repository.StoreOption
		if redisClient != nil {
			ttl := time.Duration(cfg.Redis.MemberCacheTTLSeconds) * time.Second
			opts = append(opts, repository.WithMemberCache(repository.NewMemberCache(redisClient, ttl)))
		}
		store = repository.NewGormStore(db, opts...)
	}

	// 初始化 Kafka Producer，不可用时降级为不发布事件
	var publisher kafka.Publisher = kafka.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			appLogger.Warn("kafka producer unavailable, activity events are dropped", zap.Error(err))
		} else {
			activityPublisher := kafka.NewActivityPublisher(producer, cfg.Kafka.Topic, cfg.Kafka.MaxRetries)
			defer activityPublisher.Close()
			publisher = activityPublisher
		}
	}

	// 活动流消费者
	var feed *activity.Feed
	if redisClient != nil {
		feed = activity.NewFeed(redisClient, cfg.Kafka.Consumer.FeedSize)
	}
	if cfg.Kafka.Consumer.Enabled && feed != nil {
		consumer, err := kafka.NewConsumer(cfg.Kafka, feed.Record, appLogger)
		if err != nil {
			appLogger.Fatal("kafka consumer 初始化失败", zap.Error(err))
		}
		consumer.Start(ctx)
		defer func() {
			if err := consumer.Stop(); err != nil {
				appLogger.Error("failed to stop consumer", zap.Error(err))
			}
		}()
	}

	blobs, err := storage.NewDiskBlobStore(cfg.Storage.Root, cfg.Storage.BaseURL)
	if err != nil {
		appLogger.Fatal("blob store 初始化失败", zap.Error(err))
	}
	ids, err := snowflake.NewGenerator(snowflake.Config{WorkerID: cfg.Snowflake.WorkerID})
	if err != nil {
		appLogger.Fatal("snowflake 初始化失败", zap.Error(err))
	}
	tokens := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.RefreshHours)

	// 初始化服务层
	deps := service.Deps{Store: store, Logger: appLogger, Publisher: publisher}
	handlers := &api.Handlers{
		Member:       handler.NewMemberHandler(service.NewMemberService(deps, tokens, blobs), cfg.Storage.MaxFileBytes),
		Tavern:       handler.NewTavernHandler(service.NewTavernService(deps)),
		GameDay:      handler.NewGameDayHandler(service.NewGameDayService(deps)),
		Feed:         handler.NewFeedHandler(service.NewFeedService(deps, blobs, ids), cfg.Storage.MaxFileBytes),
		File:         handler.NewFileHandler(service.NewFileService(deps, blobs, ids, cfg.Storage.MaxFileBytes), cfg.Storage.MaxFileBytes),
		Notification: handler.NewNotificationHandler(service.NewNotificationService(deps)),
		Blob:         handler.NewBlobHandler(blobs),
	}
	if feed != nil {
		handlers.Activity = handler.NewActivityHandler(service.NewActivityService(deps, feed))
	}

	// 未配置 Redis 时不限流
	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewWindowLimiter(redisClient, appLogger.Logger, cfg.RateLimit.FailOpen)
	}

	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(api.NewMiddlewareManager(tokens, limiter, appLogger, cfg.RateLimit), handlers)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server stopped unexpectedly", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
