package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/esfera-conectada/config"
	"github.com/d60-Lab/esfera-conectada/internal/api"
	"github.com/d60-Lab/esfera-conectada/internal/api/handler"
	"github.com/d60-Lab/esfera-conectada/internal/notifier"
	"github.com/d60-Lab/esfera-conectada/internal/realtime"
	"github.com/d60-Lab/esfera-conectada/internal/repository"
	"github.com/d60-Lab/esfera-conectada/internal/service"
	"github.com/d60-Lab/esfera-conectada/internal/session"
	"github.com/d60-Lab/esfera-conectada/pkg/database"
	"github.com/d60-Lab/esfera-conectada/pkg/logger"
	"github.com/d60-Lab/esfera-conectada/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// 配置缺失属于致命错误，日志尚未初始化时直接退出
		log.Fatalf("load config: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.SentryDSN); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	shutdownTrace, err := tracing.Init(ctx, "esfera-conectada", cfg.Trace.Endpoint)
	if err != nil {
		logger.Error("init tracing", zap.Error(err))
		os.Exit(1)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Error("init database", zap.Error(err))
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("connect redis", zap.Error(err))
		os.Exit(1)
	}

	profiles := repository.NewProfileRepository(db)
	posts := repository.NewPostRepository(db)
	comments := repository.NewCommentRepository(db)
	likes := repository.NewLikeRepository(db)
	subs := repository.NewSubscriptionRepository(db)
	messages := repository.NewMessageRepository(db)
	blocks := repository.NewBlockRepository(db)
	notifs := repository.NewNotificationRepository(db)

	publisher := realtime.NewPublisher(rdb)
	fanout := service.NewNotificationFanout(notifs, blocks, publisher, cfg.Sync.FanoutQueueLen)
	stopFanout := fanout.Start(cfg.Sync.FanoutWorkers)

	provider := session.NewProvider(profiles, rdb, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	hub := service.NewHub(blocks, subs, rdb, cfg.Sync.GuardCacheTTL)
	rt := notifier.New(rdb, 30*time.Second)
	hub.OnAttach = rt.Attach

	dispatcher := service.NewDispatcher(posts, comments, likes, subs, blocks, messages, fanout, cfg.Sync.CallTimeout)
	h := handler.New(provider, hub, dispatcher, profiles, posts, comments, likes, subs, messages, notifs, cfg.Sync.PageSize)
	router := api.NewRouter(cfg, provider, hub, h)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	hub.Shutdown(shutdownCtx)
	if err := stopFanout(shutdownCtx); err != nil {
		logger.Error("fanout shutdown", zap.Error(err))
	}
	if err := shutdownTrace(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		logger.Error("redis close", zap.Error(err))
	}
}
