// Command server runs the plan-generation delivery pipeline: the internal
// HTTP surface (callback gateway, dispatch, state probe), the detached
// callback worker pool, and the dead-letter stream watcher.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fitpilot/go-coach-backend/internal/catalog"
	"github.com/fitpilot/go-coach-backend/internal/config"
	"github.com/fitpilot/go-coach-backend/internal/domain"
	httpapi "github.com/fitpilot/go-coach-backend/internal/http"
	"github.com/fitpilot/go-coach-backend/internal/kv"
	"github.com/fitpilot/go-coach-backend/internal/observability"
	"github.com/fitpilot/go-coach-backend/internal/queue"
	"github.com/fitpilot/go-coach-backend/internal/repo"
	"github.com/fitpilot/go-coach-backend/internal/services"
	"github.com/fitpilot/go-coach-backend/internal/sysutil"
	"github.com/fitpilot/go-coach-backend/internal/transport"
	"github.com/fitpilot/go-coach-backend/internal/worker"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing (no-op unless enabled).
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	// Source of truth.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// Shared key-value store and job streams.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
	}
	store := kv.NewRedisStore(rdb)
	jobQueue := queue.NewRedisQueue(rdb, cfg.Queue.Stream)

	// Chat transport: without a token, notifications go to the log only.
	var chat transport.Chat
	if cfg.Telegram.Token != "" {
		chat, err = transport.NewTelegram(cfg.Telegram.Token)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram transport init failed")
		}
	} else {
		log.Warn().Msg("TELEGRAM_TOKEN not set, notifications are log-only")
		chat = transport.LogChat{}
	}

	pipeline := services.NewPipeline(db, store, jobQueue, chat, catalog.Default(), services.PipelineOptions{
		DeliveryTTL: cfg.DeliveryTTL,
		CacheTTL:    cfg.CacheTTL,
		BotName:     cfg.Telegram.BotName,
		Costs: map[domain.PlanType]int{
			domain.PlanProgram:      cfg.ProgramCost,
			domain.PlanSubscription: cfg.SubscriptionCost,
		},
	})

	// Detached callback processing.
	pool := worker.NewPool(cfg.Workers, cfg.WorkerQueueDepth)
	pool.Start(ctx)

	// Dead-letter watcher: worker-side terminal failures become delivery
	// failures with a single user notification.
	watcher := queue.NewWatcher(rdb, cfg.Queue.DeadStream, cfg.Queue.Group, cfg.Queue.Consumer, pipeline.HandleDeadLetter)
	go watcher.Run(ctx)

	r := gin.New()
	httpapi.RegisterRoutes(r, pipeline, pool, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	// Drain in-flight callback tasks before closing shared clients.
	pool.Close()
	if err := rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("redis close failed")
	}
	log.Info().Msg("shutdown complete")
}
