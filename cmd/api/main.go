package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/podclip/internal/api"
	"github.com/bobarin/podclip/internal/budget"
	"github.com/bobarin/podclip/internal/captions"
	"github.com/bobarin/podclip/internal/clipper"
	"github.com/bobarin/podclip/internal/config"
	"github.com/bobarin/podclip/internal/db"
	"github.com/bobarin/podclip/internal/muxer"
	"github.com/bobarin/podclip/internal/notifier"
	"github.com/bobarin/podclip/internal/queue"
	"github.com/bobarin/podclip/internal/renderer"
	"github.com/bobarin/podclip/internal/retention"
	"github.com/bobarin/podclip/internal/scheduler"
	"github.com/bobarin/podclip/internal/store"
	"github.com/bobarin/podclip/internal/videostore"
	"github.com/bobarin/podclip/internal/worker"
)

const scratchDir = "/tmp/podclip/scratch"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogFormat)
	slog.SetDefault(log)
	log.Info("starting podclip API")

	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = db.New(cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		log.Info("connected to database")
	} else {
		log.Warn("DATABASE_URL not set — running with in-memory job store only, no crash recovery")
	}

	var wakeup *queue.Wakeup
	if cfg.RedisURL != "" {
		wakeup, err = queue.New(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to redis wakeup queue", "error", err)
			os.Exit(1)
		}
		defer wakeup.Close()
		log.Info("connected to redis wakeup queue")
	} else {
		log.Warn("REDIS_URL not set — scheduler will rely on its local fallback pump interval")
	}

	jobStore := store.New(database)

	budgetTracker := budget.New(cfg.DailySpendingCap)
	if database != nil {
		if err := budgetTracker.Reconcile(context.Background(), database); err != nil {
			log.Error("failed to reconcile daily spend from database", "error", err)
			os.Exit(1)
		}
	}

	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		log.Error("failed to create scratch directory", "error", err)
		os.Exit(1)
	}

	videoStore, err := videostore.New(cfg.VideoStorageDir, cfg.PublicDomain)
	if err != nil {
		log.Error("failed to initialize video store", "error", err)
		os.Exit(1)
	}

	pipeline := worker.New(
		scratchDir,
		clipper.New(scratchDir),
		captions.New(cfg.AssemblyAIAPIKey, cfg.DebugCaptions, log),
		renderer.New(),
		muxer.New(),
		videoStore,
		cfg.DebugCaptions,
		log,
	)

	notif := notifier.New(notifier.Config{
		PushProviderURL: cfg.PushProviderURL,
		PushProviderKey: cfg.PushProviderKey,
		TelegramEnabled: cfg.EnableTelegramNotifications,
		TelegramToken:   cfg.TelegramBotToken,
		TelegramChatID:  cfg.TelegramChatID,
	}, log)

	sched := scheduler.New(jobStore, budgetTracker, wakeup, pipeline, scheduler.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		MaxQueueSize:  cfg.MaxQueueSize,
		MaxRetries:    cfg.MaxRetries,
		Enabled:       cfg.EnableServerVideo,
	}, log, notif)

	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	go func() {
		if err := sched.Start(schedulerCtx); err != nil && err != context.Canceled {
			log.Error("scheduler stopped with error", "error", err)
		}
	}()

	retentionCtx, retentionCancel := context.WithCancel(context.Background())
	sweeper := retention.New(cfg.VideoStorageDir, time.Duration(cfg.VideoRetentionHours)*time.Hour, log)
	go sweeper.Run(retentionCtx)

	handler := api.NewHandler(sched, videoStore, "https://api.assemblyai.com", cfg.AssemblyAIAPIKey)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
		MetricsEnabled:     cfg.MetricsEnabled,
	})

	if cfg.BackendAPIKey != "" {
		log.Info("API key authentication enabled")
	} else {
		log.Warn("no BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Info("API server listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	schedulerCancel()
	retentionCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited")
}

func newLogger(format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
