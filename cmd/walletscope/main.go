package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/walletscope/backend/internal/api"
	"github.com/walletscope/backend/internal/cluster"
	"github.com/walletscope/backend/internal/config"
	"github.com/walletscope/backend/internal/db"
	"github.com/walletscope/backend/internal/job"
	"github.com/walletscope/backend/internal/ratelimit"
	"github.com/walletscope/backend/internal/retention"
	"github.com/walletscope/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	log.Info("starting walletscope backend",
		zap.Int("port", cfg.HTTPPort),
		zap.String("data_dir", cfg.DataDir))

	dbStore, err := db.NewStore(cfg.DataDir)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer dbStore.Close()

	store := job.NewPersistentStore(dbStore)
	hub := ws.NewHub(log)
	limiter := ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow, cfg.RateLimitBlock)

	mgr := job.NewManager(job.ManagerConfig{
		MaxBatchSize:    cfg.MaxBatchSize,
		ChunkSize:       cfg.ChunkSize,
		CheckpointEvery: cfg.CheckpointEvery,
	}, store, hub, cluster.Local(), log)

	stopRetention, err := retention.Start(context.Background(), mgr, log, cfg.RetentionCron, cfg.RetentionMaxAge)
	if err != nil {
		log.Fatal("start retention", zap.Error(err))
	}
	defer stopRetention()

	router := api.NewRouter(cfg, mgr, limiter, hub, log)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("server listening", zap.String("addr", cfg.Addr()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-done
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}

	// Drain in-flight jobs; they keep checkpointing until done or timeout.
	if err := mgr.Shutdown(ctx); err != nil {
		log.Warn("jobs did not drain before timeout", zap.Error(err))
	}

	log.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	log, err := cfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return log
}
