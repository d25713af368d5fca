package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/texttospeech/internal/config"
	"github.com/nikhilbhutani/texttospeech/internal/database"
	"github.com/nikhilbhutani/texttospeech/internal/queue"
	"github.com/nikhilbhutani/texttospeech/internal/queue/workers"
	"github.com/nikhilbhutani/texttospeech/internal/speech"
	"github.com/nikhilbhutani/texttospeech/internal/storage"
	"github.com/nikhilbhutani/texttospeech/internal/voice"
)

const concurrency = 4

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	db, err := database.NewPool(context.Background(), cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		slog.Error("failed to open voice storage", "error", err)
		os.Exit(1)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{"default": 1},
		},
	)

	registry := queue.NewHandlersRegistry()

	cleanup := workers.NewVoiceCleanupWorker(
		speech.NewPostgresRepository(db),
		voice.NewManager(store, cfg.Voice.Dir),
	)
	registry.Register(queue.TypeVoiceCleanup, cleanup)

	slog.Info("starting worker", "concurrency", concurrency, "storage_backend", cfg.Storage.Backend)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
