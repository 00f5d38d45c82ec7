package main

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/readaloud/internal/api"
	"github.com/nikhilbhutani/readaloud/internal/audio"
	"github.com/nikhilbhutani/readaloud/internal/config"
	"github.com/nikhilbhutani/readaloud/internal/database"
	"github.com/nikhilbhutani/readaloud/internal/grading"
	"github.com/nikhilbhutani/readaloud/internal/llm"
	"github.com/nikhilbhutani/readaloud/internal/pipeline"
	"github.com/nikhilbhutani/readaloud/internal/stt"
	"github.com/nikhilbhutani/readaloud/internal/usage"
	"github.com/nikhilbhutani/readaloud/migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Usage history (optional)
	var db *pgxpool.Pool
	var pgRecorder usage.Recorder
	if cfg.Database.URL != "" {
		db, err = database.NewPool(ctx, cfg.Database)
		if err != nil {
			slog.Warn("database unavailable, running without usage history", "error", err)
		} else {
			defer db.Close()

			var fsys fs.FS = migrations.FS
			if cfg.Database.MigrationsPath != "" {
				fsys = os.DirFS(cfg.Database.MigrationsPath)
			}
			if _, err := database.RunMigrations(ctx, db, fsys); err != nil {
				slog.Warn("migrations failed", "error", err)
			}
			pgRecorder = usage.NewPostgresRecorder(db)
		}
	}

	// Usage counters (optional)
	var rdb *redis.Client
	var redisRecorder usage.Recorder
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable, usage counters may be lost", "error", err)
		}
		defer rdb.Close()
		redisRecorder = usage.NewRedisCounter(rdb, "")
	}

	transcoder, err := audio.NewFFmpeg(audio.FFmpegConfig{
		BinPath: cfg.Transcoder.FFmpegPath,
		Format:  cfg.Transcoder.Format,
	})
	if err != nil {
		slog.Error("failed to configure transcoder", "error", err)
		os.Exit(1)
	}

	var sttProvider stt.STTProvider
	switch cfg.STT.Backend {
	case "local":
		sttProvider = stt.NewLocalSTT(stt.LocalSTTConfig{BaseURL: cfg.STT.LocalBaseURL, Model: cfg.STT.OpenAIModel})
	default:
		sttProvider = stt.NewOpenAISTT(stt.OpenAISTTConfig{
			APIKey:  cfg.STT.OpenAIKey,
			BaseURL: cfg.STT.OpenAIBaseURL,
			Model:   cfg.STT.OpenAIModel,
		})
	}

	graderModel := cfg.LLM.GraderModel
	if graderModel == "" && cfg.LLM.GraderProvider == "anthropic" {
		graderModel = "claude-sonnet-4-20250514"
	}
	grader := grading.NewGrader(llm.NewGateway(cfg.LLM), graderModel)

	svc := pipeline.NewService(cfg.Upload.Dir, transcoder, sttProvider, grader, usage.New(pgRecorder, redisRecorder))

	router := api.NewRouter(cfg, svc, db, rdb)
	handler := router.Setup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server",
			"addr", cfg.Addr(),
			"stt", sttProvider.Name(),
			"grader_provider", cfg.LLM.GraderProvider,
			"grader_model", grader.Model(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
