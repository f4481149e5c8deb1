package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-course/internal/api"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/curriculum"
	"github.com/p-n-ai/pai-course/internal/ingest"
	"github.com/p-n-ai/pai-course/internal/notify"
	"github.com/p-n-ai/pai-course/internal/platform/cache"
	"github.com/p-n-ai/pai-course/internal/platform/config"
	"github.com/p-n-ai/pai-course/internal/platform/database"
	"github.com/p-n-ai/pai-course/internal/platform/storage"
	"github.com/p-n-ai/pai-course/internal/progress"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := setup(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// setup opens the configured backends and wires the HTTP handler.
func setup(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	checks := map[string]api.HealthChecker{}
	hub := notify.NewHub(0)
	events := course.MultiEventLogger{hub}

	var store course.Store
	switch cfg.Database.Driver {
	case "memory":
		store = course.NewMemoryStore()
	default:
		db, err := database.New(ctx, cfg.Database.URL, database.Options{
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		checks["database"] = db

		pg, err := course.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		store = pg
		events = append(events, course.NewPostgresEventLogger(db.Pool))
	}

	var topicCache api.TopicCache
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL, cfg.Cache.TTL())
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { c.Close() })
		checks["cache"] = c
		topicCache = c
	}

	blobs, err := storage.NewFSStore(cfg.Storage.Path)
	if err != nil {
		a.close()
		return nil, err
	}

	ingestor := ingest.New(ingest.Config{
		Store:      store,
		Blobs:      blobs,
		Events:     events,
		Extractors: extractors(cfg.Ingest),
	})
	engine := progress.NewEngine(progress.EngineConfig{Store: store, Events: events})

	if cfg.CurriculumPath != "" {
		m, err := curriculum.LoadManifest(cfg.CurriculumPath)
		if err != nil {
			a.close()
			return nil, err
		}
		seeder := &curriculum.Seeder{Store: store, Ingestor: ingestor}
		if _, err := seeder.Seed(ctx, m); err != nil {
			a.close()
			return nil, fmt.Errorf("seeding curriculum: %w", err)
		}
	}

	srv, err := api.New(api.Config{
		Store:          store,
		Ingestor:       ingestor,
		Progress:       engine,
		Events:         events,
		Cache:          topicCache,
		ProgressFeed:   hub,
		Checks:         checks,
		MaxUploadBytes: int64(cfg.Ingest.MaxUploadBytes),
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.handler = srv.Handler()
	return a, nil
}

// extractors returns the document extractors enabled by cfg.
func extractors(cfg config.IngestConfig) map[string]ingest.Extractor {
	ex := ingest.DefaultExtractors()
	if !cfg.DOCXEnabled {
		delete(ex, ".docx")
	}
	if !cfg.XLSXEnabled {
		delete(ex, ".xlsx")
	}
	return ex
}
