package main

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kailas-cloud/meilisync"
	"github.com/kailas-cloud/meilisync/internal/checkpoint"
	"github.com/kailas-cloud/meilisync/internal/config"
	logpkg "github.com/kailas-cloud/meilisync/internal/logger"
	"github.com/kailas-cloud/meilisync/internal/posts"
	"github.com/kailas-cloud/meilisync/internal/store"
)

// app is the composition root shared by every command.
type app struct {
	env    string
	cfg    config.Config
	logger *zap.Logger

	db         *gorm.DB
	client     *meilisync.Client
	indexes    *posts.Indexes
	checkpoint meilisync.Checkpoint
	redis      *checkpoint.Redis

	closers []func()
}

func loadConfig(env, path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load(env)
}

func newLogger(env string, cfg config.Config) (*zap.Logger, io.Closer, error) {
	opts := logpkg.Options{Env: env, Level: cfg.Logging.Level}
	if cfg.Logging.File != "" {
		opts.File = &logpkg.Rotation{
			Filename:   cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   true,
		}
	}
	return logpkg.New(opts)
}

func newApp(env, configPath string) (*app, error) {
	cfg, err := loadConfig(env, configPath)
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := newLogger(env, cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	a := &app{env: env, cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })
	if logCloser != nil {
		a.closers = append(a.closers, func() { _ = logCloser.Close() })
	}
	return a, nil
}

// openDB connects to the relational store.
func (a *app) openDB() error {
	db, err := store.Open(a.cfg.Store(), a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.closers = append(a.closers, func() { _ = store.Close(db) })
	return nil
}

// wire connects the store, the engine client and the checkpoint store,
// then registers the application indexes.
func (a *app) wire(ctx context.Context) error {
	if err := a.openDB(); err != nil {
		return err
	}

	client, err := meilisync.New(
		meilisync.WithSettings(a.cfg.Settings()),
		meilisync.WithLogger(a.logger),
		meilisync.WithPrometheus(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return err
	}
	a.client = client

	if len(a.cfg.Checkpoint.Addrs) > 0 {
		r, err := checkpoint.NewRedis(a.cfg.Redis())
		if err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
		a.redis, a.checkpoint = r, r
		a.closers = append(a.closers, r.Close)
	} else {
		a.checkpoint = checkpoint.NewMemory()
	}

	idx, err := posts.Setup(ctx, client, a.db)
	if err != nil {
		return err
	}
	a.indexes = idx
	a.logger.Info("indexes registered", zap.Int("count", len(client.Indexes())))
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
