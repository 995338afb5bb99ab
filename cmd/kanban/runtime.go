package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"kanban/api/internal/app"
	"kanban/api/internal/config"
	"kanban/api/internal/events"
	"kanban/api/internal/lock"
	"kanban/api/internal/ordering"
	"kanban/api/internal/store"
)

// runtime holds everything a command needs; Close releases it in reverse order.
type runtime struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *store.SQLStore
	service   *app.Service
	publisher *events.RedisPublisher
	applied   []string
	closers   []func() error
}

func openRuntime(ctx context.Context, v *viper.Viper) (*runtime, error) {
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}

	dialect, err := store.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	dsn := cfg.DSN()
	if dialect == store.DialectSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := store.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.closers = append(rt.closers, db.Close)

	applied, err := store.ApplyMigrations(ctx, db, dialect, cfg.MigrationsDir)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	rt.applied = append([]string{}, applied...)
	if len(applied) > 0 {
		logger.Info("migrations applied", "versions", strings.Join(applied, ","))
	}

	rt.store = store.NewSQLStore(db, dialect, store.Options{TxRetries: cfg.TxRetries, Logger: logger})

	var locker ordering.Locker
	notifiers := events.Multi{events.NewLogNotifier(logger)}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Debug("using redis for scope locks and events")
		redisLocker, err := lock.NewRedisLocker(cfg.RedisURL, lock.RedisOptions{
			TTL:    cfg.LockTTL,
			Wait:   cfg.LockWait,
			Logger: logger,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, redisLocker.Close)
		locker = redisLocker

		publisher, err := events.NewRedisPublisher(cfg.RedisURL, cfg.EventsPrefix, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, publisher.Close)
		rt.publisher = publisher
		notifiers = append(notifiers, publisher)
	} else {
		logger.Debug("using in-process scope locks")
		locker = lock.NewLocalLocker()
	}

	rt.service = app.New(rt.store, app.Options{
		Locker:   locker,
		Notifier: notifiers,
		Offset:   ordering.Order(cfg.OrderOffset),
		Logger:   logger,
	})
	return rt, nil
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && r.logger != nil {
			r.logger.Warn("close failed", "error", err)
		}
	}
	r.closers = nil
}

// withService opens a runtime for the duration of fn.
func withService(ctx context.Context, v *viper.Viper, fn func(*app.Service) error) error {
	rt, err := openRuntime(ctx, v)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt.service)
}
