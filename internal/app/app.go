// Package app assembles the engine and its collaborators for the CLI and the
// API server.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"orderflow/internal/config"
	"orderflow/internal/db"
	"orderflow/internal/engine"
	"orderflow/internal/events"
	"orderflow/internal/metrics"
	"orderflow/internal/migrate"
)

// Runtime is an opened, migrated workspace with its engine.
type Runtime struct {
	DB      *sql.DB
	Config  *config.Config
	Engine  engine.Engine
	closers []func() error
}

type Options struct {
	Workspace string
	Logger    *zap.Logger
	Metrics   *metrics.Collector
	Publisher events.Publisher
}

// Open migrates the workspace database and loads orderflow.yml, falling
// back to defaults when the file is absent.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	if opts.Logger != nil {
		e.Logger = opts.Logger
	}
	if opts.Publisher != nil {
		e.Publisher = opts.Publisher
	}
	e.Metrics = opts.Metrics
	return &Runtime{DB: conn, Config: cfg, Engine: e, closers: []func() error{conn.Close}}, nil
}

// OnClose registers fn to run when the runtime is closed.
func (r *Runtime) OnClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

func (r *Runtime) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewLogger builds a production zap logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// NewPublisher wires the Redis stream (when configured) and every active
// webhook behind a background queue. The returned close func drains the
// queue and then releases the Redis client.
func NewPublisher(ctx context.Context, cfg *config.Config, rc config.RedisConfig, logger *zap.Logger) (events.Publisher, func() error, error) {
	var sinks events.Fanout
	closeFn := func() error { return nil }
	if rc.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", rc.Addr, err)
		}
		sinks = append(sinks, events.NewRedisPublisher(client, rc.Stream))
		closeFn = client.Close
		logger.Info("publishing events to redis", zap.String("addr", rc.Addr), zap.String("stream", rc.Stream))
	}
	if cfg != nil {
		for _, hook := range cfg.Webhooks {
			if !hook.Active() {
				continue
			}
			sinks = append(sinks, events.NewWebhookPublisher(hook))
			logger.Info("publishing events to webhook", zap.String("url", hook.URL))
		}
	}
	var next events.Publisher = sinks
	switch len(sinks) {
	case 0:
		return events.NopPublisher{}, closeFn, nil
	case 1:
		next = sinks[0]
	}
	async := events.NewAsyncPublisher(next, 0, logger)
	closeSinks := closeFn
	return async, func() error {
		async.Close()
		return closeSinks()
	}, nil
}
