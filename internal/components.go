package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/herald/internal/convert"
	"github.com/starford/herald/internal/metrics"
	"github.com/starford/herald/internal/publish"
	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/reconcile"
	"github.com/starford/herald/internal/snapshot"
	"github.com/starford/herald/internal/sse"
	"github.com/starford/herald/internal/storage"
	"github.com/starford/herald/internal/tracking"
	"github.com/starford/herald/internal/watcher"
)

// components is the object graph shared by every command.
type components struct {
	cfg       *Config
	logger    *slog.Logger
	store     *storage.FS
	db        *snapshot.DB
	broker    *sse.Broker
	metrics   *metrics.Metrics
	engine    *reconcile.Engine
	publisher *publisher.Publisher
	watcher   *watcher.Watcher
}

// unconfiguredRemote stands in for the publish manager when the remote
// section is invalid, so every publish reports the configuration error.
type unconfiguredRemote struct {
	repo publish.RepoConfig
	err  error
}

func (u unconfiguredRemote) Publish(context.Context, []publish.File) (*publish.Result, error) {
	return nil, u.err
}

func (u unconfiguredRemote) Config() publish.RepoConfig { return u.repo }

func setup(opts ...Option) (*application, *slog.Logger, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app, logger, nil
}

func newComponents(cfg *Config, logger *slog.Logger) (*components, error) {
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("remote", cfg.Remote.Owner+"/"+cfg.Remote.Repo),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := snapshot.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init snapshot: %w", err)
	}

	c := &components{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		db:      db,
		broker:  sse.NewBroker(2 * time.Second),
		metrics: metrics.New(),
	}

	c.engine = reconcile.New(tracking.New(logger), store, db, logger,
		reconcile.WithNotifier(c.broker.NoteChanged),
		reconcile.WithRecorder(c.metrics))

	var tx publisher.Transactor
	if client, err := cfg.Remote.Client(logger); err != nil {
		logger.Warn("remote not configured, publishing disabled", slog.String("error", err.Error()))
		tx = unconfiguredRemote{repo: cfg.Remote.RepoConfig(), err: err}
	} else {
		tx = publish.NewManager(client, cfg.Remote.RepoConfig(), logger)
	}

	c.publisher = publisher.New(c.engine, store, convert.Markdown{}, tx, logger,
		publisher.WithEvents(c.broker),
		publisher.WithRecorder(c.metrics))

	c.watcher = watcher.New(store, logger, watcher.WithRenameWindow(cfg.Watch.RenameWindow))
	return c, nil
}

// watch feeds filesystem events into the engine until ctx is done.
func (c *components) watch(ctx context.Context) error {
	events := make(chan reconcile.Event, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.engine.Run(ctx, events)
	}()

	err := c.watcher.Watch(ctx, events)
	close(events)
	<-done
	return err
}

func (c *components) Close() {
	c.broker.Close()
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close snapshot db", slog.String("error", err.Error()))
	}
}
