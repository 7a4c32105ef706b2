// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/herald/internal/api"
	"github.com/starford/herald/internal/mcpserver"
	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/publisher"
)

// Run starts the HTTP server, the watcher and the reconciliation loop and
// blocks until a shutdown signal arrives or ctx is cancelled.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts...)
	if err != nil {
		return err
	}
	cfg := app.config

	c, err := newComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.engine.Start(ctx); err != nil {
		logger.Error("initial reconciliation failed", slog.String("error", err.Error()))
		return fmt.Errorf("initial reconciliation: %w", err)
	}

	apiRouter := api.NewRouter(api.Deps{
		Index:     c.engine.Index(),
		Refresher: c.engine,
		Publisher: c.publisher,
		Events:    c.broker,
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","tracked":%d}`, c.engine.Index().Len())
	})
	r.Handle("/metrics", c.metrics.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		g.Go(func() error {
			if err := c.watch(gCtx); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// Refresh runs the startup merge once and writes the scan result to w.
func Refresh(ctx context.Context, w io.Writer, opts ...Option) error {
	return oneShot(ctx, opts, func(c *components) error {
		res, err := c.engine.Start(ctx)
		if err != nil {
			return err
		}
		return writeJSON(w, res)
	})
}

// Status writes the tracked notes to w, optionally only modified ones.
func Status(ctx context.Context, w io.Writer, modifiedOnly bool, opts ...Option) error {
	return oneShot(ctx, opts, func(c *components) error {
		if _, err := c.engine.Start(ctx); err != nil {
			return err
		}
		notes := c.engine.Index().List(modifiedOnly)
		if notes == nil {
			notes = []models.TrackedNote{}
		}
		return writeJSON(w, notes)
	})
}

// Publish reconciles, publishes the selected notes and writes the report
// to w. The report is written even when publishing fails.
func Publish(ctx context.Context, w io.Writer, req publisher.Request, opts ...Option) error {
	return oneShot(ctx, opts, func(c *components) error {
		if _, err := c.engine.Start(ctx); err != nil {
			return err
		}
		report, err := c.publisher.Publish(ctx, req)
		if werr := writeJSON(w, report); werr != nil {
			return errors.Join(err, werr)
		}
		return err
	})
}

// ServeMCP serves the MCP tools on stdio. The watcher keeps the index
// current while the session lasts.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts...)
	if err != nil {
		return err
	}
	c, err := newComponents(app.config, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.engine.Start(ctx); err != nil {
		logger.Error("initial reconciliation failed", slog.String("error", err.Error()))
		return fmt.Errorf("initial reconciliation: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if !app.config.Watch.Enabled {
			return
		}
		if err := c.watch(watchCtx); err != nil {
			logger.Error("watcher failed", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		cancel()
		<-done
	}()

	srv := mcpserver.New(mcpserver.EngineTracker(c.engine), c.publisher, app.version)
	return srv.ServeStdio()
}

func oneShot(ctx context.Context, opts []Option, fn func(c *components) error) error {
	app, logger, err := setup(opts...)
	if err != nil {
		return err
	}
	c, err := newComponents(app.config, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
