// SPDX-License-Identifier: MIT

// Command soundloomd runs the soundloom streaming daemon: the request
// registry, the composition runners and the HTTP/SSE API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/soundloom/soundloom/internal/api"
	"github.com/soundloom/soundloom/internal/compose"
	"github.com/soundloom/soundloom/internal/config"
	"github.com/soundloom/soundloom/internal/engine"
	"github.com/soundloom/soundloom/internal/log"
	"github.com/soundloom/soundloom/internal/ratelimit"
	"github.com/soundloom/soundloom/internal/stream"
	"github.com/soundloom/soundloom/internal/task"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("soundloomd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "soundloomd: load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "soundloom",
		Version: version,
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", *configPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	holder := config.NewHolder(cfg, loader, *configPath)

	reg := stream.NewRegistry(stream.Config{
		OwnerLimit:    cfg.Registry.OwnerLimit,
		TTL:           cfg.Registry.RequestTTL,
		SweepInterval: cfg.Registry.SweepInterval,
	})

	limiter := ratelimit.New(ratelimit.Config{
		PerOwnerRate:    rate.Limit(cfg.RateLimit.PerOwnerRate),
		PerOwnerBurst:   cfg.RateLimit.PerOwnerBurst,
		CleanupInterval: 5 * time.Minute,
	})

	composer := compose.New(engine.New(cfg.Engine.BaseURL, cfg.Engine.Timeout))
	runners := map[string]task.Runner{
		"generate": composer,
		"edit":     composer,
	}

	server := api.NewServer(holder, reg, runners, limiter, nil)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: SSE responses stay open for the request lifetime.
	}

	g, ctx := errgroup.WithContext(ctx)

	// Sweeper loop: expires requests past their TTL.
	g.Go(func() error {
		reg.Run(ctx)
		return nil
	})

	// Config hot reload: file watcher plus SIGHUP trigger.
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
	}
	defer holder.Stop()

	updates := make(chan config.Config, 1)
	holder.RegisterListener(updates)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case next := <-updates:
				reg.UpdateConfig(next.Registry.OwnerLimit, next.Registry.RequestTTL)
			}
		}
	})

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				logger.Info().Str("event", "config.reload_signal").Msg("received SIGHUP, reloading config")
				if err := holder.Reload(context.Background()); err != nil {
					logger.Warn().Err(err).Str("event", "config.reload_failed").Msg("config reload failed")
				}
			}
		}
	})

	g.Go(func() error {
		logger.Info().
			Str("event", "server.starting").
			Str("listen", cfg.Listen).
			Str("engine", cfg.Engine.BaseURL).
			Msg("HTTP server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Str("event", "server.shutdown_start").Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str("event", "server.exit_error").Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "server.stopped").Msg("daemon stopped")
}
