package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/aretw0/tether"
	"github.com/aretw0/tether/internal/config"
	httpAdapter "github.com/aretw0/tether/pkg/adapters/http"
	"github.com/aretw0/tether/pkg/adapters/memory"
	"github.com/aretw0/tether/pkg/adapters/redis"
	"github.com/aretw0/tether/pkg/adapters/websocket"
	"github.com/aretw0/tether/pkg/observability"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/aretw0/tether/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the WebSocket RPC server",
	Long: `Starts an HTTP server exposing the demo handlers over WebSocket, together
with /health, /info, /sessions and /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	serveCmd.Flags().StringP("path", "p", "/ws", "WebSocket route")
	serveCmd.Flags().Bool("cancel-on-disconnect", false, "Cancel running handlers when their connection closes")
}

// openDirectory returns the configured session directory and its closer.
func openDirectory(cfg config.Config) (ports.SessionDirectory, func() error) {
	if !cfg.Redis.Enabled {
		return memory.NewDirectory(), func() error { return nil }
	}
	dir := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
		redis.WithPrefix(cfg.Redis.Prefix),
		redis.WithTTL(cfg.Redis.TTL),
	)
	return dir, dir.Close
}

func transportOptions(cfg config.Config) []websocket.Option {
	opts := []websocket.Option{
		websocket.WithReadLimit(cfg.Server.ReadLimit),
		websocket.WithWriteTimeout(cfg.Server.WriteTimeout),
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowed := cfg.Server.AllowedOrigins
		opts = append(opts, websocket.WithCheckOrigin(func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
		}))
	}
	return opts
}

// newDomain builds the demo domain and the HTTP server in front of it.
func newDomain(cfg config.Config, logger *slog.Logger, dir ports.SessionDirectory) (*tether.Domain, *httpAdapter.Server, error) {
	sessionOpts := []session.Option{session.WithCancelOnDisconnect(cfg.Server.CancelOnDisconnect)}
	if cfg.Redis.Enabled && cfg.Redis.TTL > 0 {
		sessionOpts = append(sessionOpts, session.WithDirectoryRefresh(cfg.Redis.TTL/2))
	}

	opts := []tether.Option{
		tether.WithLogger(logger),
		tether.WithDirectory(dir),
		tether.WithSessionOptions(sessionOpts...),
		tether.WithTransportOptions(transportOptions(cfg)...),
	}
	serverOpts := []httpAdapter.Option{
		httpAdapter.WithPath(cfg.Server.Path),
		httpAdapter.WithDirectory(dir),
		httpAdapter.WithVersion(tether.Version),
		httpAdapter.WithTransportOptions(transportOptions(cfg)...),
		httpAdapter.WithLogger(logger),
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics, err := observability.NewMetrics(reg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		opts = append(opts, tether.WithLifecycleHooks(metrics.Hooks()))
		serverOpts = append(serverOpts, httpAdapter.WithMetrics(reg))
	}

	d := tether.New(cfg.Server.Path, opts...)
	if err := registerDemo(d, logger); err != nil {
		return nil, nil, err
	}
	serverOpts = append(serverOpts, httpAdapter.WithEndpoints(d.Endpoints))
	return d, httpAdapter.NewServer(d.Manager(), serverOpts...), nil
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	dir, closeDir := openDirectory(cfg)
	defer func() {
		if err := closeDir(); err != nil {
			logger.Warn("failed to close session directory", "err", err)
		}
	}()

	d, server, err := newDomain(cfg, logger, dir)
	if err != nil {
		return err
	}

	// Upgraded connections are hijacked, so Shutdown does not wait for them.
	// Cancelling their base context ends every session's read loop instead.
	sessions, endSessions := context.WithCancel(context.WithoutCancel(ctx))
	defer endSessions()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return sessions },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("tether server listening", "addr", srv.Addr, "path", cfg.Server.Path, "endpoints", d.Endpoints())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "sessions", d.Manager().Count())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		endSessions()

		drained := make(chan struct{})
		go func() {
			d.Manager().Wait()
			close(drained)
		}()
		select {
		case <-drained:
			logger.Info("all sessions closed")
		case <-shutdownCtx.Done():
			logger.Warn("shutdown timed out with sessions still open", "sessions", d.Manager().Count())
		}
		return err
	})
	return g.Wait()
}
