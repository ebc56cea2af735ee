package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hubenschmidt/realtime-relay/internal/relay"
	"github.com/hubenschmidt/realtime-relay/internal/trace"
	"github.com/hubenschmidt/realtime-relay/internal/upstream"
	"github.com/hubenschmidt/realtime-relay/internal/ws"
)

const (
	preflightTimeout = 15 * time.Second
	shutdownTimeout  = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser relay on /ws",
		Long: `Serve the relay.

Browser clients connect to /ws and exchange JSON frames of the form
{"event": <name>, "data": {...}}. Each start_recording opens one upstream
Realtime session. /health and /metrics are served alongside, and
/api/traces/* when TRACE_DATABASE_URL is set.`,
		RunE: runServe,
	}
	f := cmd.Flags()
	f.String("port", "", "listen port (default $RELAY_PORT or 8000)")
	f.String("model", "", "Realtime model (default $OPENAI_REALTIME_MODEL)")
	f.String("static-dir", "", "serve a static client from this directory")
	f.String("resampler", "", "resampler engine: sinc or soxr")
	f.Bool("preflight", false, "verify the API key and model before serving")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	cfg.applyFlags(cmd.Flags())
	setupLogging(cfg.logLevel)

	if err = cfg.validate(); err != nil {
		return err
	}

	if cfg.preflight {
		ctx, cancel := context.WithTimeout(context.Background(), preflightTimeout)
		err = upstream.Preflight(ctx, cfg.apiKey, cfg.baseURL, cfg.model, upstream.NewRESTClient(preflightTimeout))
		cancel()
		if err != nil {
			return fmt.Errorf("credential preflight: %w", err)
		}
		slog.Info("credential preflight ok", "model", cfg.model)
	}

	client, err := upstream.NewClient(cfg.apiKey,
		upstream.WithWebSocketURL(cfg.realtimeURL),
		upstream.WithModel(cfg.model),
		upstream.WithHandshakeTimeout(cfg.connectTimeout),
	)
	if err != nil {
		return err
	}

	traceStore := openTraceStore(cfg.traceDatabaseURL)
	if traceStore != nil {
		defer traceStore.Close()
	}

	rcfg := cfg.relayConfig()
	rcfg.TraceStore = traceStore
	svc := relay.NewService(rcfg, relay.ClientDialer(client))

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		wsHandler:  ws.NewHandler(svc, cfg.maxConcurrent),
		traceStore: traceStore,
		staticDir:  cfg.staticDir,
		sessions:   svc.Registry(),
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("relay starting",
		"addr", addr,
		"model", cfg.model,
		"resampler", cfg.engine,
		"max_concurrent", cfg.maxConcurrent,
		"tracing", traceStore != nil,
	)

	if err = serveUntilDone(ctx, srv, svc, shutdownTimeout); err != nil {
		return err
	}
	slog.Info("relay stopped")
	return nil
}

type sessionCloser interface {
	Shutdown(ctx context.Context) error
}

// serveUntilDone serves until ctx is cancelled. Sessions are drained before the
// listener closes, and it returns only after both have finished.
func serveUntilDone(ctx context.Context, srv *http.Server, sessions sessionCloser, timeout time.Duration) error {
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := sessions.Shutdown(sctx); err != nil {
			slog.Warn("session shutdown", "error", err)
		}
		if err := srv.Shutdown(sctx); err != nil {
			slog.Warn("http shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	<-shutdownDone
	return nil
}

// openTraceStore returns nil when tracing is off or the database is unreachable.
func openTraceStore(dsn string) *trace.Store {
	if dsn == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := trace.Open(ctx, dsn)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		return nil
	}
	slog.Info("tracing enabled")
	return store
}
