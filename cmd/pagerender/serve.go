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
	"github.com/use-agent/pagerender/api"
	"github.com/use-agent/pagerender/cache"
	"github.com/use-agent/pagerender/cleaner"
	"github.com/use-agent/pagerender/config"
	"github.com/use-agent/pagerender/render"
	"github.com/use-agent/pagerender/webhook"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the render HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "listen host")
	cmd.Flags().IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "listen port")
	cmd.Flags().IntVar(&cfg.Render.MaxConcurrent, "max-concurrent", cfg.Render.MaxConcurrent, "browsers allowed to run at once")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("pagerender starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxConcurrent", cfg.Render.MaxConcurrent,
	)

	// ── 1. Render service ───────────────────────────────────────────
	launch := render.LaunchConfig{
		Headless:       render.Bool(cfg.Browser.Headless),
		ExecutablePath: cfg.Browser.BrowserBin,
		UserDataDir:    cfg.Browser.UserDataDir,
		AutoClose:      render.Bool(cfg.Browser.AutoClose),
		WindowWidth:    cfg.Browser.WindowWidth,
		WindowHeight:   cfg.Browser.WindowHeight,
		Args:           cfg.Browser.LaunchArgs(),
		EnableMaximize: render.Bool(cfg.Browser.Maximize),
	}
	if launch.UserDataDir != "" && cfg.Render.MaxConcurrent > 1 {
		slog.Warn("a shared user data dir cannot be used by concurrent browsers; limiting to one",
			"userDataDir", launch.UserDataDir)
		cfg.Render.MaxConcurrent = 1
	}
	svc := render.NewService(launch, cfg.Render.MaxConcurrent,
		render.WithNavigationTimeout(cfg.Render.NavigationTimeout),
		render.WithWaitTimeout(cfg.Render.WaitTimeout),
	)

	// ── 2. Cleaner, cache, webhooks ─────────────────────────────────
	cl := cleaner.New()
	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Close()
	wh := webhook.NewSender(cfg.Webhook.Secret)

	// ── 3. Router + HTTP server ─────────────────────────────────────
	router := api.NewRouter(ctx, svc, cl, cc, wh, cfg, time.Now())
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ── 4. Graceful shutdown ────────────────────────────────────────
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// In-flight renders get up to the navigation timeout to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Render.NavigationTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Pending webhook retries are sent now rather than dropped.
	if err := wh.Drain(shutdownCtx); err != nil {
		slog.Error("webhook deliveries dropped at shutdown", "error", err)
	}

	slog.Info("pagerender stopped", "stats", svc.Stats())
	return nil
}
