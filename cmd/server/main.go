package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inoka/clash-server/internal/auth"
	"github.com/inoka/clash-server/internal/config"
	"github.com/inoka/clash-server/internal/directory"
	"github.com/inoka/clash-server/internal/httpapi"
	"github.com/inoka/clash-server/internal/registry"
	"github.com/inoka/clash-server/internal/scheduler"
	"github.com/inoka/clash-server/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.Dev)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()
	slog := logger.Sugar()

	dir, err := directory.Open(cfg.DatabaseURL)
	if err != nil {
		slog.Fatalw("open player directory", "err", err)
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	hub := ws.NewHub(slog)
	sched := scheduler.New(hub, cfg.FlushInterval, slog)
	reg := registry.New(dir, sched, slog)

	api := httpapi.NewAPI(reg, dir, issuer, slog)
	handler := httpapi.SetupRoutes(api, issuer, ws.Handler(hub, reg, issuer, slog))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Infow("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sched.Run(ctx, reg)
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SessionMaxIdle / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if n := reg.Reap(cfg.SessionMaxIdle); n > 0 {
					slog.Infow("reaped idle sessions", "count", n)
				}
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Fatalw("server exited", "err", err)
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
