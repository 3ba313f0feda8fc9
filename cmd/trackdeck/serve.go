package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/loykin/trackdeck"
	"github.com/loykin/trackdeck/internal/server"
)

const shutdownTimeout = 10 * time.Second

func runServe(parent context.Context, configPath string, f ServeFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := trackdeck.LoadConfig(configPath)
	if err != nil {
		return err
	}
	d, err := trackdeck.New(cfg)
	if err != nil {
		return err
	}
	logger := d.Logger()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree := newServiceTree(logger)
	tree.Add(server.NewHTTPService(d.NewHTTPServer(), shutdownTimeout))
	errCh := tree.ServeBackground(ctx)
	logger.Info("trackdeck listening", slog.String("addr", cfg.Server.Listen), slog.String("base_path", cfg.Server.BasePath))

	for _, r := range f.Start {
		role := trackdeck.Role(r)
		if _, err := d.Start(ctx, role); err != nil {
			logger.Warn("autostart failed", slog.String("role", r), slog.Any("error", err))
		}
	}

	err = <-errCh
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := d.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("shutdown incomplete", slog.Any("error", serr))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("service tree: %w", err)
	}
	return nil
}

func newServiceTree(logger *slog.Logger) *suture.Supervisor {
	handler := &sutureslog.Handler{Logger: logger}
	return suture.New("trackdeck", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
}
