// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Command aleamarisd boots the AleaMaris pipeline (§4.7) and serves the
// §6 HTTP surface until an interrupt or SIGTERM arrives.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajaniramon/aleamaris/internal/conditioner"
	"github.com/ajaniramon/aleamaris/internal/config"
	"github.com/ajaniramon/aleamaris/internal/httpapi"
	"github.com/ajaniramon/aleamaris/internal/orchestrator"
	"github.com/ajaniramon/aleamaris/internal/videosource"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("aleamarisd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnvironment()
	if err != nil {
		return err
	}

	orc := orchestrator.New(cfg, newSourceFactory(cfg), conditioner.Config{
		Resize:  64,
		Stride:  1,
		UseDiff: false,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orc.Boot(ctx); err != nil {
		return err
	}
	defer orc.Shutdown()

	srv := httpapi.New(orc, cfg.APIKey, log)
	httpServer := &http.Server{
		Addr:    addrFromEnv(),
		Handler: srv.Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func addrFromEnv() string {
	if v := os.Getenv("ALEAMARIS_LISTEN_ADDR"); v != "" {
		return v
	}
	return ":8080"
}

// newSourceFactory builds a SourceFactory from the resolved config: a file
// source when ALEAMARIS_VIDEO is set, a camera source when
// ALEAMARIS_USE_CAM is set, or an error otherwise (no configured source
// means every Conditioner run fails, which the orchestrator's fallback
// policy then handles per ALLOW_URANDOM).
func newSourceFactory(cfg config.Config) orchestrator.SourceFactory {
	return func() (videosource.Source, error) {
		if cfg.VideoPath != "" {
			return videosource.OpenFile(cfg.VideoPath)
		}
		if cfg.UseCamera {
			cam := videosource.NewCameraSource(nil, 30, 16)
			cam.SetReadTimeout(cfg.FillInterval)
			cam.Start(context.Background())
			return cam, nil
		}
		return nil, errNoSourceConfigured
	}
}

var errNoSourceConfigured = errors.New("aleamarisd: no video or camera source configured")
