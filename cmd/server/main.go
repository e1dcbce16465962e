package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/logger"
	"github.com/nicktill/gasqc/pkg/server"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 60 * time.Second
	shutdownTimeout    = 30 * time.Second
	taskStopTimeout    = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "gasqc.yaml", "path to the YAML configuration file")
	backfill := flag.Bool("backfill", false, "pull every sensor from the configured source before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load configuration")
	}
	if err := logger.Setup(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *backfill); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("gasqc server exited cleanly")
}

// run serves until ctx is cancelled, then shuts everything down in order.
func run(ctx context.Context, cfg *config.File, backfill bool) error {
	app, err := server.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close storage")
		}
	}()

	if backfill {
		if _, err := app.Backfill(ctx); err != nil {
			log.Warn().Err(err).Msg("backfill incomplete")
		}
	}

	// Background tasks stop with taskCtx, before storage is closed
	taskCtx, cancelTasks := context.WithCancel(ctx)
	defer cancelTasks()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Hub.Run(taskCtx)
	}()
	wg.Add(3)
	go app.RunAnalysis(taskCtx, &wg)
	go app.RunBadgerGC(taskCtx, &wg)
	go app.RunSubscriber(taskCtx, &wg)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.Router(),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Strs("sensors", cfg.SensorIDs()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			cancelTasks()
			wg.Wait()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown incomplete")
	}

	cancelTasks()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("background tasks stopped")
	case <-time.After(taskStopTimeout):
		log.Warn().Msg("some background tasks did not stop in time")
	}
	return nil
}
