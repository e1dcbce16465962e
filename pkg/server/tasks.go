package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/nicktill/gasqc/pkg/config"
	badgerstore "github.com/nicktill/gasqc/pkg/storage/badger"
)

// Retry policy of a failed analysis cycle
const (
	analysisRetries   = 3
	analysisBaseDelay = 30 * time.Second
)

// RunAnalysis analyzes every sensor over the trailing window once at startup
// and then every interval, until ctx is done.
func (a *App) RunAnalysis(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	interval := a.Config.Analysis.Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Dur("window", a.Config.Analysis.Window).Msg("analysis scheduler started")
	a.analyzeWithRetry(ctx, analysisBaseDelay)

	for {
		select {
		case <-ticker.C:
			a.analyzeWithRetry(ctx, analysisBaseDelay)
		case <-ctx.Done():
			log.Info().Msg("stopping analysis scheduler")
			return
		}
	}
}

// analyzeWithRetry runs one cycle, retrying with exponential backoff
// (baseDelay, 2x, 4x) before giving up until the next tick.
func (a *App) analyzeWithRetry(ctx context.Context, baseDelay time.Duration) {
	for attempt := 0; attempt <= analysisRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<(attempt-1))
			log.Warn().Dur("delay", delay).Int("attempt", attempt+1).Msg("retrying analysis")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		err := a.analyzeOnce(ctx)
		if err == nil {
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}

		status := a.AnalysisMonitor.Status()
		event := log.Error()
		if status.ConsecutiveErrors > 3 {
			event = event.Bool("alert", true)
		}
		event.Err(err).Int("attempt", attempt+1).Int("consecutive_errors", status.ConsecutiveErrors).Msg("analysis cycle failed")
	}
	log.Error().Int("attempts", analysisRetries+1).Msg("analysis failed, will retry on next schedule")
}

func (a *App) analyzeOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, config.AnalysisTimeout)
	defer cancel()

	start := time.Now()
	end := start.UTC()
	results, err := a.Service.AnalyzeAll(ctx, end.Add(-a.Config.Analysis.Window), end)
	if err != nil {
		a.AnalysisMonitor.RecordFailure(err)
		return err
	}

	took := time.Since(start)
	a.AnalysisMonitor.RecordSuccess(len(results), took)
	log.Info().Int("sensors", len(results)).Dur("took", took.Round(time.Millisecond)).Msg("analysis cycle completed")
	return nil
}

// RunBadgerGC reclaims value log space periodically. Other stores are skipped.
func (a *App) RunBadgerGC(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	store, ok := a.Storage.(*badgerstore.Storage)
	if !ok {
		log.Debug().Msg("storage is not badger, skipping GC")
		return
	}

	ticker := time.NewTicker(config.BadgerGCInterval)
	defer ticker.Stop()
	log.Info().Dur("interval", config.BadgerGCInterval).Msg("badger GC scheduler started")

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			// Reclaim a vlog file once half of it is garbage
			err := store.RunGC(0.5)
			switch {
			case err == nil:
				log.Info().Dur("took", time.Since(start).Round(time.Millisecond)).Msg("badger GC reclaimed space")
			case errors.Is(err, badger.ErrNoRewrite):
				log.Debug().Msg("badger GC found nothing to rewrite")
			default:
				log.Warn().Err(err).Msg("badger GC failed")
			}
		case <-ctx.Done():
			log.Info().Msg("stopping badger GC scheduler")
			return
		}
	}
}

// RunSubscriber runs the MQTT subscriber when one is configured.
func (a *App) RunSubscriber(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	if a.Subscriber == nil {
		return
	}
	if err := a.Subscriber.Run(ctx); err != nil {
		log.Error().Err(err).Msg("mqtt subscriber stopped")
	}
}

// Backfill pulls every configured sensor from the remote source into storage.
func (a *App) Backfill(ctx context.Context) (int, error) {
	if a.Source == nil {
		return 0, nil
	}
	n, err := a.Source.Backfill(ctx, a.IngestHandler, a.Config.SensorIDs())
	log.Info().Int("samples", n).AnErr("error", err).Msg("backfill finished")
	return n, err
}
