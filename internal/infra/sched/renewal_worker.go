package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"motion-akademija-billing/internal/infra/metrics"
	"motion-akademija-billing/internal/infra/redis"
	"motion-akademija-billing/internal/usecase"
)

const renewalLockKey = "billing:renewal:run"

// RenewalWorker runs the due-mandate charge cycle on a fixed interval. A redis
// lock keeps concurrent replicas from double-charging the same mandates.
type RenewalWorker struct {
	interval time.Duration
	lockTTL  time.Duration
	renewUC  usecase.RenewalUseCase
	locker   redis.Locker
	log      *zerolog.Logger
}

func NewRenewalWorker(interval, lockTTL time.Duration, renewUC usecase.RenewalUseCase, locker redis.Locker, logger *zerolog.Logger) *RenewalWorker {
	compLog := logger.With().Str("component", "RenewalWorker").Logger()
	return &RenewalWorker{
		interval: interval,
		lockTTL:  lockTTL,
		renewUC:  renewUC,
		locker:   locker,
		log:      &compLog,
	}
}

func (w *RenewalWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting renewal worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping renewal worker")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RenewalWorker) runOnce(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, renewalLockKey, w.lockTTL)
	if errors.Is(err, redis.ErrLockHeld) {
		w.log.Info().Msg("renewal run skipped, another replica holds the lock")
		return
	}
	if err != nil {
		w.log.Error().Err(err).Msg("renewal lock acquisition failed")
		return
	}
	defer func() {
		if err := w.locker.Unlock(context.Background(), renewalLockKey, token); err != nil {
			w.log.Warn().Err(err).Msg("renewal lock release failed")
		}
	}()

	start := time.Now()
	report, err := w.renewUC.RunDue(ctx)
	metrics.ObserveRenewalRun(time.Since(start).Seconds())
	if err != nil {
		w.log.Error().Err(err).Msg("renewal run error")
		return
	}
	if report.Due > 0 {
		w.log.Info().
			Int("due", report.Due).
			Int("charged", report.Charged).
			Int("declined", report.Declined).
			Int("errors", report.Errors).
			Dur("took", time.Since(start)).
			Msg("renewal run complete")
	}
}
