package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"motion-akademija-billing/internal/usecase"
)

// CleanupWorker flips lapsed subscriptions to expired once a day and reports
// users whose access ends soon so support can reach out before it does.
type CleanupWorker struct {
	interval   time.Duration
	warnWindow time.Duration
	subUC      usecase.SubscriptionUseCase
	log        *zerolog.Logger
}

func NewCleanupWorker(interval, warnWindow time.Duration, subUC usecase.SubscriptionUseCase, logger *zerolog.Logger) *CleanupWorker {
	compLog := logger.With().Str("component", "CleanupWorker").Logger()
	return &CleanupWorker{
		interval:   interval,
		warnWindow: warnWindow,
		subUC:      subUC,
		log:        &compLog,
	}
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting cleanup worker")
	// Run once on startup, then on every tick
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping cleanup worker")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	expired, expiring, err := w.subUC.ExpireOverdue(ctx, w.warnWindow)
	if err != nil {
		w.log.Error().Err(err).Msg("cleanup run error")
		return
	}
	if expired > 0 {
		w.log.Info().Int("count", expired).Msg("lapsed subscriptions expired")
	}
	for _, u := range expiring {
		w.log.Info().
			Str("user_id", u.ID).
			Time("expires_at", *u.SubscriptionExpiresAt).
			Msg("subscription expiring soon")
	}
}
