package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-parts-broker/internal/domain/ports/repository"
)

// RequestExpirer drops pending requests past their deadline.
type RequestExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// ExpiryWorker periodically expires stale requests and idle dialogues.
type ExpiryWorker struct {
	interval time.Duration
	stateTTL time.Duration
	requests RequestExpirer
	states   repository.StateRepository
	log      *zerolog.Logger
	now      func() time.Time
}

func NewExpiryWorker(interval, stateTTL time.Duration, requests RequestExpirer, states repository.StateRepository, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		stateTTL: stateTTL,
		requests: requests,
		states:   states,
		log:      &exprLog,
		now:      time.Now,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass.
func (w *ExpiryWorker) Sweep(ctx context.Context) {
	now := w.now()
	n, err := w.requests.ExpireStale(ctx, now)
	if err != nil {
		w.log.Error().Err(err).Msg("request expiry failed")
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("stale requests expired")
	}

	if w.states == nil || w.stateTTL <= 0 {
		return
	}
	idle, err := w.states.PurgeIdle(ctx, now.Add(-w.stateTTL))
	if err != nil {
		w.log.Error().Err(err).Msg("dialogue purge failed")
	}
	if idle > 0 {
		w.log.Info().Int("count", idle).Msg("idle dialogues dropped")
	}
}
