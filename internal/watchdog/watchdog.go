// Package watchdog periodically returns requests that have sat in the
// assigned state for too long back to the queue.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/secops-portal/backend/internal/models"
)

type StaleLister interface {
	ListStaleAssigned(ctx context.Context, before time.Time) ([]models.Request, error)
}

// Returner puts a request back in the queue only while it is still assigned
// from before cutoff.
type Returner interface {
	ReturnStale(ctx context.Context, requestID, actorID string, cutoff time.Time) (models.Request, error)
}

type Observer interface {
	ObserveAutoReturn(n int)
}

type Watchdog struct {
	Store    StaleLister
	Tasks    Returner
	Metrics  Observer
	Logger   zerolog.Logger
	After    time.Duration
	Actor    string
	Schedule string
	Timeout  time.Duration
	Now      func() time.Time

	cron *cron.Cron
}

// Sweep returns every request claimed before Now()-After. Requests that were
// finished, released or claimed again since they were listed are skipped. It
// returns the number returned.
func (w *Watchdog) Sweep(ctx context.Context) (int, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	cutoff := now().Add(-w.After)

	stale, err := w.Store.ListStaleAssigned(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale requests: %w", err)
	}

	var errs []error
	returned := 0
	for _, r := range stale {
		if _, err := w.Tasks.ReturnStale(ctx, r.ID, w.Actor, cutoff); err != nil {
			if errors.Is(err, models.ErrClaimChanged) || errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrNotFound) {
				w.Logger.Debug().Str("request_id", r.ID).Msg("stale request changed before return")
				continue
			}
			w.Logger.Error().Err(err).Str("request_id", r.ID).Msg("auto-return failed")
			errs = append(errs, err)
			continue
		}
		returned++
		w.Logger.Info().Str("request_id", r.ID).Str("service_type", r.ServiceType).Msg("stale request returned to queue")
	}
	if w.Metrics != nil && returned > 0 {
		w.Metrics.ObserveAutoReturn(returned)
	}
	return returned, errors.Join(errs...)
}

// Start schedules Sweep on w.Schedule. Overlapping runs are skipped.
func (w *Watchdog) Start() error {
	if w.After <= 0 {
		return errors.New("auto-return threshold must be positive")
	}
	if _, err := cron.ParseStandard(w.Schedule); err != nil {
		return fmt.Errorf("invalid auto-return schedule: %w", err)
	}

	w.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))
	if _, err := w.cron.AddFunc(w.Schedule, w.run); err != nil {
		return fmt.Errorf("schedule auto-return: %w", err)
	}
	w.cron.Start()
	w.Logger.Info().Str("schedule", w.Schedule).Dur("after", w.After).Msg("auto-return watchdog started")
	return nil
}

func (w *Watchdog) run() {
	ctx := context.Background()
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}
	n, err := w.Sweep(ctx)
	if err != nil {
		w.Logger.Error().Err(err).Int("returned", n).Msg("auto-return sweep failed")
		return
	}
	w.Logger.Debug().Int("returned", n).Msg("auto-return sweep done")
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to
// expire.
func (w *Watchdog) Stop(ctx context.Context) {
	if w.cron == nil {
		return
	}
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
