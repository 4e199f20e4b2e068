// Package reaper closes calls left open by clients that vanished without
// ending them, and frees both participants for matchmaking again.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/models"
	pkgcron "github.com/Soravit-Ice/Random-Call-BE/internal/pkg/cron"
	"github.com/Soravit-Ice/Random-Call-BE/internal/store"
	"go.uber.org/zap"
)

const JobName = "cleanup_stale_calls"

type Reaper struct {
	store   store.Store
	now     func() time.Time
	onClose func(ctx context.Context, call models.CallLogModel)
	logger  *zap.Logger
}

type Option func(*Reaper)

func WithClock(now func() time.Time) Option {
	return func(r *Reaper) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Reaper) {
		if logger != nil {
			r.logger = logger.Named("Reaper")
		}
	}
}

// OnClose is called after each call the sweep closes, e.g. to tear down
// its relay room.
func OnClose(fn func(ctx context.Context, call models.CallLogModel)) Option {
	return func(r *Reaper) { r.onClose = fn }
}

func New(st store.Store, opts ...Option) *Reaper {
	r := &Reaper{store: st, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep closes every open call started more than staleAfter ago and
// resets both participants' in-call flags, one transaction per call. A
// call closed concurrently is skipped, so repeated sweeps converge.
func (r *Reaper) Sweep(ctx context.Context, staleAfter time.Duration) (int, error) {
	now := r.now()
	calls, err := r.store.FindStaleCallLogs(ctx, now.Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("find stale calls: %w", err)
	}

	cleaned := 0
	for _, call := range calls {
		err := r.store.Apply(ctx,
			store.CloseCall{CallID: call.ID, EndedAt: now, RequireOpen: true},
			store.Release(call.CallerID),
			store.Release(call.CalleeID),
		)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return cleaned, fmt.Errorf("close stale call %s: %w", call.ID, err)
		}
		cleaned++
		if r.onClose != nil {
			r.onClose(ctx, call)
		}
	}

	if cleaned > 0 {
		r.logger.Info("closed stale calls", zap.Int("count", cleaned), zap.Duration("stale_after", staleAfter))
	}
	return cleaned, nil
}

// Job wraps Sweep for the scheduler.
func (r *Reaper) Job(interval, staleAfter time.Duration) pkgcron.Job {
	return pkgcron.Job{
		Name:        JobName,
		Description: fmt.Sprintf("close calls open longer than %s", staleAfter),
		Interval:    interval,
		Fn: func(ctx context.Context) error {
			_, err := r.Sweep(ctx, staleAfter)
			return err
		},
	}
}
