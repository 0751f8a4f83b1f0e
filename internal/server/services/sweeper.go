package services

import (
	"context"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/logging"
)

// Purger is anything that removes stale data in batches.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// Sweeper periodically purges stale shares and audit entries.
type Sweeper struct {
	shares   *ShareService
	audit    Purger
	interval time.Duration
	logger   logging.Logger
}

func NewSweeper(shares *ShareService, audit Purger, interval time.Duration, logger logging.Logger) *Sweeper {
	return &Sweeper{
		shares:   shares,
		audit:    audit,
		interval: interval,
		logger:   logger.With("module", "sweeper"),
	}
}

// RunOnce performs one sweep. Errors are logged; the sweep continues with
// the next stage.
func (w *Sweeper) RunOnce(ctx context.Context) {
	n, err := w.shares.Sweep(ctx)
	if err != nil {
		w.logger.Error(ctx, "share sweep failed", "error", err)
	} else if n > 0 {
		w.logger.Info(ctx, "shares purged", "count", n)
	}

	if w.audit == nil {
		return
	}
	n, err = w.audit.Purge(ctx)
	if err != nil {
		w.logger.Error(ctx, "audit purge failed", "error", err)
	} else if n > 0 {
		w.logger.Info(ctx, "audit entries purged", "count", n)
	}
}

// Run sweeps every interval until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info(ctx, "sweeper started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "sweeper stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}
