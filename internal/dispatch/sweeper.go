package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/lalith-99/panelwatch/internal/observ"
	"github.com/lalith-99/panelwatch/internal/repository"
	"go.uber.org/zap"
)

type SweepConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// Grace is how long a change may stay undispatched before the sweep
	// takes it over. It should cover the normal inline or stream path,
	// including the worker's reclaim idle time, or the sweep ends up
	// racing it. The race is harmless (processing is idempotent) but
	// wasteful.
	Grace time.Duration
	// BatchSize is the page size used to walk undispatched changes.
	BatchSize int
}

// Sweeper is the polling half of the outbox. Every Interval it walks the
// ledger for changes that were committed but never completed a
// notification pass, oldest first, and runs the Processor on them.
//
// A change that keeps failing is logged on every sweep and retried on the
// next one. It does not block later changes, since one sweep pages past
// it.
type Sweeper struct {
	changes   repository.ChangeRepository
	processor *Processor
	cfg       SweepConfig
	logger    *zap.Logger
}

func NewSweeper(changes repository.ChangeRepository, processor *Processor, cfg SweepConfig, logger *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		changes:   changes,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("dispatch sweeper started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("grace", s.cfg.Grace),
	)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("dispatch sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("sweep undispatched changes", zap.Error(err))
			}
		}
	}
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Sweep makes one pass over the undispatched changes. Processing errors
// are counted, not returned; the error is for failures to read the
// ledger.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var (
		res   SweepResult
		after int64
	)
	for {
		batch, err := s.changes.ListUndispatched(ctx, after, s.cfg.Grace, s.cfg.BatchSize)
		if err != nil {
			return res, fmt.Errorf("list undispatched changes: %w", err)
		}

		for _, change := range batch {
			after = change.ID
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			notes, err := s.processor.ProcessChange(ctx, change)
			if err != nil {
				res.Failed++
				observ.Dispatches.WithLabelValues(ModeSweep, observ.ResultError).Inc()
				s.logger.Error("process undispatched change",
					zap.Int64("change_id", change.ID),
					zap.Error(err),
				)
				continue
			}
			res.Processed++
			observ.Dispatches.WithLabelValues(ModeSweep, observ.ResultOK).Inc()
			s.logger.Info("recovered undispatched change",
				zap.Int64("change_id", change.ID),
				zap.Int("notifications", len(notes)),
			)
		}

		if len(batch) < s.cfg.BatchSize {
			return res, nil
		}
	}
}
