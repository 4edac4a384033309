package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/observ"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	minBackoff = 200 * time.Millisecond
	maxBackoff = 10 * time.Second

	// cursorStart is where XAUTOCLAIM starts and where it reports a
	// completed scan.
	cursorStart = "0-0"
)

type WorkerConfig struct {
	BatchSize   int64
	Block       time.Duration
	ReclaimIdle time.Duration
}

// Worker consumes the change stream as one member of a consumer group.
//
// Delivery is at least once. An entry is acknowledged only after the
// Processor succeeded, or when it can never succeed (malformed payload,
// change no longer exists). Anything else stays pending and is claimed
// again, by this or another consumer, once it has been idle for
// ReclaimIdle. Processing is idempotent, so redelivery is harmless.
type Worker struct {
	stream    Stream
	processor *Processor
	cfg       WorkerConfig
	logger    *zap.Logger
	now       func() time.Time

	claimCursor string
	lastClaim   time.Time
}

func NewWorker(stream Stream, processor *Processor, cfg WorkerConfig, logger *zap.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.ReclaimIdle <= 0 {
		cfg.ReclaimIdle = time.Minute
	}
	return &Worker{
		stream:      stream,
		processor:   processor,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		claimCursor: cursorStart,
	}
}

// Run consumes until ctx is cancelled. It only returns an error when the
// consumer group cannot be set up.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.stream.EnsureGroup(ctx); err != nil {
		return err
	}
	w.logger.Info("dispatch worker started",
		zap.Int64("batch_size", w.cfg.BatchSize),
		zap.Duration("reclaim_idle", w.cfg.ReclaimIdle),
	)

	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			w.logger.Info("dispatch worker stopped")
			return nil
		}

		if err := w.poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("poll change stream",
				zap.Duration("retry_in", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff
	}
}

// poll reclaims stale entries when due, then reads and handles one batch
// of new entries.
func (w *Worker) poll(ctx context.Context) error {
	if w.now().Sub(w.lastClaim) >= w.cfg.ReclaimIdle {
		msgs, next, err := w.stream.AutoClaim(ctx, w.cfg.ReclaimIdle, w.claimCursor, w.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("reclaim idle entries: %w", err)
		}
		if next == "" {
			next = cursorStart
		}
		w.claimCursor = next
		if next == cursorStart {
			w.lastClaim = w.now()
		}
		if len(msgs) > 0 {
			w.logger.Info("reclaimed idle stream entries", zap.Int("count", len(msgs)))
		}
		w.handle(ctx, msgs)
	}

	msgs, err := w.stream.ReadGroup(ctx, w.cfg.BatchSize, w.cfg.Block)
	if err != nil {
		return fmt.Errorf("read change stream: %w", err)
	}
	w.handle(ctx, msgs)
	return nil
}

func (w *Worker) handle(ctx context.Context, msgs []redis.XMessage) {
	for _, msg := range msgs {
		if w.process(ctx, msg) {
			if err := w.stream.Ack(ctx, msg.ID); err != nil {
				w.logger.Warn("ack stream entry", zap.String("entry_id", msg.ID), zap.Error(err))
			}
		}
	}
}

// process reports whether the entry is done with and can be acknowledged.
func (w *Worker) process(ctx context.Context, msg redis.XMessage) bool {
	changeID, err := changeIDOf(msg)
	if err != nil {
		observ.Dispatches.WithLabelValues(ModeRedis, observ.ResultError).Inc()
		w.logger.Error("dropping malformed stream entry", zap.String("entry_id", msg.ID), zap.Error(err))
		return true
	}

	notes, err := w.processor.Process(ctx, changeID)
	switch {
	case apperr.IsNotFound(err):
		observ.Dispatches.WithLabelValues(ModeRedis, observ.ResultError).Inc()
		w.logger.Error("dropping entry for unknown change",
			zap.String("entry_id", msg.ID),
			zap.Int64("change_id", changeID),
		)
		return true
	case err != nil:
		observ.Dispatches.WithLabelValues(ModeRedis, observ.ResultError).Inc()
		w.logger.Error("process change",
			zap.String("entry_id", msg.ID),
			zap.Int64("change_id", changeID),
			zap.Error(err),
		)
		return false
	}

	observ.Dispatches.WithLabelValues(ModeRedis, observ.ResultOK).Inc()
	w.logger.Debug("change processed",
		zap.String("entry_id", msg.ID),
		zap.Int64("change_id", changeID),
		zap.Int("notifications", len(notes)),
	)
	return true
}

func changeIDOf(msg redis.XMessage) (int64, error) {
	raw, ok := msg.Values[fieldChangeID]
	if !ok {
		return 0, fmt.Errorf("missing %s", fieldChangeID)
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("%s is %T, want string", fieldChangeID, raw)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", fieldChangeID, s)
	}
	return id, nil
}
