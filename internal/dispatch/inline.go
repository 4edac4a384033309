package dispatch

import (
	"context"

	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/observ"
	"go.uber.org/zap"
)

// Inline processes each change synchronously right after its transaction
// committed. A failure is logged and counted but never returned: the
// mutation already succeeded and the change can be replayed.
type Inline struct {
	processor *Processor
	logger    *zap.Logger
}

func NewInline(processor *Processor, logger *zap.Logger) *Inline {
	return &Inline{processor: processor, logger: logger}
}

func (d *Inline) Dispatch(ctx context.Context, change *models.PanelChange) error {
	notes, err := d.processor.ProcessChange(ctx, *change)
	if err != nil {
		observ.Dispatches.WithLabelValues(ModeInline, observ.ResultError).Inc()
		d.logger.Error("inline dispatch failed",
			zap.Int64("change_id", change.ID),
			zap.String("panel_id", change.PanelID.String()),
			zap.Error(err),
		)
		return nil
	}

	observ.Dispatches.WithLabelValues(ModeInline, observ.ResultOK).Inc()
	d.logger.Debug("change dispatched",
		zap.Int64("change_id", change.ID),
		zap.Int("notifications", len(notes)),
	)
	return nil
}
