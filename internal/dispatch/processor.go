// Package dispatch moves committed panel changes to the notifier, either
// in the request goroutine (Inline) or through a Redis stream consumed by
// a Worker.
//
// Both paths are best effort. The change ledger is the outbox: a change
// is marked dispatched only after a notification pass for it completed,
// and a Sweeper reprocesses whatever is still unmarked after a grace
// period. A failed enqueue or a crash between commit and dispatch is
// therefore recovered without operator action.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/impact"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/notify"
	"github.com/lalith-99/panelwatch/internal/repository"
	"go.uber.org/zap"
)

// Dispatch modes, used as metric labels.
const (
	ModeInline = "inline"
	ModeRedis  = "redis"
	ModeSweep  = "sweep"
)

// Processor classifies a recorded change and notifies the dependent views.
// Running it twice for the same change creates no extra notifications.
type Processor struct {
	changes    repository.ChangeRepository
	classifier *impact.Classifier
	notifier   *notify.Notifier
	logger     *zap.Logger
	now        func() time.Time
}

func NewProcessor(changes repository.ChangeRepository, classifier *impact.Classifier, notifier *notify.Notifier, logger *zap.Logger) *Processor {
	return &Processor{
		changes:    changes,
		classifier: classifier,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}

// Process loads the change and runs classification and notification.
func (p *Processor) Process(ctx context.Context, changeID int64) ([]models.ViewNotification, error) {
	change, err := p.load(ctx, changeID)
	if err != nil {
		return nil, err
	}
	return p.ProcessChange(ctx, *change)
}

// ProcessChange is Process for a change the caller already holds. The
// change is marked dispatched only when every notification was stored.
func (p *Processor) ProcessChange(ctx context.Context, change models.PanelChange) ([]models.ViewNotification, error) {
	classified, err := p.classifier.ClassifyImpact(ctx, change)
	if err != nil {
		return nil, fmt.Errorf("classify change %d: %w", change.ID, err)
	}

	notes, err := p.notifier.Notify(ctx, change, classified)
	if err != nil {
		return notes, fmt.Errorf("notify change %d: %w", change.ID, err)
	}
	if err := p.changes.MarkDispatched(ctx, change.ID, p.now()); err != nil {
		return notes, fmt.Errorf("mark change %d dispatched: %w", change.ID, err)
	}

	p.logger.Debug("panel change processed",
		zap.Int64("change_id", change.ID),
		zap.Int("dependent_views", len(classified)),
		zap.Int("notifications", len(notes)),
	)
	return notes, nil
}

// Classify returns the classification of a stored change without
// notifying anyone.
func (p *Processor) Classify(ctx context.Context, changeID int64) (*models.PanelChange, []impact.Classified, error) {
	change, err := p.load(ctx, changeID)
	if err != nil {
		return nil, nil, err
	}
	classified, err := p.classifier.ClassifyImpact(ctx, *change)
	if err != nil {
		return nil, nil, fmt.Errorf("classify change %d: %w", change.ID, err)
	}
	return change, classified, nil
}

func (p *Processor) load(ctx context.Context, changeID int64) (*models.PanelChange, error) {
	change, err := p.changes.GetByID(ctx, changeID)
	if err != nil {
		return nil, fmt.Errorf("get change %d: %w", changeID, err)
	}
	if change == nil {
		return nil, apperr.NewNotFoundError("panel_change", fmt.Sprint(changeID))
	}
	return change, nil
}
