// Package notify turns classified panel changes into view notifications
// and runs the recipient's inbox: listing, acknowledging and resolving.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/impact"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/observ"
	"github.com/lalith-99/panelwatch/internal/repository"
	"go.uber.org/zap"
)

// RecipientResolver decides who hears about a change to a view.
type RecipientResolver interface {
	Recipients(ctx context.Context, view models.View, change models.PanelChange) ([]uuid.UUID, error)
}

// OwnerResolver addresses the view's owner only.
type OwnerResolver struct{}

func (OwnerResolver) Recipients(_ context.Context, view models.View, _ models.PanelChange) ([]uuid.UUID, error) {
	return []uuid.UUID{view.OwnerUserID}, nil
}

type Option func(*Notifier)

func WithRecipientResolver(r RecipientResolver) Option {
	return func(n *Notifier) { n.recipients = r }
}

type Notifier struct {
	repo       repository.NotificationRepository
	recipients RecipientResolver
	logger     *zap.Logger
}

func NewNotifier(repo repository.NotificationRepository, logger *zap.Logger, opts ...Option) *Notifier {
	n := &Notifier{repo: repo, recipients: OwnerResolver{}, logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify creates one pending notification per (view, recipient) of the
// classification. It is keyed on the change id: when a notification for
// the same view, change and recipient already exists it is returned
// instead of creating another one. The check ignores status on purpose.
// A notification the recipient acknowledged or resolved is not recreated
// when the change is replayed or swept again, so calling Notify again with
// the same input is safe.
func (n *Notifier) Notify(ctx context.Context, change models.PanelChange, classified []impact.Classified) ([]models.ViewNotification, error) {
	out := make([]models.ViewNotification, 0, len(classified))
	changeID := change.ID

	for _, c := range classified {
		users, err := n.recipients.Recipients(ctx, c.View, change)
		if err != nil {
			return out, fmt.Errorf("resolve recipients for view %s: %w", c.View.ID, err)
		}

		for _, userID := range users {
			stored, inserted, err := n.repo.CreatePending(ctx, &models.ViewNotification{
				TenantID:      c.View.TenantID,
				UserID:        userID,
				ViewID:        c.View.ID,
				PanelChangeID: &changeID,
				Impact:        c.Impact,
				Message:       Message(change, c.View, c.Impact),
			})
			if apperr.IsConflict(err) {
				// the unique index caught a duplicate the dedup check let through
				observ.NotificationConflicts.Inc()
				n.logger.Error("duplicate notification rejected by store",
					zap.Int64("change_id", change.ID),
					zap.String("view_id", c.View.ID.String()),
					zap.String("user_id", userID.String()),
					zap.Error(err),
				)
				continue
			}
			if err != nil {
				return out, fmt.Errorf("create notification for view %s: %w", c.View.ID, err)
			}

			if inserted {
				observ.NotificationsCreated.WithLabelValues(string(stored.Impact)).Inc()
				n.logger.Info("view notification created",
					zap.Int64("change_id", change.ID),
					zap.String("view_id", c.View.ID.String()),
					zap.String("user_id", userID.String()),
					zap.String("impact", string(stored.Impact)),
				)
			} else {
				observ.NotificationsDeduplicated.Inc()
				n.logger.Debug("view notification already delivered",
					zap.Int64("change_id", change.ID),
					zap.String("view_id", c.View.ID.String()),
					zap.String("notification_id", stored.ID.String()),
				)
			}
			out = append(out, *stored)
		}
	}
	return out, nil
}

// Alert creates a manual notification on a view, not tied to any change.
// Alerts are never deduplicated.
func (n *Notifier) Alert(ctx context.Context, view models.View, level models.ImpactLevel, message string) (*models.ViewNotification, error) {
	if !level.Valid() {
		return nil, apperr.NewValidationError("impact", fmt.Sprintf("unknown impact %q", level))
	}
	if message == "" {
		return nil, apperr.NewValidationError("message", "must not be empty")
	}

	stored, _, err := n.repo.CreatePending(ctx, &models.ViewNotification{
		TenantID: view.TenantID,
		UserID:   view.OwnerUserID,
		ViewID:   view.ID,
		Impact:   level,
		Message:  message,
	})
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	observ.NotificationsCreated.WithLabelValues(string(level)).Inc()
	n.logger.Info("manual alert created",
		zap.String("view_id", view.ID.String()),
		zap.String("notification_id", stored.ID.String()),
	)
	return stored, nil
}

// Message renders the human-readable text of a change notification.
func Message(change models.PanelChange, view models.View, level models.ImpactLevel) string {
	column := change.AffectedColumnID()

	switch change.ChangeType {
	case models.ChangeColumnRemoved:
		if level == models.ImpactBreaking {
			return fmt.Sprintf("Column %q was removed from the panel and view %q references it.", column, view.Name)
		}
		return fmt.Sprintf("Column %q was removed from the panel. View %q does not use it.", column, view.Name)
	case models.ChangeColumnModified:
		if level == models.ImpactBreaking {
			return fmt.Sprintf("Column %q was modified and view %q references it. Review the view definition.", column, view.Name)
		}
		return fmt.Sprintf("Column %q was modified. View %q does not use it.", column, view.Name)
	case models.ChangeColumnAdded:
		return fmt.Sprintf("Column %q was added to the panel and is available to view %q.", column, view.Name)
	case models.ChangeSourceChanged:
		return fmt.Sprintf("A data source of the panel changed. Results of view %q may differ.", view.Name)
	case models.ChangeCohortChanged:
		return fmt.Sprintf("The panel's cohort rule changed. View %q may include a different population.", view.Name)
	}
	return fmt.Sprintf("The panel behind view %q changed.", view.Name)
}
