package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/pagination"
	"github.com/lalith-99/panelwatch/internal/repository"
	"go.uber.org/zap"
)

// MaxBatch bounds the ids accepted by one bulk transition.
const MaxBatch = 500

// Inbox is a recipient's view of their notifications. Every method is
// scoped to (tenantID, userID); other users' notifications behave as if
// they did not exist.
type Inbox struct {
	repo   repository.NotificationRepository
	now    func() time.Time
	logger *zap.Logger
}

func NewInbox(repo repository.NotificationRepository, logger *zap.Logger) *Inbox {
	return &Inbox{repo: repo, now: time.Now, logger: logger}
}

type ListQuery struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	IsRead   *bool
	Impact   *models.ImpactLevel
	Since    *time.Time
	Limit    int
	Offset   int
}

type Page struct {
	Notifications []models.ViewNotification `json:"notifications"`
	Total         int                       `json:"total"`
	UnreadCount   int                       `json:"unread_count"`
	HasMore       bool                      `json:"has_more"`
	Limit         int                       `json:"limit"`
	Offset        int                       `json:"offset"`
}

// List returns one page, newest first. UnreadCount is the number of
// pending notifications of the recipient, regardless of the filters.
func (b *Inbox) List(ctx context.Context, q ListQuery) (*Page, error) {
	page, err := pagination.Normalize(q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	if q.Impact != nil && !q.Impact.Valid() {
		return nil, apperr.NewValidationError("impact", fmt.Sprintf("unknown impact %q", *q.Impact))
	}

	items, total, unread, err := b.repo.List(ctx, repository.NotificationFilter{
		TenantID: q.TenantID,
		UserID:   q.UserID,
		IsRead:   q.IsRead,
		Impact:   q.Impact,
		Since:    q.Since,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	return &Page{
		Notifications: items,
		Total:         total,
		UnreadCount:   unread,
		HasMore:       page.HasMore(len(items), total),
		Limit:         page.Limit,
		Offset:        page.Offset,
	}, nil
}

func (b *Inbox) Get(ctx context.Context, tenantID, userID, id uuid.UUID) (*models.ViewNotification, error) {
	n, err := b.repo.GetByID(ctx, tenantID, userID, id)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if n == nil {
		return nil, apperr.NewNotFoundError("notification", id.String())
	}
	return n, nil
}

// MarkRead acknowledges the recipient's pending notifications among ids
// and returns how many changed. Ids that belong to someone else, do not
// exist or are already acknowledged or resolved are skipped silently.
func (b *Inbox) MarkRead(ctx context.Context, tenantID, userID uuid.UUID, ids []uuid.UUID) (int, error) {
	ids, err := normalizeIDs(ids)
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	updated, err := b.repo.Acknowledge(ctx, tenantID, userID, ids, b.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	b.logger.Debug("notifications marked read",
		zap.String("user_id", userID.String()),
		zap.Int("requested", len(ids)),
		zap.Int("updated", updated),
	)
	return updated, nil
}

// ResolveMany resolves the recipient's pending or acknowledged
// notifications among ids. Like MarkRead it skips what it cannot move.
func (b *Inbox) ResolveMany(ctx context.Context, tenantID, userID uuid.UUID, ids []uuid.UUID) (int, error) {
	ids, err := normalizeIDs(ids)
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	updated, err := b.repo.Resolve(ctx, tenantID, userID, ids, b.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("resolve notifications: %w", err)
	}
	return updated, nil
}

// Acknowledge moves one notification from pending to acknowledged.
// Acknowledging twice is a no-op. A resolved notification cannot be
// acknowledged.
func (b *Inbox) Acknowledge(ctx context.Context, tenantID, userID, id uuid.UUID) (*models.ViewNotification, error) {
	n, err := b.Get(ctx, tenantID, userID, id)
	if err != nil {
		return nil, err
	}

	switch n.Status {
	case models.StatusAcknowledged:
		return n, nil
	case models.StatusResolved:
		return nil, apperr.NewValidationError("status", "notification is already resolved")
	}

	if _, err := b.repo.Acknowledge(ctx, tenantID, userID, []uuid.UUID{id}, b.now().UTC()); err != nil {
		return nil, fmt.Errorf("acknowledge notification: %w", err)
	}
	return b.Get(ctx, tenantID, userID, id)
}

// Resolve moves one notification to resolved from pending or
// acknowledged. Resolving twice is a no-op.
func (b *Inbox) Resolve(ctx context.Context, tenantID, userID, id uuid.UUID) (*models.ViewNotification, error) {
	n, err := b.Get(ctx, tenantID, userID, id)
	if err != nil {
		return nil, err
	}
	if n.Status == models.StatusResolved {
		return n, nil
	}

	if _, err := b.repo.Resolve(ctx, tenantID, userID, []uuid.UUID{id}, b.now().UTC()); err != nil {
		return nil, fmt.Errorf("resolve notification: %w", err)
	}
	return b.Get(ctx, tenantID, userID, id)
}

// normalizeIDs drops nil and repeated ids.
func normalizeIDs(ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) > MaxBatch {
		return nil, apperr.NewValidationError("ids", fmt.Sprintf("at most %d ids per request", MaxBatch))
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
