package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/repository"
)

type ChangeStore struct{ s *Store }

func (r *ChangeStore) Append(ctx context.Context, c *models.PanelChange) (*models.PanelChange, error) {
	var out models.PanelChange
	err := r.s.write(ctx, func(st *state) error {
		row := cloneChange(*c)
		st.lastChangeID++
		row.ID = st.lastChangeID
		row.CreatedAt = r.s.timestamp()
		st.changes = append(st.changes, row)
		out = cloneChange(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ChangeStore) GetByID(ctx context.Context, changeID int64) (*models.PanelChange, error) {
	var out *models.PanelChange
	err := r.s.read(ctx, func(st *state) error {
		// ids are dense and ascending in the slice
		i, found := slices.BinarySearchFunc(st.changes, changeID, func(c models.PanelChange, id int64) int {
			switch {
			case c.ID < id:
				return -1
			case c.ID > id:
				return 1
			}
			return 0
		})
		if found {
			c := cloneChange(st.changes[i])
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *ChangeStore) List(ctx context.Context, f repository.ChangeFilter) ([]models.PanelChange, int, error) {
	page := make([]models.PanelChange, 0)
	total := 0
	err := r.s.read(ctx, func(st *state) error {
		// newest first
		for i := len(st.changes) - 1; i >= 0; i-- {
			c := st.changes[i]
			if !matchChange(c, f) {
				continue
			}
			if total >= f.Offset && len(page) < f.Limit {
				page = append(page, cloneChange(c))
			}
			total++
		}
		return nil
	})
	return page, total, err
}

func (r *ChangeStore) ListUndispatched(ctx context.Context, afterID int64, olderThan time.Duration, limit int) ([]models.PanelChange, error) {
	out := make([]models.PanelChange, 0)
	cutoff := r.s.timestamp().Add(-olderThan)
	err := r.s.read(ctx, func(st *state) error {
		for _, c := range st.changes {
			if len(out) >= limit {
				break
			}
			if c.ID <= afterID || c.DispatchedAt != nil || c.CreatedAt.After(cutoff) {
				continue
			}
			out = append(out, cloneChange(c))
		}
		return nil
	})
	return out, err
}

func (r *ChangeStore) MarkDispatched(ctx context.Context, changeID int64, at time.Time) error {
	return r.s.write(ctx, func(st *state) error {
		for i, c := range st.changes {
			if c.ID != changeID {
				continue
			}
			if c.DispatchedAt == nil {
				c = cloneChange(c)
				ts := at.UTC()
				c.DispatchedAt = &ts
				st.changes[i] = c
			}
			return nil
		}
		return nil
	})
}

func matchChange(c models.PanelChange, f repository.ChangeFilter) bool {
	if c.TenantID != f.TenantID || c.UserID != f.UserID {
		return false
	}
	if f.PanelID != nil && c.PanelID != *f.PanelID {
		return false
	}
	if f.ChangeType != nil && c.ChangeType != *f.ChangeType {
		return false
	}
	if f.Since != nil && c.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

type NotificationStore struct{ s *Store }

func (r *NotificationStore) CreatePending(ctx context.Context, n *models.ViewNotification) (*models.ViewNotification, bool, error) {
	var (
		out      models.ViewNotification
		inserted bool
	)
	err := r.s.write(ctx, func(st *state) error {
		if n.PanelChangeID != nil {
			for _, existing := range st.notifications {
				if existing.ViewID == n.ViewID && existing.UserID == n.UserID &&
					existing.PanelChangeID != nil && *existing.PanelChangeID == *n.PanelChangeID {
					out = cloneNotification(existing)
					return nil
				}
			}
		}

		row := cloneNotification(*n)
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		row.Status = models.StatusPending
		row.AcknowledgedAt = nil
		row.ResolvedAt = nil
		row.CreatedAt = r.s.timestamp()
		st.notifications = append(st.notifications, row)

		out = cloneNotification(row)
		inserted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, inserted, nil
}

func (r *NotificationStore) GetByID(ctx context.Context, tenantID, userID, notificationID uuid.UUID) (*models.ViewNotification, error) {
	var out *models.ViewNotification
	err := r.s.read(ctx, func(st *state) error {
		for _, n := range st.notifications {
			if n.ID == notificationID && n.TenantID == tenantID && n.UserID == userID {
				c := cloneNotification(n)
				out = &c
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *NotificationStore) List(ctx context.Context, f repository.NotificationFilter) ([]models.ViewNotification, int, int, error) {
	var matched []models.ViewNotification
	unread := 0
	err := r.s.read(ctx, func(st *state) error {
		for _, n := range st.notifications {
			if n.TenantID != f.TenantID || n.UserID != f.UserID {
				continue
			}
			if n.Status == models.StatusPending {
				unread++
			}
			if f.IsRead != nil && n.Status.IsRead() != *f.IsRead {
				continue
			}
			if f.Impact != nil && n.Impact != *f.Impact {
				continue
			}
			if f.Since != nil && n.CreatedAt.Before(*f.Since) {
				continue
			}
			matched = append(matched, cloneNotification(n))
		}
		return nil
	})
	if err != nil {
		return nil, 0, 0, err
	}

	// newest first; insertion order breaks timestamp ties
	slices.Reverse(matched)
	slices.SortStableFunc(matched, func(a, b models.ViewNotification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	total := len(matched)
	page := make([]models.ViewNotification, 0)
	if f.Offset < total {
		end := min(f.Offset+f.Limit, total)
		page = append(page, matched[f.Offset:end]...)
	}
	return page, total, unread, nil
}

func (r *NotificationStore) Acknowledge(ctx context.Context, tenantID, userID uuid.UUID, ids []uuid.UUID, at time.Time) (int, error) {
	return r.transition(ctx, tenantID, userID, ids, models.StatusAcknowledged, at)
}

func (r *NotificationStore) Resolve(ctx context.Context, tenantID, userID uuid.UUID, ids []uuid.UUID, at time.Time) (int, error) {
	return r.transition(ctx, tenantID, userID, ids, models.StatusResolved, at)
}

func (r *NotificationStore) transition(ctx context.Context, tenantID, userID uuid.UUID, ids []uuid.UUID, next models.NotificationStatus, at time.Time) (int, error) {
	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	updated := 0
	err := r.s.write(ctx, func(st *state) error {
		for i, n := range st.notifications {
			if _, ok := wanted[n.ID]; !ok {
				continue
			}
			if n.TenantID != tenantID || n.UserID != userID || !n.Status.CanTransitionTo(next) {
				continue
			}
			n = cloneNotification(n)
			ts := at.UTC()
			n.Status = next
			if next == models.StatusAcknowledged {
				n.AcknowledgedAt = &ts
			} else {
				n.ResolvedAt = &ts
			}
			st.notifications[i] = n
			updated++
		}
		return nil
	})
	return updated, err
}
