package memory

import (
	"bytes"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/models"
)

type ViewStore struct{ s *Store }

func (r *ViewStore) Create(ctx context.Context, v *models.View) (*models.View, error) {
	var out models.View
	err := r.s.write(ctx, func(st *state) error {
		row := cloneView(*v)
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		now := r.s.timestamp()
		row.CreatedAt, row.UpdatedAt = now, now
		if row.IsPublished && row.PublishedAt == nil {
			row.PublishedAt = &now
		}
		if !row.IsPublished {
			row.PublishedAt = nil
		}
		st.views[row.ID] = row
		out = cloneView(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ViewStore) GetByID(ctx context.Context, tenantID, viewID uuid.UUID) (*models.View, error) {
	var out *models.View
	err := r.s.read(ctx, func(st *state) error {
		if v, ok := st.views[viewID]; ok && v.TenantID == tenantID {
			c := cloneView(v)
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *ViewStore) ListPublishedByPanel(ctx context.Context, panelID uuid.UUID) ([]models.View, error) {
	views := make([]models.View, 0)
	err := r.s.read(ctx, func(st *state) error {
		for _, v := range st.views {
			if v.PanelID == panelID && v.IsPublished {
				views = append(views, cloneView(v))
			}
		}
		return nil
	})
	slices.SortFunc(views, func(a, b models.View) int {
		return compareUUID(a.ID, b.ID)
	})
	return views, err
}

func (r *ViewStore) SetPublished(ctx context.Context, viewID uuid.UUID, published bool, at time.Time) (*models.View, error) {
	var out *models.View
	err := r.s.write(ctx, func(st *state) error {
		v, ok := st.views[viewID]
		if !ok {
			return nil
		}
		v = cloneView(v)
		v.IsPublished = published
		if published {
			ts := at.UTC()
			v.PublishedAt = &ts
		} else {
			v.PublishedAt = nil
		}
		v.UpdatedAt = r.s.timestamp()
		st.views[viewID] = v
		c := cloneView(v)
		out = &c
		return nil
	})
	return out, err
}

func (r *ViewStore) Delete(ctx context.Context, tenantID, viewID uuid.UUID) (bool, error) {
	var deleted bool
	err := r.s.write(ctx, func(st *state) error {
		v, ok := st.views[viewID]
		if !ok || v.TenantID != tenantID {
			return nil
		}
		delete(st.views, viewID)
		st.dropNotificationsForView(viewID)
		deleted = true
		return nil
	})
	return deleted, err
}

func (st *state) dropNotificationsForView(viewID uuid.UUID) {
	st.notifications = slices.DeleteFunc(st.notifications, func(n models.ViewNotification) bool {
		return n.ViewID == viewID
	})
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
