package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/models"
)

type PanelStore struct{ s *Store }

func (r *PanelStore) Create(ctx context.Context, p *models.Panel) (*models.Panel, error) {
	var out *models.Panel
	err := r.s.write(ctx, func(st *state) error {
		row := *clonePanel(*p)
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		now := r.s.timestamp()
		row.CreatedAt, row.UpdatedAt = now, now
		st.panels[row.ID] = row
		out = clonePanel(row)
		return nil
	})
	return out, err
}

func (r *PanelStore) GetByID(ctx context.Context, tenantID, panelID uuid.UUID) (*models.Panel, error) {
	var out *models.Panel
	err := r.s.read(ctx, func(st *state) error {
		if p, ok := st.panels[panelID]; ok && p.TenantID == tenantID {
			out = clonePanel(p)
		}
		return nil
	})
	return out, err
}

func (r *PanelStore) Lookup(ctx context.Context, panelID uuid.UUID) (*models.Panel, error) {
	var out *models.Panel
	err := r.s.read(ctx, func(st *state) error {
		if p, ok := st.panels[panelID]; ok {
			out = clonePanel(p)
		}
		return nil
	})
	return out, err
}

// LockForUpdate is GetByID: inside WithinTx the whole store is locked.
func (r *PanelStore) LockForUpdate(ctx context.Context, tenantID, panelID uuid.UUID) (*models.Panel, error) {
	return r.GetByID(ctx, tenantID, panelID)
}

func (r *PanelStore) UpdateCohortRule(ctx context.Context, panelID uuid.UUID, rule models.CohortRule) (*models.Panel, error) {
	var out *models.Panel
	err := r.s.write(ctx, func(st *state) error {
		p, ok := st.panels[panelID]
		if !ok {
			return nil
		}
		p.CohortRule = clonePanel(models.Panel{CohortRule: rule}).CohortRule
		p.UpdatedAt = r.s.timestamp()
		st.panels[panelID] = p
		out = clonePanel(p)
		return nil
	})
	return out, err
}

func (r *PanelStore) Delete(ctx context.Context, tenantID, panelID uuid.UUID) (bool, error) {
	var deleted bool
	err := r.s.write(ctx, func(st *state) error {
		p, ok := st.panels[panelID]
		if !ok || p.TenantID != tenantID {
			return nil
		}
		delete(st.panels, panelID)
		delete(st.columns, panelID)

		for id, v := range st.views {
			if v.PanelID == panelID {
				delete(st.views, id)
				st.dropNotificationsForView(id)
			}
		}
		for id, ds := range st.dataSources {
			if ds.PanelID != nil && *ds.PanelID == panelID {
				ds.PanelID = nil
				st.dataSources[id] = ds
			}
		}
		deleted = true
		return nil
	})
	return deleted, err
}

type ColumnStore struct{ s *Store }

func (r *ColumnStore) Create(ctx context.Context, c *models.Column) (*models.Column, error) {
	var out models.Column
	err := r.s.write(ctx, func(st *state) error {
		existing := st.columns[c.PanelID]
		for _, col := range existing {
			if col.ID == c.ID {
				return apperr.NewConflictError("column", "id", c.ID)
			}
		}
		row := cloneColumn(*c)
		now := r.s.timestamp()
		row.CreatedAt, row.UpdatedAt = now, now

		cols := make([]models.Column, 0, len(existing)+1)
		cols = append(cols, existing...)
		st.columns[c.PanelID] = append(cols, row)
		out = cloneColumn(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ColumnStore) Get(ctx context.Context, panelID uuid.UUID, columnID string) (*models.Column, error) {
	var out *models.Column
	err := r.s.read(ctx, func(st *state) error {
		for _, col := range st.columns[panelID] {
			if col.ID == columnID {
				c := cloneColumn(col)
				out = &c
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *ColumnStore) ListByPanel(ctx context.Context, panelID uuid.UUID) ([]models.Column, error) {
	cols := make([]models.Column, 0)
	err := r.s.read(ctx, func(st *state) error {
		for _, col := range st.columns[panelID] {
			cols = append(cols, cloneColumn(col))
		}
		return nil
	})
	return cols, err
}

func (r *ColumnStore) Update(ctx context.Context, c *models.Column) (*models.Column, error) {
	var out *models.Column
	err := r.s.write(ctx, func(st *state) error {
		existing := st.columns[c.PanelID]
		for i, col := range existing {
			if col.ID != c.ID {
				continue
			}
			row := cloneColumn(*c)
			row.CreatedAt = col.CreatedAt
			row.UpdatedAt = r.s.timestamp()

			cols := make([]models.Column, len(existing))
			copy(cols, existing)
			cols[i] = row
			st.columns[c.PanelID] = cols

			updated := cloneColumn(row)
			out = &updated
			return nil
		}
		return nil
	})
	return out, err
}

func (r *ColumnStore) Delete(ctx context.Context, panelID uuid.UUID, columnID string) (bool, error) {
	var deleted bool
	err := r.s.write(ctx, func(st *state) error {
		existing := st.columns[panelID]
		cols := make([]models.Column, 0, len(existing))
		for _, col := range existing {
			if col.ID == columnID {
				deleted = true
				continue
			}
			cols = append(cols, col)
		}
		st.columns[panelID] = cols
		return nil
	})
	return deleted, err
}

type DataSourceStore struct{ s *Store }

func (r *DataSourceStore) Create(ctx context.Context, ds *models.DataSource) (*models.DataSource, error) {
	var out *models.DataSource
	err := r.s.write(ctx, func(st *state) error {
		row := *cloneDataSource(*ds)
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		now := r.s.timestamp()
		row.CreatedAt, row.UpdatedAt = now, now
		st.dataSources[row.ID] = row
		out = cloneDataSource(row)
		return nil
	})
	return out, err
}

func (r *DataSourceStore) GetByID(ctx context.Context, tenantID, dataSourceID uuid.UUID) (*models.DataSource, error) {
	var out *models.DataSource
	err := r.s.read(ctx, func(st *state) error {
		if ds, ok := st.dataSources[dataSourceID]; ok && ds.TenantID == tenantID {
			out = cloneDataSource(ds)
		}
		return nil
	})
	return out, err
}

func (r *DataSourceStore) Update(ctx context.Context, ds *models.DataSource) (*models.DataSource, error) {
	var out *models.DataSource
	err := r.s.write(ctx, func(st *state) error {
		existing, ok := st.dataSources[ds.ID]
		if !ok {
			return nil
		}
		row := *cloneDataSource(*ds)
		row.CreatedAt = existing.CreatedAt
		row.UpdatedAt = r.s.timestamp()
		st.dataSources[ds.ID] = row
		out = cloneDataSource(row)
		return nil
	})
	return out, err
}
