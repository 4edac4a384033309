package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/panelwatch/internal/models"
)

type ViewStore struct {
	pool *pgxpool.Pool
}

func NewViewStore(pool *pgxpool.Pool) *ViewStore {
	return &ViewStore{pool: pool}
}

const viewColumns = `id, tenant_id, panel_id, owner_user_id, name, visible_columns, is_published, published_at, created_at, updated_at`

func scanView(row pgx.Row) (*models.View, error) {
	var v models.View
	if err := row.Scan(
		&v.ID,
		&v.TenantID,
		&v.PanelID,
		&v.OwnerUserID,
		&v.Name,
		&v.VisibleColumns,
		&v.IsPublished,
		&v.PublishedAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	v.Filters = []models.ViewFilter{}
	v.Sorts = []models.ViewSort{}
	return &v, nil
}

// Create inserts the view row and its filter and sort rows in one
// transaction.
func (s *ViewStore) Create(ctx context.Context, v *models.View) (*models.View, error) {
	var out *models.View
	err := withinTx(ctx, s.pool, func(ctx context.Context) error {
		q := conn(ctx, s.pool)

		var publishedAt *time.Time
		if v.IsPublished {
			now := time.Now().UTC()
			publishedAt = &now
		}
		visible := v.VisibleColumns
		if visible == nil {
			visible = []string{}
		}

		query := `
			INSERT INTO views (tenant_id, panel_id, owner_user_id, name, visible_columns, is_published, published_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			RETURNING ` + viewColumns

		created, err := scanView(q.QueryRow(ctx, query,
			v.TenantID, v.PanelID, v.OwnerUserID, v.Name, visible, v.IsPublished, publishedAt,
		))
		if err != nil {
			return fmt.Errorf("insert view: %w", err)
		}

		for i, f := range v.Filters {
			if _, err := q.Exec(ctx,
				`INSERT INTO view_filters (view_id, position, column_id, operator, value) VALUES ($1, $2, $3, $4, $5::jsonb)`,
				created.ID, i, f.ColumnID, f.Operator, jsonArg(f.Value),
			); err != nil {
				return fmt.Errorf("insert view filter: %w", err)
			}
			created.Filters = append(created.Filters, f)
		}
		for i, srt := range v.Sorts {
			if _, err := q.Exec(ctx,
				`INSERT INTO view_sorts (view_id, position, column_id, direction) VALUES ($1, $2, $3, $4)`,
				created.ID, i, srt.ColumnID, srt.Direction,
			); err != nil {
				return fmt.Errorf("insert view sort: %w", err)
			}
			created.Sorts = append(created.Sorts, srt)
		}

		out = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ViewStore) GetByID(ctx context.Context, tenantID, viewID uuid.UUID) (*models.View, error) {
	query := `SELECT ` + viewColumns + ` FROM views WHERE id = $1 AND tenant_id = $2`

	v, err := scanView(conn(ctx, s.pool).QueryRow(ctx, query, viewID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get view: %w", err)
	}

	views := []models.View{*v}
	if err := s.loadChildren(ctx, views); err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *ViewStore) ListPublishedByPanel(ctx context.Context, panelID uuid.UUID) ([]models.View, error) {
	query := `SELECT ` + viewColumns + ` FROM views WHERE panel_id = $1 AND is_published ORDER BY id`

	rows, err := conn(ctx, s.pool).Query(ctx, query, panelID)
	if err != nil {
		return nil, fmt.Errorf("list published views: %w", err)
	}
	defer rows.Close()

	views := make([]models.View, 0)
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan view: %w", err)
		}
		views = append(views, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate views: %w", err)
	}

	if err := s.loadChildren(ctx, views); err != nil {
		return nil, err
	}
	return views, nil
}

// loadChildren fills Filters and Sorts for every view with one query per
// child table.
func (s *ViewStore) loadChildren(ctx context.Context, views []models.View) error {
	if len(views) == 0 {
		return nil
	}

	ids := make([]string, len(views))
	index := make(map[uuid.UUID]int, len(views))
	for i, v := range views {
		ids[i] = v.ID.String()
		index[v.ID] = i
	}
	q := conn(ctx, s.pool)

	rows, err := q.Query(ctx,
		`SELECT view_id, column_id, operator, value FROM view_filters WHERE view_id = ANY($1::uuid[]) ORDER BY view_id, position`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("list view filters: %w", err)
	}
	for rows.Next() {
		var (
			viewID uuid.UUID
			f      models.ViewFilter
			value  []byte
		)
		if err := rows.Scan(&viewID, &f.ColumnID, &f.Operator, &value); err != nil {
			rows.Close()
			return fmt.Errorf("scan view filter: %w", err)
		}
		f.Value = value
		i := index[viewID]
		views[i].Filters = append(views[i].Filters, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate view filters: %w", err)
	}

	rows, err = q.Query(ctx,
		`SELECT view_id, column_id, direction FROM view_sorts WHERE view_id = ANY($1::uuid[]) ORDER BY view_id, position`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("list view sorts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			viewID uuid.UUID
			srt    models.ViewSort
		)
		if err := rows.Scan(&viewID, &srt.ColumnID, &srt.Direction); err != nil {
			return fmt.Errorf("scan view sort: %w", err)
		}
		i := index[viewID]
		views[i].Sorts = append(views[i].Sorts, srt)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate view sorts: %w", err)
	}
	return nil
}

func (s *ViewStore) SetPublished(ctx context.Context, viewID uuid.UUID, published bool, at time.Time) (*models.View, error) {
	var publishedAt *time.Time
	if published {
		publishedAt = &at
	}

	query := `
		UPDATE views SET is_published = $2, published_at = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + viewColumns

	v, err := scanView(conn(ctx, s.pool).QueryRow(ctx, query, viewID, published, publishedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("set view published: %w", err)
	}

	views := []models.View{*v}
	if err := s.loadChildren(ctx, views); err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *ViewStore) Delete(ctx context.Context, tenantID, viewID uuid.UUID) (bool, error) {
	query := `DELETE FROM views WHERE id = $1 AND tenant_id = $2`

	tag, err := conn(ctx, s.pool).Exec(ctx, query, viewID, tenantID)
	if err != nil {
		return false, fmt.Errorf("delete view: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
