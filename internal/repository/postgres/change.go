package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/repository"
)

type ChangeStore struct {
	pool *pgxpool.Pool
}

func NewChangeStore(pool *pgxpool.Pool) *ChangeStore {
	return &ChangeStore{pool: pool}
}

const changeColumns = `id, panel_id, tenant_id, user_id, change_type, affected_column, change_details, created_at, dispatched_at`

func scanChange(row pgx.Row) (*models.PanelChange, error) {
	var (
		c       models.PanelChange
		details []byte
	)
	if err := row.Scan(
		&c.ID,
		&c.PanelID,
		&c.TenantID,
		&c.UserID,
		&c.ChangeType,
		&c.AffectedColumn,
		&details,
		&c.CreatedAt,
		&c.DispatchedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(details, &c.Details); err != nil {
		return nil, fmt.Errorf("decode change details: %w", err)
	}
	return &c, nil
}

func (s *ChangeStore) Append(ctx context.Context, c *models.PanelChange) (*models.PanelChange, error) {
	details, err := json.Marshal(c.Details)
	if err != nil {
		return nil, fmt.Errorf("encode change details: %w", err)
	}

	query := `
		INSERT INTO panel_changes (panel_id, tenant_id, user_id, change_type, affected_column, change_details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING ` + changeColumns

	out, err := scanChange(conn(ctx, s.pool).QueryRow(ctx, query,
		c.PanelID, c.TenantID, c.UserID, c.ChangeType, c.AffectedColumn, details,
	))
	if err != nil {
		return nil, fmt.Errorf("insert panel change: %w", err)
	}
	return out, nil
}

func (s *ChangeStore) GetByID(ctx context.Context, changeID int64) (*models.PanelChange, error) {
	query := `SELECT ` + changeColumns + ` FROM panel_changes WHERE id = $1`

	c, err := scanChange(conn(ctx, s.pool).QueryRow(ctx, query, changeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get panel change: %w", err)
	}
	return c, nil
}

func (s *ChangeStore) List(ctx context.Context, f repository.ChangeFilter) ([]models.PanelChange, int, error) {
	var w where
	w.add("tenant_id = ?", f.TenantID)
	w.add("user_id = ?", f.UserID)
	if f.PanelID != nil {
		w.add("panel_id = ?", *f.PanelID)
	}
	if f.ChangeType != nil {
		w.add("change_type = ?", string(*f.ChangeType))
	}
	if f.Since != nil {
		w.add("created_at >= ?", *f.Since)
	}
	q := conn(ctx, s.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM panel_changes`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count panel changes: %w", err)
	}

	query := `SELECT ` + changeColumns + ` FROM panel_changes` + w.String() +
		` ORDER BY id DESC LIMIT ` + w.next(f.Limit) + ` OFFSET ` + w.next(f.Offset)

	rows, err := q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list panel changes: %w", err)
	}
	defer rows.Close()

	changes := make([]models.PanelChange, 0)
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan panel change: %w", err)
		}
		changes = append(changes, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate panel changes: %w", err)
	}
	return changes, total, nil
}

// ListUndispatched compares created_at with the database's now(), so the
// grace period is measured on the same clock that stamped the change.
func (s *ChangeStore) ListUndispatched(ctx context.Context, afterID int64, olderThan time.Duration, limit int) ([]models.PanelChange, error) {
	query := `SELECT ` + changeColumns + ` FROM panel_changes
		WHERE dispatched_at IS NULL AND id > $1 AND created_at <= now() - make_interval(secs => $2)
		ORDER BY id
		LIMIT $3`

	rows, err := conn(ctx, s.pool).Query(ctx, query, afterID, olderThan.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("list undispatched changes: %w", err)
	}
	defer rows.Close()

	changes := make([]models.PanelChange, 0)
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan panel change: %w", err)
		}
		changes = append(changes, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate undispatched changes: %w", err)
	}
	return changes, nil
}

func (s *ChangeStore) MarkDispatched(ctx context.Context, changeID int64, at time.Time) error {
	query := `UPDATE panel_changes SET dispatched_at = $2 WHERE id = $1 AND dispatched_at IS NULL`

	if _, err := conn(ctx, s.pool).Exec(ctx, query, changeID, at); err != nil {
		return fmt.Errorf("mark change dispatched: %w", err)
	}
	return nil
}
