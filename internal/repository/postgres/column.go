package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/models"
)

type ColumnStore struct {
	pool *pgxpool.Pool
}

func NewColumnStore(pool *pgxpool.Pool) *ColumnStore {
	return &ColumnStore{pool: pool}
}

const columnColumns = `panel_id, id, kind, name, data_type, data_source_id, source_field, formula, dependencies, created_at, updated_at`

func scanColumn(row pgx.Row) (*models.Column, error) {
	var c models.Column
	if err := row.Scan(
		&c.PanelID,
		&c.ID,
		&c.Kind,
		&c.Name,
		&c.DataType,
		&c.DataSourceID,
		&c.SourceField,
		&c.Formula,
		&c.Dependencies,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func dependencies(c *models.Column) []string {
	if c.Dependencies == nil {
		return []string{}
	}
	return c.Dependencies
}

func (s *ColumnStore) Create(ctx context.Context, c *models.Column) (*models.Column, error) {
	query := `
		INSERT INTO columns (panel_id, id, kind, name, data_type, data_source_id, source_field, formula, dependencies, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING ` + columnColumns

	out, err := scanColumn(conn(ctx, s.pool).QueryRow(ctx, query,
		c.PanelID, c.ID, c.Kind, c.Name, c.DataType, c.DataSourceID, c.SourceField, c.Formula, dependencies(c),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.NewConflictError("column", "id", c.ID)
		}
		return nil, fmt.Errorf("insert column: %w", err)
	}
	return out, nil
}

func (s *ColumnStore) Get(ctx context.Context, panelID uuid.UUID, columnID string) (*models.Column, error) {
	query := `SELECT ` + columnColumns + ` FROM columns WHERE panel_id = $1 AND id = $2`

	c, err := scanColumn(conn(ctx, s.pool).QueryRow(ctx, query, panelID, columnID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get column: %w", err)
	}
	return c, nil
}

func (s *ColumnStore) ListByPanel(ctx context.Context, panelID uuid.UUID) ([]models.Column, error) {
	query := `SELECT ` + columnColumns + ` FROM columns WHERE panel_id = $1 ORDER BY position`

	rows, err := conn(ctx, s.pool).Query(ctx, query, panelID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	cols := make([]models.Column, 0)
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return cols, nil
}

func (s *ColumnStore) Update(ctx context.Context, c *models.Column) (*models.Column, error) {
	query := `
		UPDATE columns
		SET kind = $3, name = $4, data_type = $5, data_source_id = $6, source_field = $7,
		    formula = $8, dependencies = $9, updated_at = now()
		WHERE panel_id = $1 AND id = $2
		RETURNING ` + columnColumns

	out, err := scanColumn(conn(ctx, s.pool).QueryRow(ctx, query,
		c.PanelID, c.ID, c.Kind, c.Name, c.DataType, c.DataSourceID, c.SourceField, c.Formula, dependencies(c),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update column: %w", err)
	}
	return out, nil
}

func (s *ColumnStore) Delete(ctx context.Context, panelID uuid.UUID, columnID string) (bool, error) {
	query := `DELETE FROM columns WHERE panel_id = $1 AND id = $2`

	tag, err := conn(ctx, s.pool).Exec(ctx, query, panelID, columnID)
	if err != nil {
		return false, fmt.Errorf("delete column: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
