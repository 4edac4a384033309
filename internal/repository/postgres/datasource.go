package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/panelwatch/internal/models"
)

type DataSourceStore struct {
	pool *pgxpool.Pool
}

func NewDataSourceStore(pool *pgxpool.Pool) *DataSourceStore {
	return &DataSourceStore{pool: pool}
}

const dataSourceColumns = `id, tenant_id, panel_id, name, type, config, last_sync, created_at, updated_at`

func scanDataSource(row pgx.Row) (*models.DataSource, error) {
	var (
		ds     models.DataSource
		config []byte
	)
	if err := row.Scan(
		&ds.ID,
		&ds.TenantID,
		&ds.PanelID,
		&ds.Name,
		&ds.Type,
		&config,
		&ds.LastSync,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ds.Config = config
	return &ds, nil
}

// jsonArg passes a raw JSON document to a jsonb parameter, NULL when empty.
func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (s *DataSourceStore) Create(ctx context.Context, ds *models.DataSource) (*models.DataSource, error) {
	query := `
		INSERT INTO data_sources (tenant_id, panel_id, name, type, config, last_sync, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, now(), now())
		RETURNING ` + dataSourceColumns

	out, err := scanDataSource(conn(ctx, s.pool).QueryRow(ctx, query,
		ds.TenantID, ds.PanelID, ds.Name, ds.Type, jsonArg(ds.Config), ds.LastSync,
	))
	if err != nil {
		return nil, fmt.Errorf("insert data source: %w", err)
	}
	return out, nil
}

func (s *DataSourceStore) GetByID(ctx context.Context, tenantID, dataSourceID uuid.UUID) (*models.DataSource, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources WHERE id = $1 AND tenant_id = $2`

	ds, err := scanDataSource(conn(ctx, s.pool).QueryRow(ctx, query, dataSourceID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get data source: %w", err)
	}
	return ds, nil
}

func (s *DataSourceStore) Update(ctx context.Context, ds *models.DataSource) (*models.DataSource, error) {
	query := `
		UPDATE data_sources
		SET name = $2, type = $3, config = $4::jsonb, last_sync = $5, updated_at = now()
		WHERE id = $1
		RETURNING ` + dataSourceColumns

	out, err := scanDataSource(conn(ctx, s.pool).QueryRow(ctx, query,
		ds.ID, ds.Name, ds.Type, jsonArg(ds.Config), ds.LastSync,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update data source: %w", err)
	}
	return out, nil
}
