package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/panelwatch/internal/models"
)

type PanelStore struct {
	pool *pgxpool.Pool
}

func NewPanelStore(pool *pgxpool.Pool) *PanelStore {
	return &PanelStore{pool: pool}
}

const panelColumns = `id, tenant_id, user_id, name, description, cohort_rule, created_at, updated_at`

func scanPanel(row pgx.Row) (*models.Panel, error) {
	var (
		p    models.Panel
		rule []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.UserID,
		&p.Name,
		&p.Description,
		&rule,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(rule) > 0 {
		if err := json.Unmarshal(rule, &p.CohortRule); err != nil {
			return nil, fmt.Errorf("decode cohort rule: %w", err)
		}
	}
	return &p, nil
}

func (s *PanelStore) Create(ctx context.Context, p *models.Panel) (*models.Panel, error) {
	rule, err := json.Marshal(p.CohortRule)
	if err != nil {
		return nil, fmt.Errorf("encode cohort rule: %w", err)
	}

	query := `
		INSERT INTO panels (tenant_id, user_id, name, description, cohort_rule, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING ` + panelColumns

	out, err := scanPanel(conn(ctx, s.pool).QueryRow(ctx, query, p.TenantID, p.UserID, p.Name, p.Description, rule))
	if err != nil {
		return nil, fmt.Errorf("insert panel: %w", err)
	}
	return out, nil
}

func (s *PanelStore) GetByID(ctx context.Context, tenantID, panelID uuid.UUID) (*models.Panel, error) {
	query := `SELECT ` + panelColumns + ` FROM panels WHERE id = $1 AND tenant_id = $2`

	p, err := scanPanel(conn(ctx, s.pool).QueryRow(ctx, query, panelID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get panel: %w", err)
	}
	return p, nil
}

func (s *PanelStore) Lookup(ctx context.Context, panelID uuid.UUID) (*models.Panel, error) {
	query := `SELECT ` + panelColumns + ` FROM panels WHERE id = $1`

	p, err := scanPanel(conn(ctx, s.pool).QueryRow(ctx, query, panelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup panel: %w", err)
	}
	return p, nil
}

// LockForUpdate must run inside WithinTx; outside a transaction the lock
// is released as soon as the statement finishes.
//
// The row lock serialises structural mutations of one panel. A second
// mutation blocks here until the first commits, then reads the columns
// the first one wrote. Its ledger row is appended after that commit, so
// change ids of a panel follow the order the mutations took effect and
// two concurrent removals of the same column cannot both succeed.
// Mutations of different panels do not contend.
func (s *PanelStore) LockForUpdate(ctx context.Context, tenantID, panelID uuid.UUID) (*models.Panel, error) {
	query := `SELECT ` + panelColumns + ` FROM panels WHERE id = $1 AND tenant_id = $2 FOR UPDATE`

	p, err := scanPanel(conn(ctx, s.pool).QueryRow(ctx, query, panelID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock panel: %w", err)
	}
	return p, nil
}

func (s *PanelStore) UpdateCohortRule(ctx context.Context, panelID uuid.UUID, rule models.CohortRule) (*models.Panel, error) {
	encoded, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("encode cohort rule: %w", err)
	}

	query := `
		UPDATE panels SET cohort_rule = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + panelColumns

	p, err := scanPanel(conn(ctx, s.pool).QueryRow(ctx, query, panelID, encoded))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update cohort rule: %w", err)
	}
	return p, nil
}

// Delete relies on the schema's cascades: columns, views, filters, sorts
// and notifications go with the panel; data sources get panel_id = NULL.
func (s *PanelStore) Delete(ctx context.Context, tenantID, panelID uuid.UUID) (bool, error) {
	query := `DELETE FROM panels WHERE id = $1 AND tenant_id = $2`

	tag, err := conn(ctx, s.pool).Exec(ctx, query, panelID, tenantID)
	if err != nil {
		return false, fmt.Errorf("delete panel: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
