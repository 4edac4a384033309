package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/repository"
)

type NotificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

const notificationColumns = `id, tenant_id, user_id, view_id, panel_change_id, status, impact, message, acknowledged_at, resolved_at, created_at`

func scanNotification(row pgx.Row) (*models.ViewNotification, error) {
	var n models.ViewNotification
	if err := row.Scan(
		&n.ID,
		&n.TenantID,
		&n.UserID,
		&n.ViewID,
		&n.PanelChangeID,
		&n.Status,
		&n.Impact,
		&n.Message,
		&n.AcknowledgedAt,
		&n.ResolvedAt,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}

// CreatePending relies on the partial unique index on
// (view_id, panel_change_id, user_id). When the insert is skipped the
// existing row is returned with inserted = false.
//
// The index, not a read before the insert, is what keeps delivery at
// most once per recipient: inline dispatch, the stream worker, a replay
// and the sweep may all process the same change at the same time, and
// ON CONFLICT DO NOTHING lets exactly one of them insert. The index is
// partial because manual alerts carry no change id and may repeat. Its
// WHERE clause must be repeated in ON CONFLICT for Postgres to infer it.
func (s *NotificationStore) CreatePending(ctx context.Context, n *models.ViewNotification) (*models.ViewNotification, bool, error) {
	q := conn(ctx, s.pool)

	query := `
		INSERT INTO view_notifications (tenant_id, user_id, view_id, panel_change_id, status, impact, message, created_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, now())
		ON CONFLICT (view_id, panel_change_id, user_id) WHERE panel_change_id IS NOT NULL DO NOTHING
		RETURNING ` + notificationColumns

	created, err := scanNotification(q.QueryRow(ctx, query,
		n.TenantID, n.UserID, n.ViewID, n.PanelChangeID, n.Impact, n.Message,
	))
	if err == nil {
		return created, true, nil
	}
	if isUniqueViolation(err) {
		return nil, false, apperr.NewConflictError("view_notification", "view_id", n.ViewID.String())
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert notification: %w", err)
	}

	existing, err := scanNotification(q.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM view_notifications WHERE view_id = $1 AND panel_change_id = $2 AND user_id = $3`,
		n.ViewID, n.PanelChangeID, n.UserID,
	))
	if err != nil {
		return nil, false, fmt.Errorf("get existing notification: %w", err)
	}
	return existing, false, nil
}

func (s *NotificationStore) GetByID(ctx context.Context, tenantID, userID, notificationID uuid.UUID) (*models.ViewNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM view_notifications WHERE id = $1 AND tenant_id = $2 AND user_id = $3`

	n, err := scanNotification(conn(ctx, s.pool).QueryRow(ctx, query, notificationID, tenantID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (s *NotificationStore) List(ctx context.Context, f repository.NotificationFilter) ([]models.ViewNotification, int, int, error) {
	q := conn(ctx, s.pool)

	var unread int
	if err := q.QueryRow(ctx,
		`SELECT count(*) FROM view_notifications WHERE tenant_id = $1 AND user_id = $2 AND status = 'pending'`,
		f.TenantID, f.UserID,
	).Scan(&unread); err != nil {
		return nil, 0, 0, fmt.Errorf("count unread notifications: %w", err)
	}

	var w where
	w.add("tenant_id = ?", f.TenantID)
	w.add("user_id = ?", f.UserID)
	if f.IsRead != nil {
		if *f.IsRead {
			w.add("status <> 'pending'")
		} else {
			w.add("status = 'pending'")
		}
	}
	if f.Impact != nil {
		w.add("impact = ?", string(*f.Impact))
	}
	if f.Since != nil {
		w.add("created_at >= ?", *f.Since)
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM view_notifications`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, 0, fmt.Errorf("count notifications: %w", err)
	}

	query := `SELECT ` + notificationColumns + ` FROM view_notifications` + w.String() +
		` ORDER BY created_at DESC, id DESC LIMIT ` + w.next(f.Limit) + ` OFFSET ` + w.next(f.Offset)

	rows, err := q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]models.ViewNotification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, total, unread, nil
}

func (s *NotificationStore) Acknowledge(ctx context.Context, tenantID, userID uuid.UUID, ids []uuid.UUID, at time.Time) (int, error) {
	query := `
		UPDATE view_notifications SET status = 'acknowledged', acknowledged_at = $4
		WHERE tenant_id = $1 AND user_id = $2 AND id = ANY($3::uuid[]) AND status = 'pending'`

	tag, err := conn(ctx, s.pool).Exec(ctx, query, tenantID, userID, uuidStrings(ids), at)
	if err != nil {
		return 0, fmt.Errorf("acknowledge notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *NotificationStore) Resolve(ctx context.Context, tenantID, userID uuid.UUID, ids []uuid.UUID, at time.Time) (int, error) {
	query := `
		UPDATE view_notifications SET status = 'resolved', resolved_at = $4
		WHERE tenant_id = $1 AND user_id = $2 AND id = ANY($3::uuid[]) AND status IN ('pending', 'acknowledged')`

	tag, err := conn(ctx, s.pool).Exec(ctx, query, tenantID, userID, uuidStrings(ids), at)
	if err != nil {
		return 0, fmt.Errorf("resolve notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
