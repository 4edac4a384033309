package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/models"
)

// Every method takes ctx first. When ctx was produced by
// TxManager.WithinTx the call joins that transaction; otherwise it runs
// on its own.
//
// Lookups return nil, nil when the row does not exist. Services turn that
// into apperr.NotFoundError.

// TxManager runs fn inside a single transaction. fn must use the ctx it
// is given for every repository call that should be part of the
// transaction. The transaction commits when fn returns nil.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type PanelRepository interface {
	Create(ctx context.Context, p *models.Panel) (*models.Panel, error)

	// GetByID returns a panel scoped to the tenant.
	GetByID(ctx context.Context, tenantID, panelID uuid.UUID) (*models.Panel, error)

	// Lookup returns a panel by id regardless of tenant. Used by the
	// change recorder, whose callers have already authorised the panel.
	Lookup(ctx context.Context, panelID uuid.UUID) (*models.Panel, error)

	// LockForUpdate reads the panel and holds its row lock until the
	// surrounding transaction ends. Two structural mutations of the same
	// panel serialise on this lock.
	LockForUpdate(ctx context.Context, tenantID, panelID uuid.UUID) (*models.Panel, error)

	UpdateCohortRule(ctx context.Context, panelID uuid.UUID, rule models.CohortRule) (*models.Panel, error)

	// Delete removes the panel with its columns, views and their
	// notifications. Data sources are detached, not deleted.
	Delete(ctx context.Context, tenantID, panelID uuid.UUID) (bool, error)
}

type ColumnRepository interface {
	// Create fails with apperr.ConflictError if the id is taken in the panel.
	Create(ctx context.Context, c *models.Column) (*models.Column, error)
	Get(ctx context.Context, panelID uuid.UUID, columnID string) (*models.Column, error)
	ListByPanel(ctx context.Context, panelID uuid.UUID) ([]models.Column, error)
	Update(ctx context.Context, c *models.Column) (*models.Column, error)
	Delete(ctx context.Context, panelID uuid.UUID, columnID string) (bool, error)
}

type DataSourceRepository interface {
	Create(ctx context.Context, ds *models.DataSource) (*models.DataSource, error)
	GetByID(ctx context.Context, tenantID, dataSourceID uuid.UUID) (*models.DataSource, error)
	Update(ctx context.Context, ds *models.DataSource) (*models.DataSource, error)
}

type ViewRepository interface {
	// Create stores the view with its filters and sorts.
	Create(ctx context.Context, v *models.View) (*models.View, error)
	GetByID(ctx context.Context, tenantID, viewID uuid.UUID) (*models.View, error)

	// ListPublishedByPanel returns the published views of a panel ordered
	// by id. This is the dependent set for impact classification.
	ListPublishedByPanel(ctx context.Context, panelID uuid.UUID) ([]models.View, error)

	// SetPublished flips publication. publishedAt is stored when
	// publishing and cleared when unpublishing.
	SetPublished(ctx context.Context, viewID uuid.UUID, published bool, at time.Time) (*models.View, error)

	// Delete removes the view and its notifications.
	Delete(ctx context.Context, tenantID, viewID uuid.UUID) (bool, error)
}

// ChangeFilter narrows ListChanges. Nil pointers mean "any".
type ChangeFilter struct {
	TenantID   uuid.UUID
	UserID     uuid.UUID
	PanelID    *uuid.UUID
	ChangeType *models.ChangeType
	Since      *time.Time
	Limit      int
	Offset     int
}

// ChangeRepository is the append-only panel ledger. There is no delete;
// the only update is MarkDispatched, which touches dispatch bookkeeping
// and never the recorded change itself.
type ChangeRepository interface {
	Append(ctx context.Context, c *models.PanelChange) (*models.PanelChange, error)
	GetByID(ctx context.Context, changeID int64) (*models.PanelChange, error)

	// List returns one page of changes, newest first (by id), and the
	// total number of matching changes.
	List(ctx context.Context, f ChangeFilter) ([]models.PanelChange, int, error)

	// ListUndispatched returns changes without a completed notification
	// pass, oldest first: ids greater than afterID, recorded at least
	// olderThan ago by the store's own clock.
	ListUndispatched(ctx context.Context, afterID int64, olderThan time.Duration, limit int) ([]models.PanelChange, error)

	// MarkDispatched stamps dispatched_at. Marking a change twice keeps the
	// first timestamp.
	MarkDispatched(ctx context.Context, changeID int64, at time.Time) error
}

// NotificationFilter narrows ListNotifications. Nil pointers mean "any".
type NotificationFilter struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	IsRead   *bool
	Impact   *models.ImpactLevel
	Since    *time.Time
	Limit    int
	Offset   int
}

type NotificationRepository interface {
	// CreatePending inserts n as pending unless a notification already
	// exists for (n.ViewID, n.PanelChangeID, n.UserID), whatever its
	// status. It returns the stored row and whether this call inserted it.
	// Notifications without a change are always inserted.
	CreatePending(ctx context.Context, n *models.ViewNotification) (*models.ViewNotification, bool, error)

	GetByID(ctx context.Context, tenantID, userID, notificationID uuid.UUID) (*models.ViewNotification, error)

	// List returns one page, newest first, plus the total matching rows
	// and the recipient's pending count (independent of the filter).
	List(ctx context.Context, f NotificationFilter) (items []models.ViewNotification, total int, unread int, err error)

	// Acknowledge moves the recipient's pending notifications among ids to
	// acknowledged and returns how many moved.
	Acknowledge(ctx context.Context, tenantID, userID uuid.UUID, ids []uuid.UUID, at time.Time) (int, error)

	// Resolve moves the recipient's pending or acknowledged notifications
	// among ids to resolved and returns how many moved.
	Resolve(ctx context.Context, tenantID, userID uuid.UUID, ids []uuid.UUID, at time.Time) (int, error)
}

// Stores bundles one implementation of every repository. Services take
// the pieces they need from it.
type Stores struct {
	Tx            TxManager
	Panels        PanelRepository
	Columns       ColumnRepository
	DataSources   DataSourceRepository
	Views         ViewRepository
	Changes       ChangeRepository
	Notifications NotificationRepository
}
