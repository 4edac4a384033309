package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/db"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const envTestDatabaseURL = "PANELWATCH_TEST_DATABASE_URL"

// newStores connects to the database named by PANELWATCH_TEST_DATABASE_URL
// and migrates it. Every test works in its own tenant, so runs do not
// interfere with each other.
func newStores(t *testing.T) repository.Stores {
	t.Helper()
	url := os.Getenv(envTestDatabaseURL)
	if url == "" {
		t.Skipf("%s not set", envTestDatabaseURL)
	}

	ctx := context.Background()
	database, err := db.New(ctx, url, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.Migrate(ctx))

	return NewStores(database.Pool())
}

func ptr[T any](v T) *T { return &v }

func seedPanel(t *testing.T, s repository.Stores) *models.Panel {
	t.Helper()
	p, err := s.Panels.Create(context.Background(), &models.Panel{
		TenantID:   uuid.New(),
		UserID:     uuid.New(),
		Name:       "Diabetes cohort",
		CohortRule: models.CohortRule{Logic: models.CohortLogicAnd, Conditions: []models.CohortCondition{}},
	})
	require.NoError(t, err)
	return p
}

func TestPanelAndColumns(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	p := seedPanel(t, s)

	got, err := s.Panels.GetByID(ctx, p.TenantID, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Diabetes cohort", got.Name)

	other, err := s.Panels.GetByID(ctx, uuid.New(), p.ID)
	require.NoError(t, err)
	assert.Nil(t, other)

	_, err = s.Columns.Create(ctx, &models.Column{PanelID: p.ID, ID: "age", Kind: models.ColumnKindBase, Name: "Age", DataType: "integer"})
	require.NoError(t, err)
	bmi, err := s.Columns.Create(ctx, &models.Column{
		PanelID: p.ID, ID: "bmi", Kind: models.ColumnKindCalculated, Name: "BMI", DataType: "number",
		Formula: "weight / height", Dependencies: []string{"age"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"age"}, bmi.Dependencies)

	_, err = s.Columns.Create(ctx, &models.Column{PanelID: p.ID, ID: "age", Kind: models.ColumnKindBase})
	assert.True(t, apperr.IsConflict(err))

	cols, err := s.Columns.ListByPanel(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, cols, 2)

	deleted, err := s.Columns.Delete(ctx, p.ID, "age")
	require.NoError(t, err)
	assert.True(t, deleted)

	missing, err := s.Columns.Get(ctx, p.ID, "age")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWithinTx_Rollback(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	p := seedPanel(t, s)

	boom := errors.New("boom")
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.Panels.LockForUpdate(ctx, p.TenantID, p.ID); err != nil {
			return err
		}
		if _, err := s.Columns.Create(ctx, &models.Column{PanelID: p.ID, ID: "age", Kind: models.ColumnKindBase}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	col, err := s.Columns.Get(ctx, p.ID, "age")
	require.NoError(t, err)
	assert.Nil(t, col)
}

func TestChanges_ListNewestFirst(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	p := seedPanel(t, s)

	var ids []int64
	for _, ct := range []models.ChangeType{models.ChangeColumnAdded, models.ChangeCohortChanged, models.ChangeColumnRemoved} {
		c := &models.PanelChange{PanelID: p.ID, TenantID: p.TenantID, UserID: p.UserID, ChangeType: ct}
		if ct.ColumnScoped() {
			c.AffectedColumn = ptr("age")
		}
		saved, err := s.Changes.Append(ctx, c)
		require.NoError(t, err)
		ids = append(ids, saved.ID)
	}
	assert.Less(t, ids[0], ids[1])
	assert.Less(t, ids[1], ids[2])

	page, total, err := s.Changes.List(ctx, repository.ChangeFilter{TenantID: p.TenantID, UserID: p.UserID, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	removed := models.ChangeColumnRemoved
	filtered, total, err := s.Changes.List(ctx, repository.ChangeFilter{TenantID: p.TenantID, UserID: p.UserID, ChangeType: &removed, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, filtered, 1)
	assert.Equal(t, "age", filtered[0].AffectedColumnID())
}

func TestNotifications_DedupAndTransitions(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	p := seedPanel(t, s)

	v, err := s.Views.Create(ctx, &models.View{
		TenantID: p.TenantID, PanelID: p.ID, OwnerUserID: p.UserID, Name: "Elderly",
		VisibleColumns: []string{"age"},
		Filters:        []models.ViewFilter{{ColumnID: "age", Operator: "gt"}},
		Sorts:          []models.ViewSort{{ColumnID: "age", Direction: models.SortDesc}},
	})
	require.NoError(t, err)
	_, err = s.Views.SetPublished(ctx, v.ID, true, time.Now())
	require.NoError(t, err)

	published, err := s.Views.ListPublishedByPanel(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, []models.ViewSort{{ColumnID: "age", Direction: models.SortDesc}}, published[0].Sorts)

	change, err := s.Changes.Append(ctx, &models.PanelChange{
		PanelID: p.ID, TenantID: p.TenantID, UserID: p.UserID,
		ChangeType: models.ChangeColumnRemoved, AffectedColumn: ptr("age"),
	})
	require.NoError(t, err)

	n := &models.ViewNotification{
		TenantID: p.TenantID, UserID: p.UserID, ViewID: v.ID, PanelChangeID: &change.ID,
		Impact: models.ImpactBreaking, Message: "age removed",
	}
	first, created, err := s.Notifications.CreatePending(ctx, n)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.StatusPending, first.Status)

	again, created, err := s.Notifications.CreatePending(ctx, n)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, unread, err := listAll(ctx, s, p)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	moved, err := s.Notifications.Acknowledge(ctx, p.TenantID, p.UserID, []uuid.UUID{first.ID}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	moved, err = s.Notifications.Acknowledge(ctx, p.TenantID, p.UserID, []uuid.UUID{first.ID}, time.Now())
	require.NoError(t, err)
	assert.Zero(t, moved)

	moved, err = s.Notifications.Resolve(ctx, p.TenantID, uuid.New(), []uuid.UUID{first.ID}, time.Now())
	require.NoError(t, err)
	assert.Zero(t, moved, "only the recipient can resolve")

	moved, err = s.Notifications.Resolve(ctx, p.TenantID, p.UserID, []uuid.UUID{first.ID}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	got, err := s.Notifications.GetByID(ctx, p.TenantID, p.UserID, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusResolved, got.Status)
	assert.NotNil(t, got.AcknowledgedAt)
	assert.NotNil(t, got.ResolvedAt)

	_, unread, err = listAll(ctx, s, p)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func listAll(ctx context.Context, s repository.Stores, p *models.Panel) ([]models.ViewNotification, int, error) {
	items, _, unread, err := s.Notifications.List(ctx, repository.NotificationFilter{
		TenantID: p.TenantID, UserID: p.UserID, Limit: 100,
	})
	return items, unread, err
}

func TestPanelDelete_DetachesDataSources(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	p := seedPanel(t, s)

	ds, err := s.DataSources.Create(ctx, &models.DataSource{
		TenantID: p.TenantID, PanelID: &p.ID, Name: "EHR", Type: models.DataSourceDatabase,
	})
	require.NoError(t, err)

	deleted, err := s.Panels.Delete(ctx, p.TenantID, p.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	kept, err := s.DataSources.GetByID(ctx, p.TenantID, ds.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Nil(t, kept.PanelID)
}

func TestChanges_Undispatched(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	p := seedPanel(t, s)

	c, err := s.Changes.Append(ctx, &models.PanelChange{
		PanelID: p.ID, TenantID: p.TenantID, UserID: p.UserID, ChangeType: models.ChangeCohortChanged,
	})
	require.NoError(t, err)
	assert.Nil(t, c.DispatchedAt)

	pendingIDs := func(olderThan time.Duration) []int64 {
		batch, err := s.Changes.ListUndispatched(ctx, c.ID-1, olderThan, 1000)
		require.NoError(t, err)
		var ids []int64
		for _, ch := range batch {
			ids = append(ids, ch.ID)
		}
		return ids
	}

	assert.Contains(t, pendingIDs(0), c.ID)
	assert.NotContains(t, pendingIDs(time.Hour), c.ID, "inside the grace period")

	require.NoError(t, s.Changes.MarkDispatched(ctx, c.ID, time.Now()))
	assert.NotContains(t, pendingIDs(0), c.ID)

	got, err := s.Changes.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.DispatchedAt)
}

func TestLockForUpdate_SerialisesMutations(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	p := seedPanel(t, s)

	locked := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			if _, err := s.Panels.LockForUpdate(ctx, p.TenantID, p.ID); err != nil {
				return err
			}
			if _, err := s.Columns.Create(ctx, &models.Column{PanelID: p.ID, ID: "age", Kind: models.ColumnKindBase}); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	second := make(chan error, 1)
	go func() {
		second <- s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			if _, err := s.Panels.LockForUpdate(ctx, p.TenantID, p.ID); err != nil {
				return err
			}
			existing, err := s.Columns.Get(ctx, p.ID, "age")
			if err != nil {
				return err
			}
			if existing != nil {
				return apperr.NewConflictError("column", "id", "age")
			}
			_, err = s.Columns.Create(ctx, &models.Column{PanelID: p.ID, ID: "age", Kind: models.ColumnKindBase})
			return err
		})
	}()

	select {
	case err := <-second:
		t.Fatalf("second mutation finished while the panel was locked: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-first)
	err := <-second
	assert.True(t, apperr.IsConflict(err), "the second mutation sees the first one's column")
}
