package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/impact"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/repository"
	"github.com/lalith-99/panelwatch/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store  *memory.Store
	panel  *models.Panel
	v1, v2 *models.View
}

// newFixture builds panel P with published V1 ["age","name"] and
// unpublished V2 ["age"], owned by different users.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	p, err := store.Panels().Create(ctx, &models.Panel{TenantID: uuid.New(), UserID: uuid.New(), Name: "P"})
	require.NoError(t, err)

	v1, err := store.Views().Create(ctx, &models.View{
		TenantID: p.TenantID, PanelID: p.ID, OwnerUserID: uuid.New(), Name: "V1",
		VisibleColumns: []string{"age", "name"}, IsPublished: true,
	})
	require.NoError(t, err)
	v2, err := store.Views().Create(ctx, &models.View{
		TenantID: p.TenantID, PanelID: p.ID, OwnerUserID: uuid.New(), Name: "V2",
		VisibleColumns: []string{"age"},
	})
	require.NoError(t, err)

	return &fixture{store: store, panel: p, v1: v1, v2: v2}
}

func (f *fixture) record(t *testing.T, ct models.ChangeType, column string) models.PanelChange {
	t.Helper()
	c := &models.PanelChange{PanelID: f.panel.ID, TenantID: f.panel.TenantID, UserID: f.panel.UserID, ChangeType: ct}
	if column != "" {
		c.AffectedColumn = &column
	}
	stored, err := f.store.Changes().Append(context.Background(), c)
	require.NoError(t, err)
	return *stored
}

func (f *fixture) notify(t *testing.T, n *Notifier, change models.PanelChange) []models.ViewNotification {
	t.Helper()
	classified, err := impact.NewClassifier(f.store.Views()).ClassifyImpact(context.Background(), change)
	require.NoError(t, err)
	out, err := n.Notify(context.Background(), change, classified)
	require.NoError(t, err)
	return out
}

func (f *fixture) inbox(t *testing.T, user uuid.UUID) []models.ViewNotification {
	t.Helper()
	items, _, _, err := f.store.Notifications().List(context.Background(), repository.NotificationFilter{
		TenantID: f.panel.TenantID, UserID: user, Limit: 100,
	})
	require.NoError(t, err)
	return items
}

func TestNotify_ColumnRemovedScenario(t *testing.T) {
	f := newFixture(t)
	n := NewNotifier(f.store.Notifications(), zap.NewNop())

	out := f.notify(t, n, f.record(t, models.ChangeColumnRemoved, "age"))
	require.Len(t, out, 1)

	got := f.inbox(t, f.v1.OwnerUserID)
	require.Len(t, got, 1)
	assert.Equal(t, models.ImpactBreaking, got[0].Impact)
	assert.Equal(t, models.StatusPending, got[0].Status)
	assert.Equal(t, f.v1.ID, got[0].ViewID)
	assert.Contains(t, got[0].Message, `"age"`)

	assert.Empty(t, f.inbox(t, f.v2.OwnerUserID))
}

func TestNotify_SourceChangedScenario(t *testing.T) {
	f := newFixture(t)
	n := NewNotifier(f.store.Notifications(), zap.NewNop())

	f.notify(t, n, f.record(t, models.ChangeSourceChanged, ""))

	got := f.inbox(t, f.v1.OwnerUserID)
	require.Len(t, got, 1)
	assert.Equal(t, models.ImpactWarning, got[0].Impact)
}

func TestNotify_TwiceCreatesOneRow(t *testing.T) {
	f := newFixture(t)
	n := NewNotifier(f.store.Notifications(), zap.NewNop())
	change := f.record(t, models.ChangeColumnRemoved, "age")

	first := f.notify(t, n, change)
	second := f.notify(t, n, change)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Len(t, f.inbox(t, f.v1.OwnerUserID), 1)
}

func TestNotify_ConcurrentReplaysCreateOneRow(t *testing.T) {
	f := newFixture(t)
	n := NewNotifier(f.store.Notifications(), zap.NewNop())
	change := f.record(t, models.ChangeColumnModified, "name")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			classified, err := impact.NewClassifier(f.store.Views()).ClassifyImpact(context.Background(), change)
			assert.NoError(t, err)
			_, err = n.Notify(context.Background(), change, classified)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.inbox(t, f.v1.OwnerUserID), 1)
}

func TestNotify_ReplayAfterAcknowledgeDoesNotRedeliver(t *testing.T) {
	f := newFixture(t)
	n := NewNotifier(f.store.Notifications(), zap.NewNop())
	inbox := NewInbox(f.store.Notifications(), zap.NewNop())
	change := f.record(t, models.ChangeColumnRemoved, "age")

	out := f.notify(t, n, change)
	require.Len(t, out, 1)
	updated, err := inbox.MarkRead(context.Background(), f.panel.TenantID, f.v1.OwnerUserID, []uuid.UUID{out[0].ID})
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	f.notify(t, n, change)
	got := f.inbox(t, f.v1.OwnerUserID)
	require.Len(t, got, 1)
	assert.Equal(t, models.StatusAcknowledged, got[0].Status)

	// a later change to the same panel does notify again
	f.notify(t, n, f.record(t, models.ChangeCohortChanged, ""))
	assert.Len(t, f.inbox(t, f.v1.OwnerUserID), 2)
}

func TestNotify_ReplayAfterResolveDoesNotRedeliver(t *testing.T) {
	f := newFixture(t)
	n := NewNotifier(f.store.Notifications(), zap.NewNop())
	inbox := NewInbox(f.store.Notifications(), zap.NewNop())
	change := f.record(t, models.ChangeColumnRemoved, "age")

	out := f.notify(t, n, change)
	require.Len(t, out, 1)
	_, err := inbox.Resolve(context.Background(), f.panel.TenantID, f.v1.OwnerUserID, out[0].ID)
	require.NoError(t, err)

	replayed := f.notify(t, n, change)
	require.Len(t, replayed, 1)
	assert.Equal(t, out[0].ID, replayed[0].ID)
	assert.Equal(t, models.StatusResolved, replayed[0].Status)

	got := f.inbox(t, f.v1.OwnerUserID)
	require.Len(t, got, 1)
	assert.Equal(t, models.StatusResolved, got[0].Status)
}

type everyoneResolver struct{ extra uuid.UUID }

func (r everyoneResolver) Recipients(_ context.Context, v models.View, _ models.PanelChange) ([]uuid.UUID, error) {
	return []uuid.UUID{v.OwnerUserID, r.extra}, nil
}

func TestNotify_RecipientResolver(t *testing.T) {
	f := newFixture(t)
	watcher := uuid.New()
	n := NewNotifier(f.store.Notifications(), zap.NewNop(), WithRecipientResolver(everyoneResolver{extra: watcher}))
	change := f.record(t, models.ChangeColumnAdded, "bmi")

	out := f.notify(t, n, change)
	assert.Len(t, out, 2)
	f.notify(t, n, change)

	assert.Len(t, f.inbox(t, f.v1.OwnerUserID), 1)
	assert.Len(t, f.inbox(t, watcher), 1)
}

type mockNotificationRepo struct {
	mock.Mock
	repository.NotificationRepository
}

func (m *mockNotificationRepo) CreatePending(ctx context.Context, n *models.ViewNotification) (*models.ViewNotification, bool, error) {
	args := m.Called(ctx, n)
	stored, _ := args.Get(0).(*models.ViewNotification)
	return stored, args.Bool(1), args.Error(2)
}

func TestNotify_ConflictIsLoggedNotSurfaced(t *testing.T) {
	repo := &mockNotificationRepo{}
	repo.On("CreatePending", mock.Anything, mock.Anything).
		Return(nil, false, apperr.NewConflictError("view_notification", "view_id", "x")).Once()

	n := NewNotifier(repo, zap.NewNop())
	view := models.View{ID: uuid.New(), OwnerUserID: uuid.New(), IsPublished: true}
	out, err := n.Notify(context.Background(), models.PanelChange{ID: 3, ChangeType: models.ChangeCohortChanged},
		[]impact.Classified{{View: view, Impact: models.ImpactWarning}})

	require.NoError(t, err)
	assert.Empty(t, out)
	repo.AssertExpectations(t)
}

func TestNotify_StoreFailureIsReturned(t *testing.T) {
	repo := &mockNotificationRepo{}
	boom := errors.New("connection reset")
	repo.On("CreatePending", mock.Anything, mock.MatchedBy(func(n *models.ViewNotification) bool {
		return n.PanelChangeID != nil && *n.PanelChangeID == 4 && n.Impact == models.ImpactInfo
	})).Return(nil, false, boom).Once()

	n := NewNotifier(repo, zap.NewNop())
	view := models.View{ID: uuid.New(), OwnerUserID: uuid.New(), IsPublished: true}
	_, err := n.Notify(context.Background(), models.PanelChange{ID: 4, ChangeType: models.ChangeColumnAdded},
		[]impact.Classified{{View: view, Impact: models.ImpactInfo}})

	require.ErrorIs(t, err, boom)
	repo.AssertExpectations(t)
}

func TestAlert(t *testing.T) {
	f := newFixture(t)
	n := NewNotifier(f.store.Notifications(), zap.NewNop())
	ctx := context.Background()

	_, err := n.Alert(ctx, *f.v1, "urgent", "x")
	assert.True(t, apperr.IsValidation(err))
	_, err = n.Alert(ctx, *f.v1, models.ImpactInfo, "")
	assert.True(t, apperr.IsValidation(err))

	for i := 0; i < 2; i++ {
		a, err := n.Alert(ctx, *f.v1, models.ImpactWarning, "Source refresh delayed until Monday")
		require.NoError(t, err)
		assert.Nil(t, a.PanelChangeID)
	}
	assert.Len(t, f.inbox(t, f.v1.OwnerUserID), 2)
}

func TestMessage(t *testing.T) {
	v := models.View{Name: "Weekly"}
	age := "age"
	removed := models.PanelChange{ChangeType: models.ChangeColumnRemoved, AffectedColumn: &age}

	assert.Contains(t, Message(removed, v, models.ImpactBreaking), "references it")
	assert.Contains(t, Message(removed, v, models.ImpactInfo), "does not use it")
	assert.Contains(t, Message(models.PanelChange{ChangeType: models.ChangeCohortChanged}, v, models.ImpactWarning), "cohort rule")
	assert.NotEmpty(t, Message(models.PanelChange{ChangeType: "other"}, v, models.ImpactInfo))
}
