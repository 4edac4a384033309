package changes

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*Recorder, *memory.Store, *models.Panel) {
	t.Helper()
	store := memory.New()
	p, err := store.Panels().Create(context.Background(), &models.Panel{
		TenantID: uuid.New(),
		UserID:   uuid.New(),
		Name:     "Heart failure",
	})
	require.NoError(t, err)
	return NewRecorder(store.Panels(), store.Changes(), zap.NewNop()), store, p
}

func col(id string) *string { return &id }

func TestRecordChange_Valid(t *testing.T) {
	r, _, p := setup(t)

	change, err := r.RecordChange(context.Background(), ChangeInput{
		PanelID:        p.ID,
		Type:           models.ChangeColumnRemoved,
		AffectedColumn: col("age"),
		Before:         map[string]any{"id": "age", "kind": "base"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), change.ID)
	assert.Equal(t, p.TenantID, change.TenantID)
	assert.Equal(t, p.UserID, change.UserID)
	assert.Equal(t, "age", change.AffectedColumnID())
	assert.JSONEq(t, `{"id":"age","kind":"base"}`, string(change.Details.Before))
	assert.Nil(t, change.Details.After)
}

func TestRecordChange_Validation(t *testing.T) {
	r, _, p := setup(t)

	tests := []struct {
		name string
		in   ChangeInput
	}{
		{"unknown type", ChangeInput{PanelID: p.ID, Type: "column_renamed", AffectedColumn: col("age")}},
		{"column kind without column", ChangeInput{PanelID: p.ID, Type: models.ChangeColumnAdded}},
		{"column kind with empty column", ChangeInput{PanelID: p.ID, Type: models.ChangeColumnModified, AffectedColumn: col("")}},
		{"source change with column", ChangeInput{PanelID: p.ID, Type: models.ChangeSourceChanged, AffectedColumn: col("age")}},
		{"cohort change with column", ChangeInput{PanelID: p.ID, Type: models.ChangeCohortChanged, AffectedColumn: col("age")}},
		{"invalid raw json", ChangeInput{PanelID: p.ID, Type: models.ChangeCohortChanged, After: json.RawMessage(`{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.RecordChange(context.Background(), tt.in)
			assert.True(t, apperr.IsValidation(err), "got %v", err)
		})
	}

	page, err := r.List(context.Background(), ListQuery{TenantID: p.TenantID, UserID: p.UserID, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, page.Total, "rejected changes leave nothing behind")
}

func TestRecordChange_UnknownPanel(t *testing.T) {
	r, _, _ := setup(t)

	_, err := r.RecordChange(context.Background(), ChangeInput{PanelID: uuid.New(), Type: models.ChangeCohortChanged})
	assert.True(t, apperr.IsNotFound(err))
}

func TestRecordChange_AppendOnlyOrder(t *testing.T) {
	r, _, p := setup(t)
	ctx := context.Background()

	for _, ct := range []models.ChangeType{models.ChangeSourceChanged, models.ChangeCohortChanged, models.ChangeSourceChanged} {
		_, err := r.RecordChange(ctx, ChangeInput{PanelID: p.ID, Type: ct})
		require.NoError(t, err)
	}

	page, err := r.List(ctx, ListQuery{TenantID: p.TenantID, UserID: p.UserID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Changes, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{page.Changes[0].ID, page.Changes[1].ID, page.Changes[2].ID})

	source := models.ChangeSourceChanged
	page, err = r.List(ctx, ListQuery{TenantID: p.TenantID, UserID: p.UserID, ChangeType: &source, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestList_Pagination(t *testing.T) {
	r, _, p := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.RecordChange(ctx, ChangeInput{PanelID: p.ID, Type: models.ChangeCohortChanged})
		require.NoError(t, err)
	}

	page, err := r.List(ctx, ListQuery{TenantID: p.TenantID, UserID: p.UserID, Limit: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Limit)
	assert.Len(t, page.Changes, 1)
	assert.True(t, page.HasMore)

	page, err = r.List(ctx, ListQuery{TenantID: p.TenantID, UserID: p.UserID, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.Len(t, page.Changes, 3)
	assert.False(t, page.HasMore)

	_, err = r.List(ctx, ListQuery{TenantID: p.TenantID, UserID: p.UserID, Limit: 10, Offset: -1})
	assert.True(t, apperr.IsValidation(err))

	bogus := models.ChangeType("nope")
	_, err = r.List(ctx, ListQuery{TenantID: p.TenantID, UserID: p.UserID, ChangeType: &bogus, Limit: 10})
	assert.True(t, apperr.IsValidation(err))
}

func TestGet_ScopedToOwner(t *testing.T) {
	r, _, p := setup(t)
	ctx := context.Background()

	change, err := r.RecordChange(ctx, ChangeInput{PanelID: p.ID, Type: models.ChangeCohortChanged})
	require.NoError(t, err)

	got, err := r.Get(ctx, p.TenantID, p.UserID, change.ID)
	require.NoError(t, err)
	assert.Equal(t, change.ID, got.ID)

	_, err = r.Get(ctx, p.TenantID, uuid.New(), change.ID)
	assert.True(t, apperr.IsNotFound(err))

	_, err = r.Get(ctx, p.TenantID, p.UserID, 999)
	assert.True(t, apperr.IsNotFound(err))
}

func TestRecordChange_SurvivesPanelDeletion(t *testing.T) {
	r, store, p := setup(t)
	ctx := context.Background()

	_, err := r.RecordChange(ctx, ChangeInput{PanelID: p.ID, Type: models.ChangeCohortChanged})
	require.NoError(t, err)

	deleted, err := store.Panels().Delete(ctx, p.TenantID, p.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	page, err := r.List(ctx, ListQuery{TenantID: p.TenantID, UserID: p.UserID, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}
