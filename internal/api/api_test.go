package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/auth"
	"github.com/lalith-99/panelwatch/internal/changes"
	"github.com/lalith-99/panelwatch/internal/dispatch"
	"github.com/lalith-99/panelwatch/internal/impact"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/notify"
	"github.com/lalith-99/panelwatch/internal/panels"
	"github.com/lalith-99/panelwatch/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

type client struct {
	t      *testing.T
	router http.Handler
	token  string
}

func (c client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type harness struct {
	router http.Handler
	owner  client
	viewer client
	anon   client
}

func newServer(t *testing.T, health HealthChecker) *harness {
	t.Helper()
	store := memory.New()
	stores := store.Repositories()
	logger := zap.NewNop()

	recorder := changes.NewRecorder(stores.Panels, stores.Changes, logger)
	notifier := notify.NewNotifier(stores.Notifications, logger)
	processor := dispatch.NewProcessor(stores.Changes, impact.NewClassifier(stores.Views), notifier, logger)
	svc := panels.NewService(stores, recorder, dispatch.NewInline(processor, logger), logger)

	router := NewRouter(Services{
		Panels:    svc,
		Recorder:  recorder,
		Processor: processor,
		Notifier:  notifier,
		Inbox:     notify.NewInbox(stores.Notifications, logger),
		Health:    health,
	}, secret, logger)

	tenant := uuid.New()
	token := func(user uuid.UUID) string {
		tok, err := auth.GenerateToken(user, tenant, secret, time.Hour)
		require.NoError(t, err)
		return tok
	}
	return &harness{
		router: router,
		owner:  client{t: t, router: router, token: token(uuid.New())},
		viewer: client{t: t, router: router, token: token(uuid.New())},
		anon:   client{t: t, router: router},
	}
}

// seed creates a panel with base columns age and name and a published
// view on both, owned by the viewer.
func (h *harness) seed(t *testing.T) (panel models.Panel, view models.View) {
	t.Helper()
	w := h.owner.do(http.MethodPost, "/v1/panels", gin.H{"name": "Heart failure"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	panel = decode[models.Panel](t, w)

	w = h.owner.do(http.MethodPost, "/v1/panels/"+panel.ID.String()+"/data-sources", gin.H{"name": "EHR", "type": "database"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ds := decode[models.DataSource](t, w)

	for _, id := range []string{"age", "name"} {
		w = h.owner.do(http.MethodPost, "/v1/panels/"+panel.ID.String()+"/columns", gin.H{
			"id": id, "kind": "base", "data_type": "text", "data_source_id": ds.ID, "source_field": id,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w = h.viewer.do(http.MethodPost, "/v1/panels/"+panel.ID.String()+"/views", gin.H{
		"name": "V1", "visible_columns": []string{"age", "name"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view = decode[models.View](t, w)

	w = h.viewer.do(http.MethodPost, "/v1/views/"+view.ID.String()+"/publish", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view = decode[models.View](t, w)
	return panel, view
}

func TestHealthAndMetrics(t *testing.T) {
	h := newServer(t, nil)

	w := h.anon.do(http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = h.anon.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "panelwatch_http_requests_total")
}

type downStore struct{}

func (downStore) Health(context.Context) error { return errors.New("connection refused") }

func TestHealth_Unavailable(t *testing.T) {
	h := newServer(t, downStore{})
	w := h.anon.do(http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequiresToken(t *testing.T) {
	h := newServer(t, nil)
	w := h.anon.do(http.MethodGet, "/v1/notifications", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestColumnRemovalFlow(t *testing.T) {
	h := newServer(t, nil)
	panel, view := h.seed(t)

	w := h.owner.do(http.MethodDelete, "/v1/panels/"+panel.ID.String()+"/columns/age", nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = h.viewer.do(http.MethodGet, "/v1/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[notify.Page](t, w)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.UnreadCount)
	assert.Equal(t, 20, page.Limit, "default limit")
	require.Len(t, page.Notifications, 1)
	note := page.Notifications[0]
	assert.Equal(t, view.ID, note.ViewID)
	assert.Equal(t, models.ImpactBreaking, note.Impact)

	w = h.owner.do(http.MethodGet, "/v1/changes?change_type=column_removed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	changePage := decode[changes.Page](t, w)
	require.Equal(t, 1, changePage.Total)
	changeID := changePage.Changes[0].ID

	w = h.owner.do(http.MethodPost, fmt.Sprintf("/v1/changes/%d/replay", changeID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	replay := decode[struct {
		ChangeID      int64                     `json:"change_id"`
		Notifications []models.ViewNotification `json:"notifications"`
	}](t, w)
	require.Len(t, replay.Notifications, 1)
	assert.Equal(t, note.ID, replay.Notifications[0].ID, "replay does not duplicate")

	w = h.viewer.do(http.MethodPost, fmt.Sprintf("/v1/changes/%d/replay", changeID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "changes of other owners are hidden")

	w = h.viewer.do(http.MethodPost, "/v1/notifications/mark-read", gin.H{"ids": []uuid.UUID{note.ID}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":1}`, w.Body.String())

	w = h.viewer.do(http.MethodGet, "/v1/notifications?is_read=false", nil)
	page = decode[notify.Page](t, w)
	assert.Zero(t, page.Total)
	assert.Zero(t, page.UnreadCount)

	w = h.viewer.do(http.MethodGet, "/v1/notifications?is_read=", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[notify.Page](t, w)
	assert.Equal(t, 1, page.Total, "an empty filter value lists everything")

	w = h.viewer.do(http.MethodPost, "/v1/notifications/"+note.ID.String()+"/resolve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusResolved, decode[models.ViewNotification](t, w).Status)

	w = h.viewer.do(http.MethodPost, "/v1/notifications/"+note.ID.String()+"/acknowledge", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "resolved is terminal")
}

func TestErrorResponses(t *testing.T) {
	h := newServer(t, nil)
	panel, view := h.seed(t)
	p := "/v1/panels/" + panel.ID.String()

	tests := []struct {
		name   string
		c      client
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad uuid", h.owner, http.MethodGet, "/v1/panels/nope", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown panel", h.owner, http.MethodGet, "/v1/panels/" + uuid.NewString(), nil, http.StatusNotFound, "NOT_FOUND"},
		{"duplicate column", h.owner, http.MethodPost, p + "/columns", gin.H{"id": "bmi", "kind": "calculated", "formula": "age + 1"}, http.StatusCreated, ""},
		{"duplicate column again", h.owner, http.MethodPost, p + "/columns", gin.H{"id": "bmi", "kind": "calculated", "formula": "age + 2"}, http.StatusConflict, "CONFLICT"},
		{"non-owner mutation", h.viewer, http.MethodPut, p + "/cohort-rule", gin.H{"logic": "OR"}, http.StatusNotFound, "NOT_FOUND"},
		{"bad cohort logic", h.owner, http.MethodPut, p + "/cohort-rule", gin.H{"logic": "XOR"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed body", h.owner, http.MethodPost, "/v1/panels", "{", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad limit", h.viewer, http.MethodGet, "/v1/notifications?limit=ten", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative offset", h.viewer, http.MethodGet, "/v1/notifications?offset=-1", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown impact filter", h.viewer, http.MethodGet, "/v1/notifications?impact=critical", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad since", h.owner, http.MethodGet, "/v1/changes?since=yesterday", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad change id", h.owner, http.MethodGet, "/v1/changes/0", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown change", h.owner, http.MethodGet, "/v1/changes/999", nil, http.StatusNotFound, "NOT_FOUND"},
		{"publish someone else's view", h.owner, http.MethodPost, "/v1/views/" + view.ID.String() + "/publish", nil, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.c.do(tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decode[map[string]string](t, w)["code"])
			}
		})
	}
}

func TestAlert(t *testing.T) {
	h := newServer(t, nil)
	_, view := h.seed(t)
	path := "/v1/views/" + view.ID.String() + "/alerts"

	w := h.owner.do(http.MethodPost, path, gin.H{"impact": "warning", "message": "source outage tonight"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	n := decode[models.ViewNotification](t, w)
	assert.Nil(t, n.PanelChangeID)

	w = h.owner.do(http.MethodPost, path, gin.H{"impact": "critical", "message": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.viewer.do(http.MethodGet, "/v1/notifications/"+n.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "source outage tonight", decode[models.ViewNotification](t, w).Message)
}
