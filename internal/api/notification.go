package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/notify"
	"go.uber.org/zap"
)

// NotificationHandler serves the caller's notification inbox.
type NotificationHandler struct {
	inbox  *notify.Inbox
	logger *zap.Logger
}

func NewNotificationHandler(inbox *notify.Inbox, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{inbox: inbox, logger: logger}
}

// List handles GET /v1/notifications?is_read=&impact=&since=&limit=&offset=
func (h *NotificationHandler) List(c *gin.Context) {
	limit, offset, err := pageQuery(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	isRead, err := boolQuery(c, "is_read")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	since, err := timeQuery(c, "since")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	a := actor(c)
	q := notify.ListQuery{
		TenantID: a.TenantID,
		UserID:   a.UserID,
		IsRead:   isRead,
		Since:    since,
		Limit:    limit,
		Offset:   offset,
	}
	// impact is checked against the known levels by the inbox
	if raw := c.Query("impact"); raw != "" {
		level := models.ImpactLevel(raw)
		q.Impact = &level
	}

	page, err := h.inbox.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get handles GET /v1/notifications/:id
func (h *NotificationHandler) Get(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	a := actor(c)
	n, err := h.inbox.Get(c.Request.Context(), a.TenantID, a.UserID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

type idsRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

type bulkFunc func(ctx context.Context, tenantID, userID uuid.UUID, ids []uuid.UUID) (int, error)

// MarkRead handles POST /v1/notifications/mark-read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.bulk(c, h.inbox.MarkRead)
}

// ResolveMany handles POST /v1/notifications/resolve
func (h *NotificationHandler) ResolveMany(c *gin.Context) {
	h.bulk(c, h.inbox.ResolveMany)
}

func (h *NotificationHandler) bulk(c *gin.Context, fn bulkFunc) {
	var req idsRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	a := actor(c)
	updated, err := fn(c.Request.Context(), a.TenantID, a.UserID, req.IDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// Acknowledge handles POST /v1/notifications/:id/acknowledge
func (h *NotificationHandler) Acknowledge(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	a := actor(c)
	n, err := h.inbox.Acknowledge(c.Request.Context(), a.TenantID, a.UserID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// Resolve handles POST /v1/notifications/:id/resolve
func (h *NotificationHandler) Resolve(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	a := actor(c)
	n, err := h.inbox.Resolve(c.Request.Context(), a.TenantID, a.UserID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, n)
}
