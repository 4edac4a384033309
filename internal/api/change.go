package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/panelwatch/internal/changes"
	"github.com/lalith-99/panelwatch/internal/dispatch"
	"github.com/lalith-99/panelwatch/internal/models"
	"go.uber.org/zap"
)

// ChangeHandler serves the change ledger of the caller's panels.
type ChangeHandler struct {
	recorder  *changes.Recorder
	processor *dispatch.Processor
	logger    *zap.Logger
}

func NewChangeHandler(recorder *changes.Recorder, processor *dispatch.Processor, logger *zap.Logger) *ChangeHandler {
	return &ChangeHandler{recorder: recorder, processor: processor, logger: logger}
}

// List handles GET /v1/changes?panel_id=&change_type=&since=&limit=&offset=
func (h *ChangeHandler) List(c *gin.Context) {
	limit, offset, err := pageQuery(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	panelID, err := uuidQuery(c, "panel_id")
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
	q := changes.ListQuery{
		TenantID: a.TenantID,
		UserID:   a.UserID,
		PanelID:  panelID,
		Since:    since,
		Limit:    limit,
		Offset:   offset,
	}
	if raw := c.Query("change_type"); raw != "" {
		ct := models.ChangeType(raw)
		q.ChangeType = &ct
	}

	page, err := h.recorder.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get handles GET /v1/changes/:id
func (h *ChangeHandler) Get(c *gin.Context) {
	id, err := changeIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	a := actor(c)
	change, err := h.recorder.Get(c.Request.Context(), a.TenantID, a.UserID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, change)
}

// Replay handles POST /v1/changes/:id/replay. It re-runs classification
// and notification; views that were already notified are not notified
// again.
func (h *ChangeHandler) Replay(c *gin.Context) {
	id, err := changeIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	a := actor(c)
	change, err := h.recorder.Get(c.Request.Context(), a.TenantID, a.UserID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	notes, err := h.processor.ProcessChange(c.Request.Context(), *change)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("change replayed",
		zap.Int64("change_id", change.ID),
		zap.Int("notifications", len(notes)),
	)
	c.JSON(http.StatusOK, gin.H{
		"change_id":     change.ID,
		"notifications": notes,
	})
}
