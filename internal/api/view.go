package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/notify"
	"github.com/lalith-99/panelwatch/internal/panels"
	"go.uber.org/zap"
)

type ViewHandler struct {
	svc      *panels.Service
	notifier *notify.Notifier
	logger   *zap.Logger
}

func NewViewHandler(svc *panels.Service, notifier *notify.Notifier, logger *zap.Logger) *ViewHandler {
	return &ViewHandler{svc: svc, notifier: notifier, logger: logger}
}

// Create handles POST /v1/panels/:id/views
func (h *ViewHandler) Create(c *gin.Context) {
	panelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req panels.ViewInput
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	v, err := h.svc.CreateView(c.Request.Context(), actor(c), panelID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// Get handles GET /v1/views/:id
func (h *ViewHandler) Get(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	v, err := h.svc.GetView(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Publish handles POST /v1/views/:id/publish
func (h *ViewHandler) Publish(c *gin.Context) {
	h.setPublished(c, true)
}

// Unpublish handles POST /v1/views/:id/unpublish
func (h *ViewHandler) Unpublish(c *gin.Context) {
	h.setPublished(c, false)
}

func (h *ViewHandler) setPublished(c *gin.Context, published bool) {
	id, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var v *models.View
	if published {
		v, err = h.svc.PublishView(c.Request.Context(), actor(c), id)
	} else {
		v, err = h.svc.UnpublishView(c.Request.Context(), actor(c), id)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Delete handles DELETE /v1/views/:id
func (h *ViewHandler) Delete(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.svc.DeleteView(c.Request.Context(), actor(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type alertRequest struct {
	Impact  models.ImpactLevel `json:"impact" binding:"required"`
	Message string             `json:"message" binding:"required"`
}

// Alert handles POST /v1/views/:id/alerts. Any member of the tenant can
// raise a manual alert; it is delivered to the view's owner.
func (h *ViewHandler) Alert(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req alertRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	v, err := h.svc.GetView(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	n, err := h.notifier.Alert(c.Request.Context(), *v, req.Impact, req.Message)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}
