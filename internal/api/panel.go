package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/panels"
	"go.uber.org/zap"
)

// PanelHandler serves panels and their columns and data sources.
type PanelHandler struct {
	svc    *panels.Service
	logger *zap.Logger
}

func NewPanelHandler(svc *panels.Service, logger *zap.Logger) *PanelHandler {
	return &PanelHandler{svc: svc, logger: logger}
}

// Create handles POST /v1/panels
func (h *PanelHandler) Create(c *gin.Context) {
	var req panels.PanelInput
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	p, err := h.svc.CreatePanel(c.Request.Context(), actor(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Get handles GET /v1/panels/:id
func (h *PanelHandler) Get(c *gin.Context) {
	panelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	p, err := h.svc.GetPanel(c.Request.Context(), actor(c), panelID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete handles DELETE /v1/panels/:id
func (h *PanelHandler) Delete(c *gin.Context) {
	panelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.svc.DeletePanel(c.Request.Context(), actor(c), panelID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateCohortRule handles PUT /v1/panels/:id/cohort-rule
func (h *PanelHandler) UpdateCohortRule(c *gin.Context) {
	panelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var rule models.CohortRule
	if err := bindJSON(c, &rule); err != nil {
		respondError(c, h.logger, err)
		return
	}

	p, err := h.svc.UpdateCohortRule(c.Request.Context(), actor(c), panelID, rule)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListColumns handles GET /v1/panels/:id/columns
func (h *PanelHandler) ListColumns(c *gin.Context) {
	panelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	cols, err := h.svc.ListColumns(c.Request.Context(), actor(c), panelID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": cols})
}

// AddColumn handles POST /v1/panels/:id/columns
func (h *PanelHandler) AddColumn(c *gin.Context) {
	panelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req panels.ColumnInput
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	col, err := h.svc.AddColumn(c.Request.Context(), actor(c), panelID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, col)
}

// UpdateColumn handles PUT /v1/panels/:id/columns/:column_id
func (h *PanelHandler) UpdateColumn(c *gin.Context) {
	panelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req panels.ColumnInput
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	col, err := h.svc.UpdateColumn(c.Request.Context(), actor(c), panelID, c.Param("column_id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, col)
}

// RemoveColumn handles DELETE /v1/panels/:id/columns/:column_id
func (h *PanelHandler) RemoveColumn(c *gin.Context) {
	panelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.svc.RemoveColumn(c.Request.Context(), actor(c), panelID, c.Param("column_id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateDataSource handles POST /v1/panels/:id/data-sources
func (h *PanelHandler) CreateDataSource(c *gin.Context) {
	panelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req panels.DataSourceInput
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	ds, err := h.svc.CreateDataSource(c.Request.Context(), actor(c), panelID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, ds)
}

// GetDataSource handles GET /v1/data-sources/:id
func (h *PanelHandler) GetDataSource(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ds, err := h.svc.GetDataSource(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ds)
}

// UpdateDataSource handles PUT /v1/data-sources/:id
func (h *PanelHandler) UpdateDataSource(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req panels.DataSourceInput
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	ds, err := h.svc.UpdateDataSource(c.Request.Context(), actor(c), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ds)
}
