// Package api is the HTTP layer: gin handlers that parse requests, call
// the services and render their results. Handlers hold no domain logic.
package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/middleware"
	"github.com/lalith-99/panelwatch/internal/pagination"
	"github.com/lalith-99/panelwatch/internal/panels"
	"go.uber.org/zap"
)

// actor is the authenticated caller of the request.
func actor(c *gin.Context) panels.Actor {
	return panels.Actor{
		TenantID: middleware.GetTenantID(c),
		UserID:   middleware.GetUserID(c),
	}
}

// respondError renders err as {"code","message"} with the status of its
// type. Unexpected errors are logged and masked.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.JSON(status, apperr.ToResponse(err))
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.NewValidationError("body", err.Error())
	}
	return nil
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.NewValidationError(name, "must be a UUID")
	}
	return id, nil
}

func changeIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

// pageQuery reads limit and offset. A missing limit is DefaultLimit; out
// of range limits are clamped later by pagination.Normalize.
func pageQuery(c *gin.Context) (limit, offset int, err error) {
	limit = pagination.DefaultLimit
	if raw, ok := c.GetQuery("limit"); ok {
		if limit, err = strconv.Atoi(raw); err != nil {
			return 0, 0, apperr.NewValidationError("limit", "must be an integer")
		}
	}
	if raw, ok := c.GetQuery("offset"); ok {
		if offset, err = strconv.Atoi(raw); err != nil {
			return 0, 0, apperr.NewValidationError("offset", "must be an integer")
		}
	}
	return limit, offset, nil
}

// The optional filters below return nil when the parameter is absent or
// empty, so "?is_read=" lists everything like omitting it does. A nil
// pointer is "no filter"; is_read=false is a real filter and must stay
// distinguishable from it. Malformed values are rejected rather than
// ignored so a typo does not silently widen the result.
func uuidQuery(c *gin.Context, name string) (*uuid.UUID, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.NewValidationError(name, "must be a UUID")
	}
	return &id, nil
}

func timeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.NewValidationError(name, "must be an RFC 3339 timestamp")
	}
	return &t, nil
}

func boolQuery(c *gin.Context, name string) (*bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.NewValidationError(name, "must be true or false")
	}
	return &b, nil
}
