package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/panelwatch/internal/changes"
	"github.com/lalith-99/panelwatch/internal/dispatch"
	"github.com/lalith-99/panelwatch/internal/middleware"
	"github.com/lalith-99/panelwatch/internal/notify"
	"github.com/lalith-99/panelwatch/internal/panels"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Services is everything the router needs. Health may be nil.
type Services struct {
	Panels    *panels.Service
	Recorder  *changes.Recorder
	Processor *dispatch.Processor
	Notifier  *notify.Notifier
	Inbox     *notify.Inbox
	Health    HealthChecker
}

// NewRouter builds the gin engine. /v1/health and /metrics are public;
// every other /v1 route requires a bearer token signed with jwtSecret.
func NewRouter(svc Services, jwtSecret string, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.Metrics())

	r.GET("/v1/health", health(svc.Health))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	panelH := NewPanelHandler(svc.Panels, logger)
	viewH := NewViewHandler(svc.Panels, svc.Notifier, logger)
	changeH := NewChangeHandler(svc.Recorder, svc.Processor, logger)
	notifH := NewNotificationHandler(svc.Inbox, logger)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtSecret))

	v1.POST("/panels", panelH.Create)
	v1.GET("/panels/:id", panelH.Get)
	v1.DELETE("/panels/:id", panelH.Delete)
	v1.PUT("/panels/:id/cohort-rule", panelH.UpdateCohortRule)
	v1.GET("/panels/:id/columns", panelH.ListColumns)
	v1.POST("/panels/:id/columns", panelH.AddColumn)
	v1.PUT("/panels/:id/columns/:column_id", panelH.UpdateColumn)
	v1.DELETE("/panels/:id/columns/:column_id", panelH.RemoveColumn)
	v1.POST("/panels/:id/data-sources", panelH.CreateDataSource)
	v1.POST("/panels/:id/views", viewH.Create)

	v1.GET("/data-sources/:id", panelH.GetDataSource)
	v1.PUT("/data-sources/:id", panelH.UpdateDataSource)

	v1.GET("/views/:id", viewH.Get)
	v1.DELETE("/views/:id", viewH.Delete)
	v1.POST("/views/:id/publish", viewH.Publish)
	v1.POST("/views/:id/unpublish", viewH.Unpublish)
	v1.POST("/views/:id/alerts", viewH.Alert)

	v1.GET("/changes", changeH.List)
	v1.GET("/changes/:id", changeH.Get)
	v1.POST("/changes/:id/replay", changeH.Replay)

	v1.GET("/notifications", notifH.List)
	v1.POST("/notifications/mark-read", notifH.MarkRead)
	v1.POST("/notifications/resolve", notifH.ResolveMany)
	v1.GET("/notifications/:id", notifH.Get)
	v1.POST("/notifications/:id/acknowledge", notifH.Acknowledge)
	v1.POST("/notifications/:id/resolve", notifH.Resolve)

	return r
}

func health(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
