package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fleetmetrics/internal/config"
)

func NewRouter(logger *logrus.Logger, cfg config.Config, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	api := r.Group(cfg.API.BasePath)
	{
		// KPI payloads
		api.GET("/kpis/:kpi/payload", h.GetPayload)
		api.POST("/kpis/:kpi/refresh", h.RefreshPayload)

		// Alert rules
		api.POST("/alert-rules", h.CreateAlertRule)
		api.PUT("/alert-rules/:id", h.UpdateAlertRule)
		api.GET("/alert-rules", h.ListAlertRules)

		// Pinned KPIs
		api.POST("/pins", h.CreatePin)
		api.GET("/pins/user/:user_id", h.GetPinsByUserID)
		api.DELETE("/pins/:id", h.DeletePin)
	}

	r.GET("/ws", h.StreamPayloads)
	r.GET("/health", h.Health)

	return r
}
