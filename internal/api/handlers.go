package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fleetmetrics/internal/alerts"
	"fleetmetrics/internal/cache"
	"fleetmetrics/internal/cooldown"
	"fleetmetrics/internal/db"
	"fleetmetrics/internal/models"
	"fleetmetrics/internal/stream"
)

type Handler struct {
	db     *db.DB
	rules  *alerts.Manager
	coord  *cache.Coordinator
	hub    *stream.Hub
	logger *logrus.Logger

	cooldownWindow time.Duration
	mu             sync.Mutex
	cooldowns      map[string]*cooldown.Controller

	upgrader websocket.Upgrader
}

func NewHandler(db *db.DB, rules *alerts.Manager, coord *cache.Coordinator, hub *stream.Hub, logger *logrus.Logger, cooldownWindow time.Duration) *Handler {
	return &Handler{
		db:             db,
		rules:          rules,
		coord:          coord,
		hub:            hub,
		logger:         logger,
		cooldownWindow: cooldownWindow,
		cooldowns:      make(map[string]*cooldown.Controller),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type payloadResponse struct {
	KPIKey    string              `json:"kpi_key"`
	Range     string              `json:"range"`
	Payload   *models.SafePayload `json:"payload"`
	FetchedAt time.Time           `json:"fetched_at"`
	Stale     bool                `json:"stale"`
	Error     string              `json:"error,omitempty"`
}

// GetPayload serves a normalized payload through the coordinator: fresh
// cache answers immediately, otherwise the request waits for the shared
// fetch to settle. A failed fetch still answers with the last good payload
// flagged stale.
func (h *Handler) GetPayload(c *gin.Context) {
	key, ok := h.parseKey(c)
	if !ok {
		return
	}

	sub := h.coord.Subscribe(key)
	defer sub.Close()

	ctx := c.Request.Context()
	for {
		select {
		case snap := <-sub.Updates():
			if snap.Loading || snap.Validating {
				continue
			}
			resp := payloadResponse{
				KPIKey:    key.KPI,
				Range:     string(key.Range),
				Payload:   snap.Payload,
				FetchedAt: snap.FetchedAt,
				Stale:     snap.Err != nil,
			}
			if snap.Err != nil {
				resp.Error = snap.Err.Error()
			}
			if snap.Payload == nil && snap.Err != nil {
				c.JSON(http.StatusBadGateway, resp)
				return
			}
			c.JSON(http.StatusOK, resp)
			return
		case <-ctx.Done():
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "payload fetch timed out"})
			return
		}
	}
}

// RefreshPayload forces a fetch for a widget's current key, throttled by the
// widget's own cooldown controller.
func (h *Handler) RefreshPayload(c *gin.Context) {
	key, ok := h.parseKey(c)
	if !ok {
		return
	}
	widgetID := c.Query("widget_id")
	if widgetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "widget_id is required"})
		return
	}

	ctrl := h.controllerFor(widgetID)
	err := ctrl.Sync(c.Request.Context(), func(ctx context.Context) error {
		return h.coord.Refresh(ctx, key)
	})

	var rejected *cooldown.RejectedError
	if errors.As(err, &rejected) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":               rejected.Error(),
			"retry_after_seconds": int(rejected.Remaining.Seconds() + 0.5),
		})
		return
	}
	if err != nil {
		h.logger.Errorf("Refresh for %s failed: %v", key, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "refresh failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

func (h *Handler) controllerFor(widgetID string) *cooldown.Controller {
	h.mu.Lock()
	defer h.mu.Unlock()
	ctrl, ok := h.cooldowns[widgetID]
	if !ok {
		ctrl = cooldown.New(h.cooldownWindow)
		h.cooldowns[widgetID] = ctrl
	}
	return ctrl
}

func (h *Handler) CreateAlertRule(c *gin.Context) {
	var in models.AlertRuleCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Errorf("Invalid request body for alert rule: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	rule, err := h.rules.Create(c.Request.Context(), in)
	if err != nil {
		h.respondRuleError(c, err)
		return
	}

	h.logger.Infof("Created alert rule: %s", rule.ID)
	c.JSON(http.StatusCreated, rule)
}

func (h *Handler) UpdateAlertRule(c *gin.Context) {
	id := c.Param("id")
	var patch models.AlertRulePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.logger.Errorf("Invalid request body for alert rule %s: %v", id, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	rule, err := h.rules.Update(c.Request.Context(), id, patch)
	if err != nil {
		h.respondRuleError(c, err)
		return
	}

	h.logger.Infof("Updated alert rule: %s", rule.ID)
	c.JSON(http.StatusOK, rule)
}

func (h *Handler) ListAlertRules(c *gin.Context) {
	kpi := c.Query("kpi")
	dashboardID := c.Query("dashboard_id")
	if kpi == "" || dashboardID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kpi and dashboard_id are required"})
		return
	}

	rules, err := h.rules.List(c.Request.Context(), kpi, dashboardID)
	if err != nil {
		h.logger.Errorf("Failed to list alert rules for kpi=%s: %v", kpi, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alert rules"})
		return
	}
	if rules == nil {
		rules = []models.AlertRule{}
	}
	c.JSON(http.StatusOK, rules)
}

func (h *Handler) respondRuleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidThreshold):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "invalid_threshold"})
	case errors.Is(err, models.ErrNoNotificationChannel):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "no_notification_channel"})
	case errors.Is(err, models.ErrRuleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert rule not found"})
	default:
		h.logger.Errorf("Alert rule operation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Alert rule operation failed"})
	}
}

func (h *Handler) CreatePin(c *gin.Context) {
	var in models.PinnedKPICreate
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Errorf("Invalid request body for pin: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	pin := models.PinnedKPI{
		ID:          uuid.New().String(),
		UserID:      in.UserID,
		KPIKey:      in.KPIKey,
		DashboardID: in.DashboardID,
		CreatedAt:   time.Now(),
	}
	if err := h.db.CreatePin(c.Request.Context(), pin); err != nil {
		h.logger.Errorf("Failed to create pin: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create pin"})
		return
	}

	h.logger.Infof("Created pin: %s", pin.ID)
	c.JSON(http.StatusCreated, pin)
}

func (h *Handler) GetPinsByUserID(c *gin.Context) {
	userIDStr := c.Param("user_id")
	userID, err := strconv.Atoi(userIDStr)
	if err != nil {
		h.logger.Errorf("Invalid user_id %s: %v", userIDStr, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
		return
	}

	pins, err := h.db.GetPinsByUserID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Errorf("Failed to get pins for user_id %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get pins"})
		return
	}
	if pins == nil {
		pins = []models.PinnedKPI{}
	}
	c.JSON(http.StatusOK, pins)
}

func (h *Handler) DeletePin(c *gin.Context) {
	id := c.Param("id")
	if err := h.db.DeletePin(c.Request.Context(), id); err != nil {
		h.logger.Errorf("Failed to delete pin %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete pin"})
		return
	}
	c.Status(http.StatusNoContent)
}

// StreamPayloads upgrades the connection and feeds it snapshots for one key
// through the hub until the client goes away.
func (h *Handler) StreamPayloads(c *gin.Context) {
	key, ok := h.parseKey(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	h.hub.Join(key, conn)
	defer h.hub.Leave(key, conn)
	defer conn.Close()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) parseKey(c *gin.Context) (models.Key, bool) {
	kpi := c.Param("kpi")
	if kpi == "" {
		kpi = c.Query("kpi")
	}
	if kpi == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kpi is required"})
		return models.Key{}, false
	}
	r, err := models.ParseRange(c.Query("range"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.Key{}, false
	}
	return models.Key{KPI: kpi, Range: r}, true
}
