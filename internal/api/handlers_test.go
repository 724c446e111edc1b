package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetmetrics/internal/alerts"
	"fleetmetrics/internal/cache"
	"fleetmetrics/internal/config"
	"fleetmetrics/internal/models"
	"fleetmetrics/internal/stream"
)

type memRuleStore struct {
	mu    sync.Mutex
	rules []models.AlertRule
}

func (s *memRuleStore) Insert(ctx context.Context, rule models.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule)
	return nil
}

func (s *memRuleStore) Update(ctx context.Context, rule models.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == rule.ID {
			s.rules[i] = rule
			return nil
		}
	}
	return models.ErrRuleNotFound
}

func (s *memRuleStore) GetByID(ctx context.Context, id string) (models.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return models.AlertRule{}, models.ErrRuleNotFound
}

func (s *memRuleStore) ListByKPI(ctx context.Context, kpiKey, dashboardID string) ([]models.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AlertRule
	for _, r := range s.rules {
		if r.KPIKey == kpiKey && r.DashboardID == dashboardID {
			out = append(out, r)
		}
	}
	return out, nil
}

func testRouter(t *testing.T, fetch cache.FetchFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	coord := cache.New(fetch, logger, cache.Options{
		Freshness:  time.Minute,
		RetryMax:   1,
		RetryDelay: time.Millisecond,
	})
	t.Cleanup(coord.Close)

	hub := stream.NewHub(coord, logger)
	rules := alerts.NewManager(&memRuleStore{}, logger)
	h := NewHandler(nil, rules, coord, hub, logger, time.Second)

	var cfg config.Config
	cfg.API.BasePath = "/api/v0"
	return NewRouter(logger, cfg, h)
}

func okFetch(ctx context.Context, kpi string, r models.Range) (interface{}, error) {
	return map[string]interface{}{
		"timeseries": []interface{}{map[string]interface{}{"value": "42"}},
		"meta":       map[string]interface{}{"unit": "aircraft"},
	}, nil
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetPayload(t *testing.T) {
	r := testRouter(t, okFetch)

	w := doJSON(r, http.MethodGet, "/api/v0/kpis/aog_count/payload?range=1M", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		KPIKey  string              `json:"kpi_key"`
		Range   string              `json:"range"`
		Payload *models.SafePayload `json:"payload"`
		Stale   bool                `json:"stale"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "aog_count", resp.KPIKey)
	assert.Equal(t, "1M", resp.Range)
	require.NotNil(t, resp.Payload)
	assert.Equal(t, 42.0, resp.Payload.Latest)
	assert.Equal(t, "aircraft", resp.Payload.Meta.Unit)
	assert.False(t, resp.Stale)
}

func TestGetPayloadRejectsBadRange(t *testing.T) {
	r := testRouter(t, okFetch)
	w := doJSON(r, http.MethodGet, "/api/v0/kpis/aog_count/payload?range=99X", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshCooldown(t *testing.T) {
	r := testRouter(t, okFetch)

	first := doJSON(r, http.MethodPost, "/api/v0/kpis/aog_count/refresh?range=1M&widget_id=w1", "")
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(r, http.MethodPost, "/api/v0/kpis/aog_count/refresh?range=1M&widget_id=w1", "")
	require.Equal(t, http.StatusTooManyRequests, second.Code)

	var resp struct {
		RetryAfterSeconds int `json:"retry_after_seconds"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.GreaterOrEqual(t, resp.RetryAfterSeconds, 0)

	// A different widget is not throttled by this one's cooldown.
	other := doJSON(r, http.MethodPost, "/api/v0/kpis/aog_count/refresh?range=1M&widget_id=w2", "")
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestRefreshRequiresWidgetID(t *testing.T) {
	r := testRouter(t, okFetch)
	w := doJSON(r, http.MethodPost, "/api/v0/kpis/aog_count/refresh?range=1M", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAlertRuleValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "unparseable threshold",
			body:     `{"kpi_key": "aog_count", "dashboard_id": "d1", "operator": "gt", "threshold": "abc", "notify_in_app": true}`,
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "invalid_threshold",
		},
		{
			name:     "no channel",
			body:     `{"kpi_key": "aog_count", "dashboard_id": "d1", "operator": "gt", "threshold": 5}`,
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "no_notification_channel",
		},
		{
			name:     "missing kpi_key",
			body:     `{"dashboard_id": "d1", "operator": "gt", "threshold": 5, "notify_in_app": true}`,
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRouter(t, okFetch)
			w := doJSON(r, http.MethodPost, "/api/v0/alert-rules", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantErr != "" {
				assert.Contains(t, w.Body.String(), tt.wantErr)
			}
		})
	}
}

func TestAlertRuleLifecycle(t *testing.T) {
	r := testRouter(t, okFetch)

	created := doJSON(r, http.MethodPost, "/api/v0/alert-rules",
		`{"kpi_key": "aog_count", "dashboard_id": "d1", "operator": "gt", "threshold": "5", "notify_in_app": true, "frequency": "hourly"}`)
	require.Equal(t, http.StatusCreated, created.Code)

	var rule models.AlertRule
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &rule))
	assert.True(t, rule.IsActive)
	assert.Equal(t, 5.0, rule.Threshold)

	updated := doJSON(r, http.MethodPut, "/api/v0/alert-rules/"+rule.ID,
		`{"threshold": 9, "kpi_key": "ignored"}`)
	require.Equal(t, http.StatusOK, updated.Code)

	var after models.AlertRule
	require.NoError(t, json.Unmarshal(updated.Body.Bytes(), &after))
	assert.Equal(t, 9.0, after.Threshold)
	assert.Equal(t, "aog_count", after.KPIKey)

	listed := doJSON(r, http.MethodGet, "/api/v0/alert-rules?kpi=aog_count&dashboard_id=d1", "")
	require.Equal(t, http.StatusOK, listed.Code)
	var rules []models.AlertRule
	require.NoError(t, json.Unmarshal(listed.Body.Bytes(), &rules))
	require.Len(t, rules, 1)
	assert.Equal(t, after.Threshold, rules[0].Threshold)
}

func TestUpdateUnknownAlertRule(t *testing.T) {
	r := testRouter(t, okFetch)
	w := doJSON(r, http.MethodPut, "/api/v0/alert-rules/missing", `{"threshold": 1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAlertRulesRequiresScope(t *testing.T) {
	r := testRouter(t, okFetch)
	w := doJSON(r, http.MethodGet, "/api/v0/alert-rules?kpi=aog_count", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	r := testRouter(t, okFetch)
	w := doJSON(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
