package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetmetrics/internal/cache"
	"fleetmetrics/internal/models"
)

func TestHubPushesSnapshotsToWatchers(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	fetch := func(ctx context.Context, kpi string, r models.Range) (interface{}, error) {
		return map[string]interface{}{"latest": map[string]interface{}{"value": 42.0}}, nil
	}
	coord := cache.New(fetch, logger, cache.Options{Freshness: time.Minute})
	defer coord.Close()

	hub := NewHub(coord, logger)
	key := models.Key{KPI: "aog_count", Range: models.Range1M}

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Join(key, conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Read pushed snapshots until the fetch settles.
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			KPIKey     string              `json:"kpi_key"`
			Range      string              `json:"range"`
			Payload    *models.SafePayload `json:"payload"`
			Validating bool                `json:"validating"`
			Stale      bool                `json:"stale"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "aog_count", msg.KPIKey)
		assert.Equal(t, "1M", msg.Range)
		if msg.Validating {
			continue
		}
		require.NotNil(t, msg.Payload)
		assert.Equal(t, 42.0, msg.Payload.Latest)
		assert.False(t, msg.Stale)
		return
	}
}
