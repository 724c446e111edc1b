package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetmetrics/internal/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestFetchDecodesObjectPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rpc/kpi_payload", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "aog_count", req["kpi_key"])
		assert.Equal(t, "1M", req["range"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"latest": {"value": 3}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testLogger())
	raw, err := c.Fetch(context.Background(), "aog_count", models.Range1M)
	require.NoError(t, err)

	obj, ok := raw.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, obj, "latest")
}

func TestFetchPassesThroughNonObjectBody(t *testing.T) {
	// A scalar body is not a transport failure; rejecting it is the
	// normalizer's call.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `42`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testLogger())
	raw, err := c.Fetch(context.Background(), "aog_count", models.Range1D)
	require.NoError(t, err)
	assert.Equal(t, 42.0, raw)
}

func TestFetchWrapsRemoteStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testLogger())
	_, err := c.Fetch(context.Background(), "aog_count", models.Range1M)
	assert.ErrorIs(t, err, models.ErrTransportFailure)
}

func TestFetchWrapsNetworkErrors(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 100*time.Millisecond, testLogger())
	_, err := c.Fetch(context.Background(), "aog_count", models.Range1M)
	assert.ErrorIs(t, err, models.ErrTransportFailure)
}
