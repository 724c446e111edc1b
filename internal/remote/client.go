package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"fleetmetrics/internal/models"
)

// Client calls the fleet data service's payload RPC. The response body is
// decoded as loosely as possible; shape repair is the normalizer's job.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Logger
}

// NewClient constructs a Client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type fetchRequest struct {
	KPIKey string `json:"kpi_key"`
	Range  string `json:"range"`
}

// Fetch retrieves the raw payload for one (kpi, range). Transport and
// remote-status errors wrap models.ErrTransportFailure so the coordinator
// can classify them.
func (c *Client) Fetch(ctx context.Context, kpi string, r models.Range) (interface{}, error) {
	body, err := json.Marshal(fetchRequest{KPIKey: kpi, Range: string(r)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode fetch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/kpi_payload", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: remote returned status %d", models.ErrTransportFailure, resp.StatusCode)
	}

	var raw interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", models.ErrTransportFailure, err)
	}
	c.logger.Debugf("Fetched raw payload for kpi=%s range=%s", kpi, r)
	return raw, nil
}
