package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const userAgent = "tw-tick-api/1.0"

// StatusError is returned for non-2xx answers. Body holds what the server sent.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %d", e.StatusCode)
}

// -----------------------------------------------------------------------------

type AsyncNetworkManager struct {
	Config *models.MConfig
	Client *http.Client
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	nm := &AsyncNetworkManager{
		Config: cfg,
		Logger: log,
	}
	nm.Client = nm.createClient()
	return nm
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) createClient() *http.Client {
	timeout := time.Duration(nm.Config.TickAPI.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// -----------------------------------------------------------------------------

// PostJSON performs a single POST; retrying is left to the caller's client.
func (nm *AsyncNetworkManager) PostJSON(ctx context.Context, url string, headers map[string]string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := nm.Client.Do(req)
	if err != nil {
		nm.Logger.Warning("Request to %s failed: %v", url, err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	nm.Logger.Debug("POST %s -> %d (%d bytes, %v)", url, resp.StatusCode, len(data), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return data, &StatusError{StatusCode: resp.StatusCode, Body: data}
	}
	return data, nil
}
