package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"offline-sync-service/internal/config"
)

// HTTPClient talks JSON to a remote document service:
// GET  {base}/items/{key}  -> payload or 404
// PUT  {base}/items/{key}  -> PushResult, 409 on version conflict
type HTTPClient struct {
	name      string
	baseURL   string
	authToken string
	client    *http.Client
}

func NewHTTPClient(name string, cfg config.BackendConnection) *HTTPClient {
	return &HTTPClient{
		name:      name,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		client:    &http.Client{Timeout: cfg.GetTimeout()},
	}
}

func (c *HTTPClient) Name() string { return c.name }

func (c *HTTPClient) Fetch(ctx context.Context, key string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.itemURL(key), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.wrapTransport(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, c.wrapTransport(err)
		}
		return json.RawMessage(body), nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, &TransientError{
			Source: c.name,
			Err:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
}

func (c *HTTPClient) Push(ctx context.Context, key string, pushReq PushRequest) (PushResult, error) {
	body, err := json.Marshal(pushReq)
	if err != nil {
		return PushResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.itemURL(key), bytes.NewReader(body))
	if err != nil {
		return PushResult{}, err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return PushResult{}, c.wrapTransport(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusConflict:
		var result PushResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return PushResult{}, c.wrapTransport(err)
		}
		if resp.StatusCode == http.StatusConflict {
			result.Success = false
			result.Conflict = true
		}
		return result, nil
	default:
		return PushResult{}, &TransientError{
			Source: c.name,
			Err:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
}

func (c *HTTPClient) itemURL(key string) string {
	return c.baseURL + "/items/" + key
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

func (c *HTTPClient) wrapTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return &TransientError{Source: c.name, Err: err}
}
