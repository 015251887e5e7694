package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRequestFailed wraps a non-2xx admin API response.
var ErrRequestFailed = errors.New("adminapi: request failed")

// Client is a plain net/http JSON client for the admin API exposed by
// ztpiped, used by ztpipectl instead of a generated RPC stub.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client pointed at baseURL (e.g. "http://127.0.0.1:7700").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &resp)
	return resp, err
}

func (c *Client) Endpoints(ctx context.Context) (EndpointsResponse, error) {
	var resp EndpointsResponse
	err := c.do(ctx, http.MethodGet, "/v1/endpoints", nil, &resp)
	return resp, err
}

func (c *Client) Pipes(ctx context.Context) (PipesResponse, error) {
	var resp PipesResponse
	err := c.do(ctx, http.MethodGet, "/v1/pipes", nil, &resp)
	return resp, err
}

func (c *Client) Dial(ctx context.Context, req DialRequest) (DialResponse, error) {
	var resp DialResponse
	err := c.do(ctx, http.MethodPost, "/v1/dial", req, &resp)
	return resp, err
}

func (c *Client) Listen(ctx context.Context, req ListenRequest) (ListenResponse, error) {
	var resp ListenResponse
	err := c.do(ctx, http.MethodPost, "/v1/listen", req, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != "" {
			return fmt.Errorf("%s %s: %w: %s", method, path, ErrRequestFailed, errResp.Error)
		}
		return fmt.Errorf("%s %s: %w: status %d", method, path, ErrRequestFailed, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
