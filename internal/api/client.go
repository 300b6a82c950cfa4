package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tanq16/hlsget/internal/engine"
	"github.com/tanq16/hlsget/internal/utils"
)

// Client talks to a running daemon's HTTP API.
type Client struct {
	base string
	http utils.HTTPDoer
}

func NewClient(address string, doer utils.HTTPDoer) *Client {
	base := address
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{base: strings.TrimSuffix(base, "/"), http: doer}
}

func (c *Client) Submit(ctx context.Context, req engine.Request) (int64, error) {
	var resp submitResp
	if err := c.do(ctx, http.MethodPost, "/jobs/", req, http.StatusCreated, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (c *Client) List(ctx context.Context) ([]JobDTO, error) {
	var jobs []JobDTO
	err := c.do(ctx, http.MethodGet, "/jobs/", nil, http.StatusOK, &jobs)
	return jobs, err
}

func (c *Client) Get(ctx context.Context, id int64) (JobDTO, error) {
	var job JobDTO
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/jobs/%d", id), nil, http.StatusOK, &job)
	return job, err
}

func (c *Client) Pause(ctx context.Context, id int64) (JobDTO, error) {
	var job JobDTO
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/jobs/%d/pause", id), nil, http.StatusOK, &job)
	return job, err
}

func (c *Client) Resume(ctx context.Context, id int64) (JobDTO, error) {
	var job JobDTO
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/jobs/%d/resume", id), nil, http.StatusOK, &job)
	return job, err
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/jobs/%d", id), nil, http.StatusNoContent, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error contacting daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var apiErr errorResp
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			if len(apiErr.Fields) > 0 {
				return fmt.Errorf("%s: %v", apiErr.Error, apiErr.Fields)
			}
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}
