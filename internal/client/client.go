// Package client is a Go client for the premia HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dreamware/premia/internal/records"
)

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Client talks to one premia server
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// Option customizes a Client
type Option func(*Client)

// WithToken attaches "Authorization: Bearer <token>" to every request
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default http.Client (5s timeout)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client. baseURL includes the server's base path, if any.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health calls the liveness endpoint
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", out.Status)
	}
	return nil
}

// ListPredictions fetches every prediction of userID
func (c *Client) ListPredictions(ctx context.Context, userID string) ([]records.PredictionRecord, error) {
	var out struct {
		Predictions []records.PredictionRecord `json:"predictions"`
	}
	if err := c.do(ctx, http.MethodGet, "/predictions/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	if out.Predictions == nil {
		out.Predictions = []records.PredictionRecord{}
	}
	return out.Predictions, nil
}

// SavePrediction stores rec for userID
func (c *Client) SavePrediction(ctx context.Context, userID string, rec records.PredictionRecord) error {
	return c.do(ctx, http.MethodPost, "/predictions/"+url.PathEscape(userID), rec, nil)
}

// SavePredictionDocument stores a prediction given as raw JSON, fields the
// typed record does not know included
func (c *Client) SavePredictionDocument(ctx context.Context, userID string, doc json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "/predictions/"+url.PathEscape(userID), doc, nil)
}

// ClearPredictions removes every prediction of userID
func (c *Client) ClearPredictions(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/predictions/"+url.PathEscape(userID), nil, nil)
}

// GetProfile returns nil if the user has no profile yet
func (c *Client) GetProfile(ctx context.Context, userID string) (*records.ProfileRecord, error) {
	var out struct {
		Profile *records.ProfileRecord `json:"profile"`
	}
	if err := c.do(ctx, http.MethodGet, "/profile/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return out.Profile, nil
}

// UpdateProfile replaces the profile of userID
func (c *Client) UpdateProfile(ctx context.Context, userID string, profile records.ProfileRecord) error {
	return c.do(ctx, http.MethodPost, "/profile/"+url.PathEscape(userID), profile, nil)
}

// UpdateProfileDocument replaces the profile of userID with a raw JSON document
func (c *Client) UpdateProfileDocument(ctx context.Context, userID string, doc json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "/profile/"+url.PathEscape(userID), doc, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		enc := json.NewEncoder(buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(body); err != nil {
			return err
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
