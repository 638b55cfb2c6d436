// Package lasso is the Lasso CRM sink: one REST API shared by every property,
// authenticated per property with a bearer key.
package lasso

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chable_leads_backend/internal/crm"
)

const (
	defaultBaseURL = "https://api.lasso.com"
	leadsPath      = "/api/v1/leads"
	searchPath     = "/api/v1/leads/search"
	maxErrorBody   = 2048
)

// Client talks to the Lasso leads API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createResponse struct {
	ID     json.RawMessage `json:"id"`
	LeadID json.RawMessage `json:"lead_id"`
}

type searchRequest struct {
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type searchResponse struct {
	Leads []createResponse `json:"leads"`
}

// Create posts a new lead and returns the CRM's lead id. A 2xx response
// without an id yields "" and no error; callers recover it with Search.
func (c *Client) Create(ctx context.Context, credential string, payload crm.Payload) (string, error) {
	body, err := c.do(ctx, http.MethodPost, leadsPath, credential, payload)
	if err != nil {
		return "", err
	}

	var resp createResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("%w: decode lasso response: %v", crm.ErrTransient, err)
		}
	}
	return resp.id(), nil
}

// Update replaces the CRM lead crmLeadID with payload.
func (c *Client) Update(ctx context.Context, credential, crmLeadID string, payload crm.Payload) error {
	_, err := c.do(ctx, http.MethodPut, leadsPath+"/"+url.PathEscape(crmLeadID), credential, payload)
	return err
}

// Search returns the id of the first CRM lead matching phone (and email when
// given), or "" when there is no match.
func (c *Client) Search(ctx context.Context, credential, phone, email string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, searchPath, credential, searchRequest{Phone: phone, Email: email})
	if err != nil {
		return "", err
	}

	var resp searchResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("%w: decode lasso search response: %v", crm.ErrTransient, err)
		}
	}
	for _, lead := range resp.Leads {
		if id := lead.id(); id != "" {
			return id, nil
		}
	}
	return "", nil
}

func (r createResponse) id() string {
	if id := rawID(r.ID); id != "" {
		return id
	}
	return rawID(r.LeadID)
}

func (c *Client) do(ctx context.Context, method, path, credential string, payload any) ([]byte, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, fmt.Errorf("%w: no api key configured", crm.ErrCredential)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal lasso payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build lasso request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: lasso request failed: %w", crm.ErrTransient, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &crm.StatusError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(body)))}
	}
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		return nil, fmt.Errorf("%w: read lasso response: %w", crm.ErrTransient, readErr)
	}
	return body, nil
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}

var _ crm.Sink = (*Client)(nil)
