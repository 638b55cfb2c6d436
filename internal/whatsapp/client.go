// Package whatsapp sends outbound text messages through a gowa gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chable_leads_backend/platform/config"
	"chable_leads_backend/platform/logger"
	"chable_leads_backend/platform/phone"
)

// ErrNoRecipient is returned when the destination number is empty.
var ErrNoRecipient = errors.New("whatsapp: recipient phone is required")

const sendTimeout = 10 * time.Second

// Client talks to the gateway's /send/message endpoint. A nil *Client is a
// valid no-op sender for deployments without a gateway.
type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	log      *logger.Logger
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NewClient returns nil when no gateway URL is configured.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		http:     &http.Client{Timeout: sendTimeout},
		log:      log,
	}
}

// Enabled reports whether messages are actually delivered.
func (c *Client) Enabled() bool { return c != nil }

// SendMessage delivers text to a phone number in any common format.
func (c *Client) SendMessage(ctx context.Context, to, text string) error {
	if c == nil {
		return nil
	}
	recipient := phone.DigitsOnly(to)
	if recipient == "" {
		return ErrNoRecipient
	}

	body, err := json.Marshal(sendRequest{Phone: recipient, Message: text})
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send/message", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", authHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("whatsapp message sent", "phone", recipient)
	return nil
}

// authHeader accepts either "user:pass" or a ready "Basic ..." value.
func authHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey))
}
