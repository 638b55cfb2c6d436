package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chable_leads_backend/platform/logger"
)

type testConfig struct{ url, key, device string }

func (c testConfig) GetWhatsAppURL() string      { return c.url }
func (c testConfig) GetWhatsAppKey() string      { return c.key }
func (c testConfig) GetWhatsAppDeviceID() string { return c.device }

func TestSendMessage(t *testing.T) {
	var got sendRequest
	var auth, device string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send/message" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		device = r.Header.Get("X-Device-Id")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(testConfig{url: srv.URL + "/", key: "user:pass", device: "dev-1"}, logger.Nop())
	if err := c.SendMessage(context.Background(), "+52 55 6675 2552", "Nuevo lead"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Phone != "525566752552" || got.Message != "Nuevo lead" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if auth != "Basic dXNlcjpwYXNz" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if device != "dev-1" {
		t.Fatalf("unexpected device header %q", device)
	}
}

func TestSendMessageGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "device offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testConfig{url: srv.URL}, logger.Nop())
	if err := c.SendMessage(context.Background(), "5566752552", "hola"); err == nil {
		t.Fatalf("expected error on 503")
	}
	if err := c.SendMessage(context.Background(), "  ", "hola"); err != ErrNoRecipient {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
}

func TestNilClientIsNoop(t *testing.T) {
	c := NewClient(testConfig{}, logger.Nop())
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	if err := c.SendMessage(context.Background(), "5566752552", "hola"); err != nil {
		t.Fatalf("nil client should not fail: %v", err)
	}
}
