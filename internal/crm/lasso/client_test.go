package lasso

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chable_leads_backend/internal/crm"
)

func TestCreateSendsBearerAndReturnsID(t *testing.T) {
	var got crm.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/leads" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key-1" {
			t.Errorf("unexpected authorization %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 98765}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	id, err := c.Create(context.Background(), "key-1", crm.Payload{PropertyID: 24610, Contact: crm.Contact{FirstName: "Ana", LastName: "López"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "98765" {
		t.Fatalf("expected numeric id to be returned as string, got %q", id)
	}
	if got.PropertyID != 24610 || got.Contact.FirstName != "Ana" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestCreateFallsBackToLeadID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"lead_id": "abc"}`))
	}))
	defer srv.Close()

	id, err := NewClient(WithBaseURL(srv.URL)).Create(context.Background(), "k", crm.Payload{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "abc" {
		t.Fatalf("expected lead_id, got %q", id)
	}
}

func TestUpdateUsesPut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/v1/leads/abc" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewClient(WithBaseURL(srv.URL)).Update(context.Background(), "k", "abc", crm.Payload{}); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestStatusCodesMapToTaxonomy(t *testing.T) {
	cases := []struct {
		status int
		want   error
		kind   string
	}{
		{http.StatusBadRequest, crm.ErrValidation, crm.KindValidation},
		{http.StatusUnauthorized, crm.ErrCredential, crm.KindCredential},
		{http.StatusNotFound, crm.ErrUnknownProperty, crm.KindNotFound},
		{http.StatusTooManyRequests, crm.ErrTransient, crm.KindTransient},
		{http.StatusBadGateway, crm.ErrTransient, crm.KindTransient},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		_, err := NewClient(WithBaseURL(srv.URL)).Create(context.Background(), "k", crm.Payload{})
		srv.Close()

		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		if kind := crm.ErrorKind(err); kind != tc.kind {
			t.Fatalf("status %d: expected kind %s, got %s", tc.status, tc.kind, kind)
		}
	}
}

func TestMissingCredentialIsCredentialError(t *testing.T) {
	_, err := NewClient().Create(context.Background(), " ", crm.Payload{})
	if !errors.Is(err, crm.ErrCredential) {
		t.Fatalf("expected credential error, got %v", err)
	}
}

func TestTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewClient(WithBaseURL(srv.URL)).Create(ctx, "k", crm.Payload{})
	if !errors.Is(err, crm.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestCreateWithoutIDReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	id, err := NewClient(WithBaseURL(srv.URL)).Create(context.Background(), "k", crm.Payload{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}

func TestSearchReturnsFirstMatch(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/leads/search" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"leads": [{"id": 4411}, {"id": 4412}]}`))
	}))
	defer srv.Close()

	id, err := NewClient(WithBaseURL(srv.URL)).Search(context.Background(), "k", "+5219991234567", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if id != "4411" {
		t.Fatalf("expected first match, got %q", id)
	}
	if got["phone"] != "+5219991234567" {
		t.Fatalf("unexpected search body %v", got)
	}
	if _, ok := got["email"]; ok {
		t.Fatalf("empty email should be omitted, got %v", got)
	}
}

func TestSearchWithoutMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"leads": []}`))
	}))
	defer srv.Close()

	id, err := NewClient(WithBaseURL(srv.URL)).Search(context.Background(), "k", "+5219991234567", "a@b.mx")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if id != "" {
		t.Fatalf("expected no match, got %q", id)
	}
}
