package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"secureshop.org/internal/auth"
	"secureshop.org/internal/httpapi"
	"secureshop.org/internal/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestBootstrapAdminUnlocksMemoryBackend(t *testing.T) {
	codec, err := auth.NewJWTCodec([]byte(testSecret))
	if err != nil {
		t.Fatalf("NewJWTCodec: %v", err)
	}
	sessions := session.NewMemoryRegistry(nil)
	gate, err := auth.NewGate(codec, sessions)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	api, err := httpapi.New(gate, sessions, codec, "test", httpapi.WithTokenTTL(time.Hour))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	handler := api.Handler()

	var out bytes.Buffer
	if err := bootstrapAdmin(context.Background(), sessions, codec, "ops-admin", time.Hour, &out); err != nil {
		t.Fatalf("bootstrapAdmin: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	adminToken := lines[len(lines)-1]
	if adminToken == "" {
		t.Fatalf("no token written: %q", out.String())
	}

	// The bootstrap admin creates a customer session over HTTP.
	body := strings.NewReader(`{"user_id":"cust-1","role":"customer"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", body)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/auth/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+created.Token)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("whoami with created token: %d", rr.Code)
	}
	var id auth.Identity
	if err := json.Unmarshal(rr.Body.Bytes(), &id); err != nil {
		t.Fatalf("decode identity: %v", err)
	}
	if id.Subject != "cust-1" || id.Role != auth.RoleCustomer {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestBootstrapAdminRejectsBlankSubject(t *testing.T) {
	codec, err := auth.NewJWTCodec([]byte(testSecret))
	if err != nil {
		t.Fatalf("NewJWTCodec: %v", err)
	}
	var out bytes.Buffer
	err = bootstrapAdmin(context.Background(), session.NewMemoryRegistry(nil), codec, "", time.Hour, &out)
	if err == nil {
		t.Fatal("expected an error for a blank subject")
	}
	if out.Len() != 0 {
		t.Fatalf("nothing should be written on failure, got %q", out.String())
	}
}
