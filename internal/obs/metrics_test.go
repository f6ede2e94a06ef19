package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/v1/auth/whoami":           "/v1/auth/whoami",
		"/v1/sessions/u-1":          "/v1/sessions/:subject",
		"/v1/sessions/u-1?force=1":  "/v1/sessions/:subject",
		"/v1/sessions/u-1/extra":    "/v1/sessions/u-1/extra",
		"/v1/auth/logout?trace=yes": "/v1/auth/logout",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestObserveAuthDecision(t *testing.T) {
	Init()
	Init()
	c := AuthDecisions().WithLabelValues("test", "allowed")
	before := testutil.ToFloat64(c)
	ObserveAuthDecision("test", "allowed")
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("counter = %v, want %v", got, before+1)
	}
}

func TestInstrumentKeepsStatus(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions/u1", nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	c := httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/sessions/:subject", "403")
	if testutil.ToFloat64(c) < 1 {
		t.Fatal("expected request counted under canonical path")
	}
}
