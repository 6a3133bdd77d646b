package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func authedEcho(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	h := &Handler{jwtSecret: "test-secret"}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := authFromContext(r.Context())
		if claims == nil {
			t.Error("Expected claims in context after RequireAuth")
			return
		}
		w.Header().Set("X-Actor", claims.ActorID)
		w.WriteHeader(http.StatusOK)
	})
	return h, h.RequireAuth(inner)
}

func TestRequireAuth_ValidToken(t *testing.T) {
	_, protected := authedEcho(t)

	token, err := SignToken("test-secret", "clerk-7", 1, time.Minute)
	if err != nil {
		t.Fatalf("SignToken failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/refunds", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with valid token, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Actor"); got != "clerk-7" {
		t.Errorf("Expected actor clerk-7 extracted from token, got %q", got)
	}
}

func TestRequireAuth_Rejections(t *testing.T) {
	_, protected := authedEcho(t)

	wrongSecret, err := SignToken("other-secret", "clerk-7", 1, time.Minute)
	if err != nil {
		t.Fatalf("SignToken failed: %v", err)
	}
	expired, err := SignToken("test-secret", "clerk-7", 1, -time.Minute)
	if err != nil {
		t.Fatalf("SignToken failed: %v", err)
	}
	noCompany, err := SignToken("test-secret", "clerk-7", 0, time.Minute)
	if err != nil {
		t.Fatalf("SignToken failed: %v", err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not a bearer token", "Basic abc123"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + wrongSecret},
		{"expired", "Bearer " + expired},
		{"zero company claim", "Bearer " + noCompany},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/refunds", nil)
		if c.header != "" {
			req.Header.Set("Authorization", c.header)
		}
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", c.name, rec.Code)
		}
	}
}
