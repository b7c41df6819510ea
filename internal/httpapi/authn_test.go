package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/senocak/authcore/internal/auth"
)

func TestRequireRolesAllowsMatchingRole(t *testing.T) {
	handler := RequireRoles(auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.Principal{
		Subject: "anil1@senocak.com", Authorities: []string{"ROLE_ADMIN", "ROLE_USER"},
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireRolesRejects(t *testing.T) {
	handler := RequireRoles(auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for name, req := range map[string]*http.Request{
		"anonymous": httptest.NewRequest(http.MethodGet, "/internal", nil),
		"user role": httptest.NewRequest(http.MethodGet, "/internal", nil).WithContext(
			auth.ContextWithPrincipal(context.Background(), auth.Principal{Subject: "u", Authorities: []string{"ROLE_USER"}})),
	} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rr.Code)
		}
		if rr.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Fatalf("%s: expected WWW-Authenticate header", name)
		}
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer ":      "",
		"":             "",
	}
	for header, want := range cases {
		got, ok := extractBearerToken(header)
		if got != want || ok != (want != "") {
			t.Fatalf("extractBearerToken(%q) = %q, %v", header, got, ok)
		}
	}
}
