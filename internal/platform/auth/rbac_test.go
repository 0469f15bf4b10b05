package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func requestWithRoles(roles ...string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(WithIdentity(req.Context(), "user-1", "user@example.com", roles))
}

func TestRequireRole_Allowed(t *testing.T) {
	err := runMiddleware(t, RequireRole("dentist"), requestWithRoles("dentist"), okHandler)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	err := runMiddleware(t, RequireRole("dentist"), requestWithRoles("tutor"), okHandler)
	expectHTTPCode(t, err, http.StatusForbidden)
}

func TestRequireRole_AdminBypass(t *testing.T) {
	err := runMiddleware(t, RequireRole("dentist"), requestWithRoles("admin"), okHandler)
	if err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_AnyOf(t *testing.T) {
	err := runMiddleware(t, RequireRole("tutor", "dentist"), requestWithRoles("tutor"), okHandler)
	if err != nil {
		t.Errorf("expected tutor to pass, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	err := runMiddleware(t, RequireRole("dentist"), httptest.NewRequest(http.MethodGet, "/", nil), okHandler)
	expectHTTPCode(t, err, http.StatusForbidden)
}

func TestRequireAuth(t *testing.T) {
	if err := runMiddleware(t, RequireAuth(), requestWithRoles("tutor"), okHandler); err != nil {
		t.Errorf("expected authenticated request to pass, got %v", err)
	}
	err := runMiddleware(t, RequireAuth(), httptest.NewRequest(http.MethodGet, "/", nil), okHandler)
	expectHTTPCode(t, err, http.StatusUnauthorized)
}

func TestHasRole(t *testing.T) {
	ctx := WithIdentity(context.Background(), "u", "", []string{"tutor"})
	if !HasRole(ctx, "tutor") {
		t.Error("expected tutor role")
	}
	if HasRole(ctx, "dentist") {
		t.Error("did not expect dentist role")
	}
	if HasRole(context.Background(), "tutor") {
		t.Error("empty context has no roles")
	}
}
