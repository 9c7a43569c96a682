package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func callWithRoles(roles []string, required ...string) error {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRoles(req.Context(), roles...))
	c := e.NewContext(req, httptest.NewRecorder())
	return RequireRole(required...)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	if err := callWithRoles([]string{RoleAnalyst}, RoleMember, RoleAnalyst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	err := callWithRoles([]string{RoleMember}, RoleIngest)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	if err := callWithRoles([]string{RoleAdmin}, RoleIngest); err != nil {
		t.Fatalf("admin should pass: %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	if err := callWithRoles(nil, RoleMember); err == nil {
		t.Fatal("expected error with no roles")
	}
}

func TestValidTenantID(t *testing.T) {
	tests := map[string]bool{
		"acme":      true,
		"Acme_2024": true,
		"":          false,
		"acme-corp": false,
		"a b":       false,
		"acme;drop": false,
	}
	for in, want := range tests {
		if got := ValidTenantID(in); got != want {
			t.Errorf("ValidTenantID(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTenantFromContext_Empty(t *testing.T) {
	if got := TenantFromContext(context.Background()); got != "" {
		t.Errorf("expected empty tenant, got %q", got)
	}
}
