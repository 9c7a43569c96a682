package member

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/benefits/accumulator/internal/platform/auth"
)

func postMember(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithTenant(req.Context(), "acme"))
	rec := httptest.NewRecorder()
	return rec, h.RegisterMember(e.NewContext(req, rec))
}

func TestHandler_RegisterMember(t *testing.T) {
	h := NewHandler(newTestService())
	rec, err := postMember(t, h, `{"member_id":"M1","plan_year":2024,"plan_id":"PPO","is_primary":true}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "acme") {
		t.Error("response must not expose the tenant id")
	}
}

func TestHandler_RegisterMember_Invalid(t *testing.T) {
	h := NewHandler(newTestService())
	_, err := postMember(t, h, `{"member_id":"M2","plan_year":2024,"plan_id":"PPO","dependent_of":"M1"}`)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
