package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(tenant string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: tenant,
		Roles:    []string{RoleMember},
	}
}

func runJWT(t *testing.T, cfg JWTConfig, header string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var seen echo.Context
	err := JWTMiddleware(cfg)(func(c echo.Context) error {
		seen = c
		return c.String(http.StatusOK, "ok")
	})(c)
	return seen, err
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	for _, header := range []string{"Token abc123", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz"} {
		t.Run(header, func(t *testing.T) {
			_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, header)
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, validClaims("acme"), testSigningKey)
	c, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := c.Request().Context()
	if got := TenantFromContext(ctx); got != "acme" {
		t.Errorf("expected tenant acme, got %q", got)
	}
	if got := UserIDFromContext(ctx); got != "user-1" {
		t.Errorf("expected user-1, got %q", got)
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleMember {
		t.Errorf("unexpected roles: %v", roles)
	}
}

func TestJWTMiddleware_MissingTenant(t *testing.T) {
	token := createTestToken(t, validClaims(""), testSigningKey)
	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+token)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_MalformedTenant(t *testing.T) {
	token := createTestToken(t, validClaims("acme/../globex"), testSigningKey)
	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+token)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := validClaims("acme")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token := createTestToken(t, claims, testSigningKey)
	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+token)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	token := createTestToken(t, validClaims("acme"), []byte("some-other-key"))
	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+token)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_IssuerMismatch(t *testing.T) {
	claims := validClaims("acme")
	claims.Issuer = "https://other.example"
	token := createTestToken(t, claims, testSigningKey)
	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey, Issuer: "https://idp.example"}, "Bearer "+token)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JWKSResponse{Keys: []JWKSKey{{
			Kty: "RSA",
			Kid: "k1",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("globex"))
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	c, err := runJWT(t, JWTConfig{JWKSURL: srv.URL}, "Bearer "+signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := TenantFromContext(c.Request().Context()); got != "globex" {
		t.Errorf("expected tenant globex, got %q", got)
	}
}

func TestDevAuthMiddleware_DefaultTenant(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var tenant string
	var roles []string
	err := DevAuthMiddleware("default")(func(c echo.Context) error {
		tenant = TenantFromContext(c.Request().Context())
		roles = RolesFromContext(c.Request().Context())
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant != "default" {
		t.Errorf("expected default tenant, got %q", tenant)
	}
	if len(roles) != 1 || roles[0] != RoleAdmin {
		t.Errorf("expected admin role, got %v", roles)
	}
}

func TestDevAuthMiddleware_TenantHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TenantHeader, "initech")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var tenant string
	DevAuthMiddleware("default")(func(c echo.Context) error {
		tenant = TenantFromContext(c.Request().Context())
		return nil
	})(c)
	if tenant != "initech" {
		t.Errorf("expected initech, got %q", tenant)
	}
}

func TestDevAuthMiddleware_InvalidTenantHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TenantHeader, "bad tenant")
	c := e.NewContext(req, httptest.NewRecorder())

	err := DevAuthMiddleware("default")(func(c echo.Context) error { return nil })(c)
	assertStatus(t, err, http.StatusBadRequest)
}
