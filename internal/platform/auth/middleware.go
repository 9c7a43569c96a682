package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// TenantHeader carries the tenant in development mode only.
const TenantHeader = "X-Tenant-ID"

type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey is an HS256 shared secret; when empty tokens are verified against JWKSURL.
	SigningKey []byte
}

// JWTMiddleware verifies the bearer token and binds its tenant, subject and
// roles to the request context. Tokens without a valid tenant_id are rejected.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	var keyFunc jwt.Keyfunc
	methods := []string{"RS256"}
	if len(cfg.SigningKey) > 0 {
		keyFunc = func(t *jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
		methods = []string{"HS256"}
	} else {
		keyFunc = NewJWKSCache(cfg.JWKSURL, defaultJWKSCacheTTL).KeyFunc()
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if !ValidTenantID(claims.TenantID) {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no valid tenant")
			}

			c.Set("jwt_tenant_id", claims.TenantID)
			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
			ctx = WithRoles(ctx, claims.Roles...)
			ctx = WithTenant(ctx, claims.TenantID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development. The tenant
// comes from the X-Tenant-ID header, falling back to defaultTenant, and the
// caller is treated as admin.
func DevAuthMiddleware(defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenant := c.Request().Header.Get(TenantHeader)
			if tenant == "" {
				tenant = defaultTenant
			}
			if !ValidTenantID(tenant) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant id")
			}
			c.Set("jwt_tenant_id", tenant)
			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, "dev-user")
			ctx = WithRoles(ctx, RoleAdmin)
			ctx = WithTenant(ctx, tenant)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
