package ingest

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/internal/platform/auth"
)

type Handler struct {
	svc Services
}

func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	write := api.Group("", auth.RequireRole(auth.RoleIngest))
	write.POST("/bundles", h.ImportBundle)
}

// ImportBundle applies a YAML bundle. The bundle must name the caller's tenant.
func (h *Handler) ImportBundle(c echo.Context) error {
	ctx := c.Request().Context()
	b, err := LoadBundle(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if b.TenantID != auth.TenantFromContext(ctx) {
		err := apperr.New(apperr.KindTenantMismatch, "ingest.ImportBundle", "bundle tenant does not match caller")
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
	}
	sum, err := ApplyBundle(ctx, b, h.svc)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
	}
	return c.JSON(http.StatusOK, sum)
}
