package ledger

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	write := api.Group("", auth.RequireRole(auth.RoleIngest))
	write.POST("/claims", h.AppendClaim)

	read := api.Group("", auth.RequireRole(auth.RoleAnalyst, auth.RoleIngest))
	read.GET("/claims/:claim_id", h.GetClaim)
}

// AppendClaim returns 201 for a new event and 200 for an identical replay.
func (h *Handler) AppendClaim(c echo.Context) error {
	var e ClaimEvent
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e.TenantID = auth.TenantFromContext(c.Request().Context())
	e.Seq = 0
	appended, err := h.svc.Record(c.Request().Context(), &e)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
	}
	e.TenantID = ""
	if !appended {
		return c.JSON(http.StatusOK, e)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetClaim(c echo.Context) error {
	tenantID := auth.TenantFromContext(c.Request().Context())
	e, err := h.svc.Get(c.Request().Context(), tenantID, c.Param("claim_id"))
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
	}
	e.TenantID = ""
	return c.JSON(http.StatusOK, e)
}
