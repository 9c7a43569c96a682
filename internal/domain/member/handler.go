package member

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
	write.POST("/members", h.RegisterMember)
}

func (h *Handler) RegisterMember(c echo.Context) error {
	var m Member
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.TenantID = auth.TenantFromContext(c.Request().Context())
	if err := h.svc.Register(c.Request().Context(), &m); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
	}
	m.TenantID = ""
	return c.JSON(http.StatusCreated, m)
}
