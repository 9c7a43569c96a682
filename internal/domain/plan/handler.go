package plan

import (
	"errors"
	"net/http"
	"strconv"
	"time"

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
	read := api.Group("", auth.RequireRole(auth.RoleMember, auth.RoleAnalyst, auth.RoleIngest))
	read.GET("/plans/:plan_id", h.GetPlan)

	write := api.Group("", auth.RequireRole(auth.RoleIngest))
	write.POST("/plans", h.DefinePlan)
}

func (h *Handler) DefinePlan(c echo.Context) error {
	var r Rule
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.TenantID = auth.TenantFromContext(c.Request().Context())
	r.Version = 0
	if err := h.svc.Define(c.Request().Context(), &r); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
	}
	return c.JSON(http.StatusCreated, r.ToInfo())
}

func (h *Handler) GetPlan(c echo.Context) error {
	year, err := strconv.Atoi(c.QueryParam("year"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "year is required")
	}
	tenantID := auth.TenantFromContext(c.Request().Context())
	r, err := h.svc.Get(c.Request().Context(), tenantID, c.Param("plan_id"), year, time.Time{})
	if errors.Is(err, apperr.ErrPlanRuleMissing) {
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	}
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
	}
	return c.JSON(http.StatusOK, r.ToInfo())
}
