package query

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/benefits/accumulator/internal/domain/ledger"
	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/internal/platform/auth"
	"github.com/benefits/accumulator/pkg/dates"
)

type Handler struct {
	facade *Facade
}

func NewHandler(facade *Facade) *Handler {
	return &Handler{facade: facade}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleMember, auth.RoleAnalyst))
	read.GET("/members/:member_id/accumulators", h.GetSnapshot)
	read.POST("/members/:member_id/projections", h.ProjectCost)
	read.GET("/members/:member_id/metrics/:metric", h.GetMetric)
	read.GET("/metrics/catalog", h.ListCatalog)

	ops := api.Group("", auth.RequireRole(auth.RoleAnalyst))
	ops.GET("/members/:member_id/trace", h.GetTrace)
}

type projectRequest struct {
	ClaimType     ledger.ClaimType `json:"claim_type"`
	BilledAmount  decimal.Decimal  `json:"billed_amount"`
	VisitCategory string           `json:"visit_category"`
	RxTier        string           `json:"rx_tier"`
	ServiceDate   string           `json:"service_date"`
}

func (h *Handler) GetSnapshot(c echo.Context) error {
	memberID, year, err := h.memberAndYear(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	snap, err := h.facade.GetAccumulatorSnapshot(ctx, auth.TenantFromContext(ctx), memberID, year)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) ProjectCost(c echo.Context) error {
	memberID := c.Param("member_id")
	if err := checkSelf(c, memberID); err != nil {
		return err
	}
	var req projectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	serviceDate, err := dates.Parse(req.ServiceDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	p, err := h.facade.ProjectClaimCost(ctx, auth.TenantFromContext(ctx), memberID, req.ClaimType, req.BilledAmount, ProjectOptions{
		VisitCategory: req.VisitCategory,
		RxTier:        req.RxTier,
		ServiceDate:   serviceDate,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetMetric(c echo.Context) error {
	memberID, year, err := h.memberAndYear(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	v, err := h.facade.Metric(ctx, auth.TenantFromContext(ctx), memberID, c.Param("metric"), year)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) GetTrace(c echo.Context) error {
	memberID, year, err := h.memberAndYear(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	ex, err := h.facade.Explain(ctx, auth.TenantFromContext(ctx), memberID, year)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ex)
}

func (h *Handler) ListCatalog(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"metrics": Catalog()})
}

func (h *Handler) memberAndYear(c echo.Context) (string, int, error) {
	memberID := c.Param("member_id")
	if err := checkSelf(c, memberID); err != nil {
		return "", 0, err
	}
	year := h.facade.CurrentYear()
	if raw := c.QueryParam("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			return "", 0, echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
		year = y
	}
	return memberID, year, nil
}

// checkSelf limits callers that only hold the member role to their own id.
func checkSelf(c echo.Context, memberID string) error {
	ctx := c.Request().Context()
	for _, r := range auth.RolesFromContext(ctx) {
		if r != auth.RoleMember {
			return nil
		}
	}
	if auth.UserIDFromContext(ctx) != memberID {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return nil
}

func httpError(err error) error {
	return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
}
