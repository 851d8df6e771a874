package rest

import (
	"context"
	"errors"
	"net/http"

	"omnisearch/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	AnalyticsHandler struct {
		validate         *validator.Validate
		analyticsService AnalyticsService
		comparator       ComparatorService
	}

	AnalyticsService interface {
		ComputeCTR(ctx context.Context, filter domain.EventFilter) (domain.CTRMetrics, error)
		ComputeRankMetrics(ctx context.Context, filter domain.EventFilter) (domain.RankMetrics, error)
		ComputeResponseTime(ctx context.Context, filter domain.EventFilter) (domain.ResponseTimeMetrics, error)
		UserSummary(ctx context.Context, userID string, days int) (domain.UserSummary, error)
	}

	ComparatorService interface {
		Compare(ctx context.Context, a, b domain.Variant, days int) (domain.VariantComparison, error)
	}

	MetricsQuery struct {
		UserID  string `query:"user_id"`
		Variant string `query:"variant" validate:"omitempty,oneof=search_v1 search_v2"`
		Days    int    `query:"days" validate:"omitempty,min=1,max=365"`
	}
)

func NewAnalyticsHandler(analytics AnalyticsService, comparator ComparatorService) *AnalyticsHandler {
	return &AnalyticsHandler{
		validate:         validator.New(),
		analyticsService: analytics,
		comparator:       comparator,
	}
}

func (h *AnalyticsHandler) bindMetricsQuery(c echo.Context) (domain.EventFilter, error) {
	var q MetricsQuery
	if err := c.Bind(&q); err != nil {
		return domain.EventFilter{}, err
	}
	if err := h.validate.Struct(&q); err != nil {
		return domain.EventFilter{}, err
	}
	return domain.EventFilter{
		UserID:  q.UserID,
		Variant: domain.Variant(q.Variant),
		Days:    q.Days,
	}, nil
}

// GET /api/v1/metrics/ctr?user_id=&variant=&days=
func (h *AnalyticsHandler) CTR(c echo.Context) error {
	filter, err := h.bindMetricsQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	metrics, err := h.analyticsService.ComputeCTR(c.Request().Context(), filter)
	if err != nil {
		return analyticsError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(metrics))
}

// GET /api/v1/metrics/ranks?user_id=&variant=&days=
func (h *AnalyticsHandler) RankMetrics(c echo.Context) error {
	filter, err := h.bindMetricsQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	metrics, err := h.analyticsService.ComputeRankMetrics(c.Request().Context(), filter)
	if err != nil {
		return analyticsError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(metrics))
}

// GET /api/v1/metrics/response-time?user_id=&variant=&days=
func (h *AnalyticsHandler) ResponseTime(c echo.Context) error {
	filter, err := h.bindMetricsQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	metrics, err := h.analyticsService.ComputeResponseTime(c.Request().Context(), filter)
	if err != nil {
		return analyticsError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(metrics))
}

// GET /api/v1/metrics/comparison?days=
// Always compares the control against the enhanced variant.
func (h *AnalyticsHandler) Comparison(c echo.Context) error {
	var q MetricsQuery
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&q); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	comparison, err := h.comparator.Compare(c.Request().Context(), domain.VariantSearchV1, domain.VariantSearchV2, q.Days)
	if err != nil {
		return analyticsError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(comparison))
}

// GET /api/v1/metrics/users/:user_id?days=
func (h *AnalyticsHandler) UserSummary(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "user_id is required"})
	}

	var q MetricsQuery
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&q); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	summary, err := h.analyticsService.UserSummary(c.Request().Context(), userID, q.Days)
	if err != nil {
		return analyticsError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(summary))
}

func analyticsError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrInvalidTimeRange) {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
}
