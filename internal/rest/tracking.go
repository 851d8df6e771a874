package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"omnisearch/business/tracking"
	"omnisearch/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	TrackingHandler struct {
		validate        *validator.Validate
		trackingService TrackingService
	}

	TrackingService interface {
		RecordImpression(ctx context.Context, imp domain.Impression) (tracking.RecordStatus, error)
		RecordClick(ctx context.Context, click domain.ClickEvent) (tracking.RecordStatus, error)
		Reset(ctx context.Context) error
	}

	ImpressionRequest struct {
		UserID         string                 `json:"user_id" validate:"required"`
		Query          string                 `json:"query" validate:"required"`
		Variant        string                 `json:"variant" validate:"required,oneof=search_v1 search_v2"`
		ResultsCount   int                    `json:"results_count" validate:"gte=0"`
		ResponseTimeMs float64                `json:"response_time_ms" validate:"gte=0"`
		SessionID      string                 `json:"session_id"`
		Metadata       map[string]interface{} `json:"metadata"`
	}

	ClickRequest struct {
		UserID         string                 `json:"user_id" validate:"required"`
		ProductID      string                 `json:"product_id" validate:"required"`
		Rank           int                    `json:"rank" validate:"gte=0"`
		SearchQuery    string                 `json:"search_query"`
		Variant        string                 `json:"variant" validate:"required,oneof=search_v1 search_v2"`
		ResponseTimeMs float64                `json:"response_time_ms" validate:"gte=0"`
		Source         string                 `json:"source" validate:"omitempty,oneof=search_results recommendations featured other"`
		SessionID      string                 `json:"session_id"`
		Metadata       map[string]interface{} `json:"metadata"`
	}

	RecordResponse struct {
		Status string `json:"status"`
	}
)

func NewTrackingHandler(svc TrackingService) *TrackingHandler {
	return &TrackingHandler{
		validate:        validator.New(),
		trackingService: svc,
	}
}

// POST /api/v1/events/impression
func (h *TrackingHandler) RecordImpression(c echo.Context) error {
	var req ImpressionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	imp := domain.Impression{
		UserID:         req.UserID,
		Query:          req.Query,
		Variant:        domain.Variant(req.Variant),
		ResultsCount:   req.ResultsCount,
		ResponseTimeMs: req.ResponseTimeMs,
		SessionID:      req.SessionID,
		Metadata:       req.Metadata,
		Timestamp:      time.Now().UTC(),
	}

	status, err := h.trackingService.RecordImpression(c.Request().Context(), imp)
	return recordOutcome(c, status, err)
}

// POST /api/v1/events/click
func (h *TrackingHandler) RecordClick(c echo.Context) error {
	var req ClickRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	source, err := domain.ParseClickSource(req.Source)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	click := domain.ClickEvent{
		UserID:         req.UserID,
		ProductID:      req.ProductID,
		Rank:           req.Rank,
		SearchQuery:    req.SearchQuery,
		Variant:        domain.Variant(req.Variant),
		ResponseTimeMs: req.ResponseTimeMs,
		Source:         source,
		SessionID:      req.SessionID,
		Metadata:       req.Metadata,
		Timestamp:      time.Now().UTC(),
	}

	status, err := h.trackingService.RecordClick(c.Request().Context(), click)
	return recordOutcome(c, status, err)
}

// DELETE /api/v1/events
// Guarded by the ops JWT middleware; drops every stored event.
func (h *TrackingHandler) Reset(c echo.Context) error {
	if err := h.trackingService.Reset(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK("all events deleted"))
}

// recordOutcome maps a record status to its HTTP shape. Buffered writes are
// accepted, not created: the event is durable only after replay.
func recordOutcome(c echo.Context, status tracking.RecordStatus, err error) error {
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: ve.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	switch status {
	case tracking.RecordBuffered:
		return c.JSON(http.StatusAccepted, fres.Response.StatusOK(RecordResponse{Status: "buffered"}))
	default:
		return c.JSON(http.StatusCreated, fres.Response.StatusCreated(RecordResponse{Status: "stored"}))
	}
}
