package rest

import (
	"context"
	"errors"
	"net/http"

	"omnisearch/business/search"
	"omnisearch/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	SearchHandler struct {
		validate      *validator.Validate
		searchService SearchService
	}

	SearchService interface {
		Search(ctx context.Context, req search.SearchRequest) (search.SearchResponse, error)
	}

	SearchRequestBody struct {
		UserID    string `json:"user_id" validate:"required"`
		Query     string `json:"query" validate:"required"`
		Color     string `json:"color"`
		Category  string `json:"category"`
		TopK      int    `json:"top_k" validate:"gte=0,lte=100"`
		SessionID string `json:"session_id"`
		Debug     bool   `json:"debug"`
	}
)

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{
		validate:      validator.New(),
		searchService: svc,
	}
}

// POST /api/v1/search
func (h *SearchHandler) Search(c echo.Context) error {
	var req SearchRequestBody
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	resp, err := h.searchService.Search(c.Request().Context(), search.SearchRequest{
		UserID:    req.UserID,
		Query:     req.Query,
		Color:     req.Color,
		Category:  req.Category,
		TopK:      req.TopK,
		SessionID: req.SessionID,
		Debug:     req.Debug,
	})
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: ve.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(resp))
}
