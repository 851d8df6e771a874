package middleware

import (
	"errors"
	"net/http"

	"omnisearch/domain"
	"omnisearch/pkg/logger"

	jsonres "omnisearch/pkg/response"

	"github.com/labstack/echo/v4"
)

// ErrorHandler is the echo-level catch-all for errors that escape a handler.
// Handlers respond directly in the common paths; this covers binding
// failures, unknown routes, and anything a handler returns unmapped.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		_ = c.JSON(http.StatusBadRequest, jsonres.Error("BAD_REQUEST", ve.Error(), nil))
		return
	}

	if errors.Is(err, domain.ErrInvalidTimeRange) {
		_ = c.JSON(http.StatusBadRequest, jsonres.Error("BAD_REQUEST", err.Error(), nil))
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		_ = c.JSON(he.Code, jsonres.Error(http.StatusText(he.Code), msg, nil))
		return
	}

	logger.Error("unhandled request error", "error", err, "path", c.Path())
	_ = c.JSON(http.StatusInternalServerError, jsonres.Error(
		"INTERNAL_SERVER_ERROR", "Internal server error", nil,
	))
}
