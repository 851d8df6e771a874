package router

import (
	"omnisearch/internal/rest"

	"github.com/labstack/echo/v4"
)

func SetupSearchRoutes(api *echo.Group, handler *rest.SearchHandler) {
	api.POST("/search", handler.Search)
}

func SetupTrackingRoutes(api *echo.Group, handler *rest.TrackingHandler, opsOnly echo.MiddlewareFunc) {
	events := api.Group("/events")

	events.POST("/impression", handler.RecordImpression)
	events.POST("/click", handler.RecordClick)

	events.DELETE("", handler.Reset, opsOnly)
}

func SetupAnalyticsRoutes(api *echo.Group, handler *rest.AnalyticsHandler) {
	metrics := api.Group("/metrics")

	metrics.GET("/ctr", handler.CTR)
	metrics.GET("/ranks", handler.RankMetrics)
	metrics.GET("/response-time", handler.ResponseTime)
	metrics.GET("/comparison", handler.Comparison)
	metrics.GET("/users/:user_id", handler.UserSummary)
}

func SetupExperimentRoutes(api *echo.Group, handler *rest.ExperimentHandler) {
	experiment := api.Group("/experiment")

	experiment.GET("/assignment/:user_id", handler.Assignment)
}
