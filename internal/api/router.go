package api

import (
	httpSwagger "github.com/swaggo/http-swagger"

	"subhalo-pipeline/internal/api/handler"
	"subhalo-pipeline/pkg/router"
)

func RegisterRoutes(r *router.Router, h *handler.RunHandler) {
	r.GET("/api/v1/runs", h.ListRuns)
	// More specific routes first
	r.GET("/api/v1/runs/*/errors", h.GetRunErrors)
	// Generic run route last
	r.GET("/api/v1/runs/*", h.GetRun)

	r.GET("/swagger/*", router.HandlerFunc(httpSwagger.WrapHandler))
}
