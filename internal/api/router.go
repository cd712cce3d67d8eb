package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ratewatch/internal/rates/handler"
)

func NewRouter(rateHandler *handler.Handler) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.Heartbeat("/healthz"))

	router.Handle("/metrics", promhttp.Handler())

	router.Get("/api/v1/status", rateHandler.GetStatus)
	router.Get("/api/v1/status/detailed", rateHandler.GetDetailedStatus)
	router.Get("/api/v1/status/stats", rateHandler.GetStats)
	router.Post("/api/v1/refresh", rateHandler.ForceRefresh)
	router.Get("/api/v1/rates/crypto/{coin:[a-z0-9-]+}/{vs:[A-Za-z]{3,5}}", rateHandler.GetCryptoRate)
	router.Get("/api/v1/rates/fiat/{code:[A-Za-z]{3}}", rateHandler.GetFiatRate)
	return router
}
