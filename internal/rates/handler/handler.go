package handler

import (
	"encoding/json"
	"net/http"

	"ratewatch/internal/acquisition"
	"ratewatch/internal/cache"
	"ratewatch/internal/freshness"
)

type Handler struct {
	store     *cache.Store
	monitor   *freshness.Monitor
	scheduler *acquisition.Scheduler
}

func NewRateHandler(store *cache.Store, monitor *freshness.Monitor, scheduler *acquisition.Scheduler) *Handler {
	return &Handler{store: store, monitor: monitor, scheduler: scheduler}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, statusCode int, errorMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorMsg,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
