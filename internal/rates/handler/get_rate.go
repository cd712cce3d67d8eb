package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ratewatch/internal/domain"
)

type RateResponse struct {
	Key     string  `json:"key"`
	Value   float64 `json:"value"`
	IsStale bool    `json:"is_stale"`
}

func (h *Handler) GetCryptoRate(w http.ResponseWriter, r *http.Request) {
	coin := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "coin")))
	vs := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "vs")))

	value, ok := h.store.CryptoRate(coin, vs)
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrRateNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, RateResponse{
		Key:     domain.CryptoKey(coin, vs),
		Value:   value,
		IsStale: h.monitor.Assess().IsStale,
	})
}

func (h *Handler) GetFiatRate(w http.ResponseWriter, r *http.Request) {
	code := domain.FiatKey(strings.TrimSpace(chi.URLParam(r, "code")))

	value, ok := h.store.FiatRate(code)
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrRateNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, RateResponse{
		Key:     code,
		Value:   value,
		IsStale: h.monitor.Assess().IsStale,
	})
}
