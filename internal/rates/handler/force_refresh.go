package handler

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"ratewatch/internal/domain"
)

type ForceRefreshResponse struct {
	ExecID      string   `json:"exec_id"`
	CryptoCount int      `json:"crypto_count"`
	FiatCount   int      `json:"fiat_count"`
	Errors      []string `json:"errors,omitempty"`
}

func (h *Handler) ForceRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.ForceRefresh()
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRefreshInFlight):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrSchedulerStopped):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			msg := "refresh failed"
			logrus.WithError(err).WithField("handler", "ForceRefresh").Error(msg)
			writeError(w, http.StatusBadGateway, msg)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, ForceRefreshResponse{
		ExecID:      result.ExecID,
		CryptoCount: result.CryptoCount,
		FiatCount:   result.FiatCount,
		Errors:      result.Errors,
	})
}
