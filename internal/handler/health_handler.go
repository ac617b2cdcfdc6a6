package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go-saas-auth/internal/model"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	check HealthCheck
	now   func() time.Time
}

func NewHealthHandler(check HealthCheck) *HealthHandler {
	return &HealthHandler{check: check, now: time.Now}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{Status: "ok", Timestamp: h.now().UTC()}

	if h.check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.check(ctx); err != nil {
			slog.WarnContext(r.Context(), "health check failed", "error", err)
			resp.Status = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
