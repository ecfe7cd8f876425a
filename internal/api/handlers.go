package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vigilstack/vigil-healer/internal/models"
	"github.com/vigilstack/vigil-healer/internal/services"
)

// Handlers exposes the heal service over HTTP. Logical failures inside a
// run still produce a 200 with the report body; non-2xx codes are reserved
// for malformed requests and genuinely unexpected faults.
type Handlers struct {
	service *services.HealService
	logger  *slog.Logger
}

// NewHandlers constructs the HTTP handler set.
func NewHandlers(service *services.HealService, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{service: service, logger: logger}
}

// Heal handles POST /heal.
func (h *Handlers) Heal(w http.ResponseWriter, r *http.Request) {
	var req models.HealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	report, err := h.service.Heal(r.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrServiceRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("heal request failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// History handles GET /history.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	writeJSON(w, http.StatusOK, h.service.History(limit))
}

// HistoryStats handles GET /history/stats.
func (h *Handlers) HistoryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.HistoryStats())
}

// RecentMetrics handles GET /services/{service}/metrics.
func (h *Handlers) RecentMetrics(w http.ResponseWriter, r *http.Request) {
	service := mux.Vars(r)["service"]
	limit := queryInt(r, "limit", 10)

	resp, err := h.service.RecentMetrics(r.Context(), service, limit)
	if err != nil {
		if errors.Is(err, services.ErrServiceRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("recent metrics request failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Health())
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
