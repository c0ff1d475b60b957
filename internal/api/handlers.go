package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/openbridge/openbridge-backend/internal/analytics"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// MetricsInterface defines the interface for metrics recording
type MetricsInterface interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
}

type Handler struct {
	svc    *analytics.Service
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewHandler(svc *analytics.Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
		now:    time.Now,
	}
}

// Tracking endpoints

func (h *Handler) TrackTransaction(w http.ResponseWriter, r *http.Request) {
	var req analytics.TrackTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.svc.TrackTransaction(r.Context(), req)
	if err != nil {
		h.serviceError(w, err, "Failed to track transaction")
		return
	}
	writeJSON(w, http.StatusOK, TrackResponse{Success: true, ID: id})
}

func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req analytics.UpdateTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.UpdateTransaction(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		h.serviceError(w, err, "Failed to update transaction")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) TrackWallet(w http.ResponseWriter, r *http.Request) {
	var req analytics.TrackWalletRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.TrackWallet(r.Context(), req); err != nil {
		h.serviceError(w, err, "Failed to track wallet")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) TrackPageView(w http.ResponseWriter, r *http.Request) {
	var req analytics.TrackPageViewRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.TrackPageView(r.Context(), req, r.UserAgent()); err != nil {
		h.serviceError(w, err, "Failed to track pageview")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Dashboard endpoints

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		h.serviceError(w, err, "Failed to fetch dashboard stats")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page")
	limit := queryInt(r, "limit")

	res, err := h.svc.Transactions(r.Context(), page, limit)
	if err != nil {
		h.serviceError(w, err, "Failed to fetch transactions")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) VerifyKey(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Valid: h.svc.VerifyKey(req.Key)})
}

// Health and ops endpoints

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		h.logger.Warnw("Readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "Analytics store unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// queryInt returns 0 for a missing or malformed value; the service applies
// its defaults.
func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// Utility methods

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (h *Handler) serviceError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, analytics.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, analytics.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, analytics.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
	default:
		h.logger.Errorw("API error", "message", message, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
