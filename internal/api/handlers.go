package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/inapppay/internal/domain"
	"github.com/punchamoorthee/inapppay/internal/models"
	"github.com/punchamoorthee/inapppay/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inapppay_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inapppay_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Confirmer schedules work for confirmed purchases.
type Confirmer interface {
	Confirm(ctx context.Context, c service.Confirmation) (string, error)
}

type NoticeLister interface {
	ListNotices(ctx context.Context, transactionUUID string) ([]domain.Notice, error)
}

type Handler struct {
	trigger Confirmer
	notices NoticeLister
	logger  *slog.Logger
}

func NewHandler(trigger Confirmer, notices NoticeLister, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{trigger: trigger, notices: notices, logger: logger.With("module", "api", "layer", "transport")}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ConfirmHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/transactions/{uuid}/confirm"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	uuid := mux.Vars(r)["uuid"]
	var req models.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, "POST", endpoint, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	id, err := h.trigger.Confirm(r.Context(), service.Confirmation{
		TransactionUUID: uuid,
		Notes:           req.Notes,
		BuyerUUID:       req.BuyerUUID,
		Simulate:        req.Simulate,
	})
	if err != nil {
		h.serviceError(r.Context(), w, "POST", endpoint, uuid, err)
		return
	}
	h.scheduled(w, "POST", endpoint, uuid, id)
}

func (h *Handler) SimulateHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/simulate"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req models.SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, "POST", endpoint, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	sim := req.Simulation
	id, err := h.trigger.Confirm(r.Context(), service.Confirmation{
		TransactionUUID: req.TransactionUUID,
		Notes:           domain.Notes{IssuerKey: req.IssuerKey, PayRequest: req.PayRequest},
		Simulate:        &sim,
	})
	if err != nil {
		h.serviceError(r.Context(), w, "POST", endpoint, req.TransactionUUID, err)
		return
	}
	h.scheduled(w, "POST", endpoint, req.TransactionUUID, id)
}

func (h *Handler) ListNoticesHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/transactions/{uuid}/notices"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("GET", endpoint))
	defer timer.ObserveDuration()

	uuid := mux.Vars(r)["uuid"]
	notices, err := h.notices.ListNotices(r.Context(), uuid)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list notices failed",
			"operation", "list_notices",
			"outcome", "failure",
			"transaction_uuid", uuid,
			"error", err,
		)
		h.fail(w, "GET", endpoint, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if notices == nil {
		notices = []domain.Notice{}
	}
	httpRequestsTotal.WithLabelValues("GET", endpoint, "200").Inc()
	respondWithJSON(w, http.StatusOK, models.NoticeList{TransactionUUID: uuid, Notices: notices})
}

func (h *Handler) scheduled(w http.ResponseWriter, method, endpoint, uuid, taskID string) {
	status := "scheduled"
	if taskID == "" {
		status = "skipped"
	}
	httpRequestsTotal.WithLabelValues(method, endpoint, "202").Inc()
	respondWithJSON(w, http.StatusAccepted, models.TaskResponse{TransactionUUID: uuid, TaskID: taskID, Status: status})
}

func (h *Handler) serviceError(ctx context.Context, w http.ResponseWriter, method, endpoint, uuid string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSimulation),
		errors.Is(err, domain.ErrMissingIssuerKey),
		errors.Is(err, domain.ErrInvalidReason):
		h.fail(w, method, endpoint, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.ErrorContext(ctx, "scheduling failed",
			"operation", "confirm",
			"outcome", "failure",
			"transaction_uuid", uuid,
			"error", err,
		)
		h.fail(w, method, endpoint, http.StatusInternalServerError, "Internal Server Error")
	}
}

func (h *Handler) fail(w http.ResponseWriter, method, endpoint string, code int, message string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	respondWithError(w, code, message)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
