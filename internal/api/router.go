package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/transactions/{uuid}/confirm", h.ConfirmHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/transactions/{uuid}/notices", h.ListNoticesHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/simulate", h.SimulateHandler).Methods(http.MethodPost)
	return r
}
