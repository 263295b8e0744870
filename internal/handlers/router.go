package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"identity-reconciliation/internal/middleware"
)

// NewRouter wires the HTTP surface. gatherer may be nil to leave /metrics
// unregistered.
func NewRouter(identify *IdentifyHandler, gatherer prometheus.Gatherer, logger *zap.Logger) *mux.Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.AccessLog(logger), middleware.Recover(logger))

	router.HandleFunc("/identify", identify.Handle).Methods(http.MethodPost)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Identity reconciliation service is running"))
	}).Methods(http.MethodGet)

	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// mux does not run router.Use middleware for these two
	unmatched := func(status int, msg string) http.Handler {
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, status, msg, logger)
		})
		return middleware.RequestID(middleware.AccessLog(logger)(h))
	}
	router.MethodNotAllowedHandler = unmatched(http.StatusMethodNotAllowed, "Method not allowed")
	router.NotFoundHandler = unmatched(http.StatusNotFound, "Not found")
	return router
}
