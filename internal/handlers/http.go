package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/api"
	"github.com/akmatori/incidentd/internal/metrics"
	"github.com/akmatori/incidentd/internal/middleware"
	"github.com/akmatori/incidentd/internal/queue"
)

// HealthCheck is one dependency checked by /health
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HTTPHandler handles HTTP endpoints
type HTTPHandler struct {
	alertHandler    *AlertHandler
	incidentHandler *IncidentHandler
	queues          *queue.Set
	checks          []HealthCheck
	log             *zap.Logger
}

// NewHTTPHandler creates a new HTTP handler. queues may be nil, in which
// case queue depth gauges are not refreshed on scrape.
func NewHTTPHandler(alertHandler *AlertHandler, incidentHandler *IncidentHandler, queues *queue.Set, log *zap.Logger, checks ...HealthCheck) *HTTPHandler {
	return &HTTPHandler{
		alertHandler:    alertHandler,
		incidentHandler: incidentHandler,
		queues:          queues,
		checks:          checks,
		log:             log.Named("http"),
	}
}

// SetupRoutes configures all HTTP routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /metrics", h.handleMetrics)

	if h.alertHandler != nil {
		mux.HandleFunc("POST /alerts/webhook", h.alertHandler.HandleWebhook)
		mux.HandleFunc("POST /api/prometheus/webhook", h.alertHandler.HandleWebhook)
		mux.HandleFunc("GET /alerts/stats", h.alertHandler.HandleStats)
		mux.HandleFunc("GET /alerts", h.alertHandler.HandleListAlerts)
		mux.HandleFunc("GET /alerts/{id}", h.alertHandler.HandleGetAlert)
	}

	if h.incidentHandler != nil {
		mux.HandleFunc("POST /incidents", h.incidentHandler.HandleCreate)
		mux.HandleFunc("GET /incidents", h.incidentHandler.HandleList)
		mux.HandleFunc("GET /incidents/metrics/sre", h.incidentHandler.HandleSREMetrics)
		mux.HandleFunc("GET /incidents/ack/{token}", h.incidentHandler.HandleAcknowledge)
		mux.HandleFunc("GET /incidents/resolve/{token}", h.incidentHandler.HandleResolve)
		mux.HandleFunc("GET /incidents/{id}", h.incidentHandler.HandleGet)
		mux.HandleFunc("PATCH /incidents/{id}", h.incidentHandler.HandleUpdateStatus)
	}
}

// Handler returns the routed mux wrapped in the request-id, access-log and
// CORS middleware
func (h *HTTPHandler) Handler(corsOrigins ...string) http.Handler {
	mux := http.NewServeMux()
	h.SetupRoutes(mux)

	var handler http.Handler = mux
	handler = middleware.NewCORSMiddleware(corsOrigins...).Wrap(handler)
	handler = middleware.AccessLog(h.log)(handler)
	return middleware.RequestIDMiddleware(handler)
}

// handleHealth reports ok when every dependency answers, 503 otherwise
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.log.Warn("Health check failed", zap.String("dependency", c.Name), zap.Error(err))
			deps[c.Name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[c.Name] = "ok"
	}

	body := map[string]interface{}{
		"status":       "ok",
		"service":      "incidentd",
		"timestamp":    time.Now().UTC(),
		"dependencies": deps,
	}
	if status != http.StatusOK {
		body["status"] = "error"
	}
	api.RespondJSON(w, status, body)
}

// handleMetrics refreshes the queue depth gauges and serves the registry
func (h *HTTPHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.queues != nil {
		depths, err := h.queues.Depths(r.Context())
		if err != nil {
			h.log.Warn("Failed to read queue depths", zap.Error(err))
		}
		for _, d := range depths {
			metrics.QueueDepth.WithLabelValues(d.Queue).Set(float64(d.Len))
		}
	}
	metrics.Handler().ServeHTTP(w, r)
}
