package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/alerts"
	"github.com/akmatori/incidentd/internal/alerts/adapters"
	"github.com/akmatori/incidentd/internal/api"
	"github.com/akmatori/incidentd/internal/database"
	"github.com/akmatori/incidentd/internal/metrics"
	"github.com/akmatori/incidentd/internal/services"
	"github.com/akmatori/incidentd/internal/workers"
)

// AlertQueue accepts raw alerts for asynchronous processing
type AlertQueue interface {
	Enqueue(ctx context.Context, alert alerts.RawAlert) (string, error)
	Stats() workers.Stats
}

// AlertHandler handles the Alertmanager webhook and the alert read API
type AlertHandler struct {
	queue   AlertQueue
	alerts  *services.AlertService
	adapter *adapters.AlertmanagerAdapter
	log     *zap.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(queue AlertQueue, alertService *services.AlertService, log *zap.Logger) *AlertHandler {
	return &AlertHandler{
		queue:   queue,
		alerts:  alertService,
		adapter: adapters.NewAlertmanagerAdapter(),
		log:     log.Named("alerts"),
	}
}

// WebhookResult is the per-alert outcome of a webhook call
type WebhookResult struct {
	Success   bool   `json:"success"`
	JobID     string `json:"jobId,omitempty"`
	Error     string `json:"error,omitempty"`
	AlertName string `json:"alertname,omitempty"`
}

// WebhookSummary counts the outcomes of a webhook call
type WebhookSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// WebhookResponse is returned by the webhook endpoint
type WebhookResponse struct {
	Message string          `json:"message"`
	Summary WebhookSummary  `json:"summary"`
	Results []WebhookResult `json:"results"`
}

// HandleWebhook enqueues every alert of an Alertmanager payload. Individual
// alerts may fail without failing the request.
func (h *AlertHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := api.ReadBody(r, api.MaxWebhookBodySize)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	parsed, err := h.adapter.ParsePayload(body)
	if errors.Is(err, adapters.ErrMissingAlerts) {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	h.log.Info("Received alerts", zap.String("source", h.adapter.GetSourceType()), zap.Int("count", len(parsed)))
	metrics.AlertsReceived.Add(float64(len(parsed)))

	resp := WebhookResponse{
		Message: "Alerts received and queued for processing",
		Results: make([]WebhookResult, 0, len(parsed)),
	}
	for _, p := range parsed {
		result := WebhookResult{AlertName: p.AlertName}
		if jobID, err := h.queue.Enqueue(r.Context(), p.Alert); err != nil {
			h.log.Error("Failed to enqueue alert", zap.String("alertname", p.AlertName), zap.Error(err))
			result.Error = "Failed to enqueue alert"
		} else {
			result.Success = true
			result.JobID = jobID
		}

		if result.Success {
			resp.Summary.Successful++
		} else {
			resp.Summary.Failed++
		}
		resp.Results = append(resp.Results, result)
	}
	resp.Summary.Total = len(parsed)

	api.RespondJSON(w, http.StatusOK, resp)
}

// HandleStats returns the alert processor counters
func (h *AlertHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	api.RespondJSON(w, http.StatusOK, h.queue.Stats())
}

// HandleListAlerts returns persisted alerts, newest first. With incident_id
// it returns the alerts linked to that incident instead.
func (h *AlertHandler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	if incidentID := r.URL.Query().Get("incident_id"); incidentID != "" {
		list, err := h.alerts.AlertsForIncident(r.Context(), incidentID)
		if err != nil {
			api.RespondInternalError(w, h.log, "Failed to list incident alerts", err)
			return
		}
		api.RespondList(w, list, api.PaginationParams{Page: 1, PerPage: len(list)}, int64(len(list)))
		return
	}

	p := api.ParsePagination(r)
	list, total, err := h.alerts.ListAlerts(r.Context(), r.URL.Query().Get("source"), p.PerPage, p.Offset())
	if err != nil {
		api.RespondInternalError(w, h.log, "Failed to list alerts", err)
		return
	}
	api.RespondList[database.Alert](w, list, p, total)
}

// HandleGetAlert returns one persisted alert
func (h *AlertHandler) HandleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.GetAlert(r.Context(), r.PathValue("id"))
	if errors.Is(err, services.ErrAlertNotFound) {
		api.RespondError(w, http.StatusNotFound, "Alert not found")
		return
	}
	if err != nil {
		api.RespondInternalError(w, h.log, "Failed to get alert", err)
		return
	}
	api.RespondJSON(w, http.StatusOK, alert)
}
