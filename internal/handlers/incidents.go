package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/alerts"
	"github.com/akmatori/incidentd/internal/api"
	"github.com/akmatori/incidentd/internal/database"
	"github.com/akmatori/incidentd/internal/metrics"
	"github.com/akmatori/incidentd/internal/queue"
	"github.com/akmatori/incidentd/internal/services"
	"github.com/akmatori/incidentd/internal/utils"
)

// IncidentPusher enqueues incidents for assignment
type IncidentPusher interface {
	Push(ctx context.Context, msg queue.IncidentMessage) error
}

// IncidentHandler handles the incident API and the magic links
type IncidentHandler struct {
	incidents *services.IncidentService
	lifecycle *services.LifecycleService
	assign    IncidentPusher
	links     services.Links
	log       *zap.Logger
}

// NewIncidentHandler creates a new incident handler
func NewIncidentHandler(
	incidents *services.IncidentService,
	lifecycle *services.LifecycleService,
	assign IncidentPusher,
	links services.Links,
	log *zap.Logger,
) *IncidentHandler {
	return &IncidentHandler{
		incidents: incidents,
		lifecycle: lifecycle,
		assign:    assign,
		links:     links,
		log:       log.Named("incidents"),
	}
}

// CreateIncidentRequest is the body of POST /incidents
type CreateIncidentRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Severity    string `json:"severity" validate:"required,severity"`
	Source      string `json:"source" validate:"max=255"`
	Description string `json:"description"`
	AlertID     string `json:"alert_id" validate:"omitempty,uuid"`
}

// UpdateStatusRequest is the body of PATCH /incidents/{id}
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// IncidentResponse is an incident with its linked alert count
type IncidentResponse struct {
	*database.Incident
	AlertCount int64 `json:"alert_count"`
}

// TransitionResponse answers a magic link call in JSON
type TransitionResponse struct {
	Message  string             `json:"message"`
	Status   string             `json:"status"`
	Incident *database.Incident `json:"incident"`
}

const invalidLinkMessage = "Invalid or expired link"

// HandleCreate creates an open incident and queues it for assignment
func (h *IncidentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := api.Validate(req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	severity, _ := alerts.NormalizeSeverity(req.Severity)
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "manual"
	}

	incident, err := h.incidents.CreateIncident(r.Context(), services.CreateIncidentParams{
		Title:       strings.TrimSpace(req.Title),
		Severity:    string(severity),
		Source:      source,
		Description: req.Description,
		AlertID:     req.AlertID,
	})
	if err != nil {
		api.RespondInternalError(w, h.log, "Failed to create incident", err)
		return
	}
	metrics.IncidentsCreated.Inc()

	// the incident exists either way; a failed push is logged, not retried
	err = h.assign.Push(r.Context(), queue.IncidentMessage{
		IncidentID: incident.ID,
		Title:      incident.Title,
		Severity:   incident.Severity,
		Source:     incident.Source,
		CreatedAt:  incident.CreatedAt,
	})
	if err != nil {
		h.log.Error("Failed to queue incident for assignment", zap.String("incident_id", incident.ID), zap.Error(err))
	} else {
		metrics.QueuePushes.WithLabelValues(queue.Incidents).Inc()
	}

	h.log.Info("Incident created", zap.String("incident_id", incident.ID), zap.String("severity", incident.Severity))
	api.RespondJSON(w, http.StatusCreated, incident)
}

// HandleList returns incidents newest first
func (h *IncidentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := database.IncidentStatus(q.Get("status"))
	if status != "" && !status.IsValid() {
		api.RespondError(w, http.StatusBadRequest, invalidStatusMessage)
		return
	}

	p := api.ParsePagination(r)
	list, total, err := h.incidents.ListIncidents(r.Context(), services.IncidentFilter{
		Status:     status,
		AssignedTo: q.Get("assigned_to"),
		Limit:      p.PerPage,
		Offset:     p.Offset(),
	})
	if err != nil {
		api.RespondInternalError(w, h.log, "Failed to list incidents", err)
		return
	}
	api.RespondList(w, list, p, total)
}

// HandleGet returns one incident with its alert count
func (h *IncidentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := utils.ValidateIncidentID(id); err != nil {
		api.RespondError(w, http.StatusNotFound, "Incident not found")
		return
	}

	incident, err := h.incidents.GetIncident(r.Context(), id)
	if errors.Is(err, services.ErrIncidentNotFound) {
		api.RespondError(w, http.StatusNotFound, "Incident not found")
		return
	}
	if err != nil {
		api.RespondInternalError(w, h.log, "Failed to get incident", err)
		return
	}

	count, err := h.incidents.AlertCountForIncident(r.Context(), id)
	if err != nil {
		api.RespondInternalError(w, h.log, "Failed to count incident alerts", err)
		return
	}
	api.RespondJSON(w, http.StatusOK, IncidentResponse{Incident: incident, AlertCount: count})
}

var invalidStatusMessage = "status must be one of: " + joinStatuses()

func joinStatuses() string {
	names := make([]string, 0, 4)
	for _, s := range database.ValidIncidentStatuses() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// HandleUpdateStatus is the administrative status change
func (h *IncidentHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := api.DecodeJSONLenient(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := database.IncidentStatus(req.Status)
	if !status.IsValid() {
		api.RespondError(w, http.StatusBadRequest, invalidStatusMessage)
		return
	}

	id := r.PathValue("id")
	if utils.ValidateIncidentID(id) != nil {
		api.RespondError(w, http.StatusNotFound, "Incident not found")
		return
	}

	incident, err := h.lifecycle.UpdateStatus(r.Context(), id, status)
	switch {
	case errors.Is(err, services.ErrIncidentNotFound):
		api.RespondError(w, http.StatusNotFound, "Incident not found")
	case errors.Is(err, services.ErrInvalidStatus):
		api.RespondError(w, http.StatusBadRequest, invalidStatusMessage)
	case err != nil:
		api.RespondInternalError(w, h.log, "Failed to update incident status", err)
	default:
		api.RespondJSON(w, http.StatusOK, incident)
	}
}

// HandleAcknowledge applies an ack magic link
func (h *IncidentHandler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.handleLink(w, r, "acknowledge", h.lifecycle.Acknowledge)
}

// HandleResolve applies a resolve magic link
func (h *IncidentHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	h.handleLink(w, r, "resolve", h.lifecycle.Resolve)
}

func (h *IncidentHandler) handleLink(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	apply func(context.Context, string) (services.TransitionResult, error),
) {
	token := r.PathValue("token")
	log := h.log.With(zap.String("action", action), zap.String("token", utils.MaskToken(token)))

	result := services.TransitionResult{Outcome: services.OutcomeInvalidToken}
	if utils.LooksLikeToken(token) {
		var err error
		result, err = apply(r.Context(), token)
		if err != nil {
			log.Error("Magic link failed", zap.Error(err))
			h.respondLinkError(w, r)
			return
		}
	}

	status := http.StatusOK
	switch result.Outcome {
	case services.OutcomeInvalidToken:
		log.Info("Rejected magic link")
		status = http.StatusNotFound
	case services.OutcomeMustAcknowledgeFirst:
		status = http.StatusConflict
	default:
		log.Info("Magic link applied", zap.String("incident_id", result.Incident.ID), zap.String("outcome", string(result.Outcome)))
	}

	if api.WantsHTML(r) {
		page, err := renderTransitionPage(result, h.links)
		if err != nil {
			log.Error("Failed to render page", zap.Error(err))
			h.respondLinkError(w, r)
			return
		}
		api.RespondHTML(w, status, page)
		return
	}

	if result.Outcome == services.OutcomeInvalidToken {
		api.RespondJSON(w, status, api.ErrorResponse{
			Error:   invalidLinkMessage,
			Message: "The link is invalid or has expired. Please check your notification for the correct link.",
		})
		return
	}
	api.RespondJSON(w, status, TransitionResponse{
		Message:  result.Message(),
		Status:   string(result.Incident.Status),
		Incident: result.Incident,
	})
}

func (h *IncidentHandler) respondLinkError(w http.ResponseWriter, r *http.Request) {
	if api.WantsHTML(r) {
		api.RespondHTML(w, http.StatusInternalServerError, errorPage)
		return
	}
	api.RespondError(w, http.StatusInternalServerError, "Internal server error")
}

// HandleSREMetrics returns mean time to acknowledge and to resolve
func (h *IncidentHandler) HandleSREMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.incidents.ComputeSREMetrics(r.Context())
	if err != nil {
		api.RespondInternalError(w, h.log, "Failed to compute SRE metrics", err)
		return
	}
	api.RespondJSON(w, http.StatusOK, m)
}
