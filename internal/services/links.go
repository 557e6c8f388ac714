package services

import (
	"strings"

	"github.com/akmatori/incidentd/internal/database"
	"github.com/akmatori/incidentd/internal/queue"
)

// Links builds the magic links embedded in notifications
type Links struct {
	baseURL string
}

// NewLinks creates a link builder rooted at the public base URL
func NewLinks(baseURL string) Links {
	return Links{baseURL: strings.TrimRight(baseURL, "/")}
}

// AckURL is the acknowledge link for an ack token
func (l Links) AckURL(token string) string {
	return l.baseURL + "/incidents/ack/" + token
}

// ResolveURL is the resolve link for a resolve token
func (l Links) ResolveURL(token string) string {
	return l.baseURL + "/incidents/resolve/" + token
}

// Snapshot renders an incident for a notification. The ack link is included
// while the incident is open and the resolve link once one has been minted.
func (l Links) Snapshot(incident *database.Incident) *queue.IncidentSnapshot {
	snap := &queue.IncidentSnapshot{
		ID:          incident.ID,
		Title:       incident.Title,
		Severity:    incident.Severity,
		Description: incident.Description,
		Source:      incident.Source,
		Status:      string(incident.Status),
		CreatedAt:   incident.CreatedAt,
	}
	if incident.Status == database.IncidentStatusOpen && incident.AckToken != "" {
		snap.AckURL = l.AckURL(incident.AckToken)
	}
	if incident.Status == database.IncidentStatusAcknowledged && incident.ResolveToken != nil {
		snap.ResolveURL = l.ResolveURL(*incident.ResolveToken)
	}
	return snap
}
