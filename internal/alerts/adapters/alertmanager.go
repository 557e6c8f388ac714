package adapters

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/akmatori/incidentd/internal/alerts"
)

// ErrMissingAlerts is returned when a webhook body has no alerts array
var ErrMissingAlerts = errors.New("Invalid payload: missing alerts array")

// AlertmanagerAdapter parses Prometheus Alertmanager webhooks
type AlertmanagerAdapter struct {
	sourceType string
}

// NewAlertmanagerAdapter creates a new Alertmanager adapter
func NewAlertmanagerAdapter() *AlertmanagerAdapter {
	return &AlertmanagerAdapter{sourceType: alerts.SourcePrometheus}
}

// GetSourceType returns the source type name
func (a *AlertmanagerAdapter) GetSourceType() string {
	return a.sourceType
}

// AlertmanagerPayload represents the webhook envelope sent by Alertmanager.
// Alerts is kept raw so every element can be decoded on its own.
type AlertmanagerPayload struct {
	Version           string            `json:"version"`
	GroupKey          string            `json:"groupKey"`
	Status            string            `json:"status"`
	Receiver          string            `json:"receiver"`
	GroupLabels       map[string]string `json:"groupLabels"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
	ExternalURL       string            `json:"externalURL"`
	Alerts            json.RawMessage   `json:"alerts"`
}

// ParsedAlert is one element of the alerts array
type ParsedAlert struct {
	Alert     alerts.RawAlert
	AlertName string
}

// ParsePayload decodes the envelope and each alert individually. A body whose
// alerts field is absent or not an array yields ErrMissingAlerts.
func (a *AlertmanagerAdapter) ParsePayload(body []byte) ([]ParsedAlert, error) {
	var payload AlertmanagerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse alertmanager payload: %w", err)
	}

	trimmed := bytes.TrimSpace(payload.Alerts)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrMissingAlerts
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, ErrMissingAlerts
	}

	parsed := make([]ParsedAlert, 0, len(items))
	for _, item := range items {
		parsed = append(parsed, a.parseAlert(item))
	}
	return parsed, nil
}

// parseAlert keeps every element, whatever its shape. Elements with missing or
// mistyped fields are turned away later by alerts.Verify.
func (a *AlertmanagerAdapter) parseAlert(item json.RawMessage) ParsedAlert {
	var alert alerts.RawAlert
	// RawAlert decoding only fails on malformed JSON, which ParsePayload already ruled out
	_ = json.Unmarshal(item, &alert)
	return ParsedAlert{Alert: alert, AlertName: alert.Labels["alertname"]}
}
