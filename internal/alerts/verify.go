package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/akmatori/incidentd/internal/database"
)

// severityAliases maps accepted severity spellings to their normalized level
var severityAliases = map[string]database.AlertSeverity{
	"critical": database.AlertSeverityCritical,
	"high":     database.AlertSeverityHigh,
	"warning":  database.AlertSeverityWarning,
	"info":     database.AlertSeverityInfo,
	"page":     database.AlertSeverityCritical,
	"urgent":   database.AlertSeverityHigh,
	"low":      database.AlertSeverityInfo,
}

// timestampLayouts are tried in order when parsing alert timestamps
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// NormalizeSeverity maps a raw severity value to one of the four levels.
// Matching is case-insensitive; the second return is false for unknown values.
func NormalizeSeverity(severity string) (database.AlertSeverity, bool) {
	s, ok := severityAliases[strings.ToLower(strings.TrimSpace(severity))]
	return s, ok
}

// ParseTimestamp parses the timestamp formats Alertmanager and friends send
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// ExtractServiceName picks the service an alert belongs to.
// Priority: instance > service > job > alertname.
func ExtractServiceName(labels map[string]string) string {
	for _, key := range []string{"instance", "service", "job", "alertname"} {
		if v := labels[key]; v != "" {
			return v
		}
	}
	return "unknown-service"
}

func rawSeverity(labels map[string]string) string {
	if s := labels["severity"]; s != "" {
		return s
	}
	return labels["priority"]
}

func rawTimestamp(alert RawAlert) string {
	if alert.StartsAt != "" {
		return alert.StartsAt
	}
	return alert.Timestamp
}

// Verify checks that a raw alert is a firing alert worth processing.
// Checks run in a fixed order and the first failure is reported.
func Verify(alert RawAlert) VerificationResult {
	if alert.Status == "" {
		return VerificationResult{Reason: "Missing status field"}
	}
	if alert.Status != "firing" {
		return VerificationResult{Reason: fmt.Sprintf("Alert status is '%s', not 'firing'", alert.Status)}
	}

	if alert.Labels == nil {
		return VerificationResult{Reason: "Missing or invalid labels object"}
	}
	if alert.Labels["alertname"] == "" {
		return VerificationResult{Reason: "Missing alertname in labels"}
	}

	severity := rawSeverity(alert.Labels)
	if severity == "" {
		return VerificationResult{Reason: "Missing severity/priority in labels"}
	}
	if _, ok := NormalizeSeverity(severity); !ok {
		return VerificationResult{Reason: fmt.Sprintf("Invalid severity '%s'", severity)}
	}

	ts := rawTimestamp(alert)
	if ts == "" {
		return VerificationResult{Reason: "Missing timestamp (startsAt or timestamp)"}
	}
	if _, err := ParseTimestamp(ts); err != nil {
		return VerificationResult{Reason: fmt.Sprintf("Invalid timestamp format: %s", ts)}
	}

	if alert.Annotations == nil {
		return VerificationResult{Reason: "Missing annotations object"}
	}
	if alert.Annotations["summary"] == "" && alert.Annotations["message"] == "" && alert.Annotations["description"] == "" {
		return VerificationResult{Reason: "Missing message in annotations (summary/message/description)"}
	}

	return VerificationResult{Valid: true, Reason: "Alert verified successfully"}
}
