package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Normalizer turns a verified raw alert into a NormalizedAlert.
// Workers accept it as a dependency so tests can substitute failures.
type Normalizer func(alert RawAlert) (*NormalizedAlert, error)

// Normalize converts a verified raw alert into the canonical shape.
// It returns a *NormalizationError when the severity cannot be mapped.
func Normalize(alert RawAlert) (*NormalizedAlert, error) {
	raw := rawSeverity(alert.Labels)
	severity, ok := NormalizeSeverity(raw)
	if !ok {
		return nil, &NormalizationError{Reason: fmt.Sprintf("Cannot normalize severity: %s", raw)}
	}

	message := firstNonEmpty(
		alert.Annotations["summary"],
		alert.Annotations["message"],
		alert.Annotations["description"],
	)
	if message == "" {
		message = fmt.Sprintf("Alert: %s", alert.Labels["alertname"])
	}

	timestamp := time.Now().UTC()
	if ts := rawTimestamp(alert); ts != "" {
		parsed, err := ParseTimestamp(ts)
		if err != nil {
			return nil, &NormalizationError{Reason: err.Error()}
		}
		timestamp = parsed
	}

	labels := make(map[string]string, len(alert.Labels)+1)
	for k, v := range alert.Labels {
		labels[k] = v
	}

	return &NormalizedAlert{
		ID:        uuid.New().String(),
		Service:   ExtractServiceName(alert.Labels),
		Severity:  severity,
		Message:   message,
		Timestamp: timestamp,
		Labels:    labels,
		Source:    SourcePrometheus,
		Raw: RawDetails{
			Fingerprint:  alert.Fingerprint,
			GeneratorURL: alert.GeneratorURL,
			Annotations:  alert.Annotations,
		},
	}, nil
}

// IsValid is the structural gate applied after normalization
func IsValid(alert *NormalizedAlert) bool {
	if alert == nil {
		return false
	}
	return alert.Service != "" &&
		alert.Severity != "" &&
		alert.Message != "" &&
		!alert.Timestamp.IsZero() &&
		alert.Labels != nil &&
		alert.Labels["alertname"] != "" &&
		alert.Source == SourcePrometheus
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
