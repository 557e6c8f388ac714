package alerts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/akmatori/incidentd/internal/database"
)

// SourcePrometheus is the only alert source the pipeline accepts
const SourcePrometheus = "prometheus"

// RawAlert is a single Alertmanager webhook alert as received. It is never
// modified after it has been queued.
//
// Decoding never fails on a well-formed JSON value: fields of the wrong type
// decode as absent so that Verify, not the webhook, rejects the alert.
type RawAlert struct {
	Status       string            `json:"status,omitempty"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     string            `json:"startsAt,omitempty"`
	Timestamp    string            `json:"timestamp,omitempty"`
	EndsAt       string            `json:"endsAt,omitempty"`
	GeneratorURL string            `json:"generatorURL,omitempty"`
	Fingerprint  string            `json:"fingerprint,omitempty"`
}

// UnmarshalJSON decodes an alert leniently. Scalar values are kept as their
// JSON text, and labels or annotations that are not objects become nil.
func (r *RawAlert) UnmarshalJSON(data []byte) error {
	*r = RawAlert{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// not an object
		return nil
	}
	r.Status, _ = looseString(fields["status"])
	r.Labels = looseStringMap(fields["labels"])
	r.Annotations = looseStringMap(fields["annotations"])
	r.StartsAt, _ = looseString(fields["startsAt"])
	r.Timestamp, _ = looseString(fields["timestamp"])
	r.EndsAt, _ = looseString(fields["endsAt"])
	r.GeneratorURL, _ = looseString(fields["generatorURL"])
	r.Fingerprint, _ = looseString(fields["fingerprint"])
	return nil
}

// looseString reads a JSON string, number or bool. Objects, arrays and null
// report false.
func looseString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch v.(type) {
	case float64, bool:
		return string(raw), true
	}
	return "", false
}

func looseStringMap(raw json.RawMessage) map[string]string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := looseString(v); ok {
			out[k] = s
		}
	}
	return out
}

// AlertName returns the alertname label, or "unknown" when absent
func (r RawAlert) AlertName() string {
	if name := r.Labels["alertname"]; name != "" {
		return name
	}
	return "unknown"
}

// RawDetails keeps the parts of the raw alert that are useful for debugging
type RawDetails struct {
	Fingerprint  string            `json:"fingerprint,omitempty"`
	GeneratorURL string            `json:"generatorURL,omitempty"`
	Annotations  map[string]string `json:"annotations,omitempty"`
}

// NormalizedAlert is the canonical alert shape handed to correlation
type NormalizedAlert struct {
	ID        string                 `json:"id"`
	Service   string                 `json:"service"`
	Severity  database.AlertSeverity `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Labels    map[string]string      `json:"labels"`
	Source    string                 `json:"source"`
	Raw       RawDetails             `json:"_raw"`
}

// AlertName returns the alertname label of the normalized alert
func (n *NormalizedAlert) AlertName() string {
	return n.Labels["alertname"]
}

// VerificationResult is the outcome of Verify
type VerificationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

// ErrNormalization is the sentinel wrapped by every NormalizationError
var ErrNormalization = errors.New("normalization failed")

// NormalizationError reports why a verified alert could not be normalized
type NormalizationError struct {
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("Normalization failed: %s", e.Reason)
}

func (e *NormalizationError) Unwrap() error {
	return ErrNormalization
}
