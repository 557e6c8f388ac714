// Package decision decides whether an incoming alert opens an incident,
// joins an existing one, or is only recorded.
package decision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/akmatori/incidentd/internal/database"
)

// Action is the outcome of a decision
type Action string

const (
	ActionCreate Action = "create"
	ActionAttach Action = "attach"
	ActionSkip   Action = "skip"
)

// Candidate is the alert being correlated
type Candidate struct {
	AlertID        string
	Source         string
	Title          string
	Description    string
	Severity       string
	FiringDuration time.Duration
}

// Decision is the result of evaluating the rules for one candidate.
// Existing is set for ActionAttach, and for a skip when the alert is
// already linked to an incident.
type Decision struct {
	Action   Action
	Reason   string
	Existing *database.Incident
}

// Rules holds the thresholds the engine applies
type Rules struct {
	DedupWindow             time.Duration
	StormWindow             time.Duration
	StormThreshold          int
	FiringDurationThreshold time.Duration
}

// Store is the read side the engine needs from the incident store
type Store interface {
	// FindOpenIncidentForSource returns the newest open incident for source
	// created after since, or nil when there is none.
	FindOpenIncidentForSource(ctx context.Context, source string, since time.Time) (*database.Incident, error)
	// CountSimilarAlerts counts alerts with the same source and title received after since.
	CountSimilarAlerts(ctx context.Context, source, title string, since time.Time) (int64, error)
}

// Engine evaluates the correlation rules
type Engine struct {
	store Store
	rules Rules
	now   func() time.Time
}

// NewEngine creates a decision engine
func NewEngine(store Store, rules Rules) *Engine {
	return &Engine{store: store, rules: rules, now: func() time.Time { return time.Now().UTC() }}
}

// Decide applies the rules in order:
//  1. critical severity always creates
//  2. an alert storm on (source, title) creates
//  3. no open incident for the source and (high severity or long firing) creates
//  4. an open incident for the source attaches
//  5. anything else is skipped
//
// The candidate's own alert must already be persisted so it counts toward the storm.
func (e *Engine) Decide(ctx context.Context, c Candidate) (Decision, error) {
	severity := strings.ToLower(c.Severity)

	if severity == string(database.AlertSeverityCritical) {
		return Decision{Action: ActionCreate, Reason: "Rule 1: severity is critical, always create incident"}, nil
	}

	now := e.now()

	similar, err := e.store.CountSimilarAlerts(ctx, c.Source, c.Title, now.Add(-e.rules.StormWindow))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count similar alerts: %w", err)
	}
	if similar >= int64(e.rules.StormThreshold) {
		return Decision{
			Action: ActionCreate,
			Reason: fmt.Sprintf("Rule 2: alert storm, %d similar alerts in last %s", similar, e.rules.StormWindow),
		}, nil
	}

	existing, err := e.store.FindOpenIncidentForSource(ctx, c.Source, now.Add(-e.rules.DedupWindow))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to look up open incident: %w", err)
	}

	longFiring := c.FiringDuration > e.rules.FiringDurationThreshold
	if existing == nil && (severity == string(database.AlertSeverityHigh) || longFiring) {
		why := "severity is high"
		if severity != string(database.AlertSeverityHigh) {
			why = fmt.Sprintf("firing for %.1f min", c.FiringDuration.Minutes())
		}
		return Decision{
			Action: ActionCreate,
			Reason: fmt.Sprintf("Rule 3: no open incident for %q and %s", c.Source, why),
		}, nil
	}

	if existing != nil {
		return Decision{
			Action:   ActionAttach,
			Reason:   fmt.Sprintf("Dedup: open incident %s exists for %q, attaching alert", existing.ID, c.Source),
			Existing: existing,
		}, nil
	}

	return Decision{
		Action: ActionSkip,
		Reason: fmt.Sprintf("No rules matched (severity=%s, similar=%d, firing=%.1fmin), logging only",
			severity, similar, c.FiringDuration.Minutes()),
	}, nil
}
