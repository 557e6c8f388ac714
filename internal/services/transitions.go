package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/akmatori/incidentd/internal/database"
	"github.com/akmatori/incidentd/internal/utils"
)

// TransitionOutcome describes what a token-gated transition did
type TransitionOutcome string

const (
	OutcomeAcknowledged         TransitionOutcome = "acknowledged"
	OutcomeResolved             TransitionOutcome = "resolved"
	OutcomeAlreadyAcknowledged  TransitionOutcome = "already_acknowledged"
	OutcomeAlreadyResolved      TransitionOutcome = "already_resolved"
	OutcomeAlreadyClosed        TransitionOutcome = "already_closed"
	OutcomeMustAcknowledgeFirst TransitionOutcome = "must_acknowledge_first"
	OutcomeInvalidToken         TransitionOutcome = "invalid_token"
)

// TransitionResult is returned by Acknowledge and Resolve. Incident is nil
// only for OutcomeInvalidToken.
type TransitionResult struct {
	Outcome  TransitionOutcome
	Incident *database.Incident
}

// Changed reports whether the call moved the incident to a new state
func (r TransitionResult) Changed() bool {
	return r.Outcome == OutcomeAcknowledged || r.Outcome == OutcomeResolved
}

// Message is the human readable summary of the outcome
func (r TransitionResult) Message() string {
	switch r.Outcome {
	case OutcomeAcknowledged:
		return "Incident acknowledged"
	case OutcomeResolved:
		return "Incident resolved"
	case OutcomeAlreadyAcknowledged:
		return "Incident already acknowledged"
	case OutcomeAlreadyResolved:
		return "Incident already resolved"
	case OutcomeAlreadyClosed:
		return "Incident already closed"
	case OutcomeMustAcknowledgeFirst:
		return "Incident must be acknowledged before it can be resolved"
	default:
		return "Invalid or expired link"
	}
}

func informational(incident *database.Incident) TransitionResult {
	switch incident.Status {
	case database.IncidentStatusAcknowledged:
		return TransitionResult{Outcome: OutcomeAlreadyAcknowledged, Incident: incident}
	case database.IncidentStatusResolved:
		return TransitionResult{Outcome: OutcomeAlreadyResolved, Incident: incident}
	case database.IncidentStatusClosed:
		return TransitionResult{Outcome: OutcomeAlreadyClosed, Incident: incident}
	default:
		return TransitionResult{Outcome: OutcomeMustAcknowledgeFirst, Incident: incident}
	}
}

func (s *IncidentService) findByToken(ctx context.Context, column, token string) (*database.Incident, error) {
	if token == "" {
		return nil, nil
	}
	var incident database.Incident
	err := s.db.WithContext(ctx).Where(column+" = ?", token).First(&incident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// Acknowledge moves the incident holding ackToken from open to acknowledged
// and mints its resolve token. The update is conditional on the incident
// still being open, so concurrent clicks mint exactly one resolve token.
// The ack token stays valid afterwards and keeps answering informationally.
func (s *IncidentService) Acknowledge(ctx context.Context, ackToken string) (TransitionResult, error) {
	incident, err := s.findByToken(ctx, "ack_token", ackToken)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("failed to look up ack token: %w", err)
	}
	if incident == nil {
		return TransitionResult{Outcome: OutcomeInvalidToken}, nil
	}
	if incident.Status != database.IncidentStatusOpen {
		return informational(incident), nil
	}

	resolveToken, err := utils.GenerateToken()
	if err != nil {
		return TransitionResult{}, err
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&database.Incident{}).
		Where("id = ? AND status = ?", incident.ID, database.IncidentStatusOpen).
		Updates(map[string]interface{}{
			"status":          database.IncidentStatusAcknowledged,
			"acknowledged_at": now,
			"resolve_token":   resolveToken,
			"updated_at":      now,
		})
	if res.Error != nil {
		return TransitionResult{}, fmt.Errorf("failed to acknowledge incident %s: %w", incident.ID, res.Error)
	}

	current, err := s.GetIncident(ctx, incident.ID)
	if err != nil {
		return TransitionResult{}, err
	}
	if res.RowsAffected == 0 {
		// someone else moved it first
		return informational(current), nil
	}
	return TransitionResult{Outcome: OutcomeAcknowledged, Incident: current}, nil
}

// Resolve moves the incident holding resolveToken from acknowledged to resolved
func (s *IncidentService) Resolve(ctx context.Context, resolveToken string) (TransitionResult, error) {
	incident, err := s.findByToken(ctx, "resolve_token", resolveToken)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("failed to look up resolve token: %w", err)
	}
	if incident == nil {
		return TransitionResult{Outcome: OutcomeInvalidToken}, nil
	}
	if incident.Status != database.IncidentStatusAcknowledged {
		return informational(incident), nil
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&database.Incident{}).
		Where("id = ? AND status = ?", incident.ID, database.IncidentStatusAcknowledged).
		Updates(map[string]interface{}{
			"status":      database.IncidentStatusResolved,
			"resolved_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return TransitionResult{}, fmt.Errorf("failed to resolve incident %s: %w", incident.ID, res.Error)
	}

	current, err := s.GetIncident(ctx, incident.ID)
	if err != nil {
		return TransitionResult{}, err
	}
	if res.RowsAffected == 0 {
		return informational(current), nil
	}
	return TransitionResult{Outcome: OutcomeResolved, Incident: current}, nil
}
