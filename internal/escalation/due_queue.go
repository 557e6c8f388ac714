// Package escalation keeps the time-ordered set of pending escalations.
package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PendingKey is the sorted set holding escalation entries scored by due time
const PendingKey = "escalation:pending"

// Entry schedules a reassignment to the secondary responder.
// ID makes every entry unique even when two share incident, responders and time.
type Entry struct {
	ID             string    `json:"id"`
	IncidentID     string    `json:"incident_id"`
	PrimaryEmail   string    `json:"primary_email"`
	SecondaryEmail string    `json:"secondary_email,omitempty"`
	AssignedAt     time.Time `json:"assigned_at"`
	EscalationAt   time.Time `json:"escalation_at"`
}

// NewEntry builds an entry due timeout after assignedAt
func NewEntry(incidentID, primary, secondary string, assignedAt time.Time, timeout time.Duration) Entry {
	return Entry{
		ID:             uuid.New().String(),
		IncidentID:     incidentID,
		PrimaryEmail:   primary,
		SecondaryEmail: secondary,
		AssignedAt:     assignedAt,
		EscalationAt:   assignedAt.Add(timeout),
	}
}

// DueEntry is an entry read back from the set together with its stored member,
// which is what Remove needs to delete it.
type DueEntry struct {
	Entry
	Member string
	// DecodeErr is set when the member could not be decoded
	DecodeErr error
}

// DueQueue is a Redis sorted set of escalation entries
type DueQueue struct {
	rdb *redis.Client
	key string
}

// NewDueQueue returns a due-queue stored under PendingKey
func NewDueQueue(rdb *redis.Client) *DueQueue {
	return &DueQueue{rdb: rdb, key: PendingKey}
}

// Schedule inserts entry scored by its escalation time in unix milliseconds
func (q *DueQueue) Schedule(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode escalation entry: %w", err)
	}
	err = q.rdb.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(entry.EscalationAt.UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule escalation for incident %s: %w", entry.IncidentID, err)
	}
	return nil
}

// Due returns every entry whose escalation time is at or before now, oldest first
func (q *DueQueue) Due(ctx context.Context, now time.Time) ([]DueEntry, error) {
	members, err := q.rdb.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due escalations: %w", err)
	}

	due := make([]DueEntry, 0, len(members))
	for _, m := range members {
		d := DueEntry{Member: m}
		if err := json.Unmarshal([]byte(m), &d.Entry); err != nil {
			d.DecodeErr = err
		}
		due = append(due, d)
	}
	return due, nil
}

// Remove deletes an entry by its stored member
func (q *DueQueue) Remove(ctx context.Context, member string) error {
	if err := q.rdb.ZRem(ctx, q.key, member).Err(); err != nil {
		return fmt.Errorf("failed to remove escalation entry: %w", err)
	}
	return nil
}

// Len returns the number of pending entries
func (q *DueQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.key).Result()
}

// Pending returns all pending entries in due order
func (q *DueQueue) Pending(ctx context.Context) ([]DueEntry, error) {
	members, err := q.rdb.ZRange(ctx, q.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read pending escalations: %w", err)
	}
	out := make([]DueEntry, 0, len(members))
	for _, m := range members {
		d := DueEntry{Member: m}
		if err := json.Unmarshal([]byte(m), &d.Entry); err != nil {
			d.DecodeErr = err
		}
		out = append(out, d)
	}
	return out, nil
}
