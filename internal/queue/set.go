package queue

import "context"

// Set groups the typed handles of every pipeline queue
type Set struct {
	Raw                    *Queue[RawAlertMessage]
	Retry                  *Queue[RetryAlertMessage]
	Error                  *Queue[ErrorAlertMessage]
	Success                *Queue[SuccessAlertMessage]
	Incidents              *Queue[IncidentMessage]
	IncidentDeadLetter     *Queue[IncidentMessage]
	Notifications          *Queue[NotificationRequest]
	NotificationDeadLetter *Queue[DeadLetterEntry]
}

// NewSet binds all pipeline queues to client
func NewSet(client *Client) *Set {
	return &Set{
		Raw:                    New[RawAlertMessage](client, RawAlerts),
		Retry:                  New[RetryAlertMessage](client, RetryAlerts),
		Error:                  New[ErrorAlertMessage](client, ErrorAlerts),
		Success:                New[SuccessAlertMessage](client, SuccessAlerts),
		Incidents:              New[IncidentMessage](client, Incidents),
		IncidentDeadLetter:     New[IncidentMessage](client, IncidentDeadLetter),
		Notifications:          New[NotificationRequest](client, Notifications),
		NotificationDeadLetter: New[DeadLetterEntry](client, NotificationDeadLetter),
	}
}

type handle interface {
	Name() string
	Len(ctx context.Context) (int64, error)
	Peek(ctx context.Context, n int64) ([]string, error)
}

func (s *Set) all() []handle {
	return []handle{
		s.Raw, s.Retry, s.Error, s.Success,
		s.Incidents, s.IncidentDeadLetter,
		s.Notifications, s.NotificationDeadLetter,
	}
}

// Depth is the length of one queue
type Depth struct {
	Queue string `json:"queue"`
	Len   int64  `json:"length"`
}

// Depths reports the length of every queue in a stable order
func (s *Set) Depths(ctx context.Context) ([]Depth, error) {
	var depths []Depth
	for _, q := range s.all() {
		n, err := q.Len(ctx)
		if err != nil {
			return nil, err
		}
		depths = append(depths, Depth{Queue: q.Name(), Len: n})
	}
	return depths, nil
}

// DeadLetters returns up to n of the most recent raw entries from each
// terminal queue, keyed by queue name
func (s *Set) DeadLetters(ctx context.Context, n int64) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, q := range []handle{s.Error, s.IncidentDeadLetter, s.NotificationDeadLetter} {
		items, err := q.Peek(ctx, n)
		if err != nil {
			return nil, err
		}
		out[q.Name()] = items
	}
	return out, nil
}
