package jobs

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/database"
	"github.com/akmatori/incidentd/internal/escalation"
	"github.com/akmatori/incidentd/internal/oncall"
	"github.com/akmatori/incidentd/internal/queue"
	"github.com/akmatori/incidentd/internal/services"
	"github.com/akmatori/incidentd/internal/testhelpers"
)

type monitorFixture struct {
	env       *testhelpers.Env
	incidents *services.IncidentService
	due       *escalation.DueQueue
	monitor   *EscalationMonitor
}

func setupMonitor(t *testing.T) *monitorFixture {
	t.Helper()
	env := testhelpers.NewEnv(t)
	incidents := services.NewIncidentService(env.DB)
	due := escalation.NewDueQueue(env.Redis.Redis())
	provider := oncall.NewStaticProvider([]oncall.Engineer{
		{Name: "Alice", Email: "alice@example.com"},
		{Name: "Bob", Email: "bob@example.com", Phone: "+15550101"},
	})
	return &monitorFixture{
		env:       env,
		incidents: incidents,
		due:       due,
		monitor: NewEscalationMonitor(due, incidents, env.Queues, provider,
			services.NewLinks("https://oncall.example.com"), 5*time.Minute, zap.NewNop()),
	}
}

func (f *monitorFixture) openIncident(t *testing.T) *database.Incident {
	t.Helper()
	incident, err := f.incidents.CreateIncident(context.Background(), services.CreateIncidentParams{
		Title:       "ServiceDown",
		Severity:    "critical",
		Source:      "web-01",
		Description: "web-01 is not answering",
	})
	if err != nil {
		t.Fatalf("failed to create incident: %v", err)
	}
	if _, err := f.incidents.AssignIncident(context.Background(), incident.ID, "alice@example.com"); err != nil {
		t.Fatalf("failed to assign incident: %v", err)
	}
	return incident
}

func (f *monitorFixture) schedule(t *testing.T, incidentID, secondary string, assignedAt time.Time) {
	t.Helper()
	entry := escalation.NewEntry(incidentID, "alice@example.com", secondary, assignedAt, 5*time.Minute)
	if err := f.due.Schedule(context.Background(), entry); err != nil {
		t.Fatalf("failed to schedule: %v", err)
	}
}

func (f *monitorFixture) pending(t *testing.T) int64 {
	t.Helper()
	n, err := f.due.Len(context.Background())
	if err != nil {
		t.Fatalf("failed to read pending: %v", err)
	}
	return n
}

func TestEscalationMonitor_EscalatesUnacknowledged(t *testing.T) {
	f := setupMonitor(t)
	ctx := context.Background()
	incident := f.openIncident(t)
	f.schedule(t, incident.ID, "bob@example.com", time.Now().UTC().Add(-6*time.Minute))

	escalated, err := f.monitor.CheckAndEscalate(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if escalated != 1 {
		t.Errorf("expected 1 escalation, got %d", escalated)
	}

	updated, err := f.incidents.GetIncident(ctx, incident.ID)
	if err != nil {
		t.Fatalf("failed to reload incident: %v", err)
	}
	if updated.Assignee() != "bob@example.com" {
		t.Errorf("expected incident reassigned to bob, got %q", updated.Assignee())
	}
	if updated.Status != database.IncidentStatusOpen {
		t.Errorf("escalation must not change status, got %s", updated.Status)
	}

	d, err := f.env.Queues.Notifications.Pop(ctx, time.Second)
	if err != nil || d == nil {
		t.Fatalf("expected an escalation notification, err=%v", err)
	}
	req := d.Message
	if req.Type != queue.NotificationEscalation {
		t.Errorf("expected escalation type, got %s", req.Type)
	}
	if req.Incident.Title != "[ESCALATED] ServiceDown" {
		t.Errorf("unexpected title %q", req.Incident.Title)
	}
	if !strings.Contains(req.Incident.Description, "Primary engineer (Alice) did not acknowledge within 5 minutes") {
		t.Errorf("unexpected description %q", req.Incident.Description)
	}
	if req.Engineer.Email != "bob@example.com" || req.Engineer.Phone != "+15550101" {
		t.Errorf("expected bob as recipient, got %+v", req.Engineer)
	}
	if req.OriginalEngineer == nil || req.OriginalEngineer.Name != "Alice" {
		t.Errorf("expected alice as original engineer, got %+v", req.OriginalEngineer)
	}
	if req.Incident.AckURL == "" {
		t.Error("escalation should carry the ack link")
	}
	if req.Metadata["assignment_type"] != "escalation" {
		t.Errorf("unexpected metadata %v", req.Metadata)
	}

	if n := f.pending(t); n != 0 {
		t.Errorf("expected entry removed, %d pending", n)
	}
}

func TestEscalationMonitor_DiscardsStaleEntries(t *testing.T) {
	ctx := context.Background()
	past := time.Now().UTC().Add(-10 * time.Minute)

	tests := []struct {
		name  string
		setup func(t *testing.T, f *monitorFixture)
	}{
		{
			name: "acknowledged incident",
			setup: func(t *testing.T, f *monitorFixture) {
				incident := f.openIncident(t)
				if _, err := f.incidents.Acknowledge(ctx, incident.AckToken); err != nil {
					t.Fatalf("acknowledge failed: %v", err)
				}
				f.schedule(t, incident.ID, "bob@example.com", past)
			},
		},
		{
			name: "no secondary",
			setup: func(t *testing.T, f *monitorFixture) {
				incident := f.openIncident(t)
				f.schedule(t, incident.ID, "", past)
			},
		},
		{
			name: "missing incident",
			setup: func(t *testing.T, f *monitorFixture) {
				f.schedule(t, "does-not-exist", "bob@example.com", past)
			},
		},
		{
			name: "undecodable entry",
			setup: func(t *testing.T, f *monitorFixture) {
				f.env.Mini.ZAdd(escalation.PendingKey, 1, "not json")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupMonitor(t)
			tt.setup(t, f)

			escalated, err := f.monitor.CheckAndEscalate(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if escalated != 0 {
				t.Errorf("expected no escalation, got %d", escalated)
			}
			if n := f.pending(t); n != 0 {
				t.Errorf("expected entry discarded, %d pending", n)
			}
			if n, _ := f.env.Queues.Notifications.Len(ctx); n != 0 {
				t.Errorf("expected no notification, got %d", n)
			}
		})
	}
}

func TestEscalationMonitor_LeavesFutureEntries(t *testing.T) {
	f := setupMonitor(t)
	incident := f.openIncident(t)
	f.schedule(t, incident.ID, "bob@example.com", time.Now().UTC())

	escalated, err := f.monitor.CheckAndEscalate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if escalated != 0 {
		t.Errorf("expected nothing due yet, got %d", escalated)
	}
	if n := f.pending(t); n != 1 {
		t.Errorf("expected entry kept, %d pending", n)
	}

	f.monitor.now = func() time.Time { return time.Now().UTC().Add(6 * time.Minute) }
	escalated, err = f.monitor.CheckAndEscalate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if escalated != 1 {
		t.Errorf("expected escalation once due, got %d", escalated)
	}
}

func TestEscalationMonitor_StartStopsOnCancel(t *testing.T) {
	f := setupMonitor(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.monitor.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	testhelpers.MustCompleteWithin(t, time.Second, func() { <-done })
}
