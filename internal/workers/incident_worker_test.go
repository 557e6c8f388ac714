package workers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/database"
	"github.com/akmatori/incidentd/internal/escalation"
	"github.com/akmatori/incidentd/internal/oncall"
	"github.com/akmatori/incidentd/internal/queue"
	"github.com/akmatori/incidentd/internal/services"
	"github.com/akmatori/incidentd/internal/testhelpers"
)

var testRoster = []oncall.Engineer{
	{Name: "Alice", Email: "alice@example.com", Phone: "+15550100"},
	{Name: "Bob", Email: "bob@example.com"},
}

type failingProvider struct{}

func (failingProvider) PrimaryAndSecondary(context.Context) (oncall.Rotation, error) {
	return oncall.Rotation{}, errors.New("oncall service unavailable")
}

func (failingProvider) Engineer(context.Context, string) (*oncall.Engineer, error) {
	return nil, oncall.ErrEngineerNotFound
}

type incidentFixture struct {
	env       *testhelpers.Env
	incidents *services.IncidentService
	due       *escalation.DueQueue
}

func newIncidentFixture(t *testing.T) *incidentFixture {
	t.Helper()
	env := testhelpers.NewEnv(t)
	return &incidentFixture{
		env:       env,
		incidents: services.NewIncidentService(env.DB),
		due:       escalation.NewDueQueue(env.Redis.Redis()),
	}
}

func (f *incidentFixture) worker(provider oncall.Provider) *IncidentWorker {
	return NewIncidentWorker(f.env.Queues, f.incidents, provider, f.due,
		services.NewLinks("https://oncall.example.com"),
		IncidentWorkerConfig{MaxRetries: 3, EscalationTimeout: 5 * time.Minute, Loop: testLoop},
		zap.NewNop())
}

func (f *incidentFixture) createIncident(t *testing.T) *database.Incident {
	t.Helper()
	incident, err := f.incidents.CreateIncident(context.Background(), services.CreateIncidentParams{
		Title: "ServiceDown", Severity: "critical", Source: "web-01",
	})
	require.NoError(t, err)
	return incident
}

func TestIncidentWorker_AssignsAndSchedulesEscalation(t *testing.T) {
	f := newIncidentFixture(t)
	w := f.worker(oncall.NewStaticProvider(testRoster))
	ctx := context.Background()
	incident := f.createIncident(t)

	require.NoError(t, f.env.Queues.Incidents.Push(ctx, queue.IncidentMessage{IncidentID: incident.ID}))
	popped, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, popped)

	got, err := f.incidents.GetIncident(ctx, incident.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Assignee())

	reqs := peekAll(t, f.env.Queues.Notifications)
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, queue.NotificationIncidentAssignment, req.Type)
	assert.Equal(t, "Alice", req.Engineer.Name)
	assert.Equal(t, "+15550100", req.Engineer.Phone)
	assert.Equal(t, []string{queue.ChannelEmail, queue.ChannelSMS}, req.Channels)
	assert.Equal(t, "primary", req.Metadata["assignment_type"])
	assert.True(t, strings.HasPrefix(req.Incident.AckURL, "https://oncall.example.com/incidents/ack/"))

	pending, err := f.due.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, incident.ID, pending[0].IncidentID)
	assert.Equal(t, "alice@example.com", pending[0].PrimaryEmail)
	assert.Equal(t, "bob@example.com", pending[0].SecondaryEmail)
	assert.Equal(t, 5*time.Minute, pending[0].EscalationAt.Sub(pending[0].AssignedAt))
}

func TestIncidentWorker_NoOnCallLeavesUnassigned(t *testing.T) {
	f := newIncidentFixture(t)
	w := f.worker(oncall.NewStaticProvider(nil))
	incident := f.createIncident(t)

	require.NoError(t, w.Assign(context.Background(), queue.IncidentMessage{IncidentID: incident.ID}))

	got, err := f.incidents.GetIncident(context.Background(), incident.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AssignedTo)
	assert.Zero(t, queueLen(t, f.env.Queues.Notifications))
	n, err := f.due.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIncidentWorker_RetryThenDeadLetter(t *testing.T) {
	f := newIncidentFixture(t)
	w := f.worker(failingProvider{})
	ctx := context.Background()

	require.NoError(t, f.env.Queues.Incidents.Push(ctx, queue.IncidentMessage{IncidentID: "i-1"}))
	_, err := w.ProcessOne(ctx)
	require.NoError(t, err)

	requeued := peekAll(t, f.env.Queues.Incidents)
	require.Len(t, requeued, 1)
	assert.Equal(t, 1, requeued[0].Retries)

	// the second retry is still requeued, the third is dead-lettered
	_, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	_, err = w.ProcessOne(ctx)
	require.NoError(t, err)

	assert.Zero(t, queueLen(t, f.env.Queues.Incidents))
	dead := peekAll(t, f.env.Queues.IncidentDeadLetter)
	require.Len(t, dead, 1)
	assert.Equal(t, "i-1", dead[0].IncidentID)
	assert.Equal(t, 3, dead[0].Retries)
}

func TestIncidentWorker_UnknownIncidentIsRetried(t *testing.T) {
	f := newIncidentFixture(t)
	w := f.worker(oncall.NewStaticProvider(testRoster))

	err := w.Assign(context.Background(), queue.IncidentMessage{IncidentID: "missing"})
	require.ErrorIs(t, err, services.ErrIncidentNotFound)
}
