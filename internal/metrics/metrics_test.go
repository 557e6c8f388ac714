package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(Decisions.WithLabelValues("create"))
	Decisions.WithLabelValues("create").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Decisions.WithLabelValues("create")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	AlertsReceived.Inc()
	QueueDepth.WithLabelValues("alerts:raw").Set(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "incidentd_alerts_received_total"))
	assert.True(t, strings.Contains(text, `incidentd_queue_depth{queue="alerts:raw"} 3`))
	assert.True(t, strings.Contains(text, "go_goroutines"))
}
