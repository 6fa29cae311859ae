package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTwicePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	assert.Panics(t, func() { Register(reg) })
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(engineCommandsTotal.WithLabelValues("banip", "error"))
	ObserveEngineCommand("banip", errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(engineCommandsTotal.WithLabelValues("banip", "error")))

	before = testutil.ToFloat64(historyEventsImported)
	AddImported(3)
	assert.Equal(t, before+3, testutil.ToFloat64(historyEventsImported))

	before = testutil.ToFloat64(permanentBansApplied.WithLabelValues("ok"))
	IncPermanentBan(true)
	assert.Equal(t, before+1, testutil.ToFloat64(permanentBansApplied.WithLabelValues("ok")))
}

func TestObserveHTTPRequestUnmatchedRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(httpRequestDuration))

	ObserveHTTPRequest("GET", "", 404, 5*time.Millisecond)
	ObserveHTTPRequest("GET", "/api/v1/health", 200, time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	var routes []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "route" {
					routes = append(routes, l.GetValue())
				}
			}
		}
	}
	joined := strings.Join(routes, ",")
	assert.Contains(t, joined, "unmatched")
	assert.Contains(t, joined, "/api/v1/health")
}
