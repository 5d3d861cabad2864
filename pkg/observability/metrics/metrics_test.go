package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := NewWith(prometheus.NewRegistry())

	m.ObserveCommit(4, "local")
	m.ObserveCommit(4, "local")
	m.ObserveCommit(4, "sync")
	m.IncrementSync("applied")
	m.ObserveAssist("party_summary", errors.New("timeout"), 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PhaseCommits.WithLabelValues("4", "local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PhaseCommits.WithLabelValues("4", "sync")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncOutcomes.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssistRequests.WithLabelValues("party_summary", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCommit(1, "local")
	m.IncrementSync("failed")
	m.IncrementConsumed("ok")
	m.ObserveAssist("extract", nil, time.Second)
	m.ObserveHTTP("GET", 200, time.Millisecond)
}
