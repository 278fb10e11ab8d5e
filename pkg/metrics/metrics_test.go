package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/worklog/pkg/model"
)

// counterValue gathers reg and returns the sample for the named metric,
// matching every given label pair.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			have := map[string]string{}
			for _, lp := range m.GetLabel() {
				have[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if have[k] != v {
					continue metric
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestNilCollectorIsNoOp(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordEvent(model.EventClaim)
		c.RecordCommit()
		c.RecordAbort()
		c.RecordLockAcquired(0.05)
		c.RecordLockContention()
		c.RecordStaleReclaim()
		c.RecordRebuild()
		c.SetDriftEntries(3)
	})
}

func TestRecordEventByType(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEvent(model.EventClaim)
	c.RecordEvent(model.EventClaim)
	c.RecordEvent(model.EventComplete)

	assert.Equal(t, 2.0, counterValue(t, reg, "worklog_events_total", map[string]string{"type": "claim"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "worklog_events_total", map[string]string{"type": "complete"}))
}

func TestCommitAndAbortCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCommit()
	c.RecordCommit()
	c.RecordAbort()

	assert.Equal(t, 2.0, counterValue(t, reg, "worklog_commits_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "worklog_commit_aborts_total", nil))
}

func TestLockMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLockAcquired(0.02)
	c.RecordLockContention()
	c.RecordLockContention()
	c.RecordStaleReclaim()

	assert.Equal(t, 1.0, counterValue(t, reg, "worklog_lock_acquisitions_total", nil))
	assert.Equal(t, 2.0, counterValue(t, reg, "worklog_lock_contention_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "worklog_lock_stale_reclaims_total", nil))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "worklog_lock_wait_seconds" {
			found = true
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, uint64(1), mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found, "lock wait histogram not registered")
}

func TestDriftGaugeIsLastValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetDriftEntries(4)
	c.SetDriftEntries(0)

	assert.Equal(t, 0.0, counterValue(t, reg, "worklog_drift_entries", nil))
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordCommit()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "worklog_commits_total 1")
}

func TestConcurrentUpdates(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	done := make(chan struct{}, 50)
	for i := 0; i < 50; i++ {
		go func() {
			c.RecordEvent(model.EventClaim)
			c.RecordCommit()
			c.RecordLockAcquired(0.01)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}

	assert.Equal(t, 50.0, counterValue(t, reg, "worklog_commits_total", nil))
}
