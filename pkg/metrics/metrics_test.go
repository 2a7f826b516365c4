package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersOnPrivateRegistry(t *testing.T) {
	// Two instances on separate registries must not collide.
	first := New(prometheus.NewRegistry())
	second := New(prometheus.NewRegistry())

	first.RecordSpecLoad(true)
	second.RecordSpecLoad(false)

	if got := testutil.ToFloat64(first.SpecLoadsTotal.WithLabelValues("found")); got != 1 {
		t.Errorf("first found = %v", got)
	}

	if got := testutil.ToFloat64(second.SpecLoadsTotal.WithLabelValues("not_found")); got != 1 {
		t.Errorf("second not_found = %v", got)
	}
}

func TestRecordSyncRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordSyncRun("cli", "failed", 1.5)

	if got := testutil.ToFloat64(m.SyncLastSuccessTime); got != 0 {
		t.Errorf("last success set on failure: %v", got)
	}

	m.RecordSyncRun("cli", "succeeded", 2)
	m.RecordSyncedFile("ringer")
	m.RecordSyncedFile("ringer")

	if got := testutil.ToFloat64(m.SyncRunsTotal.WithLabelValues("cli", "succeeded")); got != 1 {
		t.Errorf("succeeded runs = %v", got)
	}

	if got := testutil.ToFloat64(m.SyncLastSuccessTime); got == 0 {
		t.Error("expected last success timestamp")
	}

	if got := testutil.ToFloat64(m.SyncFilesTotal.WithLabelValues("ringer")); got != 2 {
		t.Errorf("files = %v", got)
	}

	if got := testutil.CollectAndCount(m.SyncDuration); got != 1 {
		t.Errorf("duration series = %d", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.SetBuildInfo("v", "c", "d")
	m.RecordSpecLoad(true)
	m.RecordSyncRun("api", "succeeded", 1)
	m.RecordHTTPRequest("GET", "/", "200", 0.1)
	m.SetGitHubRateLimit(10)
	m.SetWebSocketClients(1)
}
