package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarningServiceAcknowledgeAndFilter(t *testing.T) {
	s := NewInMemoryWarningService()
	w1 := s.AddWarning(CategoryRole, SeverityWarning, "peer silent", "role")
	s.AddWarning(CategoryCache, SeverityInfo, "cache miss", "cache")

	all := s.GetAllWarnings()
	require.Len(t, all, 2)

	unacked := s.GetUnacknowledgedWarnings()
	assert.Len(t, unacked, 2)

	require.True(t, s.AcknowledgeWarning(w1.ID))
	unacked = s.GetUnacknowledgedWarnings()
	assert.Len(t, unacked, 1)
	assert.Equal(t, "cache miss", unacked[0].Message)

	assert.False(t, s.AcknowledgeWarning("does-not-exist"))

	bySeverity := s.GetWarningsBySeverity(SeverityInfo)
	require.Len(t, bySeverity, 1)
	assert.Equal(t, CategoryCache, bySeverity[0].Category)
}

func TestWarningServiceCapsAtMaxWarnings(t *testing.T) {
	s := NewInMemoryWarningService()
	for i := 0; i < MaxWarnings+10; i++ {
		s.AddWarning(CategoryQueue, SeverityInfo, "overflow", "queue")
	}
	assert.Len(t, s.GetAllWarnings(), MaxWarnings)
}

func TestWarningServiceClearOldWarnings(t *testing.T) {
	s := NewInMemoryWarningService()
	s.AddWarning(CategoryGateway, SeverityError, "stale", "gateway")

	removed := s.ClearOldWarnings(-1) // cutoff in the future: everything is "old"
	assert.Equal(t, 1, removed)
	assert.Empty(t, s.GetAllWarnings())
}

type fakeChecker struct{ err error }

func (f fakeChecker) CheckConnectivity() error { return f.err }

func TestHealthServiceReportsFailingDependencies(t *testing.T) {
	h := NewHealthService(map[Dependency]ConnectivityChecker{
		DependencyRunDB:     fakeChecker{},
		DependencyMonitorDB: fakeChecker{err: errors.New("no route to host")},
	})

	issues := h.CheckAll()
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "monitor_db")
	assert.Equal(t, int64(2), h.Attempts())
	assert.Equal(t, int64(1), h.Failures())
}

func TestStoreSnapshotComputesRates(t *testing.T) {
	s := NewStore("relay-a")
	s.IncExecuted("read")
	s.IncExecuted("read")
	s.IncExecuted("write")
	s.IncDropped("write")

	snap := s.Snapshot("master")
	assert.Equal(t, "relay-a", snap.RelayID)
	assert.Equal(t, "master", snap.Role)
	assert.Equal(t, uint64(2), snap.Channels["read"].Executed)
	assert.Equal(t, uint64(1), snap.Channels["write"].Dropped)
	assert.Greater(t, snap.ReadsPerSec, 0.0)

	// A second snapshot taken immediately after should report zero
	// additional throughput since no new executions happened.
	time.Sleep(time.Millisecond)
	snap2 := s.Snapshot("master")
	assert.Equal(t, 0.0, snap2.ReadsPerSec)
}
