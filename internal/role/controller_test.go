package role

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.flowcatalyst.tech/internal/codec"
)

var testSecret = []byte("test-secret")

func newTestController(t *testing.T, cfg Config, lastUpdate time.Time, cb Callbacks) *Controller {
	t.Helper()
	return NewController(cfg, "relay-a", "host-a", testSecret, func(context.Context) (time.Time, error) {
		return lastUpdate, nil
	}, cb)
}

func TestSelfPromotionOnSilence(t *testing.T) {
	promoted := false
	c := newTestController(t, Config{PromoteTimeout: 10 * time.Millisecond, BroadcastPeriod: time.Second}, time.Now(), Callbacks{
		OnBecomeMaster: func() { promoted = true },
	})

	require.Equal(t, Standby, c.Role())
	time.Sleep(20 * time.Millisecond)
	c.CheckSilence()

	assert.True(t, promoted)
	assert.Equal(t, Master, c.Role())
}

func TestPinnedStandbyNeverPromotes(t *testing.T) {
	promoted := false
	warned := false
	c := newTestController(t, Config{
		PromoteTimeout: 5 * time.Millisecond,
		BroadcastPeriod: time.Second,
		DontPromote:    true,
		WarnNoStandby:  true,
		MMWarnTimeout:  time.Millisecond,
	}, time.Now(), Callbacks{
		OnBecomeMaster: func() { promoted = true },
		OnWarning:      func(string) { warned = true },
	})

	time.Sleep(10 * time.Millisecond)
	c.CheckSilence()

	assert.False(t, promoted)
	assert.Equal(t, Standby, c.Role())
	assert.True(t, warned)
}

func TestHeartbeatRejectsInvalidSignature(t *testing.T) {
	c := newTestController(t, Config{BroadcastPeriod: time.Second}, time.Now(), Callbacks{})
	before := c.Role()
	receiptBefore := c.lastMMReceipt

	c.RecordHeartbeat(codec.Heartbeat{RelayID: "not-a-jwt", Role: "master", Timestamp: time.Now().Format(time.RFC3339Nano)})

	assert.Equal(t, before, c.Role())
	// A rejected heartbeat must not count as peer presence.
	assert.Equal(t, receiptBefore, c.lastMMReceipt)
}

func TestNegotiationDecideNewerLastUpdateWins(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Minute)

	assert.True(t, Decide("a", now, "b", earlier))
	assert.False(t, Decide("a", earlier, "b", now))
}

func TestNegotiationDecideTieBreaksOnHeader(t *testing.T) {
	now := time.Now()
	assert.True(t, Decide("zzz", now, "aaa", now))
	assert.False(t, Decide("aaa", now, "zzz", now))
}

func TestHandleNegotiationFrameDemotesOnLoss(t *testing.T) {
	ourLastUpdate := time.Now().Add(-time.Hour)
	demoted := false
	c := newTestController(t, Config{BroadcastPeriod: time.Second, NegotiateTimeout: time.Second}, ourLastUpdate, Callbacks{
		OnBecomeStandby: func() { demoted = true },
	})
	c.promote()

	token, err := SignRelayID(testSecret, "relay-b")
	require.NoError(t, err)

	c.HandleNegotiationFrame(context.Background(), codec.Negotiation{
		RelayID:    token,
		Header:     "host-b",
		LastUpdate: time.Now().Format(time.RFC3339Nano),
	})

	assert.True(t, demoted)
	assert.Equal(t, Standby, c.Role())
}

func TestBuildHeartbeatRoundTripsThroughVerify(t *testing.T) {
	c := newTestController(t, Config{BroadcastPeriod: time.Second}, time.Now(), Callbacks{})
	hb, err := c.BuildHeartbeat()
	require.NoError(t, err)

	relayID, err := VerifyRelayID(testSecret, hb.RelayID)
	require.NoError(t, err)
	assert.Equal(t, "relay-a", relayID)
}
