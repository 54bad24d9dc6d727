// Package role implements the master/standby state machine: heartbeat
// emission and tracking, self-promotion on peer silence, and the
// deterministic negotiation tiebreak when two relays both believe they
// are master.
package role

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"go.flowcatalyst.tech/internal/codec"
)

// Role is one of the two states a relay instance can be in.
type Role string

const (
	Master  Role = "master"
	Standby Role = "standby"
)

// Config parameterizes the state machine's timers.
type Config struct {
	BroadcastPeriod  time.Duration
	PromoteTimeout   time.Duration
	NegotiateTimeout time.Duration
	MMWarnTimeout    time.Duration
	DontPromote      bool
	WarnNoStandby    bool
}

// Callbacks are invoked on state transitions and protocol events.
type Callbacks struct {
	OnBecomeMaster     func()
	OnBecomeStandby    func()
	OnWarning          func(message string)
	PublishNegotiation func(codec.Negotiation) error
}

// LastUpdateFunc resolves the durable "most recent successful write"
// timestamp from the run database, the negotiation tiebreak's input.
type LastUpdateFunc func(ctx context.Context) (time.Time, error)

// Controller owns the relay's current role and runs the protocol.
type Controller struct {
	cfg          Config
	relayID      string
	header       string
	jwtSecret    []byte
	callbacks    Callbacks
	lastUpdateFn LastUpdateFunc
	limiter      *rate.Limiter

	mu                sync.Mutex
	role              Role
	lastMMReceipt     time.Time
	consecutiveSilent int
}

// NewController starts in Standby; relayID/header identify this
// instance in heartbeat and negotiation frames, and jwtSecret signs the
// relay-id claim both frame types carry.
func NewController(cfg Config, relayID, header string, jwtSecret []byte, lastUpdateFn LastUpdateFunc, callbacks Callbacks) *Controller {
	return &Controller{
		cfg:           cfg,
		relayID:       relayID,
		header:        header,
		jwtSecret:     jwtSecret,
		callbacks:     callbacks,
		lastUpdateFn:  lastUpdateFn,
		limiter:       rate.NewLimiter(rate.Every(cfg.BroadcastPeriod), 1),
		role:          Standby,
		lastMMReceipt: time.Now(),
	}
}

// Role reports the current role.
func (c *Controller) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// RecordHeartbeat verifies and processes a peer presence frame. If the
// peer also claims master, it publishes our own negotiation frame to
// start the tiebreak.
func (c *Controller) RecordHeartbeat(hb codec.Heartbeat) {
	peerRelayID, err := VerifyRelayID(c.jwtSecret, hb.RelayID)
	if err != nil {
		log.Warn().Err(err).Msg("rejecting heartbeat with invalid relay-id claim")
		return
	}

	c.mu.Lock()
	c.lastMMReceipt = time.Now()
	c.consecutiveSilent = 0
	weAreMaster := c.role == Master
	c.mu.Unlock()

	if hb.Role == string(Master) && weAreMaster {
		log.Warn().Str("peer_relay_id", peerRelayID).Msg("role conflict detected, starting negotiation")
		c.initiateNegotiation()
	}
}

func (c *Controller) initiateNegotiation() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.NegotiateTimeout)
	defer cancel()

	ourLastUpdate, err := c.lastUpdateFn(ctx)
	if err != nil {
		log.Error().Err(err).Msg("negotiation: failed to read last_update, retrying on next heartbeat")
		return
	}

	token, err := SignRelayID(c.jwtSecret, c.relayID)
	if err != nil {
		log.Error().Err(err).Msg("negotiation: failed to sign relay-id")
		return
	}

	neg := codec.Negotiation{
		RelayID:    token,
		Header:     c.header,
		LastUpdate: ourLastUpdate.UTC().Format(time.RFC3339Nano),
	}
	if c.callbacks.PublishNegotiation != nil {
		if err := c.callbacks.PublishNegotiation(neg); err != nil {
			log.Error().Err(err).Msg("negotiation: failed to publish")
		}
	}
}

// HandleNegotiationFrame processes a peer's negotiation frame: it
// re-reads our own last_update at decision time (never cached) and
// applies Decide. A loss demotes this relay.
func (c *Controller) HandleNegotiationFrame(ctx context.Context, peer codec.Negotiation) {
	peerRelayID, err := VerifyRelayID(c.jwtSecret, peer.RelayID)
	if err != nil {
		log.Warn().Err(err).Msg("rejecting negotiation frame with invalid relay-id claim")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.NegotiateTimeout)
	defer cancel()

	ourLastUpdate, err := c.lastUpdateFn(ctx)
	if err != nil {
		log.Error().Err(err).Msg("negotiation: failed to read last_update while deciding, leaving role unchanged")
		return
	}

	peerLastUpdate := parseTimestamp(peer.LastUpdate)
	won := Decide(c.header, ourLastUpdate, peer.Header, peerLastUpdate)
	if won {
		log.Info().Str("peer_relay_id", peerRelayID).Msg("negotiation won, remaining master")
		return
	}
	log.Info().Str("peer_relay_id", peerRelayID).Msg("negotiation lost, demoting")
	c.demote()
}

// CheckSilence compares time since the last peer heartbeat against
// promote_timeout; self-promotes if this relay is standby and not
// pinned, otherwise escalates a pinned-standby warning.
func (c *Controller) CheckSilence() {
	c.mu.Lock()
	silentFor := time.Since(c.lastMMReceipt)
	role := c.role
	c.mu.Unlock()

	if silentFor <= c.cfg.PromoteTimeout {
		return
	}
	if role == Master {
		return
	}

	if c.cfg.DontPromote {
		c.escalatePinnedWarning(silentFor)
		return
	}
	c.promote()
}

func (c *Controller) escalatePinnedWarning(silentFor time.Duration) {
	if !c.cfg.WarnNoStandby {
		return
	}
	c.mu.Lock()
	c.consecutiveSilent++
	c.mu.Unlock()

	severity := "info"
	switch {
	case silentFor > 3*c.cfg.MMWarnTimeout:
		severity = "error"
	case silentFor > c.cfg.MMWarnTimeout:
		severity = "warning"
	}
	if c.callbacks.OnWarning != nil {
		c.callbacks.OnWarning("pinned standby: peer silent for " + silentFor.String() + " (" + severity + ")")
	}
}

func (c *Controller) promote() {
	c.mu.Lock()
	if c.role == Master {
		c.mu.Unlock()
		return
	}
	c.role = Master
	c.mu.Unlock()

	log.Info().Str("relay_id", c.relayID).Msg("self-promoting to master")
	if c.callbacks.OnBecomeMaster != nil {
		c.callbacks.OnBecomeMaster()
	}
}

func (c *Controller) demote() {
	c.mu.Lock()
	if c.role == Standby {
		c.mu.Unlock()
		return
	}
	c.role = Standby
	c.mu.Unlock()

	log.Info().Str("relay_id", c.relayID).Msg("demoting to standby")
	if c.callbacks.OnBecomeStandby != nil {
		c.callbacks.OnBecomeStandby()
	}
}

// DemoteForPersistentFailure is the administrative demotion trigger
// fired when the database gateway's write-path circuit breaker trips:
// a master that cannot reach its run database cannot honestly claim to
// be master.
func (c *Controller) DemoteForPersistentFailure() {
	log.Warn().Str("relay_id", c.relayID).Msg("demoting due to persistent database failure")
	c.demote()
}

// ShouldBroadcast reports whether broadcast_period has elapsed since
// the last heartbeat send, paced by a token-bucket limiter. Only the
// master broadcasts presence.
func (c *Controller) ShouldBroadcast() bool {
	if c.Role() != Master {
		return false
	}
	return c.limiter.Allow()
}

// BuildHeartbeat constructs this instance's signed presence frame.
func (c *Controller) BuildHeartbeat() (codec.Heartbeat, error) {
	token, err := SignRelayID(c.jwtSecret, c.relayID)
	if err != nil {
		return codec.Heartbeat{}, err
	}
	return codec.Heartbeat{
		RelayID:   token,
		Role:      string(c.Role()),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}
