// Package discovery tracks the peers the relay's discovery agent has
// told it about, per owned subject. It never blocks an HTTP handler on
// reconciliation work: add/remove calls enqueue an event that the
// pipeline's "discover clients" step drains on its own schedule.
package discovery

import (
	"sync"
	"time"
)

// PeerState is what the relay knows about one peer on one socket tag.
type PeerState struct {
	Endpoint  string
	LastSeen  time.Time
	Connected bool
}

// Event is one pending add/remove to reconcile.
type Event struct {
	Tag      string
	PeerID   string
	Endpoint string
	Added    bool // true = add-peer, false = remove-peer
}

// EventLimit bounds the reconciliation backlog; an HTTP caller issuing
// adds faster than the pipeline drains them gets drops, not a block.
const EventLimit = 256

// Manager maintains the peer table and the pending reconciliation queue.
type Manager struct {
	mu    sync.Mutex
	peers map[string]map[string]PeerState

	events chan Event
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{
		peers:  make(map[string]map[string]PeerState),
		events: make(chan Event, EventLimit),
	}
}

// AddPeer enqueues an add event for a peer on tag; the peer is recorded
// (or refreshed) in the table when Drain applies the event. Returns
// false if the event backlog is full.
func (m *Manager) AddPeer(tag, peerID, endpoint string) bool {
	select {
	case m.events <- Event{Tag: tag, PeerID: peerID, Endpoint: endpoint, Added: true}:
		return true
	default:
		return false
	}
}

// RemovePeer enqueues a removal event for (tag, peerID).
func (m *Manager) RemovePeer(tag, peerID string) bool {
	select {
	case m.events <- Event{Tag: tag, PeerID: peerID, Added: false}:
		return true
	default:
		return false
	}
}

// Drain applies every pending event to the peer table and returns them,
// so the caller (the pipeline's discover-clients step) can react, e.g.
// by telling the transport to subscribe/unsubscribe.
func (m *Manager) Drain() []Event {
	var applied []Event
	for {
		select {
		case ev := <-m.events:
			m.apply(ev)
			applied = append(applied, ev)
		default:
			return applied
		}
	}
}

func (m *Manager) apply(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tagPeers, ok := m.peers[ev.Tag]
	if !ok {
		tagPeers = make(map[string]PeerState)
		m.peers[ev.Tag] = tagPeers
	}

	if ev.Added {
		tagPeers[ev.PeerID] = PeerState{Endpoint: ev.Endpoint, LastSeen: time.Now(), Connected: true}
		return
	}
	delete(tagPeers, ev.PeerID)
}

// Peers returns a snapshot of the peer table for tag.
func (m *Manager) Peers(tag string) map[string]PeerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]PeerState, len(m.peers[tag]))
	for id, st := range m.peers[tag] {
		out[id] = st
	}
	return out
}

// Count reports the number of known peers across every tag.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, tagPeers := range m.peers {
		n += len(tagPeers)
	}
	return n
}
