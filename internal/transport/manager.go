package transport

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Handlers are the callbacks the pipeline supplies for each subject;
// Manager never interprets frame contents itself.
type Handlers struct {
	OnWriteSubmission func(subject string, reply string, data []byte)
	OnReadSubmission  func(subject string, reply string, data []byte)
	OnLogSubmission   func(data []byte)
	OnHeartbeat       func(data []byte)
	OnNegotiation     func(data []byte)
}

// Manager owns the live NATS subscriptions for one relay instance and
// reconciles them against the instance's current role.
type Manager struct {
	conn     *nats.Conn
	subjects Subjects
	handlers Handlers

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NewManager wraps an already-connected *nats.Conn.
func NewManager(conn *nats.Conn, subjects Subjects, handlers Handlers) *Manager {
	return &Manager{
		conn:     conn,
		subjects: subjects,
		handlers: handlers,
		subs:     make(map[string]*nats.Subscription),
	}
}

// ConstructMaster subscribes to the master-only subjects (write
// submission, inbound log) in addition to the read-submission and
// always-on peer subjects. Call Destroy first if subscriptions from a
// prior role are still live.
func (m *Manager) ConstructMaster() error {
	if err := m.constructCommon(); err != nil {
		return err
	}
	if err := m.subscribe(m.subjects.ReadSubmission, func(msg *nats.Msg) {
		m.handlers.OnReadSubmission(msg.Subject, msg.Reply, msg.Data)
	}); err != nil {
		return err
	}
	if err := m.subscribe(m.subjects.WriteSubmission, func(msg *nats.Msg) {
		m.handlers.OnWriteSubmission(msg.Subject, msg.Reply, msg.Data)
	}); err != nil {
		return err
	}
	if err := m.subscribe(m.subjects.LogSubmission, func(msg *nats.Msg) {
		m.handlers.OnLogSubmission(msg.Data)
	}); err != nil {
		return err
	}
	log.Info().Str("role", "master").Msg("transport subscriptions constructed")
	return nil
}

// ConstructStandby subscribes only to the read-submission and
// always-on peer subjects; it does not listen for writes.
func (m *Manager) ConstructStandby() error {
	if err := m.constructCommon(); err != nil {
		return err
	}
	if err := m.subscribe(m.subjects.ReadSubmission, func(msg *nats.Msg) {
		m.handlers.OnReadSubmission(msg.Subject, msg.Reply, msg.Data)
	}); err != nil {
		return err
	}
	log.Info().Str("role", "standby").Msg("transport subscriptions constructed")
	return nil
}

func (m *Manager) constructCommon() error {
	if err := m.subscribe(m.subjects.Heartbeat, func(msg *nats.Msg) {
		m.handlers.OnHeartbeat(msg.Data)
	}); err != nil {
		return err
	}
	if err := m.subscribe(m.subjects.Negotiation, func(msg *nats.Msg) {
		m.handlers.OnNegotiation(msg.Data)
	}); err != nil {
		return err
	}
	return nil
}

func (m *Manager) subscribe(subject string, cb nats.MsgHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, already := m.subs[subject]; already {
		return nil
	}
	sub, err := m.conn.Subscribe(subject, cb)
	if err != nil {
		return fmt.Errorf("transport: subscribe %s: %w", subject, err)
	}
	m.subs[subject] = sub
	return nil
}

// Destroy unsubscribes from every currently-held subject. Called before
// reconstructing with the opposite role, and on shutdown.
func (m *Manager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for subject, sub := range m.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("transport: unsubscribe %s: %w", subject, err)
		}
		delete(m.subs, subject)
	}
	log.Info().Msg("transport subscriptions destroyed")
	return firstErr
}

// PublishHeartbeat sends data on the heartbeat subject.
func (m *Manager) PublishHeartbeat(data []byte) error {
	return m.conn.Publish(m.subjects.Heartbeat, data)
}

// PublishNegotiation sends data on the negotiation subject.
func (m *Manager) PublishNegotiation(data []byte) error {
	return m.conn.Publish(m.subjects.Negotiation, data)
}

// PublishLog sends data on the outbound log-publication subject.
func (m *Manager) PublishLog(data []byte) error {
	return m.conn.Publish(m.subjects.LogPublish, data)
}

// Reply sends data to a request's reply subject.
func (m *Manager) Reply(subject string, data []byte) error {
	return m.conn.Publish(subject, data)
}

// CheckConnectivity implements telemetry.ConnectivityChecker.
func (m *Manager) CheckConnectivity() error {
	if m.conn.Status() != nats.CONNECTED {
		return fmt.Errorf("transport: nats status %s", m.conn.Status())
	}
	return nil
}
