// Package relay drives the bounded request pipeline: discover clients,
// drain submission/log subjects, execute the next write or read, send
// the next reply and outbound log, broadcast presence, and trim.
package relay

import (
	"fmt"
	"time"
)

// Fingerprint is the (client-id, message-id) pair that globally and
// uniquely identifies one logical client request across retries.
type Fingerprint struct {
	ClientID string
	MsgID    uint32
}

// String renders the fingerprint as a single comparable cache/queue key.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%s:%d", f.ClientID, f.MsgID)
}

// Kind distinguishes a read query from a write query.
type Kind string

const (
	KindRead  Kind = "read"
	KindWrite Kind = "write"
)

// QueryRecord is one query in flight through the pipeline.
type QueryRecord struct {
	Fingerprint Fingerprint
	Kind        Kind
	SQL         string
	ArrivedAt   time.Time
	Retries     int
}

// LogRecord is one client log record in flight through the inbound or
// outbound log stream.
type LogRecord struct {
	ClientID    string
	Timestamp   string
	Severity    uint32
	Message     string
	Retries     int
	ReceiptTime time.Time
}
