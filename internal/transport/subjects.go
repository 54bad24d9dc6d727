// Package transport realizes the relay's socket lifecycle (§4.H) on top
// of NATS subjects: construct/destroy subscriptions on role transition,
// since a NATS subscription's delivery semantics can't be reconfigured
// once created — a role change means tearing the old ones down and
// building fresh ones.
package transport

import "fmt"

// Subjects names every subject the relay uses, derived from the
// configured ports so two relay pairs on different ports never collide.
type Subjects struct {
	WriteSubmission string
	ReadSubmission  string
	LogSubmission   string
	LogPublish      string
	Heartbeat       string
	Negotiation     string
}

// NewSubjects derives subject names from the legacy port numbers, so a
// config file written against the original socket ports still uniquely
// addresses this relay pair's subjects.
func NewSubjects(cltSubPort, logSubPort, logPubPort, mmPort int) Subjects {
	return Subjects{
		WriteSubmission: fmt.Sprintf("relay.%d.write", cltSubPort),
		ReadSubmission:  fmt.Sprintf("relay.%d.read", cltSubPort),
		LogSubmission:   fmt.Sprintf("relay.%d.log.in", logSubPort),
		LogPublish:      fmt.Sprintf("relay.%d.log.out", logPubPort),
		Heartbeat:       fmt.Sprintf("relay.%d.heartbeat", mmPort),
		Negotiation:     fmt.Sprintf("relay.%d.negotiate", mmPort),
	}
}
