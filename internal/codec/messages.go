package codec

import "fmt"

// StatusCode is the outcome of a query submission, carried on the reply frame.
type StatusCode uint32

const (
	StatusOK                StatusCode = 0
	StatusQueryFailed       StatusCode = 1
	StatusDuplicate         StatusCode = 2
	StatusQueueFull         StatusCode = 3
	StatusNotMasterForWrite StatusCode = 4
	StatusSyntaxError       StatusCode = 5
)

// QuerySubmission is the decoded form of a read or write submission frame:
// [client-id][msg-id][sql-text].
type QuerySubmission struct {
	ClientID string
	MsgID    uint32
	SQL      string
}

// EncodeSubmission builds a submission frame.
func EncodeSubmission(s QuerySubmission) Frame {
	return NewBuilder().String(s.ClientID).Uint32(s.MsgID).String(s.SQL).Frame()
}

// DecodeSubmission parses a submission frame.
func DecodeSubmission(f Frame) (QuerySubmission, error) {
	var s QuerySubmission
	var err error
	if s.ClientID, err = f.StringAt(0); err != nil {
		return s, fmt.Errorf("decode submission: %w", err)
	}
	if s.MsgID, err = f.Uint32At(1); err != nil {
		return s, fmt.Errorf("decode submission: %w", err)
	}
	if s.SQL, err = f.StringAt(2); err != nil {
		return s, fmt.Errorf("decode submission: %w", err)
	}
	return s, nil
}

// Reply is the decoded form of an ack/reply frame: [msg-id][status][payload].
type Reply struct {
	MsgID   uint32
	Status  StatusCode
	Payload []byte
}

// EncodeReply builds a reply frame.
func EncodeReply(r Reply) Frame {
	return NewBuilder().Uint32(r.MsgID).Uint32(uint32(r.Status)).Bytes(r.Payload).Frame()
}

// DecodeReply parses a reply frame.
func DecodeReply(f Frame) (Reply, error) {
	var r Reply
	var err error
	if r.MsgID, err = f.Uint32At(0); err != nil {
		return r, fmt.Errorf("decode reply: %w", err)
	}
	var st uint32
	if st, err = f.Uint32At(1); err != nil {
		return r, fmt.Errorf("decode reply: %w", err)
	}
	r.Status = StatusCode(st)
	if r.Payload, err = f.Part(2); err != nil {
		return r, fmt.Errorf("decode reply: %w", err)
	}
	return r, nil
}

// LogSubmission is the decoded form of a log submission frame:
// [client-id][timestamp][severity][message].
type LogSubmission struct {
	ClientID  string
	Timestamp string
	Severity  uint32
	Message   string
}

// EncodeLogSubmission builds a log submission frame.
func EncodeLogSubmission(l LogSubmission) Frame {
	return NewBuilder().String(l.ClientID).String(l.Timestamp).Uint32(l.Severity).String(l.Message).Frame()
}

// DecodeLogSubmission parses a log submission frame.
func DecodeLogSubmission(f Frame) (LogSubmission, error) {
	var l LogSubmission
	var err error
	if l.ClientID, err = f.StringAt(0); err != nil {
		return l, fmt.Errorf("decode log submission: %w", err)
	}
	if l.Timestamp, err = f.StringAt(1); err != nil {
		return l, fmt.Errorf("decode log submission: %w", err)
	}
	if l.Severity, err = f.Uint32At(2); err != nil {
		return l, fmt.Errorf("decode log submission: %w", err)
	}
	if l.Message, err = f.StringAt(3); err != nil {
		return l, fmt.Errorf("decode log submission: %w", err)
	}
	return l, nil
}

// Heartbeat is the decoded form of a peer presence frame:
// [relay-id][role-tag][wall-timestamp].
type Heartbeat struct {
	RelayID   string
	Role      string
	Timestamp string
}

// EncodeHeartbeat builds a heartbeat frame.
func EncodeHeartbeat(h Heartbeat) Frame {
	return NewBuilder().String(h.RelayID).String(h.Role).String(h.Timestamp).Frame()
}

// DecodeHeartbeat parses a heartbeat frame.
func DecodeHeartbeat(f Frame) (Heartbeat, error) {
	var h Heartbeat
	var err error
	if h.RelayID, err = f.StringAt(0); err != nil {
		return h, fmt.Errorf("decode heartbeat: %w", err)
	}
	if h.Role, err = f.StringAt(1); err != nil {
		return h, fmt.Errorf("decode heartbeat: %w", err)
	}
	if h.Timestamp, err = f.StringAt(2); err != nil {
		return h, fmt.Errorf("decode heartbeat: %w", err)
	}
	return h, nil
}

const negotiateTag = "NEGOTIATE"

// Negotiation is the decoded form of a role-conflict negotiation frame:
// [relay-id]["NEGOTIATE"][header][last-update-timestamp].
type Negotiation struct {
	RelayID    string
	Header     string
	LastUpdate string
}

// EncodeNegotiation builds a negotiation frame.
func EncodeNegotiation(n Negotiation) Frame {
	return NewBuilder().String(n.RelayID).String(negotiateTag).String(n.Header).String(n.LastUpdate).Frame()
}

// DecodeNegotiation parses a negotiation frame.
func DecodeNegotiation(f Frame) (Negotiation, error) {
	var n Negotiation
	tag, err := f.StringAt(1)
	if err != nil {
		return n, fmt.Errorf("decode negotiation: %w", err)
	}
	if tag != negotiateTag {
		return n, fmt.Errorf("decode negotiation: unexpected tag %q", tag)
	}
	if n.RelayID, err = f.StringAt(0); err != nil {
		return n, fmt.Errorf("decode negotiation: %w", err)
	}
	if n.Header, err = f.StringAt(2); err != nil {
		return n, fmt.Errorf("decode negotiation: %w", err)
	}
	if n.LastUpdate, err = f.StringAt(3); err != nil {
		return n, fmt.Errorf("decode negotiation: %w", err)
	}
	return n, nil
}
