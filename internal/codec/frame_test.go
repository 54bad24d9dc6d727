package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionRoundTrip(t *testing.T) {
	in := QuerySubmission{ClientID: "client-1", MsgID: 42, SQL: "select 1"}
	f := EncodeSubmission(in)
	require.Equal(t, 3, f.Len())

	out, err := DecodeSubmission(f)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReplyRoundTrip(t *testing.T) {
	in := Reply{MsgID: 7, Status: StatusDuplicate, Payload: []byte("cached")}
	out, err := DecodeReply(EncodeReply(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLogSubmissionRoundTrip(t *testing.T) {
	in := LogSubmission{ClientID: "c", Timestamp: "2026-07-30T00:00:00Z", Severity: 3, Message: "hello"}
	out, err := DecodeLogSubmission(EncodeLogSubmission(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestHeartbeatRoundTrip(t *testing.T) {
	in := Heartbeat{RelayID: "relay-a", Role: "master", Timestamp: "123456"}
	out, err := DecodeHeartbeat(EncodeHeartbeat(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNegotiationRoundTrip(t *testing.T) {
	in := Negotiation{RelayID: "relay-a", Header: "host-a", LastUpdate: "999"}
	out, err := DecodeNegotiation(EncodeNegotiation(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeShortFrame(t *testing.T) {
	_, err := DecodeSubmission(Frame{[]byte("only-one-part")})
	require.ErrorIs(t, err, ErrShortFrame)
}

func TestDecodeBadUint32Width(t *testing.T) {
	f := NewBuilder().String("c").Bytes([]byte{1, 2}).String("sql").Frame()
	_, err := DecodeSubmission(f)
	require.ErrorIs(t, err, ErrShortPart)
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	f := EncodeSubmission(QuerySubmission{ClientID: "c", MsgID: 9, SQL: "select 1"})
	wire := f.Marshal()

	out, err := Unmarshal(wire)
	require.NoError(t, err)
	assert.Equal(t, f, out)
}

func TestUnmarshalTruncated(t *testing.T) {
	_, err := Unmarshal([]byte{0, 0, 0, 2, 0, 0})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestNegotiationRejectsWrongTag(t *testing.T) {
	f := NewBuilder().String("relay-a").String("NOT-A-TAG").String("h").String("1").Frame()
	_, err := DecodeNegotiation(f)
	require.Error(t, err)
}
