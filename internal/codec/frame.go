// Package codec builds and parses the multi-part wire frames exchanged
// between clients and the relay, and between the relay and its peer.
package codec

import (
	"encoding/binary"
	"fmt"
)

// Frame is an ordered sequence of opaque parts. Part boundaries are
// meaningful; callers interpret parts positionally.
type Frame [][]byte

// Builder accumulates parts for a Frame. Zero value is ready to use.
type Builder struct {
	parts [][]byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Bytes appends a raw part.
func (b *Builder) Bytes(p []byte) *Builder {
	cp := make([]byte, len(p))
	copy(cp, p)
	b.parts = append(b.parts, cp)
	return b
}

// String appends a UTF-8 string part.
func (b *Builder) String(s string) *Builder {
	return b.Bytes([]byte(s))
}

// Strings appends each element of ss as its own successive part.
func (b *Builder) Strings(ss []string) *Builder {
	for _, s := range ss {
		b.String(s)
	}
	return b
}

// Uint32 appends a 4-byte big-endian part.
func (b *Builder) Uint32(v uint32) *Builder {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	b.parts = append(b.parts, buf)
	return b
}

// Frame finalizes the builder into a Frame.
func (b *Builder) Frame() Frame {
	out := make(Frame, len(b.parts))
	copy(out, b.parts)
	return out
}

// Marshal packs a Frame down into a single length-prefixed byte string,
// for transports (like NATS) that carry one opaque payload per message
// rather than true multi-part frames.
func (f Frame) Marshal() []byte {
	size := 4
	for _, p := range f {
		size += 4 + len(p)
	}
	out := make([]byte, size)
	binary.BigEndian.PutUint32(out, uint32(len(f)))
	off := 4
	for _, p := range f {
		binary.BigEndian.PutUint32(out[off:], uint32(len(p)))
		off += 4
		copy(out[off:], p)
		off += len(p)
	}
	return out
}

// Unmarshal reverses Marshal.
func Unmarshal(b []byte) (Frame, error) {
	if len(b) < 4 {
		return nil, ErrTruncated
	}
	n := binary.BigEndian.Uint32(b)
	off := 4
	f := make(Frame, 0, n)
	for i := uint32(0); i < n; i++ {
		if len(b)-off < 4 {
			return nil, ErrTruncated
		}
		l := binary.BigEndian.Uint32(b[off:])
		off += 4
		if uint32(len(b)-off) < l {
			return nil, ErrTruncated
		}
		f = append(f, b[off:off+int(l)])
		off += int(l)
	}
	return f, nil
}

// ErrTruncated is returned when Unmarshal runs out of bytes mid-frame.
var ErrTruncated = fmt.Errorf("codec: truncated wire frame")

// ErrShortFrame is returned when a frame has fewer parts than a decoder requires.
var ErrShortFrame = fmt.Errorf("codec: frame has fewer parts than required")

// ErrShortPart is returned when a fixed-width part is the wrong length.
var ErrShortPart = fmt.Errorf("codec: part has unexpected width")

// Part returns the part at i, or an error if the frame is too short.
func (f Frame) Part(i int) ([]byte, error) {
	if i < 0 || i >= len(f) {
		return nil, ErrShortFrame
	}
	return f[i], nil
}

// StringAt returns the part at i decoded as a string.
func (f Frame) StringAt(i int) (string, error) {
	p, err := f.Part(i)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// Uint32At returns the part at i decoded as a big-endian uint32.
func (f Frame) Uint32At(i int) (uint32, error) {
	p, err := f.Part(i)
	if err != nil {
		return 0, err
	}
	if len(p) != 4 {
		return 0, ErrShortPart
	}
	return binary.BigEndian.Uint32(p), nil
}

// Len reports the number of parts in the frame.
func (f Frame) Len() int {
	return len(f)
}
