// Package itv2msg defines the ITv2 packet structure (the layer inside
// an ITv2 frame) and the per-connection sequence counters that number
// it. See SPEC_FULL.md §3 / spec.md §3.
package itv2msg

import (
	"encoding/binary"
	"errors"
)

// ErrTooShort is returned by DecodePacket when data does not hold at least
// the two mandatory sequence bytes.
var ErrTooShort = errors.New("itv2msg: packet shorter than the two mandatory sequence bytes")

// ErrTruncatedMessageType is returned by DecodePacket when a message type is
// signalled but fewer than 2 bytes remain to hold it.
var ErrTruncatedMessageType = errors.New("itv2msg: truncated message type")

// ErrTruncatedCommandSequence is returned by DecodePacket when a command
// sequence byte is signalled but no byte remains to hold it.
var ErrTruncatedCommandSequence = errors.New("itv2msg: truncated command sequence")

// Packet is the ITv2 packet carried inside one ITv2 frame:
// SenderSequence, ReceiverSequence, and an optional message. A packet
// with no message at all (two bytes total) is a SimpleAck.
//
// DecodePacket cannot tell on its own whether a message with a message type
// is a command message (and therefore carries a CommandSequence byte
// immediately after the type) — that classification comes from the
// message catalog (pkg/panelmsg) via the isCommand callback threaded
// through DecodePacket.
type Packet struct {
	SenderSequence   byte
	ReceiverSequence byte

	HasMessage  bool
	MessageType uint16

	HasCommandSequence bool
	CommandSequence    byte

	MessageData []byte
}

// IsSimpleAck reports whether the packet carries no message at all.
func (p *Packet) IsSimpleAck() bool {
	return !p.HasMessage
}

// Size returns the exact encoded length of p.
func (p *Packet) Size() int {
	n := 2
	if p.HasMessage {
		n += 2
		if p.HasCommandSequence {
			n++
		}
		n += len(p.MessageData)
	}
	return n
}

// EncodeTo writes p into buf (which must be at least p.Size() bytes)
// and returns the number of bytes written, following the teacher's
// EncodeTo(buf) int convention.
func (p *Packet) EncodeTo(buf []byte) int {
	buf[0] = p.SenderSequence
	buf[1] = p.ReceiverSequence
	n := 2
	if !p.HasMessage {
		return n
	}
	binary.BigEndian.PutUint16(buf[n:], p.MessageType)
	n += 2
	if p.HasCommandSequence {
		buf[n] = p.CommandSequence
		n++
	}
	n += copy(buf[n:], p.MessageData)
	return n
}

// Encode is a convenience wrapper around EncodeTo that allocates its
// own buffer.
func (p *Packet) Encode() []byte {
	buf := make([]byte, p.Size())
	p.EncodeTo(buf)
	return buf
}

// IsCommandFunc classifies a message type as command-carrying (and
// therefore expecting an immediately-following CommandSequence byte).
// pkg/panelmsg supplies the concrete implementation backed by its
// message catalog.
type IsCommandFunc func(messageType uint16) bool

// DecodePacket parses data into a Packet, consulting isCommand to
// decide whether a CommandSequence byte follows the message type. All
// of data is consumed, since a packet is not self-delimiting beyond the
// ITv2 frame that already bounded it; an error is returned if data is
// malformed.
func DecodePacket(data []byte, isCommand IsCommandFunc) (*Packet, error) {
	if len(data) < 2 {
		return nil, ErrTooShort
	}
	p := &Packet{
		SenderSequence:   data[0],
		ReceiverSequence: data[1],
	}
	rest := data[2:]
	if len(rest) == 0 {
		return p, nil
	}

	if len(rest) < 2 {
		return nil, ErrTruncatedMessageType
	}
	p.HasMessage = true
	p.MessageType = binary.BigEndian.Uint16(rest)
	rest = rest[2:]

	if isCommand(p.MessageType) {
		if len(rest) < 1 {
			return nil, ErrTruncatedCommandSequence
		}
		p.HasCommandSequence = true
		p.CommandSequence = rest[0]
		rest = rest[1:]
	}

	p.MessageData = append([]byte(nil), rest...)
	return p, nil
}
