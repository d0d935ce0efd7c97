// Package tlink implements the TLink byte-stuffed framing layer: one
// packet is header bytes, a 0x7E delimiter, payload bytes, and a 0x7F
// delimiter, with 0x7D/0x7E/0x7F escaped in the unencoded header and
// payload. See SPEC_FULL.md §4.1.
package tlink

import (
	"bytes"
	"errors"
)

const (
	delimHeaderEnd  byte = 0x7E
	delimPacketEnd  byte = 0x7F
	escapeByte      byte = 0x7D
	escapedNone     byte = 0x00
	escapedHeaderEnd byte = 0x01
	escapedPacketEnd byte = 0x02
)

// Leaf-level sentinel errors. The session layer wraps these into
// *perr.Error at the public boundary (see pkg/perr).
var (
	ErrNeedMore        = errors.New("tlink: need more bytes")
	ErrMissingHeaderEnd = errors.New("tlink: missing 0x7E header delimiter")
	ErrMissingPacketEnd = errors.New("tlink: missing 0x7F packet delimiter")
	ErrRawDelimiter     = errors.New("tlink: raw delimiter byte in decoded region")
	ErrUnknownEscape    = errors.New("tlink: unknown escape sequence")
	ErrTrailingEscape   = errors.New("tlink: trailing escape byte with no follower")
)

// Extractor pulls one whole TLink packet (including its trailing
// delimiter) out of a streamed byte buffer. DelimiterExtractor is the
// only implementation this module wires into pkg/session;
// LengthPrefixedExtractor is the DLS polymorphism point noted in
// SPEC_FULL.md §4.1 and is never used by pkg/session (Non-goal).
type Extractor interface {
	// TryExtractPacket scans buf for one complete packet. It returns the
	// packet bytes and the number of bytes consumed. If no complete
	// packet is available yet, it returns ErrNeedMore and consumed == 0.
	TryExtractPacket(buf []byte) (packet []byte, consumed int, err error)
}

// DelimiterExtractor implements the default TLink extraction policy:
// scan for the first 0x7F and treat everything up to and including it
// as one packet.
type DelimiterExtractor struct{}

// TryExtractPacket implements Extractor.
func (DelimiterExtractor) TryExtractPacket(buf []byte) ([]byte, int, error) {
	idx := bytes.IndexByte(buf, delimPacketEnd)
	if idx < 0 {
		return nil, 0, ErrNeedMore
	}
	return buf[:idx+1], idx + 1, nil
}

// LengthPrefixedExtractor is the DLS (length-prefixed, symmetric-cipher
// variant) polymorphism point: a 2-byte big-endian length precedes the
// packet body, and when encryption is active the extractor must not
// scan for 0x7F inside the body (it may appear as ciphertext). This
// type is declared for interop completeness but is never constructed
// by pkg/session; wiring it is explicitly out of scope (spec.md §1).
type LengthPrefixedExtractor struct {
	// EncryptionActive, when true, disables 0x7F scanning within the body.
	EncryptionActive bool
}

// TryExtractPacket is unimplemented; DLS framing is a Non-goal.
func (LengthPrefixedExtractor) TryExtractPacket(buf []byte) ([]byte, int, error) {
	return nil, 0, errors.New("tlink: DLS length-prefixed framing not implemented (out of scope)")
}

// ParseFrame splits one raw TLink packet (as returned by an Extractor,
// trailing 0x7F included) into its unstuffed header and payload. The
// first 0x7E before the terminating 0x7F separates header from payload;
// both delimiters must be present.
func ParseFrame(packet []byte) (header, payload []byte, err error) {
	if len(packet) == 0 || packet[len(packet)-1] != delimPacketEnd {
		return nil, nil, ErrMissingPacketEnd
	}
	body := packet[:len(packet)-1]

	headerEndIdx := -1
	for i, b := range body {
		if b == delimHeaderEnd {
			headerEndIdx = i
			break
		}
	}
	if headerEndIdx < 0 {
		return nil, nil, ErrMissingHeaderEnd
	}

	rawHeader := body[:headerEndIdx]
	rawPayload := body[headerEndIdx+1:]

	header, err = unstuff(rawHeader)
	if err != nil {
		return nil, nil, err
	}
	payload, err = unstuff(rawPayload)
	if err != nil {
		return nil, nil, err
	}
	return header, payload, nil
}

// unstuff reverses byte-stuffing over a decoded region. A raw 0x7E or
// 0x7F appearing here (i.e. not as part of an escape sequence) is an
// encoding violation, since both bytes must always be escaped outside
// their role as delimiters.
func unstuff(in []byte) ([]byte, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		b := in[i]
		switch b {
		case delimHeaderEnd, delimPacketEnd:
			return nil, ErrRawDelimiter
		case escapeByte:
			if i+1 >= len(in) {
				return nil, ErrTrailingEscape
			}
			i++
			switch in[i] {
			case escapedNone:
				out = append(out, escapeByte)
			case escapedHeaderEnd:
				out = append(out, delimHeaderEnd)
			case escapedPacketEnd:
				out = append(out, delimPacketEnd)
			default:
				return nil, ErrUnknownEscape
			}
		default:
			out = append(out, b)
		}
	}
	return out, nil
}

// stuff applies byte-stuffing to a header or payload region ahead of
// framing: 0x7D→{0x7D,0x00}, 0x7E→{0x7D,0x01}, 0x7F→{0x7D,0x02}.
func stuff(in []byte) []byte {
	out := make([]byte, 0, len(in))
	for _, b := range in {
		switch b {
		case escapeByte:
			out = append(out, escapeByte, escapedNone)
		case delimHeaderEnd:
			out = append(out, escapeByte, escapedHeaderEnd)
		case delimPacketEnd:
			out = append(out, escapeByte, escapedPacketEnd)
		default:
			out = append(out, b)
		}
	}
	return out
}

// EncodeFrame stuffs header and payload independently and appends the
// 0x7E/0x7F delimiter pair, producing one complete wire packet.
func EncodeFrame(header, payload []byte) []byte {
	stuffedHeader := stuff(header)
	stuffedPayload := stuff(payload)

	out := make([]byte, 0, len(stuffedHeader)+len(stuffedPayload)+2)
	out = append(out, stuffedHeader...)
	out = append(out, delimHeaderEnd)
	out = append(out, stuffedPayload...)
	out = append(out, delimPacketEnd)
	return out
}
