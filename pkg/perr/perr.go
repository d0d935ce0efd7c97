// Package perr defines the flat error-kind taxonomy shared across the
// TLink/ITv2 stack. Leaf packages (tlink, itv2frame, binpack) keep their
// own plain sentinel errors for internal failure modes; the session
// package wraps those into *perr.Error at the public API boundary,
// which is where callers observe the kind enumeration.
package perr

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Kind enumerates the infrastructure-level outcomes a public operation
// can report.
type Kind int

const (
	// Cancelled indicates caller cancellation was observed.
	Cancelled Kind = iota
	// Disconnected indicates the remote closed or a transport write failed.
	Disconnected
	// FramingError indicates a TLink delimiter was missing or misplaced.
	FramingError
	// EncodingError indicates a byte-stuffing violation.
	EncodingError
	// EncryptionError indicates an ECB configure/encrypt/decrypt failure.
	EncryptionError
	// PacketParseError indicates a CRC mismatch, length overflow, or bad payload.
	PacketParseError
	// SessionNotFound indicates a session registry lookup miss.
	SessionNotFound
	// UnexpectedResponse indicates the handshake received a wrong message type.
	UnexpectedResponse
	// Timeout indicates a command-response wait exceeded its budget.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Cancelled:
		return "Cancelled"
	case Disconnected:
		return "Disconnected"
	case FramingError:
		return "FramingError"
	case EncodingError:
		return "EncodingError"
	case EncryptionError:
		return "EncryptionError"
	case PacketParseError:
		return "PacketParseError"
	case SessionNotFound:
		return "SessionNotFound"
	case UnexpectedResponse:
		return "UnexpectedResponse"
	case Timeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Error is the structured error returned by every public operation in
// this module. It carries the infrastructure-level Kind, a message, an
// optional hex dump of the offending packet for diagnostics, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Packet  []byte
	Cause   error
}

// New creates an *Error with no packet or cause attached.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error that wraps an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithPacket attaches a packet snapshot for diagnostics and returns the
// same *Error for chaining.
func (e *Error) WithPacket(packet []byte) *Error {
	e.Packet = append([]byte(nil), packet...)
	return e
}

func (e *Error) Error() string {
	if e.Packet != nil {
		return fmt.Sprintf("itv2: %s: %s (packet=%s)", e.Kind, e.Message, hex.EncodeToString(e.Packet))
	}
	if e.Cause != nil {
		return fmt.Sprintf("itv2: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("itv2: %s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind, allowing
// errors.Is(err, perr.New(perr.Timeout, "")) style comparisons by kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Of reports the Kind of err if it is (or wraps) a *perr.Error, and ok=false otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
