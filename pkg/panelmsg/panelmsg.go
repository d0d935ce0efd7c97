// Package panelmsg is the concrete ITv2 message type catalog: the
// handshake messages, the heartbeat, the multiple-message envelope, and
// the registry wiring them to pkg/binpack. See SPEC_FULL.md §4.3/§4.4.
package panelmsg

import "github.com/halvardtech/itv2link/pkg/binpack"

// Reserved command words for the protocol-level messages this module
// implements. spec.md gives a literal wire value only for its generic
// example command (0x0052); these are placeholders for the real
// panel-assigned words, which are outside spec.md's literal scope (see
// DESIGN.md's Open Question resolutions).
const (
	CmdOpenSession           uint16 = 0x0001
	CmdRequestAccess         uint16 = 0x0002
	CmdCommandResponse       uint16 = 0x0003
	CmdConnectionPoll        uint16 = 0x0004
	CmdMultipleMessagePacket uint16 = 0x0005
)

// EncryptionType selects the encryption handler variant negotiated in
// OpenSession.
type EncryptionType uint8

const (
	EncryptionTypeNone EncryptionType = 0
	EncryptionType1    EncryptionType = 1
	EncryptionType2    EncryptionType = 2
)

// CommandHeader is embedded (anonymously, without a wire tag) at the
// front of every command message. CommandSequence is never part of the
// binpack-serialized payload — it lives at the itv2msg.Packet layer
// and is threaded in separately, matching the "abstract base" pattern
// spec.md §4.4 and §9 describe for ICommandMessage.
type CommandHeader struct {
	CommandSequence byte
}

// SetCommandSequence implements binpack.CommandSequenceSetter.
func (h *CommandHeader) SetCommandSequence(v byte) { h.CommandSequence = v }

// CommandSequenceValue implements binpack.CommandSequenceGetter.
func (h *CommandHeader) CommandSequenceValue() byte { return h.CommandSequence }

// ICommandMessage is implemented by every command message.
type ICommandMessage interface {
	binpack.CommandSequenceSetter
	binpack.CommandSequenceGetter
}

// OpenSession is exchanged twice during the handshake (B→A unencrypted,
// then A→B mirroring it): it carries the negotiated encryption type.
type OpenSession struct {
	CommandHeader
	EncryptionType EncryptionType `wire:"u8"`
}

// RequestAccess carries the opaque initializer that seeds the ECB key
// schedule on the receiving side.
type RequestAccess struct {
	CommandHeader
	Initializer []byte `wire:"bytes,lenprefix=1"`
}

// CommandResponse completes a command-level transaction. ResponseCode
// distinguishes a panel-level rejection (non-zero) from success, which
// spec.md §7 treats as a successful round trip carrying a rejection
// payload, not an infrastructure error.
type CommandResponse struct {
	CommandHeader
	ResponseCode uint8 `wire:"u8"`
}

// Succeeded reports whether the panel accepted the command.
func (c *CommandResponse) Succeeded() bool { return c.ResponseCode == 0 }

// ConnectionPoll is the heartbeat notification.
type ConnectionPoll struct{}

// MultipleMessagePacket is a notification-level envelope carrying
// several independently-framed sub-messages; each element is the raw
// command-word-prefixed encoding of one sub-message, produced and
// consumed by the Registry the same way a top-level message is.
type MultipleMessagePacket struct {
	SubMessages [][]byte `wire:"mmpcontents"`
}

// DefaultMessage is the fallback produced when an inbound command word
// is not registered. It is never registered itself — the factory
// constructs it directly from the raw command word and data.
type DefaultMessage struct {
	Command uint16
	RawData []byte
}

// NewRegistry returns a binpack.Registry with every message type in
// this catalog registered.
func NewRegistry() *binpack.Registry {
	reg := binpack.NewRegistry()
	reg.Register(CmdOpenSession, &OpenSession{}, true)
	reg.Register(CmdRequestAccess, &RequestAccess{}, true)
	reg.Register(CmdCommandResponse, &CommandResponse{}, true)
	reg.Register(CmdConnectionPoll, &ConnectionPoll{}, false)
	reg.Register(CmdMultipleMessagePacket, &MultipleMessagePacket{}, false)
	return reg
}
