package session

import (
	"encoding/binary"

	"github.com/halvardtech/itv2link/pkg/binpack"
	"github.com/halvardtech/itv2link/pkg/itv2msg"
	"github.com/halvardtech/itv2link/pkg/panelmsg"
	"github.com/halvardtech/itv2link/pkg/perr"
)

// runPump is the single receive task described in SPEC_FULL.md §4.3
// ("receive pump") / §5: sole reader of the transport, sole writer of
// remote_sequence, sole writer to the notification channel.
func (s *Session) runPump() {
	defer s.wg.Done()
	defer close(s.notifyCh)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		p, err := s.readPacket()
		if err != nil {
			if s.isFatalPumpError(err) {
				if s.log != nil {
					s.log.Warnf("session %s: pump exiting: %v", s.sessionID, err)
				}
				return
			}
			if s.log != nil {
				s.log.Warnf("session %s: recoverable packet error, skipping: %v", s.sessionID, err)
			}
			continue
		}

		s.handleInboundPacket(p)
	}
}

// isFatalPumpError reports whether err should terminate the pump
// rather than be logged and skipped, per SPEC_FULL.md §4.3/§7.
func (s *Session) isFatalPumpError(err error) bool {
	kind, ok := perr.Of(err)
	if !ok {
		return true
	}
	switch kind {
	case perr.Disconnected, perr.Cancelled:
		return true
	default:
		// FramingError, EncodingError, PacketParseError, EncryptionError:
		// recoverable, the pump logs and continues reading.
		return false
	}
}

func (s *Session) handleInboundPacket(p *itv2msg.Packet) {
	s.resetGate()

	if !p.IsSimpleAck() {
		s.seq.SetRemote(p.SenderSequence)
		if err := s.sendAck(p.SenderSequence); err != nil && s.log != nil {
			s.log.Warnf("session %s: failed to ack inbound packet: %v", s.sessionID, err)
		}
	}

	msg := s.decodeMessage(p)

	if mmp, ok := msg.(*panelmsg.MultipleMessagePacket); ok {
		s.handleMultipleMessagePacket(p, mmp)
		return
	}

	if s.receivers.offerPacket(p, msg) {
		return
	}

	if msg != nil {
		select {
		case s.notifyCh <- msg:
		case <-s.ctx.Done():
		}
	}
}

// handleMultipleMessagePacket expands a MultipleMessagePacket per
// SPEC_FULL.md §4.3 ("multiple-message expansion"): it is itself a
// notification at the protocol level (already acked above as a whole),
// and each sub-message is independently offered to pending receivers
// or published as a notification.
func (s *Session) handleMultipleMessagePacket(p *itv2msg.Packet, mmp *panelmsg.MultipleMessagePacket) {
	matched := 0
	for _, raw := range mmp.SubMessages {
		sub, err := decodeSubMessage(s.registry, raw)
		if err != nil {
			if s.log != nil {
				s.log.Warnf("session %s: failed to decode MultipleMessagePacket sub-message: %v", s.sessionID, err)
			}
			continue
		}

		if s.receivers.offerPacket(p, sub) {
			matched++
			if matched > 1 && s.log != nil {
				s.log.Warnf("session %s: more than one command-response sub-message observed in a MultipleMessagePacket", s.sessionID)
			}
			continue
		}

		select {
		case s.notifyCh <- sub:
		case <-s.ctx.Done():
			return
		}
	}
}

// decodeSubMessage parses one MultipleMessagePacket element: a 2-byte
// command word, an optional CommandSequence byte (when the word is
// command-carrying), then the serialized payload.
func decodeSubMessage(reg *binpack.Registry, raw []byte) (interface{}, error) {
	if len(raw) < 2 {
		return nil, itv2msg.ErrTooShort
	}
	word := binary.BigEndian.Uint16(raw)
	rest := raw[2:]

	var commandSeq byte
	hasCommandSeq := reg.IsCommand(word)
	if hasCommandSeq {
		if len(rest) < 1 {
			return nil, itv2msg.ErrTruncatedCommandSequence
		}
		commandSeq = rest[0]
		rest = rest[1:]
	}

	msg, ok, err := reg.DecodePayload(word, rest)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &panelmsg.DefaultMessage{Command: word, RawData: rest}, nil
	}
	if hasCommandSeq {
		if setter, ok := msg.(binpack.CommandSequenceSetter); ok {
			setter.SetCommandSequence(commandSeq)
		}
	}
	return msg, nil
}
