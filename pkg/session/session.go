package session

import (
	"net"
	"context"
	"sync"
	"time"

	"github.com/halvardtech/itv2link/pkg/binpack"
	"github.com/halvardtech/itv2link/pkg/crypto"
	"github.com/halvardtech/itv2link/pkg/itv2frame"
	"github.com/halvardtech/itv2link/pkg/itv2msg"
	"github.com/halvardtech/itv2link/pkg/panelmsg"
	"github.com/halvardtech/itv2link/pkg/perr"
	"github.com/halvardtech/itv2link/pkg/tlink"
	"github.com/pion/logging"
)

// Session is one connected, handshaken ITv2 link. It owns a transport,
// the sequence counters, the pending-receiver table, and the
// background pump/heartbeat/gate tasks described in SPEC_FULL.md §5.
type Session struct {
	conn          net.Conn
	header        []byte // the captured "default header" (SPEC_FULL.md §9)
	headerMu      sync.Mutex
	headerCaptured bool
	sessionID     string

	settings Settings
	registry *binpack.Registry
	seq      *itv2msg.SequenceState

	// enc is instantiated once the handshake learns the negotiated
	// encryption variant (step 2); outActive/inActive track which
	// directions have since been configured, per SPEC_FULL.md §4.3
	// ("do not activate yet" / "all subsequent inbound is encrypted").
	enc       crypto.Handler
	encMu     sync.RWMutex
	outActive bool
	inActive  bool

	reader *frameReader

	sendMu    sync.Mutex
	receivers receiverTable

	notifyCh chan interface{}

	gateOnce  sync.Once
	gateCh    chan struct{}
	gateMu    sync.Mutex
	gateTimer *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	log       logging.LeveledLogger
}

// SessionID returns the UTF-8 decoding of the captured TLink header.
func (s *Session) SessionID() string { return s.sessionID }

func (s *Session) setEncryptionHandler(h crypto.Handler) {
	s.encMu.Lock()
	s.enc = h
	s.encMu.Unlock()
}

func (s *Session) activateOutbound() { s.encMu.Lock(); s.outActive = true; s.encMu.Unlock() }
func (s *Session) activateInbound()  { s.encMu.Lock(); s.inActive = true; s.encMu.Unlock() }

func (s *Session) outboundHandler() crypto.Handler {
	s.encMu.RLock()
	defer s.encMu.RUnlock()
	if !s.outActive {
		return nil
	}
	return s.enc
}

func (s *Session) inboundHandler() crypto.Handler {
	s.encMu.RLock()
	defer s.encMu.RUnlock()
	if !s.inActive {
		return nil
	}
	return s.enc
}

func isCommandMessageType(reg *binpack.Registry) itv2msg.IsCommandFunc {
	return func(messageType uint16) bool { return reg.IsCommand(messageType) }
}

// ackPacket builds a SimpleAck: two sequence bytes, no message.
func ackPacket(senderSeq, receiverSeq byte) *itv2msg.Packet {
	return &itv2msg.Packet{SenderSequence: senderSeq, ReceiverSequence: receiverSeq}
}

// decodeMessage resolves a parsed Packet's payload into a concrete
// message value via the registry, threading CommandSequence in when
// present, per SPEC_FULL.md §4.4.
func (s *Session) decodeMessage(p *itv2msg.Packet) interface{} {
	if !p.HasMessage {
		return nil
	}
	msg, ok, err := s.registry.DecodePayload(p.MessageType, p.MessageData)
	if err != nil || !ok {
		return &panelmsg.DefaultMessage{Command: p.MessageType, RawData: p.MessageData}
	}
	if p.HasCommandSequence {
		if setter, ok := msg.(binpack.CommandSequenceSetter); ok {
			setter.SetCommandSequence(p.CommandSequence)
		}
	}
	return msg
}

// encodePacket builds the wire Packet for an outbound message, looking
// up its command word and command-ness in the registry.
func (s *Session) encodePacket(msg interface{}, senderSeq, receiverSeq byte) (*itv2msg.Packet, error) {
	word, ok := s.registry.CommandWord(msg)
	if !ok {
		return nil, perr.New(perr.EncodingError, "message type not registered")
	}
	data, err := s.registry.EncodePayload(msg)
	if err != nil {
		return nil, perr.Wrap(perr.EncodingError, "failed to encode message payload", err)
	}
	p := &itv2msg.Packet{
		SenderSequence:   senderSeq,
		ReceiverSequence: receiverSeq,
		HasMessage:       true,
		MessageType:      word,
		MessageData:      data,
	}
	if s.registry.IsCommand(word) {
		p.HasCommandSequence = true
		if getter, ok := msg.(binpack.CommandSequenceGetter); ok {
			p.CommandSequence = getter.CommandSequenceValue()
		}
	}
	return p, nil
}

// writePacket frames, optionally encrypts, and writes p to the wire.
func (s *Session) writePacket(p *itv2msg.Packet) error {
	body := p.Encode()
	framed, err := itv2frame.AddFraming(body)
	if err != nil {
		return perr.Wrap(perr.EncodingError, "failed to frame outbound packet", err)
	}

	payload := framed
	if h := s.outboundHandler(); h != nil {
		payload, err = h.EncryptOutbound(framed)
		if err != nil {
			return perr.Wrap(perr.EncryptionError, "failed to encrypt outbound packet", err)
		}
	}

	wire := tlink.EncodeFrame(s.header, payload)
	if _, err := s.conn.Write(wire); err != nil {
		return perr.Wrap(perr.Disconnected, "transport write failed", err)
	}
	return nil
}

// readPacket reads one TLink packet, unframes/decrypts/parses it into
// an *itv2msg.Packet.
func (s *Session) readPacket() (*itv2msg.Packet, error) {
	raw, err := s.reader.ReadPacket()
	if err != nil {
		return nil, perr.Wrap(perr.Disconnected, "transport read failed", err)
	}

	header, payload, err := tlink.ParseFrame(raw)
	if err != nil {
		kind := perr.FramingError
		if err == tlink.ErrRawDelimiter || err == tlink.ErrUnknownEscape || err == tlink.ErrTrailingEscape {
			kind = perr.EncodingError
		}
		return nil, perr.Wrap(kind, "tlink frame error", err)
	}
	s.captureHeader(header)

	framed := payload
	if h := s.inboundHandler(); h != nil {
		framed, err = h.DecryptInbound(payload)
		if err != nil {
			return nil, perr.Wrap(perr.EncryptionError, "failed to decrypt inbound packet", err)
		}
	}

	body, err := itv2frame.RemoveFraming(framed)
	if err != nil {
		return nil, perr.Wrap(perr.PacketParseError, "itv2 framing error", err)
	}

	p, err := itv2msg.DecodePacket(body, isCommandMessageType(s.registry))
	if err != nil {
		return nil, perr.Wrap(perr.PacketParseError, "itv2 packet parse error", err)
	}
	return p, nil
}

// captureHeader records the "default header" from the first inbound
// TLink frame and derives session_id from it, per SPEC_FULL.md §9
// ("default header") / GLOSSARY ("Integration ID"). Later frames'
// headers are ignored; the captured one is reused for every outbound
// packet.
func (s *Session) captureHeader(header []byte) {
	s.headerMu.Lock()
	defer s.headerMu.Unlock()
	if s.headerCaptured {
		return
	}
	s.header = append([]byte(nil), header...)
	s.sessionID = string(s.header)
	s.headerCaptured = true
}

// Notifications returns the channel of unmatched inbound messages. It
// closes when the session's receive pump exits.
func (s *Session) Notifications() <-chan interface{} { return s.notifyCh }

// Close cancels every in-flight wait, stops the background tasks, and
// closes the transport, per SPEC_FULL.md §5 ("cold cancellation").
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		s.receivers.cancelAll(perr.New(perr.Cancelled, "session closed"))
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}
