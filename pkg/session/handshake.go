package session

import (
	"context"
	"net"

	"github.com/halvardtech/itv2link/pkg/binpack"
	"github.com/halvardtech/itv2link/pkg/crypto"
	"github.com/halvardtech/itv2link/pkg/itv2msg"
	"github.com/halvardtech/itv2link/pkg/panelmsg"
	"github.com/halvardtech/itv2link/pkg/perr"
	"github.com/halvardtech/itv2link/pkg/tlink"
	"github.com/pion/logging"
)

// Connect performs the four-step handshake from SPEC_FULL.md §4.3 over
// conn and, on success, starts the receive pump and heartbeat and
// returns a Connected Session. The handshake is always initiated by
// the remote panel (side B); conn is the accepted connection.
func Connect(ctx context.Context, conn net.Conn, registry *binpack.Registry, settings Settings, loggerFactory logging.LoggerFactory) (*Session, error) {
	settings = settings.withDefaults()
	sctx, cancel := context.WithCancel(ctx)

	s := &Session{
		conn:     conn,
		settings: settings,
		registry: registry,
		seq:      itv2msg.NewSequenceState(),
		reader:   newFrameReader(conn, tlink.DelimiterExtractor{}),
		notifyCh: make(chan interface{}),
		gateCh:   make(chan struct{}),
		ctx:      sctx,
		cancel:   cancel,
	}
	if loggerFactory != nil {
		s.log = loggerFactory.NewLogger("itv2-session")
	}

	if err := s.handshake(); err != nil {
		cancel()
		conn.Close()
		return nil, err
	}

	s.armGate()
	s.wg.Add(2)
	go s.runPump()
	go s.runHeartbeat()

	return s, nil
}

// sendHandshakeMessage increments local_sequence, builds a packet
// addressed to the current remote_sequence, and writes it — the
// handshake equivalent of Send's locked emit step, but without
// registering a pending receiver (the handshake reads its expected
// replies directly, since nothing else is using the connection yet).
func (s *Session) sendHandshakeMessage(msg interface{}) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	senderSeq := s.seq.NextLocal()
	packet, err := s.encodePacket(msg, senderSeq, s.seq.Remote())
	if err != nil {
		return err
	}
	return s.writePacket(packet)
}

// expectSimpleAck reads one packet and requires it to be a SimpleAck
// acknowledging senderSeq. remote_sequence is intentionally left
// untouched: it is set only for non-ack inbound packets (SPEC_FULL.md §3).
func (s *Session) expectSimpleAck(senderSeq byte) error {
	p, err := s.readPacket()
	if err != nil {
		return err
	}
	if !p.IsSimpleAck() || p.ReceiverSequence != senderSeq {
		return perr.New(perr.UnexpectedResponse, "expected closing SimpleAck")
	}
	return nil
}

func (s *Session) handshake() error {
	// Step 1: receive OpenSession from B (unencrypted).
	p1, err := s.readPacket()
	if err != nil {
		return err
	}
	open1, ok := s.decodeMessage(p1).(*panelmsg.OpenSession)
	if !ok {
		return perr.New(perr.UnexpectedResponse, "expected OpenSession")
	}
	s.seq.SetRemote(p1.SenderSequence)
	s.seq.SetCommand(open1.CommandSequence)

	resp1 := &panelmsg.CommandResponse{ResponseCode: 0}
	resp1.SetCommandSequence(open1.CommandSequence)
	if err := s.sendHandshakeMessage(resp1); err != nil {
		return err
	}
	if err := s.expectSimpleAck(s.seq.Local()); err != nil {
		return err
	}

	// Step 2: send OpenSession to B, mirroring the received one.
	mirrored := &panelmsg.OpenSession{EncryptionType: open1.EncryptionType}
	mirrored.SetCommandSequence(s.seq.NextCommand())
	if err := s.sendHandshakeMessage(mirrored); err != nil {
		return err
	}
	p2, err := s.readPacket()
	if err != nil {
		return err
	}
	s.seq.SetRemote(p2.SenderSequence)
	cr2, ok := s.decodeMessage(p2).(*panelmsg.CommandResponse)
	if !ok {
		return perr.New(perr.UnexpectedResponse, "expected CommandResponse")
	}
	if cr2.CommandSequence != mirrored.CommandSequence {
		return perr.New(perr.UnexpectedResponse, "CommandResponse carries the wrong CommandSequence")
	}
	if err := s.sendAck(p2.SenderSequence); err != nil {
		return err
	}

	handler, err := newEncryptionHandler(open1.EncryptionType, settingsAccessCode(s.settings, open1.EncryptionType))
	if err != nil {
		return err
	}
	s.setEncryptionHandler(handler)

	// Step 3: receive RequestAccess from B (still unencrypted).
	p3, err := s.readPacket()
	if err != nil {
		return err
	}
	s.seq.SetRemote(p3.SenderSequence)
	ra3, ok := s.decodeMessage(p3).(*panelmsg.RequestAccess)
	if !ok {
		return perr.New(perr.UnexpectedResponse, "expected RequestAccess")
	}

	if err := handler.ConfigureOutbound(ra3.Initializer); err != nil {
		return perr.Wrap(perr.EncryptionError, "failed to configure outbound encryption", err)
	}
	s.activateOutbound()

	resp3 := &panelmsg.CommandResponse{ResponseCode: 0}
	resp3.SetCommandSequence(ra3.CommandSequence)
	if err := s.sendHandshakeMessage(resp3); err != nil {
		return err
	}
	if err := s.expectSimpleAck(s.seq.Local()); err != nil {
		return err
	}

	// Step 4: generate our initializer, complete the exchange, and
	// transition to Connected.
	ourInitializer, err := handler.ConfigureInbound()
	if err != nil {
		return perr.Wrap(perr.EncryptionError, "failed to configure inbound encryption", err)
	}
	s.activateInbound()

	ourRequest := &panelmsg.RequestAccess{Initializer: ourInitializer}
	ourRequest.SetCommandSequence(s.seq.NextCommand())
	if err := s.sendHandshakeMessage(ourRequest); err != nil {
		return err
	}
	p4, err := s.readPacket()
	if err != nil {
		return err
	}
	s.seq.SetRemote(p4.SenderSequence)
	cr4, ok := s.decodeMessage(p4).(*panelmsg.CommandResponse)
	if !ok {
		return perr.New(perr.UnexpectedResponse, "expected CommandResponse")
	}
	if cr4.CommandSequence != ourRequest.CommandSequence {
		return perr.New(perr.UnexpectedResponse, "CommandResponse carries the wrong CommandSequence")
	}
	return s.sendAck(p4.SenderSequence)
}

// newEncryptionHandler instantiates the Type1/Type2 handler selected
// by the negotiated encryption type.
func newEncryptionHandler(t panelmsg.EncryptionType, accessCode []byte) (crypto.Handler, error) {
	switch t {
	case panelmsg.EncryptionType1:
		return crypto.NewType1(accessCode), nil
	case panelmsg.EncryptionType2:
		return crypto.NewType2(accessCode), nil
	default:
		return nil, perr.New(perr.UnexpectedResponse, "unsupported encryption type")
	}
}

func settingsAccessCode(s Settings, t panelmsg.EncryptionType) []byte {
	if t == panelmsg.EncryptionType2 {
		return s.Type2AccessCode
	}
	return s.Type1AccessCode
}
