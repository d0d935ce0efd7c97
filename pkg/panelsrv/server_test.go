package panelsrv

import (
	"net"
	"testing"
	"time"

	"github.com/halvardtech/itv2link/pkg/binpack"
	"github.com/halvardtech/itv2link/pkg/crypto"
	"github.com/halvardtech/itv2link/pkg/itv2frame"
	"github.com/halvardtech/itv2link/pkg/itv2msg"
	"github.com/halvardtech/itv2link/pkg/panelmsg"
	"github.com/halvardtech/itv2link/pkg/session"
	"github.com/halvardtech/itv2link/pkg/tlink"
	"github.com/stretchr/testify/require"
)

// testPanel drives the B side of the handshake directly over a dialed
// TCP connection, duplicating pkg/session's own fakePanel test harness
// since the two packages cannot share unexported test helpers.
type testPanel struct {
	t      *testing.T
	conn   net.Conn
	header []byte
	buf    []byte
	chunk  []byte

	outHandler crypto.Handler
	inHandler  crypto.Handler
	outActive  bool
	inActive   bool
}

func dialTestPanel(t *testing.T, addr net.Addr, header []byte) *testPanel {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	return &testPanel{t: t, conn: conn, header: header, chunk: make([]byte, 4096)}
}

func (p *testPanel) send(senderSeq, receiverSeq byte, word uint16, hasCommandSeq bool, commandSeq byte, data []byte) {
	pkt := &itv2msg.Packet{
		SenderSequence:     senderSeq,
		ReceiverSequence:   receiverSeq,
		HasMessage:         word != 0 || len(data) != 0 || hasCommandSeq,
		MessageType:        word,
		HasCommandSequence: hasCommandSeq,
		CommandSequence:    commandSeq,
		MessageData:        data,
	}
	p.sendPacket(pkt)
}

func (p *testPanel) sendAck(senderSeq, receiverSeq byte) {
	p.sendPacket(&itv2msg.Packet{SenderSequence: senderSeq, ReceiverSequence: receiverSeq})
}

func (p *testPanel) sendPacket(pkt *itv2msg.Packet) {
	body := pkt.Encode()
	framed, err := itv2frame.AddFraming(body)
	require.NoError(p.t, err)

	payload := framed
	if p.outActive && p.outHandler != nil {
		payload, err = p.outHandler.EncryptOutbound(framed)
		require.NoError(p.t, err)
	}
	_, err = p.conn.Write(tlink.EncodeFrame(p.header, payload))
	require.NoError(p.t, err)
}

func (p *testPanel) recv() *itv2msg.Packet {
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	extractor := tlink.DelimiterExtractor{}
	for {
		packet, consumed, err := extractor.TryExtractPacket(p.buf)
		if err == nil {
			p.buf = append([]byte(nil), p.buf[consumed:]...)
			_, payload, ferr := tlink.ParseFrame(packet)
			require.NoError(p.t, ferr)

			framed := payload
			if p.inActive && p.inHandler != nil {
				framed, ferr = p.inHandler.DecryptInbound(payload)
				require.NoError(p.t, ferr)
			}
			body, ferr := itv2frame.RemoveFraming(framed)
			require.NoError(p.t, ferr)

			isCommand := func(word uint16) bool {
				switch word {
				case panelmsg.CmdOpenSession, panelmsg.CmdRequestAccess, panelmsg.CmdCommandResponse:
					return true
				default:
					return false
				}
			}
			decoded, derr := itv2msg.DecodePacket(body, isCommand)
			require.NoError(p.t, derr)
			return decoded
		}
		require.ErrorIs(p.t, err, tlink.ErrNeedMore)

		n, rerr := p.conn.Read(p.chunk)
		if n > 0 {
			p.buf = append(p.buf, p.chunk[:n]...)
		}
		require.NoError(p.t, rerr)
	}
}

func (p *testPanel) close() { p.conn.Close() }

func encodePayload(t *testing.T, reg *binpack.Registry, msg interface{}) []byte {
	t.Helper()
	data, err := reg.EncodePayload(msg)
	require.NoError(t, err)
	return data
}

// runFullHandshake drives all four steps of the handshake described in
// pkg/session's own tests, returning once the server should have a
// registered session for this connection.
func runFullHandshake(t *testing.T, p *testPanel, reg *binpack.Registry, accessCode []byte) {
	t.Helper()

	p.send(5, 0, panelmsg.CmdOpenSession, true, 9, encodePayload(t, reg, &panelmsg.OpenSession{EncryptionType: panelmsg.EncryptionType1}))
	cr1 := p.recv()
	require.Equal(t, panelmsg.CmdCommandResponse, cr1.MessageType)
	p.sendAck(6, cr1.SenderSequence)

	open2 := p.recv()
	require.Equal(t, panelmsg.CmdOpenSession, open2.MessageType)
	p.send(7, open2.SenderSequence, panelmsg.CmdCommandResponse, true, open2.CommandSequence, encodePayload(t, reg, &panelmsg.CommandResponse{ResponseCode: 0}))
	ack2 := p.recv()
	require.True(t, ack2.IsSimpleAck())

	p.inHandler = crypto.NewType1(accessCode)
	initializer, err := p.inHandler.ConfigureInbound()
	require.NoError(t, err)
	p.send(8, open2.SenderSequence, panelmsg.CmdRequestAccess, true, 10, encodePayload(t, reg, &panelmsg.RequestAccess{Initializer: initializer}))

	p.inActive = true
	cr3 := p.recv()
	require.Equal(t, panelmsg.CmdCommandResponse, cr3.MessageType)
	p.send(9, cr3.SenderSequence, 0, false, 0, nil)

	ra4 := p.recv()
	require.Equal(t, panelmsg.CmdRequestAccess, ra4.MessageType)
	decoded, ok, err := reg.DecodePayload(ra4.MessageType, ra4.MessageData)
	require.NoError(t, err)
	require.True(t, ok)
	clientRequestAccess := decoded.(*panelmsg.RequestAccess)

	p.outHandler = crypto.NewType1(accessCode)
	require.NoError(t, p.outHandler.ConfigureOutbound(clientRequestAccess.Initializer))
	p.outActive = true

	p.send(10, ra4.SenderSequence, panelmsg.CmdCommandResponse, true, ra4.CommandSequence, encodePayload(t, reg, &panelmsg.CommandResponse{ResponseCode: 0}))
	ackFinal := p.recv()
	require.True(t, ackFinal.IsSimpleAck())
}

func TestServerAcceptsAndRegistersSession(t *testing.T) {
	accessCode := []byte("0123456789abcdef")
	reg := panelmsg.NewRegistry()

	srv, err := NewServer(Config{
		ListenAddr: "127.0.0.1:0",
		Registry:   reg,
		Settings:   session.Settings{Type1AccessCode: accessCode, QuietGate: time.Hour, Heartbeat: time.Hour},
	})
	require.NoError(t, err)
	srv.Start()
	defer srv.Stop()

	panel := dialTestPanel(t, srv.LocalAddr(), []byte("PANEL-0001"))
	defer panel.close()
	runFullHandshake(t, panel, reg, accessCode)

	require.Eventually(t, func() bool { return srv.ActiveSessions() == 1 }, time.Second, 5*time.Millisecond)

	sess, err := srv.Lookup("PANEL-0001")
	require.NoError(t, err)
	require.Equal(t, "PANEL-0001", sess.SessionID())
}

func TestServerLookupFailsForUnknownSession(t *testing.T) {
	reg := panelmsg.NewRegistry()
	srv, err := NewServer(Config{ListenAddr: "127.0.0.1:0", Registry: reg})
	require.NoError(t, err)
	srv.Start()
	defer srv.Stop()

	_, err = srv.Lookup("no-such-panel")
	require.Error(t, err)
}

func TestServerDropsConnectionOnHandshakeFailure(t *testing.T) {
	reg := panelmsg.NewRegistry()
	srv, err := NewServer(Config{
		ListenAddr: "127.0.0.1:0",
		Registry:   reg,
		Settings:   session.Settings{Type1AccessCode: []byte("0123456789abcdef")},
	})
	require.NoError(t, err)
	srv.Start()
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	// Garbage that never resolves into a valid TLink/ITv2 handshake
	// opener; the connection should be closed without a session ever
	// being registered.
	_, err = conn.Write([]byte{0x00, 0x01, 0x02, 0x03})
	require.NoError(t, err)

	require.Never(t, func() bool { return srv.ActiveSessions() > 0 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestServerStopUnblocksAcceptLoop(t *testing.T) {
	reg := panelmsg.NewRegistry()
	srv, err := NewServer(Config{ListenAddr: "127.0.0.1:0", Registry: reg})
	require.NoError(t, err)
	srv.Start()

	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop()) // idempotent

	_, err = net.Dial("tcp", srv.LocalAddr().String())
	require.Error(t, err, "listener should be closed after Stop")
}

func TestServerBoundsConcurrentHandshakes(t *testing.T) {
	accessCode := []byte("0123456789abcdef")
	reg := panelmsg.NewRegistry()

	srv, err := NewServer(Config{
		ListenAddr:              "127.0.0.1:0",
		Registry:                reg,
		MaxConcurrentHandshakes: 1,
		Settings:                session.Settings{Type1AccessCode: accessCode, QuietGate: time.Hour, Heartbeat: time.Hour},
	})
	require.NoError(t, err)
	srv.Start()
	defer srv.Stop()

	first := dialTestPanel(t, srv.LocalAddr(), []byte("PANEL-0001"))
	defer first.close()

	// Start, but do not finish, the first handshake: the connection is
	// accept()-ed and its handler goroutine holds the single semaphore
	// slot for the rest of this test.
	first.send(5, 0, panelmsg.CmdOpenSession, true, 9, encodePayload(t, reg, &panelmsg.OpenSession{EncryptionType: panelmsg.EncryptionType1}))
	_ = first.recv()

	// A second connection can still be accepted by the listener's
	// backlog, but the server's accept loop itself blocks acquiring the
	// semaphore before it can spawn a second handshake goroutine, so no
	// second handshake can complete while the first is in flight.
	second := dialTestPanel(t, srv.LocalAddr(), []byte("PANEL-0002"))
	defer second.close()
	second.conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	buf := make([]byte, 1)
	_, err = second.conn.Read(buf)
	require.Error(t, err, "second connection should see no handshake traffic while the first holds the only slot")

	require.Equal(t, 0, srv.ActiveSessions())
}
