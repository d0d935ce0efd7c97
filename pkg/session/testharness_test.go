package session

import (
	"net"
	"testing"
	"time"

	"github.com/halvardtech/itv2link/pkg/crypto"
	"github.com/halvardtech/itv2link/pkg/itv2frame"
	"github.com/halvardtech/itv2link/pkg/itv2msg"
	"github.com/halvardtech/itv2link/pkg/panelmsg"
	"github.com/halvardtech/itv2link/pkg/tlink"
	"github.com/stretchr/testify/require"
)

// fakePanel drives the B side of the protocol directly over a net.Conn,
// the way a real panel would, so pkg/session's A-side implementation can
// be exercised end to end without a real TCP socket (net.Pipe stands in
// for the transport, mirroring the teacher's pkg/transport/pipe_test.go).
type fakePanel struct {
	t      *testing.T
	conn   net.Conn
	header []byte
	reader *frameReader

	// outHandler encrypts panel->client traffic once the client's
	// initializer (from its step-4 RequestAccess) is known; inHandler
	// decrypts client->panel traffic using the initializer the panel
	// itself generated and sent in its step-3 RequestAccess.
	outHandler          crypto.Handler
	inHandler           crypto.Handler
	outActive, inActive bool
}

func newFakePanel(t *testing.T, conn net.Conn, header []byte) *fakePanel {
	return &fakePanel{
		t:      t,
		conn:   conn,
		header: header,
		reader: newFrameReader(conn, tlink.DelimiterExtractor{}),
	}
}

func (f *fakePanel) send(senderSeq, receiverSeq byte, word uint16, hasCommandSeq bool, commandSeq byte, data []byte) {
	p := &itv2msg.Packet{
		SenderSequence:     senderSeq,
		ReceiverSequence:   receiverSeq,
		HasMessage:         word != 0 || len(data) != 0 || hasCommandSeq,
		MessageType:        word,
		HasCommandSequence: hasCommandSeq,
		CommandSequence:    commandSeq,
		MessageData:        data,
	}
	f.sendPacket(p)
}

func (f *fakePanel) sendAck(senderSeq, receiverSeq byte) {
	f.sendPacket(&itv2msg.Packet{SenderSequence: senderSeq, ReceiverSequence: receiverSeq})
}

func (f *fakePanel) sendPacket(p *itv2msg.Packet) {
	body := p.Encode()
	framed, err := itv2frame.AddFraming(body)
	require.NoError(f.t, err)

	payload := framed
	if f.outActive && f.outHandler != nil {
		payload, err = f.outHandler.EncryptOutbound(framed)
		require.NoError(f.t, err)
	}
	wire := tlink.EncodeFrame(f.header, payload)
	_, err = f.conn.Write(wire)
	require.NoError(f.t, err)
}

func (f *fakePanel) recv() *itv2msg.Packet {
	f.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	raw, err := f.reader.ReadPacket()
	require.NoError(f.t, err)

	_, payload, err := tlink.ParseFrame(raw)
	require.NoError(f.t, err)

	framed := payload
	if f.inActive && f.inHandler != nil {
		framed, err = f.inHandler.DecryptInbound(payload)
		require.NoError(f.t, err)
	}

	body, err := itv2frame.RemoveFraming(framed)
	require.NoError(f.t, err)

	isCommand := func(word uint16) bool {
		switch word {
		case panelmsg.CmdOpenSession, panelmsg.CmdRequestAccess, panelmsg.CmdCommandResponse:
			return true
		default:
			return false
		}
	}
	p, err := itv2msg.DecodePacket(body, isCommand)
	require.NoError(f.t, err)
	return p
}
