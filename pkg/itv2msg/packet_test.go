package itv2msg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func alwaysCommand(uint16) bool { return true }
func neverCommand(uint16) bool  { return false }

func TestSimpleAckRoundTrip(t *testing.T) {
	p := &Packet{SenderSequence: 0x06, ReceiverSequence: 0x09}
	require.True(t, p.IsSimpleAck())
	require.Equal(t, 2, p.Size())

	encoded := p.Encode()
	require.Equal(t, []byte{0x06, 0x09}, encoded)

	decoded, err := DecodePacket(encoded, neverCommand)
	require.NoError(t, err)
	require.Equal(t, p, decoded)
}

func TestNotificationRoundTrip(t *testing.T) {
	p := &Packet{
		SenderSequence:   0x01,
		ReceiverSequence: 0x02,
		HasMessage:       true,
		MessageType:      0x1234,
		MessageData:      []byte{0xAA, 0xBB, 0xCC},
	}
	encoded := p.Encode()
	decoded, err := DecodePacket(encoded, neverCommand)
	require.NoError(t, err)
	require.Equal(t, p, decoded)
}

func TestCommandMessageRoundTrip(t *testing.T) {
	p := &Packet{
		SenderSequence:      0x06,
		ReceiverSequence:    0x09,
		HasMessage:          true,
		MessageType:         0x0052,
		HasCommandSequence:  true,
		CommandSequence:     0x04,
		MessageData:         nil,
	}
	encoded := p.Encode()
	require.Equal(t, []byte{0x06, 0x09, 0x00, 0x52, 0x04}, encoded)

	decoded, err := DecodePacket(encoded, alwaysCommand)
	require.NoError(t, err)
	require.Equal(t, p, decoded)
}

func TestDecodeTooShort(t *testing.T) {
	_, err := DecodePacket([]byte{0x01}, neverCommand)
	require.ErrorIs(t, err, ErrTooShort)
}

func TestDecodeTruncatedMessageType(t *testing.T) {
	_, err := DecodePacket([]byte{0x01, 0x02, 0x00}, neverCommand)
	require.ErrorIs(t, err, ErrTruncatedMessageType)
}

func TestDecodeTruncatedCommandSequence(t *testing.T) {
	_, err := DecodePacket([]byte{0x01, 0x02, 0x00, 0x52}, alwaysCommand)
	require.ErrorIs(t, err, ErrTruncatedCommandSequence)
}

func TestSequenceStateInitialValues(t *testing.T) {
	s := NewSequenceState()
	require.Equal(t, byte(1), s.Local())
	require.Equal(t, byte(0), s.Remote())
	require.Equal(t, byte(0), s.Command())
}

func TestSequenceStateWraps(t *testing.T) {
	s := NewSequenceState()
	for i := 0; i < 255; i++ {
		s.NextLocal()
	}
	require.Equal(t, byte(0), s.Local())
	require.Equal(t, byte(1), s.NextLocal())
}

func TestSequenceStateCommandWrapsAndSet(t *testing.T) {
	s := NewSequenceState()
	s.SetCommand(0x03)
	require.Equal(t, byte(0x03), s.Command())
	require.Equal(t, byte(0x04), s.NextCommand())
}
