package itv2frame

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksumKnownVectors(t *testing.T) {
	require.Equal(t, uint16(0xFFFF), Checksum(nil))
	require.Equal(t, uint16(0x29B1), Checksum([]byte("123456789")))
}

func TestAddRemoveFramingRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x01},
		{0x01, 0x02, 0x03},
		make([]byte, 127),
		make([]byte, 128),
		make([]byte, 300),
	}
	for _, body := range cases {
		framed, err := AddFraming(body)
		require.NoError(t, err)

		got, err := RemoveFraming(framed)
		require.NoError(t, err)
		require.Equal(t, body, got)
	}
}

func TestAddFramingUsesShortLengthForSmallBodies(t *testing.T) {
	framed, err := AddFraming(make([]byte, 5))
	require.NoError(t, err)
	require.Equal(t, byte(5), framed[0])
	require.Equal(t, byte(5)&lengthExtendedFlag, byte(0))
}

func TestAddFramingUsesExtendedLengthOverThreshold(t *testing.T) {
	framed, err := AddFraming(make([]byte, 200))
	require.NoError(t, err)
	require.NotEqual(t, byte(0), framed[0]&lengthExtendedFlag)
}

func TestAddFramingRejectsOversizedBody(t *testing.T) {
	_, err := AddFraming(make([]byte, maxLongLength+1))
	require.ErrorIs(t, err, ErrBodyTooLong)
}

func TestRemoveFramingDetectsCRCMismatch(t *testing.T) {
	framed, err := AddFraming([]byte{0x01, 0x02})
	require.NoError(t, err)
	framed[len(framed)-1] ^= 0xFF

	_, err = RemoveFraming(framed)
	require.ErrorIs(t, err, ErrCRCMismatch)
}

func TestRemoveFramingDetectsLengthMismatch(t *testing.T) {
	framed, err := AddFraming([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	_, err = RemoveFraming(framed[:len(framed)-1])
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestRemoveFramingTooShort(t *testing.T) {
	_, err := RemoveFraming(nil)
	require.ErrorIs(t, err, ErrTooShort)
}

// TestAddFramingChecksumsLengthPrefixPlusBody pins the §3/§4.2 wire
// contract against the body-only vector this packet would otherwise
// produce: sender=0x06, receiver=0x09, message type=0x0052,
// CommandSequence=0x04, a 5-byte ITv2 packet body framed with a
// single-byte length prefix.
func TestAddFramingChecksumsLengthPrefixPlusBody(t *testing.T) {
	body := []byte{0x06, 0x09, 0x00, 0x52, 0x04}

	framed, err := AddFraming(body)
	require.NoError(t, err)
	require.Equal(t, byte(len(body)), framed[0])

	headerLen := 1
	gotCRC := binary.BigEndian.Uint16(framed[headerLen+len(body):])

	require.Equal(t, Checksum(framed[:headerLen+len(body)]), gotCRC, "CRC must cover length_bytes ++ data")
	require.NotEqual(t, Checksum(body), gotCRC, "CRC must not be computed over the body alone")

	// RemoveFraming must accept what AddFraming produced and recompute
	// the same way, or a framed packet built by a correct peer would be
	// rejected by this implementation.
	got, err := RemoveFraming(framed)
	require.NoError(t, err)
	require.Equal(t, body, got)
}

func TestRemoveFramingDiscardsTrailingCipherPadding(t *testing.T) {
	framed, err := AddFraming([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	padded := append(append([]byte(nil), framed...), 0x00, 0x00, 0x00, 0x00, 0x00)
	got, err := RemoveFraming(padded)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, got)
}
