package tlink

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		header  []byte
		payload []byte
	}{
		{"empty", nil, nil},
		{"plain", []byte{0x01, 0x02}, []byte{0xAA, 0xBB, 0xCC}},
		{"header needs escape", []byte{0x7E, 0x7D, 0x7F}, []byte{0x01}},
		{"payload needs escape", []byte{0x01}, []byte{0x7E, 0x7D, 0x7F, 0x00}},
		{"all escapes both sides", []byte{0x7D, 0x7E, 0x7F}, []byte{0x7D, 0x7E, 0x7F}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			packet := EncodeFrame(tc.header, tc.payload)
			require.True(t, len(packet) > 0)
			require.Equal(t, delimPacketEnd, packet[len(packet)-1])

			gotHeader, gotPayload, err := ParseFrame(packet)
			require.NoError(t, err)
			require.Equal(t, tc.header, gotHeader)
			require.Equal(t, tc.payload, gotPayload)
		})
	}
}

func TestDelimiterExtractorNeedsMore(t *testing.T) {
	var e DelimiterExtractor
	_, consumed, err := e.TryExtractPacket([]byte{0x01, 0x02, 0x7E, 0x03})
	require.ErrorIs(t, err, ErrNeedMore)
	require.Equal(t, 0, consumed)
}

func TestDelimiterExtractorExtractsUpToPacketEnd(t *testing.T) {
	var e DelimiterExtractor
	full := EncodeFrame([]byte{0x01}, []byte{0x02, 0x03})
	trailing := append(append([]byte{}, full...), 0x99, 0x99)

	packet, consumed, err := e.TryExtractPacket(trailing)
	require.NoError(t, err)
	require.Equal(t, len(full), consumed)
	require.Equal(t, full, packet)
}

func TestParseFrameMissingPacketEnd(t *testing.T) {
	_, _, err := ParseFrame([]byte{0x01, delimHeaderEnd, 0x02})
	require.ErrorIs(t, err, ErrMissingPacketEnd)
}

func TestParseFrameMissingHeaderEnd(t *testing.T) {
	_, _, err := ParseFrame([]byte{0x01, 0x02, delimPacketEnd})
	require.ErrorIs(t, err, ErrMissingHeaderEnd)
}

func TestParseFrameRawDelimiterInDecodedRegion(t *testing.T) {
	// A raw 0x7E placed where unstuffing happens (inside what looks like
	// payload after the real header-end) must be rejected: this packet has
	// two 0x7E bytes, so the first is taken as header-end and the region
	// after it still contains a raw 0x7E before packet-end.
	malformed := []byte{0x01, delimHeaderEnd, 0x02, delimHeaderEnd, 0x03, delimPacketEnd}
	_, _, err := ParseFrame(malformed)
	require.ErrorIs(t, err, ErrRawDelimiter)
}

func TestParseFrameTrailingEscape(t *testing.T) {
	malformed := []byte{0x01, delimHeaderEnd, escapeByte, delimPacketEnd}
	_, _, err := ParseFrame(malformed)
	require.ErrorIs(t, err, ErrTrailingEscape)
}

func TestParseFrameUnknownEscape(t *testing.T) {
	malformed := []byte{0x01, delimHeaderEnd, escapeByte, 0xFF, delimPacketEnd}
	_, _, err := ParseFrame(malformed)
	require.ErrorIs(t, err, ErrUnknownEscape)
}

func TestLengthPrefixedExtractorUnwired(t *testing.T) {
	var e LengthPrefixedExtractor
	_, _, err := e.TryExtractPacket([]byte{0x00, 0x01, 0x02})
	require.Error(t, err)
}
