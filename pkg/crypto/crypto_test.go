package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHKDFSHA256Deterministic(t *testing.T) {
	a, err := HKDFSHA256([]byte("access-code"), []byte("salt-bytes-000000"), []byte("itv2-type1"), 16)
	require.NoError(t, err)
	b, err := HKDFSHA256([]byte("access-code"), []byte("salt-bytes-000000"), []byte("itv2-type1"), 16)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 16)
}

func TestType1EncryptDecryptRoundTrip(t *testing.T) {
	sideA := NewType1([]byte("1234"))
	sideB := NewType1([]byte("1234"))

	initializer, err := sideB.ConfigureInbound()
	require.NoError(t, err)
	require.NoError(t, sideA.ConfigureOutbound(initializer))

	plaintext := []byte("hello panel")
	ciphertext, err := sideA.EncryptOutbound(plaintext)
	require.NoError(t, err)
	require.Equal(t, 0, len(ciphertext)%16)

	decrypted, err := sideB.DecryptInbound(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted[:len(plaintext)])
}

func TestType1AndType2DeriveDifferentKeys(t *testing.T) {
	h1 := NewType1([]byte("access"))
	h2 := NewType2([]byte("access"))

	init1, err := h1.ConfigureInbound()
	require.NoError(t, err)
	init2, err := h2.ConfigureInbound()
	require.NoError(t, err)

	peer1 := NewType1([]byte("access"))
	require.NoError(t, peer1.ConfigureOutbound(init1))
	peer2 := NewType2([]byte("access"))
	require.NoError(t, peer2.ConfigureOutbound(init2))

	pt := make([]byte, 16)
	c1, err := peer1.EncryptOutbound(pt)
	require.NoError(t, err)
	c2, err := peer2.EncryptOutbound(pt)
	require.NoError(t, err)
	require.NotEqual(t, c1, c2)
}

func TestConfigureOutboundOnlyOnce(t *testing.T) {
	h := NewType1([]byte("access"))
	require.NoError(t, h.ConfigureOutbound([]byte("initializer-000")))
	require.ErrorIs(t, h.ConfigureOutbound([]byte("initializer-000")), ErrAlreadyConfigured)
}

func TestConfigureInboundOnlyOnce(t *testing.T) {
	h := NewType1([]byte("access"))
	_, err := h.ConfigureInbound()
	require.NoError(t, err)
	_, err = h.ConfigureInbound()
	require.ErrorIs(t, err, ErrAlreadyConfigured)
}

func TestConfigureOutboundRejectsEmptyInitializer(t *testing.T) {
	h := NewType1([]byte("access"))
	require.ErrorIs(t, h.ConfigureOutbound(nil), ErrBadInitializer)
}

func TestEncryptBeforeConfigureFails(t *testing.T) {
	h := NewType1([]byte("access"))
	_, err := h.EncryptOutbound([]byte("x"))
	require.ErrorIs(t, err, ErrNotConfigured)
}
