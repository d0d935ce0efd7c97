package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
	"sync"
)

var (
	// ErrAlreadyConfigured is returned when configure_outbound or
	// configure_inbound is called a second time.
	ErrAlreadyConfigured = errors.New("crypto: handler already configured")
	// ErrNotConfigured is returned by encrypt/decrypt before the
	// corresponding direction has been configured.
	ErrNotConfigured = errors.New("crypto: handler not configured for this direction")
	// ErrBadInitializer is returned for a zero-length or otherwise
	// invalid initializer.
	ErrBadInitializer = errors.New("crypto: invalid initializer length")
)

// initializerSize is the ECB key-derivation salt length used by both
// Type1 and Type2 (also the generated initializer length).
const initializerSize = 16

// keySize is the AES-128 key length both variants derive.
const keySize = 16

// Handler is the Type1/Type2 encryption handler contract from
// spec.md §4.5.
type Handler interface {
	// ConfigureOutbound derives the outbound key from the peer's
	// initializer and the handler's configured access code. Must be
	// called exactly once.
	ConfigureOutbound(initializer []byte) error
	// ConfigureInbound generates a random initializer, derives the
	// inbound key, and returns the initializer to send to the peer.
	// Must be called exactly once.
	ConfigureInbound() (initializer []byte, err error)
	// EncryptOutbound zero-pads plaintext to the block size and
	// encrypts it with the outbound key.
	EncryptOutbound(plaintext []byte) ([]byte, error)
	// DecryptInbound decrypts ciphertext with the inbound key. Padding
	// discard is the caller's (pkg/itv2frame's) responsibility.
	DecryptInbound(ciphertext []byte) ([]byte, error)
}

// ecbHandler implements Handler for both Type1 and Type2; they differ
// only in the HKDF info string mixed into key derivation.
type ecbHandler struct {
	accessCode []byte
	info       []byte
	randReader io.Reader

	mu         sync.Mutex
	outBlock   cipher.Block
	inBlock    cipher.Block
	outReady   bool
	inReady    bool
}

// NewType1 returns a Handler using Type1 key derivation over accessCode.
func NewType1(accessCode []byte) Handler {
	return &ecbHandler{accessCode: accessCode, info: []byte("itv2-type1"), randReader: rand.Reader}
}

// NewType2 returns a Handler using Type2 key derivation over accessCode.
func NewType2(accessCode []byte) Handler {
	return &ecbHandler{accessCode: accessCode, info: []byte("itv2-type2"), randReader: rand.Reader}
}

func (h *ecbHandler) deriveBlock(initializer []byte) (cipher.Block, error) {
	if len(initializer) == 0 {
		return nil, ErrBadInitializer
	}
	key, err := HKDFSHA256(h.accessCode, initializer, h.info, keySize)
	if err != nil {
		return nil, err
	}
	return aes.NewCipher(key)
}

func (h *ecbHandler) ConfigureOutbound(initializer []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.outReady {
		return ErrAlreadyConfigured
	}
	block, err := h.deriveBlock(initializer)
	if err != nil {
		return err
	}
	h.outBlock = block
	h.outReady = true
	return nil
}

func (h *ecbHandler) ConfigureInbound() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inReady {
		return nil, ErrAlreadyConfigured
	}
	initializer := make([]byte, initializerSize)
	if _, err := io.ReadFull(h.randReader, initializer); err != nil {
		return nil, err
	}
	block, err := h.deriveBlock(initializer)
	if err != nil {
		return nil, err
	}
	h.inBlock = block
	h.inReady = true
	return initializer, nil
}

func (h *ecbHandler) EncryptOutbound(plaintext []byte) ([]byte, error) {
	h.mu.Lock()
	block, ready := h.outBlock, h.outReady
	h.mu.Unlock()
	if !ready {
		return nil, ErrNotConfigured
	}
	return ecbEncrypt(block, plaintext), nil
}

func (h *ecbHandler) DecryptInbound(ciphertext []byte) ([]byte, error) {
	h.mu.Lock()
	block, ready := h.inBlock, h.inReady
	h.mu.Unlock()
	if !ready {
		return nil, ErrNotConfigured
	}
	return ecbDecrypt(block, ciphertext)
}
