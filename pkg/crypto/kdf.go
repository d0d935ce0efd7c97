// Package crypto implements the Type1/Type2 ECB encryption handlers
// used by the ITv2 session engine, plus the HKDF key derivation they
// build on. See SPEC_FULL.md §4.5.
package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFSHA256 derives length bytes of key material from inputKey using
// HKDF-SHA256 (RFC 5869): HKDF-Expand(PRK := HKDF-Extract(salt, IKM),
// info, length).
func HKDFSHA256(inputKey, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}
