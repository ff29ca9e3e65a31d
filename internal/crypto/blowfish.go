package crypto

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/blowfish"

	"github.com/udisondev/gunnet/internal/constants"
)

// DefaultHeaderKey expands into the round-key table and substitution boxes the
// client uses to obfuscate packet headers.
var DefaultHeaderKey = []byte{
	0x2f, 0x7c, 0x4a, 0x91,
	0xd3, 0x0e, 0x58, 0xb6,
	0x6a, 0xc1, 0x19, 0xe4,
	0x83, 0x27, 0xf0, 0x5d,
}

// HeaderCipher wraps Blowfish ECB encryption/decryption for packet headers.
// It is immutable after construction and safe for concurrent use.
type HeaderCipher struct {
	cipher *blowfish.Cipher
}

// NewHeaderCipher creates a Blowfish ECB cipher whose tables are expanded from key.
func NewHeaderCipher(key []byte) (*HeaderCipher, error) {
	c, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating blowfish cipher: %w", err)
	}
	return &HeaderCipher{cipher: c}, nil
}

var (
	defaultHeaderCipher     *HeaderCipher
	defaultHeaderCipherErr  error
	defaultHeaderCipherOnce sync.Once
)

// DefaultHeaderCipher returns the process-wide cipher built from DefaultHeaderKey.
func DefaultHeaderCipher() (*HeaderCipher, error) {
	defaultHeaderCipherOnce.Do(func() {
		defaultHeaderCipher, defaultHeaderCipherErr = NewHeaderCipher(DefaultHeaderKey)
	})
	return defaultHeaderCipher, defaultHeaderCipherErr
}

// Encrypt encrypts data in-place using Blowfish ECB mode.
// Data length must be a multiple of 8.
func (h *HeaderCipher) Encrypt(data []byte) error {
	if len(data)%constants.HeaderCipherBlockSize != 0 {
		return fmt.Errorf("blowfish encrypt: size %d is not a multiple of %d", len(data), constants.HeaderCipherBlockSize)
	}
	for i := 0; i < len(data); i += constants.HeaderCipherBlockSize {
		h.cipher.Encrypt(data[i:i+8], data[i:i+8])
	}
	return nil
}

// Decrypt decrypts data in-place using Blowfish ECB mode.
// Data length must be a multiple of 8.
func (h *HeaderCipher) Decrypt(data []byte) error {
	if len(data)%constants.HeaderCipherBlockSize != 0 {
		return fmt.Errorf("blowfish decrypt: size %d is not a multiple of %d", len(data), constants.HeaderCipherBlockSize)
	}
	for i := 0; i < len(data); i += constants.HeaderCipherBlockSize {
		h.cipher.Decrypt(data[i:i+8], data[i:i+8])
	}
	return nil
}
