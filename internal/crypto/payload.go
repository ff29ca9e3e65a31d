package crypto

import (
	"crypto/aes"
	"fmt"

	"github.com/udisondev/gunnet/internal/constants"
)

// EncryptPayload encrypts data in-place with AES-128 in ECB mode, no padding.
// len(data) must be a multiple of 16.
func EncryptPayload(key []byte, data []byte) error {
	if len(data)%constants.PayloadBlockSize != 0 {
		return fmt.Errorf("%w: encrypt size %d is not a multiple of %d", ErrPayloadCipher, len(data), constants.PayloadBlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPayloadCipher, err)
	}
	for i := 0; i < len(data); i += constants.PayloadBlockSize {
		block.Encrypt(data[i:i+constants.PayloadBlockSize], data[i:i+constants.PayloadBlockSize])
	}
	return nil
}

// DecryptPayload decrypts data in-place with AES-128 in ECB mode, no padding.
// len(data) must be a multiple of 16.
func DecryptPayload(key []byte, data []byte) error {
	if len(data)%constants.PayloadBlockSize != 0 {
		return fmt.Errorf("%w: decrypt size %d is not a multiple of %d", ErrPayloadCipher, len(data), constants.PayloadBlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPayloadCipher, err)
	}
	for i := 0; i < len(data); i += constants.PayloadBlockSize {
		block.Decrypt(data[i:i+constants.PayloadBlockSize], data[i:i+constants.PayloadBlockSize])
	}
	return nil
}

// PaddedSize rounds n up to a whole number of payload blocks.
func PaddedSize(n int) int {
	if r := n % constants.PayloadBlockSize; r != 0 {
		n += constants.PayloadBlockSize - r
	}
	return n
}
