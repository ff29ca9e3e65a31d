package crypto

import (
	"encoding/binary"
	"fmt"

	"github.com/udisondev/gunnet/internal/constants"
)

// PacketKey is the AES-128 key derived from a single packet header.
// It is never transmitted and never reused for another packet.
type PacketKey [constants.PacketKeySize]byte

// Header is the decoded form of the 8-byte packet header.
// The checksum byte is not stored: it is always recomputed from the other fields.
type Header struct {
	Random   byte
	ID       int16
	Sequence int16
	Blocks   int16
}

// PayloadSize returns the payload length announced by the header.
func (h Header) PayloadSize() int {
	return int(h.Blocks) * constants.PayloadBlockSize
}

// HeaderCodec obfuscates and deobfuscates packet headers.
type HeaderCodec struct {
	cipher *HeaderCipher
}

// NewHeaderCodec creates a codec over the given header cipher.
func NewHeaderCodec(cipher *HeaderCipher) *HeaderCodec {
	return &HeaderCodec{cipher: cipher}
}

// Checksum returns the unsigned sum mod 256 of the first seven header bytes.
func Checksum(plain [constants.HeaderSize]byte) byte {
	var sum byte
	for _, b := range plain[:constants.HeaderChecksumOffset] {
		sum += b
	}
	return sum
}

// DeriveKey expands a decrypted header into its packet key.
// The expanded half comes first and is chained:
// x[0] = plain[0], x[i] = plain[i] ^ ^(x[i-1] << 1); the header itself is the second half.
func DeriveKey(plain [constants.HeaderSize]byte) PacketKey {
	var key PacketKey
	key[0] = plain[0]
	for i := 1; i < constants.HeaderSize; i++ {
		key[i] = plain[i] ^ ^(key[i-1] << 1)
	}
	copy(key[constants.HeaderSize:], plain[:])
	return key
}

// DecryptHeader deobfuscates raw (exactly 8 bytes, left untouched), validates the checksum
// and returns the derived packet key together with the parsed fields.
func (c *HeaderCodec) DecryptHeader(raw []byte) (PacketKey, Header, error) {
	if len(raw) != constants.HeaderSize {
		return PacketKey{}, Header{}, fmt.Errorf("decrypt header: got %d bytes, want %d", len(raw), constants.HeaderSize)
	}

	var plain [constants.HeaderSize]byte
	copy(plain[:], raw)
	if err := c.cipher.Decrypt(plain[:]); err != nil {
		return PacketKey{}, Header{}, fmt.Errorf("decrypt header: %w", err)
	}

	if sum := Checksum(plain); plain[constants.HeaderChecksumOffset] != sum {
		return PacketKey{}, Header{}, fmt.Errorf("%w: got 0x%02x, want 0x%02x",
			ErrChecksumMismatch, plain[constants.HeaderChecksumOffset], sum)
	}

	h := Header{
		Random:   plain[constants.HeaderRandomOffset],
		ID:       int16(binary.LittleEndian.Uint16(plain[constants.HeaderIDOffset:])),
		Sequence: int16(binary.LittleEndian.Uint16(plain[constants.HeaderSequenceOffset:])),
		Blocks:   int16(binary.LittleEndian.Uint16(plain[constants.HeaderBlocksOffset:])),
	}
	return DeriveKey(plain), h, nil
}

// EncryptHeader serializes h, stores its checksum, derives the packet key and
// obfuscates the header bytes.
func (c *HeaderCodec) EncryptHeader(h Header) ([constants.HeaderSize]byte, PacketKey, error) {
	plain := MarshalHeader(h)
	key := DeriveKey(plain)

	raw := plain
	if err := c.cipher.Encrypt(raw[:]); err != nil {
		return raw, PacketKey{}, fmt.Errorf("encrypt header: %w", err)
	}
	return raw, key, nil
}

// MarshalHeader returns the plain (not yet obfuscated) header bytes with the checksum filled in.
func MarshalHeader(h Header) [constants.HeaderSize]byte {
	var plain [constants.HeaderSize]byte
	plain[constants.HeaderRandomOffset] = h.Random
	binary.LittleEndian.PutUint16(plain[constants.HeaderIDOffset:], uint16(h.ID))
	binary.LittleEndian.PutUint16(plain[constants.HeaderSequenceOffset:], uint16(h.Sequence))
	binary.LittleEndian.PutUint16(plain[constants.HeaderBlocksOffset:], uint16(h.Blocks))
	plain[constants.HeaderChecksumOffset] = Checksum(plain)
	return plain
}
