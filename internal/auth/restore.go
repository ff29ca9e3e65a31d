package auth

import (
	"encoding/binary"
	"fmt"

	"github.com/udisondev/gunnet/internal/constants"
)

// Restore strips the 4-byte magic tag from every 16-byte block of buf and
// returns the remaining 12 bytes of each block, concatenated.
func Restore(buf []byte, magic uint32) ([]byte, error) {
	if len(buf)%constants.PayloadBlockSize != 0 {
		return nil, fmt.Errorf("%w: restore size %d is not a multiple of %d",
			ErrInvalidCredentialBlock, len(buf), constants.PayloadBlockSize)
	}

	out := make([]byte, 0, RestoredSize(len(buf)))
	for off := 0; off < len(buf); off += constants.PayloadBlockSize {
		block := buf[off : off+constants.PayloadBlockSize]
		if tag := binary.LittleEndian.Uint32(block); tag != magic {
			return nil, fmt.Errorf("%w: block %d tagged 0x%08x", ErrInvalidMagic, off/constants.PayloadBlockSize, tag)
		}
		out = append(out, block[constants.HandshakeTagSize:]...)
	}
	return out, nil
}

// Tag is the inverse of Restore: it splits data into 12-byte pieces (zero padding
// the last one) and prefixes each with magic, producing whole 16-byte blocks.
func Tag(data []byte, magic uint32) []byte {
	blocks := (len(data) + constants.HandshakeUsefulSize - 1) / constants.HandshakeUsefulSize
	out := make([]byte, blocks*constants.PayloadBlockSize)
	for i := range blocks {
		block := out[i*constants.PayloadBlockSize : (i+1)*constants.PayloadBlockSize]
		binary.LittleEndian.PutUint32(block, magic)
		start := i * constants.HandshakeUsefulSize
		end := min(start+constants.HandshakeUsefulSize, len(data))
		copy(block[constants.HandshakeTagSize:], data[start:end])
	}
	return out
}
