package crypto

import (
	"encoding/binary"
	"math/bits"

	"github.com/udisondev/gunnet/internal/constants"
)

// SHA-1 compatible digest used for handshake key derivation and password hashes.

const digestBlockSize = 64

var digestInit = [5]uint32{0x67452301, 0xEFCDAB89, 0x98BADCFE, 0x10325476, 0xC3D2E1F0}

const (
	digestK0 = 0x5A827999
	digestK1 = 0x6ED9EBA1
	digestK2 = 0x8F1BBCDC
	digestK3 = 0xCA62C1D6
)

// Hash returns the 20-byte digest of data.
func Hash(data []byte) [constants.DigestSize]byte {
	h := digestInit

	// Message plus 0x80, zero padding and the 64-bit bit length, rounded to whole blocks.
	total := len(data) + 1 + 8
	if r := total % digestBlockSize; r != 0 {
		total += digestBlockSize - r
	}
	msg := make([]byte, total)
	copy(msg, data)
	msg[len(data)] = 0x80
	binary.BigEndian.PutUint64(msg[total-8:], uint64(len(data))<<3)

	var w [80]uint32
	for off := 0; off < total; off += digestBlockSize {
		digestBlock(&h, &w, msg[off:off+digestBlockSize])
	}

	var out [constants.DigestSize]byte
	for i, v := range h {
		binary.BigEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func digestBlock(h *[5]uint32, w *[80]uint32, p []byte) {
	for i := range 16 {
		w[i] = binary.BigEndian.Uint32(p[i*4:])
	}
	for i := 16; i < 80; i++ {
		w[i] = bits.RotateLeft32(w[i-3]^w[i-8]^w[i-14]^w[i-16], 1)
	}

	a, b, c, d, e := h[0], h[1], h[2], h[3], h[4]
	for i := range 80 {
		var f, k uint32
		switch {
		case i < 20:
			f = b&c | ^b&d
			k = digestK0
		case i < 40:
			f = b ^ c ^ d
			k = digestK1
		case i < 60:
			f = b&c | b&d | c&d
			k = digestK2
		default:
			f = b ^ c ^ d
			k = digestK3
		}
		t := bits.RotateLeft32(a, 5) + f + e + w[i] + k
		a, b, c, d, e = t, a, bits.RotateLeft32(b, 30), c, d
	}

	h[0] += a
	h[1] += b
	h[2] += c
	h[3] += d
	h[4] += e
}
