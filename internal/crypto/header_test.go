package crypto

import (
	"encoding/hex"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *HeaderCodec {
	t.Helper()
	c, err := DefaultHeaderCipher()
	require.NoError(t, err)
	return NewHeaderCodec(c)
}

func TestMarshalHeader_Layout(t *testing.T) {
	plain := MarshalHeader(Header{Random: 0xb8, ID: 0x1102, Sequence: 0, Blocks: 1})
	assert.Equal(t, "b8021100000100cc", hex.EncodeToString(plain[:]))
}

func TestDeriveKey_KnownVector(t *testing.T) {
	plain := [8]byte{0xb8, 0x02, 0x11, 0x00, 0x00, 0x01, 0x00, 0xcc}

	key := DeriveKey(plain)

	assert.Equal(t, "b88df417d15c47bdb8021100000100cc", hex.EncodeToString(key[:]))
	// Input must not be mutated.
	assert.Equal(t, [8]byte{0xb8, 0x02, 0x11, 0x00, 0x00, 0x01, 0x00, 0xcc}, plain)
}

func TestHeader_EndToEndPayload(t *testing.T) {
	plain := MarshalHeader(Header{Random: 0xb8, ID: 0x1102, Sequence: 0, Blocks: 1})
	key := DeriveKey(plain)

	payload, _ := hex.DecodeString("5c086db87a2c54bd4e6dc92ee96c7d3d")
	require.NoError(t, DecryptPayload(key[:], payload))
	assert.Equal(t, "03616263000000000000000000000000", hex.EncodeToString(payload))
}

func TestHeaderCodec_KnownHeaderVector(t *testing.T) {
	// The client's Blowfish tables are fixed constants that are not published; the tables
	// expanded from DefaultHeaderKey obfuscate to different bytes. Set header_key to the
	// client's tables to run this against real traffic.
	t.Skip("client header tables unavailable: DefaultHeaderKey does not reproduce captured headers")

	codec := newTestCodec(t)
	raw, _, err := codec.EncryptHeader(Header{Random: 0xb8, ID: 0x1102, Sequence: 0, Blocks: 1})
	require.NoError(t, err)
	assert.Equal(t, "66b732a7223762ee", hex.EncodeToString(raw[:]))

	captured, _ := hex.DecodeString("66b732a7223762ee")
	_, h, err := codec.DecryptHeader(captured)
	require.NoError(t, err)
	assert.Equal(t, Header{Random: 0xb8, ID: 0x1102, Sequence: 0, Blocks: 1}, h)
}

func TestHeaderCipher_DefaultTablesVector(t *testing.T) {
	c, err := DefaultHeaderCipher()
	require.NoError(t, err)

	data, _ := hex.DecodeString("b8021100000100cc")
	require.NoError(t, c.Encrypt(data))
	assert.Equal(t, "e73f42869720dac5", hex.EncodeToString(data))

	require.NoError(t, c.Decrypt(data))
	assert.Equal(t, "b8021100000100cc", hex.EncodeToString(data))
}

func TestHeaderCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	headers := []Header{
		{},
		{Random: 0xff, ID: -1, Sequence: -1, Blocks: 0x7fff},
		{Random: 0xb8, ID: 0x1102, Sequence: 0, Blocks: 1},
		{Random: 0x01, ID: 0x2000, Sequence: 12345, Blocks: 4},
	}
	rng := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		headers = append(headers, Header{
			Random:   byte(rng.UintN(256)),
			ID:       int16(rng.UintN(1 << 16)),
			Sequence: int16(rng.UintN(1 << 16)),
			Blocks:   int16(rng.UintN(1 << 16)),
		})
	}

	for _, h := range headers {
		raw, encKey, err := codec.EncryptHeader(h)
		require.NoError(t, err)

		decKey, got, err := codec.DecryptHeader(raw[:])
		require.NoError(t, err, "header %+v", h)
		assert.Equal(t, h, got)
		assert.Equal(t, encKey, decKey, "derived keys must match for %+v", h)
	}
}

func TestHeaderCodec_DecryptDoesNotMutateInput(t *testing.T) {
	codec := newTestCodec(t)

	raw, _, err := codec.EncryptHeader(Header{Random: 7, ID: 3, Sequence: 9, Blocks: 2})
	require.NoError(t, err)
	before := raw

	_, _, err = codec.DecryptHeader(raw[:])
	require.NoError(t, err)
	assert.Equal(t, before, raw)
}

// A flipped bit passes the checksum only when the garbage it decrypts to happens
// to sum correctly, which is expected about once in 256 flips.
func TestHeaderCodec_ChecksumSensitivity(t *testing.T) {
	codec := newTestCodec(t)
	rng := rand.New(rand.NewPCG(7, 11))

	var flips, rejected int
	for range 200 {
		h := Header{
			Random:   byte(rng.UintN(256)),
			ID:       int16(rng.UintN(1 << 16)),
			Sequence: int16(rng.UintN(1 << 16)),
			Blocks:   int16(rng.UintN(64)),
		}
		raw, _, err := codec.EncryptHeader(h)
		require.NoError(t, err)

		for bit := range 64 {
			corrupted := raw
			corrupted[bit/8] ^= 1 << (bit % 8)
			flips++

			_, _, err := codec.DecryptHeader(corrupted[:])
			if errors.Is(err, ErrChecksumMismatch) {
				rejected++
			}
		}
	}

	ratio := float64(rejected) / float64(flips)
	assert.GreaterOrEqual(t, ratio, 0.98, "rejected %d of %d flips", rejected, flips)
}

func TestHeaderCodec_WrongSize(t *testing.T) {
	codec := newTestCodec(t)

	_, _, err := codec.DecryptHeader(make([]byte, 7))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrChecksumMismatch))
}

func TestHeaderCodec_ForeignTablesRejected(t *testing.T) {
	codec := newTestCodec(t)
	foreign, err := NewHeaderCipher([]byte("another header key"))
	require.NoError(t, err)
	other := NewHeaderCodec(foreign)

	var rejected int
	for i := range 64 {
		raw, _, err := other.EncryptHeader(Header{Random: byte(i), ID: int16(i), Blocks: 1})
		require.NoError(t, err)
		if _, _, err := codec.DecryptHeader(raw[:]); errors.Is(err, ErrChecksumMismatch) {
			rejected++
		}
	}
	assert.GreaterOrEqual(t, rejected, 56)
}

func TestHeader_PayloadSize(t *testing.T) {
	assert.Equal(t, 0, Header{}.PayloadSize())
	assert.Equal(t, 48, Header{Blocks: 3}.PayloadSize())
}
