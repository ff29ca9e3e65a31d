package testutil

import (
	"errors"
	"testing"

	"github.com/udisondev/gunnet/internal/constants"
	"github.com/udisondev/gunnet/internal/crypto"
	"github.com/udisondev/gunnet/internal/protocol"
)

// FrameCodec возвращает codec на таблицах DefaultHeaderKey — тех же, что у сервера по умолчанию.
func FrameCodec(t testing.TB) *protocol.Codec {
	t.Helper()

	cipher, err := crypto.DefaultHeaderCipher()
	if err != nil {
		t.Fatalf("creating header cipher: %v", err)
	}
	return protocol.NewCodec(crypto.NewHeaderCodec(cipher), constants.DefaultMaxBlocks)
}

// Frame собирает зашифрованный unit (header ‖ payload) как его отправил бы клиент.
func Frame(t testing.TB, codec *protocol.Codec, id, seq int16, body []byte) []byte {
	t.Helper()

	unit, err := codec.Encode(crypto.Header{Random: byte(seq * 7), ID: id, Sequence: seq}, body)
	if err != nil {
		t.Fatalf("encoding frame 0x%04x: %v", uint16(id), err)
	}
	return unit
}

// CorruptHeader возвращает копию unit с заголовком, который codec отвергнет
// по контрольной сумме.
func CorruptHeader(t testing.TB, codec *protocol.Codec, unit []byte) []byte {
	t.Helper()

	for x := 1; x < 256; x++ {
		out := append([]byte(nil), unit...)
		out[0] ^= byte(x)
		if _, _, err := codec.Decode(out[:constants.HeaderSize]); errors.Is(err, crypto.ErrChecksumMismatch) {
			return out
		}
	}
	t.Fatalf("no corruption of the first header byte breaks the checksum")
	return nil
}
