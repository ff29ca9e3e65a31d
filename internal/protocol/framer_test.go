package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/gunnet/internal/crypto"
)

func buildStream(t *testing.T, codec *Codec, count int) ([]byte, []Packet) {
	t.Helper()
	var stream []byte
	var want []Packet
	for i := range count {
		body := make([]byte, (i*7)%50)
		for j := range body {
			body[j] = byte(i + j)
		}
		h := crypto.Header{Random: byte(i * 13), ID: int16(0x1000 + i), Sequence: int16(i)}
		unit, err := codec.Encode(h, body)
		require.NoError(t, err)
		stream = append(stream, unit...)

		padded := make([]byte, crypto.PaddedSize(len(body)))
		copy(padded, body)
		h.Blocks = int16(len(padded) / 16)
		want = append(want, Packet{Header: h, Body: padded})
	}
	return stream, want
}

func drain(t *testing.T, f *Framer) []Packet {
	t.Helper()
	var out []Packet
	for {
		pkt, err := f.Next()
		if errors.Is(err, ErrIncomplete) {
			return out
		}
		require.NoError(t, err)
		out = append(out, pkt)
	}
}

func TestFramer_WholeBuffer(t *testing.T) {
	codec := newTestCodec(t, 0)
	stream, want := buildStream(t, codec, 20)

	f := NewFramer(codec)
	f.Feed(stream)

	assert.Equal(t, want, drain(t, f))
	assert.Zero(t, f.Buffered())
	assert.NoError(t, f.Close())
}

func TestFramer_ByteAtATime(t *testing.T) {
	codec := newTestCodec(t, 0)
	stream, want := buildStream(t, codec, 20)

	f := NewFramer(codec)
	var got []Packet
	for i := range stream {
		f.Feed(stream[i : i+1])
		got = append(got, drain(t, f)...)
	}

	assert.Equal(t, want, got)
	assert.NoError(t, f.Close())
}

func TestFramer_UnevenChunks(t *testing.T) {
	codec := newTestCodec(t, 0)
	stream, want := buildStream(t, codec, 30)

	f := NewFramer(codec)
	var got []Packet
	for off, step := 0, 1; off < len(stream); step = step%37 + 5 {
		end := min(off+step, len(stream))
		f.Feed(stream[off:end])
		got = append(got, drain(t, f)...)
		off = end
	}

	assert.Equal(t, want, got)
}

func TestFramer_TrailingPartialUnit(t *testing.T) {
	codec := newTestCodec(t, 0)
	stream, want := buildStream(t, codec, 3)

	f := NewFramer(codec)
	f.Feed(stream[:len(stream)-3])

	got := drain(t, f)
	assert.Equal(t, want[:2], got)
	assert.ErrorIs(t, f.Close(), ErrTruncated)
}
