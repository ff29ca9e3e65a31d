package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/udisondev/gunnet/internal/constants"
	"github.com/udisondev/gunnet/internal/crypto"
)

// Packet is one delimited and decrypted unit.
// Body is always a whole number of 16-byte blocks and may carry zero padding.
type Packet struct {
	Header crypto.Header
	Body   []byte
}

// Codec turns raw units into packets and back.
type Codec struct {
	headers   *crypto.HeaderCodec
	maxBlocks int
}

// NewCodec creates a frame codec. maxBlocks <= 0 selects constants.DefaultMaxBlocks.
func NewCodec(headers *crypto.HeaderCodec, maxBlocks int) *Codec {
	if maxBlocks <= 0 || maxBlocks > math.MaxInt16 {
		maxBlocks = constants.DefaultMaxBlocks
	}
	return &Codec{headers: headers, maxBlocks: maxBlocks}
}

// Decode delimits one unit at the start of buf and decrypts it.
// It returns the packet and the number of bytes the unit occupies.
//
// ErrIncomplete (consumed 0) means more bytes are needed. A checksum mismatch
// reports consumed = constants.HeaderSize so the caller can drop the header.
// buf is never modified.
func (c *Codec) Decode(buf []byte) (Packet, int, error) {
	if len(buf) < constants.HeaderSize {
		return Packet{}, 0, ErrIncomplete
	}

	key, h, err := c.headers.DecryptHeader(buf[:constants.HeaderSize])
	if err != nil {
		return Packet{}, constants.HeaderSize, err
	}
	if h.Blocks < 0 || int(h.Blocks) > c.maxBlocks {
		return Packet{}, 0, fmt.Errorf("%w: %d blocks (max %d)", ErrFrameTooLarge, h.Blocks, c.maxBlocks)
	}

	total := constants.HeaderSize + h.PayloadSize()
	if len(buf) < total {
		return Packet{}, 0, ErrIncomplete
	}

	body := bytes.Clone(buf[constants.HeaderSize:total])
	if err := crypto.DecryptPayload(key[:], body); err != nil {
		return Packet{}, total, fmt.Errorf("decrypting payload of packet 0x%04x: %w", uint16(h.ID), err)
	}
	return Packet{Header: h, Body: body}, total, nil
}

// Encode pads body to whole blocks, encrypts it with the key derived from h and
// returns header ‖ payload. h.Blocks is overwritten with the padded block count.
func (c *Codec) Encode(h crypto.Header, body []byte) ([]byte, error) {
	size := crypto.PaddedSize(len(body))
	blocks := size / constants.PayloadBlockSize
	if blocks > c.maxBlocks {
		return nil, fmt.Errorf("%w: %d blocks (max %d)", ErrFrameTooLarge, blocks, c.maxBlocks)
	}
	h.Blocks = int16(blocks)

	raw, key, err := c.headers.EncryptHeader(h)
	if err != nil {
		return nil, fmt.Errorf("encrypting header: %w", err)
	}

	out := make([]byte, constants.HeaderSize+size)
	copy(out, raw[:])
	copy(out[constants.HeaderSize:], body)
	if err := crypto.EncryptPayload(key[:], out[constants.HeaderSize:]); err != nil {
		return nil, fmt.Errorf("encrypting payload: %w", err)
	}
	return out, nil
}

// WritePacket encodes one unit and writes it to w.
func WritePacket(w io.Writer, c *Codec, h crypto.Header, body []byte) error {
	unit, err := c.Encode(h, body)
	if err != nil {
		return fmt.Errorf("encoding packet: %w", err)
	}
	if _, err := w.Write(unit); err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}
	return nil
}

// ReadPacket reads exactly one unit from r.
// A stream that ends inside a unit yields ErrTruncated; a clean end before
// any header byte yields io.EOF.
func ReadPacket(r io.Reader, c *Codec) (Packet, error) {
	var header [constants.HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Packet{}, fmt.Errorf("reading packet header: %w", ErrTruncated)
		}
		return Packet{}, fmt.Errorf("reading packet header: %w", err)
	}

	key, h, err := c.headers.DecryptHeader(header[:])
	if err != nil {
		return Packet{}, fmt.Errorf("decrypting header: %w", err)
	}
	if h.Blocks < 0 || int(h.Blocks) > c.maxBlocks {
		return Packet{}, fmt.Errorf("%w: %d blocks (max %d)", ErrFrameTooLarge, h.Blocks, c.maxBlocks)
	}

	body := make([]byte, h.PayloadSize())
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Packet{}, fmt.Errorf("reading packet payload: %w", ErrTruncated)
		}
		return Packet{}, fmt.Errorf("reading packet payload: %w", err)
	}

	if err := crypto.DecryptPayload(key[:], body); err != nil {
		return Packet{}, fmt.Errorf("decrypting payload: %w", err)
	}
	return Packet{Header: h, Body: body}, nil
}
