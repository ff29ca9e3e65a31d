package protocol

import "fmt"

// Framer accumulates a byte stream and yields whole packets in arrival order.
// It is owned by a single goroutine.
type Framer struct {
	codec *Codec
	buf   []byte
	off   int
}

// NewFramer creates an empty framer.
func NewFramer(codec *Codec) *Framer {
	return &Framer{codec: codec}
}

// Feed appends received bytes. p may be reused by the caller afterwards.
func (f *Framer) Feed(p []byte) {
	if f.off > 0 && f.off >= len(f.buf)/2 {
		n := copy(f.buf, f.buf[f.off:])
		f.buf = f.buf[:n]
		f.off = 0
	}
	f.buf = append(f.buf, p...)
}

// Buffered returns the number of bytes waiting to be delimited.
func (f *Framer) Buffered() int {
	return len(f.buf) - f.off
}

// Next returns the next complete packet, or ErrIncomplete when more bytes are needed.
// On a header checksum mismatch the 8 header bytes are discarded and the error returned.
func (f *Framer) Next() (Packet, error) {
	pkt, n, err := f.codec.Decode(f.buf[f.off:])
	f.off += n
	if f.off == len(f.buf) {
		f.buf = f.buf[:0]
		f.off = 0
	}
	return pkt, err
}

// Close reports ErrTruncated if the stream ended with a partial unit buffered.
func (f *Framer) Close() error {
	if n := f.Buffered(); n > 0 {
		return fmt.Errorf("%w: %d bytes left", ErrTruncated, n)
	}
	return nil
}
