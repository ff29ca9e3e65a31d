package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytePool_GetReturnsZeroedSlice(t *testing.T) {
	p := NewBytePool(16)

	b := p.Get(8)
	assert.Len(t, b, 8)
	for i := range b {
		b[i] = 0xff
	}
	p.Put(b)

	b = p.Get(8)
	assert.Equal(t, make([]byte, 8), b)
}

func TestBytePool_GetLargerThanCapacity(t *testing.T) {
	p := NewBytePool(4)
	b := p.Get(32)
	assert.Len(t, b, 32)
	p.Put(nil)
}
