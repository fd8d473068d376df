package core

import (
	"bytes"
	"sync"
)

// GenericPool is a generic wrapper around sync.Pool
type GenericPool[T any] struct {
	pool sync.Pool
}

// NewGenericPool creates a new GenericPool with a function to create new items.
func NewGenericPool[T any](newItem func() T) *GenericPool[T] {
	return &GenericPool[T]{
		pool: sync.Pool{
			New: func() interface{} {
				return newItem()
			},
		},
	}
}

// Get retrieves an item from the pool.
func (p *GenericPool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns an item to the pool.
func (p *GenericPool[T]) Put(item T) {
	p.pool.Put(item)
}

// DefaultRecordBufferSize is the starting capacity of pooled encode buffers.
const DefaultRecordBufferSize = 512

// BufferPool hands out reset buffers for record encoding and compression.
var BufferPool = NewGenericPool(func() *bytes.Buffer {
	return bytes.NewBuffer(make([]byte, 0, DefaultRecordBufferSize))
})

// GetBuffer returns an empty buffer from BufferPool.
func GetBuffer() *bytes.Buffer {
	buf := BufferPool.Get()
	buf.Reset()
	return buf
}

// PutBuffer returns buf to BufferPool. Oversized buffers are dropped.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1<<20 {
		return
	}
	BufferPool.Put(buf)
}
