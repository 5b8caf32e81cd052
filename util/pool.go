package util

import "sync"

// MaxDatagramSize is the largest payload a UDP datagram can carry.
const MaxDatagramSize = 65535

// DatagramPool hands out receive buffers of a fixed size.  The receive
// loop borrows one buffer for its lifetime and copies each datagram out
// before queueing it, so pooled buffers never escape.
type DatagramPool struct {
	size int
	pool sync.Pool
}

// NewDatagramPool returns a pool of size-byte buffers.  A size outside
// 1..MaxDatagramSize falls back to MaxDatagramSize.
func NewDatagramPool(size int) *DatagramPool {
	if size <= 0 || size > MaxDatagramSize {
		size = MaxDatagramSize
	}
	p := &DatagramPool{size: size}
	p.pool.New = func() interface{} {
		buf := make([]byte, p.size)
		return &buf
	}
	return p
}

// Size returns the length of every buffer in the pool.
func (p *DatagramPool) Size() int { return p.size }

// Get retrieves a buffer from the pool.  Callers must return it with
// [DatagramPool.Put] when finished.
func (p *DatagramPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool for reuse.
func (p *DatagramPool) Put(buf *[]byte) {
	if buf == nil || len(*buf) != p.size {
		return
	}
	p.pool.Put(buf)
}
