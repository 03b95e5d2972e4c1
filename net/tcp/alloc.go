package tcp

import (
	"sync/atomic"

	"github.com/hsgames/evnet/pool/bytespool"
	"github.com/pkg/errors"
)

// allocator hands out pooled read buffers one byte larger than requested.
// The extra byte is zeroed so the backing array stays NUL-terminated.
type allocator struct {
	pool    *bytespool.Pool
	maxSize int
	live    atomic.Int64
}

func newAllocator(pool *bytespool.Pool, maxSize int) *allocator {
	return &allocator{pool: pool, maxSize: maxSize}
}

func (a *allocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Errorf("tcp: alloc size %d <= 0", size)
	}
	if a.maxSize > 0 && size > a.maxSize {
		return nil, errors.Errorf("tcp: alloc size %d > %d", size, a.maxSize)
	}
	b := a.pool.Get(size + 1)
	b[size] = 0
	a.live.Add(1)
	return b[:size], nil
}

func (a *allocator) Free(buf []byte) {
	if buf == nil {
		return
	}
	a.live.Add(-1)
	a.pool.Put(buf)
}

// Live is the number of buffers handed out and not yet freed.
func (a *allocator) Live() int {
	return int(a.live.Load())
}
