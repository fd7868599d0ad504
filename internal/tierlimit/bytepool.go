// Package tierlimit provides pooled scratch buffers for key construction.
package tierlimit

import "sync"

// Fresh key buffers start at keyBufSeed bytes, which covers typical
// principal/resource pairs without growing.
const keyBufSeed = 128

// ByteBufferPool recycles the scratch slices the key builder appends
// identifiers into. Slices that outgrow maxCap are dropped instead of
// pooled, so one oversized key does not pin memory.
type ByteBufferPool struct {
	pool   sync.Pool
	maxCap int
}

// NewByteBufferPool constructs a pool retaining slices up to maxCap bytes.
func NewByteBufferPool(maxCap int) *ByteBufferPool {
	if maxCap <= 0 {
		maxCap = 4096
	}
	p := &ByteBufferPool{maxCap: maxCap}
	p.pool.New = func() any {
		seed := keyBufSeed
		if seed > p.maxCap {
			seed = p.maxCap
		}
		return make([]byte, 0, seed)
	}
	return p
}

// Get returns a zero-length byte slice ready to append into.
func (p *ByteBufferPool) Get() []byte {
	if p == nil {
		return make([]byte, 0, keyBufSeed)
	}
	buf, _ := p.pool.Get().([]byte)
	return buf[:0]
}

// Put recycles a slice unless it outgrew the retention cap.
func (p *ByteBufferPool) Put(b []byte) {
	if p == nil || b == nil || cap(b) > p.maxCap {
		return
	}
	p.pool.Put(b[:0])
}
