// Package tierlimit provides state key construction.
package tierlimit

// KeyBuilder builds per-(principal, resource) state keys. Two resources
// for the same principal, or two principals on the same resource, always
// produce distinct keys.
type KeyBuilder struct {
	bufPool *ByteBufferPool
}

// NewKeyBuilder constructs a KeyBuilder backed by a buffer pool.
func NewKeyBuilder(pool *ByteBufferPool) *KeyBuilder {
	return &KeyBuilder{bufPool: pool}
}

// BuildKey builds a stable key for a principal/resource pair.
func (kb *KeyBuilder) BuildKey(principalID, resource string) []byte {
	if kb == nil || kb.bufPool == nil {
		return []byte(principalID + "\x1f" + resource)
	}
	buf := kb.bufPool.Get()
	buf = append(buf, principalID...)
	buf = append(buf, '\x1f')
	buf = append(buf, resource...)
	return buf
}

// ReleaseKey returns a buffer to the pool.
func (kb *KeyBuilder) ReleaseKey(b []byte) {
	if kb == nil || kb.bufPool == nil {
		return
	}
	kb.bufPool.Put(b)
}
