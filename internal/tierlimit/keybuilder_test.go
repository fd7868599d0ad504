package tierlimit

import "testing"

func TestKeyBuilder_BuildAndReuse(t *testing.T) {
	t.Parallel()

	keys := NewKeyBuilder(NewByteBufferPool(32))
	for i := 0; i < 3; i++ {
		key := keys.BuildKey("principal", "resource")
		if got := string(key); got != "principal\x1fresource" {
			t.Fatalf("unexpected key: %q", got)
		}
		keys.ReleaseKey(key)
	}
}

func TestKeyBuilder_DistinctPairs(t *testing.T) {
	t.Parallel()

	keys := NewKeyBuilder(NewByteBufferPool(32))
	a := string(keys.BuildKey("p1", "r"))
	b := string(keys.BuildKey("p", "1r"))
	if a == b {
		t.Fatalf("pairs (p1, r) and (p, 1r) must not collide: %q", a)
	}
}

func TestByteBufferPool_RetainsOnlySmallBuffers(t *testing.T) {
	t.Parallel()

	pool := NewByteBufferPool(8)
	if buf := pool.Get(); cap(buf) > 8 {
		t.Fatalf("seed capacity must clamp to the cap, got %d", cap(buf))
	}
	pool.Put(make([]byte, 0, 64))
	if buf := pool.Get(); cap(buf) > 8 {
		t.Fatalf("oversized buffer must not be recycled, got cap %d", cap(buf))
	}
}

func TestResponsePool_ResetsFields(t *testing.T) {
	t.Parallel()

	pool := NewResponsePool()
	resp := pool.Get()
	resp.Allowed = true
	resp.Remaining = 10
	resp.Limit = 20
	pool.Put(resp)

	resp2 := pool.Get()
	if resp2.Allowed || resp2.Remaining != 0 || resp2.Limit != 0 || resp2.Window != 0 {
		t.Fatalf("response not reset: %#v", resp2)
	}
	pool.Put(resp2)
}
