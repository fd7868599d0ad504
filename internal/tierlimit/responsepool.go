// Package tierlimit provides response pooling.
package tierlimit

import (
	"sync"
	"time"
)

// ResponsePool pools CheckQuotaResponse values.
type ResponsePool struct {
	pool sync.Pool
}

// NewResponsePool constructs a response pool.
func NewResponsePool() *ResponsePool {
	return &ResponsePool{pool: sync.Pool{New: func() any {
		return &CheckQuotaResponse{}
	}}}
}

// Get returns a reset response.
func (rp *ResponsePool) Get() *CheckQuotaResponse {
	if rp == nil {
		return &CheckQuotaResponse{}
	}
	resp := rp.pool.Get().(*CheckQuotaResponse)
	resetCheckQuotaResponse(resp)
	return resp
}

// Put resets and returns a response to the pool.
func (rp *ResponsePool) Put(resp *CheckQuotaResponse) {
	if rp == nil || resp == nil {
		return
	}
	resetCheckQuotaResponse(resp)
	rp.pool.Put(resp)
}

func resetCheckQuotaResponse(resp *CheckQuotaResponse) {
	if resp == nil {
		return
	}
	resp.Allowed = false
	resp.Remaining = 0
	resp.Limit = 0
	resp.Window = 0
	resp.ResetAt = time.Time{}
	resp.RetryAfter = 0
}
