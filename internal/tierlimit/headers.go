// Package tierlimit turns decisions into protocol metadata.
package tierlimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Rate limit response headers.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderWindow    = "X-RateLimit-Window"
	HeaderRetry     = "Retry-After"
)

// DeniedBody is the JSON error body for a denied request.
type DeniedBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after"`
}

// ApplyHeaders writes the rate limit headers for a decision.
func ApplyHeaders(h http.Header, resp *CheckQuotaResponse, window time.Duration) {
	if h == nil || resp == nil {
		return
	}
	h.Set(HeaderLimit, strconv.FormatInt(resp.Limit, 10))
	h.Set(HeaderRemaining, strconv.FormatInt(resp.Remaining, 10))
	h.Set(HeaderReset, resp.ResetAt.UTC().Format(time.RFC3339))
	h.Set(HeaderWindow, WindowLabel(window))
	if !resp.Allowed && resp.RetryAfter > 0 {
		h.Set(HeaderRetry, strconv.FormatInt(retrySeconds(resp.RetryAfter), 10))
	}
}

// NewDeniedBody builds the documented denial body for a decision.
func NewDeniedBody(resp *CheckQuotaResponse, window time.Duration) DeniedBody {
	var limit int64
	var retry int64
	if resp != nil {
		limit = resp.Limit
		retry = retrySeconds(resp.RetryAfter)
	}
	return DeniedBody{
		Error:      "Rate limit exceeded",
		Message:    fmt.Sprintf("API rate limit of %d requests per %s exceeded", limit, WindowLabel(window)),
		RetryAfter: retry,
	}
}

// WindowLabel names a window duration for headers and messages.
func WindowLabel(window time.Duration) string {
	switch window {
	case time.Hour:
		return "hour"
	case time.Minute:
		return "minute"
	case time.Second:
		return "second"
	case 24 * time.Hour:
		return "day"
	default:
		return window.String()
	}
}

func retrySeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
