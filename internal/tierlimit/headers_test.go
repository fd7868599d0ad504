package tierlimit

import (
	"net/http"
	"testing"
	"time"
)

func TestApplyHeaders_Allowed(t *testing.T) {
	t.Parallel()

	resetAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	resp := &CheckQuotaResponse{
		Allowed:   true,
		Remaining: 42,
		Limit:     100,
		ResetAt:   resetAt,
	}
	h := http.Header{}
	ApplyHeaders(h, resp, time.Hour)

	if got := h.Get(HeaderLimit); got != "100" {
		t.Fatalf("limit header: %s", got)
	}
	if got := h.Get(HeaderRemaining); got != "42" {
		t.Fatalf("remaining header: %s", got)
	}
	if got := h.Get(HeaderReset); got != "2026-03-01T11:00:00Z" {
		t.Fatalf("reset header: %s", got)
	}
	if got := h.Get(HeaderWindow); got != "hour" {
		t.Fatalf("window header: %s", got)
	}
	if got := h.Get(HeaderRetry); got != "" {
		t.Fatalf("allowed responses must not carry Retry-After, got %s", got)
	}
}

func TestApplyHeaders_Denied(t *testing.T) {
	t.Parallel()

	resp := &CheckQuotaResponse{
		Allowed:    false,
		Remaining:  0,
		Limit:      100,
		ResetAt:    time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		RetryAfter: 90*time.Second + 200*time.Millisecond,
	}
	h := http.Header{}
	ApplyHeaders(h, resp, time.Hour)

	if got := h.Get(HeaderRetry); got != "91" {
		t.Fatalf("retry header should round up to whole seconds, got %s", got)
	}
}

func TestNewDeniedBody(t *testing.T) {
	t.Parallel()

	resp := &CheckQuotaResponse{
		Limit:      100,
		RetryAfter: 30 * time.Minute,
	}
	body := NewDeniedBody(resp, time.Hour)
	if body.Error != "Rate limit exceeded" {
		t.Fatalf("error field: %s", body.Error)
	}
	if body.Message != "API rate limit of 100 requests per hour exceeded" {
		t.Fatalf("message field: %s", body.Message)
	}
	if body.RetryAfter != 1800 {
		t.Fatalf("retry field: %d", body.RetryAfter)
	}
}

func TestWindowLabel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   time.Duration
		want string
	}{
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
		{24 * time.Hour, "day"},
		{90 * time.Second, "1m30s"},
	}
	for _, tc := range cases {
		if got := WindowLabel(tc.in); got != tc.want {
			t.Fatalf("WindowLabel(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
