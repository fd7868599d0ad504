package httptransport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tierlimit/internal/tierlimit"
)

func okHandler() (http.Handler, *bool) {
	reached := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}), &reached
}

func TestMiddlewareAllows(t *testing.T) {
	t.Parallel()

	quota := &fakeQuota{resp: allowedResponse()}
	next, reached := okHandler()
	handler := Middleware(quota, nil, nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	req.Header.Set("X-API-Key", "key-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !*reached {
		t.Fatalf("allowed request must pass through, got %d reached=%v", rec.Code, *reached)
	}
	if got := rec.Header().Get(tierlimit.HeaderRemaining); got != "99" {
		t.Fatalf("remaining header: %q", got)
	}
	if quota.releaseCount() != 1 {
		t.Fatalf("response not released: %d", quota.releaseCount())
	}

	quota.mu.Lock()
	last := quota.lastReq
	quota.mu.Unlock()
	if last.PrincipalID != "key-1" || last.Resource != "/api/widgets" || last.Tier != tierlimit.TierFree {
		t.Fatalf("unexpected quota request: %+v", last)
	}
}

func TestMiddlewareDenies(t *testing.T) {
	t.Parallel()

	quota := &fakeQuota{resp: &tierlimit.CheckQuotaResponse{
		Allowed:    false,
		Remaining:  0,
		Limit:      100,
		Window:     time.Hour,
		ResetAt:    time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		RetryAfter: 30 * time.Minute,
	}}
	next, reached := okHandler()
	handler := Middleware(quota, nil, nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	req.Header.Set("X-API-Key", "key-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", rec.Code)
	}
	if *reached {
		t.Fatalf("denied request must not reach the handler")
	}
	if got := rec.Header().Get(tierlimit.HeaderRetry); got != "1800" {
		t.Fatalf("Retry-After header: %q", got)
	}

	var body tierlimit.DeniedBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "Rate limit exceeded" {
		t.Fatalf("error field: %q", body.Error)
	}
	if body.Message != "API rate limit of 100 requests per hour exceeded" {
		t.Fatalf("message field: %q", body.Message)
	}
	if body.RetryAfter != 1800 {
		t.Fatalf("retry_after field: %d", body.RetryAfter)
	}
}

func TestMiddlewareFailsClosed(t *testing.T) {
	t.Parallel()

	quota := &fakeQuota{err: tierlimit.ErrStorageUnavailable}
	next, reached := okHandler()
	handler := Middleware(quota, nil, nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	req.Header.Set("X-API-Key", "key-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", rec.Code)
	}
	if *reached {
		t.Fatalf("storage failure must not let traffic through")
	}
	var body httpErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "service unavailable" {
		t.Fatalf("503 body must stay generic: %q", body.Error)
	}
}

func TestMiddlewareBypassesUnidentified(t *testing.T) {
	t.Parallel()

	quota := &fakeQuota{err: tierlimit.ErrStorageUnavailable}
	next, reached := okHandler()
	keyFn := func(r *http.Request) (string, string, string, bool) {
		return "", "", "", false
	}
	handler := Middleware(quota, keyFn, nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !*reached {
		t.Fatalf("bypassed request must pass through, got %d reached=%v", rec.Code, *reached)
	}
}

func TestDefaultKeyFunc(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		configure func(r *http.Request)
		principal string
		tier      string
	}{
		{
			name:      "api key header",
			configure: func(r *http.Request) { r.Header.Set("X-API-Key", "key-9") },
			principal: "key-9",
			tier:      tierlimit.TierFree,
		},
		{
			name:      "bearer token",
			configure: func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok-3") },
			principal: "tok-3",
			tier:      tierlimit.TierFree,
		},
		{
			name:      "forwarded for",
			configure: func(r *http.Request) { r.Header.Set("X-Forwarded-For", "10.1.2.3, 10.0.0.1") },
			principal: "10.1.2.3",
			tier:      tierlimit.TierFree,
		},
		{
			name:      "remote addr fallback",
			configure: func(r *http.Request) {},
			principal: "192.0.2.1",
			tier:      tierlimit.TierFree,
		},
		{
			name: "explicit tier",
			configure: func(r *http.Request) {
				r.Header.Set("X-API-Key", "key-9")
				r.Header.Set("X-Tier", tierlimit.TierEnterprise)
			},
			principal: "key-9",
			tier:      tierlimit.TierEnterprise,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
			tc.configure(req)
			principal, resource, tier, ok := DefaultKeyFunc(req)
			if !ok {
				t.Fatalf("expected identification")
			}
			if principal != tc.principal {
				t.Fatalf("principal: got %q, want %q", principal, tc.principal)
			}
			if resource != "/api/widgets" {
				t.Fatalf("resource: %q", resource)
			}
			if tier != tc.tier {
				t.Fatalf("tier: got %q, want %q", tier, tc.tier)
			}
		})
	}
}
