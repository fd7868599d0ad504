// Package httptransport provides HTTP middleware.
package httptransport

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"tierlimit/internal/tierlimit"
	"tierlimit/internal/tierlimit/observability"
)

// HeaderRequestID carries the request identifier.
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// RequestIDMiddleware assigns each request an identifier, honoring one
// supplied by the caller.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request identifier, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

func (t *Transport) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t == nil || t.logger == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		t.logger.Info("http request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     sw.status,
			"durationMS": time.Since(start).Milliseconds(),
			"requestID":  RequestIDFromContext(r.Context()),
		})
	})
}

func timeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (t *Transport) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t == nil || !t.enableAuth {
			next.ServeHTTP(w, r)
			return
		}
		expected := "Bearer " + t.adminToken
		if r.Header.Get("Authorization") != expected {
			t.writeError(w, r, http.StatusUnauthorized, tierlimit.Wrap(tierlimit.CodeUnauthorized, "unauthorized", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// KeyFunc derives the rate limit identity of a request. A false ok
// lets the request bypass limiting.
type KeyFunc func(r *http.Request) (principalID, resource, tier string, ok bool)

// DefaultKeyFunc identifies callers by API key when present and by
// client address otherwise, limiting per request path. The tier comes
// from the X-Tier header and defaults to free.
func DefaultKeyFunc(r *http.Request) (string, string, string, bool) {
	if r == nil {
		return "", "", "", false
	}
	principalID := r.Header.Get("X-API-Key")
	if principalID == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			principalID = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if principalID == "" {
		principalID = clientAddr(r)
	}
	if principalID == "" {
		return "", "", "", false
	}
	tier := r.Header.Get("X-Tier")
	if tier == "" {
		tier = tierlimit.TierFree
	}
	return principalID, r.URL.Path, tier, true
}

func clientAddr(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware enforces quotas in front of an arbitrary handler. Allowed
// requests pass through with informative headers; denied requests get
// a 429 with the documented body. Storage failures yield a 503 and
// never let traffic through.
func Middleware(quota tierlimit.QuotaService, keyFn KeyFunc, logger observability.Logger) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = DefaultKeyFunc
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principalID, resource, tier, ok := keyFn(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			resp, err := quota.CheckQuota(r.Context(), &tierlimit.CheckQuotaRequest{
				TraceID:     RequestIDFromContext(r.Context()),
				PrincipalID: principalID,
				Resource:    resource,
				Tier:        tier,
			})
			if err != nil {
				if logger != nil {
					logger.Error("quota check failed", map[string]any{
						"principalID": principalID,
						"resource":    resource,
						"tier":        tier,
						"error":       err.Error(),
					})
				}
				if tierlimit.CodeOf(err) == tierlimit.CodeStorageUnavailable {
					writeJSON(w, http.StatusServiceUnavailable, httpErrorResponse{Error: "service unavailable"})
					return
				}
				writeJSON(w, http.StatusInternalServerError, httpErrorResponse{Error: "internal error"})
				return
			}
			tierlimit.ApplyHeaders(w.Header(), resp, resp.Window)
			if !resp.Allowed {
				body := tierlimit.NewDeniedBody(resp, resp.Window)
				quota.ReleaseResponse(resp)
				writeJSON(w, http.StatusTooManyRequests, body)
				return
			}
			quota.ReleaseResponse(resp)
			next.ServeHTTP(w, r)
		})
	}
}
