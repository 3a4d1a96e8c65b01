// Middleware is grounded on the teacher's cmd/gateway/middleware.go:
// corsMiddleware's header-then-OPTIONS-short-circuit shape, and
// authMiddleware's Bearer-token-then-context-injection shape, adapted
// from the teacher's API-key-or-JWT dual path to this system's single
// Bearer-access-token scheme (spec.md section 6 has no API-key surface).
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stockassistant/orchestrator/internal/apperrors"
	"github.com/stockassistant/orchestrator/internal/auth"
	"github.com/stockassistant/orchestrator/internal/logging"
	"github.com/stockassistant/orchestrator/internal/models"
)

// Authenticator is the subset of internal/auth.Service the HTTP layer
// depends on, kept narrow so handlers are testable against a fake.
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*auth.TokenPair, error)
	Login(ctx context.Context, email, password string) (*auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	VerifyAccess(ctx context.Context, accessToken string) (*models.User, error)
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// correlationMiddleware assigns every request a correlation id (honoring
// one the caller already supplied) and stamps it on the response, per
// spec.md section 7's X-Correlation-ID requirement.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Correlation-ID", id)
		next.ServeHTTP(w, r.WithContext(withCorrelationID(r.Context(), id)))
	})
}

// recoveryMiddleware turns a panicking handler into a 500 rather than
// tearing down the server, matching the teacher's recovery middleware's
// intent without importing its package (not present in the curated
// reference tree).
func recoveryMiddleware(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.WithField("correlation_id", correlationIDFrom(r.Context())).Errorf("panic handling request: %v", rec)
					writeError(w, r, apperrors.Internal(nil))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func authMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, r, apperrors.InvalidToken(nil))
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			user, err := auth.VerifyAccess(r.Context(), token)
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// tokenBucket is a small hand-rolled per-key rate limiter. spec.md
// section 6's CORS_ORIGINS/429 requirements don't justify pulling in
// golang.org/x/time/rate for one call site; see DESIGN.md's dropped
// dependency note.
type tokenBucket struct {
	capacity   float64
	refillRate float64 // tokens per second

	mu     sync.Mutex
	tokens map[string]*bucketState
}

type bucketState struct {
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(capacity, refillPerSecond float64) *tokenBucket {
	return &tokenBucket{capacity: capacity, refillRate: refillPerSecond, tokens: make(map[string]*bucketState)}
}

func (b *tokenBucket) allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, ok := b.tokens[key]
	if !ok {
		state = &bucketState{tokens: b.capacity, lastRefill: now}
		b.tokens[key] = state
	}
	elapsed := now.Sub(state.lastRefill).Seconds()
	state.tokens = minFloat(b.capacity, state.tokens+elapsed*b.refillRate)
	state.lastRefill = now

	if state.tokens < 1 {
		return false
	}
	state.tokens--
	return true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// rateLimitMiddleware rejects with 429 once a caller (identified by the
// authenticated user id, falling back to remote address) exceeds its
// token bucket.
func rateLimitMiddleware(limiter *tokenBucket) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := userIDFrom(r.Context())
			if !ok {
				key = clientIP(r)
			}
			if !limiter.allow(key) {
				writeError(w, r, apperrors.RateLimitExceeded())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		if _, err := strconv.Atoi(host[idx+1:]); err == nil {
			return host[:idx]
		}
	}
	return host
}
