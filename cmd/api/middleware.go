package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"agrinetwork/auth"
)

type ctxKey string

const (
	ctxKeyUserID    ctxKey = "user_id"
	ctxKeyRole      ctxKey = "role"
	ctxKeyRequestID ctxKey = "request_id"
)

var errIdentityMismatch = errors.New("api: token subject does not match actor")

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// observe assigns a request id, then logs and measures every request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, requestID))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(r.Method, route, rec.status, elapsed)
		s.logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", elapsed),
			zap.String("client_ip", clientIP(r)))
	})
}

// ipRateLimiter keeps one token bucket per client address.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		ttl:      10 * time.Minute,
	}
}

func (l *ipRateLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.limiters[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for longer than the ttl.
func (l *ipRateLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.limiters {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.limiters, ip)
		}
	}
}

// runSweeper sweeps every interval until ctx is done.
func (l *ipRateLimiter) runSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r), time.Now()) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authenticated verifies a bearer token when one is presented and stores its subject
// in the context. Without a token the request passes unless tokens are required.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			if s.requireToken {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			next(w, r)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || s.authService == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "malformed authorization header")
			return
		}
		userID, role, err := s.authService.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next(w, r.WithContext(ctx))
	})
}

// checkActor rejects a body-supplied actor id that differs from the token subject.
func checkActor(r *http.Request, actorID string) error {
	subject, ok := r.Context().Value(ctxKeyUserID).(string)
	if !ok || subject == "" {
		return nil
	}
	if subject != actorID {
		return errIdentityMismatch
	}
	return nil
}

// tokenRole returns the account role carried by the token, if any.
func tokenRole(r *http.Request) (auth.Role, bool) {
	role, ok := r.Context().Value(ctxKeyRole).(auth.Role)
	return role, ok
}
