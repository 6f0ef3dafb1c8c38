package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"crednet-oauth/internal/logging"
	"crednet-oauth/internal/monitoring"
	"crednet-oauth/internal/ratelimit"
	"crednet-oauth/internal/sessions"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Middleware bundles the HTTP wrappers shared across the route table.
type Middleware struct {
	logger   *logging.Logger
	metrics  *monitoring.Service
	sessions *sessions.Manager
	limiter  ratelimit.Limiter
}

func New(logger *logging.Logger, metrics *monitoring.Service, sessionMgr *sessions.Manager, limiter ratelimit.Limiter) *Middleware {
	return &Middleware{
		logger:   logger,
		metrics:  metrics,
		sessions: sessionMgr,
		limiter:  limiter,
	}
}

// Logger tags every request with an ID, records metrics, and writes one
// structured access log line per request.
func (m *Middleware) Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logging.GenerateRequestID()

		reqLogger := m.logger.WithRequestID(requestID)
		ctx := logging.WithLogger(r.Context(), reqLogger)
		ctx = logging.WithRequestID(ctx, requestID)
		w.Header().Set("X-Request-ID", requestID)

		m.metrics.IncrementRequests()
		m.metrics.IncrementActiveRequests()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(start)
		m.metrics.DecrementActiveRequests()
		m.metrics.RecordResponseTime(r.URL.Path, duration)

		event := reqLogger.InfoEvent()
		if wrapped.statusCode >= 500 {
			event = reqLogger.ErrorEvent()
		} else if wrapped.statusCode >= 400 {
			event = reqLogger.WarnEvent()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", duration).
			Str("client_ip", clientIP(r)).
			Str("user_agent", sanitizeUserAgent(r.Header.Get("User-Agent"))).
			Msg("request")
	})
}

// Recovery converts a handler panic into a 500 instead of killing the
// connection goroutine.
func (m *Middleware) Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.ErrorEvent().
					Interface("panic", err).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("client_ip", clientIP(r)).
					Msg("handler panic")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := "*"

			if len(allowedOrigins) > 0 && allowedOrigins[0] != "*" {
				allowed = ""
				for _, candidate := range allowedOrigins {
					if candidate == origin {
						allowed = origin
						break
					}
				}
				if allowed == "" {
					allowed = allowedOrigins[0]
				}
			}

			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit throttles by client IP using the configured limiter backend.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.limiter.Allow(r.Context(), clientIP(r))
		if err != nil {
			// Fail open: a broken limiter backend should not take the
			// whole service down with it.
			m.logger.WithError(err).Warn("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))

		if !result.Allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", time.Until(result.ResetAt).Seconds()))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests without a valid first-party session and
// stashes the user ID in the request context.
func (m *Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			if cookie, err := r.Cookie("crednet_session"); err == nil {
				token = cookie.Value
			}
		}
		if token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		userID, err := m.sessions.Validate(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			http.Error(w, "Invalid session", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the session user stashed by RequireUser, or uuid.Nil.
func UserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(userIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func (m *Middleware) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isHTTPS := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		w.Header().Set("Pragma", "no-cache")

		if isHTTPS {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) RequestSizeLimit(maxSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxSize {
				http.Error(w, "Request entity too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) RequireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
			httpsURL := "https://" + r.Host + r.RequestURI
			http.Redirect(w, r, httpsURL, http.StatusMovedPermanently)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return header[len("Bearer "):]
	}
	return ""
}

func sanitizeUserAgent(ua string) string {
	ua = strings.ReplaceAll(ua, "\n", "")
	ua = strings.ReplaceAll(ua, "\r", "")
	if len(ua) > 200 {
		ua = ua[:200]
	}
	return ua
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		if net.ParseIP(realIP) != nil {
			return realIP
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
