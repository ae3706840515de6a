// Package middleware holds the HTTP middleware stack shared by every route:
// request logging, panic recovery, security headers, CORS and per-client
// rate limiting.
//
// Middlewares execute in the order they were added: the first added is the
// outermost wrapper.
package middleware

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/logging"
)

// Middleware represents a single middleware function
type Middleware func(http.Handler) http.Handler

// Chain is an ordered middleware stack.
type Chain struct {
	middlewares []Middleware
}

// Dependencies feeds the default stack.
type Dependencies struct {
	Logger          logging.Logger
	OriginValidator *OriginValidator
	RateLimiter     *RateLimiter
	// RateLimitedPrefixes restricts limiting to matching paths. Empty
	// limits every request.
	RateLimitedPrefixes []string
}

// NewChain builds the default stack: logging, recovery, security headers,
// CORS and, when a limiter is given, rate limiting.
func NewChain(deps Dependencies) *Chain {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("http")

	c := &Chain{middlewares: make([]Middleware, 0, 5)}
	c.Use(Logging(logger))
	c.Use(Recovery(logger))
	c.Use(SecurityHeaders())
	if deps.OriginValidator != nil {
		c.Use(CORS(deps.OriginValidator))
	}
	if deps.RateLimiter != nil {
		c.Use(deps.RateLimiter.Middleware(deps.RateLimitedPrefixes...))
	}
	return c
}

// Use appends a middleware.
func (c *Chain) Use(m Middleware) {
	c.middlewares = append(c.middlewares, m)
}

// Len returns the number of middlewares in the chain.
func (c *Chain) Len() int {
	return len(c.middlewares)
}

// Apply wraps handler with every middleware.
func (c *Chain) Apply(handler http.Handler) http.Handler {
	wrapped := handler
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		wrapped = c.middlewares[i](wrapped)
	}
	return wrapped
}

// statusRecorder captures the response status. It forwards Hijack and Flush
// so websocket upgrades pass through the chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Logging records method, path, status and duration of each request.
func Logging(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			fields := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", rec.bytes,
				"duration", time.Since(start).String(),
			}
			if status >= http.StatusInternalServerError {
				logger.Warn(r.Context(), nil, "Request failed", fields...)
				return
			}
			logger.Debug(r.Context(), "Request", fields...)
		})
	}
}

// Recovery turns a handler panic into a 500.
func Recovery(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := apperrors.NewInternalError(apperrors.ErrCodeInternalError, "handler panic", nil).
					WithContext("panic", rec)
				logger.Error(context.WithoutCancel(r.Context()), err, "Recovered from panic",
					"path", r.URL.Path, "stack", string(debug.Stack()))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// EditorContentPolicy is the CSP for pages served by the application. The
// preview frame document carries its own stricter policy.
const EditorContentPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data: https:; " +
	"font-src 'self' data: https:; " +
	"connect-src 'self' ws: wss:; " +
	"frame-src 'self'; " +
	"frame-ancestors 'self'; " +
	"object-src 'none'; " +
	"base-uri 'self'"

// SecurityHeaders sets conservative defaults. Handlers may override them.
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", EditorContentPolicy)
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			next.ServeHTTP(w, r)
		})
	}
}

// CORS answers cross-origin requests from allowed origins only.
func CORS(validator *OriginValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && validator.IsAllowedOrigin(origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
