// Package server exposes the editor over HTTP: the editor page, a JSON API
// over the buffers, projects, lessons and progress, the sandboxed preview
// document and the live preview websocket.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/codecraft/internal/app"
	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/logging"
	"github.com/conneroisu/codecraft/internal/middleware"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = time.Minute
	maxBodyBytes    = 1 << 20
)

// Server serves one application.
type Server struct {
	app     *app.App
	logger  logging.Logger
	limiter *middleware.RateLimiter
	handler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
}

// New builds the route table and middleware stack for a.
func New(a *app.App) *Server {
	s := &Server{app: a, logger: a.Logger.WithComponent("server")}

	rl := a.Config.Server.RateLimit
	if rl.Rate > 0 {
		s.limiter = middleware.NewRateLimiter(rl.Rate, rl.Burst)
	}

	chain := middleware.NewChain(middleware.Dependencies{
		Logger:              a.Logger,
		OriginValidator:     a.Origins,
		RateLimiter:         s.limiter,
		RateLimitedPrefixes: []string{"/api/"},
	})
	s.handler = chain.Apply(s.routes())
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /health", s.app.Health.Handler())
	mux.Handle("GET /ws", s.app.Hub)

	mux.HandleFunc("GET /api/buffers", s.handleGetBuffers)
	mux.HandleFunc("PUT /api/buffers/active", s.handleSetActive)
	mux.HandleFunc("PUT /api/buffers/{role}", s.handleSetBuffer)
	mux.HandleFunc("POST /api/buffers/load", s.handleLoadBuffers)
	mux.HandleFunc("POST /api/buffers/reset", s.handleResetBuffers)

	mux.HandleFunc("GET /api/preview", s.handlePreview)
	mux.Handle("GET /preview/frame", s.app.Session.Sandbox().Handler())

	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleSaveProject)
	mux.HandleFunc("GET /api/projects/current", s.handleCurrentProject)
	mux.HandleFunc("PATCH /api/projects/{id}", s.handleUpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("POST /api/projects/{id}/load", s.handleLoadProject)

	mux.HandleFunc("GET /api/lessons", s.handleListLessons)
	mux.HandleFunc("GET /api/lessons/{course}/{lesson}", s.handleGetLesson)
	mux.HandleFunc("POST /api/lessons/{course}/{lesson}/example/open", s.handleOpenExample)
	mux.HandleFunc("POST /api/lessons/{course}/{lesson}/exercises/{exercise}/open", s.handleOpenExercise)

	mux.HandleFunc("GET /api/progress", s.handleGetProgress)
	mux.HandleFunc("POST /api/progress/{course}/{lesson}", s.handleUpdateProgress)

	return mux
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	cfg := s.app.Config.Server
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// Run listens on the configured address until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return apperrors.NewNetworkError(apperrors.ErrCodeTransport, "failed to listen on "+s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then shuts down
// gracefully: websocket clients are disconnected first, then in-flight
// requests get up to ten seconds to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	if s.limiter != nil {
		go s.sweepLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info(ctx, "Server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return apperrors.NewNetworkError(apperrors.ErrCodeTransport, "server stopped", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	hubErr := s.app.Hub.Shutdown(ctx)
	if srv == nil {
		return hubErr
	}
	err := srv.Shutdown(ctx)
	s.logger.Info(ctx, "Server stopped")
	return errors.Join(hubErr, err)
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Sweep(); n > 0 {
				s.logger.Debug(ctx, "Forgot idle clients", "count", n)
			}
		}
	}
}
