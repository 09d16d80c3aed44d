package kiosk

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vansh1056/ScanAndPay/internal/history"
	"github.com/vansh1056/ScanAndPay/internal/wizard"
)

// DefaultMaxUploadSize caps a single document upload
const DefaultMaxUploadSize = int64(50 << 20)

// JobStore is the read side of the job history
type JobStore interface {
	GetJob(id string) (*history.Job, error)
	ListJobs() ([]*history.Job, error)
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Config holds the HTTP server settings
type Config struct {
	BasicAuth BasicAuth
	// RateLimit is requests per second per client; zero disables limiting
	RateLimit     float64
	RateBurst     int
	MaxUploadSize int64
}

// Server exposes the wizard sessions over a JSON API
type Server struct {
	store         *wizard.Store
	jobs          JobStore
	basicAuth     BasicAuth
	limiter       *IPRateLimiter
	maxUploadSize int64
	mux           *http.ServeMux
	handler       http.Handler

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a new Server with default mux
func NewServer(store *wizard.Store, jobs JobStore, cfg Config) *Server {
	return NewServerWithMux(store, jobs, cfg, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(store *wizard.Store, jobs JobStore, cfg Config, mux *http.ServeMux) *Server {
	s := &Server{
		store:         store,
		jobs:          jobs,
		basicAuth:     cfg.BasicAuth,
		maxUploadSize: cfg.MaxUploadSize,
		mux:           mux,
	}
	if s.maxUploadSize <= 0 {
		s.maxUploadSize = DefaultMaxUploadSize
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = NewIPRateLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	s.registerRoutes()
	s.handler = s.corsMiddleware(s.rateLimitMiddleware(s.mux))
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware rejects clients that exceed their request budget
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.Allow(ip) {
			slog.Warn("Rate limit exceeded", "client", ip, "path", r.URL.Path)
			writeJSONError(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ScanAndPay"`)
			writeJSONError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// Sessions
	s.mux.HandleFunc("POST /api/sessions/{id}/reset", s.requireAuth(s.handleResetSession))
	s.mux.HandleFunc("POST /api/sessions/{id}/scan", s.requireAuth(s.handleStartScan))
	s.mux.HandleFunc("DELETE /api/sessions/{id}/scan", s.requireAuth(s.handleStopScan))
	s.mux.HandleFunc("POST /api/sessions/{id}/address", s.requireAuth(s.handleSubmitAddress))
	s.mux.HandleFunc("POST /api/sessions/{id}/documents", s.requireAuth(s.handleUploadDocument))
	s.mux.HandleFunc("DELETE /api/sessions/{id}/documents/{index}", s.requireAuth(s.handleRemoveDocument))
	s.mux.HandleFunc("POST /api/sessions/{id}/submit", s.requireAuth(s.handleSubmit))
	s.mux.HandleFunc("GET /api/sessions/{id}", s.requireAuth(s.handleGetSession))
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.requireAuth(s.handleDeleteSession))
	s.mux.HandleFunc("POST /api/sessions", s.requireAuth(s.handleCreateSession))

	// Job history
	s.mux.HandleFunc("GET /api/jobs/{id}", s.requireAuth(s.handleGetJob))
	s.mux.HandleFunc("GET /api/jobs", s.requireAuth(s.handleListJobs))
}

// Handler returns the server's handler with CORS and rate limiting applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	slog.Info("Starting server", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones to finish
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
