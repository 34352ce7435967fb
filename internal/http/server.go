// Package http exposes the ledger over a JSON API.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "splitledger/internal/log"
	"splitledger/internal/services"
)

type Server struct {
	http.Server
	ledger      *services.LedgerService
	balances    *services.BalanceService
	rateLimiter *rateLimiter
	secMetrics  *securityMetrics
	metrics     *httpMetrics
	logger      *applog.StructuredLogger

	shutdownOnce sync.Once
}

// NewServer configures all routes and returns a ready-to-run server.
func NewServer(addr string, ledger *services.LedgerService, balances *services.BalanceService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		ledger:      ledger,
		balances:    balances,
		rateLimiter: newRateLimiter(),
		secMetrics:  &securityMetrics{},
		metrics:     newHTTPMetrics(),
		logger: applog.NewStructuredLogger(applog.New(applog.Config{
			Component: applog.ComponentHTTP,
			Handler:   slog.Default().Handler(),
		})),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /users", s.guard(s.handleCreateUser))
	mux.HandleFunc("GET /users", s.guard(s.handleListUsers))
	mux.HandleFunc("GET /users/{id}", s.guard(s.handleGetUser))
	mux.HandleFunc("PUT /users/{id}", s.guard(s.handleUpdateUser))
	mux.HandleFunc("DELETE /users/{id}", s.guard(s.handleDeleteUser))
	mux.HandleFunc("GET /users/{id}/groups", s.guard(s.handleListUserGroups))

	mux.HandleFunc("POST /groups", s.guard(s.handleCreateGroup))
	mux.HandleFunc("GET /groups", s.guard(s.handleListGroups))
	mux.HandleFunc("GET /groups/{id}", s.guard(s.handleGetGroup))
	mux.HandleFunc("PUT /groups/{id}", s.guard(s.handleUpdateGroup))
	mux.HandleFunc("DELETE /groups/{id}", s.guard(s.handleDeleteGroup))

	mux.HandleFunc("POST /groups/{id}/members", s.guard(s.handleAddMember))
	mux.HandleFunc("GET /groups/{id}/members", s.guard(s.handleListMembers))
	mux.HandleFunc("DELETE /groups/{id}/members/{userID}", s.guard(s.handleRemoveMember))

	mux.HandleFunc("POST /groups/{id}/expenses", s.guard(s.handleAddExpense))
	mux.HandleFunc("GET /groups/{id}/expenses", s.guard(s.handleListExpenses))
	mux.HandleFunc("GET /expenses/{id}", s.guard(s.handleGetExpense))
	mux.HandleFunc("DELETE /expenses/{id}", s.guard(s.handleDeleteExpense))
	mux.HandleFunc("POST /shares/{id}/settle", s.guard(s.handleSettleShare))

	mux.HandleFunc("GET /groups/{id}/balances", s.guard(s.handleGroupBalances))
	mux.HandleFunc("GET /groups/{id}/members/{userID}/balance", s.guard(s.handleUserBalance))
	mux.HandleFunc("GET /groups/{id}/members/{userID}/owes", s.guard(s.handleDebtsOwedBy))
	mux.HandleFunc("GET /groups/{id}/members/{userID}/owed", s.guard(s.handleDebtsOwedTo))

	return s
}

// guard wraps a handler with security headers, rate limiting, request IDs,
// request logging and metrics.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		if detectSuspiciousRequest(r, s.secMetrics) {
			slog.WarnContext(ctx, "Suspicious request",
				"request_id", requestID,
				"client_ip", clientIP,
				"url", r.URL.Path)
		}

		// Rate limit writes only, reads are cheap
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP, s.secMetrics) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		s.metrics.observe(r.Method, r.URL.Path, rw.statusCode, duration)
		s.logger.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown stops the rate limiter cleanup goroutine and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
