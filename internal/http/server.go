package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"dolgi/internal/core"
	applog "dolgi/internal/log"
	"dolgi/internal/settlement"
	"dolgi/internal/storage"
)

// LedgerAPI is the slice of the ledger service the HTTP layer needs.
type LedgerAPI interface {
	RegisterParticipant(ctx context.Context, p core.Participant) error
	Participants(ctx context.Context) ([]core.Participant, error)
	Participant(ctx context.Context, id int64) (core.Participant, error)
	SetPayoutDetails(ctx context.Context, id int64, payout string) error
	RecordExpense(ctx context.Context, payer core.Participant, amountText, currency, description, category string) (int64, error)
	AddShare(ctx context.Context, expenseID int64, debtor core.Participant, amountText string) (int64, error)
	Balances(ctx context.Context) ([]core.Balance, error)
	DebtsFor(ctx context.Context, debtorID int64) ([]storage.DebtorDebt, error)
	OwedTotals(ctx context.Context) ([]storage.OwedTotal, error)
	History(ctx context.Context, limit int) ([]storage.ExpenseWithPayer, error)
	RequestSettlement(ctx context.Context, requestedBy int64) error
}

// SettlementAPI is the slice of the settlement service the HTTP layer needs.
type SettlementAPI interface {
	PlanSettlement(ctx context.Context) (*settlement.Plan, error)
	CommitSettlement(ctx context.Context, plan *settlement.Plan) error
}

// Pinger reports storage liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	http.Server
	ledger      LedgerAPI
	settler     SettlementAPI
	pinger      Pinger
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer configures routes, returning a ready-to-run JSON API server.
func NewServer(addr string, ledger LedgerAPI, settler SettlementAPI, pinger Pinger) *Server {
	mux := http.NewServeMux()

	httpLogger := applog.New(applog.Config{
		Component: applog.ComponentHTTP,
		Handler:   slog.Default().Handler(),
	})

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: applog.Middleware(httpLogger)(mux),
		},
		ledger:      ledger,
		settler:     settler,
		pinger:      pinger,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/participants", s.withSecurityHeaders(s.handleParticipants))
	mux.HandleFunc("/participants/payout", s.withSecurityHeaders(s.handleSetPayout))
	mux.HandleFunc("/expenses", s.withSecurityHeaders(s.handleCreateExpense))
	mux.HandleFunc("/shares", s.withSecurityHeaders(s.handleAddShare))
	mux.HandleFunc("/balances", s.withSecurityHeaders(s.handleBalances))
	mux.HandleFunc("/debts", s.withSecurityHeaders(s.handleDebts))
	mux.HandleFunc("/debts/totals", s.withSecurityHeaders(s.handleOwedTotals))
	mux.HandleFunc("/history", s.withSecurityHeaders(s.handleHistory))
	mux.HandleFunc("/settlement/plan", s.withSecurityHeaders(s.handlePlanSettlement))
	mux.HandleFunc("/settlement/commit", s.withSecurityHeaders(s.handleCommitSettlement))
	mux.HandleFunc("/settlement/request", s.withSecurityHeaders(s.handleRequestSettlement))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
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

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := extractClientIP(r)

		// Generate request ID for tracing
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		logger := applog.FromContext(ctx).With(applog.FieldRequestID, requestID)
		structured := applog.NewStructuredLogger(logger)
		structured.LogHTTPStart(ctx, r, clientIP)

		// Rate limit writes and settlement runs
		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			logger.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		structured.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			slog.ErrorContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
