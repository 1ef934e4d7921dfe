// Package server wires the record store, realtime hub and object storage
// into the backend's HTTP surface.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/fampulse/internal/auth"
	"github.com/dukerupert/fampulse/internal/config"
	"github.com/dukerupert/fampulse/internal/handler"
	"github.com/dukerupert/fampulse/internal/metrics"
	"github.com/dukerupert/fampulse/internal/middleware"
	"github.com/dukerupert/fampulse/internal/recordstore"
	ws "github.com/dukerupert/fampulse/internal/websocket"
)

type Server struct {
	cfg         config.Server
	hub         *ws.Hub
	recordH     *handler.RecordHandler
	storageH    *handler.StorageHandler
	healthH     *handler.HealthHandler
	tokens      *auth.Tokens
	metrics     *metrics.Metrics
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

// New builds the server. uploader may be nil when object storage is not
// configured; uploads then answer 503.
func New(cfg config.Server, db handler.Pinger, store *recordstore.SQLStore, uploader handler.Uploader, m *metrics.Metrics, logger *slog.Logger) *Server {
	hub := ws.NewHub(store, logger.With("component", "realtime"), ws.WithConnHooks(m.ConnOpened, m.ConnClosed))
	m.TrackSubscriptions(store.Feed().Count)

	s := &Server{
		cfg:         cfg,
		hub:         hub,
		recordH:     handler.NewRecordHandler(store, logger.With("component", "records")),
		storageH:    handler.NewStorageHandler(uploader, logger.With("component", "storage")),
		healthH:     handler.NewHealthHandler(db),
		metrics:     m,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
	if cfg.JWTSecret != "" {
		s.tokens = auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	} else {
		logger.Warn("FAMPULSE_JWT_SECRET not set, API is unauthenticated")
	}
	return s
}

// Hub returns the realtime hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Tokens returns the token issuer, nil when auth is disabled.
func (s *Server) Tokens() *auth.Tokens {
	return s.tokens
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthH.Health)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Record API
	mux.Handle("POST /rest/v1/{table}/select", s.protect(s.recordH.Select))
	mux.Handle("POST /rest/v1/{table}", s.protect(s.recordH.Insert))
	mux.Handle("PATCH /rest/v1/{table}", s.protect(s.recordH.Update))
	mux.Handle("PUT /rest/v1/{table}", s.protect(s.recordH.Upsert))
	mux.Handle("DELETE /rest/v1/{table}", s.protect(s.recordH.Delete))

	// Object storage
	mux.Handle("PUT /storage/v1/object/{path...}", s.protect(s.storageH.Upload))

	// Realtime
	mux.Handle("GET /realtime/v1", s.protect(ws.HandleWebSocket(s.hub, s.cfg.AllowedOrigins)))

	return middleware.RequestLogger(s.logger.With("component", "http"), s.metrics.ObserveRequest)(mux)
}

// protect authenticates the caller, when auth is enabled, and then applies
// the per-client rate limit.
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	var next http.Handler = middleware.RateLimit(s.rateLimiter, middleware.ClientKey, s.cfg.RateLimit, time.Minute)(h)
	if s.tokens != nil {
		next = middleware.RequireToken(s.tokens)(next)
	}
	return next
}

// Close tells realtime clients the server is going away so they reconnect
// elsewhere or back off.
func (s *Server) Close() {
	s.hub.Broadcast(ws.Message{Type: ws.TypeClosing})
}
