package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"roach-arena/internal/store"

	"github.com/go-chi/chi/v5"
)

// ServerConfig bundles the settings NewServer needs beyond the world.
type ServerConfig struct {
	Hub         HubConfig
	RateLimit   RateLimitConfig // zero fields use DefaultRateLimitConfig
	CORSOrigins []string
	AdminUser   string
	AdminPass   string
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with the websocket hub that feeds the world.
type Server struct {
	world       WorldInterface
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer creates a new API server.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// This enables testing by allowing the server to be constructed without
// starting goroutines or opening network listeners.
//
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(world WorldInterface, st store.Store, cfg ServerConfig) *Server {
	if cfg.Hub.AllowedOrigins == nil {
		cfg.Hub.AllowedOrigins = cfg.CORSOrigins
	}

	s := &Server{
		world:       world,
		wsHub:       NewWebSocketHub(world, st, cfg.Hub),
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
	}

	s.router = NewRouter(RouterConfig{
		World:       world,
		Store:       st,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.CORSOrigins,
		AdminUser:   cfg.AdminUser,
		AdminPass:   cfg.AdminPass,
	})

	// The websocket route needs the hub instance
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	return s
}

// Start runs the hub and serves HTTP until Stop is called.
// This is the ONLY method that starts goroutines or opens network listeners.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("🌐 API server starting on %s", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Router returns the HTTP handler for use with httptest.
//
// Example:
//
//	server := api.NewServer(world, nil, api.ServerConfig{})
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/state")
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub exposes the websocket hub, mainly so tests can run it.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Stop closes client connections and shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.wsHub.Stop()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
