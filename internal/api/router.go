package api

import (
	"net/http"

	"roach-arena/internal/game"
	"roach-arena/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// WorldInterface is the slice of *game.World the HTTP and websocket layers
// call. Tests substitute a fake so no tick loop is needed.
type WorldInterface interface {
	Snapshot() *game.WorldSnapshot
	RoomState(key game.RoomKey) (game.RoomState, bool)
	// SetPaid reports whether the player is currently online
	SetPaid(id string, paid bool) bool

	Join(req game.JoinRequest) *game.Session
	Leave(id string, out game.Outbox)
	HandleCommand(id string, cmd game.Command)
}

// RouterConfig wires the REST router. Only World is required.
type RouterConfig struct {
	World WorldInterface

	// Store serves the persisted leaderboard and the paid flag. When nil the
	// leaderboard comes from the live snapshot.
	Store store.Store

	// RateLimiter takes precedence over RateLimitConfig. With neither set,
	// DefaultRateLimitConfig applies.
	RateLimiter     *IPRateLimiter
	RateLimitConfig *RateLimitConfig

	// CORSOrigins defaults to DefaultAllowedOrigins.
	CORSOrigins []string

	// Basic auth credentials for /api/admin. Requests are refused when empty.
	AdminUser string
	AdminPass string

	DisableLogging bool
}

type routerHandlers struct {
	world WorldInterface
	store store.Store
}

// NewRouter builds the REST routes. It opens no listener and starts no
// simulation, so it can be served directly by httptest. Server mounts /ws on
// top of it.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Throttle before CORS so rejected requests cost as little as possible
	limiter := cfg.RateLimiter
	if limiter == nil {
		limits := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			limits = *cfg.RateLimitConfig
		}
		limiter = NewIPRateLimiter(limits)
	}
	r.Use(limiter.Middleware)

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = DefaultAllowedOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := &routerHandlers{world: cfg.World, store: cfg.Store}

	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.handleGetState)
		r.Get("/rooms/{key}", h.handleGetRoom)
		r.Get("/leaderboard", h.handleGetLeaderboard)
		r.Get("/upgrades", h.handleGetUpgrades)

		// Called by the payment subsystem once a purchase settles
		r.With(RequireBasicAuth(cfg.AdminUser, cfg.AdminPass, "admin")).
			Post("/admin/players/{id}/paid", h.handleSetPaid)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "Not found", http.StatusNotFound)
	})

	return r
}
