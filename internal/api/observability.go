package api

import (
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"roach-arena/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-player labels to prevent DoS)
var (
	// Simulation metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent in one simulation tick",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	})

	playerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_player_count",
		Help: "Current number of connected players",
	})

	// Room keys are bounded by the grid size
	roomRoaches = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arena_room_roaches",
		Help: "Roaches present per room",
	}, []string{"room"})

	gameEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_game_events_total",
		Help: "Gameplay events produced by the simulation",
	}, []string{"type"}) // Bounded: the fixed event type set

	// Event log metrics
	eventLogTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_event_log_total",
		Help: "Audit records accepted since start",
	})

	eventLogDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_event_log_dropped",
		Help: "Audit records dropped due to rate limiting or buffer full",
	})

	// Persistence
	persistJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_persist_jobs_total",
		Help: "Background persistence jobs by outcome",
	}, []string{"job", "outcome"}) // Bounded: fixed job names, "ok" / "error"

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsInbound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_inbound_messages_total",
		Help: "Inbound WebSocket messages by outcome",
	}, []string{"outcome"}) // Bounded: "accepted", "rate_limited", "malformed"

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})

	wsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_dropped_total",
		Help: "Outbound messages dropped because a send queue was full",
	})
)

// ObservabilityConfig configures the debug server.
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string
	AllowExternal bool   // permit a non-loopback ListenAddr
	BasicAuthUser string // optional, guards every debug route
	BasicAuthPass string
}

// DefaultObservabilityConfig binds to loopback.
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// isLoopback reports whether addr binds to a loopback host.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// NewDebugHandler serves pprof, /metrics and /health.
func NewDebugHandler(cfg ObservabilityConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if cfg.BasicAuthUser != "" {
		r.Use(RequireBasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass, "debug"))
	}

	r.Mount("/debug", middleware.Profiler())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	return r
}

// StartDebugServer serves NewDebugHandler in the background. pprof can be
// used to stall the process, so a non-loopback address is rewritten to
// loopback unless AllowExternal is set. Returns nil when disabled.
func StartDebugServer(cfg ObservabilityConfig) *http.Server {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}
	if !isLoopback(cfg.ListenAddr) && !cfg.AllowExternal {
		_, port, err := net.SplitHostPort(cfg.ListenAddr)
		if err != nil || port == "" {
			port = "6060"
		}
		log.Printf("⚠️ Debug server forced to loopback (was %s)", cfg.ListenAddr)
		cfg.ListenAddr = net.JoinHostPort("127.0.0.1", port)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewDebugHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("📊 Debug server on http://%s (pprof at /debug/pprof/, metrics at /metrics)", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()
	return srv
}

// RecordTick records one tick's timing and population gauges.
// Wire it to World.OnTick.
func RecordTick(stats game.TickStats) {
	tickDuration.Observe(stats.Duration.Seconds())
	playerCount.Set(float64(stats.Players))
	for room, n := range stats.RoomRoaches {
		roomRoaches.WithLabelValues(room).Set(float64(n))
	}
}

// RecordGameEvents counts gameplay events by type. Wire it to World.OnEvents.
func RecordGameEvents(events []game.Event) {
	for _, e := range events {
		gameEvents.WithLabelValues(e.Type).Inc()
	}
}

// UpdateEventLogStats mirrors the audit log counters into gauges.
func UpdateEventLogStats(total, dropped uint64) {
	eventLogTotal.Set(float64(total))
	eventLogDropped.Set(float64(dropped))
}

// RecordPersistResult counts a finished persistence job.
// Wire it to Persister.OnResult.
func RecordPersistResult(job string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	persistJobs.WithLabelValues(job, outcome).Inc()
}

// RecordConnectionRejected increments the rejection counter
// reason must be one of: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordInbound counts an inbound websocket message by outcome.
func RecordInbound(outcome string) {
	wsInbound.WithLabelValues(outcome).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

// RecordDropped counts an outbound message lost to a full send queue.
func RecordDropped() {
	wsDropped.Inc()
}

// StartStatsLoop periodically mirrors counters that are pulled rather than
// pushed. It stops when stop is closed.
func StartStatsLoop(world *game.World, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := world.GetEventLogStats()
				UpdateEventLogStats(stats.Total, stats.Dropped)
			case <-stop:
				return
			}
		}
	}()
}
