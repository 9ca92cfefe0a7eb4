// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for server, simulation and storage settings.
//
// Gameplay constants (speeds, costs, radii) live in the game package because
// they are part of the authoritative rules; this package only carries the
// knobs an operator is expected to turn.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int
	CORSOrigins  []string // Allowed origins for CORS and websocket upgrades
	EventLogPath string   // JSONL audit trail, empty disables it
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port: 3000,
		CORSOrigins: []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		},
		EventLogPath: "events.jsonl",
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if origins := getEnvList("CORS_ORIGINS"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	if v, ok := os.LookupEnv("EVENT_LOG_PATH"); ok {
		cfg.EventLogPath = v
	}

	return cfg
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimConfig holds the scheduler settings.
type SimConfig struct {
	TickInterval time.Duration // Fixed tick period
	GridSize     int           // Rooms per side (GridSize x GridSize)
	NPCsPerRoom  int           // NPCs seeded into every room at startup
	Seed         int64         // RNG seed, 0 = time based
}

// DefaultSim returns the default simulation configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		TickInterval: 50 * time.Millisecond, // 20 TPS
		GridSize:     3,
		NPCsPerRoom:  8,
	}
}

// SimFromEnv returns simulation configuration with environment variable overrides.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()

	if ms := getEnvInt("TICK_MS", 0); ms > 0 {
		cfg.TickInterval = time.Duration(ms) * time.Millisecond
	}
	if g := getEnvInt("GRID_SIZE", 0); g > 0 {
		cfg.GridSize = g
	}
	if n := getEnvInt("NPCS_PER_ROOM", -1); n >= 0 {
		cfg.NPCsPerRoom = n
	}
	if s := getEnvInt64("SIM_SEED", 0); s != 0 {
		cfg.Seed = s
	}

	return cfg
}

// =============================================================================
// NETWORK LIMITS
// =============================================================================

// NetConfig controls connection and inbound message limits.
type NetConfig struct {
	MaxConnections      int           // Hard cap on concurrent websocket connections
	MaxConnectionsPerIP int           // Concurrent websocket connections per IP
	MessagesPerSecond   int           // Inbound budget per connection, excess is dropped
	JoinGrace           time.Duration // Silence before auto-enrolling an anonymous player
	SendQueueSize       int           // Outbound frames buffered per connection
	HTTPRatePerSecond   int           // REST requests per second per IP
	HTTPBurst           int           // REST burst per IP
}

// DefaultNet returns the default network limits.
func DefaultNet() NetConfig {
	return NetConfig{
		MaxConnections:      500,
		MaxConnectionsPerIP: 10,
		MessagesPerSecond:   120,
		JoinGrace:           time.Second,
		SendQueueSize:       64,
		HTTPRatePerSecond:   10,
		HTTPBurst:           20,
	}
}

// NetFromEnv returns network limits with environment variable overrides.
func NetFromEnv() NetConfig {
	cfg := DefaultNet()

	if v := getEnvInt("MAX_CONNECTIONS", 0); v > 0 {
		cfg.MaxConnections = v
	}
	if v := getEnvInt("MAX_CONNECTIONS_PER_IP", 0); v > 0 {
		cfg.MaxConnectionsPerIP = v
	}
	if v := getEnvInt("MESSAGES_PER_SECOND", 0); v > 0 {
		cfg.MessagesPerSecond = v
	}
	if ms := getEnvInt("JOIN_GRACE_MS", 0); ms > 0 {
		cfg.JoinGrace = time.Duration(ms) * time.Millisecond
	}
	if v := getEnvInt("HTTP_RATE_LIMIT", 0); v > 0 {
		cfg.HTTPRatePerSecond = v
	}
	if v := getEnvInt("HTTP_BURST", 0); v > 0 {
		cfg.HTTPBurst = v
	}

	return cfg
}

// =============================================================================
// STORAGE CONFIGURATION
// =============================================================================

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Driver            string        // "memory" or "postgres"
	DatabaseURL       string        // Postgres DSN
	SessionFlushTicks int           // Ticks between bulk session saves
	SessionExpiry     time.Duration // Saved sessions older than this are discarded
	Workers           int           // Persister worker goroutines
	QueueSize         int           // Persister job buffer
	JobTimeout        time.Duration // Per-job deadline
}

// DefaultStore returns the default storage configuration.
func DefaultStore() StoreConfig {
	return StoreConfig{
		Driver:            StoreMemory,
		SessionFlushTicks: 200, // 10s at 20 TPS
		SessionExpiry:     5 * time.Minute,
		Workers:           2,
		QueueSize:         256,
		JobTimeout:        5 * time.Second,
	}
}

// StoreFromEnv returns storage configuration with environment variable overrides.
func StoreFromEnv() StoreConfig {
	cfg := DefaultStore()

	if d := os.Getenv("STORE_DRIVER"); d != "" {
		cfg.Driver = strings.ToLower(d)
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
		if os.Getenv("STORE_DRIVER") == "" {
			cfg.Driver = StorePostgres
		}
	}
	if v := getEnvInt("SESSION_FLUSH_TICKS", 0); v > 0 {
		cfg.SessionFlushTicks = v
	}
	if v := getEnvInt("PERSIST_WORKERS", 0); v > 0 {
		cfg.Workers = v
	}
	if v := getEnvInt("PERSIST_QUEUE_SIZE", 0); v > 0 {
		cfg.QueueSize = v
	}

	return cfg
}

// =============================================================================
// ECONOMY / ADMIN
// =============================================================================

// EconomyConfig holds settings that touch the payment collaborator.
type EconomyConfig struct {
	RequirePayment bool   // Gate session persistence and upgrades on the paid flag
	AdminUser      string // Basic auth for the admin endpoints, empty disables them
	AdminPass      string
}

// DefaultEconomy returns the default economy configuration.
func DefaultEconomy() EconomyConfig {
	return EconomyConfig{}
}

// EconomyFromEnv returns economy configuration with environment variable overrides.
func EconomyFromEnv() EconomyConfig {
	cfg := DefaultEconomy()

	cfg.RequirePayment = os.Getenv("REQUIRE_PAYMENT") == "true"
	cfg.AdminUser = os.Getenv("ADMIN_USER")
	cfg.AdminPass = os.Getenv("ADMIN_PASS")

	return cfg
}

// =============================================================================
// DEBUG SERVER
// =============================================================================

// DebugConfig holds the pprof/metrics server settings.
type DebugConfig struct {
	Enabled       bool
	ListenAddr    string // Forced to loopback unless AllowExternal
	AllowExternal bool
}

// DefaultDebug returns the default debug configuration.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// DebugFromEnv returns debug configuration with environment variable overrides.
func DebugFromEnv() DebugConfig {
	cfg := DefaultDebug()

	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.Enabled = false
	}
	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.AllowExternal = os.Getenv("ALLOW_DEBUG_EXTERNAL") == "true"

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server  ServerConfig
	Sim     SimConfig
	Net     NetConfig
	Store   StoreConfig
	Economy EconomyConfig
	Debug   DebugConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server:  ServerFromEnv(),
		Sim:     SimFromEnv(),
		Net:     NetFromEnv(),
		Store:   StoreFromEnv(),
		Economy: EconomyFromEnv(),
		Debug:   DebugFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
