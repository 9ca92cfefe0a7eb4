package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"roach-arena/internal/api"
	"roach-arena/internal/config"
	"roach-arena/internal/game"
	"roach-arena/internal/store"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🪳 ================================")
	log.Println("🪳  ROACH ARENA - GO SERVER")
	log.Println("🪳 ================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	simCfg := appConfig.Sim
	storeCfg := appConfig.Store

	// Persistence
	st, err := openStore(storeCfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	persister := store.NewPersister(st, store.PersisterConfig{
		BufferSize: storeCfg.QueueSize,
		Workers:    storeCfg.Workers,
		JobTimeout: storeCfg.JobTimeout,
	})
	persister.OnResult = api.RecordPersistResult
	persister.Start()
	persister.CleanStaleSessions(storeCfg.SessionExpiry)

	// Create the world
	world := game.NewWorld(game.WorldConfig{
		TickInterval:      simCfg.TickInterval,
		GridSize:          simCfg.GridSize,
		NPCsPerRoom:       simCfg.NPCsPerRoom,
		Seed:              simCfg.Seed,
		SessionFlushTicks: storeCfg.SessionFlushTicks,
		RequirePayment:    appConfig.Economy.RequirePayment,
		Persister:         persister,
	})
	world.OnTick = api.RecordTick
	world.OnEvents = api.RecordGameEvents
	log.Printf("🎮 Config: %v tick, %dx%d rooms, %d NPCs per room",
		simCfg.TickInterval, simCfg.GridSize, simCfg.GridSize, simCfg.NPCsPerRoom)

	// Start event log
	if path := appConfig.Server.EventLogPath; path != "" {
		if err := world.StartEventLog(path); err != nil {
			log.Printf("⚠️ Event log disabled: %v", err)
		}
	}

	stopStats := make(chan struct{})
	api.StartStatsLoop(world, 5*time.Second, stopStats)

	// Start debug server
	debugServer := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       appConfig.Debug.Enabled,
		ListenAddr:    appConfig.Debug.ListenAddr,
		AllowExternal: appConfig.Debug.AllowExternal,
		BasicAuthUser: appConfig.Economy.AdminUser,
		BasicAuthPass: appConfig.Economy.AdminPass,
	})

	if appConfig.Economy.AdminUser == "" {
		log.Println("⚠️ ADMIN_USER/ADMIN_PASS not set - admin endpoints disabled")
	}

	netCfg := appConfig.Net
	server := api.NewServer(world, st, api.ServerConfig{
		Hub: api.HubConfig{
			MaxConnections:      netCfg.MaxConnections,
			MaxConnectionsPerIP: netCfg.MaxConnectionsPerIP,
			MessagesPerSecond:   netCfg.MessagesPerSecond,
			JoinGrace:           netCfg.JoinGrace,
			SendQueueSize:       netCfg.SendQueueSize,
			SessionExpiry:       storeCfg.SessionExpiry,
		},
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: float64(netCfg.HTTPRatePerSecond),
			Burst:             netCfg.HTTPBurst,
		},
		CORSOrigins: appConfig.Server.CORSOrigins,
		AdminUser:   appConfig.Economy.AdminUser,
		AdminPass:   appConfig.Economy.AdminPass,
	})

	world.Start()

	go func() {
		addr := ":" + strconv.Itoa(appConfig.Server.Port)
		log.Printf("🌐 Websocket endpoint: ws://localhost%s/ws", addr)
		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	if debugServer != nil {
		debugServer.Shutdown(ctx)
	}
	world.Stop()
	world.FlushSessions()
	persister.Stop()
	close(stopStats)
	world.StopEventLog()
	st.Close()
	log.Println("👋 Goodbye!")
}

// openStore selects the persistence backend.
func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.StorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Println("🐘 Using PostgreSQL store")
		return pg, nil
	default:
		log.Println("💾 Using in-memory store (nothing survives a restart)")
		return store.NewMemoryStore(), nil
	}
}
