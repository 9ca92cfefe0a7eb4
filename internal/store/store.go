// Package store persists player records and resumable sessions.
//
// The simulation never calls a Store directly from the tick; writes are
// routed through a Persister so store latency cannot stall the loop.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a player or session does not exist.
var ErrNotFound = errors.New("store: not found")

// UpgradeKeys lists the upgrade tracks persisted per player, in column order.
var UpgradeKeys = []string{
	"bootSize",
	"multiStomp",
	"rateOfFire",
	"goldMagnet",
	"wallBounce",
	"idleIncome",
	"shellArmor",
}

// Player is a durable player record.
type Player struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	BankedBalance float64        `json:"bankedBalance"`
	TotalKills    int            `json:"totalKills"`
	Upgrades      map[string]int `json:"upgrades"`
	Paid          bool           `json:"paid"`
	PlatformType  string         `json:"platformType,omitempty"`
	PlatformID    string         `json:"platformId,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	LastSeen      time.Time      `json:"lastSeen"`
}

// Session is the resumable in-world state of a player.
type Session struct {
	PlayerID  string    `json:"playerId"`
	Room      string    `json:"room"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Balance   float64   `json:"balance"`
	HP        float64   `json:"hp"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is the persistence collaborator.
type Store interface {
	CreatePlayer(ctx context.Context, name string) (Player, error)
	GetPlayer(ctx context.Context, id string) (Player, error)
	GetPlayerByPlatform(ctx context.Context, platformType, platformID string) (Player, error)
	LinkPlatform(ctx context.Context, playerID, platformType, platformID string) error

	// GetSession returns the saved session if it is younger than maxAge.
	GetSession(ctx context.Context, playerID string, maxAge time.Duration) (Session, error)
	SaveSession(ctx context.Context, s Session) error
	BulkSaveSessions(ctx context.Context, sessions []Session) error
	CleanStaleSessions(ctx context.Context, maxAge time.Duration) (int64, error)

	UpdateBankedBalance(ctx context.Context, playerID string, banked float64) error
	UpdateUpgrades(ctx context.Context, playerID string, upgrades map[string]int) error
	IncrementKills(ctx context.Context, playerID string, n int) error
	SetPaid(ctx context.Context, playerID string, paid bool) error

	// TopBanked returns players ordered by banked balance, highest first.
	TopBanked(ctx context.Context, limit int) ([]Player, error)

	Close()
}

func copyUpgrades(in map[string]int) map[string]int {
	out := make(map[string]int, len(UpgradeKeys))
	for _, k := range UpgradeKeys {
		out[k] = in[k]
	}
	return out
}
