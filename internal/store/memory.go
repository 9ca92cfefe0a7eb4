package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Data does not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	players  map[string]Player
	sessions map[string]Session
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players:  make(map[string]Player),
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

func (m *MemoryStore) CreatePlayer(_ context.Context, name string) (Player, error) {
	now := m.now()
	p := Player{
		ID:        uuid.New().String(),
		Name:      name,
		Upgrades:  copyUpgrades(nil),
		CreatedAt: now,
		LastSeen:  now,
	}

	m.mu.Lock()
	m.players[p.ID] = p
	m.mu.Unlock()

	return clonePlayer(p), nil
}

func (m *MemoryStore) GetPlayer(_ context.Context, id string) (Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.players[id]
	if !ok {
		return Player{}, ErrNotFound
	}
	return clonePlayer(p), nil
}

func (m *MemoryStore) GetPlayerByPlatform(_ context.Context, platformType, platformID string) (Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.players {
		if p.PlatformType == platformType && p.PlatformID == platformID {
			return clonePlayer(p), nil
		}
	}
	return Player{}, ErrNotFound
}

func (m *MemoryStore) LinkPlatform(_ context.Context, playerID, platformType, platformID string) error {
	return m.updatePlayer(playerID, func(p *Player) {
		p.PlatformType = platformType
		p.PlatformID = platformID
	})
}

func (m *MemoryStore) GetSession(_ context.Context, playerID string, maxAge time.Duration) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[playerID]
	if !ok || m.now().Sub(s.UpdatedAt) > maxAge {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) SaveSession(ctx context.Context, s Session) error {
	return m.BulkSaveSessions(ctx, []Session{s})
}

func (m *MemoryStore) BulkSaveSessions(_ context.Context, sessions []Session) error {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range sessions {
		s.UpdatedAt = now
		m.sessions[s.PlayerID] = s
	}
	return nil
}

func (m *MemoryStore) CleanStaleSessions(_ context.Context, maxAge time.Duration) (int64, error) {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) UpdateBankedBalance(_ context.Context, playerID string, banked float64) error {
	return m.updatePlayer(playerID, func(p *Player) { p.BankedBalance = banked })
}

func (m *MemoryStore) UpdateUpgrades(_ context.Context, playerID string, upgrades map[string]int) error {
	return m.updatePlayer(playerID, func(p *Player) { p.Upgrades = copyUpgrades(upgrades) })
}

func (m *MemoryStore) IncrementKills(_ context.Context, playerID string, n int) error {
	return m.updatePlayer(playerID, func(p *Player) { p.TotalKills += n })
}

func (m *MemoryStore) SetPaid(_ context.Context, playerID string, paid bool) error {
	return m.updatePlayer(playerID, func(p *Player) { p.Paid = paid })
}

func (m *MemoryStore) TopBanked(_ context.Context, limit int) ([]Player, error) {
	m.mu.RLock()
	out := make([]Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, clonePlayer(p))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BankedBalance != out[j].BankedBalance {
			return out[i].BankedBalance > out[j].BankedBalance
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() {}

func (m *MemoryStore) updatePlayer(id string, fn func(p *Player)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[id]
	if !ok {
		return ErrNotFound
	}
	fn(&p)
	p.LastSeen = m.now()
	m.players[id] = p
	return nil
}

func clonePlayer(p Player) Player {
	p.Upgrades = copyUpgrades(p.Upgrades)
	return p
}
