package game

import (
	"sync/atomic"
	"time"
)

// ResourceLimits caps the slices carried by a world snapshot.
type ResourceLimits struct {
	MaxRooms   int
	MaxLeaders int
}

// DefaultLimits fits the default grid with room to spare.
var DefaultLimits = ResourceLimits{
	MaxRooms:   DefaultGridSize * DefaultGridSize,
	MaxLeaders: 10,
}

// RoomSummary is the population of one room at snapshot time.
type RoomSummary struct {
	Key     string  `json:"key"`
	Players int     `json:"players"`
	NPCs    int     `json:"npcs"`
	Bots    int     `json:"bots"`
	Wealth  float64 `json:"wealth"`
}

// LeaderEntry is one row of the live leaderboard.
type LeaderEntry struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Room    string  `json:"room"`
	Balance float64 `json:"balance"`
	Banked  float64 `json:"banked"`
	Total   float64 `json:"total"`
	Kills   int     `json:"kills"`
}

// WorldSnapshot is an immutable summary of the world published each tick
// for the HTTP surface.
type WorldSnapshot struct {
	Sequence   uint64    `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`
	TickNumber uint64    `json:"tick"`

	Rooms   []RoomSummary `json:"rooms"`
	Motel   *MotelState   `json:"motel"`
	Leaders []LeaderEntry `json:"leaders"`

	PlayerCount int     `json:"playerCount"`
	RoachCount  int     `json:"roachCount"`
	BotCount    int     `json:"botCount"`
	TotalWealth float64 `json:"totalWealth"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *WorldSnapshot) Clone() *WorldSnapshot {
	out := *s
	out.Rooms = make([]RoomSummary, len(s.Rooms))
	copy(out.Rooms, s.Rooms)
	out.Leaders = make([]LeaderEntry, len(s.Leaders))
	copy(out.Leaders, s.Leaders)
	if s.Motel != nil {
		m := *s.Motel
		out.Motel = &m
	}
	return &out
}

// SnapshotPool pre-allocates snapshots to avoid GC pressure.
// Uses triple buffering: the tick writes one slot while readers hold another.
type SnapshotPool struct {
	snapshots [3]WorldSnapshot
	limits    ResourceLimits
	writeIdx  uint32 // atomic - producer index
	readIdx   uint32 // atomic - consumer index
	sequence  uint64 // atomic - monotonic sequence
}

// NewSnapshotPool creates a pool with pre-allocated slices.
func NewSnapshotPool(limits ResourceLimits) *SnapshotPool {
	pool := &SnapshotPool{limits: limits}

	for i := 0; i < 3; i++ {
		pool.snapshots[i] = WorldSnapshot{
			Rooms:   make([]RoomSummary, 0, limits.MaxRooms),
			Leaders: make([]LeaderEntry, 0, limits.MaxLeaders),
		}
	}

	return pool
}

// AcquireWrite gets the next write slot (producer only, called from the tick).
// Returns a snapshot with reset slices but preserved capacity.
func (p *SnapshotPool) AcquireWrite() *WorldSnapshot {
	idx := atomic.AddUint32(&p.writeIdx, 1) % 3
	snap := &p.snapshots[idx]

	snap.Rooms = snap.Rooms[:0]
	snap.Leaders = snap.Leaders[:0]
	snap.Motel = nil
	snap.PlayerCount, snap.RoachCount, snap.BotCount = 0, 0, 0
	snap.TotalWealth = 0

	snap.Sequence = atomic.AddUint64(&p.sequence, 1)
	snap.Timestamp = time.Now()

	return snap
}

// PublishWrite marks the write complete and advances the read pointer.
func (p *SnapshotPool) PublishWrite() {
	atomic.StoreUint32(&p.readIdx, atomic.LoadUint32(&p.writeIdx))
}

// AcquireRead gets the latest complete snapshot.
func (p *SnapshotPool) AcquireRead() *WorldSnapshot {
	idx := atomic.LoadUint32(&p.readIdx) % 3
	return &p.snapshots[idx]
}

// GetLimits returns the resource limits.
func (p *SnapshotPool) GetLimits() ResourceLimits {
	return p.limits
}
