package game

import (
	"math/rand"
	"sort"
	"time"
)

// Motel is the roaming bank. X/Y is the top-left of its square footprint.
// It is always hosted somewhere; relocation is instantaneous.
type Motel struct {
	Room        RoomKey
	X, Y        float64
	Active      bool
	DespawnTime time.Time

	progress map[string]time.Duration
	keys     []RoomKey
	rng      *rand.Rand
	step     time.Duration
}

// NewMotel creates an inactive motel that can be hosted by any of keys.
// It activates on the first Update.
func NewMotel(keys []RoomKey, rng *rand.Rand) *Motel {
	return &Motel{
		progress: make(map[string]time.Duration),
		keys:     keys,
		rng:      rng,
		step:     DefaultTickInterval,
	}
}

// SetTickInterval sets how much progress one tick inside the catchment adds.
func (m *Motel) SetTickInterval(d time.Duration) {
	if d > 0 {
		m.step = d
	}
}

// relocate moves the motel to a random room and clears all progress.
func (m *Motel) relocate(now time.Time) {
	clear(m.progress)
	if len(m.keys) == 0 {
		m.Active = false
		return
	}
	m.Room = m.keys[m.rng.Intn(len(m.keys))]
	m.X = MotelMinX + m.rng.Float64()*MotelRangeX
	m.Y = MotelMinY + m.rng.Float64()*MotelRangeY
	m.Active = true
	m.DespawnTime = now.Add(MotelStayDuration)
}

// Center returns the centre of the footprint.
func (m *Motel) Center() (float64, float64) {
	return m.X + MotelSize/2, m.Y + MotelSize/2
}

// Progress returns how long the player has been saving.
func (m *Motel) Progress(playerID string) time.Duration {
	return m.progress[playerID]
}

// Update advances the motel one tick. It emits at most one bank event per
// hosting, and one cancel event for each player whose progress is lost.
// The bank event's Amount is the player's wallet; the caller moves it.
func (m *Motel) Update(now time.Time, rooms map[RoomKey]*Room) []Event {
	if !m.Active || !now.Before(m.DespawnTime) {
		m.relocate(now)
	}
	if !m.Active {
		return nil
	}
	room, ok := rooms[m.Room]
	if !ok {
		return nil
	}

	var events []Event
	mx, my := m.Center()
	inside := make(map[string]bool)

	for _, roach := range room.Roaches {
		if !roach.IsPlayer || roach.IsDead {
			continue
		}
		cx, cy := roach.Center()
		if distance(cx, cy, mx, my) >= MotelSize/2 {
			continue
		}
		inside[roach.ID] = true
		m.progress[roach.ID] += m.step
		if m.progress[roach.ID] >= MotelSaveTime {
			events = append(events, Event{
				Type:     EventBank,
				Room:     m.Room.String(),
				PlayerID: roach.ID,
				Amount:   roach.Balance,
			})
			m.relocate(now)
			return events
		}
	}

	var lost []string
	for id := range m.progress {
		if !inside[id] {
			lost = append(lost, id)
		}
	}
	sort.Strings(lost)
	for _, id := range lost {
		delete(m.progress, id)
		events = append(events, Event{Type: EventBankCancel, PlayerID: id})
	}
	return events
}

// MotelState is the wire form of the motel.
type MotelState struct {
	Room        string  `json:"room"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Active      bool    `json:"active"`
	DespawnTime int64   `json:"despawnTime"` // unix ms
}

// State returns the wire form, or nil while inactive.
func (m *Motel) State() *MotelState {
	if !m.Active {
		return nil
	}
	return &MotelState{
		Room:        m.Room.String(),
		X:           round1(m.X),
		Y:           round1(m.Y),
		Active:      true,
		DespawnTime: m.DespawnTime.UnixMilli(),
	}
}
