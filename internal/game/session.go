package game

import (
	"time"

	"roach-arena/internal/store"
)

// Session is a connected player's registry entry. ID and Name never change
// after Join; every other field is owned by the World and only touched under
// its lock.
type Session struct {
	ID   string
	Name string

	Room     RoomKey
	Banked   float64
	Upgrades Upgrades // shared with the owned roach
	Paid     bool
	Kills    int
	Cursor   *Point

	stored    bool // backed by a store record
	out       Outbox
	lastStomp time.Time
	lastHeal  time.Time
	joinedAt  time.Time
}

// Token is the reconnect token handed to the client.
//
// NOTE: the token is the player id, which is public on the leaderboard and
// in room rosters. It resumes a session but is not a credential.
func (s *Session) Token() string {
	return s.ID
}

// JoinRequest carries everything the World needs to enrol a player. Player
// and Saved come from the store and are optional.
type JoinRequest struct {
	ID     string
	Name   string
	Out    Outbox
	Player *store.Player
	Saved  *store.Session
}

// summary builds the "you" block of a tick message.
func (s *Session) summary(roach *Roach) PlayerSummary {
	sum := PlayerSummary{
		ID:              s.ID,
		Banked:          round2(s.Banked),
		Upgrades:        s.Upgrades.Clone(),
		StompCooldownMs: durationMs(s.Upgrades.StompCooldown()),
	}
	if roach != nil {
		sum.Balance = round2(roach.Balance)
		sum.HP = round2(roach.HP)
		sum.LastInputSeq = roach.LastInputSeq
	}
	return sum
}

// persisted converts the live session to its store form.
func (s *Session) persisted(roach *Roach, now time.Time) store.Session {
	return store.Session{
		PlayerID:  s.ID,
		Room:      s.Room.String(),
		X:         roach.X,
		Y:         roach.Y,
		Balance:   roach.Balance,
		HP:        roach.HP,
		UpdatedAt: now,
	}
}
