package game

import (
	"math/rand"
	"time"
)

// Outbound message types.
const (
	MessageWelcome          = "welcome"
	MessageTick             = "tick"
	MessageRoomEnter        = "room_enter"
	MessageUpgradePurchased = "upgrade_purchased"
	MessageUpgradeFailed    = "upgrade_purchase_failed"
)

// Upgrade purchase failure reasons.
const (
	ReasonMaxed             = "maxed"
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonPaymentRequired   = "payment_required"
)

// Outbox delivers messages to one connection. Send must not block; it
// returns false when the message was dropped. Close disconnects the peer
// and must not block either; it is used when a newer connection takes over
// the same player.
type Outbox interface {
	Send(msg any) bool
	Close()
}

// WelcomeMessage is sent once when a player joins.
type WelcomeMessage struct {
	Type            string       `json:"type"`
	ID              string       `json:"id"`
	Token           string       `json:"token"`
	Name            string       `json:"name"`
	Room            string       `json:"room"`
	Snapshot        RoomState    `json:"snapshot"`
	Motel           *MotelState  `json:"motel"`
	GridSize        int          `json:"gridSize"`
	Upgrades        Upgrades     `json:"upgrades"`
	UpgradeDefs     []UpgradeDef `json:"upgradeDefs"`
	StompCooldownMs int64        `json:"stompCooldownMs"`
	Banked          float64      `json:"banked"`
}

// CursorState is another player's cursor in the same room.
type CursorState struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// PlayerSummary is the receiving player's own stats.
type PlayerSummary struct {
	ID              string   `json:"id"`
	Balance         float64  `json:"balance"`
	Banked          float64  `json:"banked"`
	HP              float64  `json:"hp"`
	LastInputSeq    int64    `json:"lastInputSeq"`
	Upgrades        Upgrades `json:"upgrades"`
	StompCooldownMs int64    `json:"stompCooldownMs"`
}

// TickMessage is the per-player state delta sent every tick.
type TickMessage struct {
	Type          string        `json:"type"`
	Tick          uint64        `json:"tick"`
	Room          RoomState     `json:"room"`
	Motel         *MotelState   `json:"motel"`
	MotelProgress float64       `json:"motelProgress"` // seconds
	Events        []Event       `json:"events"`
	Cursors       []CursorState `json:"cursors"`
	You           PlayerSummary `json:"you"`
}

// RoomEnterMessage carries the full snapshot of a room just entered.
type RoomEnterMessage struct {
	Type     string      `json:"type"`
	Room     string      `json:"room"`
	Snapshot RoomState   `json:"snapshot"`
	Motel    *MotelState `json:"motel"`
}

// UpgradePurchasedMessage confirms a purchase.
type UpgradePurchasedMessage struct {
	Type            string   `json:"type"`
	Upgrade         string   `json:"upgrade"`
	Level           int      `json:"level"`
	Cost            float64  `json:"cost"`
	Upgrades        Upgrades `json:"upgrades"`
	Balance         float64  `json:"balance"`
	Banked          float64  `json:"banked"`
	StompCooldownMs int64    `json:"stompCooldownMs"`
}

// UpgradeFailedMessage rejects a purchase.
type UpgradeFailedMessage struct {
	Type    string `json:"type"`
	Upgrade string `json:"upgrade"`
	Reason  string `json:"reason"`
}

func durationMs(d time.Duration) int64 {
	return d.Milliseconds()
}

// UpgradeDefList returns the upgrade table in display order.
func UpgradeDefList() []UpgradeDef {
	defs := make([]UpgradeDef, 0, len(UpgradeOrder))
	for _, key := range UpgradeOrder {
		defs = append(defs, UpgradeDefs[key])
	}
	return defs
}

var (
	nameAdjectives = []string{"Speedy", "Sneaky", "Giant", "Tiny", "Stinky", "Slimy", "Crunchy", "Greasy", "Fuzzy", "Crusty"}
	nameNouns      = []string{"Roach", "Bug", "Crawler", "Scuttler", "Skitter", "Creeper", "Muncher", "Nibbler", "Dasher", "Lurker"}
)

// RandomName returns an "Adjective Noun" display name. A nil rng uses the
// global source.
func RandomName(rng *rand.Rand) string {
	intn := rand.Intn
	if rng != nil {
		intn = rng.Intn
	}
	return nameAdjectives[intn(len(nameAdjectives))] + " " + nameNouns[intn(len(nameNouns))]
}
