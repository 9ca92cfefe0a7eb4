package game

// Event types delivered to clients inside tick messages.
const (
	EventStompHit    = "stomp_hit"
	EventStompKill   = "stomp_kill"
	EventStompMiss   = "stomp_miss"
	EventPlayerDeath = "player_death"
	EventBotStomp    = "bot_stomp"
	EventBotHit      = "bot_hit"
	EventBotKill     = "bot_kill"
	EventBank        = "bank"
	EventBankCancel  = "bank_cancel"
)

// Event is a gameplay occurrence produced during a tick.
type Event struct {
	Type        string  `json:"type"`
	Room        string  `json:"room,omitempty"`
	PlayerID    string  `json:"playerId,omitempty"`
	StomperID   string  `json:"stomperId,omitempty"`
	VictimID    string  `json:"victimId,omitempty"`
	BotID       string  `json:"botId,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	HP          float64 `json:"hp,omitempty"`
	Reward      float64 `json:"reward,omitempty"`
	Lost        float64 `json:"lost,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	TotalBanked float64 `json:"totalBanked,omitempty"`
	Direct      bool    `json:"direct,omitempty"`
}

// Involves reports whether id is a participant of the event.
func (e Event) Involves(id string) bool {
	return id != "" && (e.PlayerID == id || e.VictimID == id || e.StomperID == id)
}

// VisibleTo reports whether a player in room should receive the event.
func (e Event) VisibleTo(playerID, room string) bool {
	return e.Room == room || e.Involves(playerID)
}
