package game

import "time"

// AuditType categorizes records written to the audit log.
type AuditType uint8

const (
	AuditJoin AuditType = iota + 1
	AuditLeave
	AuditKill
	AuditDeath
	AuditBank
	AuditPurchase
	AuditPaid
	AuditTransition
)

var auditTypeNames = map[AuditType]string{
	AuditJoin:       "join",
	AuditLeave:      "leave",
	AuditKill:       "kill",
	AuditDeath:      "death",
	AuditBank:       "bank",
	AuditPurchase:   "purchase",
	AuditPaid:       "paid",
	AuditTransition: "transition",
}

func (t AuditType) String() string {
	if name, ok := auditTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the type by name in JSON output.
func (t AuditType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// AuditRecord is one line of the append-only audit log.
type AuditRecord struct {
	Sequence  uint64    `json:"seq"`
	Type      AuditType `json:"type"`
	Tick      uint64    `json:"tick"`
	Timestamp int64     `json:"ts"` // unix ms
	PlayerID  string    `json:"playerId,omitempty"`
	Room      string    `json:"room,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// NewAuditRecord stamps a record with the current time.
func NewAuditRecord(t AuditType, tick uint64, playerID string, payload any) AuditRecord {
	return AuditRecord{
		Type:      t,
		Tick:      tick,
		Timestamp: time.Now().UnixMilli(),
		PlayerID:  playerID,
		Payload:   payload,
	}
}

// auditTypeFor maps a gameplay event to the audit category it is logged
// under. Hits and misses are not audited.
func auditTypeFor(e Event) (AuditType, bool) {
	switch e.Type {
	case EventStompKill:
		return AuditKill, true
	case EventPlayerDeath, EventBotKill:
		return AuditDeath, true
	case EventBank:
		return AuditBank, true
	}
	return 0, false
}
