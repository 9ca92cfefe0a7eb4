package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Inbound command types.
const (
	CommandInput      = "input"
	CommandStomp      = "stomp"
	CommandHeal       = "heal"
	CommandBuyUpgrade = "buy_upgrade"
	CommandReconnect  = "reconnect"
)

// Identity field limits.
const (
	MaxPlatformTypeLen = 32
	MaxPlatformIDLen   = 256
	MaxPlatformNameLen = 64
)

// ErrMalformed is returned for any inbound message that fails validation.
var ErrMalformed = errors.New("malformed command")

// Command is a validated inbound player command. The concrete types are
// InputCommand, StompCommand, HealCommand and BuyUpgradeCommand.
type Command interface {
	CommandType() string
}

// InputCommand reports client-predicted movement and the cursor position.
type InputCommand struct {
	Seq    int64
	State  ClientState
	Cursor *Point
}

// StompCommand requests an attack at a point.
type StompCommand struct {
	Seq  int64
	X, Y float64
}

// HealCommand spends currency for one hp.
type HealCommand struct{}

// BuyUpgradeCommand buys the next level of an upgrade track.
type BuyUpgradeCommand struct {
	Upgrade string
}

func (InputCommand) CommandType() string      { return CommandInput }
func (StompCommand) CommandType() string      { return CommandStomp }
func (HealCommand) CommandType() string       { return CommandHeal }
func (BuyUpgradeCommand) CommandType() string { return CommandBuyUpgrade }

// rawMessage is the loose JSON shape every inbound message is decoded into.
type rawMessage struct {
	Type         string   `json:"type"`
	Seq          *float64 `json:"seq"`
	X            *float64 `json:"x"`
	Y            *float64 `json:"y"`
	VX           *float64 `json:"vx"`
	VY           *float64 `json:"vy"`
	CursorX      *float64 `json:"cursorX"`
	CursorY      *float64 `json:"cursorY"`
	Upgrade      string   `json:"upgrade"`
	Token        string   `json:"token"`
	PlatformType string   `json:"platformType"`
	PlatformID   string   `json:"platformId"`
	PlatformName string   `json:"platformName"`
}

// ParseCommand decodes and validates one inbound message.
func ParseCommand(data []byte) (Command, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return raw.command()
}

func (raw rawMessage) command() (Command, error) {
	switch raw.Type {
	case CommandInput:
		seq, ok := parseSeq(raw.Seq, true)
		if !ok {
			return nil, fmt.Errorf("%w: input seq", ErrMalformed)
		}
		x, y, vx, vy, ok := required4(raw.X, raw.Y, raw.VX, raw.VY)
		if !ok {
			return nil, fmt.Errorf("%w: input state", ErrMalformed)
		}
		cmd := InputCommand{Seq: seq, State: ClientState{X: x, Y: y, VX: vx, VY: vy}}
		if raw.CursorX != nil && raw.CursorY != nil && isFinite(*raw.CursorX, *raw.CursorY) {
			cmd.Cursor = &Point{X: *raw.CursorX, Y: *raw.CursorY}
		}
		return cmd, nil

	case CommandStomp:
		if raw.X == nil || raw.Y == nil || !isFinite(*raw.X, *raw.Y) {
			return nil, fmt.Errorf("%w: stomp point", ErrMalformed)
		}
		seq, ok := parseSeq(raw.Seq, false)
		if !ok {
			return nil, fmt.Errorf("%w: stomp seq", ErrMalformed)
		}
		return StompCommand{Seq: seq, X: *raw.X, Y: *raw.Y}, nil

	case CommandHeal:
		return HealCommand{}, nil

	case CommandBuyUpgrade:
		if _, ok := UpgradeDefs[raw.Upgrade]; !ok {
			return nil, fmt.Errorf("%w: unknown upgrade %q", ErrMalformed, raw.Upgrade)
		}
		return BuyUpgradeCommand{Upgrade: raw.Upgrade}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, raw.Type)
}

func parseSeq(v *float64, required bool) (int64, bool) {
	if v == nil {
		return 0, !required
	}
	f := *v
	if !isFinite(f) || f < 0 || f != math.Trunc(f) || f > math.MaxInt64/2 {
		return 0, false
	}
	return int64(f), true
}

func required4(a, b, c, d *float64) (float64, float64, float64, float64, bool) {
	if a == nil || b == nil || c == nil || d == nil {
		return 0, 0, 0, 0, false
	}
	if !isFinite(*a, *b, *c, *d) {
		return 0, 0, 0, 0, false
	}
	return *a, *b, *c, *d, true
}

// Hello is the identity carried by a connection's first message.
type Hello struct {
	Token        string // reconnect token, empty for a new player
	PlatformType string
	PlatformID   string
	PlatformName string
	// Command is the first message parsed as a regular command, nil for a
	// reconnect or anything that is not a valid command.
	Command Command
}

// HasPlatform reports whether a linked external identity was supplied.
func (h Hello) HasPlatform() bool {
	return h.PlatformType != "" && h.PlatformID != ""
}

// ParseHello extracts identity from the first message. A message that is not
// valid JSON yields an empty Hello; the player then joins anonymously.
func ParseHello(data []byte) Hello {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Hello{}
	}

	h := Hello{}
	if raw.PlatformType != "" && raw.PlatformID != "" {
		h.PlatformType = truncate(raw.PlatformType, MaxPlatformTypeLen)
		h.PlatformID = truncate(raw.PlatformID, MaxPlatformIDLen)
		h.PlatformName = truncate(raw.PlatformName, MaxPlatformNameLen)
	}
	if raw.Type == CommandReconnect {
		h.Token = truncate(raw.Token, MaxPlatformIDLen)
		return h
	}
	if cmd, err := raw.command(); err == nil {
		h.Command = cmd
	}
	return h
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
