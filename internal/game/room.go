package game

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// RoomKey is a grid coordinate. It renders as "x,y" on the wire.
type RoomKey struct {
	X, Y int
}

func (k RoomKey) String() string {
	return strconv.Itoa(k.X) + "," + strconv.Itoa(k.Y)
}

// ParseRoomKey parses the "x,y" wire form.
func ParseRoomKey(s string) (RoomKey, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return RoomKey{}, fmt.Errorf("room key %q: missing comma", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return RoomKey{}, fmt.Errorf("room key %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return RoomKey{}, fmt.Errorf("room key %q: %w", s, err)
	}
	return RoomKey{X: x, Y: y}, nil
}

// InGrid reports whether the key lies inside a size x size grid.
func (k RoomKey) InGrid(size int) bool {
	return k.X >= 0 && k.Y >= 0 && k.X < size && k.Y < size
}

// Stomp is a queued player attack.
type Stomp struct {
	PlayerID string
	X, Y     float64
	Seq      int64
	Upgrades Upgrades
}

// StompOutcome summarizes one stomp resolution.
type StompOutcome struct {
	Events     []Event
	Zones      int
	DirectHits int
	SplashHits int
	Kills      int
}

// Transition describes a room-boundary crossing.
type Transition struct {
	Dir string // left, right, up, down
	To  RoomKey
}

// Room owns the roaches and bots of one grid cell.
type Room struct {
	Key     RoomKey
	Roaches []*Roach
	Bots    []*HouseBot

	pendingStomps []Stomp
	deferred      deferredQueue
	rng           *rand.Rand
	tickSeconds   float64
}

// NewRoom creates an empty room. The rng is shared with the scheduler and
// must only be used from the tick goroutine.
func NewRoom(key RoomKey, rng *rand.Rand) *Room {
	return &Room{
		Key:         key,
		rng:         rng,
		tickSeconds: DefaultTickInterval.Seconds(),
	}
}

// SetTickInterval sets the step length used for income accrual.
func (r *Room) SetTickInterval(d time.Duration) {
	if d > 0 {
		r.tickSeconds = d.Seconds()
	}
}

// SeedNPCs adds n fresh NPCs.
func (r *Room) SeedNPCs(n int) {
	for i := 0; i < n; i++ {
		r.Roaches = append(r.Roaches, NewNPC(r.rng))
	}
}

// Roach finds a roach by id.
func (r *Room) Roach(id string) *Roach {
	for _, roach := range r.Roaches {
		if roach.ID == id {
			return roach
		}
	}
	return nil
}

// AddRoach appends a roach to the roster.
func (r *Room) AddRoach(roach *Roach) {
	r.Roaches = append(r.Roaches, roach)
}

// RemoveRoach drops a roach from the roster and returns it, or nil.
func (r *Room) RemoveRoach(id string) *Roach {
	for i, roach := range r.Roaches {
		if roach.ID == id {
			r.Roaches = append(r.Roaches[:i], r.Roaches[i+1:]...)
			return roach
		}
	}
	return nil
}

// NPCCount returns the number of non-player roaches, dead or alive.
func (r *Room) NPCCount() int {
	n := 0
	for _, roach := range r.Roaches {
		if !roach.IsPlayer {
			n++
		}
	}
	return n
}

// PlayerCount returns the number of player roaches.
func (r *Room) PlayerCount() int {
	return len(r.Roaches) - r.NPCCount()
}

// Wealth is the total balance of every roach in the room.
func (r *Room) Wealth() float64 {
	total := 0.0
	for _, roach := range r.Roaches {
		total += roach.Balance
	}
	return total
}

// TargetBotCount is one bot per BotsPerWealth of room wealth, within bounds.
func (r *Room) TargetBotCount() int {
	n := int(math.Floor(r.Wealth() / BotsPerWealth))
	return clampInt(n, MinBotsPerRoom, MaxBotsPerRoom)
}

// AdjustBots grows or shrinks the bot population toward TargetBotCount.
func (r *Room) AdjustBots() {
	target := r.TargetBotCount()
	for len(r.Bots) < target {
		r.Bots = append(r.Bots, NewHouseBot(r.rng))
	}
	if len(r.Bots) > target {
		r.Bots = r.Bots[:target]
	}
}

// QueueStomp enqueues a stomp for the next simulate step.
func (r *Room) QueueStomp(s Stomp) {
	r.pendingStomps = append(r.pendingStomps, s)
}

// Simulate advances the room one tick: deferred actions, player validation,
// NPC steering, stomps, bots, income and NPC top-up, in that order.
func (r *Room) Simulate(now time.Time, cursors []Point) []Event {
	r.runDeferred(now)

	var events []Event

	for _, roach := range r.Roaches {
		if roach.IsPlayer {
			roach.ApplyClientState()
		}
	}

	for _, roach := range r.Roaches {
		roach.Update(r.Bots, cursors, r.rng)
	}

	for _, s := range r.pendingStomps {
		events = append(events, r.ResolveStomp(now, s).Events...)
	}
	r.pendingStomps = r.pendingStomps[:0]

	for _, bot := range r.Bots {
		strike := bot.Update(now, r.Roaches, r.rng)
		events = append(events, strike.Events...)
		for _, victim := range strike.Killed {
			r.scheduleAfterDeath(now, victim)
		}
	}

	r.accrueIncome()

	if r.rng.Float64() < NPCSpawnChance && r.NPCCount() < MaxNPCsPerRoom {
		r.Roaches = append(r.Roaches, NewNPC(r.rng))
	}

	return events
}

func (r *Room) accrueIncome() {
	perTick := IncomeRate * r.tickSeconds
	for _, roach := range r.Roaches {
		if roach.IsDead {
			continue
		}
		if roach.IsPlayer {
			roach.Balance += perTick*roach.Upgrades.GoldMultiplier() + roach.Upgrades.IdleIncome()*r.tickSeconds
		} else {
			roach.Balance += perTick
		}
	}
}

// ResolveStomp applies one stomp across all of its impact zones. A roach is
// damaged at most once per stomp, and each zone lands at most one direct hit.
func (r *Room) ResolveStomp(now time.Time, s Stomp) StompOutcome {
	upgrades := s.Upgrades
	scale := upgrades.BootScale()
	bootW, bootH := BootWidth*scale, BootHeight*scale
	zones := upgrades.StompZones(s.X, s.Y)
	stomper := r.Roach(s.PlayerID)
	rewardMult := upgrades.GoldMultiplier()

	out := StompOutcome{Zones: len(zones)}
	hit := make(map[string]bool)

	damage := func(victim *Roach, x, y float64, direct bool) {
		hit[victim.ID] = true
		if direct {
			out.DirectHits++
		} else {
			out.SplashHits++
		}

		if !victim.Hit() {
			out.Events = append(out.Events, Event{
				Type: EventStompHit, StomperID: s.PlayerID, VictimID: victim.ID,
				HP: round2(victim.HP), X: round1(x), Y: round1(y), Direct: direct,
			})
			return
		}

		out.Kills++
		reward := victim.Balance * KillReward * rewardMult
		if stomper != nil {
			stomper.Balance += reward
		}
		out.Events = append(out.Events, Event{
			Type: EventStompKill, StomperID: s.PlayerID, VictimID: victim.ID,
			Reward: round2(reward), X: round1(x), Y: round1(y), Direct: direct,
		})

		if victim.IsPlayer {
			lost := victim.Balance * victim.Upgrades.DeathPenalty()
			victim.Balance -= lost
			out.Events = append(out.Events, Event{
				Type: EventPlayerDeath, VictimID: victim.ID, StomperID: s.PlayerID, Lost: round2(lost),
			})
		}
		victim.Die()
		r.scheduleAfterDeath(now, victim)
	}

	eligible := func(roach *Roach) bool {
		return roach.ID != s.PlayerID && !roach.IsDead && !hit[roach.ID]
	}

	for _, zone := range zones {
		box := BootHitbox(zone.X, zone.Y, bootW, bootH)
		for _, roach := range r.Roaches {
			if !eligible(roach) {
				continue
			}
			if cx, cy := roach.Center(); box.Contains(cx, cy) {
				damage(roach, zone.X, zone.Y, true)
				break
			}
		}

		aoeX, aoeY := zone.X, zone.Y-bootH*BootAoEFraction
		for _, roach := range r.Roaches {
			if !eligible(roach) {
				continue
			}
			cx, cy := roach.Center()
			d := distance(aoeX, aoeY, cx, cy)
			if d < StompAoERadius {
				if r.rng.Float64() < PlayerAoEHitChance*(1-d/StompAoERadius) {
					damage(roach, roach.X, roach.Y, false)
				}
				roach.Scatter(aoeX, aoeY)
			} else if d < StompScatterRadius {
				roach.Scatter(aoeX, aoeY)
			}
		}
	}

	if len(hit) == 0 {
		out.Events = append(out.Events, Event{
			Type: EventStompMiss, StomperID: s.PlayerID, X: round1(s.X), Y: round1(s.Y),
		})
	}
	return out
}

// scheduleAfterDeath queues NPC removal or player respawn for a dead roach.
func (r *Room) scheduleAfterDeath(now time.Time, victim *Roach) {
	if victim.IsPlayer {
		r.deferred.schedule(now.Add(PlayerRespawnDelay), deferRespawn, victim.ID)
	} else {
		r.deferred.schedule(now.Add(DeathRemovalDelay), deferRemoveNPC, victim.ID)
	}
}

// runDeferred applies due actions, re-validating each against the roster.
func (r *Room) runDeferred(now time.Time) {
	for _, a := range r.deferred.due(now) {
		switch a.Kind {
		case deferRemoveNPC:
			roach := r.Roach(a.RoachID)
			if roach == nil || roach.IsPlayer || !roach.IsDead {
				continue
			}
			r.RemoveRoach(a.RoachID)
			delay := NPCReplaceDelayMin + time.Duration(r.rng.Int63n(int64(NPCReplaceDelaySpan)))
			r.deferred.schedule(a.At.Add(delay), deferSpawnNPC, "")
		case deferSpawnNPC:
			if r.NPCCount() < MaxNPCsPerRoom {
				r.Roaches = append(r.Roaches, NewNPC(r.rng))
			}
		case deferRespawn:
			roach := r.Roach(a.RoachID)
			if roach == nil || !roach.IsDead {
				continue
			}
			roach.Respawn(r.rng)
		}
	}
}

// CheckTransition reports a crossing into a neighbouring room. At the outer
// edge of the grid the roach is clamped and bounced instead, scaled by its
// wall-bounce level.
func (r *Room) CheckTransition(roach *Roach, wallBounceLevel, gridSize int) (Transition, bool) {
	k := r.Key
	switch {
	case roach.X < -TransitionMargin && k.X > 0:
		return Transition{Dir: "left", To: RoomKey{k.X - 1, k.Y}}, true
	case roach.X > ContainerWidth+TransitionMargin && k.X < gridSize-1:
		return Transition{Dir: "right", To: RoomKey{k.X + 1, k.Y}}, true
	case roach.Y < -TransitionMargin && k.Y > 0:
		return Transition{Dir: "up", To: RoomKey{k.X, k.Y - 1}}, true
	case roach.Y > ContainerHeight+TransitionMargin && k.Y < gridSize-1:
		return Transition{Dir: "down", To: RoomKey{k.X, k.Y + 1}}, true
	}

	strength := Upgrades{UpgradeWallBounce: wallBounceLevel}.WallBounceStrength()
	impulse := 0.0
	if wallBounceLevel > 0 {
		impulse = EdgeImpulse
	}

	if roach.X < -TransitionMargin {
		roach.X = -TransitionMargin
		roach.VX = math.Abs(roach.VX)*strength + impulse
	}
	if roach.X > ContainerWidth+TransitionMargin {
		roach.X = ContainerWidth + TransitionMargin
		roach.VX = -math.Abs(roach.VX)*strength - impulse
	}
	if roach.Y < -TransitionMargin {
		roach.Y = -TransitionMargin
		roach.VY = math.Abs(roach.VY)*strength + impulse
	}
	if roach.Y > ContainerHeight+TransitionMargin {
		roach.Y = ContainerHeight + TransitionMargin
		roach.VY = -math.Abs(roach.VY)*strength - impulse
	}
	return Transition{}, false
}

// PlaceAfterTransition puts a roach on the edge opposite to its exit.
func PlaceAfterTransition(roach *Roach, dir string) {
	switch dir {
	case "left":
		roach.X = ContainerWidth - RoachWidth - TransitionInset
	case "right":
		roach.X = TransitionInset
	case "up":
		roach.Y = ContainerHeight - RoachHeight - TransitionInset
	case "down":
		roach.Y = TransitionInset
	}
}

// RoomState is the wire form of a room roster.
type RoomState struct {
	Key     string          `json:"key"`
	Roaches []RoachState    `json:"roaches"`
	Bots    []HouseBotState `json:"bots"`
}

// State returns the wire form.
func (r *Room) State() RoomState {
	st := RoomState{
		Key:     r.Key.String(),
		Roaches: make([]RoachState, 0, len(r.Roaches)),
		Bots:    make([]HouseBotState, 0, len(r.Bots)),
	}
	for _, roach := range r.Roaches {
		st.Roaches = append(st.Roaches, roach.State())
	}
	for _, bot := range r.Bots {
		st.Bots = append(st.Bots, bot.State())
	}
	return st
}
