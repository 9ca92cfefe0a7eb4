package game

import (
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
)

var entitySeq atomic.Uint64

// nextEntityID returns a process-unique id with the given prefix.
func nextEntityID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, entitySeq.Add(1))
}

// ClientState is a client-predicted movement report awaiting validation.
type ClientState struct {
	X, Y   float64
	VX, VY float64
}

// Point is a plain 2D position (cursor or impact point).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Roach is a player-controlled or autonomous entity.
// X/Y is the top-left corner of the sprite box.
type Roach struct {
	ID       string
	Name     string
	X, Y     float64
	VX, VY   float64
	HP       float64
	Balance  float64
	IsPlayer bool
	IsDead   bool

	// Player-only state
	LastInputSeq int64
	Upgrades     Upgrades
	pending      *ClientState
}

// NewNPC creates an autonomous roach at a random position.
func NewNPC(rng *rand.Rand) *Roach {
	r := &Roach{
		ID:      nextEntityID("npc"),
		Name:    "roach",
		HP:      BaseHP,
		Balance: rng.Float64() * NPCStartBalanceMax,
	}
	r.placeRandomly(rng)
	return r
}

// NewPlayerRoach creates the roach owned by a player session.
func NewPlayerRoach(id, name string, upgrades Upgrades, rng *rand.Rand) *Roach {
	r := &Roach{
		ID:       id,
		Name:     name,
		HP:       BaseHP,
		IsPlayer: true,
		Upgrades: upgrades,
	}
	r.placeRandomly(rng)
	return r
}

func (r *Roach) placeRandomly(rng *rand.Rand) {
	r.X = rng.Float64() * (ContainerWidth - RoachWidth)
	r.Y = rng.Float64() * (ContainerHeight - RoachHeight)
	r.VX = (rng.Float64() - 0.5) * 2
	r.VY = (rng.Float64() - 0.5) * 2
}

// Center returns the centre of the sprite box.
func (r *Roach) Center() (float64, float64) {
	return r.X + RoachWidth/2, r.Y + RoachHeight/2
}

// Speed returns the class base speed minus the wealth penalty.
func (r *Roach) Speed() float64 {
	base := NPCBaseSpeed
	if r.IsPlayer {
		base = PlayerBaseSpeed
	}
	penalty := math.Min(r.Balance*WealthSpeedPenaltyRate, WealthSpeedPenaltyMax)
	return math.Max(MinSpeed, base-penalty)
}

// SetPending queues a client-reported state. Stale sequence numbers are
// ignored and reported as false.
func (r *Roach) SetPending(seq int64, state ClientState) bool {
	if seq < r.LastInputSeq {
		return false
	}
	r.LastInputSeq = seq
	r.pending = &state
	return true
}

// HasPending reports whether a client state is waiting for validation.
func (r *Roach) HasPending() bool {
	return r.pending != nil
}

// ApplyClientState validates and accepts the pending client state.
// Violations are corrected by clamping and sliding, never rejected outright,
// except for non-finite input which is dropped.
func (r *Roach) ApplyClientState() {
	p := r.pending
	r.pending = nil
	if p == nil || r.IsDead {
		return
	}
	if !isFinite(p.X, p.Y, p.VX, p.VY) {
		return
	}

	maxSpeed := r.Speed() * VelocityTolerance
	vx, vy := p.VX, p.VY
	if mag := math.Hypot(vx, vy); mag > maxSpeed {
		scale := maxSpeed / mag
		vx *= scale
		vy *= scale
	}

	x := clamp(p.X, -PositionOvershoot, ContainerWidth+PositionOvershoot)
	y := clamp(p.Y, -PositionOvershoot, ContainerHeight+PositionOvershoot)

	dx, dy := x-r.X, y-r.Y
	maxDist := maxSpeed * MaxSlideMultiplier
	if d := math.Hypot(dx, dy); d > maxDist {
		r.X += dx / d * maxDist
		r.Y += dy / d * maxDist
	} else {
		r.X, r.Y = x, y
	}
	r.VX, r.VY = vx, vy
}

// Update steps an NPC: random drift, flee from cursors and bots, then move
// and bounce off the walls.
func (r *Roach) Update(bots []*HouseBot, cursors []Point, rng *rand.Rand) {
	if r.IsDead || r.IsPlayer {
		return
	}

	r.VX += (rng.Float64() - 0.5) * 2 * NPCJitter
	r.VY += (rng.Float64() - 0.5) * 2 * NPCJitter

	cx, cy := r.Center()
	for _, c := range cursors {
		r.flee(cx, cy, c.X, c.Y, CursorFleeRadius, CursorFleeForce)
	}
	for _, b := range bots {
		r.flee(cx, cy, b.X, b.Y, BotFleeRadius, BotFleeForce)
	}

	speed := r.Speed()
	if mag := math.Hypot(r.VX, r.VY); mag > speed {
		r.VX = r.VX / mag * speed
		r.VY = r.VY / mag * speed
	}

	r.X += r.VX
	r.Y += r.VY

	maxX := ContainerWidth - RoachWidth - WallInset
	maxY := ContainerHeight - RoachHeight - WallInset
	if r.X < WallInset {
		r.X = WallInset
		r.VX = math.Abs(r.VX)
	} else if r.X > maxX {
		r.X = maxX
		r.VX = -math.Abs(r.VX)
	}
	if r.Y < WallInset {
		r.Y = WallInset
		r.VY = math.Abs(r.VY)
	} else if r.Y > maxY {
		r.Y = maxY
		r.VY = -math.Abs(r.VY)
	}
}

func (r *Roach) flee(cx, cy, fromX, fromY, radius, force float64) {
	dx, dy := cx-fromX, cy-fromY
	d := math.Hypot(dx, dy)
	if d >= radius || d == 0 {
		return
	}
	f := (radius - d) / radius * force
	r.VX += dx / d * f
	r.VY += dy / d * f
}

// Hit applies one point of damage and reports whether it was lethal.
func (r *Roach) Hit() bool {
	if r.IsDead {
		return false
	}
	r.HP--
	if r.HP <= 0 {
		r.HP = 0
		return true
	}
	return false
}

// Die marks the roach dead and stops it.
func (r *Roach) Die() {
	r.IsDead = true
	r.HP = 0
	r.VX, r.VY = 0, 0
	r.pending = nil
}

// Respawn revives the roach at a random position with baseline hp.
func (r *Roach) Respawn(rng *rand.Rand) {
	r.IsDead = false
	r.HP = BaseHP
	r.pending = nil
	r.placeRandomly(rng)
}

// Scatter pushes the roach away from an impact point. Dead roaches stay put.
func (r *Roach) Scatter(x, y float64) {
	if r.IsDead {
		return
	}
	cx, cy := r.Center()
	dx, dy := cx-x, cy-y
	d := math.Hypot(dx, dy)
	if d == 0 {
		return
	}
	r.VX += dx / d * ScatterImpulse
	r.VY += dy / d * ScatterImpulse
}

// DecayHP moves hp toward BaseHP at HPDecayRate, never below it.
func (r *Roach) DecayHP(dt float64) {
	if r.IsDead || r.HP <= BaseHP {
		return
	}
	r.HP -= HPDecayRate * dt
	if r.HP < BaseHP {
		r.HP = BaseHP
	}
}

// Heal adds hp without a cap; decay brings it back to baseline over time.
func (r *Roach) Heal(amount float64) {
	if r.IsDead {
		return
	}
	r.HP += amount
}

// RoachState is the wire form of a roach.
type RoachState struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	VX       float64 `json:"vx"`
	VY       float64 `json:"vy"`
	HP       float64 `json:"hp"`
	Balance  float64 `json:"balance"`
	IsPlayer bool    `json:"isPlayer"`
	IsDead   bool    `json:"isDead"`
}

// State returns the rounded wire form.
func (r *Roach) State() RoachState {
	return RoachState{
		ID:       r.ID,
		Name:     r.Name,
		X:        round1(r.X),
		Y:        round1(r.Y),
		VX:       round2(r.VX),
		VY:       round2(r.VY),
		HP:       round2(r.HP),
		Balance:  round2(r.Balance),
		IsPlayer: r.IsPlayer,
		IsDead:   r.IsDead,
	}
}
