package game

import (
	"math"
	"math/rand"
	"time"
)

// HouseBot is a server-controlled antagonist that hunts wealthy roaches.
// X/Y is the centre of the bot.
type HouseBot struct {
	ID            string
	X, Y          float64
	TargetID      string // re-resolved every step, empty when idle
	LastStomp     time.Time
	StompCooldown time.Duration
}

// NewHouseBot creates a bot at a random in-bounds position.
func NewHouseBot(rng *rand.Rand) *HouseBot {
	return &HouseBot{
		ID:            nextEntityID("bot"),
		X:             rng.Float64()*(ContainerWidth-BotWidth) + BotWidth/2,
		Y:             rng.Float64()*(ContainerHeight-BotHeight) + BotHeight/2,
		StompCooldown: BotStompCooldownMin + time.Duration(rng.Intn(BotStompCooldownRange))*time.Millisecond,
	}
}

// botStrike is the outcome of a bot step.
type botStrike struct {
	Events []Event
	Killed []*Roach
}

// resolveTarget returns the living roach the bot is locked on, if any.
func (b *HouseBot) resolveTarget(roaches []*Roach) *Roach {
	if b.TargetID == "" {
		return nil
	}
	for _, r := range roaches {
		if r.ID == b.TargetID && !r.IsDead {
			return r
		}
	}
	return nil
}

// pickTarget samples a living roach with probability proportional to
// balance plus a small epsilon.
func (b *HouseBot) pickTarget(roaches []*Roach, rng *rand.Rand) *Roach {
	total := 0.0
	alive := 0
	for _, r := range roaches {
		if !r.IsDead {
			total += r.Balance + BotWeightEpsilon
			alive++
		}
	}
	if alive == 0 {
		b.TargetID = ""
		return nil
	}

	roll := rng.Float64() * total
	var last *Roach
	for _, r := range roaches {
		if r.IsDead {
			continue
		}
		last = r
		roll -= r.Balance + BotWeightEpsilon
		if roll <= 0 {
			b.TargetID = r.ID
			return r
		}
	}
	b.TargetID = last.ID
	return last
}

// retargetChance falls as the current target gets richer.
func retargetChance(target *Roach) float64 {
	if target == nil {
		return 1
	}
	return math.Max(BotRetargetFloor, BotRetargetBase-target.Balance*BotRetargetRate)
}

// Update advances the bot one tick: retarget, pursue or wander, and stomp
// when in range with the cooldown elapsed.
func (b *HouseBot) Update(now time.Time, roaches []*Roach, rng *rand.Rand) botStrike {
	target := b.resolveTarget(roaches)
	if target == nil || rng.Float64() < retargetChance(target) {
		target = b.pickTarget(roaches, rng)
	}

	if target == nil {
		b.X += (rng.Float64() - 0.5) * 2 * BotWanderStep
		b.Y += (rng.Float64() - 0.5) * 2 * BotWanderStep
		b.keepInBounds()
		return botStrike{}
	}

	tx, ty := target.Center()
	dx, dy := tx-b.X, ty-b.Y
	dist := math.Hypot(dx, dy)

	if dist > BotCloseRange {
		speed := BotBaseSpeed + math.Min(target.Balance*BotGreedSpeedRate, BotGreedSpeedMax)
		b.X += dx/dist*speed + (rng.Float64()-0.5)*2*BotSpeedJitter
		b.Y += dy/dist*speed + (rng.Float64()-0.5)*2*BotSpeedJitter
	}
	b.keepInBounds()

	if dist < BotStompRange && now.Sub(b.LastStomp) > b.StompCooldown {
		return b.stomp(now, roaches, rng)
	}
	return botStrike{}
}

func (b *HouseBot) keepInBounds() {
	b.X = clamp(b.X, BotWidth/2, ContainerWidth-BotWidth/2)
	b.Y = clamp(b.Y, BotHeight/2, ContainerHeight-BotHeight/2)
}

// stomp hits at most one roach directly, then rolls a distance-decayed AoE
// on everyone else and scatters the survivors.
func (b *HouseBot) stomp(now time.Time, roaches []*Roach, rng *rand.Rand) botStrike {
	b.LastStomp = now
	out := botStrike{
		Events: []Event{{Type: EventBotStomp, BotID: b.ID, X: round1(b.X), Y: round1(b.Y)}},
	}

	box := CenteredHitbox(b.X, b.Y, BotWidth*BotHitboxScale, BotHeight*BotHitboxScale)
	directID := ""
	for _, r := range roaches {
		if r.IsDead {
			continue
		}
		if cx, cy := r.Center(); box.Contains(cx, cy) {
			directID = r.ID
			b.strike(r, &out)
			break
		}
	}

	for _, r := range roaches {
		if r.IsDead || r.ID == directID {
			continue
		}
		cx, cy := r.Center()
		d := distance(b.X, b.Y, cx, cy)
		if d <= BotAoEMinDistance {
			continue
		}
		if d < StompAoERadius {
			if rng.Float64() < BotAoEHitChance*(1-d/StompAoERadius) {
				b.strike(r, &out)
			}
			r.Scatter(b.X, b.Y)
		} else if d < StompScatterRadius {
			r.Scatter(b.X, b.Y)
		}
	}

	return out
}

func (b *HouseBot) strike(r *Roach, out *botStrike) {
	if !r.Hit() {
		out.Events = append(out.Events, Event{
			Type: EventBotHit, BotID: b.ID, VictimID: r.ID, HP: round2(r.HP), X: round1(b.X), Y: round1(b.Y),
		})
		return
	}

	lost := r.Balance * r.Upgrades.DeathPenalty()
	r.Balance -= lost
	r.Die()
	out.Killed = append(out.Killed, r)
	out.Events = append(out.Events, Event{
		Type: EventBotKill, BotID: b.ID, VictimID: r.ID, Lost: round2(lost), X: round1(r.X), Y: round1(r.Y),
	})
}

// HouseBotState is the wire form of a bot.
type HouseBotState struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// State returns the rounded wire form.
func (b *HouseBot) State() HouseBotState {
	return HouseBotState{ID: b.ID, X: round1(b.X), Y: round1(b.Y)}
}
