package game

import "time"

// Arena geometry. Roach X/Y is the top-left corner of its sprite box,
// bot and motel positions follow the conventions noted on their types.
const (
	ContainerWidth  = 600.0
	ContainerHeight = 400.0

	RoachWidth  = 35.0
	RoachHeight = 35.0
	BootWidth   = 100.0
	BootHeight  = 110.0
	BotWidth    = 80.0
	BotHeight   = 88.0

	DefaultGridSize = 3
)

// Tick cadence.
const (
	DefaultTickInterval = 50 * time.Millisecond
	TicksPerSecond      = float64(time.Second / DefaultTickInterval)
)

// Movement.
const (
	PlayerBaseSpeed        = 2.5
	NPCBaseSpeed           = 3.0
	WealthSpeedPenaltyMax  = 1.5
	WealthSpeedPenaltyRate = 0.08
	MinSpeed               = 0.8

	VelocityTolerance  = 1.5  // Client velocity may exceed Speed() by this factor
	PositionOvershoot  = 15.0 // Allowed distance past the container edge
	MaxSlideMultiplier = 10.0 // Displacement cap in units of max speed
	WallInset          = 5.0
	NPCJitter          = 0.15
	CursorFleeRadius   = 50.0
	CursorFleeForce    = 0.3
	BotFleeRadius      = 45.0
	BotFleeForce       = 0.35
	ScatterImpulse     = 3.0
)

// HP and economy.
const (
	BaseHP       = 2.0
	HPDecayRate  = 1.0 / 3.0 // hp per second while above BaseHP
	HealCost     = 1.0
	HealAmount   = 1.0
	HealCooldown = 500 * time.Millisecond

	DeathPenalty = 0.9
	KillReward   = 0.9
	IncomeRate   = 0.01 // per second per living roach

	NPCStartBalanceMax = 30.0
)

// Room population.
const (
	MaxNPCsPerRoom      = 10
	DefaultNPCsPerRoom  = 8
	NPCSpawnChance      = 0.01 // per tick while under the cap
	DeathRemovalDelay   = 500 * time.Millisecond
	NPCReplaceDelayMin  = 5 * time.Second
	NPCReplaceDelaySpan = 5 * time.Second
	PlayerRespawnDelay  = 500 * time.Millisecond
)

// Stomp resolution.
const (
	BaseStompCooldown  = 200 * time.Millisecond
	StompAoERadius     = 90.0
	StompScatterRadius = 100.0
	PlayerAoEHitChance = 0.7
	BootTopFraction    = 0.8 // Boot box spans y-0.8h .. y+0.2h
	BootAoEFraction    = 0.3 // AoE centre sits at y-0.3h
)

// House bots.
const (
	BotStompCooldownMin   = 800 * time.Millisecond
	BotStompCooldownRange = 400 // ms
	BotsPerWealth         = 10.0
	MaxBotsPerRoom        = 5
	MinBotsPerRoom        = 1
	BotRebalanceTicks     = 60

	BotBaseSpeed      = 3.0
	BotGreedSpeedRate = 0.15
	BotGreedSpeedMax  = 2.0
	BotSpeedJitter    = 0.25
	BotCloseRange     = 25.0
	BotStompRange     = 50.0
	BotHitboxScale    = 0.7
	BotAoEHitChance   = 0.8
	BotAoEMinDistance = 15.0
	BotWanderStep     = 1.5
	BotWeightEpsilon  = 0.1
	BotRetargetBase   = 0.2
	BotRetargetRate   = 0.02
	BotRetargetFloor  = 0.05
)

// Room transitions.
const (
	TransitionMargin = 5.0
	TransitionInset  = 10.0
	EdgeImpulse      = 0.2
)

// Motel.
const (
	MotelSize         = 240.0
	MotelStayDuration = 10 * time.Second
	MotelSaveTime     = 5 * time.Second
	MotelMinX         = 150.0
	MotelRangeX       = 300.0
	MotelMinY         = 80.0
	MotelRangeY       = 200.0
)

// Persistence cadence.
const DefaultSessionFlushTicks = 200
