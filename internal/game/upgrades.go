package game

import (
	"math"
	"time"
)

// Upgrade keys as they appear on the wire and in the store.
const (
	UpgradeBootSize   = "bootSize"
	UpgradeMultiStomp = "multiStomp"
	UpgradeRateOfFire = "rateOfFire"
	UpgradeGoldMagnet = "goldMagnet"
	UpgradeWallBounce = "wallBounce"
	UpgradeIdleIncome = "idleIncome"
	UpgradeShellArmor = "shellArmor"
)

// UpgradeDef describes one purchasable upgrade track.
type UpgradeDef struct {
	Key      string  `json:"key"`
	Name     string  `json:"name"`
	MaxLevel int     `json:"maxLevel"`
	BaseCost float64 `json:"baseCost"`
	Growth   float64 `json:"growth"`
}

// UpgradeOrder is the display and iteration order of the upgrade tracks.
var UpgradeOrder = []string{
	UpgradeBootSize,
	UpgradeMultiStomp,
	UpgradeRateOfFire,
	UpgradeGoldMagnet,
	UpgradeWallBounce,
	UpgradeIdleIncome,
	UpgradeShellArmor,
}

// UpgradeDefs maps keys to definitions.
var UpgradeDefs = map[string]UpgradeDef{
	UpgradeBootSize:   {Key: UpgradeBootSize, Name: "Bigger Boot", MaxLevel: 5, BaseCost: 2.00, Growth: 1.8},
	UpgradeMultiStomp: {Key: UpgradeMultiStomp, Name: "Multi Stomp", MaxLevel: 3, BaseCost: 5.00, Growth: 2.2},
	UpgradeRateOfFire: {Key: UpgradeRateOfFire, Name: "Rapid Stomp", MaxLevel: 4, BaseCost: 3.00, Growth: 1.9},
	UpgradeGoldMagnet: {Key: UpgradeGoldMagnet, Name: "Gold Magnet", MaxLevel: 5, BaseCost: 2.50, Growth: 1.8},
	UpgradeWallBounce: {Key: UpgradeWallBounce, Name: "Wall Bounce", MaxLevel: 4, BaseCost: 1.50, Growth: 1.7},
	UpgradeIdleIncome: {Key: UpgradeIdleIncome, Name: "Idle Income", MaxLevel: 5, BaseCost: 2.00, Growth: 1.75},
	UpgradeShellArmor: {Key: UpgradeShellArmor, Name: "Shell Armor", MaxLevel: 5, BaseCost: 3.00, Growth: 1.9},
}

// Upgrades is a level map keyed by upgrade key.
type Upgrades map[string]int

// DefaultUpgrades returns a map with every track at level 0.
func DefaultUpgrades() Upgrades {
	u := make(Upgrades, len(UpgradeOrder))
	for _, key := range UpgradeOrder {
		u[key] = 0
	}
	return u
}

// SanitizeUpgrades drops unknown keys and clamps levels into [0, MaxLevel].
func SanitizeUpgrades(in map[string]int) Upgrades {
	out := DefaultUpgrades()
	for key, level := range in {
		def, ok := UpgradeDefs[key]
		if !ok {
			continue
		}
		out[key] = clampInt(level, 0, def.MaxLevel)
	}
	return out
}

// Clone returns an independent copy.
func (u Upgrades) Clone() Upgrades {
	out := make(Upgrades, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

// Level returns the level of key, 0 when unset.
func (u Upgrades) Level(key string) int {
	if u == nil {
		return 0
	}
	return u[key]
}

// UpgradeCost returns the price of buying the next level when currently at level.
// The ok result is false once the track is maxed or the key is unknown.
func UpgradeCost(key string, level int) (float64, bool) {
	def, ok := UpgradeDefs[key]
	if !ok || level >= def.MaxLevel || level < 0 {
		return 0, false
	}
	return round2(def.BaseCost * math.Pow(def.Growth, float64(level))), true
}

// =============================================================================
// DERIVED EFFECTS
// =============================================================================

// BootScale multiplies the boot hitbox.
func (u Upgrades) BootScale() float64 {
	return 1 + 0.15*float64(u.Level(UpgradeBootSize))
}

// StompCooldown is the minimum spacing between accepted stomps.
func (u Upgrades) StompCooldown() time.Duration {
	cd := BaseStompCooldown - time.Duration(u.Level(UpgradeRateOfFire))*30*time.Millisecond
	if cd < 80*time.Millisecond {
		cd = 80 * time.Millisecond
	}
	return cd
}

// GoldMultiplier scales kill rewards and passive income.
func (u Upgrades) GoldMultiplier() float64 {
	return 1 + 0.25*float64(u.Level(UpgradeGoldMagnet))
}

// WallBounceStrength scales the reflected velocity on an edge clamp.
func (u Upgrades) WallBounceStrength() float64 {
	return 0.35 + 0.25*float64(u.Level(UpgradeWallBounce))
}

// IdleIncome is extra per-second income for players.
func (u Upgrades) IdleIncome() float64 {
	return 0.002 * float64(u.Level(UpgradeIdleIncome))
}

// DeathPenalty is the fraction of balance lost when killed.
func (u Upgrades) DeathPenalty() float64 {
	return math.Max(0.4, DeathPenalty-0.1*float64(u.Level(UpgradeShellArmor)))
}

// StompZone is one impact point of a stomp.
type StompZone struct {
	X, Y float64
}

// StompZones returns the primary zone followed by the multi-stomp pairs.
// Pair k sits on ring k/2+1 and alternates between horizontal and vertical
// offsets, so level 3 yields 7 zones. Zones are clamped to the container.
func (u Upgrades) StompZones(x, y float64) []StompZone {
	pairs := u.Level(UpgradeMultiStomp)
	zones := make([]StompZone, 0, 1+2*pairs)
	zones = append(zones, clampZone(x, y))

	spacing := 0.6 * BootWidth * u.BootScale()
	for k := 0; k < pairs; k++ {
		ring := float64(k/2 + 1)
		angle := float64(k) * math.Pi / 2
		dx := math.Cos(angle) * ring * spacing
		dy := math.Sin(angle) * ring * spacing
		zones = append(zones, clampZone(x+dx, y+dy), clampZone(x-dx, y-dy))
	}
	return zones
}

func clampZone(x, y float64) StompZone {
	return StompZone{
		X: clamp(x, 0, ContainerWidth),
		Y: clamp(y, 0, ContainerHeight),
	}
}
