package game

import "math"

// Hitbox is an axis-aligned attack rectangle.
// All checks are O(1).
type Hitbox struct {
	Left, Top, Right, Bottom float64
}

// BootHitbox builds the boot rectangle for a zone. The boot lands heel-down,
// so the box extends mostly above the impact point.
func BootHitbox(x, y, width, height float64) Hitbox {
	return Hitbox{
		Left:   x - width/2,
		Right:  x + width/2,
		Top:    y - height*BootTopFraction,
		Bottom: y + height*(1-BootTopFraction),
	}
}

// CenteredHitbox builds a box of the given size centred on (x, y).
func CenteredHitbox(x, y, width, height float64) Hitbox {
	return Hitbox{
		Left:   x - width/2,
		Right:  x + width/2,
		Top:    y - height/2,
		Bottom: y + height/2,
	}
}

// Contains reports whether the point lies inside the box (edges inclusive).
func (h Hitbox) Contains(x, y float64) bool {
	return x >= h.Left && x <= h.Right && y >= h.Top && y <= h.Bottom
}

func distance(ax, ay, bx, by float64) float64 {
	return math.Hypot(bx-ax, by-ay)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// round1 and round2 trim wire payloads; the simulation keeps full precision.
func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
