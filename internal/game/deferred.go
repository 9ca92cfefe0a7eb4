package game

import "time"

type deferredKind uint8

const (
	deferRemoveNPC deferredKind = iota // drop a dead NPC from the roster
	deferSpawnNPC                      // replace a removed NPC if under the cap
	deferRespawn                       // revive a dead player roach
)

// deferredAction is a time-stamped room mutation. Actions reference roaches
// by id and re-check existence when they fire; a missing target is a no-op.
type deferredAction struct {
	At      time.Time
	Kind    deferredKind
	RoachID string
}

// deferredQueue holds pending actions in insertion order. Rooms drain it at
// the start of every simulate step, so all mutations happen on the tick.
type deferredQueue struct {
	items []deferredAction
}

func (q *deferredQueue) schedule(at time.Time, kind deferredKind, roachID string) {
	q.items = append(q.items, deferredAction{At: at, Kind: kind, RoachID: roachID})
}

// due removes and returns every action whose time has come.
func (q *deferredQueue) due(now time.Time) []deferredAction {
	var ready []deferredAction
	n := 0
	for _, a := range q.items {
		if !a.At.After(now) {
			ready = append(ready, a)
			continue
		}
		q.items[n] = a
		n++
	}
	q.items = q.items[:n]
	return ready
}

func (q *deferredQueue) len() int {
	return len(q.items)
}
