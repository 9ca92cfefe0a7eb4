package game

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	AuditBufferSize      = 1024                   // Records held before the oldest is overwritten
	MaxAuditPerSec       = 10000                  // Global rate limit
	MaxAuditPerPlayer    = 100                    // Per-player rate limit per second
	BatchFlushSize       = 64                     // Records per batch write
	BatchFlushInterval   = 100 * time.Millisecond // How often to flush
	PlayerLimiterCleanup = 5 * time.Minute        // Idle time before a player limiter is dropped
)

// AuditStats are the audit log counters exported as metrics.
type AuditStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Pending uint64 `json:"pending"`
	Running bool   `json:"running"`
}

// auditRing is a fixed ring of records. Producers are serialized by the
// World lock; the writer goroutine is the only consumer.
type auditRing struct {
	slots [AuditBufferSize]AuditRecord
	head  atomic.Uint64 // records ever pushed
	tail  atomic.Uint64 // records consumed or overwritten
}

// push stores rec and returns its 1-based sequence. When the ring is full
// the oldest unread record is overwritten and overwrote is true.
func (r *auditRing) push(rec AuditRecord) (seq uint64, overwrote bool) {
	seq = r.head.Add(1)
	if seq-r.tail.Load() > AuditBufferSize {
		r.tail.Add(1)
		overwrote = true
	}
	rec.Sequence = seq
	r.slots[(seq-1)%AuditBufferSize] = rec
	return seq, overwrote
}

// drain appends up to limit unread records to dst.
func (r *auditRing) drain(dst []AuditRecord, limit int) []AuditRecord {
	head, tail := r.head.Load(), r.tail.Load()
	n := 0
	for i := tail; i < head && n < limit; i++ {
		dst = append(dst, r.slots[i%AuditBufferSize])
		n++
	}
	if n > 0 {
		r.tail.Add(uint64(n))
	}
	return dst
}

func (r *auditRing) pending() uint64 {
	return r.head.Load() - r.tail.Load()
}

// auditGate rate-limits records globally and per player so one noisy
// client cannot crowd everyone else out of the trail.
type auditGate struct {
	global *rate.Limiter

	mu      sync.Mutex
	players map[string]*playerLimiter
}

type playerLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

func newAuditGate() *auditGate {
	return &auditGate{
		global:  rate.NewLimiter(MaxAuditPerSec, MaxAuditPerSec/10),
		players: make(map[string]*playerLimiter),
	}
}

func (g *auditGate) allow(playerID string, now time.Time) bool {
	if !g.global.AllowN(now, 1) {
		return false
	}
	if playerID == "" {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	pl, ok := g.players[playerID]
	if !ok {
		pl = &playerLimiter{limiter: rate.NewLimiter(MaxAuditPerPlayer, MaxAuditPerPlayer/10)}
		g.players[playerID] = pl
	}
	pl.lastUsed = now
	return pl.limiter.AllowN(now, 1)
}

// sweep forgets players idle since before cutoff.
func (g *auditGate) sweep(cutoff time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for id, pl := range g.players {
		if pl.lastUsed.Before(cutoff) {
			delete(g.players, id)
			removed++
		}
	}
	return removed
}

// EventLog is the bounded, rate-limited audit trail of kills, deaths, banks,
// purchases and session lifecycle. Records are appended to a JSONL file by a
// background writer; a full ring overwrites the oldest records.
type EventLog struct {
	ring auditRing
	gate *auditGate

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file *os.File
	out  *bufio.Writer
	enc  *json.Encoder

	dropped atomic.Uint64
	total   atomic.Uint64
}

// NewEventLog creates an idle audit log. Emit fails until Start.
func NewEventLog() *EventLog {
	return &EventLog{
		gate:     newAuditGate(),
		stopChan: make(chan struct{}),
	}
}

// Start opens filePath for append and launches the writer. An empty path
// keeps records in memory only.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		el.file = file
		el.out = bufio.NewWriter(file)
		el.enc = json.NewEncoder(el.out)
	}

	el.running.Store(true)
	el.wg.Add(2)
	go el.writerLoop()
	go el.sweepLoop()

	log.Printf("📝 Audit log started: %q", filePath)
	return nil
}

// Stop drains every pending record to disk and closes the file.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		if !el.running.Swap(false) {
			return
		}
		close(el.stopChan)
		el.wg.Wait()

		if el.file != nil {
			el.file.Close()
		}
	})
}

// Emit appends a record. Returns false if the log is stopped or the record
// was rate limited.
func (el *EventLog) Emit(rec AuditRecord) bool {
	if !el.running.Load() {
		return false
	}
	if !el.gate.allow(rec.PlayerID, time.Now()) {
		el.dropped.Add(1)
		return false
	}
	if _, overwrote := el.ring.push(rec); overwrote {
		el.dropped.Add(1)
	}
	el.total.Add(1)
	return true
}

// EmitSimple builds and emits a record in one call.
func (el *EventLog) EmitSimple(t AuditType, tick uint64, playerID string, payload any) bool {
	return el.Emit(NewAuditRecord(t, tick, playerID, payload))
}

// EmitEvents audits the gameplay events of one tick that carry an audit
// category.
func (el *EventLog) EmitEvents(tick uint64, events []Event) {
	for _, e := range events {
		t, ok := auditTypeFor(e)
		if !ok {
			continue
		}
		id := e.PlayerID
		if id == "" {
			id = e.VictimID
		}
		rec := NewAuditRecord(t, tick, id, e)
		rec.Room = e.Room
		el.Emit(rec)
	}
}

func (el *EventLog) writerLoop() {
	defer el.wg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]AuditRecord, 0, BatchFlushSize)
	for {
		select {
		case <-ticker.C:
			batch = el.ring.drain(batch[:0], BatchFlushSize)
			el.write(batch)

		case <-el.stopChan:
			for el.ring.pending() > 0 {
				batch = el.ring.drain(batch[:0], BatchFlushSize)
				el.write(batch)
			}
			return
		}
	}
}

// write encodes one batch as newline-delimited JSON.
func (el *EventLog) write(batch []AuditRecord) {
	if el.enc == nil || len(batch) == 0 {
		return
	}
	for _, rec := range batch {
		if err := el.enc.Encode(rec); err != nil {
			log.Printf("⚠️ Audit record %d not written: %v", rec.Sequence, err)
		}
	}
	if err := el.out.Flush(); err != nil {
		log.Printf("⚠️ Audit flush failed: %v", err)
	}
}

func (el *EventLog) sweepLoop() {
	defer el.wg.Done()

	ticker := time.NewTicker(PlayerLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			el.gate.sweep(now.Add(-PlayerLimiterCleanup))
		case <-el.stopChan:
			return
		}
	}
}

// GetStats returns the audit log counters.
func (el *EventLog) GetStats() AuditStats {
	return AuditStats{
		Total:   el.total.Load(),
		Dropped: el.dropped.Load(),
		Pending: el.ring.pending(),
		Running: el.running.Load(),
	}
}

// GetDroppedCount returns the number of rate-limited or overwritten records.
func (el *EventLog) GetDroppedCount() uint64 {
	return el.dropped.Load()
}

// GetTotalCount returns the number of records accepted.
func (el *EventLog) GetTotalCount() uint64 {
	return el.total.Load()
}
