package game

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEventLogWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	el := NewEventLog()
	if err := el.Start(path); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	el.EmitSimple(AuditJoin, 1, "p1", map[string]any{"name": "Crusty Bug"})
	el.EmitEvents(2, []Event{
		{Type: EventStompKill, StomperID: "p1", VictimID: "npc-1", Room: "1,1"},
		{Type: EventStompMiss, StomperID: "p1"},
		{Type: EventBank, PlayerID: "p1", Amount: 3},
	})
	el.Stop()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("Invalid JSON line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, rec)
	}

	if len(lines) != 3 {
		t.Fatalf("Expected 3 records (miss is not audited), got %d", len(lines))
	}
	wantTypes := []string{"join", "kill", "bank"}
	for i, want := range wantTypes {
		if lines[i]["type"] != want {
			t.Errorf("Record %d: expected type %s, got %v", i, want, lines[i]["type"])
		}
	}
	if lines[1]["room"] != "1,1" {
		t.Errorf("Expected kill record in room 1,1, got %v", lines[1]["room"])
	}
	if lines[1]["playerId"] != "npc-1" {
		t.Errorf("Expected kill record keyed by victim, got %v", lines[1]["playerId"])
	}
	if seq := lines[2]["seq"].(float64); seq != 3 {
		t.Errorf("Expected sequence 3, got %v", seq)
	}
}

func TestEventLogPerPlayerLimit(t *testing.T) {
	el := NewEventLog()
	if err := el.Start(""); err != nil {
		t.Fatal(err)
	}
	defer el.Stop()

	accepted := 0
	for i := 0; i < 50; i++ {
		if el.EmitSimple(AuditPurchase, 1, "spammer", nil) {
			accepted++
		}
	}
	// Burst is a tenth of the per-second allowance
	if accepted > MaxAuditPerPlayer/10+1 {
		t.Errorf("Expected per-player burst limit, accepted %d", accepted)
	}
	if el.GetDroppedCount() == 0 {
		t.Error("Expected dropped records")
	}

	if !el.EmitSimple(AuditPurchase, 1, "someone-else", nil) {
		t.Error("Other players must not be limited by the spammer")
	}
}

func TestEventLogStopped(t *testing.T) {
	el := NewEventLog()
	if el.EmitSimple(AuditJoin, 1, "p1", nil) {
		t.Error("Expected Emit to fail before Start")
	}
	if el.GetTotalCount() != 0 {
		t.Errorf("Expected 0 records, got %d", el.GetTotalCount())
	}

	el.Start("")
	el.Stop()
	el.Stop()
	if el.EmitSimple(AuditJoin, 1, "p1", nil) {
		t.Error("Expected Emit to fail after Stop")
	}
}

func TestAuditTypeNames(t *testing.T) {
	if AuditTransition.String() != "transition" {
		t.Errorf("Expected transition, got %s", AuditTransition.String())
	}
	if AuditType(99).String() != "unknown" {
		t.Errorf("Expected unknown, got %s", AuditType(99).String())
	}
}

func TestAuditRingOverwritesOldest(t *testing.T) {
	var ring auditRing
	for i := 0; i < AuditBufferSize+5; i++ {
		_, overwrote := ring.push(AuditRecord{Tick: uint64(i)})
		if want := i >= AuditBufferSize; overwrote != want {
			t.Fatalf("Push %d: expected overwrote=%v", i, want)
		}
	}
	if ring.pending() != AuditBufferSize {
		t.Errorf("Expected %d pending, got %d", AuditBufferSize, ring.pending())
	}

	batch := ring.drain(nil, 3)
	if len(batch) != 3 || batch[0].Tick != 5 || batch[0].Sequence != 6 {
		t.Errorf("Expected the oldest surviving record first, got %+v", batch[0])
	}
}

func TestAuditGateSweep(t *testing.T) {
	g := newAuditGate()
	g.allow("old", testEpoch)
	g.allow("new", testEpoch.Add(PlayerLimiterCleanup))

	if removed := g.sweep(testEpoch.Add(time.Minute)); removed != 1 {
		t.Errorf("Expected 1 idle limiter removed, got %d", removed)
	}
	if _, ok := g.players["new"]; !ok {
		t.Error("Active limiter was removed")
	}
}
