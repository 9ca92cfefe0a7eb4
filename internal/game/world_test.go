package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"roach-arena/internal/store"
)

// fakeOutbox records everything sent to one player.
type fakeOutbox struct {
	mu     sync.Mutex
	msgs   []any
	closed bool
}

func (f *fakeOutbox) Send(msg any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return true
}

func (f *fakeOutbox) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeOutbox) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeOutbox) reset() {
	f.mu.Lock()
	f.msgs = nil
	f.mu.Unlock()
}

// messagesOf returns every recorded message of type T.
func messagesOf[T any](f *fakeOutbox) []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []T
	for _, m := range f.msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func newTestWorld(t *testing.T, mutate ...func(*WorldConfig)) (*World, *testClock) {
	t.Helper()
	clock := &testClock{now: testEpoch}
	cfg := WorldConfig{
		GridSize:    3,
		NPCsPerRoom: 0,
		Seed:        42,
		Clock:       clock.Now,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	w := NewWorld(cfg)
	// Bots strike at random; tests that need them add their own
	for _, room := range w.rooms {
		room.Bots = nil
	}
	return w, clock
}

func (w *World) testRoach(id string) *Roach {
	w.mu.RLock()
	defer w.mu.RUnlock()
	sess, ok := w.sessions[id]
	if !ok {
		return nil
	}
	return w.roachFor(sess)
}

func TestNewWorldLayout(t *testing.T) {
	w := NewWorld(WorldConfig{GridSize: 3, NPCsPerRoom: 4, Seed: 42, Clock: func() time.Time { return testEpoch }})

	if len(w.rooms) != 9 {
		t.Fatalf("Expected 9 rooms, got %d", len(w.rooms))
	}
	for key, room := range w.rooms {
		if room.NPCCount() != 4 {
			t.Errorf("Room %s: expected 4 NPCs, got %d", key, room.NPCCount())
		}
		if len(room.Bots) < MinBotsPerRoom {
			t.Errorf("Room %s: expected at least %d bot, got %d", key, MinBotsPerRoom, len(room.Bots))
		}
	}
	if w.CenterRoom() != (RoomKey{1, 1}) {
		t.Errorf("Expected center room 1,1, got %v", w.CenterRoom())
	}

	snap := w.Snapshot()
	if len(snap.Rooms) != 9 {
		t.Errorf("Expected 9 room summaries, got %d", len(snap.Rooms))
	}
	if snap.Motel == nil {
		t.Error("Expected the motel to be hosted from the start")
	}
}

func TestJoinSendsWelcome(t *testing.T) {
	w, _ := newTestWorld(t)
	out := &fakeOutbox{}

	sess := w.Join(JoinRequest{ID: "p1", Name: "Crusty Bug", Out: out})

	welcomes := messagesOf[WelcomeMessage](out)
	if len(welcomes) != 1 {
		t.Fatalf("Expected 1 welcome, got %d", len(welcomes))
	}
	wm := welcomes[0]
	if wm.ID != "p1" || wm.Token != sess.Token() || wm.Name != "Crusty Bug" {
		t.Errorf("Unexpected welcome identity: %+v", wm)
	}
	if wm.Room != "1,1" {
		t.Errorf("Expected room 1,1, got %s", wm.Room)
	}
	if wm.GridSize != 3 {
		t.Errorf("Expected grid size 3, got %d", wm.GridSize)
	}
	if len(wm.UpgradeDefs) != len(UpgradeOrder) {
		t.Errorf("Expected %d upgrade defs, got %d", len(UpgradeOrder), len(wm.UpgradeDefs))
	}
	if wm.StompCooldownMs != BaseStompCooldown.Milliseconds() {
		t.Errorf("Expected cooldown %dms, got %d", BaseStompCooldown.Milliseconds(), wm.StompCooldownMs)
	}
	if w.PlayerCount() != 1 {
		t.Errorf("Expected 1 player, got %d", w.PlayerCount())
	}
}

func TestJoinAssignsNameAndID(t *testing.T) {
	w, _ := newTestWorld(t)
	sess := w.Join(JoinRequest{Out: &fakeOutbox{}})
	if sess.ID == "" {
		t.Error("Expected a generated id")
	}
	if sess.Name == "" {
		t.Error("Expected a generated name")
	}
}

func TestJoinAppliesStoredPlayer(t *testing.T) {
	w, _ := newTestWorld(t)
	player := &store.Player{
		ID:            "p1",
		Name:          "Stored",
		BankedBalance: 12,
		TotalKills:    4,
		Paid:          true,
		Upgrades:      map[string]int{UpgradeRateOfFire: 2, "jetpack": 1},
	}
	saved := &store.Session{PlayerID: "p1", Room: "2,0", X: 100, Y: 120, Balance: 7, HP: 3}

	sess := w.Join(JoinRequest{ID: "p1", Player: player, Saved: saved, Out: &fakeOutbox{}})

	if sess.Name != "Stored" || sess.Banked != 12 || sess.Kills != 4 || !sess.Paid {
		t.Errorf("Stored player not applied: %+v", sess)
	}
	if sess.Upgrades[UpgradeRateOfFire] != 2 {
		t.Errorf("Expected rateOfFire 2, got %d", sess.Upgrades[UpgradeRateOfFire])
	}
	if sess.Room != (RoomKey{2, 0}) {
		t.Errorf("Expected restored room 2,0, got %v", sess.Room)
	}
	roach := w.testRoach("p1")
	if roach == nil {
		t.Fatal("Roach not found in restored room")
	}
	if roach.X != 100 || roach.Y != 120 || roach.Balance != 7 || roach.HP != 3 {
		t.Errorf("Saved position/balance/hp not applied: %+v", roach.State())
	}
}

func TestJoinIgnoresInvalidSavedRoom(t *testing.T) {
	w, _ := newTestWorld(t)
	player := &store.Player{ID: "p1", Name: "x"}
	saved := &store.Session{PlayerID: "p1", Room: "9,9", X: 100, Y: 100, Balance: 50}

	sess := w.Join(JoinRequest{ID: "p1", Player: player, Saved: saved, Out: &fakeOutbox{}})

	if sess.Room != w.CenterRoom() {
		t.Errorf("Expected center room for an off-grid save, got %v", sess.Room)
	}
	if roach := w.testRoach("p1"); roach.Balance != 0 {
		t.Errorf("Expected a fresh balance, got %.2f", roach.Balance)
	}
}

func TestDuplicateJoinReplacesConnection(t *testing.T) {
	w, _ := newTestWorld(t)
	first := &fakeOutbox{}
	second := &fakeOutbox{}

	w.Join(JoinRequest{ID: "p1", Out: first})
	w.Join(JoinRequest{ID: "p1", Out: second})

	if !first.isClosed() {
		t.Error("Expected the first connection to be closed")
	}
	if w.PlayerCount() != 1 {
		t.Errorf("Expected 1 player, got %d", w.PlayerCount())
	}
	n := 0
	for _, r := range w.rooms[w.CenterRoom()].Roaches {
		if r.ID == "p1" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("Expected exactly one roach for p1, got %d", n)
	}

	// The stale connection's disconnect must not evict the new one
	w.Leave("p1", first)
	if w.PlayerCount() != 1 {
		t.Errorf("Stale leave removed the player")
	}
	w.Leave("p1", second)
	if w.PlayerCount() != 0 {
		t.Errorf("Expected 0 players after leave, got %d", w.PlayerCount())
	}
	if w.rooms[w.CenterRoom()].Roach("p1") != nil {
		t.Error("Roach should be removed on leave")
	}
}

func TestTickMessageFiltersEventsByRoom(t *testing.T) {
	w, clock := newTestWorld(t)
	outA := &fakeOutbox{}
	outB := &fakeOutbox{}

	w.Join(JoinRequest{ID: "a", Out: outA})
	w.Join(JoinRequest{
		ID:     "b",
		Out:    outB,
		Player: &store.Player{ID: "b", Name: "b"},
		Saved:  &store.Session{PlayerID: "b", Room: "0,0", X: 50, Y: 50},
	})

	w.HandleCommand("a", StompCommand{X: 100, Y: 100})
	w.Step(clock.Advance(DefaultTickInterval))

	ticksA := messagesOf[TickMessage](outA)
	ticksB := messagesOf[TickMessage](outB)
	if len(ticksA) != 1 || len(ticksB) != 1 {
		t.Fatalf("Expected one tick each, got %d and %d", len(ticksA), len(ticksB))
	}

	stomped := false
	for _, e := range ticksA[0].Events {
		if e.StomperID == "a" {
			stomped = true
		}
		if !e.VisibleTo("a", "1,1") {
			t.Errorf("Player a received foreign event %+v", e)
		}
	}
	if !stomped {
		t.Error("Expected player a to see their own stomp")
	}

	for _, e := range ticksB[0].Events {
		if e.Room == "1,1" {
			t.Errorf("Player b in 0,0 received event from 1,1: %+v", e)
		}
	}
	if ticksB[0].Room.Key != "0,0" {
		t.Errorf("Expected b's room state for 0,0, got %s", ticksB[0].Room.Key)
	}
	if ticksA[0].You.ID != "a" || ticksA[0].Tick != 1 {
		t.Errorf("Unexpected tick header: tick=%d you=%s", ticksA[0].Tick, ticksA[0].You.ID)
	}
}

func TestCursorsSharedWithinRoom(t *testing.T) {
	w, clock := newTestWorld(t)
	outA := &fakeOutbox{}
	outB := &fakeOutbox{}
	w.Join(JoinRequest{ID: "a", Out: outA})
	w.Join(JoinRequest{ID: "b", Out: outB})

	roach := w.testRoach("b")
	w.HandleCommand("b", InputCommand{
		Seq:    1,
		State:  ClientState{X: roach.X, Y: roach.Y},
		Cursor: &Point{X: 123, Y: 45},
	})
	w.Step(clock.Advance(DefaultTickInterval))

	ticks := messagesOf[TickMessage](outA)
	if len(ticks) != 1 {
		t.Fatalf("Expected 1 tick, got %d", len(ticks))
	}
	if len(ticks[0].Cursors) != 1 || ticks[0].Cursors[0].ID != "b" || ticks[0].Cursors[0].X != 123 {
		t.Errorf("Expected b's cursor, got %+v", ticks[0].Cursors)
	}

	own := messagesOf[TickMessage](outB)
	if len(own) != 1 {
		t.Fatalf("Expected 1 tick for b, got %d", len(own))
	}
	if len(own[0].Cursors) != 0 {
		t.Errorf("Players should not receive their own cursor, got %+v", own[0].Cursors)
	}
}

func TestRoomTransition(t *testing.T) {
	w, clock := newTestWorld(t)
	out := &fakeOutbox{}
	sess := w.Join(JoinRequest{ID: "p1", Out: out})

	roach := w.testRoach("p1")
	roach.X = ContainerWidth + 20
	roach.Y = 200
	w.Step(clock.Advance(DefaultTickInterval))

	enters := messagesOf[RoomEnterMessage](out)
	if len(enters) != 1 {
		t.Fatalf("Expected 1 room_enter, got %d", len(enters))
	}
	if enters[0].Room != "2,1" {
		t.Errorf("Expected room 2,1, got %s", enters[0].Room)
	}
	if sess.Room != (RoomKey{2, 1}) {
		t.Errorf("Expected session room 2,1, got %v", sess.Room)
	}
	if w.rooms[RoomKey{1, 1}].Roach("p1") != nil {
		t.Error("Roach still listed in the old room")
	}
	moved := w.rooms[RoomKey{2, 1}].Roach("p1")
	if moved == nil {
		t.Fatal("Roach missing from the new room")
	}
	if moved.X != TransitionInset {
		t.Errorf("Expected entry X %.1f, got %.2f", TransitionInset, moved.X)
	}
}

func TestMotelBankTransfersWallet(t *testing.T) {
	w, clock := newTestWorld(t)
	out := &fakeOutbox{}
	sess := w.Join(JoinRequest{ID: "p1", Out: out})
	roach := w.testRoach("p1")
	roach.Balance = 3

	// Host the motel on the player with one tick of saving left
	w.motel.Room = w.CenterRoom()
	w.motel.X, w.motel.Y = 180, 80
	w.motel.Active = true
	w.motel.DespawnTime = testEpoch.Add(time.Hour)
	mx, my := w.motel.Center()
	placeAt(roach, mx, my)
	w.motel.progress["p1"] = MotelSaveTime - DefaultTickInterval

	w.Step(clock.Advance(DefaultTickInterval))

	if roach.Balance != 0 {
		t.Errorf("Expected wallet emptied, got %.4f", roach.Balance)
	}
	if !approx(sess.Banked, 3, 0.01) {
		t.Errorf("Expected ~3 banked, got %.4f", sess.Banked)
	}

	ticks := messagesOf[TickMessage](out)
	var bank *Event
	for i := range ticks[0].Events {
		if ticks[0].Events[i].Type == EventBank {
			bank = &ticks[0].Events[i]
		}
	}
	if bank == nil {
		t.Fatal("Expected a bank event in the tick message")
	}
	if bank.TotalBanked != ticks[0].You.Banked {
		t.Errorf("Expected totalBanked %.2f to match summary %.2f", bank.TotalBanked, ticks[0].You.Banked)
	}
}

func TestBuyUpgrade(t *testing.T) {
	tests := []struct {
		name       string
		wallet     float64
		banked     float64
		level      int
		wantReason string
		wantWallet float64
		wantBanked float64
	}{
		{"wallet only", 3, 0, 0, "", 1, 0},
		{"wallet then bank", 1.5, 1, 0, "", 0, 0.5},
		{"insufficient", 1, 0.5, 0, ReasonInsufficientFunds, 1, 0.5},
		{"maxed", 1000, 0, 5, ReasonMaxed, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := newTestWorld(t)
			out := &fakeOutbox{}
			sess := w.Join(JoinRequest{ID: "p1", Out: out})
			roach := w.testRoach("p1")
			roach.Balance = tt.wallet
			sess.Banked = tt.banked
			sess.Upgrades[UpgradeBootSize] = tt.level

			w.HandleCommand("p1", BuyUpgradeCommand{Upgrade: UpgradeBootSize})

			if tt.wantReason != "" {
				fails := messagesOf[UpgradeFailedMessage](out)
				if len(fails) != 1 || fails[0].Reason != tt.wantReason {
					t.Fatalf("Expected failure %q, got %+v", tt.wantReason, fails)
				}
				if sess.Upgrades[UpgradeBootSize] != tt.level {
					t.Errorf("Level changed on failure: %d", sess.Upgrades[UpgradeBootSize])
				}
			} else {
				oks := messagesOf[UpgradePurchasedMessage](out)
				if len(oks) != 1 || oks[0].Level != tt.level+1 {
					t.Fatalf("Expected purchase of level %d, got %+v", tt.level+1, oks)
				}
			}

			if !approx(roach.Balance, tt.wantWallet, 1e-9) {
				t.Errorf("Expected wallet %.2f, got %.4f", tt.wantWallet, roach.Balance)
			}
			if !approx(sess.Banked, tt.wantBanked, 1e-9) {
				t.Errorf("Expected banked %.2f, got %.4f", tt.wantBanked, sess.Banked)
			}
		})
	}
}

func TestBuyUpgradeRequiresPayment(t *testing.T) {
	w, _ := newTestWorld(t, func(c *WorldConfig) { c.RequirePayment = true })
	out := &fakeOutbox{}
	w.Join(JoinRequest{ID: "p1", Out: out})
	w.testRoach("p1").Balance = 10

	w.HandleCommand("p1", BuyUpgradeCommand{Upgrade: UpgradeBootSize})
	fails := messagesOf[UpgradeFailedMessage](out)
	if len(fails) != 1 || fails[0].Reason != ReasonPaymentRequired {
		t.Fatalf("Expected payment_required, got %+v", fails)
	}

	if !w.SetPaid("p1", true) {
		t.Fatal("Expected SetPaid to report the player online")
	}
	w.HandleCommand("p1", BuyUpgradeCommand{Upgrade: UpgradeBootSize})
	if oks := messagesOf[UpgradePurchasedMessage](out); len(oks) != 1 {
		t.Errorf("Expected a purchase once paid, got %d", len(oks))
	}

	if w.SetPaid("offline", true) {
		t.Error("Expected SetPaid to report an unknown player offline")
	}
}

func TestStompCooldown(t *testing.T) {
	w, clock := newTestWorld(t)
	w.Join(JoinRequest{ID: "p1", Out: &fakeOutbox{}})
	room := w.rooms[w.CenterRoom()]

	w.HandleCommand("p1", StompCommand{X: 100, Y: 100})
	w.HandleCommand("p1", StompCommand{X: 100, Y: 100})
	if len(room.pendingStomps) != 1 {
		t.Fatalf("Expected 1 queued stomp inside the cooldown, got %d", len(room.pendingStomps))
	}

	clock.Advance(BaseStompCooldown)
	w.HandleCommand("p1", StompCommand{X: 100, Y: 100})
	if len(room.pendingStomps) != 2 {
		t.Errorf("Expected a second stomp after the cooldown, got %d", len(room.pendingStomps))
	}
}

func TestHeal(t *testing.T) {
	w, clock := newTestWorld(t)
	w.Join(JoinRequest{ID: "p1", Out: &fakeOutbox{}})
	roach := w.testRoach("p1")
	roach.Balance = 2.5

	w.HandleCommand("p1", HealCommand{})
	if roach.HP != BaseHP+HealAmount || roach.Balance != 1.5 {
		t.Errorf("Expected hp %.1f balance 1.5, got hp %.1f balance %.2f", BaseHP+HealAmount, roach.HP, roach.Balance)
	}

	w.HandleCommand("p1", HealCommand{})
	if roach.HP != BaseHP+HealAmount {
		t.Errorf("Heal inside the cooldown should be ignored, hp %.1f", roach.HP)
	}

	clock.Advance(HealCooldown)
	roach.Balance = 0.5
	w.HandleCommand("p1", HealCommand{})
	if roach.HP != BaseHP+HealAmount {
		t.Errorf("Heal without funds should be ignored, hp %.1f", roach.HP)
	}
}

func TestRoomPanicIsContained(t *testing.T) {
	w, clock := newTestWorld(t)
	out := &fakeOutbox{}
	w.Join(JoinRequest{ID: "p1", Out: out})

	// A corrupt bot makes room 0,0 panic during its simulate step
	broken := w.rooms[RoomKey{0, 0}]
	broken.Bots = append(broken.Bots, nil)

	w.Step(clock.Advance(DefaultTickInterval))
	w.Step(clock.Advance(DefaultTickInterval))

	if w.TickCount() != 2 {
		t.Errorf("Expected 2 ticks, got %d", w.TickCount())
	}
	if ticks := messagesOf[TickMessage](out); len(ticks) != 2 {
		t.Errorf("Expected the healthy room to keep ticking, got %d tick messages", len(ticks))
	}
}

func TestSnapshotLeaders(t *testing.T) {
	w, clock := newTestWorld(t)
	w.Join(JoinRequest{ID: "poor", Out: &fakeOutbox{}})
	rich := w.Join(JoinRequest{ID: "rich", Out: &fakeOutbox{}})
	rich.Banked = 50

	w.Step(clock.Advance(DefaultTickInterval))
	snap := w.Snapshot()

	if snap.PlayerCount != 2 {
		t.Errorf("Expected 2 players, got %d", snap.PlayerCount)
	}
	if len(snap.Leaders) != 2 || snap.Leaders[0].ID != "rich" {
		t.Fatalf("Expected rich to lead, got %+v", snap.Leaders)
	}
	if snap.TickNumber != 1 {
		t.Errorf("Expected tick 1, got %d", snap.TickNumber)
	}

	// Snapshots are copies
	snap.Leaders[0].Name = "mutated"
	if w.Snapshot().Leaders[0].Name == "mutated" {
		t.Error("Snapshot leaked internal state")
	}
}

func TestLeavePersistsSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p, _ := st.CreatePlayer(ctx, "saver")
	persister := store.NewPersister(st, store.PersisterConfig{Workers: 1})
	persister.Start()

	w, _ := newTestWorld(t, func(c *WorldConfig) {
		c.Persister = persister
		c.Clock = time.Now
	})
	out := &fakeOutbox{}
	w.Join(JoinRequest{ID: p.ID, Player: &p, Out: out})
	w.testRoach(p.ID).Balance = 4.5
	w.Leave(p.ID, out)

	anon := &fakeOutbox{}
	w.Join(JoinRequest{ID: "anonymous", Out: anon})
	w.Leave("anonymous", anon)

	persister.Stop()

	saved, err := st.GetSession(ctx, p.ID, time.Minute)
	if err != nil {
		t.Fatalf("Expected a saved session, got %v", err)
	}
	if saved.Balance != 4.5 || saved.Room != "1,1" {
		t.Errorf("Unexpected saved session: %+v", saved)
	}
	if persister.Stats().Failed != 0 {
		t.Errorf("Anonymous players must not produce store writes, %d failed", persister.Stats().Failed)
	}
}

func TestCommandsForUnknownPlayerIgnored(t *testing.T) {
	w, _ := newTestWorld(t)
	// Must not panic
	w.HandleCommand("ghost", StompCommand{X: 1, Y: 1})
	w.HandleCommand("ghost", BuyUpgradeCommand{Upgrade: UpgradeBootSize})
	w.Leave("ghost", &fakeOutbox{})
}

func TestStartStop(t *testing.T) {
	w, _ := newTestWorld(t, func(c *WorldConfig) { c.TickInterval = 5 * time.Millisecond })

	w.Start()
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	if w.TickCount() == 0 {
		t.Error("Expected the loop to tick")
	}
	// Should not panic on double stop
	w.Stop()
}
