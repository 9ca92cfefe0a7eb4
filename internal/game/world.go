package game

import (
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"roach-arena/internal/store"
)

// WorldConfig configures a World.
type WorldConfig struct {
	TickInterval      time.Duration
	GridSize          int
	NPCsPerRoom       int
	Seed              int64 // 0 seeds from the clock
	SessionFlushTicks int   // 0 disables periodic flushing
	RequirePayment    bool  // gate session persistence and purchases on the paid flag

	// Persister receives all store writes. Nil disables persistence.
	Persister *store.Persister

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// DefaultWorldConfig returns the production defaults.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		TickInterval:      DefaultTickInterval,
		GridSize:          DefaultGridSize,
		NPCsPerRoom:       DefaultNPCsPerRoom,
		SessionFlushTicks: DefaultSessionFlushTicks,
	}
}

// TickStats describes one completed tick.
type TickStats struct {
	Tick        uint64
	Duration    time.Duration
	Players     int
	Events      int
	RoomRoaches map[string]int
}

// roomMove is a transition detected during the room pass and applied after it.
type roomMove struct {
	roachID string
	from    RoomKey
	tr      Transition
}

// World owns every room, the motel and the session registry, and drives the
// fixed-period tick. All state is guarded by mu; the tick and command
// handlers never mutate it concurrently.
type World struct {
	mu       sync.RWMutex
	cfg      WorldConfig
	rooms    map[RoomKey]*Room
	roomKeys []RoomKey
	sessions map[string]*Session
	motel    *Motel
	rng      *rand.Rand
	clock    func() time.Time

	tickCount uint64
	running   bool
	ticker    *time.Ticker
	stopChan  chan struct{}

	persister *store.Persister
	snapshots *SnapshotPool
	eventLog  *EventLog

	// Hooks for metrics. Called after the tick releases the lock.
	OnTick   func(TickStats)
	OnEvents func([]Event)
}

// NewWorld builds the room grid, seeds NPCs and bots and places the motel.
func NewWorld(cfg WorldConfig) *World {
	def := DefaultWorldConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.GridSize <= 0 {
		cfg.GridSize = def.GridSize
	}
	if cfg.NPCsPerRoom < 0 {
		cfg.NPCsPerRoom = 0
	}
	if cfg.NPCsPerRoom > MaxNPCsPerRoom {
		cfg.NPCsPerRoom = MaxNPCsPerRoom
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	limits := DefaultLimits
	limits.MaxRooms = cfg.GridSize * cfg.GridSize

	w := &World{
		cfg:       cfg,
		rooms:     make(map[RoomKey]*Room, limits.MaxRooms),
		sessions:  make(map[string]*Session),
		rng:       rand.New(rand.NewSource(seed)),
		clock:     cfg.Clock,
		stopChan:  make(chan struct{}),
		persister: cfg.Persister,
		snapshots: NewSnapshotPool(limits),
		eventLog:  NewEventLog(),
	}

	for x := 0; x < cfg.GridSize; x++ {
		for y := 0; y < cfg.GridSize; y++ {
			key := RoomKey{X: x, Y: y}
			room := NewRoom(key, w.rng)
			room.SetTickInterval(cfg.TickInterval)
			room.SeedNPCs(cfg.NPCsPerRoom)
			room.AdjustBots()
			w.rooms[key] = room
			w.roomKeys = append(w.roomKeys, key)
		}
	}
	sortRoomKeys(w.roomKeys)

	now := w.clock()
	w.motel = NewMotel(w.roomKeys, w.rng)
	w.motel.SetTickInterval(cfg.TickInterval)
	w.motel.Update(now, w.rooms)
	w.publishSnapshot(now)

	return w
}

func sortRoomKeys(keys []RoomKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Y < keys[j].Y
	})
}

// CenterRoom is where new players start.
func (w *World) CenterRoom() RoomKey {
	c := w.cfg.GridSize / 2
	return RoomKey{X: c, Y: c}
}

// GridSize returns the width of the square room grid.
func (w *World) GridSize() int {
	return w.cfg.GridSize
}

// Start begins the tick loop
func (w *World) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.ticker = time.NewTicker(w.cfg.TickInterval)
	w.mu.Unlock()

	go func() {
		for {
			select {
			case <-w.ticker.C:
				w.Step(w.clock())
			case <-w.stopChan:
				return
			}
		}
	}()

	log.Printf("🎮 World started: %dx%d grid, %v tick", w.cfg.GridSize, w.cfg.GridSize, w.cfg.TickInterval)
}

// Stop stops the tick loop
func (w *World) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.running = false
	if w.ticker != nil {
		w.ticker.Stop()
	}
	close(w.stopChan)
	log.Println("🛑 World stopped")
}

// StartEventLog begins writing the audit trail to filePath.
func (w *World) StartEventLog(filePath string) error {
	return w.eventLog.Start(filePath)
}

// StopEventLog flushes and closes the audit trail.
func (w *World) StopEventLog() {
	w.eventLog.Stop()
}

// GetEventLogStats returns audit log counters.
func (w *World) GetEventLogStats() AuditStats {
	return w.eventLog.GetStats()
}

// =============================================================================
// TICK
// =============================================================================

// Step runs exactly one tick at now. The loop calls it on every ticker fire;
// tests call it directly.
func (w *World) Step(now time.Time) {
	start := time.Now()
	stats, events := w.step(now)
	stats.Duration = time.Since(start)

	if w.OnEvents != nil && len(events) > 0 {
		w.OnEvents(events)
	}
	if w.OnTick != nil {
		w.OnTick(stats)
	}
}

func (w *World) step(now time.Time) (stats TickStats, all []Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 Tick %d panicked: %v", w.tickCount, r)
		}
	}()

	w.tickCount++
	dt := w.cfg.TickInterval.Seconds()

	var moves []roomMove
	for _, key := range w.roomKeys {
		events, m := w.simulateRoom(now, w.rooms[key])
		all = append(all, events...)
		moves = append(moves, m...)
	}
	w.applyTransitions(moves)

	all = append(all, w.updateMotel(now)...)

	for _, key := range w.roomKeys {
		for _, roach := range w.rooms[key].Roaches {
			roach.DecayHP(dt)
		}
	}

	if w.tickCount%BotRebalanceTicks == 0 {
		for _, key := range w.roomKeys {
			w.rooms[key].AdjustBots()
		}
	}

	w.creditKills(all)

	if w.cfg.SessionFlushTicks > 0 && w.tickCount%uint64(w.cfg.SessionFlushTicks) == 0 {
		w.flushSessionsLocked(now)
	}

	w.broadcast(all)
	w.publishSnapshot(now)
	w.eventLog.EmitEvents(w.tickCount, all)

	stats = TickStats{
		Tick:        w.tickCount,
		Players:     len(w.sessions),
		Events:      len(all),
		RoomRoaches: make(map[string]int, len(w.roomKeys)),
	}
	for _, key := range w.roomKeys {
		stats.RoomRoaches[key.String()] = len(w.rooms[key].Roaches)
	}
	return stats, all
}

// simulateRoom advances one room and collects its boundary crossings. A
// panic is contained to this room.
func (w *World) simulateRoom(now time.Time, room *Room) (events []Event, moves []roomMove) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 Room %s panicked: %v", room.Key, r)
			events, moves = nil, nil
		}
	}()

	var cursors []Point
	for _, roach := range room.Roaches {
		if !roach.IsPlayer {
			continue
		}
		if sess, ok := w.sessions[roach.ID]; ok && sess.Cursor != nil {
			cursors = append(cursors, *sess.Cursor)
		}
	}

	events = room.Simulate(now, cursors)
	key := room.Key.String()
	for i := range events {
		events[i].Room = key
	}

	for _, roach := range room.Roaches {
		if !roach.IsPlayer || roach.IsDead {
			continue
		}
		if tr, ok := room.CheckTransition(roach, roach.Upgrades.Level(UpgradeWallBounce), w.cfg.GridSize); ok {
			moves = append(moves, roomMove{roachID: roach.ID, from: room.Key, tr: tr})
		}
	}
	return events, moves
}

func (w *World) applyTransitions(moves []roomMove) {
	for _, m := range moves {
		from, to := w.rooms[m.from], w.rooms[m.tr.To]
		if from == nil || to == nil {
			continue
		}
		roach := from.RemoveRoach(m.roachID)
		if roach == nil {
			continue
		}
		PlaceAfterTransition(roach, m.tr.Dir)
		to.AddRoach(roach)

		sess, ok := w.sessions[m.roachID]
		if !ok {
			continue
		}
		sess.Room = m.tr.To
		sess.out.Send(RoomEnterMessage{
			Type:     MessageRoomEnter,
			Room:     m.tr.To.String(),
			Snapshot: to.State(),
			Motel:    w.motel.State(),
		})

		rec := NewAuditRecord(AuditTransition, w.tickCount, sess.ID, m.tr)
		rec.Room = m.tr.To.String()
		w.eventLog.Emit(rec)
	}
}

// updateMotel advances the motel and turns bank events into transfers.
func (w *World) updateMotel(now time.Time) []Event {
	events := w.motel.Update(now, w.rooms)
	for i := range events {
		e := &events[i]
		if e.Type != EventBank {
			continue
		}
		sess, ok := w.sessions[e.PlayerID]
		if !ok {
			continue
		}
		roach := w.roachFor(sess)
		if roach == nil {
			continue
		}
		amount := roach.Balance
		sess.Banked += amount
		roach.Balance = 0
		e.Amount = round2(amount)
		e.TotalBanked = round2(sess.Banked)
		if sess.stored {
			w.persister.UpdateBankedBalance(sess.ID, sess.Banked)
		}
		log.Printf("🏨 %s banked %.2f (total %.2f)", sess.Name, amount, sess.Banked)
	}
	return events
}

// creditKills bumps kill counters for players who landed a kill this tick.
func (w *World) creditKills(events []Event) {
	kills := make(map[string]int)
	for _, e := range events {
		if e.Type != EventStompKill {
			continue
		}
		if sess, ok := w.sessions[e.StomperID]; ok {
			sess.Kills++
			if sess.stored {
				kills[sess.ID]++
			}
		}
	}
	for id, n := range kills {
		w.persister.IncrementKills(id, n)
	}
}

// broadcast sends every player one filtered tick message.
func (w *World) broadcast(events []Event) {
	states := make(map[RoomKey]RoomState, len(w.rooms))
	motel := w.motel.State()

	for _, sess := range w.sessions {
		room := w.rooms[sess.Room]
		if room == nil {
			continue
		}
		state, ok := states[sess.Room]
		if !ok {
			state = room.State()
			states[sess.Room] = state
		}

		roomKey := sess.Room.String()
		filtered := make([]Event, 0, 4)
		for _, e := range events {
			if e.VisibleTo(sess.ID, roomKey) {
				filtered = append(filtered, e)
			}
		}

		cursors := make([]CursorState, 0)
		for _, roach := range room.Roaches {
			if !roach.IsPlayer || roach.ID == sess.ID {
				continue
			}
			if other, ok := w.sessions[roach.ID]; ok && other.Cursor != nil {
				cursors = append(cursors, CursorState{ID: other.ID, X: round1(other.Cursor.X), Y: round1(other.Cursor.Y)})
			}
		}

		sess.out.Send(TickMessage{
			Type:          MessageTick,
			Tick:          w.tickCount,
			Room:          state,
			Motel:         motel,
			MotelProgress: math.Round(w.motel.Progress(sess.ID).Seconds()*100) / 100,
			Events:        filtered,
			Cursors:       cursors,
			You:           sess.summary(room.Roach(sess.ID)),
		})
	}
}

// publishSnapshot writes the HTTP-facing summary into the triple buffer.
func (w *World) publishSnapshot(now time.Time) {
	snap := w.snapshots.AcquireWrite()
	snap.Timestamp = now
	snap.TickNumber = w.tickCount
	snap.Motel = w.motel.State()

	for _, key := range w.roomKeys {
		room := w.rooms[key]
		wealth := room.Wealth()
		snap.Rooms = append(snap.Rooms, RoomSummary{
			Key:     key.String(),
			Players: room.PlayerCount(),
			NPCs:    room.NPCCount(),
			Bots:    len(room.Bots),
			Wealth:  round2(wealth),
		})
		snap.RoachCount += len(room.Roaches)
		snap.BotCount += len(room.Bots)
		snap.TotalWealth += wealth
	}
	snap.TotalWealth = round2(snap.TotalWealth)
	snap.PlayerCount = len(w.sessions)

	leaders := make([]LeaderEntry, 0, len(w.sessions))
	for _, sess := range w.sessions {
		entry := LeaderEntry{
			ID:     sess.ID,
			Name:   sess.Name,
			Room:   sess.Room.String(),
			Banked: round2(sess.Banked),
			Kills:  sess.Kills,
		}
		if roach := w.roachFor(sess); roach != nil {
			entry.Balance = round2(roach.Balance)
		}
		entry.Total = round2(entry.Balance + entry.Banked)
		leaders = append(leaders, entry)
	}
	sort.Slice(leaders, func(i, j int) bool {
		if leaders[i].Total != leaders[j].Total {
			return leaders[i].Total > leaders[j].Total
		}
		return leaders[i].ID < leaders[j].ID
	})
	if limit := w.snapshots.GetLimits().MaxLeaders; len(leaders) > limit {
		leaders = leaders[:limit]
	}
	snap.Leaders = append(snap.Leaders, leaders...)

	w.snapshots.PublishWrite()
}

// =============================================================================
// SESSION REGISTRY
// =============================================================================

// Join enrols a player: creates their roach, restoring a saved session when
// one is supplied and still valid, and sends the welcome message. A second
// join for the same id replaces and disconnects the first.
func (w *World) Join(req JoinRequest) *Session {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := req.ID
	if id == "" {
		id = nextEntityID("player")
	}

	if old, ok := w.sessions[id]; ok {
		log.Printf("🔁 Player %s reconnected, replacing old connection", id)
		w.removeSessionLocked(old)
		old.out.Close()
	}

	name := req.Name
	if name == "" && req.Player != nil {
		name = req.Player.Name
	}
	if name == "" {
		name = RandomName(w.rng)
	}

	upgrades := DefaultUpgrades()
	sess := &Session{
		ID:       id,
		Name:     name,
		Room:     w.CenterRoom(),
		Upgrades: upgrades,
		out:      req.Out,
		joinedAt: w.clock(),
	}
	if p := req.Player; p != nil {
		sess.Upgrades = SanitizeUpgrades(p.Upgrades)
		sess.Banked = math.Max(0, p.BankedBalance)
		sess.Paid = p.Paid
		sess.Kills = p.TotalKills
		sess.stored = true
	}

	roach := NewPlayerRoach(id, name, sess.Upgrades, w.rng)
	if saved := req.Saved; saved != nil {
		w.restoreSaved(sess, roach, *saved)
	}

	room := w.rooms[sess.Room]
	room.AddRoach(roach)
	w.sessions[id] = sess

	sess.out.Send(WelcomeMessage{
		Type:            MessageWelcome,
		ID:              id,
		Token:           sess.Token(),
		Name:            name,
		Room:            sess.Room.String(),
		Snapshot:        room.State(),
		Motel:           w.motel.State(),
		GridSize:        w.cfg.GridSize,
		Upgrades:        sess.Upgrades.Clone(),
		UpgradeDefs:     UpgradeDefList(),
		StompCooldownMs: durationMs(sess.Upgrades.StompCooldown()),
		Banked:          round2(sess.Banked),
	})

	w.eventLog.EmitSimple(AuditJoin, w.tickCount, id, map[string]any{"name": name, "room": sess.Room.String()})
	log.Printf("👤 Player joined: %s (%s) in room %s", name, id, sess.Room)
	return sess
}

// restoreSaved applies a stored session if its room is still on the grid.
func (w *World) restoreSaved(sess *Session, roach *Roach, saved store.Session) {
	key, err := ParseRoomKey(saved.Room)
	if err != nil || !key.InGrid(w.cfg.GridSize) {
		return
	}
	if !isFinite(saved.X, saved.Y, saved.Balance, saved.HP) {
		return
	}
	sess.Room = key
	roach.X = clamp(saved.X, 0, ContainerWidth-RoachWidth)
	roach.Y = clamp(saved.Y, 0, ContainerHeight-RoachHeight)
	roach.Balance = math.Max(0, saved.Balance)
	if saved.HP > 0 {
		roach.HP = saved.HP
	}
}

// Leave removes the player if out is still the connection that owns the
// session, and persists where they were.
func (w *World) Leave(id string, out Outbox) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sess, ok := w.sessions[id]
	if !ok || sess.out != out {
		return
	}
	w.removeSessionLocked(sess)
	log.Printf("👋 Player left: %s (%s) after %v", sess.Name, id, w.clock().Sub(sess.joinedAt).Round(time.Second))
}

func (w *World) removeSessionLocked(sess *Session) {
	if room := w.rooms[sess.Room]; room != nil {
		if roach := room.RemoveRoach(sess.ID); roach != nil && w.shouldPersistSession(sess) {
			w.persister.SaveSessions([]store.Session{sess.persisted(roach, w.clock())})
		}
	}
	delete(w.sessions, sess.ID)
	w.eventLog.EmitSimple(AuditLeave, w.tickCount, sess.ID, nil)
}

func (w *World) shouldPersistSession(sess *Session) bool {
	return sess.stored && (!w.cfg.RequirePayment || sess.Paid)
}

// roachFor resolves a session's roach through its current room.
func (w *World) roachFor(sess *Session) *Roach {
	room := w.rooms[sess.Room]
	if room == nil {
		return nil
	}
	return room.Roach(sess.ID)
}

// HandleCommand applies one validated command from a player. Commands for
// unknown players are ignored.
func (w *World) HandleCommand(id string, cmd Command) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sess, ok := w.sessions[id]
	if !ok {
		return
	}
	roach := w.roachFor(sess)
	if roach == nil {
		return
	}
	now := w.clock()

	switch c := cmd.(type) {
	case InputCommand:
		if c.Cursor != nil {
			cursor := *c.Cursor
			sess.Cursor = &cursor
		}
		if !roach.IsDead {
			roach.SetPending(c.Seq, c.State)
		}

	case StompCommand:
		if roach.IsDead || now.Sub(sess.lastStomp) < sess.Upgrades.StompCooldown() {
			return
		}
		sess.lastStomp = now
		w.rooms[sess.Room].QueueStomp(Stomp{
			PlayerID: id,
			X:        c.X,
			Y:        c.Y,
			Seq:      c.Seq,
			Upgrades: sess.Upgrades.Clone(),
		})

	case HealCommand:
		if roach.IsDead || roach.Balance < HealCost || now.Sub(sess.lastHeal) < HealCooldown {
			return
		}
		sess.lastHeal = now
		roach.Balance -= HealCost
		roach.Heal(HealAmount)

	case BuyUpgradeCommand:
		w.buyUpgrade(sess, roach, c.Upgrade)
	}
}

// buyUpgrade charges the wallet first and the bank for the remainder.
func (w *World) buyUpgrade(sess *Session, roach *Roach, key string) {
	fail := func(reason string) {
		sess.out.Send(UpgradeFailedMessage{Type: MessageUpgradeFailed, Upgrade: key, Reason: reason})
	}

	if w.cfg.RequirePayment && !sess.Paid {
		fail(ReasonPaymentRequired)
		return
	}
	level := sess.Upgrades.Level(key)
	cost, ok := UpgradeCost(key, level)
	if !ok {
		fail(ReasonMaxed)
		return
	}
	if roach.Balance+sess.Banked < cost {
		fail(ReasonInsufficientFunds)
		return
	}

	fromWallet := math.Min(roach.Balance, cost)
	fromBank := cost - fromWallet
	roach.Balance -= fromWallet
	sess.Banked -= fromBank
	sess.Upgrades[key] = level + 1

	if sess.stored {
		w.persister.UpdateUpgrades(sess.ID, sess.Upgrades)
		if fromBank > 0 {
			w.persister.UpdateBankedBalance(sess.ID, sess.Banked)
		}
	}

	sess.out.Send(UpgradePurchasedMessage{
		Type:            MessageUpgradePurchased,
		Upgrade:         key,
		Level:           level + 1,
		Cost:            cost,
		Upgrades:        sess.Upgrades.Clone(),
		Balance:         round2(roach.Balance),
		Banked:          round2(sess.Banked),
		StompCooldownMs: durationMs(sess.Upgrades.StompCooldown()),
	})
	w.eventLog.EmitSimple(AuditPurchase, w.tickCount, sess.ID, map[string]any{"upgrade": key, "level": level + 1, "cost": cost})
}

// SetPaid flips the paid flag for an online player and persists it either
// way. Reports whether the player is online.
func (w *World) SetPaid(id string, paid bool) bool {
	w.persister.SetPaid(id, paid)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.eventLog.EmitSimple(AuditPaid, w.tickCount, id, paid)
	sess, ok := w.sessions[id]
	if ok {
		sess.Paid = paid
	}
	return ok
}

// FlushSessions saves every eligible session now. Used on shutdown.
func (w *World) FlushSessions() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushSessionsLocked(w.clock())
}

func (w *World) flushSessionsLocked(now time.Time) {
	batch := make([]store.Session, 0, len(w.sessions))
	for _, sess := range w.sessions {
		if !w.shouldPersistSession(sess) {
			continue
		}
		if roach := w.roachFor(sess); roach != nil {
			batch = append(batch, sess.persisted(roach, now))
		}
	}
	w.persister.SaveSessions(batch)
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Snapshot returns a copy of the latest published world summary.
func (w *World) Snapshot() *WorldSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshots.AcquireRead().Clone()
}

// RoomState returns the roster of one room.
func (w *World) RoomState(key RoomKey) (RoomState, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	room, ok := w.rooms[key]
	if !ok {
		return RoomState{}, false
	}
	return room.State(), true
}

// PlayerCount returns the number of connected players.
func (w *World) PlayerCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.sessions)
}

// TickCount returns the number of completed ticks.
func (w *World) TickCount() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tickCount
}
