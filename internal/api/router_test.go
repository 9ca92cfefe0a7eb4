package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"roach-arena/internal/game"
	"roach-arena/internal/store"
)

// mockWorld implements WorldInterface for handler tests.
type mockWorld struct {
	mu       sync.Mutex
	snapshot *game.WorldSnapshot
	rooms    map[game.RoomKey]game.RoomState
	online   map[string]bool
	paid     map[string]bool
	joins    []game.JoinRequest
	commands []game.Command
	left     []string
}

func newMockWorld() *mockWorld {
	return &mockWorld{
		snapshot: &game.WorldSnapshot{
			TickNumber:  42,
			PlayerCount: 3,
			Leaders: []game.LeaderEntry{
				{ID: "a", Name: "Alpha", Total: 30},
				{ID: "b", Name: "Bravo", Total: 20},
				{ID: "c", Name: "Charlie", Total: 10},
			},
		},
		rooms: map[game.RoomKey]game.RoomState{
			{X: 1, Y: 1}: {Key: "1,1", Roaches: []game.RoachState{{ID: "a"}}},
		},
		online: map[string]bool{"a": true},
		paid:   make(map[string]bool),
	}
}

func (m *mockWorld) Snapshot() *game.WorldSnapshot {
	return m.snapshot.Clone()
}

func (m *mockWorld) RoomState(key game.RoomKey) (game.RoomState, bool) {
	st, ok := m.rooms[key]
	return st, ok
}

func (m *mockWorld) SetPaid(id string, paid bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paid[id] = paid
	return m.online[id]
}

func (m *mockWorld) Join(req game.JoinRequest) *game.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins = append(m.joins, req)
	return &game.Session{ID: req.ID, Name: req.Name}
}

func (m *mockWorld) Leave(id string, out game.Outbox) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left = append(m.left, id)
}

func (m *mockWorld) HandleCommand(id string, cmd game.Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, cmd)
}

func newTestRouter(world WorldInterface, st store.Store) http.Handler {
	return NewRouter(RouterConfig{
		World: world,
		Store: st,
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
		},
		AdminUser:      "admin",
		AdminPass:      "secret",
		DisableLogging: true,
	})
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(newMockWorld(), nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["tick"] != float64(42) || body["players"] != float64(3) {
		t.Errorf("Unexpected health body: %v", body)
	}
}

func TestStateEndpoint(t *testing.T) {
	router := newTestRouter(newMockWorld(), nil)

	req := httptest.NewRequest("GET", "/api/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var snap game.WorldSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.TickNumber != 42 || len(snap.Leaders) != 3 {
		t.Errorf("Unexpected snapshot: tick=%d leaders=%d", snap.TickNumber, len(snap.Leaders))
	}
}

func TestRoomEndpoint(t *testing.T) {
	router := newTestRouter(newMockWorld(), nil)

	tests := []struct {
		path string
		code int
	}{
		{"/api/rooms/1,1", http.StatusOK},
		{"/api/rooms/2,2", http.StatusNotFound},
		{"/api/rooms/nope", http.StatusBadRequest},
		{"/api/rooms/-1,0", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.code {
				t.Errorf("Expected status %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p1, _ := st.CreatePlayer(ctx, "Saver")
	p2, _ := st.CreatePlayer(ctx, "Spender")
	st.UpdateBankedBalance(ctx, p1.ID, 50)
	st.UpdateBankedBalance(ctx, p2.ID, 5)

	tests := []struct {
		name    string
		store   store.Store
		query   string
		code    int
		wantLen int
		firstID string
	}{
		{"live default", nil, "", http.StatusOK, 3, "a"},
		{"live limited", nil, "?limit=2", http.StatusOK, 2, "a"},
		{"bad limit", nil, "?limit=zero", http.StatusBadRequest, 0, ""},
		{"negative limit", nil, "?limit=-4", http.StatusBadRequest, 0, ""},
		{"store without backend", nil, "?source=store", http.StatusServiceUnavailable, 0, ""},
		{"store", st, "?source=store", http.StatusOK, 2, p1.ID},
		{"store limited", st, "?source=store&limit=1", http.StatusOK, 1, p1.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(newMockWorld(), tt.store)
			req := httptest.NewRequest("GET", "/api/leaderboard"+tt.query, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.code {
				t.Fatalf("Expected status %d, got %d", tt.code, rec.Code)
			}
			if tt.code != http.StatusOK {
				return
			}
			var rows []map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
				t.Fatal(err)
			}
			if len(rows) != tt.wantLen {
				t.Fatalf("Expected %d rows, got %d", tt.wantLen, len(rows))
			}
			if rows[0]["id"] != tt.firstID {
				t.Errorf("Expected %s first, got %v", tt.firstID, rows[0]["id"])
			}
		})
	}
}

func TestUpgradesEndpoint(t *testing.T) {
	router := newTestRouter(newMockWorld(), nil)

	req := httptest.NewRequest("GET", "/api/upgrades", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var defs []struct {
		Key      string    `json:"key"`
		MaxLevel int       `json:"maxLevel"`
		Costs    []float64 `json:"costs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &defs); err != nil {
		t.Fatal(err)
	}
	if len(defs) != len(game.UpgradeOrder) {
		t.Fatalf("Expected %d upgrades, got %d", len(game.UpgradeOrder), len(defs))
	}
	for _, d := range defs {
		if len(d.Costs) != d.MaxLevel {
			t.Errorf("%s: expected %d costs, got %d", d.Key, d.MaxLevel, len(d.Costs))
		}
	}
}

func TestSetPaidEndpoint(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	stored, _ := st.CreatePlayer(ctx, "Payer")

	tests := []struct {
		name  string
		store store.Store
		id    string
		user  string
		pass  string
		body  string
		code  int
	}{
		{"no credentials", nil, "a", "", "", `{"paid":true}`, http.StatusUnauthorized},
		{"wrong password", nil, "a", "admin", "guess", `{"paid":true}`, http.StatusUnauthorized},
		{"online player", nil, "a", "admin", "secret", `{"paid":true}`, http.StatusOK},
		{"offline without store", nil, "zed", "admin", "secret", `{"paid":true}`, http.StatusNotFound},
		{"stored offline player", st, stored.ID, "admin", "secret", `{"paid":true}`, http.StatusOK},
		{"unknown stored player", st, "missing", "admin", "secret", `{"paid":true}`, http.StatusNotFound},
		{"missing flag", nil, "a", "admin", "secret", `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			world := newMockWorld()
			router := newTestRouter(world, tt.store)

			req := httptest.NewRequest("POST", "/api/admin/players/"+tt.id+"/paid", strings.NewReader(tt.body))
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.code {
				t.Fatalf("Expected status %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
			if tt.code == http.StatusOK && !world.paid[tt.id] {
				t.Errorf("Expected world to receive paid=true for %s", tt.id)
			}
		})
	}
}

func TestAdminDisabledWithoutCredentials(t *testing.T) {
	router := NewRouter(RouterConfig{
		World:          newMockWorld(),
		DisableLogging: true,
	})

	req := httptest.NewRequest("POST", "/api/admin/players/a/paid", strings.NewReader(`{"paid":true}`))
	req.SetBasicAuth("", "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rec.Code)
	}
}

func TestNotFound(t *testing.T) {
	router := newTestRouter(newMockWorld(), nil)

	req := httptest.NewRequest("GET", "/api/nothing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	router := NewRouter(RouterConfig{
		World: newMockWorld(),
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 1,
			Burst:             2,
		},
		DisableLogging: true,
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("Expected the burst to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after the burst, got %d", codes[2])
	}
}
