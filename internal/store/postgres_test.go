package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// Runs only against a disposable database: DATABASE_URL=postgres://... go test ./internal/store
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestPostgresPlayerLifecycle(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	p, err := s.CreatePlayer(ctx, "Greasy Lurker")
	if err != nil {
		t.Fatalf("CreatePlayer failed: %v", err)
	}

	if err := s.UpdateBankedBalance(ctx, p.ID, 4.5); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateUpgrades(ctx, p.ID, map[string]int{"multiStomp": 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.IncrementKills(ctx, p.ID, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.LinkPlatform(ctx, p.ID, "test", p.ID); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPlayerByPlatform(ctx, "test", p.ID)
	if err != nil {
		t.Fatalf("GetPlayerByPlatform failed: %v", err)
	}
	if got.BankedBalance != 4.5 {
		t.Errorf("Expected banked 4.5, got %.2f", got.BankedBalance)
	}
	if got.Upgrades["multiStomp"] != 2 {
		t.Errorf("Expected multiStomp 2, got %d", got.Upgrades["multiStomp"])
	}
	if got.TotalKills != 3 {
		t.Errorf("Expected 3 kills, got %d", got.TotalKills)
	}

	if _, err := s.GetPlayer(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPostgresSessions(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	p, err := s.CreatePlayer(ctx, "Tiny Bug")
	if err != nil {
		t.Fatal(err)
	}

	err = s.BulkSaveSessions(ctx, []Session{{PlayerID: p.ID, Room: "2,0", X: 11, Y: 22, Balance: 3.3, HP: 2}})
	if err != nil {
		t.Fatalf("BulkSaveSessions failed: %v", err)
	}

	got, err := s.GetSession(ctx, p.ID, time.Minute)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Room != "2,0" || got.X != 11 || got.Balance != 3.3 {
		t.Errorf("Unexpected session: %+v", got)
	}
}
