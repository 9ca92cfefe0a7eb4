package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// upgradeColumns maps upgrade keys to player table columns.
var upgradeColumns = map[string]string{
	"bootSize":   "boot_size_level",
	"multiStomp": "multi_stomp_level",
	"rateOfFire": "rate_of_fire_level",
	"goldMagnet": "gold_magnet_level",
	"wallBounce": "wall_bounce_level",
	"idleIncome": "idle_income_level",
	"shellArmor": "shell_armor_level",
}

const schema = `
CREATE TABLE IF NOT EXISTS players (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	banked_balance     DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_kills        INTEGER NOT NULL DEFAULT 0,
	boot_size_level    INTEGER NOT NULL DEFAULT 0,
	multi_stomp_level  INTEGER NOT NULL DEFAULT 0,
	rate_of_fire_level INTEGER NOT NULL DEFAULT 0,
	gold_magnet_level  INTEGER NOT NULL DEFAULT 0,
	wall_bounce_level  INTEGER NOT NULL DEFAULT 0,
	idle_income_level  INTEGER NOT NULL DEFAULT 0,
	shell_armor_level  INTEGER NOT NULL DEFAULT 0,
	paid               BOOLEAN NOT NULL DEFAULT FALSE,
	platform_type      TEXT,
	platform_id        TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS players_platform_idx
	ON players (platform_type, platform_id) WHERE platform_type IS NOT NULL;
CREATE TABLE IF NOT EXISTS sessions (
	player_id  TEXT PRIMARY KEY REFERENCES players(id) ON DELETE CASCADE,
	room       TEXT NOT NULL,
	position_x DOUBLE PRECISION NOT NULL DEFAULT 0,
	position_y DOUBLE PRECISION NOT NULL DEFAULT 0,
	balance    DOUBLE PRECISION NOT NULL DEFAULT 0,
	hp         DOUBLE PRECISION NOT NULL DEFAULT 2,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const playerColumns = `id, name, banked_balance, total_kills,
	boot_size_level, multi_stomp_level, rate_of_fire_level, gold_magnet_level,
	wall_bounce_level, idle_income_level, shell_armor_level,
	paid, COALESCE(platform_type, ''), COALESCE(platform_id, ''), created_at, last_seen`

const upsertSession = `
	INSERT INTO sessions (player_id, room, position_x, position_y, balance, hp, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, now())
	ON CONFLICT (player_id) DO UPDATE SET
		room = EXCLUDED.room,
		position_x = EXCLUDED.position_x,
		position_y = EXCLUDED.position_y,
		balance = EXCLUDED.balance,
		hp = EXCLUDED.hp,
		updated_at = EXCLUDED.updated_at`

// PostgresStore is a Store backed by PostgreSQL through a pgx pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) CreatePlayer(ctx context.Context, name string) (Player, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(ctx, `INSERT INTO players (id, name) VALUES ($1, $2)`, id, name)
	if err != nil {
		return Player{}, fmt.Errorf("create player: %w", err)
	}
	return s.GetPlayer(ctx, id)
}

func (s *PostgresStore) GetPlayer(ctx context.Context, id string) (Player, error) {
	row := s.db.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id)
	return scanPlayer(row)
}

func (s *PostgresStore) GetPlayerByPlatform(ctx context.Context, platformType, platformID string) (Player, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE platform_type = $1 AND platform_id = $2`,
		platformType, platformID)
	return scanPlayer(row)
}

func (s *PostgresStore) LinkPlatform(ctx context.Context, playerID, platformType, platformID string) error {
	return s.execOne(ctx, "link platform",
		`UPDATE players SET platform_type = $2, platform_id = $3, last_seen = now() WHERE id = $1`,
		playerID, platformType, platformID)
}

func (s *PostgresStore) GetSession(ctx context.Context, playerID string, maxAge time.Duration) (Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx, `
		SELECT player_id, room, position_x, position_y, balance, hp, updated_at
		FROM sessions
		WHERE player_id = $1 AND updated_at > $2
	`, playerID, time.Now().Add(-maxAge)).Scan(
		&sess.PlayerID, &sess.Room, &sess.X, &sess.Y, &sess.Balance, &sess.HP, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess Session) error {
	_, err := s.db.Exec(ctx, upsertSession,
		sess.PlayerID, sess.Room, sess.X, sess.Y, sess.Balance, sess.HP)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// BulkSaveSessions upserts all sessions in a single transaction.
func (s *PostgresStore) BulkSaveSessions(ctx context.Context, sessions []Session) error {
	if len(sessions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin bulk save: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, sess := range sessions {
		batch.Queue(upsertSession, sess.PlayerID, sess.Room, sess.X, sess.Y, sess.Balance, sess.HP)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("bulk save sessions: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) CleanStaleSessions(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE updated_at < $1`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("clean sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) UpdateBankedBalance(ctx context.Context, playerID string, banked float64) error {
	return s.execOne(ctx, "update banked balance",
		`UPDATE players SET banked_balance = $2, last_seen = now() WHERE id = $1`, playerID, banked)
}

func (s *PostgresStore) UpdateUpgrades(ctx context.Context, playerID string, upgrades map[string]int) error {
	sets := make([]string, 0, len(UpgradeKeys))
	args := []any{playerID}
	for _, key := range UpgradeKeys {
		args = append(args, upgrades[key])
		sets = append(sets, fmt.Sprintf("%s = $%d", upgradeColumns[key], len(args)))
	}
	query := `UPDATE players SET ` + strings.Join(sets, ", ") + `, last_seen = now() WHERE id = $1`
	return s.execOne(ctx, "update upgrades", query, args...)
}

func (s *PostgresStore) IncrementKills(ctx context.Context, playerID string, n int) error {
	return s.execOne(ctx, "increment kills",
		`UPDATE players SET total_kills = total_kills + $2, last_seen = now() WHERE id = $1`, playerID, n)
}

func (s *PostgresStore) SetPaid(ctx context.Context, playerID string, paid bool) error {
	return s.execOne(ctx, "set paid",
		`UPDATE players SET paid = $2, last_seen = now() WHERE id = $1`, playerID, paid)
}

func (s *PostgresStore) TopBanked(ctx context.Context, limit int) ([]Player, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+playerColumns+` FROM players ORDER BY banked_balance DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top banked: %w", err)
	}
	defer rows.Close()

	var out []Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPlayer(row pgx.Row) (Player, error) {
	var (
		p      Player
		levels [7]int
	)
	err := row.Scan(&p.ID, &p.Name, &p.BankedBalance, &p.TotalKills,
		&levels[0], &levels[1], &levels[2], &levels[3], &levels[4], &levels[5], &levels[6],
		&p.Paid, &p.PlatformType, &p.PlatformID, &p.CreatedAt, &p.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return Player{}, ErrNotFound
	}
	if err != nil {
		return Player{}, fmt.Errorf("scan player: %w", err)
	}
	p.Upgrades = make(map[string]int, len(UpgradeKeys))
	for i, key := range UpgradeKeys {
		p.Upgrades[key] = levels[i]
	}
	return p, nil
}
