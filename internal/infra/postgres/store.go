// Package postgres is the networked Store: one JSONB document per
// aggregate, serialized with row locks.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnpath/gamify/internal/domain"
)

var _ domain.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS gamify_profiles (
    user_id        TEXT PRIMARY KEY,
    doc            JSONB NOT NULL,
    total_xp       BIGINT NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    created_at     TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    CONSTRAINT valid_total_xp CHECK (total_xp >= 0)
);

CREATE INDEX IF NOT EXISTS idx_gamify_profiles_total_xp ON gamify_profiles(total_xp DESC);

CREATE TABLE IF NOT EXISTS gamify_leaderboard (
    id         SMALLINT PRIMARY KEY CHECK (id = 1),
    doc        JSONB NOT NULL,
    week_id    TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

INSERT INTO gamify_leaderboard (id, doc) VALUES (1, '{}'::jsonb) ON CONFLICT (id) DO NOTHING;
`

// Store persists aggregates in PostgreSQL through a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and applies the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database URL: %w", err)
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 10
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping database: %w", err)
	}

	s := &Store{pool: pool}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// withTx commits when fn returns nil and rolls back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStorage, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStorage, err)
	}
	return nil
}

func decodeProfile(userID string, doc []byte, created time.Time) (*domain.Profile, error) {
	p := domain.NewProfile(userID)
	if err := json.Unmarshal(doc, p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	p.UserID = userID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = created.UTC()
	}
	return p, nil
}

// ─── Profiles ───────────────────────────────────────────────────────────────

// LoadProfile returns the stored profile, or nil when absent.
func (s *Store) LoadProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var (
		doc     []byte
		created time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT doc, created_at FROM gamify_profiles WHERE user_id = $1`, userID,
	).Scan(&doc, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get profile: %v", domain.ErrStorage, err)
	}
	return decodeProfile(userID, doc, created)
}

// UpdateProfile locks the user's row (creating a placeholder if needed),
// applies fn and saves. Rolling back also removes the placeholder.
func (s *Store) UpdateProfile(ctx context.Context, userID string, fn func(*domain.Profile) error) (*domain.Profile, error) {
	var out *domain.Profile
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO gamify_profiles (user_id, doc) VALUES ($1, '{}'::jsonb) ON CONFLICT (user_id) DO NOTHING`,
			userID,
		); err != nil {
			return fmt.Errorf("%w: reserve profile: %v", domain.ErrStorage, err)
		}

		var (
			doc     []byte
			created time.Time
		)
		if err := tx.QueryRow(ctx,
			`SELECT doc, created_at FROM gamify_profiles WHERE user_id = $1 FOR UPDATE`, userID,
		).Scan(&doc, &created); err != nil {
			return fmt.Errorf("%w: lock profile: %v", domain.ErrStorage, err)
		}

		p := domain.NewProfile(userID)
		if string(doc) != "{}" {
			var err error
			if p, err = decodeProfile(userID, doc, created); err != nil {
				return err
			}
		}
		if err := fn(p); err != nil {
			return err
		}

		enc, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode profile %s: %w", userID, err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE gamify_profiles
			 SET doc = $2::jsonb, total_xp = $3, current_streak = $4, updated_at = NOW()
			 WHERE user_id = $1`,
			userID, string(enc), p.TotalXP, p.CurrentStreak,
		); err != nil {
			return fmt.Errorf("%w: save profile: %v", domain.ErrStorage, err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProfileIDs lists every stored user, sorted.
func (s *Store) ProfileIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM gamify_profiles ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list profiles: %v", domain.ErrStorage, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%w: scan profiles: %v", domain.ErrStorage, err)
	}
	return ids, nil
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

func decodeLeaderboard(doc []byte) (*domain.Leaderboard, error) {
	lb := domain.NewLeaderboard()
	if err := json.Unmarshal(doc, lb); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}
	lb.Normalize()
	return lb, nil
}

// LoadLeaderboard returns the singleton aggregate.
func (s *Store) LoadLeaderboard(ctx context.Context) (*domain.Leaderboard, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM gamify_leaderboard WHERE id = 1`).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewLeaderboard(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get leaderboard: %v", domain.ErrStorage, err)
	}
	return decodeLeaderboard(doc)
}

// UpdateLeaderboard locks the singleton row for the duration of fn.
func (s *Store) UpdateLeaderboard(ctx context.Context, fn func(*domain.Leaderboard) error) (*domain.Leaderboard, error) {
	var out *domain.Leaderboard
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var doc []byte
		if err := tx.QueryRow(ctx,
			`SELECT doc FROM gamify_leaderboard WHERE id = 1 FOR UPDATE`,
		).Scan(&doc); err != nil {
			return fmt.Errorf("%w: lock leaderboard: %v", domain.ErrStorage, err)
		}
		lb, err := decodeLeaderboard(doc)
		if err != nil {
			return err
		}
		if err := fn(lb); err != nil {
			return err
		}

		enc, err := json.Marshal(lb)
		if err != nil {
			return fmt.Errorf("encode leaderboard: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE gamify_leaderboard SET doc = $1::jsonb, week_id = $2, updated_at = NOW() WHERE id = 1`,
			string(enc), lb.State.CurrentWeekID,
		); err != nil {
			return fmt.Errorf("%w: save leaderboard: %v", domain.ErrStorage, err)
		}
		out = lb
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
