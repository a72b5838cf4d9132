package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/learnpath/gamify/internal/domain"
)

var _ domain.Store = (*DB)(nil)

type profileRow struct {
	UserID    string `db:"user_id"`
	Doc       string `db:"doc"`
	CreatedAt int64  `db:"created_at"`
}

func decodeProfile(row profileRow) (*domain.Profile, error) {
	p := domain.NewProfile(row.UserID)
	if err := json.Unmarshal([]byte(row.Doc), p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", row.UserID, err)
	}
	p.UserID = row.UserID
	if p.CreatedAt.IsZero() && row.CreatedAt > 0 {
		p.CreatedAt = time.Unix(row.CreatedAt, 0).UTC()
	}
	return p, nil
}

// ─── Profiles ───────────────────────────────────────────────────────────────

// LoadProfile returns the stored profile, or nil when absent.
func (d *DB) LoadProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var row profileRow
	err := d.db.GetContext(ctx, &row,
		`SELECT user_id, doc, created_at FROM profiles WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get profile: %v", domain.ErrStorage, err)
	}
	return decodeProfile(row)
}

// UpdateProfile loads (or defaults) the profile, applies fn and saves the
// result in one transaction. An error from fn is returned as-is and
// nothing is written.
func (d *DB) UpdateProfile(ctx context.Context, userID string, fn func(*domain.Profile) error) (*domain.Profile, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", domain.ErrStorage, err)
	}
	defer tx.Rollback()

	var row profileRow
	var p *domain.Profile
	err = tx.GetContext(ctx, &row,
		`SELECT user_id, doc, created_at FROM profiles WHERE user_id = ?`, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p = domain.NewProfile(userID)
	case err != nil:
		return nil, fmt.Errorf("%w: get profile: %v", domain.ErrStorage, err)
	default:
		if p, err = decodeProfile(row); err != nil {
			return nil, err
		}
	}

	if err := fn(p); err != nil {
		return nil, err
	}
	if err := saveProfile(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", domain.ErrStorage, err)
	}
	return p, nil
}

func saveProfile(ctx context.Context, tx *sqlx.Tx, p *domain.Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.UserID, err)
	}
	now := time.Now().Unix()
	created := now
	if !p.CreatedAt.IsZero() {
		created = p.CreatedAt.Unix()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (user_id, doc, total_xp, current_streak, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   doc = excluded.doc,
		   total_xp = excluded.total_xp,
		   current_streak = excluded.current_streak,
		   updated_at = excluded.updated_at`,
		p.UserID, string(doc), p.TotalXP, p.CurrentStreak, created, now,
	)
	if err != nil {
		return fmt.Errorf("%w: save profile: %v", domain.ErrStorage, err)
	}
	return nil
}

// ProfileIDs lists every stored user, sorted.
func (d *DB) ProfileIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := d.db.SelectContext(ctx, &ids, `SELECT user_id FROM profiles ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("%w: list profiles: %v", domain.ErrStorage, err)
	}
	return ids, nil
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

func decodeLeaderboard(doc string) (*domain.Leaderboard, error) {
	lb := domain.NewLeaderboard()
	if err := json.Unmarshal([]byte(doc), lb); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}
	lb.Normalize()
	return lb, nil
}

// LoadLeaderboard returns the singleton aggregate.
func (d *DB) LoadLeaderboard(ctx context.Context) (*domain.Leaderboard, error) {
	var doc string
	err := d.db.GetContext(ctx, &doc, `SELECT doc FROM leaderboard WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewLeaderboard(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get leaderboard: %v", domain.ErrStorage, err)
	}
	return decodeLeaderboard(doc)
}

// UpdateLeaderboard applies fn to the singleton in one transaction.
func (d *DB) UpdateLeaderboard(ctx context.Context, fn func(*domain.Leaderboard) error) (*domain.Leaderboard, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", domain.ErrStorage, err)
	}
	defer tx.Rollback()

	var doc string
	lb := domain.NewLeaderboard()
	err = tx.GetContext(ctx, &doc, `SELECT doc FROM leaderboard WHERE id = 1`)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("%w: get leaderboard: %v", domain.ErrStorage, err)
	default:
		if lb, err = decodeLeaderboard(doc); err != nil {
			return nil, err
		}
	}

	if err := fn(lb); err != nil {
		return nil, err
	}

	out, err := json.Marshal(lb)
	if err != nil {
		return nil, fmt.Errorf("encode leaderboard: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO leaderboard (id, doc, week_id, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, week_id = excluded.week_id, updated_at = excluded.updated_at`,
		string(out), lb.State.CurrentWeekID, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: save leaderboard: %v", domain.ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", domain.ErrStorage, err)
	}
	return lb, nil
}
