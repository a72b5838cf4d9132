package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpath/gamify/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, FileName)); os.IsNotExist(err) {
		t.Errorf("%s should exist", FileName)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	_, err = db.UpdateProfile(context.Background(), "u1", func(p *domain.Profile) error {
		p.TotalXP = 42
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()
	p, err := db.LoadProfile(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(42), p.TotalXP)
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.Ping(context.Background()))
}

// ─── Profiles ───────────────────────────────────────────────────────────────

func TestLoadProfile_Absent(t *testing.T) {
	db := newTestDB(t)
	p, err := db.LoadProfile(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestUpdateProfile_CreatesAndUpdates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p, err := db.UpdateProfile(ctx, "u1", func(p *domain.Profile) error {
		assert.True(t, p.IsNew())
		p.CreatedAt = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
		p.TotalXP = 10
		p.CurrentStreak = 1
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.TotalXP)

	_, err = db.UpdateProfile(ctx, "u1", func(p *domain.Profile) error {
		assert.False(t, p.IsNew())
		p.TotalXP += 5
		return nil
	})
	require.NoError(t, err)

	got, err := db.LoadProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.TotalXP)
	assert.Equal(t, 1, got.CurrentStreak)
}

func TestUpdateProfile_ErrorRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := db.UpdateProfile(ctx, "u1", func(p *domain.Profile) error {
		p.TotalXP = 999
		return boom
	})
	assert.ErrorIs(t, err, boom)

	p, err := db.LoadProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, p, "failed update must not create a profile")
}

func TestUpdateProfile_ConcurrentIncrements(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.UpdateProfile(ctx, "u1", func(p *domain.Profile) error {
				p.TotalXP++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := db.LoadProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), p.TotalXP)
}

func TestLoadProfile_NormalizesLegacyBadges(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	legacy := `{"userId":"old","totalXP":120,"unlockedBadges":["first-steps",{"id":"streak-3","unlockedAt":"2025-02-01T00:00:00Z"},"first-steps"]}`
	_, err := db.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, doc, total_xp, created_at, updated_at) VALUES (?, ?, 120, 1700000000, 1700000000)`,
		"old", legacy)
	require.NoError(t, err)

	p, err := db.LoadProfile(ctx, "old")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Len(t, p.UnlockedBadges, 2)
	assert.True(t, p.UnlockedBadges.Has("streak-3"))
	assert.False(t, p.IsNew(), "created_at column backfills CreatedAt")

	// A no-op update rewrites the document canonically.
	_, err = db.UpdateProfile(ctx, "old", func(*domain.Profile) error { return nil })
	require.NoError(t, err)

	var doc string
	require.NoError(t, db.db.GetContext(ctx, &doc, `SELECT doc FROM profiles WHERE user_id = ?`, "old"))
	assert.Contains(t, doc, `"badgeId":"streak-3"`)
	assert.NotContains(t, doc, `"id":"streak-3"`)
}

func TestProfileIDs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"carol", "alice", "bob"} {
		_, err := db.UpdateProfile(ctx, id, func(*domain.Profile) error { return nil })
		require.NoError(t, err)
	}
	ids, err := db.ProfileIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, ids)
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

func TestLeaderboard_EmptyState(t *testing.T) {
	db := newTestDB(t)
	lb, err := db.LoadLeaderboard(context.Background())
	require.NoError(t, err)
	require.NotNil(t, lb)
	assert.Empty(t, lb.State.CurrentWeekID)
	assert.NotNil(t, lb.Entries)
	assert.NotNil(t, lb.State.WeeklyData)
}

func TestLeaderboard_UpdateAndRollback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.UpdateLeaderboard(ctx, func(lb *domain.Leaderboard) error {
		lb.State.CurrentWeekID = "2025-W28"
		lb.Entries["u1"] = &domain.LeagueEntry{UserID: "u1", League: domain.LeagueGold, IsOptedIn: true, WeeklyXP: 40}
		return nil
	})
	require.NoError(t, err)

	_, err = db.UpdateLeaderboard(ctx, func(lb *domain.Leaderboard) error {
		lb.Entries["u1"].WeeklyXP = 0
		return errors.New("abort")
	})
	require.Error(t, err)

	lb, err := db.LoadLeaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-W28", lb.State.CurrentWeekID)
	require.Contains(t, lb.Entries, "u1")
	assert.Equal(t, int64(40), lb.Entries["u1"].WeeklyXP)
	assert.Equal(t, domain.LeagueGold, lb.Entries["u1"].League)
}
