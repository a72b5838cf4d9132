package domain

import "context"

// ─── Storage Boundary ───────────────────────────────────────────────────────
// Infrastructure implements Store; the application layer depends on it.

// Store persists profiles and the leaderboard aggregate.
//
// Update methods are read-modify-write transactions: the current value (or a
// fresh default when absent) is handed to fn, and whatever fn leaves behind
// is saved atomically. A non-nil error from fn aborts without writing.
type Store interface {
	// LoadProfile returns nil, nil when the user has no profile yet.
	LoadProfile(ctx context.Context, userID string) (*Profile, error)
	UpdateProfile(ctx context.Context, userID string, fn func(*Profile) error) (*Profile, error)
	ProfileIDs(ctx context.Context) ([]string, error)

	// LoadLeaderboard never returns nil; an empty store yields NewLeaderboard().
	LoadLeaderboard(ctx context.Context) (*Leaderboard, error)
	UpdateLeaderboard(ctx context.Context, fn func(*Leaderboard) error) (*Leaderboard, error)

	Ping(ctx context.Context) error
	Close() error
}
