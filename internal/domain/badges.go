package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// UnlockedBadge records when a badge was earned.
type UnlockedBadge struct {
	BadgeID    string    `json:"badgeId"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

// UnlockedBadges is the per-user set of earned badges, ordered by unlock time.
//
// Stored profiles predate the canonical shape: older documents hold plain
// badge-id strings, or objects keyed "id" instead of "badgeId". Decoding
// accepts every form and collapses duplicates to the earliest unlock.
type UnlockedBadges []UnlockedBadge

// Has reports whether id is already unlocked.
func (b UnlockedBadges) Has(id string) bool {
	for _, u := range b {
		if u.BadgeID == id {
			return true
		}
	}
	return false
}

// Get returns the unlock record for id.
func (b UnlockedBadges) Get(id string) (UnlockedBadge, bool) {
	for _, u := range b {
		if u.BadgeID == id {
			return u, true
		}
	}
	return UnlockedBadge{}, false
}

type legacyBadge struct {
	BadgeID    string     `json:"badgeId"`
	ID         string     `json:"id"`
	UnlockedAt *time.Time `json:"unlockedAt"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *UnlockedBadges) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*b = UnlockedBadges{}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unlocked badges: %w", err)
	}

	earliest := make(map[string]time.Time, len(raw))
	for _, item := range raw {
		var id string
		var at time.Time

		trimmed := bytes.TrimSpace(item)
		if len(trimmed) > 0 && trimmed[0] == '"' {
			if err := json.Unmarshal(trimmed, &id); err != nil {
				return fmt.Errorf("unlocked badge id: %w", err)
			}
		} else {
			var lb legacyBadge
			if err := json.Unmarshal(trimmed, &lb); err != nil {
				return fmt.Errorf("unlocked badge: %w", err)
			}
			id = lb.BadgeID
			if id == "" {
				id = lb.ID
			}
			if lb.UnlockedAt != nil {
				at = *lb.UnlockedAt
			}
		}
		if id == "" {
			continue
		}

		prev, seen := earliest[id]
		switch {
		case !seen:
			earliest[id] = at
		case at.IsZero():
		case prev.IsZero() || at.Before(prev):
			earliest[id] = at
		}
	}

	out := make(UnlockedBadges, 0, len(earliest))
	for id, at := range earliest {
		out = append(out, UnlockedBadge{BadgeID: id, UnlockedAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].UnlockedAt.Before(out[j].UnlockedAt)
		}
		return out[i].BadgeID < out[j].BadgeID
	})
	*b = out
	return nil
}
