package domain

import (
	"fmt"
	"strings"
	"time"
)

// ─── Leagues ────────────────────────────────────────────────────────────────

// League is a weekly competition tier, ordered bronze → diamond.
type League string

const (
	LeagueBronze  League = "bronze"
	LeagueSilver  League = "silver"
	LeagueGold    League = "gold"
	LeagueDiamond League = "diamond"
)

// Leagues lists every tier from lowest to highest.
var Leagues = []League{LeagueBronze, LeagueSilver, LeagueGold, LeagueDiamond}

// ParseLeague resolves a case-insensitive league name.
func ParseLeague(s string) (League, error) {
	l := League(strings.ToLower(strings.TrimSpace(s)))
	if l.Index() < 0 {
		return "", fmt.Errorf("%w: %q", ErrLeagueNotFound, s)
	}
	return l, nil
}

// Index returns the tier position, or -1 for an unknown league.
func (l League) Index() int {
	for i, v := range Leagues {
		if v == l {
			return i
		}
	}
	return -1
}

// Up returns the next tier. ok is false at the top.
func (l League) Up() (League, bool) {
	i := l.Index()
	if i < 0 || i == len(Leagues)-1 {
		return l, false
	}
	return Leagues[i+1], true
}

// Down returns the previous tier. ok is false at the bottom.
func (l League) Down() (League, bool) {
	i := l.Index()
	if i <= 0 {
		return l, false
	}
	return Leagues[i-1], true
}

// ─── Leaderboard Aggregate ──────────────────────────────────────────────────

// WeekResult is what a user saw at the end of their last processed week.
type WeekResult struct {
	WeekID       string `json:"weekId"`
	League       League `json:"league"`
	FinalRank    int    `json:"finalRank"`
	Participants int    `json:"participants"`
	WeeklyXP     int64  `json:"weeklyXP"`
	Promoted     bool   `json:"promoted"`
	Demoted      bool   `json:"demoted"`
	NewLeague    League `json:"newLeague"`
}

// LeagueEntry is one user's standing in the weekly competition.
type LeagueEntry struct {
	UserID          string      `json:"userId"`
	League          League      `json:"league"`
	IsOptedIn       bool        `json:"isOptedIn"`
	WeeklyXP        int64       `json:"weeklyXP"`
	CurrentRank     int         `json:"currentRank"`
	PreviousRank    int         `json:"previousRank"`
	PromotionStreak int         `json:"promotionStreak"`
	LastWeekResult  *WeekResult `json:"lastWeekResult,omitempty"`
	JoinedAt        time.Time   `json:"joinedAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// RolloverOutcome is a single user's line in a rollover record.
type RolloverOutcome struct {
	UserID    string `json:"userId"`
	League    League `json:"league"`
	FinalRank int    `json:"finalRank"`
	WeeklyXP  int64  `json:"weeklyXP"`
	Promoted  bool   `json:"promoted"`
	Demoted   bool   `json:"demoted"`
	NewLeague League `json:"newLeague"`
}

// RolloverRecord is the audit trail of one processed week.
type RolloverRecord struct {
	ID           string            `json:"id"`
	WeekID       string            `json:"weekId"`
	NextWeekID   string            `json:"nextWeekId"`
	ProcessedAt  time.Time         `json:"processedAt"`
	Participants int               `json:"participants"`
	Promotions   int               `json:"promotions"`
	Demotions    int               `json:"demotions"`
	Outcomes     []RolloverOutcome `json:"outcomes"`
}

// WeeklyState is the global competition clock plus per-week XP snapshots.
// WeeklyData maps weekId → userId → weekly XP.
type WeeklyState struct {
	CurrentWeekID  string                      `json:"currentWeekId"`
	LastRolloverAt time.Time                   `json:"lastRolloverAt,omitempty"`
	WeeklyData     map[string]map[string]int64 `json:"weeklyData"`
	History        []RolloverRecord            `json:"history"`
}

// Leaderboard is the singleton aggregate persisted as one document so the
// rollover can be applied atomically.
type Leaderboard struct {
	State   WeeklyState             `json:"state"`
	Entries map[string]*LeagueEntry `json:"entries"`
}

// NewLeaderboard returns an empty aggregate with no current week.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{
		State: WeeklyState{
			WeeklyData: map[string]map[string]int64{},
			History:    []RolloverRecord{},
		},
		Entries: map[string]*LeagueEntry{},
	}
}

// Normalize fills nil maps left by older or hand-edited documents.
func (lb *Leaderboard) Normalize() {
	if lb.State.WeeklyData == nil {
		lb.State.WeeklyData = map[string]map[string]int64{}
	}
	if lb.State.History == nil {
		lb.State.History = []RolloverRecord{}
	}
	if lb.Entries == nil {
		lb.Entries = map[string]*LeagueEntry{}
	}
	for id, e := range lb.Entries {
		if e == nil {
			delete(lb.Entries, id)
			continue
		}
		if e.UserID == "" {
			e.UserID = id
		}
		if e.League.Index() < 0 {
			e.League = LeagueBronze
		}
	}
}
