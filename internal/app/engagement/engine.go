// Package engagement turns learner activity into XP, levels, streaks,
// daily-goal progress and badges.
//
// Engine holds the rules and mutates a domain.Profile in memory; Service
// wraps it in store transactions and forwards earned XP to the league.
package engagement

import (
	"time"

	"github.com/google/uuid"

	"github.com/learnpath/gamify/internal/calendar"
	"github.com/learnpath/gamify/internal/domain"
)

// XPPolicy tunes the ledger.
type XPPolicy struct {
	LessonXP     int64
	DailyLoginXP int64
	HistoryLimit int
	MaxAward     int64
}

// Options bundles every tunable rule set.
type Options struct {
	XP     XPPolicy
	Streak StreakPolicy
	Goals  GoalPolicy
}

// DefaultOptions returns the stock rule set.
func DefaultOptions() Options {
	return Options{
		XP: XPPolicy{
			LessonXP:     10,
			DailyLoginXP: 5,
			HistoryLimit: 100,
			MaxAward:     100000,
		},
		Streak: DefaultStreakPolicy(),
		Goals:  DefaultGoalPolicy(),
	}
}

// Engine applies gamification rules to profiles. It never performs I/O.
type Engine struct {
	cal  *calendar.Calendar
	opts Options
}

// NewEngine creates an engine reading dates from cal.
func NewEngine(cal *calendar.Calendar, opts Options) *Engine {
	return &Engine{cal: cal, opts: opts}
}

// Calendar returns the engine's reference calendar.
func (e *Engine) Calendar() *calendar.Calendar { return e.cal }

// Options returns the active rule set.
func (e *Engine) Options() Options { return e.opts }

// ─── Gains ──────────────────────────────────────────────────────────────────

// BadgeUnlock describes one badge earned during an operation.
type BadgeUnlock struct {
	BadgeID    string    `json:"badgeId"`
	Name       string    `json:"name"`
	Rarity     Rarity    `json:"rarity"`
	XPReward   int64     `json:"xpReward"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

// Gains accumulates what one operation earned across every tracker.
type Gains struct {
	XPGained       int64         `json:"xpGained"`
	TotalXP        int64         `json:"totalXP"`
	PreviousLevel  int           `json:"previousLevel"`
	Level          int           `json:"level"`
	DidLevelUp     bool          `json:"didLevelUp"`
	BadgesUnlocked []BadgeUnlock `json:"badgesUnlocked"`

	Entries []domain.XPEntry `json:"-"`
}

func (e *Engine) begin(p *domain.Profile) Gains {
	lvl := LevelFor(p.TotalXP)
	return Gains{PreviousLevel: lvl, Level: lvl, TotalXP: p.TotalXP, BadgesUnlocked: []BadgeUnlock{}}
}

// finish evaluates badges until nothing new unlocks, then settles levels.
func (e *Engine) finish(p *domain.Profile, g *Gains, now time.Time) {
	e.evaluateBadges(p, g, now)
	g.TotalXP = p.TotalXP
	g.Level = LevelFor(p.TotalXP)
	g.DidLevelUp = g.Level > g.PreviousLevel
}

// award appends a ledger entry. amount is final; base is recorded for audit.
func (e *Engine) award(p *domain.Profile, g *Gains, amount, base int64, source domain.XPSource, desc string, now time.Time) domain.XPEntry {
	p.TotalXP += amount
	entry := domain.XPEntry{
		ID:          uuid.NewString(),
		Amount:      amount,
		BaseAmount:  base,
		Source:      source,
		Description: desc,
		Timestamp:   now.UTC(),
		Level:       LevelFor(p.TotalXP),
	}

	limit := e.opts.XP.HistoryLimit
	if limit <= 0 {
		limit = 100
	}
	history := make([]domain.XPEntry, 0, min(len(p.XPHistory)+1, limit))
	history = append(history, entry)
	for _, h := range p.XPHistory {
		if len(history) == limit {
			break
		}
		history = append(history, h)
	}
	p.XPHistory = history

	g.XPGained += amount
	g.Entries = append(g.Entries, entry)
	return entry
}

// initProfile stamps a freshly created profile with configured defaults.
func (e *Engine) initProfile(p *domain.Profile, now time.Time) {
	if !p.IsNew() {
		return
	}
	p.CreatedAt = now.UTC()
	if e.opts.Goals.Default > 0 {
		p.Goals.DailyGoal = e.opts.Goals.Default
	}
}
