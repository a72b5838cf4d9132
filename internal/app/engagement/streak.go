package engagement

import (
	"fmt"
	"time"

	"github.com/learnpath/gamify/internal/calendar"
	"github.com/learnpath/gamify/internal/domain"
)

// StreakMilestone rewards reaching an exact streak length.
type StreakMilestone struct {
	Days    int    `json:"days"`
	XPBonus int64  `json:"xpBonus"`
	Freezes int    `json:"freezes"`
	BadgeID string `json:"badgeId,omitempty"`
}

// StreakPolicy tunes the streak tracker.
type StreakPolicy struct {
	MaxFreezes  int
	WarningHour int
	Milestones  []StreakMilestone
}

// DefaultStreakPolicy returns the stock 7/30/100 milestones.
func DefaultStreakPolicy() StreakPolicy {
	return StreakPolicy{
		MaxFreezes:  3,
		WarningHour: 20,
		Milestones: []StreakMilestone{
			{Days: 7, XPBonus: 50, Freezes: 1, BadgeID: "week-warrior"},
			{Days: 30, XPBonus: 200, Freezes: 2, BadgeID: "monthly-master"},
			{Days: 100, XPBonus: 1000, Freezes: 3, BadgeID: "century-club"},
		},
	}
}

func (sp StreakPolicy) milestone(days int) *StreakMilestone {
	for i := range sp.Milestones {
		if sp.Milestones[i].Days == days {
			m := sp.Milestones[i]
			return &m
		}
	}
	return nil
}

// ─── Activity ───────────────────────────────────────────────────────────────

// StreakActivity is the outcome of recording one day of activity.
type StreakActivity struct {
	AlreadyRecorded bool             `json:"alreadyRecorded"`
	PreviousStreak  int              `json:"previousStreak"`
	CurrentStreak   int              `json:"currentStreak"`
	NewStreak       int              `json:"newStreak"`
	LongestStreak   int              `json:"longestStreak"`
	IsNewRecord     bool             `json:"isNewRecord"`
	Restarted       bool             `json:"restarted"`
	UsedFreeze      bool             `json:"usedFreeze"`
	Milestone       *StreakMilestone `json:"milestone,omitempty"`
	FreezesAwarded  int              `json:"freezesAwarded"`
	StreakFreezes   int              `json:"streakFreezes"`
	XPBonusPercent  int              `json:"xpBonusPercent"`
}

// RecordActivity advances the streak for the current day. Repeat calls on
// the same day change nothing.
func (e *Engine) RecordActivity(p *domain.Profile, now time.Time) (StreakActivity, Gains) {
	e.initProfile(p, now)
	g := e.begin(p)
	res := e.recordActivity(p, &g, now)
	e.finish(p, &g, now)
	return res, g
}

func (e *Engine) recordActivity(p *domain.Profile, g *Gains, now time.Time) StreakActivity {
	today := e.cal.Day(now)
	res := StreakActivity{PreviousStreak: p.CurrentStreak}

	if p.LastActivityDate == today {
		res.AlreadyRecorded = true
		res.CurrentStreak = p.CurrentStreak
		res.NewStreak = p.CurrentStreak
		res.LongestStreak = p.LongestStreak
		res.StreakFreezes = p.StreakFreezes
		res.XPBonusPercent = StreakBonusPercent(p.CurrentStreak)
		return res
	}

	yesterday := calendar.AddDays(today, -1)
	next := 1
	switch {
	case p.LastActivityDate == yesterday && p.CurrentStreak > 0:
		next = p.CurrentStreak + 1
	case p.FreezeActiveDate != "" && p.FreezeActiveDate == yesterday && p.CurrentStreak > 0:
		next = p.CurrentStreak + 1
		res.UsedFreeze = true
	default:
		res.Restarted = p.CurrentStreak > 0 || p.LastActivityDate != ""
	}

	previousLongest := p.LongestStreak
	p.CurrentStreak = next
	p.LastActivityDate = today
	p.FreezeActiveDate = ""
	if next > p.LongestStreak {
		p.LongestStreak = next
	}
	res.IsNewRecord = next > previousLongest

	if m := e.opts.Streak.milestone(next); m != nil {
		res.Milestone = m
		if m.XPBonus > 0 {
			e.award(p, g, m.XPBonus, m.XPBonus, domain.XPStreakMilestone,
				fmt.Sprintf("%d-day streak milestone", m.Days), now)
		}
		before := p.StreakFreezes
		p.StreakFreezes = min(p.StreakFreezes+m.Freezes, e.opts.Streak.MaxFreezes)
		if p.StreakFreezes < before {
			p.StreakFreezes = before
		}
		res.FreezesAwarded = p.StreakFreezes - before
		if m.BadgeID != "" {
			if def, ok := LookupBadge(m.BadgeID); ok {
				e.unlock(p, g, def, now)
			}
		}
	}

	res.CurrentStreak = p.CurrentStreak
	res.NewStreak = p.CurrentStreak
	res.LongestStreak = p.LongestStreak
	res.StreakFreezes = p.StreakFreezes
	res.XPBonusPercent = StreakBonusPercent(p.CurrentStreak)
	return res
}

// ─── Check ──────────────────────────────────────────────────────────────────

// StreakCheck reports whether a stored streak survived until today.
type StreakCheck struct {
	CurrentStreak  int  `json:"currentStreak"`
	PreviousStreak int  `json:"previousStreak"`
	StreakBroken   bool `json:"streakBroken"`
	FreezeCovered  bool `json:"freezeCovered"`
}

// CheckStreak snaps a silently broken streak to zero.
func (e *Engine) CheckStreak(p *domain.Profile, now time.Time) StreakCheck {
	res := StreakCheck{CurrentStreak: p.CurrentStreak, PreviousStreak: p.CurrentStreak}
	if p.CurrentStreak == 0 || p.LastActivityDate == "" {
		return res
	}

	intact, covered := e.streakIntact(p, e.cal.Day(now))
	if intact {
		res.FreezeCovered = covered
		return res
	}

	p.CurrentStreak = 0
	p.FreezeActiveDate = ""
	res.CurrentStreak = 0
	res.StreakBroken = true
	return res
}

// streakIntact reports whether today can still extend the streak, and
// whether a freeze is what keeps it alive.
func (e *Engine) streakIntact(p *domain.Profile, today string) (intact, covered bool) {
	gap, err := calendar.DaysBetween(p.LastActivityDate, today)
	if err != nil {
		return false, false
	}
	switch {
	case gap <= 1:
		return true, false
	case gap == 2 && p.FreezeActiveDate == calendar.AddDays(p.LastActivityDate, 1):
		return true, true
	}
	return false, false
}

// liveStreak is the stored streak as seen on today: zero once the gap since
// the last activity can no longer be bridged, even if CheckStreak has not
// run yet.
func (e *Engine) liveStreak(p *domain.Profile, today string) int {
	if p.CurrentStreak <= 0 || p.LastActivityDate == "" {
		return 0
	}
	if intact, _ := e.streakIntact(p, today); !intact {
		return 0
	}
	return p.CurrentStreak
}

// ─── Freeze ─────────────────────────────────────────────────────────────────

// FreezeResult is the outcome of consuming a streak freeze.
type FreezeResult struct {
	AlreadyActive    bool   `json:"alreadyActive"`
	FreezeActiveDate string `json:"freezeActiveDate"`
	FreezesRemaining int    `json:"freezesRemaining"`
	CurrentStreak    int    `json:"currentStreak"`
}

// UseFreeze spends one freeze to protect today. A freeze can only be spent
// while the streak is intact, so it always covers a single missed day.
func (e *Engine) UseFreeze(p *domain.Profile, now time.Time) (FreezeResult, error) {
	today := e.cal.Day(now)
	if p.FreezeActiveDate == today {
		return FreezeResult{
			AlreadyActive:    true,
			FreezeActiveDate: today,
			FreezesRemaining: p.StreakFreezes,
			CurrentStreak:    p.CurrentStreak,
		}, nil
	}
	if p.LastActivityDate == today {
		return FreezeResult{}, domain.ErrFreezeActivityToday
	}
	if p.StreakFreezes <= 0 {
		return FreezeResult{}, domain.ErrFreezeUnavailable
	}
	if p.CurrentStreak <= 0 || p.LastActivityDate != calendar.AddDays(today, -1) {
		return FreezeResult{}, domain.ErrNoStreakToProtect
	}

	p.StreakFreezes--
	p.FreezeActiveDate = today
	return FreezeResult{
		FreezeActiveDate: today,
		FreezesRemaining: p.StreakFreezes,
		CurrentStreak:    p.CurrentStreak,
	}, nil
}

// ─── Status ─────────────────────────────────────────────────────────────────

// StreakStatus is the read-only streak view.
type StreakStatus struct {
	CurrentStreak    int    `json:"currentStreak"`
	LongestStreak    int    `json:"longestStreak"`
	LastActivityDate string `json:"lastActivityDate,omitempty"`
	StreakFreezes    int    `json:"streakFreezes"`
	MaxFreezes       int    `json:"maxFreezes"`
	FreezeActive     bool   `json:"freezeActive"`
	ActiveToday      bool   `json:"activeToday"`
	AtRisk           bool   `json:"isAtRisk"`
	XPBonusPercent   int    `json:"xpBonusPercent"`
	NextMilestone    int    `json:"nextMilestone,omitempty"`
}

// StreakStatus summarizes p without mutating it.
func (e *Engine) StreakStatus(p *domain.Profile, now time.Time) StreakStatus {
	today := e.cal.Day(now)
	live := e.liveStreak(p, today)
	st := StreakStatus{
		CurrentStreak:    live,
		LongestStreak:    p.LongestStreak,
		LastActivityDate: p.LastActivityDate,
		StreakFreezes:    p.StreakFreezes,
		MaxFreezes:       e.opts.Streak.MaxFreezes,
		FreezeActive:     p.FreezeActiveDate == today,
		ActiveToday:      p.LastActivityDate == today,
		AtRisk:           e.AtRisk(p, now),
		XPBonusPercent:   StreakBonusPercent(live),
	}
	for _, m := range e.opts.Streak.Milestones {
		if m.Days > live && (st.NextMilestone == 0 || m.Days < st.NextMilestone) {
			st.NextMilestone = m.Days
		}
	}
	return st
}

// AtRisk is advisory: an active streak with no activity today once the
// warning hour has passed.
func (e *Engine) AtRisk(p *domain.Profile, now time.Time) bool {
	today := e.cal.Day(now)
	return e.liveStreak(p, today) > 0 &&
		p.LastActivityDate != today &&
		e.cal.Hour(now) >= e.opts.Streak.WarningHour
}

// MilestoneProgress pairs a milestone with the user's progress toward it.
type MilestoneProgress struct {
	StreakMilestone
	Achieved      bool `json:"achieved"`
	DaysRemaining int  `json:"daysRemaining"`
}

// Milestones lists every streak milestone against p. Achievement is judged
// on the longest streak so a broken streak keeps its history.
func (e *Engine) Milestones(p *domain.Profile, now time.Time) []MilestoneProgress {
	live := e.liveStreak(p, e.cal.Day(now))
	out := make([]MilestoneProgress, 0, len(e.opts.Streak.Milestones))
	for _, m := range e.opts.Streak.Milestones {
		mp := MilestoneProgress{StreakMilestone: m, Achieved: p.LongestStreak >= m.Days}
		if !mp.Achieved {
			mp.DaysRemaining = m.Days - live
		}
		out = append(out, mp)
	}
	return out
}
