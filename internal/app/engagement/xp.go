package engagement

import (
	"fmt"
	"strings"
	"time"

	"github.com/learnpath/gamify/internal/calendar"
	"github.com/learnpath/gamify/internal/domain"
)

// XPAward is the outcome of a direct XP grant.
type XPAward struct {
	XPEarned    int64 `json:"xpEarned"`
	BaseXP      int64 `json:"baseXP"`
	StreakBonus int64 `json:"streakBonus"`
	Gains
}

// AwardXP grants amount from source, boosted by the streak that is still
// alive on now.
func (e *Engine) AwardXP(p *domain.Profile, amount int64, source, description string, now time.Time) (XPAward, error) {
	source = strings.TrimSpace(source)
	switch {
	case amount <= 0:
		return XPAward{}, domain.ErrInvalidAmount
	case e.opts.XP.MaxAward > 0 && amount > e.opts.XP.MaxAward:
		return XPAward{}, fmt.Errorf("%w (%d)", domain.ErrAmountTooLarge, e.opts.XP.MaxAward)
	case source == "":
		return XPAward{}, domain.ErrSourceRequired
	}

	e.initProfile(p, now)
	g := e.begin(p)
	earned := ApplyStreakBonus(amount, e.liveStreak(p, e.cal.Day(now)))
	e.award(p, &g, earned, amount, domain.XPSource(source), description, now)
	e.finish(p, &g, now)
	return XPAward{XPEarned: earned, BaseXP: amount, StreakBonus: earned - amount, Gains: g}, nil
}

// LoginResult is the outcome of the once-per-day login reward.
type LoginResult struct {
	AlreadyLoggedIn bool           `json:"alreadyLoggedIn"`
	XPEarned        int64          `json:"xpEarned"`
	CurrentStreak   int            `json:"currentStreak"`
	LongestStreak   int            `json:"longestStreak"`
	IsNewRecord     bool           `json:"isNewRecord"`
	Streak          StreakActivity `json:"streak"`
	Gains
}

// DailyLogin records the day's login: streak activity plus login XP, once.
func (e *Engine) DailyLogin(p *domain.Profile, now time.Time) LoginResult {
	today := e.cal.Day(now)
	if p.LastLoginDate == today {
		return LoginResult{
			AlreadyLoggedIn: true,
			CurrentStreak:   p.CurrentStreak,
			LongestStreak:   p.LongestStreak,
			Gains:           Gains{TotalXP: p.TotalXP, Level: LevelFor(p.TotalXP), PreviousLevel: LevelFor(p.TotalXP), BadgesUnlocked: []BadgeUnlock{}},
		}
	}

	e.initProfile(p, now)
	g := e.begin(p)
	p.LastLoginDate = today
	streak := e.recordActivity(p, &g, now)

	res := LoginResult{Streak: streak}
	if base := e.opts.XP.DailyLoginXP; base > 0 {
		res.XPEarned = ApplyStreakBonus(base, p.CurrentStreak)
		e.award(p, &g, res.XPEarned, base, domain.XPDailyLogin, "daily login", now)
	}
	e.finish(p, &g, now)

	res.CurrentStreak = p.CurrentStreak
	res.LongestStreak = p.LongestStreak
	res.IsNewRecord = streak.IsNewRecord
	res.Gains = g
	return res
}

// LessonResult is the fan-out outcome of one lesson completion.
type LessonResult struct {
	LessonID       string         `json:"lessonId"`
	LessonXP       int64          `json:"lessonXP"`
	CompletedToday int            `json:"completedToday"`
	GoalMet        bool           `json:"goalMet"`
	GoalStreak     int            `json:"goalStreak"`
	BonusXP        int64          `json:"bonusXP"`
	Streak         StreakActivity `json:"streak"`
	Goal           GoalProgress   `json:"goal"`
	Gains
}

// CompleteLesson feeds one lesson through every tracker: streak, daily goal,
// streak-boosted lesson XP, goal bonuses and badge evaluation. Repeating a
// lesson on the same day earns nothing.
func (e *Engine) CompleteLesson(p *domain.Profile, lessonID string, now time.Time) (LessonResult, error) {
	lessonID = strings.TrimSpace(lessonID)
	if lessonID == "" {
		return LessonResult{}, domain.ErrLessonIDRequired
	}

	e.initProfile(p, now)
	g := e.begin(p)
	res := LessonResult{LessonID: lessonID}
	res.Streak = e.recordActivity(p, &g, now)
	res.Goal = e.recordLesson(p, &g, lessonID, now)
	if !res.Goal.Duplicate && e.opts.XP.LessonXP > 0 {
		res.LessonXP = ApplyStreakBonus(e.opts.XP.LessonXP, p.CurrentStreak)
		e.award(p, &g, res.LessonXP, e.opts.XP.LessonXP, domain.XPLesson, "lesson "+lessonID, now)
	}
	e.finish(p, &g, now)
	res.CompletedToday = res.Goal.Completed
	res.GoalMet = res.Goal.GoalMet
	res.GoalStreak = res.Goal.GoalStreak
	res.BonusXP = res.Goal.BonusXP
	res.Gains = g
	return res, nil
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// LevelCheck previews the level after earning xpToAdd with the current
// streak bonus. Nothing is written.
type LevelCheck struct {
	Current      LevelInfo `json:"currentProgress"`
	Projected    LevelInfo `json:"projectedProgress"`
	XPToAdd      int64     `json:"xpToAdd"`
	XPWithBonus  int64     `json:"xpWithBonus"`
	WouldLevelUp bool      `json:"wouldLevelUp"`
	LevelsGained int       `json:"levelsGained"`
}

// CheckLevel previews xpToAdd against p as of now.
func (e *Engine) CheckLevel(p *domain.Profile, xpToAdd int64, now time.Time) (LevelCheck, error) {
	if xpToAdd < 0 {
		return LevelCheck{}, domain.ErrInvalidXPToAdd
	}
	boosted := ApplyStreakBonus(xpToAdd, e.liveStreak(p, e.cal.Day(now)))
	cur := CalculateLevel(p.TotalXP)
	next := CalculateLevel(p.TotalXP + boosted)
	return LevelCheck{
		Current:      cur,
		Projected:    next,
		XPToAdd:      xpToAdd,
		XPWithBonus:  boosted,
		WouldLevelUp: next.Level > cur.Level,
		LevelsGained: next.Level - cur.Level,
	}, nil
}

// XPStatus is the profile summary served by GET /gamification/xp. The level
// fields sit at the top level of the payload.
type XPStatus struct {
	UserID string `json:"userId"`
	LevelInfo
	CurrentStreak  int              `json:"currentStreak"`
	LongestStreak  int              `json:"longestStreak"`
	StreakFreezes  int              `json:"streakFreezes"`
	XPBonusPercent int              `json:"xpBonusPercent"`
	BadgeCount     int              `json:"badgeCount"`
	RecentXP       []domain.XPEntry `json:"recentXP"`
}

// XPStatus summarizes p as of now.
func (e *Engine) XPStatus(p *domain.Profile, now time.Time) XPStatus {
	live := e.liveStreak(p, e.cal.Day(now))
	recent := p.XPHistory
	if len(recent) > 5 {
		recent = recent[:5]
	}
	return XPStatus{
		UserID:         p.UserID,
		LevelInfo:      CalculateLevel(p.TotalXP),
		CurrentStreak:  live,
		LongestStreak:  p.LongestStreak,
		StreakFreezes:  p.StreakFreezes,
		XPBonusPercent: StreakBonusPercent(live),
		BadgeCount:     len(p.UnlockedBadges),
		RecentXP:       append([]domain.XPEntry{}, recent...),
	}
}

// HistoryFilter narrows the XP ledger. From and To are inclusive calendar
// days in the reference zone.
type HistoryFilter struct {
	Source string
	From   string
	To     string
	Limit  int
	Offset int
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Validate checks filter bounds and date formats.
func (f *HistoryFilter) Validate() error {
	if f.Limit < 0 || f.Offset < 0 {
		return &domain.ValidationError{Field: "limit", Reason: "limit and offset must not be negative"}
	}
	if f.Limit == 0 {
		f.Limit = defaultHistoryLimit
	}
	if f.Limit > maxHistoryLimit {
		f.Limit = maxHistoryLimit
	}
	for field, v := range map[string]string{"from": f.From, "to": f.To} {
		if v == "" {
			continue
		}
		if _, err := calendar.ParseDay(v); err != nil {
			return &domain.ValidationError{Field: field, Reason: "expected YYYY-MM-DD"}
		}
	}
	return nil
}

// XPHistoryPage is one page of ledger entries, newest first.
type XPHistoryPage struct {
	Entries []domain.XPEntry `json:"history"`
	Total   int              `json:"total"`
	TotalXP int64            `json:"totalXP"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
	HasMore bool             `json:"hasMore"`
}

// XPHistory filters and pages the ledger.
func (e *Engine) XPHistory(p *domain.Profile, f HistoryFilter) (XPHistoryPage, error) {
	if err := f.Validate(); err != nil {
		return XPHistoryPage{}, err
	}
	matched := make([]domain.XPEntry, 0, len(p.XPHistory))
	var sum int64
	for _, entry := range p.XPHistory {
		if f.Source != "" && string(entry.Source) != f.Source {
			continue
		}
		day := e.cal.Day(entry.Timestamp)
		if f.From != "" && day < f.From {
			continue
		}
		if f.To != "" && day > f.To {
			continue
		}
		matched = append(matched, entry)
		sum += entry.Amount
	}

	page := XPHistoryPage{Total: len(matched), TotalXP: sum, Limit: f.Limit, Offset: f.Offset, Entries: []domain.XPEntry{}}
	if f.Offset < len(matched) {
		end := min(f.Offset+f.Limit, len(matched))
		page.Entries = matched[f.Offset:end]
		page.HasMore = end < len(matched)
	}
	return page, nil
}
