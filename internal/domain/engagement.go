// Package domain holds the gamification types shared by every layer.
// Nothing here touches storage or transport.
package domain

import "time"

// ─── XP Ledger ──────────────────────────────────────────────────────────────

// XPSource categorizes how XP was earned. Client awards may use any
// non-empty source; the constants below are the ones the engine emits.
type XPSource string

const (
	XPLesson              XPSource = "lesson"
	XPDailyLogin          XPSource = "daily_login"
	XPStreakMilestone     XPSource = "streak_milestone"
	XPGoalCompleted       XPSource = "goal_completed"
	XPGoalStreakMilestone XPSource = "goal_streak_milestone"
	XPBadge               XPSource = "badge"
)

// XPEntry is one immutable ledger line. Amount includes any streak bonus;
// BaseAmount is what the caller asked for.
type XPEntry struct {
	ID          string    `json:"id"`
	Amount      int64     `json:"amount"`
	BaseAmount  int64     `json:"baseAmount"`
	Source      XPSource  `json:"source"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Level       int       `json:"level"`
}

// ─── Daily Goals ────────────────────────────────────────────────────────────

// TimeCommitment is the learner's self-declared study pace.
type TimeCommitment string

const (
	CommitmentShort    TimeCommitment = "short"
	CommitmentMedium   TimeCommitment = "medium"
	CommitmentFlexible TimeCommitment = "flexible"
)

// Valid reports whether c is one of the known commitments.
func (c TimeCommitment) Valid() bool {
	switch c {
	case CommitmentShort, CommitmentMedium, CommitmentFlexible:
		return true
	}
	return false
}

// DayProgress is the per-day lesson record. LessonIDs is a set; Completed
// always equals len(LessonIDs).
type DayProgress struct {
	Date       string   `json:"date"`
	Goal       int      `json:"goal"`
	Completed  int      `json:"completed"`
	LessonIDs  []string `json:"lessonIds"`
	GoalMet    bool     `json:"goalMet"`
	ExceededBy int      `json:"exceededBy"`
}

// HasLesson reports whether lessonID was already counted for the day.
func (d *DayProgress) HasLesson(lessonID string) bool {
	for _, id := range d.LessonIDs {
		if id == lessonID {
			return true
		}
	}
	return false
}

// GoalStreak counts consecutive calendar days on which the goal was met.
type GoalStreak struct {
	Current         int    `json:"current"`
	Longest         int    `json:"longest"`
	LastGoalMetDate string `json:"lastGoalMetDate,omitempty"`
	StreakStartDate string `json:"streakStartDate,omitempty"`
}

// DailyGoals groups goal settings with the rolling progress window.
// DailyProgress is ordered oldest first.
type DailyGoals struct {
	DailyGoal      int            `json:"dailyGoal"`
	TimeCommitment TimeCommitment `json:"timeCommitment"`
	DailyProgress  []DayProgress  `json:"dailyProgress"`
	GoalStreak     GoalStreak     `json:"goalStreak"`
}

// ─── Profile ────────────────────────────────────────────────────────────────

// Profile is the per-user gamification aggregate. All calendar dates are
// "YYYY-MM-DD" strings in the service's reference time zone.
type Profile struct {
	UserID           string         `json:"userId"`
	TotalXP          int64          `json:"totalXP"`
	CurrentStreak    int            `json:"currentStreak"`
	LongestStreak    int            `json:"longestStreak"`
	LastActivityDate string         `json:"lastActivityDate,omitempty"`
	LastLoginDate    string         `json:"lastLoginDate,omitempty"`
	StreakFreezes    int            `json:"streakFreezes"`
	FreezeActiveDate string         `json:"freezeActiveDate,omitempty"`
	XPHistory        []XPEntry      `json:"xpHistory"`
	UnlockedBadges   UnlockedBadges `json:"unlockedBadges"`
	Goals            DailyGoals     `json:"goals"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// NewProfile returns an unsaved profile with zeroed counters. CreatedAt is
// left zero so callers can tell a fresh profile from a loaded one.
func NewProfile(userID string) *Profile {
	return &Profile{
		UserID:         userID,
		XPHistory:      []XPEntry{},
		UnlockedBadges: UnlockedBadges{},
		Goals: DailyGoals{
			DailyGoal:      DefaultDailyGoal,
			TimeCommitment: CommitmentMedium,
			DailyProgress:  []DayProgress{},
		},
	}
}

// DefaultDailyGoal is the lessons-per-day target given to new profiles.
const DefaultDailyGoal = 3

// IsNew reports whether the profile has never been persisted.
func (p *Profile) IsNew() bool { return p.CreatedAt.IsZero() }

// Day returns the progress record for date, or nil.
func (p *Profile) Day(date string) *DayProgress {
	for i := range p.Goals.DailyProgress {
		if p.Goals.DailyProgress[i].Date == date {
			return &p.Goals.DailyProgress[i]
		}
	}
	return nil
}
