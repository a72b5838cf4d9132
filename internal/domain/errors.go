package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure and carry no infrastructure dependency.
// Transport layers classify them with errors.Is against the three roots.

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrStorage    = errors.New("storage failure")
)

var (
	// Identity
	ErrUserIDRequired = fmt.Errorf("%w: userId is required", ErrValidation)

	// XP ledger
	ErrInvalidAmount  = fmt.Errorf("%w: amount must be a positive integer", ErrValidation)
	ErrAmountTooLarge = fmt.Errorf("%w: amount exceeds the per-award maximum", ErrValidation)
	ErrSourceRequired = fmt.Errorf("%w: source is required", ErrValidation)
	ErrInvalidXPToAdd = fmt.Errorf("%w: xpToAdd must be zero or positive", ErrValidation)

	// Daily goals
	ErrInvalidGoal           = fmt.Errorf("%w: dailyGoal is out of range", ErrValidation)
	ErrInvalidTimeCommitment = fmt.Errorf("%w: timeCommitment must be short, medium or flexible", ErrValidation)
	ErrGoalUpdateEmpty       = fmt.Errorf("%w: dailyGoal or timeCommitment is required", ErrValidation)
	ErrLessonIDRequired      = fmt.Errorf("%w: lessonId is required", ErrValidation)

	// Streak freezes
	ErrFreezeUnavailable   = fmt.Errorf("%w: no streak freezes available", ErrValidation)
	ErrFreezeActivityToday = fmt.Errorf("%w: activity already recorded today, no freeze needed", ErrValidation)
	ErrNoStreakToProtect   = fmt.Errorf("%w: no active streak to protect", ErrValidation)

	// Badges
	ErrInvalidBadgeID     = fmt.Errorf("%w: badgeId is malformed", ErrValidation)
	ErrBadgeCriteriaUnmet = fmt.Errorf("%w: badge criteria not met", ErrValidation)
	ErrBadgeNotFound      = fmt.Errorf("badge %w", ErrNotFound)

	// Leaderboard
	ErrLeagueNotFound = fmt.Errorf("league %w", ErrNotFound)
	ErrOptInRequired  = fmt.Errorf("%w: optIn must be a boolean", ErrValidation)
)

// ValidationError reports a single rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) match field errors.
func (e *ValidationError) Unwrap() error { return ErrValidation }
