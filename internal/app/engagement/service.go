package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/learnpath/gamify/internal/domain"
	"github.com/learnpath/gamify/internal/infra/metrics"
)

// errNoChange aborts a profile transaction whose operation changed nothing,
// so the stored document and its UpdatedAt stay as they were.
var errNoChange = errors.New("no change")

// WeeklyXPSink receives the net XP each operation earned.
type WeeklyXPSink interface {
	ContributeXP(ctx context.Context, userID string, amount int64) error
}

// Service runs Engine rules inside store transactions. Reads on a user
// with no profile return zero-valued defaults and never create one.
type Service struct {
	store  domain.Store
	engine *Engine
	sink   WeeklyXPSink
	logger *slog.Logger
}

// NewService creates an engagement service. sink may be nil.
func NewService(store domain.Store, engine *Engine, sink WeeklyXPSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		engine: engine,
		sink:   sink,
		logger: logger.With("component", "engagement"),
	}
}

// Engine exposes the rule engine for pure previews.
func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) now() time.Time { return s.engine.cal.Now() }

func requireUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", domain.ErrUserIDRequired
	}
	return userID, nil
}

// update wraps fn in a profile transaction and stamps UpdatedAt. Errors
// from fn come back untouched so callers can classify them; errNoChange
// rolls back and reports success with a nil profile.
func (s *Service) update(ctx context.Context, userID string, fn func(p *domain.Profile, now time.Time) error) (*domain.Profile, error) {
	var ruleErr error
	p, err := s.store.UpdateProfile(ctx, userID, func(p *domain.Profile) error {
		now := s.now()
		if ruleErr = fn(p, now); ruleErr != nil {
			return ruleErr
		}
		p.UpdatedAt = now.UTC()
		return nil
	})
	if errors.Is(ruleErr, errNoChange) {
		return nil, nil
	}
	if ruleErr != nil {
		return nil, ruleErr
	}
	if err != nil {
		return nil, fmt.Errorf("update profile %s: %w", userID, err)
	}
	return p, nil
}

// view loads userID or synthesizes an unsaved default profile.
func (s *Service) view(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := s.store.LoadProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}
	if p == nil {
		p = domain.NewProfile(userID)
		if def := s.engine.opts.Goals.Default; def > 0 {
			p.Goals.DailyGoal = def
		}
	}
	return p, nil
}

// settle publishes the side effects of a committed operation: metrics and
// the weekly league contribution. League failures are logged, not returned;
// the profile write has already succeeded.
func (s *Service) settle(ctx context.Context, userID string, g Gains) {
	for _, e := range g.Entries {
		metrics.XPAwarded.WithLabelValues(sourceLabel(e.Source)).Add(float64(e.Amount))
	}
	for _, b := range g.BadgesUnlocked {
		metrics.BadgesUnlocked.WithLabelValues(b.BadgeID).Inc()
		s.logger.Info("badge unlocked", "user", userID, "badge", b.BadgeID)
	}
	if g.DidLevelUp {
		metrics.LevelUps.Inc()
		s.logger.Info("level up", "user", userID, "from", g.PreviousLevel, "to", g.Level)
	}
	if g.XPGained <= 0 || s.sink == nil {
		return
	}
	if err := s.sink.ContributeXP(ctx, userID, g.XPGained); err != nil {
		s.logger.Warn("weekly xp contribution failed", "user", userID, "xp", g.XPGained, "error", err)
	}
}

// sourceLabel keeps the metric label set closed: caller-supplied sources
// are all counted as "external".
func sourceLabel(src domain.XPSource) string {
	switch src {
	case domain.XPLesson, domain.XPDailyLogin, domain.XPStreakMilestone,
		domain.XPGoalCompleted, domain.XPGoalStreakMilestone, domain.XPBadge:
		return string(src)
	}
	return "external"
}

func streakOutcome(a StreakActivity) string {
	switch {
	case a.AlreadyRecorded:
		return "noop"
	case a.UsedFreeze:
		return "frozen"
	case a.Restarted:
		return "restarted"
	case a.CurrentStreak == 1:
		return "started"
	}
	return "extended"
}

// ─── XP ─────────────────────────────────────────────────────────────────────

// XPStatus returns the user's XP and level summary.
func (s *Service) XPStatus(ctx context.Context, userID string) (XPStatus, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return XPStatus{}, err
	}
	p, err := s.view(ctx, userID)
	if err != nil {
		return XPStatus{}, err
	}
	return s.engine.XPStatus(p, s.now()), nil
}

// AwardXP grants XP from an arbitrary source.
func (s *Service) AwardXP(ctx context.Context, userID string, amount int64, source, description string) (XPAward, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return XPAward{}, err
	}
	var res XPAward
	_, err = s.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		res, err = s.engine.AwardXP(p, amount, source, description, now)
		return err
	})
	if err != nil {
		return XPAward{}, err
	}
	s.settle(ctx, userID, res.Gains)
	return res, nil
}

// XPHistory pages the ledger.
func (s *Service) XPHistory(ctx context.Context, userID string, f HistoryFilter) (XPHistoryPage, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return XPHistoryPage{}, err
	}
	p, err := s.view(ctx, userID)
	if err != nil {
		return XPHistoryPage{}, err
	}
	return s.engine.XPHistory(p, f)
}

// CheckLevel previews an XP gain without writing.
func (s *Service) CheckLevel(ctx context.Context, userID string, xpToAdd int64) (LevelCheck, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return LevelCheck{}, err
	}
	p, err := s.view(ctx, userID)
	if err != nil {
		return LevelCheck{}, err
	}
	return s.engine.CheckLevel(p, xpToAdd, s.now())
}

// DailyLogin pays the once-per-day login reward.
func (s *Service) DailyLogin(ctx context.Context, userID string) (LoginResult, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return LoginResult{}, err
	}
	var res LoginResult
	if _, err := s.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		res = s.engine.DailyLogin(p, now)
		if res.AlreadyLoggedIn {
			return errNoChange
		}
		return nil
	}); err != nil {
		return LoginResult{}, err
	}
	if !res.AlreadyLoggedIn {
		metrics.StreakEvents.WithLabelValues(streakOutcome(res.Streak)).Inc()
	}
	s.settle(ctx, userID, res.Gains)
	return res, nil
}

// CompleteLesson runs the full activity fan-out for one lesson.
func (s *Service) CompleteLesson(ctx context.Context, userID, lessonID string) (LessonResult, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return LessonResult{}, err
	}
	var res LessonResult
	_, err = s.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		res, err = s.engine.CompleteLesson(p, lessonID, now)
		return err
	})
	if err != nil {
		return LessonResult{}, err
	}
	metrics.StreakEvents.WithLabelValues(streakOutcome(res.Streak)).Inc()
	if res.Goal.JustMet {
		metrics.GoalsMet.Inc()
	}
	s.settle(ctx, userID, res.Gains)
	return res, nil
}

// ─── Streaks ────────────────────────────────────────────────────────────────

// StreakStatus returns the read-only streak view.
func (s *Service) StreakStatus(ctx context.Context, userID string) (StreakStatus, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return StreakStatus{}, err
	}
	p, err := s.view(ctx, userID)
	if err != nil {
		return StreakStatus{}, err
	}
	return s.engine.StreakStatus(p, s.now()), nil
}

// ActivityResult pairs a streak transition with what it earned.
type ActivityResult struct {
	ActivityType string `json:"activityType"`
	StreakActivity
	Gains
}

// RecordActivity advances the streak for today.
func (s *Service) RecordActivity(ctx context.Context, userID, activityType string) (ActivityResult, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return ActivityResult{}, err
	}
	res := ActivityResult{ActivityType: activityType}
	if _, err := s.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		res.StreakActivity, res.Gains = s.engine.RecordActivity(p, now)
		return nil
	}); err != nil {
		return ActivityResult{}, err
	}
	metrics.StreakEvents.WithLabelValues(streakOutcome(res.StreakActivity)).Inc()
	s.settle(ctx, userID, res.Gains)
	return res, nil
}

// UseFreeze spends a streak freeze for today.
func (s *Service) UseFreeze(ctx context.Context, userID string) (FreezeResult, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return FreezeResult{}, err
	}
	var res FreezeResult
	_, err = s.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		res, err = s.engine.UseFreeze(p, now)
		return err
	})
	if err != nil {
		return FreezeResult{}, err
	}
	if !res.AlreadyActive {
		metrics.StreakEvents.WithLabelValues("freeze_used").Inc()
	}
	return res, nil
}

// CheckStreak detects silent breakage. Absent users are reported without
// creating a profile.
func (s *Service) CheckStreak(ctx context.Context, userID string) (StreakCheck, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return StreakCheck{}, err
	}
	existing, err := s.store.LoadProfile(ctx, userID)
	if err != nil {
		return StreakCheck{}, fmt.Errorf("load profile %s: %w", userID, err)
	}
	if existing == nil {
		return StreakCheck{}, nil
	}

	var res StreakCheck
	if _, err := s.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		res = s.engine.CheckStreak(p, now)
		return nil
	}); err != nil {
		return StreakCheck{}, err
	}
	if res.StreakBroken {
		metrics.StreakEvents.WithLabelValues("broken").Inc()
		s.logger.Info("streak broken", "user", userID, "previous", res.PreviousStreak)
	}
	return res, nil
}

// Milestones lists streak milestones for the user.
func (s *Service) Milestones(ctx context.Context, userID string) ([]MilestoneProgress, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return nil, err
	}
	p, err := s.view(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.engine.Milestones(p, s.now()), nil
}

// ─── Goals ──────────────────────────────────────────────────────────────────

// GoalStatus returns today's goal progress.
func (s *Service) GoalStatus(ctx context.Context, userID string) (GoalStatus, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return GoalStatus{}, err
	}
	p, err := s.view(ctx, userID)
	if err != nil {
		return GoalStatus{}, err
	}
	return s.engine.GoalStatus(p, s.now()), nil
}

// SetDailyGoal changes the goal settings.
func (s *Service) SetDailyGoal(ctx context.Context, userID string, upd GoalUpdate) (GoalStatus, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return GoalStatus{}, err
	}
	var (
		st GoalStatus
		g  Gains
	)
	_, err = s.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		st, g, err = s.engine.SetDailyGoal(p, upd, now)
		return err
	})
	if err != nil {
		return GoalStatus{}, err
	}
	s.settle(ctx, userID, g)
	return st, nil
}

// GoalHistory returns retained daily records and stats.
func (s *Service) GoalHistory(ctx context.Context, userID string, days int) (GoalHistory, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return GoalHistory{}, err
	}
	p, err := s.view(ctx, userID)
	if err != nil {
		return GoalHistory{}, err
	}
	return s.engine.GoalHistory(p, days), nil
}

// GoalStreak returns the goal streak view.
func (s *Service) GoalStreak(ctx context.Context, userID string) (GoalStreakView, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return GoalStreakView{}, err
	}
	p, err := s.view(ctx, userID)
	if err != nil {
		return GoalStreakView{}, err
	}
	return s.engine.GoalStreak(p, s.now()), nil
}

// ─── Badges ─────────────────────────────────────────────────────────────────

// Catalogue lists badges, personalized when userID is set.
func (s *Service) Catalogue(ctx context.Context, userID string) ([]BadgeView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return s.engine.Catalogue(nil), nil
	}
	p, err := s.view(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.engine.Catalogue(p), nil
}

// UserBadges lists the user's unlocked badges.
func (s *Service) UserBadges(ctx context.Context, userID string) ([]BadgeView, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return nil, err
	}
	p, err := s.view(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.engine.UserBadges(p), nil
}

// UnlockBadge records a client-reported badge.
func (s *Service) UnlockBadge(ctx context.Context, userID, badgeID string) (BadgeUnlockResult, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return BadgeUnlockResult{}, err
	}
	// Validate before opening a transaction so bad IDs never create a profile.
	if _, err := ResolveBadge(badgeID); err != nil {
		return BadgeUnlockResult{}, err
	}

	var (
		res BadgeUnlockResult
		g   Gains
	)
	_, err = s.update(ctx, userID, func(p *domain.Profile, now time.Time) error {
		res, g, err = s.engine.UnlockBadge(p, badgeID, now)
		if err == nil && res.AlreadyUnlocked {
			return errNoChange
		}
		return err
	})
	if err != nil {
		return BadgeUnlockResult{}, err
	}
	s.settle(ctx, userID, g)
	return res, nil
}

// BadgeProgress reports progress toward one badge.
func (s *Service) BadgeProgress(ctx context.Context, userID, badgeID string) (BadgeProgress, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return BadgeProgress{}, err
	}
	if _, err := ResolveBadge(badgeID); err != nil {
		return BadgeProgress{}, err
	}
	p, err := s.view(ctx, userID)
	if err != nil {
		return BadgeProgress{}, err
	}
	return s.engine.Progress(p, badgeID)
}

// BadgeStats aggregates visible badge progress.
func (s *Service) BadgeStats(ctx context.Context, userID string) (BadgeStats, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return BadgeStats{}, err
	}
	p, err := s.view(ctx, userID)
	if err != nil {
		return BadgeStats{}, err
	}
	return s.engine.Stats(p), nil
}

// ─── Maintenance ────────────────────────────────────────────────────────────

// NormalizeProfiles rewrites every stored profile in canonical form. Legacy
// badge shapes are converted while decoding, so a plain rewrite suffices.
func (s *Service) NormalizeProfiles(ctx context.Context) (int, error) {
	ids, err := s.store.ProfileIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list profiles: %w", err)
	}
	for i, id := range ids {
		if _, err := s.store.UpdateProfile(ctx, id, func(*domain.Profile) error { return nil }); err != nil {
			return i, fmt.Errorf("normalize %s: %w", id, err)
		}
	}
	s.logger.Info("profiles normalized", "count", len(ids))
	return len(ids), nil
}
