package league

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/learnpath/gamify/internal/calendar"
	"github.com/learnpath/gamify/internal/domain"
	"github.com/learnpath/gamify/internal/infra/metrics"
)

var errNoChange = errors.New("no change")

// Service owns the leaderboard aggregate. All writes go through one store
// transaction, which is what serializes XP contributions against the
// rollover.
type Service struct {
	store  domain.Store
	cal    *calendar.Calendar
	policy Policy
	logger *slog.Logger
}

// NewService creates a league service.
func NewService(store domain.Store, cal *calendar.Calendar, policy Policy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cal: cal, policy: policy, logger: logger.With("component", "league")}
}

// Policy returns the active competition policy.
func (s *Service) Policy() Policy { return s.policy }

func requireUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", domain.ErrUserIDRequired
	}
	return userID, nil
}

// write runs fn after bringing the stored week up to date. A pending
// rollover is applied in the same transaction and reported back.
func (s *Service) write(ctx context.Context, fn func(lb *domain.Leaderboard, now time.Time) error) (*RolloverReport, error) {
	var (
		rolled *RolloverReport
		fnErr  error
	)
	_, err := s.store.UpdateLeaderboard(ctx, func(lb *domain.Leaderboard) error {
		rolled = nil
		now := s.cal.Now()
		if week := s.cal.WeekID(now); lb.State.CurrentWeekID != week {
			r := rollover(lb, s.policy, week, now)
			rolled = &r
		}
		fnErr = fn(lb, now)
		return fnErr
	})
	if fnErr != nil {
		return nil, fnErr
	}
	if err != nil {
		return nil, fmt.Errorf("update leaderboard: %w", err)
	}
	if rolled != nil && !rolled.Initialized {
		s.recordRollover(*rolled, 0)
	}
	return rolled, nil
}

func (s *Service) recordRollover(r RolloverReport, took time.Duration) {
	if !r.Processed {
		metrics.Rollovers.WithLabelValues("noop").Inc()
		return
	}
	metrics.Rollovers.WithLabelValues("processed").Inc()
	if took > 0 {
		metrics.RolloverDuration.Observe(took.Seconds())
	}
	if r.Record != nil {
		for _, o := range r.Record.Outcomes {
			switch {
			case o.Promoted:
				metrics.LeagueMoves.WithLabelValues(string(o.League), "promoted").Inc()
			case o.Demoted:
				metrics.LeagueMoves.WithLabelValues(string(o.League), "demoted").Inc()
			}
		}
	}
	s.logger.Info("weekly rollover processed",
		"from", r.PreviousWeekID, "to", r.WeekID,
		"participants", r.Participants, "promotions", r.Promotions, "demotions", r.Demotions)
}

func entryFor(lb *domain.Leaderboard, userID string, now time.Time) *domain.LeagueEntry {
	e, ok := lb.Entries[userID]
	if !ok {
		e = &domain.LeagueEntry{
			UserID:    userID,
			League:    domain.LeagueBronze,
			IsOptedIn: true,
			JoinedAt:  now.UTC(),
			UpdatedAt: now.UTC(),
		}
		lb.Entries[userID] = e
	}
	return e
}

// ─── Writes ─────────────────────────────────────────────────────────────────

// Contribution is the outcome of adding weekly XP.
type Contribution struct {
	UserID   string        `json:"userId"`
	Accepted bool          `json:"accepted"`
	League   domain.League `json:"league"`
	WeeklyXP int64         `json:"weeklyXP"`
	Rank     int           `json:"rank"`
	WeekID   string        `json:"weekId"`
	Message  string        `json:"message,omitempty"`
}

// AddWeeklyXP credits amount to the user's current week. Opted-out users
// keep their zero total.
func (s *Service) AddWeeklyXP(ctx context.Context, userID string, amount int64) (Contribution, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return Contribution{}, err
	}
	if amount <= 0 {
		return Contribution{}, domain.ErrInvalidAmount
	}

	var c Contribution
	_, err = s.write(ctx, func(lb *domain.Leaderboard, now time.Time) error {
		e := entryFor(lb, userID, now)
		c = Contribution{UserID: userID, League: e.League, WeekID: lb.State.CurrentWeekID}
		if !e.IsOptedIn {
			c.Message = "user has opted out of the leaderboard"
			return nil
		}
		e.WeeklyXP += amount
		e.UpdatedAt = now.UTC()

		week := lb.State.CurrentWeekID
		if lb.State.WeeklyData[week] == nil {
			lb.State.WeeklyData[week] = map[string]int64{}
		}
		lb.State.WeeklyData[week][userID] = e.WeeklyXP
		refreshRanks(lb, e.League)

		c.Accepted = true
		c.WeeklyXP = e.WeeklyXP
		c.Rank = e.CurrentRank
		return nil
	})
	if err != nil {
		return Contribution{}, err
	}
	if c.Accepted {
		metrics.WeeklyXPContributed.WithLabelValues(string(c.League)).Add(float64(amount))
	}
	return c, nil
}

// ContributeXP adapts AddWeeklyXP to the engagement sink.
func (s *Service) ContributeXP(ctx context.Context, userID string, amount int64) error {
	_, err := s.AddWeeklyXP(ctx, userID, amount)
	return err
}

// SetOptIn toggles participation. Opting out zeroes the week's XP and
// drops the user from the week snapshot; the league is kept.
func (s *Service) SetOptIn(ctx context.Context, userID string, optIn bool) (UserStatus, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return UserStatus{}, err
	}
	_, err = s.write(ctx, func(lb *domain.Leaderboard, now time.Time) error {
		e := entryFor(lb, userID, now)
		if e.IsOptedIn == optIn {
			return nil
		}
		e.IsOptedIn = optIn
		e.UpdatedAt = now.UTC()
		if !optIn {
			e.WeeklyXP = 0
			e.CurrentRank = 0
			e.PreviousRank = 0
			delete(lb.State.WeeklyData[lb.State.CurrentWeekID], userID)
		}
		refreshRanks(lb, e.League)
		return nil
	})
	if err != nil {
		return UserStatus{}, err
	}
	s.logger.Info("leaderboard participation changed", "user", userID, "optIn", optIn)
	return s.UserStatus(ctx, userID)
}

// Rollover processes the week if the calendar has moved past the stored
// one. Repeating it within a week reports AlreadyProcessedMessage.
func (s *Service) Rollover(ctx context.Context) (RolloverReport, error) {
	start := time.Now()
	var report RolloverReport
	_, err := s.store.UpdateLeaderboard(ctx, func(lb *domain.Leaderboard) error {
		now := s.cal.Now()
		report = rollover(lb, s.policy, s.cal.WeekID(now), now)
		if !report.Processed {
			return errNoChange
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		metrics.Rollovers.WithLabelValues("error").Inc()
		return RolloverReport{}, fmt.Errorf("rollover: %w", err)
	}
	if report.Initialized {
		s.logger.Info("leaderboard week initialized", "week", report.WeekID)
		return report, nil
	}
	s.recordRollover(report, time.Since(start))
	return report, nil
}

// RolloverDue reports whether the stored week lags the calendar.
func (s *Service) RolloverDue(ctx context.Context) (bool, error) {
	lb, err := s.store.LoadLeaderboard(ctx)
	if err != nil {
		return false, fmt.Errorf("load leaderboard: %w", err)
	}
	stored := lb.State.CurrentWeekID
	return stored != "" && stored != s.cal.WeekID(s.cal.Now()), nil
}

// CatchUp runs a pending rollover.
func (s *Service) CatchUp(ctx context.Context) error {
	_, err := s.Rollover(ctx)
	return err
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// ZoneInfo describes a league band for the current participant count.
type ZoneInfo struct {
	Enabled bool `json:"enabled"`
	Percent int  `json:"percent"`
	Rank    int  `json:"rank"`
}

// LeagueView is one league's ranked table.
type LeagueView struct {
	WeekID            string        `json:"weekId"`
	League            domain.League `json:"league"`
	Entries           []Standing    `json:"entries"`
	Participants      int           `json:"participants"`
	UserRank          int           `json:"userRank"`
	UserEntry         *Standing     `json:"userEntry,omitempty"`
	PromotionZone     ZoneInfo      `json:"promotionZone"`
	DemotionZone      ZoneInfo      `json:"demotionZone"`
	ResetsAt          time.Time     `json:"resetsAt"`
	TimeUntilReset    string        `json:"timeUntilReset"`
	SecondsUntilReset int64         `json:"secondsUntilReset"`
	RolloverPending   bool          `json:"rolloverPending"`
}

func (s *Service) load(ctx context.Context) (*domain.Leaderboard, error) {
	lb, err := s.store.LoadLeaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	lb.Normalize()
	return lb, nil
}

// League returns the table for league. An empty league name means the
// user's own league, or bronze for anonymous and unknown users.
func (s *Service) League(ctx context.Context, league, userID string) (LeagueView, error) {
	lb, err := s.load(ctx)
	if err != nil {
		return LeagueView{}, err
	}
	userID = strings.TrimSpace(userID)

	var l domain.League
	switch {
	case league != "":
		if l, err = domain.ParseLeague(league); err != nil {
			return LeagueView{}, err
		}
	case lb.Entries[userID] != nil:
		l = lb.Entries[userID].League
	default:
		l = domain.LeagueBronze
	}

	now := s.cal.Now()
	reset := s.cal.NextWeekStart(now)
	until := reset.Sub(now)
	standings := Standings(lb, l, s.policy)
	n := len(standings)
	t := s.policy.threshold(l)

	v := LeagueView{
		WeekID:            s.cal.WeekID(now),
		League:            l,
		Entries:           standings,
		Participants:      n,
		PromotionZone:     ZoneInfo{Enabled: t.PromotePercent > 0, Percent: t.PromotePercent, Rank: t.promotionCutoff(n)},
		DemotionZone:      ZoneInfo{Enabled: t.DemotePercent > 0, Percent: t.DemotePercent, Rank: t.demotionStart(n)},
		ResetsAt:          reset.UTC(),
		TimeUntilReset:    until.Round(time.Second).String(),
		SecondsUntilReset: int64(until / time.Second),
		RolloverPending:   lb.State.CurrentWeekID != "" && lb.State.CurrentWeekID != s.cal.WeekID(now),
	}
	for i := range v.Entries {
		if userID != "" && v.Entries[i].UserID == userID {
			v.Entries[i].IsCurrentUser = true
			v.UserRank = v.Entries[i].Rank
			row := v.Entries[i]
			v.UserEntry = &row
		}
	}
	return v, nil
}

// UserStatus is one user's competition standing.
type UserStatus struct {
	UserID          string             `json:"userId"`
	League          domain.League      `json:"league"`
	IsOptedIn       bool               `json:"isOptedIn"`
	WeeklyXP        int64              `json:"weeklyXP"`
	Rank            int                `json:"rank"`
	Participants    int                `json:"participants"`
	Zone            Zone               `json:"zone"`
	Trend           Trend              `json:"trend"`
	TrendAmount     int                `json:"trendAmount"`
	PromotionStreak int                `json:"promotionStreak"`
	LastWeekResult  *domain.WeekResult `json:"lastWeekResult,omitempty"`
	WeekID          string             `json:"weekId"`
	TimeUntilReset  string             `json:"timeUntilReset"`
}

// UserStatus reports the user's standing. Unknown users get bronze
// defaults without an entry being created.
func (s *Service) UserStatus(ctx context.Context, userID string) (UserStatus, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return UserStatus{}, err
	}
	lb, err := s.load(ctx)
	if err != nil {
		return UserStatus{}, err
	}

	now := s.cal.Now()
	st := UserStatus{
		UserID:         userID,
		League:         domain.LeagueBronze,
		IsOptedIn:      true,
		Zone:           ZoneSafe,
		Trend:          TrendSame,
		WeekID:         s.cal.WeekID(now),
		TimeUntilReset: s.cal.NextWeekStart(now).Sub(now).Round(time.Second).String(),
	}
	e, ok := lb.Entries[userID]
	if !ok {
		return st, nil
	}

	st.League = e.League
	st.IsOptedIn = e.IsOptedIn
	st.WeeklyXP = e.WeeklyXP
	st.PromotionStreak = e.PromotionStreak
	st.LastWeekResult = e.LastWeekResult
	standings := Standings(lb, e.League, s.policy)
	st.Participants = len(standings)
	for _, row := range standings {
		if row.UserID == userID {
			st.Rank = row.Rank
			st.Zone = row.Zone
			st.Trend, st.TrendAmount = row.Trend, row.TrendAmount
		}
	}
	return st, nil
}

// UserHistory is a user's weekly outcomes, newest first.
type UserHistory struct {
	UserID         string              `json:"userId"`
	LastWeekResult *domain.WeekResult  `json:"lastWeekResult,omitempty"`
	Weeks          []domain.WeekResult `json:"weeks"`
}

// UserHistory collects the user's lines from retained rollover records.
func (s *Service) UserHistory(ctx context.Context, userID string) (UserHistory, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return UserHistory{}, err
	}
	lb, err := s.load(ctx)
	if err != nil {
		return UserHistory{}, err
	}

	h := UserHistory{UserID: userID, Weeks: []domain.WeekResult{}}
	if e, ok := lb.Entries[userID]; ok {
		h.LastWeekResult = e.LastWeekResult
	}
	for i := len(lb.State.History) - 1; i >= 0; i-- {
		rec := lb.State.History[i]
		participants := map[domain.League]int{}
		for _, o := range rec.Outcomes {
			participants[o.League]++
		}
		for _, o := range rec.Outcomes {
			if o.UserID != userID {
				continue
			}
			h.Weeks = append(h.Weeks, domain.WeekResult{
				WeekID:       rec.WeekID,
				League:       o.League,
				FinalRank:    o.FinalRank,
				Participants: participants[o.League],
				WeeklyXP:     o.WeeklyXP,
				Promoted:     o.Promoted,
				Demoted:      o.Demoted,
				NewLeague:    o.NewLeague,
			})
		}
	}
	return h, nil
}

// LeagueSummary aggregates one league for operators.
type LeagueSummary struct {
	League       domain.League `json:"league"`
	Members      int           `json:"members"`
	Participants int           `json:"participants"`
	OptedOut     int           `json:"optedOut"`
	TotalXP      int64         `json:"totalXP"`
	TopUserID    string        `json:"topUserId,omitempty"`
	TopWeeklyXP  int64         `json:"topWeeklyXP"`
}

// Summary is the admin overview.
type Summary struct {
	CurrentWeekID   string          `json:"currentWeekId"`
	CalendarWeekID  string          `json:"calendarWeekId"`
	RolloverPending bool            `json:"rolloverPending"`
	LastRolloverAt  *time.Time      `json:"lastRolloverAt,omitempty"`
	HistoryLength   int             `json:"historyLength"`
	TotalUsers      int             `json:"totalUsers"`
	Leagues         []LeagueSummary `json:"leagues"`
}

// Summary aggregates every league.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	lb, err := s.load(ctx)
	if err != nil {
		return Summary{}, err
	}
	week := s.cal.WeekID(s.cal.Now())
	sum := Summary{
		CurrentWeekID:   lb.State.CurrentWeekID,
		CalendarWeekID:  week,
		RolloverPending: lb.State.CurrentWeekID != "" && lb.State.CurrentWeekID != week,
		HistoryLength:   len(lb.State.History),
		TotalUsers:      len(lb.Entries),
		Leagues:         make([]LeagueSummary, 0, len(domain.Leagues)),
	}
	if !lb.State.LastRolloverAt.IsZero() {
		at := lb.State.LastRolloverAt
		sum.LastRolloverAt = &at
	}

	for _, l := range domain.Leagues {
		ls := LeagueSummary{League: l}
		for _, e := range lb.Entries {
			if e.League != l {
				continue
			}
			ls.Members++
			if !e.IsOptedIn {
				ls.OptedOut++
				continue
			}
			ls.Participants++
			ls.TotalXP += e.WeeklyXP
		}
		if ms := members(lb, l); len(ms) > 0 {
			ls.TopUserID, ls.TopWeeklyXP = ms[0].UserID, ms[0].WeeklyXP
		}
		sum.Leagues = append(sum.Leagues, ls)
	}
	return sum, nil
}

// AllStandings ranks every league, bronze first.
func (s *Service) AllStandings(ctx context.Context) (string, map[domain.League][]Standing, error) {
	lb, err := s.load(ctx)
	if err != nil {
		return "", nil, err
	}
	out := make(map[domain.League][]Standing, len(domain.Leagues))
	for _, l := range domain.Leagues {
		out[l] = Standings(lb, l, s.policy)
	}
	week := lb.State.CurrentWeekID
	if week == "" {
		week = s.cal.WeekID(s.cal.Now())
	}
	return week, out, nil
}
