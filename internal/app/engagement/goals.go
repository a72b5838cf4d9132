package engagement

import (
	"fmt"
	"math"
	"time"

	"github.com/learnpath/gamify/internal/calendar"
	"github.com/learnpath/gamify/internal/domain"
)

// GoalMilestone adds bonus XP when the goal streak reaches Days.
type GoalMilestone struct {
	Days    int   `json:"days"`
	XPBonus int64 `json:"xpBonus"`
}

// GoalPolicy tunes the daily goal tracker.
type GoalPolicy struct {
	Default         int
	Min             int
	Max             int
	CompletionBonus int64
	HistoryDays     int
	Milestones      []GoalMilestone
}

// DefaultGoalPolicy returns the stock goal rules.
func DefaultGoalPolicy() GoalPolicy {
	return GoalPolicy{
		Default:         domain.DefaultDailyGoal,
		Min:             1,
		Max:             10,
		CompletionBonus: 25,
		HistoryDays:     30,
		Milestones: []GoalMilestone{
			{Days: 7, XPBonus: 50},
			{Days: 14, XPBonus: 100},
			{Days: 30, XPBonus: 250},
			{Days: 60, XPBonus: 500},
			{Days: 100, XPBonus: 1000},
		},
	}
}

// GoalProgress is the outcome of counting one lesson toward today's goal.
type GoalProgress struct {
	Date             string         `json:"date"`
	DailyGoal        int            `json:"dailyGoal"`
	Completed        int            `json:"completed"`
	GoalMet          bool           `json:"goalMet"`
	JustMet          bool           `json:"justMet"`
	Duplicate        bool           `json:"duplicate"`
	ExceededBy       int            `json:"exceededBy"`
	BonusXP          int64          `json:"bonusXP"`
	GoalStreak       int            `json:"goalStreak"`
	MilestoneReached *GoalMilestone `json:"milestoneReached,omitempty"`
}

// today returns the record for day, appending one and trimming the window
// when it does not exist yet.
func (e *Engine) today(p *domain.Profile, day string) *domain.DayProgress {
	if rec := p.Day(day); rec != nil {
		return rec
	}
	p.Goals.DailyProgress = append(p.Goals.DailyProgress, domain.DayProgress{
		Date:      day,
		Goal:      p.Goals.DailyGoal,
		LessonIDs: []string{},
	})
	if keep := e.opts.Goals.HistoryDays; keep > 0 && len(p.Goals.DailyProgress) > keep {
		p.Goals.DailyProgress = append([]domain.DayProgress(nil), p.Goals.DailyProgress[len(p.Goals.DailyProgress)-keep:]...)
	}
	return &p.Goals.DailyProgress[len(p.Goals.DailyProgress)-1]
}

// recordLesson counts lessonID toward today. A lesson already counted today
// is a no-op.
func (e *Engine) recordLesson(p *domain.Profile, g *Gains, lessonID string, now time.Time) GoalProgress {
	day := e.cal.Day(now)
	rec := e.today(p, day)

	res := GoalProgress{Date: day}
	if rec.HasLesson(lessonID) {
		res.Duplicate = true
	} else {
		rec.LessonIDs = append(rec.LessonIDs, lessonID)
		rec.Completed = len(rec.LessonIDs)
		e.settleDay(p, g, rec, &res, now)
	}

	res.DailyGoal = p.Goals.DailyGoal
	res.Completed = rec.Completed
	res.GoalMet = rec.GoalMet
	res.ExceededBy = rec.ExceededBy
	res.GoalStreak = p.Goals.GoalStreak.Current
	return res
}

// settleDay re-derives goalMet for rec and pays the one-time bonus on the
// false → true transition.
func (e *Engine) settleDay(p *domain.Profile, g *Gains, rec *domain.DayProgress, res *GoalProgress, now time.Time) {
	rec.Goal = p.Goals.DailyGoal
	rec.ExceededBy = max(0, rec.Completed-rec.Goal)
	if rec.GoalMet || rec.Completed < rec.Goal {
		return
	}

	rec.GoalMet = true
	res.JustMet = true
	if bonus := e.opts.Goals.CompletionBonus; bonus > 0 {
		e.award(p, g, bonus, bonus, domain.XPGoalCompleted, "daily goal completed", now)
		res.BonusXP += bonus
	}

	gs := &p.Goals.GoalStreak
	if gs.LastGoalMetDate != "" && gs.LastGoalMetDate == calendar.AddDays(rec.Date, -1) {
		gs.Current++
	} else {
		gs.Current = 1
		gs.StreakStartDate = rec.Date
	}
	gs.LastGoalMetDate = rec.Date
	if gs.Current > gs.Longest {
		gs.Longest = gs.Current
	}

	for _, m := range e.opts.Goals.Milestones {
		if m.Days != gs.Current {
			continue
		}
		m := m
		res.MilestoneReached = &m
		if m.XPBonus > 0 {
			e.award(p, g, m.XPBonus, m.XPBonus, domain.XPGoalStreakMilestone,
				fmt.Sprintf("%d-day goal streak", m.Days), now)
			res.BonusXP += m.XPBonus
		}
	}
}

// GoalUpdate carries optional goal settings; nil fields are left alone.
type GoalUpdate struct {
	DailyGoal      *int
	TimeCommitment *domain.TimeCommitment
}

// SetDailyGoal changes the goal settings. Today's record adopts the new
// target; crossing it pays the bonus, but a goal already met stays met.
func (e *Engine) SetDailyGoal(p *domain.Profile, upd GoalUpdate, now time.Time) (GoalStatus, Gains, error) {
	if upd.DailyGoal == nil && upd.TimeCommitment == nil {
		return GoalStatus{}, Gains{}, domain.ErrGoalUpdateEmpty
	}
	if upd.DailyGoal != nil {
		if *upd.DailyGoal < e.opts.Goals.Min || *upd.DailyGoal > e.opts.Goals.Max {
			return GoalStatus{}, Gains{}, fmt.Errorf("%w: must be between %d and %d",
				domain.ErrInvalidGoal, e.opts.Goals.Min, e.opts.Goals.Max)
		}
	}
	if upd.TimeCommitment != nil && !upd.TimeCommitment.Valid() {
		return GoalStatus{}, Gains{}, domain.ErrInvalidTimeCommitment
	}

	e.initProfile(p, now)
	g := e.begin(p)
	if upd.TimeCommitment != nil {
		p.Goals.TimeCommitment = *upd.TimeCommitment
	}
	if upd.DailyGoal != nil {
		p.Goals.DailyGoal = *upd.DailyGoal
		if rec := p.Day(e.cal.Day(now)); rec != nil {
			var res GoalProgress
			e.settleDay(p, &g, rec, &res, now)
		}
	}
	e.finish(p, &g, now)
	return e.GoalStatus(p, now), g, nil
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// GoalStatus is today's goal view.
type GoalStatus struct {
	Date            string                `json:"date"`
	DailyGoal       int                   `json:"dailyGoal"`
	TimeCommitment  domain.TimeCommitment `json:"timeCommitment"`
	Completed       int                   `json:"completedToday"`
	LessonIDs       []string              `json:"lessonIds"`
	GoalMet         bool                  `json:"goalMet"`
	Remaining       int                   `json:"remaining"`
	ExceededBy      int                   `json:"exceededBy"`
	ProgressPercent float64               `json:"progressPercent"`
	GoalStreak      domain.GoalStreak     `json:"goalStreak"`
}

// GoalStatus reports today's progress without mutating p.
func (e *Engine) GoalStatus(p *domain.Profile, now time.Time) GoalStatus {
	day := e.cal.Day(now)
	st := GoalStatus{
		Date:           day,
		DailyGoal:      p.Goals.DailyGoal,
		TimeCommitment: p.Goals.TimeCommitment,
		LessonIDs:      []string{},
		GoalStreak:     e.liveGoalStreak(p, day),
	}
	if rec := p.Day(day); rec != nil {
		st.Completed = rec.Completed
		st.LessonIDs = append(st.LessonIDs, rec.LessonIDs...)
		st.GoalMet = rec.GoalMet
		st.ExceededBy = rec.ExceededBy
	}
	st.Remaining = max(0, st.DailyGoal-st.Completed)
	if st.DailyGoal > 0 {
		st.ProgressPercent = math.Min(100, math.Round(float64(st.Completed)/float64(st.DailyGoal)*10000)/100)
	}
	return st
}

// liveGoalStreak hides a goal streak whose last met day is older than
// yesterday. The stored value is corrected on the next goal completion.
func (e *Engine) liveGoalStreak(p *domain.Profile, today string) domain.GoalStreak {
	gs := p.Goals.GoalStreak
	if gs.LastGoalMetDate == "" {
		return gs
	}
	if gs.LastGoalMetDate != today && gs.LastGoalMetDate != calendar.AddDays(today, -1) {
		gs.Current = 0
	}
	return gs
}

// GoalHistoryStats aggregates retained history only.
type GoalHistoryStats struct {
	DaysTracked   int     `json:"daysTracked"`
	DaysGoalMet   int     `json:"daysGoalMet"`
	SuccessRate   float64 `json:"successRate"`
	TotalLessons  int     `json:"totalLessons"`
	AveragePerDay float64 `json:"averagePerDay"`
}

// GoalHistory is the most-recent-first day list plus stats.
type GoalHistory struct {
	Days  []domain.DayProgress `json:"days"`
	Stats GoalHistoryStats     `json:"stats"`
}

// GoalHistory returns up to days records, newest first. days <= 0 means
// everything retained.
func (e *Engine) GoalHistory(p *domain.Profile, days int) GoalHistory {
	src := p.Goals.DailyProgress
	if days > 0 && len(src) > days {
		src = src[len(src)-days:]
	}

	h := GoalHistory{Days: make([]domain.DayProgress, 0, len(src))}
	for i := len(src) - 1; i >= 0; i-- {
		d := src[i]
		h.Days = append(h.Days, d)
		h.Stats.DaysTracked++
		h.Stats.TotalLessons += d.Completed
		if d.GoalMet {
			h.Stats.DaysGoalMet++
		}
	}
	if h.Stats.DaysTracked > 0 {
		n := float64(h.Stats.DaysTracked)
		h.Stats.SuccessRate = math.Round(float64(h.Stats.DaysGoalMet)/n*10000) / 100
		h.Stats.AveragePerDay = math.Round(float64(h.Stats.TotalLessons)/n*100) / 100
	}
	return h
}

// GoalStreakView is the goal streak plus the next milestone.
type GoalStreakView struct {
	domain.GoalStreak
	NextMilestone *GoalMilestone `json:"nextMilestone,omitempty"`
}

// GoalStreak reads the goal streak as of now.
func (e *Engine) GoalStreak(p *domain.Profile, now time.Time) GoalStreakView {
	v := GoalStreakView{GoalStreak: e.liveGoalStreak(p, e.cal.Day(now))}
	for _, m := range e.opts.Goals.Milestones {
		if m.Days > v.Current && (v.NextMilestone == nil || m.Days < v.NextMilestone.Days) {
			m := m
			v.NextMilestone = &m
		}
	}
	return v
}
