package engagement

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/learnpath/gamify/internal/domain"
)

// ─── Catalogue ──────────────────────────────────────────────────────────────

// BadgeCategory groups badges by theme.
type BadgeCategory string

const (
	CategoryStreak      BadgeCategory = "streak"
	CategoryLevel       BadgeCategory = "level"
	CategoryLearning    BadgeCategory = "learning"
	CategoryCompetitive BadgeCategory = "competitive"
	CategorySpecial     BadgeCategory = "special"
)

// Rarity orders badges by difficulty.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// CriterionKind tags how a badge is earned.
type CriterionKind string

const (
	StreakThreshold CriterionKind = "streak_threshold"
	LevelThreshold  CriterionKind = "level_threshold"
	ClientReported  CriterionKind = "client_reported"
)

// Criterion is a tagged union: Threshold applies to the two server-side
// kinds, Description explains ClientReported ones.
type Criterion struct {
	Kind        CriterionKind `json:"kind"`
	Threshold   int           `json:"threshold,omitempty"`
	Description string        `json:"description"`
}

// Metric returns the user's current value for the criterion. computable
// is false for ClientReported criteria.
func (c Criterion) Metric(p *domain.Profile) (current int, computable bool) {
	switch c.Kind {
	case StreakThreshold:
		return p.CurrentStreak, true
	case LevelThreshold:
		return LevelFor(p.TotalXP), true
	}
	return 0, false
}

// Satisfied reports whether p meets a server-computable criterion.
func (c Criterion) Satisfied(p *domain.Profile) bool {
	cur, ok := c.Metric(p)
	return ok && cur >= c.Threshold
}

// BadgeDef is an immutable catalogue entry.
type BadgeDef struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Icon        string        `json:"icon"`
	Category    BadgeCategory `json:"category"`
	Rarity      Rarity        `json:"rarity"`
	Hidden      bool          `json:"hidden"`
	XPReward    int64         `json:"xpReward"`
	Criterion   Criterion     `json:"criterion"`
}

var catalogue = []BadgeDef{
	{ID: "first-steps", Name: "First Steps", Description: "Complete your first day of learning",
		Icon: "👣", Category: CategoryStreak, Rarity: RarityCommon, XPReward: 10,
		Criterion: Criterion{Kind: StreakThreshold, Threshold: 1, Description: "1-day streak"}},
	{ID: "streak-3", Name: "On a Roll", Description: "Learn three days in a row",
		Icon: "🔥", Category: CategoryStreak, Rarity: RarityCommon, XPReward: 25,
		Criterion: Criterion{Kind: StreakThreshold, Threshold: 3, Description: "3-day streak"}},
	{ID: "week-warrior", Name: "Week Warrior", Description: "Keep a 7-day streak",
		Icon: "⚔️", Category: CategoryStreak, Rarity: RarityRare, XPReward: 50,
		Criterion: Criterion{Kind: StreakThreshold, Threshold: 7, Description: "7-day streak"}},
	{ID: "fortnight-focus", Name: "Fortnight Focus", Description: "Keep a 14-day streak",
		Icon: "🎯", Category: CategoryStreak, Rarity: RarityRare, XPReward: 100,
		Criterion: Criterion{Kind: StreakThreshold, Threshold: 14, Description: "14-day streak"}},
	{ID: "monthly-master", Name: "Monthly Master", Description: "Keep a 30-day streak",
		Icon: "📅", Category: CategoryStreak, Rarity: RarityEpic, XPReward: 250,
		Criterion: Criterion{Kind: StreakThreshold, Threshold: 30, Description: "30-day streak"}},
	{ID: "century-club", Name: "Century Club", Description: "Keep a 100-day streak",
		Icon: "💯", Category: CategoryStreak, Rarity: RarityLegendary, XPReward: 1000,
		Criterion: Criterion{Kind: StreakThreshold, Threshold: 100, Description: "100-day streak"}},

	{ID: "level-5", Name: "Rising Star", Description: "Reach level 5",
		Icon: "⭐", Category: CategoryLevel, Rarity: RarityCommon, XPReward: 50,
		Criterion: Criterion{Kind: LevelThreshold, Threshold: 5, Description: "Level 5"}},
	{ID: "level-10", Name: "Dedicated Learner", Description: "Reach level 10",
		Icon: "🌟", Category: CategoryLevel, Rarity: RarityRare, XPReward: 100,
		Criterion: Criterion{Kind: LevelThreshold, Threshold: 10, Description: "Level 10"}},
	{ID: "level-25", Name: "Scholar", Description: "Reach level 25",
		Icon: "🎓", Category: CategoryLevel, Rarity: RarityEpic, XPReward: 250,
		Criterion: Criterion{Kind: LevelThreshold, Threshold: 25, Description: "Level 25"}},
	{ID: "level-50", Name: "Sage", Description: "Reach level 50",
		Icon: "🧙", Category: CategoryLevel, Rarity: RarityLegendary, XPReward: 500,
		Criterion: Criterion{Kind: LevelThreshold, Threshold: 50, Description: "Level 50"}},

	{ID: "quiz-perfectionist", Name: "Perfectionist", Description: "Score 100% on three quizzes",
		Icon: "✅", Category: CategoryLearning, Rarity: RarityRare, XPReward: 75,
		Criterion: Criterion{Kind: ClientReported, Description: "100% on 3 quizzes"}},
	{ID: "course-finisher", Name: "Course Finisher", Description: "Complete an entire course",
		Icon: "🏁", Category: CategoryLearning, Rarity: RarityRare, XPReward: 100,
		Criterion: Criterion{Kind: ClientReported, Description: "Finish every lesson in a course"}},
	{ID: "goal-getter", Name: "Goal Getter", Description: "Meet your daily goal seven days running",
		Icon: "🥅", Category: CategoryLearning, Rarity: RarityRare, XPReward: 75,
		Criterion: Criterion{Kind: ClientReported, Description: "7-day goal streak"}},

	{ID: "league-climber", Name: "League Climber", Description: "Earn a promotion in the weekly league",
		Icon: "🧗", Category: CategoryCompetitive, Rarity: RarityRare, XPReward: 100,
		Criterion: Criterion{Kind: ClientReported, Description: "Promoted at a weekly rollover"}},
	{ID: "diamond-league", Name: "Diamond Mind", Description: "Reach the Diamond league",
		Icon: "💎", Category: CategoryCompetitive, Rarity: RarityLegendary, XPReward: 500,
		Criterion: Criterion{Kind: ClientReported, Description: "Member of the Diamond league"}},

	{ID: "night-owl", Name: "Night Owl", Description: "Finish a lesson after midnight",
		Icon: "🦉", Category: CategorySpecial, Rarity: RarityRare, Hidden: true, XPReward: 50,
		Criterion: Criterion{Kind: ClientReported, Description: "Lesson completed between 00:00 and 04:00"}},
	{ID: "early-bird", Name: "Early Bird", Description: "Finish a lesson before 7am",
		Icon: "🐦", Category: CategorySpecial, Rarity: RarityRare, Hidden: true, XPReward: 50,
		Criterion: Criterion{Kind: ClientReported, Description: "Lesson completed between 05:00 and 07:00"}},
	{ID: "comeback-kid", Name: "Comeback Kid", Description: "Return after a broken streak",
		Icon: "🔄", Category: CategorySpecial, Rarity: RarityEpic, Hidden: true, XPReward: 75,
		Criterion: Criterion{Kind: ClientReported, Description: "Restart learning after losing a 7-day streak"}},
}

// Badges returns a copy of the catalogue.
func Badges() []BadgeDef {
	out := make([]BadgeDef, len(catalogue))
	copy(out, catalogue)
	return out
}

// LookupBadge finds a catalogue entry by ID.
func LookupBadge(id string) (BadgeDef, bool) {
	for _, b := range catalogue {
		if b.ID == id {
			return b, true
		}
	}
	return BadgeDef{}, false
}

var badgeIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// ResolveBadge validates the ID shape before looking it up, so malformed
// IDs and unknown ones fail differently.
func ResolveBadge(id string) (BadgeDef, error) {
	if !badgeIDPattern.MatchString(id) {
		return BadgeDef{}, fmt.Errorf("%w: %q", domain.ErrInvalidBadgeID, id)
	}
	def, ok := LookupBadge(id)
	if !ok {
		return BadgeDef{}, fmt.Errorf("%w: %s", domain.ErrBadgeNotFound, id)
	}
	return def, nil
}

// ─── Unlocking ──────────────────────────────────────────────────────────────

// unlock records def once and pays its reward. It reports false when the
// badge was already held.
func (e *Engine) unlock(p *domain.Profile, g *Gains, def BadgeDef, now time.Time) bool {
	if p.UnlockedBadges.Has(def.ID) {
		return false
	}
	at := now.UTC()
	p.UnlockedBadges = append(p.UnlockedBadges, domain.UnlockedBadge{BadgeID: def.ID, UnlockedAt: at})
	if def.XPReward > 0 {
		e.award(p, g, def.XPReward, def.XPReward, domain.XPBadge, "badge: "+def.Name, now)
	}
	g.BadgesUnlocked = append(g.BadgesUnlocked, BadgeUnlock{
		BadgeID: def.ID, Name: def.Name, Rarity: def.Rarity, XPReward: def.XPReward, UnlockedAt: at,
	})
	return true
}

// evaluateBadges unlocks every satisfied server-side badge. Badge XP can
// lift the level past another threshold, so it repeats until stable.
func (e *Engine) evaluateBadges(p *domain.Profile, g *Gains, now time.Time) {
	for {
		changed := false
		for _, def := range catalogue {
			if def.Criterion.Kind == ClientReported || p.UnlockedBadges.Has(def.ID) {
				continue
			}
			if def.Criterion.Satisfied(p) && e.unlock(p, g, def, now) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// BadgeUnlockResult is the outcome of an explicit unlock request.
type BadgeUnlockResult struct {
	BadgeID         string    `json:"badgeId"`
	AlreadyUnlocked bool      `json:"alreadyUnlocked"`
	XPReward        int64     `json:"xpReward"`
	UnlockedAt      time.Time `json:"unlockedAt"`
	TotalXP         int64     `json:"totalXP"`
}

// UnlockBadge records a badge reported by the client. Server-computable
// badges are only granted once their criterion holds.
func (e *Engine) UnlockBadge(p *domain.Profile, badgeID string, now time.Time) (BadgeUnlockResult, Gains, error) {
	def, err := ResolveBadge(badgeID)
	if err != nil {
		return BadgeUnlockResult{}, Gains{}, err
	}

	if held, ok := p.UnlockedBadges.Get(def.ID); ok {
		return BadgeUnlockResult{
			BadgeID: def.ID, AlreadyUnlocked: true, UnlockedAt: held.UnlockedAt, TotalXP: p.TotalXP,
		}, Gains{BadgesUnlocked: []BadgeUnlock{}, TotalXP: p.TotalXP}, nil
	}
	if def.Criterion.Kind != ClientReported && !def.Criterion.Satisfied(p) {
		return BadgeUnlockResult{}, Gains{}, fmt.Errorf("%w: %s", domain.ErrBadgeCriteriaUnmet, def.Criterion.Description)
	}

	e.initProfile(p, now)
	g := e.begin(p)
	e.unlock(p, &g, def, now)
	e.finish(p, &g, now)

	held, _ := p.UnlockedBadges.Get(def.ID)
	return BadgeUnlockResult{
		BadgeID: def.ID, XPReward: def.XPReward, UnlockedAt: held.UnlockedAt, TotalXP: p.TotalXP,
	}, g, nil
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// BadgeView is a catalogue entry as seen by one user.
type BadgeView struct {
	BadgeDef
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}

// Catalogue lists badges for p (nil for anonymous). Hidden badges appear
// only once unlocked.
func (e *Engine) Catalogue(p *domain.Profile) []BadgeView {
	out := make([]BadgeView, 0, len(catalogue))
	for _, def := range catalogue {
		v := BadgeView{BadgeDef: def}
		if p != nil {
			if held, ok := p.UnlockedBadges.Get(def.ID); ok {
				at := held.UnlockedAt
				v.Unlocked, v.UnlockedAt = true, &at
			}
		}
		if def.Hidden && !v.Unlocked {
			continue
		}
		out = append(out, v)
	}
	return out
}

// UserBadges lists the badges p holds, in unlock order.
func (e *Engine) UserBadges(p *domain.Profile) []BadgeView {
	out := make([]BadgeView, 0, len(p.UnlockedBadges))
	for _, held := range p.UnlockedBadges {
		def, ok := LookupBadge(held.BadgeID)
		if !ok {
			def = BadgeDef{ID: held.BadgeID, Name: held.BadgeID}
		}
		at := held.UnlockedAt
		out = append(out, BadgeView{BadgeDef: def, Unlocked: true, UnlockedAt: &at})
	}
	return out
}

// BadgeProgress reports how close p is to one badge.
type BadgeProgress struct {
	BadgeID         string        `json:"badgeId"`
	Kind            CriterionKind `json:"kind"`
	Unlocked        bool          `json:"unlocked"`
	Computable      bool          `json:"computable"`
	Current         int           `json:"current"`
	Target          int           `json:"target"`
	ProgressPercent float64       `json:"progressPercent"`
	Description     string        `json:"description"`
}

// Progress reports progress toward badgeID.
func (e *Engine) Progress(p *domain.Profile, badgeID string) (BadgeProgress, error) {
	def, err := ResolveBadge(badgeID)
	if err != nil {
		return BadgeProgress{}, err
	}
	bp := BadgeProgress{
		BadgeID:     def.ID,
		Kind:        def.Criterion.Kind,
		Unlocked:    p.UnlockedBadges.Has(def.ID),
		Target:      def.Criterion.Threshold,
		Description: def.Criterion.Description,
	}
	bp.Current, bp.Computable = def.Criterion.Metric(p)
	switch {
	case bp.Unlocked:
		bp.ProgressPercent = 100
	case bp.Computable && bp.Target > 0:
		bp.ProgressPercent = math.Min(100, math.Round(float64(bp.Current)/float64(bp.Target)*10000)/100)
	}
	return bp, nil
}

// Tally counts visible badges against unlocked ones.
type Tally struct {
	Total    int `json:"total"`
	Unlocked int `json:"unlocked"`
}

// BadgeStats aggregates visible badges only; hidden badges are excluded
// from every count.
type BadgeStats struct {
	Total             int                     `json:"total"`
	Unlocked          int                     `json:"unlocked"`
	CompletionPercent float64                 `json:"completionPercent"`
	ByRarity          map[Rarity]Tally        `json:"byRarity"`
	ByCategory        map[BadgeCategory]Tally `json:"byCategory"`
	TotalXPFromBadges int64                   `json:"totalXPFromBadges"`
}

// Stats aggregates badge progress for p.
func (e *Engine) Stats(p *domain.Profile) BadgeStats {
	st := BadgeStats{ByRarity: map[Rarity]Tally{}, ByCategory: map[BadgeCategory]Tally{}}
	for _, def := range catalogue {
		if def.Hidden {
			continue
		}
		unlocked := p.UnlockedBadges.Has(def.ID)

		r, c := st.ByRarity[def.Rarity], st.ByCategory[def.Category]
		r.Total++
		c.Total++
		st.Total++
		if unlocked {
			r.Unlocked++
			c.Unlocked++
			st.Unlocked++
			st.TotalXPFromBadges += def.XPReward
		}
		st.ByRarity[def.Rarity], st.ByCategory[def.Category] = r, c
	}
	if st.Total > 0 {
		st.CompletionPercent = math.Round(float64(st.Unlocked)/float64(st.Total)*10000) / 100
	}
	return st
}
