// Package league runs the weekly tiered competition: weekly XP totals,
// ranks, promotion and demotion zones, and the once-per-week rollover.
package league

import (
	"sort"

	"github.com/learnpath/gamify/internal/domain"
)

// Threshold is a league's promotion (top X%) and demotion (bottom Y%)
// band. Zero disables a band.
type Threshold struct {
	PromotePercent int `json:"promotePercent"`
	DemotePercent  int `json:"demotePercent"`
}

// Policy tunes the competition.
type Policy struct {
	Thresholds    map[domain.League]Threshold
	HistoryWeeks  int
	SnapshotWeeks int
}

// DefaultPolicy returns the stock thresholds: bronze 20/–, silver 15/15,
// gold 10/20, diamond –/25.
func DefaultPolicy() Policy {
	return Policy{
		Thresholds: map[domain.League]Threshold{
			domain.LeagueBronze:  {PromotePercent: 20},
			domain.LeagueSilver:  {PromotePercent: 15, DemotePercent: 15},
			domain.LeagueGold:    {PromotePercent: 10, DemotePercent: 20},
			domain.LeagueDiamond: {DemotePercent: 25},
		},
		HistoryWeeks:  52,
		SnapshotWeeks: 12,
	}
}

// threshold returns the band for l with edge tiers clamped: the top league
// never promotes and the bottom league never demotes.
func (p Policy) threshold(l domain.League) Threshold {
	t := p.Thresholds[l]
	if _, ok := l.Up(); !ok {
		t.PromotePercent = 0
	}
	if _, ok := l.Down(); !ok {
		t.DemotePercent = 0
	}
	return t
}

// promotes reports rank/n*100 <= PromotePercent.
func (t Threshold) promotes(rank, n int) bool {
	return t.PromotePercent > 0 && n > 0 && rank*100 <= t.PromotePercent*n
}

// demotes reports (n-rank+1)/n*100 <= DemotePercent.
func (t Threshold) demotes(rank, n int) bool {
	return t.DemotePercent > 0 && n > 0 && (n-rank+1)*100 <= t.DemotePercent*n
}

// promotionCutoff is the lowest rank still promoted, or 0.
func (t Threshold) promotionCutoff(n int) int {
	return t.PromotePercent * n / 100
}

// demotionStart is the highest rank already demoted, or 0 when nobody is.
func (t Threshold) demotionStart(n int) int {
	k := t.DemotePercent * n / 100
	if k == 0 {
		return 0
	}
	return n - k + 1
}

// ─── Standings ──────────────────────────────────────────────────────────────

// Trend compares a rank with the previous one.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendSame Trend = "same"
)

// Zone marks where a rank falls relative to the league bands.
type Zone string

const (
	ZonePromotion Zone = "promotion"
	ZoneSafe      Zone = "safe"
	ZoneDemotion  Zone = "demotion"
)

// Standing is one ranked leaderboard row.
type Standing struct {
	UserID        string `json:"userId"`
	Rank          int    `json:"rank"`
	WeeklyXP      int64  `json:"weeklyXP"`
	PreviousRank  int    `json:"previousRank"`
	Trend         Trend  `json:"trend"`
	TrendAmount   int    `json:"trendAmount"`
	Zone          Zone   `json:"zone"`
	IsCurrentUser bool   `json:"isCurrentUser"`
}

// members returns the opted-in entries of l sorted by weekly XP descending,
// ties broken by userId ascending.
func members(lb *domain.Leaderboard, l domain.League) []*domain.LeagueEntry {
	out := make([]*domain.LeagueEntry, 0)
	for _, e := range lb.Entries {
		if e.League == l && e.IsOptedIn {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WeeklyXP != out[j].WeeklyXP {
			return out[i].WeeklyXP > out[j].WeeklyXP
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func zoneFor(t Threshold, rank, n int) Zone {
	switch {
	case t.promotes(rank, n):
		return ZonePromotion
	case t.demotes(rank, n):
		return ZoneDemotion
	}
	return ZoneSafe
}

func trendFor(rank, previous int) (Trend, int) {
	switch {
	case previous == 0 || previous == rank:
		return TrendSame, 0
	case rank < previous:
		return TrendUp, previous - rank
	}
	return TrendDown, rank - previous
}

// Standings ranks league l.
func Standings(lb *domain.Leaderboard, l domain.League, p Policy) []Standing {
	ms := members(lb, l)
	t := p.threshold(l)
	out := make([]Standing, 0, len(ms))
	for i, e := range ms {
		rank := i + 1
		trend, amount := trendFor(rank, e.PreviousRank)
		out = append(out, Standing{
			UserID:       e.UserID,
			Rank:         rank,
			WeeklyXP:     e.WeeklyXP,
			PreviousRank: e.PreviousRank,
			Trend:        trend,
			TrendAmount:  amount,
			Zone:         zoneFor(t, rank, len(ms)),
		})
	}
	return out
}

// refreshRanks stores the computed rank on every member of l, shifting the
// old rank into PreviousRank when it moves.
func refreshRanks(lb *domain.Leaderboard, l domain.League) {
	for i, e := range members(lb, l) {
		rank := i + 1
		if e.CurrentRank != rank {
			e.PreviousRank = e.CurrentRank
			e.CurrentRank = rank
		}
	}
}
