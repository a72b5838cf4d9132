package league

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpath/gamify/internal/domain"
)

var rolloverAt = time.Date(2025, time.July, 7, 0, 0, 5, 0, time.UTC)

// seed adds n opted-in members to l named <prefix>01.. with weekly XP
// descending from n*10.
func seed(lb *domain.Leaderboard, l domain.League, prefix string, n int) {
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("%s%02d", prefix, i)
		lb.Entries[id] = &domain.LeagueEntry{
			UserID:    id,
			League:    l,
			IsOptedIn: true,
			WeeklyXP:  int64((n - i + 1) * 10),
		}
	}
}

func activeBoard(week string) *domain.Leaderboard {
	lb := domain.NewLeaderboard()
	lb.State.CurrentWeekID = week
	return lb
}

// ═══════════════════════════════════════════════════════════════════════════
// Threshold Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestThreshold_Bands(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		league       domain.League
		n            int
		wantPromoted []int
		wantDemoted  []int
	}{
		{domain.LeagueBronze, 10, []int{1, 2}, nil},
		{domain.LeagueSilver, 10, []int{1}, []int{10}},
		{domain.LeagueGold, 10, []int{1}, []int{9, 10}},
		{domain.LeagueDiamond, 4, nil, []int{4}},
		{domain.LeagueSilver, 1, nil, nil},
		{domain.LeagueBronze, 5, []int{1}, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.league, tt.n), func(t *testing.T) {
			th := p.threshold(tt.league)
			var promoted, demoted []int
			for rank := 1; rank <= tt.n; rank++ {
				if th.promotes(rank, tt.n) {
					promoted = append(promoted, rank)
				}
				if th.demotes(rank, tt.n) {
					demoted = append(demoted, rank)
				}
			}
			assert.Equal(t, tt.wantPromoted, promoted)
			assert.Equal(t, tt.wantDemoted, demoted)
		})
	}
}

func TestThreshold_EdgeLeaguesClamped(t *testing.T) {
	p := Policy{Thresholds: map[domain.League]Threshold{
		domain.LeagueBronze:  {PromotePercent: 20, DemotePercent: 50},
		domain.LeagueDiamond: {PromotePercent: 50, DemotePercent: 25},
	}}
	assert.Equal(t, 0, p.threshold(domain.LeagueBronze).DemotePercent)
	assert.Equal(t, 0, p.threshold(domain.LeagueDiamond).PromotePercent)
}

func TestStandings_TieBreakAndZones(t *testing.T) {
	lb := activeBoard("2025-W27")
	for _, id := range []string{"zed", "amy", "bob"} {
		lb.Entries[id] = &domain.LeagueEntry{UserID: id, League: domain.LeagueSilver, IsOptedIn: true, WeeklyXP: 50}
	}
	lb.Entries["out"] = &domain.LeagueEntry{UserID: "out", League: domain.LeagueSilver, WeeklyXP: 999}

	rows := Standings(lb, domain.LeagueSilver, DefaultPolicy())
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"amy", "bob", "zed"}, []string{rows[0].UserID, rows[1].UserID, rows[2].UserID})
	for _, r := range rows {
		assert.Equal(t, ZoneSafe, r.Zone)
	}
}

func TestRefreshRanks_Trend(t *testing.T) {
	lb := activeBoard("2025-W27")
	seed(lb, domain.LeagueBronze, "b", 3)
	refreshRanks(lb, domain.LeagueBronze)

	lb.Entries["b03"].WeeklyXP = 100
	refreshRanks(lb, domain.LeagueBronze)

	rows := Standings(lb, domain.LeagueBronze, DefaultPolicy())
	assert.Equal(t, "b03", rows[0].UserID)
	assert.Equal(t, TrendUp, rows[0].Trend)
	assert.Equal(t, 2, rows[0].TrendAmount)
	assert.Equal(t, TrendDown, rows[1].Trend)
}

// ═══════════════════════════════════════════════════════════════════════════
// Rollover Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestRollover_InitializesEmptyState(t *testing.T) {
	lb := domain.NewLeaderboard()

	r := rollover(lb, DefaultPolicy(), "2025-W28", rolloverAt)
	assert.True(t, r.Processed)
	assert.True(t, r.Initialized)
	assert.Equal(t, "2025-W28", lb.State.CurrentWeekID)
	assert.Empty(t, lb.State.History)
}

func TestRollover_SameWeekIsNoop(t *testing.T) {
	lb := activeBoard("2025-W28")
	seed(lb, domain.LeagueBronze, "b", 5)

	r := rollover(lb, DefaultPolicy(), "2025-W28", rolloverAt)
	assert.False(t, r.Processed)
	assert.Equal(t, AlreadyProcessedMessage, r.Message)
	assert.Equal(t, int64(50), lb.Entries["b01"].WeeklyXP)
}

func TestRollover_PromotesAndDemotes(t *testing.T) {
	lb := activeBoard("2025-W27")
	seed(lb, domain.LeagueBronze, "b", 10)
	seed(lb, domain.LeagueSilver, "s", 10)
	seed(lb, domain.LeagueGold, "g", 10)
	seed(lb, domain.LeagueDiamond, "d", 4)
	lb.Entries["s10"].PromotionStreak = 2

	r := rollover(lb, DefaultPolicy(), "2025-W28", rolloverAt)
	require.True(t, r.Processed)
	assert.Equal(t, "2025-W27", r.PreviousWeekID)
	assert.Equal(t, 34, r.Participants)
	assert.Equal(t, 4, r.Promotions)
	assert.Equal(t, 4, r.Demotions)

	want := map[string]domain.League{
		"b01": domain.LeagueSilver, "b02": domain.LeagueSilver, "b03": domain.LeagueBronze,
		"s01": domain.LeagueGold, "s02": domain.LeagueSilver, "s10": domain.LeagueBronze,
		"g01": domain.LeagueDiamond, "g08": domain.LeagueGold, "g09": domain.LeagueSilver, "g10": domain.LeagueSilver,
		"d01": domain.LeagueDiamond, "d04": domain.LeagueGold,
	}
	for id, l := range want {
		assert.Equal(t, l, lb.Entries[id].League, id)
	}

	assert.Equal(t, 1, lb.Entries["b01"].PromotionStreak)
	assert.Equal(t, 0, lb.Entries["s10"].PromotionStreak)

	res := lb.Entries["b01"].LastWeekResult
	require.NotNil(t, res)
	assert.Equal(t, "2025-W27", res.WeekID)
	assert.Equal(t, 1, res.FinalRank)
	assert.Equal(t, 10, res.Participants)
	assert.Equal(t, int64(100), res.WeeklyXP)
	assert.True(t, res.Promoted)
}

func TestRollover_LargeBronzeLeague(t *testing.T) {
	lb := activeBoard("2025-W27")
	seed(lb, domain.LeagueBronze, "b", 50)
	lb.Entries["b01"].PromotionStreak = 2

	r := rollover(lb, DefaultPolicy(), "2025-W28", rolloverAt)
	require.True(t, r.Processed)
	assert.Equal(t, 50, r.Participants)
	assert.Equal(t, 10, r.Promotions)
	assert.Equal(t, 0, r.Demotions)

	top := lb.Entries["b01"]
	assert.Equal(t, domain.LeagueSilver, top.League)
	assert.Equal(t, 3, top.PromotionStreak)
	assert.Equal(t, int64(0), top.WeeklyXP)
	require.NotNil(t, top.LastWeekResult)
	assert.Equal(t, int64(500), top.LastWeekResult.WeeklyXP)
	assert.Equal(t, 50, top.LastWeekResult.Participants)

	assert.Equal(t, domain.LeagueSilver, lb.Entries["b10"].League)
	assert.Equal(t, domain.LeagueBronze, lb.Entries["b11"].League)
	assert.Equal(t, domain.LeagueBronze, lb.Entries["b50"].League)
	assert.Equal(t, 0, lb.Entries["b11"].PromotionStreak)
	for id, e := range lb.Entries {
		assert.Equal(t, int64(0), e.WeeklyXP, id)
	}
}

func TestRollover_SnapshotPreventsDoubleMoves(t *testing.T) {
	lb := activeBoard("2025-W27")
	seed(lb, domain.LeagueBronze, "b", 5)
	// b01 beats every silver member but must not be ranked in silver this week.
	lb.Entries["b01"].WeeklyXP = 10_000
	seed(lb, domain.LeagueSilver, "s", 7)

	r := rollover(lb, DefaultPolicy(), "2025-W28", rolloverAt)
	assert.Equal(t, domain.LeagueSilver, lb.Entries["b01"].League)

	silver := 0
	for _, o := range r.Record.Outcomes {
		if o.League == domain.LeagueSilver {
			silver++
			assert.NotEqual(t, "b01", o.UserID)
		}
	}
	assert.Equal(t, 7, silver)
}

func TestRollover_ResetsWeekAndKeepsSnapshot(t *testing.T) {
	lb := activeBoard("2025-W27")
	seed(lb, domain.LeagueBronze, "b", 3)
	lb.Entries["quiet"] = &domain.LeagueEntry{UserID: "quiet", League: domain.LeagueBronze, WeeklyXP: 40}
	refreshRanks(lb, domain.LeagueBronze)

	r := rollover(lb, DefaultPolicy(), "2025-W28", rolloverAt)
	assert.Equal(t, 3, r.Participants)

	for id, e := range lb.Entries {
		assert.Equal(t, int64(0), e.WeeklyXP, id)
		assert.Equal(t, 0, e.CurrentRank, id)
		assert.Equal(t, 0, e.PreviousRank, id)
	}
	assert.Nil(t, lb.Entries["quiet"].LastWeekResult)
	assert.Equal(t, map[string]int64{"b01": 30, "b02": 20, "b03": 10}, lb.State.WeeklyData["2025-W27"])
	assert.Equal(t, "2025-W28", lb.State.CurrentWeekID)
	assert.Equal(t, rolloverAt, lb.State.LastRolloverAt)
	require.Len(t, lb.State.History, 1)
	assert.Equal(t, "2025-W28", lb.State.History[0].NextWeekID)
}

func TestRollover_ZeroXPUsersAreRanked(t *testing.T) {
	lb := activeBoard("2025-W27")
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		lb.Entries[id] = &domain.LeagueEntry{UserID: id, League: domain.LeagueBronze, IsOptedIn: true}
	}

	r := rollover(lb, DefaultPolicy(), "2025-W28", rolloverAt)
	assert.Equal(t, 1, r.Promotions)
	assert.Equal(t, domain.LeagueSilver, lb.Entries["a"].League)
}

func TestRollover_HistoryAndSnapshotRetention(t *testing.T) {
	p := DefaultPolicy()
	p.HistoryWeeks = 2
	p.SnapshotWeeks = 3
	lb := activeBoard("2025-W20")
	seed(lb, domain.LeagueBronze, "b", 2)

	for w := 21; w <= 25; w++ {
		r := rollover(lb, p, fmt.Sprintf("2025-W%02d", w), rolloverAt)
		require.True(t, r.Processed)
	}
	require.Len(t, lb.State.History, 2)
	assert.Equal(t, "2025-W23", lb.State.History[0].WeekID)
	assert.Equal(t, "2025-W24", lb.State.History[1].WeekID)

	assert.Len(t, lb.State.WeeklyData, 3)
	assert.Contains(t, lb.State.WeeklyData, "2025-W24")
	assert.NotContains(t, lb.State.WeeklyData, "2025-W21")
}
