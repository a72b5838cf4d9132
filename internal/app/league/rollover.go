package league

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/learnpath/gamify/internal/domain"
)

// AlreadyProcessedMessage is reported when the current week was rolled.
const AlreadyProcessedMessage = "Already processed this week"

// RolloverReport describes one rollover attempt.
type RolloverReport struct {
	Processed      bool                   `json:"processed"`
	Initialized    bool                   `json:"initialized,omitempty"`
	Message        string                 `json:"message,omitempty"`
	PreviousWeekID string                 `json:"previousWeekId,omitempty"`
	WeekID         string                 `json:"weekId"`
	Participants   int                    `json:"participants"`
	Promotions     int                    `json:"promotions"`
	Demotions      int                    `json:"demotions"`
	Record         *domain.RolloverRecord `json:"record,omitempty"`
}

// rollover closes the stored week and opens weekID. Every league is ranked
// from the same pre-rollover snapshot, so a user promoted out of one
// league is never re-ranked in the next. Callers must hold the leaderboard
// transaction.
func rollover(lb *domain.Leaderboard, p Policy, weekID string, now time.Time) RolloverReport {
	prev := lb.State.CurrentWeekID
	if prev == weekID {
		return RolloverReport{Message: AlreadyProcessedMessage, WeekID: weekID}
	}
	if prev == "" {
		lb.State.CurrentWeekID = weekID
		lb.State.LastRolloverAt = now.UTC()
		return RolloverReport{Processed: true, Initialized: true, WeekID: weekID}
	}

	ranked := make(map[domain.League][]*domain.LeagueEntry, len(domain.Leagues))
	for _, l := range domain.Leagues {
		ranked[l] = members(lb, l)
	}

	rec := domain.RolloverRecord{
		ID:          uuid.NewString(),
		WeekID:      prev,
		NextWeekID:  weekID,
		ProcessedAt: now.UTC(),
		Outcomes:    []domain.RolloverOutcome{},
	}
	snapshot := make(map[string]int64)

	for _, l := range domain.Leagues {
		ms := ranked[l]
		n := len(ms)
		t := p.threshold(l)
		for i, e := range ms {
			rank := i + 1
			out := domain.RolloverOutcome{
				UserID:    e.UserID,
				League:    l,
				FinalRank: rank,
				WeeklyXP:  e.WeeklyXP,
				NewLeague: l,
			}
			if up, ok := l.Up(); ok && t.promotes(rank, n) {
				out.Promoted, out.NewLeague = true, up
			} else if down, ok := l.Down(); ok && t.demotes(rank, n) {
				out.Demoted, out.NewLeague = true, down
			}

			switch {
			case out.Promoted:
				e.PromotionStreak++
				rec.Promotions++
			case out.Demoted:
				e.PromotionStreak = 0
				rec.Demotions++
			}
			e.League = out.NewLeague
			e.LastWeekResult = &domain.WeekResult{
				WeekID:       prev,
				League:       l,
				FinalRank:    rank,
				Participants: n,
				WeeklyXP:     e.WeeklyXP,
				Promoted:     out.Promoted,
				Demoted:      out.Demoted,
				NewLeague:    out.NewLeague,
			}
			e.UpdatedAt = now.UTC()
			snapshot[e.UserID] = e.WeeklyXP
			rec.Outcomes = append(rec.Outcomes, out)
		}
		rec.Participants += n
	}

	for _, e := range lb.Entries {
		e.WeeklyXP = 0
		e.CurrentRank = 0
		e.PreviousRank = 0
	}

	lb.State.WeeklyData[prev] = snapshot
	trimSnapshots(lb.State.WeeklyData, p.SnapshotWeeks)

	lb.State.History = append(lb.State.History, rec)
	if keep := p.HistoryWeeks; keep > 0 && len(lb.State.History) > keep {
		lb.State.History = append([]domain.RolloverRecord(nil), lb.State.History[len(lb.State.History)-keep:]...)
	}
	lb.State.CurrentWeekID = weekID
	lb.State.LastRolloverAt = now.UTC()

	return RolloverReport{
		Processed:      true,
		PreviousWeekID: prev,
		WeekID:         weekID,
		Participants:   rec.Participants,
		Promotions:     rec.Promotions,
		Demotions:      rec.Demotions,
		Record:         &rec,
	}
}

// trimSnapshots keeps the newest keep weeks. Week IDs sort chronologically.
func trimSnapshots(data map[string]map[string]int64, keep int) {
	if keep <= 0 || len(data) <= keep {
		return
	}
	weeks := make([]string, 0, len(data))
	for w := range data {
		weeks = append(weeks, w)
	}
	sort.Strings(weeks)
	for _, w := range weeks[:len(weeks)-keep] {
		delete(data, w)
	}
}
