package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestProgressionMetrics(t *testing.T) {
	XPAwarded.WithLabelValues("lesson").Add(10)
	LevelUps.Inc()
	BadgesUnlocked.WithLabelValues("first-steps").Inc()
	StreakEvents.WithLabelValues("extended").Inc()
	GoalsMet.Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"gamify_xp_awarded_total",
		"gamify_level_ups_total",
		"gamify_badges_unlocked_total",
		"gamify_streak_events_total",
		"gamify_goals_met_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestLeaderboardMetrics(t *testing.T) {
	before := testutil.ToFloat64(Rollovers.WithLabelValues("processed"))
	Rollovers.WithLabelValues("processed").Inc()
	if got := testutil.ToFloat64(Rollovers.WithLabelValues("processed")); got != before+1 {
		t.Errorf("rollovers = %v, want %v", got, before+1)
	}

	RolloverDuration.Observe(0.02)
	LeagueMoves.WithLabelValues("bronze", "promoted").Inc()
	WeeklyXPContributed.WithLabelValues("bronze").Add(25)

	names := gatheredNames(t)
	for _, name := range []string{
		"gamify_rollovers_total",
		"gamify_rollover_duration_seconds",
		"gamify_league_moves_total",
		"gamify_weekly_xp_contributed_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestHealthMetrics(t *testing.T) {
	HealthCheckStatus.WithLabelValues("store").Set(1)
	HealthRecoveries.WithLabelValues("rollover").Inc()
	HTTPRequests.WithLabelValues("/health", "200").Inc()
	HTTPLatency.WithLabelValues("/health").Observe(0.003)

	if got := testutil.ToFloat64(HealthCheckStatus.WithLabelValues("store")); got != 1 {
		t.Errorf("health status = %v, want 1", got)
	}
	names := gatheredNames(t)
	for _, name := range []string{
		"gamify_health_check_status",
		"gamify_health_recoveries_total",
		"gamify_http_requests_total",
		"gamify_http_request_duration_seconds",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}
