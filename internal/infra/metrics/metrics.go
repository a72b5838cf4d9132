// Package metrics provides Prometheus collectors for the gamification engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gamify"

// ─── Progression ────────────────────────────────────────────────────────────

// XPAwarded counts XP granted, by ledger source.
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "xp_awarded_total",
	Help:      "Total XP awarded by source.",
}, []string{"source"})

// LevelUps counts level transitions.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "level_ups_total",
	Help:      "Total operations that raised a user's level.",
})

// BadgesUnlocked counts first-time badge unlocks.
var BadgesUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "badges_unlocked_total",
	Help:      "Total badge unlocks by badge ID.",
}, []string{"badge"})

// StreakEvents counts streak transitions: extended, restarted, frozen,
// broken, noop.
var StreakEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "streak_events_total",
	Help:      "Streak state transitions by outcome.",
}, []string{"outcome"})

// GoalsMet counts days on which a user met the daily goal.
var GoalsMet = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "goals_met_total",
	Help:      "Total daily goals met.",
})

// ─── Leaderboard ────────────────────────────────────────────────────────────

// Rollovers counts weekly rollover attempts by result: processed, noop, error.
var Rollovers = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "rollovers_total",
	Help:      "Weekly rollover attempts by result.",
}, []string{"result"})

// RolloverDuration tracks how long a processed rollover took.
var RolloverDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "rollover_duration_seconds",
	Help:      "Duration of processed weekly rollovers.",
	Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
})

// LeagueMoves counts promotions and demotions out of each league.
var LeagueMoves = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "league_moves_total",
	Help:      "League changes at rollover by source league and direction.",
}, []string{"league", "direction"})

// WeeklyXPContributed counts XP accepted into the weekly competition.
var WeeklyXPContributed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "weekly_xp_contributed_total",
	Help:      "XP added to weekly league totals by league.",
}, []string{"league"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequests counts API requests by route pattern and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "http_requests_total",
	Help:      "API requests by route and status.",
}, []string{"route", "status"})

// HTTPLatency tracks API latency by route pattern.
var HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "http_request_duration_seconds",
	Help:      "API request latency by route.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
}, []string{"route"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
