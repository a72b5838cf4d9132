package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/learnpath/gamify/internal/app/engagement"
	"github.com/learnpath/gamify/internal/app/league"
	"github.com/learnpath/gamify/internal/calendar"
	"github.com/learnpath/gamify/internal/health"
	"github.com/learnpath/gamify/internal/infra/sqlite"
)

// ═══════════════════════════════════════════════════════════════════════════
// Test Helpers
// ═══════════════════════════════════════════════════════════════════════════

var testNow = time.Date(2025, 7, 2, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	handler http.Handler
	store   *sqlite.DB
	eng     *engagement.Service
	league  *league.Service
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	store, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cal := calendar.New(time.UTC).WithClock(func() time.Time { return testNow })
	lg := league.NewService(store, cal, league.DefaultPolicy(), nil)
	eng := engagement.NewService(store, engagement.NewEngine(cal, engagement.DefaultOptions()), lg, nil)
	srv := NewServer(eng, lg, nil, opts...)
	return &testEnv{handler: srv.Handler(), store: store, eng: eng, league: lg}
}

type response struct {
	Code    int
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) response {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	res := response{Code: w.Code}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), "body: %s", w.Body.String())
	return res
}

func decodeData(t *testing.T, r response) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(r.Data, &m))
	return m
}

// ═══════════════════════════════════════════════════════════════════════════
// General
// ═══════════════════════════════════════════════════════════════════════════

func TestHealthWithoutChecker(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, r.Code)
	assert.True(t, r.Success)
	assert.Equal(t, "ok", decodeData(t, r)["status"])
}

func TestHealthReportsFailingChecks(t *testing.T) {
	env := newTestEnv(t)
	checker := health.NewChecker(env.store, env.league, nil)
	env.handler = NewServer(env.eng, env.league, nil, WithHealth(checker), WithVersion("1.2.3")).Handler()

	checker.RunOnce(context.Background())
	r := env.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "1.2.3", decodeData(t, r)["version"])

	env.store.Close()
	checker.RunOnce(context.Background())
	r = env.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, r.Code)
	assert.False(t, r.Success)
	assert.Equal(t, "degraded", decodeData(t, r)["status"])
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "GET", "/nope", nil)
	assert.Equal(t, http.StatusNotFound, r.Code)
	assert.False(t, r.Success)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest("OPTIONS", "/gamification/xp", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), UserHeader)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, WithMetrics())
	env.do(t, "GET", "/gamification/xp?userId=u1", nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gamify_http_requests_total")
}

// ═══════════════════════════════════════════════════════════════════════════
// XP & Levels
// ═══════════════════════════════════════════════════════════════════════════

func TestValidatorRegistersNotBlank(t *testing.T) {
	v, trans, err := newValidator()
	require.NoError(t, err)

	err = v.Struct(activityRequest{UserID: "u1", ActivityType: "  "})
	require.Error(t, err)
	var fields validator.ValidationErrors
	require.ErrorAs(t, err, &fields)
	assert.Equal(t, notBlankTag, fields[0].Tag())
	assert.Equal(t, "activityType cannot be blank", fields[0].Translate(trans))

	assert.NoError(t, v.Struct(activityRequest{ActivityType: "quiz"}))
}

func TestXPStatusRequiresUser(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "GET", "/gamification/xp", nil)
	assert.Equal(t, http.StatusBadRequest, r.Code)
	assert.False(t, r.Success)
	assert.Equal(t, "userId is required", r.Message)
}

func TestXPStatusUserFromHeader(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "GET", "/gamification/xp", nil, UserHeader, "u1")
	require.Equal(t, http.StatusOK, r.Code)
	data := decodeData(t, r)
	assert.Equal(t, "u1", data["userId"])
	assert.EqualValues(t, 0, data["totalXP"])
}

func TestAwardXP(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "POST", "/gamification/xp", map[string]any{
		"userId": "u1", "amount": 100, "source": "quiz",
	})
	require.Equal(t, http.StatusOK, r.Code, r.Message)
	assert.EqualValues(t, 100, decodeData(t, r)["xpEarned"])

	r = env.do(t, "GET", "/gamification/xp?userId=u1", nil)
	data := decodeData(t, r)
	assert.EqualValues(t, 100, data["totalXP"])
	assert.EqualValues(t, 2, data["level"])
	assert.EqualValues(t, 0, data["currentXP"])
	assert.EqualValues(t, 282, data["xpToNextLevel"])
	assert.EqualValues(t, 0, data["progressPercent"])
	assert.NotContains(t, data, "levelInfo")

	// The award reaches the weekly league.
	r = env.do(t, "GET", "/leaderboard/user/status?userId=u1", nil)
	assert.EqualValues(t, 100, decodeData(t, r)["weeklyXP"])
}

func TestAwardXPValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body any
		msg  string
	}{
		{"missing amount", map[string]any{"userId": "u1", "source": "quiz"}, "amount is a required field"},
		{"blank source", map[string]any{"userId": "u1", "amount": 10, "source": "  "}, "source cannot be blank"},
		{"negative amount", map[string]any{"userId": "u1", "amount": -5, "source": "quiz"}, "amount must be a positive integer"},
		{"wrong type", `{"userId":"u1","amount":"ten","source":"quiz"}`, "amount: expected int64"},
		{"malformed", `{"userId":`, "malformed JSON body"},
		{"missing user", map[string]any{"amount": 10, "source": "quiz"}, "userId is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := env.do(t, "POST", "/gamification/xp", tt.body)
			assert.Equal(t, http.StatusBadRequest, r.Code)
			assert.False(t, r.Success)
			assert.Equal(t, tt.msg, r.Message)
		})
	}

	// Nothing was persisted.
	p, err := env.store.LoadProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestXPHistory(t *testing.T) {
	env := newTestEnv(t)
	for _, src := range []string{"quiz", "quiz", "bonus"} {
		r := env.do(t, "POST", "/gamification/xp", map[string]any{"userId": "u1", "amount": 10, "source": src})
		require.Equal(t, http.StatusOK, r.Code)
	}

	r := env.do(t, "GET", "/gamification/xp/history?userId=u1&source=quiz&limit=1", nil)
	require.Equal(t, http.StatusOK, r.Code)
	data := decodeData(t, r)
	assert.EqualValues(t, 2, data["total"])
	assert.EqualValues(t, 20, data["totalXP"])
	assert.Len(t, data["history"], 1)
	assert.Equal(t, true, data["hasMore"])

	r = env.do(t, "GET", "/gamification/xp/history?userId=u1&limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, r.Code)
	assert.Equal(t, "limit: must be an integer", r.Message)

	r = env.do(t, "GET", "/gamification/xp/history?userId=u1&from=July", nil)
	assert.Equal(t, http.StatusBadRequest, r.Code)
	assert.Equal(t, "from: expected YYYY-MM-DD", r.Message)
}

func TestLevelCheck(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "POST", "/gamification/level-check", map[string]any{"userId": "u1", "xpToAdd": 0})
	require.Equal(t, http.StatusOK, r.Code, r.Message)
	assert.Equal(t, false, decodeData(t, r)["wouldLevelUp"])

	r = env.do(t, "POST", "/gamification/level-check", map[string]any{"userId": "u1", "xpToAdd": 150})
	require.Equal(t, http.StatusOK, r.Code)
	data := decodeData(t, r)
	assert.Equal(t, true, data["wouldLevelUp"])
	assert.EqualValues(t, 1, data["levelsGained"])

	r = env.do(t, "POST", "/gamification/level-check", map[string]any{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, r.Code)
	assert.Equal(t, "xpToAdd is a required field", r.Message)
}

func TestDailyLogin(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "POST", "/gamification/daily-login", map[string]any{"userId": "u1"})
	require.Equal(t, http.StatusOK, r.Code, r.Message)
	data := decodeData(t, r)
	assert.Equal(t, false, data["alreadyLoggedIn"])
	assert.EqualValues(t, 1, data["currentStreak"])

	r = env.do(t, "POST", "/gamification/daily-login?userId=u1", nil)
	require.Equal(t, http.StatusOK, r.Code)
	data = decodeData(t, r)
	assert.Equal(t, true, data["alreadyLoggedIn"])
	assert.EqualValues(t, 0, data["xpEarned"])
}

// ═══════════════════════════════════════════════════════════════════════════
// Streaks & Goals
// ═══════════════════════════════════════════════════════════════════════════

func TestStreakActivity(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "POST", "/streaks/activity", map[string]any{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, r.Code)
	assert.Equal(t, "activityType cannot be blank", r.Message)

	r = env.do(t, "POST", "/streaks/activity", map[string]any{"userId": "u1", "activityType": "lesson"})
	require.Equal(t, http.StatusOK, r.Code, r.Message)
	data := decodeData(t, r)
	assert.EqualValues(t, 1, data["currentStreak"])
	assert.EqualValues(t, 1, data["newStreak"])

	r = env.do(t, "GET", "/streaks?userId=u1", nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.EqualValues(t, 1, decodeData(t, r)["currentStreak"])

	r = env.do(t, "GET", "/streaks/milestones?userId=u1", nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.NotEmpty(t, decodeData(t, r)["milestones"])
}

func TestStreakFreezeRejected(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/streaks/activity", map[string]any{"userId": "u1", "activityType": "lesson"})

	r := env.do(t, "POST", "/streaks/freeze", map[string]any{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, r.Code)
	assert.Equal(t, "activity already recorded today, no freeze needed", r.Message)
}

func TestStreakCheckAbsentUser(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "POST", "/streaks/check", map[string]any{"userId": "ghost"})
	require.Equal(t, http.StatusOK, r.Code, r.Message)

	p, err := env.store.LoadProfile(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestDailyGoalFlow(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "PUT", "/goals/daily", map[string]any{"userId": "u1", "dailyGoal": 99})
	assert.Equal(t, http.StatusBadRequest, r.Code)

	r = env.do(t, "PUT", "/goals/daily", map[string]any{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, r.Code)
	assert.Equal(t, "dailyGoal or timeCommitment is required", r.Message)

	r = env.do(t, "PUT", "/goals/daily", map[string]any{"userId": "u1", "dailyGoal": 2, "timeCommitment": "short"})
	require.Equal(t, http.StatusOK, r.Code, r.Message)
	assert.EqualValues(t, 2, decodeData(t, r)["dailyGoal"])

	r = env.do(t, "POST", "/goals/complete", map[string]any{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, r.Code)
	assert.Equal(t, "lessonId cannot be blank", r.Message)

	for _, id := range []string{"l1", "l2"} {
		r = env.do(t, "POST", "/goals/complete", map[string]any{"userId": "u1", "lessonId": id})
		require.Equal(t, http.StatusOK, r.Code, r.Message)
	}
	data := decodeData(t, r)
	assert.EqualValues(t, 2, data["completedToday"])
	assert.Equal(t, true, data["goalMet"])
	assert.EqualValues(t, 1, data["goalStreak"])
	assert.EqualValues(t, 25, data["bonusXP"])

	r = env.do(t, "GET", "/goals/daily?userId=u1", nil)
	data = decodeData(t, r)
	assert.EqualValues(t, 2, data["completedToday"])
	assert.Equal(t, true, data["goalMet"])

	r = env.do(t, "GET", "/goals/history?userId=u1&days=7", nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.Len(t, decodeData(t, r)["days"], 1)

	r = env.do(t, "GET", "/goals/streak?userId=u1", nil)
	require.Equal(t, http.StatusOK, r.Code)
}

// ═══════════════════════════════════════════════════════════════════════════
// Badges
// ═══════════════════════════════════════════════════════════════════════════

func TestBadgeCatalogueAnonymous(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "GET", "/badges", nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.EqualValues(t, 15, decodeData(t, r)["total"])
}

func TestBadgeUnlock(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "POST", "/badges/unlock", map[string]any{"userId": "u1", "badgeId": "Not A Badge"})
	assert.Equal(t, http.StatusBadRequest, r.Code)

	r = env.do(t, "POST", "/badges/unlock", map[string]any{"userId": "u1", "badgeId": "no-such-badge"})
	assert.Equal(t, http.StatusNotFound, r.Code)

	r = env.do(t, "POST", "/badges/unlock", map[string]any{"userId": "u1", "badgeId": "quiz-perfectionist"})
	require.Equal(t, http.StatusOK, r.Code, r.Message)
	assert.Equal(t, false, decodeData(t, r)["alreadyUnlocked"])

	r = env.do(t, "POST", "/badges/unlock", map[string]any{"userId": "u1", "badgeId": "quiz-perfectionist"})
	require.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, true, decodeData(t, r)["alreadyUnlocked"])

	r = env.do(t, "GET", "/badges/user?userId=u1", nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.EqualValues(t, 1, decodeData(t, r)["count"])

	r = env.do(t, "GET", "/badges/stats?userId=u1", nil)
	require.Equal(t, http.StatusOK, r.Code)
}

func TestBadgeProgress(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "GET", "/badges/week-warrior/progress?userId=u1", nil)
	require.Equal(t, http.StatusOK, r.Code, r.Message)

	r = env.do(t, "GET", "/badges/no-such-badge/progress?userId=u1", nil)
	assert.Equal(t, http.StatusNotFound, r.Code)
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaderboard
// ═══════════════════════════════════════════════════════════════════════════

func TestLeaderboardViews(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "POST", "/leaderboard/xp", map[string]any{"userId": "u1", "amount": 40})
	require.Equal(t, http.StatusOK, r.Code, r.Message)
	assert.EqualValues(t, 40, decodeData(t, r)["weeklyXP"])

	r = env.do(t, "GET", "/leaderboard?userId=u1", nil)
	require.Equal(t, http.StatusOK, r.Code)
	data := decodeData(t, r)
	assert.Equal(t, "bronze", data["league"])
	assert.EqualValues(t, 1, data["userRank"])

	r = env.do(t, "GET", "/leaderboard/silver", nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "silver", decodeData(t, r)["league"])

	r = env.do(t, "GET", "/leaderboard/platinum", nil)
	assert.Equal(t, http.StatusNotFound, r.Code)

	r = env.do(t, "GET", "/leaderboard/user/history?userId=u1", nil)
	require.Equal(t, http.StatusOK, r.Code)

	r = env.do(t, "POST", "/leaderboard/xp", map[string]any{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, r.Code)
	assert.Equal(t, "amount is a required field", r.Message)
}

func TestLeaderboardOptOut(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []any{
		map[string]any{"userId": "u1"},
		`{"userId":"u1","optIn":"yes"}`,
	} {
		r := env.do(t, "POST", "/leaderboard/opt-out", body)
		assert.Equal(t, http.StatusBadRequest, r.Code)
		assert.Equal(t, "optIn must be a boolean", r.Message)
	}

	r := env.do(t, "POST", "/leaderboard/opt-out", map[string]any{"userId": "u1", "optIn": false})
	require.Equal(t, http.StatusOK, r.Code, r.Message)
	assert.Equal(t, false, decodeData(t, r)["isOptedIn"])
}

func TestAdminRollover(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "POST", "/leaderboard/admin/reset", nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.True(t, r.Success)
	assert.Equal(t, true, decodeData(t, r)["initialized"])

	r = env.do(t, "POST", "/leaderboard/admin/reset", nil)
	assert.Equal(t, http.StatusOK, r.Code)
	assert.False(t, r.Success)
	assert.Equal(t, league.AlreadyProcessedMessage, r.Message)

	r = env.do(t, "GET", "/leaderboard/admin/summary", nil)
	require.Equal(t, http.StatusOK, r.Code)
}

func TestAdminExport(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/leaderboard/xp", map[string]any{"userId": "u1", "amount": 30})

	req := httptest.NewRequest("GET", "/leaderboard/admin/export", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment;"))

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Bronze", "Silver", "Gold", "Diamond"}, f.GetSheetList())
	rows, err := f.GetRows("Bronze")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "u1", rows[1][1])
}
