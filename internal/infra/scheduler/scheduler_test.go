package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpath/gamify/internal/app/league"
)

type fakeRoller struct {
	mu        sync.Mutex
	due       bool
	dueErr    error
	rollovers int
}

func (f *fakeRoller) Rollover(context.Context) (league.RolloverReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollovers++
	f.due = false
	return league.RolloverReport{Processed: true, WeekID: "2025-W28"}, nil
}

func (f *fakeRoller) RolloverDue(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.due, f.dueErr
}

func (f *fakeRoller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rollovers
}

// ─── Scheduler Tests ────────────────────────────────────────────────────────

func TestNew_InvalidCron(t *testing.T) {
	_, err := New(Config{Cron: "not a cron"}, &fakeRoller{}, nil)
	assert.Error(t, err)
}

func TestNew_DefaultsRegisterRollover(t *testing.T) {
	s, err := New(Config{}, &fakeRoller{}, nil)
	require.NoError(t, err)
	assert.Len(t, s.cron.Jobs(), 1)

	s, err = New(Config{CatchUpInterval: time.Hour}, &fakeRoller{}, nil)
	require.NoError(t, err)
	assert.Len(t, s.cron.Jobs(), 2)
}

func TestRunNow(t *testing.T) {
	r := &fakeRoller{}
	s, err := New(Config{}, r, nil)
	require.NoError(t, err)

	report, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Processed)
	assert.Equal(t, 1, r.count())
}

func TestStart_CatchesUpMissedRollover(t *testing.T) {
	r := &fakeRoller{due: true}
	s, err := New(Config{}, r, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()

	assert.GreaterOrEqual(t, r.count(), 1)
}

func TestStart_NothingDue(t *testing.T) {
	r := &fakeRoller{}
	s, err := New(Config{}, r, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()
	assert.Equal(t, 0, r.count())
}

func TestCatchUp_CheckErrorSkipsRollover(t *testing.T) {
	r := &fakeRoller{due: true, dueErr: errors.New("store down")}
	s, err := New(Config{}, r, nil)
	require.NoError(t, err)

	s.catchUp(context.Background())
	assert.Equal(t, 0, r.count())
}
