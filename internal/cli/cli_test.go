package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/learnpath/gamify/internal/daemon"
)

// run executes the root command with args against an isolated home.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		levelRows = 20
		rolloverCheck = false
		exportOut = "standings.xlsx"
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("GAMIFY_HOME", home)
	t.Setenv("GAMIFY_STORAGE_DRIVER", "")
	return home
}

func TestLevelTable(t *testing.T) {
	out, err := run(t, "level", "--levels", "3")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"LEVEL", "REACHED", "AT", "COST"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1", "0", "100"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"2", "100", "282"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"3", "382", "519"}, strings.Fields(lines[3]))
}

func TestLevelForXP(t *testing.T) {
	out, err := run(t, "level", "150")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"2", "50", "232", "17.73%"}, strings.Fields(lines[1]))
}

func TestLevelRejectsBadInput(t *testing.T) {
	_, err := run(t, "level", "-5")
	assert.Error(t, err)

	_, err = run(t, "level", "lots")
	assert.ErrorContains(t, err, "non-negative integer")
}

func TestRolloverCommand(t *testing.T) {
	isolateHome(t)

	out, err := run(t, "rollover")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized week")

	out, err = run(t, "rollover")
	require.NoError(t, err)
	assert.Contains(t, out, "Already processed")

	out, err = run(t, "rollover", "--check")
	require.NoError(t, err)
	assert.Equal(t, "Rollover due: false\n", out)
}

func TestMigrateCommand(t *testing.T) {
	isolateHome(t)
	ctx := context.Background()

	d, err := daemon.New(ctx, "test")
	require.NoError(t, err)
	_, err = d.Engagement.DailyLogin(ctx, "u1")
	require.NoError(t, err)
	d.Close()

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "Migrated 1 profiles\n", out)
}

func TestExportCommand(t *testing.T) {
	isolateHome(t)
	ctx := context.Background()

	d, err := daemon.New(ctx, "test")
	require.NoError(t, err)
	_, err = d.League.AddWeeklyXP(ctx, "u1", 25)
	require.NoError(t, err)
	d.Close()

	path := filepath.Join(t.TempDir(), "out.xlsx")
	out, err := run(t, "export", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 1 standings")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Bronze")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "25", rows[1][2])
}
