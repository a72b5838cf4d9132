// Package daemon manages the gamify server lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/learnpath/gamify/internal/app/engagement"
	"github.com/learnpath/gamify/internal/app/league"
	"github.com/learnpath/gamify/internal/calendar"
	"github.com/learnpath/gamify/internal/domain"
	"github.com/learnpath/gamify/internal/infra/scheduler"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all server configuration.
type Config struct {
	API         APIConfig         `toml:"api"`
	Storage     StorageConfig     `toml:"storage"`
	Calendar    CalendarConfig    `toml:"calendar"`
	Streak      StreakConfig      `toml:"streak"`
	Goals       GoalsConfig       `toml:"goals"`
	XP          XPConfig          `toml:"xp"`
	Leaderboard LeaderboardConfig `toml:"leaderboard"`
	Logging     LoggingConfig     `toml:"logging"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Metrics        bool   `toml:"metrics"`
	RequestTimeout string `toml:"request_timeout"`
}

// StorageConfig selects the profile and leaderboard store.
type StorageConfig struct {
	Driver      string `toml:"driver"`
	Dir         string `toml:"dir"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// CalendarConfig sets the reference time zone for day and week boundaries.
type CalendarConfig struct {
	Timezone string `toml:"timezone"`
}

// StreakConfig tunes the streak tracker.
type StreakConfig struct {
	MaxFreezes  int                     `toml:"max_freezes"`
	WarningHour int                     `toml:"warning_hour"`
	Milestones  []StreakMilestoneConfig `toml:"milestones"`
}

// StreakMilestoneConfig is one [[streak.milestones]] table.
type StreakMilestoneConfig struct {
	Days    int    `toml:"days"`
	XPBonus int64  `toml:"xp_bonus"`
	Freezes int    `toml:"freezes"`
	BadgeID string `toml:"badge_id"`
}

// GoalsConfig tunes the daily goal tracker.
type GoalsConfig struct {
	Default         int                   `toml:"default"`
	Min             int                   `toml:"min"`
	Max             int                   `toml:"max"`
	CompletionBonus int64                 `toml:"completion_bonus"`
	HistoryDays     int                   `toml:"history_days"`
	Milestones      []GoalMilestoneConfig `toml:"milestones"`
}

// GoalMilestoneConfig is one [[goals.milestones]] table.
type GoalMilestoneConfig struct {
	Days    int   `toml:"days"`
	XPBonus int64 `toml:"xp_bonus"`
}

// XPConfig tunes XP awards and the ledger.
type XPConfig struct {
	LessonXP     int64 `toml:"lesson_xp"`
	DailyLoginXP int64 `toml:"daily_login_xp"`
	HistoryLimit int   `toml:"history_limit"`
	MaxAward     int64 `toml:"max_award"`
}

// LeaderboardConfig tunes the weekly competition.
type LeaderboardConfig struct {
	RolloverCron    string                     `toml:"rollover_cron"`
	CatchUpInterval string                     `toml:"catch_up_interval"`
	HistoryWeeks    int                        `toml:"history_weeks"`
	SnapshotWeeks   int                        `toml:"snapshot_weeks"`
	Leagues         map[string]ThresholdConfig `toml:"leagues"`
}

// ThresholdConfig is a league's promotion and demotion band in percent.
type ThresholdConfig struct {
	PromotePercent int `toml:"promote_percent"`
	DemotePercent  int `toml:"demote_percent"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	opts := engagement.DefaultOptions()
	policy := league.DefaultPolicy()

	cfg := Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			Metrics:        true,
			RequestTimeout: "30s",
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Dir:    gamifyHome(),
		},
		Calendar: CalendarConfig{Timezone: "UTC"},
		Streak: StreakConfig{
			MaxFreezes:  opts.Streak.MaxFreezes,
			WarningHour: opts.Streak.WarningHour,
		},
		Goals: GoalsConfig{
			Default:         opts.Goals.Default,
			Min:             opts.Goals.Min,
			Max:             opts.Goals.Max,
			CompletionBonus: opts.Goals.CompletionBonus,
			HistoryDays:     opts.Goals.HistoryDays,
		},
		XP: XPConfig{
			LessonXP:     opts.XP.LessonXP,
			DailyLoginXP: opts.XP.DailyLoginXP,
			HistoryLimit: opts.XP.HistoryLimit,
			MaxAward:     opts.XP.MaxAward,
		},
		Leaderboard: LeaderboardConfig{
			RolloverCron:    scheduler.DefaultCron,
			CatchUpInterval: "10m",
			HistoryWeeks:    policy.HistoryWeeks,
			SnapshotWeeks:   policy.SnapshotWeeks,
			Leagues:         map[string]ThresholdConfig{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
	for _, m := range opts.Streak.Milestones {
		cfg.Streak.Milestones = append(cfg.Streak.Milestones, StreakMilestoneConfig(m))
	}
	for _, m := range opts.Goals.Milestones {
		cfg.Goals.Milestones = append(cfg.Goals.Milestones, GoalMilestoneConfig(m))
	}
	for l, t := range policy.Thresholds {
		cfg.Leaderboard.Leagues[string(l)] = ThresholdConfig(t)
	}
	return cfg
}

// LoadConfig reads $GAMIFY_HOME/config.toml over the defaults, then applies
// .env files and GAMIFY_* environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(gamifyHome(), "config.toml"))
}

// LoadConfigFile is LoadConfig for an explicit path. A missing file means
// defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := loadDotEnv(".env", filepath.Join(gamifyHome(), ".env")); err != nil {
		return cfg, err
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// loadDotEnv loads every existing file. Variables already set win.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GAMIFY_HOST"); v != "" {
		c.API.Host = v
	}
	if v := os.Getenv("GAMIFY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GAMIFY_PORT: %w", err)
		}
		c.API.Port = port
	}
	if v := os.Getenv("GAMIFY_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("GAMIFY_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("GAMIFY_TIMEZONE"); v != "" {
		c.Calendar.Timezone = v
	}
	if v := os.Getenv("GAMIFY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// SaveConfig writes the config to $GAMIFY_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(gamifyHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ─── Validation ─────────────────────────────────────────────────────────────

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.API.Port > 0 && c.API.Port <= 65535, "api.port %d out of range", c.API.Port)
	if c.API.RequestTimeout != "" {
		_, err := time.ParseDuration(c.API.RequestTimeout)
		check(err == nil, "api.request_timeout %q is not a duration", c.API.RequestTimeout)
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		check(c.Storage.Dir != "", "storage.dir is required for sqlite")
	case DriverPostgres:
		check(c.Storage.PostgresDSN != "", "storage.postgres_dsn is required for postgres")
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q unknown", c.Storage.Driver))
	}

	if _, err := calendar.Load(c.Calendar.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("calendar.timezone: %w", err))
	}

	check(c.Streak.MaxFreezes >= 0, "streak.max_freezes must not be negative")
	check(c.Streak.WarningHour >= 0 && c.Streak.WarningHour <= 23, "streak.warning_hour %d out of range", c.Streak.WarningHour)
	for _, m := range c.Streak.Milestones {
		check(m.Days > 0, "streak milestone days must be positive")
	}

	g := c.Goals
	check(g.Min >= 1, "goals.min must be at least 1")
	check(g.Min <= g.Max, "goals.min %d exceeds goals.max %d", g.Min, g.Max)
	check(g.Default >= g.Min && g.Default <= g.Max, "goals.default %d outside [%d, %d]", g.Default, g.Min, g.Max)
	check(g.CompletionBonus >= 0, "goals.completion_bonus must not be negative")
	check(g.HistoryDays > 0, "goals.history_days must be positive")

	check(c.XP.LessonXP >= 0, "xp.lesson_xp must not be negative")
	check(c.XP.DailyLoginXP >= 0, "xp.daily_login_xp must not be negative")
	check(c.XP.HistoryLimit > 0, "xp.history_limit must be positive")
	check(c.XP.MaxAward > 0, "xp.max_award must be positive")

	lb := c.Leaderboard
	if lb.CatchUpInterval != "" {
		_, err := time.ParseDuration(lb.CatchUpInterval)
		check(err == nil, "leaderboard.catch_up_interval %q is not a duration", lb.CatchUpInterval)
	}
	check(lb.HistoryWeeks > 0, "leaderboard.history_weeks must be positive")
	check(lb.SnapshotWeeks > 0, "leaderboard.snapshot_weeks must be positive")
	for name, t := range lb.Leagues {
		if _, err := domain.ParseLeague(name); err != nil {
			errs = append(errs, fmt.Errorf("leaderboard.leagues: %w", err))
			continue
		}
		check(inPercent(t.PromotePercent) && inPercent(t.DemotePercent),
			"leaderboard.leagues.%s percentages must be within [0, 100]", name)
		check(t.PromotePercent+t.DemotePercent <= 100,
			"leaderboard.leagues.%s bands overlap", name)
	}

	_, err := parseLevel(c.Logging.Level)
	check(err == nil, "logging.level %q unknown", c.Logging.Level)
	check(c.Logging.Format == "text" || c.Logging.Format == "json", "logging.format %q unknown", c.Logging.Format)

	return errors.Join(errs...)
}

func inPercent(v int) bool { return v >= 0 && v <= 100 }

// ─── Derived Settings ───────────────────────────────────────────────────────

// EngineOptions converts the rule sections into engine options.
func (c Config) EngineOptions() engagement.Options {
	opts := engagement.DefaultOptions()
	opts.XP = engagement.XPPolicy{
		LessonXP:     c.XP.LessonXP,
		DailyLoginXP: c.XP.DailyLoginXP,
		HistoryLimit: c.XP.HistoryLimit,
		MaxAward:     c.XP.MaxAward,
	}
	opts.Streak.MaxFreezes = c.Streak.MaxFreezes
	opts.Streak.WarningHour = c.Streak.WarningHour
	opts.Streak.Milestones = nil
	for _, m := range c.Streak.Milestones {
		opts.Streak.Milestones = append(opts.Streak.Milestones, engagement.StreakMilestone(m))
	}
	opts.Goals = engagement.GoalPolicy{
		Default:         c.Goals.Default,
		Min:             c.Goals.Min,
		Max:             c.Goals.Max,
		CompletionBonus: c.Goals.CompletionBonus,
		HistoryDays:     c.Goals.HistoryDays,
	}
	for _, m := range c.Goals.Milestones {
		opts.Goals.Milestones = append(opts.Goals.Milestones, engagement.GoalMilestone(m))
	}
	return opts
}

// LeaguePolicy converts the leaderboard section into a league policy.
// Leagues missing from the config keep their stock bands.
func (c Config) LeaguePolicy() league.Policy {
	p := league.DefaultPolicy()
	p.HistoryWeeks = c.Leaderboard.HistoryWeeks
	p.SnapshotWeeks = c.Leaderboard.SnapshotWeeks
	for name, t := range c.Leaderboard.Leagues {
		l, err := domain.ParseLeague(name)
		if err != nil {
			continue
		}
		p.Thresholds[l] = league.Threshold(t)
	}
	return p
}

// SchedulerConfig converts the leaderboard section into a schedule.
func (c Config) SchedulerConfig(loc *time.Location) scheduler.Config {
	return scheduler.Config{
		Cron:            c.Leaderboard.RolloverCron,
		CatchUpInterval: parseDuration(c.Leaderboard.CatchUpInterval, 0),
		Location:        loc,
	}
}

// ─── Logging ────────────────────────────────────────────────────────────────

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.TrimSpace(s)))
	return level, err
}

// ─── Paths ──────────────────────────────────────────────────────────────────

// gamifyHome returns the gamify data directory.
func gamifyHome() string {
	if env := os.Getenv("GAMIFY_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gamify")
}

// Home is exported for use by the CLI.
func Home() string {
	return gamifyHome()
}
