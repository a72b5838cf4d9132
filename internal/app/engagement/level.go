package engagement

import "math"

// MaxLevel caps progression. XP earned past the cap still accrues.
const MaxLevel = 100

// XPForLevel returns the XP needed to advance from level to level+1:
// floor(100 * level^1.5).
func XPForLevel(level int) int64 {
	if level < 1 {
		return 0
	}
	return int64(math.Floor(100 * math.Pow(float64(level), 1.5)))
}

// LevelInfo describes where a lifetime XP total sits on the curve.
type LevelInfo struct {
	Level           int     `json:"level"`
	CurrentXP       int64   `json:"currentXP"`
	XPToNextLevel   int64   `json:"xpToNextLevel"`
	ProgressPercent float64 `json:"progressPercent"`
	TotalXP         int64   `json:"totalXP"`
}

// CalculateLevel walks the curve from level 1, spending XP per level until
// the next cost can't be paid or the cap is reached.
func CalculateLevel(totalXP int64) LevelInfo {
	if totalXP < 0 {
		totalXP = 0
	}
	level, remaining := 1, totalXP
	for level < MaxLevel {
		cost := XPForLevel(level)
		if remaining < cost {
			break
		}
		remaining -= cost
		level++
	}

	info := LevelInfo{Level: level, CurrentXP: remaining, TotalXP: totalXP}
	if level >= MaxLevel {
		info.ProgressPercent = 100
		return info
	}
	cost := XPForLevel(level)
	info.XPToNextLevel = cost - remaining
	info.ProgressPercent = math.Round(float64(remaining)/float64(cost)*10000) / 100
	return info
}

// LevelFor is CalculateLevel(totalXP).Level.
func LevelFor(totalXP int64) int { return CalculateLevel(totalXP).Level }

// StreakBonusPercent is the XP bonus earned by a streak: 10% per day,
// capped at 100%.
func StreakBonusPercent(streakDays int) int {
	if streakDays <= 0 {
		return 0
	}
	if streakDays >= 10 {
		return 100
	}
	return streakDays * 10
}

// ApplyStreakBonus returns floor(base * (1 + min(streak*0.1, 1))). Integer
// arithmetic keeps the floor exact.
func ApplyStreakBonus(base int64, streakDays int) int64 {
	if base <= 0 {
		return base
	}
	return base * int64(100+StreakBonusPercent(streakDays)) / 100
}

// LevelTable returns the per-level cost and cumulative threshold for the
// first n levels.
func LevelTable(n int) []LevelStep {
	if n > MaxLevel {
		n = MaxLevel
	}
	steps := make([]LevelStep, 0, n)
	var cumulative int64
	for l := 1; l <= n; l++ {
		steps = append(steps, LevelStep{Level: l, ReachedAt: cumulative, Cost: XPForLevel(l)})
		cumulative += XPForLevel(l)
	}
	return steps
}

// LevelStep is one row of LevelTable.
type LevelStep struct {
	Level     int   `json:"level"`
	ReachedAt int64 `json:"reachedAt"`
	Cost      int64 `json:"cost"`
}
