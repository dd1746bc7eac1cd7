// Package leveling implements the clan level schedule and XP progression.
//
// The engine is a pure function of (current level, current XP, delta): it never
// touches storage. Callers persist the returned XP and level, and append the
// matching ledger entry, inside their own transaction.
package leveling

// MinLevel and MaxLevel bound the clan level range.
const (
	MinLevel = 1
	MaxLevel = 6
)

// Unlimited marks a capacity with no upper bound.
const Unlimited = -1

// Capacities holds the resource limits a clan unlocks at a given level.
type Capacities struct {
	Members       int
	TextChannels  int
	VoiceChannels int
}

// AllowsMembers reports whether a clan with count members may admit one more.
func (c Capacities) AllowsMembers(count int) bool {
	return c.Members == Unlimited || count < c.Members
}

// AllowsTextChannels reports whether count extra text channels leave room for one more.
func (c Capacities) AllowsTextChannels(count int) bool {
	return c.TextChannels == Unlimited || count < c.TextChannels
}

// AllowsVoiceChannels reports whether count extra voice channels leave room for one more.
func (c Capacities) AllowsVoiceChannels(count int) bool {
	return c.VoiceChannels == Unlimited || count < c.VoiceChannels
}

// Result describes the outcome of applying an XP delta.
type Result struct {
	NewXP      int64
	NewLevel   int
	LeveledUp  bool
	Capacities Capacities
}

type tier struct {
	threshold  int64
	capacities Capacities
}

// schedule maps level (index+1) to its XP threshold and capacities.
// Thresholds are strictly increasing; the final tier is terminal.
var schedule = [MaxLevel]tier{
	{threshold: 0, capacities: Capacities{Members: 10, TextChannels: 3, VoiceChannels: 2}},
	{threshold: 500, capacities: Capacities{Members: 20, TextChannels: 5, VoiceChannels: 3}},
	{threshold: 1500, capacities: Capacities{Members: 30, TextChannels: 7, VoiceChannels: 4}},
	{threshold: 3000, capacities: Capacities{Members: 45, TextChannels: 9, VoiceChannels: 5}},
	{threshold: 5000, capacities: Capacities{Members: 60, TextChannels: 12, VoiceChannels: 6}},
	{threshold: 8000, capacities: Capacities{Members: Unlimited, TextChannels: Unlimited, VoiceChannels: Unlimited}},
}

// Apply computes the XP and level that result from adding delta to the current
// XP. The delta may be negative; the level always follows the threshold rule,
// so demotion is mathematically well defined even though no caller produces it.
func Apply(currentLevel int, currentXP int64, delta int64) Result {
	newXP := currentXP + delta
	newLevel := LevelFor(newXP)
	return Result{
		NewXP:      newXP,
		NewLevel:   newLevel,
		LeveledUp:  newLevel > currentLevel,
		Capacities: CapacitiesFor(newLevel),
	}
}

// LevelFor returns the highest level whose threshold is at or below xp.
func LevelFor(xp int64) int {
	level := MinLevel
	for i := range schedule {
		if xp >= schedule[i].threshold {
			level = i + 1
		}
	}
	return level
}

// CapacitiesFor returns the capacities unlocked at level. Levels outside the
// schedule clamp to the nearest valid tier.
func CapacitiesFor(level int) Capacities {
	return schedule[clampLevel(level)-1].capacities
}

// ThresholdFor returns the XP threshold that unlocks level.
func ThresholdFor(level int) int64 {
	return schedule[clampLevel(level)-1].threshold
}

// NextThreshold returns the XP threshold of the level after the given one.
// The second return is false at the terminal level.
func NextThreshold(level int) (int64, bool) {
	level = clampLevel(level)
	if level >= MaxLevel {
		return 0, false
	}
	return schedule[level].threshold, true
}

func clampLevel(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}
