// Package reputation derives the reputation score, level and percentile
// from the credential collection.
package reputation

import (
	"math"
	"time"

	"github.com/zarlcorp/mocaport/internal/credential"
)

// Level is a named reputation tier.
type Level string

const (
	Newcomer     Level = "Newcomer"
	Beginner     Level = "Beginner"
	Intermediate Level = "Intermediate"
	Advanced     Level = "Advanced"
	Expert       Level = "Expert"
)

// PercentileCap is the highest percentile ever reported.
const PercentileCap = 95

// ladder is evaluated top-down; the first threshold the ratio reaches wins.
var ladder = []struct {
	min   float64
	level Level
}{
	{0.80, Expert},
	{0.60, Advanced},
	{0.40, Intermediate},
	{0.20, Beginner},
}

// Ratio returns score/max clamped to [0, 1]. A non-positive max yields 0.
func Ratio(score, max int) float64 {
	if max <= 0 || score <= 0 {
		return 0
	}
	r := float64(score) / float64(max)
	return math.Min(r, 1)
}

// LevelForRatio maps a score ratio onto the level ladder.
func LevelForRatio(r float64) Level {
	for _, step := range ladder {
		if r >= step.min {
			return step.level
		}
	}
	return Newcomer
}

// LevelFor returns the level for score out of max.
func LevelFor(score, max int) Level {
	return LevelForRatio(Ratio(score, max))
}

// Percentile returns floor(100*score/max) capped at PercentileCap.
func Percentile(score, max int) int {
	p := int(math.Floor(100 * Ratio(score, max)))
	return min(p, PercentileCap)
}

// Percent returns the gauge fill, floor(100*score/max) clamped to 100.
func Percent(score, max int) int {
	return int(math.Floor(100 * Ratio(score, max)))
}

// Breakdown sums verified points per category in one pass.
func Breakdown(creds []credential.Credential) map[credential.Category]int {
	out := make(map[credential.Category]int)
	for _, c := range creds {
		if c.IsVerified {
			out[c.Category] += c.Points
		}
	}
	return out
}

// Next returns the next level up from score and the score needed to reach
// it. At Expert it returns Expert and max.
func Next(score, max int) (Level, int) {
	r := Ratio(score, max)
	for i := len(ladder) - 1; i >= 0; i-- {
		if r < ladder[i].min {
			need := int(math.Ceil(ladder[i].min*float64(max) - 1e-9))
			return ladder[i].level, need
		}
	}
	return Expert, max
}

// Snapshot is one derived view of the collection.
type Snapshot struct {
	Score      int
	MaxScore   int
	Level      Level
	Percentile int
	Percent    int
	Breakdown  map[credential.Category]int
	Count      int
	UpdatedAt  time.Time
}

// Compute derives a snapshot from creds.
func Compute(creds []credential.Credential, max int, now time.Time) Snapshot {
	score := credential.TotalVerifiedPoints(creds)
	return Snapshot{
		Score:      score,
		MaxScore:   max,
		Level:      LevelFor(score, max),
		Percentile: Percentile(score, max),
		Percent:    Percent(score, max),
		Breakdown:  Breakdown(creds),
		Count:      len(creds),
		UpdatedAt:  now,
	}
}
