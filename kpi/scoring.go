package kpi

// =============================================================================
// SCORING CURVE
// =============================================================================

// Ratio returns actual/target as a percentage. target <= 0 yields 0.
func Ratio(actual, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return actual * 100 / target
}

// Score maps an actual value onto 0..100 relative to targetMin.
//
//	ratio >= 120%  85..100 (capped)
//	100..119%      70..85
//	80..99%        50..70
//	50..79%        25..50
//	0..49%          0..25
//
// Each band truncates toward zero. actual == 0 with targetMin == 0 scores
// 100: nothing was expected and nothing was missed.
func Score(actual, targetMin float64) int {
	if actual == 0 && targetMin == 0 {
		return 100
	}
	if targetMin <= 0 {
		return 0
	}
	return ScoreFromPercent(Ratio(actual, targetMin))
}

// ScoreFromPercent applies the curve to an achievement percentage.
func ScoreFromPercent(p float64) int {
	switch {
	case p >= 120:
		return min(100, 85+int((p-120)/20*15))
	case p >= 100:
		return 70 + int((p-100)/20*15)
	case p >= 80:
		return 50 + int((p-80)/20*20)
	case p >= 50:
		return 25 + int((p-50)/30*25)
	case p > 0:
		return int(p / 50 * 25)
	default:
		return 0
	}
}

// Score scores actual against this definition's minimum target.
// The curve is the same for both directions; only Status differs.
func (d Definition) Score(actual float64) int {
	return Score(actual, d.TargetMin)
}

// =============================================================================
// PERFORMANCE LEVEL
// =============================================================================

type PerformanceLevel string

const (
	LevelExceptional      PerformanceLevel = "exceptional"
	LevelExcellent        PerformanceLevel = "excellent"
	LevelGood             PerformanceLevel = "good"
	LevelMeets            PerformanceLevel = "meets"
	LevelClose            PerformanceLevel = "close"
	LevelDeveloping       PerformanceLevel = "developing"
	LevelNeedsImprovement PerformanceLevel = "needs_improvement"
	LevelUnknown          PerformanceLevel = "unknown"
)

// PerformanceLevel labels an actual value against the three thresholds.
// Checked in order; the first match wins.
func (d Definition) PerformanceLevel(actual float64) PerformanceLevel {
	if d.TargetMin <= 0 {
		return LevelUnknown
	}
	p := Ratio(actual, d.TargetMin)
	switch {
	case p >= 120:
		return LevelExceptional
	case d.TargetExcellent > 0 && actual >= d.TargetExcellent:
		return LevelExcellent
	case d.TargetGood > 0 && actual >= d.TargetGood:
		return LevelGood
	case actual >= d.TargetMin:
		return LevelMeets
	case p >= 80:
		return LevelClose
	case p >= 50:
		return LevelDeveloping
	default:
		return LevelNeedsImprovement
	}
}

// =============================================================================
// STATUS - on target / warning / critical
// =============================================================================

type StatusLevel string

const (
	StatusOnTarget StatusLevel = "on_target"
	StatusWarning  StatusLevel = "warning"
	StatusCritical StatusLevel = "critical"
)

// Status classifies actual against target. For lower-is-better metrics
// being at or under 110% of target is on target.
func Status(actual, target float64, dir Direction) StatusLevel {
	p := Ratio(actual, target)
	if dir == LowerIsBetter {
		switch {
		case p <= 110:
			return StatusOnTarget
		case p <= 130:
			return StatusWarning
		default:
			return StatusCritical
		}
	}
	switch {
	case p >= 100:
		return StatusOnTarget
	case p >= 80:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// =============================================================================
// TARGET PROGRESS
// =============================================================================

type ProgressStatus string

const (
	ProgressExceeded   ProgressStatus = "exceeded"
	ProgressAchieved   ProgressStatus = "achieved"
	ProgressOnTrack    ProgressStatus = "on_track"
	ProgressAtRisk     ProgressStatus = "at_risk"
	ProgressBehind     ProgressStatus = "behind"
	ProgressNotStarted ProgressStatus = "not_started"
)

// DefaultAlertThreshold is the percent above which a target is on track.
const DefaultAlertThreshold = 80

// DisplayCap bounds AchievementPercent for display.
const DisplayCap = 150

// ProgressStatus classifies the raw (unclamped) achievement percent.
func (t Target) ProgressStatus(alertThreshold float64) ProgressStatus {
	p := Ratio(t.AchievedValue, t.EffectiveTarget())
	switch {
	case p >= 110:
		return ProgressExceeded
	case p >= 100:
		return ProgressAchieved
	case p >= alertThreshold:
		return ProgressOnTrack
	case p >= 50:
		return ProgressAtRisk
	case p > 0:
		return ProgressBehind
	default:
		return ProgressNotStarted
	}
}

// rescore refreshes the derived fields from AchievedValue and the effective target.
func (t *Target) rescore() {
	target := t.EffectiveTarget()
	p := Ratio(t.AchievedValue, target)
	if p > DisplayCap {
		p = DisplayCap
	}
	t.AchievementPercent = roundTo(p, 2)
	t.Score = Score(t.AchievedValue, target)
}

func roundTo(v float64, places int) float64 {
	pow := 1.0
	for i := 0; i < places; i++ {
		pow *= 10
	}
	if v < 0 {
		return -float64(int64(-v*pow+0.5)) / pow
	}
	return float64(int64(v*pow+0.5)) / pow
}
