package freshness

import (
	"time"

	"ratewatch/internal/domain"
)

// Classify derives the staleness tier from a cache age. hasData is false
// before the first successful population.
func Classify(age time.Duration, hasData bool, t domain.StalenessThresholds) domain.StalenessLevel {
	if !hasData {
		return domain.LevelNoData
	}
	switch {
	case age <= t.Stale:
		return domain.LevelFresh
	case age <= t.VeryStale:
		return domain.LevelStale
	case age <= t.Critical:
		return domain.LevelVeryStale
	default:
		return domain.LevelCriticalStale
	}
}

// Assess wraps Classify into the full assessment record.
func Assess(age time.Duration, hasData bool, t domain.StalenessThresholds) domain.StalenessAssessment {
	level := Classify(age, hasData, t)
	return domain.StalenessAssessment{
		Level:      level,
		IsStale:    level != domain.LevelFresh,
		IsCritical: level == domain.LevelCriticalStale || level == domain.LevelNoData,
	}
}
