package domain

import "time"

// StalenessLevel is one of the five freshness tiers derived from cache age.
type StalenessLevel string

const (
	LevelFresh         StalenessLevel = "fresh"
	LevelStale         StalenessLevel = "stale"
	LevelVeryStale     StalenessLevel = "very_stale"
	LevelCriticalStale StalenessLevel = "critical_stale"
	LevelNoData        StalenessLevel = "no_data"
)

// Priority orders tiers for UI badges: fresh < stale < very_stale <
// critical_stale < no_data.
func (l StalenessLevel) Priority() int {
	switch l {
	case LevelFresh:
		return 1
	case LevelStale:
		return 2
	case LevelVeryStale:
		return 3
	case LevelCriticalStale:
		return 4
	default:
		return 5
	}
}

// StalenessThresholds are the tier boundaries. An age at or below Stale is
// fresh, at or below VeryStale is stale, at or below Critical is very stale,
// and anything beyond is critically stale.
type StalenessThresholds struct {
	Stale     time.Duration
	VeryStale time.Duration
	Critical  time.Duration
}

func DefaultThresholds() StalenessThresholds {
	return StalenessThresholds{
		Stale:     time.Hour,
		VeryStale: 2 * time.Hour,
		Critical:  6 * time.Hour,
	}
}

// Valid reports whether the thresholds are positive and strictly ordered.
func (t StalenessThresholds) Valid() bool {
	return t.Stale > 0 && t.VeryStale > t.Stale && t.Critical > t.VeryStale
}

// StalenessAssessment is derived from cache age on demand, never stored.
type StalenessAssessment struct {
	Level      StalenessLevel `json:"level"`
	IsStale    bool           `json:"is_stale"`
	IsCritical bool           `json:"is_critical"`
}
