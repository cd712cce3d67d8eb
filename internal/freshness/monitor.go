package freshness

import (
	"fmt"
	"sync"
	"time"

	"ratewatch/internal/cache"
	"ratewatch/internal/domain"
)

const defaultHistorySize = 100

// TierChange describes a transition between staleness tiers.
type TierChange struct {
	Previous   domain.StalenessLevel      `json:"previous_level"`
	Current    domain.StalenessLevel      `json:"current_level"`
	Assessment domain.StalenessAssessment `json:"assessment"`
	At         time.Time                  `json:"timestamp"`
}

// AgeBreakdown renders a cache age in the units the UI needs.
type AgeBreakdown struct {
	Ms       int64   `json:"ms"`
	Seconds  int64   `json:"seconds"`
	Minutes  int64   `json:"minutes"`
	Hours    float64 `json:"hours"`
	Human    string  `json:"human"`
	Short    string  `json:"short"`
	Relative string  `json:"relative"`
}

// StatusMessage is the user-facing summary selected from (ready, error, tier).
type StatusMessage struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

// Indicator carries UI hints for the status badge.
type Indicator struct {
	Color    string `json:"color"`
	Icon     string `json:"icon"`
	Badge    string `json:"badge"`
	Tag      string `json:"tag"`
	Priority int    `json:"priority"`
}

// DetailedStatus composes everything a status surface needs in one call.
type DetailedStatus struct {
	Cache           domain.CacheStatus         `json:"cache"`
	Assessment      domain.StalenessAssessment `json:"assessment"`
	Age             *AgeBreakdown              `json:"age"`
	Message         StatusMessage              `json:"message"`
	Indicator       Indicator                  `json:"indicator"`
	Recommendations []string                   `json:"recommendations"`
	GeneratedAt     time.Time                  `json:"generated_at"`
}

// Snapshot is one history sample.
type Snapshot struct {
	At    time.Time             `json:"at"`
	Level domain.StalenessLevel `json:"level"`
	AgeMs *int64                `json:"age_ms"`
	Ready bool                  `json:"ready"`
}

// Stats summarizes the recorded history.
type Stats struct {
	Samples      int                           `json:"samples"`
	TierCounts   map[domain.StalenessLevel]int `json:"tier_counts"`
	AverageAgeMs int64                         `json:"average_age_ms"`
	StalePercent float64                       `json:"stale_percent"`
}

// Monitor turns the cache age into user-facing assessments and detects tier
// transitions. It has no internal clock; callers must poll DetailedStatus for
// transitions to be observed.
type Monitor struct {
	store      *cache.Store
	thresholds domain.StalenessThresholds
	historyMax int

	onTierChange func(TierChange)
	onCritical   func(TierChange)

	mu       sync.Mutex
	lastTier domain.StalenessLevel
	history  []Snapshot
}

func NewMonitor(store *cache.Store, thresholds domain.StalenessThresholds, historyMax int) *Monitor {
	if !thresholds.Valid() {
		thresholds = domain.DefaultThresholds()
	}
	if historyMax <= 0 {
		historyMax = defaultHistorySize
	}
	return &Monitor{
		store:      store,
		thresholds: thresholds,
		historyMax: historyMax,
	}
}

// OnTierChange registers the callback fired on every tier transition.
func (m *Monitor) OnTierChange(fn func(TierChange)) { m.onTierChange = fn }

// OnCritical registers the callback fired when a transition lands on a
// critical tier.
func (m *Monitor) OnCritical(fn func(TierChange)) { m.onCritical = fn }

// Assess computes the current assessment without touching transition state.
func (m *Monitor) Assess() domain.StalenessAssessment {
	age, hasData := m.store.Age()
	return Assess(age, hasData, m.thresholds)
}

// DetailedStatus composes the full status record, records a history sample
// and fires transition callbacks when the tier changed since the last call.
func (m *Monitor) DetailedStatus() DetailedStatus {
	now := time.Now()
	cacheStatus := m.store.Status()
	age, hasData := m.store.Age()
	assessment := Assess(age, hasData, m.thresholds)

	status := DetailedStatus{
		Cache:           cacheStatus,
		Assessment:      assessment,
		Message:         messageFor(cacheStatus, assessment.Level),
		Indicator:       indicatorFor(assessment.Level),
		Recommendations: recommendationsFor(assessment.Level),
		GeneratedAt:     now,
	}
	if hasData {
		status.Age = breakdownAge(age)
	}

	m.record(now, assessment, cacheStatus)
	return status
}

// Stats aggregates the recorded history.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{TierCounts: make(map[domain.StalenessLevel]int)}
	var ageSum int64
	var ageSamples int64
	var staleSamples int
	for _, snap := range m.history {
		stats.Samples++
		stats.TierCounts[snap.Level]++
		if snap.AgeMs != nil {
			ageSum += *snap.AgeMs
			ageSamples++
		}
		if snap.Level != domain.LevelFresh {
			staleSamples++
		}
	}
	if ageSamples > 0 {
		stats.AverageAgeMs = ageSum / ageSamples
	}
	if stats.Samples > 0 {
		stats.StalePercent = float64(staleSamples) / float64(stats.Samples) * 100
	}
	return stats
}

func (m *Monitor) record(now time.Time, assessment domain.StalenessAssessment, cacheStatus domain.CacheStatus) {
	m.mu.Lock()
	snap := Snapshot{At: now, Level: assessment.Level, AgeMs: cacheStatus.AgeMs, Ready: cacheStatus.Ready}
	m.history = append(m.history, snap)
	if len(m.history) > m.historyMax {
		m.history = m.history[len(m.history)-m.historyMax:]
	}

	previous := m.lastTier
	changed := previous != assessment.Level
	m.lastTier = assessment.Level
	m.mu.Unlock()

	if !changed || previous == "" {
		return
	}
	change := TierChange{Previous: previous, Current: assessment.Level, Assessment: assessment, At: now}
	if m.onTierChange != nil {
		m.onTierChange(change)
	}
	if assessment.IsCritical && m.onCritical != nil {
		m.onCritical(change)
	}
}

func breakdownAge(age time.Duration) *AgeBreakdown {
	ms := age.Milliseconds()
	b := &AgeBreakdown{
		Ms:      ms,
		Seconds: int64(age.Seconds()),
		Minutes: int64(age.Minutes()),
		Hours:   age.Hours(),
	}
	b.Human, b.Short, b.Relative = formatAge(age)
	return b
}

func formatAge(age time.Duration) (human, short, relative string) {
	switch {
	case age < time.Minute:
		seconds := int(age.Seconds())
		return fmt.Sprintf("%d seconds", seconds), fmt.Sprintf("%ds", seconds), "just now"
	case age < time.Hour:
		minutes := int(age.Minutes())
		return fmt.Sprintf("%d minutes", minutes), fmt.Sprintf("%dm", minutes),
			fmt.Sprintf("%d minutes ago", minutes)
	default:
		hours := int(age.Hours())
		minutes := int(age.Minutes()) % 60
		if minutes == 0 {
			return fmt.Sprintf("%d hours", hours), fmt.Sprintf("%dh", hours),
				fmt.Sprintf("%d hours ago", hours)
		}
		return fmt.Sprintf("%d hours %d minutes", hours, minutes),
			fmt.Sprintf("%dh%dm", hours, minutes),
			fmt.Sprintf("%d hours ago", hours)
	}
}

func messageFor(cacheStatus domain.CacheStatus, level domain.StalenessLevel) StatusMessage {
	if !cacheStatus.Ready && cacheStatus.Error != "" {
		return StatusMessage{
			Type:    "error",
			Title:   "Rates unavailable",
			Message: cacheStatus.Error,
			Action:  "refresh",
		}
	}
	switch level {
	case domain.LevelNoData:
		return StatusMessage{
			Type:    "error",
			Title:   "No rate data yet",
			Message: "Waiting for the first refresh to complete",
			Action:  "refresh",
		}
	case domain.LevelCriticalStale:
		return StatusMessage{
			Type:    "error",
			Title:   "Rates critically outdated",
			Message: "The cached rates are too old to trust",
			Action:  "refresh",
		}
	case domain.LevelVeryStale:
		return StatusMessage{
			Type:    "warning",
			Title:   "Rates outdated",
			Message: "A manual refresh is recommended",
			Action:  "refresh",
		}
	case domain.LevelStale:
		return StatusMessage{
			Type:    "warning",
			Title:   "Rates getting old",
			Message: "Rates will refresh automatically on the next cycle",
			Action:  "none",
		}
	default:
		return StatusMessage{
			Type:    "ok",
			Title:   "Rates up to date",
			Message: "Conversions use recent data",
			Action:  "none",
		}
	}
}

func indicatorFor(level domain.StalenessLevel) Indicator {
	switch level {
	case domain.LevelFresh:
		return Indicator{Color: "green", Icon: "check", Badge: "", Tag: "status-fresh", Priority: level.Priority()}
	case domain.LevelStale:
		return Indicator{Color: "yellow", Icon: "clock", Badge: "!", Tag: "status-stale", Priority: level.Priority()}
	case domain.LevelVeryStale:
		return Indicator{Color: "orange", Icon: "warning", Badge: "!!", Tag: "status-very-stale", Priority: level.Priority()}
	case domain.LevelCriticalStale:
		return Indicator{Color: "red", Icon: "alert", Badge: "!!!", Tag: "status-critical", Priority: level.Priority()}
	default:
		return Indicator{Color: "gray", Icon: "offline", Badge: "?", Tag: "status-no-data", Priority: level.Priority()}
	}
}

func recommendationsFor(level domain.StalenessLevel) []string {
	switch level {
	case domain.LevelStale:
		return []string{"rates will refresh automatically on the next cycle"}
	case domain.LevelVeryStale:
		return []string{"manual refresh recommended"}
	case domain.LevelCriticalStale:
		return []string{"force a refresh now", "check network connectivity and the provider API key"}
	case domain.LevelNoData:
		return []string{"wait for the first refresh to finish", "check the provider API key if this persists"}
	default:
		return nil
	}
}
