package cache

import (
	"fmt"
	"math"
	"sync"
	"time"

	"ratewatch/internal/domain"
)

// DefaultStaleThreshold is used when IsStale is asked without an explicit one.
const DefaultStaleThreshold = time.Hour

// Store holds crypto and fiat rates in memory for the process lifetime.
// Both mappings are replaced wholesale on each population; a failed population
// never leaves a half-written mix of old and new entries.
type Store struct {
	mu          sync.RWMutex
	crypto      map[string]domain.RateEntry
	fiat        map[string]domain.RateEntry
	populatedAt time.Time
	ready       bool
	lastError   string
	source      string
}

func NewStore(source string) *Store {
	return &Store{
		crypto: make(map[string]domain.RateEntry),
		fiat:   make(map[string]domain.RateEntry),
		source: source,
	}
}

// Populate replaces both mappings from plain nested maps. Entries with
// non-finite or negative values are skipped, not fatal. The mappings are
// cleared before writing, so a population that yields no usable entry leaves
// the store empty and not ready.
func (s *Store) Populate(cryptoData map[string]map[string]float64, fiatData map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.crypto = make(map[string]domain.RateEntry, len(cryptoData))
	s.fiat = make(map[string]domain.RateEntry, len(fiatData))

	for coinID, prices := range cryptoData {
		for currency, value := range prices {
			if !usableRate(value) {
				continue
			}
			s.crypto[domain.CryptoKey(coinID, currency)] = domain.RateEntry{
				Value:      value,
				CapturedAt: now,
				Source:     s.source,
			}
		}
	}
	for code, value := range fiatData {
		if !usableRate(value) {
			continue
		}
		s.fiat[domain.FiatKey(code)] = domain.RateEntry{
			Value:      value,
			CapturedAt: now,
			Source:     s.source,
		}
	}

	if len(s.crypto) == 0 && len(s.fiat) == 0 {
		s.ready = false
		s.populatedAt = time.Time{}
		s.lastError = "population data contained no usable rates"
		return fmt.Errorf("%w: population data contained no usable rates", domain.ErrCacheWriteFailed)
	}

	s.populatedAt = now
	s.ready = true
	s.lastError = ""
	return nil
}

// CryptoRate looks up a coin price; currency case is irrelevant.
func (s *Store) CryptoRate(coinID, vsCurrency string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.crypto[domain.CryptoKey(coinID, vsCurrency)]
	if !ok {
		return 0, false
	}
	return entry.Value, true
}

// FiatRate looks up a fiat cross rate by its uppercase code.
func (s *Store) FiatRate(code string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.fiat[code]
	if !ok {
		return 0, false
	}
	return entry.Value, true
}

// Age returns the time since the last successful population. The second
// return is false before the first population.
func (s *Store) Age() (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ageLocked()
}

func (s *Store) ageLocked() (time.Duration, bool) {
	if s.populatedAt.IsZero() {
		return 0, false
	}
	return time.Since(s.populatedAt), true
}

// IsStale reports whether the cache age exceeds threshold. A zero threshold
// means DefaultStaleThreshold. An unpopulated store is stale.
func (s *Store) IsStale(threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	age, ok := s.Age()
	if !ok {
		return true
	}
	return age > threshold
}

func (s *Store) Status() domain.CacheStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := domain.CacheStatus{
		Ready:       s.ready,
		CryptoCount: len(s.crypto),
		FiatCount:   len(s.fiat),
		Error:       s.lastError,
	}
	if age, ok := s.ageLocked(); ok {
		populatedAt := s.populatedAt
		ageMs := age.Milliseconds()
		status.PopulatedAt = &populatedAt
		status.AgeMs = &ageMs
		status.IsStale = age > DefaultStaleThreshold
	} else {
		status.IsStale = true
	}
	return status
}

// Clear resets the store to its initial empty state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crypto = make(map[string]domain.RateEntry)
	s.fiat = make(map[string]domain.RateEntry)
	s.populatedAt = time.Time{}
	s.ready = false
	s.lastError = ""
}

func usableRate(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
