package domain

import (
	"strings"
	"time"
)

// RateEntry is a single cached rate. Entries are replaced wholesale on each
// population, never patched field by field.
type RateEntry struct {
	Value      float64   `json:"value"`
	CapturedAt time.Time `json:"captured_at"`
	Source     string    `json:"source"`
}

// CacheStatus is a point-in-time snapshot of the rate cache.
type CacheStatus struct {
	Ready       bool       `json:"ready"`
	PopulatedAt *time.Time `json:"populated_at"`
	IsStale     bool       `json:"is_stale"`
	CryptoCount int        `json:"crypto_count"`
	FiatCount   int        `json:"fiat_count"`
	Error       string     `json:"error,omitempty"`
	AgeMs       *int64     `json:"age_ms"`
}

// CryptoKey builds the cache key for a coin/currency pair.
func CryptoKey(coinID, vsCurrency string) string {
	return strings.ToLower(coinID) + "_" + strings.ToLower(vsCurrency)
}

// FiatKey builds the cache key for a fiat currency code.
func FiatKey(code string) string {
	return strings.ToUpper(code)
}
