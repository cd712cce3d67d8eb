package adapters

import (
	"context"

	"ratewatch/internal/domain"
)

// PriceClient talks to the upstream price provider.
type PriceClient interface {
	FetchCryptoPricesBulk(ctx context.Context, coinIDs, vsCurrencies []string) (domain.BulkPrices, error)
	FetchExchangeRates(ctx context.Context) (map[string]float64, error)
}

// SettingsStore is the key/value contract of the external settings
// collaborator. Only the optional API key and threshold overrides live there.
type SettingsStore interface {
	Get(ctx context.Context, keys []string) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
}
