package domain

// BulkPrices is the parsed result of one bulk price request. Missing lists
// the "coin/currency" cells the provider omitted or returned unusable values
// for; a missing cell never fails the whole call.
type BulkPrices struct {
	Prices  map[string]map[string]float64
	Missing []string
}
