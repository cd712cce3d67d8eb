package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"ratewatch/internal/domain"
)

const (
	// Inter-request gaps the provider's tiers tolerate.
	keyedRequestGap   = 1 * time.Second
	unkeyedRequestGap = 3 * time.Second

	responseCacheTTL   = 30 * time.Second
	responseCacheItems = 64

	apiKeyHeader = "x-cg-demo-api-key"
)

// Token charset the provider accepts for coin ids and currency codes.
var tokenPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Client wraps the price provider's HTTP API: builds bulk requests,
// self-throttles to stay under the rate limit, and classifies failures.
type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	pivotCoin string
	fiats     []string

	limiter   *rate.Limiter
	responses *ristretto.Cache
}

// NewClient builds a provider client. apiKey may be empty; the free tier is
// throttled harder. pivotCoin is the asset used to derive fiat cross rates.
func NewClient(httpClient *http.Client, baseURL, apiKey, pivotCoin string, supportedFiats []string) (*Client, error) {
	responses, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * responseCacheItems,
		MaxCost:     responseCacheItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create response cache failed: %w", err)
	}

	gap := unkeyedRequestGap
	if apiKey != "" {
		gap = keyedRequestGap
	}
	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiKey:    apiKey,
		pivotCoin: strings.ToLower(pivotCoin),
		fiats:     supportedFiats,
		limiter:   rate.NewLimiter(rate.Every(gap), 1),
		responses: responses,
	}, nil
}

func (c *Client) Close() { c.responses.Close() }

// FetchCryptoPricesBulk fetches the whole coins x currencies grid in a single
// request. Both lists are deduplicated, lowercased and sorted so identical
// inputs produce identical URLs. Cells the provider omits or fills with
// unusable values land in Missing rather than failing the call.
func (c *Client) FetchCryptoPricesBulk(ctx context.Context, coinIDs, vsCurrencies []string) (domain.BulkPrices, error) {
	coins := sanitizeTokens(coinIDs)
	currencies := sanitizeTokens(vsCurrencies)
	if len(coins) == 0 {
		return domain.BulkPrices{}, fmt.Errorf("%w: no valid coin ids after filtering", domain.ErrConfigInvalid)
	}
	if len(currencies) == 0 {
		return domain.BulkPrices{}, fmt.Errorf("%w: no valid vs currencies after filtering", domain.ErrConfigInvalid)
	}

	params := url.Values{}
	params.Set("ids", strings.Join(coins, ","))
	params.Set("vs_currencies", strings.Join(currencies, ","))

	raw, err := c.makeRequest(ctx, "/simple/price", params)
	if err != nil {
		return domain.BulkPrices{}, err
	}

	var body map[string]map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return domain.BulkPrices{}, &domain.UpstreamError{
			Kind:    domain.UpstreamDataInvalid,
			Message: "malformed price response",
			Err:     err,
		}
	}

	result := domain.BulkPrices{Prices: make(map[string]map[string]float64, len(coins))}
	for _, coin := range coins {
		for _, currency := range currencies {
			value, ok := numericCell(body[coin], currency)
			if !ok {
				result.Missing = append(result.Missing, coin+"/"+currency)
				continue
			}
			if result.Prices[coin] == nil {
				result.Prices[coin] = make(map[string]float64, len(currencies))
			}
			result.Prices[coin][currency] = value
		}
	}

	if len(result.Prices) == 0 {
		return domain.BulkPrices{}, &domain.UpstreamError{
			Kind:    domain.UpstreamDataInvalid,
			Message: "price response contained no usable cells",
		}
	}
	if len(result.Missing) > 0 {
		logrus.WithField("missing", result.Missing).Debug("Provider omitted some price cells")
	}
	return result, nil
}

// FetchExchangeRates derives fiat cross rates from the pivot asset's price in
// every supported fiat: rate(X) = price_in_X / price_in_USD. The provider has
// no direct fiat endpoint.
func (c *Client) FetchExchangeRates(ctx context.Context) (map[string]float64, error) {
	bulk, err := c.FetchCryptoPricesBulk(ctx, []string{c.pivotCoin}, c.fiats)
	if err != nil {
		return nil, err
	}

	pivotPrices := bulk.Prices[c.pivotCoin]
	usd, ok := pivotPrices["usd"]
	if !ok || usd <= 0 {
		return nil, &domain.UpstreamError{
			Kind:    domain.UpstreamDataInvalid,
			Message: fmt.Sprintf("usd pivot price missing for %q", c.pivotCoin),
		}
	}

	rates := make(map[string]float64, len(pivotPrices))
	for currency, price := range pivotPrices {
		rates[domain.FiatKey(currency)] = price / usd
	}
	return rates, nil
}

// makeRequest throttles, sends, and classifies one GET to the provider.
// Identical URLs within responseCacheTTL are served from the response cache
// without hitting the network.
func (c *Client) makeRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	requestURL := c.baseURL + path + "?" + params.Encode()

	if cached, ok := c.responses.Get(requestURL); ok {
		if raw, ok := cached.([]byte); ok {
			return raw, nil
		}
	}

	// Burst of one makes the token bucket a fixed inter-request gap. An
	// interrupted wait hands its token back, so it does not delay the next
	// caller.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.UpstreamError{Kind: domain.UpstreamNetwork, Message: "throttle wait interrupted", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Kind: domain.UpstreamNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.UpstreamError{Kind: domain.UpstreamNetwork, Message: "reading response failed", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPFailure(resp.StatusCode, raw)
	}

	c.responses.SetWithTTL(requestURL, raw, 1, responseCacheTTL)
	return raw, nil
}

func classifyHTTPFailure(statusCode int, body []byte) *domain.UpstreamError {
	kind := domain.ClassifyStatus(statusCode)
	message := http.StatusText(statusCode)
	switch kind {
	case domain.UpstreamAuth:
		message = "invalid or missing api key"
	case domain.UpstreamForbidden:
		message = "access forbidden, quota may be exhausted"
	case domain.UpstreamRateLimited:
		message = "rate limit exceeded"
	case domain.UpstreamUnavailable:
		message = "provider unavailable"
	default:
		if snippet := strings.TrimSpace(string(body)); snippet != "" {
			if len(snippet) > 200 {
				snippet = snippet[:200]
			}
			message = snippet
		}
	}
	return &domain.UpstreamError{Kind: kind, StatusCode: statusCode, Message: message}
}

// sanitizeTokens lowercases, trims, deduplicates, validates and sorts a list
// of provider tokens. Invalid tokens are dropped, not fatal.
func sanitizeTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" || !tokenPattern.MatchString(token) {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	slices.Sort(out)
	return out
}

func numericCell(prices map[string]any, currency string) (float64, bool) {
	if prices == nil {
		return 0, false
	}
	raw, ok := prices[currency]
	if !ok {
		return 0, false
	}
	value, ok := raw.(float64)
	if !ok || value < 0 {
		return 0, false
	}
	return value, true
}
