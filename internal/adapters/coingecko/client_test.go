package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"ratewatch/internal/domain"
)

func newTestClient(t *testing.T, srv *httptest.Server, apiKey string) *Client {
	t.Helper()
	c, err := NewClient(srv.Client(), srv.URL, apiKey, "bitcoin", []string{"usd", "eur", "gbp"})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestFetchCryptoPricesBulk_Success(t *testing.T) {
	var gotPath, gotIDs, gotCurrencies, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotIDs = r.URL.Query().Get("ids")
		gotCurrencies = r.URL.Query().Get("vs_currencies")
		gotKey = r.Header.Get("x-cg-demo-api-key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":50000,"eur":46000},"ethereum":{"usd":3000}}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, "test-key")
	bulk, err := c.FetchCryptoPricesBulk(context.Background(), []string{"ethereum", "bitcoin"}, []string{"usd", "eur"})
	require.NoError(t, err)

	require.Equal(t, "/simple/price", gotPath)
	require.Equal(t, "bitcoin,ethereum", gotIDs)
	require.Equal(t, "eur,usd", gotCurrencies)
	require.Equal(t, "test-key", gotKey)

	require.Equal(t, 50000.0, bulk.Prices["bitcoin"]["usd"])
	require.Equal(t, 46000.0, bulk.Prices["bitcoin"]["eur"])
	require.Equal(t, 3000.0, bulk.Prices["ethereum"]["usd"])
	require.Equal(t, []string{"ethereum/eur"}, bulk.Missing)
}

func TestFetchCryptoPricesBulk_SanitizesInputs(t *testing.T) {
	var gotIDs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIDs = r.URL.Query().Get("ids")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":50000}}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, "")
	_, err := c.FetchCryptoPricesBulk(context.Background(), []string{" Bitcoin ", "bitcoin", "bad$token"}, []string{"USD"})
	require.NoError(t, err)
	require.Equal(t, "bitcoin", gotIDs)
}

func TestFetchCryptoPricesBulk_EmptyListsRejectedBeforeNetwork(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, "")

	_, err := c.FetchCryptoPricesBulk(context.Background(), []string{"!!!"}, []string{"usd"})
	require.ErrorIs(t, err, domain.ErrConfigInvalid)

	_, err = c.FetchCryptoPricesBulk(context.Background(), []string{"bitcoin"}, nil)
	require.ErrorIs(t, err, domain.ErrConfigInvalid)

	require.Zero(t, requests)
}

func TestFetchCryptoPricesBulk_UnusableCellsEndUpMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":"oops","eur":-5,"gbp":40000}}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, "")
	bulk, err := c.FetchCryptoPricesBulk(context.Background(), []string{"bitcoin"}, []string{"usd", "eur", "gbp"})
	require.NoError(t, err)
	require.Equal(t, 40000.0, bulk.Prices["bitcoin"]["gbp"])
	require.ElementsMatch(t, []string{"bitcoin/usd", "bitcoin/eur"}, bulk.Missing)
}

func TestFetchCryptoPricesBulk_AllCellsUnusableFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, "")
	_, err := c.FetchCryptoPricesBulk(context.Background(), []string{"bitcoin"}, []string{"usd"})

	var upstreamErr *domain.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, domain.UpstreamDataInvalid, upstreamErr.Kind)
}

func TestMakeRequest_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   domain.UpstreamErrorKind
	}{
		{http.StatusUnauthorized, domain.UpstreamAuth},
		{http.StatusForbidden, domain.UpstreamForbidden},
		{http.StatusTooManyRequests, domain.UpstreamRateLimited},
		{http.StatusServiceUnavailable, domain.UpstreamUnavailable},
		{http.StatusTeapot, domain.UpstreamGeneric},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := newTestClient(t, srv, "")

		_, err := c.FetchCryptoPricesBulk(context.Background(), []string{"bitcoin"}, []string{"usd"})

		var upstreamErr *domain.UpstreamError
		require.ErrorAs(t, err, &upstreamErr, "status %d", tc.status)
		require.Equal(t, tc.kind, upstreamErr.Kind)
		require.Equal(t, tc.status, upstreamErr.StatusCode)
		srv.Close()
	}
}

func TestMakeRequest_NetworkFailureClassifiedSeparately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv, "")
	srv.Close() // connection refused from here on

	_, err := c.FetchCryptoPricesBulk(context.Background(), []string{"bitcoin"}, []string{"usd"})

	var upstreamErr *domain.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, domain.UpstreamNetwork, upstreamErr.Kind)
	require.Zero(t, upstreamErr.StatusCode)
}

func TestFetchExchangeRates_DerivesFromPivot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":50000,"eur":46000,"gbp":40000}}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, "")
	rates, err := c.FetchExchangeRates(context.Background())
	require.NoError(t, err)

	require.InDelta(t, 1.0, rates["USD"], 1e-9)
	require.InDelta(t, 0.92, rates["EUR"], 1e-9)
	require.InDelta(t, 0.8, rates["GBP"], 1e-9)
}

func TestFetchExchangeRates_MissingUSDPivotFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{"eur":46000}}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, "")
	_, err := c.FetchExchangeRates(context.Background())

	var upstreamErr *domain.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, domain.UpstreamDataInvalid, upstreamErr.Kind)
}

func TestMakeRequest_IdenticalRequestsServedFromResponseCache(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":50000}}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, "test-key")

	_, err := c.FetchCryptoPricesBulk(context.Background(), []string{"bitcoin"}, []string{"usd"})
	require.NoError(t, err)
	c.responses.Wait()

	_, err = c.FetchCryptoPricesBulk(context.Background(), []string{"bitcoin"}, []string{"usd"})
	require.NoError(t, err)
	require.Equal(t, 1, requests)
}

func TestThrottle_CancelledContextAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":50000}}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, "")

	_, err := c.FetchCryptoPricesBulk(context.Background(), []string{"bitcoin"}, []string{"usd"})
	require.NoError(t, err)

	// Second request must wait for the gap; a cancelled context aborts the wait.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.FetchCryptoPricesBulk(ctx, []string{"bitcoin"}, []string{"eur"})
	require.ErrorIs(t, err, context.Canceled)

	var upstreamErr *domain.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, domain.UpstreamNetwork, upstreamErr.Kind)
}

func TestThrottle_AbortedWaitReturnsItsSlot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":50000,"eur":46000,"gbp":40000}}`))
	}))
	t.Cleanup(srv.Close)

	gap := 300 * time.Millisecond
	c := newTestClient(t, srv, "")
	c.limiter = rate.NewLimiter(rate.Every(gap), 1)

	_, err := c.FetchCryptoPricesBulk(context.Background(), []string{"bitcoin"}, []string{"usd"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.FetchCryptoPricesBulk(ctx, []string{"bitcoin"}, []string{"eur"})
	require.ErrorIs(t, err, context.Canceled)

	// The aborted wait must not count against the next request: one gap away
	// from the first request, not two.
	started := time.Now()
	_, err = c.FetchCryptoPricesBulk(context.Background(), []string{"bitcoin"}, []string{"gbp"})
	require.NoError(t, err)
	require.Less(t, time.Since(started), 2*gap-gap/2)
}
