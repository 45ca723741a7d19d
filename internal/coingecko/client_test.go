package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveRequest(endpoint, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, endpoint+":"+outcome)
}

func TestClient_MarketChart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/bitcoin/market_chart", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "1", r.URL.Query().Get("days"))
		assert.Equal(t, "hourly", r.URL.Query().Get("interval"))
		assert.NotEmpty(t, r.URL.Query().Get("_t"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"prices":[[0,100],[1000,110]],"total_volumes":[[0,5],[1000,6]],"market_caps":[]}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := NewClient(srv.URL, ClientConfig{Observer: obs})
	raw, err := c.MarketChart(context.Background(), "bitcoin", 1)
	require.NoError(t, err)
	require.Len(t, raw.Prices, 2)
	assert.Equal(t, int64(1000), raw.Prices[1].Timestamp)
	assert.Equal(t, 110.0, raw.Prices[1].Value)
	assert.Equal(t, 6.0, raw.TotalVolumes[1].Value)
	assert.Equal(t, []string{"market_chart:ok"}, obs.outcomes)
}

func TestClient_MarketChartDailyInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "daily", r.URL.Query().Get("interval"))
		assert.Equal(t, "30", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`{"prices":[],"total_volumes":[]}`))
	}))
	defer srv.Close()

	raw, err := NewClient(srv.URL, ClientConfig{}).MarketChart(context.Background(), "ethereum", 30)
	require.NoError(t, err)
	assert.True(t, raw.Empty())
}

func TestClient_Markets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/markets", r.URL.Path)
		assert.Equal(t, OrderGainers, r.URL.Query().Get("order"))
		assert.Equal(t, "30", r.URL.Query().Get("per_page"))
		assert.Equal(t, "24h", r.URL.Query().Get("price_change_percentage"))
		_, _ = w.Write([]byte(`[
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":60000,"market_cap":1.2e12,
			 "market_cap_rank":1,"total_volume":3e10,"high_24h":61000,"low_24h":59000,
			 "price_change_percentage_24h":2.5},
			{"id":"tether","symbol":"usdt","name":"Tether","current_price":1,"high_24h":null,
			 "price_change_percentage_24h":null}
		]`))
	}))
	defer srv.Close()

	snaps, err := NewClient(srv.URL, ClientConfig{}).Markets(context.Background(), OrderGainers)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "bitcoin", snaps[0].ID)
	require.NotNil(t, snaps[0].PriceChangePercentage24h)
	assert.Equal(t, 2.5, *snaps[0].PriceChangePercentage24h)
	assert.Equal(t, 1, snaps[0].MarketCapRank)
	assert.Nil(t, snaps[1].PriceChangePercentage24h)
	assert.Nil(t, snaps[1].High24h)
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		status  int
		message string
	}{
		{http.StatusTooManyRequests, "API rate limit reached. Free tier allows 10-30 calls/minute."},
		{http.StatusNotFound, "Data not found. The cryptocurrency might not exist."},
		{http.StatusBadGateway, "API Error: 502"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, ClientConfig{}).Markets(context.Background(), OrderLosers)
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, Describe(err))
			assert.Equal(t, tt.status == http.StatusTooManyRequests, IsRateLimited(err))
		})
	}
}

func TestClient_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"prices":[[0]],"total_volumes":[]}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	_, err := NewClient(srv.URL, ClientConfig{Observer: obs}).MarketChart(context.Background(), "bitcoin", 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.Equal(t, []string{"market_chart:malformed"}, obs.outcomes)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, ClientConfig{Timeout: 50 * time.Millisecond}).MarketChart(context.Background(), "bitcoin", 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "Request timeout. The API is taking too long to respond.", Describe(err))
}

func TestClient_NoResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, ClientConfig{}).Markets(context.Background(), OrderGainers)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "", Describe(nil))
	assert.Equal(t, "Network error", Describe(errors.New("boom")))
	assert.Equal(t, "The API returned data in an unexpected format.", Describe(ErrMalformedPayload))
}
