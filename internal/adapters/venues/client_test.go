package venues_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polywatch/internal/adapters/venues"
	"github.com/alejandrodnm/polywatch/internal/domain"
)

// --- helpers ---

func serve(t *testing.T, venue, path, body string) *venues.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, path, r.URL.Path)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return venues.NewWithBases([]string{venue}, map[string]string{venue: srv.URL})
}

// --- tests ---

func TestClient_EnabledVenues(t *testing.T) {
	assert.Equal(t, []string{"binance", "coinbase", "kraken"}, venues.New(nil).Venues(),
		"lista vacía habilita todos")
	assert.Equal(t, []string{"kraken"}, venues.New([]string{"kraken"}).Venues())
	assert.Empty(t, venues.New([]string{"bogus"}).Venues(), "venues desconocidos se ignoran")
}

func TestClient_UnknownVenue(t *testing.T) {
	_, err := venues.New(nil).FetchTicker(context.Background(), "bogus", "btc")
	require.Error(t, err)
}

func TestClient_FetchBinance(t *testing.T) {
	c := serve(t, "binance", "/api/v3/ticker/24hr",
		`{"lastPrice": "50123.45", "bidPrice": "50120.00", "askPrice": "50125.00", "volume": "1234.5"}`)

	tick, err := c.FetchTicker(context.Background(), "binance", "btc")
	require.NoError(t, err)
	assert.Equal(t, "binance", tick.Venue)
	assert.Equal(t, "btc", tick.Symbol)
	assert.InDelta(t, 50123.45, tick.Price, 1e-9)
	assert.InDelta(t, 50120.00, tick.Bid, 1e-9)
	assert.InDelta(t, 50125.00, tick.Ask, 1e-9)
	assert.InDelta(t, 1234.5, tick.Volume, 1e-9)
	assert.False(t, tick.At.IsZero())
}

func TestClient_FetchCoinbase(t *testing.T) {
	c := serve(t, "coinbase", "/products/ETH-USD/ticker",
		`{"price": "3010.5", "bid": "3010.0", "ask": "3011.0", "volume": "98.7"}`)

	tick, err := c.FetchTicker(context.Background(), "coinbase", "eth")
	require.NoError(t, err)
	assert.Equal(t, "coinbase", tick.Venue)
	assert.InDelta(t, 3010.5, tick.Price, 1e-9)
}

func TestClient_FetchKraken(t *testing.T) {
	// Kraken llama XBT a BTC y anida los campos en arrays
	c := serve(t, "kraken", "/0/public/Ticker",
		`{"error": [], "result": {"XXBTZUSD": {
			"c": ["50100.1", "0.02"],
			"b": ["50099.0", "1", "1.0"],
			"a": ["50101.0", "1", "1.0"],
			"v": ["120.5", "340.9"]
		}}}`)

	tick, err := c.FetchTicker(context.Background(), "kraken", "btc")
	require.NoError(t, err)
	assert.InDelta(t, 50100.1, tick.Price, 1e-9)
	assert.InDelta(t, 50099.0, tick.Bid, 1e-9)
	assert.InDelta(t, 50101.0, tick.Ask, 1e-9)
	assert.InDelta(t, 340.9, tick.Volume, 1e-9, "volumen 24h, no el de hoy")
}

func TestClient_KrakenAPIError(t *testing.T) {
	c := serve(t, "kraken", "/0/public/Ticker",
		`{"error": ["EQuery:Unknown asset pair"], "result": {}}`)

	_, err := c.FetchTicker(context.Background(), "kraken", "btc")
	require.Error(t, err)
	assert.ErrorContains(t, err, "Unknown asset pair")
}

func TestClient_BadPriceIsNoData(t *testing.T) {
	c := serve(t, "binance", "/api/v3/ticker/24hr",
		`{"lastPrice": "0", "bidPrice": "", "askPrice": "", "volume": ""}`)

	_, err := c.FetchTicker(context.Background(), "binance", "btc")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestClient_HTTPErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := venues.NewWithBases([]string{"coinbase"}, map[string]string{"coinbase": srv.URL})

	_, err := c.FetchTicker(context.Background(), "coinbase", "btc")
	require.Error(t, err)
	assert.ErrorContains(t, err, "status 503")
}
