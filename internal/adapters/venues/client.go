// Package venues implements ports.VenueProvider against the public REST
// tickers of the reference price venues. Each venue gets its own token
// bucket; a venue failure is returned to the caller as a plain error and
// never affects another venue's fetch.
package venues

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultBinanceBase  = "https://api.binance.com"
	defaultCoinbaseBase = "https://api.exchange.coinbase.com"
	defaultKrakenBase   = "https://api.kraken.com"

	// Public ticker endpoints are generous; 5/s per venue is far under
	// every documented limit while still supporting the 1s cadence.
	perVenueRatePerSec = 5
)

var supportedVenues = []string{"binance", "coinbase", "kraken"}

// Client fetches spot tickers from the supported venues.
type Client struct {
	http     *http.Client
	enabled  []string
	bases    map[string]string
	limiters map[string]*rate.Limiter
}

// New creates a Client with production base URLs, restricted to the
// enabled venues. An empty list enables all supported venues.
func New(enabled []string) *Client {
	return NewWithBases(enabled, nil)
}

// NewWithBases creates a Client overriding base URLs per venue (tests).
func NewWithBases(enabled []string, overrides map[string]string) *Client {
	bases := map[string]string{
		"binance":  defaultBinanceBase,
		"coinbase": defaultCoinbaseBase,
		"kraken":   defaultKrakenBase,
	}
	for venue, base := range overrides {
		bases[venue] = base
	}

	limiters := make(map[string]*rate.Limiter, len(supportedVenues))
	for _, v := range supportedVenues {
		limiters[v] = rate.NewLimiter(perVenueRatePerSec, 2)
	}

	use := make([]string, 0, len(supportedVenues))
	for _, v := range supportedVenues {
		if len(enabled) == 0 || slices.Contains(enabled, v) {
			use = append(use, v)
		}
	}

	return &Client{
		http:     &http.Client{Timeout: 5 * time.Second},
		enabled:  use,
		bases:    bases,
		limiters: limiters,
	}
}

// Venues returns the enabled venue names.
func (c *Client) Venues() []string {
	out := make([]string, len(c.enabled))
	copy(out, c.enabled)
	return out
}

// FetchTicker returns the latest observation of (venue, symbol).
func (c *Client) FetchTicker(ctx context.Context, venue, symbol string) (domain.PriceTick, error) {
	limiter, ok := c.limiters[venue]
	if !ok {
		return domain.PriceTick{}, fmt.Errorf("venues.FetchTicker: unknown venue %q", venue)
	}
	if err := limiter.Wait(ctx); err != nil {
		return domain.PriceTick{}, fmt.Errorf("venues.FetchTicker: rate limiter: %w", err)
	}

	switch venue {
	case "binance":
		return c.fetchBinance(ctx, symbol)
	case "coinbase":
		return c.fetchCoinbase(ctx, symbol)
	case "kraken":
		return c.fetchKraken(ctx, symbol)
	default:
		return domain.PriceTick{}, fmt.Errorf("venues.FetchTicker: unknown venue %q", venue)
	}
}

// getJSON issues a GET and decodes the JSON body, failing on non-2xx.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
