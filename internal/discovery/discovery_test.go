package discovery_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polywatch/internal/discovery"
	"github.com/alejandrodnm/polywatch/internal/domain"
)

// --- mocks ---

type mockMarkets struct {
	windows map[string]domain.Window // slug → window
	errs    map[string]error
	calls   int
}

func (m *mockMarkets) FetchMarketBySlug(_ context.Context, slug string) (domain.Window, error) {
	m.calls++
	if err, ok := m.errs[slug]; ok {
		return domain.Window{}, err
	}
	w, ok := m.windows[slug]
	if !ok {
		return domain.Window{}, domain.ErrNotFound
	}
	return w, nil
}

// --- helpers ---

func fixedNow() time.Time {
	// 12:05 UTC: a 5 minutos de la apertura de la ventana de las 12:00
	return time.Date(2026, 8, 28, 12, 5, 0, 0, time.UTC)
}

func slugFor(symbol string, now time.Time) string {
	return fmt.Sprintf("%s-up-or-down-%d", symbol, domain.WindowOpenEpoch(now))
}

func newDiscovery(assets []string, markets *mockMarkets) *discovery.Discovery {
	cfg := discovery.DefaultConfig()
	cfg.Assets = assets
	d := discovery.New(cfg, markets)
	d.SetNow(fixedNow)
	return d
}

// --- tests ---

func TestDiscovery_RequiresInit(t *testing.T) {
	d := newDiscovery([]string{"btc"}, &mockMarkets{})

	_, err := d.ActiveWindows(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	_, err = d.FetchWindow(context.Background(), "btc", fixedNow().Unix())
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	d.Init()
	_, err = d.ActiveWindows(context.Background())
	assert.NoError(t, err)
}

func TestDiscovery_FetchFailureCarriesCode(t *testing.T) {
	now := fixedNow()
	slug := slugFor("btc", now)
	markets := &mockMarkets{errs: map[string]error{slug: errors.New("status 502")}}
	d := newDiscovery([]string{"btc"}, markets)
	d.Init()

	_, err := d.FetchWindow(context.Background(), "btc", domain.WindowOpenEpoch(now))
	require.Error(t, err)

	var merr *domain.ModuleError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "discovery", merr.Module)
	assert.Equal(t, "window_fetch_failed", merr.Code)
	assert.Contains(t, merr.Message, slug)
}

func TestDiscovery_ActiveWindows_ParsesStrike(t *testing.T) {
	now := fixedNow()
	slug := slugFor("btc", now)
	markets := &mockMarkets{windows: map[string]domain.Window{
		slug: {
			Slug:     slug,
			Question: "Will BTC be above $94,500 at 12:15 UTC?",
			Active:   true,
		},
	}}

	d := newDiscovery([]string{"btc"}, markets)
	d.Init()

	windows, err := d.ActiveWindows(context.Background())
	require.NoError(t, err)
	require.Len(t, windows, 1)

	w := windows[0]
	assert.Equal(t, "btc", w.Symbol)
	assert.Equal(t, domain.WindowOpenEpoch(now), w.OpenEpoch)
	assert.Equal(t, w.OpenEpoch+900, w.CloseEpoch)
	assert.True(t, w.HasStrike)
	assert.Equal(t, 94500.0, w.Strike)
}

func TestDiscovery_NoStrikeIsNotAnError(t *testing.T) {
	now := fixedNow()
	slug := slugFor("btc", now)
	markets := &mockMarkets{windows: map[string]domain.Window{
		slug: {Slug: slug, Question: "Will BTC go up?", Active: true},
	}}

	d := newDiscovery([]string{"btc"}, markets)
	d.Init()

	windows, err := d.ActiveWindows(context.Background())
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.False(t, windows[0].HasStrike)
}

func TestDiscovery_CacheWithinTTL(t *testing.T) {
	now := fixedNow()
	slug := slugFor("btc", now)
	markets := &mockMarkets{windows: map[string]domain.Window{
		slug: {Slug: slug, Question: "above $100", Active: true},
	}}

	d := newDiscovery([]string{"btc"}, markets)
	d.Init()

	_, err := d.ActiveWindows(context.Background())
	require.NoError(t, err)
	_, err = d.ActiveWindows(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, markets.calls, "la segunda llamada dentro del TTL sirve del cache")
}

func TestDiscovery_CacheExpiresWithTTL(t *testing.T) {
	now := fixedNow()
	slug := slugFor("btc", now)
	markets := &mockMarkets{windows: map[string]domain.Window{
		slug: {Slug: slug, Question: "above $100", Active: true},
	}}

	cfg := discovery.DefaultConfig()
	cfg.Assets = []string{"btc"}
	d := discovery.New(cfg, markets)

	current := now
	d.SetNow(func() time.Time { return current })
	d.Init()

	_, err := d.ActiveWindows(context.Background())
	require.NoError(t, err)

	current = now.Add(6 * time.Second) // TTL por defecto: 5s
	_, err = d.ActiveWindows(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, markets.calls)
}

func TestDiscovery_PerAssetFailureIsolation(t *testing.T) {
	now := fixedNow()
	btcSlug := slugFor("btc", now)
	ethSlug := slugFor("eth", now)
	markets := &mockMarkets{
		windows: map[string]domain.Window{
			btcSlug: {Slug: btcSlug, Question: "above $100", Active: true},
		},
		errs: map[string]error{ethSlug: errors.New("gamma 500")},
	}

	d := newDiscovery([]string{"btc", "eth"}, markets)
	d.Init()

	windows, err := d.ActiveWindows(context.Background())
	require.NoError(t, err, "un asset caído no es error del ciclo")
	require.Len(t, windows, 1)
	assert.Equal(t, "btc", windows[0].Symbol)
}

func TestDiscovery_ShutdownClearsState(t *testing.T) {
	d := newDiscovery([]string{"btc"}, &mockMarkets{})
	d.Init()
	d.Shutdown()

	_, err := d.ActiveWindows(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}
