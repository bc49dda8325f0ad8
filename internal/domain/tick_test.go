package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

func TestComposite_BetweenVenuePrices(t *testing.T) {
	now := time.Now()
	ticks := []domain.PriceTick{
		{Venue: "binance", Symbol: "btc", Price: 50100, Volume: 1200},
		{Venue: "coinbase", Symbol: "btc", Price: 50080, Volume: 800},
	}

	snap, ok := domain.Composite("btc", ticks, now)

	require.True(t, ok)
	assert.Equal(t, 2, snap.VenueCount)
	assert.GreaterOrEqual(t, snap.Price, 50080.0)
	assert.LessOrEqual(t, snap.Price, 50100.0)
	// ponderado por volumen: más cerca del venue con más volumen
	assert.Greater(t, snap.Price, (50100.0+50080.0)/2)
}

func TestComposite_FallsBackToMeanWithoutVolume(t *testing.T) {
	ticks := []domain.PriceTick{
		{Venue: "binance", Symbol: "btc", Price: 100},
		{Venue: "kraken", Symbol: "btc", Price: 200},
	}

	snap, ok := domain.Composite("btc", ticks, time.Now())

	require.True(t, ok)
	assert.InDelta(t, 150, snap.Price, 1e-9)
	assert.Zero(t, snap.TotalVolume)
}

func TestComposite_IgnoresOtherSymbolsAndBadPrices(t *testing.T) {
	ticks := []domain.PriceTick{
		{Venue: "binance", Symbol: "eth", Price: 3000, Volume: 10},
		{Venue: "kraken", Symbol: "btc", Price: 0},
		{Venue: "coinbase", Symbol: "btc", Price: 50000, Volume: 5},
	}

	snap, ok := domain.Composite("btc", ticks, time.Now())

	require.True(t, ok)
	assert.Equal(t, 1, snap.VenueCount)
	assert.Equal(t, 50000.0, snap.Price)
}

func TestComposite_NoValidTicks(t *testing.T) {
	_, ok := domain.Composite("btc", nil, time.Now())
	assert.False(t, ok)

	_, ok = domain.Composite("btc", []domain.PriceTick{{Symbol: "btc", Price: -1}}, time.Now())
	assert.False(t, ok)
}
