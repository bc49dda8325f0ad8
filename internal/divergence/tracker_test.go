package divergence_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polywatch/internal/divergence"
	"github.com/alejandrodnm/polywatch/internal/domain"
)

func newTracker() *divergence.Tracker {
	return divergence.New(divergence.Config{AlignedPct: 0.0001, BreachPct: 0.003})
}

func TestTracker_SpreadAndDirection(t *testing.T) {
	tr := newTracker()

	// ui 50250 vs oracle 50000 → raw 250, pct 0.5%, UI_LEADING, breach
	sp := tr.UpdatePrice("btc", domain.SourceUI, 50250)
	assert.Nil(t, sp, "sin oracle todavía no hay spread")

	sp = tr.UpdatePrice("btc", domain.SourceOracle, 50000)
	require.NotNil(t, sp)
	assert.InDelta(t, 250, sp.Raw, 1e-9)
	assert.InDelta(t, 0.005, sp.Pct, 1e-9)
	assert.Equal(t, domain.DirectionUILeading, sp.Direction)
	assert.True(t, sp.Breached)
	assert.Equal(t, 1, tr.ActiveBreaches())
}

func TestTracker_AlignedThreshold(t *testing.T) {
	tr := newTracker()

	tr.UpdatePrice("btc", domain.SourceOracle, 50000)
	// 0.005% de diferencia: fuera de aligned (0.01%)... no, dentro no:
	// 2.5 / 50000 = 0.005% < 0.01% → ALIGNED
	sp := tr.UpdatePrice("btc", domain.SourceUI, 50002.5)
	require.NotNil(t, sp)
	assert.Equal(t, domain.DirectionAligned, sp.Direction)
	assert.False(t, sp.Breached)

	// entre aligned y breach: dirección con signo pero sin breach
	sp = tr.UpdatePrice("btc", domain.SourceUI, 49950)
	require.NotNil(t, sp)
	assert.Equal(t, domain.DirectionUILagging, sp.Direction)
	assert.False(t, sp.Breached)
}

func TestTracker_DirectionMonotonic(t *testing.T) {
	tr := newTracker()
	tr.UpdatePrice("btc", domain.SourceOracle, 50000)

	// subiendo |pct| más allá de aligned nunca vuelve a ALIGNED
	for _, ui := range []float64{50010, 50050, 50100, 50200} {
		sp := tr.UpdatePrice("btc", domain.SourceUI, ui)
		require.NotNil(t, sp)
		assert.NotEqual(t, domain.DirectionAligned, sp.Direction, "ui=%v", ui)
	}
	// más allá del breach siempre marca breached
	for _, ui := range []float64{50151, 50300, 51000} {
		sp := tr.UpdatePrice("btc", domain.SourceUI, ui)
		require.NotNil(t, sp)
		assert.True(t, sp.Breached, "ui=%v", ui)
	}
}

func TestTracker_ZeroOracleDoesNotDivide(t *testing.T) {
	tr := newTracker()

	tr.UpdatePrice("btc", domain.SourceUI, 100)
	sp := tr.UpdatePrice("btc", domain.SourceOracle, 0)

	require.NotNil(t, sp)
	assert.InDelta(t, 100, sp.Raw, 1e-9)
	assert.Zero(t, sp.Pct)
}

func TestTracker_RejectsInvalidPrices(t *testing.T) {
	tr := newTracker()
	tr.UpdatePrice("btc", domain.SourceOracle, 50000)
	tr.UpdatePrice("btc", domain.SourceUI, 50000)

	before, ok := tr.Latest("btc")
	require.True(t, ok)

	assert.Nil(t, tr.UpdatePrice("btc", domain.SourceUI, math.NaN()))
	assert.Nil(t, tr.UpdatePrice("btc", domain.SourceUI, math.Inf(1)))
	assert.Nil(t, tr.UpdatePrice("btc", domain.SourceUI, -1))

	// el estado no avanza con un rechazo
	after, ok := tr.Latest("btc")
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestTracker_BreachEventsEdgeTriggered(t *testing.T) {
	tr := newTracker()

	var events []domain.BreachEvent
	tr.SubscribeBreach(func(ev domain.BreachEvent) { events = append(events, ev) })

	tr.UpdatePrice("btc", domain.SourceOracle, 50000)

	// tres updates consecutivos en breach: exactamente un STARTED
	tr.UpdatePrice("btc", domain.SourceUI, 50250)
	tr.UpdatePrice("btc", domain.SourceUI, 50260)
	tr.UpdatePrice("btc", domain.SourceUI, 50270)

	require.Len(t, events, 1)
	assert.Equal(t, domain.BreachStarted, events[0].Kind)
	assert.Equal(t, "btc", events[0].Symbol)

	// salida del breach: exactamente un ENDED con duración
	tr.UpdatePrice("btc", domain.SourceUI, 50001)
	tr.UpdatePrice("btc", domain.SourceUI, 50002)

	require.Len(t, events, 2)
	assert.Equal(t, domain.BreachEnded, events[1].Kind)
	assert.GreaterOrEqual(t, events[1].Duration, events[0].Duration)
	assert.Zero(t, tr.ActiveBreaches())
}

func TestTracker_SubscriberPanicIsolated(t *testing.T) {
	tr := newTracker()

	var called bool
	tr.SubscribeSpread("btc", func(domain.Spread) { panic("boom") })
	tr.SubscribeSpread("btc", func(domain.Spread) { called = true })

	tr.UpdatePrice("btc", domain.SourceOracle, 50000)
	assert.NotPanics(t, func() {
		tr.UpdatePrice("btc", domain.SourceUI, 50100)
	})
	assert.True(t, called, "el panic de un subscriber no debe frenar a los demás")
}

func TestTracker_PerSymbolIsolation(t *testing.T) {
	tr := newTracker()

	tr.UpdatePrice("btc", domain.SourceOracle, 50000)
	tr.UpdatePrice("btc", domain.SourceUI, 50300)
	tr.UpdatePrice("eth", domain.SourceOracle, 3000)
	tr.UpdatePrice("eth", domain.SourceUI, 3000.1)

	btc, ok := tr.Latest("btc")
	require.True(t, ok)
	assert.True(t, btc.Breached)

	eth, ok := tr.Latest("eth")
	require.True(t, ok)
	assert.False(t, eth.Breached)
	assert.Equal(t, 1, tr.ActiveBreaches())
}
