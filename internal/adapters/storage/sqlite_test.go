package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polywatch/internal/adapters/storage"
	"github.com/alejandrodnm/polywatch/internal/domain"
)

// --- helpers ---

func newTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func tick(venue string, at time.Time) domain.PriceTick {
	return domain.PriceTick{
		Venue:  venue,
		Symbol: "btc",
		Price:  50000,
		Bid:    49990,
		Ask:    50010,
		Volume: 12.5,
		At:     at,
	}
}

func openTrade(id string, openedAt time.Time) domain.SimulatedTrade {
	return domain.SimulatedTrade{
		ID:         id,
		Strategy:   "vwap_contrarian",
		Variation:  "fade_20bps",
		Symbol:     "btc",
		Slug:       "btc-updown-1700000000",
		Side:       domain.SideUp,
		TokenID:    "tok-" + id,
		OpenEpoch:  openedAt.Unix(),
		Shares:     100,
		EntryPrice: 0.50,
		Cost:       50,
		EntryFee:   1,
		OpenedAt:   openedAt,
	}
}

// --- tests ---

func TestSQLiteStorage_TickRetention(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveTicks(ctx, []domain.PriceTick{
		tick("binance", now.Add(-3*time.Hour)),
		tick("coinbase", now.Add(-2*time.Hour)),
		tick("kraken", now.Add(-time.Minute)),
	}))
	require.NoError(t, s.SaveTicks(ctx, nil), "batch vacío es no-op")

	deleted, err := s.DeleteTicksBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	deleted, err = s.DeleteTicksBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted, "segunda pasada no encuentra nada")
}

func TestSQLiteStorage_RecentTicksOrderedAscending(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	older := tick("binance", now.Add(-10*time.Minute))
	older.Price = 49800
	newer := tick("kraken", now.Add(-time.Minute))
	newer.Price = 50200
	eth := tick("binance", now)
	eth.Symbol = "eth"
	require.NoError(t, s.SaveTicks(ctx, []domain.PriceTick{newer, older, eth}))

	got, err := s.RecentTicks(ctx, "btc", now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 2, "solo ticks del símbolo pedido")
	assert.Equal(t, 49800.0, got[0].Price, "ascendente por tiempo")
	assert.Equal(t, 50200.0, got[1].Price)

	got, err = s.RecentTicks(ctx, "btc", now.Add(-time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "binance", got[0].Venue)

	got, err = s.RecentTicks(ctx, "btc", now.Add(-30*time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, got, "corte posterior a todos los ticks")
}

func TestSQLiteStorage_SaveBookSnapshot(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	snap := domain.BookSnapshot{
		ID:           uuid.NewString(),
		TokenID:      "tok-1",
		BestBid:      0.48,
		BestAsk:      0.52,
		Spread:       0.04,
		Mid:          0.50,
		BidDepth5Pct: 1200,
		AskDepth5Pct: 900,
		BidLevels:    2,
		AskLevels:    1,
		At:           now,
	}
	levels := []domain.BookLevelRow{
		{SnapshotID: snap.ID, TokenID: snap.TokenID, Side: "bid", Rank: 0, Price: 0.48, Size: 1000, At: now},
		{SnapshotID: snap.ID, TokenID: snap.TokenID, Side: "bid", Rank: 1, Price: 0.46, Size: 1500, At: now},
		{SnapshotID: snap.ID, TokenID: snap.TokenID, Side: "ask", Rank: 0, Price: 0.52, Size: 1730, At: now},
	}

	require.NoError(t, s.SaveBookSnapshot(ctx, snap, levels))

	// sin filas L2 también vale: solo se inserta el agregado
	snap.ID = uuid.NewString()
	require.NoError(t, s.SaveBookSnapshot(ctx, snap, nil))
}

func TestSQLiteStorage_TradeLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t1 := openTrade("t1", now.Add(-10*time.Minute))
	t2 := openTrade("t2", now.Add(-5*time.Minute))
	require.NoError(t, s.SaveTrade(ctx, t1))
	require.NoError(t, s.SaveTrade(ctx, t2))

	open, err := s.GetOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "t1", open[0].ID, "orden por opened_at ascendente")
	assert.Equal(t, "t2", open[1].ID)
	assert.Equal(t, domain.SideUp, open[0].Side)
	assert.InDelta(t, 50, open[0].Cost, 1e-9)
	assert.True(t, open[0].IsOpen())

	closedAt := now
	t1.ClosedAt = &closedAt
	t1.ExitPrice = 1
	t1.ExitReason = "settlement"
	t1.Realized = 49
	t1.Won = true
	require.NoError(t, s.CloseTrade(ctx, t1))

	open, err = s.GetOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "t2", open[0].ID)

	pnl, n, err := s.RealizedPnLSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 49, pnl, 1e-9)
	assert.Equal(t, 1, n)

	// un corte posterior al cierre no lo cuenta
	pnl, n, err = s.RealizedPnLSince(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, pnl)
	assert.Zero(t, n)
}

func TestSQLiteStorage_CloseTradeRequiresCloseTime(t *testing.T) {
	s := newTestStorage(t)
	tr := openTrade("t1", time.Now().UTC())
	require.NoError(t, s.SaveTrade(context.Background(), tr))

	err := s.CloseTrade(context.Background(), tr)
	require.Error(t, err, "cerrar sin closed_at es un bug del caller")
}

func TestSQLiteStorage_SaveAssertionUpsert(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// pendiente: passed NULL
	require.NoError(t, s.SaveAssertion(ctx, domain.Assertion{Name: "heartbeat", LastRun: now}))

	failed := false
	require.NoError(t, s.SaveAssertion(ctx, domain.Assertion{
		Name:    "heartbeat",
		Passed:  &failed,
		Message: "no watcher cycle recorded yet",
		LastRun: now.Add(30 * time.Second),
	}))

	passed := true
	require.NoError(t, s.SaveAssertion(ctx, domain.Assertion{
		Name:    "heartbeat",
		Passed:  &passed,
		LastRun: now.Add(time.Minute),
	}))
}
