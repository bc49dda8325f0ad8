package books_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polywatch/internal/books"
	"github.com/alejandrodnm/polywatch/internal/domain"
)

// --- mocks ---

type mockBookProvider struct {
	mu      sync.Mutex
	books   map[string]domain.OrderBook
	errs    map[string]error
	block   chan struct{} // si no es nil, FetchOrderBook espera aquí
	fetches int
}

func (m *mockBookProvider) FetchOrderBook(_ context.Context, tokenID string) (domain.OrderBook, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if err, ok := m.errs[tokenID]; ok {
		return domain.OrderBook{}, err
	}
	return m.books[tokenID], nil
}

type mockBookStore struct {
	mu    sync.Mutex
	snaps []domain.BookSnapshot
	rows  [][]domain.BookLevelRow
}

func (m *mockBookStore) SaveBookSnapshot(_ context.Context, snap domain.BookSnapshot, levels []domain.BookLevelRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snap)
	m.rows = append(m.rows, levels)
	return nil
}

// --- helpers ---

func window(symbol, up, down string) domain.Window {
	return domain.Window{Symbol: symbol, UpTokenID: up, DownTokenID: down, Active: true}
}

func liquidBook(tokenID string) domain.OrderBook {
	return domain.OrderBook{
		TokenID: tokenID,
		Bids:    []domain.BookLevel{{Price: 0.50, Size: 100}, {Price: 0.48, Size: 50}},
		Asks:    []domain.BookLevel{{Price: 0.52, Size: 80}, {Price: 0.55, Size: 200}},
	}
}

// --- tests ---

func TestCollector_SetTracked_DropsStaleTokens(t *testing.T) {
	provider := &mockBookProvider{books: map[string]domain.OrderBook{
		"u1": liquidBook("u1"),
		"d1": liquidBook("d1"),
	}}
	c := books.New(books.DefaultConfig(), provider, nil)

	c.SetTracked([]domain.Window{window("btc", "u1", "d1")})
	assert.ElementsMatch(t, []string{"u1", "d1"}, c.Tracked())

	c.CollectOnce(context.Background())
	_, ok := c.LatestBook("u1")
	require.True(t, ok)

	// la ventana rota: el token viejo desaparece junto con su book cacheado
	c.SetTracked([]domain.Window{window("btc", "u2", "d2")})
	assert.ElementsMatch(t, []string{"u2", "d2"}, c.Tracked())
	_, ok = c.LatestBook("u1")
	assert.False(t, ok)
}

func TestCollector_CollectOnce_CapturesAndPersists(t *testing.T) {
	provider := &mockBookProvider{books: map[string]domain.OrderBook{
		"u1": liquidBook("u1"),
		"d1": liquidBook("d1"),
	}}
	store := &mockBookStore{}
	c := books.New(books.DefaultConfig(), provider, store)
	c.SetTracked([]domain.Window{window("btc", "u1", "d1")})

	n := c.CollectOnce(context.Background())

	assert.Equal(t, 2, n)
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.snaps, 2)
	snap := store.snaps[0]
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, 0.50, snap.BestBid)
	assert.Equal(t, 0.52, snap.BestAsk)
	require.Len(t, store.rows[0], 4) // 2 niveles por lado
	assert.Equal(t, snap.ID, store.rows[0][0].SnapshotID)
}

func TestCollector_CollectOnce_SkipsEmptyBooks(t *testing.T) {
	provider := &mockBookProvider{books: map[string]domain.OrderBook{
		"u1": {TokenID: "u1"}, // sin niveles: no hay datos
		"d1": liquidBook("d1"),
	}}
	c := books.New(books.DefaultConfig(), provider, nil)
	c.SetTracked([]domain.Window{window("btc", "u1", "d1")})

	n := c.CollectOnce(context.Background())

	assert.Equal(t, 1, n)
	_, ok := c.LatestBook("u1")
	assert.False(t, ok, "un book vacío no reemplaza al cacheado")
}

func TestCollector_CollectOnce_FetchFailureIsolated(t *testing.T) {
	provider := &mockBookProvider{
		books: map[string]domain.OrderBook{"d1": liquidBook("d1")},
		errs:  map[string]error{"u1": errors.New("clob 500")},
	}
	c := books.New(books.DefaultConfig(), provider, nil)
	c.SetTracked([]domain.Window{window("btc", "u1", "d1")})

	n := c.CollectOnce(context.Background())

	assert.Equal(t, 1, n)
	_, ok := c.LatestBook("d1")
	assert.True(t, ok)
}

func TestCollector_OverlappingCycleSkipped(t *testing.T) {
	provider := &mockBookProvider{
		books: map[string]domain.OrderBook{"u1": liquidBook("u1")},
		block: make(chan struct{}),
	}
	c := books.New(books.DefaultConfig(), provider, nil)
	c.SetTracked([]domain.Window{window("btc", "u1", "")})

	done := make(chan int)
	go func() { done <- c.CollectOnce(context.Background()) }()

	// dar tiempo a que el primer ciclo entre y quede bloqueado
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, -1, c.CollectOnce(context.Background()), "un ciclo solapado se salta, no se encola")

	close(provider.block)
	assert.Equal(t, 1, <-done)
}

func TestBuildSnapshot_CapsLevels(t *testing.T) {
	ob := domain.OrderBook{TokenID: "u1"}
	for i := 0; i < 15; i++ {
		ob.Bids = append(ob.Bids, domain.BookLevel{Price: 0.5 - float64(i)*0.01, Size: 10})
		ob.Asks = append(ob.Asks, domain.BookLevel{Price: 0.52 + float64(i)*0.01, Size: 10})
	}

	snap, levels := books.BuildSnapshot(ob, time.Now(), 10)

	assert.Equal(t, 15, snap.BidLevels, "el agregado cuenta todos los niveles")
	assert.Len(t, levels, 20, "pero solo persiste 10 por lado")
	// mejor primero, rank 0
	assert.Equal(t, "bid", levels[0].Side)
	assert.Equal(t, 0, levels[0].Rank)
	assert.Equal(t, 0.5, levels[0].Price)
}
