package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// TickStorage persiste ticks de precio en batches.
type TickStorage interface {
	// SaveTicks inserta el batch en una sola sentencia multi-fila.
	SaveTicks(ctx context.Context, ticks []domain.PriceTick) error

	// DeleteTicksBefore borra ticks anteriores al corte. Devuelve filas borradas.
	DeleteTicksBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// RecentTicks devuelve los ticks del símbolo desde el corte,
	// ascendentes por tiempo, hasta limit filas.
	RecentTicks(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.PriceTick, error)
}

// BookStorage persiste snapshots agregados y sus filas L2.
type BookStorage interface {
	// SaveBookSnapshot inserta el snapshot y hasta 10 niveles por lado,
	// enlazados por snapshot id. Best effort: no atómico entre filas.
	SaveBookSnapshot(ctx context.Context, snap domain.BookSnapshot, levels []domain.BookLevelRow) error
}

// TradeStorage persiste trades simulados y su ciclo de vida.
type TradeStorage interface {
	SaveTrade(ctx context.Context, trade domain.SimulatedTrade) error
	CloseTrade(ctx context.Context, trade domain.SimulatedTrade) error
	GetOpenTrades(ctx context.Context) ([]domain.SimulatedTrade, error)
	RealizedPnLSince(ctx context.Context, since time.Time) (float64, int, error)
}

// AssertionStorage persiste el último estado de cada invariante.
type AssertionStorage interface {
	SaveAssertion(ctx context.Context, a domain.Assertion) error
}

// Storage agrupa toda la persistencia del watcher.
type Storage interface {
	TickStorage
	BookStorage
	TradeStorage
	AssertionStorage

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
