package ports

import (
	"context"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// VenueProvider obtiene tickers spot de los venues de referencia.
// Un error de venue es un fallo transitorio: el caller lo cuenta y
// sigue; nunca debe tumbar el ciclo ni afectar a otros venues.
type VenueProvider interface {
	// Venues devuelve los nombres de los venues soportados.
	Venues() []string

	// FetchTicker devuelve el último ticker de (venue, symbol).
	FetchTicker(ctx context.Context, venue, symbol string) (domain.PriceTick, error)
}
