package ports

import (
	"context"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// PositionsProvider obtiene las posiciones de una address según el venue.
type PositionsProvider interface {
	// FetchPositions devuelve las posiciones reportadas por el venue.
	// Devuelve domain.ErrRateLimited (wrapped) ante un 429.
	FetchPositions(ctx context.Context, address string) ([]domain.VenuePosition, error)
}
