package ports

import (
	"context"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// MarketProvider resuelve mercados up/down por slug contra el venue de
// predicción (question, token ids, outcome prices, end timestamp).
type MarketProvider interface {
	// FetchMarketBySlug devuelve la ventana del slug dado.
	// Devuelve domain.ErrNotFound si el mercado no existe.
	FetchMarketBySlug(ctx context.Context, slug string) (domain.Window, error)
}
