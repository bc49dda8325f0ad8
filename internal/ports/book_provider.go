package ports

import (
	"context"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// BookProvider obtiene el orderbook L2 de un token del CLOB.
type BookProvider interface {
	// FetchOrderBook devuelve el book del token. Un book sin niveles no
	// es error: se devuelve vacío y el caller decide saltarlo.
	FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error)
}
