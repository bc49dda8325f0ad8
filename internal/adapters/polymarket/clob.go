package polymarket

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

const bookPath = "/book"

// FetchOrderBook obtiene el orderbook L2 de un token.
// Un book sin niveles no es error: el colector lo trata como "sin datos".
func (c *Client) FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	u := fmt.Sprintf("%s%s?token_id=%s", c.clobBase, bookPath, url.QueryEscape(tokenID))

	var resp orderBookResponse
	if err := c.get(ctx, c.booksLimiter, u, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("clob.FetchOrderBook: %w", err)
	}

	return mapOrderBook(tokenID, resp), nil
}
