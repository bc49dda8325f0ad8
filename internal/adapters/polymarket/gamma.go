package polymarket

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

const gammaMarketsPath = "/markets"

// FetchMarketBySlug busca un mercado up/down por slug en Gamma y lo
// mapea a domain.Window. Devuelve domain.ErrNotFound si el slug no existe.
func (c *Client) FetchMarketBySlug(ctx context.Context, slug string) (domain.Window, error) {
	u := fmt.Sprintf("%s%s?slug=%s", c.gammaBase, gammaMarketsPath, url.QueryEscape(slug))

	var resp gammaMarketsResponse
	if err := c.get(ctx, c.gammaLimiter, u, &resp); err != nil {
		return domain.Window{}, fmt.Errorf("gamma.FetchMarketBySlug %q: %w", slug, err)
	}

	if len(resp) == 0 {
		return domain.Window{}, fmt.Errorf("gamma.FetchMarketBySlug %q: %w", slug, domain.ErrNotFound)
	}

	w, err := mapGammaWindow(resp[0])
	if err != nil {
		return domain.Window{}, fmt.Errorf("gamma.FetchMarketBySlug %q: %w", slug, err)
	}
	return w, nil
}
