package polymarket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

const positionsPath = "/positions"

// FetchPositions devuelve las posiciones de la address según el data-api.
// A diferencia de gamma/clob NO reintenta en 429: el verificador necesita
// distinguir el rate limit para aplicar su política de cache fallback,
// así que el 429 se devuelve como domain.ErrRateLimited sin tocar.
func (c *Client) FetchPositions(ctx context.Context, address string) ([]domain.VenuePosition, error) {
	if err := c.dataLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("data.FetchPositions: rate limiter: %w", err)
	}

	u := fmt.Sprintf("%s%s?user=%s", c.dataBase, positionsPath, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("data.FetchPositions: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("data.FetchPositions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("data.FetchPositions: %w", domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("data.FetchPositions: status %d", resp.StatusCode)
	}

	var raw []dataPosition
	if err := decodeJSON(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("data.FetchPositions: decode: %w", err)
	}

	out := make([]domain.VenuePosition, 0, len(raw))
	for _, p := range raw {
		out = append(out, domain.VenuePosition{TokenID: p.Asset, Size: p.Size})
	}
	return out, nil
}
