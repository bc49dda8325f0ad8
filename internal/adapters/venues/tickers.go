package venues

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// Per-venue symbol mapping for the assets the watcher tracks. Unknown
// symbols fall through to a best-effort uppercase conversion.

func binancePair(symbol string) string {
	return strings.ToUpper(symbol) + "USDT"
}

func coinbaseProduct(symbol string) string {
	return strings.ToUpper(symbol) + "-USD"
}

func krakenPair(symbol string) string {
	// Kraken names BTC "XBT" in its pair codes.
	s := strings.ToUpper(symbol)
	if s == "BTC" {
		s = "XBT"
	}
	return s + "USD"
}

type binanceTicker struct {
	LastPrice string `json:"lastPrice"`
	BidPrice  string `json:"bidPrice"`
	AskPrice  string `json:"askPrice"`
	Volume    string `json:"volume"`
}

func (c *Client) fetchBinance(ctx context.Context, symbol string) (domain.PriceTick, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", c.bases["binance"], binancePair(symbol))

	var raw binanceTicker
	if err := c.getJSON(ctx, url, &raw); err != nil {
		return domain.PriceTick{}, fmt.Errorf("venues.binance %s: %w", symbol, err)
	}

	return makeTick("binance", symbol, raw.LastPrice, raw.BidPrice, raw.AskPrice, raw.Volume)
}

type coinbaseTicker struct {
	Price  string `json:"price"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
	Volume string `json:"volume"`
}

func (c *Client) fetchCoinbase(ctx context.Context, symbol string) (domain.PriceTick, error) {
	url := fmt.Sprintf("%s/products/%s/ticker", c.bases["coinbase"], coinbaseProduct(symbol))

	var raw coinbaseTicker
	if err := c.getJSON(ctx, url, &raw); err != nil {
		return domain.PriceTick{}, fmt.Errorf("venues.coinbase %s: %w", symbol, err)
	}

	return makeTick("coinbase", symbol, raw.Price, raw.Bid, raw.Ask, raw.Volume)
}

type krakenResponse struct {
	Error  []string                `json:"error"`
	Result map[string]krakenTicker `json:"result"`
}

// krakenTicker: c = last trade [price, volume], b/a = [price, wholeLotVol,
// lotVol], v = volume [today, 24h].
type krakenTicker struct {
	C []string `json:"c"`
	B []string `json:"b"`
	A []string `json:"a"`
	V []string `json:"v"`
}

func (c *Client) fetchKraken(ctx context.Context, symbol string) (domain.PriceTick, error) {
	url := fmt.Sprintf("%s/0/public/Ticker?pair=%s", c.bases["kraken"], krakenPair(symbol))

	var raw krakenResponse
	if err := c.getJSON(ctx, url, &raw); err != nil {
		return domain.PriceTick{}, fmt.Errorf("venues.kraken %s: %w", symbol, err)
	}
	if len(raw.Error) > 0 {
		return domain.PriceTick{}, fmt.Errorf("venues.kraken %s: %s", symbol, strings.Join(raw.Error, "; "))
	}

	// Kraken keys the result by its internal pair name; take the first entry.
	for _, t := range raw.Result {
		return makeTick("kraken", symbol,
			first(t.C), first(t.B), first(t.A), second(t.V))
	}
	return domain.PriceTick{}, fmt.Errorf("venues.kraken %s: %w", symbol, domain.ErrNoData)
}

// makeTick parses the raw string fields into a PriceTick. A missing or
// zero last price is treated as no data; bid/ask/volume are optional.
func makeTick(venue, symbol, price, bid, ask, volume string) (domain.PriceTick, error) {
	p, err := strconv.ParseFloat(price, 64)
	if err != nil || p <= 0 {
		return domain.PriceTick{}, fmt.Errorf("venues.%s %s: bad price %q: %w", venue, symbol, price, domain.ErrNoData)
	}

	tick := domain.PriceTick{
		Venue:  venue,
		Symbol: symbol,
		Price:  p,
		At:     time.Now().UTC(),
	}
	if v, err := strconv.ParseFloat(bid, 64); err == nil {
		tick.Bid = v
	}
	if v, err := strconv.ParseFloat(ask, 64); err == nil {
		tick.Ask = v
	}
	if v, err := strconv.ParseFloat(volume, 64); err == nil {
		tick.Volume = v
	}
	return tick, nil
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func second(ss []string) string {
	if len(ss) < 2 {
		return first(ss)
	}
	return ss[1]
}
