package discovery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polywatch/internal/discovery"
)

func TestParseReferencePrice(t *testing.T) {
	cases := []struct {
		name     string
		question string
		want     float64
		ok       bool
	}{
		{"above con comas", "Will BTC be above $94,500 at 12:15 UTC?", 94500, true},
		{"above sin dólar", "Will ETH close above 3200 today?", 3200, true},
		{"above case insensitive", "BTC ABOVE $50,000?", 50000, true},
		{"mayor que", "Bitcoin > $101,250.50 by close?", 101250.50, true},
		{"over", "Will BTC stay over $88,000?", 88000, true},
		{"solo dólar", "BTC hits $120,000 this window", 120000, true},
		{"decimal", "above $0.75 by settlement", 0.75, true},
		{"sin precio", "Will BTC go up?", 0, false},
		{"vacío", "", 0, false},
		{"dólar sin número", "the $ sign alone", 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := discovery.ParseReferencePrice(tc.question)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.InDelta(t, tc.want, got, 1e-9)
			}
		})
	}
}

func TestParseReferencePrice_FirstPatternWins(t *testing.T) {
	// "above" gana sobre el patrón laxo de "$" aunque ambos matcheen
	got, ok := discovery.ParseReferencePrice("above $100 or maybe $999")
	require.True(t, ok)
	assert.Equal(t, 100.0, got)
}
