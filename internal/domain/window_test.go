package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

func TestWindow_Lifecycle(t *testing.T) {
	open := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	w := domain.Window{
		Symbol:     "btc",
		OpenEpoch:  open.Unix(),
		CloseEpoch: open.Add(domain.WindowDuration).Unix(),
		Active:     true,
	}

	mid := open.Add(7 * time.Minute)
	assert.False(t, w.Expired(mid))
	assert.True(t, w.Tradable(mid))
	assert.InDelta(t, 420, w.SecondsSinceOpen(mid), 1e-9)
	assert.Equal(t, 8*time.Minute, w.TimeToClose(mid))

	after := open.Add(16 * time.Minute)
	assert.True(t, w.Expired(after))
	assert.False(t, w.Tradable(after))
}

func TestWindowOpenEpoch_TruncatesToQuarter(t *testing.T) {
	at := time.Date(2026, 8, 28, 12, 7, 33, 0, time.UTC)
	epoch := domain.WindowOpenEpoch(at)

	assert.Equal(t, time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC).Unix(), epoch)
	assert.Zero(t, epoch%900)
}

func TestWindow_TokenIDs(t *testing.T) {
	w := domain.Window{UpTokenID: "u1", DownTokenID: "d1"}
	assert.Equal(t, []string{"u1", "d1"}, w.TokenIDs())

	w = domain.Window{UpTokenID: "u1"}
	assert.Equal(t, []string{"u1"}, w.TokenIDs())
}
