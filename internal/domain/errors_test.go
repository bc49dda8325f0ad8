package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

func TestModuleError_CarriesCodeAndTimestamp(t *testing.T) {
	cause := errors.New("connection refused")
	err := domain.NewModuleError("discovery", "window_fetch_failed", "market lookup for btc-updown-1700000000", cause)

	assert.Equal(t, "discovery", err.Module)
	assert.Equal(t, "window_fetch_failed", err.Code)
	assert.False(t, err.At.IsZero())
	assert.Equal(t, "discovery[window_fetch_failed]: market lookup for btc-updown-1700000000: connection refused", err.Error())
}

func TestModuleError_UnwrapsToSentinel(t *testing.T) {
	err := domain.NewModuleError("verify", "rate_limited_no_cache", "cache stale", domain.ErrRateLimited)

	assert.ErrorIs(t, err, domain.ErrRateLimited)

	var merr *domain.ModuleError
	require.ErrorAs(t, error(err), &merr)
	assert.Equal(t, "rate_limited_no_cache", merr.Code)
}

func TestModuleError_WithoutCause(t *testing.T) {
	err := domain.NewModuleError("invariant", "heartbeat", "last cycle was 90s ago", nil)
	assert.Equal(t, "invariant[heartbeat]: last cycle was 90s ago", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}
