// Package verify reconciles locally tracked positions against what the
// venue reports for the configured wallet. In paper mode ("live" off)
// no network call is ever made; the check degrades to a fast local
// pass. Rate-limited responses fall back to a short-lived cache instead
// of failing the check outright.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
	"github.com/alejandrodnm/polywatch/internal/ports"
)

// sizeTolerance absorbs venue rounding when comparing share counts.
const sizeTolerance = 1e-6

// Config controls the verifier.
type Config struct {
	Live         bool
	Address      string
	Timeout      time.Duration
	CacheTTL     time.Duration
	FailOnOrphan bool
}

// DefaultConfig returns the verifier defaults: paper mode, 5s fetch
// timeout and a 30s cache window for rate-limited retries.
func DefaultConfig() Config {
	return Config{
		Timeout:  5 * time.Second,
		CacheTTL: 30 * time.Second,
	}
}

// Verifier compares local open positions against the venue's view.
type Verifier struct {
	cfg      Config
	provider ports.PositionsProvider
	log      *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	cached    []domain.VenuePosition
	cachedAt  time.Time
	hasCached bool
}

// New builds a Verifier. provider may be nil when cfg.Live is false.
func New(cfg Config, provider ports.PositionsProvider) *Verifier {
	return &Verifier{
		cfg:      cfg,
		provider: provider,
		log:      slog.With("module", "verify"),
		now:      time.Now,
	}
}

// Verify reconciles the given local positions against the venue.
//
// Two fast paths avoid network entirely: non-live mode always passes,
// and an empty local set passes without a fetch (nothing to
// reconcile). Otherwise venue positions are fetched under
// the configured timeout; a rate-limited response reuses the cache when
// fresh enough and fails distinguishably when it is not.
func (v *Verifier) Verify(ctx context.Context, local []domain.Position) (domain.VerificationResult, error) {
	now := v.now()

	if !v.cfg.Live {
		return domain.VerificationResult{Verified: true, CheckedAt: now}, nil
	}
	if len(local) == 0 {
		return domain.VerificationResult{Verified: true, CheckedAt: now}, nil
	}

	remote, fromCache, err := v.fetch(ctx, now)
	if err != nil {
		return domain.VerificationResult{CheckedAt: now}, err
	}

	res := diff(local, remote, v.cfg.FailOnOrphan)
	res.FromCache = fromCache
	res.CheckedAt = now

	if !res.Verified {
		v.log.Warn("position mismatch",
			"missing", len(res.Missing), "orphans", len(res.Orphans),
			"from_cache", fromCache)
	}
	return res, nil
}

// fetch obtiene las posiciones del venue, sirviendo desde cache cuando
// la API devuelve rate limit y el cache sigue fresco.
func (v *Verifier) fetch(ctx context.Context, now time.Time) ([]domain.VenuePosition, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	remote, err := v.provider.FetchPositions(ctx, v.cfg.Address)
	if err == nil {
		v.mu.Lock()
		v.cached = remote
		v.cachedAt = now
		v.hasCached = true
		v.mu.Unlock()
		return remote, false, nil
	}

	if errors.Is(err, domain.ErrRateLimited) {
		v.mu.Lock()
		fresh := v.hasCached && now.Sub(v.cachedAt) <= v.cfg.CacheTTL
		cached := v.cached
		v.mu.Unlock()

		if fresh {
			v.log.Warn("rate limited, serving cached positions",
				"age", now.Sub(v.cachedAt).Round(time.Millisecond))
			return cached, true, nil
		}
		return nil, false, domain.NewModuleError("verify", "rate_limited_no_cache", "positions fetch rate limited and cache stale", err)
	}
	return nil, false, fmt.Errorf("verify.fetch: %w", err)
}

// diff compara ambos lados por token id. Una posición del venue sin
// contraparte local es "missing" y falla siempre; una local sin
// contraparte en el venue es "orphan" y solo falla bajo failOnOrphan.
func diff(local []domain.Position, remote []domain.VenuePosition, failOnOrphan bool) domain.VerificationResult {
	localByToken := make(map[string]domain.Position, len(local))
	for _, p := range local {
		localByToken[p.TokenID] = p
	}
	remoteByToken := make(map[string]domain.VenuePosition, len(remote))
	for _, p := range remote {
		remoteByToken[p.TokenID] = p
	}

	var res domain.VerificationResult
	for _, rp := range remote {
		if rp.Size <= sizeTolerance {
			continue
		}
		lp, ok := localByToken[rp.TokenID]
		if !ok || math.Abs(lp.Size-rp.Size) > sizeTolerance {
			res.Missing = append(res.Missing, rp)
		}
	}
	for _, lp := range local {
		if _, ok := remoteByToken[lp.TokenID]; !ok {
			res.Orphans = append(res.Orphans, lp)
		}
	}

	res.Verified = len(res.Missing) == 0 && (!failOnOrphan || len(res.Orphans) == 0)
	return res
}
