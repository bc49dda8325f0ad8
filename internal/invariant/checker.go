// Package invariant periodically evaluates a fixed, named set of
// runtime assertions over the paper-trading state and reports
// pass/fail. The checker never corrects anything itself: failures are
// logged, persisted, and pushed through an external circuit breaker
// for the owner of that policy to act on.
package invariant

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
	"github.com/alejandrodnm/polywatch/internal/ports"
)

// pnlTolerance absorbs float drift in the balance equation.
const pnlTolerance = 1e-6

// futureSlack tolerates small clock skew when checking window epochs.
const futureSlack = 2 * time.Minute

// Config controls the checker.
type Config struct {
	Interval        time.Duration // base evaluation cadence
	HeartbeatMaxAge time.Duration
	MaxCapital      float64 // cap on total open exposure in USD
	MaxOpenTrades   int
	InitialBankroll float64
	Assets          []string
}

// DefaultConfig returns the checker defaults.
func DefaultConfig() Config {
	return Config{
		Interval:        30 * time.Second,
		HeartbeatMaxAge: 120 * time.Second,
	}
}

// EngineState is the read-only view of the strategy engine the checks
// run against.
type EngineState interface {
	OpenTrades() []domain.SimulatedTrade
	Bankroll() float64
	RealizedPnL() (float64, int)
}

// check is one named invariant with its own cadence.
type check struct {
	name  string
	every time.Duration
	fn    func(now time.Time) (bool, string)
}

// Checker evaluates the assertion set.
type Checker struct {
	cfg     Config
	engine  EngineState
	breaker ports.Breaker          // nil = no breaker wired
	store   ports.AssertionStorage // nil = no persistence
	log     *slog.Logger
	now     func() time.Time
	checks  []check

	mu          sync.Mutex
	assertions  map[string]*domain.Assertion
	lastRun     map[string]time.Time
	lastTickAt  time.Time
	lastTickDur time.Duration
	hasTick     bool
}

// New builds a Checker. breaker and store may be nil.
func New(cfg Config, engine EngineState, breaker ports.Breaker, store ports.AssertionStorage) *Checker {
	c := &Checker{
		cfg:        cfg,
		engine:     engine,
		breaker:    breaker,
		store:      store,
		log:        slog.With("module", "invariant"),
		now:        time.Now,
		assertions: make(map[string]*domain.Assertion),
		lastRun:    make(map[string]time.Time),
	}
	c.checks = c.buildChecks()
	for _, ch := range c.checks {
		// pendiente hasta la primera evaluación
		c.assertions[ch.name] = &domain.Assertion{Name: ch.name}
	}
	return c
}

// buildChecks define el set fijo de invariantes. Los checks baratos
// corren a la cadencia base; los de contabilidad, a la mitad.
func (c *Checker) buildChecks() []check {
	base := c.cfg.Interval
	slow := 2 * base

	return []check{
		{"signal_trade_mapping", base, c.checkSignalMapping},
		{"trade_fill_recorded", base, c.checkFills},
		{"trade_position_link", base, c.checkPositionLink},
		{"position_count_bound", base, c.checkPositionCount},
		{"pnl_balance", slow, c.checkPnLBalance},
		{"trade_ids_present", base, c.checkTradeIDs},
		{"instrument_scope", slow, c.checkInstrumentScope},
		{"no_future_windows", base, c.checkNoFutureWindows},
		{"capital_cap", base, c.checkCapitalCap},
		{"heartbeat", base, c.checkHeartbeat},
	}
}

// RecordTickDuration registra el latido de un ciclo del watcher. El
// check de heartbeat falla si no se llamó recientemente.
func (c *Checker) RecordTickDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTickAt = c.now()
	c.lastTickDur = d
	c.hasTick = true
}

// Run evalúa los checks que toquen a la cadencia base hasta que el
// contexto se cancele.
func (c *Checker) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.RunDue(ctx)
		}
	}
}

// RunDue evalúa los checks cuya cadencia venció y devuelve cuántos
// corrieron.
func (c *Checker) RunDue(ctx context.Context) int {
	now := c.now()
	ran := 0
	for _, ch := range c.checks {
		c.mu.Lock()
		last, seen := c.lastRun[ch.name]
		c.mu.Unlock()
		if seen && now.Sub(last) < ch.every {
			continue
		}
		c.runCheck(ctx, ch, now)
		ran++
	}
	return ran
}

// RunAll evalúa todos los checks ignorando cadencias.
func (c *Checker) RunAll(ctx context.Context) {
	now := c.now()
	for _, ch := range c.checks {
		c.runCheck(ctx, ch, now)
	}
}

func (c *Checker) runCheck(ctx context.Context, ch check, now time.Time) {
	passed, msg := ch.fn(now)

	c.mu.Lock()
	a := c.assertions[ch.name]
	wasFailing := a.Failed()
	p := passed
	a.Passed = &p
	a.Message = msg
	a.LastRun = now
	c.lastRun[ch.name] = now
	snapshot := *a
	c.mu.Unlock()

	if !passed {
		c.log.Error("invariant failed", "name", ch.name, "message", msg)
		c.notifyBreaker(ch.name, msg)
	} else if wasFailing {
		c.log.Info("invariant recovered", "name", ch.name)
	}
	c.persist(ctx, snapshot)
}

// notifyBreaker empuja el fallo por el circuit breaker externo: fallos
// consecutivos lo abren, y es su dueño quien decide la reacción.
func (c *Checker) notifyBreaker(name, msg string) {
	if c.breaker == nil {
		return
	}
	_, _ = c.breaker.Execute(func() (interface{}, error) {
		return nil, domain.NewModuleError("invariant", name, msg, nil)
	})
}

func (c *Checker) persist(ctx context.Context, a domain.Assertion) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveAssertion(ctx, a); err != nil {
		c.log.Error("persisting assertion", "name", a.Name, "error", err)
	}
}

// Snapshot devuelve el estado actual de todas las assertions, en el
// orden fijo del set.
func (c *Checker) Snapshot() []domain.Assertion {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Assertion, 0, len(c.checks))
	for _, ch := range c.checks {
		out = append(out, *c.assertions[ch.name])
	}
	return out
}

// Counts devuelve cuántas assertions están pasando y fallando. Las
// pendientes no cuentan en ninguno de los dos lados.
func (c *Checker) Counts() (passed, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.assertions {
		switch {
		case a.Pending():
		case *a.Passed:
			passed++
		default:
			failed++
		}
	}
	return passed, failed
}

// --- checks ---

func (c *Checker) checkSignalMapping(time.Time) (bool, string) {
	for _, t := range c.engine.OpenTrades() {
		if t.Strategy == "" || t.Variation == "" {
			return false, fmt.Sprintf("trade %s has no originating signal", t.ID)
		}
	}
	return true, ""
}

func (c *Checker) checkFills(time.Time) (bool, string) {
	for _, t := range c.engine.OpenTrades() {
		if t.Shares <= 0 || t.EntryPrice <= 0 || t.EntryPrice > 1 {
			return false, fmt.Sprintf("trade %s has an implausible fill: shares=%.4f entry=%.4f", t.ID, t.Shares, t.EntryPrice)
		}
	}
	return true, ""
}

func (c *Checker) checkPositionLink(time.Time) (bool, string) {
	for _, t := range c.engine.OpenTrades() {
		if t.TokenID == "" {
			return false, fmt.Sprintf("trade %s is not linked to a token position", t.ID)
		}
	}
	return true, ""
}

func (c *Checker) checkPositionCount(time.Time) (bool, string) {
	if c.cfg.MaxOpenTrades <= 0 {
		return true, ""
	}
	n := len(c.engine.OpenTrades())
	if n > c.cfg.MaxOpenTrades {
		return false, fmt.Sprintf("%d open trades exceed the limit of %d", n, c.cfg.MaxOpenTrades)
	}
	return true, ""
}

// checkPnLBalance verifica la ecuación contable del bankroll:
// inicial + realizado − coste abierto (con fees) = bankroll actual.
func (c *Checker) checkPnLBalance(time.Time) (bool, string) {
	if c.cfg.InitialBankroll <= 0 {
		return true, ""
	}
	openCost := 0.0
	for _, t := range c.engine.OpenTrades() {
		openCost += t.Cost + t.EntryFee
	}
	realized, _ := c.engine.RealizedPnL()
	expected := c.cfg.InitialBankroll + realized - openCost
	got := c.engine.Bankroll()
	if math.Abs(expected-got) > pnlTolerance {
		return false, fmt.Sprintf("bankroll %.6f does not balance, expected %.6f", got, expected)
	}
	return true, ""
}

func (c *Checker) checkTradeIDs(time.Time) (bool, string) {
	for _, t := range c.engine.OpenTrades() {
		if t.ID == "" {
			return false, "open trade without id"
		}
	}
	return true, ""
}

func (c *Checker) checkInstrumentScope(time.Time) (bool, string) {
	if len(c.cfg.Assets) == 0 {
		return true, ""
	}
	allowed := make(map[string]bool, len(c.cfg.Assets))
	for _, a := range c.cfg.Assets {
		allowed[a] = true
	}
	for _, t := range c.engine.OpenTrades() {
		if !allowed[t.Symbol] {
			return false, fmt.Sprintf("trade %s is on untracked instrument %q", t.ID, t.Symbol)
		}
	}
	return true, ""
}

func (c *Checker) checkNoFutureWindows(now time.Time) (bool, string) {
	limit := now.Add(futureSlack).Unix()
	for _, t := range c.engine.OpenTrades() {
		if t.OpenEpoch > limit {
			return false, fmt.Sprintf("trade %s belongs to a window opening in the future", t.ID)
		}
	}
	return true, ""
}

func (c *Checker) checkCapitalCap(time.Time) (bool, string) {
	if c.cfg.MaxCapital <= 0 {
		return true, ""
	}
	exposure := 0.0
	for _, t := range c.engine.OpenTrades() {
		exposure += t.Cost
	}
	if exposure > c.cfg.MaxCapital {
		return false, fmt.Sprintf("open exposure %.2f exceeds the capital cap %.2f", exposure, c.cfg.MaxCapital)
	}
	return true, ""
}

func (c *Checker) checkHeartbeat(now time.Time) (bool, string) {
	c.mu.Lock()
	hasTick, at, dur := c.hasTick, c.lastTickAt, c.lastTickDur
	c.mu.Unlock()

	if !hasTick {
		return false, "no watcher cycle recorded yet"
	}
	if age := now.Sub(at); age > c.cfg.HeartbeatMaxAge {
		return false, fmt.Sprintf("last cycle was %s ago (limit %s)", age.Round(time.Second), c.cfg.HeartbeatMaxAge)
	}
	return true, fmt.Sprintf("last cycle took %s", dur.Round(time.Millisecond))
}
