package divergence

// tracker.go — divergencia entre el precio implícito del mercado (ui)
// y el precio de referencia multi-venue (oracle), por asset.
//
// Dos umbrales independientes: aligned (estrecho) decide la dirección
// ALIGNED; breach (ancho) gatea los eventos de breach. Los eventos son
// edge-triggered: STARTED solo al entrar, ENDED solo al salir con la
// duración del breach. Jamás se emiten duplicados dentro de un breach.

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// Config contiene los umbrales del tracker.
type Config struct {
	AlignedPct float64 // por debajo (abs): ALIGNED sin importar signo
	BreachPct  float64 // por encima (abs): breach
}

// DefaultConfig devuelve los umbrales de producción: 0.01% y 0.3%.
func DefaultConfig() Config {
	return Config{AlignedPct: 0.0001, BreachPct: 0.003}
}

// assetState es el único estado mutable de larga vida del tracker.
// Disciplina single-writer: cada update de un símbolo se aplica completo
// bajo el lock, en orden de llegada.
type assetState struct {
	ui, oracle       float64
	hasUI, hasOracle bool
	last             domain.Spread
	breached         bool
	breachStartedAt  time.Time
	spreadAtBreach   float64
	rejects          int // solo para rate-limit del warn de rechazo
}

// Tracker mantiene el estado de divergencia por asset y notifica
// subscribers de spread (por símbolo) y de breach (globales).
type Tracker struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu         sync.Mutex
	states     map[string]*assetState
	spreadSubs map[string][]func(domain.Spread)
	breachSubs []func(domain.BreachEvent)
}

// New crea un Tracker con los umbrales dados.
func New(cfg Config) *Tracker {
	if cfg.AlignedPct <= 0 {
		cfg.AlignedPct = 0.0001
	}
	if cfg.BreachPct <= 0 {
		cfg.BreachPct = 0.003
	}
	return &Tracker{
		cfg:        cfg,
		log:        slog.With("module", "divergence"),
		now:        time.Now,
		states:     make(map[string]*assetState),
		spreadSubs: make(map[string][]func(domain.Spread)),
	}
}

// SubscribeSpread registra un callback para cada spread recalculado del símbolo.
func (t *Tracker) SubscribeSpread(symbol string, fn func(domain.Spread)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spreadSubs[symbol] = append(t.spreadSubs[symbol], fn)
}

// SubscribeBreach registra un callback global para eventos de breach.
func (t *Tracker) SubscribeBreach(fn func(domain.BreachEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.breachSubs = append(t.breachSubs, fn)
}

// Latest devuelve el último spread calculado del símbolo.
func (t *Tracker) Latest(symbol string) (domain.Spread, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[symbol]
	if !ok || (!st.hasUI || !st.hasOracle) {
		return domain.Spread{}, false
	}
	return st.last, true
}

// ActiveBreaches devuelve cuántos símbolos están actualmente en breach.
func (t *Tracker) ActiveBreaches() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, st := range t.states {
		if st.breached {
			n++
		}
	}
	return n
}

// UpdatePrice aplica un precio nuevo de una fuente y recalcula el spread
// si ambas fuentes tienen valor. Devuelve nil si el precio se rechaza o
// si aún falta la otra fuente. Los precios no finitos o negativos se
// rechazan en el borde sin tocar el estado.
func (t *Tracker) UpdatePrice(symbol string, source domain.PriceSource, price float64) *domain.Spread {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		t.warnReject(symbol, source, price)
		return nil
	}

	t.mu.Lock()
	st, ok := t.states[symbol]
	if !ok {
		st = &assetState{}
		t.states[symbol] = st
	}
	st.rejects = 0

	switch source {
	case domain.SourceUI:
		st.ui, st.hasUI = price, true
	case domain.SourceOracle:
		st.oracle, st.hasOracle = price, true
	default:
		t.mu.Unlock()
		t.log.Warn("unknown price source", "symbol", symbol, "source", string(source))
		return nil
	}

	if !st.hasUI || !st.hasOracle {
		t.mu.Unlock()
		return nil
	}

	now := t.now().UTC()
	spread := t.computeSpread(symbol, st, now)
	events := t.transition(st, spread, now)
	st.last = spread

	subs := append([]func(domain.Spread){}, t.spreadSubs[symbol]...)
	breachSubs := append([]func(domain.BreachEvent){}, t.breachSubs...)
	t.mu.Unlock()

	for _, fn := range subs {
		t.invokeSpread(fn, spread)
	}
	for _, ev := range events {
		for _, fn := range breachSubs {
			t.invokeBreach(fn, ev)
		}
	}

	return &spread
}

// computeSpread calcula raw, pct y dirección con los dos umbrales.
// pct es exactamente 0 cuando oracle es 0 (sin división por cero).
func (t *Tracker) computeSpread(symbol string, st *assetState, now time.Time) domain.Spread {
	raw := st.ui - st.oracle
	pct := 0.0
	if st.oracle != 0 {
		pct = raw / st.oracle
	}

	dir := domain.DirectionAligned
	if math.Abs(pct) >= t.cfg.AlignedPct {
		if raw > 0 {
			dir = domain.DirectionUILeading
		} else {
			dir = domain.DirectionUILagging
		}
	}

	return domain.Spread{
		Symbol:      symbol,
		UIPrice:     st.ui,
		OraclePrice: st.oracle,
		Raw:         raw,
		Pct:         pct,
		Direction:   dir,
		Breached:    math.Abs(pct) >= t.cfg.BreachPct,
		At:          now,
	}
}

// transition aplica la transición de breach edge-triggered y devuelve
// los eventos a emitir (0 o 1).
func (t *Tracker) transition(st *assetState, spread domain.Spread, now time.Time) []domain.BreachEvent {
	switch {
	case spread.Breached && !st.breached:
		st.breached = true
		st.breachStartedAt = now
		st.spreadAtBreach = spread.Pct
		t.log.Warn("divergence breach STARTED",
			"symbol", spread.Symbol,
			"pct", spread.Pct,
			"ui", spread.UIPrice,
			"oracle", spread.OraclePrice,
		)
		return []domain.BreachEvent{{
			Symbol:        spread.Symbol,
			Kind:          domain.BreachStarted,
			Spread:        spread,
			StartedAt:     now,
			SpreadAtStart: spread.Pct,
		}}

	case !spread.Breached && st.breached:
		st.breached = false
		dur := now.Sub(st.breachStartedAt)
		t.log.Info("divergence breach ENDED",
			"symbol", spread.Symbol,
			"duration", dur.Round(time.Millisecond),
		)
		return []domain.BreachEvent{{
			Symbol:        spread.Symbol,
			Kind:          domain.BreachEnded,
			Spread:        spread,
			StartedAt:     st.breachStartedAt,
			SpreadAtStart: st.spreadAtBreach,
			Duration:      dur,
		}}
	}
	return nil
}

// invokeSpread llama al subscriber aislando panics: un subscriber que
// explota no impide que corran los demás.
func (t *Tracker) invokeSpread(fn func(domain.Spread), s domain.Spread) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("spread subscriber panicked", "symbol", s.Symbol, "panic", r)
		}
	}()
	fn(s)
}

func (t *Tracker) invokeBreach(fn func(domain.BreachEvent), ev domain.BreachEvent) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("breach subscriber panicked", "symbol", ev.Symbol, "panic", r)
		}
	}()
	fn(ev)
}

// warnReject loguea el rechazo con rate limit por símbolo.
func (t *Tracker) warnReject(symbol string, source domain.PriceSource, price float64) {
	t.mu.Lock()
	st, ok := t.states[symbol]
	if !ok {
		st = &assetState{}
		t.states[symbol] = st
	}
	st.rejects++
	n := st.rejects
	t.mu.Unlock()

	if n <= 3 || n%60 == 0 {
		t.log.Warn("invalid price rejected",
			"symbol", symbol, "source", string(source), "price", price, "consecutive", n)
	}
}
