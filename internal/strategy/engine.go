package strategy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polywatch/internal/domain"
	"github.com/alejandrodnm/polywatch/internal/ports"
)

// CompositeSource entrega el último composite por símbolo.
type CompositeSource interface {
	Latest(symbol string) (domain.CompositeSnapshot, bool)
}

// BookSource entrega el último libro capturado por token.
type BookSource interface {
	LatestBook(tokenID string) (domain.OrderBook, bool)
}

// SpreadSource entrega el último spread UI/oracle por símbolo.
type SpreadSource interface {
	Latest(symbol string) (domain.Spread, bool)
}

// Config del motor de evaluación y simulación.
type Config struct {
	SignalOffset  time.Duration // tiempo tras abrir la ventana antes de evaluar
	OrderSize     float64       // tamaño de orden en USD
	FeeRate       float64       // fee proporcional aplicado a entrada y salida
	Bankroll      float64       // capital inicial de papel
	MaxOpenTrades int
	StopLossPct   float64 // salida temprana cuando el mark cae este % bajo la entrada
}

// DefaultConfig son los parámetros por defecto del motor.
func DefaultConfig() Config {
	return Config{
		SignalOffset:  5 * time.Minute,
		OrderSize:     50,
		FeeRate:       0.02,
		Bankroll:      1000,
		MaxOpenTrades: 3,
		StopLossPct:   0.5,
	}
}

// windowMeta retiene lo que el settlement necesita de una ventana una
// vez que ya no aparece en el listado de activas.
type windowMeta struct {
	strike    float64
	hasStrike bool
	symbol    string
	upToken   string
	downToken string
}

// CycleResult resume un ciclo de evaluación.
type CycleResult struct {
	Evaluated int // ventanas evaluadas
	Fired     int // trades abiertos
	Settled   int // trades liquidados en resolución
	Exited    int // salidas tempranas
}

// Engine itera el registro de estrategias sobre las ventanas activas,
// simula fills contra la profundidad capturada y mantiene las
// posiciones de papel y el bankroll. Todos los trades son simulados;
// nunca se envía una orden real.
type Engine struct {
	cfg        Config
	registry   *Registry
	composites CompositeSource
	books      BookSource
	spreads    SpreadSource
	store      ports.TradeStorage // nil = no persiste
	ticks      ports.TickStorage  // nil = sin backfill de apertura
	log        *slog.Logger
	now        func() time.Time

	mu         sync.Mutex
	open       map[string]*domain.SimulatedTrade // id → trade abierto
	fired      map[string]bool                   // strategy|variation|slug
	openPrices map[string]float64                // slug → composite al abrir
	meta       map[string]windowMeta             // slug → datos para settlement
	bankroll   float64
	realized   float64
	closed     int
}

// New construye el motor. store puede ser nil para correr sin persistencia.
func New(cfg Config, registry *Registry, composites CompositeSource, books BookSource, spreads SpreadSource, store ports.TradeStorage) *Engine {
	return &Engine{
		cfg:        cfg,
		registry:   registry,
		composites: composites,
		books:      books,
		spreads:    spreads,
		store:      store,
		log:        slog.With("module", "strategy"),
		now:        time.Now,
		open:       make(map[string]*domain.SimulatedTrade),
		fired:      make(map[string]bool),
		openPrices: make(map[string]float64),
		meta:       make(map[string]windowMeta),
		bankroll:   cfg.Bankroll,
	}
}

// UseTickHistory habilita la reconstrucción del composite de apertura
// desde el histórico de ticks persistido. Sin él, una ventana vista por
// primera vez a media vida tomaría el composite vivo como apertura.
func (e *Engine) UseTickHistory(store ports.TickStorage) {
	e.ticks = store
}

// OpenTrades devuelve una copia de los trades abiertos.
func (e *Engine) OpenTrades() []domain.SimulatedTrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.SimulatedTrade, 0, len(e.open))
	for _, t := range e.open {
		out = append(out, *t)
	}
	return out
}

// Bankroll devuelve el capital de papel actual.
func (e *Engine) Bankroll() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bankroll
}

// RealizedPnL devuelve el pnl realizado acumulado y el número de
// trades cerrados desde el arranque.
func (e *Engine) RealizedPnL() (float64, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.realized, e.closed
}

// EvaluateCycle es un paso completo del motor: liquida ventanas
// expiradas, aplica la salida temprana, y evalúa el registro de
// estrategias sobre cada ventana tradeable.
func (e *Engine) EvaluateCycle(ctx context.Context, windows []domain.Window) CycleResult {
	now := e.now()
	var res CycleResult

	e.rememberWindows(ctx, windows, now)
	res.Settled = e.settleExpired(ctx, now)
	res.Exited = e.earlyExits(ctx, now)

	for _, w := range windows {
		if !w.Tradable(now) {
			continue
		}
		ec := e.buildContext(w, now)
		if !withinWindow(ec, e.cfg.SignalOffset) {
			continue
		}
		res.Evaluated++
		res.Fired += e.evaluateWindow(ctx, ec)
	}
	return res
}

// rememberWindows retiene el strike y el primer composite observado de
// cada ventana, y poda el estado de ventanas ya resueltas.
func (e *Engine) rememberWindows(ctx context.Context, windows []domain.Window, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := make(map[string]bool, len(windows))
	for _, w := range windows {
		active[w.Slug] = true
		e.meta[w.Slug] = windowMeta{
			strike:    w.Strike,
			hasStrike: w.HasStrike,
			symbol:    w.Symbol,
			upToken:   w.UpTokenID,
			downToken: w.DownTokenID,
		}

		if _, ok := e.openPrices[w.Slug]; !ok {
			if p, ok := e.openComposite(ctx, w, now); ok {
				e.openPrices[w.Slug] = p
			}
		}
	}

	// poda: slugs sin ventana activa ni trade abierto
	inUse := make(map[string]bool, len(e.open))
	for _, t := range e.open {
		inUse[t.Slug] = true
	}
	for slug := range e.meta {
		if !active[slug] && !inUse[slug] {
			delete(e.meta, slug)
			delete(e.openPrices, slug)
		}
	}
	for key := range e.fired {
		slug := firedSlug(key)
		if slug != "" && !active[slug] && !inUse[slug] {
			delete(e.fired, key)
		}
	}
}

// Ventanas vistas por primera vez pasado este margen se consideran en
// curso y su apertura se reconstruye desde el histórico de ticks.
const openBackfillGrace = 5 * time.Second

// openBackfillLimit acota la consulta: los primeros ciclos tras la
// apertura bastan para aproximar el composite inicial.
const openBackfillLimit = 9

// openComposite resuelve el composite de apertura de una ventana. Para
// ventanas recién abiertas vale el snapshot vivo; para ventanas ya en
// curso consulta los primeros ticks persistidos tras la apertura.
func (e *Engine) openComposite(ctx context.Context, w domain.Window, now time.Time) (float64, bool) {
	if e.ticks != nil && now.Sub(w.OpenTime()) > openBackfillGrace {
		ticks, err := e.ticks.RecentTicks(ctx, w.Symbol, w.OpenTime(), openBackfillLimit)
		if err != nil {
			e.log.Warn("fallo el backfill de apertura", "symbol", w.Symbol, "slug", w.Slug, "error", err)
		} else if snap, ok := domain.Composite(w.Symbol, ticks, w.OpenTime()); ok && snap.Price > 0 {
			return snap.Price, true
		}
	}
	if snap, ok := e.composites.Latest(w.Symbol); ok && snap.Price > 0 {
		return snap.Price, true
	}
	return 0, false
}

func (e *Engine) buildContext(w domain.Window, now time.Time) EvalContext {
	ec := EvalContext{Window: w, Now: now}

	if snap, ok := e.composites.Latest(w.Symbol); ok {
		ec.Composite, ec.HasComposite = snap, true
	}
	e.mu.Lock()
	if p, ok := e.openPrices[w.Slug]; ok {
		ec.OpenPrice, ec.HasOpenPrice = p, true
	}
	e.mu.Unlock()

	if w.UpTokenID != "" {
		if ob, ok := e.books.LatestBook(w.UpTokenID); ok {
			ec.UpBook, ec.HasUpBook = ob, true
		}
	}
	if w.DownTokenID != "" {
		if ob, ok := e.books.LatestBook(w.DownTokenID); ok {
			ec.DownBook, ec.HasDownBook = ob, true
		}
	}
	if e.spreads != nil {
		if sp, ok := e.spreads.Latest(w.Symbol); ok {
			ec.Spread, ec.HasSpread = sp, true
		}
	}
	return ec
}

// evaluateWindow corre cada estrategia una vez y prueba todas sus
// variaciones contra el mismo MarketState.
func (e *Engine) evaluateWindow(ctx context.Context, ec EvalContext) int {
	fired := 0
	for _, entry := range e.registry.Entries() {
		strat := entry.Strategy
		if !strat.AppliesTo(ec.Window.Symbol, e.cfg.SignalOffset) {
			continue
		}
		state, ok := strat.EvaluateMarketState(ec)
		if !ok || state == nil {
			continue
		}
		for _, params := range entry.Variations {
			if !strat.ShouldFire(state, params) {
				continue
			}
			if e.openTrade(ctx, ec, strat.Name(), params.Name, state.Favored) {
				fired++
			}
		}
	}
	return fired
}

// openTrade simula la entrada y registra el trade. Devuelve false si el
// disparo se descarta por dedup, capacidad, falta de libro o bankroll.
func (e *Engine) openTrade(ctx context.Context, ec EvalContext, strategy, variation string, side domain.TradeSide) bool {
	key := firedKey(strategy, variation, ec.Window.Slug)

	e.mu.Lock()
	if e.fired[key] || len(e.open) >= e.cfg.MaxOpenTrades {
		e.mu.Unlock()
		return false
	}
	// reservado antes de simular: un disparo por variación y ventana,
	// aunque el fill falle
	e.fired[key] = true
	e.mu.Unlock()

	fill, ok := simulateEntry(side, e.cfg.OrderSize, ec.UpBook, ec.HasUpBook, ec.DownBook, ec.HasDownBook)
	if !ok || fill.Filled <= 0 {
		e.log.Warn("signal without fillable depth",
			"strategy", strategy, "variation", variation,
			"slug", ec.Window.Slug, "side", side)
		return false
	}

	fee := fill.Cost * e.cfg.FeeRate
	total := fill.Cost + fee

	e.mu.Lock()
	if e.bankroll < total {
		e.mu.Unlock()
		e.log.Warn("signal skipped, insufficient bankroll",
			"strategy", strategy, "variation", variation,
			"slug", ec.Window.Slug, "needed", total, "bankroll", e.bankroll)
		return false
	}
	e.bankroll -= total

	tokenID := ec.Window.UpTokenID
	if side == domain.SideDown {
		tokenID = ec.Window.DownTokenID
	}
	trade := &domain.SimulatedTrade{
		ID:         uuid.NewString(),
		Strategy:   strategy,
		Variation:  variation,
		Symbol:     ec.Window.Symbol,
		Slug:       ec.Window.Slug,
		Side:       side,
		TokenID:    tokenID,
		OpenEpoch:  ec.Window.OpenEpoch,
		Shares:     fill.Filled,
		EntryPrice: fill.AvgPrice,
		Cost:       fill.Cost,
		EntryFee:   fee,
		OpenedAt:   e.now(),
	}
	e.open[trade.ID] = trade
	e.mu.Unlock()

	if fill.Unfilled > 0 {
		e.log.Warn("partial fill",
			"strategy", strategy, "variation", variation, "slug", ec.Window.Slug,
			"requested", fill.Requested, "filled", fill.Filled, "unfilled", fill.Unfilled)
	}
	e.log.Info("trade opened",
		"id", trade.ID, "strategy", strategy, "variation", variation,
		"slug", trade.Slug, "side", trade.Side,
		"shares", trade.Shares, "entry", trade.EntryPrice, "cost", trade.Cost)

	e.persistOpen(ctx, *trade)
	return true
}

// settleExpired liquida trades cuya ventana ya cerró: el composite
// contra el strike decide el resultado. Sin composite o sin strike el
// trade se cierra plano, devolviendo el coste y perdiendo solo el fee.
func (e *Engine) settleExpired(ctx context.Context, now time.Time) int {
	e.mu.Lock()
	var due []*domain.SimulatedTrade
	for _, t := range e.open {
		if now.Unix() >= t.OpenEpoch+int64(domain.WindowDuration.Seconds()) {
			due = append(due, t)
		}
	}
	e.mu.Unlock()

	settled := 0
	for _, t := range due {
		e.mu.Lock()
		meta, hasMeta := e.meta[t.Slug]
		e.mu.Unlock()

		snap, hasSnap := e.composites.Latest(t.Symbol)

		var closed domain.SimulatedTrade
		if hasSnap && hasMeta && meta.hasStrike {
			upWon := snap.Price > meta.strike
			won := (t.Side == domain.SideUp) == upWon
			payout := 0.0
			exitPrice := 0.0
			if won {
				payout = t.Shares
				exitPrice = 1
			}
			closed = e.closeTrade(t.ID, now, exitPrice, "settlement", domain.SettlePnL(payout, t.Cost, t.EntryFee), payout, won)
		} else {
			// sin datos para resolver: cierre plano, solo se pierde el fee
			closed = e.closeTrade(t.ID, now, t.EntryPrice, "expired_no_data", -t.EntryFee, t.Cost, false)
		}
		settled++

		e.log.Info("trade settled",
			"id", closed.ID, "slug", closed.Slug, "side", closed.Side,
			"reason", closed.ExitReason, "won", closed.Won, "pnl", closed.Realized)
		e.persistClose(ctx, closed)
	}
	return settled
}

// earlyExits aplica el stop loss: si el mark del lado cae por debajo
// del umbral, el trade se vende contra los bids capturados.
func (e *Engine) earlyExits(ctx context.Context, now time.Time) int {
	if e.cfg.StopLossPct <= 0 {
		return 0
	}

	e.mu.Lock()
	trades := make([]domain.SimulatedTrade, 0, len(e.open))
	for _, t := range e.open {
		trades = append(trades, *t)
	}
	e.mu.Unlock()

	exited := 0
	for _, t := range trades {
		up, upOK := e.windowBook(t, domain.SideUp)
		down, downOK := e.windowBook(t, domain.SideDown)

		mark, ok := sideMark(t.Side, up, upOK, down, downOK)
		if !ok || mark > t.EntryPrice*(1-e.cfg.StopLossPct) {
			continue
		}

		fill, ok := simulateExit(t.Side, t.Shares, up, upOK, down, downOK)
		if !ok || fill.Filled <= 0 {
			continue
		}
		proceeds := fill.Cost
		exitFee := proceeds * e.cfg.FeeRate
		pnl := domain.EarlyExitPnL(proceeds, t.Cost, t.EntryFee, exitFee)

		closed := e.closeTrade(t.ID, now, fill.AvgPrice, "early_exit", pnl, proceeds-exitFee, false)
		closed.ExitFee = exitFee
		exited++

		if fill.Unfilled > 0 {
			e.log.Warn("early exit partially filled",
				"id", t.ID, "slug", t.Slug, "unfilled", fill.Unfilled)
		}
		e.log.Info("trade exited early",
			"id", closed.ID, "slug", closed.Slug, "side", closed.Side,
			"mark", mark, "entry", t.EntryPrice, "pnl", pnl)
		e.persistClose(ctx, closed)
	}
	return exited
}

// windowBook resuelve el libro UP o DOWN de la ventana del trade a
// partir de la metadata retenida, cayendo al token del propio trade si
// la metadata ya no está.
func (e *Engine) windowBook(t domain.SimulatedTrade, side domain.TradeSide) (domain.OrderBook, bool) {
	e.mu.Lock()
	meta, ok := e.meta[t.Slug]
	e.mu.Unlock()

	tokenID := ""
	if ok {
		if side == domain.SideUp {
			tokenID = meta.upToken
		} else {
			tokenID = meta.downToken
		}
	} else if t.Side == side {
		tokenID = t.TokenID
	}
	if tokenID == "" {
		return domain.OrderBook{}, false
	}
	return e.books.LatestBook(tokenID)
}

// closeTrade marca el trade como cerrado bajo el lock, ajusta el
// bankroll con lo recuperado y devuelve la copia final.
func (e *Engine) closeTrade(id string, now time.Time, exitPrice float64, reason string, pnl, recovered float64, won bool) domain.SimulatedTrade {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.open[id]
	if !ok {
		return domain.SimulatedTrade{ID: id}
	}
	closedAt := now
	t.ClosedAt = &closedAt
	t.ExitPrice = exitPrice
	t.ExitReason = reason
	t.Realized = pnl
	t.Won = won

	e.bankroll += recovered
	e.realized += pnl
	e.closed++
	delete(e.open, id)
	return *t
}

func (e *Engine) persistOpen(ctx context.Context, t domain.SimulatedTrade) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveTrade(ctx, t); err != nil {
		e.log.Error("persisting trade", "id", t.ID, "error", err)
	}
}

func (e *Engine) persistClose(ctx context.Context, t domain.SimulatedTrade) {
	if e.store == nil {
		return
	}
	if err := e.store.CloseTrade(ctx, t); err != nil {
		e.log.Error("persisting trade close", "id", t.ID, "error", err)
	}
}

func firedKey(strategy, variation, slug string) string {
	return strategy + "|" + variation + "|" + slug
}

// firedSlug extrae el slug de una clave de dedup.
func firedSlug(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			return key[i+1:]
		}
	}
	return ""
}
