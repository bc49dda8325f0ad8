// Package watcher is the top-level orchestrator: it wires discovery,
// the tick feed, the book collector, the divergence tracker, the
// strategy engine, the position verifier and the invariant checker,
// and runs their scheduler loops until shutdown.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polywatch/internal/books"
	"github.com/alejandrodnm/polywatch/internal/discovery"
	"github.com/alejandrodnm/polywatch/internal/divergence"
	"github.com/alejandrodnm/polywatch/internal/domain"
	"github.com/alejandrodnm/polywatch/internal/feed"
	"github.com/alejandrodnm/polywatch/internal/invariant"
	"github.com/alejandrodnm/polywatch/internal/ports"
	"github.com/alejandrodnm/polywatch/internal/strategy"
	"github.com/alejandrodnm/polywatch/internal/verify"
)

// Config controla el loop global del watcher.
type Config struct {
	Assets         []string
	PrimaryVenue   string // venue cuyo tick alimenta el lado "ui" de divergencia
	CycleInterval  time.Duration
	StatusInterval time.Duration
	Once           bool // un ciclo y salir
}

// DefaultConfig devuelve los valores por defecto del orquestador.
func DefaultConfig() Config {
	return Config{
		Assets:         []string{"btc"},
		PrimaryVenue:   "binance",
		CycleInterval:  5 * time.Second,
		StatusInterval: 30 * time.Second,
	}
}

// Watcher mantiene los subsistemas y ejecuta sus loops.
type Watcher struct {
	cfg       Config
	discovery *discovery.Discovery
	ingestor  *feed.Ingestor
	collector *books.Collector
	tracker   *divergence.Tracker
	engine    *strategy.Engine
	verifier  *verify.Verifier
	checker   *invariant.Checker
	notifier  ports.Notifier
	log       *slog.Logger
}

// New cablea los subsistemas: el composite alimenta el lado oracle de
// divergencia y el tick del venue primario el lado ui; los eventos de
// breach se loguean en cuanto ocurren.
func New(
	cfg Config,
	disc *discovery.Discovery,
	ingestor *feed.Ingestor,
	collector *books.Collector,
	tracker *divergence.Tracker,
	engine *strategy.Engine,
	verifier *verify.Verifier,
	checker *invariant.Checker,
	notifier ports.Notifier,
) *Watcher {
	w := &Watcher{
		cfg:       cfg,
		discovery: disc,
		ingestor:  ingestor,
		collector: collector,
		tracker:   tracker,
		engine:    engine,
		verifier:  verifier,
		checker:   checker,
		notifier:  notifier,
		log:       slog.With("module", "watcher"),
	}

	ingestor.Subscribe(func(snap domain.CompositeSnapshot) {
		if tick, ok := w.ingestor.LatestTick(w.cfg.PrimaryVenue, snap.Symbol); ok {
			w.tracker.UpdatePrice(snap.Symbol, domain.SourceUI, tick.Price)
		}
		w.tracker.UpdatePrice(snap.Symbol, domain.SourceOracle, snap.Price)
	})

	tracker.SubscribeBreach(func(ev domain.BreachEvent) {
		switch ev.Kind {
		case domain.BreachStarted:
			w.log.Warn("divergence breach started",
				"symbol", ev.Symbol, "pct", ev.Spread.Pct, "direction", ev.Spread.Direction)
		case domain.BreachEnded:
			w.log.Info("divergence breach ended",
				"symbol", ev.Symbol, "duration", ev.Duration.Round(time.Second))
		}
	})

	return w
}

// Run arranca los loops de los subsistemas y el ciclo propio del
// watcher hasta que el contexto se cancele. En modo Once ejecuta un
// único ciclo completo y devuelve.
func (w *Watcher) Run(ctx context.Context) error {
	w.discovery.Init()
	defer w.discovery.Shutdown()

	w.log.Info("watcher starting",
		"assets", w.cfg.Assets,
		"cycle_interval", w.cfg.CycleInterval,
		"once", w.cfg.Once,
	)

	if w.cfg.Once {
		w.ingestor.PollOnce(ctx)
		// captura de libros previa al ciclo: sin el loop del colector,
		// la evaluación no tendría profundidad contra la que simular
		if windows, err := w.discovery.ActiveWindows(ctx); err == nil {
			w.collector.SetTracked(windows)
			w.collector.CollectOnce(ctx)
		}
		w.cycle(ctx)
		w.checker.RunAll(ctx)
		w.notify(ctx)
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.ingestor.Run(ctx) })
	g.Go(func() error { return w.collector.Run(ctx) })
	g.Go(func() error { return w.checker.Run(ctx) })
	g.Go(func() error { return w.loop(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	w.log.Info("watcher stopped")
	return err
}

// loop es el ciclo propio del watcher: evaluación de estrategias y
// reporte de estado, cada uno a su cadencia.
func (w *Watcher) loop(ctx context.Context) error {
	cycle := time.NewTicker(w.cfg.CycleInterval)
	defer cycle.Stop()
	status := time.NewTicker(w.cfg.StatusInterval)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cycle.C:
			w.cycle(ctx)
		case <-status.C:
			w.notify(ctx)
		}
	}
}

// cycle es un paso completo: refresca ventanas, retarget del colector
// de libros, evalúa estrategias, verifica posiciones y registra el
// latido para el heartbeat.
func (w *Watcher) cycle(ctx context.Context) {
	start := time.Now()

	windows, err := w.discovery.ActiveWindows(ctx)
	if err != nil {
		w.log.Error("refreshing active windows", "error", err)
	}
	w.collector.SetTracked(windows)

	res := w.engine.EvaluateCycle(ctx, windows)
	if res.Fired > 0 || res.Settled > 0 || res.Exited > 0 {
		w.log.Info("strategy cycle",
			"evaluated", res.Evaluated, "fired", res.Fired,
			"settled", res.Settled, "exited", res.Exited)
	}

	w.verifyPositions(ctx)
	w.checker.RecordTickDuration(time.Since(start))
}

// verifyPositions reconcilia las posiciones de papel contra el venue.
// Un fallo de verificación se loguea y queda reflejado en el resultado
// del verifier; la corrección no es responsabilidad del watcher.
func (w *Watcher) verifyPositions(ctx context.Context) {
	local := make([]domain.Position, 0)
	for _, t := range w.engine.OpenTrades() {
		local = append(local, domain.Position{
			TokenID:  t.TokenID,
			Symbol:   t.Symbol,
			Size:     t.Shares,
			AvgPrice: t.EntryPrice,
			OpenedAt: t.OpenedAt,
		})
	}

	res, err := w.verifier.Verify(ctx, local)
	if err != nil {
		w.log.Error("position verification failed", "error", err)
		return
	}
	if !res.Verified {
		w.log.Error("positions out of sync",
			"missing", len(res.Missing), "orphans", len(res.Orphans),
			"from_cache", res.FromCache)
	}
}

// notify arma el reporte de estado del ciclo y lo entrega al notifier.
func (w *Watcher) notify(ctx context.Context) {
	report := w.buildReport(time.Now())
	if err := w.notifier.Notify(ctx, report); err != nil {
		w.log.Warn("notifier error", "error", err)
	}
}

func (w *Watcher) buildReport(now time.Time) domain.StatusReport {
	realized, closed := w.engine.RealizedPnL()

	report := domain.StatusReport{
		At:             now,
		ActiveWindows:  len(w.collector.Tracked()) / 2, // dos tokens por ventana
		OpenTrades:     w.engine.OpenTrades(),
		ClosedToday:    closed,
		RealizedPnL:    realized,
		Bankroll:       w.engine.Bankroll(),
		Assertions:     w.checker.Snapshot(),
		BreachesActive: w.tracker.ActiveBreaches(),
	}
	for _, symbol := range w.cfg.Assets {
		if snap, ok := w.ingestor.Latest(symbol); ok {
			report.Composites = append(report.Composites, snap)
		}
		if sp, ok := w.tracker.Latest(symbol); ok {
			report.Spreads = append(report.Spreads, sp)
		}
	}
	return report
}
