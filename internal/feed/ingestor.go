package feed

// ingestor.go — polling multi-venue de precios de referencia.
//
// Cada ciclo dispara un fetch por (venue, asset) en paralelo con
// aislamiento de fallos: el error de un venue se cuenta y se loguea
// (rate-limited) sin cancelar ni retrasar al resto. Los ticks válidos
// van a un buffer acotado que se flushea por tamaño o por timer.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
	"github.com/alejandrodnm/polywatch/internal/ports"
	"golang.org/x/sync/semaphore"
)

// Config contiene la configuración del ingestor.
type Config struct {
	Assets            []string
	Interval          time.Duration // cadencia de polling
	FlushInterval     time.Duration // flush periódico del buffer
	BatchSize         int           // flush al alcanzar este tamaño
	BufferCap         int           // cap duro del buffer
	Retention         time.Duration // horizonte de borrado de ticks
	RetentionInterval time.Duration
	MaxConcurrent     int64 // fan-out máximo simultáneo
}

// DefaultConfig devuelve una configuración sensata para producción.
func DefaultConfig() Config {
	return Config{
		Assets:            []string{"btc"},
		Interval:          time.Second,
		FlushInterval:     5 * time.Second,
		BatchSize:         50,
		BufferCap:         1000,
		Retention:         48 * time.Hour,
		RetentionInterval: time.Hour,
		MaxConcurrent:     8,
	}
}

// Ingestor pollea N venues por asset y mantiene el composite por símbolo.
type Ingestor struct {
	cfg    Config
	venues ports.VenueProvider
	store  ports.TickStorage // nil = sin persistencia (dry-run)
	log    *slog.Logger
	sem    *semaphore.Weighted

	mu          sync.Mutex
	buffer      []domain.PriceTick
	errCounts   map[string]int // "venue|symbol" → errores consecutivos
	dropped     int            // ticks descartados por el cap de buffer
	latest      map[string]domain.CompositeSnapshot
	latestTicks map[string]domain.PriceTick // "venue|symbol" → último tick
	subs        []func(domain.CompositeSnapshot)
}

// New crea un Ingestor con las dependencias inyectadas.
func New(cfg Config, venues ports.VenueProvider, store ports.TickStorage) *Ingestor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Ingestor{
		cfg:         cfg,
		venues:      venues,
		store:       store,
		log:         slog.With("module", "feed"),
		sem:         semaphore.NewWeighted(cfg.MaxConcurrent),
		errCounts:   make(map[string]int),
		latest:      make(map[string]domain.CompositeSnapshot),
		latestTicks: make(map[string]domain.PriceTick),
	}
}

// Subscribe registra un callback que recibe cada composite recalculado.
// Los callbacks se invocan secuencialmente al final de cada ciclo de polling.
func (in *Ingestor) Subscribe(fn func(domain.CompositeSnapshot)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.subs = append(in.subs, fn)
}

// Latest devuelve el último composite del símbolo, si existe.
func (in *Ingestor) Latest(symbol string) (domain.CompositeSnapshot, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	snap, ok := in.latest[symbol]
	return snap, ok
}

// LatestTick devuelve el último tick observado de un venue concreto.
func (in *Ingestor) LatestTick(venue, symbol string) (domain.PriceTick, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	tick, ok := in.latestTicks[venue+"|"+symbol]
	return tick, ok
}

// DroppedTicks devuelve cuántos ticks se descartaron por el cap de
// buffer, tanto en el poll como al fallar un flush con el buffer lleno.
func (in *Ingestor) DroppedTicks() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.dropped
}

// Run ejecuta los loops de polling, flush y retención hasta que el
// contexto se cancele. Hace un flush final al salir.
func (in *Ingestor) Run(ctx context.Context) error {
	in.log.Info("feed ingestor starting",
		"assets", in.cfg.Assets,
		"venues", in.venues.Venues(),
		"interval", in.cfg.Interval,
	)

	poll := time.NewTicker(in.cfg.Interval)
	defer poll.Stop()
	flush := time.NewTicker(in.cfg.FlushInterval)
	defer flush.Stop()
	retention := time.NewTicker(in.cfg.RetentionInterval)
	defer retention.Stop()

	for {
		select {
		case <-ctx.Done():
			in.finalFlush()
			in.log.Info("feed ingestor stopped")
			return nil
		case <-poll.C:
			in.PollOnce(ctx)
		case <-flush.C:
			in.Flush(ctx)
		case <-retention.C:
			in.runRetention(ctx)
		}
	}
}

// PollOnce dispara un fetch por (venue, asset) en paralelo y recalcula
// el composite de cada símbolo con los ticks del ciclo.
func (in *Ingestor) PollOnce(ctx context.Context) {
	type result struct {
		key  string
		tick domain.PriceTick
		err  error
	}

	venues := in.venues.Venues()
	results := make(chan result, len(venues)*len(in.cfg.Assets))

	var wg sync.WaitGroup
	for _, venue := range venues {
		for _, symbol := range in.cfg.Assets {
			if err := in.sem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func(venue, symbol string) {
				defer wg.Done()
				defer in.sem.Release(1)
				tick, err := in.venues.FetchTicker(ctx, venue, symbol)
				results <- result{key: venue + "|" + symbol, tick: tick, err: err}
			}(venue, symbol)
		}
	}
	wg.Wait()
	close(results)

	now := time.Now().UTC()
	cycleTicks := make(map[string][]domain.PriceTick, len(in.cfg.Assets))
	for r := range results {
		if r.err != nil {
			in.countError(r.key, r.err)
			continue
		}
		in.clearError(r.key)
		cycleTicks[r.tick.Symbol] = append(cycleTicks[r.tick.Symbol], r.tick)
	}

	var flushNeeded bool
	var snaps []domain.CompositeSnapshot

	in.mu.Lock()
	for symbol, ticks := range cycleTicks {
		for _, t := range ticks {
			in.latestTicks[t.Venue+"|"+t.Symbol] = t
			if len(in.buffer) >= in.cfg.BufferCap {
				in.dropped++
				continue
			}
			in.buffer = append(in.buffer, t)
		}
		if snap, ok := domain.Composite(symbol, ticks, now); ok {
			in.latest[symbol] = snap
			snaps = append(snaps, snap)
		}
	}
	flushNeeded = len(in.buffer) >= in.cfg.BatchSize
	subs := in.subs
	in.mu.Unlock()

	for _, snap := range snaps {
		for _, fn := range subs {
			fn(snap)
		}
	}

	if flushNeeded {
		in.Flush(ctx)
	}
}

// Flush persiste el buffer actual en un batch. Si el insert falla, el
// batch se re-encola solo si el total resultante queda bajo el cap;
// si no, se descarta y se cuenta (memoria acotada sobre completitud).
func (in *Ingestor) Flush(ctx context.Context) {
	if in.store == nil {
		in.mu.Lock()
		in.buffer = in.buffer[:0]
		in.mu.Unlock()
		return
	}

	in.mu.Lock()
	if len(in.buffer) == 0 {
		in.mu.Unlock()
		return
	}
	batch := in.buffer
	in.buffer = nil
	in.mu.Unlock()

	if err := in.store.SaveTicks(ctx, batch); err != nil {
		in.mu.Lock()
		if len(in.buffer)+len(batch) <= in.cfg.BufferCap {
			in.buffer = append(batch, in.buffer...)
			in.mu.Unlock()
			in.log.Warn("tick flush failed, batch re-queued", "batch", len(batch), "err", err)
			return
		}
		in.dropped += len(batch)
		in.mu.Unlock()
		in.log.Error("tick flush failed, batch dropped",
			"err", domain.NewModuleError("feed", "flush_dropped",
				fmt.Sprintf("%d ticks dropped with buffer at cap %d", len(batch), in.cfg.BufferCap), err))
		return
	}

	in.log.Debug("ticks flushed", "count", len(batch))
}

// finalFlush intenta un último flush con un contexto fresco corto.
func (in *Ingestor) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	in.Flush(ctx)
}

// runRetention borra ticks más antiguos que el horizonte configurado.
func (in *Ingestor) runRetention(ctx context.Context) {
	if in.store == nil {
		return
	}
	cutoff := time.Now().UTC().Add(-in.cfg.Retention)
	n, err := in.store.DeleteTicksBefore(ctx, cutoff)
	if err != nil {
		in.log.Warn("tick retention failed", "err", err)
		return
	}
	if n > 0 {
		in.log.Info("old ticks pruned", "deleted", n, "cutoff", cutoff)
	}
}

// countError incrementa el contador consecutivo de (venue,asset) y
// loguea con rate limit: errores 1, 2, 3 y cada 60 a partir de ahí.
func (in *Ingestor) countError(key string, err error) {
	in.mu.Lock()
	in.errCounts[key]++
	n := in.errCounts[key]
	in.mu.Unlock()

	if shouldLogError(n) {
		in.log.Warn("venue fetch failed", "pair", key, "consecutive", n, "err", err)
	}
}

// clearError resetea el contador tras un fetch exitoso.
func (in *Ingestor) clearError(key string) {
	in.mu.Lock()
	if n := in.errCounts[key]; n > 3 {
		in.log.Info("venue recovered", "pair", key, "after_errors", n)
	}
	delete(in.errCounts, key)
	in.mu.Unlock()
}

// shouldLogError decide si el error consecutivo n merece log:
// los tres primeros siempre, luego uno de cada 60 para no perder visibilidad.
func shouldLogError(n int) bool {
	return n <= 3 || n%60 == 0
}
