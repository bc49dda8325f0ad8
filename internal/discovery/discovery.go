package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
	"github.com/alejandrodnm/polywatch/internal/ports"
)

// Config contiene la configuración del discovery de ventanas.
type Config struct {
	Assets       []string
	TTL          time.Duration // cache de ventanas activas
	SlugTemplate string        // ej: "%s-up-or-down-%d"
}

// DefaultConfig devuelve una configuración sensata para producción.
func DefaultConfig() Config {
	return Config{
		Assets:       []string{"btc"},
		TTL:          5 * time.Second,
		SlugTemplate: "%s-up-or-down-%d",
	}
}

// Discovery resuelve qué ventanas up/down están operables ahora mismo,
// con un cache TTL corto para acotar el volumen de requests salientes.
type Discovery struct {
	cfg     Config
	markets ports.MarketProvider
	log     *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	cache       map[string]domain.Window // symbol → última ventana resuelta
	initialized bool
}

// New crea un Discovery sin inicializar. Llamar Init antes de usarlo.
func New(cfg Config, markets ports.MarketProvider) *Discovery {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	if cfg.SlugTemplate == "" {
		cfg.SlugTemplate = "%s-up-or-down-%d"
	}
	return &Discovery{
		cfg:     cfg,
		markets: markets,
		log:     slog.With("module", "discovery"),
		now:     time.Now,
		cache:   make(map[string]domain.Window),
	}
}

// Init marca el módulo como inicializado. Usar Discovery antes de Init
// devuelve domain.ErrNotInitialized.
func (d *Discovery) Init() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = true
}

// Shutdown libera el cache. Tras Shutdown el módulo vuelve a no-inicializado.
func (d *Discovery) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = false
	d.cache = make(map[string]domain.Window)
}

// ActiveWindows devuelve las ventanas operables de todos los assets
// trackeados. Sirve del cache mientras la entrada sea fresca (TTL) y la
// ventana no haya expirado. Un asset que falla se omite del resultado
// sin afectar a los demás.
func (d *Discovery) ActiveWindows(ctx context.Context) ([]domain.Window, error) {
	d.mu.Lock()
	if !d.initialized {
		d.mu.Unlock()
		return nil, fmt.Errorf("discovery.ActiveWindows: %w", domain.ErrNotInitialized)
	}
	d.mu.Unlock()

	now := d.now().UTC()
	openEpoch := domain.WindowOpenEpoch(now)

	windows := make([]domain.Window, 0, len(d.cfg.Assets))
	for _, symbol := range d.cfg.Assets {
		if w, ok := d.cached(symbol, now); ok {
			windows = append(windows, w)
			continue
		}

		w, err := d.FetchWindow(ctx, symbol, openEpoch)
		if err != nil {
			d.log.Warn("window fetch failed", "symbol", symbol, "open_epoch", openEpoch, "err", err)
			continue
		}

		d.mu.Lock()
		d.cache[symbol] = w
		d.mu.Unlock()
		windows = append(windows, w)
	}

	return windows, nil
}

// cached devuelve la ventana cacheada del símbolo si sigue fresca y no expiró.
func (d *Discovery) cached(symbol string, now time.Time) (domain.Window, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.cache[symbol]
	if !ok {
		return domain.Window{}, false
	}
	if now.Sub(w.FetchedAt) > d.cfg.TTL {
		return domain.Window{}, false
	}
	// Una ventana pasada su cierre está stale aunque el TTL no venciera:
	// se reemplaza por la siguiente.
	if w.Expired(now) {
		return domain.Window{}, false
	}
	return w, true
}

// FetchWindow resuelve la ventana de (symbol, openEpoch) contra el venue
// y extrae el strike de la question. Un strike no parseable no es error:
// la ventana se devuelve con HasStrike=false y un warning.
func (d *Discovery) FetchWindow(ctx context.Context, symbol string, openEpoch int64) (domain.Window, error) {
	d.mu.Lock()
	if !d.initialized {
		d.mu.Unlock()
		return domain.Window{}, fmt.Errorf("discovery.FetchWindow: %w", domain.ErrNotInitialized)
	}
	d.mu.Unlock()

	slug := fmt.Sprintf(d.cfg.SlugTemplate, symbol, openEpoch)

	w, err := d.markets.FetchMarketBySlug(ctx, slug)
	if err != nil {
		return domain.Window{}, domain.NewModuleError("discovery", "window_fetch_failed", "market lookup for "+slug, err)
	}

	w.Symbol = symbol
	w.OpenEpoch = openEpoch
	w.CloseEpoch = openEpoch + int64(domain.WindowDuration.Seconds())
	w.FetchedAt = d.now().UTC()

	if strike, ok := ParseReferencePrice(w.Question); ok {
		w.Strike = strike
		w.HasStrike = true
	} else {
		d.log.Warn("no reference price in market question",
			"slug", slug, "question", w.Question)
	}

	return w, nil
}
