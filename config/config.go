package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del watcher.
type Config struct {
	Watcher    WatcherConfig    `yaml:"watcher"`
	API        APIConfig        `yaml:"api"`
	Venues     VenuesConfig     `yaml:"venues"`
	Feed       FeedConfig       `yaml:"feed"`
	Books      BooksConfig      `yaml:"books"`
	Divergence DivergenceConfig `yaml:"divergence"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Verify     VerifyConfig     `yaml:"verify"`
	Invariant  InvariantConfig  `yaml:"invariant"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// WatcherConfig controla el comportamiento global del loop.
type WatcherConfig struct {
	Assets                []string `yaml:"assets"`                  // símbolos trackeados: btc, eth...
	DiscoveryTTLSeconds   int      `yaml:"discovery_ttl_seconds"`   // cache de ventanas activas
	StatusIntervalSeconds int      `yaml:"status_interval_seconds"` // resumen por consola
}

// APIConfig contiene los base URLs de las APIs del venue de predicción.
type APIConfig struct {
	CLOBBase     string `yaml:"clob_base"`
	GammaBase    string `yaml:"gamma_base"`
	DataBase     string `yaml:"data_base"`     // data-api (posiciones de cuenta)
	SlugTemplate string `yaml:"slug_template"` // ej: "%s-up-or-down-%d"
}

// VenuesConfig lista los venues de precio de referencia habilitados.
type VenuesConfig struct {
	Enabled []string `yaml:"enabled"` // binance | coinbase | kraken
}

// FeedConfig controla el ingestor de ticks multi-venue.
type FeedConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"` // cadencia de polling
	FlushSeconds    int `yaml:"flush_seconds"`    // flush periódico del buffer
	BatchSize       int `yaml:"batch_size"`       // flush al alcanzar este tamaño
	BufferCap       int `yaml:"buffer_cap"`       // cap duro: por encima se descartan batches
	RetentionHours  int `yaml:"retention_hours"`  // borrado de ticks antiguos
	MaxConcurrent   int `yaml:"max_concurrent"`   // fan-out máximo venue×asset
}

// BooksConfig controla el colector de orderbooks.
type BooksConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	MaxConcurrent   int `yaml:"max_concurrent"`
	MaxLevels       int `yaml:"max_levels"` // filas L2 por lado
}

// DivergenceConfig contiene los dos umbrales independientes del tracker.
type DivergenceConfig struct {
	AlignedPct float64 `yaml:"aligned_pct"` // por debajo: ALIGNED sin importar signo
	BreachPct  float64 `yaml:"breach_pct"`  // por encima: breach (edge-triggered)
}

// StrategyConfig controla el motor de evaluación y la simulación.
type StrategyConfig struct {
	IntervalSeconds     int     `yaml:"interval_seconds"`
	Bankroll            float64 `yaml:"bankroll"`
	OrderSize           float64 `yaml:"order_size"`
	FeeRate             float64 `yaml:"fee_rate"`
	SignalOffsetSeconds int     `yaml:"signal_offset_seconds"` // segundos tras abrir la ventana antes de evaluar
	MaxOpenTrades       int     `yaml:"max_open_trades"`
}

// VerifyConfig controla la verificación de posiciones contra el venue.
type VerifyConfig struct {
	Live            bool   `yaml:"live"`    // false = fast path sin red
	Address         string `yaml:"address"` // se sobreescribe con WALLET_ADDRESS
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	FailOnOrphan    bool   `yaml:"fail_on_orphan"` // política: orphans informativos por defecto
}

// InvariantConfig controla el checker de invariantes de runtime.
type InvariantConfig struct {
	IntervalSeconds        int     `yaml:"interval_seconds"`
	HeartbeatMaxAgeSeconds int     `yaml:"heartbeat_max_age_seconds"`
	MaxCapital             float64 `yaml:"max_capital"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// DiscoveryTTL devuelve el TTL del cache de ventanas como time.Duration.
func (c *Config) DiscoveryTTL() time.Duration {
	return time.Duration(c.Watcher.DiscoveryTTLSeconds) * time.Second
}

// FeedInterval devuelve la cadencia de polling de venues.
func (c *Config) FeedInterval() time.Duration {
	return time.Duration(c.Feed.IntervalSeconds) * time.Second
}

// FeedFlushInterval devuelve la cadencia del flush de ticks.
func (c *Config) FeedFlushInterval() time.Duration {
	return time.Duration(c.Feed.FlushSeconds) * time.Second
}

// FeedRetention devuelve cuánto histórico de ticks se conserva.
func (c *Config) FeedRetention() time.Duration {
	return time.Duration(c.Feed.RetentionHours) * time.Hour
}

// BooksInterval devuelve la cadencia de captura de libros.
func (c *Config) BooksInterval() time.Duration {
	return time.Duration(c.Books.IntervalSeconds) * time.Second
}

// SignalOffset devuelve el mínimo de vida de ventana antes de evaluar señales.
func (c *Config) SignalOffset() time.Duration {
	return time.Duration(c.Strategy.SignalOffsetSeconds) * time.Second
}

// CycleInterval devuelve la cadencia del ciclo de evaluación del motor.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Strategy.IntervalSeconds) * time.Second
}

// StatusInterval devuelve la cadencia del reporte de estado.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Watcher.StatusIntervalSeconds) * time.Second
}

// VerifyTimeout devuelve el límite del fetch de posiciones.
func (c *Config) VerifyTimeout() time.Duration {
	return time.Duration(c.Verify.TimeoutSeconds) * time.Second
}

// VerifyCacheTTL devuelve la vida útil del cache de posiciones ante rate limit.
func (c *Config) VerifyCacheTTL() time.Duration {
	return time.Duration(c.Verify.CacheTTLSeconds) * time.Second
}

// InvariantInterval devuelve la cadencia base del checker de invariantes.
func (c *Config) InvariantInterval() time.Duration {
	return time.Duration(c.Invariant.IntervalSeconds) * time.Second
}

// HeartbeatMaxAge devuelve la edad máxima tolerada del último ciclo.
func (c *Config) HeartbeatMaxAge() time.Duration {
	return time.Duration(c.Invariant.HeartbeatMaxAgeSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("WALLET_ADDRESS"); v != "" {
		cfg.Verify.Address = v
	}
	if v := os.Getenv("POLYWATCH_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if len(cfg.Watcher.Assets) == 0 {
		cfg.Watcher.Assets = []string{"btc"}
	}
	for i, a := range cfg.Watcher.Assets {
		cfg.Watcher.Assets[i] = strings.ToLower(a)
	}
	if cfg.Watcher.DiscoveryTTLSeconds <= 0 {
		cfg.Watcher.DiscoveryTTLSeconds = 5
	}
	if cfg.Watcher.StatusIntervalSeconds <= 0 {
		cfg.Watcher.StatusIntervalSeconds = 60
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.SlugTemplate == "" {
		cfg.API.SlugTemplate = "%s-up-or-down-%d"
	}
	if len(cfg.Venues.Enabled) == 0 {
		cfg.Venues.Enabled = []string{"binance", "coinbase", "kraken"}
	}
	if cfg.Feed.IntervalSeconds <= 0 {
		cfg.Feed.IntervalSeconds = 1
	}
	if cfg.Feed.FlushSeconds <= 0 {
		cfg.Feed.FlushSeconds = 5
	}
	if cfg.Feed.BatchSize <= 0 {
		cfg.Feed.BatchSize = 50
	}
	if cfg.Feed.BufferCap <= 0 {
		cfg.Feed.BufferCap = 1000
	}
	if cfg.Feed.RetentionHours <= 0 {
		cfg.Feed.RetentionHours = 48
	}
	if cfg.Feed.MaxConcurrent <= 0 {
		cfg.Feed.MaxConcurrent = 8
	}
	if cfg.Books.IntervalSeconds <= 0 {
		cfg.Books.IntervalSeconds = 2
	}
	if cfg.Books.MaxConcurrent <= 0 {
		cfg.Books.MaxConcurrent = 4
	}
	if cfg.Books.MaxLevels <= 0 {
		cfg.Books.MaxLevels = 10
	}
	if cfg.Divergence.AlignedPct <= 0 {
		cfg.Divergence.AlignedPct = 0.0001 // 0.01%
	}
	if cfg.Divergence.BreachPct <= 0 {
		cfg.Divergence.BreachPct = 0.003 // 0.3%
	}
	if cfg.Strategy.IntervalSeconds <= 0 {
		cfg.Strategy.IntervalSeconds = 5
	}
	if cfg.Strategy.Bankroll <= 0 {
		cfg.Strategy.Bankroll = 1000
	}
	if cfg.Strategy.OrderSize <= 0 {
		cfg.Strategy.OrderSize = 50
	}
	if cfg.Strategy.FeeRate <= 0 {
		cfg.Strategy.FeeRate = 0.02
	}
	if cfg.Strategy.SignalOffsetSeconds <= 0 {
		cfg.Strategy.SignalOffsetSeconds = 300
	}
	if cfg.Strategy.MaxOpenTrades <= 0 {
		cfg.Strategy.MaxOpenTrades = 3
	}
	if cfg.Verify.TimeoutSeconds <= 0 {
		cfg.Verify.TimeoutSeconds = 5
	}
	if cfg.Verify.CacheTTLSeconds <= 0 {
		cfg.Verify.CacheTTLSeconds = 30
	}
	if cfg.Invariant.IntervalSeconds <= 0 {
		cfg.Invariant.IntervalSeconds = 30
	}
	if cfg.Invariant.HeartbeatMaxAgeSeconds <= 0 {
		cfg.Invariant.HeartbeatMaxAgeSeconds = 120
	}
	if cfg.Invariant.MaxCapital <= 0 {
		cfg.Invariant.MaxCapital = cfg.Strategy.Bankroll
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polywatch.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
