package config

import (
	"time"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for booksparser.
type Config struct {
	Engine    EngineConfig       `mapstructure:"engine"     yaml:"engine"`
	Fetcher   FetcherConfig      `mapstructure:"fetcher"    yaml:"fetcher"`
	Browser   BrowserConfig      `mapstructure:"browser"    yaml:"browser"`
	Proxy     ProxyConfig        `mapstructure:"proxy"      yaml:"proxy"`
	APISource APISourceConfig    `mapstructure:"api_source" yaml:"api_source"`
	Sources   []types.SourceSpec `mapstructure:"sources"    yaml:"sources"`
	Storage   StorageConfig      `mapstructure:"storage"    yaml:"storage"`
	Server    ServerConfig       `mapstructure:"server"     yaml:"server"`
	Logging   LoggingConfig      `mapstructure:"logging"    yaml:"logging"`
	Metrics   MetricsConfig      `mapstructure:"metrics"    yaml:"metrics"`
}

// EngineConfig controls the source walker.
type EngineConfig struct {
	GlobalCap      int           `mapstructure:"global_cap"        yaml:"global_cap"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	BrowserTimeout time.Duration `mapstructure:"browser_timeout"   yaml:"browser_timeout"`

	// Pacing ranges. A uniform random duration in [min,max] is waited.
	RequestDelayMin time.Duration `mapstructure:"request_delay_min" yaml:"request_delay_min"`
	RequestDelayMax time.Duration `mapstructure:"request_delay_max" yaml:"request_delay_max"`
	ItemDelayMin    time.Duration `mapstructure:"item_delay_min"    yaml:"item_delay_min"`
	ItemDelayMax    time.Duration `mapstructure:"item_delay_max"    yaml:"item_delay_max"`
	SourceDelayMin  time.Duration `mapstructure:"source_delay_min"  yaml:"source_delay_min"`
	SourceDelayMax  time.Duration `mapstructure:"source_delay_max"  yaml:"source_delay_max"`

	UserAgents []string `mapstructure:"user_agents" yaml:"user_agents"`

	// SourceDefaults fills fields a configured source leaves empty.
	SourceDefaults types.SourceSpec `mapstructure:"source_defaults" yaml:"source_defaults"`
}

// FetcherConfig controls the static HTTP client.
type FetcherConfig struct {
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	TLSFingerprint  bool          `mapstructure:"tls_fingerprint"   yaml:"tls_fingerprint"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
}

// BrowserConfig controls the headless browser used by rendered sources.
type BrowserConfig struct {
	Headless     bool          `mapstructure:"headless"      yaml:"headless"`
	Stealth      bool          `mapstructure:"stealth"       yaml:"stealth"`
	BinPath      string        `mapstructure:"bin_path"      yaml:"bin_path"`
	WindowWidth  int           `mapstructure:"window_width"  yaml:"window_width"`
	WindowHeight int           `mapstructure:"window_height" yaml:"window_height"`
	ScrollPause  time.Duration `mapstructure:"scroll_pause"  yaml:"scroll_pause"`
	MaxElements  int           `mapstructure:"max_elements"  yaml:"max_elements"`
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled  bool     `mapstructure:"enabled"  yaml:"enabled"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"`
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
}

// APISourceConfig controls the JSON API acquirer.
type APISourceConfig struct {
	BatchSize     int           `mapstructure:"batch_size"      yaml:"batch_size"`
	RatePerSecond float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst         int           `mapstructure:"burst"           yaml:"burst"`
	Timeout       time.Duration `mapstructure:"timeout"         yaml:"timeout"`
}

// StorageConfig controls persistence and export.
type StorageConfig struct {
	Type       string   `mapstructure:"type"        yaml:"type"`
	DSN        string   `mapstructure:"dsn"         yaml:"dsn"`
	OutputPath string   `mapstructure:"output_path" yaml:"output_path"`
	Backends   []string `mapstructure:"backends"    yaml:"backends"`

	// PostgresDSN overrides DSN for the postgres backend so sqlite and
	// postgres can run side by side under type multi.
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`

	MongoURI        string `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port           int           `mapstructure:"port"            yaml:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"    yaml:"read_timeout"`
	ParseTimeout   time.Duration `mapstructure:"parse_timeout"   yaml:"parse_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

const booksBase = "https://books.toscrape.com/catalogue"

// DefaultSources returns the built-in listing set.
func DefaultSources() []types.SourceSpec {
	return []types.SourceSpec{
		{DisplayName: "Books to Scrape", EntryURL: booksBase + "/page-1.html", Category: "All books"},
		{DisplayName: "Travel Books", EntryURL: booksBase + "/category/books/travel_2/index.html", Category: "Travel"},
		{DisplayName: "Mystery Books", EntryURL: booksBase + "/category/books/mystery_3/index.html", Category: "Mystery"},
		{DisplayName: "Fiction Books", EntryURL: booksBase + "/category/books/fiction_10/index.html", Category: "Fiction"},
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			GlobalCap:       100,
			RequestTimeout:  15 * time.Second,
			BrowserTimeout:  30 * time.Second,
			RequestDelayMin: 2 * time.Second,
			RequestDelayMax: 5 * time.Second,
			ItemDelayMin:    500 * time.Millisecond,
			ItemDelayMax:    1500 * time.Millisecond,
			SourceDelayMin:  2 * time.Second,
			SourceDelayMax:  5 * time.Second,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			SourceDefaults: types.SourceSpec{
				AcquisitionKind: types.AcquireRendered,
				Shape:           types.ShapeBookCard,
				PerSourceCap:    25,
			},
		},
		Fetcher: FetcherConfig{
			FollowRedirects: true,
			MaxRedirects:    10,
			TLSFingerprint:  true,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    20,
		},
		Browser: BrowserConfig{
			Headless:     true,
			Stealth:      true,
			WindowWidth:  1920,
			WindowHeight: 1080,
			ScrollPause:  2 * time.Second,
			MaxElements:  25,
		},
		Proxy: ProxyConfig{
			Enabled:  false,
			Rotation: "round_robin",
		},
		APISource: APISourceConfig{
			BatchSize:     25,
			RatePerSecond: 2,
			Burst:         1,
			Timeout:       10 * time.Second,
		},
		Sources: DefaultSources(),
		Storage: StorageConfig{
			Type:            "sqlite",
			DSN:             "file:products.db",
			OutputPath:      "./output",
			MongoDatabase:   "booksparser",
			MongoCollection: "products",
		},
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
			ReadTimeout:    15 * time.Second,
			ParseTimeout:   10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
