// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Search   SearchConfig   `mapstructure:"search"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Zones    ZoneConfig     `mapstructure:"zones"`
	APIs     APIsConfig     `mapstructure:"apis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	ListenAddr  string `mapstructure:"listen_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Search Configuration ---

// SearchConfig holds the orchestration core settings.
type SearchConfig struct {
	RequestTimeout   int     `mapstructure:"request_timeout"`     // milliseconds, bounds the full fallback chain
	BranchTimeout    int     `mapstructure:"branch_timeout"`      // milliseconds, per sub-query budget
	MaxPageSize      int     `mapstructure:"max_page_size"`       // general search cap
	BrowsePageSize   int     `mapstructure:"browse_page_size"`    // optimized category-browsing cap
	GeoDecayRadiusKm float64 `mapstructure:"geo_decay_radius_km"` // gaussian decay scale
	DefaultRadiusKm  float64 `mapstructure:"default_radius_km"`
}

// CacheConfig holds the two-tier cache settings.
type CacheConfig struct {
	LocalTTL     int `mapstructure:"local_ttl"`     // milliseconds
	LocalSweep   int `mapstructure:"local_sweep"`   // milliseconds between prune passes
	BrowseTTL    int `mapstructure:"browse_ttl"`    // seconds, query-less browse requests
	PopularTTL   int `mapstructure:"popular_ttl"`   // seconds, >100 result queries
	GeoTTL       int `mapstructure:"geo_ttl"`       // seconds, geo-anchored queries
	PopularFloor int `mapstructure:"popular_floor"` // result count that marks a query popular
}

// ZoneConfig holds the polygon refresh settings.
type ZoneConfig struct {
	RefreshInterval int `mapstructure:"refresh_interval"` // seconds
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	NLU struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"nlu"`

	ASR struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"asr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
