package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	DataDir   string                    `mapstructure:"data_dir"`
	LogDir    string                    `mapstructure:"log_dir"`
	Scrape    ScrapeConfig              `mapstructure:"scrape"`
	Match     MatchConfig               `mapstructure:"match"`
	Crawl     CrawlConfig               `mapstructure:"crawl"`
	Session   SessionConfig             `mapstructure:"session"`
	Retailers map[string]RetailerConfig `mapstructure:"retailers"`
	Server    ServerConfig              `mapstructure:"server"`
	History   HistoryConfig             `mapstructure:"history"`
}

// ScrapeConfig holds the batch scraping loop configuration
type ScrapeConfig struct {
	Sheet              string        `mapstructure:"sheet"`
	BatchSize          int           `mapstructure:"batch_size"`
	MaxRequests        int           `mapstructure:"max_requests"` // 0 = unlimited
	Timeout            time.Duration `mapstructure:"timeout"`
	BaseDelay          time.Duration `mapstructure:"base_delay"`
	PauseThreshold     int           `mapstructure:"pause_threshold"`
	InterBatchMin      time.Duration `mapstructure:"inter_batch_min"`
	InterBatchMax      time.Duration `mapstructure:"inter_batch_max"`
	FailureDelay       time.Duration `mapstructure:"failure_delay"`
	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
	MaxSessionRenewals int           `mapstructure:"max_session_renewals"`
	EmptyPolicy        string        `mapstructure:"empty_policy"`
}

// MatchConfig holds fuzzy matching and comparison configuration
type MatchConfig struct {
	BrandThreshold float64 `mapstructure:"brand_threshold"`
	SlugThreshold  float64 `mapstructure:"slug_threshold"`
	DeltaThreshold float64 `mapstructure:"delta_threshold"`
	HighlightScore float64 `mapstructure:"highlight_score"`
	Debug          bool    `mapstructure:"debug"`
}

// CrawlConfig holds catalogue crawl configuration
type CrawlConfig struct {
	MaxItemsPerCategory int     `mapstructure:"max_items_per_category"`
	PagesPerSecond      float64 `mapstructure:"pages_per_second"`
	MaxSessionRenewals  int     `mapstructure:"max_session_renewals"`
}

// SessionConfig holds browser session bootstrap configuration
type SessionConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	CaptureTimeout time.Duration `mapstructure:"capture_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Headless       bool          `mapstructure:"headless"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// RetailerConfig holds per-retailer settings
type RetailerConfig struct {
	ZipCode        string   `mapstructure:"zip_code"`
	StoreID        string   `mapstructure:"store_id"`
	BaseURL        string   `mapstructure:"base_url"`
	CategoriesPath string   `mapstructure:"categories_path"`
	Categories     []string `mapstructure:"categories"`
	BatchSize      int      `mapstructure:"batch_size"` // overrides scrape.batch_size when set
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// HistoryConfig holds the optional price history database
type HistoryConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
	MaxConns    int    `mapstructure:"max_conns"`
}

// retailerNames are the retailers that get default sections
var retailerNames = []string{"giant", "harristeeter", "safeway", "wholefoods"}

// Load loads configuration from the config file, environment variables and flags bound to v.
// v may be nil. configFile, when set, replaces the search path lookup.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("shelfscan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".shelfscan"))
		}
	}

	// SHELFSCAN_SCRAPE_BATCH_SIZE -> scrape.batch_size
	v.SetEnvPrefix("SHELFSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; defaults and env vars are enough to run
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, domain.NewConfigurationError("error reading config file", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, domain.NewConfigurationError("unable to decode config", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("log_dir", "logs")

	// Scrape defaults
	v.SetDefault("scrape.sheet", "")
	v.SetDefault("scrape.batch_size", 10)
	v.SetDefault("scrape.max_requests", 0)
	v.SetDefault("scrape.timeout", "2h")
	v.SetDefault("scrape.base_delay", "10s")
	v.SetDefault("scrape.pause_threshold", 3)
	v.SetDefault("scrape.inter_batch_min", "2s")
	v.SetDefault("scrape.inter_batch_max", "5s")
	v.SetDefault("scrape.failure_delay", "30s")
	v.SetDefault("scrape.batch_timeout", "60s")
	v.SetDefault("scrape.max_session_renewals", 3)
	v.SetDefault("scrape.empty_policy", "confirmed_absent")

	// Match defaults
	v.SetDefault("match.brand_threshold", 30)
	v.SetDefault("match.slug_threshold", 85)
	v.SetDefault("match.delta_threshold", 0.25)
	v.SetDefault("match.highlight_score", 45)
	v.SetDefault("match.debug", false)

	// Crawl defaults
	v.SetDefault("crawl.max_items_per_category", 0)
	v.SetDefault("crawl.pages_per_second", 0.5)
	v.SetDefault("crawl.max_session_renewals", 3)

	// Session defaults
	v.SetDefault("session.ttl", "30m")
	v.SetDefault("session.capture_timeout", "120s")
	v.SetDefault("session.request_timeout", "30s")
	v.SetDefault("session.headless", true)
	v.SetDefault("session.user_agent", "")

	// Retailer sections exist so their keys can be set from env vars
	for _, name := range retailerNames {
		v.SetDefault("retailers."+name+".zip_code", "")
		v.SetDefault("retailers."+name+".store_id", "")
		v.SetDefault("retailers."+name+".base_url", "")
		v.SetDefault("retailers."+name+".batch_size", 0)
	}
	v.SetDefault("retailers.harristeeter.batch_size", 10)
	v.SetDefault("retailers.giant.batch_size", 5)

	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})

	// History defaults
	v.SetDefault("history.database_url", "")
	v.SetDefault("history.max_conns", 2)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.DataDir == "" {
		return domain.NewConfigurationError("data_dir is required (set SHELFSCAN_DATA_DIR)", nil)
	}

	s := config.Scrape
	if s.BatchSize <= 0 {
		return domain.NewConfigurationError(fmt.Sprintf("scrape.batch_size must be positive, got: %d", s.BatchSize), nil)
	}
	if s.PauseThreshold <= 0 {
		return domain.NewConfigurationError(fmt.Sprintf("scrape.pause_threshold must be positive, got: %d", s.PauseThreshold), nil)
	}
	if s.InterBatchMin > s.InterBatchMax {
		return domain.NewConfigurationError(
			fmt.Sprintf("scrape.inter_batch_min (%s) is greater than scrape.inter_batch_max (%s)", s.InterBatchMin, s.InterBatchMax), nil)
	}
	if s.EmptyPolicy != "confirmed_absent" && s.EmptyPolicy != "failure" {
		return domain.NewConfigurationError(
			fmt.Sprintf("scrape.empty_policy must be 'confirmed_absent' or 'failure', got: %s", s.EmptyPolicy), nil)
	}

	m := config.Match
	for name, score := range map[string]float64{
		"match.brand_threshold": m.BrandThreshold,
		"match.slug_threshold":  m.SlugThreshold,
		"match.highlight_score": m.HighlightScore,
	} {
		if score < 0 || score > 100 {
			return domain.NewConfigurationError(fmt.Sprintf("%s must be between 0 and 100, got: %v", name, score), nil)
		}
	}
	if m.DeltaThreshold < 0 {
		return domain.NewConfigurationError(fmt.Sprintf("match.delta_threshold must not be negative, got: %v", m.DeltaThreshold), nil)
	}

	return nil
}

// RetailerDir is where the files of one retailer are persisted
func (c *Config) RetailerDir(name string) string {
	return filepath.Join(c.DataDir, name)
}

// Retailer returns the section of one retailer, zero valued when absent
func (c *Config) Retailer(name string) RetailerConfig {
	return c.Retailers[name]
}

// BatchSize returns the batch size to use for a retailer
func (c *Config) BatchSize(name string) int {
	if n := c.Retailer(name).BatchSize; n > 0 {
		return n
	}
	return c.Scrape.BatchSize
}
