// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/JakeFAU/docket-crawler/internal/browser/headless"
	"github.com/JakeFAU/docket-crawler/internal/crawler"
	"github.com/JakeFAU/docket-crawler/internal/jitter"
	"github.com/JakeFAU/docket-crawler/internal/logging"
	natspub "github.com/JakeFAU/docket-crawler/internal/publisher/nats"
	"github.com/JakeFAU/docket-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/docket-crawler/internal/progress"
	"github.com/JakeFAU/docket-crawler/internal/storage/azure"
	"github.com/JakeFAU/docket-crawler/internal/storage/postgres"
	"github.com/JakeFAU/docket-crawler/internal/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. DOCKET_SERVER_PORT.
const EnvPrefix = "DOCKET"

// DefaultUserAgent is the desktop Chrome user agent presented to sources.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.212 Safari/537.36"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig             `mapstructure:"server"`
	Auth       AuthConfig               `mapstructure:"auth"`
	Logging    logging.Config           `mapstructure:"logging"`
	Browser    BrowserConfig            `mapstructure:"browser"`
	Discovery  DiscoveryConfig          `mapstructure:"discovery"`
	Jitter     JitterConfig             `mapstructure:"jitter"`
	RateLimit  ratelimit.Config         `mapstructure:"ratelimit"`
	Enrichment EnrichmentConfig         `mapstructure:"enrichment"`
	Sources    []crawler.SourceEndpoint `mapstructure:"sources"`
	Selectors  SelectorsConfig          `mapstructure:"selectors"`
	Export     ExportConfig             `mapstructure:"export"`
	DB         postgres.Config          `mapstructure:"db"`
	PubSub     PubSubConfig             `mapstructure:"pubsub"`
	NATS       NATSConfig               `mapstructure:"nats"`
	Progress   ProgressConfig           `mapstructure:"progress"`
	Telemetry  telemetry.Config         `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BrowserConfig selects and tunes the page driver.
type BrowserConfig struct {
	// Driver is "headless" (Chrome) or "static" (HTTP + DOM parse).
	Driver        string        `mapstructure:"driver"`
	ExecPath      string        `mapstructure:"exec_path"`
	Headless      bool          `mapstructure:"headless"`
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
	WindowWidth   int           `mapstructure:"window_width"`
	WindowHeight  int           `mapstructure:"window_height"`
	UserAgent     string        `mapstructure:"user_agent"`
	InitScript    string        `mapstructure:"init_script"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
}

// DiscoveryConfig governs the listing crawl.
type DiscoveryConfig struct {
	PoolSize       int           `mapstructure:"pool_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PageTimeout    time.Duration `mapstructure:"page_timeout"`
	ResultTimeout  time.Duration `mapstructure:"result_timeout"`
	MaxPages       int           `mapstructure:"max_pages"`
}

// JitterConfig bounds the politeness delay.
type JitterConfig struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

// EnrichmentConfig governs detail fetching.
type EnrichmentConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	DetailTimeout time.Duration `mapstructure:"detail_timeout"`
	Locale        string        `mapstructure:"locale"`
	TimezoneID    string        `mapstructure:"timezone_id"`
}

// SelectorsConfig overrides page locators. Unset entries keep the e-SAJ
// defaults.
type SelectorsConfig struct {
	Search crawler.SearchSelectors `mapstructure:"search"`
	Detail crawler.DetailSelectors `mapstructure:"detail"`
	// Fields maps a classification field name to its selector.
	Fields map[string]string `mapstructure:"fields"`
}

// ExportConfig selects where CSV files are written.
type ExportConfig struct {
	// Backend is "none", "local", "gcs", "azure" or "memory".
	Backend string       `mapstructure:"backend"`
	BaseDir string       `mapstructure:"base_dir"`
	Bucket  string       `mapstructure:"bucket"`
	Prefix  string       `mapstructure:"prefix"`
	Azure   azure.Config `mapstructure:"azure"`
}

// PubSubConfig holds metadata for Pub/Sub run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// NATSConfig holds NATS JetStream run notification settings.
type NATSConfig struct {
	natspub.Config `mapstructure:",squash"`
	Subject        string `mapstructure:"subject"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	progress.Config `mapstructure:",squash"`
	Enabled         bool `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("browser.driver", "headless")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.action_timeout", 15*time.Second)
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 768)
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.init_script", headless.DefaultInitScript)
	v.SetDefault("browser.respect_robots", false)
	v.SetDefault("browser.http_timeout", 30*time.Second)

	v.SetDefault("discovery.pool_size", 3)
	v.SetDefault("discovery.request_timeout", 5*time.Second)
	v.SetDefault("discovery.result_timeout", 15*time.Second)
	v.SetDefault("discovery.max_pages", 0)
	v.SetDefault("jitter.min", jitter.DefaultMin)
	v.SetDefault("jitter.max", jitter.DefaultMax)
	v.SetDefault("ratelimit.rps", 0)
	v.SetDefault("ratelimit.burst", 1)

	v.SetDefault("enrichment.concurrency", 5)
	v.SetDefault("enrichment.detail_timeout", 30*time.Second)
	v.SetDefault("enrichment.locale", "pt-BR")
	v.SetDefault("enrichment.timezone_id", "America/Sao_Paulo")

	v.SetDefault("sources", []map[string]any{
		{"base_url": "https://esaj.tjsp.jus.br", "locale": "pt-BR", "timezone_id": "America/Sao_Paulo"},
		{"base_url": "https://www2.tjal.jus.br", "locale": "pt-BR", "timezone_id": "America/Maceio"},
		{"base_url": "https://esaj.tjce.jus.br", "locale": "pt-BR", "timezone_id": "America/Fortaleza"},
	})

	search := crawler.DefaultSearchSelectors()
	v.SetDefault("selectors.search.search_path", search.SearchPath)
	v.SetDefault("selectors.search.mode_select", search.ModeSelect)
	v.SetDefault("selectors.search.mode_value", search.ModeValue)
	v.SetDefault("selectors.search.query_input", search.QueryInput)
	v.SetDefault("selectors.search.result_link", search.ResultLink)
	v.SetDefault("selectors.search.error_indicator", search.ErrorIndicator)
	v.SetDefault("selectors.search.result_block", search.ResultBlock)
	v.SetDefault("selectors.search.party_block", search.PartyBlock)
	v.SetDefault("selectors.search.party_role", search.PartyRole)
	v.SetDefault("selectors.search.party_name", search.PartyName)
	v.SetDefault("selectors.search.next_page", search.NextPage)
	detail := crawler.DefaultDetailSelectors()
	v.SetDefault("selectors.detail.show_more", detail.ShowMore)
	v.SetDefault("selectors.detail.all_parties_toggle", detail.AllPartiesToggle)
	v.SetDefault("selectors.detail.all_parties_rows", detail.AllPartiesRows)
	v.SetDefault("selectors.detail.primary_parties_rows", detail.PrimaryPartiesRows)
	v.SetDefault("selectors.detail.party_role", detail.PartyRole)
	v.SetDefault("selectors.detail.party_name", detail.PartyName)
	v.SetDefault("selectors.detail.movement_rows", detail.MovementRows)
	v.SetDefault("selectors.detail.movement_date", detail.MovementDate)
	v.SetDefault("selectors.detail.movement_description", detail.MovementDescription)

	v.SetDefault("export.backend", "local")
	v.SetDefault("export.base_dir", "data")
	v.SetDefault("db.records_table", "process_records")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.migrate", true)
	v.SetDefault("nats.name", "docket-crawler")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.timeout", 5*time.Second)
	v.SetDefault("nats.publish_max_retries", 3)
	v.SetDefault("nats.retry_delay", time.Second)
	v.SetDefault("nats.subject", "docket.runs")
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("progress.sink_timeout", 5*time.Second)
	v.SetDefault("telemetry.service_name", "docket-crawler")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("export.azure.container", "")
	v.SetDefault("export.azure.connection_string", "")
	v.SetDefault("export.azure.service_url", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	switch c.Browser.Driver {
	case "headless", "static":
	default:
		return fmt.Errorf("browser.driver must be headless or static, got %q", c.Browser.Driver)
	}
	if c.Discovery.PoolSize <= 0 {
		return errors.New("discovery.pool_size must be > 0")
	}
	if c.Enrichment.Concurrency <= 0 {
		return errors.New("enrichment.concurrency must be > 0")
	}
	if c.Enrichment.DetailTimeout <= 0 {
		return errors.New("enrichment.detail_timeout must be > 0")
	}
	if c.Jitter.Min < 0 || c.Jitter.Max < c.Jitter.Min {
		return errors.New("jitter.min must be >= 0 and <= jitter.max")
	}
	if len(c.Sources) == 0 {
		return errors.New("at least one source is required")
	}
	for i, src := range c.Sources {
		if !strings.HasPrefix(src.BaseURL, "http://") && !strings.HasPrefix(src.BaseURL, "https://") {
			return fmt.Errorf("sources[%d].base_url must be an http(s) URL", i)
		}
		if err := validLocale(src.Locale); err != nil {
			return fmt.Errorf("sources[%d].locale: %w", i, err)
		}
	}
	if err := validLocale(c.Enrichment.Locale); err != nil {
		return fmt.Errorf("enrichment.locale: %w", err)
	}
	if _, err := c.DetailSelectors(); err != nil {
		return err
	}
	switch c.Export.Backend {
	case "", "none", "memory":
	case "local":
		if c.Export.BaseDir == "" {
			return errors.New("export.base_dir is required for the local backend")
		}
	case "gcs":
		if c.Export.Bucket == "" {
			return errors.New("export.bucket is required for the gcs backend")
		}
	case "azure":
		if c.Export.Azure.Container == "" {
			return errors.New("export.azure.container is required for the azure backend")
		}
		if c.Export.Azure.ConnectionString == "" && c.Export.Azure.ServiceURL == "" {
			return errors.New("export.azure.connection_string or export.azure.service_url is required")
		}
	default:
		return fmt.Errorf("unknown export.backend %q", c.Export.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id is required when pubsub.topic_name is set")
	}
	return nil
}

// validLocale accepts an empty locale or a BCP 47 tag such as pt-BR.
func validLocale(locale string) error {
	if locale == "" {
		return nil
	}
	if _, err := language.Parse(locale); err != nil {
		return fmt.Errorf("invalid language tag %q: %w", locale, err)
	}
	return nil
}

// DetailSelectors resolves the detail page locators, merging field overrides
// over the defaults.
func (c Config) DetailSelectors() (crawler.DetailSelectors, error) {
	fields := crawler.DefaultFieldSelectors()
	for name, sel := range c.Selectors.Fields {
		fields[strings.ToLower(name)] = sel
	}
	locators, err := crawler.FieldLocatorsFromMap(fields)
	if err != nil {
		return crawler.DetailSelectors{}, fmt.Errorf("selectors.fields: %w", err)
	}
	out := c.Selectors.Detail
	out.Fields = locators
	return out, nil
}

// SessionOptions is the fingerprint applied to the enrichment session.
func (c Config) SessionOptions() crawler.SessionOptions {
	return crawler.SessionOptions{
		Locale:     c.Enrichment.Locale,
		TimezoneID: c.Enrichment.TimezoneID,
		UserAgent:  c.Browser.UserAgent,
		InitScript: c.Browser.InitScript,
	}
}
