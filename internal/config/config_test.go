package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "headless", cfg.Browser.Driver)
	require.Equal(t, 1366, cfg.Browser.WindowWidth)
	require.Equal(t, DefaultUserAgent, cfg.Browser.UserAgent)
	require.NotEmpty(t, cfg.Browser.InitScript)
	require.Equal(t, 3, cfg.Discovery.PoolSize)
	require.Equal(t, 5, cfg.Enrichment.Concurrency)
	require.Equal(t, 30*time.Second, cfg.Enrichment.DetailTimeout)
	require.Equal(t, 50*time.Millisecond, cfg.Jitter.Min)
	require.Equal(t, 200*time.Millisecond, cfg.Jitter.Max)
	require.Equal(t, crawler.DefaultSearchSelectors(), cfg.Selectors.Search)
	require.Len(t, cfg.Sources, 3)
	require.Equal(t, "https://esaj.tjsp.jus.br", cfg.Sources[0].BaseURL)
	require.Equal(t, "America/Sao_Paulo", cfg.Sources[0].TimezoneID)
	require.Equal(t, "docket.runs", cfg.NATS.Subject)
	require.Equal(t, 1024, cfg.Progress.BufferSize)
	require.Equal(t, "process_records", cfg.DB.RecordsTable)

	detail, err := cfg.DetailSelectors()
	require.NoError(t, err)
	require.Equal(t, crawler.DefaultDetailSelectors(), detail)

	opts := cfg.SessionOptions()
	require.Equal(t, "pt-BR", opts.Locale)
	require.Equal(t, DefaultUserAgent, opts.UserAgent)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
browser:
  driver: static
  respect_robots: true
discovery:
  pool_size: 1
  max_pages: 4
enrichment:
  concurrency: 2
  detail_timeout: 12s
sources:
  - base_url: https://esaj.tjms.jus.br
    locale: pt-BR
    timezone_id: America/Campo_Grande
selectors:
  search:
    next_page: a.proxima
  fields:
    judge: "#juiz"
export:
  backend: gcs
  bucket: docket-exports
  prefix: runs
nats:
  url: nats://nats:4222
  subject: courts.runs
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, "static", cfg.Browser.Driver)
	require.True(t, cfg.Browser.RespectRobots)
	require.Equal(t, 4, cfg.Discovery.MaxPages)
	require.Equal(t, 12*time.Second, cfg.Enrichment.DetailTimeout)
	require.Equal(t, []crawler.SourceEndpoint{{
		BaseURL: "https://esaj.tjms.jus.br", Locale: "pt-BR", TimezoneID: "America/Campo_Grande",
	}}, cfg.Sources)
	require.Equal(t, "a.proxima", cfg.Selectors.Search.NextPage)
	require.Equal(t, "a.linkProcesso", cfg.Selectors.Search.ResultLink)
	require.Equal(t, "gcs", cfg.Export.Backend)
	require.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	require.Equal(t, "courts.runs", cfg.NATS.Subject)
	require.Equal(t, 3, cfg.NATS.PublishMaxRetries)

	detail, err := cfg.DetailSelectors()
	require.NoError(t, err)
	require.Len(t, detail.Fields, len(crawler.DetailFields))
	for _, loc := range detail.Fields {
		if loc.Field == crawler.FieldJudge {
			require.Equal(t, "#juiz", loc.Selector)
		}
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DOCKET_SERVER_PORT", "7070")
	t.Setenv("DOCKET_ENRICHMENT_CONCURRENCY", "9")
	t.Setenv("DOCKET_JITTER_MAX", "1s")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 9, cfg.Enrichment.Concurrency)
	require.Equal(t, time.Second, cfg.Jitter.Max)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"Port":          func(c *Config) { c.Server.Port = 0 },
		"AuthKey":       func(c *Config) { c.Auth.Enabled = true },
		"Driver":        func(c *Config) { c.Browser.Driver = "firefox" },
		"PoolSize":      func(c *Config) { c.Discovery.PoolSize = 0 },
		"Concurrency":   func(c *Config) { c.Enrichment.Concurrency = 0 },
		"DetailTimeout": func(c *Config) { c.Enrichment.DetailTimeout = 0 },
		"Jitter":        func(c *Config) { c.Jitter.Min = time.Second },
		"NoSources":     func(c *Config) { c.Sources = nil },
		"SourceURL":     func(c *Config) { c.Sources = []crawler.SourceEndpoint{{BaseURL: "esaj.tjsp.jus.br"}} },
		"UnknownField":  func(c *Config) { c.Selectors.Fields = map[string]string{"color": "#x"} },
		"EmptySelector": func(c *Config) { c.Selectors.Fields = map[string]string{"judge": ""} },
		"Backend":       func(c *Config) { c.Export.Backend = "s3" },
		"LocalDir":      func(c *Config) { c.Export.BaseDir = "" },
		"Bucket":        func(c *Config) { c.Export.Backend = "gcs" },
		"PubSubProject": func(c *Config) { c.PubSub.TopicName = "runs" },
		"AzureContainer": func(c *Config) {
			c.Export.Backend = "azure"
			c.Export.Azure.ServiceURL = "https://acct.blob.core.windows.net"
		},
		"AzureAccount": func(c *Config) {
			c.Export.Backend = "azure"
			c.Export.Azure.Container = "exports"
		},
		"SourceLocale": func(c *Config) { c.Sources[0].Locale = "not a locale!" },
		"EnrichLocale": func(c *Config) { c.Enrichment.Locale = "12345678901" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Sources = append([]crawler.SourceEndpoint(nil), base.Sources...)
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, base.Validate())
}
