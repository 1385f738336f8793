package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/privacyshield/privacyshield/internal/privacy"
)

// Config holds PrivacyShield configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Detectors DetectorsConfig `yaml:"detectors"`
	Privacy   PrivacyConfig   `yaml:"privacy"`
	Provider  ProviderConfig  `yaml:"provider"`
	Audit     AuditConfig     `yaml:"audit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Addr          string   `yaml:"addr"`           // HTTP listen address, e.g. ":8000"
	AllowOrigins  []string `yaml:"allow_origins"`  // CORS origins, "*" allows any
	MaxBodyBytes  int64    `yaml:"max_body_bytes"` // request body cap
	MaxTextLength int      `yaml:"max_text_length"`
	// RequestTimeoutSeconds bounds detection plus generation per request.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

type DetectorsConfig struct {
	// BudgetMS bounds each detection call across all detectors.
	BudgetMS int            `yaml:"budget_ms"`
	Patterns PatternsConfig `yaml:"patterns"`
	NER      NERConfig      `yaml:"ner"`
	Remote   RemoteConfig   `yaml:"remote"`
}

type PatternsConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Disabled []string           `yaml:"disabled"` // recognizer names or entity types
	MinScore float64            `yaml:"min_score"`
	Custom   []CustomRecognizer `yaml:"custom"`
}

type CustomRecognizer struct {
	Name       string  `yaml:"name"`
	EntityType string  `yaml:"entity_type"`
	Pattern    string  `yaml:"pattern"`
	Score      float64 `yaml:"score"`
	Group      int     `yaml:"group"`
}

type NERConfig struct {
	Enabled       bool              `yaml:"enabled"`
	ModelDir      string            `yaml:"model_dir"`
	SharedLibrary string            `yaml:"shared_library"`
	MaxTokens     int               `yaml:"max_tokens"`
	Threads       int               `yaml:"threads"`
	Sessions      int               `yaml:"sessions"`
	MinScore      float64           `yaml:"min_score"`
	Cased         bool              `yaml:"cased"`
	Labels        map[string]string `yaml:"labels"` // model tag -> entity type
}

type RemoteConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	APIKeyEnv string `yaml:"api_key_env"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type PrivacyConfig struct {
	Priorities     map[string]int    `yaml:"priorities"`
	Weights        map[string]int    `yaml:"weights"`
	Placeholders   map[string]string `yaml:"placeholders"`
	MergeableTypes []string          `yaml:"mergeable_types"`
	MaxGap         int               `yaml:"max_gap"`
	SuffixWindow   int               `yaml:"suffix_window"`
	Augmenter      AugmenterConfig   `yaml:"augmenter"`
}

type AugmenterConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DisabledRules []string `yaml:"disabled_rules"`
}

type ProviderConfig struct {
	Type             string  `yaml:"type"` // gemini | openai | echo | none
	Model            string  `yaml:"model"`
	BaseURL          string  `yaml:"base_url"`
	APIKey           string  `yaml:"api_key"`
	APIKeyEnv        string  `yaml:"api_key_env"`
	SystemPrompt     string  `yaml:"system_prompt"`
	Temperature      float64 `yaml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
	MaxResponseBytes int64   `yaml:"max_response_bytes"`
}

type AuditConfig struct {
	Enabled    bool              `yaml:"enabled"`
	QueueSize  int               `yaml:"queue_size"`
	Workers    int               `yaml:"workers"`
	SampleSize int               `yaml:"sample_size"` // runes of redacted text kept
	File       AuditFileConfig   `yaml:"file"`
	SQLite     AuditSQLiteConfig `yaml:"sqlite"`
	Webhook    AuditWebhook      `yaml:"webhook"`
}

type AuditFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type AuditSQLiteConfig struct {
	Path string `yaml:"path"`
}

type AuditWebhook struct {
	URL                  string            `yaml:"url"`
	Headers              map[string]string `yaml:"headers"`
	TimeoutMS            int               `yaml:"timeout_ms"`
	MaxRetries           int               `yaml:"max_retries"`
	BackoffMS            int               `yaml:"backoff_ms"`
	AllowPrivateNetworks bool              `yaml:"allow_private_networks"`
}

type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	Protocol      string `yaml:"protocol"` // http | grpc
	ServiceName   string `yaml:"service_name"`
	Insecure      bool   `yaml:"insecure"`
	ExportTraces  bool   `yaml:"export_traces"`
	ExportMetrics bool   `yaml:"export_metrics"`
}

type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	Verbose    bool   `yaml:"verbose"`
}

// Load reads a .env file if present, then configuration from a YAML
// file. If the file doesn't exist, it returns the default config.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		case os.IsNotExist(err):
		default:
			return nil, err
		}
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                  ":8000",
			AllowOrigins:          []string{"http://localhost:3000", "http://localhost:5173"},
			MaxBodyBytes:          1 << 20,
			MaxTextLength:         100_000,
			RequestTimeoutSeconds: 30,
		},
		Detectors: DetectorsConfig{
			BudgetMS: 5000,
			Patterns: PatternsConfig{Enabled: true},
		},
		Privacy: PrivacyConfig{
			Augmenter: AugmenterConfig{Enabled: true},
		},
		Provider: ProviderConfig{
			Type:        "gemini",
			Temperature: 0.7,
			MaxTokens:   1000,
		},
		Audit: AuditConfig{
			Enabled:    true,
			QueueSize:  1000,
			Workers:    1,
			SampleSize: privacy.SampleLength,
		},
		Telemetry: TelemetryConfig{
			Protocol:      "http",
			ServiceName:   "privacyshield",
			ExportTraces:  true,
			ExportMetrics: true,
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.RequestTimeoutSeconds <= 0 {
		cfg.Server.RequestTimeoutSeconds = 30
	}

	if cfg.Detectors.NER.MaxTokens == 0 {
		cfg.Detectors.NER.MaxTokens = 256
	}
	if cfg.Detectors.NER.Sessions == 0 {
		cfg.Detectors.NER.Sessions = 1
	}
	if cfg.Detectors.Remote.TimeoutMS == 0 {
		cfg.Detectors.Remote.TimeoutMS = 3000
	}

	cfg.Provider.Type = strings.ToLower(strings.TrimSpace(cfg.Provider.Type))
	if cfg.Provider.Type == "" {
		cfg.Provider.Type = "gemini"
	}
	if cfg.Provider.TimeoutSeconds <= 0 {
		cfg.Provider.TimeoutSeconds = 30
	}
	if cfg.Provider.MaxTokens <= 0 {
		cfg.Provider.MaxTokens = 1000
	}
	if cfg.Provider.APIKeyEnv == "" {
		switch cfg.Provider.Type {
		case "openai":
			cfg.Provider.APIKeyEnv = "OPENAI_API_KEY"
		case "gemini":
			cfg.Provider.APIKeyEnv = "GEMINI_API_KEY"
		}
	}

	if cfg.Audit.QueueSize <= 0 {
		cfg.Audit.QueueSize = 1000
	}
	if cfg.Audit.Workers <= 0 {
		cfg.Audit.Workers = 1
	}
	if cfg.Audit.SampleSize <= 0 {
		cfg.Audit.SampleSize = privacy.SampleLength
	}
	if cfg.Audit.File.MaxSizeMB <= 0 {
		cfg.Audit.File.MaxSizeMB = 100
	}
	if cfg.Audit.Webhook.TimeoutMS <= 0 {
		cfg.Audit.Webhook.TimeoutMS = 2000
	}
	if cfg.Audit.Webhook.BackoffMS <= 0 {
		cfg.Audit.Webhook.BackoffMS = 200
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "privacyshield"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "http"
	}

	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 50
	}
}

// applyEnv applies the environment variables the service has always
// honoured. They win over the file.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PRIVACYSHIELD_ADDR")); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("ALLOW_ORIGINS")); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.AllowOrigins = origins
	}

	switch cfg.Provider.Type {
	case "gemini":
		if v := strings.TrimSpace(os.Getenv("GEMINI_MODEL")); v != "" {
			cfg.Provider.Model = v
		}
		if v := strings.TrimSpace(os.Getenv("GEMINI_API_URL")); v != "" {
			cfg.Provider.BaseURL = v
		}
	case "openai":
		if v := strings.TrimSpace(os.Getenv("OPENAI_MODEL")); v != "" {
			cfg.Provider.Model = v
		}
		if v := strings.TrimSpace(os.Getenv("OPENAI_API_URL")); v != "" {
			cfg.Provider.BaseURL = v
		}
	}
}

// ProviderAPIKey resolves the provider key, preferring the inline value.
func (c *Config) ProviderAPIKey() string {
	if k := strings.TrimSpace(c.Provider.APIKey); k != "" {
		return k
	}
	if c.Provider.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.Provider.APIKeyEnv))
}

// TableOverrides converts the privacy section into table overrides.
func (c *Config) TableOverrides() privacy.TableOverrides {
	p := c.Privacy
	o := privacy.TableOverrides{MaxGap: p.MaxGap, SuffixWindow: p.SuffixWindow}
	if len(p.Priorities) > 0 {
		o.Priorities = make(map[privacy.EntityType]int, len(p.Priorities))
		for k, v := range p.Priorities {
			o.Priorities[privacy.ParseEntityType(k)] = v
		}
	}
	if len(p.Weights) > 0 {
		o.Weights = make(map[privacy.EntityType]int, len(p.Weights))
		for k, v := range p.Weights {
			o.Weights[privacy.ParseEntityType(k)] = v
		}
	}
	if len(p.Placeholders) > 0 {
		o.Placeholders = make(map[privacy.EntityType]string, len(p.Placeholders))
		for k, v := range p.Placeholders {
			o.Placeholders[privacy.ParseEntityType(k)] = v
		}
	}
	for _, t := range p.MergeableTypes {
		o.MergeableTypes = append(o.MergeableTypes, privacy.ParseEntityType(t))
	}
	return o
}

// Tables returns the default tables with the privacy overrides applied.
func (c *Config) Tables() privacy.Tables {
	return privacy.DefaultTables().With(c.TableOverrides())
}

// Rules returns the contextual rules to run. A disabled augmenter yields
// an empty, non-nil set.
func (c *Config) Rules() []privacy.Rule {
	if !c.Privacy.Augmenter.Enabled {
		return []privacy.Rule{}
	}
	return privacy.SelectRules(privacy.DefaultRules(), c.Privacy.Augmenter.DisabledRules)
}

// NERLabels converts the configured label map. Nil means the built-in map.
func (c *Config) NERLabels() map[string]privacy.EntityType {
	if len(c.Detectors.NER.Labels) == 0 {
		return nil
	}
	out := make(map[string]privacy.EntityType, len(c.Detectors.NER.Labels))
	for tag, t := range c.Detectors.NER.Labels {
		out[strings.ToUpper(strings.TrimSpace(tag))] = privacy.ParseEntityType(t)
	}
	return out
}
