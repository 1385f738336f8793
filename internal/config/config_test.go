package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyshield/privacyshield/internal/privacy"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.True(t, cfg.Detectors.Patterns.Enabled)
	assert.True(t, cfg.Privacy.Augmenter.Enabled)
	assert.Equal(t, "gemini", cfg.Provider.Type)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Provider.APIKeyEnv)
	assert.Equal(t, 0.7, cfg.Provider.Temperature)
	assert.Equal(t, privacy.SampleLength, cfg.Audit.SampleSize)
	require.NoError(t, Validate(cfg))
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "privacyshield.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
detectors:
  budget_ms: 750
  ner:
    enabled: true
    model_dir: /models/bert-ner
privacy:
  weights:
    person: 40
  placeholders:
    email_address: "<EMAIL>"
  mergeable_types: [location, organization]
  augmenter:
    disabled_rules: [i_am]
provider:
  type: OpenAI
audit:
  sqlite:
    path: /var/lib/privacyshield/audit.db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 750, cfg.Detectors.BudgetMS)
	assert.True(t, cfg.Detectors.Patterns.Enabled, "unset fields keep defaults")
	assert.Equal(t, 256, cfg.Detectors.NER.MaxTokens)
	assert.Equal(t, "openai", cfg.Provider.Type)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Provider.APIKeyEnv)
	assert.Equal(t, "/var/lib/privacyshield/audit.db", cfg.Audit.SQLite.Path)

	tables := cfg.Tables()
	assert.Equal(t, 40, tables.Weights.Weight(privacy.Person))
	assert.Equal(t, 20, tables.Weights.Weight(privacy.EmailAddress))
	assert.Equal(t, "<EMAIL>", tables.Placeholders.For(privacy.EmailAddress))
	assert.True(t, tables.Merge.Mergeable[privacy.Organization])
	assert.True(t, tables.SuffixTypes[privacy.Location])

	rules := cfg.Rules()
	assert.Len(t, rules, len(privacy.DefaultRules())-1)
	for _, r := range rules {
		assert.NotEqual(t, "i_am", r.Name)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRIVACYSHIELD_ADDR", ":7000")
	t.Setenv("ALLOW_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("GEMINI_MODEL", "gemini-1.5-pro")
	t.Setenv("GEMINI_API_URL", "https://gemini.example.com/v1beta/models")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.AllowOrigins)
	assert.Equal(t, "gemini-1.5-pro", cfg.Provider.Model)
	assert.Equal(t, "https://gemini.example.com/v1beta/models", cfg.Provider.BaseURL)
	assert.Equal(t, "g-key", cfg.ProviderAPIKey())

	cfg.Provider.APIKey = "inline"
	assert.Equal(t, "inline", cfg.ProviderAPIKey())
}

func TestRulesDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Privacy.Augmenter.Enabled = false
	rules := cfg.Rules()
	assert.NotNil(t, rules)
	assert.Empty(t, rules)
}

func TestNERLabels(t *testing.T) {
	cfg := validConfig()
	assert.Nil(t, cfg.NERLabels())

	cfg.Detectors.NER.Labels = map[string]string{"per": "person", "HOSPITAL": "organization"}
	labels := cfg.NERLabels()
	assert.Equal(t, privacy.Person, labels["PER"])
	assert.Equal(t, privacy.Organization, labels["HOSPITAL"])
}
