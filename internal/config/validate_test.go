package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := defaultConfig()
	applyDefaults(cfg)
	return cfg
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "missing server addr",
			mutate: func(c *Config) { c.Server.Addr = " " },
			want:   "server.addr",
		},
		{
			name:   "no detectors",
			mutate: func(c *Config) { c.Detectors.Patterns.Enabled = false },
			want:   "at least one of patterns",
		},
		{
			name: "ner without model dir",
			mutate: func(c *Config) {
				c.Detectors.NER.Enabled = true
			},
			want: "model_dir",
		},
		{
			name: "remote with bad url",
			mutate: func(c *Config) {
				c.Detectors.Remote.Enabled = true
				c.Detectors.Remote.URL = "::://bad"
			},
			want: "detectors.remote.url",
		},
		{
			name: "custom recognizer does not compile",
			mutate: func(c *Config) {
				c.Detectors.Patterns.Custom = []CustomRecognizer{{Name: "emp", EntityType: "EMPLOYEE_ID", Pattern: "(", Score: 0.5}}
			},
			want: "custom[0] (emp)",
		},
		{
			name:   "negative weight",
			mutate: func(c *Config) { c.Privacy.Weights = map[string]int{"PERSON": -1} },
			want:   "privacy.weights.PERSON",
		},
		{
			name:   "unknown augmenter rule",
			mutate: func(c *Config) { c.Privacy.Augmenter.DisabledRules = []string{"nickname"} },
			want:   "unknown rule",
		},
		{
			name:   "unknown provider",
			mutate: func(c *Config) { c.Provider.Type = "anthropic" },
			want:   "provider.type",
		},
		{
			name:   "temperature out of range",
			mutate: func(c *Config) { c.Provider.Temperature = 3 },
			want:   "provider.temperature",
		},
		{
			name:   "webhook blocked private",
			mutate: func(c *Config) { c.Audit.Webhook.URL = "http://127.0.0.1:9000/audit" },
			want:   "SSRF",
		},
		{
			name:   "telemetry without endpoint",
			mutate: func(c *Config) { c.Telemetry.Enabled = true },
			want:   "endpoint",
		},
		{
			name: "telemetry unknown protocol",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Endpoint = "localhost:4317"
				c.Telemetry.Protocol = "thrift"
			},
			want: "telemetry.protocol",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, Validate(validConfig()))

	loopbackOK := validConfig()
	loopbackOK.Audit.Webhook.URL = "http://127.0.0.1:18080/audit"
	loopbackOK.Audit.Webhook.AllowPrivateNetworks = true
	loopbackOK.Detectors.Remote.Enabled = true
	loopbackOK.Detectors.Remote.URL = "http://localhost:8500"
	assert.NoError(t, Validate(loopbackOK))

	assert.Error(t, Validate(nil))
}
