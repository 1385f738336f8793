package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/privacyshield/privacyshield/internal/privacy"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if cfg.Server.MaxTextLength < 0 {
		return errors.New("server.max_text_length must not be negative")
	}

	if err := validateDetectors(cfg.Detectors); err != nil {
		return err
	}
	if err := validatePrivacy(cfg.Privacy); err != nil {
		return err
	}
	if err := validateProvider(cfg.Provider); err != nil {
		return err
	}
	if err := validateAudit(cfg.Audit); err != nil {
		return err
	}
	if err := validateTelemetry(cfg.Telemetry); err != nil {
		return err
	}
	return nil
}

func validateDetectors(d DetectorsConfig) error {
	if !d.Patterns.Enabled && !d.NER.Enabled && !d.Remote.Enabled {
		return errors.New("detectors: at least one of patterns, ner or remote must be enabled")
	}
	if d.BudgetMS < 0 {
		return errors.New("detectors.budget_ms must not be negative")
	}
	if d.Patterns.MinScore < 0 || d.Patterns.MinScore > 1 {
		return fmt.Errorf("detectors.patterns.min_score must be within [0,1], got %v", d.Patterns.MinScore)
	}
	for i, c := range d.Patterns.Custom {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.EntityType) == "" {
			return fmt.Errorf("detectors.patterns.custom[%d] needs name and entity_type", i)
		}
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return fmt.Errorf("detectors.patterns.custom[%d] (%s): %w", i, c.Name, err)
		}
		if c.Group < 0 || c.Group > re.NumSubexp() {
			return fmt.Errorf("detectors.patterns.custom[%d] (%s): group %d out of range", i, c.Name, c.Group)
		}
		if c.Score <= 0 || c.Score > 1 {
			return fmt.Errorf("detectors.patterns.custom[%d] (%s): score must be within (0,1]", i, c.Name)
		}
	}
	if d.NER.Enabled {
		if strings.TrimSpace(d.NER.ModelDir) == "" {
			return errors.New("detectors.ner enabled but model_dir is empty")
		}
		if d.NER.MaxTokens < 8 {
			return fmt.Errorf("detectors.ner.max_tokens must be at least 8, got %d", d.NER.MaxTokens)
		}
	}
	if d.Remote.Enabled {
		if err := checkHTTPURL("detectors.remote.url", d.Remote.URL); err != nil {
			return err
		}
	}
	return nil
}

func validatePrivacy(p PrivacyConfig) error {
	for k, v := range p.Weights {
		if v < 0 {
			return fmt.Errorf("privacy.weights.%s must not be negative", k)
		}
	}
	for k, v := range p.Placeholders {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("privacy.placeholders.%s must not be empty", k)
		}
	}
	for _, t := range p.MergeableTypes {
		if privacy.ParseEntityType(t) == "" {
			return errors.New("privacy.mergeable_types contains an empty type")
		}
	}
	if p.MaxGap < 0 || p.SuffixWindow < 0 {
		return errors.New("privacy.max_gap and privacy.suffix_window must not be negative")
	}
	known := make(map[string]bool)
	for _, r := range privacy.DefaultRules() {
		known[r.Name] = true
	}
	for _, name := range p.Augmenter.DisabledRules {
		if !known[name] {
			return fmt.Errorf("privacy.augmenter.disabled_rules: unknown rule %q", name)
		}
	}
	return nil
}

func validateProvider(p ProviderConfig) error {
	switch p.Type {
	case "gemini", "openai", "echo", "none":
	default:
		return fmt.Errorf("provider.type must be gemini, openai, echo or none, got %q", p.Type)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("provider.temperature must be within [0,2], got %v", p.Temperature)
	}
	if p.BaseURL != "" {
		if err := checkHTTPURL("provider.base_url", p.BaseURL); err != nil {
			return err
		}
	}
	return nil
}

func validateAudit(a AuditConfig) error {
	if !a.Enabled {
		return nil
	}
	if a.Webhook.URL != "" {
		if err := checkHTTPURL("audit.webhook.url", a.Webhook.URL); err != nil {
			return err
		}
		u, _ := url.Parse(a.Webhook.URL)
		if err := blockPrivateHost(u.Host, a.Webhook.AllowPrivateNetworks); err != nil {
			return fmt.Errorf("audit.webhook.url blocked: %w", err)
		}
	}
	if a.SampleSize < 0 || a.SampleSize > privacy.SampleLength {
		return fmt.Errorf("audit.sample_size must be within [0,%d], got %d", privacy.SampleLength, a.SampleSize)
	}
	if a.Webhook.MaxRetries < 0 {
		return errors.New("audit.webhook.max_retries must not be negative")
	}
	return nil
}

func validateTelemetry(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "http", "grpc":
	default:
		return fmt.Errorf("telemetry.protocol must be http or grpc, got %q", t.Protocol)
	}
	return nil
}

func checkHTTPURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s must be set", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s is not a valid url", field)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be http or https", field)
	}
	return nil
}

func blockPrivateHost(hostport string, allowPrivate bool) error {
	if allowPrivate {
		return nil
	}
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	lc := strings.ToLower(strings.TrimSpace(host))
	if lc == "localhost" {
		return errors.New("private network host localhost blocked for SSRF safety")
	}
	if ip := net.ParseIP(lc); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("private network IP %s blocked for SSRF safety", ip.String())
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}
