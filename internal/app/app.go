// Package app wires configuration into the running components: detectors,
// the privacy engine, the generation provider, audit sinks and telemetry.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/privacyshield/privacyshield/internal/audit"
	"github.com/privacyshield/privacyshield/internal/config"
	"github.com/privacyshield/privacyshield/internal/detector"
	"github.com/privacyshield/privacyshield/internal/privacy"
	"github.com/privacyshield/privacyshield/internal/provider"
	"github.com/privacyshield/privacyshield/internal/scrub"
	"github.com/privacyshield/privacyshield/internal/telemetry"
)

// App holds the components built from one Config.
type App struct {
	Config    *config.Config
	Engine    *privacy.Engine
	Detectors *detector.Ensemble
	Provider  provider.Provider
	Audit     *audit.Emitter
	// Store is set when audit.sqlite.path is configured; it backs the
	// recent-records queries.
	Store     *audit.SQLiteStore
	Telemetry *telemetry.Provider
}

// Options tweak what Build sets up.
type Options struct {
	Version string
	// Offline skips audit sinks and telemetry, for one-shot CLI use.
	Offline bool
}

// Build creates every component described by cfg. On error, anything
// already built is closed.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg, Telemetry: telemetry.Noop()}
	ok := false
	defer func() {
		if !ok {
			a.Close(ctx)
		}
	}()

	ens, err := BuildDetectors(cfg)
	if err != nil {
		return nil, err
	}
	a.Detectors = ens
	a.Engine = privacy.NewEngine(ens, privacy.Options{
		Tables:        cfg.Tables(),
		Rules:         cfg.Rules(),
		MaxTextLength: cfg.Server.MaxTextLength,
		Logf:          scrub.Debugf,
	})

	prov, err := BuildProvider(cfg)
	if err != nil {
		return nil, err
	}
	a.Provider = prov

	if opts.Offline {
		ok = true
		return a, nil
	}

	a.Audit, a.Store, err = BuildAudit(cfg)
	if err != nil {
		return nil, err
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:       cfg.Telemetry.Enabled,
		Endpoint:      cfg.Telemetry.Endpoint,
		Protocol:      cfg.Telemetry.Protocol,
		Service:       cfg.Telemetry.ServiceName,
		Version:       opts.Version,
		Insecure:      cfg.Telemetry.Insecure,
		ExportTraces:  cfg.Telemetry.ExportTraces,
		ExportMetrics: cfg.Telemetry.ExportMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.Telemetry = tp

	ok = true
	return a, nil
}

// BuildDetectors assembles the enabled detectors into one ensemble.
func BuildDetectors(cfg *config.Config) (*detector.Ensemble, error) {
	d := cfg.Detectors
	var members []detector.Detector

	if d.Patterns.Enabled {
		var extra []detector.Recognizer
		for _, c := range d.Patterns.Custom {
			rec, err := detector.CompileRecognizer(c.Name, c.EntityType, c.Pattern, c.Score, c.Group)
			if err != nil {
				return nil, fmt.Errorf("custom recognizer %s: %w", c.Name, err)
			}
			extra = append(extra, rec)
		}
		members = append(members, detector.NewPatterns(detector.PatternOptions{
			Disabled: d.Patterns.Disabled,
			MinScore: d.Patterns.MinScore,
			Extra:    extra,
		}))
	}

	if d.NER.Enabled {
		ner, err := detector.LoadNER(detector.NERConfig{
			ModelDir:      d.NER.ModelDir,
			SharedLibrary: d.NER.SharedLibrary,
			MaxTokens:     d.NER.MaxTokens,
			Threads:       d.NER.Threads,
			Sessions:      d.NER.Sessions,
			Labels:        cfg.NERLabels(),
			MinScore:      d.NER.MinScore,
			Cased:         d.NER.Cased,
		})
		if err != nil {
			closeMembers(members)
			return nil, fmt.Errorf("load ner: %w", err)
		}
		members = append(members, ner)
	}

	if d.Remote.Enabled {
		var key string
		if d.Remote.APIKeyEnv != "" {
			key = strings.TrimSpace(os.Getenv(d.Remote.APIKeyEnv))
		}
		remote, err := detector.NewRemote(detector.RemoteConfig{
			URL:     d.Remote.URL,
			APIKey:  key,
			Timeout: time.Duration(d.Remote.TimeoutMS) * time.Millisecond,
		})
		if err != nil {
			closeMembers(members)
			return nil, fmt.Errorf("remote detector: %w", err)
		}
		members = append(members, remote)
	}

	ens := detector.NewEnsemble(time.Duration(d.BudgetMS)*time.Millisecond, members...)
	scrub.Logf("detectors: %s", strings.Join(ens.Members(), ", "))
	return ens, nil
}

func closeMembers(members []detector.Detector) {
	_ = detector.NewEnsemble(0, members...).Close()
}

// BuildProvider builds the configured generation provider.
func BuildProvider(cfg *config.Config) (provider.Provider, error) {
	p := cfg.Provider
	prov, err := provider.New(provider.Settings{
		Type:             p.Type,
		Model:            p.Model,
		BaseURL:          p.BaseURL,
		APIKey:           cfg.ProviderAPIKey(),
		SystemPrompt:     p.SystemPrompt,
		Temperature:      p.Temperature,
		MaxTokens:        p.MaxTokens,
		Timeout:          time.Duration(p.TimeoutSeconds) * time.Second,
		MaxResponseBytes: p.MaxResponseBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}
	if cfg.ProviderAPIKey() == "" && (p.Type == "gemini" || p.Type == "openai") {
		scrub.Logf("provider %s: %s is not set; generation will report not_configured", p.Type, p.APIKeyEnv)
	}
	return prov, nil
}

// BuildAudit opens the configured sinks and starts the emitter. It
// returns a nil emitter when audit is disabled or no sink is configured.
func BuildAudit(cfg *config.Config) (*audit.Emitter, *audit.SQLiteStore, error) {
	a := cfg.Audit
	if !a.Enabled {
		return nil, nil, nil
	}

	var (
		sinks []audit.Sink
		store *audit.SQLiteStore
	)
	fail := func(err error) (*audit.Emitter, *audit.SQLiteStore, error) {
		for _, s := range sinks {
			_ = s.Close(context.Background())
		}
		return nil, nil, err
	}

	if a.File.Path != "" {
		fs, err := audit.NewFileSink(a.File.Path, audit.FileOptions{
			MaxSizeMB:  a.File.MaxSizeMB,
			MaxBackups: a.File.MaxBackups,
			MaxAgeDays: a.File.MaxAgeDays,
			Compress:   a.File.Compress,
		})
		if err != nil {
			return fail(fmt.Errorf("audit file sink: %w", err))
		}
		sinks = append(sinks, fs)
	}
	if a.SQLite.Path != "" {
		st, err := audit.OpenSQLite(a.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("audit sqlite: %w", err))
		}
		store = st
		sinks = append(sinks, st)
	}
	if a.Webhook.URL != "" {
		ws, err := audit.NewWebhookSink(a.Webhook.URL, audit.WebhookOptions{
			Headers:    a.Webhook.Headers,
			Timeout:    time.Duration(a.Webhook.TimeoutMS) * time.Millisecond,
			MaxRetries: a.Webhook.MaxRetries,
			Backoff:    time.Duration(a.Webhook.BackoffMS) * time.Millisecond,
		})
		if err != nil {
			return fail(fmt.Errorf("audit webhook: %w", err))
		}
		sinks = append(sinks, ws)
	}

	if len(sinks) == 0 {
		scrub.Logf("audit enabled but no sink configured; records are discarded")
		return nil, nil, nil
	}
	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	scrub.Logf("audit sinks: %s", strings.Join(names, ", "))

	em := audit.NewEmitter(audit.EmitterConfig{QueueSize: a.QueueSize, Workers: a.Workers}, sinks)
	return em, store, nil
}

// Close stops the emitter (which closes its sinks), the detectors and
// telemetry. It is safe on a partially built App.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	a.Audit.Close(ctx)
	if a.Detectors != nil {
		if err := a.Detectors.Close(); err != nil {
			scrub.Logf("close detectors: %v", err)
		}
	}
	a.Telemetry.Shutdown(ctx)
}
