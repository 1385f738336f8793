// Package cli implements the privacyshield command line.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/privacyshield/privacyshield/internal/config"
	"github.com/privacyshield/privacyshield/internal/scrub"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"
	Version    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:   "privacyshield",
		Short: "PII detection, scoring and redaction",
		Long: `privacyshield finds personal data in free text, scores the privacy
risk of what it found and produces a redacted copy that is safe to hand
to a third-party language model.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			scrub.SetVerbose(opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "privacyshield.yaml", "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAnalyzeCommand(opts))
	cmd.AddCommand(NewScoreCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// NewVersionCommand prints the build version.
func NewVersionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), opts.Version)
			return err
		},
	}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig loads and validates the config named by the global flag.
// The verbose flag wins over logging.verbose only when set.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	if cfg.Logging.Verbose && !opts.Verbose {
		scrub.SetVerbose(true)
	}
	return cfg, nil
}

// setupLogging routes the log package per the logging section.
func setupLogging(cfg *config.Config) io.Closer {
	return scrub.Setup(scrub.Output{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
}
