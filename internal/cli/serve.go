package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/privacyshield/privacyshield/internal/app"
	"github.com/privacyshield/privacyshield/internal/mockprovider"
	"github.com/privacyshield/privacyshield/internal/scrub"
	"github.com/privacyshield/privacyshield/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr         string
	MockProvider bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until interrupted.

Examples:
  privacyshield serve
  privacyshield serve --config ./privacyshield.yaml --addr :9000
  privacyshield serve --mock-provider`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&opts.MockProvider, "mock-provider", false, "generate against a local mock upstream instead of the configured provider")
	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	logs := setupLogging(cfg)
	defer logs.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.MockProvider {
		mock, err := mockprovider.Start("")
		if err != nil {
			return WrapExitError(ExitFailure, "failed to start mock provider", err)
		}
		defer mock.Shutdown(context.Background())
		cfg.Provider.Type = "openai"
		cfg.Provider.BaseURL = mock.URL + "/v1"
		cfg.Provider.APIKey = "mock"
	}

	a, err := app.Build(ctx, cfg, app.Options{Version: opts.Version})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer a.Close(context.Background())

	if err := server.New(a, opts.Version).Run(ctx, cfg.Server.Addr); err != nil {
		scrub.Logf("server error: %v", err)
		return WrapExitError(ExitFailure, "server error", err)
	}
	return nil
}
