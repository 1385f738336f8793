package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/privacyshield/privacyshield/internal/app"
)

// AnalyzeOptions holds flags for the analyze command.
type AnalyzeOptions struct {
	*RootOptions
	Language string
	Generate bool
	NoColor  bool
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyzeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "analyze [text|-]",
		Short: "Detect, score and redact personal data in text",
		Long: `Detect, score and redact personal data in text.

The text is read from the argument, or from stdin when the argument is
"-" or missing. With --generate the redacted text, and only the redacted
text, is sent to the configured provider.

Examples:
  privacyshield analyze "My name is John Doe and my email is john@example.com"
  cat note.txt | privacyshield analyze - --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Language, "language", "l", "en", "language of the text")
	cmd.Flags().BoolVarP(&opts.Generate, "generate", "g", false, "send the redacted text to the provider")
	cmd.Flags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	return cmd
}

func runAnalyze(cmd *cobra.Command, opts *AnalyzeOptions, args []string) error {
	text, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Build(ctx, cfg, app.Options{Version: opts.Version, Offline: true})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build pipeline", err)
	}
	defer a.Close(context.Background())

	out, err := a.Analyze(ctx, app.Request{
		Text:     text,
		Language: opts.Language,
		Generate: opts.Generate,
		Route:    "cli",
	})
	if err != nil {
		if app.IsInputError(err) {
			return WrapExitError(ExitCommandError, "invalid input", err)
		}
		return WrapExitError(ExitFailure, "analysis failed", err)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newAnalysisOutput(out))
	}
	NewRenderer(useColor(opts.NoColor)).Analysis(w, out)
	return nil
}

// readInput returns the text argument, or stdin for "-" or no argument.
func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to read stdin", err)
	}
	text := strings.TrimRight(string(data), "\r\n")
	if strings.TrimSpace(text) == "" {
		return "", WrapExitError(ExitCommandError, "no text given", errors.New("pass text as an argument or on stdin"))
	}
	return text, nil
}

// useColor follows color.NoColor, which is set when stdout is not a
// terminal or NO_COLOR is present.
func useColor(disabled bool) bool {
	return !disabled && !color.NoColor
}

type analysisOutput struct {
	Entities      any    `json:"entities"`
	RedactedText  string `json:"redacted_text"`
	PrivacyScore  int    `json:"privacy_score"`
	RejectedCount int    `json:"rejected_count"`
	Generation    any    `json:"generation,omitempty"`
}

func newAnalysisOutput(out *app.Analysis) analysisOutput {
	o := analysisOutput{
		Entities:      out.Result.Entities,
		RedactedText:  out.Result.RedactedText,
		PrivacyScore:  out.Result.Score,
		RejectedCount: len(out.Result.Rejected),
	}
	if out.Generation != nil {
		o.Generation = out.Generation
	}
	return o
}
