package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/privacyshield/privacyshield/internal/privacy"
)

// ScoreOptions holds flags for the score command.
type ScoreOptions struct {
	*RootOptions
	File string
}

// NewScoreCommand creates the score command.
func NewScoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute the privacy score of a list of entities",
		Long: `Compute the privacy score of a list of entities.

Input is JSON, either an array or an object with an "entities" array.
Each entity needs entity_type; confidence (or score) defaults to 1.0.
Weights come from the privacy section of the config.

Examples:
  echo '[{"entity_type":"PERSON","confidence":0.85}]' | privacyshield score
  privacyshield score --file entities.json --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read entities from file instead of stdin")
	return cmd
}

func runScore(cmd *cobra.Command, opts *ScoreOptions) error {
	var r io.Reader = cmd.InOrStdin()
	if opts.File != "" {
		f, err := os.Open(opts.File)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open entities file", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read entities", err)
	}
	spans, err := parseScoreInput(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid entities", err)
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	score := privacy.Score(spans, cfg.Tables().Weights)

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		return json.NewEncoder(w).Encode(map[string]int{"privacy_score": score})
	}
	NewRenderer(useColor(false)).Score(w, score)
	return nil
}

type scoreEntity struct {
	EntityType string   `json:"entity_type"`
	Confidence *float64 `json:"confidence"`
	Score      *float64 `json:"score"`
}

// parseScoreInput accepts a bare array or {"entities": [...]}.
func parseScoreInput(data []byte) ([]privacy.Span, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no input")
	}

	var items []scoreEntity
	if data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
	} else {
		var wrapped struct {
			Entities []scoreEntity `json:"entities"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		items = wrapped.Entities
	}

	spans := make([]privacy.Span, 0, len(items))
	for i, e := range items {
		typ := privacy.ParseEntityType(e.EntityType)
		if typ == "" {
			return nil, fmt.Errorf("entities[%d]: entity_type is required", i)
		}
		conf := 1.0
		switch {
		case e.Confidence != nil:
			conf = *e.Confidence
		case e.Score != nil:
			conf = *e.Score
		}
		if conf < 0 || conf > 1 {
			return nil, fmt.Errorf("entities[%d]: confidence must be within [0,1]", i)
		}
		spans = append(spans, privacy.Span{Type: typ, Confidence: conf})
	}
	return spans, nil
}
