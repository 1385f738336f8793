package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/privacyshield/privacyshield/internal/audit"
)

// AuditOptions holds flags for the audit recent command.
type AuditOptions struct {
	*RootOptions
	DBPath string
	Limit  int
}

// NewAuditCommand creates the audit command group.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}
	cmd.AddCommand(newAuditRecentCommand(rootOpts))
	return cmd
}

func newAuditRecentCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent audit records, newest first",
		Long: `List the most recent audit records, newest first.

Records hold the privacy score, entity types and counts, and a short
redacted sample. Raw input is never stored.

Examples:
  privacyshield audit recent --limit 10
  privacyshield audit recent --db /var/lib/privacyshield/audit.db --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditRecent(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "audit database (defaults to audit.sqlite.path)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", audit.DefaultRecentLimit, "number of records to show")
	return cmd
}

func runAuditRecent(cmd *cobra.Command, opts *AuditOptions) error {
	if opts.Limit <= 0 || opts.Limit > audit.MaxRecentLimit {
		return NewExitError(ExitCommandError, fmt.Sprintf("--limit must be within [1,%d]", audit.MaxRecentLimit))
	}

	path := opts.DBPath
	if path == "" {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return err
		}
		path = cfg.Audit.SQLite.Path
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no audit database: pass --db or set audit.sqlite.path")
	}

	store, err := audit.OpenSQLite(path)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open audit database", err)
	}
	defer store.Close(context.Background())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	recs, err := store.Recent(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read audit records", err)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"logs": recs, "count": len(recs)})
	}
	NewRenderer(useColor(false)).AuditRecords(w, recs)
	return nil
}
