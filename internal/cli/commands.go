package cli

import (
	"errors"
	"fmt"
	"io"

	"gamelibrary/internal/catalog"
	"gamelibrary/internal/consistency"
	"gamelibrary/internal/database"

	"github.com/spf13/cobra"
)

var errNoMirror = errors.New("search mirror is not configured (set MEILI_HOST)")

// NewMigrateCommand applies the embedded schema.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := database.Migrate(cmd.Context(), rt.DB); err != nil {
				return err
			}
			return opts.write(cmd.OutOrStdout(), map[string]string{"status": "migrated"}, func(w io.Writer) {
				fmt.Fprintln(w, "schema applied")
			})
		},
	}
}

// NewReindexCommand rebuilds the search mirror from the catalog store.
func NewReindexCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search mirror from the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.Mirror == nil {
				return errNoMirror
			}

			svc := catalog.NewService(rt.Store, rt.Mirror, nil, catalog.Options{MirrorEnabled: true}, rt.Log)
			n, err := svc.Reindex(cmd.Context())
			if err != nil {
				return fmt.Errorf("reindex stopped after %d items: %w", n, err)
			}
			return opts.write(cmd.OutOrStdout(), map[string]int{"indexed": n}, func(w io.Writer) {
				fmt.Fprintf(w, "indexed %d items\n", n)
			})
		},
	}
}

// NewStatsCommand prints price statistics from the search mirror.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show price statistics from the search mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.Mirror == nil {
				return errNoMirror
			}

			stats, err := rt.Mirror.PriceStatistics(cmd.Context())
			if err != nil {
				return err
			}
			return opts.write(cmd.OutOrStdout(), stats, func(w io.Writer) {
				fmt.Fprintf(w, "count %d\nmin   %.2f\nmax   %.2f\navg   %.2f\nsum   %.2f\n",
					stats.Count, stats.Min, stats.Max, stats.Avg, stats.Sum)
			})
		},
	}
}

// NewVerifyCommand runs the consistency checks and fails if any is violated.
func NewVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check ledger, catalog and mirror invariants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			checks := consistency.LedgerChecks(rt.DB)
			if rt.Mirror != nil {
				checks = append(checks, consistency.MirrorDriftCheck(rt.Store, rt.Mirror))
			}
			report := consistency.NewRunner().Run(cmd.Context(), checks)
			if err := opts.write(cmd.OutOrStdout(), report, report.WriteText); err != nil {
				return err
			}
			if !report.Healthy() {
				return errors.New("consistency checks failed")
			}
			return nil
		},
	}
}
