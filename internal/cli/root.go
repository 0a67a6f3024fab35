// Package cli implements the gamelibctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gamelibrary/internal/catalog"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Runtime is what the commands operate on.
type Runtime struct {
	DB    *sqlx.DB
	Store catalog.Store
	// Mirror is nil when no search engine is configured.
	Mirror catalog.Mirror
	Log    *zap.Logger
	Close  func()
}

// Opener builds a Runtime from the process configuration.
type Opener func(ctx context.Context) (*Runtime, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string
	open   Opener
}

// NewRootCommand creates the root command for gamelibctl.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "gamelibctl",
		Short: "Operate the game library stores",
		Long:  "Schema migration, search mirror maintenance and ledger consistency checks for the game library.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))

	return cmd
}

func (o *RootOptions) runtime(ctx context.Context) (*Runtime, error) {
	rt, err := o.open(ctx)
	if err != nil {
		return nil, err
	}
	if rt.Log == nil {
		rt.Log = zap.NewNop()
	}
	if rt.Close == nil {
		rt.Close = func() {}
	}
	return rt, nil
}

func (o *RootOptions) write(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
