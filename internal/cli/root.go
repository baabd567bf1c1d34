// Package cli implements searchctl, a developer tool that compiles search
// queries against a catalog without a database.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abrahamahn/abe-stack-sub003/internal/pkg/log"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Catalog string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for searchctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "searchctl",
		Short: "Inspect and dry-run the search catalog",
		Long:  "Compiles search queries into the parameterized PostgreSQL the search API would run, without touching a database.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			// Provider warnings must not interleave with command output.
			log.SetOutput(cmd.ErrOrStderr())
			log.SetDebug(opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Catalog, "catalog", "catalog.yaml", "path to the catalog YAML file")

	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
