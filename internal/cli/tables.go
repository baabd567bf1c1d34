package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abrahamahn/abe-stack-sub003/internal/catalog"
)

// TableInfo summarizes one catalog resource.
type TableInfo struct {
	Resource   string   `json:"resource"`
	Table      string   `json:"table"`
	PrimaryKey string   `json:"primaryKey"`
	Fields     []string `json:"fields"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "tables",
		Short:         "List the searchable resources of the catalog",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   rootOpts.Verbose,
			}

			cat, err := catalog.Load(rootOpts.Catalog)
			if err != nil {
				return formatter.fail(ExitCommandError, ErrCodeCatalog, "failed to load catalog", err)
			}

			infos := make([]TableInfo, 0, len(cat.Tables))
			for _, name := range cat.Names() {
				r, _ := cat.Lookup(name)
				info := TableInfo{Resource: r.Name, Table: r.Table, PrimaryKey: r.PrimaryKey, Fields: []string{}}
				for _, c := range r.Columns {
					info.Fields = append(info.Fields, c.Field)
				}
				infos = append(infos, info)
			}
			return formatter.Success(infos, tablesText(infos))
		},
	}
}

func tablesText(infos []TableInfo) string {
	var sb strings.Builder
	for _, info := range infos {
		fields := "(any field)"
		if len(info.Fields) > 0 {
			fields = strings.Join(info.Fields, ", ")
		}
		fmt.Fprintf(&sb, "%s\t%s\tpk=%s\t%s\n", info.Resource, info.Table, info.PrimaryKey, fields)
	}
	return sb.String()
}
