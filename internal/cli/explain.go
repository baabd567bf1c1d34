package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abrahamahn/abe-stack-sub003/internal/catalog"
	searcherrors "github.com/abrahamahn/abe-stack-sub003/search/errors"
	"github.com/abrahamahn/abe-stack-sub003/search/models"
	"github.com/abrahamahn/abe-stack-sub003/search/provider"
)

// Explain modes.
const (
	ModeAuto   = "auto"
	ModeOffset = "offset"
	ModeCursor = "cursor"
	ModeFacets = "facets"
	ModeCount  = "count"
)

var validModes = []string{ModeAuto, ModeOffset, ModeCursor, ModeFacets, ModeCount}

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	Resource string
	Mode     string
}

// ExplainResult is the output of explain.
type ExplainResult struct {
	Resource   string      `json:"resource"`
	Table      string      `json:"table"`
	Mode       string      `json:"mode"`
	Statements []Statement `json:"statements"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{}

	cmd := &cobra.Command{
		Use:   "explain [query.json]",
		Short: "Print the SQL a search query compiles to",
		Long: `Compile a SearchQuery JSON document against one catalog resource and
print every statement with its bound values. The query is read from stdin
when no file (or "-") is given. No database is contacted.

In auto mode a cursor selects keyset pagination and facets select faceted
search; otherwise the offset page query is shown.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runExplain(cmd.Context(), rootOpts, opts, path, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Resource, "resource", "r", "", "catalog resource to search (required)")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", ModeAuto, fmt.Sprintf("search mode (%s)", strings.Join(validModes, "|")))
	_ = cmd.MarkFlagRequired("resource")

	return cmd
}

func runExplain(ctx context.Context, rootOpts *RootOptions, opts *ExplainOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	if !isValidMode(opts.Mode) {
		return formatter.fail(ExitCommandError, ErrCodeInput, fmt.Sprintf("invalid mode %q: must be one of %v", opts.Mode, validModes), nil)
	}

	cat, err := catalog.Load(rootOpts.Catalog)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeCatalog, "failed to load catalog", err)
	}
	resource, ok := cat.Lookup(opts.Resource)
	if !ok {
		return formatter.fail(ExitCommandError, ErrCodeResource, fmt.Sprintf("unknown resource %q (have %v)", opts.Resource, cat.Names()), nil)
	}

	raw, err := readQuery(path, cmd.InOrStdin())
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeInput, "failed to read query", err)
	}
	var query models.SearchQuery
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &query); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeInput, "failed to parse query", err)
		}
	}

	mode := opts.Mode
	if mode == ModeAuto {
		mode = autoMode(query)
	}
	formatter.VerboseLog("Compiling %s query for %s (table %s)", mode, resource.Name, resource.Table)

	exec := &dryRunExecutor{}
	p, err := provider.New(provider.Config{Table: resource.TableConfig}, exec)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeCatalog, "invalid table definition", err)
	}

	switch mode {
	case ModeCursor:
		_, err = p.SearchWithCursor(ctx, query)
	case ModeFacets:
		_, err = p.SearchFaceted(ctx, query)
	case ModeCount:
		_, err = p.Count(ctx, query)
	default:
		_, err = p.Search(ctx, query)
	}
	if err != nil {
		var se *searcherrors.SearchError
		if errors.As(err, &se) {
			details := map[string]string{}
			if se.Field != "" {
				details["field"] = se.Field
			}
			if se.Operator != "" {
				details["operator"] = se.Operator
			}
			if outErr := formatter.Error(se.Code, se.Message, details); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, "query rejected", err)
		}
		return formatter.fail(ExitFailure, searcherrors.CodeInternalError, "query failed", err)
	}

	result := ExplainResult{
		Resource:   resource.Name,
		Table:      resource.Table,
		Mode:       mode,
		Statements: exec.recorded(),
	}
	return formatter.Success(result, explainText(result))
}

func readQuery(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func autoMode(q models.SearchQuery) string {
	switch {
	case q.Cursor != "":
		return ModeCursor
	case len(q.Facets) > 0:
		return ModeFacets
	default:
		return ModeOffset
	}
}

func isValidMode(mode string) bool {
	for _, m := range validModes {
		if m == mode {
			return true
		}
	}
	return false
}

func explainText(r ExplainResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- %s on %s (%s)\n", r.Mode, r.Resource, r.Table)
	for _, st := range r.Statements {
		fmt.Fprintf(&sb, "%s\n-- params: %v\n", st.SQL, st.Params)
	}
	return sb.String()
}
