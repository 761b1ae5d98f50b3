package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/deduce/internal/compiler"
	"github.com/roach88/deduce/internal/engine"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/projection"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	SourceOptions
	Args   []string
	Select string
}

// QueryResult is the JSON payload of the query command.
type QueryResult struct {
	Query   string           `json:"query"`
	Count   int              `json:"count"`
	Records []map[string]any `json:"records"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <rules.cue> <query>",
		Short: "Run a query against a fact store",
		Long: `Run a named query from a rules file against a SQLite fact store (--db)
or a YAML facts file loaded into memory (--facts).

Arguments bind query variables by name. A value that reads as JSON keeps
its type, so --arg year=2009 binds an integer and --arg year='"2009"' a
string; anything else is taken as a string.

--select overrides the query's output shape with a JSON document such as
'{"title": "?title", "cast": ["?actor"]}'; a one-element list collects.

Example:
  deduce query rules.cue titles-with --db facts.db --arg actor="Ed Asner"
  deduce query rules.cue everything --facts movies.yaml --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite fact store")
	cmd.Flags().StringVar(&opts.Facts, "facts", "", "path to YAML facts file")
	cmd.Flags().IntVar(&opts.CacheSize, "cache-size", 0, "cache selector results up to this many facts (0 disables)")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "bind a query variable (name=value, repeatable)")
	cmd.Flags().StringVar(&opts.Select, "select", "", "output shape as JSON, overriding the query's select")
	cmd.MarkFlagsMutuallyExclusive("db", "facts")

	return cmd
}

func runQuery(opts *QueryOptions, rulesPath, queryName string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()
	ctx := cmd.Context()

	unit, err := LoadRules(rulesPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	q, err := lookupQuery(unit, queryName)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	args, err := ParseArgs(opts.Args)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	bindings, err := q.Bind(args)
	if err != nil {
		return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeBadArgument, Message: err.Error()})
	}
	shape := q.Select
	if opts.Select != "" {
		if shape, err = parseSelect(q, opts.Select); err != nil {
			return formatter.Fail(ExitCommandError, err)
		}
	}

	source, closeSource, c, err := openSource(ctx, opts.SourceOptions, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	defer closeSource()

	eng := engine.New(unit.Program, engine.WithLogger(logger))
	records, err := eng.Query(ctx, source, engine.Request{
		Application: q.Application,
		Bindings:    bindings,
		Select:      shape,
	})
	if err != nil {
		code := ErrCodeQueryFailed
		if !engine.IsStoreError(err) {
			code = ErrCodePlanFailed
		}
		return formatter.Fail(ExitFailure, &LoadError{Code: code, Message: err.Error()})
	}

	if c != nil {
		stats := c.Stats()
		logger.Debug("cache stats",
			"hits", stats.Hits,
			"misses", stats.Misses,
			"coalesced", stats.Coalesced,
			"evictions", stats.Evictions,
			"entries", stats.Entries,
			"facts", stats.Facts,
		)
	}

	plain := make([]map[string]any, len(records))
	for i, rec := range records {
		plain[i] = rec.Plain()
	}

	if formatter.Format == "json" {
		return formatter.Success(QueryResult{Query: q.Name, Count: len(plain), Records: plain})
	}

	// One canonical record per line.
	for _, rec := range plain {
		line, err := ir.MarshalCanonical(rec)
		if err != nil {
			return formatter.Fail(ExitFailure, err)
		}
		fmt.Fprintln(formatter.Writer, string(line))
	}
	formatter.VerboseLog("%d record(s)", len(plain))
	return nil
}

// parseSelect reads a --select document. Every variable it names must be
// one the query mentions.
func parseSelect(q *compiler.Query, raw string) (*projection.Shape, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, &LoadError{Code: ErrCodeBadArgument, Message: fmt.Sprintf("--select must be a JSON object: %v", err)}
	}

	var unknown []string
	shape, err := projection.Parse(doc, func(name string) ir.Variable {
		if v, ok := q.Vars[name]; ok {
			return v
		}
		unknown = append(unknown, "?"+name)
		return ir.NewVariable(name)
	})
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBadArgument, Message: err.Error()}
	}
	if len(unknown) > 0 {
		return nil, &LoadError{
			Code:    ErrCodeBadArgument,
			Message: fmt.Sprintf("--select names variables query %q never mentions: %v", q.Name, unknown),
		}
	}
	return shape, nil
}
