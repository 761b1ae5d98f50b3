package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/deduce/internal/engine"
	"github.com/roach88/deduce/internal/ir"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Args []string
}

// ExplainResult is the JSON payload of the explain command.
type ExplainResult struct {
	Query string   `json:"query"`
	Rule  string   `json:"rule"`
	Bound []string `json:"bound"`
	Cost  string   `json:"cost"`
	Plan  string   `json:"plan"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <rules.cue> <query>",
		Short: "Show the plan chosen for a query",
		Long: `Plan a query without reading any facts and print the plan tree with
the cost committed for each step.

Variables bound with --arg are planned as known on entry, which is
usually what moves a query from a scan to an index lookup.

Example:
  deduce explain rules.cue titles-with --arg actor="Ed Asner"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "bind a query variable (name=value, repeatable)")

	return cmd
}

func runExplain(opts *ExplainOptions, rulesPath, queryName string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

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
	if _, err := q.Bind(args); err != nil {
		return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeBadArgument, Message: err.Error()})
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	bound := make([]ir.Variable, len(names))
	for i, name := range names {
		bound[i] = q.Vars[name]
	}

	eng := engine.New(unit.Program, engine.WithLogger(opts.logger()))
	plan, err := eng.Plan(q.Application, bound...)
	if err != nil {
		return formatter.Fail(ExitFailure, &LoadError{Code: ErrCodePlanFailed, Message: err.Error()})
	}

	text := engine.Explain(plan)
	if formatter.Format == "json" {
		return formatter.Success(ExplainResult{
			Query: q.Name,
			Rule:  q.Application.Name,
			Bound: names,
			Cost:  plan.Cost().String(),
			Plan:  text,
		})
	}

	fmt.Fprintf(formatter.Writer, "query %s (cost=%s)\n", q.Name, plan.Cost())
	fmt.Fprint(formatter.Writer, text)
	return nil
}
