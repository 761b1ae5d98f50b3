package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/deduce/internal/harness"
	"github.com/roach88/deduce/internal/store"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Database string
}

// LoadResult is the payload of the load command.
type LoadResult struct {
	Transaction string `json:"transaction"`
	Seq         int64  `json:"seq"`
	Cause       string `json:"cause"`
	Read        int    `json:"read"`
	Asserted    int    `json:"asserted"`
	Total       int    `json:"total"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <facts.yaml>",
		Short: "Assert facts from a YAML file into a fact store",
		Long: `Assert every fact in a YAML facts file into a SQLite fact store in one
transaction. The database is created if it does not exist. Facts already
in the store are left as they are.

Example:
  deduce load movies.yaml --db facts.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite fact store (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runLoad(opts *LoadOptions, factsPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()
	ctx := cmd.Context()

	facts, err := harness.LoadFacts(factsPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeFactsFailed, Message: err.Error()})
	}

	st, err := store.Open(opts.Database, store.WithLogger(logger))
	if err != nil {
		return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeStoreFailed, Message: err.Error()})
	}
	defer st.Close()

	receipt, err := st.Assert(ctx, facts...)
	if err != nil {
		return formatter.Fail(ExitFailure, &LoadError{Code: ErrCodeStoreFailed, Message: err.Error()})
	}
	total, err := st.Len(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, &LoadError{Code: ErrCodeStoreFailed, Message: err.Error()})
	}

	result := LoadResult{
		Transaction: receipt.ID,
		Seq:         receipt.Seq,
		Cause:       receipt.Cause.String(),
		Read:        len(facts),
		Asserted:    receipt.Asserted,
		Total:       total,
	}
	logger.Debug("facts loaded", "path", factsPath, "db", opts.Database, "tx", receipt.ID, "asserted", receipt.Asserted)

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Loaded %d fact(s) from %s (%d new, %d in store)\n",
		result.Read, factsPath, result.Asserted, result.Total)
	formatter.VerboseLog("transaction %s (seq %d)", result.Transaction, result.Seq)
	return nil
}
