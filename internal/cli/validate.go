package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/deduce/internal/compiler"
	"github.com/roach88/deduce/internal/engine"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/syntax"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                       `json:"valid"`
	Format  string                     `json:"format"` // rule format version
	Rules   int                        `json:"rules"`
	Queries int                        `json:"queries"`
	Errors  []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules.cue>",
		Short: "Check a rules file",
		Long: `Check a CUE rules file for structural errors, then compile it to
catch what only the rule composer sees: branches that leave a match
variable unbound, missing base cases, rules that apply each other.
Finally every declared query is planned with all of its variables
bound, so a query no arguments could satisfy is reported here.

Structural errors are all reported at once; compilation stops at the
first error.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	value, err := readRules(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	// Structural pass collects every error.
	if errs := compiler.Validate(value); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	formatter.VerboseLog("Structure of %s is valid, compiling", path)
	unit, err := compiler.Compile(value)
	if err != nil {
		return outputValidationErrors(formatter, []compiler.ValidationError{compileValidationError(err)})
	}

	formatter.VerboseLog("Compiled %d rule(s), planning %d query(ies)", len(unit.Program.Rules()), len(unit.Queries))
	if errs := planQueries(opts, unit); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	return outputValidateSuccess(formatter, ValidationResult{
		Valid:   true,
		Format:  ir.RuleFormatVersion,
		Rules:   len(unit.Program.Rules()),
		Queries: len(unit.Queries),
	})
}

// planQueries plans every declared query with all its variables bound and
// reports the queries that still cannot be planned.
func planQueries(opts *RootOptions, unit *compiler.Unit) []compiler.ValidationError {
	eng := engine.New(unit.Program, engine.WithLogger(opts.logger()))

	var errs []compiler.ValidationError
	for _, q := range unit.Queries {
		names := q.Names()
		bound := make([]ir.Variable, len(names))
		for i, name := range names {
			bound[i] = q.Vars[name]
		}
		if _, err := eng.Plan(q.Application, bound...); err != nil {
			ve := compileValidationError(err)
			ve.Field = "query." + q.Name
			errs = append(errs, ve)
		}
	}
	return errs
}

// compileValidationError reports a compile error in validation form. Errors
// from the rule composer carry their own code.
func compileValidationError(err error) compiler.ValidationError {
	ve := compiler.ValidationError{
		Field:   "rules",
		Message: err.Error(),
		Code:    ErrCodeCompileFailed,
	}
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		ve.Field = ce.Field
		ve.Message = ce.Message
		if ce.Pos.IsValid() {
			ve.Line = ce.Pos.Line()
		}
	}
	var se *syntax.CompileError
	if errors.As(err, &se) {
		ve.Code = string(se.Code)
	}
	return ve
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Rules valid: %d rule(s), %d query(ies)\n", result.Rules, result.Queries)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}); err != nil {
			return err
		}
		return failure
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return failure
}
