package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/roach88/deduce/internal/cache"
	"github.com/roach88/deduce/internal/compiler"
	"github.com/roach88/deduce/internal/engine"
	"github.com/roach88/deduce/internal/harness"
	"github.com/roach88/deduce/internal/memory"
	"github.com/roach88/deduce/internal/store"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeNotFound      = "E002" // Path not found
	ErrCodeReadFailed    = "E003" // File read error
	ErrCodeBuildFailed   = "E004" // CUE build failed
	ErrCodeCompileFailed = "E005" // Rules failed to compile
	ErrCodeUnknownQuery  = "E006" // Query not declared
	ErrCodeBadArgument   = "E007" // --arg or --select is malformed
	ErrCodeStoreFailed   = "E008" // Fact store open/write failed
	ErrCodeFactsFailed   = "E009" // Facts file is malformed
	ErrCodePlanFailed    = "E010" // Query could not be planned
	ErrCodeQueryFailed   = "E011" // Query evaluation failed
	ErrCodeNoSource      = "E012" // Neither --db nor --facts given
)

// LoadError represents an error that occurred while loading CLI inputs.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// readRules reads a CUE rules file and builds its value without compiling
// the rules.
func readRules(path string) (cue.Value, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cue.Value{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules file not found: %s", path)}
	}
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading rules file: %v", err)}
	}

	value := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return value, nil
}

// LoadRules reads and compiles a CUE rules file.
func LoadRules(path string) (*compiler.Unit, error) {
	value, err := readRules(path)
	if err != nil {
		return nil, err
	}
	unit, err := compiler.Compile(value)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return unit, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeCompileFailed,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeCompileFailed, Message: err.Error()}
}

// lookupQuery finds a declared query.
func lookupQuery(unit *compiler.Unit, name string) (*compiler.Query, error) {
	q, ok := unit.Query(name)
	if !ok {
		names := make([]string, len(unit.Queries))
		for i, q := range unit.Queries {
			names[i] = q.Name
		}
		return nil, &LoadError{
			Code:    ErrCodeUnknownQuery,
			Message: fmt.Sprintf("unknown query %q (declared: %s)", name, strings.Join(names, ", ")),
		}
	}
	return q, nil
}

// ParseArgs parses name=value pairs. A value that reads as JSON is decoded
// (numbers keep their integer/float distinction); anything else is a string.
func ParseArgs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimPrefix(name, "?")
		if !ok || name == "" {
			return nil, &LoadError{Code: ErrCodeBadArgument, Message: fmt.Sprintf("argument %q must be name=value", pair)}
		}
		if _, dup := args[name]; dup {
			return nil, &LoadError{Code: ErrCodeBadArgument, Message: fmt.Sprintf("argument %q given twice", name)}
		}
		args[name] = parseValue(raw)
	}
	return args, nil
}

func parseValue(raw string) any {
	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()
	var v any
	if err := decoder.Decode(&v); err != nil || decoder.More() {
		return raw
	}
	switch v.(type) {
	case []any:
		return raw
	}
	return v
}

// SourceOptions selects the fact source for a command.
type SourceOptions struct {
	Database  string // SQLite database path
	Facts     string // YAML facts file loaded into memory
	CacheSize int    // facts held by the result cache; 0 disables it
}

// openSource opens the configured fact source. The returned func releases it.
func openSource(ctx context.Context, opts SourceOptions, logger *slog.Logger) (engine.Querier, func(), *cache.Cache, error) {
	var source engine.Querier
	closeSource := func() {}

	switch {
	case opts.Database != "" && opts.Facts != "":
		return nil, nil, nil, &LoadError{Code: ErrCodeBadArgument, Message: "--db and --facts are mutually exclusive"}
	case opts.Database != "":
		if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
			return nil, nil, nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("database not found: %s", opts.Database)}
		}
		st, err := store.Open(opts.Database, store.WithLogger(logger))
		if err != nil {
			return nil, nil, nil, &LoadError{Code: ErrCodeStoreFailed, Message: err.Error()}
		}
		source = st
		closeSource = func() { st.Close() }
	case opts.Facts != "":
		facts, err := harness.LoadFacts(opts.Facts)
		if err != nil {
			return nil, nil, nil, &LoadError{Code: ErrCodeFactsFailed, Message: err.Error()}
		}
		mem := memory.Load(facts...)
		logger.Info("facts loaded", "path", opts.Facts, "facts", mem.Len())
		source = mem
	default:
		return nil, nil, nil, &LoadError{Code: ErrCodeNoSource, Message: "one of --db or --facts is required"}
	}

	if err := ctx.Err(); err != nil {
		closeSource()
		return nil, nil, nil, err
	}

	if opts.CacheSize <= 0 {
		return source, closeSource, nil, nil
	}
	c, err := cache.New(source, opts.CacheSize)
	if err != nil {
		closeSource()
		return nil, nil, nil, &LoadError{Code: ErrCodeBadArgument, Message: err.Error()}
	}
	return c, closeSource, c, nil
}
