package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/syncframe/internal/compiler"
	"github.com/roach88/syncframe/internal/ir"
	"github.com/roach88/syncframe/internal/queryir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled rules, the sql_query summaries and
// any cycle warnings.
type CompilationResult struct {
	IRVersion string                  `json:"ir_version"`
	Syncs     []ir.SyncRule           `json:"syncs"`
	Queries   []QuerySummary          `json:"queries,omitempty"`
	Warnings  []compiler.CycleWarning `json:"warnings,omitempty"`
}

// QuerySummary describes a compiled sql_query: the table it reads, the
// arguments it needs and the fields it binds.
type QuerySummary struct {
	Name   string   `json:"name"`
	From   string   `json:"from"`
	Args   []string `json:"args"`
	Fields []string `json:"fields"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs>",
		Short: "Compile CUE sync rules to JSON",
		Long: `Compile CUE sync rules and sql_query definitions.

Rules are checked for reference format, clause shape, filter syntax and
variable scoping, then written as JSON in evaluation order. Rules that can
trigger each other in a loop are reported as warnings; the pass budget
bounds them at runtime.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, specsPath string, cmd *cobra.Command) error {
	formatter := NewFormatter(cmd, opts.RootOptions)

	specs, loadErrors := LoadSpecs(specsPath)
	if specs == nil {
		return outputCompileError(formatter, loadErrors[0])
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", len(specs.Files), specsPath)
	for _, sync := range specs.Syncs {
		formatter.VerboseLog("Compiled sync: %s", sync.ID)
	}

	for _, verr := range compiler.ValidateSyncs(specs.Syncs) {
		loadErrors = append(loadErrors, &LoadError{Code: verr.Code, Message: verr.Error()})
	}
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{
		IRVersion: ir.IRVersion,
		Syncs:     specs.Syncs,
		Warnings:  compiler.AnalyzeCycles(specs.Syncs),
	}
	for _, q := range specs.SQLQueries {
		result.Queries = append(result.Queries, QuerySummary{
			Name:   q.Name,
			From:   q.Query.From,
			Args:   queryir.Args(q.Query),
			Fields: queryir.Fields(q.Query),
		})
	}

	if opts.Output != "" {
		if err := writeResultToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d sync(s), %d sql quer%s\n\n",
		len(result.Syncs), len(result.Queries), plural(len(result.Queries), "y", "ies"))

	if len(result.Syncs) > 0 {
		fmt.Fprintln(w, "Syncs:")
		for _, sync := range result.Syncs {
			fmt.Fprintf(w, "  %s: %s → %s\n", sync.ID, patternRefs(sync.When), callRefs(sync.Then))
		}
		fmt.Fprintln(w)
	}

	if len(result.Queries) > 0 {
		fmt.Fprintln(w, "Queries:")
		for _, q := range result.Queries {
			fmt.Fprintf(w, "  %s: %s(%s) → %s\n", q.Name, q.From, strings.Join(q.Args, ", "), strings.Join(q.Fields, ", "))
		}
		fmt.Fprintln(w)
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "⚠ %s\n", warning.Message)
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(w)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote rules to %s\n", outputFile)
	}
	return nil
}

func patternRefs(patterns []ir.Pattern) string {
	refs := make([]string, len(patterns))
	for i, p := range patterns {
		refs[i] = p.ActionRef()
	}
	return strings.Join(refs, " + ")
}

func callRefs(calls []ir.ActionCall) string {
	refs := make([]string, len(calls))
	for i, c := range calls {
		refs[i] = c.ActionRef()
	}
	return strings.Join(refs, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// outputCompileError outputs a single error that stopped compilation.
func outputCompileError(formatter *OutputFormatter, err error) error {
	code, message := parseCompileError(err)
	_ = formatter.Error(code, message, nil)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs every compilation error.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		if err := formatter.Failure(cliErrors[0], cliErrors); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeResultToFile writes the compilation result as indented JSON.
func writeResultToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling rules: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
