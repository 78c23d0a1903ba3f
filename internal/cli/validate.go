package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/syncframe/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Syncs  int                        `json:"syncs"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-path>",
		Short: "Validate sync specs without producing output",
		Long: `Validate CUE sync rules and sql queries.

Performs syntax checking, rule compilation and the static rule checks
(unique IDs, non-empty when/then, every then variable bound) without
writing any output. Faster than compile for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsPath string, cmd *cobra.Command) error {
	formatter := NewFormatter(cmd, opts)

	validationErrors, syncs, err := ValidateSpecs(specsPath)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	formatter.VerboseLog("Validated %d sync(s) in %s", syncs, specsPath)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}
	return outputValidateSuccess(formatter, syncs)
}

// ValidateSpecs loads the specs at path and returns every problem found as
// a ValidationError, plus the number of syncs that compiled. The error is
// non-nil only when nothing could be loaded.
func ValidateSpecs(path string) ([]compiler.ValidationError, int, error) {
	specs, loadErrors := LoadSpecs(path)
	if specs == nil {
		return nil, 0, loadErrors[0]
	}

	var out []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			out = append(out, compiler.ValidationError{Field: "load", Message: err.Error(), Code: ErrCodeGeneric})
			continue
		}
		field := "load"
		if loadErr.Pos.IsValid() {
			field = fmt.Sprintf("%s:%d", loadErr.Pos.Filename(), loadErr.Pos.Line())
		}
		out = append(out, compiler.ValidationError{Field: field, Message: loadErr.Message, Code: loadErr.Code})
	}
	out = append(out, compiler.ValidateSyncs(specs.Syncs)...)
	return out, len(specs.Syncs), nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, syncs int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Syncs: syncs})
	}

	fmt.Fprintf(formatter.Writer, "✓ All specs valid (%d %s)\n", syncs, plural(syncs, "sync", "syncs"))
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Validation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		first := CLIError{Code: errs[0].Code, Message: errs[0].Message}
		if err := formatter.Failure(first, ValidationResult{Valid: false, Errors: errs}); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.SyncID != "" {
			fmt.Fprintf(formatter.Writer, "sync %s\n", err.SyncID)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
