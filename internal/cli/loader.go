package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/syncframe/internal/compiler"
)

// LoadError is a spec loading problem with a CLI error code.
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

// LoadSpecs compiles the CUE specs under path (a file or directory) and
// converts every problem to a *LoadError. A nil result means nothing could
// be loaded at all; otherwise the result holds whatever compiled.
func LoadSpecs(path string) (*compiler.Specs, []error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs path not found: %s", path)}}
		}
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs path: %v", err)}}
	}

	files, err := compiler.FindCUEFiles(path)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
	}

	specs, errs := compiler.LoadSpecs(path)
	loadErrs := make([]error, len(errs))
	for i, err := range errs {
		loadErrs[i] = convertCompileError(err)
	}

	if len(specs.Syncs) == 0 && len(specs.SQLQueries) == 0 && len(loadErrs) == 0 {
		loadErrs = append(loadErrs, &LoadError{Code: ErrCodeGeneric, Message: "no syncs or sql queries found in specs"})
	}
	return specs, loadErrs
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var defErr *compiler.DefinitionError
	var compileErr *compiler.CompileError

	switch {
	case errors.As(err, &defErr) && errors.As(err, &compileErr):
		code := MapFieldToErrorCode(compileErr.Field)
		if defErr.Kind == "sql_query" {
			code = ErrCodeInvalidQuery
		}
		return &LoadError{
			Code:    code,
			Message: fmt.Sprintf("%s %s: %s: %s", defErr.Kind, defErr.Name, compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	case errors.As(err, &defErr):
		code := ErrCodeGeneric
		if defErr.Kind == "sql_query" {
			code = ErrCodeInvalidQuery
		}
		return &LoadError{Code: code, Message: err.Error()}
	case errors.As(err, &compileErr):
		// CUE syntax and evaluation errors carry no definition.
		return &LoadError{Code: ErrCodeBuildFailed, Message: compileErr.Message, Pos: compileErr.Pos}
	default:
		return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE file could not be read
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE syntax or evaluation error
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeDatabase    = "E008" // Audit database error

	// Sync definition errors
	ErrCodeInvalidWhen  = compiler.ErrInvalidActionRef // E110
	ErrCodeInvalidWhere = compiler.ErrInvalidWhereStep // E112
	ErrCodeInvalidThen  = "E116"
	ErrCodeInvalidQuery = "E118" // Malformed sql_query
)

// MapFieldToErrorCode maps a compiler error field to an error code.
// Fields are paths such as "when[0].action" or "where[1].out".
func MapFieldToErrorCode(field string) string {
	switch {
	case strings.HasPrefix(field, "when"):
		return ErrCodeInvalidWhen
	case strings.HasPrefix(field, "where"):
		return ErrCodeInvalidWhere
	case strings.HasPrefix(field, "then"):
		return ErrCodeInvalidThen
	default:
		return ErrCodeGeneric
	}
}
