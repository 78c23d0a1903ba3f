package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/syncframe/internal/ir"
)

// Specs is everything compiled from a set of CUE files.
type Specs struct {
	// Syncs are in file order (paths as given, directory entries sorted by
	// name), then in declaration order within a file.
	Syncs      []ir.SyncRule
	SQLQueries []SQLQuery
	Files      []string
}

// DefinitionError ties a compile error to the sync or sql_query that
// caused it.
type DefinitionError struct {
	Kind string // "sync" or "sql_query"
	Name string
	Err  error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Name, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

// LoadSpecs compiles the sync and sql_query definitions in the given CUE
// files or directories. Directories are walked recursively for *.cue files.
// Each file is compiled on its own, so rule order follows the files.
//
// All compile errors are collected; the returned Specs holds whatever
// compiled cleanly.
func LoadSpecs(paths ...string) (*Specs, []error) {
	specs := &Specs{}
	var errs []error

	for _, path := range paths {
		files, err := FindCUEFiles(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		specs.Files = append(specs.Files, files...)
	}
	if len(errs) > 0 {
		return specs, errs
	}
	if len(specs.Files) == 0 {
		return specs, []error{fmt.Errorf("no CUE files found in %v", paths)}
	}

	ctx := cuecontext.New()
	for _, file := range specs.Files {
		data, err := os.ReadFile(file)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", file, err))
			continue
		}
		value := ctx.CompileBytes(data, cue.Filename(file))
		if err := value.Err(); err != nil {
			errs = append(errs, formatCUEError(err))
			continue
		}
		errs = append(errs, specs.add(value)...)
	}
	return specs, errs
}

func (s *Specs) add(value cue.Value) []error {
	var errs []error

	if syncsVal := value.LookupPath(cue.ParsePath("sync")); syncsVal.Exists() {
		iter, err := syncsVal.Fields()
		if err != nil {
			errs = append(errs, formatCUEError(err))
		} else {
			for iter.Next() {
				rule, err := CompileSync(iter.Value())
				if err != nil {
					errs = append(errs, &DefinitionError{Kind: "sync", Name: iter.Selector().Unquoted(), Err: err})
					continue
				}
				s.Syncs = append(s.Syncs, *rule)
			}
		}
	}

	if queriesVal := value.LookupPath(cue.ParsePath("sql_query")); queriesVal.Exists() {
		iter, err := queriesVal.Fields()
		if err != nil {
			errs = append(errs, formatCUEError(err))
		} else {
			for iter.Next() {
				q, err := CompileSQLQuery(iter.Value())
				if err != nil {
					errs = append(errs, &DefinitionError{Kind: "sql_query", Name: iter.Selector().Unquoted(), Err: err})
					continue
				}
				s.SQLQueries = append(s.SQLQueries, *q)
			}
		}
	}

	return errs
}

// FindCUEFiles returns path itself if it is a file, or every .cue file
// under it in lexical order if it is a directory.
func FindCUEFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("specs path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(p) == ".cue" {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}
