package compiler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/salience/internal/ir"
)

// LoadMode controls how errors are handled during package loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes, shared with the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeNoPackages  = "E007" // No pkg entries in the sources
)

// LoadResult contains the packages compiled from a directory.
type LoadResult struct {
	Packages  []*ir.PackageDescr
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// Package returns the loaded package with the given name.
func (r *LoadResult) Package(name string) (*ir.PackageDescr, bool) {
	for _, p := range r.Packages {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// LoadError represents an error that occurred during loading.
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

// loadFailure wraps a single LoadError in the []error LoadPackages returns.
func loadFailure(code, format string, args ...any) []error {
	return []error{&LoadError{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// LoadPackages loads every pkg entry from the CUE files in dir.
// With LoadModeFailFast it stops at the first package that fails to
// compile; with LoadModeCollectAll it compiles all of them. A nil result
// means dir could not be loaded at all.
func LoadPackages(dir string, mode LoadMode) (*LoadResult, []error) {
	switch info, err := os.Stat(dir); {
	case errors.Is(err, fs.ErrNotExist):
		return nil, loadFailure(ErrCodeNotFound, "package directory not found: %s", dir)
	case err != nil:
		return nil, loadFailure(ErrCodeNotFound, "error accessing package directory: %v", err)
	case !info.IsDir():
		return nil, loadFailure(ErrCodeNotFound, "not a directory: %s", dir)
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, loadFailure(ErrCodeScanError, "error scanning directory: %v", err)
	}
	if len(cueFiles) == 0 {
		return nil, loadFailure(ErrCodeNoFiles, "no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, loadFailure(ErrCodeLoadFailed, "no CUE instances loaded")
	}
	if err := instances[0].Err; err != nil {
		return nil, loadFailure(ErrCodeLoadFailed, "loading CUE files: %v", err)
	}

	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, loadFailure(ErrCodeBuildFailed, "building CUE value: %v", err)
	}

	result := &LoadResult{CUEValue: value, FileCount: len(cueFiles)}
	return result, CompileAll(value, result, mode)
}

// LoadString compiles packages from CUE source text.
func LoadString(src string) (*LoadResult, []error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	result := &LoadResult{CUEValue: value}
	return result, CompileAll(value, result, LoadModeCollectAll)
}

// CompileAll compiles every field of value's pkg struct into result.
func CompileAll(value cue.Value, result *LoadResult, mode LoadMode) []error {
	pkgs := value.LookupPath(cue.ParsePath("pkg"))
	if !pkgs.Exists() {
		return loadFailure(ErrCodeNoPackages, "no pkg entries found")
	}
	iter, err := pkgs.Fields()
	if err != nil {
		return loadFailure(ErrCodeGeneric, "iterating packages: %v", err)
	}

	var errs []error
	for iter.Next() {
		descr, err := CompilePackage(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, "pkg."+iter.Label()))
			if mode == LoadModeFailFast {
				return errs
			}
			continue
		}
		result.Packages = append(result.Packages, descr)
	}

	if len(result.Packages) == 0 && len(errs) == 0 {
		return loadFailure(ErrCodeNoPackages, "no packages found")
	}
	return errs
}

// FindCUEFiles returns the .cue files under dir, skipping hidden
// directories.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeBuildFailed,
			Message: fmt.Sprintf("%s: %s: %s", context, compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}
