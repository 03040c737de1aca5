// Package validation provides the pre-run checks whose failure aborts a sync
// before anything is touched.
package validation

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Error represents a validation failure with context.
type Error struct {
	// Field is the name of the field or component that failed validation
	Field string
	// Message describes the validation failure
	Message string
	// Err is the underlying error (if any)
	Err error
}

// Error returns a formatted validation error message.
func (ve *Error) Error() string {
	if ve.Err != nil {
		return fmt.Sprintf("validation failed for %q: %s: %v", ve.Field, ve.Message, ve.Err)
	}
	return fmt.Sprintf("validation failed for %q: %s", ve.Field, ve.Message)
}

// Unwrap returns the underlying error for errors.Is/As.
func (ve *Error) Unwrap() error {
	return ve.Err
}

// Errors collects multiple validation errors.
type Errors []error

// Error returns a formatted error message for all validation failures.
func (ve Errors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}
	return fmt.Sprintf("%d validation errors:\n- %s", len(ve), errors.Join(ve...))
}

// Unwrap exposes the collected errors to errors.Is/As.
func (ve Errors) Unwrap() []error {
	return ve
}

// IsStructural reports whether err is a validation failure, i.e. one that
// must stop a run before any mutation.
func IsStructural(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

// Result contains the outcome of a validation check.
type Result struct {
	// Valid indicates whether all validations passed
	Valid bool
	// Warnings contains non-fatal validation issues
	Warnings []string
	// Errors contains validation failures that prevent the operation
	Errors []error
}

// AddError adds an error to the validation result.
func (r *Result) AddError(err error) {
	r.Valid = false
	r.Errors = append(r.Errors, err)
}

// AddWarning adds a warning to the validation result.
func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// HasErrors returns true if there are any validation errors.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns the combined validation error message.
func (r *Result) Error() error {
	if !r.HasErrors() {
		return nil
	}
	if len(r.Errors) == 1 {
		return r.Errors[0]
	}
	return Errors(r.Errors)
}

// Roots is the validated pair of tree roots.
type Roots struct {
	Source string
	Dest   string
	// DestMissing is set when the destination root does not exist yet.
	DestMissing bool
}

// ValidateRoots checks that source is a readable directory, that dest is a
// directory or absent with an existing parent, and that neither root
// contains the other.
func ValidateRoots(fsys afero.Fs, source, dest string) (*Roots, error) {
	result := &Result{Valid: true}
	roots := &Roots{}

	if source == "" {
		result.AddError(&Error{Field: "source", Message: "path cannot be empty"})
	}
	if dest == "" {
		result.AddError(&Error{Field: "destination", Message: "path cannot be empty"})
	}
	if result.HasErrors() {
		return nil, result.Error()
	}

	roots.Source = filepath.Clean(source)
	roots.Dest = filepath.Clean(dest)

	if err := validateDir(fsys, "source", roots.Source); err != nil {
		result.AddError(err)
	}

	info, err := fsys.Stat(roots.Dest)
	switch {
	case os.IsNotExist(err):
		roots.DestMissing = true
		parent := filepath.Dir(roots.Dest)
		if err := validateDir(fsys, "destination", parent); err != nil {
			result.AddError(&Error{
				Field:   "destination",
				Message: fmt.Sprintf("parent of missing destination is unusable: %s", parent),
				Err:     err,
			})
		}
	case err != nil:
		result.AddError(&Error{
			Field:   "destination",
			Message: fmt.Sprintf("cannot access path: %s", roots.Dest),
			Err:     err,
		})
	case !info.IsDir():
		result.AddError(&Error{
			Field:   "destination",
			Message: fmt.Sprintf("path is not a directory: %s", roots.Dest),
		})
	}

	if err := checkOverlap(roots.Source, roots.Dest); err != nil {
		result.AddError(err)
	}

	if result.HasErrors() {
		return nil, result.Error()
	}
	return roots, nil
}

// validateDir requires path to be a readable directory.
func validateDir(fsys afero.Fs, field, path string) error {
	info, err := fsys.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Error{
				Field:   field,
				Message: fmt.Sprintf("path does not exist: %s", path),
				Err:     err,
			}
		}
		return &Error{
			Field:   field,
			Message: fmt.Sprintf("cannot access path: %s", path),
			Err:     err,
		}
	}
	if !info.IsDir() {
		return &Error{
			Field:   field,
			Message: fmt.Sprintf("path is not a directory: %s", path),
		}
	}

	f, err := fsys.Open(path)
	if err != nil {
		return &Error{
			Field:   field,
			Message: fmt.Sprintf("cannot read directory: %s", path),
			Err:     err,
		}
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return &Error{
			Field:   field,
			Message: fmt.Sprintf("cannot read directory: %s", path),
			Err:     err,
		}
	}
	return nil
}

// checkOverlap rejects roots nested inside each other; syncing them would
// feed the destination back into the source walk.
func checkOverlap(source, dest string) error {
	src, err := filepath.Abs(source)
	if err != nil {
		return &Error{Field: "source", Message: "cannot resolve absolute path", Err: err}
	}
	dst, err := filepath.Abs(dest)
	if err != nil {
		return &Error{Field: "destination", Message: "cannot resolve absolute path", Err: err}
	}
	if src == dst || within(dst, src) || within(src, dst) {
		return &Error{
			Field:   "roots",
			Message: fmt.Sprintf("source %s and destination %s overlap", src, dst),
		}
	}
	return nil
}

func within(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// WriteTestPattern names the scratch file CheckWritable creates and removes.
const WriteTestPattern = ".mirrorsync-write-test-*"

// CheckWritable verifies that files can be created in dir.
func CheckWritable(fsys afero.Fs, dir string) error {
	f, err := afero.TempFile(fsys, dir, WriteTestPattern)
	if err != nil {
		return &Error{
			Field:   "destination",
			Message: fmt.Sprintf("directory is not writable: %s", dir),
			Err:     err,
		}
	}
	name := f.Name()
	_ = f.Close()
	_ = fsys.Remove(name)
	return nil
}
