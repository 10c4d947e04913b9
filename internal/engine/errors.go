package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hivecmu/hive/internal/repo"
)

// ErrorKind tags workflow failures so callers can map them without string
// matching.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "not_found"
	KindValidation ErrorKind = "validation"
	KindInternal   ErrorKind = "internal"
	KindExternal   ErrorKind = "external"
)

// Error is the failure side of every workflow operation: a kind plus a
// non-empty issue list. Operations return a value or an Error, never both.
type Error struct {
	Kind   ErrorKind
	Issues []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Issues, "; "))
}

func notFoundErr(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Issues: []string{fmt.Sprintf(format, args...)}}
}

func validationErr(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Issues: []string{fmt.Sprintf(format, args...)}}
}

func internalErr(err error) *Error {
	return &Error{Kind: KindInternal, Issues: []string{err.Error()}}
}

// externalErr propagates the generator's issue list unchanged.
func externalErr(issues []string) *Error {
	if len(issues) == 0 {
		issues = []string{"generation failed"}
	}
	return &Error{Kind: KindExternal, Issues: issues}
}

// wrapStorage converts a repo error, preserving not-found semantics.
func wrapStorage(err error, what string) *Error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFoundErr("%s not found", what)
	}
	return internalErr(err)
}
