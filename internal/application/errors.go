package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	repo "github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrUserNotFound   = errors.New("user not found")
	ErrTaskNotFound   = errors.New("task not found")
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrConflict means another request changed the same documents first.
	// Nothing was written; the caller may retry.
	ErrConflict = errors.New("concurrent update detected, retry the request")
)

// ValidationError carries per-field messages keyed by JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// storeError translates store sentinels into the errors callers classify on.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrTxConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repo.ErrDuplicateEmail):
		return ErrDuplicateEmail
	default:
		return err
	}
}
