package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks lookups for agents, items, or leases that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict marks mutations that presented a stale expected
	// version. Callers must refetch; the core never retries these itself.
	ErrVersionConflict = errors.New("version conflict")
	// ErrLockUnavailable marks lease acquisitions blocked by a live lease
	// held by another owner.
	ErrLockUnavailable = errors.New("lock unavailable")
	// ErrValidation marks caller mistakes: unknown segments or statuses,
	// missing fields, unresolvable knowledge references.
	ErrValidation = errors.New("validation error")
	// ErrForbidden marks policy violations, e.g. ingesting outside the
	// configured creation segment. Distinct from ErrValidation.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks duplicate idempotency keys and duplicate active
	// tasks.
	ErrConflict = errors.New("conflict")
	// ErrInternal marks serialization failures and data-integrity problems
	// that are not the caller's fault.
	ErrInternal = errors.New("internal error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FieldError reports a validation failure for a single named field together
// with the requirement it failed to satisfy.
func FieldError(component, operation, field, requirement string) error {
	return Wrap(ErrValidation, component, operation, fmt.Sprintf("field %q: %s", field, requirement), nil)
}

// AggregateValidation folds multiple validation problems into one error so
// callers see every failure at once instead of fixing them one at a time.
// Returns nil when problems is empty.
func AggregateValidation(component, operation string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return Wrap(ErrValidation, component, operation, strings.Join(problems, "; "), nil)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
