// Package services defines the shared error taxonomy and context helpers
// used by every component that touches the task store.
//
// Every failure crossing a component boundary is tagged with one of the
// exported sentinel errors so callers can classify with errors.Is instead of
// matching strings. Storage-level failures never leak raw; the component
// that observed them wraps them with the matching sentinel first.
package services
