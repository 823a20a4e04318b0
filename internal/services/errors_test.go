package services_test

import (
	"errors"
	"strings"
	"testing"

	"conveyor/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("row gone")
	err := services.Wrap(services.ErrNotFound, "assign", "accept", "item 42", base)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound classification, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
	if !strings.Contains(err.Error(), "assign: accept: item 42") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestWrapNilMarkerDefaultsToInternal(t *testing.T) {
	err := services.Wrap(nil, "handoff", "trigger", "blank segment", nil)
	if !errors.Is(err, services.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
}

func TestAggregateValidation(t *testing.T) {
	if err := services.AggregateValidation("ingest", "validate", nil); err != nil {
		t.Fatalf("expected nil for empty problems, got %v", err)
	}
	err := services.AggregateValidation("ingest", "validate", []string{
		`knowledge reference "a.md" not found`,
		`knowledge reference "b.md" not found`,
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "a.md") || !strings.Contains(msg, "b.md") {
		t.Fatalf("expected both problems listed, got %q", msg)
	}
}

func TestFieldErrorNamesField(t *testing.T) {
	err := services.FieldError("ingest", "validate", "segment", "must be one of [intake]")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), `field "segment"`) {
		t.Fatalf("expected field name in message, got %q", err)
	}
}
