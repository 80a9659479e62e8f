// Package services defines the business logic for speech generation and
// per-user history. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingUser indicates that no user identity accompanied the request.
	// This is a session problem, distinct from field validation: it must not
	// be reported alongside prompt/voice violations.
	ErrMissingUser = errors.New("user session required")

	// ErrGenerationNotFound indicates that the requested generation does not
	// exist or is not accessible to the current user. Ownership mismatches
	// surface as this same error so record existence is never revealed.
	ErrGenerationNotFound = errors.New("generation not found")
)

// FieldViolation names one invalid request field and why it failed.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every failed field of a request so callers can
// report them all at once instead of one per round-trip.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
