// Package apperr defines the error taxonomy surfaced by the review engine.
package apperr

import (
	"errors"
	"fmt"

	"github.com/bisq-support/review-engine/internal/model"
)

// ValidationError is returned before any state mutation when input is unacceptable.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// Validation creates a ValidationError for field.
func Validation(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

// ConflictError reports that a record was already transitioned by another actor,
// or that an unresolved duplicate blocks the action.
type ConflictError struct {
	Entity  string
	ID      string
	Current string
	Msg     string
	Matches []model.SimilarFAQ
}

func (e *ConflictError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = "not pending"
	}
	if e.Current != "" {
		return fmt.Sprintf("conflict: %s %s: %s (current: %s)", e.Entity, e.ID, msg, e.Current)
	}
	return fmt.Sprintf("conflict: %s %s: %s", e.Entity, e.ID, msg)
}

// Conflict creates a ConflictError for a record whose state is no longer the expected one.
func Conflict(entity, id, current string) *ConflictError {
	return &ConflictError{Entity: entity, ID: id, Current: current}
}

// DuplicateConflict creates a ConflictError carrying the matching FAQs.
func DuplicateConflict(entity, id string, matches []model.SimilarFAQ) *ConflictError {
	return &ConflictError{
		Entity:  entity,
		ID:      id,
		Msg:     "unresolved near-duplicate FAQ",
		Matches: matches,
	}
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// NotFound creates a NotFoundError.
func NotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// UpstreamError wraps a failure of an external collaborator (scorer, similarity service).
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Upstream wraps err as an UpstreamError for service.
func Upstream(service string, err error) *UpstreamError {
	return &UpstreamError{Service: service, Err: err}
}

// IsValidation reports whether err (or any error in its chain) is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsConflict reports whether err (or any error in its chain) is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// AsConflict extracts the ConflictError from err's chain.
func AsConflict(err error) (*ConflictError, bool) {
	var target *ConflictError
	ok := errors.As(err, &target)
	return target, ok
}

// IsNotFound reports whether err (or any error in its chain) is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsUpstream reports whether err (or any error in its chain) is an UpstreamError.
func IsUpstream(err error) bool {
	var target *UpstreamError
	return errors.As(err, &target)
}
