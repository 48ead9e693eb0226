// Package apperror carries the failure taxonomy of the protection engine.
// Every domain failure has a Kind so callers can tell them apart without
// parsing messages.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation_failed"
	KindIllegalTransition Kind = "illegal_transition"
	KindIneligible        Kind = "ineligible"
	KindConflict          Kind = "conflict"
)

// Error is a recoverable domain failure.
type Error struct {
	Kind    Kind     `json:"kind"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Details, "; ")
}

// NotFound reports a missing entity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", entity, id)}
}

// Validation reports rejected input. Details lists every failed check.
func Validation(message string, details ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// IllegalTransition reports an action not permitted from the current status.
func IllegalTransition(entity, id string, from any, action string) *Error {
	return &Error{
		Kind:    KindIllegalTransition,
		Message: fmt.Sprintf("cannot %s %s %q in status %v", action, entity, id, from),
	}
}

// Ineligible reports a claim the warranty does not permit.
func Ineligible(message string) *Error {
	return &Error{Kind: KindIneligible, Message: message}
}

// Conflict reports a uniqueness clash.
func Conflict(message string, details ...string) *Error {
	return &Error{Kind: KindConflict, Message: message, Details: details}
}

// KindOf extracts the Kind from err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
