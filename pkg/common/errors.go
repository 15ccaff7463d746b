//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package common provides shared types and utilities used across the
// authorization engine packages.
//
// # Error Handling
//
// Every failure the engine raises deliberately is an [AuthzError] carrying an
// [ErrorKind].  Callers classify errors with [errors.Is] against the sentinel
// kinds, e.g.:
//
//	if errors.Is(err, common.ErrBadRequest) { ... }
//
// Authorization denials raised by command gates are the richer
// [AuthorizationError], which also matches [ErrAuthorizationDenied].
package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an [AuthzError].
type ErrorKind string

// Error kinds raised by the engine.
const (
	KindAuthorizationDenied ErrorKind = "AUTHORIZATION_DENIED"
	KindBadConfiguration    ErrorKind = "BAD_CONFIGURATION"
	KindBadRequest          ErrorKind = "BAD_REQUEST"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindInvalidArgument     ErrorKind = "INVALID_ARGUMENT"
	KindDuplicate           ErrorKind = "DUPLICATE"
)

// Sentinels for use with errors.Is.
var (
	ErrAuthorizationDenied = &AuthzError{Kind: KindAuthorizationDenied}
	ErrBadConfiguration    = &AuthzError{Kind: KindBadConfiguration}
	ErrBadRequest          = &AuthzError{Kind: KindBadRequest}
	ErrNotFound            = &AuthzError{Kind: KindNotFound}
	ErrInvalidArgument     = &AuthzError{Kind: KindInvalidArgument}
	ErrDuplicate           = &AuthzError{Kind: KindDuplicate}
)

// AuthzError represents an error raised by the authorization engine.
type AuthzError struct {
	// Kind is the machine-readable classification.
	Kind ErrorKind
	// Reason is a human-readable description of the error.
	Reason string
}

// Error returns the reason followed by the kind, e.g. "boom(code-BAD_REQUEST)".
func (e *AuthzError) Error() string {
	return fmt.Sprintf("%s(code-%s)", e.Reason, e.Kind)
}

// Is matches any AuthzError of the same kind.
func (e *AuthzError) Is(target error) bool {
	var t *AuthzError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError creates a new [AuthzError] with the specified kind and message.
func NewError(kind ErrorKind, msg string) *AuthzError {
	return &AuthzError{Kind: kind, Reason: msg}
}

// NewErrorf is NewError with formatting.
func NewErrorf(kind ErrorKind, format string, args ...interface{}) *AuthzError {
	return &AuthzError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first AuthzError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var ae *AuthzError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var de *AuthorizationError
	if errors.As(err, &de) {
		return KindAuthorizationDenied
	}
	return ""
}
