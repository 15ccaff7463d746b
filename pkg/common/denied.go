//
//  Copyright © Manetu Inc. All rights reserved.
//

package common

import (
	"errors"
	"fmt"
	"strings"
)

// MissingAuthorization names one permission/resource pair that would have
// satisfied a denied check.
type MissingAuthorization struct {
	Permission string `json:"permission"`
	Resource   string `json:"resource"`
	ResourceID string `json:"resourceId,omitempty"`
}

func (m MissingAuthorization) String() string {
	if m.ResourceID == "" || m.ResourceID == "*" {
		return fmt.Sprintf("'%s' permission on resource '%s'", m.Permission, m.Resource)
	}
	return fmt.Sprintf("'%s' permission on resource '%s' of type '%s'", m.Permission, m.ResourceID, m.Resource)
}

// AuthorizationError is raised when a principal lacks every permission that
// would satisfy a command.  Missing lists the alternatives in check order.
type AuthorizationError struct {
	UserID        string                 `json:"userId"`
	Missing       []MissingAuthorization `json:"missing"`
	AdminRequired bool                   `json:"adminRequired,omitempty"`
}

// NewAuthorizationError builds a denial for userID.
func NewAuthorizationError(userID string, missing ...MissingAuthorization) *AuthorizationError {
	return &AuthorizationError{UserID: userID, Missing: missing}
}

func (e *AuthorizationError) Error() string {
	alternatives := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		alternatives = append(alternatives, m.String())
	}

	if e.AdminRequired {
		return "Required admin authenticated group or user or any of the following permissions: " +
			strings.Join(alternatives, ", ")
	}

	if len(alternatives) == 1 {
		return fmt.Sprintf("The user with id '%s' does not have %s.", e.UserID, alternatives[0])
	}

	return fmt.Sprintf("The user with id '%s' does not have one of the following permissions: %s",
		e.UserID, strings.Join(alternatives, " or "))
}

// Is reports a match against ErrAuthorizationDenied.
func (e *AuthorizationError) Is(target error) bool {
	var t *AuthzError
	if errors.As(target, &t) {
		return t.Kind == KindAuthorizationDenied
	}
	return false
}
