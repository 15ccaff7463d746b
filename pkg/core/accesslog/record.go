//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

import "time"

// Decision is the outcome of a check.
type Decision string

const (
	Grant Decision = "GRANT"
	Deny  Decision = "DENY"
)

// Reasons recorded when a decision was not taken by a granting scope.
const (
	ReasonAdmin       = "admin"
	ReasonDisabled    = "authorization-disabled"
	ReasonAllDisabled = "all-permissions-disabled"
	ReasonNoMatch     = "no-decisive-scope"
	ReasonRevoked     = "revoked-alternative"
)

// Metadata identifies a record.
type Metadata struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Env       map[string]string `json:"env,omitempty"`
}

// Principal is who the decision was taken for.
type Principal struct {
	UserID   string   `json:"userId"`
	GroupIDs []string `json:"groupIds,omitempty"`
}

// Check is one alternative of a decision.
type Check struct {
	Permission string   `json:"permission"`
	Resource   string   `json:"resource"`
	ResourceID string   `json:"resourceId,omitempty"`
	Decision   Decision `json:"decision"`
	// Scope names the record scope that decided the check, e.g. "user" or
	// "group-any".  Empty when no scope was decisive.
	Scope string `json:"scope,omitempty"`
}

// Record is one audited decision.
type Record struct {
	Metadata  Metadata  `json:"metadata"`
	Principal Principal `json:"principal"`
	Checks    []Check   `json:"checks,omitempty"`
	Decision  Decision  `json:"decision"`
	Reason    string    `json:"reason,omitempty"`
	Duration  int64     `json:"durationNs"`
}
