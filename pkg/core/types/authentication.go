//
//  Copyright © Manetu Inc. All rights reserved.
//

package types

import (
	"encoding/json"
	"errors"
	"sort"
)

// Authentication is the principal an authorization check is evaluated for.
type Authentication struct {
	UserID    string   `json:"userId" yaml:"userId" validate:"required"`
	GroupIDs  []string `json:"groupIds,omitempty" yaml:"groupIds,omitempty"`
	TenantIDs []string `json:"tenantIds,omitempty" yaml:"tenantIds,omitempty"`
}

// NewAuthentication builds an Authentication, copying groupIDs into a sorted,
// de-duplicated slice.  A nil groupIDs is the same as no groups.
func NewAuthentication(userID string, groupIDs []string) Authentication {
	return Authentication{UserID: userID, GroupIDs: NormalizeIDs(groupIDs)}
}

// NormalizeIDs returns a sorted copy of ids with empty and duplicate entries
// removed.  The result is never nil.
func NormalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// CheckRequest is the wire form of a single authorization question, shared by
// the decision point server and the CLI.
type CheckRequest struct {
	UserID     string   `json:"userId" yaml:"userId" validate:"required"`
	GroupIDs   []string `json:"groupIds,omitempty" yaml:"groupIds,omitempty"`
	Permission string   `json:"permission" yaml:"permission" validate:"required"`
	Resource   string   `json:"resource" yaml:"resource" validate:"required"`
	ResourceID string   `json:"resourceId,omitempty" yaml:"resourceId,omitempty"`
}

// AnyRequest is either a JSON string or an already decoded map.
type AnyRequest interface{}

// UnmarshalCheckRequest decodes a CheckRequest from a JSON string, raw bytes
// or a generic map.
func UnmarshalCheckRequest(input AnyRequest) (*CheckRequest, error) {
	var data []byte
	switch input := input.(type) {
	case string:
		data = []byte(input)
	case []byte:
		data = input
	case map[string]interface{}:
		var err error
		if data, err = json.Marshal(input); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("invalid type")
	}

	req := &CheckRequest{}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, err
	}
	return req, nil
}
