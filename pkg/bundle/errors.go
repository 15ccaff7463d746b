//
//  Copyright © Manetu Inc. All rights reserved.
//

package bundle

import (
	"fmt"
	"strings"
)

// Error types.
const (
	ErrorSchema    = "schema"
	ErrorReference = "reference"
)

// Error is a single validation failure with its location in a bundle.
type Error struct {
	Bundle   string
	Type     string
	Entity   string
	EntityID string
	Field    string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	parts := []string{}

	if e.Bundle != "" {
		parts = append(parts, fmt.Sprintf("bundle '%s'", e.Bundle))
	}

	if e.Entity != "" && e.EntityID != "" {
		parts = append(parts, fmt.Sprintf("%s '%s'", e.Entity, e.EntityID))
	}

	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field '%s'", e.Field))
	}

	context := ""
	if len(parts) > 0 {
		context = "in " + strings.Join(parts, " ") + ": "
	}

	return context + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Errors collects every validation failure of a load.
type Errors struct {
	Errors []*Error
}

func (ve *Errors) Add(err *Error) {
	ve.Errors = append(ve.Errors, err)
}

func (ve *Errors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *Errors) Count() int {
	return len(ve.Errors)
}

// First returns the first error, or nil.
func (ve *Errors) First() error {
	if len(ve.Errors) == 0 {
		return nil
	}
	return ve.Errors[0]
}

// OrNil returns ve as an error when it holds any failure.
func (ve *Errors) OrNil() error {
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func (ve *Errors) Error() string {
	if len(ve.Errors) == 0 {
		return "no validation errors"
	}

	if len(ve.Errors) == 1 {
		return ve.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d errors:\n", len(ve.Errors)))
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. [%s] %s\n", i+1, err.Type, err.Error()))
	}
	return sb.String()
}
