// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the entity is not in a state that allows the operation.
var ErrConflict = errors.New("conflict")

// ErrValidation indicates invalid caller input. Wrap it with the offending field:
//
//	fmt.Errorf("%w: customerEmail is required", domain.ErrValidation)
var ErrValidation = errors.New("validation failed")
