// Package policyerr defines the engine's error taxonomy.
//
// A deny decision is an authorization result; an error here is an engine
// fault. Callers distinguish the two explicitly rather than inferring a
// fault from a deny.
package policyerr

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("%w: ...", Kind) to add context.
var (
	ErrParse             = errors.New("parse error")
	ErrValidation        = errors.New("validation error")
	ErrMissingField      = errors.New("missing field")
	ErrInvalidFieldValue = errors.New("invalid field value")
	ErrConditionError    = errors.New("condition error")
	ErrRuleError         = errors.New("rule error")
	ErrNotFound          = errors.New("not found")
	ErrSerialization     = errors.New("serialization error")
	ErrHash              = errors.New("hash error")
	ErrCanonicalization  = errors.New("canonicalization error")
	ErrInternal          = errors.New("internal error")
)
