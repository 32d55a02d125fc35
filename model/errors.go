package model

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist. Lookups
	// return it as a normal outcome, distinct from transport failures.
	ErrNotFound = errors.New("entity not found")
	// ErrConflict indicates a write collided with an existing document,
	// typically a duplicate id on create.
	ErrConflict = errors.New("entity already exists")
	// ErrConcurrency indicates an update targeted a stale version of a
	// document and was rejected by the store's precondition check.
	ErrConcurrency = errors.New("concurrency token mismatch")
	// ErrInvalid indicates a nil or empty required argument, detected
	// before any I/O.
	ErrInvalid = errors.New("invalid argument")
	// ErrAmbiguous indicates a single-entity lookup matched more than one
	// document.
	ErrAmbiguous = errors.New("more than one entity matched")
)
