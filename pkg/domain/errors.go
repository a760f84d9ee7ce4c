package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyReference is returned when a reference carries neither an
	// identifier nor a name.
	ErrEmptyReference = errors.New("reference has neither _id nor name")
	// ErrStoreUnavailable matches every StoreUnavailableError.
	ErrStoreUnavailable = errors.New("document store unavailable")
	// ErrPathNotFound is wrapped by PathError when a dotted path does not resolve.
	ErrPathNotFound = errors.New("path not found")
)

// ErrNotFound reports a lookup that matched no document where absence is
// an error (delete of a missing file, explicit fetches).
type ErrNotFound struct {
	Kind Kind
	Key  LookupKey
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// SchemaValidationError reports a document that violates its schema.
type SchemaValidationError struct {
	Schema   string
	Version  string
	Problems []string
}

func (e *SchemaValidationError) Error() string {
	target := e.Schema
	if e.Version != "" {
		target += "@" + e.Version
	}
	return fmt.Sprintf("schema validation failed for %s: %s", target, strings.Join(e.Problems, "; "))
}

// DuplicateRecordError reports more than one document matching a reference
// that must be unique, or a save colliding with a unique name.
type DuplicateRecordError struct {
	Kind  Kind
	Key   string
	Count int
}

func (e DuplicateRecordError) Error() string {
	if e.Count > 1 {
		return fmt.Sprintf("%s %s matches %d documents", e.Kind, e.Key, e.Count)
	}
	return fmt.Sprintf("%s %s already exists", e.Kind, e.Key)
}

// StoreUnavailableError wraps a connectivity failure of a store driver.
type StoreUnavailableError struct {
	Driver string
	Err    error
}

func (e StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s store unavailable: %v", e.Driver, e.Err)
}

func (e StoreUnavailableError) Unwrap() error { return e.Err }

// Is matches ErrStoreUnavailable.
func (e StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

// RequirementCheckError describes why one requirement leaf failed. It is
// only ever logged; the evaluator never returns it.
type RequirementCheckError struct {
	Path string
	Err  error
}

func (e RequirementCheckError) Error() string {
	return fmt.Sprintf("requirement %s: %v", e.Path, e.Err)
}

func (e RequirementCheckError) Unwrap() error { return e.Err }

// PathError reports a dotted path that could not be resolved.
type PathError struct {
	Path    []string
	Segment int
	Err     error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("resolve %s: %v", strings.Join(e.Path, "."), e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }
