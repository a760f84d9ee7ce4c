// Package memory provides an in-memory implementation of the document store
// used for tests and ephemeral environments.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"bifrost/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain gateway.
var _ domain.DocumentStore = (*Store)(nil)

// ErrClosed is wrapped in a domain.StoreUnavailableError by every operation
// after Close.
var ErrClosed = errors.New("memory store closed")

var errUnavailable = domain.StoreUnavailableError{Driver: "memory", Err: ErrClosed}

// Snapshot captures a point-in-time clone of the store state keyed by
// collection and then by identifier.
type Snapshot map[string]map[domain.ObjectID]domain.Document

// Store keeps documents in process memory. Every read and write copies the
// document so callers never share state with the store.
type Store struct {
	mu          sync.RWMutex
	opts        domain.StoreOptions
	collections map[string]map[domain.ObjectID]domain.Document
	newID       func() domain.ObjectID
	closed      bool
}

// Option customises a memory store.
type Option func(*Store)

// WithIDGenerator overrides identifier assignment on insert.
func WithIDGenerator(fn func() domain.ObjectID) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore constructs an empty in-memory document store.
func NewStore(opts domain.StoreOptions, options ...Option) *Store {
	s := &Store{
		opts:        opts,
		collections: make(map[string]map[domain.ObjectID]domain.Document),
		newID:       domain.NewObjectID,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Load resolves key within the collection of kind.
func (s *Store) Load(_ context.Context, kind domain.Kind, key domain.LookupKey) (domain.Document, bool, error) {
	if err := domain.CheckKey(kind, key); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, errUnavailable
	}
	id, found, err := s.resolveLocked(kind, key)
	if err != nil || !found {
		return nil, false, err
	}
	return s.collections[kind.Collection()][id].Clone(), true, nil
}

// Save inserts doc when it has no identifier and replaces the stored
// document otherwise.
func (s *Store) Save(_ context.Context, kind domain.Kind, doc domain.Document) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errUnavailable
	}
	stored, id, err := domain.PrepareForSave(kind, doc, s.newID)
	if err != nil {
		return nil, err
	}
	if name, ok := stored.Name(); ok && s.opts.UniqueNames {
		for _, other := range s.idsByNameLocked(kind, name) {
			if other != id {
				return nil, domain.DuplicateRecordError{Kind: kind, Key: domain.KeyByName(name).String(), Count: 1}
			}
		}
	}
	coll := s.collections[kind.Collection()]
	if coll == nil {
		coll = make(map[domain.ObjectID]domain.Document)
		s.collections[kind.Collection()] = coll
	}
	coll[id] = stored
	return stored.Clone(), nil
}

// Delete removes the document matched by key.
func (s *Store) Delete(_ context.Context, kind domain.Kind, key domain.LookupKey) (bool, error) {
	if err := domain.CheckKey(kind, key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errUnavailable
	}
	id, found, err := s.resolveLocked(kind, key)
	if err != nil || !found {
		return false, err
	}
	delete(s.collections[kind.Collection()], id)
	return true, nil
}

// Ping reports whether the store is still open.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errUnavailable
	}
	return nil
}

// Close releases the stored documents.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.collections = nil
	return nil
}

// ExportState returns a deep copy of every stored document.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Snapshot, len(s.collections))
	for name, coll := range s.collections {
		cp := make(map[domain.ObjectID]domain.Document, len(coll))
		for id, doc := range coll {
			cp[id] = doc.Clone()
		}
		out[name] = cp
	}
	return out
}

// ImportState replaces the store contents with a copy of snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]map[domain.ObjectID]domain.Document, len(snapshot))
	for name, coll := range snapshot {
		cp := make(map[domain.ObjectID]domain.Document, len(coll))
		for id, doc := range coll {
			cp[id] = doc.Clone()
		}
		s.collections[name] = cp
	}
}

func (s *Store) resolveLocked(kind domain.Kind, key domain.LookupKey) (domain.ObjectID, bool, error) {
	if key.UsesID() {
		_, ok := s.collections[kind.Collection()][key.ID]
		return key.ID, ok, nil
	}
	ids := s.idsByNameLocked(kind, key.Name)
	switch len(ids) {
	case 0:
		return "", false, nil
	case 1:
		return ids[0], true, nil
	}
	return "", false, domain.DuplicateRecordError{Kind: kind, Key: key.String(), Count: len(ids)}
}

func (s *Store) idsByNameLocked(kind domain.Kind, name string) []domain.ObjectID {
	var ids []domain.ObjectID
	for id, doc := range s.collections[kind.Collection()] {
		if n, ok := doc.Name(); ok && n == name {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
