// Package bolt persists documents to an embedded bbolt file. Each
// collection is a bucket holding compressed msgpack documents keyed by
// identifier next to a name index.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"bifrost/pkg/domain"
)

var _ domain.DocumentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "bifrost.bolt"

var (
	docsBucket  = []byte("docs")
	namesBucket = []byte("names")
)

// Store is a bbolt-backed document store.
type Store struct {
	db    *bbolt.DB
	opts  domain.StoreOptions
	newID func() domain.ObjectID
	path  string
}

// NewStore opens (creating when needed) the bolt file at path.
func NewStore(path string, opts domain.StoreOptions) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	db, err := bbolt.Open(path, 0o600, &bopt)
	if err != nil {
		return nil, domain.StoreUnavailableError{Driver: "bolt", Err: err}
	}
	return &Store{db: db, opts: opts, newID: domain.NewObjectID, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Bolt exposes the underlying handle for tests.
func (s *Store) Bolt() *bbolt.DB { return s.db }

// Load resolves key within the collection of kind.
func (s *Store) Load(_ context.Context, kind domain.Kind, key domain.LookupKey) (domain.Document, bool, error) {
	if err := domain.CheckKey(kind, key); err != nil {
		return nil, false, err
	}
	var doc domain.Document
	err := s.db.View(func(btx *bbolt.Tx) error {
		root := btx.Bucket([]byte(kind.Collection()))
		if root == nil {
			return nil
		}
		id, err := resolve(root, kind, key)
		if err != nil || id == "" {
			return err
		}
		raw := root.Bucket(docsBucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		doc, err = decodeDocument(raw)
		if err != nil {
			return fmt.Errorf("decode %s %s: %w", kind, id, err)
		}
		return nil
	})
	if err != nil {
		return nil, false, s.wrap(err)
	}
	return doc, doc != nil, nil
}

// Save inserts or replaces doc, maintaining the name index.
func (s *Store) Save(_ context.Context, kind domain.Kind, doc domain.Document) (domain.Document, error) {
	stored, id, err := domain.PrepareForSave(kind, doc, s.newID)
	if err != nil {
		return nil, err
	}
	value, err := encodeDocument(stored)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	name, hasName := stored.Name()

	err = s.db.Update(func(btx *bbolt.Tx) error {
		root, err := btx.CreateBucketIfNotExists([]byte(kind.Collection()))
		if err != nil {
			return err
		}
		docs, err := root.CreateBucketIfNotExists(docsBucket)
		if err != nil {
			return err
		}
		names, err := root.CreateBucketIfNotExists(namesBucket)
		if err != nil {
			return err
		}
		if hasName && s.opts.UniqueNames {
			holders, err := decodeIDs(names.Get(nameKey(name)))
			if err != nil {
				return err
			}
			for _, holder := range holders {
				if holder != id.Hex() {
					return domain.DuplicateRecordError{Kind: kind, Key: domain.KeyByName(name).String(), Count: 1}
				}
			}
		}
		if prev := docs.Get([]byte(id)); prev != nil {
			old, err := decodeDocument(prev)
			if err != nil {
				return fmt.Errorf("decode %s %s: %w", kind, id, err)
			}
			if oldName, ok := old.Name(); ok {
				if err := unindex(names, oldName, id.Hex()); err != nil {
					return err
				}
			}
		}
		if err := docs.Put([]byte(id), value); err != nil {
			return err
		}
		if hasName {
			return index(names, name, id.Hex())
		}
		return nil
	})
	if err != nil {
		return nil, s.wrap(err)
	}
	return stored, nil
}

// Delete removes the single document matched by key.
func (s *Store) Delete(_ context.Context, kind domain.Kind, key domain.LookupKey) (bool, error) {
	if err := domain.CheckKey(kind, key); err != nil {
		return false, err
	}
	removed := false
	err := s.db.Update(func(btx *bbolt.Tx) error {
		root := btx.Bucket([]byte(kind.Collection()))
		if root == nil {
			return nil
		}
		id, err := resolve(root, kind, key)
		if err != nil || id == "" {
			return err
		}
		docs := root.Bucket(docsBucket)
		raw := docs.Get([]byte(id))
		if raw == nil {
			return nil
		}
		old, err := decodeDocument(raw)
		if err != nil {
			return fmt.Errorf("decode %s %s: %w", kind, id, err)
		}
		if name, ok := old.Name(); ok {
			if err := unindex(root.Bucket(namesBucket), name, id); err != nil {
				return err
			}
		}
		if err := docs.Delete([]byte(id)); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, s.wrap(err)
	}
	return removed, nil
}

// Ping reports whether the database file is open.
func (s *Store) Ping(context.Context) error {
	if err := s.db.View(func(*bbolt.Tx) error { return nil }); err != nil {
		return domain.StoreUnavailableError{Driver: "bolt", Err: err}
	}
	return nil
}

// Close releases the database file.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) wrap(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return domain.StoreUnavailableError{Driver: "bolt", Err: err}
	}
	return err
}

// resolve returns the identifier matched by key, or "" when nothing matches.
func resolve(root *bbolt.Bucket, kind domain.Kind, key domain.LookupKey) (string, error) {
	if key.UsesID() {
		return key.ID.Hex(), nil
	}
	names := root.Bucket(namesBucket)
	if names == nil {
		return "", nil
	}
	ids, err := decodeIDs(names.Get(nameKey(key.Name)))
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", nil
	case 1:
		return ids[0], nil
	}
	return "", domain.DuplicateRecordError{Kind: kind, Key: key.String(), Count: len(ids)}
}

func index(names *bbolt.Bucket, name, id string) error {
	ids, err := decodeIDs(names.Get(nameKey(name)))
	if err != nil {
		return err
	}
	if slices.Contains(ids, id) {
		return nil
	}
	ids = append(ids, id)
	slices.Sort(ids)
	raw, err := encodeIDs(ids)
	if err != nil {
		return err
	}
	return names.Put(nameKey(name), raw)
}

func unindex(names *bbolt.Bucket, name, id string) error {
	ids, err := decodeIDs(names.Get(nameKey(name)))
	if err != nil {
		return err
	}
	ids = slices.DeleteFunc(ids, func(v string) bool { return v == id })
	if len(ids) == 0 {
		return names.Delete(nameKey(name))
	}
	raw, err := encodeIDs(ids)
	if err != nil {
		return err
	}
	return names.Put(nameKey(name), raw)
}

// nameKey prefixes names so the empty name is still a valid bolt key.
func nameKey(name string) []byte {
	return append([]byte{'='}, name...)
}
