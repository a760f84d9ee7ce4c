package domain

import (
	"context"
	"fmt"
)

// DocumentStore is the gateway between entities and a durable backend.
//
// Load resolves key by identifier when the key carries one and by name
// otherwise. It returns found=false without error when nothing matches and a
// DuplicateRecordError when more than one document matches. Save inserts a
// document without _id after assigning a fresh identifier and upserts by _id
// otherwise, returning the stored document. Delete reports whether exactly
// one document was removed.
type DocumentStore interface {
	Load(ctx context.Context, kind Kind, key LookupKey) (Document, bool, error)
	Save(ctx context.Context, kind Kind, doc Document) (Document, error)
	Delete(ctx context.Context, kind Kind, key LookupKey) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// StoreOptions configures behaviour shared by all DocumentStore drivers.
type StoreOptions struct {
	// UniqueNames makes Save reject a document whose name is already held by
	// a different identifier in the same collection.
	UniqueNames bool
}

// PrepareForSave returns a normalized copy of doc ready to be written and
// its identifier. A missing or null _id is replaced by one from newID; a
// malformed _id is an error.
func PrepareForSave(kind Kind, doc Document, newID func() ObjectID) (Document, ObjectID, error) {
	out, err := NormalizeDocument(doc)
	if err != nil {
		return nil, "", fmt.Errorf("save %s: %w", kind, err)
	}
	raw, present := out[FieldID]
	if !present || raw == nil {
		id := newID()
		out.SetID(id)
		return out, id, nil
	}
	id, ok := ObjectIDFromWire(raw)
	if !ok {
		return nil, "", fmt.Errorf("save %s: malformed _id %v", kind, raw)
	}
	return out, id, nil
}

// CheckKey rejects keys that cannot be resolved.
func CheckKey(kind Kind, key LookupKey) error {
	switch key.Mode {
	case ByID, ByBoth:
		if key.ID.IsZero() {
			return fmt.Errorf("%s lookup: %w", kind, ErrEmptyReference)
		}
	case ByName:
	default:
		return fmt.Errorf("%s lookup: %w", kind, ErrEmptyReference)
	}
	return nil
}
