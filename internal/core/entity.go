package core

import (
	"context"
	"fmt"

	"bifrost/internal/schema"
	"bifrost/pkg/domain"
)

// Bookkeeping fields synthesized on construction and refreshed on save.
const (
	FieldMetadata = "metadata"
	FieldVersion  = "version"
)

// Entity is a schema-validated document of one kind. Every mutation is
// validated against the whole document and rolled back when invalid.
// Entities are not safe for concurrent mutation.
type Entity struct {
	svc     *Service
	kind    domain.Kind
	version string
	schema  *schema.Schema
	doc     domain.Document
}

// NewEntity validates content against the current schema version of kind
// and synthesizes metadata and version blocks when absent.
func (s *Service) NewEntity(kind domain.Kind, content map[string]any) (*Entity, error) {
	return s.NewEntityVersion(kind, "", content)
}

// NewEntityVersion is NewEntity for an explicit schema version.
func (s *Service) NewEntityVersion(kind domain.Kind, version string, content map[string]any) (*Entity, error) {
	if version == "" {
		version = s.version
	}
	sch, err := s.registry.SchemaFor(kind, version)
	if err != nil {
		return nil, err
	}
	doc, err := domain.NormalizeDocument(content)
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", kind, err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, err
	}
	if _, ok := doc[FieldMetadata]; !ok {
		doc[FieldMetadata] = NewMetadata(s.clock.Now()).Wire()
	}
	if _, ok := doc[FieldVersion]; !ok {
		doc[FieldVersion] = NewVersion(version).Wire()
	}
	return &Entity{svc: s, kind: kind, version: version, schema: sch, doc: doc}, nil
}

// LoadEntity resolves ref through the document store. A reference that
// matches nothing yields (nil, nil).
func (s *Service) LoadEntity(ctx context.Context, ref domain.Reference) (*Entity, error) {
	key, err := ref.Key()
	if err != nil {
		return nil, err
	}
	var out *Entity
	err = s.run(ctx, OpLoad, func(ctx context.Context) error {
		doc, found, err := s.store.Load(ctx, ref.Kind(), key)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		version := s.versionOf(ref.Kind(), doc)
		sch, err := s.registry.SchemaFor(ref.Kind(), version)
		if err != nil {
			return err
		}
		if err := sch.Validate(doc); err != nil {
			return err
		}
		out = &Entity{svc: s, kind: ref.Kind(), version: version, schema: sch, doc: doc}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) loadKind(ctx context.Context, kind domain.Kind, ref domain.Reference) (*Entity, error) {
	if ref.Kind() != kind {
		return nil, fmt.Errorf("load %s: got %s reference", kind, ref.Kind())
	}
	return s.LoadEntity(ctx, ref)
}

// versionOf picks the newest schema version recorded on doc that the
// registry knows, falling back to the service default.
func (s *Service) versionOf(kind domain.Kind, doc domain.Document) string {
	v, err := VersionFromWire(doc[FieldVersion])
	if err != nil {
		return s.version
	}
	for i := len(v.Schema) - 1; i >= 0; i-- {
		if _, err := s.registry.SchemaFor(kind, v.Schema[i]); err == nil {
			return v.Schema[i]
		}
	}
	return s.version
}

// Kind returns the entity kind.
func (e *Entity) Kind() domain.Kind { return e.kind }

// SchemaVersion returns the schema version the entity validates against.
func (e *Entity) SchemaVersion() string { return e.version }

// ID returns the identifier assigned by the first save.
func (e *Entity) ID() (domain.ObjectID, bool) { return e.doc.ID() }

// Name returns the entity name when set.
func (e *Entity) Name() (string, bool) { return e.doc.Name() }

// Document returns a deep copy of the entity content.
func (e *Entity) Document() domain.Document { return e.doc.Clone() }

// Get returns a copy of a top-level field.
func (e *Entity) Get(key string) (any, bool) {
	v, ok := e.doc[key]
	return domain.DeepCopy(v), ok
}

// Lookup resolves a nested path in the entity content.
func (e *Entity) Lookup(path ...string) (any, error) {
	v, err := e.doc.Lookup(path)
	if err != nil {
		return nil, err
	}
	return domain.DeepCopy(v), nil
}

// Metadata decodes the bookkeeping timestamps.
func (e *Entity) Metadata() (Metadata, error) {
	return MetadataFromWire(e.doc[FieldMetadata])
}

// Version decodes the version block.
func (e *Entity) Version() (Version, error) {
	return VersionFromWire(e.doc[FieldVersion])
}

// Set replaces a top-level field.
func (e *Entity) Set(key string, value any) error {
	n, err := domain.Normalize(value)
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", e.kind, key, err)
	}
	return e.mutate(func(doc domain.Document) error {
		doc[key] = n
		return nil
	})
}

// Unset removes a top-level field.
func (e *Entity) Unset(key string) error {
	return e.mutate(func(doc domain.Document) error {
		delete(doc, key)
		return nil
	})
}

// Update merges values into the top level of the document.
func (e *Entity) Update(values map[string]any) error {
	n, err := domain.NormalizeDocument(values)
	if err != nil {
		return fmt.Errorf("update %s: %w", e.kind, err)
	}
	return e.mutate(func(doc domain.Document) error {
		for k, v := range n {
			doc[k] = v
		}
		return nil
	})
}

// Replace swaps the whole document for content.
func (e *Entity) Replace(content map[string]any) error {
	n, err := domain.NormalizeDocument(content)
	if err != nil {
		return fmt.Errorf("replace %s: %w", e.kind, err)
	}
	return e.mutate(func(doc domain.Document) error {
		for k := range doc {
			delete(doc, k)
		}
		for k, v := range n {
			doc[k] = v
		}
		return nil
	})
}

// mutate applies fn to a copy and keeps it only when it validates.
func (e *Entity) mutate(fn func(doc domain.Document) error) error {
	next := e.doc.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := e.schema.Validate(next); err != nil {
		return err
	}
	e.doc = next
	return nil
}

// Validate re-checks the current content.
func (e *Entity) Validate() error {
	return e.schema.Validate(e.doc)
}

// Save stamps metadata.updated_at, re-validates and persists the entity.
// The first save assigns an identifier; later saves upsert by identifier.
func (e *Entity) Save(ctx context.Context) error {
	return e.svc.run(ctx, OpSave, func(ctx context.Context) error {
		now := e.svc.clock.Now()
		meta, err := MetadataFromWire(e.doc[FieldMetadata])
		if err != nil {
			meta = NewMetadata(now)
		}
		meta.UpdatedNow(now)
		e.doc[FieldMetadata] = meta.Wire()
		if err := e.schema.Validate(e.doc); err != nil {
			return err
		}
		stored, err := e.svc.store.Save(ctx, e.kind, e.doc)
		if err != nil {
			return err
		}
		e.doc = stored
		return nil
	})
}

// Delete removes the stored document, resolving by identifier when present
// and by name otherwise. It reports whether a document was removed.
func (e *Entity) Delete(ctx context.Context) (bool, error) {
	ref, err := e.ToReference(nil)
	if err != nil {
		return false, err
	}
	key, err := ref.Key()
	if err != nil {
		return false, err
	}
	var deleted bool
	err = e.svc.run(ctx, OpDelete, func(ctx context.Context) error {
		var err error
		deleted, err = e.svc.store.Delete(ctx, e.kind, key)
		return err
	})
	return deleted, err
}

// ToReference returns a reference carrying the identifier and name of the
// entity plus extra fields, validated against the reference schema.
func (e *Entity) ToReference(extra map[string]any) (domain.Reference, error) {
	id, _ := e.ID()
	name, _ := e.Name()
	ref := domain.NewReference(e.kind, id, name)
	for _, k := range domain.SortedKeys(extra) {
		ref = ref.With(k, extra[k])
	}
	sch, err := e.svc.registry.ReferenceSchemaFor(e.kind, e.version)
	if err != nil {
		return domain.Reference{}, err
	}
	if err := sch.Validate(ref.Document()); err != nil {
		return domain.Reference{}, err
	}
	return ref, nil
}

// references decodes a list of embedded references stored under key.
func (e *Entity) references(key string, kind domain.Kind) ([]domain.Reference, error) {
	raw, ok := e.doc[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s.%s: expected array, got %s", e.kind, key, domain.TypeName(raw))
	}
	out := make([]domain.Reference, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s.%s[%d]: expected object, got %s", e.kind, key, i, domain.TypeName(item))
		}
		ref, err := domain.ReferenceFromDocument(kind, m)
		if err != nil {
			return nil, fmt.Errorf("%s.%s[%d]: %w", e.kind, key, i, err)
		}
		out = append(out, ref)
	}
	return out, nil
}

func (e *Entity) setReferences(key string, refs []domain.Reference) error {
	items := make([]any, 0, len(refs))
	for _, ref := range refs {
		items = append(items, ref.Document())
	}
	return e.mutate(func(doc domain.Document) error {
		doc[key] = items
		return nil
	})
}

// reference decodes a single embedded reference.
func (e *Entity) reference(key string, kind domain.Kind) (domain.Reference, error) {
	m, ok := e.doc[key].(map[string]any)
	if !ok {
		return domain.Reference{}, fmt.Errorf("%s.%s: no %s reference", e.kind, key, kind)
	}
	return domain.ReferenceFromDocument(kind, m)
}

// category decodes categories[key] into a Category entity.
func (e *Entity) category(key string) (*Category, error) {
	cats, _ := e.doc["categories"].(map[string]any)
	raw, ok := cats[key].(map[string]any)
	if !ok {
		return nil, nil
	}
	return e.svc.CategoryFrom(raw)
}

func (e *Entity) setCategory(c *Category) error {
	name, ok := c.Name()
	if !ok || name == "" {
		return fmt.Errorf("set category on %s: category has no name", e.kind)
	}
	value := map[string]any(c.Document())
	return e.mutate(func(doc domain.Document) error {
		cats, _ := doc["categories"].(map[string]any)
		if cats == nil {
			cats = make(map[string]any)
		}
		cats[name] = value
		doc["categories"] = cats
		return nil
	})
}

func nameOrNull(name string) any {
	if name == "" {
		return nil
	}
	return name
}
