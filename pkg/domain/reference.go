package domain

import "fmt"

// LookupMode states which fields of a LookupKey drive resolution.
type LookupMode int

const (
	// ByNone marks an unusable key.
	ByNone LookupMode = iota
	// ByID resolves by identifier only.
	ByID
	// ByName resolves by name only.
	ByName
	// ByBoth carries both fields; the identifier takes precedence and the
	// name is ignored during resolution.
	ByBoth
)

func (m LookupMode) String() string {
	switch m {
	case ByID:
		return "by_id"
	case ByName:
		return "by_name"
	case ByBoth:
		return "by_both"
	default:
		return "none"
	}
}

// LookupKey is the resolved form of a Reference handed to a DocumentStore.
type LookupKey struct {
	Mode LookupMode
	ID   ObjectID
	Name string
}

// KeyByID builds an identifier lookup.
func KeyByID(id ObjectID) LookupKey { return LookupKey{Mode: ByID, ID: id} }

// KeyByName builds a name lookup.
func KeyByName(name string) LookupKey { return LookupKey{Mode: ByName, Name: name} }

// KeyByBoth builds a lookup carrying both fields.
func KeyByBoth(id ObjectID, name string) LookupKey {
	return LookupKey{Mode: ByBoth, ID: id, Name: name}
}

// UsesID reports whether resolution goes through the identifier. Identifier
// wins whenever it is present.
func (k LookupKey) UsesID() bool {
	return k.Mode == ByID || k.Mode == ByBoth
}

func (k LookupKey) String() string {
	switch k.Mode {
	case ByID:
		return fmt.Sprintf("_id=%s", k.ID)
	case ByName:
		return fmt.Sprintf("name=%q", k.Name)
	case ByBoth:
		return fmt.Sprintf("_id=%s (name=%q)", k.ID, k.Name)
	default:
		return "<empty>"
	}
}

// Reference is a transient lookup key for an entity of a fixed kind,
// optionally carrying extra fields when embedded in another document.
type Reference struct {
	kind  Kind
	id    ObjectID
	name  *string
	extra map[string]any
}

// NewReference builds a reference. Empty id or name arguments are left unset.
func NewReference(kind Kind, id ObjectID, name string) Reference {
	r := Reference{kind: kind, id: id}
	if name != "" {
		r.name = &name
	}
	return r
}

// RefByID builds a reference carrying only an identifier.
func RefByID(kind Kind, id ObjectID) Reference { return NewReference(kind, id, "") }

// RefByName builds a reference carrying only a name.
func RefByName(kind Kind, name string) Reference { return NewReference(kind, "", name) }

// ReferenceFromDocument reads an embedded reference: _id, name and any
// additional fields.
func ReferenceFromDocument(kind Kind, doc map[string]any) (Reference, error) {
	r := Reference{kind: kind}
	for k, v := range doc {
		switch k {
		case FieldID:
			if v == nil {
				continue
			}
			id, ok := ObjectIDFromWire(v)
			if !ok {
				return Reference{}, fmt.Errorf("%s reference: malformed _id %v", kind, v)
			}
			r.id = id
		case FieldName:
			if v == nil {
				continue
			}
			s, ok := v.(string)
			if !ok {
				return Reference{}, fmt.Errorf("%s reference: name must be a string, got %s", kind, TypeName(v))
			}
			r.name = &s
		default:
			if r.extra == nil {
				r.extra = make(map[string]any)
			}
			r.extra[k] = DeepCopy(v)
		}
	}
	return r, nil
}

// Kind returns the referenced kind.
func (r Reference) Kind() Kind { return r.kind }

// ID returns the identifier when set.
func (r Reference) ID() (ObjectID, bool) { return r.id, !r.id.IsZero() }

// Name returns the name when set.
func (r Reference) Name() (string, bool) {
	if r.name == nil {
		return "", false
	}
	return *r.name, true
}

// Extra returns an additional embedded field.
func (r Reference) Extra(key string) (any, bool) {
	v, ok := r.extra[key]
	return v, ok
}

// With returns a copy of the reference carrying an extra field. Setting
// _id or name through With is ignored.
func (r Reference) With(key string, value any) Reference {
	if key == FieldID || key == FieldName {
		return r
	}
	out := r
	out.extra = make(map[string]any, len(r.extra)+1)
	for k, v := range r.extra {
		out.extra[k] = v
	}
	n, err := Normalize(value)
	if err != nil {
		n = value
	}
	out.extra[key] = n
	return out
}

// Key converts the reference into a lookup key.
func (r Reference) Key() (LookupKey, error) {
	id, hasID := r.ID()
	name, hasName := r.Name()
	switch {
	case hasID && hasName:
		return KeyByBoth(id, name), nil
	case hasID:
		return KeyByID(id), nil
	case hasName:
		return KeyByName(name), nil
	}
	return LookupKey{}, fmt.Errorf("%s reference: %w", r.kind, ErrEmptyReference)
}

// Document returns the embedded wire form of the reference.
func (r Reference) Document() map[string]any {
	out := make(map[string]any, len(r.extra)+2)
	for k, v := range r.extra {
		out[k] = DeepCopy(v)
	}
	if id, ok := r.ID(); ok {
		out[FieldID] = id.Wire()
	}
	if name, ok := r.Name(); ok {
		out[FieldName] = name
	}
	return out
}
