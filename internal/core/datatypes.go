package core

import (
	"fmt"
	"time"

	"bifrost/pkg/domain"
)

// Metadata holds the bookkeeping timestamps of an entity.
type Metadata struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewMetadata stamps both timestamps with now.
func NewMetadata(now time.Time) Metadata {
	t := domain.RoundTime(now)
	return Metadata{CreatedAt: t, UpdatedAt: t}
}

// UpdatedNow refreshes UpdatedAt.
func (m *Metadata) UpdatedNow(now time.Time) {
	m.UpdatedAt = domain.RoundTime(now)
}

// Wire returns the embedded form.
func (m Metadata) Wire() map[string]any {
	return map[string]any{
		"created_at": domain.TimestampWire(m.CreatedAt),
		"updated_at": domain.TimestampWire(m.UpdatedAt),
	}
}

// MetadataFromWire decodes an embedded metadata block.
func MetadataFromWire(v any) (Metadata, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Metadata{}, fmt.Errorf("metadata: expected object, got %s", domain.TypeName(v))
	}
	created, ok := domain.TimestampFromWire(m["created_at"])
	if !ok {
		return Metadata{}, fmt.Errorf("metadata: malformed created_at %v", m["created_at"])
	}
	updated, ok := domain.TimestampFromWire(m["updated_at"])
	if !ok {
		return Metadata{}, fmt.Errorf("metadata: malformed updated_at %v", m["updated_at"])
	}
	return Metadata{CreatedAt: created, UpdatedAt: updated}, nil
}

// Version records the schema versions a document was written with and,
// for components, the code and resource versions.
type Version struct {
	Schema    []string
	Code      string
	Resources any
}

// NewVersion starts a version block at schemaVersion.
func NewVersion(schemaVersion string) Version {
	return Version{Schema: []string{schemaVersion}}
}

// AddSchemaVersion appends schemaVersion unless already listed.
func (v *Version) AddSchemaVersion(schemaVersion string) {
	for _, s := range v.Schema {
		if s == schemaVersion {
			return
		}
	}
	v.Schema = append(v.Schema, schemaVersion)
}

// Wire returns the embedded form.
func (v Version) Wire() map[string]any {
	schemas := make([]any, len(v.Schema))
	for i, s := range v.Schema {
		schemas[i] = s
	}
	out := map[string]any{"schema": schemas}
	if v.Code != "" {
		out["code"] = v.Code
	}
	if v.Resources != nil {
		out["resources"] = domain.DeepCopy(v.Resources)
	}
	return out
}

// VersionFromWire decodes an embedded version block.
func VersionFromWire(v any) (Version, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Version{}, fmt.Errorf("version: expected object, got %s", domain.TypeName(v))
	}
	raw, ok := m["schema"].([]any)
	if !ok {
		return Version{}, fmt.Errorf("version: schema must be an array")
	}
	out := Version{Schema: make([]string, 0, len(raw))}
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return Version{}, fmt.Errorf("version: schema entries must be strings")
		}
		out.Schema = append(out.Schema, s)
	}
	out.Code, _ = m["code"].(string)
	out.Resources = domain.DeepCopy(m["resources"])
	return out, nil
}

// Test is a single QC test outcome stored in component results.
type Test struct {
	Name        string
	DisplayName string
	Effect      string
	Value       any
	Status      string
	Reason      string
}

// Wire returns the embedded form, leaving out unset fields.
func (t Test) Wire() map[string]any {
	out := make(map[string]any, 6)
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("name", t.Name)
	set("display_name", t.DisplayName)
	set("effect", t.Effect)
	set("status", t.Status)
	set("reason", t.Reason)
	if t.Value != nil {
		if n, err := domain.Normalize(t.Value); err == nil {
			out["value"] = n
		}
	}
	return out
}

// ValidateDatatype checks value against a shared datatype schema such as
// "metadata", "version", "test" or "requirements".
func (s *Service) ValidateDatatype(name string, value any) error {
	sch, err := s.registry.DatatypeSchema(name)
	if err != nil {
		return err
	}
	n, err := domain.Normalize(value)
	if err != nil {
		return fmt.Errorf("datatype %s: %w", name, err)
	}
	return sch.Validate(n)
}
