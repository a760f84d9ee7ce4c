package core

import (
	"context"
	"fmt"

	"bifrost/pkg/domain"
)

// Sample is a genomic sample.
type Sample struct{ *Entity }

// Component is a processing component (pipeline step).
type Component struct{ *Entity }

// Run groups samples, components and hosts.
type Run struct{ *Entity }

// Host is the organism a sample was taken from.
type Host struct{ *Entity }

// BioDB is a biological database used by components.
type BioDB struct{ *Entity }

// Category is a named block of analysis values embedded in samples and
// association records.
type Category struct{ *Entity }

// NewSample constructs an empty sample. An empty name is stored as null.
func (s *Service) NewSample(name string) (*Sample, error) {
	return s.SampleFrom(map[string]any{
		"name":       nameOrNull(name),
		"components": []any{},
		"categories": map[string]any{},
		"tags":       []any{},
	})
}

// SampleFrom validates content as a sample.
func (s *Service) SampleFrom(content map[string]any) (*Sample, error) {
	e, err := s.NewEntity(domain.KindSample, content)
	if err != nil {
		return nil, err
	}
	return &Sample{e}, nil
}

// LoadSample resolves a sample reference; (nil, nil) when absent.
func (s *Service) LoadSample(ctx context.Context, ref domain.Reference) (*Sample, error) {
	e, err := s.loadKind(ctx, domain.KindSample, ref)
	if e == nil || err != nil {
		return nil, err
	}
	return &Sample{e}, nil
}

// Components returns the component references recorded on the sample.
func (s *Sample) Components() ([]domain.Reference, error) {
	return s.references("components", domain.KindComponent)
}

// SetComponents replaces the component references.
func (s *Sample) SetComponents(refs []domain.Reference) error {
	return s.setReferences("components", refs)
}

// SetComponentStatus sets status on the component entry matching ref by
// name (by identifier when ref has no name), appending ref with the status
// when no entry matches.
func (s *Sample) SetComponentStatus(ref domain.Reference, status string) error {
	name, hasName := ref.Name()
	id, hasID := ref.ID()
	return s.mutate(func(doc domain.Document) error {
		items, _ := doc["components"].([]any)
		matched := false
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			switch {
			case hasName:
				if n, ok := m[domain.FieldName].(string); !ok || n != name {
					continue
				}
			case hasID:
				if other, ok := domain.ObjectIDFromWire(m[domain.FieldID]); !ok || other != id {
					continue
				}
			default:
				continue
			}
			m["status"] = status
			matched = true
		}
		if !matched {
			items = append(items, ref.With("status", status).Document())
		}
		doc["components"] = items
		return nil
	})
}

// Category returns categories[key]; nil when absent.
func (s *Sample) Category(key string) (*Category, error) { return s.category(key) }

// SetCategory stores c under its name in categories.
func (s *Sample) SetCategory(c *Category) error { return s.setCategory(c) }

// Tags returns the sample tags.
func (s *Sample) Tags() []string {
	items, _ := s.doc["tags"].([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if tag, ok := item.(string); ok {
			out = append(out, tag)
		}
	}
	return out
}

// AddTag appends tag.
func (s *Sample) AddTag(tag string) error {
	return s.mutate(func(doc domain.Document) error {
		items, _ := doc["tags"].([]any)
		doc["tags"] = append(items, tag)
		return nil
	})
}

// RemoveTag removes the first occurrence of tag.
func (s *Sample) RemoveTag(tag string) error {
	return s.mutate(func(doc domain.Document) error {
		items, _ := doc["tags"].([]any)
		for i, item := range items {
			if item == tag {
				doc["tags"] = append(items[:i:i], items[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("sample tag %q not present", tag)
	})
}

// NewComponent constructs a component with only a name.
func (s *Service) NewComponent(name string) (*Component, error) {
	return s.ComponentFrom(namedContent(name))
}

// ComponentFrom validates content as a component.
func (s *Service) ComponentFrom(content map[string]any) (*Component, error) {
	e, err := s.NewEntity(domain.KindComponent, content)
	if err != nil {
		return nil, err
	}
	return &Component{e}, nil
}

// LoadComponent resolves a component reference; (nil, nil) when absent.
func (s *Service) LoadComponent(ctx context.Context, ref domain.Reference) (*Component, error) {
	e, err := s.loadKind(ctx, domain.KindComponent, ref)
	if e == nil || err != nil {
		return nil, err
	}
	return &Component{e}, nil
}

// FilePaths lists db_values_changes.files, the outputs the component
// stores as files.
func (c *Component) FilePaths() []string {
	changes, _ := c.doc["db_values_changes"].(map[string]any)
	items, _ := changes["files"].([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if p, ok := item.(string); ok && p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewRun constructs an empty run.
func (s *Service) NewRun(name string) (*Run, error) {
	return s.RunFrom(map[string]any{
		"name":       nameOrNull(name),
		"samples":    []any{},
		"components": []any{},
		"hosts":      []any{},
	})
}

// RunFrom validates content as a run.
func (s *Service) RunFrom(content map[string]any) (*Run, error) {
	e, err := s.NewEntity(domain.KindRun, content)
	if err != nil {
		return nil, err
	}
	return &Run{e}, nil
}

// LoadRun resolves a run reference; (nil, nil) when absent.
func (s *Service) LoadRun(ctx context.Context, ref domain.Reference) (*Run, error) {
	e, err := s.loadKind(ctx, domain.KindRun, ref)
	if e == nil || err != nil {
		return nil, err
	}
	return &Run{e}, nil
}

// SampleNameGenerator prefixes name with the run name. It reports false
// when the run has no name.
func (r *Run) SampleNameGenerator(name string) (string, bool) {
	run, ok := r.Name()
	if !ok {
		return "", false
	}
	return run + "___" + name, true
}

// Samples returns the sample references of the run.
func (r *Run) Samples() ([]domain.Reference, error) {
	return r.references("samples", domain.KindSample)
}

// SetSamples replaces the sample references.
func (r *Run) SetSamples(refs []domain.Reference) error { return r.setReferences("samples", refs) }

// Components returns the component references of the run.
func (r *Run) Components() ([]domain.Reference, error) {
	return r.references("components", domain.KindComponent)
}

// SetComponents replaces the component references.
func (r *Run) SetComponents(refs []domain.Reference) error {
	return r.setReferences("components", refs)
}

// Hosts returns the host references of the run.
func (r *Run) Hosts() ([]domain.Reference, error) {
	return r.references("hosts", domain.KindHost)
}

// SetHosts replaces the host references.
func (r *Run) SetHosts(refs []domain.Reference) error { return r.setReferences("hosts", refs) }

// NewHost constructs a host without samples.
func (s *Service) NewHost(name string) (*Host, error) {
	return s.HostFrom(map[string]any{
		"name":    nameOrNull(name),
		"samples": []any{},
	})
}

// HostFrom validates content as a host.
func (s *Service) HostFrom(content map[string]any) (*Host, error) {
	e, err := s.NewEntity(domain.KindHost, content)
	if err != nil {
		return nil, err
	}
	return &Host{e}, nil
}

// LoadHost resolves a host reference; (nil, nil) when absent.
func (s *Service) LoadHost(ctx context.Context, ref domain.Reference) (*Host, error) {
	e, err := s.loadKind(ctx, domain.KindHost, ref)
	if e == nil || err != nil {
		return nil, err
	}
	return &Host{e}, nil
}

// Samples returns the sample references of the host.
func (h *Host) Samples() ([]domain.Reference, error) {
	return h.references("samples", domain.KindSample)
}

// SetSamples replaces the sample references.
func (h *Host) SetSamples(refs []domain.Reference) error { return h.setReferences("samples", refs) }

// NewBioDB constructs a biological database entry.
func (s *Service) NewBioDB(name string) (*BioDB, error) {
	return s.BioDBFrom(namedContent(name))
}

// BioDBFrom validates content as a biodb.
func (s *Service) BioDBFrom(content map[string]any) (*BioDB, error) {
	e, err := s.NewEntity(domain.KindBioDB, content)
	if err != nil {
		return nil, err
	}
	return &BioDB{e}, nil
}

// LoadBioDB resolves a biodb reference; (nil, nil) when absent.
func (s *Service) LoadBioDB(ctx context.Context, ref domain.Reference) (*BioDB, error) {
	e, err := s.loadKind(ctx, domain.KindBioDB, ref)
	if e == nil || err != nil {
		return nil, err
	}
	return &BioDB{e}, nil
}

// NewCategory constructs a category block.
func (s *Service) NewCategory(name string) (*Category, error) {
	return s.CategoryFrom(namedContent(name))
}

// CategoryFrom validates content as a category.
func (s *Service) CategoryFrom(content map[string]any) (*Category, error) {
	e, err := s.NewEntity(domain.KindCategory, content)
	if err != nil {
		return nil, err
	}
	return &Category{e}, nil
}

func namedContent(name string) map[string]any {
	if name == "" {
		return map[string]any{}
	}
	return map[string]any{"name": name}
}
