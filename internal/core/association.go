package core

import (
	"context"

	"bifrost/pkg/domain"
)

// SampleComponent is the association record between a sample and a
// component; it carries the component results for that sample.
type SampleComponent struct{ *Entity }

// RunComponent is the association record between a run and a component.
type RunComponent struct{ *Entity }

// AssociationName returns "<parent>___<component>" when both references
// carry a name.
func AssociationName(parent, component domain.Reference) (string, bool) {
	p, ok := parent.Name()
	if !ok {
		return "", false
	}
	c, ok := component.Name()
	if !ok {
		return "", false
	}
	return p + "___" + c, true
}

// syncName rewrites the name field from the embedded references; without
// both names the field is removed.
func syncName(doc domain.Document, parentKey string, parentKind domain.Kind) {
	parent, perr := embeddedRef(doc, parentKey, parentKind)
	component, cerr := embeddedRef(doc, "component", domain.KindComponent)
	if perr == nil && cerr == nil {
		if name, ok := AssociationName(parent, component); ok {
			doc[domain.FieldName] = name
			return
		}
	}
	delete(doc, domain.FieldName)
}

func embeddedRef(doc domain.Document, key string, kind domain.Kind) (domain.Reference, error) {
	m, _ := doc[key].(map[string]any)
	return domain.ReferenceFromDocument(kind, m)
}

// NewSampleComponent constructs the association record of sample and
// component with empty categories and results.
func (s *Service) NewSampleComponent(sample, component domain.Reference) (*SampleComponent, error) {
	content := map[string]any{
		"sample":     sample.Document(),
		"component":  component.Document(),
		"categories": map[string]any{},
		"results":    map[string]any{},
	}
	if name, ok := AssociationName(sample, component); ok {
		content[domain.FieldName] = name
	}
	return s.SampleComponentFrom(content)
}

// SampleComponentFrom validates content as a sample component.
func (s *Service) SampleComponentFrom(content map[string]any) (*SampleComponent, error) {
	e, err := s.NewEntity(domain.KindSampleComponent, content)
	if err != nil {
		return nil, err
	}
	return &SampleComponent{e}, nil
}

// LoadSampleComponent resolves a sample component reference; (nil, nil)
// when absent.
func (s *Service) LoadSampleComponent(ctx context.Context, ref domain.Reference) (*SampleComponent, error) {
	e, err := s.loadKind(ctx, domain.KindSampleComponent, ref)
	if e == nil || err != nil {
		return nil, err
	}
	return &SampleComponent{e}, nil
}

// Sample returns the embedded sample reference.
func (sc *SampleComponent) Sample() (domain.Reference, error) {
	return sc.reference("sample", domain.KindSample)
}

// SetSample replaces the sample reference and re-derives the name.
func (sc *SampleComponent) SetSample(ref domain.Reference) error {
	return sc.mutate(func(doc domain.Document) error {
		doc["sample"] = ref.Document()
		syncName(doc, "sample", domain.KindSample)
		return nil
	})
}

// Component returns the embedded component reference.
func (sc *SampleComponent) Component() (domain.Reference, error) {
	return sc.reference("component", domain.KindComponent)
}

// SetComponent replaces the component reference and re-derives the name.
func (sc *SampleComponent) SetComponent(ref domain.Reference) error {
	return sc.mutate(func(doc domain.Document) error {
		doc["component"] = ref.Document()
		syncName(doc, "sample", domain.KindSample)
		return nil
	})
}

// Status returns the processing status, empty when unset.
func (sc *SampleComponent) Status() string {
	s, _ := sc.doc["status"].(string)
	return s
}

// SetStatus records the processing status.
func (sc *SampleComponent) SetStatus(status string) error { return sc.Set("status", status) }

// Results returns a copy of the results block.
func (sc *SampleComponent) Results() map[string]any {
	m, _ := sc.doc["results"].(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return domain.DeepCopy(m).(map[string]any)
}

// Category returns categories[key]; nil when absent.
func (sc *SampleComponent) Category(key string) (*Category, error) { return sc.category(key) }

// SetCategory stores c under its name in categories.
func (sc *SampleComponent) SetCategory(c *Category) error { return sc.setCategory(c) }

// HasRequirements evaluates the requirements of the referenced component
// against this record's sample.
func (sc *SampleComponent) HasRequirements(ctx context.Context) (bool, error) {
	return sc.svc.CheckRequirements(ctx, sc)
}

// NewRunComponent constructs the association record of run and component.
func (s *Service) NewRunComponent(run, component domain.Reference) (*RunComponent, error) {
	content := map[string]any{
		"run":       run.Document(),
		"component": component.Document(),
	}
	if name, ok := AssociationName(run, component); ok {
		content[domain.FieldName] = name
	}
	return s.RunComponentFrom(content)
}

// RunComponentFrom validates content as a run component.
func (s *Service) RunComponentFrom(content map[string]any) (*RunComponent, error) {
	e, err := s.NewEntity(domain.KindRunComponent, content)
	if err != nil {
		return nil, err
	}
	return &RunComponent{e}, nil
}

// LoadRunComponent resolves a run component reference; (nil, nil) when
// absent.
func (s *Service) LoadRunComponent(ctx context.Context, ref domain.Reference) (*RunComponent, error) {
	e, err := s.loadKind(ctx, domain.KindRunComponent, ref)
	if e == nil || err != nil {
		return nil, err
	}
	return &RunComponent{e}, nil
}

// Run returns the embedded run reference.
func (rc *RunComponent) Run() (domain.Reference, error) {
	return rc.reference("run", domain.KindRun)
}

// SetRun replaces the run reference and re-derives the name.
func (rc *RunComponent) SetRun(ref domain.Reference) error {
	return rc.mutate(func(doc domain.Document) error {
		doc["run"] = ref.Document()
		syncName(doc, "run", domain.KindRun)
		return nil
	})
}

// Component returns the embedded component reference.
func (rc *RunComponent) Component() (domain.Reference, error) {
	return rc.reference("component", domain.KindComponent)
}

// SetComponent replaces the component reference and re-derives the name.
func (rc *RunComponent) SetComponent(ref domain.Reference) error {
	return rc.mutate(func(doc domain.Document) error {
		doc["component"] = ref.Document()
		syncName(doc, "run", domain.KindRun)
		return nil
	})
}
