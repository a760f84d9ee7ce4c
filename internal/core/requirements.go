package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bifrost/pkg/domain"
)

// CheckMode is how a requirement leaf compares the observed value.
type CheckMode int

const (
	// CheckExists passes when the path resolves to any value, null included.
	CheckExists CheckMode = iota
	// CheckEquals passes when the observed value equals the expected scalar.
	CheckEquals
	// CheckMember passes when the observed value is one of the expected list.
	CheckMember
)

func (m CheckMode) String() string {
	switch m {
	case CheckExists:
		return "exists"
	case CheckEquals:
		return "equals"
	case CheckMember:
		return "member"
	default:
		return fmt.Sprintf("CheckMode(%d)", int(m))
	}
}

// Requirement is one flattened leaf of a requirement tree.
type Requirement struct {
	Path     []string
	Expected any
}

// Mode derives the comparison from the expected value.
func (r Requirement) Mode() CheckMode {
	switch r.Expected.(type) {
	case nil:
		return CheckExists
	case []any:
		return CheckMember
	default:
		return CheckEquals
	}
}

// DottedPath joins the path segments.
func (r Requirement) DottedPath() string { return strings.Join(r.Path, ".") }

var (
	// ErrMalformedRequirements marks a requirement tree that is not a mapping.
	ErrMalformedRequirements = errors.New("malformed requirement tree")
	// ErrAssociationNotFound marks a transitive requirement whose association
	// record does not exist.
	ErrAssociationNotFound = errors.New("association record not found")
)

// FlattenRequirements walks a requirement tree in sorted key order. Mappings
// recurse; lists, scalars and null are leaves. Keys containing dots
// contribute one segment per dot-separated part. A null tree has no
// requirements.
func FlattenRequirements(tree any) ([]Requirement, error) {
	if tree == nil {
		return nil, nil
	}
	m, ok := tree.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %s", ErrMalformedRequirements, domain.TypeName(tree))
	}
	var out []Requirement
	flatten(m, nil, &out)
	return out, nil
}

func flatten(m map[string]any, prefix []string, out *[]Requirement) {
	for _, key := range domain.SortedKeys(m) {
		path := make([]string, 0, len(prefix)+1)
		path = append(path, prefix...)
		path = append(path, strings.Split(key, ".")...)
		if child, ok := m[key].(map[string]any); ok {
			flatten(child, path, out)
			continue
		}
		*out = append(*out, Requirement{Path: path, Expected: m[key]})
	}
}

// RequirementCheck is the diagnostic record of one evaluated leaf.
type RequirementCheck struct {
	// Scope is "sample" for direct checks and "component:<name>" for
	// transitive ones.
	Scope    string
	Path     string
	Mode     CheckMode
	Expected any
	Observed any
	Passed   bool
	// Err explains a failure that is not a plain mismatch.
	Err error
}

// RequirementObserver receives every check as it is evaluated.
type RequirementObserver func(ctx context.Context, check RequirementCheck)

// Check evaluates req against doc. Comparison is structural without type
// coercion.
func (r Requirement) Check(doc domain.Document) RequirementCheck {
	check := RequirementCheck{
		Path:     r.DottedPath(),
		Mode:     r.Mode(),
		Expected: domain.DeepCopy(r.Expected),
	}
	observed, err := doc.Lookup(r.Path)
	if err != nil {
		check.Err = domain.RequirementCheckError{Path: check.Path, Err: err}
		return check
	}
	check.Observed = domain.DeepCopy(observed)
	switch expected := r.Expected.(type) {
	case nil:
		check.Passed = true
	case []any:
		for _, candidate := range expected {
			if domain.Equal(observed, candidate) {
				check.Passed = true
				break
			}
		}
	default:
		check.Passed = domain.Equal(observed, expected)
	}
	return check
}

// CheckRequirements decides whether the component referenced by sc may run
// on the sample referenced by sc. It returns an error only when the
// component or sample cannot be loaded; an absent component or sample is a
// false verdict. Every leaf failure is logged and reported to the
// requirement observer. Nothing is written.
func (s *Service) CheckRequirements(ctx context.Context, sc *SampleComponent) (bool, error) {
	var verdict bool
	err := s.run(ctx, OpCheckRequirements, func(ctx context.Context) error {
		var err error
		verdict, err = s.evaluate(ctx, sc)
		return err
	})
	if err != nil {
		return false, err
	}
	return verdict, nil
}

func (s *Service) evaluate(ctx context.Context, sc *SampleComponent) (bool, error) {
	componentRef, err := sc.Component()
	if err != nil {
		return false, fmt.Errorf("check requirements: %w", err)
	}
	sampleRef, err := sc.Sample()
	if err != nil {
		return false, fmt.Errorf("check requirements: %w", err)
	}

	component, err := s.LoadComponent(ctx, componentRef)
	if err != nil {
		return false, fmt.Errorf("check requirements: load component: %w", err)
	}
	if component == nil {
		s.logger.Warn("[fail] component not found", "component", describeRef(componentRef))
		return false, nil
	}
	sample, err := s.LoadSample(ctx, sampleRef)
	if err != nil {
		return false, fmt.Errorf("check requirements: load sample: %w", err)
	}
	if sample == nil {
		s.logger.Warn("[fail] sample not found", "sample", describeRef(sampleRef))
		return false, nil
	}

	raw, present := component.doc["requirements"]
	if !present || raw == nil {
		return true, nil
	}
	tree, ok := raw.(map[string]any)
	if !ok {
		s.report(ctx, RequirementCheck{
			Scope: "requirements",
			Path:  "requirements",
			Err:   domain.RequirementCheckError{Path: "requirements", Err: ErrMalformedRequirements},
		})
		return false, nil
	}

	passed := s.checkTree(ctx, "sample", tree["sample"], sample.doc)
	if !s.checkDependencies(ctx, sample, tree["component"]) {
		passed = false
	}
	return passed, nil
}

// checkTree flattens tree and checks every leaf against doc.
func (s *Service) checkTree(ctx context.Context, scope string, tree any, doc domain.Document) bool {
	reqs, err := FlattenRequirements(tree)
	if err != nil {
		s.report(ctx, RequirementCheck{Scope: scope, Err: domain.RequirementCheckError{Path: scope, Err: err}})
		return false
	}
	passed := true
	for _, req := range reqs {
		check := req.Check(doc)
		check.Scope = scope
		s.report(ctx, check)
		if !check.Passed {
			passed = false
		}
	}
	return passed
}

// checkDependencies evaluates requirements.component entries against the
// association records between sample and each named component. A broken
// entry fails only itself.
func (s *Service) checkDependencies(ctx context.Context, sample *Sample, raw any) bool {
	if raw == nil {
		return true
	}
	entries, ok := raw.([]any)
	if !ok {
		err := fmt.Errorf("%w: requirements.component must be an array, got %s", ErrMalformedRequirements, domain.TypeName(raw))
		s.report(ctx, RequirementCheck{Scope: "component", Err: domain.RequirementCheckError{Path: "requirements.component", Err: err}})
		return false
	}
	entrySchema, err := s.registry.DatatypeSchema("requirement")
	if err != nil {
		s.report(ctx, RequirementCheck{Scope: "component", Err: domain.RequirementCheckError{Path: "requirements.component", Err: err}})
		return false
	}

	passed := true
	for i, item := range entries {
		fail := func(scope string, err error) {
			s.report(ctx, RequirementCheck{
				Scope: scope,
				Err:   domain.RequirementCheckError{Path: fmt.Sprintf("requirements.component[%d]", i), Err: err},
			})
			passed = false
		}
		if err := entrySchema.Validate(item); err != nil {
			fail("component", err)
			continue
		}
		entry := item.(map[string]any)
		name := entry["name"].(string)
		scope := "component:" + name

		sampleName, ok := sample.Name()
		if !ok {
			fail(scope, fmt.Errorf("sample has no name to derive the association record from"))
			continue
		}
		ref := domain.RefByName(domain.KindSampleComponent, sampleName+"___"+name)
		dep, err := s.LoadSampleComponent(ctx, ref)
		if err != nil {
			fail(scope, err)
			continue
		}
		if dep == nil {
			fail(scope, fmt.Errorf("%w: %s", ErrAssociationNotFound, sampleName+"___"+name))
			continue
		}
		if !s.checkTree(ctx, scope, entry["requirements"], dep.doc) {
			passed = false
		}
	}
	return passed
}

// report logs a check and forwards it to the observer.
func (s *Service) report(ctx context.Context, check RequirementCheck) {
	args := []any{"scope", check.Scope, "path", check.Path, "mode", check.Mode.String(), "expected", check.Expected}
	switch {
	case check.Passed:
		s.logger.Info("[true] requirement", append(args, "observed", check.Observed)...)
	case check.Err != nil:
		s.logger.Info("[fail] requirement", append(args, "error", check.Err)...)
	default:
		s.logger.Info("[fail] requirement", append(args, "observed", check.Observed)...)
	}
	if s.observer != nil {
		s.observer(ctx, check)
	}
}

func describeRef(ref domain.Reference) string {
	key, err := ref.Key()
	if err != nil {
		return "<empty>"
	}
	return key.String()
}
