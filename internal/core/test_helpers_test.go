package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bifrost/pkg/domain"
)

var fixedNow = time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) add(s string) {
	c.mu.Lock()
	c.calls = append(c.calls, s)
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.add("d:" + msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.add("i:" + msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.add("w:" + msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.add("e:" + msg) }

func (c *captureLogger) count(entry string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == entry {
			n++
		}
	}
	return n
}

type captureObserver struct {
	checks []RequirementCheck
}

func (c *captureObserver) observe(_ context.Context, check RequirementCheck) {
	c.checks = append(c.checks, check)
}

func (c *captureObserver) byPath(path string) (RequirementCheck, bool) {
	for _, check := range c.checks {
		if check.Path == path {
			return check, true
		}
	}
	return RequirementCheck{}, false
}

// faultyStore fails every call for one kind.
type faultyStore struct {
	domain.DocumentStore
	kind domain.Kind
	err  error
}

func (f faultyStore) Load(ctx context.Context, kind domain.Kind, key domain.LookupKey) (domain.Document, bool, error) {
	if kind == f.kind {
		return nil, false, f.err
	}
	return f.DocumentStore.Load(ctx, kind, key)
}

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	base := []ServiceOption{WithClock(stubClock{t: fixedNow})}
	svc, err := NewInMemoryService(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func saveSample(t *testing.T, svc *Service, content map[string]any) *Sample {
	t.Helper()
	s, err := svc.SampleFrom(content)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background()))
	return s
}

func saveComponent(t *testing.T, svc *Service, content map[string]any) *Component {
	t.Helper()
	c, err := svc.ComponentFrom(content)
	require.NoError(t, err)
	require.NoError(t, c.Save(context.Background()))
	return c
}

func mustRef(t *testing.T, e interface {
	ToReference(map[string]any) (domain.Reference, error)
}) domain.Reference {
	t.Helper()
	ref, err := e.ToReference(nil)
	require.NoError(t, err)
	return ref
}

func association(t *testing.T, svc *Service, sample *Sample, component *Component) *SampleComponent {
	t.Helper()
	sc, err := svc.NewSampleComponent(mustRef(t, sample), mustRef(t, component))
	require.NoError(t, err)
	return sc
}
