package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"bifrost/internal/blob"
	"bifrost/internal/infra/persistence/memory"
	"bifrost/internal/schema"
	"bifrost/pkg/domain"
)

// Service binds a document store, a schema registry and an optional blob
// store. Entities constructed through a Service validate against its
// registry and persist through its store.
type Service struct {
	store    domain.DocumentStore
	blobs    blob.Store
	registry *schema.Registry
	version  string
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	clock    Clock
	observer RequirementObserver
	newID    func() domain.ObjectID
	closers  []io.Closer
}

// ServiceOption customizes a Service at construction.
type ServiceOption func(*Service)

// WithLogger routes diagnostics, including requirement checks, to logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder reports the outcome of every service operation.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer opens a span around every service operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the time source used for bookkeeping timestamps.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithBlobStore enables file attachments.
func WithBlobStore(store blob.Store) ServiceOption {
	return func(s *Service) { s.blobs = store }
}

// WithSchemaRegistry replaces the embedded schema registry.
func WithSchemaRegistry(reg *schema.Registry) ServiceOption {
	return func(s *Service) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithCloser hands c to the service; Close releases it after the document
// store. Closers run in reverse order of registration.
func WithCloser(c io.Closer) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.closers = append(s.closers, c)
		}
	}
}

// WithSchemaVersion selects the schema version of newly constructed entities.
func WithSchemaVersion(version string) ServiceOption {
	return func(s *Service) { s.version = version }
}

// WithRequirementObserver receives every requirement check performed by
// CheckRequirements.
func WithRequirementObserver(observer RequirementObserver) ServiceOption {
	return func(s *Service) { s.observer = observer }
}

// WithIDGenerator overrides the identifier source for stored files.
func WithIDGenerator(fn func() domain.ObjectID) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService constructs a service backed by the supplied store. The embedded
// schema registry is loaded unless one is injected.
func NewService(store domain.DocumentStore, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("document store cannot be nil")
	}
	svc := &Service{
		store:   store,
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		clock:   systemClock{},
		newID:   domain.NewObjectID,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.registry == nil {
		reg, err := schema.Load()
		if err != nil {
			return nil, fmt.Errorf("load schema registry: %w", err)
		}
		svc.registry = reg
	}
	if svc.version == "" {
		svc.version = svc.registry.DefaultVersion()
	}
	if _, err := svc.registry.SchemaFor(domain.KindSample, svc.version); err != nil {
		return nil, fmt.Errorf("schema version %s: %w", svc.version, err)
	}
	return svc, nil
}

// NewInMemoryService creates a service over an in-memory document store and
// an in-memory blob store.
func NewInMemoryService(opts ...ServiceOption) (*Service, error) {
	base := []ServiceOption{WithBlobStore(blob.NewMemory())}
	return NewService(memory.NewStore(domain.StoreOptions{}), append(base, opts...)...)
}

// Store returns the underlying document store.
func (s *Service) Store() domain.DocumentStore { return s.store }

// Blobs returns the configured blob store, nil when files are disabled.
func (s *Service) Blobs() blob.Store { return s.blobs }

// Registry returns the schema registry entities validate against.
func (s *Service) Registry() *schema.Registry { return s.registry }

// SchemaVersion returns the version given to newly constructed entities.
func (s *Service) SchemaVersion() string { return s.version }

// Ping checks that the document store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.run(ctx, OpPing, s.store.Ping)
}

// HasDatabaseConnection reports whether the document store answers a ping.
// Failures are logged, not returned.
func (s *Service) HasDatabaseConnection(ctx context.Context) bool {
	if err := s.Ping(ctx); err != nil {
		s.logger.Warn("no database connection", "error", err)
		return false
	}
	return true
}

// Close releases the document store and any resources handed over with
// WithCloser.
func (s *Service) Close() error {
	err := s.store.Close()
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, s.closers[i].Close())
	}
	s.closers = nil
	return err
}

// SetStatusAndSave records status on the association record and on the
// matching component entry of the sample, then saves both.
func (s *Service) SetStatusAndSave(ctx context.Context, sample *Sample, sc *SampleComponent, status string) error {
	if err := sc.SetStatus(status); err != nil {
		return err
	}
	component, err := sc.Component()
	if err != nil {
		return err
	}
	if err := sample.SetComponentStatus(component, status); err != nil {
		return err
	}
	if err := sc.Save(ctx); err != nil {
		return err
	}
	return sample.Save(ctx)
}
