// Package bifrost is the entry point for pipeline drivers. Open wires a
// document store, the schema registry, an optional blob store and a logger
// into a service from a configuration; the aliases below expose the entity
// model without reaching into internal packages.
package bifrost

import (
	"context"
	"fmt"
	"io"

	"bifrost/internal/blob"
	"bifrost/internal/config"
	"bifrost/internal/core"
	"bifrost/internal/schema"
	"bifrost/pkg/domain"
)

type (
	// Config is the process configuration.
	Config = config.Config
	// Service binds a document store, schema registry and blob store.
	Service = core.Service
	// ServiceOption customizes a Service.
	ServiceOption = core.ServiceOption

	Entity          = core.Entity
	Sample          = core.Sample
	Component       = core.Component
	Run             = core.Run
	Host            = core.Host
	BioDB           = core.BioDB
	Category        = core.Category
	SampleComponent = core.SampleComponent
	RunComponent    = core.RunComponent

	Reference = domain.Reference
	Document  = domain.Document
	ObjectID  = domain.ObjectID
	Kind      = domain.Kind

	RequirementCheck    = core.RequirementCheck
	RequirementObserver = core.RequirementObserver
	StoredFile          = core.StoredFile

	// MetricsRecorder receives one observation per service operation.
	MetricsRecorder = core.MetricsRecorder
	// Tracer opens one span per service operation.
	Tracer    = core.Tracer
	TraceSpan = core.TraceSpan
	Clock     = core.Clock

	ExpvarMetricsRecorder     = core.ExpvarMetricsRecorder
	ExpvarMetricsSnapshot     = core.ExpvarMetricsSnapshot
	PrometheusMetricsRecorder = core.PrometheusMetricsRecorder
	JSONTraceTracer           = core.JSONTraceTracer
	JSONTraceEntry            = core.JSONTraceEntry
)

// Option forwards.
var (
	WithLogger              = core.WithLogger
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithTracer              = core.WithTracer
	WithClock               = core.WithClock
	WithRequirementObserver = core.WithRequirementObserver
	WithCloser              = core.WithCloser
)

// Exporters for WithMetricsRecorder and WithTracer.
var (
	NewExpvarMetricsRecorder     = core.NewExpvarMetricsRecorder
	NewPrometheusMetricsRecorder = core.NewPrometheusMetricsRecorder
	NewJSONTracer                = core.NewJSONTracer
)

// LoadConfig reads a configuration file; FromEnv reads BIFROST_* variables.
var (
	LoadConfig = config.Load
	FromEnv    = config.FromEnv
)

// Open validates cfg and constructs a service from it. Options are applied
// after the configured ones, so a caller can replace the configured logger,
// metrics recorder or tracer. The caller closes the service, which also
// closes the log and trace files.
func Open(ctx context.Context, cfg Config, opts ...ServiceOption) (svc *Service, err error) {
	cfg = cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var closers []io.Closer
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	logger, logCloser, err := cfg.Logger()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	closers = append(closers, logCloser)
	base := []ServiceOption{core.WithLogger(logger), core.WithSchemaVersion(cfg.SchemaVersion)}

	metrics, err := cfg.Metrics(nil)
	if err != nil {
		return nil, err
	}
	if metrics != nil {
		base = append(base, core.WithMetricsRecorder(metrics))
	}

	tracer, traceCloser, err := cfg.Tracer()
	if err != nil {
		return nil, err
	}
	if traceCloser != nil {
		closers = append(closers, traceCloser)
	}
	if tracer != nil {
		base = append(base, core.WithTracer(tracer))
	}

	if cfg.SchemaFile != "" {
		reg, err := schema.LoadFile(cfg.SchemaFile)
		if err != nil {
			return nil, err
		}
		base = append(base, core.WithSchemaRegistry(reg))
	}

	if blobCfg, enabled := cfg.Blob(); enabled {
		blobs, err := blob.Open(ctx, blobCfg)
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		base = append(base, core.WithBlobStore(blobs))
	}

	store, err := core.OpenDocumentStore(ctx, cfg.Storage())
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	for _, c := range closers {
		base = append(base, core.WithCloser(c))
	}
	svc, err = core.NewService(store, append(base, opts...)...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Debug("bifrost opened",
		"storage", string(cfg.Storage().ResolvedDriver()),
		"schema_version", svc.SchemaVersion(),
		"schema_fingerprint", svc.Registry().Fingerprint(),
		"metrics", cfg.MetricsProvider)
	return svc, nil
}
