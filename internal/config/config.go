// Package config holds the settings a bifrost process is opened with. They
// come from a JSON or YAML file, from BIFROST_* environment variables, or
// both, with the environment taking precedence.
package config

import (
	"expvar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"bifrost/internal/blob"
	"bifrost/internal/core"
	"bifrost/internal/logging"
	"bifrost/pkg/domain"
)

// Environment variables read by FromEnv and applied over files by Load.
const (
	EnvDBKey          = "BIFROST_DB_KEY"
	EnvStorageDriver  = "BIFROST_STORAGE_DRIVER"
	EnvSQLitePath     = "BIFROST_SQLITE_PATH"
	EnvBoltPath       = "BIFROST_BOLT_PATH"
	EnvUniqueNames    = "BIFROST_UNIQUE_NAMES"
	EnvSchemaVersion  = "BIFROST_SCHEMA_VERSION"
	EnvSchemaFile     = "BIFROST_SCHEMA_FILE"
	EnvBlobDriver     = "BIFROST_BLOB_DRIVER"
	EnvBlobRoot       = "BIFROST_BLOB_FS_ROOT"
	EnvS3Bucket       = "BIFROST_BLOB_S3_BUCKET"
	EnvS3Region       = "BIFROST_BLOB_S3_REGION"
	EnvS3Endpoint     = "BIFROST_BLOB_S3_ENDPOINT"
	EnvS3PathStyle    = "BIFROST_BLOB_S3_PATH_STYLE"
	EnvS3AccessKeyID  = "BIFROST_BLOB_S3_ACCESS_KEY_ID"
	EnvS3SecretKey    = "BIFROST_BLOB_S3_SECRET_ACCESS_KEY"
	EnvS3SessionToken = "BIFROST_BLOB_S3_SESSION_TOKEN"
	EnvLogProvider    = "BIFROST_LOG_PROVIDER"
	EnvLogFile        = "BIFROST_LOG_FILE"
	EnvMetrics        = "BIFROST_METRICS_PROVIDER"
	EnvTraceFile      = "BIFROST_TRACE_FILE"
)

// Metrics providers accepted in MetricsProvider.
const (
	MetricsNone       = "none"
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
)

// ExpvarName is the expvar variable the expvar metrics provider publishes.
const ExpvarName = "bifrost"

// TraceStderr as TraceFile writes spans to standard error.
const TraceStderr = "stderr"

// DefaultBlobRoot is the filesystem blob root used when none is set.
const DefaultBlobRoot = "./blobdata"

// S3 configures the S3 blob driver.
type S3 struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	PathStyle       bool   `yaml:"path_style,omitempty" json:"path_style,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
	SessionToken    string `yaml:"session_token,omitempty" json:"session_token,omitempty"`
}

// Config is the complete set of process settings.
type Config struct {
	// StorageDriver is one of memory, sqlite, postgres or bolt. When empty the
	// driver is inferred from DBKey.
	StorageDriver string `yaml:"storage_driver" json:"storage_driver"`

	// DBKey is the database connection string.
	DBKey string `yaml:"db_key" json:"db_key"`

	SQLitePath  string `yaml:"sqlite_path,omitempty" json:"sqlite_path,omitempty"`
	BoltPath    string `yaml:"bolt_path,omitempty" json:"bolt_path,omitempty"`
	UniqueNames bool   `yaml:"unique_names,omitempty" json:"unique_names,omitempty"`

	// SchemaVersion selects the schema version of new entities. Empty means
	// the version declared by the schema document.
	SchemaVersion string `yaml:"schema_version,omitempty" json:"schema_version,omitempty"`

	// SchemaFile replaces the embedded schema document.
	SchemaFile string `yaml:"schema_file,omitempty" json:"schema_file,omitempty"`

	// BlobDriver is one of fs, s3 or memory. Empty disables file
	// attachments.
	BlobDriver string `yaml:"blob_driver,omitempty" json:"blob_driver,omitempty"`
	BlobRoot   string `yaml:"blob_root,omitempty" json:"blob_root,omitempty"`
	S3         S3     `yaml:"s3,omitempty" json:"s3,omitempty"`

	LogProvider string `yaml:"log_provider,omitempty" json:"log_provider,omitempty"`
	LogFile     string `yaml:"log_file,omitempty" json:"log_file,omitempty"`

	// MetricsProvider is one of none, expvar or prometheus. Empty means none.
	MetricsProvider string `yaml:"metrics_provider,omitempty" json:"metrics_provider,omitempty"`

	// TraceFile receives one JSON line per service operation. Empty disables
	// tracing.
	TraceFile string `yaml:"trace_file,omitempty" json:"trace_file,omitempty"`
}

// Load reads a configuration file and applies environment overrides. The
// format follows the extension: .json, .yaml or .yml, case-insensitive.
func Load(file string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(file)
	if err != nil {
		return cfg, fmt.Errorf("%q: %w", file, err)
	}
	switch strings.ToLower(filepath.Ext(file)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%q: incompatible format; must be .json, .yml, or .yaml file", file)
	}
	if err != nil {
		return cfg, fmt.Errorf("%q: %w", file, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from BIFROST_* variables alone.
func FromEnv() (Config, error) {
	var cfg Config
	err := cfg.applyEnv(os.LookupEnv)
	return cfg, err
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		EnvDBKey:          &cfg.DBKey,
		EnvStorageDriver:  &cfg.StorageDriver,
		EnvSQLitePath:     &cfg.SQLitePath,
		EnvBoltPath:       &cfg.BoltPath,
		EnvSchemaVersion:  &cfg.SchemaVersion,
		EnvSchemaFile:     &cfg.SchemaFile,
		EnvBlobDriver:     &cfg.BlobDriver,
		EnvBlobRoot:       &cfg.BlobRoot,
		EnvS3Bucket:       &cfg.S3.Bucket,
		EnvS3Region:       &cfg.S3.Region,
		EnvS3Endpoint:     &cfg.S3.Endpoint,
		EnvS3AccessKeyID:  &cfg.S3.AccessKeyID,
		EnvS3SecretKey:    &cfg.S3.SecretAccessKey,
		EnvS3SessionToken: &cfg.S3.SessionToken,
		EnvLogProvider:    &cfg.LogProvider,
		EnvLogFile:        &cfg.LogFile,
		EnvMetrics:        &cfg.MetricsProvider,
		EnvTraceFile:      &cfg.TraceFile,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		EnvUniqueNames: &cfg.UniqueNames,
		EnvS3PathStyle: &cfg.S3.PathStyle,
	}
	for name, dst := range bools {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = b
	}
	return nil
}

// FillDefaults returns a copy of cfg with unset blob settings defaulted.
func (cfg Config) FillDefaults() Config {
	out := cfg
	if blob.Driver(out.BlobDriver) == blob.DriverFilesystem && out.BlobRoot == "" {
		out.BlobRoot = DefaultBlobRoot
	}
	return out
}

// Validate checks driver names and the settings each driver needs.
func (cfg Config) Validate() error {
	switch core.StorageDriver(cfg.StorageDriver) {
	case "", core.StorageMemory, core.StorageSQLite, core.StorageBolt:
	case core.StoragePostgres:
		if cfg.DBKey == "" {
			return fmt.Errorf("db_key: must be set for storage driver postgres")
		}
	default:
		return fmt.Errorf("storage_driver: unknown driver %q", cfg.StorageDriver)
	}

	switch blob.Driver(cfg.BlobDriver) {
	case "", blob.DriverMemory:
	case blob.DriverFilesystem:
		if cfg.BlobRoot == "" {
			return fmt.Errorf("blob_root: must be set for blob driver fs")
		}
	case blob.DriverS3:
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket: must be set for blob driver s3")
		}
	default:
		return fmt.Errorf("blob_driver: unknown driver %q", cfg.BlobDriver)
	}

	if _, err := logging.ParseProvider(cfg.LogProvider); err != nil {
		return fmt.Errorf("log_provider: %w", err)
	}

	switch strings.ToLower(cfg.MetricsProvider) {
	case "", MetricsNone, MetricsExpvar, MetricsPrometheus:
	default:
		return fmt.Errorf("metrics_provider: unknown provider %q", cfg.MetricsProvider)
	}
	return nil
}

// Storage returns the document store settings.
func (cfg Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Driver:     core.StorageDriver(cfg.StorageDriver),
		DSN:        cfg.DBKey,
		SQLitePath: cfg.SQLitePath,
		BoltPath:   cfg.BoltPath,
		Options:    domain.StoreOptions{UniqueNames: cfg.UniqueNames},
	}
}

// Blob returns the blob store settings and whether file attachments are
// enabled at all.
func (cfg Config) Blob() (blob.Config, bool) {
	if cfg.BlobDriver == "" {
		return blob.Config{}, false
	}
	return blob.Config{
		Driver: blob.Driver(cfg.BlobDriver),
		FSRoot: cfg.BlobRoot,
		S3: blob.S3Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			SessionToken:    cfg.S3.SessionToken,
			PathStyle:       cfg.S3.PathStyle,
		},
	}, true
}

// Logger creates the configured logger. The Closer releases the log file.
func (cfg Config) Logger() (logging.Logger, io.Closer, error) {
	p, err := logging.ParseProvider(cfg.LogProvider)
	if err != nil {
		return nil, nil, err
	}
	return logging.New(p, cfg.LogFile)
}

// Metrics creates the configured metrics recorder, nil when metrics are
// off. Prometheus collectors go to reg, or to the default registerer when
// reg is nil. The expvar recorder is published as ExpvarName; later
// recorders in the same process get a generated name.
func (cfg Config) Metrics(reg prometheus.Registerer) (core.MetricsRecorder, error) {
	switch strings.ToLower(cfg.MetricsProvider) {
	case "", MetricsNone:
		return nil, nil
	case MetricsExpvar:
		name := ExpvarName
		if expvar.Get(name) != nil {
			name = ""
		}
		return core.NewExpvarMetricsRecorder(name), nil
	case MetricsPrometheus:
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, fmt.Errorf("metrics_provider: %w", err)
		}
		return rec, nil
	}
	return nil, fmt.Errorf("metrics_provider: unknown provider %q", cfg.MetricsProvider)
}

// Tracer creates the configured JSON-lines tracer, nil when tracing is off.
// The Closer, nil unless a file was opened, releases the trace file.
func (cfg Config) Tracer() (core.Tracer, io.Closer, error) {
	switch cfg.TraceFile {
	case "":
		return nil, nil, nil
	case TraceStderr:
		return core.NewJSONTracer(os.Stderr), nil, nil
	}
	f, err := os.OpenFile(cfg.TraceFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace file: %q: %w", cfg.TraceFile, err)
	}
	return core.NewJSONTracer(f), f, nil
}
