package config

import (
	"fmt"
	"strings"
)

// DefaultMaxSourceThreads caps the number of sources read concurrently
// within one chunk when the configuration does not say otherwise.
const DefaultMaxSourceThreads = 16

// Config is the root configuration of a load-stage process. It is organized
// into logical sections:
//   - Worker: identity, chunk-size hints and source fan-out limits
//   - Table: metadata of the persisted table column sources read from
//   - Sources: one entry per configured column, naming its factory
//   - Storage: blob store backing the blob and column sources
//   - Postgres: connection used by the postgres metadata source
//   - Observability: logging, metrics and tracing
type Config struct {
	Worker        WorkerConfig        `yaml:"worker" json:"worker"`
	Table         TableConfig         `yaml:"table" json:"table"`
	Sources       []SourceSpec        `yaml:"sources" json:"sources"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Postgres      PostgresConfig      `yaml:"postgres" json:"postgres"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// WorkerConfig contains load-worker settings.
type WorkerConfig struct {
	// NodeID identifies the node the worker runs on
	NodeID int `yaml:"node_id" json:"node_id"`
	// WorkerID identifies the worker within its node
	WorkerID int `yaml:"worker_id" json:"worker_id"`
	// IOPacketSize is the storage-facing chunk-size hint
	IOPacketSize int `yaml:"io_packet_size" json:"io_packet_size"`
	// WorkPacketSize is the number of rows requested per yield
	WorkPacketSize int `yaml:"work_packet_size" json:"work_packet_size"`
	// MaxSourceThreads bounds how many sources are read concurrently
	MaxSourceThreads int `yaml:"max_source_threads" json:"max_source_threads"`
	// RaggedSources allows sources with different row counts in one unit of work
	RaggedSources bool `yaml:"ragged_sources" json:"ragged_sources"`
}

// TableConfig describes the table column-backed sources read from.
type TableConfig struct {
	ID      int64          `yaml:"id" json:"id"`
	Name    string         `yaml:"name" json:"name"`
	Columns []ColumnConfig `yaml:"columns" json:"columns"`
}

// ColumnConfig describes one persisted column.
type ColumnConfig struct {
	Name string `yaml:"name" json:"name"`
	// Type is "bytes" or "video"
	Type string `yaml:"type" json:"type"`
	// Codec is the video codec of a video column (raw, h264, hevc)
	Codec string `yaml:"codec" json:"codec"`
	// Inplace marks video columns decoded in place
	Inplace bool `yaml:"inplace" json:"inplace"`
}

// SourceSpec configures one source instance.
type SourceSpec struct {
	// Name selects the registered source factory
	Name    string            `yaml:"name" json:"name"`
	Columns []ColumnConfig    `yaml:"columns" json:"columns"`
	Options map[string]string `yaml:"options" json:"options"`
}

// StorageConfig selects and configures the blob store.
type StorageConfig struct {
	// Backend is one of local, s3, gcs
	Backend string `yaml:"backend" json:"backend"`
	// Root is the directory of the local backend
	Root            string `yaml:"root" json:"root"`
	Bucket          string `yaml:"bucket" json:"bucket"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	// Compression is the codec stored objects are encoded with
	Compression  string `yaml:"compression" json:"compression"`
	RetryAttempts int    `yaml:"retry_attempts" json:"retry_attempts"`
}

// PostgresConfig configures the postgres metadata source.
type PostgresConfig struct {
	DSN      string `yaml:"dsn" json:"dsn"`
	Table    string `yaml:"table" json:"table"`
	MaxConns int32  `yaml:"max_conns" json:"max_conns"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel          string  `yaml:"log_level" json:"log_level"`
	LogEncoding       string  `yaml:"log_encoding" json:"log_encoding"`
	Development       bool    `yaml:"development" json:"development"`
	EnableMetrics     bool    `yaml:"enable_metrics" json:"enable_metrics"`
	MetricsAddr       string  `yaml:"metrics_addr" json:"metrics_addr"`
	EnableTracing     bool    `yaml:"enable_tracing" json:"enable_tracing"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// NewDefault creates a Config with sensible defaults. Sources and table
// columns are left empty; they are always deployment specific.
func NewDefault() *Config {
	return &Config{
		Worker: WorkerConfig{
			IOPacketSize:     1000,
			WorkPacketSize:   250,
			MaxSourceThreads: DefaultMaxSourceThreads,
		},
		Storage: StorageConfig{
			Backend:       "local",
			Root:          ".",
			Compression:   "none",
			RetryAttempts: 3,
		},
		Postgres: PostgresConfig{
			Table:    "metadata",
			MaxConns: 8,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogEncoding:       "json",
			MetricsAddr:       ":9102",
			TracingSampleRate: 0.1,
		},
	}
}

var validBackends = map[string]bool{"local": true, "s3": true, "gcs": true}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Worker.WorkPacketSize <= 0 {
		return fmt.Errorf("work_packet_size must be positive")
	}
	if c.Worker.IOPacketSize <= 0 {
		return fmt.Errorf("io_packet_size must be positive")
	}
	if c.Worker.MaxSourceThreads < 0 {
		return fmt.Errorf("max_source_threads cannot be negative")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		if len(s.Columns) == 0 {
			return fmt.Errorf("sources[%d]: at least one output column is required", i)
		}
		for _, col := range s.Columns {
			if err := validateColumnType(col.Type); err != nil {
				return fmt.Errorf("sources[%d]: %w", i, err)
			}
		}
	}
	for _, col := range c.Table.Columns {
		if err := validateColumnType(col.Type); err != nil {
			return fmt.Errorf("table: %w", err)
		}
	}
	if !validBackends[strings.ToLower(c.Storage.Backend)] {
		return fmt.Errorf("unsupported storage backend: %q", c.Storage.Backend)
	}
	if c.Storage.Backend != "local" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required for backend %s", c.Storage.Backend)
	}
	if c.Storage.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts cannot be negative")
	}
	return nil
}

// SourceThreads returns the configured fan-out cap, falling back to the default.
func (w *WorkerConfig) SourceThreads() int {
	if w.MaxSourceThreads <= 0 {
		return DefaultMaxSourceThreads
	}
	return w.MaxSourceThreads
}

func validateColumnType(t string) error {
	switch t {
	case "", "bytes", "video":
		return nil
	default:
		return fmt.Errorf("unsupported column type: %q", t)
	}
}
