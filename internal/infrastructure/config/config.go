// Package config provides configuration structs and utilities for invsync.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jbctechsolutions/invsync/internal/domain/entity"
)

// Config represents the root configuration for invsync.
type Config struct {
	Data          DataConfig          `yaml:"data"`
	Remote        RemoteConfig        `yaml:"remote"`
	Sync          SyncConfig          `yaml:"sync"`
	Entities      EntitiesConfig      `yaml:"entities"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DataConfig locates the local collections and the engine database.
type DataConfig struct {
	Directory string `yaml:"directory"` // directory holding <collection>.json files
	Database  string `yaml:"database"`  // SQLite file for links, checkpoints and run history
	MachineID string `yaml:"machine_id,omitempty"`
}

// RemoteConfig holds configuration for the external system of record.
type RemoteConfig struct {
	Driver      string                      `yaml:"driver"` // http, memory
	BaseURL     string                      `yaml:"base_url"`
	APIToken    string                      `yaml:"api_token,omitempty"`
	Timeout     time.Duration               `yaml:"timeout"`
	PageSize    int                         `yaml:"page_size"`
	Collections map[string]CollectionConfig `yaml:"collections,omitempty"`
}

// CollectionConfig overrides how one kind is stored remotely.
type CollectionConfig struct {
	Name   string            `yaml:"name,omitempty"`   // remote collection name, defaults to the local one
	Fields map[string]string `yaml:"fields,omitempty"` // local field -> remote property
}

// SyncConfig holds configuration for sync runs.
type SyncConfig struct {
	Kinds               []string      `yaml:"kinds,omitempty"` // default kinds when a request names none
	CheckpointRetention int           `yaml:"checkpoint_retention"`
	PushConcurrency     int           `yaml:"push_concurrency"`
	PushTimeout         time.Duration `yaml:"push_timeout"`
}

// EntitiesConfig enables the optional kinds.
type EntitiesConfig struct {
	Tools    bool `yaml:"tools"`
	Toolkits bool `yaml:"toolkits"`
}

// ServerConfig holds configuration for the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ObservabilityConfig holds configuration for observability features.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"` // 0.0 to 1.0
	ServiceName  string  `yaml:"service_name"`
}

// Remote drivers.
const (
	DriverHTTP   = "http"
	DriverMemory = "memory"
)

// Default configuration values.
const (
	DefaultDataDirectory = "~/.invsync/data"
	DefaultDatabase      = "~/.invsync/invsync.db"

	DefaultRemoteDriver   = DriverHTTP
	DefaultRemoteTimeout  = 30 * time.Second
	DefaultRemotePageSize = 100

	DefaultCheckpointRetention = 10
	DefaultPushConcurrency     = 4
	DefaultPushTimeout         = 15 * time.Second

	DefaultServerAddr = "127.0.0.1:8787"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultTracingEnabled      = false
	DefaultTracingExporterType = "none"
	DefaultTracingSampleRate   = 1.0
	DefaultTracingServiceName  = "invsync"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

var validTracingExporterTypes = map[string]bool{
	"none":   true,
	"stdout": true,
	"otlp":   true,
}

var validRemoteDrivers = map[string]bool{
	DriverHTTP:   true,
	DriverMemory: true,
}

// NewDefaultConfig creates a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Directory: DefaultDataDirectory,
			Database:  DefaultDatabase,
		},
		Remote: RemoteConfig{
			Driver:   DefaultRemoteDriver,
			Timeout:  DefaultRemoteTimeout,
			PageSize: DefaultRemotePageSize,
		},
		Sync: SyncConfig{
			CheckpointRetention: DefaultCheckpointRetention,
			PushConcurrency:     DefaultPushConcurrency,
			PushTimeout:         DefaultPushTimeout,
		},
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      DefaultTracingEnabled,
				ExporterType: DefaultTracingExporterType,
				SampleRate:   DefaultTracingSampleRate,
				ServiceName:  DefaultTracingServiceName,
			},
		},
	}
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Data.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("data: %w", err))
	}
	if err := c.Remote.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("remote: %w", err))
	}
	if err := c.Sync.Validate(c.EnabledKinds()); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnabledKinds returns the core kinds plus whichever optional kinds are
// switched on, in canonical order.
func (c *Config) EnabledKinds() []entity.Kind {
	kinds := entity.CoreKinds()
	if c.Entities.Tools {
		kinds = append(kinds, entity.KindTool)
	}
	if c.Entities.Toolkits {
		kinds = append(kinds, entity.KindToolkit)
	}
	return kinds
}

// DefaultSyncKinds returns the kinds a request without an explicit list
// covers: sync.kinds when set, otherwise every enabled kind.
func (c *Config) DefaultSyncKinds() []entity.Kind {
	if len(c.Sync.Kinds) == 0 {
		return c.EnabledKinds()
	}
	kinds, err := entity.ParseKinds(c.Sync.Kinds)
	if err != nil {
		return c.EnabledKinds()
	}
	return kinds
}

// Validate checks if the DataConfig is valid.
func (d *DataConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Directory) == "" {
		errs = append(errs, errors.New("directory is required"))
	}
	if strings.TrimSpace(d.Database) == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks if the RemoteConfig is valid. An empty base_url is
// accepted here; it only becomes an error when the http driver is built.
func (r *RemoteConfig) Validate() error {
	var errs []error

	if !validRemoteDrivers[r.Driver] {
		errs = append(errs, fmt.Errorf("invalid driver %q: must be one of http, memory", r.Driver))
	}

	if r.BaseURL != "" {
		parsedURL, err := url.Parse(r.BaseURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid base_url: %w", err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errs = append(errs, errors.New("base_url must use http or https scheme"))
		}
	}

	if r.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be non-negative"))
	}
	if r.PageSize < 0 {
		errs = append(errs, errors.New("page_size must be non-negative"))
	}

	for name := range r.Collections {
		if _, err := entity.ParseKind(name); err != nil {
			errs = append(errs, fmt.Errorf("collections: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Collection returns the override for kind, if any.
func (r *RemoteConfig) Collection(kind entity.Kind) (CollectionConfig, bool) {
	for name, cc := range r.Collections {
		if k, err := entity.ParseKind(name); err == nil && k == kind {
			return cc, true
		}
	}
	return CollectionConfig{}, false
}

// Validate checks if the SyncConfig is valid against the enabled kinds.
func (s *SyncConfig) Validate(enabled []entity.Kind) error {
	var errs []error

	if s.CheckpointRetention < 1 {
		errs = append(errs, fmt.Errorf("checkpoint_retention must be at least 1, got %d", s.CheckpointRetention))
	}
	if s.PushConcurrency < 1 {
		errs = append(errs, fmt.Errorf("push_concurrency must be at least 1, got %d", s.PushConcurrency))
	}
	if s.PushTimeout < 0 {
		errs = append(errs, errors.New("push_timeout must be non-negative"))
	}

	kinds, err := entity.ParseKinds(s.Kinds)
	if err != nil {
		errs = append(errs, fmt.Errorf("kinds: %w", err))
	}
	for _, k := range kinds {
		if !containsKind(enabled, k) {
			errs = append(errs, fmt.Errorf("kinds: %q is not enabled", k))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func containsKind(kinds []entity.Kind, k entity.Kind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Validate checks if the ServerConfig is valid.
func (s *ServerConfig) Validate() error {
	if strings.TrimSpace(s.Addr) == "" {
		return errors.New("addr is required")
	}
	return nil
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}
	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks if the ObservabilityConfig is valid.
func (o *ObservabilityConfig) Validate() error {
	if err := o.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

// Validate checks if the TracingConfig is valid.
func (t *TracingConfig) Validate() error {
	var errs []error

	if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
		errs = append(errs, fmt.Errorf("invalid exporter_type %q: must be one of none, stdout, otlp", t.ExporterType))
	}
	if t.Enabled && t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
		errs = append(errs, errors.New("otlp_endpoint is required when exporter_type is otlp"))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
