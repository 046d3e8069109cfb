// Package config loads assigner settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/nornicdb-nearest/pkg/compute"
	"github.com/orneryd/nornicdb-nearest/pkg/gpu"
	"github.com/orneryd/nornicdb-nearest/pkg/nearest"
)

// Environment variables that override file values.
const (
	EnvDimensionality = "NEAREST_DIMENSIONALITY"
	EnvBatchItems     = "NEAREST_BATCH_ITEMS"
	EnvBackend        = "NEAREST_BACKEND"
	EnvDeviceIndex    = "NEAREST_DEVICE_INDEX"
	EnvWorkers        = "NEAREST_WORKERS"
	EnvLogLevel       = "NEAREST_LOG_LEVEL"
	EnvLogFormat      = "NEAREST_LOG_FORMAT"
	EnvStorePath      = "NEAREST_STORE_PATH"
	EnvMetricsListen  = "NEAREST_METRICS_LISTEN"
)

// DefaultDimensionality is reported by commands that have no centroid set to
// take the dimensionality from.
const DefaultDimensionality = 2

// Config is the complete configuration.
//
// Dimensionality is optional. When zero, assignment takes it from the
// centroid set; when set, a centroid set of any other dimensionality is
// rejected.
type Config struct {
	Dimensionality int           `yaml:"dimensionality"`
	BatchItems     int           `yaml:"batch_items"` // 0 uses the scalar budget
	Device         DeviceConfig  `yaml:"device"`
	Kernel         KernelConfig  `yaml:"kernel"`
	Log            LogConfig     `yaml:"log"`
	Store          StoreConfig   `yaml:"store"`
	Metrics        MetricsConfig `yaml:"metrics"`
}

// DeviceConfig selects the compute backend.
type DeviceConfig struct {
	Backend         string `yaml:"backend"` // auto, host, opencl
	Index           int    `yaml:"index"`
	Workers         int    `yaml:"workers"`
	FallbackOnError bool   `yaml:"fallback_on_error"`
}

// KernelConfig names the kernel resource and entry point.
type KernelConfig struct {
	Resource  string `yaml:"resource"`
	Entry     string `yaml:"entry"`
	Namespace string `yaml:"namespace"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// StoreConfig locates the centroid store. An empty path keeps it in memory.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig controls the Prometheus endpoint. Empty disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Backend:         "auto",
			FallbackOnError: true,
		},
		Kernel: KernelConfig{
			Resource:  compute.NearestPointResource,
			Entry:     compute.NearestPointEntry,
			Namespace: compute.NearestPointNamespace,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	ints := []struct {
		key string
		dst *int
	}{
		{EnvDimensionality, &c.Dimensionality},
		{EnvBatchItems, &c.BatchItems},
		{EnvDeviceIndex, &c.Device.Index},
		{EnvWorkers, &c.Device.Workers},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}

	strs := []struct {
		key string
		dst *string
	}{
		{EnvBackend, &c.Device.Backend},
		{EnvLogLevel, &c.Log.Level},
		{EnvLogFormat, &c.Log.Format},
		{EnvStorePath, &c.Store.Path},
		{EnvMetricsListen, &c.Metrics.Listen},
	}
	for _, e := range strs {
		if v, ok := lookup(e.key); ok {
			*e.dst = v
		}
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Dimensionality < 0 || c.Dimensionality > nearest.MaxBatchScalars {
		errs = append(errs, fmt.Errorf("dimensionality %d: %w", c.Dimensionality, nearest.ErrInvalidDimension))
	}
	if c.BatchItems < 0 {
		errs = append(errs, fmt.Errorf("batch_items %d: %w", c.BatchItems, nearest.ErrInvalidBatchSize))
	}
	if _, err := gpu.ParseBackend(c.Device.Backend); err != nil {
		errs = append(errs, err)
	}
	if c.Device.Index < 0 {
		errs = append(errs, fmt.Errorf("device index %d must not be negative", c.Device.Index))
	}
	if c.Device.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers %d must not be negative", c.Device.Workers))
	}
	if c.Kernel.Resource == "" || c.Kernel.Entry == "" {
		errs = append(errs, errors.New("kernel resource and entry are required"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// EffectiveDimensionality returns the configured dimensionality, or
// DefaultDimensionality when none is configured.
func (c *Config) EffectiveDimensionality() int {
	if c.Dimensionality == 0 {
		return DefaultDimensionality
	}
	return c.Dimensionality
}

// CheckDimensionality reports whether data of dimensionality dim may be used
// with this configuration.
func (c *Config) CheckDimensionality(dim int) error {
	if c.Dimensionality != 0 && c.Dimensionality != dim {
		return fmt.Errorf("%w: configured dimensionality %d, got %d",
			nearest.ErrDimensionMismatch, c.Dimensionality, dim)
	}
	return nil
}

// AcceleratorConfig converts the device section for gpu.NewAccelerator.
func (c *Config) AcceleratorConfig() *gpu.Config {
	backend, _ := gpu.ParseBackend(c.Device.Backend)
	return &gpu.Config{
		Enabled:          backend != gpu.BackendHost,
		PreferredBackend: backend,
		FallbackOnError:  c.Device.FallbackOnError,
		DeviceIndex:      c.Device.Index,
		Workers:          c.Device.Workers,
	}
}

// KernelRef returns the configured kernel.
func (c *Config) KernelRef() nearest.KernelRef {
	ns := c.Kernel.Namespace
	if ns == "" {
		ns = compute.NearestPointNamespace
	}
	return nearest.KernelRef{Resource: c.Kernel.Resource, Entry: c.Kernel.Entry, Namespace: ns}
}
