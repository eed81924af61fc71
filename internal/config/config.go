// Package config loads the streaming engine's configuration surface
// from a YAML file, falling back to the documented defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/kestrel-engine/streamforge/internal/prefetch"
	"github.com/kestrel-engine/streamforge/internal/queue"
)

// RingConfig is the YAML-friendly form of a prefetch.Ring (Priority is a
// name, not the internal integer enum).
type RingConfig struct {
	InnerRadius float64 `yaml:"inner_radius"`
	OuterRadius float64 `yaml:"outer_radius"`
	Priority    string  `yaml:"priority"`
	MaxAssets   int     `yaml:"max_assets"`
}

// Config is the engine's full enumerated configuration surface.
type Config struct {
	MemoryBudgetBytes int64        `yaml:"memory_budget"`
	WorkerThreads     int          `yaml:"worker_threads"`
	PrefetchRadius    float64      `yaml:"prefetch_radius"`
	StreamingRings    []RingConfig `yaml:"streaming_rings"`

	VTPageSize        int   `yaml:"vt_page_size"`
	VTCacheCapacity   int64 `yaml:"vt_cache_capacity"`

	DefragFragmentationTrigger float64 `yaml:"defrag_fragmentation_trigger"`
	DefragFreeTailTrigger      int64   `yaml:"defrag_free_tail_trigger"`

	IOBytesPerSec int `yaml:"io_bytes_per_sec"`

	// AssetBackend selects the resolver hook:
	// "local" (default), "s3", "azure", or "gcs".
	AssetBackend string `yaml:"asset_backend"`
	AssetBaseDir string `yaml:"asset_base_dir"`

	// Remote backend settings, used only when AssetBackend selects them.
	S3Bucket        string `yaml:"s3_bucket"`
	S3Region        string `yaml:"s3_region"`
	S3AccessKey     string `yaml:"s3_access_key"`
	S3SecretKey     string `yaml:"s3_secret_key"`
	AzureServiceURL string `yaml:"azure_service_url"`
	AzureContainer  string `yaml:"azure_container"`
	GCSBucket       string `yaml:"gcs_bucket"`

	// CatalogDSN, if set, enables the optional durable asset catalog.
	// Empty runs the in-memory no-op catalog.
	CatalogDSN string `yaml:"catalog_dsn"`

	AdminAddr   string `yaml:"admin_addr"`
	AdminSecret string `yaml:"admin_secret"`
	WebUIAddr   string `yaml:"webui_addr"`
}

const (
	defaultMemoryBudget     = 2 * 1024 * 1024 * 1024 // 2 GiB
	defaultWorkerThreads    = 4
	defaultPrefetchRadius   = 500
	defaultVTPageSize       = 4096
	defaultVTCacheCapacity  = 1 * 1024 * 1024 * 1024 // 1 GiB
	defaultFragTrigger      = 0.30
	defaultFreeTailTrigger  = 256 * 1024 * 1024
)

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		MemoryBudgetBytes:          defaultMemoryBudget,
		WorkerThreads:              defaultWorkerThreads,
		PrefetchRadius:             defaultPrefetchRadius,
		StreamingRings:             defaultRingConfigs(),
		VTPageSize:                 defaultVTPageSize,
		VTCacheCapacity:            defaultVTCacheCapacity,
		DefragFragmentationTrigger: defaultFragTrigger,
		DefragFreeTailTrigger:      defaultFreeTailTrigger,
		AssetBackend:               "local",
		AssetBaseDir:               ".",
	}
}

func defaultRingConfigs() []RingConfig {
	var out []RingConfig
	for _, r := range prefetch.DefaultRings() {
		out = append(out, RingConfig{
			InnerRadius: r.InnerRadius,
			OuterRadius: r.OuterRadius,
			Priority:    priorityName(r.Priority),
			MaxAssets:   r.MaxAssets,
		})
	}
	return out
}

// Load reads a YAML configuration file at path, overlaying it onto
// Default(). A missing or empty path simply returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Rings converts the YAML ring configuration into prefetch.Ring values,
// skipping any entry with an unrecognized priority name.
func (c *Config) Rings() []prefetch.Ring {
	out := make([]prefetch.Ring, 0, len(c.StreamingRings))
	for _, rc := range c.StreamingRings {
		p, ok := priorityByName(rc.Priority)
		if !ok {
			continue
		}
		out = append(out, prefetch.Ring{
			InnerRadius: rc.InnerRadius,
			OuterRadius: rc.OuterRadius,
			Priority:    p,
			MaxAssets:   rc.MaxAssets,
		})
	}
	return out
}

func priorityName(p queue.Priority) string {
	switch p {
	case queue.Critical:
		return "critical"
	case queue.High:
		return "high"
	case queue.Normal:
		return "normal"
	case queue.Prefetch:
		return "prefetch"
	case queue.Low:
		return "low"
	default:
		return "normal"
	}
}

func priorityByName(name string) (queue.Priority, bool) {
	switch name {
	case "critical":
		return queue.Critical, true
	case "high":
		return queue.High, true
	case "normal":
		return queue.Normal, true
	case "prefetch":
		return queue.Prefetch, true
	case "low":
		return queue.Low, true
	default:
		return 0, false
	}
}
