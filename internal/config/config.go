// Package config provides unified configuration for abgen.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ABGEN_"

// Partition strategies.
const (
	StrategyDay   = "day"
	StrategyGroup = "group"
	StrategyNone  = "none"
)

// Storage types.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds the configuration of one generation run.
type Config struct {
	// NumRecords is the number of sessions to generate
	NumRecords int `json:"num_records" yaml:"num_records" env:"NUM_RECORDS"`

	// OutputPath is the CSV file written by the run
	OutputPath string `json:"output_path" yaml:"output_path" env:"OUTPUT"`

	// Seeds for the two random streams
	Seeds SeedConfig `json:"seeds" yaml:"seeds" envPrefix:"SEED_"`

	// Workers is the number of goroutines resolving outcomes
	Workers int `json:"workers" yaml:"workers" env:"WORKERS"`

	// Partition export configuration
	Partition PartitionConfig `json:"partition" yaml:"partition" envPrefix:"PARTITION_"`

	// Publish configuration
	Publish PublishConfig `json:"publish" yaml:"publish" envPrefix:"PUBLISH_"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage" envPrefix:"STORAGE_"`
}

// SeedConfig holds the seeds of the general and distribution streams.
type SeedConfig struct {
	General      uint64 `json:"general" yaml:"general" env:"GENERAL"`
	Distribution uint64 `json:"distribution" yaml:"distribution" env:"DISTRIBUTION"`
}

// PartitionConfig holds SQLite partition export configuration.
type PartitionConfig struct {
	// Enabled turns on partition export
	Enabled bool `json:"enabled" yaml:"enabled" env:"ENABLED"`

	// Dir is the directory for partition files
	Dir string `json:"dir" yaml:"dir" env:"DIR"`

	// Strategy is the split key: day, group, none
	Strategy string `json:"strategy" yaml:"strategy" env:"STRATEGY"`

	// Concurrency is the number of partitions built in parallel
	Concurrency int `json:"concurrency" yaml:"concurrency" env:"CONCURRENCY"`
}

// PublishConfig holds object storage publishing configuration.
type PublishConfig struct {
	// Enabled turns on publishing
	Enabled bool `json:"enabled" yaml:"enabled" env:"ENABLED"`

	// Prefix is the object key prefix for a run
	Prefix string `json:"prefix" yaml:"prefix" env:"PREFIX"`

	// Compress uploads the CSV as a snappy stream
	Compress bool `json:"compress" yaml:"compress" env:"COMPRESS"`

	// SkipExisting leaves objects already published for the run untouched
	SkipExisting bool `json:"skip_existing" yaml:"skip_existing" env:"SKIP_EXISTING"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type" env:"TYPE"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path" env:"PATH"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3" envPrefix:"S3_"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket" env:"BUCKET"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region" env:"REGION"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"ENDPOINT"`

	// UsePathStyle forces path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style" env:"USE_PATH_STYLE"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		NumRecords: 100000,
		OutputPath: "ab_test_data.csv",
		Seeds: SeedConfig{
			General:      42,
			Distribution: 42,
		},
		Workers: 1,
		Partition: PartitionConfig{
			Enabled:     false,
			Strategy:    StrategyDay,
			Concurrency: 4,
		},
		Publish: PublishConfig{
			Enabled: false,
			Prefix:  "abgen",
		},
		Storage: StorageConfig{
			Type: StorageLocal,
		},
	}
}

// Resolve derives unset directories from the output path.
func (c *Config) Resolve() {
	if c.OutputPath == "" {
		c.OutputPath = "ab_test_data.csv"
	}

	base := filepath.Dir(c.OutputPath)
	stem := strings.TrimSuffix(filepath.Base(c.OutputPath), filepath.Ext(c.OutputPath))

	if c.Partition.Dir == "" {
		c.Partition.Dir = filepath.Join(base, stem+"_partitions")
	}

	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(base, "storage")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.NumRecords <= 0 {
		return fmt.Errorf("num_records must be a positive integer, got %d", c.NumRecords)
	}

	if c.OutputPath == "" {
		return fmt.Errorf("output_path is required")
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	switch c.Partition.Strategy {
	case StrategyDay, StrategyGroup, StrategyNone:
		// Valid strategies
	default:
		return fmt.Errorf("invalid partition strategy: %s (must be day, group, or none)", c.Partition.Strategy)
	}

	if c.Partition.Enabled && c.Partition.Concurrency < 1 {
		return fmt.Errorf("partition.concurrency must be at least 1, got %d", c.Partition.Concurrency)
	}

	if c.Storage.Type != StorageLocal && c.Storage.Type != StorageS3 {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == StorageS3 && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overlays environment variables onto cfg.
// Environment variables use the ABGEN_ prefix, e.g. ABGEN_NUM_RECORDS or
// ABGEN_STORAGE_S3_BUCKET. Unset variables leave cfg untouched.
func LoadFromEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// LoadDotEnv exports the variables of a dotenv file into the process
// environment. Variables already set are kept. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.OutputPath),
	}
	if c.Partition.Enabled {
		dirs = append(dirs, c.Partition.Dir)
	}
	if c.Publish.Enabled && c.Storage.Type == StorageLocal {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
