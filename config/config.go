// Package config loads the configuration of the blockidx command from a file and
// BLOCKIDX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hupe1980/blockidx/codec"
	"github.com/hupe1980/blockidx/internal/compress"
)

// EnvPrefix is the prefix of environment overrides, e.g. BLOCKIDX_STORAGE_BACKEND.
const EnvPrefix = "BLOCKIDX"

// Storage backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendS3     = "s3"
	BackendMinIO  = "minio"
)

// ErrInvalid is returned for configurations that fail validation.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the complete configuration.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Prune    PruneConfig    `mapstructure:"prune"`
	Log      LogConfig      `mapstructure:"log"`
}

// StorageConfig selects and configures the blob store of a table.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	// Path is the table root of the local backend.
	Path      string `mapstructure:"path"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	Secure    bool   `mapstructure:"secure"`
	// CommitTable is the DynamoDB table holding CURRENT for the s3 backend. Empty keeps
	// CURRENT in the bucket.
	CommitTable string `mapstructure:"commitTable"`
}

// SnapshotConfig controls how new snapshots and segments are written.
type SnapshotConfig struct {
	Encoding    string `mapstructure:"encoding"`
	Compression string `mapstructure:"compression"`
}

// PruneConfig bounds the resources used while pruning.
type PruneConfig struct {
	Concurrency        int   `mapstructure:"concurrency"`
	CacheBytes         int64 `mapstructure:"cacheBytes"`
	MaxConcurrentReads int   `mapstructure:"maxConcurrentReads"`
	ReadBytesPerSec    int64 `mapstructure:"readBytesPerSec"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.path", ".")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accessKey", "")
	v.SetDefault("storage.secretKey", "")
	v.SetDefault("storage.secure", true)
	v.SetDefault("storage.commitTable", "")

	v.SetDefault("snapshot.encoding", "cbor")
	v.SetDefault("snapshot.compression", "zstd")

	v.SetDefault("prune.concurrency", 0)
	v.SetDefault("prune.cacheBytes", 64<<20)
	v.SetDefault("prune.maxConcurrentReads", 16)
	v.SetDefault("prune.readBytesPerSec", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration. path may be empty, in which case config.yaml is
// looked up in the working directory and a missing file is not an error. Environment
// variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for the local backend", ErrInvalid)
		}
	case BackendMemory:
	case BackendS3, BackendMinIO:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("%w: storage.bucket is required for the %s backend", ErrInvalid, c.Storage.Backend)
		}
		if c.Storage.Backend == BackendMinIO && c.Storage.Endpoint == "" {
			return fmt.Errorf("%w: storage.endpoint is required for the minio backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalid, c.Storage.Backend)
	}

	if _, err := c.Codec(); err != nil {
		return err
	}
	if _, err := c.Compression(); err != nil {
		return err
	}
	if c.Prune.Concurrency < 0 || c.Prune.CacheBytes < 0 || c.Prune.MaxConcurrentReads < 0 || c.Prune.ReadBytesPerSec < 0 {
		return fmt.Errorf("%w: prune limits must not be negative", ErrInvalid)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// Codec resolves the snapshot encoding.
func (c *Config) Codec() (codec.Codec, error) {
	cd, ok := codec.ByName(c.Snapshot.Encoding)
	if !ok {
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrInvalid, c.Snapshot.Encoding)
	}
	return cd, nil
}

// Compression resolves the snapshot compression.
func (c *Config) Compression() (compress.Type, error) {
	t, err := compress.ParseType(c.Snapshot.Compression)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return t, nil
}
