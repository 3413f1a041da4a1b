package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	s3 "github.com/civictech-tv/reelvault-core/internal/storage/s3"
	"github.com/civictech-tv/reelvault-core/pkg/errors"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// Configuration is the complete, on-disk configuration surface the core
// engine consumes: every field of UploadConfig, WatchConfig and
// S3KeyConfig, plus the optional object-store tuning section (endpoint,
// path style, Transfer Acceleration, pool size). Unknown top-level
// fields are rejected at load time.
type Configuration struct {
	LogLevel string              `yaml:"log_level"`
	Upload   types.UploadConfig  `yaml:"upload"`
	Watch    []types.WatchConfig `yaml:"watch"`
	Key      types.S3KeyConfig   `yaml:"key"`
	Storage  *s3.Config          `yaml:"storage,omitempty"`
}

// NewDefault returns a Premium-tier configuration with sensible defaults.
func NewDefault() *Configuration {
	return &Configuration{
		LogLevel: "INFO",
		Upload: types.UploadConfig{
			MaxConcurrentUploads: 8,
			ChunkSizeMB:          10,
			MaxConcurrentParts:   4,
			AdaptiveChunkSize:    false,
			MinChunkSizeMB:       5,
			MaxChunkSizeMB:       100,
			RetryAttempts:        3,
			TimeoutSeconds:       300,
			EnableResume:         true,
			AutoMetadata:         true,
			KeyPrefix:            types.DefaultLifecyclePrefix,
			Tier:                 types.TierPremium,
		},
		Key: types.S3KeyConfig{
			Prefix:        types.DefaultLifecyclePrefix,
			UseDateFolder: true,
		},
	}
}

// LoadFromFile loads configuration from a YAML file, failing on any field
// the decoder does not recognize.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalidValue, "failed to read config file", err).
			WithComponent("config").WithOperation("LoadFromFile")
	}

	strict := yaml.NewDecoder(bytes.NewReader(data))
	strict.SetStrict(true)
	if err := strict.Decode(c); err != nil {
		return errors.Wrap(errors.ErrCodeConfigUnknownField, "failed to parse config file", err).
			WithComponent("config").WithOperation("LoadFromFile")
	}

	return nil
}

// LoadFromEnv applies REELVAULT_* environment variable overrides on top of
// whatever is already loaded.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("REELVAULT_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("REELVAULT_BUCKET"); val != "" {
		c.Upload.Bucket = val
	}
	if val := os.Getenv("REELVAULT_CREDENTIALS_PROFILE"); val != "" {
		c.Upload.CredentialsProfile = val
	}
	if val := os.Getenv("REELVAULT_TIER"); val != "" {
		c.Upload.Tier = types.UploadTier(strings.ToLower(val))
	}
	if val := os.Getenv("REELVAULT_MAX_CONCURRENT_UPLOADS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Upload.MaxConcurrentUploads = n
		}
	}
	if val := os.Getenv("REELVAULT_CHUNK_SIZE_MB"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Upload.ChunkSizeMB = n
		}
	}
	if val := os.Getenv("REELVAULT_MAX_CONCURRENT_PARTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Upload.MaxConcurrentParts = n
		}
	}
	if val := os.Getenv("REELVAULT_RETRY_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Upload.RetryAttempts = n
		}
	}
	if val := os.Getenv("REELVAULT_ENABLE_RESUME"); val != "" {
		c.Upload.EnableResume = strings.EqualFold(val, "true")
	}
	if val := os.Getenv("REELVAULT_AUTO_METADATA"); val != "" {
		c.Upload.AutoMetadata = strings.EqualFold(val, "true")
	}
	if val := os.Getenv("REELVAULT_KEY_PREFIX"); val != "" {
		c.Upload.KeyPrefix = val
	}
	if val := os.Getenv("REELVAULT_S3_ENDPOINT"); val != "" {
		sc := c.StorageConfig()
		sc.Endpoint = val
		sc.ForcePathStyle = true
		c.Storage = sc
	}
	if val := os.Getenv("REELVAULT_S3_ACCELERATE"); val != "" {
		sc := c.StorageConfig()
		sc.UseAccelerate = strings.EqualFold(val, "true")
		c.Storage = sc
	}

	return nil
}

// StorageConfig returns the object-store tuning section, falling back to
// defaults when the file omits it.
func (c *Configuration) StorageConfig() *s3.Config {
	if c.Storage != nil {
		return c.Storage
	}
	return s3.NewDefaultConfig()
}

// SaveToFile writes the configuration back out as YAML.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalidValue, "failed to marshal config", err).
			WithComponent("config").WithOperation("SaveToFile")
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalidValue, "failed to create config directory", err).
			WithComponent("config").WithOperation("SaveToFile")
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalidValue, "failed to write config file", err).
			WithComponent("config").WithOperation("SaveToFile")
	}

	return nil
}

// Validate checks the Upload tier policy and rejects
// obviously broken watch/key configuration. It never touches the network.
func (c *Configuration) Validate() error {
	if err := ValidateUploadConfig(&c.Upload); err != nil {
		return err
	}
	if c.Upload.Bucket == "" {
		return errors.New(errors.ErrCodeConfigEmptyBucket, "upload.bucket must not be empty").
			WithComponent("config").WithOperation("Validate")
	}
	for i := range c.Watch {
		if c.Watch[i].RootPath == "" {
			return errors.New(errors.ErrCodeConfigInvalidValue, "watch root_path must not be empty").
				WithComponent("config").WithOperation("Validate").
				WithContext("index", strconv.Itoa(i))
		}
	}
	return nil
}

// ValidateUploadConfig enforces the Free/Premium tier policy table.
// Free tier is pinned to strictly serial, 5MB fixed-chunk,
// non-adaptive, non-resumable uploads; Premium relaxes every bound except
// the shared minimum retry count.
func ValidateUploadConfig(cfg *types.UploadConfig) error {
	switch cfg.Tier {
	case types.TierFree:
		return validateFreeTier(cfg)
	case types.TierPremium:
		return validatePremiumTier(cfg)
	default:
		return errors.New(errors.ErrCodeConfigInvalidTier,
			fmt.Sprintf("unknown tier %q: must be %q or %q", cfg.Tier, types.TierFree, types.TierPremium)).
			WithComponent("config").WithOperation("ValidateUploadConfig")
	}
}

func validateFreeTier(cfg *types.UploadConfig) error {
	violation := func(field string) error {
		return errors.New(errors.ErrCodeConfigTierViolation,
			fmt.Sprintf("free tier violation: %s", field)).
			WithComponent("config").WithOperation("ValidateUploadConfig").
			WithContext("field", field)
	}

	if cfg.MaxConcurrentUploads != 1 {
		return violation("max_concurrent_uploads must be exactly 1 on the free tier")
	}
	if cfg.MaxConcurrentParts != 1 {
		return violation("max_concurrent_parts must be exactly 1 on the free tier")
	}
	if cfg.AdaptiveChunkSize {
		return violation("adaptive_chunk_size is not allowed on the free tier")
	}
	if cfg.ChunkSizeMB != 5 {
		return violation("chunk size must be exactly 5 MB on the free tier")
	}
	if cfg.EnableResume {
		return violation("enable_resume is not allowed on the free tier")
	}
	if cfg.RetryAttempts < 3 {
		return violation("retry_attempts must be at least 3")
	}
	return nil
}

func validatePremiumTier(cfg *types.UploadConfig) error {
	violation := func(field string) error {
		return errors.New(errors.ErrCodeConfigTierViolation,
			fmt.Sprintf("premium tier violation: %s", field)).
			WithComponent("config").WithOperation("ValidateUploadConfig").
			WithContext("field", field)
	}

	if cfg.MaxConcurrentUploads < 1 {
		return violation("max_concurrent_uploads must be at least 1")
	}
	if cfg.MaxConcurrentParts < 1 {
		return violation("max_concurrent_parts must be at least 1")
	}
	if cfg.ChunkSizeMB < 5 {
		return violation("base chunk size must be at least 5 MB")
	}
	if cfg.AdaptiveChunkSize && cfg.MaxChunkSizeMB > 100 {
		return violation("adaptive max chunk size must not exceed 100 MB")
	}
	if cfg.RetryAttempts < 3 {
		return violation("retry_attempts must be at least 3")
	}
	return nil
}
