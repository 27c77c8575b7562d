// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// CacheConfig sizes the Auto-Purging Image Cache.
type CacheConfig struct {
	MemoryCapacityBytes         int64 `yaml:"memoryCapacityBytes"`
	PreferredUsageAfterPurge    int64 `yaml:"preferredUsageAfterPurgeBytes"`
}

// CoordinatorConfig sizes the Download Coordinator's admission policy.
type CoordinatorConfig struct {
	MaxConcurrent  int    `yaml:"maxConcurrent"`
	Prioritization string `yaml:"prioritization"` // "fifo" or "lifo"
}

// RunnerConfig configures the HTTP RequestRunner.
type RunnerConfig struct {
	TimeoutSeconds  int `yaml:"timeoutSeconds"`
	RetryAttempts   int `yaml:"retryAttempts"`
	RetryBackoffMS  int `yaml:"retryBackoffMs"`
}

// S3Config, GCSConfig and AzureConfig configure the corresponding blob
// storage RequestRunner backends, dispatched by URL scheme.
type S3Config struct {
	Region string `yaml:"region"`
}

type GCSConfig struct {
	CredentialsFile string `yaml:"credentialsFile"`
}

type AzureConfig struct {
	StorageAccount string `yaml:"storageAccount"`
}

// NotifyConfig configures the optional Redis-backed lifecycle event bus.
type NotifyConfig struct {
	RedisEnabled bool   `yaml:"redisEnabled"`
	RedisAddr    string `yaml:"redisAddr"`
	RedisDB      int    `yaml:"redisDb"`
	Channel      string `yaml:"channel"`
}

// Config is the top-level engine configuration.
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Cache               CacheConfig       `yaml:"cache"`
	Coordinator         CoordinatorConfig `yaml:"coordinator"`
	Runner              RunnerConfig      `yaml:"runner"`
	S3                  S3Config          `yaml:"s3"`
	GCS                 GCSConfig         `yaml:"gcs"`
	Azure               AzureConfig       `yaml:"azure"`
	Notify              NotifyConfig      `yaml:"notify"`
	AcceptableContentTypes []string       `yaml:"acceptableContentTypes"`
	EngineVersion       string            `yaml:"-"`
}

// Secrets holds credential material kept out of the YAML file entirely.
type Secrets struct {
	AWSAccessKeyID         string
	AWSSecretAccessKey     string
	GCPCredentialsFile     string
	AzureStorageAccountKey string
	RedisPassword          string
	RequestCredentialValue string
}

// Default returns a Config populated with the documented defaults for
// every recognized option (§6): maxConcurrent 4, FIFO, 60s runner timeout.
func Default() *Config {
	c := &Config{}
	c.Server.Port = 8080
	c.Logging.Level = "info"
	c.Logging.Format = "text"
	c.Cache.MemoryCapacityBytes = 100 * 1024 * 1024
	c.Cache.PreferredUsageAfterPurge = 60 * 1024 * 1024
	c.Coordinator.MaxConcurrent = 4
	c.Coordinator.Prioritization = "fifo"
	c.Runner.TimeoutSeconds = 60
	c.Runner.RetryAttempts = 3
	c.Runner.RetryBackoffMS = 500
	c.Notify.Channel = "imagefetch:events"
	return c
}

// LoadConfig reads a YAML config file over the defaults, then applies
// environment variable overrides.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	loadConfigFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate enforces the invariants LoadConfig can't catch structurally:
// the cache's eviction hysteresis ordering and a minimum concurrency of 1.
func (c *Config) Validate() error {
	if c.Cache.MemoryCapacityBytes < c.Cache.PreferredUsageAfterPurge {
		return fmt.Errorf("cache.memoryCapacityBytes (%d) must be >= cache.preferredUsageAfterPurgeBytes (%d)",
			c.Cache.MemoryCapacityBytes, c.Cache.PreferredUsageAfterPurge)
	}
	if c.Cache.PreferredUsageAfterPurge < 0 {
		return fmt.Errorf("cache.preferredUsageAfterPurgeBytes must be >= 0")
	}
	if c.Coordinator.MaxConcurrent < 1 {
		return fmt.Errorf("coordinator.maxConcurrent must be >= 1")
	}
	switch strings.ToLower(c.Coordinator.Prioritization) {
	case "fifo", "lifo":
	default:
		return fmt.Errorf("coordinator.prioritization must be \"fifo\" or \"lifo\", got %q", c.Coordinator.Prioritization)
	}
	return nil
}

// loadConfigFromEnv applies IMAGEFETCH_-prefixed environment overrides on
// top of whatever the YAML file supplied.
func loadConfigFromEnv(config *Config) {
	if portStr := os.Getenv("IMAGEFETCH_SERVER_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			config.Server.Port = port
		}
	}

	if logLevel := os.Getenv("IMAGEFETCH_LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("IMAGEFETCH_LOG_FORMAT"); logFormat != "" {
		config.Logging.Format = logFormat
	}

	if capBytes := os.Getenv("IMAGEFETCH_CACHE_CAPACITY_BYTES"); capBytes != "" {
		if v, err := strconv.ParseInt(capBytes, 10, 64); err == nil {
			config.Cache.MemoryCapacityBytes = v
		}
	}
	if floorBytes := os.Getenv("IMAGEFETCH_CACHE_PREFERRED_BYTES"); floorBytes != "" {
		if v, err := strconv.ParseInt(floorBytes, 10, 64); err == nil {
			config.Cache.PreferredUsageAfterPurge = v
		}
	}

	if maxConcurrent := os.Getenv("IMAGEFETCH_MAX_CONCURRENT"); maxConcurrent != "" {
		if v, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Coordinator.MaxConcurrent = v
		}
	}
	if prioritization := os.Getenv("IMAGEFETCH_PRIORITIZATION"); prioritization != "" {
		config.Coordinator.Prioritization = prioritization
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		config.S3.Region = region
	}
	if credsFile := os.Getenv("GCP_CREDENTIALS_FILE"); credsFile != "" {
		config.GCS.CredentialsFile = credsFile
	}
	if account := os.Getenv("AZURE_STORAGE_ACCOUNT"); account != "" {
		config.Azure.StorageAccount = account
	}

	if redisAddr := os.Getenv("IMAGEFETCH_REDIS_ADDR"); redisAddr != "" {
		config.Notify.RedisAddr = redisAddr
		config.Notify.RedisEnabled = true
	}

	if types := os.Getenv("IMAGEFETCH_ACCEPTABLE_CONTENT_TYPES"); types != "" {
		config.AcceptableContentTypes = strings.Split(types, ",")
	}
}

// LoadSecrets reads credential material from the environment, kept
// separate from the YAML config file on principle: secrets never belong
// in a checked-in config document.
func LoadSecrets() *Secrets {
	return &Secrets{
		AWSAccessKeyID:         os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:     os.Getenv("AWS_SECRET_ACCESS_KEY"),
		GCPCredentialsFile:     os.Getenv("GCP_CREDENTIALS_FILE"),
		AzureStorageAccountKey: os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"),
		RedisPassword:          os.Getenv("IMAGEFETCH_REDIS_PASSWORD"),
		RequestCredentialValue: os.Getenv("IMAGEFETCH_REQUEST_CREDENTIAL"),
	}
}
