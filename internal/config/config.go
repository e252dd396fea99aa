// Package config loads configuration from an optional YAML file and
// environment variables. Environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pqaidevteam/pqai-db/internal/logging"
	"github.com/pqaidevteam/pqai-db/internal/storage"
	"github.com/pqaidevteam/pqai-db/internal/storage/mongo"
)

// Config holds the server configuration.
type Config struct {
	// Server
	ListenAddr    string `yaml:"listen_addr"`
	MetricsAddr   string `yaml:"metrics_addr"`
	MaxUploadSize int64  `yaml:"max_upload_size"`

	Log logging.Config `yaml:"log"`

	// Shared clients, used by every dataset that selects them.
	S3          S3Config         `yaml:"s3"`
	Mongo       mongo.DialConfig `yaml:"mongo"`
	DatabaseURL string           `yaml:"database_url"`

	Patents      Dataset `yaml:"patents"`
	Drawings     Dataset `yaml:"drawings"`
	Bibliography Dataset `yaml:"bibliography"`
}

// S3Config holds object store connection settings.
type S3Config struct {
	Endpoint  string        `yaml:"endpoint"`
	Region    string        `yaml:"region"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Dataset describes where one kind of content is stored.
// An empty Storage disables the dataset.
type Dataset struct {
	Name    string       `yaml:"-"`
	Storage string       `yaml:"storage"`
	Root    string       `yaml:"root"`
	Bucket  string       `yaml:"bucket"`
	Table   string       `yaml:"table"`
	Mongo   mongo.Config `yaml:"mongo"`
}

// Enabled reports whether the dataset has a storage source.
func (d Dataset) Enabled() bool {
	return d.Storage != ""
}

func defaults() *Config {
	return &Config{
		ListenAddr:    ":8000",
		MetricsAddr:   ":9090",
		MaxUploadSize: 50 * 1024 * 1024,
		Log:           logging.Config{Level: "info", Format: "json"},
		S3:            S3Config{Region: "us-east-1", Timeout: 30 * time.Second},
		Mongo:         mongo.DialConfig{Port: 27017, Timeout: 10 * time.Second},
		Patents: Dataset{
			Mongo: mongo.Config{KeyPrefix: "patents/", KeySuffix: ".json"},
		},
		Drawings: Dataset{
			Mongo: mongo.Config{KeyPrefix: "images/", KeySuffix: ".tif"},
		},
		Bibliography: Dataset{
			Mongo: mongo.Config{KeyPrefix: "bibliography/", KeySuffix: ".json"},
		},
	}
}

// Load reads CONFIG_FILE (when set) and then the environment.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	listen := c.ListenAddr
	if port := os.Getenv("PORT"); port != "" {
		listen = ":" + port
	}
	c.ListenAddr = envOr("LISTEN_ADDR", listen)
	c.MetricsAddr = envOr("METRICS_ADDR", c.MetricsAddr)
	c.MaxUploadSize = envInt64("MAX_UPLOAD_SIZE", c.MaxUploadSize)
	c.Log.Level = envOr("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("LOG_FORMAT", c.Log.Format)

	c.S3.Endpoint = envOr("S3_ENDPOINT", c.S3.Endpoint)
	c.S3.Region = envOr("AWS_REGION", c.S3.Region)
	c.S3.AccessKey = envOr("AWS_ACCESS_KEY_ID", c.S3.AccessKey)
	c.S3.SecretKey = envOr("AWS_SECRET_ACCESS_KEY", c.S3.SecretKey)
	c.S3.Timeout = envDuration("S3_TIMEOUT", c.S3.Timeout)

	c.Mongo.URI = envOr("MONGO_URI", envOr("MONGO_URL", c.Mongo.URI))
	c.Mongo.Host = envOr("MONGO_HOST", c.Mongo.Host)
	c.Mongo.Port = envInt("MONGO_PORT", c.Mongo.Port)
	c.Mongo.Username = envOr("MONGO_USER", envOr("MONGO_USERNAME", c.Mongo.Username))
	c.Mongo.Password = envOr("MONGO_PASS", envOr("MONGO_PASSWORD", c.Mongo.Password))
	c.Mongo.Timeout = envDuration("MONGO_TIMEOUT", c.Mongo.Timeout)

	c.DatabaseURL = envOr("DATABASE_URL", c.DatabaseURL)

	defaultStorage := envOr("STORAGE", "local")
	root := os.Getenv("LOCAL_STORAGE_ROOT")

	c.Patents.Name = "patents"
	c.Patents.apply("PATENTS", defaultStorage, root, os.Getenv("AWS_S3_BUCKET_NAME"))
	c.Drawings.Name = "drawings"
	c.Drawings.apply("DRAWINGS", defaultStorage, root, os.Getenv("S3_BUCKET_DRAWINGS"))
	c.Bibliography.Name = "bibliography"
	c.Bibliography.apply("BIBLIOGRAPHY", "", root, "")
}

// apply overlays <PREFIX>_* variables. Shared fallbacks only fill fields that
// neither the file nor a dataset variable set.
func (d *Dataset) apply(prefix, defaultStorage, root, bucket string) {
	d.Storage = envOr(prefix+"_STORAGE", firstNonEmpty(d.Storage, defaultStorage))
	d.Root = envOr(prefix+"_ROOT", firstNonEmpty(d.Root, root))
	d.Bucket = envOr(prefix+"_BUCKET", firstNonEmpty(d.Bucket, bucket))
	d.Table = envOr(prefix+"_TABLE", d.Table)

	d.Mongo.Database = envOr(prefix+"_MONGO_DB", firstNonEmpty(d.Mongo.Database, os.Getenv("MONGO_DB")))
	d.Mongo.Collection = envOr(prefix+"_MONGO_COLL", firstNonEmpty(d.Mongo.Collection, os.Getenv("MONGO_COLL")))
	d.Mongo.Field = envOr(prefix+"_MONGO_FIELD", firstNonEmpty(d.Mongo.Field, mongo.DefaultField))
	d.Mongo.KeyPrefix = envOr(prefix+"_KEY_PREFIX", d.Mongo.KeyPrefix)
	d.Mongo.KeySuffix = envOr(prefix+"_KEY_SUFFIX", d.Mongo.KeySuffix)
}

// Datasets returns every dataset, enabled or not.
func (c *Config) Datasets() []*Dataset {
	return []*Dataset{&c.Patents, &c.Drawings, &c.Bibliography}
}

// Validate checks that each enabled dataset names a known storage source and
// has the settings that source needs.
func (c *Config) Validate() error {
	if !c.Patents.Enabled() {
		return errors.New("patents dataset has no storage source")
	}
	if !c.Drawings.Enabled() {
		return errors.New("drawings dataset has no storage source")
	}

	var errs []error
	for _, d := range c.Datasets() {
		if !d.Enabled() {
			continue
		}
		if err := c.validateDataset(d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateDataset(d *Dataset) error {
	source, err := storage.ParseSource(d.Storage)
	if err != nil {
		return err
	}
	switch source {
	case storage.SourceFilesystem:
		if d.Root == "" {
			return errors.New("filesystem storage requires a root directory")
		}
	case storage.SourceObjectStore:
		if d.Bucket == "" {
			return errors.New("object storage requires a bucket")
		}
	case storage.SourceDocumentStore:
		if c.Mongo.URI == "" && c.Mongo.Host == "" {
			return errors.New("document storage requires MONGO_URI or MONGO_HOST")
		}
		if d.Mongo.Database == "" || d.Mongo.Collection == "" {
			return errors.New("document storage requires a database and collection")
		}
	case storage.SourceSQL:
		if c.DatabaseURL == "" {
			return errors.New("sql storage requires DATABASE_URL")
		}
	}
	return nil
}

// Uses reports whether any enabled dataset selects source.
func (c *Config) Uses(source storage.Source) bool {
	for _, d := range c.Datasets() {
		if !d.Enabled() {
			continue
		}
		if s, err := storage.ParseSource(d.Storage); err == nil && s == source {
			return true
		}
	}
	return false
}

// Dataset returns the dataset called name.
func (c *Config) Dataset(name string) (*Dataset, error) {
	for _, d := range c.Datasets() {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("unknown dataset %q (want patents, drawings or bibliography)", name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

// envDuration accepts Go durations ("30s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
