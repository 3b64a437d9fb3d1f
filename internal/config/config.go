// Package config loads modelkit settings from a TOML file and MODELKIT_*
// environment variables. Priority: environment > file > defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"modelkit/internal/blob"
)

// StorageDriver identifies a concrete persistence backend.
type StorageDriver string

const (
	StorageMemory      StorageDriver = "memory"      // in-memory only (tests / ephemeral)
	StorageSQLite      StorageDriver = "sqlite"      // embedded sqlite file
	StoragePostgres    StorageDriver = "postgres"    // PostgreSQL server
	StorageObjectStore StorageDriver = "objectstore" // JSON objects in a blob store
)

// StorageDrivers lists every supported backend.
func StorageDrivers() []StorageDriver {
	return []StorageDriver{StorageMemory, StorageSQLite, StoragePostgres, StorageObjectStore}
}

// DefaultPath is the config file read when none is given and it exists.
const DefaultPath = "modelkit.toml"

// Config holds all modelkit settings.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Blob    BlobConfig    `toml:"blob"`
	Service ServiceConfig `toml:"service"`
	Logging LoggingConfig `toml:"logging"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver     StorageDriver `toml:"driver"`
	SQLitePath string        `toml:"sqlite_path"`
	// PostgresDSN is the connection string used when Driver is postgres.
	PostgresDSN string `toml:"postgres_dsn"`
	// ObjectPrefix is the key prefix for the objectstore backend.
	ObjectPrefix string `toml:"object_prefix"`
}

// BlobConfig configures the blob store used by the objectstore backend.
type BlobConfig struct {
	Driver blob.Driver   `toml:"driver"`
	Root   string        `toml:"root"`
	S3     blob.S3Config `toml:"s3"`
}

// ServiceConfig tunes the model service worker.
type ServiceConfig struct {
	QueueSize int `toml:"queue_size"`
	// SlowOperation logs transactions and queries running longer than this.
	SlowOperation Duration `toml:"slow_operation"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
	Format string `toml:"format"` // "text" or "json"
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Default returns a Config with all default values.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Driver:       StorageSQLite,
			SQLitePath:   "modelkit.db",
			ObjectPrefix: "modelkit/state",
		},
		Blob: BlobConfig{
			Driver: blob.DriverFilesystem,
			Root:   "./blobdata",
		},
		Service: ServiceConfig{
			QueueSize:     64,
			SlowOperation: Duration(time.Second),
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (optional; DefaultPath when empty and present), then
// applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults without consulting the
// environment.
func Parse(text string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(text, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// applyEnv applies MODELKIT_* overrides.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	var driver, blobDriver string
	str("MODELKIT_STORAGE_DRIVER", &driver)
	if driver != "" {
		c.Storage.Driver = StorageDriver(driver)
	}
	str("MODELKIT_SQLITE_PATH", &c.Storage.SQLitePath)
	str("MODELKIT_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("MODELKIT_OBJECT_PREFIX", &c.Storage.ObjectPrefix)
	str("MODELKIT_BLOB_DRIVER", &blobDriver)
	if blobDriver != "" {
		c.Blob.Driver = blob.Driver(blobDriver)
	}
	str("MODELKIT_BLOB_ROOT", &c.Blob.Root)
	str("MODELKIT_BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	str("MODELKIT_BLOB_S3_REGION", &c.Blob.S3.Region)
	str("MODELKIT_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	str("MODELKIT_BLOB_S3_ACCESS_KEY_ID", &c.Blob.S3.AccessKeyID)
	str("MODELKIT_BLOB_S3_SECRET_ACCESS_KEY", &c.Blob.S3.SecretAccessKey)
	if v, ok := lookup("MODELKIT_BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MODELKIT_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	str("MODELKIT_LOG_LEVEL", &c.Logging.Level)
	str("MODELKIT_LOG_FORMAT", &c.Logging.Format)
	if v, ok := lookup("MODELKIT_QUEUE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MODELKIT_QUEUE_SIZE: %w", err)
		}
		c.Service.QueueSize = n
	}
	if v, ok := lookup("MODELKIT_SLOW_OPERATION"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MODELKIT_SLOW_OPERATION: %w", err)
		}
		c.Service.SlowOperation = Duration(d)
	}
	return nil
}

// Validate rejects unknown drivers and out-of-range values.
func (c Config) Validate() error {
	known := false
	for _, d := range StorageDrivers() {
		if c.Storage.Driver == d {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory, blob.DriverS3:
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Storage.Driver == StorageObjectStore && c.Blob.Driver == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob s3 bucket required for objectstore storage")
	}
	if c.Service.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative, got %d", c.Service.QueueSize)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// BlobSettings converts the blob section for blob.Open.
func (c Config) BlobSettings() blob.Settings {
	return blob.Settings{Driver: c.Blob.Driver, Root: c.Blob.Root, S3: c.Blob.S3}
}

// NewLogger builds the slog logger described by the logging section.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
