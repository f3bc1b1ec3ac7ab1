// Package config loads faultcore settings from FAULTCORE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Storage drivers accepted by StorageConfig.Driver.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Blob drivers accepted by BlobConfig.Driver.
const (
	BlobFilesystem = "fs"
	BlobMemory     = "memory"
	BlobS3         = "s3"
)

// Config is the root configuration of the faultctl binary and the services it
// wires.
type Config struct {
	Storage StorageConfig
	Blob    BlobConfig
	Log     LogConfig
	// UndoLimit bounds the edit history; zero or negative keeps every command.
	UndoLimit int    `env:"FAULTCORE_UNDO_LIMIT" envDefault:"0"`
	Locale    string `env:"FAULTCORE_LOCALE" envDefault:"en"`
}

// StorageConfig selects the model snapshot backend.
type StorageConfig struct {
	Driver      string `env:"FAULTCORE_STORAGE_DRIVER" envDefault:"memory"`
	SQLitePath  string `env:"FAULTCORE_SQLITE_PATH" envDefault:"faultcore.db"`
	PostgresDSN string `env:"FAULTCORE_POSTGRES_DSN"`
}

// BlobConfig selects the analysis archive backend.
type BlobConfig struct {
	Driver string `env:"FAULTCORE_BLOB_DRIVER" envDefault:"fs"`
	FSRoot string `env:"FAULTCORE_BLOB_FS_ROOT" envDefault:"./blobdata"`
	S3     S3Config
}

// S3Config configures an S3 or MinIO compatible archive.
type S3Config struct {
	Bucket          string `env:"FAULTCORE_BLOB_S3_BUCKET"`
	Region          string `env:"FAULTCORE_BLOB_S3_REGION" envDefault:"us-east-1"`
	Endpoint        string `env:"FAULTCORE_BLOB_S3_ENDPOINT"`
	PathStyle       bool   `env:"FAULTCORE_BLOB_S3_PATH_STYLE"`
	AccessKeyID     string `env:"FAULTCORE_BLOB_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"FAULTCORE_BLOB_S3_SECRET_ACCESS_KEY"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `env:"FAULTCORE_LOG_LEVEL" envDefault:"info"`
	Format string `env:"FAULTCORE_LOG_FORMAT" envDefault:"text"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the full configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			errs = append(errs, errors.New("FAULTCORE_POSTGRES_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case BlobFilesystem, BlobMemory:
	case BlobS3:
		if strings.TrimSpace(c.Blob.S3.Bucket) == "" {
			errs = append(errs, errors.New("FAULTCORE_BLOB_S3_BUCKET is required for the s3 driver"))
		}
		if (c.Blob.S3.AccessKeyID == "") != (c.Blob.S3.SecretAccessKey == "") {
			errs = append(errs, errors.New("s3 access key id and secret must be set together"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
