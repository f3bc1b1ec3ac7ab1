package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Fatalf("expected memory storage by default, got %q", cfg.Storage.Driver)
	}
	if cfg.Storage.SQLitePath != "faultcore.db" {
		t.Fatalf("unexpected sqlite path %q", cfg.Storage.SQLitePath)
	}
	if cfg.Blob.Driver != BlobFilesystem || cfg.Blob.FSRoot != "./blobdata" {
		t.Fatalf("unexpected blob defaults %+v", cfg.Blob)
	}
	if cfg.Blob.S3.Region != "us-east-1" {
		t.Fatalf("unexpected s3 region %q", cfg.Blob.S3.Region)
	}
	if cfg.UndoLimit != 0 || cfg.Locale != "en" {
		t.Fatalf("unexpected root defaults %+v", cfg)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults %+v", cfg.Log)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FAULTCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("FAULTCORE_SQLITE_PATH", "/tmp/model.db")
	t.Setenv("FAULTCORE_BLOB_DRIVER", "s3")
	t.Setenv("FAULTCORE_BLOB_S3_BUCKET", "runs")
	t.Setenv("FAULTCORE_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("FAULTCORE_UNDO_LIMIT", "25")
	t.Setenv("FAULTCORE_LOCALE", "zh-CN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.Storage.SQLitePath != "/tmp/model.db" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Blob.S3.Bucket != "runs" || !cfg.Blob.S3.PathStyle {
		t.Fatalf("unexpected s3 config %+v", cfg.Blob.S3)
	}
	if cfg.UndoLimit != 25 || cfg.Locale != "zh-CN" {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("FAULTCORE_UNDO_LIMIT", "many")
	var cfg Config
	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Storage: StorageConfig{Driver: StorageMemory},
		Blob:    BlobConfig{Driver: BlobMemory},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "valid"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Driver = "oracle" }, want: `unknown storage driver "oracle"`},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Driver = StoragePostgres }, want: "FAULTCORE_POSTGRES_DSN"},
		{name: "unknown blob", mutate: func(c *Config) { c.Blob.Driver = "gcs" }, want: `unknown blob driver "gcs"`},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Blob.Driver = BlobS3 }, want: "FAULTCORE_BLOB_S3_BUCKET"},
		{name: "s3 half credentials", mutate: func(c *Config) {
			c.Blob.Driver = BlobS3
			c.Blob.S3.Bucket = "b"
			c.Blob.S3.AccessKeyID = "AKIA"
		}, want: "set together"},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "xml" }, want: `unknown log format "xml"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			err := cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Config{
		Storage: StorageConfig{Driver: "x"},
		Blob:    BlobConfig{Driver: "y"},
		Log:     LogConfig{Format: "text"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "storage") || !strings.Contains(err.Error(), "blob") {
		t.Fatalf("expected both errors, got %v", err)
	}
}
