package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"faultcore/internal/config"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		cfg  config.BlobConfig
		want Driver
	}{
		{name: "default filesystem", cfg: config.BlobConfig{FSRoot: filepath.Join(t.TempDir(), "archive")}, want: DriverFilesystem},
		{name: "memory", cfg: config.BlobConfig{Driver: config.BlobMemory}, want: DriverMemory},
		{name: "s3", cfg: config.BlobConfig{Driver: config.BlobS3, S3: config.S3Config{
			Bucket:          "runs",
			Region:          "eu-west-1",
			Endpoint:        "http://127.0.0.1:9000",
			PathStyle:       true,
			AccessKeyID:     "AKIA",
			SecretAccessKey: "SECRET",
		}}, want: DriverS3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := Open(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if store.Driver() != tc.want {
				t.Fatalf("expected driver %s, got %s", tc.want, store.Driver())
			}
		})
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, config.BlobConfig{Driver: "gcs"}); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(ctx, config.BlobConfig{Driver: config.BlobS3}); err == nil {
		t.Fatal("expected missing bucket error")
	}
}

func TestOpenedStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, config.BlobConfig{Driver: config.BlobFilesystem, FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.Put(ctx, "runs/r1/input.json", bytes.NewBufferString(`{"a":1}`), PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "runs/r1/input.json", bytes.NewBufferString("x"), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	info, rc, err := store.Get(ctx, "runs/r1/input.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != `{"a":1}` || info.ContentType != "application/json" {
		t.Fatalf("unexpected blob %+v %q", info, body)
	}
	if _, err := store.Head(ctx, "runs/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
