package pusher

import (
	"context"
	"testing"

	"github.com/atelier-socle/hlskit/pkg/storage"
)

func testS3Config() storage.StorageConfig {
	return storage.StorageConfig{
		Type:            storage.StorageTypeS3,
		Region:          "us-east-1",
		Bucket:          "live-push",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
	}
}

func TestNewS3Pusher_BuildsWithStaticCredentials(t *testing.T) {
	p, err := NewS3Pusher("s3-out", testS3Config(), "live/session-1/", nil)
	if err != nil {
		t.Fatalf("new s3 pusher: %v", err)
	}
	if p.Name() != "s3-out" {
		t.Fatalf("Name() = %q, want s3-out", p.Name())
	}
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect should be a no-op for s3, got %v", err)
	}
	if err := p.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
}

func TestNewS3Pusher_RejectsNonS3StorageType(t *testing.T) {
	cfg := testS3Config()
	cfg.Type = storage.StorageTypeLocal
	if _, err := NewS3Pusher("s3-out", cfg, "live/", nil); err == nil {
		t.Fatal("expected an error constructing an S3Pusher over a non-s3 storage config")
	}
}
