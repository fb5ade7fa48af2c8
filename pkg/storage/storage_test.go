package storage

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/atelier-socle/hlskit/pkg/herr"
	"github.com/atelier-socle/hlskit/pkg/logger"
)

func TestDefaultStorageConfig(t *testing.T) {
	config := DefaultStorageConfig()

	if config.Type != StorageTypeLocal {
		t.Errorf("Expected storage type %s, got %s", StorageTypeLocal, config.Type)
	}

	if config.BasePath != "./recordings" {
		t.Errorf("Expected base path ./recordings, got %s", config.BasePath)
	}

	if config.MaxRetries != 3 {
		t.Errorf("Expected max retries 3, got %d", config.MaxRetries)
	}

	if config.RetryDelay != 2*time.Second {
		t.Errorf("Expected retry delay 2s, got %v", config.RetryDelay)
	}

	if config.Timeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", config.Timeout)
	}

	if config.UseSSL != true {
		t.Error("Expected UseSSL to be true")
	}
}

func TestStorageTypes(t *testing.T) {
	if StorageTypeLocal != "local" {
		t.Errorf("Expected StorageTypeLocal to be 'local', got %s", StorageTypeLocal)
	}

	if StorageTypeS3 != "s3" {
		t.Errorf("Expected StorageTypeS3 to be 's3', got %s", StorageTypeS3)
	}
}

func newTestLocalStorage(t *testing.T) *LocalStorage {
	t.Helper()
	config := DefaultStorageConfig()
	config.BasePath = t.TempDir()

	log := logger.NewDefaultLogger(logger.InfoLevel, "text")
	s, err := NewLocalStorage(config, log)
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	return s
}

func TestNewLocalStorage_RejectsNonLocalType(t *testing.T) {
	config := DefaultStorageConfig()
	config.Type = StorageTypeS3

	log := logger.NewDefaultLogger(logger.InfoLevel, "text")
	if _, err := NewLocalStorage(config, log); err == nil {
		t.Fatal("expected an error constructing a LocalStorage over an s3 config")
	}
}

func TestLocalStorage_UploadDownloadRoundTrip(t *testing.T) {
	s := newTestLocalStorage(t)
	defer s.Close()

	ctx := context.Background()
	payload := []byte("#EXTM3U\n#EXT-X-VERSION:7\n")

	if err := s.Upload(ctx, "live/session-1/index.m3u8", bytes.NewReader(payload), int64(len(payload)), "application/vnd.apple.mpegurl"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	rc, err := s.Download(ctx, "live/session-1/index.m3u8")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer rc.Close()

	got := make([]byte, len(payload))
	if _, err := rc.Read(got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("downloaded bytes = %q, want %q", got, payload)
	}
}

func TestLocalStorage_DownloadMissingKeyReturnsFileNotFound(t *testing.T) {
	s := newTestLocalStorage(t)
	defer s.Close()

	_, err := s.Download(context.Background(), "live/session-1/seg-0.m4s")
	if err == nil {
		t.Fatal("expected an error downloading a missing key")
	}
	if herr.GetErrorCode(err) != herr.ErrCodeFileNotFound {
		t.Fatalf("error code = %v, want ErrCodeFileNotFound", herr.GetErrorCode(err))
	}
}

func TestLocalStorage_DeleteMissingKeyReturnsFileNotFound(t *testing.T) {
	s := newTestLocalStorage(t)
	defer s.Close()

	err := s.Delete(context.Background(), "live/session-1/seg-0.m4s")
	if err == nil || herr.GetErrorCode(err) != herr.ErrCodeFileNotFound {
		t.Fatalf("Delete error = %v, want ErrCodeFileNotFound", err)
	}
}

func TestLocalStorage_ExistsAndList(t *testing.T) {
	s := newTestLocalStorage(t)
	defer s.Close()

	ctx := context.Background()
	data := []byte("binary-segment-data")
	if err := s.Upload(ctx, "live/session-1/seg-0.m4s", bytes.NewReader(data), int64(len(data)), "video/mp4"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	exists, err := s.Exists(ctx, "live/session-1/seg-0.m4s")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatal("expected uploaded key to exist")
	}

	exists, err = s.Exists(ctx, "live/session-1/seg-missing.m4s")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("expected missing key to not exist")
	}

	objs, err := s.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objs) != 1 || objs[0].ContentType != "video/mp4" {
		t.Fatalf("List() = %+v, want one video/mp4 object", objs)
	}
}

func TestLocalStorage_CopyPreservesMetadata(t *testing.T) {
	s := newTestLocalStorage(t)
	defer s.Close()

	ctx := context.Background()
	data := []byte("segment")
	if err := s.Upload(ctx, "live/src.m4s", bytes.NewReader(data), int64(len(data)), "video/mp4"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	if err := s.Copy(ctx, "live/src.m4s", "vod/dst.m4s"); err != nil {
		t.Fatalf("copy: %v", err)
	}

	meta, err := s.GetMetadata(ctx, "vod/dst.m4s")
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if meta["content-type"] != "video/mp4" {
		t.Fatalf("copied metadata = %+v, want content-type video/mp4", meta)
	}
}

func TestLocalStorage_GetURLReturnsFileScheme(t *testing.T) {
	s := newTestLocalStorage(t)
	defer s.Close()

	ctx := context.Background()
	data := []byte("segment")
	if err := s.Upload(ctx, "live/seg.m4s", bytes.NewReader(data), int64(len(data)), "video/mp4"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	url, err := s.GetURL(ctx, "live/seg.m4s", time.Minute)
	if err != nil {
		t.Fatalf("get url: %v", err)
	}
	if url[:7] != "file://" {
		t.Fatalf("GetURL() = %q, want file:// scheme", url)
	}
}

func TestLocalStorage_GetFilePathRejectsTraversal(t *testing.T) {
	s := newTestLocalStorage(t)
	defer s.Close()

	p := s.getFilePath("../../etc/passwd")
	if len(p) < len(s.config.BasePath) || p[:len(s.config.BasePath)] != s.config.BasePath {
		t.Fatalf("getFilePath escaped BasePath: %q", p)
	}
}
