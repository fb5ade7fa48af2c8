package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atelier-socle/hlskit/pkg/herr"
	"github.com/atelier-socle/hlskit/pkg/logger"
)

// LocalStorage implements Storage against the local filesystem. It is the
// default backend for RecordingStorage when no object store is configured:
// keys arrive as HLS-relative paths (stream directory + segment/playlist
// filename) and land unmodified under BasePath.
type LocalStorage struct {
	config StorageConfig
	logger logger.Logger
}

// NewLocalStorage creates a new local storage backend rooted at config.BasePath.
func NewLocalStorage(config StorageConfig, log logger.Logger) (*LocalStorage, error) {
	if config.Type != StorageTypeLocal {
		return nil, herr.New(herr.ErrCodeInvalidConfig, fmt.Sprintf("local storage: invalid storage type %q", config.Type))
	}

	if log == nil {
		log = logger.NewDefaultLogger(logger.InfoLevel, "text")
	}

	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, herr.NewStorageError("mkdir_base_path", err)
	}

	return &LocalStorage{
		config: config,
		logger: log,
	}, nil
}

// Upload writes a segment, playlist, or chapter file under key, retrying
// transient filesystem failures per config.MaxRetries/RetryDelay.
func (s *LocalStorage) Upload(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	filePath := s.getFilePath(key)

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return herr.NewStorageError("mkdir", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying local upload",
				logger.Field{Key: "attempt", Value: attempt},
				logger.Field{Key: "key", Value: key},
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.config.RetryDelay):
			}
		}

		file, err := os.Create(filePath)
		if err != nil {
			lastErr = err
			continue
		}

		written, err := io.Copy(file, data)
		file.Close()

		if err != nil {
			lastErr = err
			os.Remove(filePath)
			continue
		}

		if size > 0 && written != size {
			lastErr = fmt.Errorf("size mismatch: expected %d, wrote %d", size, written)
			os.Remove(filePath)
			continue
		}

		metadata := map[string]string{
			"content-type": contentType,
			"size":         fmt.Sprintf("%d", written),
			"uploaded-at":  time.Now().Format(time.RFC3339),
		}

		if err := s.saveMetadataFile(filePath, metadata); err != nil {
			s.logger.Warn("failed to save sidecar metadata",
				logger.Field{Key: "error", Value: err},
			)
		}

		s.logger.Debug("segment written to local storage",
			logger.Field{Key: "key", Value: key},
			logger.Field{Key: "size", Value: written},
		)

		return nil
	}

	return herr.NewStorageError("upload:"+key, lastErr)
}

// Download opens key for reading.
func (s *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath := s.getFilePath(key)

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, herr.NewFileNotFoundError(key)
		}
		return nil, herr.NewStorageError("download:"+key, err)
	}

	return file, nil
}

// Delete removes key and its sidecar metadata file, if any.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	filePath := s.getFilePath(key)

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return herr.NewFileNotFoundError(key)
		}
		return herr.NewStorageError("delete:"+key, err)
	}

	os.Remove(filePath + ".meta")

	s.logger.Debug("deleted local object", logger.Field{Key: "key", Value: key})
	return nil
}

// Exists reports whether key is present.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	filePath := s.getFilePath(key)

	_, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, herr.NewStorageError("stat:"+key, err)
	}

	return true, nil
}

// List walks BasePath returning every object whose relative key starts
// with prefix, up to maxKeys (0 means unbounded).
func (s *LocalStorage) List(ctx context.Context, prefix string, maxKeys int) ([]StorageObject, error) {
	searchPath := s.getFilePath(prefix)
	baseDir := s.config.BasePath

	objects := make([]StorageObject, 0)
	count := 0

	err := filepath.Walk(baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || strings.HasSuffix(path, ".meta") {
			return nil
		}

		if prefix != "" && !strings.HasPrefix(path, searchPath) {
			return nil
		}

		if maxKeys > 0 && count >= maxKeys {
			return filepath.SkipDir
		}

		relPath, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}

		metadata, _ := s.loadMetadataFile(path)

		objects = append(objects, StorageObject{
			Key:          filepath.ToSlash(relPath),
			Size:         info.Size(),
			LastModified: info.ModTime(),
			ContentType:  metadata["content-type"],
			Metadata:     metadata,
		})

		count++
		return nil
	})

	if err != nil {
		return nil, herr.NewStorageError("list:"+prefix, err)
	}

	return objects, nil
}

// GetMetadata returns the sidecar metadata recorded for key at upload time.
func (s *LocalStorage) GetMetadata(ctx context.Context, key string) (map[string]string, error) {
	filePath := s.getFilePath(key)

	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil, herr.NewFileNotFoundError(key)
		}
		return nil, herr.NewStorageError("stat:"+key, err)
	}

	metadata, err := s.loadMetadataFile(filePath)
	if err != nil {
		return make(map[string]string), nil
	}

	return metadata, nil
}

// SetMetadata overwrites the sidecar metadata for key.
func (s *LocalStorage) SetMetadata(ctx context.Context, key string, metadata map[string]string) error {
	filePath := s.getFilePath(key)

	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return herr.NewFileNotFoundError(key)
		}
		return herr.NewStorageError("stat:"+key, err)
	}

	if err := s.saveMetadataFile(filePath, metadata); err != nil {
		return herr.NewStorageError("set_metadata:"+key, err)
	}
	return nil
}

// Copy duplicates srcKey's bytes and sidecar metadata to dstKey.
func (s *LocalStorage) Copy(ctx context.Context, srcKey, dstKey string) error {
	srcPath := s.getFilePath(srcKey)
	dstPath := s.getFilePath(dstKey)

	src, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return herr.NewFileNotFoundError(srcKey)
		}
		return herr.NewStorageError("copy_open:"+srcKey, err)
	}
	defer src.Close()

	dir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return herr.NewStorageError("mkdir", err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return herr.NewStorageError("copy_create:"+dstKey, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return herr.NewStorageError("copy:"+srcKey, err)
	}

	if metadata, err := s.loadMetadataFile(srcPath); err == nil {
		s.saveMetadataFile(dstPath, metadata)
	}

	s.logger.Debug("copied local object",
		logger.Field{Key: "source", Value: srcKey},
		logger.Field{Key: "destination", Value: dstKey},
	)

	return nil
}

// GetURL returns a file:// URL for key. expires is ignored, local paths
// don't expire.
func (s *LocalStorage) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	filePath := s.getFilePath(key)

	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return "", herr.NewFileNotFoundError(key)
		}
		return "", herr.NewStorageError("stat:"+key, err)
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", herr.NewStorageError("abs_path:"+key, err)
	}

	return "file://" + absPath, nil
}

// Close is a no-op; local storage holds no persistent handle.
func (s *LocalStorage) Close() error {
	return nil
}

// getFilePath resolves key to an absolute path under BasePath, rejecting
// directory traversal out of the recording root.
func (s *LocalStorage) getFilePath(key string) string {
	key = filepath.Clean("/" + key)
	key = strings.TrimPrefix(key, "/")

	return filepath.Join(s.config.BasePath, key)
}

func (s *LocalStorage) saveMetadataFile(filePath string, metadata map[string]string) error {
	metaPath := filePath + ".meta"

	data, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	return os.WriteFile(metaPath, data, 0644)
}

func (s *LocalStorage) loadMetadataFile(filePath string) (map[string]string, error) {
	metaPath := filePath + ".meta"

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var metadata map[string]string
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}

	return metadata, nil
}
