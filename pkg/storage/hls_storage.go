package storage

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

// RecordingStorage is the abstract write/list/exists trait spec.md
// §6.3 names for the recorder: write_segment, write_playlist,
// write_chapters, list_files, file_exists. It is realized here as a
// thin adapter over the teacher's existing Storage interface (the
// same Upload/Download/List/Exists contract pkg/storage/s3.go and
// local.go already implement), keyed by directory-joined object keys
// rather than introducing a second storage backend.
type RecordingStorage interface {
	WriteSegment(ctx context.Context, directory, filename string, data []byte) error
	WritePlaylist(ctx context.Context, directory, filename string, text string) error
	WriteChapters(ctx context.Context, directory, filename string, data []byte) error
	ListFiles(ctx context.Context, directory string) ([]string, error)
	FileExists(ctx context.Context, directory, filename string) (bool, error)
}

// storageBackedRecordingStorage adapts a Storage backend (LocalStorage
// or S3Storage) to RecordingStorage.
type storageBackedRecordingStorage struct {
	backend Storage
}

// NewRecordingStorage wraps backend (LocalStorage, S3Storage, or any
// other Storage implementation) as a RecordingStorage.
func NewRecordingStorage(backend Storage) RecordingStorage {
	return &storageBackedRecordingStorage{backend: backend}
}

func joinKey(directory, filename string) string {
	return path.Join(strings.TrimSuffix(directory, "/"), filename)
}

func (s *storageBackedRecordingStorage) WriteSegment(ctx context.Context, directory, filename string, data []byte) error {
	contentType := "video/mp2t"
	if strings.HasSuffix(filename, ".m4s") || strings.HasSuffix(filename, ".mp4") {
		contentType = "video/mp4"
	}
	if err := s.backend.Upload(ctx, joinKey(directory, filename), bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return herr.NewStorageError("write_segment", err)
	}
	return nil
}

func (s *storageBackedRecordingStorage) WritePlaylist(ctx context.Context, directory, filename string, text string) error {
	data := []byte(text)
	if err := s.backend.Upload(ctx, joinKey(directory, filename), bytes.NewReader(data), int64(len(data)), "application/vnd.apple.mpegurl"); err != nil {
		return herr.NewStorageError("write_playlist", err)
	}
	return nil
}

func (s *storageBackedRecordingStorage) WriteChapters(ctx context.Context, directory, filename string, data []byte) error {
	contentType := "application/json"
	if strings.HasSuffix(filename, ".vtt") {
		contentType = "text/vtt"
	}
	if err := s.backend.Upload(ctx, joinKey(directory, filename), bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return herr.NewStorageError("write_chapters", err)
	}
	return nil
}

func (s *storageBackedRecordingStorage) ListFiles(ctx context.Context, directory string) ([]string, error) {
	objects, err := s.backend.List(ctx, strings.TrimSuffix(directory, "/")+"/", 0)
	if err != nil {
		return nil, herr.NewStorageError("list_files", err)
	}
	names := make([]string, len(objects))
	for i, obj := range objects {
		names[i] = path.Base(obj.Key)
	}
	return names, nil
}

func (s *storageBackedRecordingStorage) FileExists(ctx context.Context, directory, filename string) (bool, error) {
	ok, err := s.backend.Exists(ctx, joinKey(directory, filename))
	if err != nil {
		return false, herr.NewStorageError("file_exists", err)
	}
	return ok, nil
}
