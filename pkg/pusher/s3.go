package pusher

import (
	"bytes"
	"context"

	"github.com/atelier-socle/hlskit/pkg/herr"
	"github.com/atelier-socle/hlskit/pkg/logger"
	"github.com/atelier-socle/hlskit/pkg/storage"
)

// S3Pusher reuses pkg/storage.S3Storage as the upload transport,
// exercising aws-sdk-go-v2/service/s3 for segment/playlist/partial
// push rather than just recording — the same client the teacher's
// recorder uses, pointed at a live-push prefix instead of an archive.
type S3Pusher struct {
	statsTracker
	name   string
	s3     *storage.S3Storage
	prefix string
}

// NewS3Pusher opens an S3Storage backend against cfg and wraps it as a
// Pusher. prefix is joined in front of every path passed to Push*.
func NewS3Pusher(name string, cfg storage.StorageConfig, prefix string, log logger.Logger) (*S3Pusher, error) {
	s3, err := storage.NewS3Storage(cfg, log)
	if err != nil {
		return nil, herr.NewStorageError("new_s3_pusher", err)
	}
	return &S3Pusher{name: name, s3: s3, prefix: prefix}, nil
}

func (p *S3Pusher) Name() string                        { return p.name }
func (p *S3Pusher) Connect(ctx context.Context) error    { return nil }
func (p *S3Pusher) Disconnect() error                    { return p.s3.Close() }
func (p *S3Pusher) Stats() Stats                         { return p.snapshot() }

func (p *S3Pusher) PushSegment(ctx context.Context, path string, data []byte) error {
	return p.upload(ctx, "segment", path, data, "video/mp2t")
}

func (p *S3Pusher) PushPlaylist(ctx context.Context, path string, data []byte) error {
	return p.upload(ctx, "playlist", path, data, "application/vnd.apple.mpegurl")
}

func (p *S3Pusher) PushPartial(ctx context.Context, path string, data []byte) error {
	return p.upload(ctx, "partial", path, data, "video/mp4")
}

func (p *S3Pusher) upload(ctx context.Context, kind, path string, data []byte, contentType string) error {
	key := p.prefix + path
	if err := p.s3.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		err = herr.NewPushTransient(p.name, 1, err)
		p.recordFailure(err)
		return err
	}
	p.recordSuccess(kind, len(data))
	return nil
}
