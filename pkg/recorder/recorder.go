// Package recorder implements simultaneous live persistence,
// live-to-VOD conversion, and auto-chapter extraction. SimultaneousRecorder
// generalizes the teacher's pkg/storage.BaseRecorder — built for a
// single MP4/FLV file with manual byte offsets — into an HLS-segment-
// aware recorder that writes each completed segment plus an
// incrementally rewritten EVENT playlist through the storage.RecordingStorage
// trait. It exposes Start, WriteInitSegment, RecordSegment, Stop and
// Segments; it has no Pause, Resume, GetInfo or Close.
package recorder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/atelier-socle/hlskit/pkg/herr"
	"github.com/atelier-socle/hlskit/pkg/manifest"
	"github.com/atelier-socle/hlskit/pkg/m3u8"
	"github.com/atelier-socle/hlskit/pkg/storage"
)

// Lifecycle errors for Start/Stop/RecordSegment, mirroring the
// teacher's BaseRecorder.Start/Stop state checks (pkg/storage/
// recorder.go's ErrRecordingNotStarted/ErrRecordingAlreadyStarted),
// now owned by this package since BaseRecorder itself was superseded
// by SimultaneousRecorder.
var (
	ErrRecordingNotStarted     = errors.New("recorder: not started")
	ErrRecordingAlreadyStarted = errors.New("recorder: already started")
)

// RecordedSegment is one persisted HLS segment, tracked in memory
// alongside the on-disk/on-object-store copy for LiveToVODConverter
// and AutoChapterGenerator to consume.
type RecordedSegment struct {
	Index           int
	Filename        string
	Duration        float64
	Discontinuity   bool
	ProgramDateTime string
	Independent     bool
	Size            int64
	RecordedAt      time.Time
}

// Config configures a SimultaneousRecorder.
type Config struct {
	Directory           string
	PlaylistFilename    string
	InitSegmentFilename string
	TargetDuration      int
	IncrementalPlaylist bool
}

// SimultaneousRecorder persists every live segment through a
// RecordingStorage backend while the live pipeline keeps running,
// mirroring BaseRecorder's callback-driven segment lifecycle
// (onSegmentComplete/onError) but against HLS segments rather than a
// single growing file.
type SimultaneousRecorder struct {
	mu       sync.Mutex
	cfg      Config
	storage  storage.RecordingStorage
	segments []RecordedSegment
	playlist *manifest.MediaPlaylist
	started  bool
	ended    bool

	onSegmentComplete func(RecordedSegment)
	onError           func(error)
}

// New creates a SimultaneousRecorder writing through backend.
func New(cfg Config, backend storage.RecordingStorage) *SimultaneousRecorder {
	p := manifest.NewMediaPlaylist(cfg.TargetDuration)
	p.PlaylistType = manifest.PlaylistTypeEvent
	return &SimultaneousRecorder{cfg: cfg, storage: backend, playlist: p}
}

func (r *SimultaneousRecorder) SetOnSegmentComplete(fn func(RecordedSegment)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSegmentComplete = fn
}

func (r *SimultaneousRecorder) SetOnError(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
}

// Start marks the recorder active. It does not itself open a storage
// session — each write is a self-contained RecordingStorage call.
func (r *SimultaneousRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrRecordingAlreadyStarted
	}
	r.started = true
	return nil
}

// WriteInitSegment persists the fMP4 init segment once, at the start
// of recording.
func (r *SimultaneousRecorder) WriteInitSegment(ctx context.Context, data []byte) error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return ErrRecordingNotStarted
	}
	if r.cfg.InitSegmentFilename == "" {
		return nil
	}
	return r.storage.WriteSegment(ctx, r.cfg.Directory, r.cfg.InitSegmentFilename, data)
}

// RecordSegment persists one completed segment's bytes and appends it
// to the in-memory history and, if IncrementalPlaylist is set,
// rewrites the EVENT playlist in place.
func (r *SimultaneousRecorder) RecordSegment(ctx context.Context, data []byte, seg RecordedSegment) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrRecordingNotStarted
	}
	if r.ended {
		r.mu.Unlock()
		return herr.NewStreamAlreadyEnded()
	}
	r.mu.Unlock()

	if err := r.storage.WriteSegment(ctx, r.cfg.Directory, seg.Filename, data); err != nil {
		r.notifyError(err)
		return err
	}

	r.mu.Lock()
	seg.Index = len(r.segments)
	seg.RecordedAt = time.Now()
	r.segments = append(r.segments, seg)
	r.playlist.AddSegment(manifest.Segment{
		Duration:        seg.Duration,
		URI:             seg.Filename,
		Discontinuity:   seg.Discontinuity,
		ProgramDateTime: seg.ProgramDateTime,
	})
	incremental := r.cfg.IncrementalPlaylist
	r.mu.Unlock()

	if incremental {
		if err := r.rewritePlaylist(ctx); err != nil {
			r.notifyError(err)
			return err
		}
	}

	r.mu.Lock()
	cb := r.onSegmentComplete
	r.mu.Unlock()
	if cb != nil {
		cb(seg)
	}
	return nil
}

func (r *SimultaneousRecorder) rewritePlaylist(ctx context.Context) error {
	r.mu.Lock()
	p := *r.playlist
	r.mu.Unlock()

	text, err := m3u8.Serialize(manifest.NewMediaManifest(p))
	if err != nil {
		return herr.NewStorageError("rewrite_playlist", err)
	}
	filename := r.cfg.PlaylistFilename
	if filename == "" {
		filename = "playlist.m3u8"
	}
	return r.storage.WritePlaylist(ctx, r.cfg.Directory, filename, text)
}

// Stop finalizes the recording: sets EXT-X-ENDLIST and writes the
// final playlist regardless of IncrementalPlaylist.
func (r *SimultaneousRecorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrRecordingNotStarted
	}
	r.ended = true
	r.playlist.EndList = true
	r.mu.Unlock()
	return r.rewritePlaylist(ctx)
}

// Segments returns a copy of the recorded-segment history.
func (r *SimultaneousRecorder) Segments() []RecordedSegment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedSegment, len(r.segments))
	copy(out, r.segments)
	return out
}

func (r *SimultaneousRecorder) notifyError(err error) {
	r.mu.Lock()
	cb := r.onError
	r.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}
