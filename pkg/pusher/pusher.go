// Package pusher implements the destination-push framework spec.md §4.6
// requires: one Pusher interface with HTTP, S3, RTMP, Icecast, and SRT
// implementations, a shared retry policy, and a multi-destination
// fan-out with configurable failover. The retry policy is grounded on
// the cenkalti/backoff/v4 usage the pack's livepeer-catalyst-api
// transcode pipeline relies on (backoff.Retry wrapping an upload
// call); the RTMP implementation wraps the teacher's own
// pkg/pusher/rtmp.Client.
package pusher

import (
	"context"
	"sync"
	"time"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

// Pusher delivers playlists, media segments, and LL-HLS partials to one
// destination. Connect/Disconnect bracket a session (an RTMP handshake,
// an Icecast SOURCE request); HTTPPusher and S3Pusher treat them as
// no-ops since each push is a self-contained request.
type Pusher interface {
	Connect(ctx context.Context) error
	Disconnect() error
	PushSegment(ctx context.Context, path string, data []byte) error
	PushPlaylist(ctx context.Context, path string, data []byte) error
	PushPartial(ctx context.Context, path string, data []byte) error
	Stats() Stats
	Name() string
}

// PushResult records one destination's outcome from a
// MultiDestinationPusher fan-out push.
type PushResult struct {
	Destination string
	Err         error
	Attempts    int
	Duration    time.Duration
}

// Stats accumulates a destination's delivery history.
type Stats struct {
	SegmentsPushed int64
	PlaylistsPushed int64
	PartialsPushed int64
	BytesPushed    int64
	Failures       int64
	LastError      error
	LastPushAt     time.Time
}

// statsTracker is embedded by each concrete Pusher to record Stats
// under a mutex, since pushes may be invoked from multiple segmenter
// goroutines concurrently.
type statsTracker struct {
	mu sync.Mutex
	s  Stats
}

func (t *statsTracker) recordSuccess(kind string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch kind {
	case "segment":
		t.s.SegmentsPushed++
	case "playlist":
		t.s.PlaylistsPushed++
	case "partial":
		t.s.PartialsPushed++
	}
	t.s.BytesPushed += int64(n)
	t.s.LastPushAt = time.Now()
}

func (t *statsTracker) recordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Failures++
	t.s.LastError = err
}

func (t *statsTracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}

// retryable classifies an error as transient (worth retrying) or
// permanent, mirroring herr's push error codes.
func retryable(err error) bool {
	return herr.IsErrorCode(err, herr.ErrCodePushTransient)
}
