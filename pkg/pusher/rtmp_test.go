package pusher

import (
	"context"
	"testing"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

func TestRTMPPusher_PushBeforeConnectIsPermanentError(t *testing.T) {
	p := NewRTMPPusher("rtmp-out", "rtmp://127.0.0.1:1935", "live", "stream-key", 0)

	err := p.PushSegment(context.Background(), "seg-0.ts", []byte("data"))
	if err == nil {
		t.Fatal("expected an error pushing before Connect")
	}
	if !herr.IsErrorCode(err, herr.ErrCodePushPermanent) {
		t.Fatalf("want ErrCodePushPermanent, got %v", err)
	}

	stats := p.Stats()
	if stats.Failures != 1 {
		t.Fatalf("Failures = %d, want 1", stats.Failures)
	}
}

func TestRTMPPusher_PushPlaylistIsNoOp(t *testing.T) {
	p := NewRTMPPusher("rtmp-out", "rtmp://127.0.0.1:1935", "live", "stream-key", 0)
	if err := p.PushPlaylist(context.Background(), "playlist.m3u8", []byte("#EXTM3U")); err != nil {
		t.Fatalf("PushPlaylist should be a no-op, got %v", err)
	}
	if p.Stats().SegmentsPushed != 0 || p.Stats().PartialsPushed != 0 || p.Stats().PlaylistsPushed != 0 {
		t.Fatal("PushPlaylist should not record a push")
	}
}

func TestRTMPPusher_DisconnectWithoutConnectIsNoOp(t *testing.T) {
	p := NewRTMPPusher("rtmp-out", "rtmp://127.0.0.1:1935", "live", "stream-key", 0)
	if err := p.Disconnect(); err != nil {
		t.Fatalf("Disconnect without a prior Connect should be a no-op, got %v", err)
	}
}

func TestRTMPPusher_ConnectFailureIsTransient(t *testing.T) {
	// port 0 on loopback refuses immediately, giving a deterministic dial failure.
	p := NewRTMPPusher("rtmp-out", "127.0.0.1:0", "live", "stream-key", 0)
	err := p.Connect(context.Background())
	if err == nil {
		t.Fatal("expected a dial error against a closed port")
	}
	if !herr.IsErrorCode(err, herr.ErrCodePushTransient) {
		t.Fatalf("want ErrCodePushTransient, got %v", err)
	}
}
