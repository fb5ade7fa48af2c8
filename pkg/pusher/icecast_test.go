package pusher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

func TestIcecastPusher_SendStreamsBytesToSourceBody(t *testing.T) {
	var mu sync.Mutex
	var received []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "SOURCE" {
			t.Errorf("method = %s, want SOURCE", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
			return
		}
		mu.Lock()
		received = body
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewIcecastPusher("icecast-out", srv.URL+"/mount", "source", "hackme", time.Second)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := p.PushSegment(context.Background(), "seg-0.ts", []byte("ts-payload")); err != nil {
		t.Fatalf("push segment: %v", err)
	}
	if err := p.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := string(received)
		mu.Unlock()
		if got == "ts-payload" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if string(received) != "ts-payload" {
		t.Fatalf("server received %q, want %q", received, "ts-payload")
	}

	stats := p.Stats()
	if stats.SegmentsPushed != 1 {
		t.Fatalf("SegmentsPushed = %d, want 1", stats.SegmentsPushed)
	}
}

func TestIcecastPusher_PushBeforeConnectIsPermanentError(t *testing.T) {
	p := NewIcecastPusher("icecast-out", "http://127.0.0.1:0/mount", "source", "hackme", time.Second)
	err := p.PushSegment(context.Background(), "seg-0.ts", []byte("data"))
	if err == nil {
		t.Fatal("expected an error pushing before Connect")
	}
	if !herr.IsErrorCode(err, herr.ErrCodePushPermanent) {
		t.Fatalf("want ErrCodePushPermanent, got %v", err)
	}
}

func TestIcecastPusher_PushPlaylistIsNoOp(t *testing.T) {
	p := NewIcecastPusher("icecast-out", "http://127.0.0.1:0/mount", "source", "hackme", time.Second)
	if err := p.PushPlaylist(context.Background(), "playlist.m3u8", []byte("#EXTM3U")); err != nil {
		t.Fatalf("PushPlaylist should be a no-op, got %v", err)
	}
}

func TestIcecastPusher_DisconnectWithoutConnectIsNoOp(t *testing.T) {
	p := NewIcecastPusher("icecast-out", "http://127.0.0.1:0/mount", "source", "hackme", time.Second)
	if err := p.Disconnect(); err != nil {
		t.Fatalf("Disconnect without a prior Connect should be a no-op, got %v", err)
	}
}
