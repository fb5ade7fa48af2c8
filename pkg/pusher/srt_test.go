package pusher

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeSRTTransport struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	sendErr    error
	sent       [][]byte
}

func (f *fakeSRTTransport) Connect(ctx context.Context, addr, streamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeSRTTransport) Send(payload []byte, timestamp uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func (f *fakeSRTTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func TestSRTPusher_ConnectDelegatesToTransport(t *testing.T) {
	tr := &fakeSRTTransport{}
	p := NewSRTPusher("srt-out", "srt://127.0.0.1:9000", "publish/live", tr)

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !tr.connected {
		t.Fatal("transport was not connected")
	}
}

func TestSRTPusher_ConnectFailureIsTransient(t *testing.T) {
	tr := &fakeSRTTransport{connectErr: errors.New("handshake refused")}
	p := NewSRTPusher("srt-out", "srt://127.0.0.1:9000", "publish/live", tr)

	err := p.Connect(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if p.Stats().Failures != 1 {
		t.Fatalf("Failures = %d, want 1", p.Stats().Failures)
	}
}

func TestSRTPusher_PushSegmentForwardsPayload(t *testing.T) {
	tr := &fakeSRTTransport{}
	p := NewSRTPusher("srt-out", "srt://127.0.0.1:9000", "publish/live", tr)

	if err := p.PushSegment(context.Background(), "seg-0.ts", []byte("payload")); err != nil {
		t.Fatalf("push segment: %v", err)
	}
	if len(tr.sent) != 1 || string(tr.sent[0]) != "payload" {
		t.Fatalf("transport received %v, want one [payload]", tr.sent)
	}
	if p.Stats().SegmentsPushed != 1 {
		t.Fatalf("SegmentsPushed = %d, want 1", p.Stats().SegmentsPushed)
	}
}

func TestSRTPusher_SendFailureIsTransientAndRecorded(t *testing.T) {
	tr := &fakeSRTTransport{sendErr: errors.New("connection reset")}
	p := NewSRTPusher("srt-out", "srt://127.0.0.1:9000", "publish/live", tr)

	err := p.PushPartial(context.Background(), "part-0.m4s", []byte("partial"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if p.Stats().Failures != 1 {
		t.Fatalf("Failures = %d, want 1", p.Stats().Failures)
	}
}

func TestSRTPusher_PushPlaylistIsNoOp(t *testing.T) {
	tr := &fakeSRTTransport{}
	p := NewSRTPusher("srt-out", "srt://127.0.0.1:9000", "publish/live", tr)
	if err := p.PushPlaylist(context.Background(), "playlist.m3u8", []byte("#EXTM3U")); err != nil {
		t.Fatalf("PushPlaylist should be a no-op, got %v", err)
	}
}
