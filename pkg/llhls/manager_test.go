package llhls

import (
	"context"
	"strings"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		TargetDuration:      6,
		PartTargetSeconds:   1,
		WindowSize:          3,
		CanSkipUntilSeconds: 0,
		RequestTimeout:      time.Second,
	}
}

func TestManager_CompleteSegmentAppearsInPlaylist(t *testing.T) {
	m := NewManager(testConfig())
	defer m.Close()

	if err := m.CompleteSegment(SegmentInput{Duration: 6, URI: "seg0.m4s"}); err != nil {
		t.Fatalf("complete segment: %v", err)
	}
	text, err := m.RenderPlaylist()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(text, "seg0.m4s") {
		t.Fatalf("playlist missing segment URI: %s", text)
	}
}

func TestManager_AddPartialThenCompleteCarriesParts(t *testing.T) {
	m := NewManager(testConfig())
	defer m.Close()

	if err := m.AddPartial(PartialInput{Duration: 1, URI: "seg0.part0.m4s", Independent: true}); err != nil {
		t.Fatalf("add partial: %v", err)
	}
	if err := m.CompleteSegment(SegmentInput{Duration: 6, URI: "seg0.m4s"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	text, err := m.RenderPlaylist()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(text, "seg0.part0.m4s") {
		t.Fatalf("playlist missing the partial that was open when the segment completed: %s", text)
	}
	if !strings.Contains(text, "seg0.m4s") {
		t.Fatalf("playlist missing the completed segment URI: %s", text)
	}
}

func TestManager_AwaitPlaylist_UnblocksWhenMSNArrives(t *testing.T) {
	m := NewManager(testConfig())
	defer m.Close()

	if err := m.CompleteSegment(SegmentInput{Duration: 6, URI: "seg0.m4s"}); err != nil {
		t.Fatalf("seed segment: %v", err)
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// awaiting MSN 1 (the segment not yet produced) must block until
		// CompleteSegment below advances lastMSN to 1.
		if _, err := m.AwaitPlaylist(ctx, 1, -1, false); err != nil {
			t.Errorf("await: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("AwaitPlaylist returned before the awaited MSN was produced")
	default:
	}

	if err := m.CompleteSegment(SegmentInput{Duration: 6, URI: "seg1.m4s"}); err != nil {
		t.Fatalf("complete segment 1: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitPlaylist did not unblock after the awaited MSN arrived")
	}
}

func TestManager_AwaitPlaylist_TimesOutViaContext(t *testing.T) {
	m := NewManager(testConfig())
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := m.AwaitPlaylist(ctx, 99, -1, false); err == nil {
		t.Fatal("expected a timeout error awaiting an MSN that never arrives")
	}
}

func TestManager_EndStream_ReleasesWaitersAndSetsEndlist(t *testing.T) {
	m := NewManager(testConfig())
	defer m.Close()

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := m.AwaitPlaylist(ctx, 50, -1, false)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := m.EndStream(); err != nil {
		t.Fatalf("end stream: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter returned an error after EndStream: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("EndStream did not release the blocked waiter")
	}

	text, err := m.RenderPlaylist()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(text, "EXT-X-ENDLIST") {
		t.Fatalf("expected EXT-X-ENDLIST after EndStream: %s", text)
	}
}

func TestManager_Close_ReleasesPendingWaitersWithError(t *testing.T) {
	m := NewManager(testConfig())

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := m.AwaitPlaylist(ctx, 50, -1, false)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	m.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a stream-already-ended error from a waiter released by Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not release the blocked waiter")
	}
}
