package llhls

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPlaylistHandler_NonBlockingReturnsCurrentPlaylist(t *testing.T) {
	m := NewManager(testConfig())
	defer m.Close()
	if err := m.CompleteSegment(SegmentInput{Duration: 6, URI: "seg0.m4s"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	lookup := func(rendition string) (*Manager, bool) {
		if rendition == "720p" {
			return m, true
		}
		return nil, false
	}
	handler := NewPlaylistHandler(lookup, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/720p.m3u8", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "seg0.m4s") {
		t.Fatalf("body missing segment: %s", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.apple.mpegurl" {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestPlaylistHandler_UnknownRenditionReturns404(t *testing.T) {
	lookup := func(string) (*Manager, bool) { return nil, false }
	handler := NewPlaylistHandler(lookup, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/missing.m3u8", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPlaylistHandler_BlockingRequestTimesOutAsGatewayTimeout(t *testing.T) {
	m := NewManager(testConfig())
	defer m.Close()

	lookup := func(string) (*Manager, bool) { return m, true }
	handler := NewPlaylistHandler(lookup, 30*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/720p.m3u8?_HLS_msn=50", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
}

func TestPlaylistHandler_BlockingRequestUnblocksOnArrival(t *testing.T) {
	m := NewManager(testConfig())
	defer m.Close()
	if err := m.CompleteSegment(SegmentInput{Duration: 6, URI: "seg0.m4s"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	lookup := func(string) (*Manager, bool) { return m, true }
	handler := NewPlaylistHandler(lookup, 2*time.Second)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/720p.m3u8?_HLS_msn=1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		done <- rec
	}()

	time.Sleep(30 * time.Millisecond)
	if err := m.CompleteSegment(SegmentInput{Duration: 6, URI: "seg1.m4s"}); err != nil {
		t.Fatalf("complete segment 1: %v", err)
	}

	select {
	case rec := <-done:
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "seg1.m4s") {
			t.Fatalf("body missing newly arrived segment: %s", rec.Body.String())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocking request never unblocked")
	}
}
