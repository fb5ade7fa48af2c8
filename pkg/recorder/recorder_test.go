package recorder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

var errExtractFailed = errors.New("extract thumbnail: decode failed")

type memStorage struct {
	mu        sync.Mutex
	segments  map[string][]byte
	playlists map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{segments: map[string][]byte{}, playlists: map[string]string{}}
}

func (m *memStorage) WriteSegment(ctx context.Context, directory, filename string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments[directory+"/"+filename] = data
	return nil
}

func (m *memStorage) WritePlaylist(ctx context.Context, directory, filename string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlists[directory+"/"+filename] = text
	return nil
}

func (m *memStorage) WriteChapters(ctx context.Context, directory, filename string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments[directory+"/"+filename] = data
	return nil
}

func (m *memStorage) ListFiles(ctx context.Context, directory string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.segments {
		out = append(out, k)
	}
	return out, nil
}

func (m *memStorage) FileExists(ctx context.Context, directory, filename string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.segments[directory+"/"+filename]
	return ok, nil
}

func (m *memStorage) playlist(directory, filename string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playlists[directory+"/"+filename]
}

func TestSimultaneousRecorder_RecordSegmentRewritesIncrementalPlaylist(t *testing.T) {
	mem := newMemStorage()
	rec := New(Config{
		Directory:           "live",
		PlaylistFilename:    "playlist.m3u8",
		TargetDuration:      6,
		IncrementalPlaylist: true,
	}, mem)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rec.RecordSegment(context.Background(), []byte("tsdata"), RecordedSegment{Filename: "seg0.ts", Duration: 6}); err != nil {
		t.Fatalf("record: %v", err)
	}

	text := mem.playlist("live", "playlist.m3u8")
	if !strings.Contains(text, "seg0.ts") {
		t.Fatalf("incremental playlist missing segment: %s", text)
	}
	if strings.Contains(text, "EXT-X-ENDLIST") {
		t.Fatal("playlist should not be ended before Stop")
	}
}

func TestSimultaneousRecorder_StopSetsEndlist(t *testing.T) {
	mem := newMemStorage()
	rec := New(Config{Directory: "live", PlaylistFilename: "playlist.m3u8", TargetDuration: 6}, mem)
	_ = rec.Start(context.Background())
	_ = rec.RecordSegment(context.Background(), []byte("d"), RecordedSegment{Filename: "seg0.ts", Duration: 6})

	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	text := mem.playlist("live", "playlist.m3u8")
	if !strings.Contains(text, "EXT-X-ENDLIST") {
		t.Fatalf("expected EXT-X-ENDLIST after Stop: %s", text)
	}
}

func TestSimultaneousRecorder_RecordSegmentAfterStopFails(t *testing.T) {
	mem := newMemStorage()
	rec := New(Config{Directory: "live", TargetDuration: 6}, mem)
	_ = rec.Start(context.Background())
	_ = rec.Stop(context.Background())

	if err := rec.RecordSegment(context.Background(), []byte("d"), RecordedSegment{Filename: "seg1.ts", Duration: 6}); err == nil {
		t.Fatal("expected an error recording after the stream has ended")
	}
}

func TestSimultaneousRecorder_SegmentsAccumulateInOrder(t *testing.T) {
	mem := newMemStorage()
	rec := New(Config{Directory: "live", TargetDuration: 6}, mem)
	_ = rec.Start(context.Background())
	_ = rec.RecordSegment(context.Background(), []byte("a"), RecordedSegment{Filename: "seg0.ts", Duration: 6})
	_ = rec.RecordSegment(context.Background(), []byte("b"), RecordedSegment{Filename: "seg1.ts", Duration: 6})

	segs := rec.Segments()
	if len(segs) != 2 || segs[0].Index != 0 || segs[1].Index != 1 {
		t.Fatalf("unexpected segment history: %+v", segs)
	}
}

func TestLiveToVODConverter_TargetDurationIsCeilingOfMax(t *testing.T) {
	conv := NewLiveToVODConverter(DefaultVODConversionOptions())
	p := conv.Convert([]RecordedSegment{
		{Filename: "seg0.m4s", Duration: 5.2},
		{Filename: "seg1.m4s", Duration: 5.9},
	})
	if p.TargetDuration != 6 {
		t.Fatalf("TargetDuration = %d, want 6 (ceil of 5.9)", p.TargetDuration)
	}
	if !p.EndList {
		t.Fatal("VOD playlist must set EXT-X-ENDLIST")
	}
	if len(p.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(p.Segments))
	}
}

func TestLiveToVODConverter_RenumbersWithTemplate(t *testing.T) {
	opts := DefaultVODConversionOptions()
	opts.RenumberSegments = true
	opts.FilenameTemplate = "out%03d.m4s"
	conv := NewLiveToVODConverter(opts)

	p := conv.Convert([]RecordedSegment{
		{Filename: "original-a.m4s", Duration: 4},
		{Filename: "original-b.m4s", Duration: 4},
	})
	if p.Segments[0].URI != "out000.m4s" || p.Segments[1].URI != "out001.m4s" {
		t.Fatalf("unexpected renumbered URIs: %q, %q", p.Segments[0].URI, p.Segments[1].URI)
	}
}

func TestLiveToVODConverter_InitSegmentOnlyOnFirstSegment(t *testing.T) {
	opts := DefaultVODConversionOptions()
	opts.InitSegmentFilename = "init.mp4"
	conv := NewLiveToVODConverter(opts)

	p := conv.Convert([]RecordedSegment{
		{Filename: "seg0.m4s", Duration: 4},
		{Filename: "seg1.m4s", Duration: 4},
	})
	if p.Segments[0].Map == nil || p.Segments[0].Map.URI != "init.mp4" {
		t.Fatal("expected the first segment to carry the init map")
	}
	if p.Segments[1].Map != nil {
		t.Fatal("only the first segment should carry the init map")
	}
}

func TestAutoChapterGenerator_FillsEndTimesFromNextStart(t *testing.T) {
	g := NewAutoChapterGenerator(0)
	g.AddMarker(0, "Intro")
	g.AddMarker(30, "Main")
	chapters := g.Finalize(90)

	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(chapters))
	}
	if chapters[0].EndSeconds != 30 {
		t.Fatalf("Intro end = %v, want 30", chapters[0].EndSeconds)
	}
	if chapters[1].EndSeconds != 90 {
		t.Fatalf("Main end = %v, want 90 (total duration)", chapters[1].EndSeconds)
	}
}

func TestAutoChapterGenerator_MergesSubMinimumChapters(t *testing.T) {
	g := NewAutoChapterGenerator(10) // merge anything shorter than 10s
	g.AddMarker(0, "Intro")
	g.AddMarker(5, "Blip") // only 2s long before "Main" starts
	g.AddMarker(7, "Main")
	chapters := g.Finalize(60)

	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2 (Blip merged into Intro): %+v", len(chapters), chapters)
	}
	if chapters[0].Title != "Intro" || chapters[0].EndSeconds != 7 {
		t.Fatalf("Intro should absorb Blip's span, got %+v", chapters[0])
	}
}

func TestMarshalPodcastJSON_RoundTripsFields(t *testing.T) {
	chapters := []Chapter{{StartSeconds: 0, Title: "Intro"}, {StartSeconds: 30, Title: "Main", URL: "https://example.com"}}
	data, err := MarshalPodcastJSON(chapters)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"version": "1.2.0"`) {
		t.Fatalf("missing podcast namespace version: %s", s)
	}
	if !strings.Contains(s, "Intro") || !strings.Contains(s, "https://example.com") {
		t.Fatalf("missing expected chapter fields: %s", s)
	}
}

func TestMarshalWebVTT_FormatsCueTimestamps(t *testing.T) {
	chapters := []Chapter{{StartSeconds: 0, EndSeconds: 90, Title: "Intro"}}
	vtt := MarshalWebVTT(chapters)
	if !strings.HasPrefix(vtt, "WEBVTT\n\n") {
		t.Fatalf("missing WEBVTT header: %q", vtt)
	}
	if !strings.Contains(vtt, "00:00:00.000 --> 00:01:30.000") {
		t.Fatalf("unexpected cue timing: %s", vtt)
	}
}

type fakeThumbnailProvider struct {
	calls int
	err   error
}

func (f *fakeThumbnailProvider) ExtractThumbnail(ctx context.Context, segmentData []byte, timestampSeconds float64) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("jpeg:" + string(segmentData)), nil
}

func TestAutoChapterGenerator_FinalizeWithThumbnailsPopulatesImg(t *testing.T) {
	provider := &fakeThumbnailProvider{}
	g := NewAutoChapterGenerator(0)
	g.SetThumbnailProvider(provider)
	g.AddMarkerWithSample(0, "Intro", []byte("frame-a"))
	g.AddMarker(30, "Main")

	chapters := g.FinalizeWithThumbnails(context.Background(), 60)
	if provider.calls != 1 {
		t.Fatalf("provider called %d times, want 1", provider.calls)
	}
	if chapters[0].Img == "" || !strings.HasPrefix(chapters[0].Img, "data:image/jpeg;base64,") {
		t.Fatalf("Intro.Img = %q, want a data URI", chapters[0].Img)
	}
	if chapters[1].Img != "" {
		t.Fatalf("Main.Img = %q, want empty (no sample was recorded)", chapters[1].Img)
	}
}

func TestAutoChapterGenerator_FinalizeWithThumbnailsWithoutProviderLeavesImgEmpty(t *testing.T) {
	g := NewAutoChapterGenerator(0)
	g.AddMarkerWithSample(0, "Intro", []byte("frame-a"))

	chapters := g.FinalizeWithThumbnails(context.Background(), 30)
	if chapters[0].Img != "" {
		t.Fatalf("Img = %q, want empty with no provider wired", chapters[0].Img)
	}
}

func TestAutoChapterGenerator_FinalizeWithThumbnailsToleratesProviderError(t *testing.T) {
	provider := &fakeThumbnailProvider{err: errExtractFailed}
	g := NewAutoChapterGenerator(0)
	g.SetThumbnailProvider(provider)
	g.AddMarkerWithSample(0, "Intro", []byte("frame-a"))

	chapters := g.FinalizeWithThumbnails(context.Background(), 30)
	if chapters[0].Img != "" {
		t.Fatalf("Img = %q, want empty when provider errors", chapters[0].Img)
	}
}
