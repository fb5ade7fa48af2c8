package recorder

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ThumbnailImageProvider extracts a still frame from a segment for use as
// a chapter image, an external collaborator (the host decodes video; this
// package only knows chapter boundaries) per the same capability-set
// design as storage.RecordingStorage and drm.KeyProvider.
type ThumbnailImageProvider interface {
	ExtractThumbnail(ctx context.Context, segmentData []byte, timestampSeconds float64) ([]byte, error)
}

// Chapter is one chapter marker. StartSeconds/EndSeconds are offsets
// from the start of the recording.
type Chapter struct {
	StartSeconds float64
	EndSeconds   float64
	Title        string
	Img          string
	URL          string
}

// AutoChapterGenerator accumulates chapter markers raised by metadata
// changes, discontinuities, or explicit calls, the way the teacher's
// thumbnail generator buckets timestamps into named sizes
// (pkg/storage/thumbnail.go) — here bucketing a stream's timeline into
// named spans instead of fixed-interval images.
type AutoChapterGenerator struct {
	minimumDuration float64
	markers         []Chapter
	samples         map[float64][]byte
	thumbnails      ThumbnailImageProvider
}

// NewAutoChapterGenerator merges any chapter shorter than
// minimumDuration seconds into its predecessor once Finalize runs.
func NewAutoChapterGenerator(minimumDuration float64) *AutoChapterGenerator {
	return &AutoChapterGenerator{minimumDuration: minimumDuration, samples: make(map[float64][]byte)}
}

// SetThumbnailProvider wires an external frame extractor. Without one,
// FinalizeWithThumbnails behaves exactly like Finalize.
func (g *AutoChapterGenerator) SetThumbnailProvider(p ThumbnailImageProvider) {
	g.thumbnails = p
}

// AddMarker records a chapter starting at startSeconds. EndSeconds is
// resolved by Finalize from the next marker's start (or the
// recording's total duration for the last marker).
func (g *AutoChapterGenerator) AddMarker(startSeconds float64, title string) {
	g.markers = append(g.markers, Chapter{StartSeconds: startSeconds, Title: title})
}

// AddMarkerWithSample is AddMarker plus a copy of the segment bytes
// spanning startSeconds, kept until FinalizeWithThumbnails so a
// ThumbnailImageProvider can pull a chapter image from it.
func (g *AutoChapterGenerator) AddMarkerWithSample(startSeconds float64, title string, segmentData []byte) {
	g.AddMarker(startSeconds, title)
	g.samples[startSeconds] = append([]byte(nil), segmentData...)
}

// OnDiscontinuity is a convenience wrapper for segmenter callers: a
// discontinuity is itself a chapter boundary, titled generically
// unless the caller follows up with a metadata-driven AddMarker at the
// same offset.
func (g *AutoChapterGenerator) OnDiscontinuity(atSeconds float64) {
	g.AddMarker(atSeconds, fmt.Sprintf("Chapter at %.0fs", atSeconds))
}

// Finalize sorts markers by start time, fills in end times, and merges
// any chapter shorter than minimumDuration into its predecessor.
func (g *AutoChapterGenerator) Finalize(totalDuration float64) []Chapter {
	sorted := append([]Chapter(nil), g.markers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartSeconds < sorted[j].StartSeconds })

	for i := range sorted {
		if i+1 < len(sorted) {
			sorted[i].EndSeconds = sorted[i+1].StartSeconds
		} else {
			sorted[i].EndSeconds = totalDuration
		}
	}

	merged := make([]Chapter, 0, len(sorted))
	for _, c := range sorted {
		if len(merged) > 0 && c.EndSeconds-c.StartSeconds < g.minimumDuration {
			merged[len(merged)-1].EndSeconds = c.EndSeconds
			continue
		}
		merged = append(merged, c)
	}
	return merged
}

// FinalizeWithThumbnails is Finalize plus, for every surviving chapter
// whose start matches a sample recorded via AddMarkerWithSample, a call
// to the wired ThumbnailImageProvider to populate Chapter.Img as a
// base64 data URI. A provider error on one chapter leaves its Img empty
// and does not abort the others.
func (g *AutoChapterGenerator) FinalizeWithThumbnails(ctx context.Context, totalDuration float64) []Chapter {
	chapters := g.Finalize(totalDuration)
	if g.thumbnails == nil {
		return chapters
	}

	for i := range chapters {
		sample, ok := g.samples[chapters[i].StartSeconds]
		if !ok {
			continue
		}
		jpeg, err := g.thumbnails.ExtractThumbnail(ctx, sample, chapters[i].StartSeconds)
		if err != nil {
			continue
		}
		chapters[i].Img = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
	}
	return chapters
}

// podcastChapter is one entry of the Podcast Namespace 2.0
// chapters.json "chapters" array.
type podcastChapter struct {
	StartTime float64 `json:"startTime"`
	Title     string  `json:"title"`
	Img       string  `json:"img,omitempty"`
	URL       string  `json:"url,omitempty"`
}

// MarshalPodcastJSON serializes chapters as a Podcast Namespace 2.0
// chapters.json document.
func MarshalPodcastJSON(chapters []Chapter) ([]byte, error) {
	out := struct {
		Version  string           `json:"version"`
		Chapters []podcastChapter `json:"chapters"`
	}{Version: "1.2.0"}

	for _, c := range chapters {
		out.Chapters = append(out.Chapters, podcastChapter{
			StartTime: c.StartSeconds,
			Title:     c.Title,
			Img:       c.Img,
			URL:       c.URL,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

// MarshalWebVTT serializes chapters as a WebVTT cue list.
func MarshalWebVTT(chapters []Chapter) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, c := range chapters {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, vttTimestamp(c.StartSeconds), vttTimestamp(c.EndSeconds), c.Title)
	}
	return b.String()
}

func vttTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
