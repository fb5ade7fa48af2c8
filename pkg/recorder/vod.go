package recorder

import (
	"fmt"
	"math"

	"github.com/atelier-socle/hlskit/pkg/manifest"
)

// VODConversionOptions controls LiveToVODConverter's output shape.
type VODConversionOptions struct {
	RenumberSegments       bool
	IncludeDateTime        bool
	PreserveDiscontinuities bool
	FilenameTemplate       string // e.g. "seg%05d.m4s"; used only when RenumberSegments
	InitSegmentFilename    string
	Version                int
}

// DefaultVODConversionOptions matches RFC 8216's minimum VOD shape.
func DefaultVODConversionOptions() VODConversionOptions {
	return VODConversionOptions{
		RenumberSegments:        false,
		IncludeDateTime:         true,
		PreserveDiscontinuities: true,
		FilenameTemplate:        "seg%05d.m4s",
		Version:                 7,
	}
}

// LiveToVODConverter turns a SimultaneousRecorder's accumulated
// RecordedSegment history into a finalized VOD manifest, the
// counterpart to the live EVENT playlist the recorder rewrites in
// place while recording is in progress.
type LiveToVODConverter struct {
	opts VODConversionOptions
}

// NewLiveToVODConverter builds a converter with opts.
func NewLiveToVODConverter(opts VODConversionOptions) *LiveToVODConverter {
	return &LiveToVODConverter{opts: opts}
}

// Convert builds the VOD manifest.MediaPlaylist for segments. Target
// duration is the ceiling of the longest segment's duration, per
// RFC 8216 §4.3.3.1.
func (c *LiveToVODConverter) Convert(segments []RecordedSegment) *manifest.MediaPlaylist {
	maxDuration := 0.0
	for _, s := range segments {
		if s.Duration > maxDuration {
			maxDuration = s.Duration
		}
	}
	targetDuration := int(math.Ceil(maxDuration))
	if targetDuration < 1 {
		targetDuration = 1
	}

	p := manifest.NewMediaPlaylist(targetDuration)
	p.PlaylistType = manifest.PlaylistTypeVOD
	p.EndList = true
	if c.opts.Version > 0 {
		p.Version = c.opts.Version
	}
	for i, s := range segments {
		uri := s.Filename
		if c.opts.RenumberSegments && c.opts.FilenameTemplate != "" {
			uri = fmt.Sprintf(c.opts.FilenameTemplate, i)
		}
		seg := manifest.Segment{
			Duration: s.Duration,
			URI:      uri,
		}
		if c.opts.PreserveDiscontinuities {
			seg.Discontinuity = s.Discontinuity
		}
		if c.opts.IncludeDateTime {
			seg.ProgramDateTime = s.ProgramDateTime
		}
		if c.opts.InitSegmentFilename != "" && i == 0 {
			seg.Map = &manifest.MapTag{URI: c.opts.InitSegmentFilename}
		}
		p.AddSegment(seg)
	}
	return p
}
