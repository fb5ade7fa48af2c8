package segmenter

import (
	"github.com/atelier-socle/hlskit/pkg/herr"
)

// BoundaryPolicy configures when the segmenter closes a part/segment.
type BoundaryPolicy struct {
	Timescale            uint32
	SegmentTargetSeconds float64
	PartTargetSeconds    float64
}

// PendingUnit is one access unit accumulated into the current
// part/segment.
type PendingUnit struct {
	Frame Frame
}

// Accumulator tracks in-progress part/segment boundaries for one
// video track, closing a part at the target duration or a segment at
// the next keyframe once the target duration has elapsed.
type Accumulator struct {
	policy         BoundaryPolicy
	currentSamples []Frame
	partStartPTS   uint64
	segmentStartPTS uint64
	haveStart      bool
	partIndex      int
}

// NewAccumulator creates an accumulator for the given policy.
func NewAccumulator(policy BoundaryPolicy) *Accumulator {
	return &Accumulator{policy: policy}
}

// ClosedPart is a part boundary decision: the accumulated samples plus
// whether this part also closes the enclosing segment.
type ClosedPart struct {
	Samples       []Frame
	ClosesSegment bool
	Independent   bool
}

// Add appends f to the current part and reports a ClosedPart whenever
// a boundary is reached: on a keyframe once the segment target has
// elapsed (closes both part and segment), or once the part target has
// elapsed (closes only the part).
func (a *Accumulator) Add(f Frame) (*ClosedPart, error) {
	if a.policy.Timescale == 0 {
		return nil, herr.New(herr.ErrCodeSegmentationError, "segmenter: zero timescale")
	}

	if !a.haveStart {
		a.partStartPTS = f.PTS
		a.segmentStartPTS = f.PTS
		a.haveStart = true
	}

	elapsedPart := ptsToSeconds(f.PTS-a.partStartPTS, a.policy.Timescale)
	elapsedSegment := ptsToSeconds(f.PTS-a.segmentStartPTS, a.policy.Timescale)

	if f.IsVideo && f.IsKeyframe && len(a.currentSamples) > 0 && elapsedSegment >= a.policy.SegmentTargetSeconds {
		closed := a.flush()
		a.segmentStartPTS = f.PTS
		a.partStartPTS = f.PTS
		a.partIndex = 0
		a.currentSamples = append(a.currentSamples, f)
		return &ClosedPart{Samples: closed, ClosesSegment: true, Independent: true}, nil
	}

	if elapsedPart >= a.policy.PartTargetSeconds && len(a.currentSamples) > 0 {
		independent := a.currentSamples[0].IsKeyframe
		closed := a.flush()
		a.partStartPTS = f.PTS
		a.partIndex++
		a.currentSamples = append(a.currentSamples, f)
		return &ClosedPart{Samples: closed, ClosesSegment: false, Independent: independent}, nil
	}

	a.currentSamples = append(a.currentSamples, f)
	return nil, nil
}

// Flush forces out whatever samples remain, for end-of-stream.
func (a *Accumulator) Flush() []Frame {
	return a.flush()
}

func (a *Accumulator) flush() []Frame {
	out := a.currentSamples
	a.currentSamples = nil
	return out
}

func ptsToSeconds(delta uint64, timescale uint32) float64 {
	return float64(delta) / float64(timescale)
}
