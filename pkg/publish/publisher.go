// Package publish implements the three playlist publishing modes
// spec.md §4.4 names, each wrapping a pkg/llhls.Manager. The
// sliding-window live publisher keeps at most WindowSize segments,
// evicting by count and advancing MediaSequence as segments age out.
// The EVENT and VOD publishers keep every segment. Finalize appends
// EXT-X-ENDLIST in any mode; no mode sets EXT-X-PLAYLIST-TYPE.
package publish

import (
	"github.com/atelier-socle/hlskit/pkg/herr"
	"github.com/atelier-socle/hlskit/pkg/llhls"
	"github.com/atelier-socle/hlskit/pkg/manifest"
)

// Mode selects a publisher's playlist-type behavior.
type Mode int

const (
	ModeLiveSlidingWindow Mode = iota
	ModeEvent
	ModeVOD
)

// Publisher owns one rendition's llhls.Manager and enforces the
// sequencing rules (monotonic MSN, dense part indices) spec.md §7
// requires before forwarding to it.
type Publisher struct {
	mode    Mode
	mgr     *llhls.Manager
	nextMSN uint64
	partIdx int
}

// New creates a Publisher in the given mode, owning a freshly started
// llhls.Manager.
func New(mode Mode, cfg llhls.Config) *Publisher {
	if mode != ModeLiveSlidingWindow {
		cfg.WindowSize = 0
	}
	return &Publisher{mode: mode, mgr: llhls.NewManager(cfg)}
}

// Manager exposes the underlying actor for playlist rendering and the
// HTTP handler's registry lookup.
func (p *Publisher) Manager() *llhls.Manager { return p.mgr }

// PublishPartial appends a completed LL-HLS partial. index must equal
// the count of parts already published for the current segment
// (spec.md's dense-partial-index invariant); a gap is reported as an
// error rather than silently accepted.
func (p *Publisher) PublishPartial(index int, part llhls.PartialInput) error {
	if index != p.partIdx {
		return herr.New(herr.ErrCodeNonMonotonicMSN, "publish: non-dense partial index")
	}
	if err := p.mgr.AddPartial(part); err != nil {
		return err
	}
	p.partIdx++
	return nil
}

// PublishSegment closes the current segment at msn, which must equal
// nextMSN exactly — the monotonicity invariant spec.md §3.3 requires.
func (p *Publisher) PublishSegment(msn uint64, seg llhls.SegmentInput) error {
	if msn != p.nextMSN {
		return herr.NewNonMonotonicMSN(msn, p.nextMSN)
	}
	if err := p.mgr.CompleteSegment(seg); err != nil {
		return err
	}
	p.nextMSN++
	p.partIdx = 0
	return nil
}

// Finalize ends the stream, emitting EXT-X-ENDLIST. Only meaningful
// for ModeEvent and ModeVOD; sliding-window live streams normally run
// until the source disconnects.
func (p *Publisher) Finalize() error {
	return p.mgr.EndStream()
}

// SetRenditionReports forwards sibling-rendition reports for
// EXT-X-RENDITION-REPORT.
func (p *Publisher) SetRenditionReports(reports []manifest.RenditionReport) error {
	return p.mgr.SetRenditionReports(reports)
}

// Close stops the underlying manager.
func (p *Publisher) Close() {
	p.mgr.Close()
}
