// Package llhls implements the live playlist manager: a single
// goroutine owns one rendition's in-memory playlist state and
// processes every mutation and every blocking-reload request through
// request/response channels, so the state itself never needs a mutex.
// This is the serialized-actor shape the example pack's DVR-style
// managers use (SentryShot and OS-NVR's recorder actors): one
// goroutine, a command channel, and one-shot reply channels per
// caller rather than a broadcast, so a slow waiter can never stall a
// fast one.
package llhls

import (
	"context"
	"sync"
	"time"

	"github.com/atelier-socle/hlskit/pkg/herr"
	"github.com/atelier-socle/hlskit/pkg/m3u8"
	"github.com/atelier-socle/hlskit/pkg/manifest"
)

// PartialInput is one completed LL-HLS partial segment handed to the
// manager by the segmenter.
type PartialInput struct {
	Duration    float64
	URI         string
	Independent bool
	Gap         bool
}

// SegmentInput is one completed full segment.
type SegmentInput struct {
	Duration     float64
	URI          string
	Discontinuity bool
	ProgramDateTime string
	Map          *manifest.MapTag
	Key          *manifest.EncryptionKey
}

type command struct {
	kind    commandKind
	partial PartialInput
	segment SegmentInput
	reply   chan error

	awaitMSN      uint64
	awaitPart     int
	hasAwaitPart  bool
	awaitSkip     bool
	awaitReply    chan awaitResult

	renditionReports []manifest.RenditionReport
}

type commandKind int

const (
	cmdAddPartial commandKind = iota
	cmdCompleteSegment
	cmdEndStream
	cmdAwaitPlaylist
	cmdSetRenditionReports
	cmdShutdown
)

type awaitResult struct {
	text string
	err  error
}

type waiter struct {
	msn      uint64
	part     int
	hasPart  bool
	skip     bool
	reply    chan awaitResult
}

// Manager owns one media playlist's live state.
type Manager struct {
	cmdCh  chan command
	doneCh chan struct{}
	closeOnce sync.Once
}

// Config configures a Manager's window and LL-HLS parameters.
type Config struct {
	TargetDuration    int
	PartTargetSeconds float64
	WindowSize        int
	HoldBackParts     float64
	CanSkipUntilSeconds float64
	RequestTimeout    time.Duration
}

// NewManager starts the actor goroutine and returns a handle to it.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		cmdCh:  make(chan command, 64),
		doneCh: make(chan struct{}),
	}
	go m.run(cfg)
	return m
}

func (m *Manager) run(cfg Config) {
	defer close(m.doneCh)

	playlist := manifest.NewMediaPlaylist(cfg.TargetDuration)
	playlist.Version = 9
	playlist.PartInf = &manifest.PartInf{PartTarget: cfg.PartTargetSeconds}
	holdBackParts := cfg.HoldBackParts
	if holdBackParts <= 0 {
		holdBackParts = 3
	}
	playlist.ServerControl = &manifest.ServerControl{
		CanBlockReload:  true,
		HasHoldBack:     true,
		HoldBack:        3 * float64(cfg.TargetDuration),
		HasPartHoldBack: true,
		PartHoldBack:    holdBackParts * cfg.PartTargetSeconds,
	}
	if cfg.CanSkipUntilSeconds > 0 {
		playlist.ServerControl.HasCanSkipUntil = true
		playlist.ServerControl.CanSkipUntil = cfg.CanSkipUntilSeconds
	}

	var waiters []waiter
	var lastMSN uint64
	ended := false

	render := func(skip bool) (string, error) {
		p := playlist
		if skip {
			p = renderDelta(playlist)
		}
		return m3u8.Serialize(manifest.NewMediaManifest(*p))
	}

	notify := func() {
		remaining := waiters[:0]
		for _, w := range waiters {
			if satisfied(playlist, lastMSN, w.msn, w.part, w.hasPart) || ended {
				text, err := render(w.skip)
				w.reply <- awaitResult{text: text, err: err}
				continue
			}
			remaining = append(remaining, w)
		}
		waiters = remaining
	}

	for {
		cmd := <-m.cmdCh
		switch cmd.kind {
			case cmdAddPartial:
				if len(playlist.Segments) == 0 {
					playlist.AddSegment(manifest.Segment{})
				}
				seg := &playlist.Segments[len(playlist.Segments)-1]
				seg.Parts = append(seg.Parts, manifest.PartialSegment{
					Index:       len(seg.Parts),
					Duration:    cmd.partial.Duration,
					URI:         cmd.partial.URI,
					Independent: cmd.partial.Independent,
					Gap:         cmd.partial.Gap,
				})
				cmd.reply <- nil
				notify()

			case cmdCompleteSegment:
				finalized := manifest.Segment{
					Duration:        cmd.segment.Duration,
					URI:             cmd.segment.URI,
					Discontinuity:   cmd.segment.Discontinuity,
					ProgramDateTime: cmd.segment.ProgramDateTime,
					Map:             cmd.segment.Map,
					Key:             cmd.segment.Key,
				}
				if n := len(playlist.Segments); n > 0 && playlist.Segments[n-1].URI == "" {
					// this segment was opened by cmdAddPartial: carry its
					// already-accumulated Parts into the finalized record.
					finalized.Parts = playlist.Segments[n-1].Parts
					playlist.Segments[n-1] = finalized
				} else {
					playlist.AddSegment(finalized)
				}
				playlist.RemoveOldSegments(cfg.WindowSize)
				lastMSN = playlist.MediaSequence + uint64(len(playlist.Segments)) - 1
				cmd.reply <- nil
				notify()

			case cmdEndStream:
				playlist.EndList = true
				ended = true
				cmd.reply <- nil
				notify()

			case cmdSetRenditionReports:
				playlist.RenditionReports = cmd.renditionReports
				cmd.reply <- nil

			case cmdAwaitPlaylist:
				if satisfied(playlist, lastMSN, cmd.awaitMSN, cmd.awaitPart, cmd.hasAwaitPart) || ended {
					text, err := render(cmd.awaitSkip)
					cmd.awaitReply <- awaitResult{text: text, err: err}
					continue
				}
				waiters = append(waiters, waiter{
					msn: cmd.awaitMSN, part: cmd.awaitPart, hasPart: cmd.hasAwaitPart, skip: cmd.awaitSkip, reply: cmd.awaitReply,
				})

			case cmdShutdown:
				for _, w := range waiters {
					w.reply <- awaitResult{err: herr.NewStreamAlreadyEnded()}
				}
				cmd.reply <- nil
				return
		}
	}
}

// renderDelta returns a copy of p with the segments older than
// ServerControl.CanSkipUntil replaced by an EXT-X-SKIP tag, per
// RFC 8216 bis §6.2.5.2's delta-playlist contract for _HLS_skip=YES.
func renderDelta(p *manifest.MediaPlaylist) *manifest.MediaPlaylist {
	if p.ServerControl == nil || !p.ServerControl.HasCanSkipUntil || p.ServerControl.CanSkipUntil <= 0 {
		cp := *p
		return &cp
	}

	keepFromEnd := 0.0
	skipIndex := len(p.Segments)
	for i := len(p.Segments) - 1; i >= 0; i-- {
		keepFromEnd += p.Segments[i].Duration
		if keepFromEnd > p.ServerControl.CanSkipUntil {
			skipIndex = i
			break
		}
		skipIndex = i
	}
	if skipIndex <= 0 {
		cp := *p
		return &cp
	}

	cp := *p
	cp.Segments = append([]manifest.Segment{}, p.Segments[skipIndex:]...)
	cp.Skip = &manifest.Skip{SkippedSegments: skipIndex}
	return &cp
}

// satisfied reports whether the playlist already contains the
// requested MSN (and, if given, part index).
func satisfied(p *manifest.MediaPlaylist, lastMSN, wantMSN uint64, wantPart int, hasPart bool) bool {
	if wantMSN < lastMSN {
		return true
	}
	if wantMSN > lastMSN {
		return false
	}
	if !hasPart {
		return true
	}
	if len(p.Segments) == 0 {
		return false
	}
	last := p.Segments[len(p.Segments)-1]
	return len(last.Parts) > wantPart
}

// AddPartial appends a completed LL-HLS partial to the in-progress
// segment.
func (m *Manager) AddPartial(p PartialInput) error {
	reply := make(chan error, 1)
	m.cmdCh <- command{kind: cmdAddPartial, partial: p, reply: reply}
	return <-reply
}

// CompleteSegment closes the in-progress segment and advances the
// sliding window.
func (m *Manager) CompleteSegment(s SegmentInput) error {
	reply := make(chan error, 1)
	m.cmdCh <- command{kind: cmdCompleteSegment, segment: s, reply: reply}
	return <-reply
}

// EndStream marks the playlist VOD-final with EXT-X-ENDLIST and
// releases every blocked waiter.
func (m *Manager) EndStream() error {
	reply := make(chan error, 1)
	m.cmdCh <- command{kind: cmdEndStream, reply: reply}
	return <-reply
}

// SetRenditionReports replaces the EXT-X-RENDITION-REPORT set emitted
// for sibling renditions.
func (m *Manager) SetRenditionReports(reports []manifest.RenditionReport) error {
	reply := make(chan error, 1)
	m.cmdCh <- command{kind: cmdSetRenditionReports, renditionReports: reports, reply: reply}
	return <-reply
}

// RenderPlaylist renders the playlist immediately, without blocking.
func (m *Manager) RenderPlaylist() (string, error) {
	return m.AwaitPlaylist(context.Background(), 0, -1, false)
}

// RenderDeltaPlaylist renders the playlist with segments older than
// CAN-SKIP-UNTIL replaced by EXT-X-SKIP, for the _HLS_skip=YES query
// parameter.
func (m *Manager) RenderDeltaPlaylist() (string, error) {
	return m.AwaitPlaylist(context.Background(), 0, -1, true)
}

// AwaitPlaylist blocks until the playlist contains msn (and part, if
// part >= 0), per the _HLS_msn/_HLS_part query contract, or until ctx
// is done. skip requests the delta-playlist rendering.
func (m *Manager) AwaitPlaylist(ctx context.Context, msn uint64, part int, skip bool) (string, error) {
	reply := make(chan awaitResult, 1)
	cmd := command{
		kind:         cmdAwaitPlaylist,
		awaitMSN:     msn,
		awaitPart:    part,
		hasAwaitPart: part >= 0,
		awaitSkip:    skip,
		awaitReply:   reply,
	}
	select {
	case m.cmdCh <- cmd:
	case <-ctx.Done():
		return "", herr.NewRequestTimeout(msn, part)
	}
	select {
	case res := <-reply:
		return res.text, res.err
	case <-ctx.Done():
		return "", herr.NewRequestTimeout(msn, part)
	}
}

// Close stops the actor goroutine, releasing any blocked waiters with
// ErrCodeStreamAlreadyEnded.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		reply := make(chan error, 1)
		m.cmdCh <- command{kind: cmdShutdown, reply: reply}
		<-reply
		<-m.doneCh
	})
}
