package manifest

import "github.com/atelier-socle/hlskit/pkg/herr"

// NewMediaPlaylist returns an empty media playlist with the given
// target duration, matching the teacher's NewMediaPlaylist constructor
// shape (sane zero-value defaults, caller fills in the rest via
// AddSegment).
func NewMediaPlaylist(targetDuration int) *MediaPlaylist {
	return &MediaPlaylist{
		Version:        3,
		TargetDuration: targetDuration,
		PlaylistType:   PlaylistTypeNone,
		Segments:       make([]Segment, 0, 8),
	}
}

// NewSegment builds a Segment with a URI and duration; all other
// fields take their zero value.
func NewSegment(uri string, duration float64) Segment {
	return Segment{URI: uri, Duration: duration}
}

// AddSegment appends seg, bumping the playlist's version to at least 3
// if the duration carries a fractional component (matching the
// formatting rule that integer EXTINF is only legal below version 3).
func (p *MediaPlaylist) AddSegment(seg Segment) {
	p.Segments = append(p.Segments, seg)
	if seg.Duration != float64(int64(seg.Duration)) && p.Version < 3 {
		p.Version = 3
	}
}

// RemoveOldSegments evicts segments from the front until at most
// windowSize remain, advancing MediaSequence by the number evicted —
// the sliding-window trim used by the live publisher.
func (p *MediaPlaylist) RemoveOldSegments(windowSize int) int {
	if windowSize <= 0 || len(p.Segments) <= windowSize {
		return 0
	}
	evicted := len(p.Segments) - windowSize
	p.Segments = p.Segments[evicted:]
	p.MediaSequence += uint64(evicted)
	return evicted
}

// NewMasterPlaylist returns an empty master playlist.
func NewMasterPlaylist() *MasterPlaylist {
	return &MasterPlaylist{
		Version:             3,
		IndependentSegments: true,
		Variants:            make([]Variant, 0, 4),
	}
}

// AddVariant appends v to the master playlist, routing it to
// IFrameVariants if v.IsIFrame is set.
func (p *MasterPlaylist) AddVariant(v Variant) {
	if v.IsIFrame {
		p.IFrameVariants = append(p.IFrameVariants, v)
		return
	}
	p.Variants = append(p.Variants, v)
}

// SortVariantsByBandwidth orders Variants ascending by BANDWIDTH, the
// ladder order Apple's authoring guidelines recommend.
func (p *MasterPlaylist) SortVariantsByBandwidth() {
	for i := 1; i < len(p.Variants); i++ {
		for j := i; j > 0 && p.Variants[j-1].Bandwidth > p.Variants[j].Bandwidth; j-- {
			p.Variants[j-1], p.Variants[j] = p.Variants[j], p.Variants[j-1]
		}
	}
}

// RequiredVersion computes the minimum EXT-X-VERSION the playlist's
// feature usage demands, per spec.md's invariant table.
func (p *MediaPlaylist) RequiredVersion() int {
	v := 1
	bump := func(n int) {
		if n > v {
			v = n
		}
	}
	hasFloat := false
	for _, s := range p.Segments {
		if s.Duration != float64(int64(s.Duration)) {
			hasFloat = true
		}
		if s.ByteRange != nil {
			bump(4)
		}
		if s.Map != nil && !p.IFramesOnly {
			bump(6)
		}
		if s.Key != nil && s.Key.HasIV {
			bump(2)
		}
	}
	if hasFloat {
		bump(3)
	}
	if p.PartInf != nil || p.ServerControl != nil || len(p.PreloadHints) > 0 || p.Skip != nil {
		bump(9)
	}
	return v
}

// resolveGroup finds the Rendition matching (typ, groupID) within renditions.
func resolveGroup(renditions []Rendition, typ RenditionType, groupID string) []Rendition {
	var out []Rendition
	for _, r := range renditions {
		if r.Type == typ && r.GroupID == groupID {
			out = append(out, r)
		}
	}
	return out
}

// CheckInvariants validates the structural invariants from spec.md §3.1
// that must hold unconditionally — as opposed to pkg/validator's
// advisory/standards checks, these are violations the model itself
// refuses to represent as "valid" regardless of rule set.
func (p *MasterPlaylist) CheckInvariants() error {
	seenDefault := map[string]bool{}
	seenNames := map[string]map[string]bool{}
	for _, r := range p.Renditions {
		key := string(r.Type) + "\x00" + r.GroupID
		if r.Default {
			if seenDefault[key] {
				return herr.New(herr.ErrCodeValidationFailed, "more than one DEFAULT=YES in group "+key)
			}
			seenDefault[key] = true
		}
		if seenNames[key] == nil {
			seenNames[key] = map[string]bool{}
		}
		if seenNames[key][r.Name] {
			return herr.New(herr.ErrCodeValidationFailed, "duplicate rendition NAME in group "+key)
		}
		seenNames[key][r.Name] = true
	}

	for _, v := range p.Variants {
		if v.AudioGroup != "" && len(resolveGroup(p.Renditions, RenditionTypeAudio, v.AudioGroup)) == 0 {
			return herr.New(herr.ErrCodeValidationFailed, "variant references unresolved AUDIO group "+v.AudioGroup)
		}
		if v.VideoGroup != "" && len(resolveGroup(p.Renditions, RenditionTypeVideo, v.VideoGroup)) == 0 {
			return herr.New(herr.ErrCodeValidationFailed, "variant references unresolved VIDEO group "+v.VideoGroup)
		}
		if v.SubtitlesGroup != "" && len(resolveGroup(p.Renditions, RenditionTypeSubtitles, v.SubtitlesGroup)) == 0 {
			return herr.New(herr.ErrCodeValidationFailed, "variant references unresolved SUBTITLES group "+v.SubtitlesGroup)
		}
	}

	seenLang := map[string]bool{}
	for _, sd := range p.SessionData {
		if sd.HasValue == (sd.URI != "") {
			return herr.New(herr.ErrCodeValidationFailed, "SESSION-DATA "+sd.DataID+" must set exactly one of VALUE/URI")
		}
		if sd.Language != "" {
			key := sd.DataID + "\x00" + sd.Language
			if seenLang[key] {
				return herr.New(herr.ErrCodeValidationFailed, "duplicate SESSION-DATA LANGUAGE for id "+sd.DataID)
			}
			seenLang[key] = true
		}
	}
	return nil
}
