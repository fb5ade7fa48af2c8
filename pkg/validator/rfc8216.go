package validator

import (
	"fmt"
	"math"

	"github.com/atelier-socle/hlskit/pkg/manifest"
)

const rfc8216RuleSet = "RFC8216"

func runRFC8216(m manifest.Manifest, report *ValidationReport) {
	if m.IsMaster() {
		validateMasterRFC8216(m.Master, report)
	}
	if m.IsMedia() {
		validateMediaRFC8216(m.Media, report)
	}
}

func validateMasterRFC8216(p *manifest.MasterPlaylist, report *ValidationReport) {
	if len(p.Variants) == 0 {
		report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.4.2-master-nonempty", "variants",
			"master playlist must declare at least one variant")
	}

	groupHasDefault := map[string]bool{}
	names := map[string]map[string]bool{}

	for i, v := range p.Variants {
		field := fmt.Sprintf("variants[%d]", i)
		if v.Bandwidth <= 0 {
			report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.4.2-bandwidth-positive", field+".bandwidth",
				"BANDWIDTH must be a positive integer")
		}
		if v.URI == "" {
			report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.4.2-uri-nonempty", field+".uri",
				"variant URI must not be empty")
		}
		if v.AudioGroup != "" && len(resolve(p.Renditions, manifest.RenditionTypeAudio, v.AudioGroup)) == 0 {
			report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.4.1-group-resolution", field+".audio",
				"AUDIO group %q does not resolve to any rendition", v.AudioGroup)
		}
		if v.VideoGroup != "" && len(resolve(p.Renditions, manifest.RenditionTypeVideo, v.VideoGroup)) == 0 {
			report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.4.1-group-resolution", field+".video",
				"VIDEO group %q does not resolve to any rendition", v.VideoGroup)
		}
		if v.SubtitlesGroup != "" && len(resolve(p.Renditions, manifest.RenditionTypeSubtitles, v.SubtitlesGroup)) == 0 {
			report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.4.1-group-resolution", field+".subtitles",
				"SUBTITLES group %q does not resolve to any rendition", v.SubtitlesGroup)
		}
	}

	for i, r := range p.Renditions {
		field := fmt.Sprintf("renditions[%d]", i)
		key := string(r.Type) + "\x00" + r.GroupID
		if r.Default {
			if groupHasDefault[key] {
				report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.4.1-single-default", field,
					"more than one DEFAULT=YES rendition in group (%s, %s)", r.Type, r.GroupID)
			}
			groupHasDefault[key] = true
		}
		if names[key] == nil {
			names[key] = map[string]bool{}
		}
		if names[key][r.Name] {
			report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.4.1-unique-name", field,
				"duplicate NAME %q in group (%s, %s)", r.Name, r.Type, r.GroupID)
		}
		names[key][r.Name] = true
	}

	seenLang := map[string]bool{}
	for i, sd := range p.SessionData {
		field := fmt.Sprintf("session_data[%d]", i)
		if sd.HasValue == (sd.URI != "") {
			report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.4.4-value-xor-uri", field,
				"SESSION-DATA must set exactly one of VALUE or URI")
		}
		if sd.Language != "" {
			key := sd.DataID + "\x00" + sd.Language
			if seenLang[key] {
				report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.4.4-unique-language", field,
					"duplicate LANGUAGE for SESSION-DATA id %q", sd.DataID)
			}
			seenLang[key] = true
		}
	}

	required := requiredMasterVersion(p)
	if p.Version < required {
		report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.1.2-version", "version",
			"declared version %d is below the minimum required version %d", p.Version, required)
	}
}

func requiredMasterVersion(p *manifest.MasterPlaylist) int {
	v := 1
	for _, sk := range p.SessionKeys {
		if sk.Key.HasIV && v < 2 {
			v = 2
		}
	}
	return v
}

func resolve(renditions []manifest.Rendition, typ manifest.RenditionType, groupID string) []manifest.Rendition {
	var out []manifest.Rendition
	for _, r := range renditions {
		if r.Type == typ && r.GroupID == groupID {
			out = append(out, r)
		}
	}
	return out
}

func validateMediaRFC8216(p *manifest.MediaPlaylist, report *ValidationReport) {
	if p.TargetDuration <= 0 {
		report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.3.1-targetduration-positive", "target_duration",
			"TARGETDURATION must be a positive integer")
	}

	for i, seg := range p.Segments {
		field := fmt.Sprintf("segments[%d]", i)
		if seg.Duration < 0 {
			report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.2.1-duration-nonnegative", field+".duration",
				"segment duration must not be negative")
		}
		rounded := int(math.Round(seg.Duration))
		if p.TargetDuration > 0 && rounded > p.TargetDuration {
			report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.3.1-duration-le-target", field+".duration",
				"segment duration %.3f (rounds to %d) exceeds TARGETDURATION %d", seg.Duration, rounded, p.TargetDuration)
		}
		if seg.Key != nil && seg.Key.Method != manifest.EncryptionMethodNone && seg.Key.URI == "" {
			report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.2.4-key-uri-required", field+".key",
				"EXT-X-KEY with METHOD != NONE requires URI")
		}
		if seg.Key != nil && seg.Key.HasIV && p.Version < 2 {
			report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.2.4-key-iv-version", field+".key",
				"EXT-X-KEY with IV requires version >= 2")
		}
		if seg.ByteRange != nil && p.Version < 4 {
			report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.2.2-byterange-version", field+".byte_range",
				"EXT-X-BYTERANGE requires version >= 4")
		}
		if seg.Map != nil && !p.IFramesOnly && p.Version < 6 {
			report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.2.5-map-version", field+".map",
				"EXT-X-MAP outside I-FRAMES-ONLY requires version >= 6")
		}
	}

	if p.PlaylistType == manifest.PlaylistTypeVOD && !p.EndList {
		report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.3.5-endlist-vod", "end_list",
			"VOD playlists must include EXT-X-ENDLIST")
	}

	required := p.RequiredVersion()
	if p.Version < required {
		report.add(SeverityError, rfc8216RuleSet, "RFC8216-4.3.1.2-version", "version",
			"declared version %d is below the minimum required version %d", p.Version, required)
	}
}
