package validator

import (
	"fmt"

	"github.com/atelier-socle/hlskit/pkg/manifest"
)

const appleRuleSet = "AppleAuthoring"

// runAppleAuthoring emits advisory (warning/info only) findings from
// Apple's HLS Authoring Specification for Apple Devices; it never
// fails a manifest outright.
func runAppleAuthoring(m manifest.Manifest, report *ValidationReport) {
	if m.IsMaster() {
		appleAuthoringMaster(m.Master, report)
	}
	if m.IsMedia() {
		appleAuthoringMedia(m.Media, report)
	}
}

func appleAuthoringMaster(p *manifest.MasterPlaylist, report *ValidationReport) {
	haveResolutions := map[string]bool{}
	prevBandwidth := -1
	ascending := true

	for i, v := range p.Variants {
		field := fmt.Sprintf("variants[%d]", i)
		if v.Codecs == "" {
			report.add(SeverityWarning, appleRuleSet, "Apple-codecs-recommended", field+".codecs",
				"CODECS attribute is recommended on every variant")
		}
		if v.Resolution != nil && !v.HasFrameRate {
			report.add(SeverityWarning, appleRuleSet, "Apple-framerate-recommended", field+".frame_rate",
				"FRAME-RATE is recommended for video variants")
		}
		if v.Resolution != nil {
			haveResolutions[v.Resolution.String()] = true
		}
		if v.Resolution != nil && v.Resolution.Height >= 2160 && v.HDCPLevel == "" {
			report.add(SeverityWarning, appleRuleSet, "Apple-hdcp-2160p", field+".hdcp_level",
				"2160p and above should set HDCP-LEVEL")
		}
		if v.Bandwidth < prevBandwidth {
			ascending = false
		}
		prevBandwidth = v.Bandwidth
	}

	if !ascending {
		report.add(SeverityWarning, appleRuleSet, "Apple-ladder-ascending", "variants",
			"variants should be listed in ascending BANDWIDTH order")
	}

	ladderTargets := []string{"854x480", "1280x720", "1920x1080"}
	covered := 0
	for _, t := range ladderTargets {
		if haveResolutions[t] {
			covered++
		}
	}
	if covered < 3 && len(p.Variants) > 0 {
		report.add(SeverityInfo, appleRuleSet, "Apple-ladder-coverage", "variants",
			"bitrate ladder should cover at least three of 480p/720p/1080p")
	}

	if len(p.IFrameVariants) == 0 && len(p.Variants) > 0 {
		report.add(SeverityInfo, appleRuleSet, "Apple-iframe-playlists-recommended", "i_frame_variants",
			"I-frame playlists are recommended for scrubbing support")
	}

	for i, r := range p.Renditions {
		if r.Type == manifest.RenditionTypeAudio && r.Language == "" {
			report.add(SeverityInfo, appleRuleSet, "Apple-audio-language-recommended",
				fmt.Sprintf("renditions[%d].language", i), "audio renditions should declare LANGUAGE")
		}
	}

	if !p.IndependentSegments {
		report.add(SeverityInfo, appleRuleSet, "Apple-independent-segments-recommended", "independent_segments",
			"EXT-X-INDEPENDENT-SEGMENTS is recommended")
	}
}

func appleAuthoringMedia(p *manifest.MediaPlaylist, report *ValidationReport) {
	isLLHLS := p.PartInf != nil

	for i, seg := range p.Segments {
		if seg.Duration < 4 || seg.Duration > 8 {
			report.add(SeverityInfo, appleRuleSet, "Apple-segment-duration-6s",
				fmt.Sprintf("segments[%d].duration", i),
				"segment duration %.3f is outside the recommended [4,8] second range", seg.Duration)
		}
		if seg.Map == nil {
			report.add(SeverityInfo, appleRuleSet, "Apple-fmp4-preferred",
				fmt.Sprintf("segments[%d]", i), "fMP4 (EXT-X-MAP) is preferred over MPEG-TS")
		}
	}

	if isLLHLS {
		if p.TargetDuration > 4 {
			report.add(SeverityWarning, appleRuleSet, "Apple-targetduration-llhls", "target_duration",
				"TARGETDURATION should be <= 4 for LL-HLS playlists")
		}
	} else if p.TargetDuration != 6 {
		report.add(SeverityInfo, appleRuleSet, "Apple-targetduration-6", "target_duration",
			"TARGETDURATION of 6 is recommended for standard playlists")
	}
}
