package validator

import (
	"fmt"

	"github.com/atelier-socle/hlskit/pkg/manifest"
)

const llhlsRuleSet = "LLHLS"

// runLLHLS activates only when the media playlist carries at least one
// LL-HLS feature (PART, SERVER-CONTROL, PART-INF, or PRELOAD-HINT), per
// spec.md §4.2.
func runLLHLS(m manifest.Manifest, report *ValidationReport) {
	if !m.IsMedia() {
		return
	}
	p := m.Media

	hasPart := false
	for _, seg := range p.Segments {
		if len(seg.Parts) > 0 {
			hasPart = true
			break
		}
	}
	active := hasPart || p.ServerControl != nil || p.PartInf != nil || len(p.PreloadHints) > 0
	if !active {
		return
	}

	if hasPart && p.PartInf == nil {
		report.add(SeverityError, llhlsRuleSet, "LLHLS-part-requires-partinf", "part_inf",
			"EXT-X-PART requires EXT-X-PART-INF")
	}

	if p.PartInf != nil {
		for i, seg := range p.Segments {
			for j, part := range seg.Parts {
				if part.Duration > p.PartInf.PartTarget {
					report.add(SeverityError, llhlsRuleSet, "LLHLS-part-duration-le-target",
						fmt.Sprintf("segments[%d].parts[%d].duration", i, j),
						"partial duration %.3f exceeds PART-TARGET %.3f", part.Duration, p.PartInf.PartTarget)
				}
			}
		}
	}

	if p.ServerControl == nil {
		report.add(SeverityWarning, llhlsRuleSet, "LLHLS-server-control-should-exist", "server_control",
			"LL-HLS playlists should declare EXT-X-SERVER-CONTROL")
	} else if p.PartInf != nil && p.ServerControl.HasPartHoldBack {
		minHoldBack := 3 * p.PartInf.PartTarget
		if p.ServerControl.PartHoldBack < minHoldBack {
			report.add(SeverityError, llhlsRuleSet, "LLHLS-part-hold-back-min", "server_control.part_hold_back",
				"PART-HOLD-BACK %.3f is below the recommended minimum of 3x PART-TARGET (%.3f)",
				p.ServerControl.PartHoldBack, minHoldBack)
		}
	}

	if p.Version < 9 {
		report.add(SeverityError, llhlsRuleSet, "LLHLS-version-9", "version",
			"LL-HLS features require declared version >= 9, got %d", p.Version)
	}
}
