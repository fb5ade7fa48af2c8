// Package m3u8 implements the line-oriented M3U8 tag parser and
// symmetric serializer: table-driven tag dispatch on read, and the
// exact emission order and formatting rules RFC 8216 (plus the LL-HLS
// bis draft) requires on write. Grounded on the teacher's
// pkg/streaming/hls Render() methods, generalized from a handful of
// hard-coded tags to the full tag set in pkg/manifest.
package m3u8

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/atelier-socle/hlskit/pkg/manifest"
)

// Serialize renders m back to M3U8 text. Master and media playlists
// use independent emission orders per spec.md §4.1.
func Serialize(m manifest.Manifest) (string, error) {
	switch {
	case m.IsMaster():
		return serializeMaster(m.Master), nil
	case m.IsMedia():
		return serializeMedia(m.Media), nil
	default:
		return "", fmt.Errorf("m3u8: empty manifest")
	}
}

func formatDuration(d float64, version int) string {
	if version < 3 {
		return strconv.Itoa(int(d + 0.5))
	}
	s := strconv.FormatFloat(d, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

func formatBool(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func quote(s string) string {
	return "\"" + s + "\""
}

func formatByteRange(br *manifest.ByteRange) string {
	if br.Offset != nil {
		return fmt.Sprintf("%d@%d", br.Length, *br.Offset)
	}
	return strconv.FormatInt(br.Length, 10)
}

func formatKeyAttrs(k *manifest.EncryptionKey) string {
	attrs := []string{"METHOD=" + string(k.Method)}
	if k.Method == manifest.EncryptionMethodNone {
		return strings.Join(attrs, ",")
	}
	attrs = append(attrs, "URI="+quote(k.URI))
	if k.HasIV {
		attrs = append(attrs, "IV=0x"+bytesToHex(k.IV[:]))
	}
	if k.KeyFormat != "" {
		attrs = append(attrs, "KEYFORMAT="+quote(k.KeyFormat))
	}
	if k.KeyFormatVersions != "" {
		attrs = append(attrs, "KEYFORMATVERSIONS="+quote(k.KeyFormatVersions))
	}
	return strings.Join(attrs, ",")
}

func bytesToHex(b []byte) string {
	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xF]
	}
	return string(out)
}

func keysEqual(a, b *manifest.EncryptionKey) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func serializeMedia(p *manifest.MediaPlaylist) string {
	buf := &bytes.Buffer{}
	version := p.Version
	if version == 0 {
		version = p.RequiredVersion()
	}

	buf.WriteString("#EXTM3U\n")
	fmt.Fprintf(buf, "#EXT-X-VERSION:%d\n", version)
	if p.IndependentSegments {
		buf.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")
	}
	fmt.Fprintf(buf, "#EXT-X-TARGETDURATION:%d\n", p.TargetDuration)
	if p.MediaSequence != 0 {
		fmt.Fprintf(buf, "#EXT-X-MEDIA-SEQUENCE:%d\n", p.MediaSequence)
	}
	if p.DiscontinuitySequence != 0 {
		fmt.Fprintf(buf, "#EXT-X-DISCONTINUITY-SEQUENCE:%d\n", p.DiscontinuitySequence)
	}
	if p.PlaylistType != manifest.PlaylistTypeNone {
		fmt.Fprintf(buf, "#EXT-X-PLAYLIST-TYPE:%s\n", p.PlaylistType)
	}
	if p.IFramesOnly {
		buf.WriteString("#EXT-X-I-FRAMES-ONLY\n")
	}
	if sc := p.ServerControl; sc != nil {
		var attrs []string
		if sc.CanBlockReload {
			attrs = append(attrs, "CAN-BLOCK-RELOAD=YES")
		}
		if sc.HasCanSkipUntil {
			attrs = append(attrs, fmt.Sprintf("CAN-SKIP-UNTIL=%s", formatDuration(sc.CanSkipUntil, 3)))
		}
		if sc.CanSkipDateRanges {
			attrs = append(attrs, "CAN-SKIP-DATERANGES=YES")
		}
		if sc.HasHoldBack {
			attrs = append(attrs, fmt.Sprintf("HOLD-BACK=%s", formatDuration(sc.HoldBack, 3)))
		}
		if sc.HasPartHoldBack {
			attrs = append(attrs, fmt.Sprintf("PART-HOLD-BACK=%s", formatDuration(sc.PartHoldBack, 3)))
		}
		if len(attrs) > 0 {
			fmt.Fprintf(buf, "#EXT-X-SERVER-CONTROL:%s\n", strings.Join(attrs, ","))
		}
	}
	if p.PartInf != nil {
		fmt.Fprintf(buf, "#EXT-X-PART-INF:PART-TARGET=%s\n", formatDuration(p.PartInf.PartTarget, 3))
	}
	if len(p.Segments) > 0 && p.Segments[0].Map != nil {
		fmt.Fprintf(buf, "#EXT-X-MAP:URI=%s", quote(p.Segments[0].Map.URI))
		if p.Segments[0].Map.ByteRange != nil {
			fmt.Fprintf(buf, ",BYTERANGE=%s", quote(formatByteRange(p.Segments[0].Map.ByteRange)))
		}
		buf.WriteString("\n")
	}
	if p.Skip != nil {
		attrs := []string{fmt.Sprintf("SKIPPED-SEGMENTS=%d", p.Skip.SkippedSegments)}
		if len(p.Skip.RecentlyRemovedDateRanges) > 0 {
			attrs = append(attrs, "RECENTLY-REMOVED-DATERANGES="+quote(strings.Join(p.Skip.RecentlyRemovedDateRanges, "\t")))
		}
		fmt.Fprintf(buf, "#EXT-X-SKIP:%s\n", strings.Join(attrs, ","))
	}
	if p.StartOffset != nil {
		fmt.Fprintf(buf, "#EXT-X-START:TIME-OFFSET=%s", formatDuration(p.StartOffset.TimeOffset, 3))
		if p.StartOffset.Precise {
			buf.WriteString(",PRECISE=YES")
		}
		buf.WriteString("\n")
	}

	var lastKey *manifest.EncryptionKey
	for i, seg := range p.Segments {
		if !keysEqual(lastKey, seg.Key) {
			if seg.Key != nil {
				fmt.Fprintf(buf, "#EXT-X-KEY:%s\n", formatKeyAttrs(seg.Key))
			}
			lastKey = seg.Key
		}
		for _, dr := range seg.DateRanges {
			fmt.Fprintf(buf, "#EXT-X-DATERANGE:%s\n", formatDateRangeAttrs(dr))
		}
		if seg.Discontinuity {
			buf.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		if seg.ProgramDateTime != "" {
			fmt.Fprintf(buf, "#EXT-X-PROGRAM-DATE-TIME:%s\n", seg.ProgramDateTime)
		}
		if seg.ByteRange != nil {
			fmt.Fprintf(buf, "#EXT-X-BYTERANGE:%s\n", formatByteRange(seg.ByteRange))
		}
		for _, part := range seg.Parts {
			fmt.Fprintf(buf, "#EXT-X-PART:%s\n", formatPartAttrs(part, version))
		}
		if seg.Gap {
			buf.WriteString("#EXT-X-GAP\n")
		}
		fmt.Fprintf(buf, "#EXTINF:%s,%s\n", formatDuration(seg.Duration, version), seg.Title)
		fmt.Fprintf(buf, "%s\n", seg.URI)
		_ = i
	}

	for _, h := range p.PreloadHints {
		attrs := []string{"TYPE=" + h.Type, "URI=" + quote(h.URI)}
		if h.ByteRangeStart != 0 {
			attrs = append(attrs, fmt.Sprintf("BYTERANGE-START=%d", h.ByteRangeStart))
		}
		if h.HasByteRangeLength {
			attrs = append(attrs, fmt.Sprintf("BYTERANGE-LENGTH=%d", h.ByteRangeLength))
		}
		fmt.Fprintf(buf, "#EXT-X-PRELOAD-HINT:%s\n", strings.Join(attrs, ","))
	}
	for _, r := range p.RenditionReports {
		attrs := []string{"URI=" + quote(r.URI), fmt.Sprintf("LAST-MSN=%d", r.LastMSN)}
		if r.HasLastPart {
			attrs = append(attrs, fmt.Sprintf("LAST-PART=%d", r.LastPart))
		}
		fmt.Fprintf(buf, "#EXT-X-RENDITION-REPORT:%s\n", strings.Join(attrs, ","))
	}
	if p.EndList {
		buf.WriteString("#EXT-X-ENDLIST\n")
	}

	return buf.String()
}

func formatPartAttrs(p manifest.PartialSegment, version int) string {
	attrs := []string{
		"DURATION=" + formatDuration(p.Duration, version),
		"URI=" + quote(p.URI),
	}
	if p.Independent {
		attrs = append(attrs, "INDEPENDENT=YES")
	}
	if p.ByteRange != nil {
		attrs = append(attrs, "BYTERANGE="+quote(formatByteRange(p.ByteRange)))
	}
	if p.Gap {
		attrs = append(attrs, "GAP=YES")
	}
	return strings.Join(attrs, ",")
}

func formatDateRangeAttrs(dr manifest.DateRange) string {
	attrs := []string{"ID=" + quote(dr.ID)}
	if dr.Class != "" {
		attrs = append(attrs, "CLASS="+quote(dr.Class))
	}
	attrs = append(attrs, "START-DATE="+quote(dr.StartDate))
	if dr.EndDate != "" {
		attrs = append(attrs, "END-DATE="+quote(dr.EndDate))
	}
	if dr.Duration != 0 {
		attrs = append(attrs, "DURATION="+formatDuration(dr.Duration, 3))
	}
	if dr.PlannedDuration != 0 {
		attrs = append(attrs, "PLANNED-DURATION="+formatDuration(dr.PlannedDuration, 3))
	}
	if dr.SCTE35Cmd != "" {
		attrs = append(attrs, "SCTE35-CMD=0x"+dr.SCTE35Cmd)
	}
	if dr.SCTE35Out != "" {
		attrs = append(attrs, "SCTE35-OUT=0x"+dr.SCTE35Out)
	}
	if dr.SCTE35In != "" {
		attrs = append(attrs, "SCTE35-IN=0x"+dr.SCTE35In)
	}
	if dr.EndOnNext {
		attrs = append(attrs, "END-ON-NEXT=YES")
	}
	for k, v := range dr.ClientAttributes {
		attrs = append(attrs, "X-"+k+"="+quote(v))
	}
	return strings.Join(attrs, ",")
}

func serializeMaster(p *manifest.MasterPlaylist) string {
	buf := &bytes.Buffer{}
	buf.WriteString("#EXTM3U\n")
	fmt.Fprintf(buf, "#EXT-X-VERSION:%d\n", p.Version)
	if p.IndependentSegments {
		buf.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")
	}
	if p.StartOffset != nil {
		fmt.Fprintf(buf, "#EXT-X-START:TIME-OFFSET=%s", formatDuration(p.StartOffset.TimeOffset, 3))
		if p.StartOffset.Precise {
			buf.WriteString(",PRECISE=YES")
		}
		buf.WriteString("\n")
	}
	for _, sd := range p.SessionData {
		attrs := []string{"DATA-ID=" + quote(sd.DataID)}
		if sd.HasValue {
			attrs = append(attrs, "VALUE="+quote(sd.Value))
		} else {
			attrs = append(attrs, "URI="+quote(sd.URI))
		}
		if sd.Language != "" {
			attrs = append(attrs, "LANGUAGE="+quote(sd.Language))
		}
		fmt.Fprintf(buf, "#EXT-X-SESSION-DATA:%s\n", strings.Join(attrs, ","))
	}
	for _, sk := range p.SessionKeys {
		fmt.Fprintf(buf, "#EXT-X-SESSION-KEY:%s\n", formatKeyAttrs(&sk.Key))
	}
	if p.ContentSteering != nil {
		attrs := []string{"SERVER-URI=" + quote(p.ContentSteering.ServerURI)}
		if p.ContentSteering.PathwayID != "" {
			attrs = append(attrs, "PATHWAY-ID="+quote(p.ContentSteering.PathwayID))
		}
		fmt.Fprintf(buf, "#EXT-X-CONTENT-STEERING:%s\n", strings.Join(attrs, ","))
	}
	for _, r := range p.Renditions {
		fmt.Fprintf(buf, "#EXT-X-MEDIA:%s\n", formatRenditionAttrs(r))
	}
	for _, v := range p.Variants {
		fmt.Fprintf(buf, "#EXT-X-STREAM-INF:%s\n", formatVariantAttrs(v))
		fmt.Fprintf(buf, "%s\n", v.URI)
	}
	for _, v := range p.IFrameVariants {
		fmt.Fprintf(buf, "#EXT-X-I-FRAME-STREAM-INF:%s,URI=%s\n", formatVariantAttrs(v), quote(v.URI))
	}
	return buf.String()
}

func formatRenditionAttrs(r manifest.Rendition) string {
	attrs := []string{
		"TYPE=" + string(r.Type),
		"GROUP-ID=" + quote(r.GroupID),
		"NAME=" + quote(r.Name),
	}
	if r.Language != "" {
		attrs = append(attrs, "LANGUAGE="+quote(r.Language))
	}
	if r.AssocLanguage != "" {
		attrs = append(attrs, "ASSOC-LANGUAGE="+quote(r.AssocLanguage))
	}
	if r.Default {
		attrs = append(attrs, "DEFAULT=YES")
	}
	if r.AutoSelect {
		attrs = append(attrs, "AUTOSELECT=YES")
	}
	if r.Type == manifest.RenditionTypeSubtitles && r.Forced {
		attrs = append(attrs, "FORCED=YES")
	}
	if r.Type == manifest.RenditionTypeClosedCaptions && r.InstreamID != "" {
		attrs = append(attrs, "INSTREAM-ID="+quote(r.InstreamID))
	}
	if r.Characteristics != "" {
		attrs = append(attrs, "CHARACTERISTICS="+quote(r.Characteristics))
	}
	if r.Channels != "" {
		attrs = append(attrs, "CHANNELS="+quote(r.Channels))
	}
	if r.HasURI {
		attrs = append(attrs, "URI="+quote(r.URI))
	}
	return strings.Join(attrs, ",")
}

func formatVariantAttrs(v manifest.Variant) string {
	attrs := []string{fmt.Sprintf("BANDWIDTH=%d", v.Bandwidth)}
	if v.HasAverageBandwidth {
		attrs = append(attrs, fmt.Sprintf("AVERAGE-BANDWIDTH=%d", v.AverageBandwidth))
	}
	if v.Codecs != "" {
		attrs = append(attrs, "CODECS="+quote(v.Codecs))
	}
	if v.SupplementalCodecs != "" {
		attrs = append(attrs, "SUPPLEMENTAL-CODECS="+quote(v.SupplementalCodecs))
	}
	if v.Resolution != nil {
		attrs = append(attrs, "RESOLUTION="+v.Resolution.String())
	}
	if v.HasFrameRate {
		attrs = append(attrs, fmt.Sprintf("FRAME-RATE=%s", formatDuration(v.FrameRate, 3)))
	}
	if v.HDCPLevel != "" {
		attrs = append(attrs, "HDCP-LEVEL="+v.HDCPLevel)
	}
	if v.VideoRange != "" {
		attrs = append(attrs, "VIDEO-RANGE="+string(v.VideoRange))
	}
	if v.AudioGroup != "" {
		attrs = append(attrs, "AUDIO="+quote(v.AudioGroup))
	}
	if v.VideoGroup != "" {
		attrs = append(attrs, "VIDEO="+quote(v.VideoGroup))
	}
	if v.SubtitlesGroup != "" {
		attrs = append(attrs, "SUBTITLES="+quote(v.SubtitlesGroup))
	}
	if v.ClosedCaptions != "" {
		if v.ClosedCaptions == "NONE" {
			attrs = append(attrs, "CLOSED-CAPTIONS=NONE")
		} else {
			attrs = append(attrs, "CLOSED-CAPTIONS="+quote(v.ClosedCaptions))
		}
	}
	return strings.Join(attrs, ",")
}
