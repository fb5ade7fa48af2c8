package m3u8

import (
	"strconv"
	"strings"

	"github.com/atelier-socle/hlskit/pkg/herr"
	"github.com/atelier-socle/hlskit/pkg/manifest"
)

// tagScope says whether a tag attaches to the following URI line
// (segment- or variant-scoped) or applies directly to the playlist.
type tagScope int

const (
	scopePlaylist tagScope = iota
	scopeSegment
	scopeVariant
)

var knownTags = map[string]tagScope{
	"#EXT-X-VERSION":               scopePlaylist,
	"#EXT-X-INDEPENDENT-SEGMENTS":  scopePlaylist,
	"#EXT-X-TARGETDURATION":        scopePlaylist,
	"#EXT-X-MEDIA-SEQUENCE":        scopePlaylist,
	"#EXT-X-DISCONTINUITY-SEQUENCE": scopePlaylist,
	"#EXT-X-PLAYLIST-TYPE":         scopePlaylist,
	"#EXT-X-I-FRAMES-ONLY":         scopePlaylist,
	"#EXT-X-SERVER-CONTROL":        scopePlaylist,
	"#EXT-X-PART-INF":              scopePlaylist,
	"#EXT-X-MAP":                   scopePlaylist,
	"#EXT-X-SKIP":                  scopePlaylist,
	"#EXT-X-START":                 scopePlaylist,
	"#EXT-X-ENDLIST":               scopePlaylist,
	"#EXT-X-SESSION-DATA":          scopePlaylist,
	"#EXT-X-SESSION-KEY":           scopePlaylist,
	"#EXT-X-CONTENT-STEERING":      scopePlaylist,
	"#EXT-X-MEDIA":                 scopePlaylist,
	"#EXT-X-PRELOAD-HINT":          scopePlaylist,
	"#EXT-X-RENDITION-REPORT":      scopePlaylist,

	"#EXT-X-KEY":           scopeSegment,
	"#EXT-X-DATERANGE":     scopeSegment,
	"#EXT-X-DISCONTINUITY": scopeSegment,
	"#EXT-X-PROGRAM-DATE-TIME": scopeSegment,
	"#EXT-X-BYTERANGE":     scopeSegment,
	"#EXT-X-PART":          scopeSegment,
	"#EXT-X-GAP":           scopeSegment,
	"#EXTINF":              scopeSegment,

	"#EXT-X-STREAM-INF":         scopeVariant,
	"#EXT-X-I-FRAME-STREAM-INF": scopeVariant,
}

// Parse parses UTF-8 M3U8 text into a Manifest, per spec.md §4.1.
func Parse(text string) (manifest.Manifest, error) {
	lines := splitLines(text)
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) || strings.TrimSpace(lines[i]) != "#EXTM3U" {
		return manifest.Manifest{}, herr.NewMalformedHeader("playlist must start with #EXTM3U")
	}
	i++

	p := &parser{lines: lines, pos: i}
	return p.run()
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	raw := strings.Split(text, "\n")
	// trailing empty element from a final newline is not a line
	if len(raw) > 0 && raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}
	return raw
}

type parser struct {
	lines []string
	pos   int

	isMaster bool
	media    manifest.MediaPlaylist
	master   manifest.MasterPlaylist

	pendingSegment manifest.Segment
	haveSegment    bool
	pendingVariant manifest.Variant
	haveVariant    bool
	currentKey     *manifest.EncryptionKey
	pendingMap     *manifest.MapTag
}

func (p *parser) run() (manifest.Manifest, error) {
	p.media.Version = 1
	p.master.Version = 1

	for p.pos < len(p.lines) {
		line := p.lines[p.pos]
		lineNo := p.pos + 1
		p.pos++

		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			if err := p.consumeURI(trimmed); err != nil {
				return manifest.Manifest{}, err
			}
			continue
		}
		if !strings.HasPrefix(trimmed, "#EXT") {
			continue // comment
		}

		name, value, hasValue := splitTag(trimmed)
		if err := p.dispatch(name, value, hasValue, lineNo); err != nil {
			return manifest.Manifest{}, err
		}
	}

	if p.isMaster {
		if p.haveVariant {
			return manifest.Manifest{}, herr.NewSegmentWithoutURI()
		}
		return manifest.NewMasterManifest(p.master), nil
	}
	return manifest.NewMediaManifest(p.media), nil
}

func splitTag(line string) (name, value string, hasValue bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return line, "", false
	}
	return line[:idx], line[idx+1:], true
}

func (p *parser) consumeURI(uri string) error {
	if p.haveSegment {
		p.pendingSegment.URI = uri
		p.media.Segments = append(p.media.Segments, p.pendingSegment)
		p.pendingSegment = manifest.Segment{}
		p.haveSegment = false
		return nil
	}
	if p.haveVariant {
		p.pendingVariant.URI = uri
		p.master.AddVariant(p.pendingVariant)
		p.pendingVariant = manifest.Variant{}
		p.haveVariant = false
		return nil
	}
	return nil
}

func (p *parser) dispatch(name, value string, hasValue bool, lineNo int) error {
	scope, known := knownTags[name]
	if !known {
		return nil // unknown tags are skipped: not stored in the manifest, so Serialize does not re-emit them
	}

	switch scope {
	case scopeVariant:
		p.isMaster = true
	case scopeSegment:
		// stays on the media side implicitly
	}

	switch name {
	case "#EXT-X-VERSION":
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return herr.NewInvalidAttributeValue(name, "VALUE", value)
		}
		p.media.Version = v
		p.master.Version = v

	case "#EXT-X-INDEPENDENT-SEGMENTS":
		p.media.IndependentSegments = true
		p.master.IndependentSegments = true

	case "#EXT-X-TARGETDURATION":
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return herr.NewInvalidAttributeValue(name, "VALUE", value)
		}
		p.media.TargetDuration = v

	case "#EXT-X-MEDIA-SEQUENCE":
		v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return herr.NewInvalidAttributeValue(name, "VALUE", value)
		}
		p.media.MediaSequence = v

	case "#EXT-X-DISCONTINUITY-SEQUENCE":
		v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return herr.NewInvalidAttributeValue(name, "VALUE", value)
		}
		p.media.DiscontinuitySequence = v

	case "#EXT-X-PLAYLIST-TYPE":
		p.media.PlaylistType = manifest.PlaylistType(strings.TrimSpace(value))

	case "#EXT-X-I-FRAMES-ONLY":
		p.media.IFramesOnly = true

	case "#EXT-X-ENDLIST":
		p.media.EndList = true

	case "#EXT-X-SERVER-CONTROL":
		attrs := parseAttrList(value)
		sc := &manifest.ServerControl{}
		if v, ok := attrs["CAN-SKIP-UNTIL"]; ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return herr.NewInvalidAttributeValue(name, "CAN-SKIP-UNTIL", v)
			}
			sc.CanSkipUntil, sc.HasCanSkipUntil = f, true
		}
		sc.CanSkipDateRanges = attrs["CAN-SKIP-DATERANGES"] == "YES"
		sc.CanBlockReload = attrs["CAN-BLOCK-RELOAD"] == "YES"
		if v, ok := attrs["HOLD-BACK"]; ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return herr.NewInvalidAttributeValue(name, "HOLD-BACK", v)
			}
			sc.HoldBack, sc.HasHoldBack = f, true
		}
		if v, ok := attrs["PART-HOLD-BACK"]; ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return herr.NewInvalidAttributeValue(name, "PART-HOLD-BACK", v)
			}
			sc.PartHoldBack, sc.HasPartHoldBack = f, true
		}
		p.media.ServerControl = sc

	case "#EXT-X-PART-INF":
		attrs := parseAttrList(value)
		v, ok := attrs["PART-TARGET"]
		if !ok {
			return herr.NewMissingRequiredAttribute(name, "PART-TARGET")
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return herr.NewInvalidAttributeValue(name, "PART-TARGET", v)
		}
		p.media.PartInf = &manifest.PartInf{PartTarget: f}

	case "#EXT-X-MAP":
		attrs := parseAttrList(value)
		uri, ok := attrs["URI"]
		if !ok {
			return herr.NewMissingRequiredAttribute(name, "URI")
		}
		m := &manifest.MapTag{URI: uri}
		if br, ok := attrs["BYTERANGE"]; ok {
			parsed, err := parseByteRange(br)
			if err != nil {
				return herr.NewInvalidAttributeValue(name, "BYTERANGE", br)
			}
			m.ByteRange = parsed
		}
		p.pendingMap = m

	case "#EXT-X-SKIP":
		attrs := parseAttrList(value)
		v, ok := attrs["SKIPPED-SEGMENTS"]
		if !ok {
			return herr.NewMissingRequiredAttribute(name, "SKIPPED-SEGMENTS")
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return herr.NewInvalidAttributeValue(name, "SKIPPED-SEGMENTS", v)
		}
		skip := &manifest.Skip{SkippedSegments: n}
		if rr, ok := attrs["RECENTLY-REMOVED-DATERANGES"]; ok {
			skip.RecentlyRemovedDateRanges = strings.Split(rr, "\t")
		}
		p.media.Skip = skip

	case "#EXT-X-START":
		attrs := parseAttrList(value)
		v, ok := attrs["TIME-OFFSET"]
		if !ok {
			return herr.NewMissingRequiredAttribute(name, "TIME-OFFSET")
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return herr.NewInvalidAttributeValue(name, "TIME-OFFSET", v)
		}
		so := &manifest.StartOffset{TimeOffset: f, Precise: attrs["PRECISE"] == "YES"}
		p.media.StartOffset = so
		p.master.StartOffset = so

	case "#EXT-X-SESSION-DATA":
		attrs := parseAttrList(value)
		id, ok := attrs["DATA-ID"]
		if !ok {
			return herr.NewMissingRequiredAttribute(name, "DATA-ID")
		}
		sd := manifest.SessionData{DataID: id, Language: attrs["LANGUAGE"]}
		if v, ok := attrs["VALUE"]; ok {
			sd.Value, sd.HasValue = v, true
		} else {
			sd.URI = attrs["URI"]
		}
		p.master.SessionData = append(p.master.SessionData, sd)

	case "#EXT-X-SESSION-KEY":
		k, err := parseKeyAttrs(name, parseAttrList(value))
		if err != nil {
			return err
		}
		p.master.SessionKeys = append(p.master.SessionKeys, manifest.SessionKey{Key: *k})

	case "#EXT-X-CONTENT-STEERING":
		attrs := parseAttrList(value)
		uri, ok := attrs["SERVER-URI"]
		if !ok {
			return herr.NewMissingRequiredAttribute(name, "SERVER-URI")
		}
		p.master.ContentSteering = &manifest.ContentSteering{ServerURI: uri, PathwayID: attrs["PATHWAY-ID"]}

	case "#EXT-X-MEDIA":
		p.isMaster = true
		attrs := parseAttrList(value)
		r := manifest.Rendition{
			Type:            manifest.RenditionType(attrs["TYPE"]),
			GroupID:         attrs["GROUP-ID"],
			Name:            attrs["NAME"],
			Language:        attrs["LANGUAGE"],
			AssocLanguage:   attrs["ASSOC-LANGUAGE"],
			Default:         attrs["DEFAULT"] == "YES",
			AutoSelect:      attrs["AUTOSELECT"] == "YES",
			Forced:          attrs["FORCED"] == "YES",
			InstreamID:      attrs["INSTREAM-ID"],
			Characteristics: attrs["CHARACTERISTICS"],
			Channels:        attrs["CHANNELS"],
		}
		if uri, ok := attrs["URI"]; ok {
			r.URI, r.HasURI = uri, true
		}
		if r.GroupID == "" {
			return herr.NewMissingRequiredAttribute(name, "GROUP-ID")
		}
		if r.Name == "" {
			return herr.NewMissingRequiredAttribute(name, "NAME")
		}
		p.master.Renditions = append(p.master.Renditions, r)

	case "#EXT-X-PRELOAD-HINT":
		attrs := parseAttrList(value)
		h := manifest.PreloadHint{Type: attrs["TYPE"], URI: attrs["URI"]}
		if v, ok := attrs["BYTERANGE-START"]; ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return herr.NewInvalidAttributeValue(name, "BYTERANGE-START", v)
			}
			h.ByteRangeStart = n
		}
		if v, ok := attrs["BYTERANGE-LENGTH"]; ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return herr.NewInvalidAttributeValue(name, "BYTERANGE-LENGTH", v)
			}
			h.ByteRangeLength, h.HasByteRangeLength = n, true
		}
		p.media.PreloadHints = append(p.media.PreloadHints, h)

	case "#EXT-X-RENDITION-REPORT":
		attrs := parseAttrList(value)
		uri, ok := attrs["URI"]
		if !ok {
			return herr.NewMissingRequiredAttribute(name, "URI")
		}
		r := manifest.RenditionReport{URI: uri}
		if v, ok := attrs["LAST-MSN"]; ok {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return herr.NewInvalidAttributeValue(name, "LAST-MSN", v)
			}
			r.LastMSN = n
		}
		if v, ok := attrs["LAST-PART"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return herr.NewInvalidAttributeValue(name, "LAST-PART", v)
			}
			r.LastPart, r.HasLastPart = n, true
		}
		p.media.RenditionReports = append(p.media.RenditionReports, r)

	case "#EXT-X-KEY":
		k, err := parseKeyAttrs(name, parseAttrList(value))
		if err != nil {
			return err
		}
		p.currentKey = k

	case "#EXT-X-DATERANGE":
		dr, err := parseDateRangeAttrs(parseAttrList(value))
		if err != nil {
			return err
		}
		p.pendingSegment.DateRanges = append(p.pendingSegment.DateRanges, dr)

	case "#EXT-X-DISCONTINUITY":
		p.pendingSegment.Discontinuity = true

	case "#EXT-X-PROGRAM-DATE-TIME":
		p.pendingSegment.ProgramDateTime = value

	case "#EXT-X-BYTERANGE":
		br, err := parseByteRange(value)
		if err != nil {
			return herr.NewInvalidAttributeValue(name, "VALUE", value)
		}
		p.pendingSegment.ByteRange = br

	case "#EXT-X-PART":
		attrs := parseAttrList(value)
		part := manifest.PartialSegment{Index: len(p.pendingSegment.Parts)}
		uri, ok := attrs["URI"]
		if !ok {
			return herr.NewMissingRequiredAttribute(name, "URI")
		}
		part.URI = uri
		if v, ok := attrs["DURATION"]; ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return herr.NewInvalidAttributeValue(name, "DURATION", v)
			}
			part.Duration = f
		} else {
			return herr.NewMissingRequiredAttribute(name, "DURATION")
		}
		part.Independent = attrs["INDEPENDENT"] == "YES"
		part.Gap = attrs["GAP"] == "YES"
		if br, ok := attrs["BYTERANGE"]; ok {
			parsed, err := parseByteRange(br)
			if err != nil {
				return herr.NewInvalidAttributeValue(name, "BYTERANGE", br)
			}
			part.ByteRange = parsed
		}
		p.pendingSegment.Parts = append(p.pendingSegment.Parts, part)

	case "#EXT-X-GAP":
		p.pendingSegment.Gap = true

	case "#EXTINF":
		dur, title, err := parseExtinf(value)
		if err != nil {
			return herr.NewInvalidAttributeValue(name, "VALUE", value)
		}
		p.pendingSegment.Duration = dur
		p.pendingSegment.Title = title
		p.pendingSegment.Key = nil
		if p.currentKey != nil {
			k := *p.currentKey
			p.pendingSegment.Key = &k
		}
		p.pendingSegment.Map = p.pendingMap
		p.haveSegment = true

	case "#EXT-X-STREAM-INF":
		attrs := parseAttrList(value)
		v, err := parseVariantAttrs(name, attrs, false)
		if err != nil {
			return err
		}
		p.pendingVariant = v
		p.haveVariant = true

	case "#EXT-X-I-FRAME-STREAM-INF":
		attrs := parseAttrList(value)
		v, err := parseVariantAttrs(name, attrs, true)
		if err != nil {
			return err
		}
		uri, ok := attrs["URI"]
		if !ok {
			return herr.NewMissingRequiredAttribute(name, "URI")
		}
		v.URI = uri
		p.master.AddVariant(v)
	}

	return nil
}

func parseExtinf(value string) (float64, string, error) {
	idx := strings.Index(value, ",")
	durStr := value
	title := ""
	if idx >= 0 {
		durStr = value[:idx]
		title = value[idx+1:]
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(durStr), 64)
	if err != nil {
		return 0, "", err
	}
	return dur, title, nil
}

func parseByteRange(s string) (*manifest.ByteRange, error) {
	parts := strings.SplitN(s, "@", 2)
	length, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, err
	}
	br := &manifest.ByteRange{Length: length}
	if len(parts) == 2 {
		off, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, err
		}
		br.Offset = &off
	}
	return br, nil
}

func parseKeyAttrs(tag string, attrs map[string]string) (*manifest.EncryptionKey, error) {
	method, ok := attrs["METHOD"]
	if !ok {
		return nil, herr.NewMissingRequiredAttribute(tag, "METHOD")
	}
	k := &manifest.EncryptionKey{
		Method:            manifest.EncryptionMethod(method),
		URI:               attrs["URI"],
		KeyFormat:         attrs["KEYFORMAT"],
		KeyFormatVersions: attrs["KEYFORMATVERSIONS"],
	}
	if k.Method != manifest.EncryptionMethodNone && k.URI == "" {
		return nil, herr.NewMissingRequiredAttribute(tag, "URI")
	}
	if iv, ok := attrs["IV"]; ok {
		b, err := hexToBytes(strings.TrimPrefix(strings.TrimPrefix(iv, "0x"), "0X"))
		if err != nil || len(b) != 16 {
			return nil, herr.NewInvalidAttributeValue(tag, "IV", iv)
		}
		copy(k.IV[:], b)
		k.HasIV = true
	}
	return k, nil
}

func hexToBytes(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, strconv.ErrSyntax
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

func parseDateRangeAttrs(attrs map[string]string) (manifest.DateRange, error) {
	id, ok := attrs["ID"]
	if !ok {
		return manifest.DateRange{}, herr.NewMissingRequiredAttribute("#EXT-X-DATERANGE", "ID")
	}
	start, ok := attrs["START-DATE"]
	if !ok {
		return manifest.DateRange{}, herr.NewMissingRequiredAttribute("#EXT-X-DATERANGE", "START-DATE")
	}
	dr := manifest.DateRange{
		ID:        id,
		Class:     attrs["CLASS"],
		StartDate: start,
		EndDate:   attrs["END-DATE"],
		EndOnNext: attrs["END-ON-NEXT"] == "YES",
		SCTE35Cmd: strings.TrimPrefix(attrs["SCTE35-CMD"], "0x"),
		SCTE35Out: strings.TrimPrefix(attrs["SCTE35-OUT"], "0x"),
		SCTE35In:  strings.TrimPrefix(attrs["SCTE35-IN"], "0x"),
	}
	if v, ok := attrs["DURATION"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return manifest.DateRange{}, herr.NewInvalidAttributeValue("#EXT-X-DATERANGE", "DURATION", v)
		}
		dr.Duration = f
	}
	if v, ok := attrs["PLANNED-DURATION"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return manifest.DateRange{}, herr.NewInvalidAttributeValue("#EXT-X-DATERANGE", "PLANNED-DURATION", v)
		}
		dr.PlannedDuration = f
	}
	for k, v := range attrs {
		if strings.HasPrefix(k, "X-") {
			if dr.ClientAttributes == nil {
				dr.ClientAttributes = map[string]string{}
			}
			dr.ClientAttributes[strings.TrimPrefix(k, "X-")] = v
		}
	}
	return dr, nil
}

func parseVariantAttrs(tag string, attrs map[string]string, isIFrame bool) (manifest.Variant, error) {
	bwStr, ok := attrs["BANDWIDTH"]
	if !ok {
		return manifest.Variant{}, herr.NewMissingRequiredAttribute(tag, "BANDWIDTH")
	}
	bw, err := strconv.Atoi(bwStr)
	if err != nil {
		return manifest.Variant{}, herr.NewInvalidAttributeValue(tag, "BANDWIDTH", bwStr)
	}
	v := manifest.Variant{
		Bandwidth:          bw,
		Codecs:             attrs["CODECS"],
		SupplementalCodecs: attrs["SUPPLEMENTAL-CODECS"],
		AudioGroup:         attrs["AUDIO"],
		VideoGroup:         attrs["VIDEO"],
		SubtitlesGroup:     attrs["SUBTITLES"],
		ClosedCaptions:     attrs["CLOSED-CAPTIONS"],
		HDCPLevel:          attrs["HDCP-LEVEL"],
		VideoRange:         manifest.VideoRange(attrs["VIDEO-RANGE"]),
		IsIFrame:           isIFrame,
	}
	if v2, ok := attrs["AVERAGE-BANDWIDTH"]; ok {
		n, err := strconv.Atoi(v2)
		if err != nil {
			return manifest.Variant{}, herr.NewInvalidAttributeValue(tag, "AVERAGE-BANDWIDTH", v2)
		}
		v.AverageBandwidth, v.HasAverageBandwidth = n, true
	}
	if r, ok := attrs["RESOLUTION"]; ok {
		parts := strings.SplitN(r, "x", 2)
		if len(parts) != 2 {
			return manifest.Variant{}, herr.NewInvalidAttributeValue(tag, "RESOLUTION", r)
		}
		w, err1 := strconv.Atoi(parts[0])
		h, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return manifest.Variant{}, herr.NewInvalidAttributeValue(tag, "RESOLUTION", r)
		}
		v.Resolution = &manifest.Resolution{Width: w, Height: h}
	}
	if fr, ok := attrs["FRAME-RATE"]; ok {
		f, err := strconv.ParseFloat(fr, 64)
		if err != nil {
			return manifest.Variant{}, herr.NewInvalidAttributeValue(tag, "FRAME-RATE", fr)
		}
		v.FrameRate, v.HasFrameRate = f, true
	}
	return v, nil
}

// parseAttrList parses a comma-separated KEY=VALUE attribute list,
// tolerating whitespace around '=' and honoring double-quoted strings
// that may contain embedded commas.
func parseAttrList(s string) map[string]string {
	out := map[string]string{}
	i := 0
	n := len(s)
	for i < n {
		for i < n && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		keyStart := i
		for i < n && s[i] != '=' {
			i++
		}
		key := strings.TrimSpace(s[keyStart:i])
		if i >= n {
			break
		}
		i++ // skip '='
		for i < n && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		var val string
		if i < n && s[i] == '"' {
			i++
			valStart := i
			for i < n && s[i] != '"' {
				i++
			}
			val = s[valStart:i]
			if i < n {
				i++ // skip closing quote
			}
			for i < n && s[i] != ',' {
				i++
			}
		} else {
			valStart := i
			for i < n && s[i] != ',' {
				i++
			}
			val = strings.TrimSpace(s[valStart:i])
		}
		if key != "" {
			out[key] = val
		}
		if i < n && s[i] == ',' {
			i++
		}
	}
	return out
}
