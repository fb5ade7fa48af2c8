// Package nal implements the Annex-B start-code scanner and
// access-unit assembler for H.264 and H.265 elementary streams. There
// is no bitstream-parsing library anywhere in the example pack, so
// this is hand rolled on the same manual byte-walking idiom the
// teacher uses for its RTMP chunk/AMF codecs (see pkg/pusher/rtmp);
// cross-checked against the H.265 NAL-type table used by the pack's
// rtmpServerStudy reference file.
package nal

import "github.com/atelier-socle/hlskit/pkg/herr"

// Codec selects the NAL header interpretation.
type Codec int

const (
	CodecH264 Codec = iota
	CodecH265
)

// H.264 NAL unit types (low 5 bits of the header byte).
const (
	H264NALSliceNonIDR   = 1
	H264NALSliceDPA      = 2
	H264NALSliceDPB      = 3
	H264NALSliceDPC      = 4
	H264NALSliceIDR      = 5
	H264NALSEI           = 6
	H264NALSPS           = 7
	H264NALPPS           = 8
	H264NALAUD           = 9
)

// H.265 NAL unit types ((byte>>1) & 0x3F).
const (
	H265NALTrailN    = 0
	H265NALTrailR    = 1
	H265NALIDRWRADL  = 19
	H265NALIDRNLP    = 20
	H265NALCRA       = 21
	H265NALVPS       = 32
	H265NALSPS       = 33
	H265NALPPS       = 34
	H265NALAUD       = 35
)

// NALUnit is one start-code-delimited NAL unit found in the stream.
type NALUnit struct {
	// Offset and Length locate the unit's payload (header included)
	// within the buffer that was scanned.
	Offset int
	Length int
	Type   int
}

// AccessUnit is a lazily assembled decodable unit: a maximal run of
// NALs from one VCL boundary up to (not including) the next AU's
// start code.
type AccessUnit struct {
	Offset     int
	Length     int
	IsKeyframe bool
	NALTypes   []int
}

// isVCL reports whether nalType is a coded-slice (video coding layer)
// NAL for the given codec.
func isVCL(codec Codec, nalType int) bool {
	if codec == CodecH264 {
		return nalType >= 1 && nalType <= 5
	}
	return nalType >= 0 && nalType <= 31
}

// isKeyframeType reports whether nalType marks an IDR / random-access
// point for the given codec.
func isKeyframeType(codec Codec, nalType int) bool {
	if codec == CodecH264 {
		return nalType == H264NALSliceIDR
	}
	return nalType == 19 || nalType == 20 || nalType == 21
}

func nalType(codec Codec, header byte) int {
	if codec == CodecH264 {
		return int(header & 0x1F)
	}
	return int((header >> 1) & 0x3F)
}

// scanStartCodes finds the offset of every 00 00 01 pattern. For a
// 4-byte code (00 00 00 01) that is one past its leading zero;
// startCodeLen tells the two apart.
func scanStartCodes(buf []byte) []int {
	var offsets []int
	i := 0
	for i+2 < len(buf) {
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 1 {
			offsets = append(offsets, i)
			i += 3
			continue
		}
		i++
	}
	return offsets
}

func startCodeLen(buf []byte, offset int) int {
	if offset > 0 && buf[offset-1] == 0 {
		return 4
	}
	return 3
}

// SplitNALUnits scans buf for Annex-B start codes and returns each NAL
// unit found, along with bytesConsumed: the offset just past the last
// unit returned, up to which the caller may discard data. The final
// unit runs to the end of buf; a trailing start code with no payload
// after it is left unconsumed for the next call.
func SplitNALUnits(codec Codec, buf []byte) (units []NALUnit, bytesConsumed int, err error) {
	starts := scanStartCodes(buf)
	if len(starts) == 0 {
		return nil, 0, nil
	}

	for i, startOffset := range starts {
		payloadStart := startOffset + 3
		if payloadStart >= len(buf) {
			break
		}

		payloadEnd := len(buf)
		if i+1 < len(starts) {
			nextStart := starts[i+1]
			nextSCLen := startCodeLen(buf, nextStart)
			payloadEnd = nextStart - (nextSCLen - 3)
			if payloadEnd < payloadStart {
				payloadEnd = payloadStart
			}
		}

		units = append(units, NALUnit{
			Offset: payloadStart,
			Length: payloadEnd - payloadStart,
			Type:   nalType(codec, buf[payloadStart]),
		})
		bytesConsumed = payloadEnd
	}

	if len(units) == 0 {
		return nil, 0, nil
	}
	return units, bytesConsumed, nil
}

// AssembleAccessUnits groups NAL units into access units: a unit
// boundary closes whenever a VCL NAL is followed by a new non-VCL NAL
// or a new VCL NAL, per spec.md §4.3.
func AssembleAccessUnits(codec Codec, buf []byte, units []NALUnit) []AccessUnit {
	var aus []AccessUnit
	var cur *AccessUnit
	lastWasVCL := false

	flush := func() {
		if cur != nil {
			aus = append(aus, *cur)
			cur = nil
		}
	}

	for _, u := range units {
		if lastWasVCL {
			flush()
		}
		if cur == nil {
			cur = &AccessUnit{Offset: u.Offset}
		}
		cur.Length = u.Offset + u.Length - cur.Offset
		cur.NALTypes = append(cur.NALTypes, u.Type)
		if isKeyframeType(codec, u.Type) {
			cur.IsKeyframe = true
		}
		lastWasVCL = isVCL(codec, u.Type)
	}
	flush()
	return aus
}

// ParseStream is the convenience entry point: it scans buf for NAL
// units and groups them into access units in one call, returning the
// number of bytes the caller may discard.
func ParseStream(codec Codec, buf []byte) ([]AccessUnit, int, error) {
	units, consumed, err := SplitNALUnits(codec, buf)
	if err != nil {
		return nil, 0, herr.NewSegmentationError("nal: split failed", err)
	}
	if len(units) == 0 {
		return nil, 0, nil
	}
	return AssembleAccessUnits(codec, buf, units), consumed, nil
}
