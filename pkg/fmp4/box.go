// Package fmp4 builds the ISO/IEC 14496-12 (CMAF/fMP4) box tree for
// HLS fMP4 init and media segments: ftyp/moov for initialization,
// styp/moof/mdat for media fragments, and the CENC pssh/saiz/saio
// boxes used by sample-level encryption. There is no MP4 muxing
// library anywhere in the example pack (the closest reference wraps a
// third-party muxer rather than building boxes directly), so box
// assembly follows the teacher's manual byte-packing idiom from
// pkg/bitio. Each box body is built first, so its size is known and
// written up front; only the trun data_offset is patched afterwards.
package fmp4

import "github.com/atelier-socle/hlskit/pkg/bitio"

// box writes a length-prefixed, four-character-code box and returns
// its encoded bytes. body already contains everything after the
// 8-byte header.
func box(fourCC string, body []byte) []byte {
	w := bitio.NewByteWriter()
	w.WriteU32(uint32(8 + len(body)))
	w.WriteBytes([]byte(fourCC))
	w.WriteBytes(body)
	return w.Bytes()
}

// fullBox is a box whose body starts with an 8-bit version and 24-bit
// flags field, per ISO 14496-12 §4.2.
func fullBox(fourCC string, version uint8, flags uint32, rest []byte) []byte {
	w := bitio.NewByteWriter()
	w.WriteU8(version)
	w.WriteU24(flags)
	w.WriteBytes(rest)
	return box(fourCC, w.Bytes())
}

func concat(boxes ...[]byte) []byte {
	total := 0
	for _, b := range boxes {
		total += len(b)
	}
	out := make([]byte, 0, total)
	for _, b := range boxes {
		out = append(out, b...)
	}
	return out
}
