package fmp4

import "github.com/atelier-socle/hlskit/pkg/bitio"

// Sample describes one encoded access unit or audio frame going into
// a media fragment's trun table.
type Sample struct {
	Duration    uint32 // in the track's timescale
	Size        uint32
	Flags       uint32 // sample_flags (sync sample => 0x02000000)
	CompositionOffset int32
	Data        []byte
}

const sampleFlagNonSync = 0x00010000

// SyncSampleFlags returns the trun sample_flags value for a keyframe
// (is_non_sync_sample=0) or a non-keyframe (is_non_sync_sample=1).
func SyncSampleFlags(keyframe bool) uint32 {
	if keyframe {
		return 0x02000000
	}
	return 0x01010000 | sampleFlagNonSync
}

// BuildMediaFragment assembles styp + moof + mdat for one track's
// fragment: sequenceNumber is the moof's running fragment counter,
// baseMediaDecodeTime is the decode time (tfdt) of the first sample, in
// the track timescale.
func BuildMediaFragment(trackID, sequenceNumber uint32, baseMediaDecodeTime uint64, samples []Sample) []byte {
	styp := buildStyp()
	moofBytes, dataOffsetFieldPos := buildMoof(trackID, sequenceNumber, baseMediaDecodeTime, samples)
	mdat := buildMdat(samples)

	// trun data_offset is relative to the start of moof (tfhd sets
	// default-base-is-moof); mdat's sample data begins 8 bytes past
	// mdat's own header, which itself starts at the end of moof.
	patchTrunDataOffset(moofBytes, dataOffsetFieldPos, len(moofBytes)+8)

	return concat(styp, moofBytes, mdat)
}

func buildStyp() []byte {
	w := bitio.NewByteWriter()
	w.WriteBytes([]byte("msdh"))
	w.WriteU32(0)
	w.WriteBytes([]byte("msdh"))
	w.WriteBytes([]byte("msix"))
	return box("styp", w.Bytes())
}

// buildMoof returns the encoded moof box and the byte offset within it
// where the trun's data_offset field lives, so the caller can patch it
// once the full fragment's length is known.
func buildMoof(trackID, sequenceNumber uint32, baseMediaDecodeTime uint64, samples []Sample) ([]byte, int) {
	mfhdW := bitio.NewByteWriter()
	mfhdW.WriteU32(sequenceNumber)
	mfhd := fullBox("mfhd", 0, 0, mfhdW.Bytes())

	tfhdW := bitio.NewByteWriter()
	tfhdW.WriteU32(trackID)
	// tf_flags: default-base-is-moof (0x020000)
	tfhd := fullBox("tfhd", 0, 0x020000, tfhdW.Bytes())

	tfdtW := bitio.NewByteWriter()
	tfdtW.WriteU64(baseMediaDecodeTime)
	tfdt := fullBox("tfdt", 1, 0, tfdtW.Bytes())

	trunBytes, dataOffsetFieldPos := buildTrun(samples)

	traf := box("traf", concat(tfhd, tfdt, trunBytes))
	moofBody := concat(mfhd, traf)
	moof := box("moof", moofBody)

	// dataOffsetFieldPos was computed relative to traf's trun content;
	// translate it to an offset within the full moof box.
	mfhdLen := len(mfhd)
	trafHeaderLen := 8 // traf box header
	tfhdLen := len(tfhd)
	tfdtLen := len(tfdt)
	moofHeaderLen := 8
	absOffset := moofHeaderLen + mfhdLen + trafHeaderLen + tfhdLen + tfdtLen + dataOffsetFieldPos
	return moof, absOffset
}

// buildTrun encodes the track run box and returns it along with the
// byte offset (relative to the start of the returned slice) of the
// data_offset field.
func buildTrun(samples []Sample) ([]byte, int) {
	// flags: data-offset-present | sample-duration-present |
	// sample-size-present | sample-flags-present |
	// sample-composition-time-offsets-present
	const flags = 0x000001 | 0x000100 | 0x000200 | 0x000400 | 0x000800

	w := bitio.NewByteWriter()
	w.WriteU32(uint32(len(samples)))
	dataOffsetPos := w.Len()
	w.WriteU32(0) // data_offset, patched later
	for _, s := range samples {
		w.WriteU32(s.Duration)
		w.WriteU32(s.Size)
		w.WriteU32(s.Flags)
		w.WriteU32(uint32(int32(s.CompositionOffset)))
	}
	trun := fullBox("trun", 0, flags, w.Bytes())
	// account for the 12-byte fullBox header (8-byte box header plus
	// version/flags) preceding dataOffsetPos.
	return trun, dataOffsetPos + 12
}

func patchTrunDataOffset(moof []byte, fieldOffset, dataOffset int) {
	be := func(v uint32) [4]byte {
		var b [4]byte
		b[0] = byte(v >> 24)
		b[1] = byte(v >> 16)
		b[2] = byte(v >> 8)
		b[3] = byte(v)
		return b
	}
	b := be(uint32(dataOffset))
	copy(moof[fieldOffset:fieldOffset+4], b[:])
}

func buildMdat(samples []Sample) []byte {
	var total int
	for _, s := range samples {
		total += len(s.Data)
	}
	w := bitio.NewByteWriter()
	w.WriteU32(uint32(8 + total))
	w.WriteBytes([]byte("mdat"))
	for _, s := range samples {
		w.WriteBytes(s.Data)
	}
	return w.Bytes()
}
