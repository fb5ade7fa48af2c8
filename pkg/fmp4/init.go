package fmp4

import "github.com/atelier-socle/hlskit/pkg/bitio"

// TrackKind selects the sample entry written into stsd.
type TrackKind int

const (
	TrackVideoH264 TrackKind = iota
	TrackVideoH265
	TrackAudioAAC
)

// TrackConfig describes one elementary stream's initialization
// parameters.
type TrackConfig struct {
	TrackID   uint32
	Kind      TrackKind
	Timescale uint32

	// Video
	Width, Height uint16
	// CodecConfig is the pre-built codec-specific configuration record,
	// without box header: the avcC or hvcC payload for video, or the AAC
	// AudioSpecificConfig that goes into esds for audio.
	CodecConfig []byte

	// Audio
	SampleRate    uint32
	Channels      uint16
	AudioObjectID uint8 // esds decoder-specific-info object type

	// Encrypted marks the track as CENC-protected; its sample entry
	// is wrapped as encv/enca with a sinf box referencing the clear
	// codec's fourCC.
	Encrypted bool
	SchemeType string // "cenc", "cbcs"
	DefaultKID [16]byte
}

// BuildInitSegment assembles ftyp + moov for one or more tracks.
func BuildInitSegment(tracks []TrackConfig) []byte {
	ftypBox := buildFtyp()
	moovBox := buildMoov(tracks)
	return concat(ftypBox, moovBox)
}

func buildFtyp() []byte {
	w := bitio.NewByteWriter()
	w.WriteBytes([]byte("iso5"))
	w.WriteU32(1)
	w.WriteBytes([]byte("iso5"))
	w.WriteBytes([]byte("iso6"))
	w.WriteBytes([]byte("mp41"))
	return box("ftyp", w.Bytes())
}

func buildMoov(tracks []TrackConfig) []byte {
	mvhd := buildMvhd(tracks)
	var traks []byte
	for _, t := range tracks {
		traks = concat(traks, buildTrak(t))
	}
	mvex := buildMvex(tracks)
	return box("moov", concat(mvhd, traks, mvex))
}

func buildMvhd(tracks []TrackConfig) []byte {
	nextTrackID := uint32(1)
	for _, t := range tracks {
		if t.TrackID >= nextTrackID {
			nextTrackID = t.TrackID + 1
		}
	}
	w := bitio.NewByteWriter()
	w.WriteU32(0) // creation_time
	w.WriteU32(0) // modification_time
	w.WriteU32(1000) // timescale (movie-level, unused by fragmented playback)
	w.WriteU32(0)     // duration (fragmented: unknown)
	w.WriteU32(0x00010000) // rate 1.0
	w.WriteU16(0x0100)     // volume 1.0
	w.WriteU16(0)          // reserved
	w.WriteU32(0)
	w.WriteU32(0)
	for _, v := range identityMatrix {
		w.WriteU32(v)
	}
	for i := 0; i < 6; i++ {
		w.WriteU32(0) // pre_defined
	}
	w.WriteU32(nextTrackID)
	return fullBox("mvhd", 0, 0, w.Bytes())
}

var identityMatrix = []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

func buildTrak(t TrackConfig) []byte {
	tkhd := buildTkhd(t)
	mdia := buildMdia(t)
	return box("trak", concat(tkhd, mdia))
}

func buildTkhd(t TrackConfig) []byte {
	w := bitio.NewByteWriter()
	w.WriteU32(0) // creation_time
	w.WriteU32(0) // modification_time
	w.WriteU32(t.TrackID)
	w.WriteU32(0) // reserved
	w.WriteU32(0) // duration
	w.WriteU32(0)
	w.WriteU32(0)
	w.WriteU16(0) // layer
	w.WriteU16(0) // alternate_group
	if t.Kind == TrackAudioAAC {
		w.WriteU16(0x0100) // volume 1.0
	} else {
		w.WriteU16(0)
	}
	w.WriteU16(0) // reserved
	for _, v := range identityMatrix {
		w.WriteU32(v)
	}
	w.WriteU32(uint32(t.Width) << 16)
	w.WriteU32(uint32(t.Height) << 16)
	return fullBox("tkhd", 0, 0x000007, w.Bytes())
}

func buildMdia(t TrackConfig) []byte {
	mdhd := buildMdhd(t)
	hdlr := buildHdlr(t)
	minf := buildMinf(t)
	return box("mdia", concat(mdhd, hdlr, minf))
}

func buildMdhd(t TrackConfig) []byte {
	w := bitio.NewByteWriter()
	w.WriteU32(0)
	w.WriteU32(0)
	w.WriteU32(t.Timescale)
	w.WriteU32(0) // duration
	w.WriteU16(0x55C4) // language "und"
	w.WriteU16(0)
	return fullBox("mdhd", 0, 0, w.Bytes())
}

func buildHdlr(t TrackConfig) []byte {
	w := bitio.NewByteWriter()
	w.WriteU32(0) // pre_defined
	if t.Kind == TrackAudioAAC {
		w.WriteBytes([]byte("soun"))
	} else {
		w.WriteBytes([]byte("vide"))
	}
	w.WriteU32(0)
	w.WriteU32(0)
	w.WriteU32(0)
	w.WriteBytes([]byte("hlskit\x00"))
	return fullBox("hdlr", 0, 0, w.Bytes())
}

func buildMinf(t TrackConfig) []byte {
	var mhd []byte
	if t.Kind == TrackAudioAAC {
		smhd := bitio.NewByteWriter()
		smhd.WriteU16(0)
		smhd.WriteU16(0)
		mhd = fullBox("smhd", 0, 0, smhd.Bytes())
	} else {
		vmhd := bitio.NewByteWriter()
		vmhd.WriteU16(0)
		vmhd.WriteU16(0)
		vmhd.WriteU16(0)
		vmhd.WriteU16(0)
		mhd = fullBox("vmhd", 0, 1, vmhd.Bytes())
	}
	dinf := buildDinf()
	stbl := buildStbl(t)
	return box("minf", concat(mhd, dinf, stbl))
}

func buildDinf() []byte {
	urlW := bitio.NewByteWriter()
	url := fullBox("url ", 0, 0x000001, urlW.Bytes())
	refW := bitio.NewByteWriter()
	refW.WriteU16(1)
	dref := fullBox("dref", 0, 0, concat(refW.Bytes(), url))
	return box("dinf", dref)
}

func buildStbl(t TrackConfig) []byte {
	stsd := buildStsd(t)
	empty := func(fourCC string) []byte {
		w := bitio.NewByteWriter()
		w.WriteU32(0)
		return fullBox(fourCC, 0, 0, w.Bytes())
	}
	stts := empty("stts")
	stsc := empty("stsc")
	stsz := func() []byte {
		w := bitio.NewByteWriter()
		w.WriteU32(0)
		w.WriteU32(0)
		return fullBox("stsz", 0, 0, w.Bytes())
	}()
	stco := empty("stco")
	return box("stbl", concat(stsd, stts, stsc, stsz, stco))
}

func buildStsd(t TrackConfig) []byte {
	var entry []byte
	switch t.Kind {
	case TrackVideoH264:
		entry = buildVisualSampleEntry("avc1", t)
	case TrackVideoH265:
		entry = buildVisualSampleEntry("hev1", t)
	case TrackAudioAAC:
		entry = buildAudioSampleEntry(t)
	}
	if t.Encrypted {
		entry = wrapEncryptedSampleEntry(entry, t)
	}
	w := bitio.NewByteWriter()
	w.WriteU32(1) // entry_count
	w.WriteBytes(entry)
	return fullBox("stsd", 0, 0, w.Bytes())
}

func buildVisualSampleEntry(fourCC string, t TrackConfig) []byte {
	w := bitio.NewByteWriter()
	w.WriteBytes(make([]byte, 6)) // reserved
	w.WriteU16(1)                 // data_reference_index
	w.WriteU16(0)                 // pre_defined
	w.WriteU16(0)                 // reserved
	w.WriteBytes(make([]byte, 12)) // pre_defined
	w.WriteU16(t.Width)
	w.WriteU16(t.Height)
	w.WriteU32(0x00480000) // horizresolution 72dpi
	w.WriteU32(0x00480000) // vertresolution 72dpi
	w.WriteU32(0)          // reserved
	w.WriteU16(1)          // frame_count
	w.WriteBytes(make([]byte, 32)) // compressorname
	w.WriteU16(0x0018)             // depth
	w.WriteU16(0xFFFF)             // pre_defined

	var configBox []byte
	if fourCC == "avc1" {
		configBox = box("avcC", t.CodecConfig)
	} else {
		configBox = box("hvcC", t.CodecConfig)
	}
	return box(fourCC, concat(w.Bytes(), configBox))
}

func buildAudioSampleEntry(t TrackConfig) []byte {
	w := bitio.NewByteWriter()
	w.WriteBytes(make([]byte, 6))
	w.WriteU16(1)
	w.WriteU32(0)
	w.WriteU32(0)
	w.WriteU16(t.Channels)
	w.WriteU16(16) // samplesize
	w.WriteU16(0)
	w.WriteU16(0)
	w.WriteU32(t.SampleRate << 16)

	esds := buildEsds(t)
	return box("mp4a", concat(w.Bytes(), esds))
}

// buildEsds wraps the raw AudioSpecificConfig (t.CodecConfig) in the
// minimal MPEG-4 esds descriptor chain a decoder needs.
func buildEsds(t TrackConfig) []byte {
	dsi := t.CodecConfig
	decSpecific := tlvDescriptor(0x05, dsi)
	decConfig := tlvDescriptor(0x04, concat(
		[]byte{0x40, 0x15, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		decSpecific,
	))
	slConfig := tlvDescriptor(0x06, []byte{0x02})
	esDescriptorBody := concat([]byte{0, 0, 0}, decConfig, slConfig)
	esDescriptor := tlvDescriptor(0x03, esDescriptorBody)
	return fullBox("esds", 0, 0, esDescriptor)
}

func tlvDescriptor(tag byte, payload []byte) []byte {
	w := bitio.NewByteWriter()
	w.WriteU8(tag)
	length := len(payload)
	for length > 0x7F {
		w.WriteU8(byte(length&0x7F) | 0x80)
		length >>= 7
	}
	w.WriteU8(byte(length))
	w.WriteBytes(payload)
	return w.Bytes()
}

func buildMvex(tracks []TrackConfig) []byte {
	var trexes []byte
	for _, t := range tracks {
		w := bitio.NewByteWriter()
		w.WriteU32(t.TrackID)
		w.WriteU32(1) // default_sample_description_index
		w.WriteU32(0) // default_sample_duration
		w.WriteU32(0) // default_sample_size
		w.WriteU32(0) // default_sample_flags
		trexes = concat(trexes, fullBox("trex", 0, 0, w.Bytes()))
	}
	return box("mvex", trexes)
}
