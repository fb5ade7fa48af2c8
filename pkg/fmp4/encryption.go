package fmp4

import "github.com/atelier-socle/hlskit/pkg/bitio"

// Well-known CENC system IDs, per the Common Encryption registry
// named in spec.md §6.2.
var (
	SystemIDWidevine  = [16]byte{0xed, 0xef, 0x8b, 0xa9, 0x79, 0xd6, 0x4a, 0xce, 0xa3, 0xc8, 0x27, 0xdc, 0xd5, 0x1d, 0x21, 0xed}
	SystemIDPlayReady = [16]byte{0x9a, 0x04, 0xf0, 0x79, 0x98, 0x40, 0x42, 0x86, 0xab, 0x92, 0xe6, 0x5b, 0xe0, 0x88, 0x5f, 0x95}
	SystemIDFairPlay  = [16]byte{0x94, 0xce, 0x86, 0xfb, 0x07, 0xff, 0x4f, 0x43, 0xad, 0xb8, 0x93, 0xd2, 0xfa, 0x96, 0x8c, 0xa2}
)

// wrapEncryptedSampleEntry renames the clear sample entry's fourCC to
// the CENC protected form (encv/enca) and appends a sinf box
// referencing the original format, per ISO 23001-7.
func wrapEncryptedSampleEntry(entry []byte, t TrackConfig) []byte {
	if len(entry) < 8 {
		return entry
	}
	originalFourCC := string(entry[4:8])
	protectedFourCC := "encv"
	if t.Kind == TrackAudioAAC {
		protectedFourCC = "enca"
	}

	sinf := buildSinf(originalFourCC, t)
	body := append(append([]byte{}, entry[8:]...), sinf...)
	return box(protectedFourCC, body)
}

func buildSinf(originalFourCC string, t TrackConfig) []byte {
	frma := box("frma", []byte(originalFourCC))

	schmW := bitio.NewByteWriter()
	schmW.WriteBytes([]byte(t.SchemeType))
	schmW.WriteU32(0x00010000) // scheme_version 1.0
	schm := fullBox("schm", 0, 0, schmW.Bytes())

	tencW := bitio.NewByteWriter()
	tencW.WriteU8(0) // reserved
	if t.SchemeType == "cbcs" {
		tencW.WriteU8(1) // default_crypt_byte_block
		tencW.WriteU8(9) // default_skip_byte_block
	} else {
		tencW.WriteU8(0)
		tencW.WriteU8(0)
	}
	tencW.WriteU8(1) // default_isProtected
	tencW.WriteU8(8) // default_Per_Sample_IV_Size
	tencW.WriteBytes(t.DefaultKID[:])
	tenc := fullBox("tenc", 0, 0, tencW.Bytes())

	schi := box("schi", tenc)
	return box("sinf", concat(frma, schm, schi))
}

// BuildPSSH builds a pssh box carrying a DRM system's init data for
// the given key IDs. keyIDs may be empty for systems (like FairPlay) whose
// init data is opaque and supplied by the caller directly in data.
func BuildPSSH(systemID [16]byte, keyIDs [][16]byte, data []byte) []byte {
	w := bitio.NewByteWriter()
	w.WriteBytes(systemID[:])
	version := uint8(0)
	if len(keyIDs) > 0 {
		version = 1
	}
	if version == 1 {
		w.WriteU32(uint32(len(keyIDs)))
		for _, kid := range keyIDs {
			w.WriteBytes(kid[:])
		}
	}
	w.WriteU32(uint32(len(data)))
	w.WriteBytes(data)
	return fullBox("pssh", version, 0, w.Bytes())
}

// BuildSaizSaio builds the saiz/saio pair describing per-sample
// auxiliary information (IV + subsample ranges) sizes and offsets for
// SAMPLE-AES/SAMPLE-AES-CTR media fragments, per ISO 23001-7 §7.
func BuildSaizSaio(sampleInfoSizes []uint8, auxInfoOffset uint64) (saiz, saio []byte) {
	sw := bitio.NewByteWriter()
	sw.WriteU8(0) // default_sample_info_size (0 = variable, use table)
	sw.WriteU32(uint32(len(sampleInfoSizes)))
	for _, s := range sampleInfoSizes {
		sw.WriteU8(s)
	}
	saiz = fullBox("saiz", 0, 0, sw.Bytes())

	ow := bitio.NewByteWriter()
	ow.WriteU32(1) // entry_count
	ow.WriteU32(uint32(auxInfoOffset))
	saio = fullBox("saio", 0, 0, ow.Bytes())
	return saiz, saio
}
