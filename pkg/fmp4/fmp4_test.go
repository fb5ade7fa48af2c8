package fmp4

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBox_SizePrefixIsCorrect(t *testing.T) {
	b := box("test", []byte("payload"))
	size := binary.BigEndian.Uint32(b[0:4])
	if int(size) != len(b) {
		t.Fatalf("box size field = %d, want %d", size, len(b))
	}
	if string(b[4:8]) != "test" {
		t.Fatalf("fourCC = %q, want test", b[4:8])
	}
	if !bytes.Equal(b[8:], []byte("payload")) {
		t.Fatalf("payload mismatch: %q", b[8:])
	}
}

func TestFullBox_PrependsVersionAndFlags(t *testing.T) {
	b := fullBox("tkhd", 1, 0x000007, []byte("rest"))
	body := b[8:]
	if body[0] != 1 {
		t.Fatalf("version = %d, want 1", body[0])
	}
	flags := uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
	if flags != 0x000007 {
		t.Fatalf("flags = %#x, want %#x", flags, 0x000007)
	}
}

func TestBuildInitSegment_StartsWithFtyp(t *testing.T) {
	tracks := []TrackConfig{
		{TrackID: 1, Kind: TrackVideoH264, Timescale: 90000, Width: 1920, Height: 1080, CodecConfig: []byte{0x01, 0x64, 0x00, 0x1f}},
	}
	init := BuildInitSegment(tracks)
	if string(init[4:8]) != "ftyp" {
		t.Fatalf("first box = %q, want ftyp", init[4:8])
	}

	ftypSize := binary.BigEndian.Uint32(init[0:4])
	moovStart := int(ftypSize)
	if string(init[moovStart+4:moovStart+8]) != "moov" {
		t.Fatalf("second box = %q, want moov", init[moovStart+4:moovStart+8])
	}
}

func TestBuildInitSegment_AudioTrackProducesMp4aSampleEntry(t *testing.T) {
	tracks := []TrackConfig{
		{TrackID: 2, Kind: TrackAudioAAC, Timescale: 48000, SampleRate: 48000, Channels: 2, CodecConfig: []byte{0x11, 0x90}},
	}
	init := BuildInitSegment(tracks)
	if !bytes.Contains(init, []byte("mp4a")) {
		t.Fatal("expected an mp4a sample entry in the init segment")
	}
	if !bytes.Contains(init, []byte("esds")) {
		t.Fatal("expected an esds box in the audio sample entry")
	}
}

func TestBuildMediaFragment_TrunDataOffsetPointsIntoMdat(t *testing.T) {
	samples := []Sample{
		{Duration: 3000, Size: 4, Flags: SyncSampleFlags(true), Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		{Duration: 3000, Size: 4, Flags: SyncSampleFlags(false), Data: []byte{0xCA, 0xFE, 0xBA, 0xBE}},
	}
	frag := BuildMediaFragment(1, 7, 0, samples)

	if string(frag[4:8]) != "styp" {
		t.Fatalf("first box = %q, want styp", frag[4:8])
	}

	stypSize := binary.BigEndian.Uint32(frag[0:4])
	moofStart := int(stypSize)
	if string(frag[moofStart+4:moofStart+8]) != "moof" {
		t.Fatalf("second box = %q, want moof", frag[moofStart+4:moofStart+8])
	}
	moofSize := binary.BigEndian.Uint32(frag[moofStart : moofStart+4])
	mdatStart := moofStart + int(moofSize)
	if string(frag[mdatStart+4:mdatStart+8]) != "mdat" {
		t.Fatalf("third box = %q, want mdat", frag[mdatStart+4:mdatStart+8])
	}

	// the trun's data_offset is relative to the start of moof; verify it
	// lands exactly at the first sample's byte within mdat.
	firstSampleData := frag[mdatStart+8 : mdatStart+8+4]
	if !bytes.Equal(firstSampleData, samples[0].Data) {
		t.Fatalf("mdat does not start with the first sample's data: got %x", firstSampleData)
	}
	idx := bytes.Index(frag[moofStart:mdatStart], []byte("trun"))
	if idx < 0 {
		t.Fatal("no trun box in moof")
	}
	off := binary.BigEndian.Uint32(frag[moofStart+idx+12 : moofStart+idx+16])
	if moofStart+int(off) != mdatStart+8 {
		t.Fatalf("trun data_offset = %d, want %d", off, mdatStart+8-moofStart)
	}
}

func TestSyncSampleFlags_KeyframeVsNonSync(t *testing.T) {
	if SyncSampleFlags(true) == SyncSampleFlags(false) {
		t.Fatal("keyframe and non-keyframe sample flags must differ")
	}
}

func TestBuildInitSegment_EncryptedTrackWrapsSampleEntry(t *testing.T) {
	tracks := []TrackConfig{
		{
			TrackID: 1, Kind: TrackVideoH264, Timescale: 90000, Width: 1280, Height: 720,
			CodecConfig: []byte{0x01, 0x64, 0x00, 0x1f},
			Encrypted:   true, SchemeType: "cbcs",
			DefaultKID: [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		},
	}
	init := BuildInitSegment(tracks)
	if !bytes.Contains(init, []byte("encv")) {
		t.Fatal("expected the sample entry to be wrapped as encv")
	}
	if !bytes.Contains(init, []byte("sinf")) || !bytes.Contains(init, []byte("schm")) || !bytes.Contains(init, []byte("tenc")) {
		t.Fatal("expected sinf/schm/tenc boxes for the encrypted track")
	}
}

func TestBuildPSSH_VersionZeroWithoutKeyIDs(t *testing.T) {
	pssh := BuildPSSH(SystemIDWidevine, nil, []byte("opaque-init-data"))
	body := pssh[8:]
	if body[0] != 0 {
		t.Fatalf("version = %d, want 0 (no key IDs)", body[0])
	}
	if !bytes.Contains(pssh, []byte("opaque-init-data")) {
		t.Fatal("pssh does not carry the init data")
	}
}

func TestBuildPSSH_VersionOneWithKeyIDs(t *testing.T) {
	kid := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	pssh := BuildPSSH(SystemIDPlayReady, [][16]byte{kid}, nil)
	body := pssh[8:]
	if body[0] != 1 {
		t.Fatalf("version = %d, want 1 (key IDs present)", body[0])
	}
	kidCount := binary.BigEndian.Uint32(body[20:24])
	if kidCount != 1 {
		t.Fatalf("kid count = %d, want 1", kidCount)
	}
}

func TestBuildSaizSaio_EntryCountAndOffset(t *testing.T) {
	saiz, saio := BuildSaizSaio([]uint8{16, 16, 24}, 512)
	if !bytes.Contains(saiz, []byte("saiz")) {
		t.Fatal("missing saiz fourCC")
	}
	entryCount := binary.BigEndian.Uint32(saiz[13:17])
	if entryCount != 3 {
		t.Fatalf("saiz entry count = %d, want 3", entryCount)
	}

	offset := binary.BigEndian.Uint32(saio[16:20])
	if offset != 512 {
		t.Fatalf("saio offset = %d, want 512", offset)
	}
}
