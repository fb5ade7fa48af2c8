package mpegts

import (
	"bytes"
	"testing"
)

func TestWriteTSPacket_SyncByteAndLength(t *testing.T) {
	w := NewWriter(StreamTypeH264)
	pkt := w.WritePacket(PIDVideo, []byte("hello"), false, true, true)
	if len(pkt) != PacketSize {
		t.Fatalf("packet length = %d, want %d", len(pkt), PacketSize)
	}
	if pkt[0] != syncByte {
		t.Fatalf("sync byte = %#x, want %#x", pkt[0], syncByte)
	}
}

func TestWritePacket_ContinuityCounterIncrementsPerPID(t *testing.T) {
	w := NewWriter(StreamTypeH264)
	p1 := w.WritePacket(PIDVideo, []byte("a"), false, true, true)
	p2 := w.WritePacket(PIDVideo, []byte("b"), false, true, true)
	p3 := w.WritePacket(PIDAudio, []byte("c"), false, true, true)

	cc1 := p1[3] & 0x0F
	cc2 := p2[3] & 0x0F
	cc3 := p3[3] & 0x0F

	if cc2 != (cc1+1)&0x0F {
		t.Fatalf("video CC did not increment: %d -> %d", cc1, cc2)
	}
	if cc3 != 0 {
		t.Fatalf("audio PID's first packet should start at CC 0, got %d", cc3)
	}
}

func TestWritePAT_StartsWithPointerAndTableID(t *testing.T) {
	w := NewWriter(StreamTypeH264)
	pkt := w.WritePAT()
	if len(pkt) != PacketSize {
		t.Fatalf("PAT packet length = %d, want %d", len(pkt), PacketSize)
	}
	// payload begins right after the 4-byte TS header: pointer field (0x00)
	// then the PAT table ID (0x00).
	if pkt[4] != 0x00 || pkt[5] != tableIDPAT {
		t.Fatalf("unexpected PAT payload prefix: %x %x", pkt[4], pkt[5])
	}
}

func TestWritePMT_SectionLengthGrowsWithStreams(t *testing.T) {
	w := NewWriter(StreamTypeH264)
	videoOnly := w.WritePMT(true, false)
	both := NewWriter(StreamTypeH264).WritePMT(true, true)

	lenVideoOnly := int(videoOnly[6]&0x0F)<<8 | int(videoOnly[7])
	lenBoth := int(both[6]&0x0F)<<8 | int(both[7])
	if lenBoth != lenVideoOnly+5 {
		t.Fatalf("PMT section_length with audio = %d, want %d", lenBoth, lenVideoOnly+5)
	}
	if bytes.Equal(videoOnly, both) {
		t.Fatal("PMT with audio should differ from video-only PMT")
	}
}

func TestMuxSegment_RequiresAtLeastOneStream(t *testing.T) {
	if _, err := MuxSegment(StreamTypeH264, nil, nil, 0); err == nil {
		t.Fatal("expected an error when neither video nor audio is present")
	}
}

func TestMuxSegment_ProducesPacketAlignedOutput(t *testing.T) {
	video := bytes.Repeat([]byte{0x00, 0x00, 0x00, 0x01, 0x65, 0xAA}, 50)
	out, err := MuxSegment(StreamTypeH264, video, nil, 90000)
	if err != nil {
		t.Fatalf("mux: %v", err)
	}
	if len(out)%PacketSize != 0 {
		t.Fatalf("output length %d is not a multiple of %d", len(out), PacketSize)
	}
	if out[0] != syncByte {
		t.Fatalf("first byte = %#x, want sync byte", out[0])
	}
}

func TestWrapADTS_HeaderLengthAndSyncWord(t *testing.T) {
	frame := []byte{0xAA, 0xBB, 0xCC}
	out, err := WrapADTS(frame, 2, 44100, 2)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if len(out) != len(frame)+7 {
		t.Fatalf("output length = %d, want %d", len(out), len(frame)+7)
	}
	if out[0] != 0xFF || out[1]&0xF0 != 0xF0 {
		t.Fatalf("missing ADTS sync word: %x %x", out[0], out[1])
	}
	if !bytes.Equal(out[7:], frame) {
		t.Fatalf("frame payload was not preserved")
	}
}

func TestWrapADTS_RejectsUnsupportedSampleRate(t *testing.T) {
	if _, err := WrapADTS([]byte{0x01}, 2, 12345, 2); err == nil {
		t.Fatal("expected an error for an unsupported sample rate")
	}
}
