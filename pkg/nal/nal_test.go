package nal

import "testing"

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, n...)
	}
	return out
}

func TestSplitNALUnits_H264(t *testing.T) {
	sps := []byte{0x67, 0xAA}
	pps := []byte{0x68, 0xBB}
	idr := []byte{0x65, 0xCC, 0xDD}
	buf := annexB(sps, pps, idr)

	units, consumed, err := SplitNALUnits(CodecH264, buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != len(buf) {
		t.Fatalf("consumed = %d, want %d", consumed, len(buf))
	}
	if len(units) != 3 {
		t.Fatalf("got %d units, want 3", len(units))
	}
	if units[0].Type != H264NALSPS || units[1].Type != H264NALPPS || units[2].Type != H264NALSliceIDR {
		t.Fatalf("unexpected NAL types: %+v", units)
	}
}

func TestAssembleAccessUnits_ClosesOnNextVCL(t *testing.T) {
	// Two IDR slices back to back must become two access units: the
	// boundary is "a VCL NAL followed by anything new closes the AU".
	idr1 := []byte{0x65, 0x01}
	idr2 := []byte{0x65, 0x02}
	buf := annexB(idr1, idr2)

	units, _, err := SplitNALUnits(CodecH264, buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	aus := AssembleAccessUnits(CodecH264, buf, units)
	if len(aus) != 2 {
		t.Fatalf("got %d access units, want 2", len(aus))
	}
	for _, au := range aus {
		if !au.IsKeyframe {
			t.Errorf("access unit %+v should be a keyframe", au)
		}
	}
}

func TestAssembleAccessUnits_NonVCLPrefixStaysInSameAU(t *testing.T) {
	sps := []byte{0x67, 0xAA}
	pps := []byte{0x68, 0xBB}
	idr := []byte{0x65, 0xCC}
	buf := annexB(sps, pps, idr)

	units, _, err := SplitNALUnits(CodecH264, buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	aus := AssembleAccessUnits(CodecH264, buf, units)
	if len(aus) != 1 {
		t.Fatalf("got %d access units, want 1 (sps+pps+idr form one AU)", len(aus))
	}
	if len(aus[0].NALTypes) != 3 {
		t.Fatalf("access unit should carry all 3 NAL types, got %v", aus[0].NALTypes)
	}
}

func TestKeyframeDetection_H265(t *testing.T) {
	// H.265 IDR_W_RADL = type 19, encoded in bits [1:7] of the first byte.
	idr := []byte{19 << 1, 0x01, 0xAA}
	buf := annexB(idr)
	units, _, err := SplitNALUnits(CodecH265, buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	aus := AssembleAccessUnits(CodecH265, buf, units)
	if len(aus) != 1 || !aus[0].IsKeyframe {
		t.Fatalf("expected a single keyframe access unit, got %+v", aus)
	}
}

func TestSplitNALUnits_TruncatedStream(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x01, 0x67, 0xAA}
	units, consumed, err := SplitNALUnits(CodecH264, buf)
	if err != nil {
		t.Fatalf("unexpected error on a single trailing NAL: %v", err)
	}
	if len(units) != 1 || consumed != len(buf) {
		t.Fatalf("got units=%v consumed=%d", units, consumed)
	}
}
