package drm

import (
	"testing"
	"time"

	"github.com/atelier-socle/hlskit/pkg/crypto"
)

func TestKeyRotationPolicy_ToCryptoPolicy(t *testing.T) {
	cases := []struct {
		name       string
		policy     KeyRotationPolicy
		wantPolicy crypto.KeyRotationPolicy
		wantN      int
		wantEvery  time.Duration
	}{
		{"every segment", EverySegment(), crypto.KeyRotationEveryNSegments, 1, 0},
		{"every n segments", EveryNSegments(10), crypto.KeyRotationEveryNSegments, 10, 0},
		{"interval", Interval(30 * time.Second), crypto.KeyRotationInterval, 0, 30 * time.Second},
		{"manual", Manual(), crypto.KeyRotationNone, 0, 0},
		{"none", None(), crypto.KeyRotationNone, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cp, n, every := c.policy.toCryptoPolicy()
			if cp != c.wantPolicy || n != c.wantN || every != c.wantEvery {
				t.Fatalf("got (%v, %d, %v), want (%v, %d, %v)", cp, n, every, c.wantPolicy, c.wantN, c.wantEvery)
			}
		})
	}
}

func TestSessionKeyManager_GenerateAndRotate(t *testing.T) {
	mgr := NewSessionKeyManager("https://keys.example.com/{key_id}", EveryNSegments(2))
	key, err := mgr.GenerateKey("k0")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if key.URI != "https://keys.example.com/k0" {
		t.Fatalf("URI = %q", key.URI)
	}

	rotated := false
	mgr.SetRotationCallback(func(string, string) { rotated = true })
	if _, err := mgr.NotifySegmentComplete(); err != nil {
		t.Fatalf("notify 1: %v", err)
	}
	if _, err := mgr.NotifySegmentComplete(); err != nil {
		t.Fatalf("notify 2: %v", err)
	}
	if !rotated {
		t.Fatal("expected a rotation after 2 segments under EveryNSegments(2)")
	}
}

func TestDRMSystem_UUIDsAreDistinct(t *testing.T) {
	systems := []DRMSystem{SystemWidevine, SystemPlayReady, SystemFairPlay}
	seen := map[[16]byte]bool{}
	for _, s := range systems {
		u := s.uuid()
		if seen[u] {
			t.Fatalf("duplicate system UUID for %v: %x", s, u)
		}
		seen[u] = true
	}
}

func TestSessionKeyFanout_PSSHBoxesOnePerSystem(t *testing.T) {
	fanout := NewSessionKeyFanout(SystemWidevine, SystemPlayReady)
	var keyID [16]byte
	copy(keyID[:], []byte("0123456789abcdef"))

	boxes := fanout.PSSHBoxes(keyID, map[DRMSystem][]byte{
		SystemWidevine: []byte("widevine-data"),
	})
	if len(boxes) != 2 {
		t.Fatalf("got %d pssh boxes, want 2", len(boxes))
	}
	for i, b := range boxes {
		if len(b) == 0 {
			t.Fatalf("pssh box %d is empty", i)
		}
	}
}
