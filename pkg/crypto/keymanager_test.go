package crypto

import "testing"

func TestKeyManager_GenerateKeyFormatsURI(t *testing.T) {
	km := NewKeyManager("https://keys.example.com/{key_id}.bin", KeyRotationNone, 0, 0)
	key, err := km.GenerateKey("abc123")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if key.URI != "https://keys.example.com/abc123.bin" {
		t.Fatalf("URI = %q", key.URI)
	}
	if key.Bytes == ([16]byte{}) {
		t.Fatal("key bytes were not populated")
	}
}

func TestKeyManager_CurrentKeyGeneratesOnDemand(t *testing.T) {
	km := NewKeyManager("https://keys.example.com/{key_id}", KeyRotationNone, 0, 0)
	key, err := km.CurrentKey()
	if err != nil {
		t.Fatalf("current key: %v", err)
	}
	if key.ID == "" {
		t.Fatal("expected an auto-generated key ID")
	}
	again, err := km.CurrentKey()
	if err != nil {
		t.Fatalf("current key (2nd): %v", err)
	}
	if again.ID != key.ID {
		t.Fatalf("CurrentKey should be stable across calls: %q != %q", again.ID, key.ID)
	}
}

func TestKeyManager_RotateKeyFiresCallback(t *testing.T) {
	km := NewKeyManager("https://keys.example.com/{key_id}", KeyRotationNone, 0, 0)
	if _, err := km.GenerateKey("key-0"); err != nil {
		t.Fatalf("seed key: %v", err)
	}

	var oldSeen, newSeen string
	km.SetRotationCallback(func(oldID, newID string) {
		oldSeen, newSeen = oldID, newID
	})

	if _, err := km.RotateKey("key-1"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if oldSeen != "key-0" || newSeen != "key-1" {
		t.Fatalf("callback saw (%q, %q), want (key-0, key-1)", oldSeen, newSeen)
	}

	current, err := km.CurrentKey()
	if err != nil {
		t.Fatalf("current key: %v", err)
	}
	if current.ID != "key-1" {
		t.Fatalf("current key ID = %q, want key-1", current.ID)
	}
}

func TestKeyManager_NotifySegmentComplete_RotatesEveryNSegments(t *testing.T) {
	km := NewKeyManager("https://keys.example.com/{key_id}", KeyRotationEveryNSegments, 3, 0)
	if _, err := km.GenerateKey("key-0"); err != nil {
		t.Fatalf("seed key: %v", err)
	}

	rotations := 0
	km.SetRotationCallback(func(string, string) { rotations++ })

	for i := 0; i < 5; i++ {
		if _, err := km.NotifySegmentComplete(); err != nil {
			t.Fatalf("notify segment %d: %v", i, err)
		}
	}
	if rotations != 1 {
		t.Fatalf("got %d rotations after 5 segments with N=3, want 1", rotations)
	}
}

func TestKeyManager_GetKey_UnknownIDErrors(t *testing.T) {
	km := NewKeyManager("https://keys.example.com/{key_id}", KeyRotationNone, 0, 0)
	if _, err := km.GetKey("does-not-exist"); err == nil {
		t.Fatal("expected an error for an unknown key ID")
	}
}

func TestKeyManager_Statistics(t *testing.T) {
	km := NewKeyManager("https://keys.example.com/{key_id}", KeyRotationNone, 0, 0)
	if _, err := km.GenerateKey("a"); err != nil {
		t.Fatalf("generate a: %v", err)
	}
	if _, err := km.GenerateKey("b"); err != nil {
		t.Fatalf("generate b: %v", err)
	}
	stats := km.Statistics()
	if stats.TotalKeys != 2 {
		t.Fatalf("TotalKeys = %d, want 2", stats.TotalKeys)
	}
	if stats.CurrentKeyID != "a" {
		t.Fatalf("CurrentKeyID = %q, want a (first generated)", stats.CurrentKeyID)
	}
}
