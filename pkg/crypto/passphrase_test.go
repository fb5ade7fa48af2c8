package crypto

import "testing"

func TestDeriveKeyFromPassphrase_DeterministicForSameInputs(t *testing.T) {
	salt := []byte("fixed-salt-value")
	a := DeriveKeyFromPassphrase("correct horse battery staple", salt)
	b := DeriveKeyFromPassphrase("correct horse battery staple", salt)
	if a != b {
		t.Fatalf("same passphrase+salt produced different keys: %x != %x", a, b)
	}
}

func TestDeriveKeyFromPassphrase_DifferentSaltDiffers(t *testing.T) {
	a := DeriveKeyFromPassphrase("correct horse battery staple", []byte("salt-one"))
	b := DeriveKeyFromPassphrase("correct horse battery staple", []byte("salt-two"))
	if a == b {
		t.Fatal("different salts produced the same key")
	}
}

func TestDeriveKeyFromPassphrase_DifferentPassphraseDiffers(t *testing.T) {
	salt := []byte("fixed-salt-value")
	a := DeriveKeyFromPassphrase("passphrase-one", salt)
	b := DeriveKeyFromPassphrase("passphrase-two", salt)
	if a == b {
		t.Fatal("different passphrases produced the same key")
	}
}

func TestKeyManager_GenerateKeyFromPassphrase_RegistersAndFormatsURI(t *testing.T) {
	km := NewKeyManager("https://keys.example.com/{key_id}.bin", KeyRotationNone, 0, 0)
	salt := []byte("static-salt")

	key := km.GenerateKeyFromPassphrase("key-0", "operator passphrase", salt)
	if key.URI != "https://keys.example.com/key-0.bin" {
		t.Fatalf("URI = %q", key.URI)
	}
	if key.Bytes != DeriveKeyFromPassphrase("operator passphrase", salt) {
		t.Fatal("registered key bytes do not match the derived key")
	}

	got, err := km.GetKey("key-0")
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if got != key {
		t.Fatal("GetKey returned a different key than the one registered")
	}

	current, err := km.CurrentKey()
	if err != nil {
		t.Fatalf("current key: %v", err)
	}
	if current.ID != "key-0" {
		t.Fatalf("CurrentKey = %q, want key-0 (first key becomes current)", current.ID)
	}
}

func TestKeyManager_GenerateKeyFromPassphrase_SameInputsReproduceSameKey(t *testing.T) {
	salt := []byte("reproducible-salt")
	km1 := NewKeyManager("https://keys.example.com/{key_id}", KeyRotationNone, 0, 0)
	km2 := NewKeyManager("https://keys.example.com/{key_id}", KeyRotationNone, 0, 0)

	k1 := km1.GenerateKeyFromPassphrase("key-0", "shared-secret", salt)
	k2 := km2.GenerateKeyFromPassphrase("key-0", "shared-secret", salt)

	if k1.Bytes != k2.Bytes {
		t.Fatal("two independently provisioned managers derived different keys from the same passphrase+salt")
	}
}
