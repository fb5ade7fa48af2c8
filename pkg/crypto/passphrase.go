package crypto

import (
	"time"

	"golang.org/x/crypto/argon2"
)

// DeriveKeyFromPassphrase derives a 128-bit content key from an
// operator-supplied passphrase and salt, for deployments that want a
// reproducible static key instead of a randomly generated one (e.g.
// pre-provisioning a key with a DRM packager offline). Parameters
// mirror the teacher's own pkg/security/encryption.go passphrase
// hashing (argon2.IDKey, time=2, memory=64MiB, threads=4), narrowed
// from a 32-byte derived secret to AES-128's 16-byte key size.
func DeriveKeyFromPassphrase(passphrase string, salt []byte) [16]byte {
	derived := argon2.IDKey([]byte(passphrase), salt, 2, 64*1024, 4, 16)
	var key [16]byte
	copy(key[:], derived)
	return key
}

// GenerateKeyFromPassphrase mints a key deterministically from a
// passphrase/salt pair rather than crypto/rand, registering it under
// id the same way GenerateKey does.
func (km *KeyManager) GenerateKeyFromPassphrase(id, passphrase string, salt []byte) *Key {
	key := &Key{
		ID:        id,
		Bytes:     DeriveKeyFromPassphrase(passphrase, salt),
		URI:       formatKeyURI(km.uriTemplate, id),
		CreatedAt: time.Now(),
	}

	km.mu.Lock()
	km.keys[id] = key
	if km.currentKeyID == "" {
		km.currentKeyID = id
	}
	km.mu.Unlock()

	return key
}
