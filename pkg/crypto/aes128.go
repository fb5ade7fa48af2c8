package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

// DefaultIV derives the IV HLS uses when METHOD=AES-128 and the
// playlist omits an explicit IV attribute: the big-endian media
// sequence number, left-padded to 16 bytes, per RFC 8216 §5.2.
func DefaultIV(mediaSequenceNumber uint64) [16]byte {
	var iv [16]byte
	binary.BigEndian.PutUint64(iv[8:], mediaSequenceNumber)
	return iv
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, herr.NewPaddingFailure()
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, herr.NewPaddingFailure()
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, herr.NewPaddingFailure()
		}
	}
	return data[:len(data)-padLen], nil
}

// EncryptSegmentAES128 encrypts an entire segment with AES-128-CBC and
// PKCS#7 padding, per RFC 8216 §4.3.2.4 METHOD=AES-128.
func EncryptSegmentAES128(key [16]byte, iv [16]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, herr.Wrap(herr.ErrCodeEncryptionError, "crypto: new cipher", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv[:])
	mode.CryptBlocks(out, padded)
	return out, nil
}

// DecryptSegmentAES128 reverses EncryptSegmentAES128.
func DecryptSegmentAES128(key [16]byte, iv [16]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, herr.New(herr.ErrCodeEncryptionError, "crypto: ciphertext is not a multiple of the block size")
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, herr.Wrap(herr.ErrCodeEncryptionError, "crypto: new cipher", err)
	}
	out := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv[:])
	mode.CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}
