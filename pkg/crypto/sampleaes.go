package crypto

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/atelier-socle/hlskit/pkg/herr"
	"github.com/atelier-socle/hlskit/pkg/nal"
)

// SubsampleRange describes one clear/encrypted byte range within a
// sample, for saio/saiz bookkeeping.
type SubsampleRange struct {
	ClearBytes     uint16
	EncryptedBytes uint32
}

// EncryptNALSampleAES encrypts one NAL-structured sample (an access
// unit) under METHOD=SAMPLE-AES: each NAL's payload is encrypted with
// AES-128-CBC leaving the last 0-15 bytes (a partial block) in the
// clear, per RFC 8216 §5.3. VCL NAL headers are left unencrypted.
func EncryptNALSampleAES(codec nal.Codec, key, iv [16]byte, sample []byte) ([]byte, []SubsampleRange, error) {
	units, _, err := nal.SplitNALUnits(codec, sample)
	if err != nil {
		return nil, nil, herr.Wrap(herr.ErrCodeEncryptionError, "crypto: split NAL units", err)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, nil, herr.Wrap(herr.ErrCodeEncryptionError, "crypto: new cipher", err)
	}

	out := make([]byte, 0, len(sample))
	var ranges []SubsampleRange
	cursor := 0

	for _, u := range units {
		if u.Offset > cursor {
			out = append(out, sample[cursor:u.Offset]...)
		}
		payload := sample[u.Offset : u.Offset+u.Length]
		clearHeader := payload[:1]
		body := payload[1:]

		encryptLen := (len(body) / aes.BlockSize) * aes.BlockSize
		clearTail := body[encryptLen:]
		toEncrypt := body[:encryptLen]

		encrypted := make([]byte, len(toEncrypt))
		if len(toEncrypt) > 0 {
			mode := cipher.NewCBCEncrypter(block, iv[:])
			mode.CryptBlocks(encrypted, toEncrypt)
		}

		out = append(out, clearHeader...)
		out = append(out, encrypted...)
		out = append(out, clearTail...)

		ranges = append(ranges, SubsampleRange{
			ClearBytes:     uint16(1 + len(clearTail)),
			EncryptedBytes: uint32(len(encrypted)),
		})
		cursor = u.Offset + u.Length
	}
	if cursor < len(sample) {
		out = append(out, sample[cursor:]...)
	}
	return out, ranges, nil
}

// EncryptSampleAESCTR encrypts one sample under METHOD=SAMPLE-AES-CTR
// using the CBCS 1:9 pattern (one encrypted block followed by nine
// clear blocks), as the DRM systems that share SAMPLE-AES-CTR expect.
// The implementer's chosen rule for a caller-omitted IV: when iv is
// the zero value, derive it as DefaultIV(sampleIndex) — documented in
// DESIGN.md since RFC 8216 leaves this choice to the implementation.
func EncryptSampleAESCTR(key [16]byte, iv [16]byte, sampleIndex uint64, data []byte) ([]byte, error) {
	if iv == ([16]byte{}) {
		iv = DefaultIV(sampleIndex)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, herr.Wrap(herr.ErrCodeEncryptionError, "crypto: new cipher", err)
	}

	const cryptBlocks = 1
	const skipBlocks = 9
	const pattern = (cryptBlocks + skipBlocks) * aes.BlockSize

	out := make([]byte, len(data))
	copy(out, data)

	for offset := 0; offset+aes.BlockSize <= len(data); offset += pattern {
		stream := cipher.NewCTR(block, iv[:])
		end := offset + aes.BlockSize
		stream.XORKeyStream(out[offset:end], data[offset:end])
	}
	return out, nil
}
