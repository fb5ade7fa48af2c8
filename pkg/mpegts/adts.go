package mpegts

import "github.com/atelier-socle/hlskit/pkg/herr"

// AAC sampling frequency table index, per ISO/IEC 13818-7 Table 35.
var adtsSampleRates = []int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

func sampleRateIndex(rate int) (int, error) {
	for i, r := range adtsSampleRates {
		if r == rate {
			return i, nil
		}
	}
	return 0, herr.New(herr.ErrCodeSegmentationError, "mpegts: unsupported AAC sample rate")
}

// WrapADTS prepends a 7-byte ADTS header to a raw AAC frame so it can
// be carried as an MPEG-TS PES payload. profile is the MPEG-4 audio
// object type minus one (1 for AAC-LC, whose object type is 2).
func WrapADTS(frame []byte, profile, sampleRate, channels int) ([]byte, error) {
	freqIdx, err := sampleRateIndex(sampleRate)
	if err != nil {
		return nil, err
	}

	frameLength := len(frame) + 7
	header := make([]byte, 7)

	header[0] = 0xFF
	header[1] = 0xF1 // MPEG-4, no CRC

	header[2] = byte(profile<<6) | byte(freqIdx<<2) | byte((channels>>2)&0x01)
	header[3] = byte((channels&0x03)<<6) | byte((frameLength>>11)&0x03)
	header[4] = byte((frameLength >> 3) & 0xFF)
	header[5] = byte((frameLength&0x07)<<5) | 0x1F
	header[6] = 0xFC

	out := make([]byte, 0, frameLength)
	out = append(out, header...)
	out = append(out, frame...)
	return out, nil
}
