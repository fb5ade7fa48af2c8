// Package mpegts implements the MPEG-2 Transport Stream muxer used by
// the MPEG-TS segmentation path, adapted from the teacher's
// pkg/streaming/hls TSWriter: PAT/PMT section generation, PES
// packetization, CRC32, PCR cadence and per-PID continuity counters,
// kept byte-for-byte compatible with the teacher's manual bit-packing
// idiom.
package mpegts

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

const (
	// PacketSize is the fixed MPEG-TS packet size.
	PacketSize = 188

	syncByte = 0x47

	PIDPAT = 0x0000
	PIDPMT = 0x1000
	PIDPCR = PIDVideo

	PIDVideo = 0x0100
	PIDAudio = 0x0101

	StreamTypeH264 = 0x1B
	StreamTypeH265 = 0x24
	StreamTypeAAC  = 0x0F

	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

// Writer mux's H.264/H.265 Annex-B access units and ADTS audio frames
// into an MPEG-TS byte stream.
type Writer struct {
	mu                sync.Mutex
	continuityCounter map[uint16]byte
	pcrBase           uint64
	packetCount       uint64
	videoStreamType   byte
}

// NewWriter creates a writer for the given video stream type
// (StreamTypeH264 or StreamTypeH265).
func NewWriter(videoStreamType byte) *Writer {
	return &Writer{
		continuityCounter: make(map[uint16]byte),
		videoStreamType:   videoStreamType,
	}
}

// WritePacket builds one 188-byte TS packet carrying payload for pid.
func (w *Writer) WritePacket(pid uint16, payload []byte, hasPCR, hasPayload, payloadStart bool) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()

	packet := make([]byte, PacketSize)
	pos := 0

	packet[pos] = syncByte
	pos++

	pidField := uint16(0)
	if payloadStart {
		pidField |= 0x4000
	}
	pidField |= pid & 0x1FFF
	binary.BigEndian.PutUint16(packet[pos:], pidField)
	pos += 2

	var adaptationControl byte
	switch {
	case hasPCR:
		adaptationControl = 0x30
	case hasPayload:
		adaptationControl = 0x10
	default:
		adaptationControl = 0x20
	}

	cc := w.continuityCounter[pid]
	packet[pos] = (adaptationControl << 4) | (cc & 0x0F)
	pos++
	w.continuityCounter[pid] = (cc + 1) & 0x0F

	if hasPCR {
		packet[pos] = 7
		pos++
		packet[pos] = 0x10
		pos++

		pcrBase := w.pcrBase
		pcrExt := uint16(0)
		packet[pos] = byte(pcrBase >> 25)
		packet[pos+1] = byte(pcrBase >> 17)
		packet[pos+2] = byte(pcrBase >> 9)
		packet[pos+3] = byte(pcrBase >> 1)
		packet[pos+4] = byte(((pcrBase & 0x01) << 7) | 0x7E | uint64((pcrExt>>8)&0x01))
		packet[pos+5] = byte(pcrExt)
		pos += 6

		w.pcrBase += 90000 / 25
	}

	if hasPayload && len(payload) > 0 {
		payloadSize := PacketSize - pos
		if len(payload) < payloadSize {
			copy(packet[pos:], payload)
			for i := pos + len(payload); i < PacketSize; i++ {
				packet[i] = 0xFF
			}
		} else {
			copy(packet[pos:], payload[:payloadSize])
		}
	} else {
		for i := pos; i < PacketSize; i++ {
			packet[i] = 0xFF
		}
	}

	w.packetCount++
	return packet
}

// WritePAT emits a Program Association Table packet.
func (w *Writer) WritePAT() []byte {
	section := &bytes.Buffer{}
	section.WriteByte(tableIDPAT)
	header := make([]byte, 2)
	binary.BigEndian.PutUint16(header, 0xB000|13)
	section.Write(header)
	ts := make([]byte, 2)
	binary.BigEndian.PutUint16(ts, 0x0001)
	section.Write(ts)
	section.WriteByte(0xC1)
	section.WriteByte(0x00)
	section.WriteByte(0x00)
	prog := make([]byte, 2)
	binary.BigEndian.PutUint16(prog, 0x0001)
	section.Write(prog)
	pmtPID := make([]byte, 2)
	binary.BigEndian.PutUint16(pmtPID, 0xE000|PIDPMT)
	section.Write(pmtPID)

	crc := crc32MPEG(section.Bytes())
	crcBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBuf, crc)

	payload := append([]byte{0x00}, section.Bytes()...)
	payload = append(payload, crcBuf...)
	return w.WritePacket(PIDPAT, payload, false, true, true)
}

// WritePMT emits a Program Map Table packet for the given elementary
// streams.
func (w *Writer) WritePMT(hasVideo, hasAudio bool) []byte {
	section := &bytes.Buffer{}
	section.WriteByte(tableIDPMT)

	sectionLength := 13
	if hasVideo {
		sectionLength += 5
	}
	if hasAudio {
		sectionLength += 5
	}
	header := make([]byte, 2)
	binary.BigEndian.PutUint16(header, 0xB000|uint16(sectionLength))
	section.Write(header)

	prog := make([]byte, 2)
	binary.BigEndian.PutUint16(prog, 0x0001)
	section.Write(prog)
	section.WriteByte(0xC1)
	section.WriteByte(0x00)
	section.WriteByte(0x00)

	pcrPID := make([]byte, 2)
	binary.BigEndian.PutUint16(pcrPID, 0xE000|PIDPCR)
	section.Write(pcrPID)

	progInfo := make([]byte, 2)
	binary.BigEndian.PutUint16(progInfo, 0xF000)
	section.Write(progInfo)

	if hasVideo {
		section.WriteByte(w.videoStreamType)
		vPID := make([]byte, 2)
		binary.BigEndian.PutUint16(vPID, 0xE000|PIDVideo)
		section.Write(vPID)
		esInfo := make([]byte, 2)
		binary.BigEndian.PutUint16(esInfo, 0xF000)
		section.Write(esInfo)
	}
	if hasAudio {
		section.WriteByte(StreamTypeAAC)
		aPID := make([]byte, 2)
		binary.BigEndian.PutUint16(aPID, 0xE000|PIDAudio)
		section.Write(aPID)
		esInfo := make([]byte, 2)
		binary.BigEndian.PutUint16(esInfo, 0xF000)
		section.Write(esInfo)
	}

	crc := crc32MPEG(section.Bytes())
	crcBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBuf, crc)

	payload := append([]byte{0x00}, section.Bytes()...)
	payload = append(payload, crcBuf...)
	return w.WritePacket(PIDPMT, payload, false, true, true)
}

// WritePES packetizes data as a PES stream and fragments it across as
// many TS packets as required.
func (w *Writer) WritePES(pid uint16, data []byte, pts, dts uint64, isVideo bool) [][]byte {
	header := &bytes.Buffer{}
	header.Write([]byte{0x00, 0x00, 0x01})
	if isVideo {
		header.WriteByte(0xE0)
	} else {
		header.WriteByte(0xC0)
	}

	if isVideo {
		header.Write([]byte{0x00, 0x00})
	} else {
		length := make([]byte, 2)
		binary.BigEndian.PutUint16(length, uint16(len(data)+8))
		header.Write(length)
	}

	header.WriteByte(0x80)

	ptsFlags := byte(0x80)
	if isVideo && dts != pts {
		ptsFlags = 0xC0
	}
	header.WriteByte(ptsFlags)

	headerDataLength := byte(5)
	if ptsFlags == 0xC0 {
		headerDataLength = 10
	}
	header.WriteByte(headerDataLength)

	writeTimestamp(header, pts, ptsFlags>>6)
	if ptsFlags == 0xC0 {
		writeTimestamp(header, dts, 0x01)
	}

	pesPacket := append(header.Bytes(), data...)

	var packets [][]byte
	offset := 0
	first := true
	for offset < len(pesPacket) {
		if first {
			packet := w.WritePacket(pid, pesPacket[offset:], isVideo, true, true)
			packets = append(packets, packet)
			headerSize := 4
			if isVideo {
				headerSize += 8
			}
			payloadSize := PacketSize - headerSize
			if len(pesPacket)-offset < payloadSize {
				offset = len(pesPacket)
			} else {
				offset += payloadSize
			}
			first = false
			continue
		}
		packet := w.WritePacket(pid, pesPacket[offset:], false, true, false)
		packets = append(packets, packet)
		payloadSize := PacketSize - 4
		if len(pesPacket)-offset < payloadSize {
			offset = len(pesPacket)
		} else {
			offset += payloadSize
		}
	}
	return packets
}

func writeTimestamp(buf *bytes.Buffer, timestamp uint64, marker byte) {
	buf.WriteByte((marker << 4) | byte((timestamp>>29)&0x0E) | 0x01)
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16((timestamp>>14)&0xFFFE)|0x01)
	buf.Write(b)
	b2 := make([]byte, 2)
	binary.BigEndian.PutUint16(b2, uint16((timestamp<<1)&0xFFFE)|0x01)
	buf.Write(b2)
}

func crc32MPEG(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		for i := 0; i < 8; i++ {
			if ((crc >> 31) ^ uint32((b>>uint(7-i))&0x01)) != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc = crc << 1
			}
		}
	}
	return crc
}

// MuxSegment writes PAT, PMT, and the video/audio elementary streams
// for one segment, returning the raw TS byte stream.
func MuxSegment(videoStreamType byte, videoAnnexB, audioADTS []byte, basePTS uint64) ([]byte, error) {
	if len(videoAnnexB) == 0 && len(audioADTS) == 0 {
		return nil, herr.NewSegmentationError("mpegts: segment has no elementary stream data", nil)
	}

	w := NewWriter(videoStreamType)
	buf := &bytes.Buffer{}
	buf.Write(w.WritePAT())
	buf.Write(w.WritePMT(len(videoAnnexB) > 0, len(audioADTS) > 0))

	if len(videoAnnexB) > 0 {
		for _, pkt := range w.WritePES(PIDVideo, videoAnnexB, basePTS, basePTS, true) {
			buf.Write(pkt)
		}
	}
	if len(audioADTS) > 0 {
		for _, pkt := range w.WritePES(PIDAudio, audioADTS, basePTS, basePTS, false) {
			buf.Write(pkt)
		}
	}
	return buf.Bytes(), nil
}
