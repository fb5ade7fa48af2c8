package rtmp

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

// maxMessageLength bounds a single RTMP message body. A push client only
// ever expects small command/data replies on this reader (the media
// channels are outbound-only), so anything claiming to be larger is
// treated as a malformed or hostile ingest peer rather than trusted.
const maxMessageLength = 1 * 1024 * 1024

// ChunkReader reads RTMP chunks off the ingest connection, reassembling
// command replies (_result/_error/onStatus) that arrive interleaved with
// whatever control messages the server sends.
type ChunkReader struct {
	r         *bufio.Reader
	chunkSize uint32
	streams   map[uint32]*ChunkStream
}

// ChunkStream tracks in-progress reassembly state for one chunk stream ID.
type ChunkStream struct {
	header       *ChunkHeader
	receivedSize uint32
	message      *Message
}

// NewChunkReader creates a new chunk reader over r.
func NewChunkReader(r io.Reader) *ChunkReader {
	return &ChunkReader{
		r:         bufio.NewReader(r),
		chunkSize: DefaultChunkSize,
		streams:   make(map[uint32]*ChunkStream),
	}
}

// SetChunkSize sets the read chunk size, applied after the peer sends a
// Set Chunk Size protocol control message.
func (cr *ChunkReader) SetChunkSize(size uint32) {
	cr.chunkSize = size
}

// ReadMessage reads and reassembles one complete RTMP message.
func (cr *ChunkReader) ReadMessage() (*Message, error) {
	for {
		csID, format, err := cr.readBasicHeader()
		if err != nil {
			return nil, err
		}

		stream, exists := cr.streams[csID]
		if !exists {
			stream = &ChunkStream{
				header: &ChunkHeader{
					ChunkStreamID: csID,
				},
			}
			cr.streams[csID] = stream
		}

		if err := cr.readMessageHeader(stream, format); err != nil {
			return nil, err
		}
		if stream.header.MessageLength > maxMessageLength {
			return nil, herr.New(herr.ErrCodePushPermanent, "rtmp: message length exceeds sanity limit")
		}

		toRead := stream.header.MessageLength - stream.receivedSize
		if toRead > cr.chunkSize {
			toRead = cr.chunkSize
		}

		chunkData := make([]byte, toRead)
		if _, err := io.ReadFull(cr.r, chunkData); err != nil {
			return nil, err
		}

		if stream.message == nil {
			stream.message = &Message{
				ChunkStreamID:   csID,
				Timestamp:       stream.header.Timestamp,
				MessageTypeID:   stream.header.MessageTypeID,
				MessageStreamID: stream.header.MessageStreamID,
				Payload:         make([]byte, 0, stream.header.MessageLength),
			}
		}
		stream.message.Payload = append(stream.message.Payload, chunkData...)
		stream.receivedSize += toRead

		if stream.receivedSize >= stream.header.MessageLength {
			msg := stream.message
			stream.message = nil
			stream.receivedSize = 0
			return msg, nil
		}
	}
}

func (cr *ChunkReader) readBasicHeader() (uint32, byte, error) {
	firstByte, err := cr.r.ReadByte()
	if err != nil {
		return 0, 0, err
	}

	format := (firstByte >> 6) & 0x03
	csID := uint32(firstByte & 0x3F)

	if csID == 0 {
		secondByte, err := cr.r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		csID = uint32(secondByte) + 64
	} else if csID == 1 {
		buf := make([]byte, 2)
		if _, err := io.ReadFull(cr.r, buf); err != nil {
			return 0, 0, err
		}
		csID = uint32(buf[1])*256 + uint32(buf[0]) + 64
	}

	return csID, format, nil
}

func (cr *ChunkReader) readMessageHeader(stream *ChunkStream, format byte) error {
	header := stream.header

	switch format {
	case ChunkFormat0:
		buf := make([]byte, 11)
		if _, err := io.ReadFull(cr.r, buf); err != nil {
			return err
		}
		header.Timestamp = uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
		header.MessageLength = uint32(buf[3])<<16 | uint32(buf[4])<<8 | uint32(buf[5])
		header.MessageTypeID = buf[6]
		header.MessageStreamID = binary.LittleEndian.Uint32(buf[7:11])

		if header.Timestamp == 0xFFFFFF {
			var extTimestamp uint32
			if err := binary.Read(cr.r, binary.BigEndian, &extTimestamp); err != nil {
				return err
			}
			header.Timestamp = extTimestamp
			header.ExtendedTimestamp = true
		}

	case ChunkFormat1:
		buf := make([]byte, 7)
		if _, err := io.ReadFull(cr.r, buf); err != nil {
			return err
		}
		timestampDelta := uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
		header.Timestamp += timestampDelta
		header.MessageLength = uint32(buf[3])<<16 | uint32(buf[4])<<8 | uint32(buf[5])
		header.MessageTypeID = buf[6]

	case ChunkFormat2:
		buf := make([]byte, 3)
		if _, err := io.ReadFull(cr.r, buf); err != nil {
			return err
		}
		timestampDelta := uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
		header.Timestamp += timestampDelta

	case ChunkFormat3:
		// No header bytes; reuse the previous chunk's values.
	}

	return nil
}

// ChunkWriter frames outbound RTMP messages (command messages plus
// pushed audio/video payloads) as chunks.
type ChunkWriter struct {
	w         io.Writer
	chunkSize uint32
}

// NewChunkWriter creates a new chunk writer over w.
func NewChunkWriter(w io.Writer) *ChunkWriter {
	return &ChunkWriter{
		w:         w,
		chunkSize: DefaultChunkSize,
	}
}

// SetChunkSize sets the write chunk size.
func (cw *ChunkWriter) SetChunkSize(size uint32) {
	cw.chunkSize = size
}

// WriteMessage writes a complete RTMP message as one or more chunks.
func (cw *ChunkWriter) WriteMessage(msg *Message) error {
	payloadLen := uint32(len(msg.Payload))
	offset := uint32(0)
	isFirst := true

	for offset < payloadLen {
		if err := cw.writeBasicHeader(msg.ChunkStreamID, isFirst); err != nil {
			return err
		}

		if isFirst {
			if err := cw.writeMessageHeader(msg); err != nil {
				return err
			}
			isFirst = false
		}

		toWrite := payloadLen - offset
		if toWrite > cw.chunkSize {
			toWrite = cw.chunkSize
		}

		if _, err := cw.w.Write(msg.Payload[offset : offset+toWrite]); err != nil {
			return err
		}

		offset += toWrite
	}

	return nil
}

func (cw *ChunkWriter) writeBasicHeader(csID uint32, isFirst bool) error {
	var format byte
	if isFirst {
		format = ChunkFormat0
	} else {
		format = ChunkFormat3
	}

	if csID < 64 {
		return binary.Write(cw.w, binary.BigEndian, byte((format<<6)|byte(csID)))
	} else if csID < 320 {
		if err := binary.Write(cw.w, binary.BigEndian, byte(format<<6)); err != nil {
			return err
		}
		return binary.Write(cw.w, binary.BigEndian, byte(csID-64))
	} else {
		if err := binary.Write(cw.w, binary.BigEndian, byte((format<<6)|1)); err != nil {
			return err
		}
		csID -= 64
		return binary.Write(cw.w, binary.BigEndian, uint16(csID))
	}
}

func (cw *ChunkWriter) writeMessageHeader(msg *Message) error {
	buf := make([]byte, 11)

	timestamp := msg.Timestamp
	if timestamp >= 0xFFFFFF {
		timestamp = 0xFFFFFF
	}
	buf[0] = byte(timestamp >> 16)
	buf[1] = byte(timestamp >> 8)
	buf[2] = byte(timestamp)

	msgLen := uint32(len(msg.Payload))
	buf[3] = byte(msgLen >> 16)
	buf[4] = byte(msgLen >> 8)
	buf[5] = byte(msgLen)

	buf[6] = msg.MessageTypeID

	binary.LittleEndian.PutUint32(buf[7:11], msg.MessageStreamID)

	if _, err := cw.w.Write(buf); err != nil {
		return err
	}

	if msg.Timestamp >= 0xFFFFFF {
		if err := binary.Write(cw.w, binary.BigEndian, msg.Timestamp); err != nil {
			return err
		}
	}

	return nil
}

// WriteControlMessage writes a protocol control message on the
// reserved control chunk stream.
func (cw *ChunkWriter) WriteControlMessage(messageType uint8, payload []byte) error {
	msg := &Message{
		ChunkStreamID:   ChunkStreamIDProtocolControl,
		Timestamp:       0,
		MessageTypeID:   messageType,
		MessageStreamID: 0,
		Payload:         payload,
	}
	return cw.WriteMessage(msg)
}

// WriteSetChunkSize sends a Set Chunk Size control message.
func (cw *ChunkWriter) WriteSetChunkSize(size uint32) error {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, size)
	return cw.WriteControlMessage(MessageTypeSetChunkSize, payload)
}

// WriteWindowAckSize sends a Window Acknowledgement Size control message.
func (cw *ChunkWriter) WriteWindowAckSize(size uint32) error {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, size)
	return cw.WriteControlMessage(MessageTypeWindowAckSize, payload)
}

// WriteSetPeerBandwidth sends a Set Peer Bandwidth control message.
func (cw *ChunkWriter) WriteSetPeerBandwidth(size uint32, limitType byte) error {
	payload := make([]byte, 5)
	binary.BigEndian.PutUint32(payload[0:4], size)
	payload[4] = limitType
	return cw.WriteControlMessage(MessageTypeSetPeerBandwidth, payload)
}
