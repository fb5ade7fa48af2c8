package rtmp

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

func TestAMF0Encoding(t *testing.T) {
	buf := &bytes.Buffer{}
	encoder := NewAMF0Encoder(buf)

	t.Run("EncodeNumber", func(t *testing.T) {
		buf.Reset()
		if err := encoder.EncodeNumber(123.456); err != nil {
			t.Fatalf("encode number: %v", err)
		}
		if buf.Len() == 0 {
			t.Error("no data written")
		}
	})

	t.Run("EncodeString", func(t *testing.T) {
		buf.Reset()
		if err := encoder.EncodeString("test"); err != nil {
			t.Fatalf("encode string: %v", err)
		}
		if buf.Len() == 0 {
			t.Error("no data written")
		}
	})

	t.Run("EncodeObject", func(t *testing.T) {
		buf.Reset()
		obj := map[string]interface{}{"app": "live", "tcUrl": "rtmp://origin/live"}
		if err := encoder.EncodeObject(obj); err != nil {
			t.Fatalf("encode object: %v", err)
		}
		if buf.Len() == 0 {
			t.Error("no data written")
		}
	})

	t.Run("EncodeUnsupportedTypeReturnsPushPermanentError", func(t *testing.T) {
		buf.Reset()
		err := encoder.Encode(struct{}{})
		if err == nil {
			t.Fatal("expected an error encoding an unsupported type")
		}
		if herr.GetErrorCode(err) != herr.ErrCodePushPermanent {
			t.Fatalf("error code = %v, want ErrCodePushPermanent", herr.GetErrorCode(err))
		}
	})
}

func TestAMF0Decoding_RoundTripsCommandSequence(t *testing.T) {
	// connect/createStream/publish all encode as: string command name,
	// number transaction id, then a variable tail.
	buf := &bytes.Buffer{}
	enc := NewAMF0Encoder(buf)
	enc.EncodeString("_result")
	enc.EncodeNumber(1)
	enc.EncodeObject(map[string]interface{}{"fmsVer": "hlskit/1.0"})

	dec := NewAMF0Decoder(buf)

	cmd, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode command name: %v", err)
	}
	if cmd != "_result" {
		t.Fatalf("command = %v, want _result", cmd)
	}

	txn, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode transaction id: %v", err)
	}
	if txn != float64(1) {
		t.Fatalf("transaction id = %v, want 1", txn)
	}

	props, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode properties object: %v", err)
	}
	obj, ok := props.(map[string]interface{})
	if !ok || obj["fmsVer"] != "hlskit/1.0" {
		t.Fatalf("properties = %+v, want fmsVer hlskit/1.0", props)
	}
}

func TestChunkWriterAndReader_RoundTripsMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	writer := NewChunkWriter(buf)
	reader := NewChunkReader(buf)

	payload := []byte("command payload")
	msg := &Message{
		ChunkStreamID:   ChunkStreamIDCommand,
		Timestamp:       1000,
		MessageTypeID:   MessageTypeCommandAMF0,
		MessageStreamID: 1,
		Payload:         payload,
	}

	if err := writer.WriteMessage(msg); err != nil {
		t.Fatalf("write message: %v", err)
	}

	readMsg, err := reader.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	if readMsg.ChunkStreamID != msg.ChunkStreamID {
		t.Errorf("ChunkStreamID = %d, want %d", readMsg.ChunkStreamID, msg.ChunkStreamID)
	}
	if readMsg.MessageTypeID != msg.MessageTypeID {
		t.Errorf("MessageTypeID = %d, want %d", readMsg.MessageTypeID, msg.MessageTypeID)
	}
	if !bytes.Equal(readMsg.Payload, msg.Payload) {
		t.Errorf("Payload = %v, want %v", readMsg.Payload, msg.Payload)
	}
}

func TestChunkReader_RejectsOversizedMessageLength(t *testing.T) {
	buf := &bytes.Buffer{}
	writer := NewChunkWriter(buf)
	reader := NewChunkReader(buf)

	// Write a valid frame, then hand-corrupt the message-length field
	// (bytes 3-5 of the 11-byte type-0 header that follows the 1-byte
	// basic header) past maxMessageLength.
	if err := writer.WriteMessage(&Message{ChunkStreamID: ChunkStreamIDCommand, MessageTypeID: MessageTypeCommandAMF0, Payload: []byte("x")}); err != nil {
		t.Fatalf("write message: %v", err)
	}
	raw := buf.Bytes()
	raw[4] = 0xFF
	raw[5] = 0xFF

	_, err := reader.ReadMessage()
	if err == nil {
		t.Fatal("expected an error reading an oversized message")
	}
	if herr.GetErrorCode(err) != herr.ErrCodePushPermanent {
		t.Fatalf("error code = %v, want ErrCodePushPermanent", herr.GetErrorCode(err))
	}
}

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state    ConnectionState
		expected string
	}{
		{StateInit, "Init"},
		{StateConnected, "Connected"},
		{StatePublishing, "Publishing"},
		{StatePlaying, "Playing"},
		{StateClosed, "Closed"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if tt.state.String() != tt.expected {
				t.Errorf("String() = %s, want %s", tt.state.String(), tt.expected)
			}
		})
	}
}

// fakeIngestServer accepts one connection, performs the server side of
// the RTMP handshake by hand (no production server-handshake code lives
// in this client-only package), and replies _result/onStatus to
// whatever commands the client sends.
func fakeIngestServer(t *testing.T, ln net.Listener) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	// C0+C1
	c0c1 := make([]byte, 1+HandshakeSize)
	if _, err := readFull(conn, c0c1); err != nil {
		return
	}
	// S0+S1+S2
	s0s1s2 := make([]byte, 1+HandshakeSize+HandshakeSize)
	s0s1s2[0] = Version
	conn.Write(s0s1s2)
	// C2
	c2 := make([]byte, HandshakeSize)
	readFull(conn, c2)

	reader := NewChunkReader(conn)
	writer := NewChunkWriter(conn)

	for i := 0; i < 3; i++ {
		msg, err := reader.ReadMessage()
		if err != nil {
			return
		}
		dec := NewAMF0Decoder(bytes.NewReader(msg.Payload))
		cmd, _ := dec.Decode()

		buf := &bytes.Buffer{}
		enc := NewAMF0Encoder(buf)
		reply := "_result"
		if cmd == "publish" {
			reply = "onStatus"
		}
		enc.EncodeString(reply)
		enc.EncodeNumber(1)
		enc.EncodeNull()

		writer.WriteMessage(&Message{
			ChunkStreamID:   ChunkStreamIDCommand,
			MessageTypeID:   MessageTypeCommandAMF0,
			MessageStreamID: 0,
			Payload:         buf.Bytes(),
		})
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestDial_PerformsHandshakeAndConfirmsCommandReplies(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go fakeIngestServer(t, ln)

	c, err := Dial(ln.Addr().String(), "live", "session-1", 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
}
