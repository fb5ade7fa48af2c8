package rtmp

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

// Client is an outbound RTMP publish connection: it performs the client
// handshake, sends connect/createStream/publish commands, confirms each
// one against the ingest server's AMF0 reply, and then lets the caller
// push raw audio/video messages. It has no server-side state machine; it
// exists only to republish HLS-origin media to an RTMP ingest as one of
// the pusher framework's transports.
type Client struct {
	conn      net.Conn
	writer    *ChunkWriter
	reader    *ChunkReader
	streamID  uint32
	app       string
	streamKey string
}

// Dial connects to addr (host:port), performs the RTMP handshake, and
// issues connect/createStream/publish for app/streamKey, failing if
// connect or createStream is not answered with _result or publish with
// onStatus. The status code inside the onStatus reply is not inspected.
func Dial(addr, app, streamKey string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, herr.Wrap(herr.ErrCodePushTransient, "rtmp dial", err)
	}

	h := NewHandshake()
	if err := h.PerformClientHandshake(conn); err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn:      conn,
		writer:    NewChunkWriter(conn),
		reader:    NewChunkReader(conn),
		app:       app,
		streamKey: streamKey,
	}

	if err := c.connect(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.createStream(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.publish(); err != nil {
		conn.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) connect() error {
	buf := &bytes.Buffer{}
	enc := NewAMF0Encoder(buf)
	if err := enc.EncodeString("connect"); err != nil {
		return err
	}
	if err := enc.EncodeNumber(1); err != nil {
		return err
	}
	if err := enc.EncodeObject(map[string]interface{}{
		"app":      c.app,
		"type":     "nonprivate",
		"flashVer": "hlskit/1.0",
		"tcUrl":    fmt.Sprintf("rtmp://%s/%s", hostOf(c.conn), c.app),
	}); err != nil {
		return err
	}

	if err := c.writer.WriteMessage(&Message{
		ChunkStreamID:   ChunkStreamIDCommand,
		MessageTypeID:   MessageTypeCommandAMF0,
		MessageStreamID: 0,
		Payload:         buf.Bytes(),
	}); err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, "rtmp connect: write command", err)
	}

	return c.awaitResult("connect")
}

func (c *Client) createStream() error {
	buf := &bytes.Buffer{}
	enc := NewAMF0Encoder(buf)
	enc.EncodeString("createStream")
	enc.EncodeNumber(2)
	enc.EncodeNull()

	c.streamID = 1
	if err := c.writer.WriteMessage(&Message{
		ChunkStreamID:   ChunkStreamIDCommand,
		MessageTypeID:   MessageTypeCommandAMF0,
		MessageStreamID: 0,
		Payload:         buf.Bytes(),
	}); err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, "rtmp createStream: write command", err)
	}

	return c.awaitResult("createStream")
}

func (c *Client) publish() error {
	buf := &bytes.Buffer{}
	enc := NewAMF0Encoder(buf)
	enc.EncodeString("publish")
	enc.EncodeNumber(3)
	enc.EncodeNull()
	enc.EncodeString(c.streamKey)
	enc.EncodeString(string(PublishModeLive))

	if err := c.writer.WriteMessage(&Message{
		ChunkStreamID:   ChunkStreamIDCommand,
		MessageTypeID:   MessageTypeCommandAMF0,
		MessageStreamID: c.streamID,
		Payload:         buf.Bytes(),
	}); err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, "rtmp publish: write command", err)
	}

	return c.awaitStatus("publish")
}

// awaitResult reads the next command-channel message and requires it to
// be a "_result" reply, the ack pattern connect/createStream use.
func (c *Client) awaitResult(command string) error {
	return c.awaitCommand(command, "_result")
}

// awaitStatus reads the next command-channel message and requires it to
// be an "onStatus" reply, the ack pattern publish uses.
func (c *Client) awaitStatus(command string) error {
	return c.awaitCommand(command, "onStatus")
}

func (c *Client) awaitCommand(command, wantReply string) error {
	msg, err := c.reader.ReadMessage()
	if err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, fmt.Sprintf("rtmp %s: read reply", command), err)
	}
	if msg.MessageTypeID != MessageTypeCommandAMF0 {
		return herr.New(herr.ErrCodePushPermanent, fmt.Sprintf("rtmp %s: expected a command reply, got message type %d", command, msg.MessageTypeID))
	}

	dec := NewAMF0Decoder(bytes.NewReader(msg.Payload))
	value, err := dec.Decode()
	if err != nil {
		return herr.Wrap(herr.ErrCodePushPermanent, fmt.Sprintf("rtmp %s: decode reply command name", command), err)
	}
	reply, ok := value.(string)
	if !ok {
		return herr.New(herr.ErrCodePushPermanent, fmt.Sprintf("rtmp %s: reply command name was not a string", command))
	}
	if reply == "_error" {
		return herr.New(herr.ErrCodePushPermanent, fmt.Sprintf("rtmp %s: server replied _error", command))
	}
	if reply != wantReply {
		return herr.New(herr.ErrCodePushPermanent, fmt.Sprintf("rtmp %s: unexpected server reply %q, want %q", command, reply, wantReply))
	}

	return nil
}

// SendVideo pushes a raw video payload (already FLV-tag-body encoded by
// the caller's muxing layer) with the given millisecond timestamp.
func (c *Client) SendVideo(payload []byte, timestampMs uint32) error {
	if err := c.writer.WriteMessage(&Message{
		ChunkStreamID:   ChunkStreamIDVideo,
		Timestamp:       timestampMs,
		MessageTypeID:   MessageTypeVideo,
		MessageStreamID: c.streamID,
		Payload:         payload,
	}); err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, "rtmp: send video", err)
	}
	return nil
}

// SendAudio pushes a raw audio payload with the given millisecond timestamp.
func (c *Client) SendAudio(payload []byte, timestampMs uint32) error {
	if err := c.writer.WriteMessage(&Message{
		ChunkStreamID:   ChunkStreamIDAudio,
		Timestamp:       timestampMs,
		MessageTypeID:   MessageTypeAudio,
		MessageStreamID: c.streamID,
		Payload:         payload,
	}); err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, "rtmp: send audio", err)
	}
	return nil
}

// SetMetadata sends an onMetaData AMF0 data message.
func (c *Client) SetMetadata(meta map[string]interface{}) error {
	buf := &bytes.Buffer{}
	enc := NewAMF0Encoder(buf)
	enc.EncodeString("@setDataFrame")
	enc.EncodeString("onMetaData")
	enc.EncodeECMAArray(meta)

	if err := c.writer.WriteMessage(&Message{
		ChunkStreamID:   ChunkStreamIDCommand,
		MessageTypeID:   MessageTypeDataAMF0,
		MessageStreamID: c.streamID,
		Payload:         buf.Bytes(),
	}); err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, "rtmp: set metadata", err)
	}
	return nil
}

// Close terminates the underlying TCP connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func hostOf(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
