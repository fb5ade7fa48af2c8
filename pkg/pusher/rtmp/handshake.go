package rtmp

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"time"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

const (
	// HandshakeSize is the size of the C1/S1/C2/S2 handshake packets.
	HandshakeSize = 1536
)

// Handshake drives the client side of the RTMP handshake (C0/C1 ->
// S0/S1/S2 -> C2). RTMPPusher only ever dials out to an ingest server,
// so there is no server-side handshake here.
type Handshake struct {
	version byte
}

// NewHandshake creates a new handshake driver.
func NewHandshake() *Handshake {
	return &Handshake{
		version: Version,
	}
}

// PerformClientHandshake performs the client-side RTMP handshake over rw:
// send C0+C1, read S0+S1+S2, echo C2.
func (h *Handshake) PerformClientHandshake(rw io.ReadWriter) error {
	c0 := []byte{Version}
	if _, err := rw.Write(c0); err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, "rtmp handshake: write C0", err)
	}

	c1 := make([]byte, HandshakeSize)
	timestamp := uint32(time.Now().Unix())
	binary.BigEndian.PutUint32(c1[0:4], timestamp)
	binary.BigEndian.PutUint32(c1[4:8], 0)
	if _, err := rand.Read(c1[8:]); err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, "rtmp handshake: generate C1 random data", err)
	}

	if _, err := rw.Write(c1); err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, "rtmp handshake: write C1", err)
	}

	s0 := make([]byte, 1)
	if _, err := io.ReadFull(rw, s0); err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, "rtmp handshake: read S0", err)
	}
	if s0[0] != Version {
		return herr.New(herr.ErrCodePushPermanent, "rtmp handshake: unsupported server RTMP version")
	}

	s1 := make([]byte, HandshakeSize)
	if _, err := io.ReadFull(rw, s1); err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, "rtmp handshake: read S1", err)
	}

	s2 := make([]byte, HandshakeSize)
	if _, err := io.ReadFull(rw, s2); err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, "rtmp handshake: read S2", err)
	}

	c2 := make([]byte, HandshakeSize)
	copy(c2, s1)
	binary.BigEndian.PutUint32(c2[0:4], uint32(time.Now().Unix()))

	if _, err := rw.Write(c2); err != nil {
		return herr.Wrap(herr.ErrCodePushTransient, "rtmp handshake: write C2", err)
	}

	return nil
}
