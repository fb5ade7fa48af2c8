package pusher

import (
	"context"
	"sync"
	"time"

	"github.com/atelier-socle/hlskit/pkg/herr"
	rtmpclient "github.com/atelier-socle/hlskit/pkg/pusher/rtmp"
)

// RTMPPusher re-publishes to an RTMP ingest, reusing the teacher's
// chunk/handshake/AMF code (pkg/pusher/rtmp) as the outbound
// transport. It generalizes that server-side implementation into a
// client-side connect/send pair: Connect performs the handshake and
// createStream/publish sequence, PushSegment/PushPartial forward the
// segment's encoded payload as a video message. RTMP has no playlist
// concept, so PushPlaylist is a no-op — callers that need a combined
// HLS+RTMP destination set should omit the playlist path from the
// fan-out for this pusher's entry in MultiDestinationPusher.
type RTMPPusher struct {
	statsTracker
	name      string
	addr      string
	app       string
	streamKey string
	timeout   time.Duration

	mu     sync.Mutex
	client *rtmpclient.Client
	tsMs   uint32
}

// NewRTMPPusher targets addr/app with streamKey, dialed on Connect.
func NewRTMPPusher(name, addr, app, streamKey string, timeout time.Duration) *RTMPPusher {
	return &RTMPPusher{name: name, addr: addr, app: app, streamKey: streamKey, timeout: timeout}
}

func (p *RTMPPusher) Name() string { return p.name }

func (p *RTMPPusher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := rtmpclient.Dial(p.addr, p.app, p.streamKey, p.timeout)
	if err != nil {
		err = herr.NewPushTransient(p.name, 1, err)
		p.recordFailure(err)
		return err
	}
	p.client = c
	return nil
}

func (p *RTMPPusher) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func (p *RTMPPusher) Stats() Stats { return p.snapshot() }

func (p *RTMPPusher) PushSegment(ctx context.Context, path string, data []byte) error {
	return p.send("segment", data)
}

func (p *RTMPPusher) PushPartial(ctx context.Context, path string, data []byte) error {
	return p.send("partial", data)
}

// PushPlaylist is a no-op: RTMP carries no playlist concept.
func (p *RTMPPusher) PushPlaylist(ctx context.Context, path string, data []byte) error { return nil }

func (p *RTMPPusher) send(kind string, data []byte) error {
	p.mu.Lock()
	c := p.client
	p.tsMs += 1000 / 30
	ts := p.tsMs
	p.mu.Unlock()

	if c == nil {
		err := herr.NewPushPermanent(p.name, 0, errNotConnected)
		p.recordFailure(err)
		return err
	}
	if err := c.SendVideo(data, ts); err != nil {
		err = herr.NewPushTransient(p.name, 1, err)
		p.recordFailure(err)
		return err
	}
	p.recordSuccess(kind, len(data))
	return nil
}

var errNotConnected = herr.New(herr.ErrCodePushPermanent, "rtmp pusher: not connected")
