package pusher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

// IcecastPusher streams to an Icecast mount point via the SOURCE
// method (an HTTP extension method Icecast accepts in place of PUT),
// held open across the session rather than one request per push.
// Contract only: connect(options)/send(payload, timestamp)/
// set_metadata/disconnect per spec.md §6.3 — no example in the pack
// operates an Icecast source client, so this is built directly against
// net/http the way HTTPPusher is, not grounded on a pack file.
type IcecastPusher struct {
	statsTracker
	name     string
	mountURL string
	username string
	password string
	client   *http.Client

	mu   sync.Mutex
	body *io.PipeWriter
	done chan error
}

// NewIcecastPusher targets mountURL (e.g. http://host:8000/mount) with
// source credentials.
func NewIcecastPusher(name, mountURL, username, password string, timeout time.Duration) *IcecastPusher {
	return &IcecastPusher{
		name:     name,
		mountURL: mountURL,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 0},
	}
}

func (p *IcecastPusher) Name() string { return p.name }

// Connect opens a SOURCE request and keeps its body writer open for
// subsequent sends.
func (p *IcecastPusher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, pw := io.Pipe()
	req, err := http.NewRequestWithContext(context.Background(), "SOURCE", p.mountURL, pr)
	if err != nil {
		return herr.NewPushPermanent(p.name, 0, err)
	}
	req.SetBasicAuth(p.username, p.password)
	req.Header.Set("Content-Type", "video/mp2t")
	req.Header.Set("Ice-Public", "0")

	done := make(chan error, 1)
	go func() {
		resp, err := p.client.Do(req)
		if err != nil {
			done <- err
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			done <- fmt.Errorf("icecast source rejected: http %d", resp.StatusCode)
			return
		}
		done <- nil
	}()
	p.body = pw
	p.done = done
	return nil
}

func (p *IcecastPusher) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.body == nil {
		return nil
	}
	err := p.body.Close()
	p.body = nil
	return err
}

func (p *IcecastPusher) Stats() Stats { return p.snapshot() }

// send writes payload to the open source body. Icecast has no
// timestamped-frame concept; it is fed a continuous byte stream, so
// segment/partial boundaries matter only for chunking, not framing.
func (p *IcecastPusher) send(kind string, payload []byte) error {
	p.mu.Lock()
	body := p.body
	p.mu.Unlock()
	if body == nil {
		err := herr.NewPushPermanent(p.name, 0, errNotConnected)
		p.recordFailure(err)
		return err
	}
	if _, err := body.Write(payload); err != nil {
		err = herr.NewPushTransient(p.name, 1, err)
		p.recordFailure(err)
		return err
	}
	p.recordSuccess(kind, len(payload))
	return nil
}

func (p *IcecastPusher) PushSegment(ctx context.Context, path string, data []byte) error {
	return p.send("segment", data)
}

func (p *IcecastPusher) PushPartial(ctx context.Context, path string, data []byte) error {
	return p.send("partial", data)
}

// PushPlaylist is a no-op: Icecast mounts a raw stream, not a playlist.
func (p *IcecastPusher) PushPlaylist(ctx context.Context, path string, data []byte) error { return nil }

// SetMetadata accepts a now-playing title but sends nothing to the
// server; it always returns nil.
func (p *IcecastPusher) SetMetadata(ctx context.Context, title string) error {
	return nil
}
