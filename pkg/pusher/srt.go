package pusher

import (
	"context"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

// SRTTransport is the narrow send/close surface an injected SRT
// library implementation must satisfy. No SRT library appears
// anywhere in the example pack (confirmed by search — see DESIGN.md),
// so SRTPusher depends on this interface rather than a concrete
// client, the same shape pkg/storage.RecordingStorage uses to let a
// caller supply its own backend.
type SRTTransport interface {
	Connect(ctx context.Context, addr, streamID string) error
	Send(payload []byte, timestamp uint32) error
	Close() error
}

// SRTPusher re-publishes over SRT via an injected SRTTransport.
// Contract only per spec.md §6.3: connect(options)/send(payload,
// timestamp)/set_metadata/disconnect.
type SRTPusher struct {
	statsTracker
	name      string
	addr      string
	streamID  string
	transport SRTTransport
}

// NewSRTPusher wraps transport, dialed against addr/streamID on
// Connect.
func NewSRTPusher(name, addr, streamID string, transport SRTTransport) *SRTPusher {
	return &SRTPusher{name: name, addr: addr, streamID: streamID, transport: transport}
}

func (p *SRTPusher) Name() string { return p.name }

func (p *SRTPusher) Connect(ctx context.Context) error {
	if err := p.transport.Connect(ctx, p.addr, p.streamID); err != nil {
		err = herr.NewPushTransient(p.name, 1, err)
		p.recordFailure(err)
		return err
	}
	return nil
}

func (p *SRTPusher) Disconnect() error { return p.transport.Close() }
func (p *SRTPusher) Stats() Stats      { return p.snapshot() }

func (p *SRTPusher) send(kind string, payload []byte) error {
	if err := p.transport.Send(payload, 0); err != nil {
		err = herr.NewPushTransient(p.name, 1, err)
		p.recordFailure(err)
		return err
	}
	p.recordSuccess(kind, len(payload))
	return nil
}

func (p *SRTPusher) PushSegment(ctx context.Context, path string, data []byte) error {
	return p.send("segment", data)
}

func (p *SRTPusher) PushPartial(ctx context.Context, path string, data []byte) error {
	return p.send("partial", data)
}

// PushPlaylist is a no-op: SRT is a raw transport stream carrier, not
// a manifest delivery mechanism.
func (p *SRTPusher) PushPlaylist(ctx context.Context, path string, data []byte) error { return nil }
