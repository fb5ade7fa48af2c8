package pusher

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

// FailoverPolicy governs how MultiDestinationPusher treats per-
// destination push failures.
type FailoverPolicy int

const (
	// FailoverAllOrNothing fails the whole push if any destination fails.
	FailoverAllOrNothing FailoverPolicy = iota
	// FailoverContinueOnFailure pushes to every destination regardless
	// of earlier failures and never returns an error itself; callers
	// inspect per-destination PushResult.
	FailoverContinueOnFailure
	// FailoverQuorum succeeds once at least Quorum destinations succeed.
	FailoverQuorum
)

// MultiDestinationPusher fans a push out to every registered Pusher
// concurrently and aggregates results per FailoverPolicy.
type MultiDestinationPusher struct {
	destinations []Pusher
	policy       FailoverPolicy
	quorum       int
}

// NewMultiDestinationPusher fans out to destinations under policy.
// quorum is only consulted when policy is FailoverQuorum.
func NewMultiDestinationPusher(destinations []Pusher, policy FailoverPolicy, quorum int) *MultiDestinationPusher {
	return &MultiDestinationPusher{destinations: destinations, policy: policy, quorum: quorum}
}

func (m *MultiDestinationPusher) Connect(ctx context.Context) error {
	results := m.fanout(func(p Pusher) error { return p.Connect(ctx) })
	return m.aggregate(results)
}

func (m *MultiDestinationPusher) Disconnect() error {
	results := m.fanout(func(p Pusher) error { return p.Disconnect() })
	return m.aggregate(results)
}

// PushSegment fans the segment out to every destination concurrently.
func (m *MultiDestinationPusher) PushSegment(ctx context.Context, path string, data []byte) ([]PushResult, error) {
	return m.push(func(p Pusher) error { return p.PushSegment(ctx, path, data) })
}

func (m *MultiDestinationPusher) PushPlaylist(ctx context.Context, path string, data []byte) ([]PushResult, error) {
	return m.push(func(p Pusher) error { return p.PushPlaylist(ctx, path, data) })
}

func (m *MultiDestinationPusher) PushPartial(ctx context.Context, path string, data []byte) ([]PushResult, error) {
	return m.push(func(p Pusher) error { return p.PushPartial(ctx, path, data) })
}

func (m *MultiDestinationPusher) push(do func(Pusher) error) ([]PushResult, error) {
	results := make([]PushResult, len(m.destinations))
	var g errgroup.Group
	for i, dest := range m.destinations {
		i, dest := i, dest
		g.Go(func() error {
			start := time.Now()
			err := do(dest)
			results[i] = PushResult{Destination: dest.Name(), Err: err, Attempts: 1, Duration: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait() // per-destination errors are carried in results, not the group error

	succeeded := 0
	var firstErr error
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		} else if firstErr == nil {
			firstErr = r.Err
		}
	}

	switch m.policy {
	case FailoverAllOrNothing:
		if firstErr != nil {
			return results, firstErr
		}
		return results, nil
	case FailoverQuorum:
		if succeeded < m.quorum {
			return results, herr.New(herr.ErrCodePushPermanent, "multi-destination push below quorum")
		}
		return results, nil
	default: // FailoverContinueOnFailure
		return results, nil
	}
}

func (m *MultiDestinationPusher) fanout(do func(Pusher) error) []error {
	errs := make([]error, len(m.destinations))
	var g errgroup.Group
	for i, dest := range m.destinations {
		i, dest := i, dest
		g.Go(func() error {
			errs[i] = do(dest)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (m *MultiDestinationPusher) aggregate(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Stats returns every destination's accumulated Stats, keyed by name.
func (m *MultiDestinationPusher) Stats() map[string]Stats {
	out := make(map[string]Stats, len(m.destinations))
	for _, d := range m.destinations {
		out[d.Name()] = d.Stats()
	}
	return out
}
