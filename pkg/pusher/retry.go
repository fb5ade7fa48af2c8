package pusher

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/atelier-socle/hlskit/pkg/herr"
)

// RetryPolicy configures exponential backoff with a circuit breaker,
// built on cenkalti/backoff/v4 the way the pack's transcode pipeline
// wraps its upload retries.
type RetryPolicy struct {
	MaxRetries              int
	BaseBackoff             time.Duration
	MaxBackoff              time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerCooldown  time.Duration
}

// DefaultRetryPolicy matches the teacher pack's TranscodeRetryBackoff
// shape: a handful of retries with a capped backoff ceiling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:              5,
		BaseBackoff:             200 * time.Millisecond,
		MaxBackoff:              10 * time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerCooldown:  30 * time.Second,
	}
}

func (rp RetryPolicy) backOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = rp.BaseBackoff
	eb.MaxInterval = rp.MaxBackoff
	eb.MaxElapsedTime = 0
	return backoff.WithMaxRetries(eb, uint64(rp.MaxRetries))
}

// CircuitBreaker opens after Threshold consecutive failures and stays
// open for Cooldown before allowing a trial push through again.
type CircuitBreaker struct {
	threshold   int
	cooldown    time.Duration
	failures    int
	openedAt    time.Time
	open        bool
}

func newCircuitBreaker(rp RetryPolicy) *CircuitBreaker {
	return &CircuitBreaker{threshold: rp.CircuitBreakerThreshold, cooldown: rp.CircuitBreakerCooldown}
}

func (cb *CircuitBreaker) allow() bool {
	if !cb.open {
		return true
	}
	if time.Since(cb.openedAt) >= cb.cooldown {
		cb.open = false
		cb.failures = 0
		return true
	}
	return false
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.failures = 0
	cb.open = false
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failures++
	if cb.threshold > 0 && cb.failures >= cb.threshold {
		cb.open = true
		cb.openedAt = time.Now()
	}
}

// RetryingPusher wraps a Pusher with RetryPolicy-governed retries and
// a circuit breaker per destination.
type RetryingPusher struct {
	inner  Pusher
	policy RetryPolicy
	cb     *CircuitBreaker
}

// NewRetryingPusher wraps inner with policy's retry and circuit
// breaker behavior.
func NewRetryingPusher(inner Pusher, policy RetryPolicy) *RetryingPusher {
	return &RetryingPusher{inner: inner, policy: policy, cb: newCircuitBreaker(policy)}
}

func (p *RetryingPusher) Name() string                    { return p.inner.Name() }
func (p *RetryingPusher) Connect(ctx context.Context) error { return p.inner.Connect(ctx) }
func (p *RetryingPusher) Disconnect() error                { return p.inner.Disconnect() }
func (p *RetryingPusher) Stats() Stats                     { return p.inner.Stats() }

func (p *RetryingPusher) PushSegment(ctx context.Context, path string, data []byte) error {
	return p.push(ctx, func() error { return p.inner.PushSegment(ctx, path, data) })
}

func (p *RetryingPusher) PushPlaylist(ctx context.Context, path string, data []byte) error {
	return p.push(ctx, func() error { return p.inner.PushPlaylist(ctx, path, data) })
}

func (p *RetryingPusher) PushPartial(ctx context.Context, path string, data []byte) error {
	return p.push(ctx, func() error { return p.inner.PushPartial(ctx, path, data) })
}

// push attempts delivery, retrying transient failures per policy and
// short-circuiting immediately (ErrCodeCircuitOpen) while the breaker
// is open.
func (p *RetryingPusher) push(ctx context.Context, do func() error) error {
	if !p.cb.allow() {
		return herr.NewCircuitOpen(p.inner.Name())
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := do()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return herr.NewPushTransient(p.inner.Name(), attempt, err)
	}

	err := backoff.Retry(operation, backoff.WithContext(p.policy.backOff(), ctx))
	if err != nil {
		p.cb.recordFailure()
		return err
	}
	p.cb.recordSuccess()
	return nil
}
