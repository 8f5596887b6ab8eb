// Package rpcproxy implements the Reconnecting Service Proxy (C6): a
// client-side wrapper around a single upstream RPC connection (worker to
// server, or worker/server to hub) that transparently reconnects and
// retries on transport failures, while surfacing argument, security, and
// other logical errors straight to the caller instead of retrying them
// forever.
package rpcproxy

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrorClass distinguishes errors worth retrying forever (the connection
// itself is bad) from errors the caller must see immediately (the call
// itself was bad).
type ErrorClass int

const (
	// ClassTransport covers dial failures, broken pipes, deadline
	// exceeded while the link is down — the proxy reconnects and retries.
	ClassTransport ErrorClass = iota
	// ClassLogical covers bad arguments, authentication/authorization
	// failures, and any other error the upstream raised deliberately —
	// the proxy returns it to the caller without retrying.
	ClassLogical
)

// Classifier sorts an error returned by a call into one of the two
// classes above.
type Classifier func(error) ErrorClass

// Dialer opens a fresh upstream connection, returning a typed client C to
// invoke RPCs on and an io.Closer to release the connection later.
type Dialer[C any] func(ctx context.Context) (C, io.Closer, error)

// Proxy is the reconnecting wrapper around one upstream connection.
type Proxy[C any] struct {
	dial     Dialer[C]
	classify Classifier
	limiter  *rate.Limiter
	interval time.Duration

	mu          sync.Mutex
	client      C
	closer      io.Closer
	connected   bool
	nextAttempt time.Time
}

// New creates a Proxy. reconnectInterval is the minimum time between dial
// attempts after a transport failure; backoff is enforced with a
// golang.org/x/time/rate limiter configured to one permit per interval.
func New[C any](dial Dialer[C], classify Classifier, reconnectInterval time.Duration) *Proxy[C] {
	if reconnectInterval <= 0 {
		reconnectInterval = time.Second
	}
	return &Proxy[C]{
		dial:     dial,
		classify: classify,
		limiter:  rate.NewLimiter(rate.Every(reconnectInterval), 1),
		interval: reconnectInterval,
	}
}

// Invoke calls fn against the current connection, reconnecting and
// retrying with backoff on every ClassTransport error, until fn succeeds,
// fn returns a ClassLogical error (returned immediately), or ctx is
// cancelled.
func (p *Proxy[C]) Invoke(ctx context.Context, fn func(C) error) error {
	for {
		client, err := p.connect(ctx)
		if err != nil {
			// connect has already waited out the backoff; only a
			// cancelled context ends the retry loop.
			if ctx.Err() != nil {
				return err
			}
			continue
		}

		if err := fn(client); err != nil {
			if p.classify(err) == ClassLogical {
				return err
			}
			p.disconnect()
			if err := p.backoff(ctx); err != nil {
				return err
			}
			continue
		}
		return nil
	}
}

// connect returns the current connection, dialing a new one if needed.
func (p *Proxy[C]) connect(ctx context.Context) (C, error) {
	p.mu.Lock()
	if p.connected {
		client := p.client
		p.mu.Unlock()
		return client, nil
	}
	p.mu.Unlock()

	client, closer, err := p.dial(ctx)
	if err != nil {
		var zero C
		if berr := p.backoff(ctx); berr != nil {
			return zero, berr
		}
		return zero, fmt.Errorf("rpcproxy: dial failed: %w", err)
	}

	p.mu.Lock()
	p.client = client
	p.closer = closer
	p.connected = true
	p.mu.Unlock()
	return client, nil
}

// disconnect drops the current connection so the next connect redials.
func (p *Proxy[C]) disconnect() {
	p.mu.Lock()
	closer := p.closer
	p.connected = false
	p.mu.Unlock()
	if closer != nil {
		_ = closer.Close()
	}
}

// backoff waits for the next permitted attempt, recording the deadline so
// Countdown can report it, or returns ctx.Err() if ctx is cancelled first.
func (p *Proxy[C]) backoff(ctx context.Context) error {
	reservation := p.limiter.Reserve()
	delay := reservation.Delay()

	p.mu.Lock()
	p.nextAttempt = time.Now().Add(delay)
	p.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}

// Countdown reports the time remaining until the next reconnect attempt is
// permitted, for surfacing as a monitoring gauge. Zero if no backoff is in
// progress.
func (p *Proxy[C]) Countdown() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if remaining := time.Until(p.nextAttempt); remaining > 0 {
		return remaining
	}
	return 0
}

// Connected reports whether the proxy currently holds a live connection.
func (p *Proxy[C]) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Close releases the current connection, if any.
func (p *Proxy[C]) Close() error {
	p.mu.Lock()
	closer := p.closer
	p.connected = false
	p.mu.Unlock()
	if closer == nil {
		return nil
	}
	return closer.Close()
}
