// Package networking provides port allocation and readiness probing for the
// local tool server.
package networking

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dockhand-sh/dockhand/pkg/logger"
)

const (
	// MaxPort is the highest port number an allocation attempt may reach.
	MaxPort = 65535

	// bindTimeout bounds each individual bind attempt.
	bindTimeout = 2 * time.Second
)

// RangeExhaustedError reports that every port in [First, Last] was occupied.
// It is recoverable: callers may retry on a disjoint range.
type RangeExhaustedError struct {
	First int
	Last  int
	Cause error
}

// Error returns the error message.
func (e *RangeExhaustedError) Error() string {
	return fmt.Sprintf("no free port in range %d-%d: %v", e.First, e.Last, e.Cause)
}

// Unwrap returns the last bind failure in the range.
func (e *RangeExhaustedError) Unwrap() error {
	return e.Cause
}

// AllocateListener binds a TCP listener on the first free port starting at
// preferred, scanning sequentially through at most maxRetries additional
// ports. It hands back the bound listener rather than a probed port number,
// so there is no window between "checked free" and "bound" for another
// process to steal the port.
//
// On exhaustion it returns a *RangeExhaustedError carrying the scanned range.
func AllocateListener(ctx context.Context, host string, preferred, maxRetries int) (net.Listener, error) {
	if preferred <= 0 || preferred > MaxPort {
		return nil, fmt.Errorf("invalid preferred port %d", preferred)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	last := preferred + maxRetries
	if last > MaxPort {
		last = MaxPort
	}

	var lastErr error
	for port := preferred; port <= last; port++ {
		bindCtx, cancel := context.WithTimeout(ctx, bindTimeout)
		lc := net.ListenConfig{}
		listener, err := lc.Listen(bindCtx, "tcp", fmt.Sprintf("%s:%d", host, port))
		cancel()
		if err == nil {
			if port != preferred {
				logger.Debugf("Port %d was busy, bound %d instead", preferred, port)
			}
			return listener, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	return nil, &RangeExhaustedError{First: preferred, Last: last, Cause: lastErr}
}

// IsAvailable checks if a TCP port can currently be bound. It is inherently
// racy (the port may be taken between the probe and a later bind) and is
// intended for diagnostics only; use AllocateListener to actually claim a port.
func IsAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// WaitForReady polls url until it answers with a 2xx status, using
// exponential backoff bounded by the context deadline and maxWait.
func WaitForReady(ctx context.Context, url string, maxWait time.Duration) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 50 * time.Millisecond
	expBackoff.MaxInterval = time.Second

	client := &http.Client{Timeout: bindTimeout}
	operation := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxElapsedTime(maxWait),
	)
	if err != nil {
		return fmt.Errorf("server at %s not ready: %w", url, err)
	}
	return nil
}
