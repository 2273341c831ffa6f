// Package probe tests whether a TCP endpoint accepts connections.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// DefaultTimeout bounds a probe when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// TCPProber connects to an address and closes the connection straight away.
// No protocol handshake is performed.
type TCPProber struct {
	timeout time.Duration
}

// NewTCPProber returns a TCPProber. A non-positive timeout means DefaultTimeout.
func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TCPProber{timeout: timeout}
}

// Probe dials address and closes the connection. The returned error wraps
// the dial error so IsRefused can classify it; nil means the connect succeeded.
func (p *TCPProber) Probe(ctx context.Context, address string) error {
	dialer := &net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("dial tcp %s: %w", address, err)
	}
	// The connect is the verdict; a failing close does not change it.
	_ = conn.Close()
	return nil
}

// IsRefused reports whether err means the peer was reachable but rejected
// the connection: refused, reset or aborted.
func IsRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED)
}
