package health

import (
	"context"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/monero-ecosystem/monerohealth/internal/probe"
)

// P2PStatus connects to the daemon's P2P port. A refused, reset or aborted
// connection is ERROR: the host answered but rejected us. Any other failure
// (resolution, routing, timeout) is UNKNOWN.
func (c *Checker) P2PStatus(ctx context.Context, host string, port int) P2PResult {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	c.logger.Info("checking daemon", zap.String("host", address))

	res := P2PResult{Host: address}

	var cause string
	err := c.prober.Probe(ctx, address)
	switch {
	case err == nil:
		res.Status = StatusOK
	case probe.IsRefused(err):
		res.Status = StatusError
		cause = err.Error()
	default:
		res.Status = StatusUnknown
		cause = err.Error()
	}

	res.Error = failure(res.Status, cause, statusMessage(res.Status))
	if res.Error != nil {
		c.logger.Error(res.Error.Message, zap.String("error", res.Error.Error))
	}
	return res
}
