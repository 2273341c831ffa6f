package health

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RPCStatus checks the status the daemon reports through hard_fork_info.
// Transport and protocol failures are UNKNOWN with version -1.
func (c *Checker) RPCStatus(ctx context.Context, ep Endpoint) RPCResult {
	host := ep.Address()
	c.logger.Info("checking daemon", zap.String("host", host))

	res := RPCResult{
		Status:  StatusUnknown,
		Version: -1,
		Host:    host,
	}

	var cause string
	info, err := c.dial(ep).HardForkInfo(ctx)
	if err != nil {
		cause = err.Error()
	} else {
		res.Status = ParseStatus(info.Status)
		res.Version = info.Version
		if res.Status != StatusOK {
			cause = fmt.Sprintf("Status is '%s'.", info.Status)
		}
	}

	res.Error = failure(res.Status, cause, statusMessage(res.Status))
	if res.Error != nil {
		c.logger.Error(res.Error.Message, zap.String("error", res.Error.Error))
	}
	return res
}
