package health

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DaemonStatus folds the RPC status and, if considerP2P is set, the P2P
// status into one status.
func DaemonStatus(rpc, p2p Status, considerP2P bool) Status {
	if considerP2P {
		return Aggregate(rpc, p2p)
	}
	return Aggregate(rpc)
}

// CombinedStatus folds the last block and daemon statuses into one status.
func CombinedStatus(lastBlock, daemon Status) Status {
	return Aggregate(lastBlock, daemon)
}

// Daemon runs the RPC and P2P checks concurrently and combines them. The P2P
// result is always included; it only affects Status when req.ConsiderP2P is set.
func (c *Checker) Daemon(ctx context.Context, req Request) DaemonResult {
	var res DaemonResult

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.RPC = c.RPCStatus(ctx, req.RPCEndpoint())
	}()
	go func() {
		defer wg.Done()
		res.P2P = c.P2PStatus(ctx, req.Host, req.P2PPort)
	}()
	wg.Wait()

	res.Status = DaemonStatus(res.RPC.Status, res.P2P.Status, req.ConsiderP2P)
	res.Host = req.Host

	c.logger.Info(fmt.Sprintf("Combined daemon status (RPC, P2P) is '%s'.", res.Status),
		zap.String("status", string(res.Status)),
		zap.Bool("consider_p2p", req.ConsiderP2P),
	)
	return res
}

// Combined runs the last block check and the daemon checks concurrently and
// reports the worst of their statuses.
func (c *Checker) Combined(ctx context.Context, req Request) CombinedResult {
	var res CombinedResult

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.LastBlock = c.LastBlock(ctx, req.RPCEndpoint(), req.Offset)
	}()
	go func() {
		defer wg.Done()
		res.Daemon = c.Daemon(ctx, req)
	}()
	wg.Wait()

	res.Status = CombinedStatus(res.LastBlock.Status, res.Daemon.Status)
	res.Host = req.Host

	c.logger.Info(fmt.Sprintf("Combined status is '%s'.", res.Status),
		zap.String("status", string(res.Status)),
	)
	return res
}
