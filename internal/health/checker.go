// Package health decides whether a Monero daemon is healthy. It reduces the
// last block's age, the daemon's hard fork status and P2P reachability to
// tri-state statuses and combines them, worst status first.
//
// None of the checks return errors: every failure is reported through the
// Status and Error fields of the result.
package health

import (
	"context"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/monero-ecosystem/monerohealth/internal/monerod"
	"github.com/monero-ecosystem/monerohealth/internal/probe"
)

// DaemonRPC is the part of the monerod JSON-RPC API the checks rely on.
type DaemonRPC interface {
	LastBlockHeader(ctx context.Context) (monerod.BlockHeader, error)
	HardForkInfo(ctx context.Context) (monerod.HardForkInfo, error)
}

// RPCDialer returns an RPC client for the daemon behind ep.
type RPCDialer func(ep Endpoint) DaemonRPC

// Prober attempts a connection to address and reports why it failed, if it did.
type Prober interface {
	Probe(ctx context.Context, address string) error
}

// Endpoint addresses a daemon's RPC interface.
type Endpoint struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Request holds the parameters of a daemon or combined check.
type Request struct {
	Host        string
	RPCPort     int
	P2PPort     int
	User        string
	Password    string
	Offset      Offset
	ConsiderP2P bool
}

// RPCEndpoint returns the RPC endpoint described by r.
func (r Request) RPCEndpoint() Endpoint {
	return Endpoint{Host: r.Host, Port: r.RPCPort, User: r.User, Password: r.Password}
}

// Checker runs the health checks against the collaborators it was built with.
// It holds no state between calls and is safe for concurrent use.
type Checker struct {
	dial   RPCDialer
	prober Prober
	logger *zap.Logger
	now    func() time.Time
}

// NewChecker creates a Checker. A nil dialer talks to monerod with the default
// client settings, a nil prober dials TCP with the default timeout and a nil
// logger discards logs.
func NewChecker(dial RPCDialer, prober Prober, logger *zap.Logger) *Checker {
	if dial == nil {
		dial = DefaultDialer(monerod.DefaultTimeout)
	}
	if prober == nil {
		prober = probe.NewTCPProber(probe.DefaultTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		dial:   dial,
		prober: prober,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source used for check timestamps.
func (c *Checker) SetClock(now func() time.Time) {
	c.now = now
}

// DefaultDialer returns an RPCDialer creating monerod clients with the given
// request timeout.
func DefaultDialer(timeout time.Duration) RPCDialer {
	return func(ep Endpoint) DaemonRPC {
		return monerod.NewClient(monerod.Config{
			Host:     ep.Host,
			Port:     ep.Port,
			User:     ep.User,
			Password: ep.Password,
			Timeout:  timeout,
		})
	}
}
