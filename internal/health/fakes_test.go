package health_test

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/monero-ecosystem/monerohealth/internal/health"
	"github.com/monero-ecosystem/monerohealth/internal/monerod"
)

const testHash = "3f82c93e6f7726a54724d0b8b1026bec878af449bc2f97e9a916c6af72a6367a"

// blockTime is the timestamp of the fake chain tip, 2019-12-20T07:55:33Z.
var blockTime = time.Unix(1576828533, 0).UTC()

// fakeRPC implements health.DaemonRPC with canned answers.
type fakeRPC struct {
	header    monerod.BlockHeader
	headerErr error
	info      monerod.HardForkInfo
	infoErr   error
}

func (f *fakeRPC) LastBlockHeader(_ context.Context) (monerod.BlockHeader, error) {
	return f.header, f.headerErr
}

func (f *fakeRPC) HardForkInfo(_ context.Context) (monerod.HardForkInfo, error) {
	return f.info, f.infoErr
}

func healthyRPC() *fakeRPC {
	return &fakeRPC{
		header: monerod.BlockHeader{Hash: testHash, Timestamp: blockTime.Unix(), Height: 2000000},
		info:   monerod.HardForkInfo{Status: "OK", Version: 12},
	}
}

// fakeProber implements health.Prober and records the probed addresses.
type fakeProber struct {
	err error

	mu    sync.Mutex
	addrs []string
}

func (p *fakeProber) Probe(_ context.Context, address string) error {
	p.mu.Lock()
	p.addrs = append(p.addrs, address)
	p.mu.Unlock()
	return p.err
}

// dialTo returns a dialer handing out rpc and recording the dialed endpoints.
func dialTo(rpc health.DaemonRPC, dialed *[]health.Endpoint) health.RPCDialer {
	var mu sync.Mutex
	return func(ep health.Endpoint) health.DaemonRPC {
		if dialed != nil {
			mu.Lock()
			*dialed = append(*dialed, ep)
			mu.Unlock()
		}
		return rpc
	}
}

// newChecker builds a Checker with an observed logger and a clock fixed at now.
func newChecker(rpc health.DaemonRPC, prober health.Prober, now time.Time) (*health.Checker, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := health.NewChecker(dialTo(rpc, nil), prober, zap.New(core))
	c.SetClock(func() time.Time { return now })
	return c, logs
}

func defaultEndpoint() health.Endpoint {
	return health.Endpoint{Host: "127.0.0.1", Port: 18081}
}

func defaultRequest() health.Request {
	return health.Request{
		Host:    "127.0.0.1",
		RPCPort: 18081,
		P2PPort: 18080,
		Offset:  health.DefaultOffset,
	}
}

func levelCount(logs *observer.ObservedLogs, level zapcore.Level) int {
	return logs.FilterLevelExact(level).Len()
}
