// Package monerod is a small JSON-RPC client for the Monero daemon.
package monerod

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/icholy/digest"

	"github.com/monero-ecosystem/monerohealth/internal/version"
)

// DefaultTimeout bounds a single RPC call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 4 << 20

// Config describes how to reach a daemon.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

// RPCError is an error object returned by the daemon.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// BlockHeader is the subset of a block header used by the health checks.
type BlockHeader struct {
	Hash         string `json:"hash"`
	Height       uint64 `json:"height"`
	Timestamp    int64  `json:"timestamp"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
	NumTxes      int    `json:"num_txes"`
	OrphanStatus bool   `json:"orphan_status"`
}

// HardForkInfo is the result of the hard_fork_info call.
type HardForkInfo struct {
	Status         string `json:"status"`
	Version        int    `json:"version"`
	Enabled        bool   `json:"enabled"`
	EarliestHeight uint64 `json:"earliest_height"`
	State          int    `json:"state"`
	Threshold      int    `json:"threshold"`
	Votes          int    `json:"votes"`
	Voting         int    `json:"voting"`
	Window         int    `json:"window"`
}

// Client calls the daemon's /json_rpc endpoint. Requests are authenticated
// with HTTP digest auth when a user is configured.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient returns a Client for the daemon described by cfg.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.User != "" {
		transport = &digest.Transport{
			Username: cfg.User,
			Password: cfg.Password,
		}
	}

	return &Client{
		endpoint: fmt.Sprintf("http://%s/json_rpc", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Endpoint returns the URL the client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// LastBlockHeader returns the header of the daemon's chain tip.
func (c *Client) LastBlockHeader(ctx context.Context) (BlockHeader, error) {
	var result struct {
		BlockHeader *BlockHeader `json:"block_header"`
	}
	if err := c.call(ctx, "get_last_block_header", &result); err != nil {
		return BlockHeader{}, err
	}
	if result.BlockHeader == nil {
		return BlockHeader{}, errors.New("get_last_block_header: missing block_header")
	}
	h := *result.BlockHeader
	if h.Hash == "" || h.Timestamp == 0 {
		return BlockHeader{}, errors.New("get_last_block_header: incomplete block_header")
	}
	return h, nil
}

// HardForkInfo returns the daemon's hard fork and consensus status.
func (c *Client) HardForkInfo(ctx context.Context) (HardForkInfo, error) {
	var result HardForkInfo
	if err := c.call(ctx, "hard_fork_info", &result); err != nil {
		return HardForkInfo{}, err
	}
	if result.Status == "" {
		return HardForkInfo{}, errors.New("hard_fork_info: missing status")
	}
	return result, nil
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, result any) error {
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: "0", Method: method})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return fmt.Errorf("%s: empty result", method)
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("parse %s result: %w", method, err)
	}
	return nil
}
