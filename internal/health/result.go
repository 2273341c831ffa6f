package health

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sentinel is reported for block fields that could not be determined.
const Sentinel = "---"

// Keys of the nested result records.
const (
	LastBlockKey = "last_block"
	DaemonKey    = "monerod"
	RPCKey       = "rpc"
	P2PKey       = "p2p"
)

// ErrorInfo explains a non-OK result. Error holds the raw cause, Message a
// human readable summary.
type ErrorInfo struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// BlockAge is the time elapsed between the tip's timestamp and the check.
// An unknown age is encoded as -1.
type BlockAge struct {
	Age   time.Duration
	Known bool
}

func (a BlockAge) String() string {
	if !a.Known {
		return "-1"
	}
	return a.Age.String()
}

func (a BlockAge) MarshalJSON() ([]byte, error) {
	if !a.Known {
		return []byte("-1"), nil
	}
	return json.Marshal(a.Age.String())
}

func (a *BlockAge) UnmarshalJSON(data []byte) error {
	if string(data) == "-1" {
		*a = BlockAge{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("block age: %w", err)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("block age: %w", err)
	}
	*a = BlockAge{Age: d, Known: true}
	return nil
}

// LastBlockResult is the outcome of the last block check.
type LastBlockResult struct {
	Status         Status     `json:"status"`
	Hash           string     `json:"hash"`
	BlockAge       BlockAge   `json:"block_age"`
	BlockTimestamp string     `json:"block_timestamp"`
	CheckTimestamp string     `json:"check_timestamp"`
	BlockRecent    bool       `json:"block_recent"`
	Offset         int        `json:"block_recent_offset"`
	OffsetUnit     string     `json:"block_recent_offset_unit"`
	Host           string     `json:"host"`
	Error          *ErrorInfo `json:"error,omitempty"`
}

// RPCResult is the outcome of the daemon RPC status check.
// Version is -1 when it could not be determined.
type RPCResult struct {
	Status  Status     `json:"status"`
	Version int        `json:"version"`
	Host    string     `json:"host"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// P2PResult is the outcome of the P2P reachability check.
type P2PResult struct {
	Status Status     `json:"status"`
	Host   string     `json:"host"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

// DaemonResult combines the RPC and P2P checks. P2P is always present but
// only counts towards Status when the caller asked for it.
type DaemonResult struct {
	Status Status    `json:"status"`
	Host   string    `json:"host"`
	RPC    RPCResult `json:"rpc"`
	P2P    P2PResult `json:"p2p"`
}

// CombinedResult is the overall health verdict.
type CombinedResult struct {
	Status    Status          `json:"status"`
	Host      string          `json:"host"`
	LastBlock LastBlockResult `json:"last_block"`
	Daemon    DaemonResult    `json:"monerod"`
}

// Errors lists the error messages of all non-OK sub checks, prefixed with
// the key of the check that produced them.
func (r CombinedResult) Errors() []string {
	var out []string
	add := func(key string, e *ErrorInfo) {
		if e != nil {
			out = append(out, fmt.Sprintf("%s: %s (%s)", key, e.Message, e.Error))
		}
	}
	add(LastBlockKey, r.LastBlock.Error)
	add(DaemonKey+"."+RPCKey, r.Daemon.RPC.Error)
	add(DaemonKey+"."+P2PKey, r.Daemon.P2P.Error)
	return out
}

// failure builds the error record for a non-OK status and nil otherwise.
// cause falls back to the message when empty.
func failure(status Status, cause, message string) *ErrorInfo {
	if status == StatusOK {
		return nil
	}
	if cause == "" {
		cause = message
	}
	return &ErrorInfo{Error: cause, Message: message}
}

// statusMessage is the summary used by the RPC and P2P checks.
func statusMessage(status Status) string {
	if status == StatusError {
		return fmt.Sprintf("Status is '%s'.", status)
	}
	return "Cannot determine status."
}
