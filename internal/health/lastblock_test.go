package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/monero-ecosystem/monerohealth/internal/health"
	"github.com/monero-ecosystem/monerohealth/internal/monerod"
)

func TestLastBlock_Recent(t *testing.T) {
	now := blockTime.Add(19 * time.Second)
	c, logs := newChecker(healthyRPC(), &fakeProber{}, now)

	res := c.LastBlock(context.Background(), defaultEndpoint(), health.DefaultOffset)

	if res.Status != health.StatusOK {
		t.Errorf("expected OK, got %q (error: %+v)", res.Status, res.Error)
	}
	if !res.BlockRecent {
		t.Error("expected block_recent")
	}
	if res.Offset != 12 || res.OffsetUnit != "minutes" {
		t.Errorf("unexpected offset %d [%s]", res.Offset, res.OffsetUnit)
	}
	if res.Hash != testHash {
		t.Errorf("unexpected hash %q", res.Hash)
	}
	if res.BlockTimestamp != "2019-12-20T07:55:33Z" {
		t.Errorf("unexpected block timestamp %q", res.BlockTimestamp)
	}
	if res.CheckTimestamp != "2019-12-20T07:55:52Z" {
		t.Errorf("unexpected check timestamp %q", res.CheckTimestamp)
	}
	if !res.BlockAge.Known || res.BlockAge.Age != 19*time.Second {
		t.Errorf("unexpected block age %v", res.BlockAge)
	}
	if res.Host != "127.0.0.1:18081" {
		t.Errorf("unexpected host %q", res.Host)
	}
	if res.Error != nil {
		t.Errorf("expected no error, got %+v", res.Error)
	}

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Level != zapcore.InfoLevel {
		t.Errorf("expected INFO, got %v", entry.Level)
	}
	if entry.ContextMap()["host"] != "127.0.0.1:18081" {
		t.Errorf("expected host field, got %v", entry.ContextMap())
	}
}

func TestLastBlock_TooOld(t *testing.T) {
	now := time.Date(2020, 1, 7, 12, 22, 31, 0, time.UTC)
	c, logs := newChecker(healthyRPC(), &fakeProber{}, now)

	res := c.LastBlock(context.Background(), defaultEndpoint(), health.DefaultOffset)

	if res.Status != health.StatusError {
		t.Errorf("expected ERROR, got %q", res.Status)
	}
	if res.BlockRecent {
		t.Error("expected block_recent to be false")
	}
	if res.Hash != testHash {
		t.Errorf("unexpected hash %q", res.Hash)
	}
	if res.Error == nil {
		t.Fatal("expected error record")
	}
	if res.Error.Message != "Last block's timestamp is older than '12 [minutes]'." {
		t.Errorf("unexpected message %q", res.Error.Message)
	}
	if !strings.HasPrefix(res.Error.Error, "Last block's age is '") {
		t.Errorf("unexpected cause %q", res.Error.Error)
	}

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	if len(errs) != 1 {
		t.Fatalf("expected 1 ERROR entry, got %d", len(errs))
	}
	if errs[0].Message != res.Error.Message {
		t.Errorf("unexpected log message %q", errs[0].Message)
	}
	if errs[0].ContextMap()["error"] != res.Error.Error {
		t.Errorf("expected error field %q, got %v", res.Error.Error, errs[0].ContextMap())
	}
}

func TestLastBlock_JustOverOffset(t *testing.T) {
	now := blockTime.Add(12*time.Minute + time.Second)
	c, _ := newChecker(healthyRPC(), &fakeProber{}, now)

	res := c.LastBlock(context.Background(), defaultEndpoint(), health.DefaultOffset)

	if res.Status != health.StatusError {
		t.Fatalf("expected ERROR, got %q", res.Status)
	}
	if res.Error.Error != "Last block's age is '12m1s'." {
		t.Errorf("unexpected cause %q", res.Error.Error)
	}
}

func TestLastBlock_ExactlyAtOffset(t *testing.T) {
	now := blockTime.Add(12 * time.Minute)
	c, _ := newChecker(healthyRPC(), &fakeProber{}, now)

	res := c.LastBlock(context.Background(), defaultEndpoint(), health.DefaultOffset)
	if res.Status != health.StatusOK {
		t.Errorf("expected OK at the boundary, got %q", res.Status)
	}
}

func TestLastBlock_CheckTimestampTruncated(t *testing.T) {
	now := blockTime.Add(19*time.Second + 750*time.Millisecond)
	c, _ := newChecker(healthyRPC(), &fakeProber{}, now)

	res := c.LastBlock(context.Background(), defaultEndpoint(), health.DefaultOffset)
	if res.CheckTimestamp != "2019-12-20T07:55:52Z" {
		t.Errorf("unexpected check timestamp %q", res.CheckTimestamp)
	}
	if res.BlockAge.Age != 19*time.Second {
		t.Errorf("block age should use the truncated now, got %v", res.BlockAge.Age)
	}
}

func TestLastBlock_RPCFailures(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		cause string
	}{
		{"rpc error", &monerod.RPCError{Code: 11, Message: "Some Monero RPC error."}, "11: Some Monero RPC error."},
		{"read timeout", errors.New("Request timed out when reading response."), "Request timed out when reading response."},
		{"connection error", errors.New("Error when connecting."), "Error when connecting."},
		{"malformed", errors.New("parse response: invalid character '<'"), "parse response: invalid character '<'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := &fakeRPC{headerErr: tt.err}
			c, logs := newChecker(rpc, &fakeProber{}, time.Now())

			res := c.LastBlock(context.Background(), defaultEndpoint(), health.DefaultOffset)

			if res.Status != health.StatusUnknown {
				t.Errorf("expected UNKNOWN, got %q", res.Status)
			}
			if res.BlockRecent {
				t.Error("expected block_recent to be false")
			}
			if res.Offset != 12 || res.OffsetUnit != "minutes" {
				t.Errorf("unexpected offset %d [%s]", res.Offset, res.OffsetUnit)
			}
			if res.Hash != health.Sentinel || res.BlockTimestamp != health.Sentinel {
				t.Errorf("expected sentinels, got hash %q timestamp %q", res.Hash, res.BlockTimestamp)
			}
			if res.BlockAge.Known {
				t.Errorf("expected unknown block age, got %v", res.BlockAge)
			}
			if res.Host != "127.0.0.1:18081" {
				t.Errorf("unexpected host %q", res.Host)
			}
			if res.Error == nil {
				t.Fatal("expected error record")
			}
			if res.Error.Error != tt.cause {
				t.Errorf("unexpected cause %q", res.Error.Error)
			}
			if res.Error.Message != "Cannot determine status." {
				t.Errorf("unexpected message %q", res.Error.Message)
			}

			errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
			if len(errs) != 1 {
				t.Fatalf("expected 1 ERROR entry, got %d", len(errs))
			}
			if errs[0].Message != "Cannot determine status." {
				t.Errorf("unexpected log message %q", errs[0].Message)
			}
			if errs[0].ContextMap()["error"] != tt.cause {
				t.Errorf("unexpected log error field %v", errs[0].ContextMap()["error"])
			}
		})
	}
}

func TestLastBlock_InvalidUnitReportsDefault(t *testing.T) {
	now := blockTime.Add(19 * time.Second)
	c, logs := newChecker(healthyRPC(), &fakeProber{}, now)

	res := c.LastBlock(context.Background(), defaultEndpoint(), health.Offset{Amount: 2, Unit: "fortnights"})

	if res.Status != health.StatusOK {
		t.Errorf("expected OK with default offset, got %q", res.Status)
	}
	if res.Offset != 12 || res.OffsetUnit != "minutes" {
		t.Errorf("expected effective default offset, got %d [%s]", res.Offset, res.OffsetUnit)
	}
	if levelCount(logs, zapcore.WarnLevel) != 1 {
		t.Errorf("expected 1 WARN entry, got %d", levelCount(logs, zapcore.WarnLevel))
	}
	if levelCount(logs, zapcore.ErrorLevel) != 0 {
		t.Errorf("a bad offset unit must not produce an ERROR entry")
	}
}

func TestLastBlock_UsesEndpoint(t *testing.T) {
	var dialed []health.Endpoint
	c := health.NewChecker(dialTo(healthyRPC(), &dialed), &fakeProber{}, nil)
	ep := health.Endpoint{Host: "node.example.com", Port: 28081, User: "monero", Password: "secret"}

	res := c.LastBlock(context.Background(), ep, health.DefaultOffset)

	if res.Host != "node.example.com:28081" {
		t.Errorf("unexpected host %q", res.Host)
	}
	if len(dialed) != 1 || dialed[0] != ep {
		t.Errorf("expected dial to %+v, got %+v", ep, dialed)
	}
}

func TestLastBlockResult_JSON(t *testing.T) {
	rpc := &fakeRPC{headerErr: errors.New("boom")}
	c, _ := newChecker(rpc, &fakeProber{}, time.Now())
	res := c.LastBlock(context.Background(), defaultEndpoint(), health.DefaultOffset)

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"hash", "block_age", "block_timestamp", "check_timestamp", "status",
		"block_recent", "block_recent_offset", "block_recent_offset_unit", "host", "error"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if m["block_age"] != float64(-1) {
		t.Errorf("expected block_age -1, got %v", m["block_age"])
	}
	if m["hash"] != "---" {
		t.Errorf("expected sentinel hash, got %v", m["hash"])
	}
}
