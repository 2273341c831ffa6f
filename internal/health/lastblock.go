package health

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LastBlock checks whether the daemon's chain tip is younger than offset.
// The tip is OK when recent, ERROR when too old and UNKNOWN when its age
// could not be determined.
func (c *Checker) LastBlock(ctx context.Context, ep Endpoint, offset Offset) LastBlockResult {
	now := c.now().UTC().Truncate(time.Second)
	host := ep.Address()
	c.logger.Info("checking daemon", zap.String("host", host))

	res := LastBlockResult{
		Status:         StatusUnknown,
		Hash:           Sentinel,
		BlockTimestamp: Sentinel,
		CheckTimestamp: now.Format(time.RFC3339),
		Host:           host,
	}

	var (
		blockTime time.Time
		cause     string
	)
	header, err := c.dial(ep).LastBlockHeader(ctx)
	if err != nil {
		cause = err.Error()
	} else {
		blockTime = time.Unix(header.Timestamp, 0).UTC()
		res.Hash = header.Hash
		res.BlockTimestamp = blockTime.Format(time.RFC3339)
		res.BlockAge = BlockAge{Age: now.Sub(blockTime), Known: true}
	}

	recency, applied := EvaluateOffset(c.logger, blockTime, now, offset)
	res.Offset = applied.Amount
	res.OffsetUnit = applied.Unit
	switch recency {
	case RecencyRecent:
		res.Status = StatusOK
		res.BlockRecent = true
	case RecencyStale:
		res.Status = StatusError
	}

	message := "Cannot determine status."
	if res.Status == StatusError {
		message = fmt.Sprintf("Last block's timestamp is older than '%s'.", applied)
		if cause == "" {
			cause = fmt.Sprintf("Last block's age is '%s'.", res.BlockAge)
		}
	}
	res.Error = failure(res.Status, cause, message)
	if res.Error != nil {
		c.logger.Error(res.Error.Message, zap.String("error", res.Error.Error))
	}
	return res
}
