package health

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Offset is the maximum tolerated age of the chain tip, e.g. 12 minutes.
type Offset struct {
	Amount int    `json:"amount" yaml:"amount"`
	Unit   string `json:"unit" yaml:"unit"`
}

// DefaultOffset is used whenever a configured offset cannot be turned into a duration.
var DefaultOffset = Offset{Amount: 12, Unit: "minutes"}

var offsetUnits = map[string]time.Duration{
	"weeks":        7 * 24 * time.Hour,
	"days":         24 * time.Hour,
	"hours":        time.Hour,
	"minutes":      time.Minute,
	"seconds":      time.Second,
	"milliseconds": time.Millisecond,
	"microseconds": time.Microsecond,
}

func (o Offset) String() string {
	return fmt.Sprintf("%d [%s]", o.Amount, o.Unit)
}

// Duration converts o into a time.Duration. It fails for unknown units and
// for amounts that do not fit into a time.Duration.
func (o Offset) Duration() (time.Duration, error) {
	unit, ok := offsetUnits[o.Unit]
	if !ok {
		return 0, fmt.Errorf("unknown offset unit %q", o.Unit)
	}
	d := time.Duration(o.Amount) * unit
	if d/unit != time.Duration(o.Amount) {
		return 0, fmt.Errorf("offset %s overflows", o)
	}
	return d, nil
}

// Recency is the verdict of EvaluateOffset.
type Recency int

const (
	// RecencyUndetermined means no comparison was possible. Callers report UNKNOWN.
	RecencyUndetermined Recency = iota
	RecencyRecent
	RecencyStale
)

// EvaluateOffset reports whether timestamp lies within offset of now. A zero
// timestamp or now yields RecencyUndetermined. An unusable offset is replaced
// by DefaultOffset with a warning; the returned Offset is the one actually
// applied. The boundary is inclusive: an age equal to the offset is recent.
func EvaluateOffset(logger *zap.Logger, timestamp, now time.Time, offset Offset) (Recency, Offset) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tolerance, err := offset.Duration()
	if err != nil {
		logger.Warn(fmt.Sprintf("Using default offset of '%s'. Configured wrong offset '%s'.", DefaultOffset, offset),
			zap.Error(err),
		)
		offset = DefaultOffset
		tolerance, _ = DefaultOffset.Duration()
	}

	if timestamp.IsZero() || now.IsZero() {
		return RecencyUndetermined, offset
	}

	if now.Sub(timestamp) <= tolerance {
		return RecencyRecent, offset
	}
	return RecencyStale, offset
}
