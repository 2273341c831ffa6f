package health

// Status is the tri-state outcome of a check.
type Status string

const (
	StatusOK      Status = "OK"
	StatusError   Status = "ERROR"
	StatusUnknown Status = "UNKNOWN"
)

// Weight returns the aggregation precedence of s. Higher is worse.
// Values outside the three known statuses weigh -1.
func (s Status) Weight() int {
	switch s {
	case StatusOK:
		return 0
	case StatusUnknown:
		return 1
	case StatusError:
		return 2
	default:
		return -1
	}
}

// statusForWeight maps a precedence weight back to its status.
// Anything that is not a known weight becomes UNKNOWN.
func statusForWeight(w int) Status {
	switch w {
	case 0:
		return StatusOK
	case 2:
		return StatusError
	default:
		return StatusUnknown
	}
}

// ParseStatus maps a daemon-reported status string onto a Status.
// Unrecognized strings are UNKNOWN.
func ParseStatus(s string) Status {
	switch st := Status(s); st {
	case StatusOK, StatusError, StatusUnknown:
		return st
	default:
		return StatusUnknown
	}
}

// Aggregate returns the worst of the given statuses (ERROR > UNKNOWN > OK).
// With no inputs, or only unrecognized ones, the result is UNKNOWN.
func Aggregate(statuses ...Status) Status {
	worst := -1
	for _, s := range statuses {
		if w := s.Weight(); w > worst {
			worst = w
		}
	}
	return statusForWeight(worst)
}
