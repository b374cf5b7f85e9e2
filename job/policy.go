package job

import "fmt"

// TimeoutPolicy governs what happens to a job whose handler exceeded its
// wall-clock limit.
type TimeoutPolicy uint8

const (
	// TimeoutRetry decrements the retry budget and reschedules the job if
	// any budget remains; otherwise the job becomes terminal TIMEOUT.
	TimeoutRetry TimeoutPolicy = iota

	// TimeoutFail makes the job terminal TIMEOUT immediately, recording
	// the timeout as an error.
	TimeoutFail

	// TimeoutIgnore acknowledges the job and records a TIMEOUT outcome
	// without a traceback and without consuming retries.
	TimeoutIgnore
)

func policyToString(p TimeoutPolicy) string {
	switch p {
	case TimeoutRetry:
		return "retry"
	case TimeoutFail:
		return "fail"
	case TimeoutIgnore:
		return "ignore"
	default:
		return "retry"
	}
}

func policyFromString(p string) (TimeoutPolicy, error) {
	switch p {
	case "retry":
		return TimeoutRetry, nil
	case "fail":
		return TimeoutFail, nil
	case "ignore":
		return TimeoutIgnore, nil
	default:
		return 0, fmt.Errorf("unknown timeout policy: %s", p)
	}
}

// ParseTimeoutPolicy converts a canonical string ("retry", "fail",
// "ignore") into a TimeoutPolicy. An error is returned for unrecognized
// strings.
func ParseTimeoutPolicy(s string) (TimeoutPolicy, error) {
	return policyFromString(s)
}

// MarshalText implements encoding.TextMarshaler.
func (p TimeoutPolicy) MarshalText() ([]byte, error) {
	return []byte(policyToString(p)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *TimeoutPolicy) UnmarshalText(text []byte) error {
	policy, err := policyFromString(string(text))
	if err != nil {
		return err
	}
	*p = policy
	return nil
}

// String returns the canonical string representation of the policy.
func (p TimeoutPolicy) String() string {
	return policyToString(p)
}
