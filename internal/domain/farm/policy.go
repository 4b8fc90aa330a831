package farm

import (
	"fmt"
	"strings"
)

// Policy names a scheduling strategy.
type Policy string

const (
	// PolicyDynamic reassigns the next item to the first worker that reports
	// back.
	PolicyDynamic Policy = "dynamic"
	// PolicyStatic assigns every item up front by round-robin.
	PolicyStatic Policy = "static"
)

// String returns the string representation of the Policy.
func (p Policy) String() string { return string(p) }

// ParsePolicy converts a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyDynamic, "greedy", "optimized":
		return PolicyDynamic, nil
	case PolicyStatic, "round-robin", "rr":
		return PolicyStatic, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}
