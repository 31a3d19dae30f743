package scheduler

import (
	"fmt"
	"strings"
)

// OverlapPolicy decides what happens to firings missed while an
// activation was still running.
type OverlapPolicy int

const (
	// Coalesce collapses missed firings into one immediate activation.
	Coalesce OverlapPolicy = iota
	// Skip drops missed firings; the next activation waits for the next period.
	Skip
)

func (p OverlapPolicy) String() string {
	switch p {
	case Coalesce:
		return "coalesce"
	case Skip:
		return "skip"
	default:
		return fmt.Sprintf("overlap(%d)", int(p))
	}
}

// ParseOverlapPolicy parses "coalesce" or "skip". Empty selects Coalesce.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "coalesce":
		return Coalesce, nil
	case "skip":
		return Skip, nil
	default:
		return 0, fmt.Errorf("unknown overlap policy %q", s)
	}
}

// FailurePolicy decides what an advance failure does to the tick loop.
type FailurePolicy int

const (
	// Halt stops the loop on the first failure and records it.
	Halt FailurePolicy = iota
	// Continue logs the failure and keeps ticking.
	Continue
)

func (p FailurePolicy) String() string {
	switch p {
	case Halt:
		return "halt"
	case Continue:
		return "continue"
	default:
		return fmt.Sprintf("failure(%d)", int(p))
	}
}

// ParseFailurePolicy parses "halt" or "continue". Empty selects Halt.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "halt":
		return Halt, nil
	case "continue":
		return Continue, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q", s)
	}
}
