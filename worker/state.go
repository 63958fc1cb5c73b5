package worker

import "fmt"

// State is the lifecycle stage of a worker. Transitions are strictly forward
// (Created → SettingUp → Mapping → CleaningUp → Terminated), with Failed
// reachable from any non-terminal state. A retried partition starts over from
// Created with a fresh worker incarnation.
type State int32

const (
	StateCreated State = iota
	StateSettingUp
	StateMapping
	StateCleaningUp
	StateTerminated
	StateFailed
)

// String implements the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSettingUp:
		return "setting_up"
	case StateMapping:
		return "mapping"
	case StateCleaningUp:
		return "cleaning_up"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Terminal returns true if no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateTerminated || s == StateFailed
}

// FailurePolicy governs how a worker reacts to a script error raised by a
// single map call.
type FailurePolicy int

const (
	// SkipAndContinue records the failing vertex and proceeds with the next
	// one. This is the default.
	SkipAndContinue FailurePolicy = iota

	// AbortPartition fails the whole partition on the first vertex error.
	AbortPartition
)

// String implements the fmt.Stringer interface.
func (p FailurePolicy) String() string {
	switch p {
	case SkipAndContinue:
		return "skip_and_continue"
	case AbortPartition:
		return "abort_partition"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}
