// SPDX-License-Identifier: MPL-2.0

package runstate

// Run states. Transitions only move forward: Running, Stopping, Stopped.
const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

// State is the run state of a framework.
type State int32

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
