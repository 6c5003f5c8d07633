// SPDX-License-Identifier: MPL-2.0

package module

import (
	"fmt"
	"time"
)

const (
	// EventInstalled is emitted after a module is installed.
	EventInstalled EventType = iota + 1
	// EventResolved is emitted after a module's wiring is published.
	EventResolved
	// EventUnresolved is emitted when a refresh drops a module's wiring.
	EventUnresolved
	// EventStarting is emitted before the activator's Start runs.
	EventStarting
	// EventStarted is emitted once a module is ACTIVE.
	EventStarted
	// EventStopping is emitted before the activator's Stop runs.
	EventStopping
	// EventStopped is emitted once a module is back in RESOLVED.
	EventStopped
	// EventUninstalled is emitted after a module is removed.
	EventUninstalled
	// EventRefreshed is emitted when a refresh completes.
	EventRefreshed
	// EventError carries a failure that could not be returned to a caller,
	// such as a Stop error during shutdown.
	EventError
	// EventFrameworkStopped is the last event a framework emits.
	EventFrameworkStopped
)

type (
	// EventType classifies framework events.
	EventType int

	// Event is a framework notification. Module is zero for framework-wide events.
	Event struct {
		Type   EventType
		Module ID
		Err    error
		Time   time.Time
	}

	// Listener receives events on the framework's dispatch goroutine. Listeners
	// must not block.
	Listener func(Event)
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventInstalled:
		return "installed"
	case EventResolved:
		return "resolved"
	case EventUnresolved:
		return "unresolved"
	case EventStarting:
		return "starting"
	case EventStarted:
		return "started"
	case EventStopping:
		return "stopping"
	case EventStopped:
		return "stopped"
	case EventUninstalled:
		return "uninstalled"
	case EventRefreshed:
		return "refreshed"
	case EventError:
		return "error"
	case EventFrameworkStopped:
		return "framework stopped"
	default:
		return "unknown"
	}
}

// String returns a compact description of the event.
func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Type, e.Module, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Type, e.Module)
}
