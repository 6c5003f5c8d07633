// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/modrt/pkg/module"
)

// dispatcher delivers events to listeners on a single goroutine, in emission
// order. Emitting never blocks.
type dispatcher struct {
	logger *log.Logger

	mu        sync.Mutex
	queue     []module.Event
	listeners map[uint64]module.Listener
	nextID    uint64
	closed    bool

	wake chan struct{}
	done chan struct{}
}

func newDispatcher(logger *log.Logger) *dispatcher {
	d := &dispatcher{
		logger:    logger,
		listeners: make(map[uint64]module.Listener),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

// add registers l and returns a function removing it.
func (d *dispatcher) add(l module.Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.listeners[id] = l
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

func (d *dispatcher) emit(ev module.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// close delivers the queued events and stops the dispatch goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
	<-d.done
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.mu.Unlock()
			<-d.wake
			d.mu.Lock()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.queue
		d.queue = nil
		ids := slices.Sorted(maps.Keys(d.listeners))
		listeners := make([]module.Listener, len(ids))
		for i, id := range ids {
			listeners[i] = d.listeners[id]
		}
		d.mu.Unlock()

		for _, ev := range batch {
			for _, l := range listeners {
				d.deliver(l, ev)
			}
		}
	}
}

func (d *dispatcher) deliver(l module.Listener, ev module.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event listener panicked", "event", ev.Type, "panic", r)
		}
	}()
	l(ev)
}
