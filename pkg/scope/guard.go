// SPDX-License-Identifier: MPL-2.0

package scope

import (
	"github.com/invowk/modrt/pkg/capability"
	"github.com/invowk/modrt/pkg/module"
)

type (
	guardKey struct {
		module module.ID
		symbol capability.Symbol
	}

	// Guard tracks one top-level lookup as it is delegated between scopes. It
	// stops static delegation cycles, limits dynamic scans to the outermost
	// invocation per symbol and memoizes misses for the duration of the call.
	// A Guard is not safe for concurrent use.
	Guard struct {
		visiting map[guardKey]bool
		missed   map[guardKey]bool
		dynamic  map[capability.Symbol]int
	}
)

// NewGuard returns an empty guard for a new top-level lookup.
func NewGuard() *Guard {
	return &Guard{
		visiting: make(map[guardKey]bool),
		missed:   make(map[guardKey]bool),
		dynamic:  make(map[capability.Symbol]int),
	}
}

// enter marks (id, sym) in progress. It returns false if the pair is already
// in progress or already missed in this call.
func (g *Guard) enter(id module.ID, sym capability.Symbol) bool {
	k := guardKey{id, sym}
	if g.visiting[k] || g.missed[k] {
		return false
	}
	g.visiting[k] = true
	return true
}

// leave clears the in-progress mark, recording a miss when found is false.
func (g *Guard) leave(id module.ID, sym capability.Symbol, found bool) {
	k := guardKey{id, sym}
	delete(g.visiting, k)
	if !found {
		g.missed[k] = true
	}
}

// enterDynamic increments the dynamic depth of sym and reports whether this
// is the outermost dynamic invocation.
func (g *Guard) enterDynamic(sym capability.Symbol) bool {
	g.dynamic[sym]++
	return g.dynamic[sym] == 1
}

// leaveDynamic undoes enterDynamic.
func (g *Guard) leaveDynamic(sym capability.Symbol) {
	if g.dynamic[sym]--; g.dynamic[sym] <= 0 {
		delete(g.dynamic, sym)
	}
}

func (g *Guard) depth(sym capability.Symbol) int {
	return g.dynamic[sym]
}
