// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"errors"
	"fmt"
	"sync"

	"github.com/invowk/modrt/pkg/module"
)

// ErrServiceExists is returned when registering a service name that is taken.
var ErrServiceExists = errors.New("service already registered")

type (
	// services is the framework-wide name -> service map. Registrations are
	// owned by the activation that made them.
	services struct {
		mu      sync.RWMutex
		entries map[string]serviceEntry
		nextTok uint64
	}

	serviceEntry struct {
		owner module.ID
		token uint64
		svc   any
	}
)

func newServices() *services {
	return &services{entries: make(map[string]serviceEntry)}
}

// register publishes svc under name. The returned function removes the
// registration and is safe to call more than once.
func (s *services) register(owner module.ID, name string, svc any) (func(), error) {
	if name == "" {
		return nil, errors.New("service name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[name]; ok {
		return nil, fmt.Errorf("%w: %q is owned by module %s", ErrServiceExists, name, existing.owner)
	}
	s.nextTok++
	tok := s.nextTok
	s.entries[name] = serviceEntry{owner: owner, token: tok, svc: svc}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.entries[name]; ok && cur.token == tok {
			delete(s.entries, name)
		}
	}, nil
}

func (s *services) get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e.svc, ok
}

// owned returns the number of services registered by owner.
func (s *services) owned(owner module.ID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.owner == owner {
			n++
		}
	}
	return n
}
