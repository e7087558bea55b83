// Package requestscope provides a Custom habitat scope whose instances live
// for one unit of work, typically an HTTP request.
package requestscope

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/centraunit/habitat"
	"github.com/centraunit/habitat/internal/goid"
)

// DefaultName is the scope id components use with habitat.Custom.
const DefaultName = "request"

// Scope maps goroutines to their active scope instance. Components created
// on a goroutine without an active instance fail with a *habitat.ScopeError.
// Goroutines spawned while handling a request must Attach to share it.
type Scope struct {
	name string
	log  *logrus.Entry

	mu     sync.RWMutex
	active map[int64]*habitat.ScopeInstance
}

type Option func(*Scope)

func WithLogger(entry *logrus.Entry) Option {
	return func(s *Scope) {
		s.log = entry
	}
}

// New creates a request scope registered under name. An empty name means
// DefaultName.
func New(name string, opts ...Option) *Scope {
	if name == "" {
		name = DefaultName
	}
	s := &Scope{
		name:   name,
		active: make(map[int64]*habitat.ScopeInstance),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	s.log = s.log.WithField("scope", name)
	return s
}

// HabitatName is the id this scope answers to.
func (s *Scope) HabitatName() string { return s.name }

// Kind is the ScopeKind components declare to live in this scope.
func (s *Scope) Kind() habitat.ScopeKind { return habitat.Custom(s.name) }

// Current returns the instance active on the calling goroutine, or nil.
func (s *Scope) Current() *habitat.ScopeInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[goid.Get()]
}

// Register makes the scope resolvable in h under its name.
func (s *Scope) Register(h *habitat.Habitat) error {
	_, err := h.AddInstance(s, s.name)
	return err
}

// Begin activates a fresh instance on the calling goroutine. The returned
// end func closes it, releasing its components and withdrawing the
// providers extracted into it, and restores whatever was active before.
func (s *Scope) Begin() (*habitat.ScopeInstance, func(context.Context) error) {
	si := habitat.NewScopeInstance()
	detach := s.Attach(si)
	s.log.WithField("scope_instance", si.ID()).Debug("request scope begun")

	var once sync.Once
	var err error
	return si, func(ctx context.Context) error {
		once.Do(func() {
			detach()
			err = si.Close(ctx)
			s.log.WithField("scope_instance", si.ID()).Debug("request scope ended")
		})
		return err
	}
}

// Attach makes si active on the calling goroutine until the returned func
// is called. It does not close si.
func (s *Scope) Attach(si *habitat.ScopeInstance) func() {
	id := goid.Get()

	s.mu.Lock()
	prev, hadPrev := s.active[id]
	s.active[id] = si
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.active[id] != si {
			return
		}
		if hadPrev {
			s.active[id] = prev
			return
		}
		delete(s.active, id)
	}
}

// Active returns the number of goroutines with an active instance.
func (s *Scope) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}
