package habitat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

type scopeKind uint8

const (
	singletonKind scopeKind = iota
	perLookupKind
	customKind
)

// ScopeKind selects where a component's instances are cached. The zero
// value is Singleton.
type ScopeKind struct {
	kind scopeKind
	id   string
}

var (
	// Singleton caches one instance per provider for the life of the Habitat.
	Singleton = ScopeKind{kind: singletonKind}
	// PerLookup never caches; every lookup constructs a new instance and
	// nothing is extracted from it.
	PerLookup = ScopeKind{kind: perLookupKind}
)

// Custom returns the scope backed by the Scope component registered under
// id.
func Custom(id string) ScopeKind {
	return ScopeKind{kind: customKind, id: id}
}

// ID returns the name of a custom scope, empty for the built-in ones.
func (k ScopeKind) ID() string {
	return k.id
}

// IsCustom reports whether k names a user-defined scope.
func (k ScopeKind) IsCustom() bool {
	return k.kind == customKind
}

func (k ScopeKind) String() string {
	switch k.kind {
	case singletonKind:
		return "singleton"
	case perLookupKind:
		return "perlookup"
	default:
		return "custom(" + k.id + ")"
	}
}

// ScopeInstance is the live cache backing one active scope. Keys are
// provider identities, values are the instances (or extracted sub-values)
// those providers hand out.
type ScopeInstance struct {
	id string

	mu      sync.Mutex
	values  map[Provider]any
	order   []Provider
	onClose []func()
	closed  bool
}

// NewScopeInstance creates an empty scope instance with a random id.
func NewScopeInstance() *ScopeInstance {
	return &ScopeInstance{
		id:     uuid.NewString(),
		values: make(map[Provider]any),
	}
}

// ID identifies the instance in logs.
func (si *ScopeInstance) ID() string {
	return si.id
}

// Get returns the value stored for p.
func (si *ScopeInstance) Get(p Provider) (any, bool) {
	si.mu.Lock()
	defer si.mu.Unlock()
	v, ok := si.values[p]
	return v, ok
}

// Put stores v for p, replacing any previous value. A closed instance
// takes nothing and reports ErrAlreadyShutdown.
func (si *ScopeInstance) Put(p Provider, v any) error {
	return si.putAll([]scopeEntry{{p, v}}, nil)
}

type scopeEntry struct {
	p Provider
	v any
}

// putAll stores the entries in order and registers hook, all under one
// lock, so readers see either none of them or all of them.
func (si *ScopeInstance) putAll(entries []scopeEntry, hook func()) error {
	si.mu.Lock()
	defer si.mu.Unlock()
	if si.closed {
		return ErrAlreadyShutdown
	}
	for _, e := range entries {
		if _, exists := si.values[e.p]; !exists {
			si.order = append(si.order, e.p)
		}
		si.values[e.p] = e.v
	}
	if hook != nil {
		si.onClose = append(si.onClose, hook)
	}
	return nil
}

// Delete removes the value stored for p.
func (si *ScopeInstance) Delete(p Provider) {
	si.mu.Lock()
	defer si.mu.Unlock()
	if _, exists := si.values[p]; !exists {
		return
	}
	delete(si.values, p)
	for i, q := range si.order {
		if q == p {
			si.order = append(si.order[:i], si.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of stored values.
func (si *ScopeInstance) Len() int {
	si.mu.Lock()
	defer si.mu.Unlock()
	return len(si.values)
}

// OnClose registers fn to run when the instance is closed, before any
// value is released.
func (si *ScopeInstance) OnClose(fn func()) error {
	si.mu.Lock()
	defer si.mu.Unlock()
	if si.closed {
		return ErrAlreadyShutdown
	}
	si.onClose = append(si.onClose, fn)
	return nil
}

// Closed reports whether Close has started.
func (si *ScopeInstance) Closed() bool {
	si.mu.Lock()
	defer si.mu.Unlock()
	return si.closed
}

// Close releases the stored values in reverse insertion order. Values
// implementing PreDestroy have it called; otherwise values implementing
// io.Closer are closed. A pointer stored under several providers is
// released once. If ctx expires the remaining values are skipped and the context
// error is part of the result.
func (si *ScopeInstance) Close(ctx context.Context) error {
	si.mu.Lock()
	if si.closed {
		si.mu.Unlock()
		return ErrAlreadyShutdown
	}
	si.closed = true
	hooks := si.onClose
	order := si.order
	values := si.values
	si.onClose = nil
	si.order = nil
	si.values = make(map[Provider]any)
	si.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	var errs []error
	seen := make(map[any]struct{}, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		v := values[order[i]]
		if v == nil {
			continue
		}
		if reflect.TypeOf(v).Kind() == reflect.Pointer {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
		}
		if err := release(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func release(v any) error {
	switch r := v.(type) {
	case PreDestroy:
		return r.PreDestroy()
	case io.Closer:
		return r.Close()
	}
	return nil
}

var scopeType = reflect.TypeOf((*Scope)(nil)).Elem()

// scopeFor returns the scope instance desc's components are cached in, or
// nil when they are never cached (PerLookup).
func (h *Habitat) scopeFor(desc *TypeDescriptor) (*ScopeInstance, error) {
	switch desc.Scope.kind {
	case singletonKind:
		h.mu.RLock()
		down := h.shutdown
		h.mu.RUnlock()
		if down {
			return nil, ErrAlreadyShutdown
		}
		return h.singleton, nil
	case perLookupKind:
		return nil, nil
	}

	v, err := h.Resolve(scopeType, desc.Scope.id)
	if err != nil {
		return nil, fmt.Errorf("resolving scope %s: %w", desc.Scope.id, err)
	}
	scope, ok := v.(Scope)
	if !ok {
		return nil, &TypeMismatchError{Expected: scopeType.String(), Got: fmt.Sprintf("%T", v)}
	}
	si := scope.Current()
	if si == nil {
		return nil, &ScopeError{Scope: desc.Scope.id, Type: desc.Type.String()}
	}
	return si, nil
}
