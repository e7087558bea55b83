package habitat

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/centraunit/habitat/config"
	"github.com/centraunit/habitat/internal/logging"
)

// Habitat is the registry of providers. It maps a type, or a contract the
// type implements, to an ordered set of providers and owns the Singleton
// scope instance. It is safe for concurrent use; providers may be added at
// any time, including while another component is being constructed.
type Habitat struct {
	mu        sync.RWMutex
	providers map[reflect.Type][]Provider
	shutdown  bool

	metadata  MetadataProvider
	singleton *ScopeInstance
	tracker   *tracker
	log       *logrus.Entry
}

// Option configures a Habitat.
type Option func(*Habitat)

// WithMetadata sets the MetadataProvider. The default is a fresh
// TagMetadata.
func WithMetadata(md MetadataProvider) Option {
	return func(h *Habitat) {
		h.metadata = md
	}
}

// WithLogger sets the logger entry used for debug output.
func WithLogger(entry *logrus.Entry) Option {
	return func(h *Habitat) {
		h.log = entry
	}
}

// New creates an empty Habitat with its Singleton scope instance.
func New(opts ...Option) *Habitat {
	h := &Habitat{
		providers: make(map[reflect.Type][]Provider, 32),
		singleton: NewScopeInstance(),
		tracker:   newTracker(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metadata == nil {
		h.metadata = NewTagMetadata()
	}
	if h.log == nil {
		h.log = logrus.NewEntry(logging.New(logging.Options{Level: "info"}))
	}
	h.log = h.log.WithField("habitat", h.singleton.ID())
	return h
}

// NewFromConfig creates a Habitat whose logger follows cfg.
func NewFromConfig(cfg *config.Config, opts ...Option) *Habitat {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return New(append([]Option{WithLogger(logrus.NewEntry(logger))}, opts...)...)
}

// Metadata returns the MetadataProvider descriptors come from.
func (h *Habitat) Metadata() MetadataProvider {
	return h.metadata
}

// Describe returns the descriptor the MetadataProvider computes for t.
func (h *Habitat) Describe(t reflect.Type) (*TypeDescriptor, error) {
	return h.metadata.Describe(t)
}

// SingletonScope returns the process-wide Singleton scope instance.
func (h *Habitat) SingletonScope() *ScopeInstance {
	return h.singleton
}

// Register adds p under each of types. With no types p is indexed under
// its own type and every contract that type implements. Registering the
// same provider twice under one type is a no-op.
func (h *Habitat) Register(p Provider, types ...reflect.Type) error {
	if p == nil || (reflect.ValueOf(p).Kind() == reflect.Pointer && reflect.ValueOf(p).IsNil()) {
		return ErrNilProvider
	}
	if len(types) == 0 {
		types = h.exposedTypes(p.Type(), nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range types {
		current := h.providers[t]
		if containsProvider(current, p) {
			continue
		}
		next := make([]Provider, len(current), len(current)+1)
		copy(next, current)
		h.providers[t] = append(next, p)
	}
	return nil
}

// Unregister removes p from every type it is indexed under.
func (h *Habitat) Unregister(p Provider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for t, current := range h.providers {
		if !containsProvider(current, p) {
			continue
		}
		next := make([]Provider, 0, len(current)-1)
		for _, q := range current {
			if q != p {
				next = append(next, q)
			}
		}
		if len(next) == 0 {
			delete(h.providers, t)
			continue
		}
		h.providers[t] = next
	}
}

// Providers returns a snapshot of the providers registered under t, in
// registration order.
func (h *Habitat) Providers(t reflect.Type) []Provider {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.providers[t]
}

// Add registers a constructing provider for desc under desc.Type and its
// contracts.
func (h *Habitat) Add(desc *TypeDescriptor) (*Womb, error) {
	if desc == nil || desc.Type == nil {
		return nil, fmt.Errorf("add: descriptor without type")
	}
	w := &Womb{desc: desc, habitat: h}
	if err := h.Register(w, h.exposedTypes(desc.Type, desc.Contracts)...); err != nil {
		return nil, err
	}
	h.log.WithFields(logrus.Fields{
		"type":  w.String(),
		"scope": desc.Scope.String(),
	}).Debug("component added")
	return w, nil
}

// AddType describes t through the MetadataProvider and adds it.
func (h *Habitat) AddType(t reflect.Type) (*Womb, error) {
	desc, err := h.Describe(t)
	if err != nil {
		return nil, err
	}
	return h.Add(desc)
}

// AddInstance registers a pre-built value. It is indexed under its runtime
// type, its contracts and any extra types given.
func (h *Habitat) AddInstance(value any, name string, types ...reflect.Type) (Provider, error) {
	if value == nil {
		return nil, fmt.Errorf("add instance: nil value")
	}
	p := &instanceProvider{value: value, typ: reflect.TypeOf(value), name: name}
	exposed := h.exposedTypes(p.typ, nil)
	for _, t := range types {
		if !p.typ.AssignableTo(t) {
			return nil, &TypeMismatchError{Expected: t.String(), Got: p.typ.String()}
		}
		if !containsType(exposed, t) {
			exposed = append(exposed, t)
		}
	}
	if err := h.Register(p, exposed...); err != nil {
		return nil, err
	}
	return p, nil
}

// Resolve returns an instance of t, possibly constructing it and its
// dependencies. When several providers match, name selects one; an empty
// name picks the first registered.
func (h *Habitat) Resolve(t reflect.Type, name string) (any, error) {
	for _, p := range h.Providers(t) {
		if name == "" || p.Name() == name {
			return p.Get()
		}
	}
	return nil, &NotFoundError{Type: typeName(t), Name: name}
}

// ResolveAll returns an instance from every provider registered under t,
// in registration order. No providers is an empty result, not an error.
func (h *Habitat) ResolveAll(t reflect.Type) ([]any, error) {
	providers := h.Providers(t)
	out := make([]any, 0, len(providers))
	for _, p := range providers {
		v, err := p.Get()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Shutdown closes the Singleton scope instance, releasing cached
// components and extracted values in reverse order. Subsequent calls
// return ErrAlreadyShutdown.
func (h *Habitat) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		return ErrAlreadyShutdown
	}
	h.shutdown = true
	h.mu.Unlock()

	h.log.WithField("values", h.singleton.Len()).Debug("shutting down singleton scope")
	return h.singleton.Close(ctx)
}

func (h *Habitat) exposedTypes(t reflect.Type, contracts []reflect.Type) []reflect.Type {
	if contracts == nil {
		contracts = h.metadata.Contracts(t)
	}
	out := make([]reflect.Type, 0, len(contracts)+2)
	out = append(out, t)
	for _, c := range contracts {
		if !containsType(out, c) {
			out = append(out, c)
		}
	}
	// scope components are always found by their capability
	if t != scopeType && t.Implements(scopeType) && !containsType(out, scopeType) {
		out = append(out, scopeType)
	}
	return out
}

// instanceProvider hands out one pre-built value.
type instanceProvider struct {
	value any
	typ   reflect.Type
	name  string
}

func (p *instanceProvider) Get() (any, error)  { return p.value, nil }
func (p *instanceProvider) Type() reflect.Type { return p.typ }
func (p *instanceProvider) Name() string       { return p.name }

// TypeOf returns the reflect.Type of T, including interface types.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Add describes T and registers a constructing provider for it.
//
//	w, err := habitat.Add[*Car](h)
func Add[T any](h *Habitat) (*Womb, error) {
	return h.AddType(TypeOf[T]())
}

// BindInstance registers value under T, its runtime type and contracts.
func BindInstance[T any](h *Habitat, value T, name string) (Provider, error) {
	return h.AddInstance(value, name, TypeOf[T]())
}

// Resolve is the typed form of Habitat.Resolve. At most one name is used.
//
//	car, err := habitat.Resolve[*Car](h)
//	v8, err := habitat.Resolve[Engine](h, "v8")
func Resolve[T any](h *Habitat, name ...string) (T, error) {
	var zero T
	t := TypeOf[T]()
	var n string
	if len(name) > 0 {
		n = name[0]
	}

	v, err := h.Resolve(t, n)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &TypeMismatchError{Expected: t.String(), Got: fmt.Sprintf("%T", v)}
	}
	return typed, nil
}

// ResolveAll is the typed form of Habitat.ResolveAll.
func ResolveAll[T any](h *Habitat) ([]T, error) {
	t := TypeOf[T]()
	values, err := h.ResolveAll(t)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(values))
	for _, v := range values {
		typed, ok := v.(T)
		if !ok {
			return nil, &TypeMismatchError{Expected: t.String(), Got: fmt.Sprintf("%T", v)}
		}
		out = append(out, typed)
	}
	return out, nil
}

func containsProvider(ps []Provider, p Provider) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}

func containsType(ts []reflect.Type, t reflect.Type) bool {
	for _, u := range ts {
		if u == t {
			return true
		}
	}
	return false
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
