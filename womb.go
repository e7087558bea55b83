package habitat

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/sirupsen/logrus"
)

// Womb is the constructing provider of a component. Each Get runs, or
// short-circuits through the scope cache, the produce protocol:
// instantiate, inject, post-construct, then extract and cache when the
// component's scope caches.
type Womb struct {
	desc    *TypeDescriptor
	habitat *Habitat
}

func (w *Womb) Type() reflect.Type { return w.desc.Type }
func (w *Womb) Name() string       { return w.desc.Name }

// Descriptor returns the descriptor the womb builds from.
func (w *Womb) Descriptor() *TypeDescriptor { return w.desc }

func (w *Womb) String() string {
	if w.desc.Name != "" {
		return fmt.Sprintf("%s[%s]", w.desc.Type, w.desc.Name)
	}
	return w.desc.Type.String()
}

// Get returns the component, constructing it at most once per scope
// instance. Concurrent first lookups of a cached component wait for the
// single construction in progress. Looking up the component's scope is part
// of its resolution, so a scope that depends on itself is a cycle.
func (w *Womb) Get() (any, error) {
	h := w.habitat

	id, err := h.tracker.enter(w)
	if err != nil {
		return nil, err
	}
	defer h.tracker.leave(id, w)

	si, err := h.scopeFor(w.desc)
	if err != nil {
		return nil, &ComponentError{Type: w.String(), Phase: PhaseScope, Err: err}
	}
	if si == nil {
		return w.produce(nil)
	}
	if v, ok := si.Get(w); ok {
		return v, nil
	}

	if err := h.tracker.acquire(id, w, si); err != nil {
		return nil, err
	}
	defer h.tracker.release(w, si)

	if v, ok := si.Get(w); ok {
		return v, nil
	}
	return w.produce(si)
}

func (w *Womb) produce(si *ScopeInstance) (any, error) {
	h := w.habitat

	inst, err := w.instantiate()
	if err != nil {
		return nil, &ComponentError{Type: w.String(), Phase: PhaseInstantiate, Err: err}
	}

	target := reflect.ValueOf(inst)
	for _, point := range w.desc.Injections {
		if err := h.inject(w.desc, target, point); err != nil {
			return nil, &ComponentError{Type: w.String(), Phase: PhaseInject, Err: err}
		}
	}

	if w.desc.HasPostConstruct {
		pc, ok := inst.(PostConstruct)
		if !ok {
			return nil, &ComponentError{
				Type:  w.String(),
				Phase: PhasePost,
				Err:   errors.New("declares a post-construct hook but does not implement PostConstruct"),
			}
		}
		// hook failures belong to the component, not the container
		if err := pc.PostConstruct(); err != nil {
			return nil, err
		}
	}

	log := h.log.WithFields(logrus.Fields{"type": w.String(), "scope": w.desc.Scope.String()})
	if si == nil {
		log.Debug("constructed transient component")
		return inst, nil
	}

	values, err := h.extract(w.desc, inst, si)
	if err != nil {
		return nil, &ComponentError{Type: w.String(), Phase: PhaseExtract, Err: err}
	}
	if err := h.publish(si, w, inst, values); err != nil {
		return nil, &ComponentError{Type: w.String(), Phase: PhaseScope, Err: err}
	}
	log.WithField("scope_instance", si.ID()).Debug("constructed component")
	return inst, nil
}

func (w *Womb) instantiate() (any, error) {
	t := w.desc.Type

	if w.desc.New != nil {
		v, err := w.desc.New()
		if err != nil {
			return nil, &InstantiationError{Type: t.String(), Err: err}
		}
		if v == nil {
			return nil, &InstantiationError{Type: t.String(), Err: errors.New("constructor returned nil")}
		}
		if got := reflect.TypeOf(v); !got.AssignableTo(t) {
			return nil, &InstantiationError{
				Type: t.String(),
				Err:  &TypeMismatchError{Expected: t.String(), Got: got.String()},
			}
		}
		return v, nil
	}

	switch {
	case t.Kind() == reflect.Interface:
		return nil, &InstantiationError{Type: t.String(), Err: errors.New("abstract type has no constructor")}
	case t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct:
		return nil, &InstantiationError{Type: t.String(), Err: errors.New("not a pointer to a struct")}
	}
	return reflect.New(t.Elem()).Interface(), nil
}
