package habitat

import (
	"fmt"
	"reflect"

	"github.com/sirupsen/logrus"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// extractedProvider retrieves a value stored in one scope instance. It never
// re-derives the value.
type extractedProvider struct {
	typ   reflect.Type
	scope *ScopeInstance
}

func (p *extractedProvider) Get() (any, error) {
	v, ok := p.scope.Get(p)
	if !ok {
		return nil, &ComponentError{Type: p.typ.String(), Phase: PhaseExtract, Err: ErrValueEvicted}
	}
	return v, nil
}

func (p *extractedProvider) Type() reflect.Type { return p.typ }
func (p *extractedProvider) Name() string       { return "" }

// extracted is a value read from an extraction point that is not yet
// visible to lookups.
type extracted struct {
	provider *extractedProvider
	value    any
}

// extract reads every extraction point of desc on inst and binds each
// value to a provider for si. Nothing is published, so a failure leaves
// no trace.
func (h *Habitat) extract(desc *TypeDescriptor, inst any, si *ScopeInstance) ([]extracted, error) {
	if len(desc.Extractions) == 0 {
		return nil, nil
	}

	var out []extracted
	root := reflect.ValueOf(inst)
	for _, point := range desc.Extractions {
		value, err := readExtractionPoint(desc, root, point)
		if err != nil {
			return nil, err
		}
		if !value.IsValid() {
			h.log.WithFields(logrus.Fields{"type": desc.Type.String(), "point": point.Name}).
				Debug("nothing to extract")
			continue
		}

		values, err := unwrapExtracted(desc, point, value)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			value := v.Interface()
			out = append(out, extracted{
				provider: &extractedProvider{typ: reflect.TypeOf(value), scope: si},
				value:    value,
			})
		}
	}
	return out, nil
}

// publish stores inst under owner, followed by the extracted values, in
// si in one step and then indexes the extracted providers by runtime type
// and contracts. owner may be nil to publish extracted values alone. A
// closed si takes nothing and leaves nothing registered.
func (h *Habitat) publish(si *ScopeInstance, owner Provider, inst any, values []extracted) error {
	entries := make([]scopeEntry, 0, len(values)+1)
	if owner != nil {
		entries = append(entries, scopeEntry{owner, inst})
	}
	for _, e := range values {
		entries = append(entries, scopeEntry{e.provider, e.value})
	}

	withdraw := func() {
		for _, e := range values {
			h.Unregister(e.provider)
		}
	}
	var hook func()
	if len(values) > 0 {
		hook = withdraw
	}
	if err := si.putAll(entries, hook); err != nil {
		return err
	}

	for _, e := range values {
		if err := h.Register(e.provider); err != nil {
			withdraw()
			for _, entry := range entries {
				si.Delete(entry.p)
			}
			return err
		}
	}
	// Close may have run the hook before the providers were registered
	if len(values) > 0 && si.Closed() {
		withdraw()
		return ErrAlreadyShutdown
	}

	for _, e := range values {
		h.log.WithFields(logrus.Fields{
			"type":           e.provider.typ.String(),
			"scope_instance": si.ID(),
		}).Debug("extracted resource")
	}
	return nil
}

// readExtractionPoint returns the point's current value, or an invalid
// Value when there is nothing to extract.
func readExtractionPoint(desc *TypeDescriptor, root reflect.Value, point ExtractionPoint) (reflect.Value, error) {
	owner := desc.Type.String()
	if root.Kind() != reflect.Pointer || root.IsNil() || root.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, &ExtractionError{Type: owner, Point: point.Name, Reason: "component is not a pointer to a struct"}
	}

	if !point.IsMethod() {
		field, err := root.Elem().FieldByIndexErr(point.Index)
		if err != nil {
			// declared on an embedded struct behind a nil pointer
			return reflect.Value{}, nil
		}
		if !field.CanInterface() {
			return reflect.Value{}, &ExtractionError{Type: owner, Point: point.Name, Reason: "unexported field"}
		}
		return present(field), nil
	}

	base := root
	if len(point.Index) > 0 {
		embedded, err := root.Elem().FieldByIndexErr(point.Index)
		if err != nil {
			return reflect.Value{}, nil
		}
		switch {
		case embedded.Kind() == reflect.Pointer && embedded.IsNil():
			return reflect.Value{}, nil
		case embedded.Kind() == reflect.Pointer:
			base = embedded
		default:
			base = embedded.Addr()
		}
	}
	return callExtractor(owner, base, point)
}

func callExtractor(owner string, base reflect.Value, point ExtractionPoint) (out reflect.Value, err error) {
	method := base.MethodByName(point.Method)
	if !method.IsValid() {
		return reflect.Value{}, &ExtractionError{Type: owner, Point: point.Name, Reason: "no such method"}
	}

	mt := method.Type()
	switch {
	case mt.NumIn() > 0:
		return reflect.Value{}, &ExtractionError{Type: owner, Point: point.Name, Reason: "method takes parameters, it should not"}
	case mt.NumOut() == 0:
		return reflect.Value{}, &ExtractionError{Type: owner, Point: point.Name, Reason: "method has no return value"}
	case mt.NumOut() > 2 || (mt.NumOut() == 2 && !mt.Out(1).Implements(errorType)):
		return reflect.Value{}, &ExtractionError{Type: owner, Point: point.Name, Reason: "method must return (T) or (T, error)"}
	}

	defer func() {
		if r := recover(); r != nil {
			out = reflect.Value{}
			err = &ExtractionError{Type: owner, Point: point.Name, Reason: "method panicked", Err: fmt.Errorf("%v", r)}
		}
	}()

	results := method.Call(nil)
	if len(results) == 2 && !results[1].IsNil() {
		return reflect.Value{}, &ExtractionError{
			Type:   owner,
			Point:  point.Name,
			Reason: "method failed",
			Err:    results[1].Interface().(error),
		}
	}
	return present(results[0]), nil
}

// unwrapExtracted splits a sequence, slice or array into its elements.
// Anything else is a single value. Nil elements are skipped.
func unwrapExtracted(desc *TypeDescriptor, point ExtractionPoint, v reflect.Value) (out []reflect.Value, err error) {
	switch {
	case v.Kind() == reflect.Slice || v.Kind() == reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if e := present(v.Index(i)); e.IsValid() {
				out = append(out, e)
			}
		}
		return out, nil

	case isSeq(v.Type()):
		defer func() {
			if r := recover(); r != nil {
				out = nil
				err = &ExtractionError{
					Type:   desc.Type.String(),
					Point:  point.Name,
					Reason: "sequence panicked",
					Err:    fmt.Errorf("%v", r),
				}
			}
		}()
		yield := reflect.MakeFunc(v.Type().In(0), func(args []reflect.Value) []reflect.Value {
			if e := present(args[0]); e.IsValid() {
				out = append(out, e)
			}
			return []reflect.Value{reflect.ValueOf(true)}
		})
		v.Call([]reflect.Value{yield})
		return out, nil
	}
	return []reflect.Value{v}, nil
}

// isSeq reports whether t has the shape of iter.Seq[V]: func(func(V) bool).
func isSeq(t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.NumIn() != 1 || t.NumOut() != 0 {
		return false
	}
	yield := t.In(0)
	return yield.Kind() == reflect.Func &&
		yield.NumIn() == 1 &&
		yield.NumOut() == 1 &&
		yield.Out(0).Kind() == reflect.Bool
}

// present unwraps interfaces and returns an invalid Value for nil.
func present(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return reflect.Value{}
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return reflect.Value{}
		}
	}
	return v
}
