package habitat

import (
	"fmt"
	"reflect"
)

// inject resolves point and binds the value onto target, a pointer to the
// component's struct.
//
// Dispatch is, in order: a slice or array of a contract receives every
// implementation; a contract receives the implementation qualified by the
// point's name; anything else is looked up as a concrete component.
func (h *Habitat) inject(desc *TypeDescriptor, target reflect.Value, point InjectionPoint) error {
	owner := desc.Type.String()

	value, err := h.valueFor(point)
	if err != nil {
		// Only a miss on this point's own lookup counts as unsatisfied;
		// misses deeper in the graph are failures of the dependency.
		if nf, ok := err.(*NotFoundError); ok {
			if point.Optional {
				h.log.WithField("type", owner).WithField("point", point.Field).
					Debug("optional injection point left unset")
				return nil
			}
			return &InjectionError{
				Type:   owner,
				Point:  point.Field,
				Reason: "neither contract nor known component",
				Err:    nf,
			}
		}
		if ie, ok := err.(*InjectionError); ok {
			ie.Type = owner
			return ie
		}
		return &InjectionError{Type: owner, Point: point.Field, Reason: "resolution failed", Err: err}
	}

	if target.Kind() != reflect.Pointer || target.Elem().Kind() != reflect.Struct {
		return &InjectionError{Type: owner, Point: point.Field, Reason: "component is not a pointer to a struct"}
	}
	field, err := target.Elem().FieldByIndexErr(point.Index)
	if err != nil {
		return &InjectionError{Type: owner, Point: point.Field, Reason: "slot unreachable", Err: err}
	}
	if !field.CanSet() {
		return &InjectionError{Type: owner, Point: point.Field, Reason: "slot cannot be set"}
	}
	if !value.Type().AssignableTo(field.Type()) {
		return &InjectionError{
			Type:   owner,
			Point:  point.Field,
			Reason: fmt.Sprintf("shape mismatch: %s is not assignable to %s", value.Type(), field.Type()),
		}
	}
	field.Set(value)
	return nil
}

func (h *Habitat) valueFor(point InjectionPoint) (reflect.Value, error) {
	t := point.Type

	if (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) && h.metadata.IsContract(t.Elem()) {
		all, err := h.ResolveAll(t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		return materialize(t, all, point)
	}

	name := ""
	if h.metadata.IsContract(t) {
		name = point.Name
	}
	v, err := h.Resolve(t, name)
	if err != nil {
		return reflect.Value{}, err
	}
	if v == nil {
		return reflect.Value{}, &InjectionError{Type: t.String(), Point: point.Field, Reason: "resolved to nil"}
	}
	return reflect.ValueOf(v), nil
}

// materialize builds a value of the slice or array type t from values.
func materialize(t reflect.Type, values []any, point InjectionPoint) (reflect.Value, error) {
	var out reflect.Value
	switch t.Kind() {
	case reflect.Array:
		if t.Len() != len(values) {
			return reflect.Value{}, &InjectionError{
				Type:   t.String(),
				Point:  point.Field,
				Reason: fmt.Sprintf("shape mismatch: %d implementations for an array of %d", len(values), t.Len()),
			}
		}
		out = reflect.New(t).Elem()
	default:
		out = reflect.MakeSlice(t, len(values), len(values))
	}

	elem := t.Elem()
	for i, v := range values {
		rv := reflect.ValueOf(v)
		if !rv.IsValid() || !rv.Type().AssignableTo(elem) {
			return reflect.Value{}, &InjectionError{
				Type:   t.String(),
				Point:  point.Field,
				Reason: fmt.Sprintf("shape mismatch: element %d (%T) is not assignable to %s", i, v, elem),
			}
		}
		out.Index(i).Set(rv)
	}
	return out, nil
}
