package habitat

import "reflect"

// TypeDescriptor carries the per-type facts the container needs to build a
// component. It is read-only once obtained from a MetadataProvider and is
// reused for every instantiation of the type.
type TypeDescriptor struct {
	// Type is the component type, normally a pointer to a struct.
	Type reflect.Type

	// Name qualifies the component for contract lookups.
	Name string

	// Scope defaults to Singleton.
	Scope ScopeKind

	// Contracts lists the contract types the component is advertised under
	// in addition to Type.
	Contracts []reflect.Type

	// IsContract reports whether Type itself is a contract.
	IsContract bool

	// Injections in declaration order.
	Injections []InjectionPoint

	// Extractions ordered from the most-derived struct to its embedded ones.
	Extractions []ExtractionPoint

	HasPostConstruct bool

	// New overrides the default zero-value construction when set.
	New func() (any, error)
}

// InjectionPoint is a dependency slot of a component.
type InjectionPoint struct {
	// Field is the slot's name, used in error messages.
	Field string

	// Index is the reflect field index path of the slot.
	Index []int

	// Name qualifies contract lookups. Empty matches any provider.
	Name string

	Type     reflect.Type
	Optional bool
}

// ExtractionPoint is a field or zero-argument method whose value is
// published as an independent resource once the owning component exists.
type ExtractionPoint struct {
	Name string

	// Index is the field index path. For a method it is the path to the
	// embedded struct declaring it, nil when the component declares it.
	Index []int

	// Method is the method name. Empty for field extraction points.
	Method string

	// Type is the field type or the method's first return type.
	Type reflect.Type
}

// IsMethod reports whether the point is a method accessor.
func (p ExtractionPoint) IsMethod() bool {
	return p.Method != ""
}

// MetadataProvider supplies the per-type facts the container consumes.
// The container never reads struct tags itself.
type MetadataProvider interface {
	// Describe returns the descriptor for t.
	Describe(t reflect.Type) (*TypeDescriptor, error)

	// IsContract reports whether t is a contract.
	IsContract(t reflect.Type) bool

	// Contracts returns the contracts implemented by t.
	Contracts(t reflect.Type) []reflect.Type
}
