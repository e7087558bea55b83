package habitat

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var (
	postConstructType = reflect.TypeOf((*PostConstruct)(nil)).Elem()
	namedType         = reflect.TypeOf((*Named)(nil)).Elem()
	scopedType        = reflect.TypeOf((*Scoped)(nil)).Elem()
)

// TagMetadata derives descriptors from struct tags.
//
//	type Car struct {
//	    Engines  []Engine  `inject:""`
//	    Radio    Radio     `inject:"fm,optional"`
//	    FuelTank *FuelTank `extract:""`
//	}
//
// Contracts, extraction methods and scopes that cannot be expressed as tags
// are declared on the TagMetadata before the types are described.
// Descriptors are computed once per type and cached.
type TagMetadata struct {
	mu        sync.RWMutex
	contracts []reflect.Type
	isDecl    map[reflect.Type]bool
	scopes    map[reflect.Type]ScopeKind
	methods   map[reflect.Type][]string
	cache     map[reflect.Type]*TypeDescriptor
}

// NewTagMetadata creates an empty tag-based MetadataProvider.
func NewTagMetadata() *TagMetadata {
	return &TagMetadata{
		isDecl:  make(map[reflect.Type]bool),
		scopes:  make(map[reflect.Type]ScopeKind),
		methods: make(map[reflect.Type][]string),
		cache:   make(map[reflect.Type]*TypeDescriptor),
	}
}

// DeclareContract marks the given types as contracts.
func (m *TagMetadata) DeclareContract(types ...reflect.Type) *TagMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range types {
		if m.isDecl[t] {
			continue
		}
		m.isDecl[t] = true
		m.contracts = append(m.contracts, t)
	}
	m.cache = make(map[reflect.Type]*TypeDescriptor)
	return m
}

// DeclareScope overrides the scope of t.
func (m *TagMetadata) DeclareScope(t reflect.Type, scope ScopeKind) *TagMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes[t] = scope
	delete(m.cache, t)
	return m
}

// ExtractMethods declares zero-argument methods of the struct type t (or of
// the struct t points to) as extraction points. Declarations on a struct
// also apply to every struct embedding it.
func (m *TagMetadata) ExtractMethods(t reflect.Type, names ...string) *TagMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := structOf(t)
	m.methods[st] = append(m.methods[st], names...)
	m.cache = make(map[reflect.Type]*TypeDescriptor)
	return m
}

// IsContract reports whether t was declared a contract.
func (m *TagMetadata) IsContract(t reflect.Type) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isDecl[t]
}

// Contracts returns the declared interface contracts t implements, in
// declaration order. A contract is not listed among its own contracts.
func (m *TagMetadata) Contracts(t reflect.Type) []reflect.Type {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contractsOf(t)
}

func (m *TagMetadata) contractsOf(t reflect.Type) []reflect.Type {
	var out []reflect.Type
	for _, c := range m.contracts {
		if c == t {
			continue
		}
		if c.Kind() == reflect.Interface && t.Implements(c) {
			out = append(out, c)
		}
	}
	return out
}

// Describe returns the cached descriptor of t, building it on first use.
func (m *TagMetadata) Describe(t reflect.Type) (*TypeDescriptor, error) {
	if t == nil {
		return nil, fmt.Errorf("describe: nil type")
	}

	m.mu.RLock()
	desc, ok := m.cache[t]
	m.mu.RUnlock()
	if ok {
		return desc, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if desc, ok := m.cache[t]; ok {
		return desc, nil
	}

	desc = &TypeDescriptor{
		Type:             t,
		IsContract:       m.isDecl[t],
		Contracts:        m.contractsOf(t),
		HasPostConstruct: t.Implements(postConstructType),
	}

	if st := structOf(t); st != nil && t.Kind() == reflect.Pointer {
		injections, err := injectionPoints(st, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", t, err)
		}
		desc.Injections = injections
		desc.Extractions = m.extractionPoints(st, nil, map[reflect.Type]bool{})

		zero := reflect.New(st).Interface()
		if t.Implements(namedType) {
			desc.Name = zero.(Named).HabitatName()
		}
		if t.Implements(scopedType) {
			desc.Scope = zero.(Scoped).HabitatScope()
		}
	}
	if scope, ok := m.scopes[t]; ok {
		desc.Scope = scope
	}

	m.cache[t] = desc
	return desc, nil
}

func injectionPoints(st reflect.Type, prefix []int, out []InjectionPoint) ([]InjectionPoint, error) {
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		index := appendIndex(prefix, i)

		tag, tagged := f.Tag.Lookup("inject")
		if !tagged {
			if f.Anonymous && f.Type.Kind() == reflect.Struct {
				var err error
				if out, err = injectionPoints(f.Type, index, out); err != nil {
					return nil, err
				}
			}
			continue
		}
		if !f.IsExported() {
			return nil, fmt.Errorf("inject tag on unexported field %s", f.Name)
		}

		name, opts, _ := strings.Cut(tag, ",")
		optional := false
		for _, opt := range strings.Split(opts, ",") {
			if strings.TrimSpace(opt) == "optional" {
				optional = true
			}
		}
		out = append(out, InjectionPoint{
			Field:    f.Name,
			Index:    index,
			Name:     name,
			Type:     f.Type,
			Optional: optional,
		})
	}
	return out, nil
}

// extractionPoints lists the struct's own tagged fields and declared
// methods before descending into embedded structs, so base declarations
// are visited after, and never shadowed by, the embedding struct's.
func (m *TagMetadata) extractionPoints(st reflect.Type, prefix []int, seen map[reflect.Type]bool) []ExtractionPoint {
	if seen[st] {
		return nil
	}
	seen[st] = true

	var out []ExtractionPoint
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if _, ok := f.Tag.Lookup("extract"); !ok {
			continue
		}
		out = append(out, ExtractionPoint{
			Name:  f.Name,
			Index: appendIndex(prefix, i),
			Type:  f.Type,
		})
	}

	for _, name := range m.methods[st] {
		p := ExtractionPoint{Name: name, Index: prefix, Method: name}
		if method, ok := reflect.PointerTo(st).MethodByName(name); ok && method.Type.NumOut() > 0 {
			p.Type = method.Type.Out(0)
		}
		out = append(out, p)
	}

	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.Anonymous {
			continue
		}
		if est := structOf(f.Type); est != nil {
			out = append(out, m.extractionPoints(est, appendIndex(prefix, i), seen)...)
		}
	}
	return out
}

func structOf(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

func appendIndex(prefix []int, i int) []int {
	index := make([]int, len(prefix)+1)
	copy(index, prefix)
	index[len(prefix)] = i
	return index
}
