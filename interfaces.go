package habitat

import "reflect"

// Provider produces, or returns a cached, instance of its type on demand.
type Provider interface {
	// Get returns the instance, constructing it if necessary.
	Get() (any, error)

	// Type is the exact type of the instances the provider hands out.
	Type() reflect.Type

	// Name qualifies the provider for contract lookups. Empty when unnamed.
	Name() string
}

// PostConstruct is implemented by components that need a hook after all
// injection points have been bound and before the instance is published
// to any scope.
type PostConstruct interface {
	PostConstruct() error
}

// PreDestroy is implemented by components that release resources when the
// scope instance holding them is closed.
type PreDestroy interface {
	PreDestroy() error
}

// Scope is the capability of a user-defined scope component. Current
// returns the scope instance active for the caller. Returning nil is a
// defect of the scope implementation and fails the resolution.
type Scope interface {
	Current() *ScopeInstance
}

// Named lets a component choose the name it is registered under.
type Named interface {
	HabitatName() string
}

// Scoped lets a component declare its scope.
type Scoped interface {
	HabitatScope() ScopeKind
}
