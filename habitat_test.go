package habitat_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/centraunit/habitat"
	"github.com/centraunit/habitat/config"
	"github.com/centraunit/habitat/mock"
)

type HabitatTestSuite struct {
	suite.Suite
	h *habitat.Habitat
}

func (s *HabitatTestSuite) SetupTest() {
	s.h = habitat.New(habitat.WithMetadata(mock.Metadata()))
}

func (s *HabitatTestSuite) add(adders ...func(*habitat.Habitat) (*habitat.Womb, error)) {
	for _, add := range adders {
		_, err := add(s.h)
		s.Require().NoError(err)
	}
}

func (s *HabitatTestSuite) TestCarScenario() {
	s.add(habitat.Add[*mock.V8], habitat.Add[*mock.V6], habitat.Add[*mock.Car])

	car, err := habitat.Resolve[*mock.Car](s.h)
	s.Require().NoError(err)
	s.True(car.Built)
	s.Require().Len(car.Engines, 2)
	s.Equal(8, car.Engines[0].Cylinders())
	s.Equal(6, car.Engines[1].Cylinders())

	tank, err := habitat.Resolve[*mock.FuelTank](s.h)
	s.Require().NoError(err)
	s.Same(car.FuelTank, tank)
	s.Equal(60, tank.Liters)

	v8, err := habitat.Resolve[*mock.V8](s.h)
	s.Require().NoError(err)
	s.Same(v8, car.Engines[0])
}

func (s *HabitatTestSuite) TestSingletonIsPerHabitat() {
	s.add(habitat.Add[*mock.V8])
	other := habitat.New(habitat.WithMetadata(mock.Metadata()))
	_, err := habitat.Add[*mock.V8](other)
	s.Require().NoError(err)

	mine, err := habitat.Resolve[*mock.V8](s.h)
	s.Require().NoError(err)
	theirs, err := habitat.Resolve[*mock.V8](other)
	s.Require().NoError(err)
	s.NotSame(mine, theirs)

	again, err := habitat.Resolve[*mock.V8](s.h)
	s.Require().NoError(err)
	s.Same(mine, again)
}

func (s *HabitatTestSuite) TestSingletonReturnsSameInstance() {
	s.add(habitat.Add[*mock.V8], habitat.Add[*mock.Car])

	first, err := habitat.Resolve[*mock.Car](s.h)
	s.Require().NoError(err)
	second, err := habitat.Resolve[*mock.Car](s.h)
	s.Require().NoError(err)
	s.Same(first, second)
}

func (s *HabitatTestSuite) TestPerLookupReturnsNewInstance() {
	s.add(habitat.Add[*mock.Ticket])

	first, err := habitat.Resolve[*mock.Ticket](s.h)
	s.Require().NoError(err)
	second, err := habitat.Resolve[*mock.Ticket](s.h)
	s.Require().NoError(err)
	s.NotSame(first, second)
	s.Zero(s.h.SingletonScope().Len())
}

func (s *HabitatTestSuite) TestContractByName() {
	s.add(habitat.Add[*mock.V8], habitat.Add[*mock.V6])

	engine, err := habitat.Resolve[mock.Engine](s.h, "v6")
	s.Require().NoError(err)
	s.Equal(6, engine.Cylinders())

	engine, err = habitat.Resolve[mock.Engine](s.h)
	s.Require().NoError(err)
	s.Equal(8, engine.Cylinders())

	_, err = habitat.Resolve[mock.Engine](s.h, "v12")
	var nf *habitat.NotFoundError
	s.Require().ErrorAs(err, &nf)
	s.Equal("v12", nf.Name)
}

func (s *HabitatTestSuite) TestResolveAllInRegistrationOrder() {
	s.add(habitat.Add[*mock.V6], habitat.Add[*mock.V8])

	engines, err := habitat.ResolveAll[mock.Engine](s.h)
	s.Require().NoError(err)
	s.Require().Len(engines, 2)
	s.Equal(6, engines[0].Cylinders())
	s.Equal(8, engines[1].Cylinders())
}

func (s *HabitatTestSuite) TestResolveAllEmpty() {
	engines, err := habitat.ResolveAll[mock.Engine](s.h)
	s.NoError(err)
	s.Empty(engines)
}

func (s *HabitatTestSuite) TestSliceInjectionWithNoImplementations() {
	s.add(habitat.Add[*mock.Car])

	car, err := habitat.Resolve[*mock.Car](s.h)
	s.Require().NoError(err)
	s.NotNil(car.Engines)
	s.Empty(car.Engines)
}

func (s *HabitatTestSuite) TestArrayInjection() {
	s.add(habitat.Add[*mock.V8], habitat.Add[*mock.V6], habitat.Add[*mock.Pair])

	pair, err := habitat.Resolve[*mock.Pair](s.h)
	s.Require().NoError(err)
	s.Equal(8, pair.Engines[0].Cylinders())
	s.Equal(6, pair.Engines[1].Cylinders())
}

func (s *HabitatTestSuite) TestArrayLengthMismatch() {
	s.add(habitat.Add[*mock.V8], habitat.Add[*mock.Pair])

	_, err := habitat.Resolve[*mock.Pair](s.h)
	var ie *habitat.InjectionError
	s.Require().ErrorAs(err, &ie)
	s.Equal("Engines", ie.Point)
	s.Contains(ie.Reason, "shape mismatch")
}

func (s *HabitatTestSuite) TestOptionalPointLeftUnset() {
	s.add(habitat.Add[*mock.V8], habitat.Add[*mock.Car], habitat.Add[*mock.Garage])

	garage, err := habitat.Resolve[*mock.Garage](s.h)
	s.Require().NoError(err)
	s.NotNil(garage.Car)
	s.Nil(garage.Radio)
}

func (s *HabitatTestSuite) TestOptionalPointBoundWhenAvailable() {
	s.add(habitat.Add[*mock.Car], habitat.Add[*mock.FM], habitat.Add[*mock.Garage])

	garage, err := habitat.Resolve[*mock.Garage](s.h)
	s.Require().NoError(err)
	s.Require().NotNil(garage.Radio)
	s.Equal("101.1", garage.Radio.Station())
}

func (s *HabitatTestSuite) TestRequiredPointFails() {
	s.add(habitat.Add[*mock.Showroom])

	_, err := habitat.Resolve[*mock.Showroom](s.h)
	s.Require().Error(err)

	var ce *habitat.ComponentError
	s.Require().ErrorAs(err, &ce)
	s.Equal(habitat.PhaseInject, ce.Phase)

	var ie *habitat.InjectionError
	s.Require().ErrorAs(err, &ie)
	s.Equal("*mock.Showroom", ie.Type)
	s.Equal("Radio", ie.Point)
	s.Contains(err.Error(), "neither contract nor known component")
	s.Zero(s.h.SingletonScope().Len())
}

func (s *HabitatTestSuite) TestOptionalPointWithBrokenDependencyFails() {
	type lot struct {
		Garage *mock.Garage `inject:",optional"`
	}
	// the garage is registered but its car is not
	s.add(habitat.Add[*mock.Garage], habitat.Add[*lot])

	_, err := habitat.Resolve[*lot](s.h)
	s.Require().Error(err)
	var nf *habitat.NotFoundError
	s.ErrorAs(err, &nf)
	s.Equal("*mock.Car", nf.Type)
}

func (s *HabitatTestSuite) TestNotFound() {
	_, err := habitat.Resolve[*mock.Car](s.h)
	var nf *habitat.NotFoundError
	s.Require().ErrorAs(err, &nf)
	s.Equal("*mock.Car", nf.Type)
}

func (s *HabitatTestSuite) TestPostConstructErrorPassesThrough() {
	s.add(habitat.Add[*mock.Broken])

	_, err := habitat.Resolve[*mock.Broken](s.h)
	s.Equal(mock.ErrBroken, err)

	_, err = habitat.Resolve[*mock.Broken](s.h)
	s.Equal(mock.ErrBroken, err)
	s.Zero(s.h.SingletonScope().Len())
}

func (s *HabitatTestSuite) TestAbstractTypeCannotBeInstantiated() {
	_, err := s.h.Add(&habitat.TypeDescriptor{Type: habitat.TypeOf[mock.Engine]()})
	s.Require().NoError(err)

	_, err = habitat.Resolve[mock.Engine](s.h)
	var ce *habitat.ComponentError
	s.Require().ErrorAs(err, &ce)
	s.Equal(habitat.PhaseInstantiate, ce.Phase)
	var inst *habitat.InstantiationError
	s.ErrorAs(err, &inst)
}

func (s *HabitatTestSuite) TestDescriptorConstructor() {
	desc, err := s.h.Metadata().Describe(habitat.TypeOf[*mock.FuelTank]())
	s.Require().NoError(err)
	custom := *desc
	custom.New = func() (any, error) { return &mock.FuelTank{Liters: 5}, nil }
	_, err = s.h.Add(&custom)
	s.Require().NoError(err)

	tank, err := habitat.Resolve[*mock.FuelTank](s.h)
	s.Require().NoError(err)
	s.Equal(5, tank.Liters)
}

func (s *HabitatTestSuite) TestDescriptorConstructorWrongType() {
	desc, err := s.h.Metadata().Describe(habitat.TypeOf[*mock.FuelTank]())
	s.Require().NoError(err)
	custom := *desc
	custom.New = func() (any, error) { return &mock.Bed{}, nil }
	_, err = s.h.Add(&custom)
	s.Require().NoError(err)

	_, err = habitat.Resolve[*mock.FuelTank](s.h)
	var tm *habitat.TypeMismatchError
	s.ErrorAs(err, &tm)
}

func (s *HabitatTestSuite) TestBindInstance() {
	fm := &mock.FM{}
	_, err := habitat.BindInstance[mock.Radio](s.h, fm, "fm")
	s.Require().NoError(err)

	radio, err := habitat.Resolve[mock.Radio](s.h, "fm")
	s.Require().NoError(err)
	s.Same(fm, radio)

	concrete, err := habitat.Resolve[*mock.FM](s.h)
	s.Require().NoError(err)
	s.Same(fm, concrete)
}

func (s *HabitatTestSuite) TestAddInstanceRejectsUnassignableType() {
	_, err := s.h.AddInstance(&mock.FM{}, "", habitat.TypeOf[mock.Engine]())
	var tm *habitat.TypeMismatchError
	s.ErrorAs(err, &tm)
}

func (s *HabitatTestSuite) TestRegisterNilProvider() {
	s.ErrorIs(s.h.Register(nil), habitat.ErrNilProvider)

	var w *habitat.Womb
	s.ErrorIs(s.h.Register(w), habitat.ErrNilProvider)
}

func (s *HabitatTestSuite) TestRegisterIsIdempotent() {
	w, err := habitat.Add[*mock.V8](s.h)
	s.Require().NoError(err)
	s.Require().NoError(s.h.Register(w))

	s.Len(s.h.Providers(habitat.TypeOf[mock.Engine]()), 1)
	s.Len(s.h.Providers(habitat.TypeOf[*mock.V8]()), 1)
}

func (s *HabitatTestSuite) TestUnregister() {
	w, err := habitat.Add[*mock.V8](s.h)
	s.Require().NoError(err)
	s.h.Unregister(w)

	s.Empty(s.h.Providers(habitat.TypeOf[mock.Engine]()))
	_, err = habitat.Resolve[*mock.V8](s.h)
	s.Error(err)
}

func (s *HabitatTestSuite) TestRegisterUnderExplicitTypes() {
	w, err := habitat.Add[*mock.V8](s.h)
	s.Require().NoError(err)
	anyType := reflect.TypeOf((*any)(nil)).Elem()
	s.Require().NoError(s.h.Register(w, anyType))

	v, err := s.h.Resolve(anyType, "v8")
	s.Require().NoError(err)
	s.IsType(&mock.V8{}, v)
}

func (s *HabitatTestSuite) TestDescribeError() {
	type hidden struct {
		car *mock.Car `inject:""`
	}
	_, err := s.h.AddType(reflect.TypeOf(&hidden{}))
	s.Error(err)
}

func (s *HabitatTestSuite) TestErrorMessages() {
	err := &habitat.CircularDependencyError{Chain: []string{"A", "B", "A"}}
	s.Equal("circular dependency detected: A -> B -> A", err.Error())

	wrapped := &habitat.ComponentError{Type: "T", Phase: habitat.PhaseInject, Err: &habitat.InjectionError{
		Type: "T", Point: "P", Reason: "because",
	}}
	s.Equal("component T failed during inject: cannot satisfy T.P: because", wrapped.Error())
	s.True(errors.As(wrapped, new(*habitat.InjectionError)))
}

func (s *HabitatTestSuite) TestNewFromConfig() {
	cfg := config.Default()
	cfg.Log.Level = "off"
	h := habitat.NewFromConfig(cfg, habitat.WithMetadata(mock.Metadata()))
	_, err := habitat.Add[*mock.V8](h)
	s.Require().NoError(err)

	engine, err := habitat.Resolve[mock.Engine](h, "v8")
	s.Require().NoError(err)
	s.Equal(8, engine.Cylinders())

	s.NotNil(habitat.NewFromConfig(nil).Metadata())
}

func TestHabitatSuite(t *testing.T) {
	suite.Run(t, new(HabitatTestSuite))
}
