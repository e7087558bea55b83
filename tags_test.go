package habitat_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/centraunit/habitat"
	"github.com/centraunit/habitat/mock"
)

type TagMetadataTestSuite struct {
	suite.Suite
	md *habitat.TagMetadata
}

func (s *TagMetadataTestSuite) SetupTest() {
	s.md = mock.Metadata()
}

func (s *TagMetadataTestSuite) TestDescribeCar() {
	desc, err := s.md.Describe(habitat.TypeOf[*mock.Car]())
	s.Require().NoError(err)

	s.Equal(habitat.Singleton, desc.Scope)
	s.True(desc.HasPostConstruct)
	s.False(desc.IsContract)
	s.Empty(desc.Contracts)

	s.Require().Len(desc.Injections, 1)
	point := desc.Injections[0]
	s.Equal("Engines", point.Field)
	s.Equal([]int{0}, point.Index)
	s.Equal(habitat.TypeOf[[]mock.Engine](), point.Type)
	s.False(point.Optional)

	s.Require().Len(desc.Extractions, 1)
	s.Equal("FuelTank", desc.Extractions[0].Name)
	s.False(desc.Extractions[0].IsMethod())
}

func (s *TagMetadataTestSuite) TestDescribeIsCached() {
	first, err := s.md.Describe(habitat.TypeOf[*mock.Car]())
	s.Require().NoError(err)
	second, err := s.md.Describe(habitat.TypeOf[*mock.Car]())
	s.Require().NoError(err)
	s.Same(first, second)
}

func (s *TagMetadataTestSuite) TestNameAndContracts() {
	desc, err := s.md.Describe(habitat.TypeOf[*mock.V8]())
	s.Require().NoError(err)
	s.Equal("v8", desc.Name)
	s.Equal([]reflect.Type{habitat.TypeOf[mock.Engine]()}, desc.Contracts)

	s.True(s.md.IsContract(habitat.TypeOf[mock.Engine]()))
	s.False(s.md.IsContract(habitat.TypeOf[*mock.V8]()))
	s.Empty(s.md.Contracts(habitat.TypeOf[mock.Engine]()))
}

func (s *TagMetadataTestSuite) TestOptionalAndQualifiedPoints() {
	desc, err := s.md.Describe(habitat.TypeOf[*mock.Garage]())
	s.Require().NoError(err)
	s.Require().Len(desc.Injections, 2)
	s.Equal("fm", desc.Injections[1].Name)
	s.True(desc.Injections[1].Optional)
}

func (s *TagMetadataTestSuite) TestOptionalAmongOtherOptions() {
	type tuned struct {
		Radio  mock.Radio  `inject:"fm,eager,optional"`
		Engine mock.Engine `inject:",optional"`
		Spare  mock.Engine `inject:"v6,eager"`
	}
	desc, err := s.md.Describe(habitat.TypeOf[*tuned]())
	s.Require().NoError(err)
	s.Require().Len(desc.Injections, 3)

	s.Equal("fm", desc.Injections[0].Name)
	s.True(desc.Injections[0].Optional)
	s.Empty(desc.Injections[1].Name)
	s.True(desc.Injections[1].Optional)
	s.Equal("v6", desc.Injections[2].Name)
	s.False(desc.Injections[2].Optional)
}

func (s *TagMetadataTestSuite) TestScopes() {
	desc, err := s.md.Describe(habitat.TypeOf[*mock.Ticket]())
	s.Require().NoError(err)
	s.Equal(habitat.PerLookup, desc.Scope)

	desc, err = s.md.Describe(habitat.TypeOf[*mock.Session]())
	s.Require().NoError(err)
	s.True(desc.Scope.IsCustom())
	s.Equal("request", desc.Scope.ID())
	s.Equal("custom(request)", desc.Scope.String())

	s.md.DeclareScope(habitat.TypeOf[*mock.Ticket](), habitat.Singleton)
	desc, err = s.md.Describe(habitat.TypeOf[*mock.Ticket]())
	s.Require().NoError(err)
	s.Equal(habitat.Singleton, desc.Scope)
}

func (s *TagMetadataTestSuite) TestEmbeddedExtractionOrder() {
	desc, err := s.md.Describe(habitat.TypeOf[*mock.Truck]())
	s.Require().NoError(err)
	s.Require().Len(desc.Extractions, 2)
	s.Equal("Bed", desc.Extractions[0].Name)
	s.Equal("Frame", desc.Extractions[1].Name)
	s.Equal([]int{0, 0}, desc.Extractions[1].Index)
}

func (s *TagMetadataTestSuite) TestExtractMethods() {
	s.md.ExtractMethods(habitat.TypeOf[*mock.Depot](), "Tanks")
	desc, err := s.md.Describe(habitat.TypeOf[*mock.Depot]())
	s.Require().NoError(err)
	s.Require().Len(desc.Extractions, 1)
	s.True(desc.Extractions[0].IsMethod())
	s.Equal(habitat.TypeOf[[]*mock.FuelTank](), desc.Extractions[0].Type)
}

func (s *TagMetadataTestSuite) TestUnexportedInjectionPoint() {
	type hidden struct {
		engine mock.Engine `inject:""`
	}
	_, err := s.md.Describe(habitat.TypeOf[*hidden]())
	s.ErrorContains(err, "unexported field engine")
}

func (s *TagMetadataTestSuite) TestScopeKindStrings() {
	s.Equal("singleton", habitat.Singleton.String())
	s.Equal("perlookup", habitat.PerLookup.String())
	s.False(habitat.Singleton.IsCustom())
}

func TestTagMetadataSuite(t *testing.T) {
	suite.Run(t, new(TagMetadataTestSuite))
}
