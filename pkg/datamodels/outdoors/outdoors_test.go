package outdoors

import (
	"testing"

	"github.com/bouttier/mapentity/pkg/mapentity/geom"
	"github.com/bouttier/mapentity/pkg/mapentity/registry"
	"github.com/matryer/is"
)

func TestDescriptorsRegisterCleanly(t *testing.T) {
	is := is.New(t)

	r := registry.New()
	is.NoErr(r.Register(TrailDescriptor()))
	is.NoErr(r.Register(PointOfInterestDescriptor()))

	is.Equal(r.Kinds(), []string{"poi", "trail"})
}

func TestNewTrail(t *testing.T) {
	is := is.New(t)

	e, err := NewTrail("t1", "west loop", 6.5, [][]float64{{17.2, 62.1}, {17.4, 62.3}})
	is.NoErr(err)

	is.Equal(e.Kind(), TrailKind)

	name, ok := e.Attribute("name")
	is.True(ok)
	is.Equal(name, "west loop")

	length, ok := e.Attribute("length")
	is.True(ok)
	is.Equal(length, 6.5)

	is.True(e.Geometry() != nil)
	is.Equal(e.Geometry().GeometryType(), geom.TypeLineString)
}

func TestNewTrailSkipsNegligibleLengths(t *testing.T) {
	is := is.New(t)

	e, err := NewTrail("t1", "stub", 0, nil)
	is.NoErr(err)

	_, ok := e.Attribute("length")
	is.True(!ok)
	is.True(e.Geometry() == nil)
}

func TestNewPointOfInterest(t *testing.T) {
	is := is.New(t)

	e, err := NewPointOfInterest("p1", "shelter", 17.2, 62.1)
	is.NoErr(err)

	is.Equal(e.Kind(), PointOfInterestKind)
	is.Equal(e.Geometry().GeometryType(), geom.TypePoint)
}
