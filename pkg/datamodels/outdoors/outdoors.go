// Package outdoors bundles ready made kind descriptors and entity
// constructors for outdoor recreation data.
package outdoors

import (
	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	ed "github.com/bouttier/mapentity/pkg/mapentity/entities/decorators"
	"github.com/bouttier/mapentity/pkg/mapentity/geom"
	"github.com/bouttier/mapentity/pkg/mapentity/registry"
)

const (
	// TrailKind is the kind name for marked outdoor trails
	TrailKind string = "trail"
	// PointOfInterestKind is the kind name for points of interest along trails
	PointOfInterestKind string = "poi"
)

// TrailDescriptor returns the descriptor to register for trails.
func TrailDescriptor() registry.Descriptor {
	return registry.Descriptor{
		Kind: TrailKind,
		Schema: []registry.Attribute{
			{Name: "name", Type: registry.AttributeText},
			{Name: "difficulty", Type: registry.AttributeEnum, Values: []string{"easy", "medium", "hard"}},
			{Name: "length", Type: registry.AttributeNumber},
			{Name: "opened", Type: registry.AttributeDate},
			{Name: "path", Type: registry.AttributeGeometry, SpatialType: geom.TypeLineString},
		},
		DisplayFields: []string{"name", "difficulty", "length"},
	}
}

// PointOfInterestDescriptor returns the descriptor to register for
// points of interest.
func PointOfInterestDescriptor() registry.Descriptor {
	return registry.Descriptor{
		Kind: PointOfInterestKind,
		Schema: []registry.Attribute{
			{Name: "name", Type: registry.AttributeText},
			{Name: "category", Type: registry.AttributeText},
			{Name: "trail", Type: registry.AttributeReference},
			{Name: "location", Type: registry.AttributeGeometry, SpatialType: geom.TypePoint},
		},
		DisplayFields: []string{"name", "category"},
	}
}

func NewTrail(id, name string, length float64, path [][]float64, decorators ...entities.EntityDecoratorFunc) (entities.Entity, error) {
	decorators = append(decorators, ed.Text("name", name))

	if length > 0.1 {
		decorators = append(decorators, ed.Number("length", length))
	}

	if len(path) > 0 {
		decorators = append(decorators, ed.Path(path))
	}

	return entities.New(TrailKind, id, decorators...)
}

func NewPointOfInterest(id, name string, longitude, latitude float64, decorators ...entities.EntityDecoratorFunc) (entities.Entity, error) {
	decorators = append(decorators,
		ed.Text("name", name),
		ed.Location(longitude, latitude),
	)

	return entities.New(PointOfInterestKind, id, decorators...)
}
