package serializers

import (
	"context"
	"encoding/json"
	"io"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/bouttier/mapentity/pkg/mapentity/geom"
	"github.com/bouttier/mapentity/pkg/mapentity/registry"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
}

type Feature struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Geometry   geom.Geometry  `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// ConvertEntity turns an instance into a map feature carrying the
// descriptor's display fields. The caller is responsible for
// excluding instances without geometry.
func ConvertEntity(d *registry.Descriptor, e entities.Entity) Feature {
	feature := Feature{
		ID:       e.ID(),
		Type:     "Feature",
		Geometry: e.Geometry(),
		Properties: map[string]any{
			"kind": e.Kind(),
		},
	}

	if len(d.DisplayFields) > 0 {
		for _, name := range d.DisplayFields {
			if value, ok := e.Attribute(name); ok {
				feature.Properties[name] = value
			}
		}

		return feature
	}

	e.ForEachAttribute(func(name string, value any) {
		feature.Properties[name] = value
	})

	return feature
}

// MapLayerSerializer renders an entity set as a GeoJSON feature
// collection. Instances with null geometry are omitted from the
// collection, not represented as empty geometries.
type MapLayerSerializer struct{}

func (s *MapLayerSerializer) ContentType() string {
	return "application/geo+json"
}

func (s *MapLayerSerializer) Render(ctx context.Context, sc Context, w io.Writer) error {
	fc := NewFeatureCollection()

	for _, e := range sc.Entities {
		if e.Geometry() == nil {
			continue
		}

		fc.Features = append(fc.Features, ConvertEntity(sc.Descriptor, e))
	}

	return json.NewEncoder(w).Encode(fc)
}
