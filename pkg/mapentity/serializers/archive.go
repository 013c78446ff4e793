package serializers

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/bouttier/mapentity/pkg/mapentity/errors"
)

// GroupByGeometryType is the reserved grouping key that splits
// archive members by geometry type.
const GroupByGeometryType = "geomtype"

// ArchiveSerializer renders an entity set as a zip of GeoJSON
// members. A single member never mixes point, line and polygon
// geometries; sets with more than one geometry type require a
// grouping key.
type ArchiveSerializer struct{}

func (s *ArchiveSerializer) ContentType() string {
	return "application/zip"
}

func (s *ArchiveSerializer) Render(ctx context.Context, sc Context, w io.Writer) error {
	groups, err := groupEntities(sc)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)

	for _, name := range names {
		member, err := zw.Create(name)
		if err != nil {
			return err
		}

		fc := NewFeatureCollection()
		for _, e := range groups[name] {
			fc.Features = append(fc.Features, ConvertEntity(sc.Descriptor, e))
		}

		if err := json.NewEncoder(member).Encode(fc); err != nil {
			return err
		}
	}

	return zw.Close()
}

func groupEntities(sc Context) (map[string][]entities.Entity, error) {
	kind := strings.ToLower(sc.Descriptor.Kind)
	groups := map[string][]entities.Entity{}

	for _, e := range sc.Entities {
		g := e.Geometry()
		if g == nil {
			continue
		}

		var member string

		switch sc.GroupBy {
		case "":
			member = fmt.Sprintf("%s.geojson", kind)
		case GroupByGeometryType:
			member = fmt.Sprintf("%s-%s.geojson", kind, strings.ToLower(string(g.GeometryType())))
		default:
			if _, ok := sc.Descriptor.Attribute(sc.GroupBy); !ok {
				return nil, errors.NewUnknownAttributeError(
					fmt.Sprintf("kind %s has no attribute %s to group by", kind, sc.GroupBy))
			}

			value, ok := e.Attribute(sc.GroupBy)
			if !ok {
				value = "unset"
			}

			member = fmt.Sprintf("%s-%v.geojson", kind, value)
		}

		groups[member] = append(groups[member], e)
	}

	for member, group := range groups {
		types := map[string]struct{}{}
		for _, e := range group {
			types[string(e.Geometry().GeometryType())] = struct{}{}
		}

		if len(types) > 1 {
			return nil, errors.NewMixedGeometryTypesError(
				fmt.Sprintf("archive member %q would mix %d geometry types, supply a grouping key", member, len(types)))
		}
	}

	return groups, nil
}
