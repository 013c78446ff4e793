package registry

import (
	"fmt"
	"sort"

	"github.com/bouttier/mapentity/pkg/mapentity/errors"
	"github.com/bouttier/mapentity/pkg/mapentity/geom"
	"github.com/bouttier/mapentity/pkg/mapentity/policy"
)

type AttributeType string

const (
	AttributeText      AttributeType = "text"
	AttributeNumber    AttributeType = "number"
	AttributeDate      AttributeType = "date"
	AttributeEnum      AttributeType = "enum"
	AttributeGeometry  AttributeType = "geometry"
	AttributeReference AttributeType = "reference"
)

func (t AttributeType) IsValid() bool {
	switch t {
	case AttributeText, AttributeNumber, AttributeDate, AttributeEnum, AttributeGeometry, AttributeReference:
		return true
	}

	return false
}

// Ordered reports whether values of this type support the ordered
// comparison operators.
func (t AttributeType) Ordered() bool {
	return t == AttributeNumber || t == AttributeDate
}

type Attribute struct {
	Name string
	Type AttributeType

	// Values enumerates the members of an enum attribute.
	Values []string

	// SpatialType constrains a geometry attribute to a single
	// geometry type.
	SpatialType geom.Type
}

// Descriptor is the registered metadata for an entity kind: its
// attribute schema, display fields and capability bindings. Created
// once at registration and immutable afterward.
type Descriptor struct {
	Kind   string
	Schema []Attribute

	// DisplayFields selects the reduced attribute subset used by the
	// map layer serializer. Empty means all non geometry attributes.
	DisplayFields []string

	// Policy overrides the default permission policy for every
	// operation. Nil selects the default policy.
	Policy policy.Policy

	// DocumentTemplate identifies the merge template handed to the
	// rendering backend. Empty selects a template named after the kind.
	DocumentTemplate string
}

func (d *Descriptor) Attribute(name string) (Attribute, bool) {
	for _, a := range d.Schema {
		if a.Name == name {
			return a, true
		}
	}

	return Attribute{}, false
}

func (d *Descriptor) GeometryAttribute() (Attribute, bool) {
	for _, a := range d.Schema {
		if a.Type == AttributeGeometry {
			return a, true
		}
	}

	return Attribute{}, false
}

// Registry associates entity kinds with their descriptors. All
// registrations happen during startup, before any request is served;
// after that the registry is read only and safe to share between
// concurrent request handlers without locking.
type Registry struct {
	kinds map[string]*Descriptor
}

func New() *Registry {
	return &Registry{kinds: map[string]*Descriptor{}}
}

func (r *Registry) Register(d Descriptor) error {
	if d.Kind == "" {
		return errors.NewInvalidSchemaError("descriptors must name a kind")
	}

	if _, exists := r.kinds[d.Kind]; exists {
		return errors.NewDuplicateKindError(d.Kind)
	}

	if len(d.Schema) == 0 {
		return errors.NewInvalidSchemaError(fmt.Sprintf("kind %q declares an empty schema", d.Kind))
	}

	seen := map[string]struct{}{}
	geometryAttributes := 0

	for _, a := range d.Schema {
		if a.Name == "" {
			return errors.NewInvalidSchemaError(fmt.Sprintf("kind %q declares an unnamed attribute", d.Kind))
		}

		if _, dup := seen[a.Name]; dup {
			return errors.NewInvalidSchemaError(fmt.Sprintf("kind %q declares attribute %q twice", d.Kind, a.Name))
		}
		seen[a.Name] = struct{}{}

		if !a.Type.IsValid() {
			return errors.NewInvalidSchemaError(fmt.Sprintf("attribute %q has unrecognized type %q", a.Name, a.Type))
		}

		if a.Type == AttributeGeometry {
			geometryAttributes++

			if !a.SpatialType.IsValid() {
				return errors.NewInvalidSchemaError(fmt.Sprintf("geometry attribute %q has unrecognized spatial type %q", a.Name, a.SpatialType))
			}
		}

		if a.Type == AttributeEnum && len(a.Values) == 0 {
			return errors.NewInvalidSchemaError(fmt.Sprintf("enum attribute %q declares no values", a.Name))
		}
	}

	if geometryAttributes > 1 {
		return errors.NewInvalidSchemaError(fmt.Sprintf("kind %q declares more than one geometry attribute", d.Kind))
	}

	for _, f := range d.DisplayFields {
		if _, ok := seen[f]; !ok {
			return errors.NewInvalidSchemaError(fmt.Sprintf("display field %q is not part of the schema of kind %q", f, d.Kind))
		}
	}

	r.kinds[d.Kind] = &d

	return nil
}

func (r *Registry) Resolve(kind string) (*Descriptor, error) {
	d, ok := r.kinds[kind]
	if !ok {
		return nil, errors.NewUnknownKindError(kind)
	}

	return d, nil
}

func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		kinds = append(kinds, k)
	}

	sort.Strings(kinds)

	return kinds
}
