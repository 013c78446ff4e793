package entitymanager

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/bouttier/mapentity/pkg/mapentity/errors"
	"github.com/bouttier/mapentity/pkg/mapentity/registry"
)

// validateAgainstSchema checks an incoming payload against the kind's
// schema. Unknown attributes are rejected rather than dropped, so a
// misspelled attribute never silently disappears from a write.
func validateAgainstSchema(d *registry.Descriptor, e entities.Entity) error {
	var err error

	e.ForEachAttribute(func(name string, value any) {
		if err != nil {
			return
		}

		attr, ok := d.Attribute(name)
		if !ok {
			err = errors.NewUnknownAttributeError(
				fmt.Sprintf("kind %s has no attribute %s", d.Kind, name))
			return
		}

		err = validateValue(d.Kind, attr, value)
	})

	if err != nil {
		return err
	}

	if g := e.Geometry(); g != nil {
		attr, ok := d.GeometryAttribute()
		if !ok {
			return errors.NewUnknownAttributeError(
				fmt.Sprintf("kind %s declares no geometry attribute", d.Kind))
		}

		if attr.SpatialType != "" && attr.SpatialType != g.GeometryType() {
			return errors.NewTypeMismatchError(
				fmt.Sprintf("attribute %s of kind %s requires geometry type %s, got %s",
					attr.Name, d.Kind, attr.SpatialType, g.GeometryType()))
		}
	}

	return nil
}

func validateValue(kind string, attr registry.Attribute, value any) error {
	mismatch := func(want string) error {
		return errors.NewTypeMismatchError(
			fmt.Sprintf("attribute %s of kind %s expects a %s value", attr.Name, kind, want))
	}

	switch attr.Type {
	case registry.AttributeGeometry:
		return errors.NewTypeMismatchError(
			fmt.Sprintf("attribute %s of kind %s is a geometry and must be supplied as such", attr.Name, kind))
	case registry.AttributeNumber:
		switch v := value.(type) {
		case float64, int, int64:
		case json.Number:
			if _, err := v.Float64(); err != nil {
				return mismatch("number")
			}
		default:
			return mismatch("number")
		}
	case registry.AttributeDate:
		s, ok := value.(string)
		if !ok {
			return mismatch("date")
		}

		if _, err := time.Parse(time.RFC3339, s); err != nil {
			if _, err := time.Parse("2006-01-02", s); err != nil {
				return mismatch("date")
			}
		}
	case registry.AttributeEnum:
		s, ok := value.(string)
		if !ok {
			return mismatch("enum")
		}

		for _, allowed := range attr.Values {
			if s == allowed {
				return nil
			}
		}

		return errors.NewTypeMismatchError(
			fmt.Sprintf("attribute %s of kind %s does not allow value %s",
				attr.Name, kind, strconv.Quote(s)))
	default:
		if _, ok := value.(string); !ok {
			return mismatch("text")
		}
	}

	return nil
}
