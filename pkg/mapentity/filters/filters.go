package filters

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/bouttier/mapentity/pkg/mapentity/errors"
	"github.com/bouttier/mapentity/pkg/mapentity/geom"
	"github.com/bouttier/mapentity/pkg/mapentity/registry"
)

type Operator string

const (
	OpEq       Operator = "eq"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpRange    Operator = "range"
	OpContains Operator = "contains"
)

func (op Operator) ordered() bool {
	switch op {
	case OpLt, OpLte, OpGt, OpGte, OpRange:
		return true
	}

	return false
}

// reserved parameter keys are consumed by the request boundary and
// never treated as attribute filters.
var reservedKeys = map[string]struct{}{
	"format":  {},
	"groupby": {},
	"locale":  {},
}

const boundsKey = "bbox"

type Condition struct {
	Attribute string
	Operator  Operator

	// Value is coerced to the declared attribute type during Build:
	// float64 for numbers, time.Time for dates, string otherwise.
	Value any

	// High is the upper bound of a range condition.
	High any
}

// Specification is the validated, request scoped filter for one kind.
// Conditions combine with logical AND; OR across attributes is not
// supported.
type Specification struct {
	Kind       string
	Conditions []Condition
	Bounds     *geom.Box
}

// Build validates raw query parameters against the descriptor schema
// and produces a specification. Parameter keys take the form "name"
// for equality or "name__op" for lt, lte, gt, gte, range and
// contains. When a key occurs more than once the last occurrence
// wins.
func Build(d *registry.Descriptor, rawParams url.Values) (*Specification, error) {
	spec := &Specification{Kind: d.Kind}

	keys := make([]string, 0, len(rawParams))
	for key := range rawParams {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := rawParams[key]
		if len(values) == 0 {
			continue
		}

		raw := values[len(values)-1]

		if _, skip := reservedKeys[key]; skip {
			continue
		}

		if key == boundsKey {
			if _, ok := d.GeometryAttribute(); !ok {
				return nil, errors.NewUnknownAttributeError(
					fmt.Sprintf("kind %s declares no geometry attribute to bound", d.Kind))
			}

			box, err := geom.ParseBox(raw)
			if err != nil {
				return nil, errors.NewTypeMismatchError(err.Error())
			}

			spec.Bounds = &box
			continue
		}

		name := key
		op := OpEq

		if idx := strings.LastIndex(key, "__"); idx > 0 {
			name = key[:idx]
			op = Operator(key[idx+2:])
		}

		attr, ok := d.Attribute(name)
		if !ok {
			return nil, errors.NewUnknownAttributeError(
				fmt.Sprintf("kind %s has no attribute %s", d.Kind, name))
		}

		cond, err := buildCondition(attr, op, raw)
		if err != nil {
			return nil, err
		}

		spec.Conditions = append(spec.Conditions, cond)
	}

	return spec, nil
}

func buildCondition(attr registry.Attribute, op Operator, raw string) (Condition, error) {
	if attr.Type == registry.AttributeGeometry {
		return Condition{}, errors.NewTypeMismatchError(
			fmt.Sprintf("geometry attribute %q is filtered with %s, not by value", attr.Name, boundsKey))
	}

	switch op {
	case OpEq:
	case OpContains:
		if attr.Type != registry.AttributeText {
			return Condition{}, errors.NewTypeMismatchError(
				fmt.Sprintf("operator %q applies to text attributes only, %q is %s", op, attr.Name, attr.Type))
		}
	case OpLt, OpLte, OpGt, OpGte, OpRange:
		if !attr.Type.Ordered() {
			return Condition{}, errors.NewTypeMismatchError(
				fmt.Sprintf("operator %q applies to ordered attributes only, %q is %s", op, attr.Name, attr.Type))
		}
	default:
		return Condition{}, errors.NewTypeMismatchError(fmt.Sprintf("unknown operator %q", op))
	}

	cond := Condition{Attribute: attr.Name, Operator: op}

	if op == OpRange {
		parts := strings.SplitN(raw, ",", 2)
		if len(parts) != 2 {
			return Condition{}, errors.NewTypeMismatchError(
				fmt.Sprintf("range conditions on %q require a low,high value pair", attr.Name))
		}

		low, err := coerce(attr, parts[0])
		if err != nil {
			return Condition{}, err
		}

		high, err := coerce(attr, parts[1])
		if err != nil {
			return Condition{}, err
		}

		cond.Value = low
		cond.High = high

		return cond, nil
	}

	value, err := coerce(attr, raw)
	if err != nil {
		return Condition{}, err
	}

	cond.Value = value

	return cond, nil
}

func coerce(attr registry.Attribute, raw string) (any, error) {
	switch attr.Type {
	case registry.AttributeNumber:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.NewTypeMismatchError(
				fmt.Sprintf("value %q is not a number, attribute %q requires one", raw, attr.Name))
		}

		return v, nil
	case registry.AttributeDate:
		t, err := parseDate(raw)
		if err != nil {
			return nil, errors.NewTypeMismatchError(
				fmt.Sprintf("value %q is not a date, attribute %q requires one", raw, attr.Name))
		}

		return t, nil
	case registry.AttributeEnum:
		for _, member := range attr.Values {
			if member == raw {
				return raw, nil
			}
		}

		return nil, errors.NewTypeMismatchError(
			fmt.Sprintf("value %q is not a member of enum attribute %q", raw, attr.Name))
	default:
		return raw, nil
	}
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return t, nil
	}

	return time.Parse("2006-01-02", raw)
}

// Matches defines the exact predicate semantics every storage
// backend must agree with. Re-applying the same specification to the
// same candidate set is idempotent.
func (s *Specification) Matches(e entities.Entity) bool {
	for _, cond := range s.Conditions {
		if !cond.matches(e) {
			return false
		}
	}

	if s.Bounds != nil {
		g := e.Geometry()
		if g == nil {
			// no intersection test against null geometries
			return false
		}

		if !g.Bounds().Intersects(*s.Bounds) {
			return false
		}
	}

	return true
}

func (c Condition) matches(e entities.Entity) bool {
	raw, ok := e.Attribute(c.Attribute)
	if !ok {
		return false
	}

	switch want := c.Value.(type) {
	case float64:
		have, ok := toFloat(raw)
		if !ok {
			return false
		}

		if c.Operator == OpRange {
			high, _ := c.High.(float64)
			return have >= want && have <= high
		}

		return compareOrdered(c.Operator, compareFloats(have, want))
	case time.Time:
		have, ok := toTime(raw)
		if !ok {
			return false
		}

		if c.Operator == OpRange {
			high, _ := c.High.(time.Time)
			return !have.Before(want) && !have.After(high)
		}

		return compareOrdered(c.Operator, have.Compare(want))
	case string:
		have, ok := raw.(string)
		if !ok {
			return false
		}

		if c.Operator == OpContains {
			return strings.Contains(have, want)
		}

		return have == want
	}

	return false
}

func compareFloats(a, b float64) int {
	if a < b {
		return -1
	}

	if a > b {
		return 1
	}

	return 0
}

func compareOrdered(op Operator, cmp int) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	}

	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}

	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := parseDate(t)
		return parsed, err == nil
	}

	return time.Time{}, false
}
