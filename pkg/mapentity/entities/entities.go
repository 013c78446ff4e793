package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bouttier/mapentity/pkg/mapentity/geom"
)

// Entity is a concrete record of a registered kind. Instances are
// immutable once constructed; mutation happens by building a new
// instance with Copy.
type Entity interface {
	Kind() string
	ID() string
	Geometry() geom.Geometry // nil when the instance carries no geometry
	Attribute(name string) (any, bool)
	ForEachAttribute(callback func(name string, value any))
	Owner() string
	Scope() string
	CreatedAt() time.Time
	UpdatedAt() time.Time
	MarshalJSON() ([]byte, error)
}

type EntityDecoratorFunc func(e *EntityImpl)

func New(kind, id string, decorators ...EntityDecoratorFunc) (Entity, error) {
	if kind == "" {
		return nil, fmt.Errorf("entities must have a kind")
	}

	e := &EntityImpl{
		kind:       kind,
		id:         id,
		attributes: map[string]any{},
	}

	for _, decorator := range decorators {
		decorator(e)
	}

	return e, nil
}

// Copy rebuilds an entity from an existing one and applies the
// supplied decorators on top of it.
func Copy(from Entity, decorators ...EntityDecoratorFunc) (Entity, error) {
	e := &EntityImpl{
		kind:       from.Kind(),
		id:         from.ID(),
		geometry:   from.Geometry(),
		owner:      from.Owner(),
		scope:      from.Scope(),
		createdAt:  from.CreatedAt(),
		updatedAt:  from.UpdatedAt(),
		attributes: map[string]any{},
	}

	from.ForEachAttribute(func(name string, value any) {
		e.attributes[name] = value
	})

	for _, decorator := range decorators {
		decorator(e)
	}

	if e.kind == "" {
		return nil, fmt.Errorf("entities must have a kind")
	}

	return e, nil
}

// NewFromJSON parses an entity of the expected kind from its JSON
// representation. A kind in the body is allowed but must match.
func NewFromJSON(kind string, body []byte) (Entity, error) {
	e := &EntityImpl{}
	err := json.Unmarshal(body, e)

	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	if e.kind != "" && e.kind != kind {
		return nil, fmt.Errorf("entity kind %q does not match %q", e.kind, kind)
	}

	e.kind = kind

	return e, nil
}

type EntityImpl struct {
	kind string
	id   string

	geometry   geom.Geometry
	attributes map[string]any

	owner string
	scope string

	createdAt time.Time
	updatedAt time.Time
}

func (e EntityImpl) Kind() string            { return e.kind }
func (e EntityImpl) ID() string              { return e.id }
func (e EntityImpl) Geometry() geom.Geometry { return e.geometry }
func (e EntityImpl) Owner() string           { return e.owner }
func (e EntityImpl) Scope() string           { return e.scope }
func (e EntityImpl) CreatedAt() time.Time    { return e.createdAt }
func (e EntityImpl) UpdatedAt() time.Time    { return e.updatedAt }

func (e EntityImpl) Attribute(name string) (any, bool) {
	v, ok := e.attributes[name]
	return v, ok
}

func (e EntityImpl) ForEachAttribute(callback func(name string, value any)) {
	for k, v := range e.attributes {
		callback(k, v)
	}
}

func (e EntityImpl) MarshalJSON() ([]byte, error) {
	contents := map[string]any{
		"id":         e.id,
		"kind":       e.kind,
		"attributes": e.attributes,
	}

	if e.geometry != nil {
		contents["geometry"] = e.geometry
	}

	if e.owner != "" {
		contents["owner"] = e.owner
	}

	if e.scope != "" {
		contents["scope"] = e.scope
	}

	if !e.createdAt.IsZero() {
		contents["createdAt"] = e.createdAt.UTC().Format(time.RFC3339)
	}

	if !e.updatedAt.IsZero() {
		contents["updatedAt"] = e.updatedAt.UTC().Format(time.RFC3339)
	}

	return json.Marshal(&contents)
}

func (e *EntityImpl) UnmarshalJSON(data []byte) error {
	header := struct {
		ID         string          `json:"id"`
		Kind       string          `json:"kind"`
		Geometry   json.RawMessage `json:"geometry"`
		Attributes map[string]any  `json:"attributes"`
		Owner      string          `json:"owner"`
		Scope      string          `json:"scope"`
		CreatedAt  *time.Time      `json:"createdAt"`
		UpdatedAt  *time.Time      `json:"updatedAt"`
	}{}

	err := json.Unmarshal(data, &header)
	if err != nil {
		return fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	e.id = header.ID
	e.kind = header.Kind
	e.owner = header.Owner
	e.scope = header.Scope

	if header.CreatedAt != nil {
		e.createdAt = *header.CreatedAt
	}

	if header.UpdatedAt != nil {
		e.updatedAt = *header.UpdatedAt
	}

	e.attributes = map[string]any{}
	for k, v := range header.Attributes {
		e.attributes[k] = v
	}

	if len(header.Geometry) > 0 && string(header.Geometry) != "null" {
		g, err := geom.Unmarshal(header.Geometry)
		if err != nil {
			return err
		}

		e.geometry = g
	}

	return nil
}

// A sets an attribute value.
func A(name string, value any) EntityDecoratorFunc {
	return func(e *EntityImpl) { e.attributes[name] = value }
}

// G sets the geometry attribute.
func G(g geom.Geometry) EntityDecoratorFunc {
	return func(e *EntityImpl) { e.geometry = g }
}

func ID(id string) EntityDecoratorFunc {
	return func(e *EntityImpl) { e.id = id }
}

func Owner(principalID string) EntityDecoratorFunc {
	return func(e *EntityImpl) { e.owner = principalID }
}

func Scope(scope string) EntityDecoratorFunc {
	return func(e *EntityImpl) { e.scope = scope }
}

func CreatedAt(t time.Time) EntityDecoratorFunc {
	return func(e *EntityImpl) { e.createdAt = t }
}

func UpdatedAt(t time.Time) EntityDecoratorFunc {
	return func(e *EntityImpl) { e.updatedAt = t }
}
