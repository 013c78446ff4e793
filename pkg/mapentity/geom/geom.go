package geom

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Type string

const (
	TypePoint      Type = "Point"
	TypeLineString Type = "LineString"
	TypePolygon    Type = "Polygon"
)

func (t Type) IsValid() bool {
	return t == TypePoint || t == TypeLineString || t == TypePolygon
}

// Box is an axis aligned bounding box in the coordinate reference
// system of the geometry it was computed from.
type Box struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

func (b Box) Intersects(other Box) bool {
	if b.MaxX < other.MinX || other.MaxX < b.MinX {
		return false
	}

	if b.MaxY < other.MinY || other.MaxY < b.MinY {
		return false
	}

	return true
}

// ParseBox parses a "minx,miny,maxx,maxy" bounding box parameter.
func ParseBox(s string) (Box, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Box{}, fmt.Errorf("bounding boxes require exactly four coordinates, got %d", len(parts))
	}

	values := make([]float64, 4)

	for idx, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Box{}, fmt.Errorf("bounding box coordinate %q is not a number", p)
		}
		values[idx] = v
	}

	if values[0] > values[2] || values[1] > values[3] {
		return Box{}, fmt.Errorf("bounding box minimum exceeds its maximum")
	}

	return Box{MinX: values[0], MinY: values[1], MaxX: values[2], MaxY: values[3]}, nil
}

type Geometry interface {
	GeometryType() Type
	Bounds() Box
	Summary() string
	MarshalJSON() ([]byte, error)
}

type Point struct {
	Coordinates [2]float64
}

func NewPoint(longitude, latitude float64) *Point {
	return &Point{Coordinates: [2]float64{longitude, latitude}}
}

func (p *Point) GeometryType() Type { return TypePoint }

func (p *Point) Bounds() Box {
	return Box{
		MinX: p.Coordinates[0], MinY: p.Coordinates[1],
		MaxX: p.Coordinates[0], MaxY: p.Coordinates[1],
	}
}

func (p *Point) Summary() string {
	return fmt.Sprintf("Point (%s %s)",
		formatCoord(p.Coordinates[0]),
		formatCoord(p.Coordinates[1]),
	)
}

func (p *Point) MarshalJSON() ([]byte, error) {
	return marshalGeometry(TypePoint, p.Coordinates)
}

func (p Point) Longitude() float64 { return p.Coordinates[0] }
func (p Point) Latitude() float64  { return p.Coordinates[1] }

type LineString struct {
	Coordinates [][]float64
}

func NewLineString(coordinates [][]float64) *LineString {
	return &LineString{Coordinates: coordinates}
}

func (ls *LineString) GeometryType() Type { return TypeLineString }

func (ls *LineString) Bounds() Box {
	b := emptyBox()
	for _, c := range ls.Coordinates {
		b = extend(b, c)
	}
	return b
}

func (ls *LineString) Summary() string {
	return fmt.Sprintf("LineString (%d points, extent %s)",
		len(ls.Coordinates), formatBox(ls.Bounds()))
}

func (ls *LineString) MarshalJSON() ([]byte, error) {
	return marshalGeometry(TypeLineString, ls.Coordinates)
}

type Polygon struct {
	Coordinates [][][]float64
}

func NewPolygon(rings [][][]float64) *Polygon {
	return &Polygon{Coordinates: rings}
}

func (pg *Polygon) GeometryType() Type { return TypePolygon }

func (pg *Polygon) Bounds() Box {
	b := emptyBox()
	for _, ring := range pg.Coordinates {
		for _, c := range ring {
			b = extend(b, c)
		}
	}
	return b
}

func (pg *Polygon) Summary() string {
	points := 0
	for _, ring := range pg.Coordinates {
		points += len(ring)
	}

	return fmt.Sprintf("Polygon (%d rings, %d points, extent %s)",
		len(pg.Coordinates), points, formatBox(pg.Bounds()))
}

func (pg *Polygon) MarshalJSON() ([]byte, error) {
	return marshalGeometry(TypePolygon, pg.Coordinates)
}

func marshalGeometry(t Type, coordinates any) ([]byte, error) {
	return json.Marshal(struct {
		Type        Type `json:"type"`
		Coordinates any  `json:"coordinates"`
	}{Type: t, Coordinates: coordinates})
}

func emptyBox() Box {
	return Box{
		MinX: math.MaxFloat64, MinY: math.MaxFloat64,
		MaxX: -math.MaxFloat64, MaxY: -math.MaxFloat64,
	}
}

func extend(b Box, coordinate []float64) Box {
	if len(coordinate) < 2 {
		return b
	}

	b.MinX = math.Min(b.MinX, coordinate[0])
	b.MinY = math.Min(b.MinY, coordinate[1])
	b.MaxX = math.Max(b.MaxX, coordinate[0])
	b.MaxY = math.Max(b.MaxY, coordinate[1])

	return b
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBox(b Box) string {
	return fmt.Sprintf("%s %s, %s %s",
		formatCoord(b.MinX), formatCoord(b.MinY),
		formatCoord(b.MaxX), formatCoord(b.MaxY),
	)
}

// Unmarshal decodes a GeoJSON geometry object.
func Unmarshal(body []byte) (Geometry, error) {
	contents := map[string]any{}

	err := json.Unmarshal(body, &contents)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal geometry: %w", err)
	}

	return UnmarshalMap(contents)
}

// UnmarshalMap decodes a GeoJSON geometry from an already decoded
// json object.
func UnmarshalMap(contents map[string]any) (Geometry, error) {
	geoType, ok := contents["type"]
	if !ok {
		return nil, fmt.Errorf("geometries without a type are not supported")
	}

	geoTypeStr, ok := geoType.(string)
	if !ok {
		return nil, fmt.Errorf("geometry type value is of an unconvertible type")
	}

	untypedCoordinates, ok := contents["coordinates"]
	if !ok {
		return nil, fmt.Errorf("unable to unmarshal a geometry with no coordinates")
	}

	switch Type(geoTypeStr) {
	case TypePoint:
		coordinates, ok := untypedCoordinates.([]any)
		if !ok || len(coordinates) < 2 {
			return nil, fmt.Errorf("point coordinates array has insufficient length")
		}

		lon, okLon := coordinates[0].(float64)
		lat, okLat := coordinates[1].(float64)

		if !okLon || !okLat {
			return nil, fmt.Errorf("point coordinates not convertible to float64")
		}

		return NewPoint(lon, lat), nil
	case TypeLineString:
		coords, err := unmarshalPositions(untypedCoordinates)
		if err != nil {
			return nil, err
		}

		return NewLineString(coords), nil
	case TypePolygon:
		return unmarshalPolygon(untypedCoordinates)
	default:
		return nil, fmt.Errorf("unknown geometry type %s not supported", geoTypeStr)
	}
}

func unmarshalPositions(value any) ([][]float64, error) {
	positions, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("malformed coordinates")
	}

	coords := make([][]float64, 0, len(positions))

	for _, p := range positions {
		position, ok := p.([]any)
		if !ok {
			return nil, fmt.Errorf("malformed coordinates")
		}

		c := make([]float64, 0, len(position))

		for _, v := range position {
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("failed to convert coordinate to float64")
			}

			c = append(c, f)
		}

		coords = append(coords, c)
	}

	return coords, nil
}

func unmarshalPolygon(value any) (Geometry, error) {
	untypedRings, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("malformed polygon coordinates")
	}

	rings := make([][][]float64, 0, len(untypedRings))

	for _, r := range untypedRings {
		ring, err := unmarshalPositions(r)
		if err != nil {
			return nil, err
		}

		rings = append(rings, ring)
	}

	return NewPolygon(rings), nil
}
