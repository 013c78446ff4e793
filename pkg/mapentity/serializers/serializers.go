package serializers

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/bouttier/mapentity/pkg/mapentity/errors"
	"github.com/bouttier/mapentity/pkg/mapentity/policy"
	"github.com/bouttier/mapentity/pkg/mapentity/registry"
)

const (
	FormatMapLayer = "maplayer"
	FormatTabular  = "tabular"
	FormatArchive  = "archive"
	FormatDocument = "document"
)

// Context parameterizes one rendering pass. It is request scoped and
// never shared between concurrent invocations.
type Context struct {
	Descriptor *registry.Descriptor
	Entities   []entities.Entity
	Principal  policy.Principal

	// GroupBy names the archive grouping key. The reserved key
	// "geomtype" groups members by geometry type.
	GroupBy string

	Locale string
}

type Serializer interface {
	ContentType() string
	Render(ctx context.Context, sc Context, w io.Writer) error
}

type Pipeline struct {
	formats map[string]Serializer
}

type PipelineOptionFunc func(*Pipeline)

// WithDocumentRenderer enables the printable document format, backed
// by the supplied rendering backend.
func WithDocumentRenderer(r Renderer) PipelineOptionFunc {
	return func(p *Pipeline) {
		p.formats[FormatDocument] = &DocumentSerializer{renderer: r}
	}
}

// WithFormat registers an additional output format.
func WithFormat(name string, s Serializer) PipelineOptionFunc {
	return func(p *Pipeline) {
		p.formats[name] = s
	}
}

func NewPipeline(options ...PipelineOptionFunc) *Pipeline {
	p := &Pipeline{
		formats: map[string]Serializer{
			FormatMapLayer: &MapLayerSerializer{},
			FormatTabular:  &TabularSerializer{},
			FormatArchive:  &ArchiveSerializer{},
		},
	}

	for _, option := range options {
		option(p)
	}

	return p
}

func (p *Pipeline) ContentType(format string) (string, error) {
	s, ok := p.formats[format]
	if !ok {
		return "", errors.NewUnsupportedFormatError(format)
	}

	return s.ContentType(), nil
}

func (p *Pipeline) Render(ctx context.Context, format string, sc Context, w io.Writer) error {
	s, ok := p.formats[format]
	if !ok {
		return errors.NewUnsupportedFormatError(format)
	}

	return s.Render(ctx, sc, w)
}

// formatAttribute renders an attribute value as text. Geometries are
// summarized, never emitted as raw coordinates.
func formatAttribute(attr registry.Attribute, e entities.Entity) string {
	if attr.Type == registry.AttributeGeometry {
		g := e.Geometry()
		if g == nil {
			return ""
		}

		return g.Summary()
	}

	value, ok := e.Attribute(attr.Name)
	if !ok {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
