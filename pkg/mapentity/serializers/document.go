package serializers

import (
	"context"
	"fmt"
	"io"

	"github.com/bouttier/mapentity/pkg/mapentity/errors"
)

// Renderer is the external document rendering backend. It receives a
// template identifier and a merge context and returns the finished
// document bytes. Layout is entirely its concern.
type Renderer interface {
	RenderDocument(ctx context.Context, template string, mergeContext map[string]any) ([]byte, error)
}

// DocumentSerializer assembles the merge context for a printable
// document and delegates layout to the rendering backend. Backend
// failures surface as rendering errors and are not retried; documents
// may be large and retrying is left to the caller.
type DocumentSerializer struct {
	renderer Renderer
}

func (s *DocumentSerializer) ContentType() string {
	return "application/pdf"
}

func (s *DocumentSerializer) Render(ctx context.Context, sc Context, w io.Writer) error {
	if len(sc.Entities) != 1 {
		return errors.NewInvalidRequestError(
			fmt.Sprintf("documents render a single instance, got %d", len(sc.Entities)))
	}

	e := sc.Entities[0]

	template := sc.Descriptor.DocumentTemplate
	if template == "" {
		template = sc.Descriptor.Kind
	}

	attributes := make([]map[string]any, 0, len(sc.Descriptor.Schema))
	for _, attr := range sc.Descriptor.Schema {
		attributes = append(attributes, map[string]any{
			"name":  attr.Name,
			"value": formatAttribute(attr, e),
		})
	}

	mergeContext := map[string]any{
		"kind":       e.Kind(),
		"id":         e.ID(),
		"attributes": attributes,
		"locale":     sc.Locale,
	}

	if g := e.Geometry(); g != nil {
		mergeContext["geometry"] = g.Summary()

		if attr, ok := sc.Descriptor.GeometryAttribute(); ok {
			mergeContext["geometryAttribute"] = attr.Name
		}
	}

	document, err := s.renderer.RenderDocument(ctx, template, mergeContext)
	if err != nil {
		return errors.NewRenderingError(
			fmt.Sprintf("rendering backend failed for %s %s: %s", e.Kind(), e.ID(), err.Error()))
	}

	_, err = w.Write(document)

	return err
}
