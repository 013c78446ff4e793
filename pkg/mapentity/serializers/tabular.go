package serializers

import (
	"context"
	"encoding/csv"
	"io"
)

// TabularSerializer flattens the full attribute bag, one row per
// instance, with a stable column order taken from the schema
// declaration order.
type TabularSerializer struct{}

func (s *TabularSerializer) ContentType() string {
	return "text/csv"
}

func (s *TabularSerializer) Render(ctx context.Context, sc Context, w io.Writer) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(sc.Descriptor.Schema))
	for _, attr := range sc.Descriptor.Schema {
		header = append(header, attr.Name)
	}

	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))

	for _, e := range sc.Entities {
		for idx, attr := range sc.Descriptor.Schema {
			row[idx] = formatAttribute(attr, e)
		}

		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}
