package decorators

import (
	"time"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/bouttier/mapentity/pkg/mapentity/geom"
)

func Text(name, value string) entities.EntityDecoratorFunc {
	return entities.A(name, value)
}

func Number(name string, value float64) entities.EntityDecoratorFunc {
	return entities.A(name, value)
}

func Date(name string, value time.Time) entities.EntityDecoratorFunc {
	return entities.A(name, value.UTC().Format(time.RFC3339))
}

func Location(longitude, latitude float64) entities.EntityDecoratorFunc {
	return entities.G(geom.NewPoint(longitude, latitude))
}

func Path(coordinates [][]float64) entities.EntityDecoratorFunc {
	return entities.G(geom.NewLineString(coordinates))
}

func Area(rings [][][]float64) entities.EntityDecoratorFunc {
	return entities.G(geom.NewPolygon(rings))
}
