package entitymanager

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/url"
	"testing"

	"github.com/bouttier/mapentity/internal/pkg/infrastructure/storage/memory"
	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/bouttier/mapentity/pkg/mapentity/errors"
	"github.com/bouttier/mapentity/pkg/mapentity/geom"
	"github.com/bouttier/mapentity/pkg/mapentity/policy"
	"github.com/bouttier/mapentity/pkg/mapentity/registry"
	"github.com/bouttier/mapentity/pkg/mapentity/serializers"
	"github.com/bouttier/mapentity/pkg/mapentity/storage"
	"github.com/matryer/is"
)

var anna = policy.Principal{ID: "anna", Scope: "north", Authenticated: true}
var bert = policy.Principal{ID: "bert", Scope: "south", Authenticated: true}
var anonymous = policy.Principal{}

type rendererFunc func(ctx context.Context, template string, mergeContext map[string]any) ([]byte, error)

func (f rendererFunc) RenderDocument(ctx context.Context, template string, mergeContext map[string]any) ([]byte, error) {
	return f(ctx, template, mergeContext)
}

func setupManager(t *testing.T) (*is.I, EntityManager, *memory.Store) {
	is := is.New(t)

	reg := registry.New()
	err := reg.Register(registry.Descriptor{
		Kind: "trail",
		Schema: []registry.Attribute{
			{Name: "name", Type: registry.AttributeText},
			{Name: "difficulty", Type: registry.AttributeEnum, Values: []string{"easy", "medium", "hard"}},
			{Name: "length", Type: registry.AttributeNumber},
			{Name: "path", Type: registry.AttributeGeometry, SpatialType: geom.TypeLineString},
		},
		DisplayFields: []string{"name", "length"},
	})
	is.NoErr(err)

	store := memory.New()

	renderer := rendererFunc(func(ctx context.Context, template string, mergeContext map[string]any) ([]byte, error) {
		return []byte("%PDF-1.4"), nil
	})

	app := New(reg, store, serializers.NewPipeline(serializers.WithDocumentRenderer(renderer)), nil)

	return is, app, store
}

func createTrail(is *is.I, app EntityManager, p policy.Principal, body string) entities.Entity {
	e, err := app.CreateEntity(context.Background(), p, "trail", bytes.NewBufferString(body))
	is.NoErr(err)
	return e
}

const trailJSON string = `{
	"attributes": {"name": "west loop", "difficulty": "easy", "length": 6.5},
	"geometry": {"type": "LineString", "coordinates": [[17.2, 62.1], [17.4, 62.3]]}
}`

func TestCreateAssignsIdentityAndOwnership(t *testing.T) {
	is, app, _ := setupManager(t)

	e := createTrail(is, app, anna, trailJSON)

	is.True(e.ID() != "") // ids are generated when the payload carries none
	is.Equal(e.Owner(), "anna")
	is.Equal(e.Scope(), "north")
	is.True(!e.CreatedAt().IsZero())
}

func TestCreateRecordsAnAddRevision(t *testing.T) {
	is, app, _ := setupManager(t)

	e := createTrail(is, app, anna, trailJSON)

	log, err := app.RetrieveHistory(context.Background(), anna, "trail", e.ID())
	is.NoErr(err)

	is.Equal(len(log), 1)
	is.Equal(log[0].Action, storage.ActionAdd)
	is.Equal(log[0].Author, "anna")
}

func TestCreateRejectsUnknownAttributes(t *testing.T) {
	is, app, _ := setupManager(t)

	_, err := app.CreateEntity(context.Background(), anna, "trail",
		bytes.NewBufferString(`{"attributes": {"surface": "gravel"}}`))
	is.True(stderrors.Is(err, errors.ErrUnknownAttribute))
}

func TestCreateRejectsValuesOfTheWrongType(t *testing.T) {
	is, app, _ := setupManager(t)

	_, err := app.CreateEntity(context.Background(), anna, "trail",
		bytes.NewBufferString(`{"attributes": {"length": "six point five"}}`))
	is.True(stderrors.Is(err, errors.ErrTypeMismatch))

	_, err = app.CreateEntity(context.Background(), anna, "trail",
		bytes.NewBufferString(`{"attributes": {"difficulty": "impossible"}}`))
	is.True(stderrors.Is(err, errors.ErrTypeMismatch))
}

func TestCreateRejectsMismatchedGeometryType(t *testing.T) {
	is, app, _ := setupManager(t)

	_, err := app.CreateEntity(context.Background(), anna, "trail",
		bytes.NewBufferString(`{"geometry": {"type": "Point", "coordinates": [17.2, 62.1]}}`))
	is.True(stderrors.Is(err, errors.ErrTypeMismatch))
}

func TestCreateRejectsDuplicateIdentity(t *testing.T) {
	is, app, _ := setupManager(t)

	body := `{"id": "t1", "attributes": {"name": "west loop"}}`
	createTrail(is, app, anna, body)

	_, err := app.CreateEntity(context.Background(), anna, "trail", bytes.NewBufferString(body))
	is.True(stderrors.Is(err, errors.ErrAlreadyExists))
}

func TestCreateRejectsUnauthenticatedPrincipals(t *testing.T) {
	is, app, _ := setupManager(t)

	_, err := app.CreateEntity(context.Background(), anonymous, "trail", bytes.NewBufferString(trailJSON))
	is.True(stderrors.Is(err, errors.ErrPermissionDenied))
}

func TestUnknownKindIsRejected(t *testing.T) {
	is, app, _ := setupManager(t)

	_, err := app.QueryEntities(context.Background(), anna, "mountain", url.Values{})
	is.True(stderrors.Is(err, errors.ErrUnknownKind))
}

func TestOwnerMayUpdateAndTheFragmentIsMerged(t *testing.T) {
	is, app, _ := setupManager(t)

	e := createTrail(is, app, anna, trailJSON)

	updated, err := app.UpdateEntity(context.Background(), anna, "trail", e.ID(),
		bytes.NewBufferString(`{"attributes": {"difficulty": "hard"}}`))
	is.NoErr(err)

	difficulty, _ := updated.Attribute("difficulty")
	is.Equal(difficulty, "hard")

	// untouched attributes survive the merge
	name, _ := updated.Attribute("name")
	is.Equal(name, "west loop")
	is.True(updated.Geometry() != nil)
}

func TestNonOwnerMayReadButNotUpdate(t *testing.T) {
	is, app, _ := setupManager(t)

	e := createTrail(is, app, anna, trailJSON)

	_, err := app.RetrieveEntity(context.Background(), bert, "trail", e.ID())
	is.NoErr(err)

	_, err = app.UpdateEntity(context.Background(), bert, "trail", e.ID(),
		bytes.NewBufferString(`{"attributes": {"difficulty": "hard"}}`))
	is.True(stderrors.Is(err, errors.ErrPermissionDenied))
}

func TestUpdateRecordsThePriorState(t *testing.T) {
	is, app, _ := setupManager(t)

	e := createTrail(is, app, anna, trailJSON)

	_, err := app.UpdateEntity(context.Background(), anna, "trail", e.ID(),
		bytes.NewBufferString(`{"attributes": {"difficulty": "hard"}}`))
	is.NoErr(err)

	log, err := app.RetrieveHistory(context.Background(), anna, "trail", e.ID())
	is.NoErr(err)

	is.Equal(len(log), 2)
	is.Equal(log[1].Action, storage.ActionChange)

	prior, err := entities.NewFromJSON("trail", log[1].Snapshot)
	is.NoErr(err)

	difficulty, _ := prior.Attribute("difficulty")
	is.Equal(difficulty, "easy")
}

func TestDeleteRemovesTheInstanceAndRecordsTheRevision(t *testing.T) {
	is, app, store := setupManager(t)

	e := createTrail(is, app, anna, trailJSON)

	err := app.DeleteEntity(context.Background(), bert, "trail", e.ID())
	is.True(stderrors.Is(err, errors.ErrPermissionDenied))

	is.NoErr(app.DeleteEntity(context.Background(), anna, "trail", e.ID()))

	_, err = store.Fetch(context.Background(), "trail", e.ID())
	is.True(stderrors.Is(err, errors.ErrNotFound))

	log, err := store.Revisions(context.Background(), "trail", e.ID())
	is.NoErr(err)
	is.Equal(len(log), 2)
	is.Equal(log[1].Action, storage.ActionDelete)
}

func TestQueryAppliesRequestFilters(t *testing.T) {
	is, app, _ := setupManager(t)

	createTrail(is, app, anna, `{"attributes": {"name": "west loop", "length": 6.5}}`)
	createTrail(is, app, anna, `{"attributes": {"name": "ridge run", "length": 14.0}}`)

	list, err := app.QueryEntities(context.Background(), bert, "trail", url.Values{"length__lt": []string{"10"}})
	is.NoErr(err)

	is.Equal(len(list), 1)
	name, _ := list[0].Attribute("name")
	is.Equal(name, "west loop")
}

func TestExportRendersTheFilteredSet(t *testing.T) {
	is, app, _ := setupManager(t)

	createTrail(is, app, anna, trailJSON)

	var buf bytes.Buffer
	contentType, err := app.Export(context.Background(), anna, "trail", serializers.FormatTabular, url.Values{}, &buf)
	is.NoErr(err)

	is.Equal(contentType, "text/csv")
	is.True(buf.Len() > 0)
}

func TestExportRejectsUnknownFormats(t *testing.T) {
	is, app, _ := setupManager(t)

	var buf bytes.Buffer
	_, err := app.Export(context.Background(), anna, "trail", "spreadsheet", url.Values{}, &buf)
	is.True(stderrors.Is(err, errors.ErrUnsupportedFormat))
}

func TestRenderLayerOmitsInstancesWithoutGeometry(t *testing.T) {
	is, app, _ := setupManager(t)

	createTrail(is, app, anna, trailJSON)
	createTrail(is, app, anna, `{"attributes": {"name": "unmapped"}}`)

	var buf bytes.Buffer
	contentType, err := app.RenderLayer(context.Background(), anna, "trail", url.Values{}, &buf)
	is.NoErr(err)

	is.Equal(contentType, "application/geo+json")

	fc := struct {
		Type     string           `json:"type"`
		Features []map[string]any `json:"features"`
	}{}
	is.NoErr(json.Unmarshal(buf.Bytes(), &fc))

	is.Equal(fc.Type, "FeatureCollection")
	is.Equal(len(fc.Features), 1)
}

func TestRenderDocumentForASingleInstance(t *testing.T) {
	is, app, _ := setupManager(t)

	e := createTrail(is, app, anna, trailJSON)

	var buf bytes.Buffer
	contentType, err := app.RenderDocument(context.Background(), anna, "trail", e.ID(), "sv", &buf)
	is.NoErr(err)

	is.Equal(contentType, "application/pdf")
	is.Equal(buf.String(), "%PDF-1.4")
}
