package mapentity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bouttier/mapentity/internal/pkg/application/entitymanager"
	"github.com/bouttier/mapentity/internal/pkg/infrastructure/storage/memory"
	"github.com/bouttier/mapentity/pkg/mapentity/geom"
	"github.com/bouttier/mapentity/pkg/mapentity/registry"
	"github.com/bouttier/mapentity/pkg/mapentity/serializers"
	"github.com/go-chi/chi/v5"
	"github.com/matryer/is"
)

const authnModule string = `
package mapentity.authn

default principal = false

principal = {"id": "anna", "scope": "north", "roles": []} {
	input.token == "annas-token"
}

principal = {"id": "bert", "scope": "south", "roles": []} {
	input.token == "berts-token"
}
`

const trailJSON string = `{
	"attributes": {"name": "west loop", "length": 6.5},
	"geometry": {"type": "LineString", "coordinates": [[17.2, 62.1], [17.4, 62.3]]}
}`

type rendererFunc func(ctx context.Context, template string, mergeContext map[string]any) ([]byte, error)

func (f rendererFunc) RenderDocument(ctx context.Context, template string, mergeContext map[string]any) ([]byte, error) {
	return f(ctx, template, mergeContext)
}

func setupTest(t *testing.T) (*is.I, *httptest.Server) {
	is := is.New(t)
	ctx := context.Background()

	reg := registry.New()
	err := reg.Register(registry.Descriptor{
		Kind: "trail",
		Schema: []registry.Attribute{
			{Name: "name", Type: registry.AttributeText},
			{Name: "length", Type: registry.AttributeNumber},
			{Name: "path", Type: registry.AttributeGeometry, SpatialType: geom.TypeLineString},
		},
		DisplayFields: []string{"name", "length"},
	})
	is.NoErr(err)

	renderer := rendererFunc(func(ctx context.Context, template string, mergeContext map[string]any) ([]byte, error) {
		return []byte("%PDF-1.4"), nil
	})

	app := entitymanager.New(reg, memory.New(),
		serializers.NewPipeline(serializers.WithDocumentRenderer(renderer)), nil)

	r := chi.NewRouter()
	err = RegisterHandlers(ctx, r, bytes.NewBufferString(authnModule), app)
	is.NoErr(err)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return is, ts
}

func newAuthorizedRequest(is *is.I, ts *httptest.Server, token, method, path string, body io.Reader) (*http.Response, string) {
	req, err := http.NewRequest(method, ts.URL+path, body)
	is.NoErr(err)

	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}
	req.Header.Add("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err) // http request failed
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	is.NoErr(err) // failed to read response body

	return resp, string(respBody)
}

func createdLocation(is *is.I, ts *httptest.Server, token string) string {
	resp, _ := newAuthorizedRequest(is, ts, token, "POST", "/api/trail", bytes.NewBufferString(trailJSON))
	is.Equal(resp.StatusCode, http.StatusCreated)

	location := resp.Header.Get("Location")
	is.True(location != "")

	return location
}

func TestCreateEntityReturnsCreatedWithLocation(t *testing.T) {
	is, ts := setupTest(t)

	location := createdLocation(is, ts, "annas-token")
	is.True(strings.HasPrefix(location, "/api/trail/"))
}

func TestRequestsWithoutATokenAreUnauthorized(t *testing.T) {
	is, ts := setupTest(t)

	resp, _ := newAuthorizedRequest(is, ts, "", "GET", "/api/trail", nil)
	is.Equal(resp.StatusCode, http.StatusUnauthorized)
}

func TestCreateWithWrongContentTypeReturnsUnsupportedMediaType(t *testing.T) {
	is, ts := setupTest(t)

	req, _ := http.NewRequest("POST", ts.URL+"/api/trail", bytes.NewBufferString(trailJSON))
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Add("Authorization", "Bearer annas-token")

	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	defer resp.Body.Close()

	is.Equal(resp.StatusCode, http.StatusUnsupportedMediaType)
}

func TestCreateWithUnknownAttributeReturnsBadRequest(t *testing.T) {
	is, ts := setupTest(t)

	resp, body := newAuthorizedRequest(is, ts, "annas-token", "POST", "/api/trail",
		bytes.NewBufferString(`{"attributes": {"surface": "gravel"}}`))

	is.Equal(resp.StatusCode, http.StatusBadRequest)
	is.True(strings.Contains(body, "urn:mapentity:errors:BadRequestData"))
}

func TestRetrieveEntity(t *testing.T) {
	is, ts := setupTest(t)

	location := createdLocation(is, ts, "annas-token")

	resp, body := newAuthorizedRequest(is, ts, "berts-token", "GET", location, nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	parsed := struct {
		Kind       string         `json:"kind"`
		Owner      string         `json:"owner"`
		Attributes map[string]any `json:"attributes"`
	}{}
	is.NoErr(json.Unmarshal([]byte(body), &parsed))

	is.Equal(parsed.Kind, "trail")
	is.Equal(parsed.Owner, "anna")
	is.Equal(parsed.Attributes["name"], "west loop")
}

func TestRetrieveUnknownEntityReturnsNotFound(t *testing.T) {
	is, ts := setupTest(t)

	resp, _ := newAuthorizedRequest(is, ts, "annas-token", "GET", "/api/trail/nope", nil)
	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestUnknownKindReturnsNotFound(t *testing.T) {
	is, ts := setupTest(t)

	resp, _ := newAuthorizedRequest(is, ts, "annas-token", "GET", "/api/mountain", nil)
	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestNonOwnerUpdateIsForbidden(t *testing.T) {
	is, ts := setupTest(t)

	location := createdLocation(is, ts, "annas-token")

	resp, body := newAuthorizedRequest(is, ts, "berts-token", "PATCH", location,
		bytes.NewBufferString(`{"attributes": {"name": "renamed"}}`))

	is.Equal(resp.StatusCode, http.StatusForbidden)
	is.True(strings.Contains(body, "urn:mapentity:errors:PermissionDenied"))
}

func TestOwnerUpdateReturnsTheUpdatedEntity(t *testing.T) {
	is, ts := setupTest(t)

	location := createdLocation(is, ts, "annas-token")

	resp, body := newAuthorizedRequest(is, ts, "annas-token", "PATCH", location,
		bytes.NewBufferString(`{"attributes": {"name": "renamed"}}`))

	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(strings.Contains(body, "renamed"))
}

func TestDeleteReturnsNoContent(t *testing.T) {
	is, ts := setupTest(t)

	location := createdLocation(is, ts, "annas-token")

	resp, _ := newAuthorizedRequest(is, ts, "annas-token", "DELETE", location, nil)
	is.Equal(resp.StatusCode, http.StatusNoContent)

	resp, _ = newAuthorizedRequest(is, ts, "annas-token", "GET", location, nil)
	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestHistoryListsRevisions(t *testing.T) {
	is, ts := setupTest(t)

	location := createdLocation(is, ts, "annas-token")

	newAuthorizedRequest(is, ts, "annas-token", "PATCH", location,
		bytes.NewBufferString(`{"attributes": {"name": "renamed"}}`))

	resp, body := newAuthorizedRequest(is, ts, "annas-token", "GET", location+"/history", nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	var revisions []map[string]any
	is.NoErr(json.Unmarshal([]byte(body), &revisions))

	is.Equal(len(revisions), 2)
	is.Equal(revisions[0]["action"], "add")
	is.Equal(revisions[1]["action"], "change")
}

func TestQueryEntitiesAppliesFilters(t *testing.T) {
	is, ts := setupTest(t)

	createdLocation(is, ts, "annas-token")

	resp, body := newAuthorizedRequest(is, ts, "annas-token", "GET", "/api/trail?length__gt=10", nil)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(strings.TrimSpace(body), "[]")

	resp, _ = newAuthorizedRequest(is, ts, "annas-token", "GET", "/api/trail?length__gt=fast", nil)
	is.Equal(resp.StatusCode, http.StatusBadRequest)
}

func TestLayerRendersGeoJSON(t *testing.T) {
	is, ts := setupTest(t)

	createdLocation(is, ts, "annas-token")

	resp, body := newAuthorizedRequest(is, ts, "annas-token", "GET", "/api/trail/layer", nil)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(resp.Header.Get("Content-Type"), "application/geo+json")
	is.True(strings.Contains(body, "FeatureCollection"))
}

func TestExportDefaultsToTabular(t *testing.T) {
	is, ts := setupTest(t)

	createdLocation(is, ts, "annas-token")

	resp, body := newAuthorizedRequest(is, ts, "annas-token", "GET", "/api/trail/export", nil)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(resp.Header.Get("Content-Type"), "text/csv")
	is.True(strings.HasPrefix(body, "name,length,path"))
}

func TestExportWithUnknownFormatReturnsBadRequest(t *testing.T) {
	is, ts := setupTest(t)

	resp, _ := newAuthorizedRequest(is, ts, "annas-token", "GET", "/api/trail/export?format=spreadsheet", nil)
	is.Equal(resp.StatusCode, http.StatusBadRequest)
}

func TestDocumentRendersThroughTheBackend(t *testing.T) {
	is, ts := setupTest(t)

	location := createdLocation(is, ts, "annas-token")

	resp, body := newAuthorizedRequest(is, ts, "annas-token", "GET", location+"/document", nil)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(resp.Header.Get("Content-Type"), "application/pdf")
	is.Equal(body, "%PDF-1.4")
}
