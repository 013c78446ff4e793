package client

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/bouttier/mapentity/pkg/mapentity/errors"
	"github.com/matryer/is"
)

func TestCreateEntityReturnsTheLocation(t *testing.T) {
	is := is.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.Method, http.MethodPost)
		is.Equal(r.URL.Path, "/api/trail")
		is.Equal(r.Header.Get("Authorization"), "Bearer annas-token")

		w.Header().Add("Location", "/api/trail/t1")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := New(server.URL, BearerToken("annas-token"))

	location, err := c.CreateEntity(context.Background(), "trail",
		bytes.NewBufferString(`{"attributes": {"name": "west loop"}}`))
	is.NoErr(err)
	is.Equal(location, "/api/trail/t1")
}

func TestRetrieveEntityParsesTheResponse(t *testing.T) {
	is := is.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.URL.Path, "/api/trail/t1")

		w.Header().Add("Content-Type", "application/json")
		w.Write([]byte(`{"id": "t1", "kind": "trail", "attributes": {"name": "west loop"}, "owner": "anna"}`))
	}))
	defer server.Close()

	c := New(server.URL)

	e, err := c.RetrieveEntity(context.Background(), "trail", "t1")
	is.NoErr(err)

	is.Equal(e.ID(), "t1")
	is.Equal(e.Owner(), "anna")
}

func TestProblemReportsComeBackAsMatchingErrors(t *testing.T) {
	is := is.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-Type", errors.ProblemReportContentType)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"type": "urn:mapentity:errors:ResourceNotFound", "title": "Not Found", "detail": "no trail with id t1"}`))
	}))
	defer server.Close()

	c := New(server.URL)

	_, err := c.RetrieveEntity(context.Background(), "trail", "t1")
	is.True(stderrors.Is(err, errors.ErrNotFound))
}

func TestForbiddenUpdatesSurfaceAsPermissionErrors(t *testing.T) {
	is := is.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-Type", errors.ProblemReportContentType)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"type": "urn:mapentity:errors:PermissionDenied", "title": "Permission Denied", "detail": "principal may not change trail t1"}`))
	}))
	defer server.Close()

	c := New(server.URL)

	_, err := c.UpdateEntity(context.Background(), "trail", "t1",
		bytes.NewBufferString(`{"attributes": {"name": "renamed"}}`))
	is.True(stderrors.Is(err, errors.ErrPermissionDenied))
}

func TestExportSetsTheFormatParameter(t *testing.T) {
	is := is.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.URL.Path, "/api/trail/export")
		is.Equal(r.URL.Query().Get("format"), "archive")
		is.Equal(r.URL.Query().Get("difficulty"), "easy")

		w.Header().Add("Content-Type", "application/zip")
		w.Write([]byte("PK"))
	}))
	defer server.Close()

	c := New(server.URL)

	contentType, body, err := c.Export(context.Background(), "trail", "archive",
		url.Values{"difficulty": []string{"easy"}})
	is.NoErr(err)

	is.Equal(contentType, "application/zip")
	is.Equal(string(body), "PK")
}

func TestDeleteEntity(t *testing.T) {
	is := is.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.Method, http.MethodDelete)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := New(server.URL)

	is.NoErr(c.DeleteEntity(context.Background(), "trail", "t1"))
}
