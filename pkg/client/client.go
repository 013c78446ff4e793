package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/bouttier/mapentity/pkg/mapentity/errors"
	"github.com/bouttier/mapentity/pkg/mapentity/storage"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MapEntityClient talks to a remote entity server over its HTTP api.
type MapEntityClient interface {
	CreateEntity(ctx context.Context, kind string, body io.Reader) (string, error)
	QueryEntities(ctx context.Context, kind string, query url.Values) ([]entities.Entity, error)
	RetrieveEntity(ctx context.Context, kind, entityID string) (entities.Entity, error)
	UpdateEntity(ctx context.Context, kind, entityID string, body io.Reader) (entities.Entity, error)
	DeleteEntity(ctx context.Context, kind, entityID string) error
	RetrieveHistory(ctx context.Context, kind, entityID string) ([]storage.Revision, error)
	Export(ctx context.Context, kind, format string, query url.Values) (string, []byte, error)
}

func Debug(enabled string) func(*meClient) {
	return func(c *meClient) {
		c.debug = (enabled == "true")
	}
}

func BearerToken(token string) func(*meClient) {
	return func(c *meClient) {
		c.token = token
	}
}

func New(server string, options ...func(*meClient)) MapEntityClient {
	c := &meClient{
		baseURL: server,
		debug:   false,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

const (
	TraceAttributeEntityID string = "entity-id"
	TraceAttributeKind     string = "entity-kind"
)

var tracer = otel.Tracer("mapentity-client")

type meClient struct {
	baseURL string
	token   string
	debug   bool
}

func (c meClient) CreateEntity(ctx context.Context, kind string, body io.Reader) (string, error) {
	var err error

	ctx, span := tracer.Start(ctx, "create-entity",
		trace.WithAttributes(attribute.String(TraceAttributeKind, kind)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, respBody, err := c.callServer(
		ctx, http.MethodPost, c.baseURL+"/api/"+url.PathEscape(kind), body,
	)
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", errors.NewErrorFromProblemReport(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}

	if resp.StatusCode != http.StatusCreated {
		return "", unexpectedResponse(resp, respBody)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		log := logging.GetFromContext(ctx)
		log.Warn("server failed to provide a location header with created response")
	}

	return location, nil
}

func (c meClient) QueryEntities(ctx context.Context, kind string, query url.Values) ([]entities.Entity, error) {
	var err error

	ctx, span := tracer.Start(ctx, "query-entities",
		trace.WithAttributes(attribute.String(TraceAttributeKind, kind)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	endpoint := c.baseURL + "/api/" + url.PathEscape(kind)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	resp, respBody, err := c.callServer(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewErrorFromProblemReport(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}

	var impls []entities.EntityImpl
	err = json.Unmarshal(respBody, &impls)
	if err != nil {
		return nil, err
	}

	result := make([]entities.Entity, len(impls))
	for idx := range impls {
		result[idx] = impls[idx]
	}

	return result, nil
}

func (c meClient) RetrieveEntity(ctx context.Context, kind, entityID string) (entities.Entity, error) {
	var err error

	ctx, span := tracer.Start(ctx, "retrieve-entity",
		trace.WithAttributes(attribute.String(TraceAttributeKind, kind)),
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, respBody, err := c.callServer(
		ctx, http.MethodGet, c.entityURL(kind, entityID), nil,
	)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewErrorFromProblemReport(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}

	return entities.NewFromJSON(kind, respBody)
}

func (c meClient) UpdateEntity(ctx context.Context, kind, entityID string, body io.Reader) (entities.Entity, error) {
	var err error

	ctx, span := tracer.Start(ctx, "update-entity",
		trace.WithAttributes(attribute.String(TraceAttributeKind, kind)),
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, respBody, err := c.callServer(
		ctx, http.MethodPatch, c.entityURL(kind, entityID), body,
	)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewErrorFromProblemReport(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}

	return entities.NewFromJSON(kind, respBody)
}

func (c meClient) DeleteEntity(ctx context.Context, kind, entityID string) error {
	var err error

	ctx, span := tracer.Start(ctx, "delete-entity",
		trace.WithAttributes(attribute.String(TraceAttributeKind, kind)),
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, respBody, err := c.callServer(
		ctx, http.MethodDelete, c.entityURL(kind, entityID), nil,
	)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusNoContent {
		return errors.NewErrorFromProblemReport(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}

	return nil
}

func (c meClient) RetrieveHistory(ctx context.Context, kind, entityID string) ([]storage.Revision, error) {
	var err error

	ctx, span := tracer.Start(ctx, "retrieve-history",
		trace.WithAttributes(attribute.String(TraceAttributeKind, kind)),
		trace.WithAttributes(attribute.String(TraceAttributeEntityID, entityID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, respBody, err := c.callServer(
		ctx, http.MethodGet, c.entityURL(kind, entityID)+"/history", nil,
	)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewErrorFromProblemReport(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}

	var revisions []storage.Revision
	err = json.Unmarshal(respBody, &revisions)
	if err != nil {
		return nil, err
	}

	return revisions, nil
}

// Export retrieves a rendition of the filtered entity set in the
// requested format and returns the content type together with the
// rendition bytes.
func (c meClient) Export(ctx context.Context, kind, format string, query url.Values) (string, []byte, error) {
	var err error

	ctx, span := tracer.Start(ctx, "export-entities",
		trace.WithAttributes(attribute.String(TraceAttributeKind, kind)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	params := url.Values{}
	for key, values := range query {
		params[key] = values
	}
	params.Set("format", format)

	endpoint := c.baseURL + "/api/" + url.PathEscape(kind) + "/export?" + params.Encode()

	resp, respBody, err := c.callServer(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return "", nil, errors.NewErrorFromProblemReport(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}

	return resp.Header.Get("Content-Type"), respBody, nil
}

func (c meClient) entityURL(kind, entityID string) string {
	return c.baseURL + "/api/" + url.PathEscape(kind) + "/" + url.PathEscape(entityID)
}

func (c meClient) callServer(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, []byte, error) {
	httpClient := http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		err = fmt.Errorf("failed to create request: %s (%w)", err.Error(), errors.ErrInternal)
		return nil, nil, err
	}

	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	if c.token != "" {
		req.Header.Add("Authorization", "Bearer "+c.token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("failed to send request: %s (%w)", err.Error(), errors.ErrInternal)
		return nil, nil, err
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("failed to read response body: %s (%w)", err.Error(), errors.ErrInternal)
		return nil, nil, err
	}

	if c.debug && resp.StatusCode >= http.StatusBadRequest {
		reqbytes, _ := httputil.DumpRequest(req, false)
		respbytes, _ := httputil.DumpResponse(resp, false)

		log := logging.GetFromContext(ctx)
		log.Error("request failed", "request", string(reqbytes), "response", string(respbytes))
	}

	return resp, respBody, nil
}

func unexpectedResponse(resp *http.Response, body []byte) error {
	return fmt.Errorf("server returned status code %d (content-type: %s, body: %s)",
		resp.StatusCode, resp.Header.Get("Content-Type"), string(body))
}
