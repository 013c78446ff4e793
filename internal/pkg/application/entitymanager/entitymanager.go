package entitymanager

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/bouttier/mapentity/internal/pkg/application/audit"
	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/bouttier/mapentity/pkg/mapentity/errors"
	"github.com/bouttier/mapentity/pkg/mapentity/filters"
	"github.com/bouttier/mapentity/pkg/mapentity/policy"
	"github.com/bouttier/mapentity/pkg/mapentity/registry"
	"github.com/bouttier/mapentity/pkg/mapentity/serializers"
	"github.com/bouttier/mapentity/pkg/mapentity/storage"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("mapentity/entitymanager")

type EntityQuerier interface {
	QueryEntities(ctx context.Context, p policy.Principal, kind string, params url.Values) ([]entities.Entity, error)
}

type EntityRetriever interface {
	RetrieveEntity(ctx context.Context, p policy.Principal, kind, id string) (entities.Entity, error)
}

type EntityCreator interface {
	CreateEntity(ctx context.Context, p policy.Principal, kind string, body io.Reader) (entities.Entity, error)
}

type EntityUpdater interface {
	UpdateEntity(ctx context.Context, p policy.Principal, kind, id string, body io.Reader) (entities.Entity, error)
}

type EntityDeleter interface {
	DeleteEntity(ctx context.Context, p policy.Principal, kind, id string) error
}

type HistoryRetriever interface {
	RetrieveHistory(ctx context.Context, p policy.Principal, kind, id string) ([]storage.Revision, error)
}

type Exporter interface {
	Export(ctx context.Context, p policy.Principal, kind, format string, params url.Values, w io.Writer) (string, error)
	RenderLayer(ctx context.Context, p policy.Principal, kind string, params url.Values, w io.Writer) (string, error)
	RenderDocument(ctx context.Context, p policy.Principal, kind, id, locale string, w io.Writer) (string, error)
}

// EntityManager is the operation surface composed from the registry,
// the filter engine, the permission layer and the serialization
// pipeline.
type EntityManager interface {
	EntityQuerier
	EntityRetriever
	EntityCreator
	EntityUpdater
	EntityDeleter
	HistoryRetriever
	Exporter

	Start() error
	Stop() error
}

type mgr struct {
	registry *registry.Registry
	store    storage.Store
	pipeline *serializers.Pipeline
	recorder audit.Recorder
}

func New(reg *registry.Registry, store storage.Store, pipeline *serializers.Pipeline, recorder audit.Recorder) EntityManager {
	return &mgr{
		registry: reg,
		store:    store,
		pipeline: pipeline,
		recorder: recorder,
	}
}

func (m *mgr) Start() error {
	if m.recorder != nil {
		return m.recorder.Start()
	}

	return nil
}

func (m *mgr) Stop() error {
	if m.recorder != nil {
		return m.recorder.Stop()
	}

	return nil
}

// authorize gates one operation with the descriptor's policy, or the
// default policy when the descriptor declares none. Decisions are
// recomputed on every access; a Deny is reported as a rejection and
// never downgraded to a partial result.
func (m *mgr) authorize(ctx context.Context, d *registry.Descriptor, p policy.Principal, e entities.Entity, op policy.Operation) error {
	pol := d.Policy
	if pol == nil {
		pol = policy.Default()
	}

	decision, err := pol.Decide(ctx, p, e, op)
	if err != nil {
		return err
	}

	if decision != policy.Allow {
		subject := d.Kind
		if e != nil {
			subject = fmt.Sprintf("%s %s", d.Kind, e.ID())
		}

		return errors.NewPermissionDeniedError(
			fmt.Sprintf("principal %q may not %s %s", p.ID, op, subject))
	}

	advance(ctx, stateAuthorized)

	return nil
}

func (m *mgr) QueryEntities(ctx context.Context, p policy.Principal, kind string, params url.Values) ([]entities.Entity, error) {
	var err error

	ctx, span := tracer.Start(ctx, "query-entities")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	d, err := m.registry.Resolve(kind)
	if err != nil {
		return nil, err
	}

	if err = m.authorize(ctx, d, p, nil, policy.OperationRead); err != nil {
		return nil, err
	}

	list, err := m.filtered(ctx, d, p, params, policy.OperationRead)
	if err != nil {
		return nil, err
	}

	return list, nil
}

// filtered narrows the candidate set with the request parameters and
// drops instances the principal may not see under the given
// operation.
func (m *mgr) filtered(ctx context.Context, d *registry.Descriptor, p policy.Principal, params url.Values, op policy.Operation) ([]entities.Entity, error) {
	spec, err := filters.Build(d, params)
	if err != nil {
		return nil, err
	}

	candidates, err := m.store.Query(ctx, d.Kind, spec)
	if err != nil {
		return nil, err
	}

	pol := d.Policy
	if pol == nil {
		pol = policy.Default()
	}

	visible := make([]entities.Entity, 0, len(candidates))

	for _, e := range candidates {
		decision, err := pol.Decide(ctx, p, e, op)
		if err != nil {
			return nil, err
		}

		if decision == policy.Allow {
			visible = append(visible, e)
		}
	}

	advance(ctx, stateFiltered)

	return visible, nil
}

func (m *mgr) RetrieveEntity(ctx context.Context, p policy.Principal, kind, id string) (entities.Entity, error) {
	var err error

	ctx, span := tracer.Start(ctx, "retrieve-entity")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	d, err := m.registry.Resolve(kind)
	if err != nil {
		return nil, err
	}

	e, err := m.store.Fetch(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	if err = m.authorize(ctx, d, p, e, policy.OperationRead); err != nil {
		return nil, err
	}

	return e, nil
}

func (m *mgr) CreateEntity(ctx context.Context, p policy.Principal, kind string, body io.Reader) (entities.Entity, error) {
	var err error

	ctx, span := tracer.Start(ctx, "create-entity")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	d, err := m.registry.Resolve(kind)
	if err != nil {
		return nil, err
	}

	if err = m.authorize(ctx, d, p, nil, policy.OperationAdd); err != nil {
		return nil, err
	}

	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.NewInvalidRequestError(err.Error())
	}

	parsed, err := entities.NewFromJSON(kind, payload)
	if err != nil {
		return nil, errors.NewInvalidRequestError(err.Error())
	}

	if err = validateAgainstSchema(d, parsed); err != nil {
		return nil, err
	}

	id := parsed.ID()
	if id == "" {
		id = uuid.NewString()
	} else {
		if _, err := m.store.Fetch(ctx, kind, id); err == nil {
			return nil, errors.NewAlreadyExistsError(fmt.Sprintf("%s %s already exists", kind, id))
		}
	}

	scope := parsed.Scope()
	if scope == "" {
		scope = p.Scope
	}

	now := time.Now().UTC()

	e, err := entities.Copy(parsed,
		entities.ID(id),
		entities.Owner(p.ID),
		entities.Scope(scope),
		entities.CreatedAt(now),
		entities.UpdatedAt(now),
	)
	if err != nil {
		return nil, errors.NewInvalidRequestError(err.Error())
	}

	if err = m.store.Save(ctx, e); err != nil {
		return nil, err
	}

	if err = m.recordRevision(ctx, e, storage.ActionAdd, p.ID); err != nil {
		return nil, err
	}

	if m.recorder != nil {
		m.recorder.EntityCreated(ctx, p, e)
	}

	return e, nil
}

func (m *mgr) UpdateEntity(ctx context.Context, p policy.Principal, kind, id string, body io.Reader) (entities.Entity, error) {
	var err error

	ctx, span := tracer.Start(ctx, "update-entity")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	d, err := m.registry.Resolve(kind)
	if err != nil {
		return nil, err
	}

	current, err := m.store.Fetch(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	if err = m.authorize(ctx, d, p, current, policy.OperationChange); err != nil {
		return nil, err
	}

	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.NewInvalidRequestError(err.Error())
	}

	fragment, err := entities.NewFromJSON(kind, payload)
	if err != nil {
		return nil, errors.NewInvalidRequestError(err.Error())
	}

	if err = validateAgainstSchema(d, fragment); err != nil {
		return nil, err
	}

	overlay := []entities.EntityDecoratorFunc{
		entities.UpdatedAt(time.Now().UTC()),
	}

	fragment.ForEachAttribute(func(name string, value any) {
		overlay = append(overlay, entities.A(name, value))
	})

	if g := fragment.Geometry(); g != nil {
		overlay = append(overlay, entities.G(g))
	}

	updated, err := entities.Copy(current, overlay...)
	if err != nil {
		return nil, errors.NewInvalidRequestError(err.Error())
	}

	// the revision log keeps the state the instance had before the change
	if err = m.recordRevision(ctx, current, storage.ActionChange, p.ID); err != nil {
		return nil, err
	}

	if err = m.store.Save(ctx, updated); err != nil {
		return nil, err
	}

	if m.recorder != nil {
		m.recorder.EntityChanged(ctx, p, updated)
	}

	return updated, nil
}

func (m *mgr) DeleteEntity(ctx context.Context, p policy.Principal, kind, id string) error {
	var err error

	ctx, span := tracer.Start(ctx, "delete-entity")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	d, err := m.registry.Resolve(kind)
	if err != nil {
		return err
	}

	current, err := m.store.Fetch(ctx, kind, id)
	if err != nil {
		return err
	}

	if err = m.authorize(ctx, d, p, current, policy.OperationDelete); err != nil {
		return err
	}

	if err = m.recordRevision(ctx, current, storage.ActionDelete, p.ID); err != nil {
		return err
	}

	if err = m.store.Delete(ctx, kind, id); err != nil {
		return err
	}

	if m.recorder != nil {
		m.recorder.EntityDeleted(ctx, p, kind, id)
	}

	return nil
}

// RetrieveHistory lists the append only revision log of an instance.
// It is gated by the same policy as read access.
func (m *mgr) RetrieveHistory(ctx context.Context, p policy.Principal, kind, id string) ([]storage.Revision, error) {
	var err error

	ctx, span := tracer.Start(ctx, "retrieve-history")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	d, err := m.registry.Resolve(kind)
	if err != nil {
		return nil, err
	}

	e, err := m.store.Fetch(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	if err = m.authorize(ctx, d, p, e, policy.OperationRead); err != nil {
		return nil, err
	}

	return m.store.Revisions(ctx, kind, id)
}

// Export composes the filter engine output directly into the
// serialization pipeline, bypassing per instance detail rendering.
func (m *mgr) Export(ctx context.Context, p policy.Principal, kind, format string, params url.Values, w io.Writer) (string, error) {
	var err error

	ctx, span := tracer.Start(ctx, "export-entities")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	d, err := m.registry.Resolve(kind)
	if err != nil {
		return "", err
	}

	contentType, err := m.pipeline.ContentType(format)
	if err != nil {
		return "", err
	}

	if err = m.authorize(ctx, d, p, nil, policy.OperationExport); err != nil {
		return "", err
	}

	list, err := m.filtered(ctx, d, p, params, policy.OperationExport)
	if err != nil {
		return "", err
	}

	sc := serializers.Context{
		Descriptor: d,
		Entities:   list,
		Principal:  p,
		GroupBy:    params.Get("groupby"),
		Locale:     params.Get("locale"),
	}

	if err = m.pipeline.Render(ctx, format, sc, w); err != nil {
		return "", err
	}

	advance(ctx, stateRendered)

	return contentType, nil
}

// RenderLayer renders the filtered entity set as a map layer. Layers
// are read gated, not export gated.
func (m *mgr) RenderLayer(ctx context.Context, p policy.Principal, kind string, params url.Values, w io.Writer) (string, error) {
	var err error

	ctx, span := tracer.Start(ctx, "render-layer")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	d, err := m.registry.Resolve(kind)
	if err != nil {
		return "", err
	}

	if err = m.authorize(ctx, d, p, nil, policy.OperationRead); err != nil {
		return "", err
	}

	list, err := m.filtered(ctx, d, p, params, policy.OperationRead)
	if err != nil {
		return "", err
	}

	contentType, _ := m.pipeline.ContentType(serializers.FormatMapLayer)

	sc := serializers.Context{Descriptor: d, Entities: list, Principal: p}

	if err = m.pipeline.Render(ctx, serializers.FormatMapLayer, sc, w); err != nil {
		return "", err
	}

	advance(ctx, stateRendered)

	return contentType, nil
}

// RenderDocument renders a printable document for a single instance.
func (m *mgr) RenderDocument(ctx context.Context, p policy.Principal, kind, id, locale string, w io.Writer) (string, error) {
	var err error

	ctx, span := tracer.Start(ctx, "render-document")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	d, err := m.registry.Resolve(kind)
	if err != nil {
		return "", err
	}

	contentType, err := m.pipeline.ContentType(serializers.FormatDocument)
	if err != nil {
		return "", err
	}

	e, err := m.store.Fetch(ctx, kind, id)
	if err != nil {
		return "", err
	}

	if err = m.authorize(ctx, d, p, e, policy.OperationExport); err != nil {
		return "", err
	}

	sc := serializers.Context{
		Descriptor: d,
		Entities:   []entities.Entity{e},
		Principal:  p,
		Locale:     locale,
	}

	if err = m.pipeline.Render(ctx, serializers.FormatDocument, sc, w); err != nil {
		return "", err
	}

	advance(ctx, stateRendered)

	return contentType, nil
}

func (m *mgr) recordRevision(ctx context.Context, e entities.Entity, action storage.Action, author string) error {
	snapshot, err := e.MarshalJSON()
	if err != nil {
		return err
	}

	return m.store.RecordRevision(ctx, storage.Revision{
		Kind:       e.Kind(),
		EntityID:   e.ID(),
		Action:     action,
		Author:     author,
		Snapshot:   snapshot,
		RecordedAt: time.Now().UTC(),
	})
}
