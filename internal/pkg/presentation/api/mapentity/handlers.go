package mapentity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bouttier/mapentity/internal/pkg/application/entitymanager"
	"github.com/bouttier/mapentity/internal/pkg/presentation/api/mapentity/auth"
	apierrors "github.com/bouttier/mapentity/pkg/mapentity/errors"
	"github.com/bouttier/mapentity/pkg/mapentity/policy"
	"github.com/bouttier/mapentity/pkg/mapentity/serializers"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("mapentity/api")

func RegisterHandlers(ctx context.Context, r chi.Router, policies io.Reader, app entitymanager.EntityManager) error {

	authenticator, err := auth.NewAuthenticator(ctx, policies)
	if err != nil {
		return fmt.Errorf("failed to create api authenticator: %w", err)
	}

	logger := logging.GetFromContext(ctx)

	r.Route("/api", func(r chi.Router) {
		r.Use(Logger(logger))
		r.Use(RequiredContentTypes([]string{"application/json"}))

		r.Route("/{kind}", func(r chi.Router) {
			r.Get("/", NewQueryEntitiesHandler(app, authenticator))
			r.Post("/", NewCreateEntityHandler(app, authenticator))

			r.Get("/layer", NewRenderLayerHandler(app, authenticator))
			r.Get("/export", NewExportEntitiesHandler(app, authenticator))

			r.Route("/{entityId}", func(r chi.Router) {
				r.Get("/", NewRetrieveEntityHandler(app, authenticator))
				r.Patch("/", NewUpdateEntityHandler(app, authenticator))
				r.Delete("/", NewDeleteEntityHandler(app, authenticator))

				r.Get("/history", NewRetrieveHistoryHandler(app, authenticator))
				r.Get("/document", NewRenderDocumentHandler(app, authenticator))
			})
		})
	})

	return nil
}

func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(
				trace.SpanFromContext(ctx),
				logger,
				ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequiredContentTypes(validTypes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			contentType := r.Header.Get("Content-Type")
			isValidContentType := true

			if len(contentType) > 0 {
				isValidContentType = false

				for _, t := range validTypes {
					if strings.HasPrefix(contentType, t) {
						isValidContentType = true
						break
					}
				}
			}

			if isValidContentType {
				next.ServeHTTP(w, r)
			} else {
				http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
			}
		})
	}
}

func traceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		return spanCtx.TraceID().String()
	}

	return ""
}

func resolvePrincipal(ctx context.Context, w http.ResponseWriter, r *http.Request, authenticator auth.Authenticator) (policy.Principal, bool) {
	principal, err := authenticator.ResolvePrincipal(ctx, r)
	if err != nil {
		apierrors.NewUnauthorizedRequest(err.Error(), traceID(ctx)).WriteResponse(w)
		return policy.Principal{}, false
	}

	return principal, true
}

func NewQueryEntitiesHandler(app entitymanager.EntityQuerier, authenticator auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "query-entities")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		principal, ok := resolvePrincipal(ctx, w, r, authenticator)
		if !ok {
			return
		}

		kind := chi.URLParam(r, "kind")

		list, err := app.QueryEntities(ctx, principal, kind, r.URL.Query())
		if err != nil {
			apierrors.ReportError(w, err, traceID(ctx))
			return
		}

		body, err := json.Marshal(list)
		if err != nil {
			apierrors.ReportError(w, err, traceID(ctx))
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

func NewRetrieveEntityHandler(app entitymanager.EntityRetriever, authenticator auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "retrieve-entity")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		principal, ok := resolvePrincipal(ctx, w, r, authenticator)
		if !ok {
			return
		}

		kind := chi.URLParam(r, "kind")
		entityID := chi.URLParam(r, "entityId")

		e, err := app.RetrieveEntity(ctx, principal, kind, entityID)
		if err != nil {
			apierrors.ReportError(w, err, traceID(ctx))
			return
		}

		body, err := e.MarshalJSON()
		if err != nil {
			apierrors.ReportError(w, err, traceID(ctx))
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

func NewCreateEntityHandler(app entitymanager.EntityCreator, authenticator auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "create-entity")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		principal, ok := resolvePrincipal(ctx, w, r, authenticator)
		if !ok {
			return
		}

		kind := chi.URLParam(r, "kind")

		e, err := app.CreateEntity(ctx, principal, kind, r.Body)
		if err != nil {
			apierrors.ReportError(w, err, traceID(ctx))
			return
		}

		w.Header().Add("Location", fmt.Sprintf("/api/%s/%s", e.Kind(), e.ID()))
		w.WriteHeader(http.StatusCreated)
	}
}

func NewUpdateEntityHandler(app entitymanager.EntityUpdater, authenticator auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "update-entity")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		principal, ok := resolvePrincipal(ctx, w, r, authenticator)
		if !ok {
			return
		}

		kind := chi.URLParam(r, "kind")
		entityID := chi.URLParam(r, "entityId")

		e, err := app.UpdateEntity(ctx, principal, kind, entityID, r.Body)
		if err != nil {
			apierrors.ReportError(w, err, traceID(ctx))
			return
		}

		body, err := e.MarshalJSON()
		if err != nil {
			apierrors.ReportError(w, err, traceID(ctx))
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

func NewDeleteEntityHandler(app entitymanager.EntityDeleter, authenticator auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "delete-entity")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		principal, ok := resolvePrincipal(ctx, w, r, authenticator)
		if !ok {
			return
		}

		kind := chi.URLParam(r, "kind")
		entityID := chi.URLParam(r, "entityId")

		err = app.DeleteEntity(ctx, principal, kind, entityID)
		if err != nil {
			apierrors.ReportError(w, err, traceID(ctx))
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func NewRetrieveHistoryHandler(app entitymanager.HistoryRetriever, authenticator auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "retrieve-history")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		principal, ok := resolvePrincipal(ctx, w, r, authenticator)
		if !ok {
			return
		}

		kind := chi.URLParam(r, "kind")
		entityID := chi.URLParam(r, "entityId")

		revisions, err := app.RetrieveHistory(ctx, principal, kind, entityID)
		if err != nil {
			apierrors.ReportError(w, err, traceID(ctx))
			return
		}

		body, err := json.Marshal(revisions)
		if err != nil {
			apierrors.ReportError(w, err, traceID(ctx))
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

func NewRenderLayerHandler(app entitymanager.Exporter, authenticator auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "render-layer")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		principal, ok := resolvePrincipal(ctx, w, r, authenticator)
		if !ok {
			return
		}

		kind := chi.URLParam(r, "kind")

		// buffer the rendition so a late failure never truncates a 200
		var buf bytes.Buffer

		contentType, err := app.RenderLayer(ctx, principal, kind, r.URL.Query(), &buf)
		if err != nil {
			apierrors.ReportError(w, err, traceID(ctx))
			return
		}

		w.Header().Add("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

func NewExportEntitiesHandler(app entitymanager.Exporter, authenticator auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "export-entities")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		principal, ok := resolvePrincipal(ctx, w, r, authenticator)
		if !ok {
			return
		}

		kind := chi.URLParam(r, "kind")

		format := r.URL.Query().Get("format")
		if format == "" {
			format = serializers.FormatTabular
		}

		var buf bytes.Buffer

		contentType, err := app.Export(ctx, principal, kind, format, r.URL.Query(), &buf)
		if err != nil {
			apierrors.ReportError(w, err, traceID(ctx))
			return
		}

		w.Header().Add("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

func NewRenderDocumentHandler(app entitymanager.Exporter, authenticator auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "render-document")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		principal, ok := resolvePrincipal(ctx, w, r, authenticator)
		if !ok {
			return
		}

		kind := chi.URLParam(r, "kind")
		entityID := chi.URLParam(r, "entityId")
		locale := r.URL.Query().Get("locale")

		var buf bytes.Buffer

		contentType, err := app.RenderDocument(ctx, principal, kind, entityID, locale, &buf)
		if err != nil {
			apierrors.ReportError(w, err, traceID(ctx))
			return
		}

		w.Header().Add("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}
