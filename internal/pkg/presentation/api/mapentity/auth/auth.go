// Package auth resolves request principals from bearer tokens using an
// OPA policy module. The policy decides who the caller is; what the
// caller may do is decided later, per kind, by the permission layer.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bouttier/mapentity/pkg/mapentity/policy"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("mapentity/api/authn")

type Authenticator interface {
	ResolvePrincipal(ctx context.Context, r *http.Request) (policy.Principal, error)
}

type authenticatorImpl struct {
	preparedQuery rego.PreparedEvalQuery
}

func NewAuthenticator(ctx context.Context, policies io.Reader) (Authenticator, error) {
	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read authn policies: %s", err.Error())
	}

	impl := &authenticatorImpl{}

	impl.preparedQuery, err = rego.New(
		rego.Query("x = data.mapentity.authn.principal"),
		rego.Module("authn.rego", string(module)),
	).PrepareForEval(ctx)

	if err != nil {
		return nil, err
	}

	return impl, nil
}

func (a *authenticatorImpl) ResolvePrincipal(ctx context.Context, r *http.Request) (policy.Principal, error) {
	var err error

	_, span := tracer.Start(ctx, "resolve-principal")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	token := r.Header.Get("Authorization")

	if len(token) > 7 {
		token = token[7:]
	}

	path := strings.Split(r.URL.Path, "/")

	input := map[string]any{
		"method": r.Method,
		"path":   path[1:],
		"token":  token,
	}

	results, err := a.preparedQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		err = fmt.Errorf("opa eval failed: %w", err)
		return policy.Principal{}, err
	}

	if len(results) == 0 {
		err = errors.New("authentication failed: opa query could not be satisfied")
		return policy.Principal{}, err
	}

	binding := results[0].Bindings["x"]

	// a rejected token comes back as a single bool
	resolved, ok := binding.(bool)
	if ok && !resolved {
		err = errors.New("authentication failed")
		return policy.Principal{}, err
	}

	// an accepted token comes back as a principal object
	obj, ok := binding.(map[string]any)
	if !ok {
		err = errors.New("opa error: unexpected result type")
		return policy.Principal{}, err
	}

	return principalFromBinding(obj)
}

func principalFromBinding(obj map[string]any) (policy.Principal, error) {
	p := policy.Principal{Authenticated: true}

	id, ok := obj["id"].(string)
	if !ok || id == "" {
		return policy.Principal{}, errors.New("opa error: principal lacks an id")
	}

	p.ID = id

	if scope, ok := obj["scope"].(string); ok {
		p.Scope = scope
	}

	if roles, ok := obj["roles"].([]any); ok {
		for _, r := range roles {
			if role, ok := r.(string); ok {
				p.Roles = append(p.Roles, role)
			}
		}
	}

	return p, nil
}
