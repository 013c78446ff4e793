package policy

import (
	"context"
	"fmt"
	"io"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/open-policy-agent/opa/rego"
)

type regoPolicy struct {
	preparedQuery rego.PreparedEvalQuery
}

// NewRegoPolicy compiles a rego module into a Policy so that role and
// scope rules can be expressed outside of the program. The module is
// expected to define data.mapentity.authz.allow.
func NewRegoPolicy(ctx context.Context, module io.Reader) (Policy, error) {
	body, err := io.ReadAll(module)
	if err != nil {
		return nil, fmt.Errorf("unable to read authz policy: %w", err)
	}

	impl := &regoPolicy{}

	impl.preparedQuery, err = rego.New(
		rego.Query("x = data.mapentity.authz.allow"),
		rego.Module("authz.rego", string(body)),
	).PrepareForEval(ctx)

	if err != nil {
		return nil, err
	}

	return impl, nil
}

func (rp *regoPolicy) Decide(ctx context.Context, p Principal, e entities.Entity, op Operation) (Decision, error) {
	input := map[string]any{
		"operation": string(op),
		"principal": map[string]any{
			"id":            p.ID,
			"roles":         p.Roles,
			"scope":         p.Scope,
			"authenticated": p.Authenticated,
		},
	}

	if e != nil {
		input["entity"] = map[string]any{
			"kind":  e.Kind(),
			"id":    e.ID(),
			"owner": e.Owner(),
			"scope": e.Scope(),
		}
	}

	results, err := rp.preparedQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Deny, fmt.Errorf("opa eval failed: %w", err)
	}

	if len(results) == 0 {
		return Deny, fmt.Errorf("authz query could not be satisfied")
	}

	allowed, ok := results[0].Bindings["x"].(bool)
	if !ok {
		return Deny, fmt.Errorf("opa error: unexpected result type")
	}

	if allowed {
		return Allow, nil
	}

	return Deny, nil
}
