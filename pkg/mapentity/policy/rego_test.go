package policy

import (
	"bytes"
	"context"
	"testing"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/matryer/is"
)

const authzModule string = `
package mapentity.authz

default allow = false

allow {
	input.principal.authenticated == true
	input.operation == "read"
}

allow {
	input.principal.authenticated == true
	input.operation == "change"
	input.entity.owner == input.principal.id
}
`

func TestRegoPolicyAllowsReads(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	pol, err := NewRegoPolicy(ctx, bytes.NewBufferString(authzModule))
	is.NoErr(err)

	decision, err := pol.Decide(ctx, anna, nil, OperationRead)
	is.NoErr(err)
	is.Equal(decision, Allow)
}

func TestRegoPolicyChecksOwnershipForChanges(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	pol, err := NewRegoPolicy(ctx, bytes.NewBufferString(authzModule))
	is.NoErr(err)

	e, err := entities.New("trail", "trail-1", entities.Owner("anna"))
	is.NoErr(err)

	decision, err := pol.Decide(ctx, anna, e, OperationChange)
	is.NoErr(err)
	is.Equal(decision, Allow)

	decision, err = pol.Decide(ctx, bert, e, OperationChange)
	is.NoErr(err)
	is.Equal(decision, Deny)
}

func TestRegoPolicyDeniesUnlistedOperations(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	pol, err := NewRegoPolicy(ctx, bytes.NewBufferString(authzModule))
	is.NoErr(err)

	decision, err := pol.Decide(ctx, anna, nil, OperationDelete)
	is.NoErr(err)
	is.Equal(decision, Deny)
}
