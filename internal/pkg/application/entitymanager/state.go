package entitymanager

import (
	"context"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

type requestState string

const (
	stateAuthorized requestState = "authorized"
	stateFiltered   requestState = "filtered"
	stateRendered   requestState = "rendered"
)

// advance logs the progress of a request through the dispatcher at
// debug level. Useful when chasing a request that dies somewhere
// between authorization and rendering.
func advance(ctx context.Context, state requestState) {
	logging.GetFromContext(ctx).Debug("request state changed", "state", string(state))
}
