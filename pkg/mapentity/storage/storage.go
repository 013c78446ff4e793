package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/bouttier/mapentity/pkg/mapentity/filters"
)

type Action string

const (
	ActionAdd    Action = "add"
	ActionChange Action = "change"
	ActionDelete Action = "delete"
)

// Revision is one member of the append only revision log of an
// instance. For change and delete actions the snapshot holds the
// state the instance had before the action.
type Revision struct {
	Kind       string          `json:"kind"`
	EntityID   string          `json:"entityId"`
	Action     Action          `json:"action"`
	Author     string          `json:"author"`
	Snapshot   json.RawMessage `json:"snapshot,omitempty"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// Store is the narrow persistence contract the core depends on. The
// core never issues raw storage commands; predicate semantics are
// fixed by filters.Specification.Matches and every implementation
// must produce identical results.
type Store interface {
	Fetch(ctx context.Context, kind, id string) (entities.Entity, error)
	Query(ctx context.Context, kind string, spec *filters.Specification) ([]entities.Entity, error)
	Save(ctx context.Context, e entities.Entity) error
	Delete(ctx context.Context, kind, id string) error

	RecordRevision(ctx context.Context, rev Revision) error
	Revisions(ctx context.Context, kind, id string) ([]Revision, error)
}
