// Package memory provides an in-process store used by tests and by
// deployments without a database. It applies the shared predicate
// semantics directly.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/bouttier/mapentity/pkg/mapentity/errors"
	"github.com/bouttier/mapentity/pkg/mapentity/filters"
	"github.com/bouttier/mapentity/pkg/mapentity/storage"
)

type Store struct {
	mu        sync.RWMutex
	instances map[string]map[string]entities.Entity
	revisions map[string][]storage.Revision
}

func New() *Store {
	return &Store{
		instances: map[string]map[string]entities.Entity{},
		revisions: map[string][]storage.Revision{},
	}
}

func (s *Store) Fetch(ctx context.Context, kind, id string) (entities.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.instances[kind][id]
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("no %s with id %s", kind, id))
	}

	return e, nil
}

func (s *Store) Query(ctx context.Context, kind string, spec *filters.Specification) ([]entities.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []entities.Entity{}

	for _, e := range s.instances[kind] {
		if spec != nil && !spec.Matches(e) {
			continue
		}

		result = append(result, e)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID() < result[j].ID()
	})

	return result, nil
}

func (s *Store) Save(ctx context.Context, e entities.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := e.Kind()

	if _, ok := s.instances[kind]; !ok {
		s.instances[kind] = map[string]entities.Entity{}
	}

	s.instances[kind][e.ID()] = e

	return nil
}

func (s *Store) Delete(ctx context.Context, kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[kind][id]; !ok {
		return errors.NewNotFoundError(fmt.Sprintf("no %s with id %s", kind, id))
	}

	delete(s.instances[kind], id)

	return nil
}

func (s *Store) RecordRevision(ctx context.Context, rev storage.Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rev.Kind + "/" + rev.EntityID
	s.revisions[key] = append(s.revisions[key], rev)

	return nil
}

func (s *Store) Revisions(ctx context.Context, kind, id string) ([]storage.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := kind + "/" + id
	log := make([]storage.Revision, len(s.revisions[key]))
	copy(log, s.revisions[key])

	return log, nil
}
