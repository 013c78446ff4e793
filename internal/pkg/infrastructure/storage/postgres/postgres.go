// Package postgres persists entities and their revision logs in a
// postgres database. Entities are stored as jsonb documents; the
// authoritative predicate semantics stay in the filter engine, so
// every backend produces identical results.
package postgres

import (
	"context"
	"fmt"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/bouttier/mapentity/pkg/mapentity/errors"
	"github.com/bouttier/mapentity/pkg/mapentity/filters"
	"github.com/bouttier/mapentity/pkg/mapentity/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Initialize creates the backing tables if they do not exist yet.
func (s *Store) Initialize(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS mapentity_entities (
		kind text NOT NULL,
		id text NOT NULL,
		body jsonb NOT NULL,
		PRIMARY KEY (kind, id)
	);
	CREATE TABLE IF NOT EXISTS mapentity_revisions (
		seq bigserial PRIMARY KEY,
		kind text NOT NULL,
		entity_id text NOT NULL,
		action text NOT NULL,
		author text NOT NULL,
		snapshot jsonb,
		recorded_at timestamptz NOT NULL
	);
	CREATE INDEX IF NOT EXISTS mapentity_revisions_entity_idx
		ON mapentity_revisions (kind, entity_id);`

	_, err := s.pool.Exec(ctx, ddl)

	return err
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Fetch(ctx context.Context, kind, id string) (entities.Entity, error) {
	var body []byte

	err := s.pool.QueryRow(ctx,
		`SELECT body FROM mapentity_entities WHERE kind = $1 AND id = $2`,
		kind, id,
	).Scan(&body)

	if err == pgx.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("no %s with id %s", kind, id))
	}

	if err != nil {
		return nil, err
	}

	return entities.NewFromJSON(kind, body)
}

func (s *Store) Query(ctx context.Context, kind string, spec *filters.Specification) ([]entities.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT body FROM mapentity_entities WHERE kind = $1 ORDER BY id`,
		kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []entities.Entity{}

	for rows.Next() {
		var body []byte

		if err := rows.Scan(&body); err != nil {
			return nil, err
		}

		e, err := entities.NewFromJSON(kind, body)
		if err != nil {
			return nil, err
		}

		if spec != nil && !spec.Matches(e) {
			continue
		}

		result = append(result, e)
	}

	return result, rows.Err()
}

func (s *Store) Save(ctx context.Context, e entities.Entity) error {
	body, err := e.MarshalJSON()
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO mapentity_entities (kind, id, body) VALUES ($1, $2, $3)
		 ON CONFLICT (kind, id) DO UPDATE SET body = excluded.body`,
		e.Kind(), e.ID(), body,
	)

	return err
}

func (s *Store) Delete(ctx context.Context, kind, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM mapentity_entities WHERE kind = $1 AND id = $2`,
		kind, id,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("no %s with id %s", kind, id))
	}

	return nil
}

func (s *Store) RecordRevision(ctx context.Context, rev storage.Revision) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO mapentity_revisions (kind, entity_id, action, author, snapshot, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rev.Kind, rev.EntityID, string(rev.Action), rev.Author, []byte(rev.Snapshot), rev.RecordedAt,
	)

	return err
}

func (s *Store) Revisions(ctx context.Context, kind, id string) ([]storage.Revision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT action, author, snapshot, recorded_at FROM mapentity_revisions
		 WHERE kind = $1 AND entity_id = $2 ORDER BY seq`,
		kind, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	log := []storage.Revision{}

	for rows.Next() {
		rev := storage.Revision{Kind: kind, EntityID: id}

		var action string
		var snapshot []byte

		if err := rows.Scan(&action, &rev.Author, &snapshot, &rev.RecordedAt); err != nil {
			return nil, err
		}

		rev.Action = storage.Action(action)
		rev.Snapshot = snapshot

		log = append(log, rev)
	}

	return log, rows.Err()
}
