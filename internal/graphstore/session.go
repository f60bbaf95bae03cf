// Package graphstore implements the Graph Store (C6): idempotent,
// MERGE-based upserts of the data model into a per-podcast Neo4j database,
// with schema bootstrap and batched write transactions.
//
// The seam between Cypher-issuing code and the real driver follows
// pkg/repo/neo4j.go's testable-session pattern (a narrow interface swapped
// out in tests via an unexported field), generalized from single-label
// CRUD to the MERGE-heavy, multi-statement transactions this domain needs;
// graphstore does not reuse Neo4jRepo[T,ID] directly because none of its
// operations are a plain get/list/create/update/delete by one id — every
// write here touches both a node and at least one relationship together.
package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/podknow/seeder/internal/domain"
)

// cypherRunner is the minimal capability a write transaction needs: run a
// statement and discard its result. Every upsert in this package only
// needs MERGE side effects, never returned rows.
type cypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
}

type neo4jTxRunner struct {
	tx neo4j.ManagedTransaction
}

func (r *neo4jTxRunner) Run(ctx context.Context, cypher string, params map[string]any) error {
	res, err := r.tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// Store is the sole owner of Cypher for one podcast's database. The
// Multi-Podcast Router (internal/router) owns the pool of Stores, one per
// podcast, so a cross-podcast write is structurally impossible here: a
// Store simply has no way to address another podcast's database.
type Store struct {
	driver    neo4j.DriverWithContext
	database  string
	podcastID string

	// writeTx runs fn inside one write transaction. Overridden in tests.
	writeTx func(ctx context.Context, fn func(cypherRunner) error) error
}

// NewStore binds a Store to one podcast's database within a shared driver.
func NewStore(driver neo4j.DriverWithContext, database, podcastID string) *Store {
	s := &Store{driver: driver, database: database, podcastID: podcastID}
	s.writeTx = s.realWriteTx
	return s
}

func (s *Store) realWriteTx(ctx context.Context, fn func(cypherRunner) error) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(&neo4jTxRunner{tx: tx})
	})
	if err != nil {
		return &domain.StorageUnavailableError{PodcastID: s.podcastID, Wrapped: err}
	}
	return nil
}

// run executes a single Cypher statement in its own write transaction.
func (s *Store) run(ctx context.Context, cypher string, params map[string]any) error {
	return s.writeTx(ctx, func(r cypherRunner) error {
		return r.Run(ctx, cypher, params)
	})
}

// readRows runs a read-only Cypher query and returns each result row as a
// plain map keyed by return alias, for the analysis queries in
// internal/postprocess that need more than a MERGE side effect.
func (s *Store) readRows(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer sess.Close(ctx)

	rows, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := neo4j.CollectWithContext(ctx, result, err)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			row := make(map[string]any, len(rec.Keys))
			for i, k := range rec.Keys {
				row[k] = rec.Values[i]
			}
			out = append(out, row)
		}
		return out, nil
	})
	if err != nil {
		return nil, &domain.StorageUnavailableError{PodcastID: s.podcastID, Wrapped: err}
	}
	return rows.([]map[string]any), nil
}

// Query runs a read-only Cypher statement and returns its rows, for
// analysis/reporting callers outside this package (internal/postprocess's
// knowledge-gap, diversity, and missing-link queries).
func (s *Store) Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return s.readRows(ctx, cypher, params)
}

// statement is one Cypher write, batched together with others in runBatch.
type statement struct {
	cypher string
	params map[string]any
}

// runBatch executes statements inside one write transaction, so all the
// writes for a single unit (its node, its entity/quote/insight/relationship
// edges) commit or fail together.
func (s *Store) runBatch(ctx context.Context, statements []statement) error {
	return s.writeTx(ctx, func(r cypherRunner) error {
		for i, st := range statements {
			if err := r.Run(ctx, st.cypher, st.params); err != nil {
				return fmt.Errorf("graphstore: statement %d: %w", i, err)
			}
		}
		return nil
	})
}
