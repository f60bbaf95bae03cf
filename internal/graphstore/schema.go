package graphstore

import "context"

// bootstrapStatements creates the constraints and indexes the upsert
// contract relies on. Every statement uses IF NOT EXISTS so bootstrap is
// idempotent across restarts and across every podcast's freshly created
// database.
var bootstrapStatements = []string{
	"CREATE CONSTRAINT episode_id IF NOT EXISTS FOR (e:Episode) REQUIRE e.id IS UNIQUE",
	"CREATE CONSTRAINT unit_id IF NOT EXISTS FOR (u:MeaningfulUnit) REQUIRE u.id IS UNIQUE",
	"CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE",
	"CREATE CONSTRAINT quote_id IF NOT EXISTS FOR (q:Quote) REQUIRE q.id IS UNIQUE",
	"CREATE CONSTRAINT insight_id IF NOT EXISTS FOR (i:Insight) REQUIRE i.id IS UNIQUE",
	"CREATE CONSTRAINT cluster_id IF NOT EXISTS FOR (c:Cluster) REQUIRE c.id IS UNIQUE",
	"CREATE INDEX unit_start_sec IF NOT EXISTS FOR (u:MeaningfulUnit) ON (u.startSec)",
	"CREATE INDEX entity_canonical_name IF NOT EXISTS FOR (e:Entity) ON (e.canonicalName)",
	"CREATE INDEX unit_episode_id IF NOT EXISTS FOR (u:MeaningfulUnit) ON (u.episodeId)",
}

// Bootstrap idempotently creates this podcast database's constraints and
// indexes. Safe to call on every startup.
func (s *Store) Bootstrap(ctx context.Context) error {
	for _, stmt := range bootstrapStatements {
		if err := s.run(ctx, stmt, nil); err != nil {
			return err
		}
	}
	return nil
}
