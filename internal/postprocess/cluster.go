package postprocess

import (
	"context"
)

// centroidSearcher is the nearest-centroid lookup capability this package
// needs from the embedding store, narrowed to a single method so tests can
// substitute a fake without standing up Qdrant.
type centroidSearcher interface {
	Search(ctx context.Context, collection string, vector []float32, topK int, filters map[string]string) ([]SearchHit, error)
}

// SearchHit mirrors embedding.SearchHit; AssignClusters depends on this
// local shape rather than on internal/embedding's concrete Store type, so
// centroidSearcher can be satisfied by any provider at the call site
// (EmbeddingSearcher adapts the Store).
type SearchHit struct {
	ID    string
	Score float32
}

// clusterAssigner is the graph-store write capability this package needs.
type clusterAssigner interface {
	AssignCluster(ctx context.Context, unitID, clusterID string) error
}

// UnassignedUnit is a unit without a :IN_CLUSTER edge yet, carrying the
// embedding needed to find its nearest centroid.
type UnassignedUnit struct {
	UnitID    string
	Embedding []float32
}

// ClusterAssignment is the outcome of attempting to assign one unit.
type ClusterAssignment struct {
	UnitID    string
	ClusterID string
	Score     float32
	Assigned  bool
}

// AssignClusters finds each unit's nearest centroid in the podcast's
// cluster collection and, when the match score is at or above tau, writes
// the :IN_CLUSTER edge. Units below tau are left unassigned for a future
// re-cluster pass over the podcast's full corpus, per the "leave
// unassigned" edge policy.
func AssignClusters(ctx context.Context, searcher centroidSearcher, store clusterAssigner, clusterCollection string, units []UnassignedUnit, tau float32) ([]ClusterAssignment, error) {
	out := make([]ClusterAssignment, 0, len(units))
	for _, u := range units {
		hits, err := searcher.Search(ctx, clusterCollection, u.Embedding, 1, nil)
		if err != nil {
			return out, err
		}
		if len(hits) == 0 || hits[0].Score < tau {
			out = append(out, ClusterAssignment{UnitID: u.UnitID, Assigned: false})
			continue
		}
		best := hits[0]
		if err := store.AssignCluster(ctx, u.UnitID, best.ID); err != nil {
			return out, err
		}
		out = append(out, ClusterAssignment{UnitID: u.UnitID, ClusterID: best.ID, Score: best.Score, Assigned: true})
	}
	return out, nil
}
