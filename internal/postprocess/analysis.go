package postprocess

import (
	"context"
	"fmt"
)

// graphQuerier is the read capability analysis needs from the graph store,
// narrowed so tests can supply canned rows instead of a live database.
type graphQuerier interface {
	Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// KnowledgeGap names an entity that is mentioned often but never connected
// to any insight, a signal the extractor saw it but never explained it.
type KnowledgeGap struct {
	EntityName string
	Mentions   int64
}

// DiversityStat summarizes how many distinct entity types appear among an
// episode's entities, a coarse proxy for topical breadth.
type DiversityStat struct {
	EntityType string
	Count      int64
}

// MissingLink is a pair of entities that co-occur in the same unit but
// have no direct RELATES_TO edge between them, a candidate for a future
// relationship the extractor missed.
type MissingLink struct {
	SourceName string
	TargetName string
	UnitID     string
}

// Analysis bundles the three query outputs §4.9 calls for, written back to
// the graph as node properties by the orchestrator after this returns.
type Analysis struct {
	KnowledgeGaps []KnowledgeGap
	Diversity     []DiversityStat
	MissingLinks  []MissingLink
}

// RunAnalysis issues the knowledge-gap, diversity, and missing-link queries
// scoped to one episode.
func RunAnalysis(ctx context.Context, q graphQuerier, episodeID string) (Analysis, error) {
	gaps, err := knowledgeGaps(ctx, q, episodeID)
	if err != nil {
		return Analysis{}, fmt.Errorf("postprocess: knowledge gaps: %w", err)
	}
	diversity, err := entityDiversity(ctx, q, episodeID)
	if err != nil {
		return Analysis{}, fmt.Errorf("postprocess: diversity: %w", err)
	}
	missing, err := missingLinks(ctx, q, episodeID)
	if err != nil {
		return Analysis{}, fmt.Errorf("postprocess: missing links: %w", err)
	}
	return Analysis{KnowledgeGaps: gaps, Diversity: diversity, MissingLinks: missing}, nil
}

func knowledgeGaps(ctx context.Context, q graphQuerier, episodeID string) ([]KnowledgeGap, error) {
	cypher := `
MATCH (e:Entity)-[m:MENTIONED_IN]->(u:MeaningfulUnit {episodeId: $episodeId})
WHERE NOT (e)<-[:SUPPORTED_BY]-(:Insight)
RETURN e.name AS name, sum(m.frequency) AS mentions
ORDER BY mentions DESC`
	rows, err := q.Query(ctx, cypher, map[string]any{"episodeId": episodeID})
	if err != nil {
		return nil, err
	}
	out := make([]KnowledgeGap, 0, len(rows))
	for _, r := range rows {
		out = append(out, KnowledgeGap{EntityName: asString(r["name"]), Mentions: asInt64(r["mentions"])})
	}
	return out, nil
}

func entityDiversity(ctx context.Context, q graphQuerier, episodeID string) ([]DiversityStat, error) {
	cypher := `
MATCH (e:Entity)-[:MENTIONED_IN]->(u:MeaningfulUnit {episodeId: $episodeId})
RETURN e.type AS type, count(DISTINCT e) AS count
ORDER BY count DESC`
	rows, err := q.Query(ctx, cypher, map[string]any{"episodeId": episodeID})
	if err != nil {
		return nil, err
	}
	out := make([]DiversityStat, 0, len(rows))
	for _, r := range rows {
		out = append(out, DiversityStat{EntityType: asString(r["type"]), Count: asInt64(r["count"])})
	}
	return out, nil
}

func missingLinks(ctx context.Context, q graphQuerier, episodeID string) ([]MissingLink, error) {
	cypher := `
MATCH (u:MeaningfulUnit {episodeId: $episodeId})<-[:MENTIONED_IN]-(a:Entity),
      (u)<-[:MENTIONED_IN]-(b:Entity)
WHERE a.id < b.id AND NOT (a)-[:RELATES_TO]-(b)
RETURN a.name AS source, b.name AS target, u.id AS unitId
LIMIT 200`
	rows, err := q.Query(ctx, cypher, map[string]any{"episodeId": episodeID})
	if err != nil {
		return nil, err
	}
	out := make([]MissingLink, 0, len(rows))
	for _, r := range rows {
		out = append(out, MissingLink{SourceName: asString(r["source"]), TargetName: asString(r["target"]), UnitID: asString(r["unitId"])})
	}
	return out, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
