package graphstore

import (
	"context"
	"time"

	"github.com/podknow/seeder/internal/domain"
)

func float32SliceOrEmpty(v []float32) []float32 {
	if v == nil {
		return []float32{}
	}
	return v
}

func episodeStatement(ep domain.Episode, now time.Time) statement {
	return statement{cypher: `
MERGE (e:Episode {id: $id})
ON CREATE SET e.createdAt = $now
SET e.podcastId = $podcastId,
    e.title = $title,
    e.publishedDate = $publishedDate,
    e.youtubeUrl = $youtubeUrl,
    e.vttPath = $vttPath,
    e.durationSeconds = $durationSeconds,
    e.processingStatus = $processingStatus,
    e.updatedAt = $now`,
		params: map[string]any{
			"id":               ep.ID,
			"podcastId":        ep.PodcastID,
			"title":            ep.Title,
			"publishedDate":    ep.PublishedDate.Format(time.RFC3339),
			"youtubeUrl":       ep.YoutubeURL,
			"vttPath":          ep.VTTPath,
			"durationSeconds":  ep.DurationSeconds,
			"processingStatus": string(ep.ProcessingStatus),
			"now":              now.Format(time.RFC3339),
		},
	}
}

// UpsertEpisode merges an Episode by id, setting mutable fields without
// overwriting createdAt on an existing node.
func (s *Store) UpsertEpisode(ctx context.Context, ep domain.Episode) error {
	st := episodeStatement(ep, time.Now().UTC())
	return s.run(ctx, st.cypher, st.params)
}

func unitStatement(unit domain.MeaningfulUnit) statement {
	return statement{cypher: `
MATCH (ep:Episode {id: $episodeId})
MERGE (u:MeaningfulUnit {id: $id})
SET u.episodeId = $episodeId,
    u.startSec = $startSec,
    u.endSec = $endSec,
    u.text = $text,
    u.unitType = $unitType,
    u.summary = $summary,
    u.themes = $themes,
    u.primarySpeaker = $primarySpeaker,
    u.completeness = $completeness,
    u.embedding = $embedding
MERGE (u)-[:PART_OF]->(ep)`,
		params: map[string]any{
			"id":             unit.ID,
			"episodeId":      unit.EpisodeID,
			"startSec":       unit.StartSec,
			"endSec":         unit.EndSec,
			"text":           unit.Text,
			"unitType":       string(unit.UnitType),
			"summary":        unit.Summary,
			"themes":         unit.Themes,
			"primarySpeaker": unit.PrimarySpeaker,
			"completeness":   string(unit.Completeness),
			"embedding":      float32SliceOrEmpty(unit.Embedding),
		},
	}
}

// UpsertUnit merges a MeaningfulUnit by id and its :PART_OF edge to its
// episode, both idempotently.
func (s *Store) UpsertUnit(ctx context.Context, unit domain.MeaningfulUnit) error {
	st := unitStatement(unit)
	return s.run(ctx, st.cypher, st.params)
}

func entityStatement(e domain.Entity, unitID string, mention domain.EntityMention) statement {
	return statement{cypher: `
MERGE (e:Entity {id: $id})
ON CREATE SET e.name = $name, e.canonicalName = $canonicalName, e.type = $type,
              e.description = $description, e.importance = $importance,
              e.firstSeenUnitId = $firstSeenUnitId, e.aliases = $aliases
ON MATCH SET e.importance = CASE WHEN $importance > e.importance THEN $importance ELSE e.importance END,
             e.aliases = reduce(acc = coalesce(e.aliases, []), alias IN $aliases |
                 CASE WHEN alias IS NULL OR alias IN acc THEN acc ELSE acc + alias END),
             e.description = coalesce(e.description, $description)
WITH e
MATCH (u:MeaningfulUnit {id: $unitId})
MERGE (e)-[m:MENTIONED_IN]->(u)
SET m.context = $mentionContext, m.frequency = $mentionFrequency, m.importance = $mentionImportance`,
		params: map[string]any{
			"id":                 e.ID,
			"name":               e.Name,
			"canonicalName":      e.CanonicalName,
			"type":               e.Type,
			"description":        e.Description,
			"importance":         e.Importance,
			"firstSeenUnitId":    e.FirstSeenUnitID,
			"aliases":            e.Aliases,
			"unitId":             unitID,
			"mentionContext":     mention.Context,
			"mentionFrequency":   mention.Frequency,
			"mentionImportance":  mention.Importance,
		},
	}
}

// UpsertEntity merges an Entity by id. On an existing node it unions
// aliases and takes the max of importance across old and new, then merges
// a :MENTIONED_IN edge to unit carrying the mention's context/frequency/
// importance.
func (s *Store) UpsertEntity(ctx context.Context, e domain.Entity, unitID string, mention domain.EntityMention) error {
	st := entityStatement(e, unitID, mention)
	return s.run(ctx, st.cypher, st.params)
}

func quoteStatement(q domain.Quote, unitID string) statement {
	return statement{cypher: `
MATCH (u:MeaningfulUnit {id: $unitId})
MERGE (q:Quote {id: $id})
SET q.text = $text, q.speaker = $speaker, q.context = $context,
    q.isMemorable = $isMemorable, q.theme = $theme
MERGE (q)-[:EXTRACTED_FROM]->(u)`,
		params: map[string]any{
			"id":          q.ID,
			"text":        q.Text,
			"speaker":     q.Speaker,
			"context":     q.Context,
			"isMemorable": q.IsMemorable,
			"theme":       q.Theme,
			"unitId":      unitID,
		},
	}
}

// UpsertQuote merges a Quote by id and its :EXTRACTED_FROM edge to unit.
func (s *Store) UpsertQuote(ctx context.Context, q domain.Quote, unitID string) error {
	st := quoteStatement(q, unitID)
	return s.run(ctx, st.cypher, st.params)
}

func insightStatement(in domain.Insight, unitID string, supportedByEntityIDs []string) statement {
	return statement{cypher: `
MATCH (u:MeaningfulUnit {id: $unitId})
MERGE (i:Insight {id: $id})
SET i.title = $title, i.description = $description,
    i.insightType = $insightType, i.confidence = $confidence
MERGE (i)-[:EXTRACTED_FROM]->(u)
WITH i
UNWIND $entityIds AS entityId
MATCH (e:Entity {id: entityId})
MERGE (i)-[:SUPPORTED_BY]->(e)`,
		params: map[string]any{
			"id":          in.ID,
			"title":       in.Title,
			"description": in.Description,
			"insightType": string(in.InsightType),
			"confidence":  in.Confidence,
			"unitId":      unitID,
			"entityIds":   supportedByEntityIDs,
		},
	}
}

// UpsertInsight merges an Insight by id, its :EXTRACTED_FROM edge to unit,
// and :SUPPORTED_BY edges to each entity id in supportedByEntityIDs
// (resolved from entity names by the caller before this is invoked).
func (s *Store) UpsertInsight(ctx context.Context, in domain.Insight, unitID string, supportedByEntityIDs []string) error {
	st := insightStatement(in, unitID, supportedByEntityIDs)
	return s.run(ctx, st.cypher, st.params)
}

func relationshipStatement(rel domain.EntityRelationship, sourceEntityID, targetEntityID string) statement {
	return statement{cypher: `
MATCH (src:Entity {id: $sourceId}), (dst:Entity {id: $targetId})
MERGE (src)-[r:RELATES_TO {type: $type}]->(dst)
ON CREATE SET r.firstSeenUnitId = $sourceUnitId
SET r.description = $description, r.confidence = $confidence, r.evidence = $evidence`,
		params: map[string]any{
			"sourceId":     sourceEntityID,
			"targetId":     targetEntityID,
			"type":         rel.Type,
			"description":  rel.Description,
			"confidence":   rel.Confidence,
			"evidence":     rel.Evidence,
			"sourceUnitId": rel.SourceUnitID,
		},
	}
}

// UpsertRelationship merges a :RELATES_TO edge keyed on (src, dst, type).
// Updating props never clobbers the existing firstSeenUnitId, per the
// "preserve the oldest" rule.
func (s *Store) UpsertRelationship(ctx context.Context, rel domain.EntityRelationship, sourceEntityID, targetEntityID string) error {
	st := relationshipStatement(rel, sourceEntityID, targetEntityID)
	return s.run(ctx, st.cypher, st.params)
}

// UpsertEpisodeAnalysis writes the Post-Processing analysis summary back
// onto the Episode node: counts rather than the full row sets, since
// KnowledgeGap/MissingLink are structs Neo4j properties can't hold
// directly and the full detail is re-derivable from RunAnalysis's own
// queries whenever it's needed again.
func (s *Store) UpsertEpisodeAnalysis(ctx context.Context, episodeID string, knowledgeGapCount, missingLinkCount int, entityTypeDiversity []string) error {
	cypher := `
MATCH (e:Episode {id: $episodeId})
SET e.knowledgeGapCount = $gapCount,
    e.missingLinkCount = $missingLinkCount,
    e.entityTypeDiversity = $diversity,
    e.analyzedAt = $now`
	return s.run(ctx, cypher, map[string]any{
		"episodeId":        episodeID,
		"gapCount":         knowledgeGapCount,
		"missingLinkCount": missingLinkCount,
		"diversity":        entityTypeDiversity,
		"now":              time.Now().UTC().Format(time.RFC3339),
	})
}

// AssignCluster deletes any previous :IN_CLUSTER edge from unit and creates
// a new one to cluster, so a unit belongs to exactly one cluster.
func (s *Store) AssignCluster(ctx context.Context, unitID, clusterID string) error {
	cypher := `
MATCH (u:MeaningfulUnit {id: $unitId})
OPTIONAL MATCH (u)-[old:IN_CLUSTER]->()
DELETE old
WITH u
MATCH (c:Cluster {id: $clusterId})
MERGE (u)-[:IN_CLUSTER]->(c)`
	return s.run(ctx, cypher, map[string]any{"unitId": unitID, "clusterId": clusterID})
}

// UpsertCluster merges a Cluster node by id.
func (s *Store) UpsertCluster(ctx context.Context, c domain.Cluster) error {
	cypher := `
MERGE (c:Cluster {id: $id})
SET c.label = $label, c.memberCount = $memberCount, c.centroid = $centroid`
	return s.run(ctx, cypher, map[string]any{
		"id":          c.ID,
		"label":       c.Label,
		"memberCount": c.MemberCount,
		"centroid":    float32SliceOrEmpty(c.Centroid),
	})
}

// ResolvedEntity pairs an Entity with the mention edge payload for the
// unit currently being persisted.
type ResolvedEntity struct {
	Entity  domain.Entity
	Mention domain.EntityMention
}

// ResolvedInsight pairs an Insight with the entity ids its SupportedBy
// names were resolved to.
type ResolvedInsight struct {
	Insight              domain.Insight
	SupportedByEntityIDs []string
}

// ResolvedRelationship pairs an EntityRelationship with the entity ids its
// name-tuple was resolved to.
type ResolvedRelationship struct {
	Relationship domain.EntityRelationship
	SourceID     string
	TargetID     string
}

// UnitPersistence bundles everything one unit's Combined Extraction result
// needs to reach the graph in a single write transaction.
type UnitPersistence struct {
	Unit          domain.MeaningfulUnit
	Entities      []ResolvedEntity
	Quotes        []domain.Quote
	Insights      []ResolvedInsight
	Relationships []ResolvedRelationship
}

// PersistUnit writes a unit's node plus every entity/quote/insight/
// relationship it produced in one transaction, so a mid-batch failure
// never leaves a unit half-persisted. This is the batching unit the
// orchestrator uses to stay under the node/edge-per-transaction guidance.
func (s *Store) PersistUnit(ctx context.Context, p UnitPersistence) error {
	statements := make([]statement, 0, 1+len(p.Entities)+len(p.Quotes)+len(p.Insights)+len(p.Relationships))
	statements = append(statements, unitStatement(p.Unit))
	for _, re := range p.Entities {
		statements = append(statements, entityStatement(re.Entity, p.Unit.ID, re.Mention))
	}
	for _, q := range p.Quotes {
		statements = append(statements, quoteStatement(q, p.Unit.ID))
	}
	for _, ri := range p.Insights {
		statements = append(statements, insightStatement(ri.Insight, p.Unit.ID, ri.SupportedByEntityIDs))
	}
	for _, rr := range p.Relationships {
		statements = append(statements, relationshipStatement(rr.Relationship, rr.SourceID, rr.TargetID))
	}
	return s.runBatch(ctx, statements)
}
