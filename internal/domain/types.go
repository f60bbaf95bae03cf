// Package domain defines the core data model for the knowledge-graph
// ingestion pipeline: podcasts, episodes, cues, meaningful units and the
// entities/quotes/insights/relationships extracted from them.
package domain

import "time"

// Podcast is an immutable-at-runtime configuration entity. One Podcast owns
// many Episodes and its graph data is isolated to exactly one logical
// database instance.
type Podcast struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Metadata PodcastMetadata  `json:"metadata"`
	Database DatabaseRef      `json:"-"`
}

// PodcastMetadata carries descriptive, non-identifying fields.
type PodcastMetadata struct {
	Host     string   `json:"host,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// DatabaseRef names the logical graph database backing a podcast.
type DatabaseRef struct {
	URI          string `json:"uri"`
	DatabaseName string `json:"database_name,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
}

// ProcessingStatus tracks where an Episode sits in the pipeline.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusParsed     ProcessingStatus = "parsed"
	StatusStructured ProcessingStatus = "structured"
	StatusExtracted  ProcessingStatus = "extracted"
	StatusEmbedded   ProcessingStatus = "embedded"
	StatusClustered  ProcessingStatus = "clustered"
	StatusComplete   ProcessingStatus = "complete"
	StatusFailed     ProcessingStatus = "failed"
)

// Episode is created on first sight of a VTT file and exists at most once
// per podcast database (unique constraint on ID).
type Episode struct {
	ID              string           `json:"id"`
	PodcastID       string           `json:"podcast_id"`
	Title           string           `json:"title"`
	PublishedDate   time.Time        `json:"published_date"`
	YoutubeURL      string           `json:"youtube_url,omitempty"`
	VTTPath         string           `json:"vtt_path"`
	DurationSeconds float64          `json:"duration_seconds"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Cue is a single timed WebVTT caption. Transient: it lives only in memory
// during processing and is never persisted on its own.
type Cue struct {
	Index    int     `json:"index"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
	Speaker  string  `json:"speaker,omitempty"`
}

// UnitType is the closed vocabulary of MeaningfulUnit qualitative labels.
type UnitType string

const (
	UnitIntroduction   UnitType = "introduction"
	UnitTopicDiscussion UnitType = "topic_discussion"
	UnitStory          UnitType = "story"
	UnitQAExchange     UnitType = "qa_exchange"
	UnitTangent        UnitType = "tangent"
	UnitConclusion     UnitType = "conclusion"
	UnitOther          UnitType = "other"
)

// Completeness describes whether a unit captures a full conversational
// object or was cut off.
type Completeness string

const (
	CompletenessComplete    Completeness = "complete"
	CompletenessIncomplete  Completeness = "incomplete"
	CompletenessFragmented  Completeness = "fragmented"
)

// FallbackSentinel is embedded in the summary of a unit produced by the
// Conversation Structurer's deterministic fallback, so downstream metrics
// can count fallback occurrences.
const FallbackSentinel = "STRUCTURER_FALLBACK: single unit covering entire transcript"

// MeaningfulUnit is a coherent multi-cue span of discourse.
type MeaningfulUnit struct {
	ID                  string             `json:"id"`
	EpisodeID           string             `json:"episode_id"`
	StartSec            float64            `json:"start_sec"`
	EndSec              float64            `json:"end_sec"`
	Text                string             `json:"text"`
	UnitType            UnitType           `json:"unit_type"`
	Summary             string             `json:"summary"`
	Themes              []string           `json:"themes"`
	PrimarySpeaker       string             `json:"primary_speaker,omitempty"`
	SpeakerDistribution map[string]float64 `json:"speaker_distribution,omitempty"`
	Completeness        Completeness       `json:"completeness"`
	SegmentIndices      []int              `json:"segment_indices"`
	Embedding           []float32          `json:"embedding,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
}

// Entity is merged across units via CanonicalName+Type within a podcast DB.
type Entity struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	CanonicalName   string   `json:"canonical_name"`
	Type            string   `json:"type"`
	Description     string   `json:"description,omitempty"`
	Importance      int      `json:"importance"`
	FirstSeenUnitID string   `json:"first_seen_unit_id"`
	Aliases         []string `json:"aliases,omitempty"`
}

// EntityMention is the MENTIONED_IN edge payload from Entity to MeaningfulUnit.
type EntityMention struct {
	Context    string `json:"context,omitempty"`
	Frequency  int    `json:"frequency"`
	Importance int    `json:"importance"`
}

// Quote is extracted verbatim speech attributed to a speaker.
type Quote struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Speaker     string `json:"speaker,omitempty"`
	Context     string `json:"context,omitempty"`
	IsMemorable bool   `json:"is_memorable"`
	Theme       string `json:"theme,omitempty"`
}

// InsightType is the closed vocabulary for Insight.InsightType.
type InsightType string

const (
	InsightActionable   InsightType = "actionable"
	InsightConceptual   InsightType = "conceptual"
	InsightExperiential InsightType = "experiential"
	InsightPredictive   InsightType = "predictive"
	InsightAnalytical   InsightType = "analytical"
)

// Insight is a higher-order observation extracted from a unit, optionally
// supported by one or more entities.
type Insight struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	InsightType InsightType `json:"insight_type"`
	Confidence  int         `json:"confidence"`
	SupportedBy []string    `json:"supported_by,omitempty"` // entity names, resolved to ids at persist time
}

// EntityRelationship is the RELATES_TO edge between two entities. Type is
// an open vocabulary. Kept as a name-tuple (not entity pointers) until
// persistence resolves names to ids, avoiding in-memory reference cycles.
type EntityRelationship struct {
	SourceEntityName string `json:"source_entity_name"`
	TargetEntityName string `json:"target_entity_name"`
	Type             string `json:"type"`
	Description      string `json:"description,omitempty"`
	Confidence       int    `json:"confidence"`
	Evidence         string `json:"evidence,omitempty"`
	SourceUnitID     string `json:"source_unit_id"`
}

// Cluster groups semantically similar units around a centroid.
type Cluster struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	MemberCount int       `json:"member_count"`
	Centroid    []float32 `json:"centroid"`
}

// ConversationAnalysis is the per-unit analysis payload returned alongside
// entities/quotes/insights/relationships by the Combined Extractor.
type ConversationAnalysis struct {
	TopicSummary    string   `json:"topic_summary"`
	Completeness    string   `json:"completeness"`
	KeyThemes       []string `json:"key_themes"`
	SpeakerDynamics string   `json:"speaker_dynamics,omitempty"`
	StructuralNotes string   `json:"structural_notes,omitempty"`
}
