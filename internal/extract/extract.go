// Package extract implements the Combined Extractor (C3): a single LLM
// call per MeaningfulUnit that returns entities, quotes, insights,
// relationships, and a conversation analysis together, replacing four
// separate calls per unit.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/podknow/seeder/internal/domain"
	"github.com/podknow/seeder/internal/llm"
)

// RawEntity is the extractor's entity shape before canonical type
// normalization, which the graph store applies at persist time.
type RawEntity struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Importance  float64  `json:"importance"`
	Aliases     []string `json:"aliases"`
	Frequency   int      `json:"frequency"`
}

// RawQuote mirrors domain.Quote before length filtering.
type RawQuote struct {
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker"`
	Context    string  `json:"context"`
	Importance float64 `json:"importance"`
}

// RawInsight mirrors domain.Insight before entity name resolution.
type RawInsight struct {
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	InsightType      domain.InsightType  `json:"insightType"`
	Confidence       float64             `json:"confidence"`
	SupportingEntities []string          `json:"supportingEntities"`
}

// RawRelationship mirrors domain.EntityRelationship in entity-name form.
type RawRelationship struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Evidence    string  `json:"evidence"`
}

// ConversationAnalysis mirrors domain.ConversationAnalysis.
type ConversationAnalysis struct {
	TopicSummary    string   `json:"topicSummary"`
	Completeness    string   `json:"completeness"`
	KeyThemes       []string `json:"keyThemes"`
	SpeakerDynamics string   `json:"speakerDynamics"`
	StructuralNotes string   `json:"structuralNotes"`
}

// Result is the Combined Extractor's public output shape.
type Result struct {
	Entities             []RawEntity          `json:"entities"`
	Quotes               []RawQuote           `json:"quotes"`
	Insights             []RawInsight         `json:"insights"`
	Relationships        []RawRelationship    `json:"relationships"`
	ConversationAnalysis ConversationAnalysis `json:"conversationAnalysis"`

	UnitID         string
	Timestamp      time.Time
	TokenCount     int64
	ProcessingTime time.Duration
}

// Error signals that extraction failed after a repair retry; the caller
// (orchestrator) decides policy, default skip-unit-continue-episode.
type Error struct {
	UnitID string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("extract: unit %s: %s", e.UnitID, e.Reason) }

const minQuoteLength = 20

const systemPrompt = `You extract structured knowledge from a single segment of a podcast transcript.

Extract:
- entities: people, organizations, products, concepts, places, or events mentioned, with a free-form "type" label, a one-sentence description, importance 1-10, and any aliases used for the same entity.
- quotes: verbatim, notable statements attributed to a speaker, each with surrounding context and importance 1-10.
- insights: a distilled claim or conclusion the segment supports, tagged with an insightType of actionable, conceptual, experiential, predictive, or analytical, a confidence 1-10, and the entity names that support it.
- relationships: directed connections between two named entities (source, target, a short relationship type, a description, confidence 1-10, and the evidence text).
- conversationAnalysis: topicSummary, completeness (complete|incomplete|fragmented), keyThemes, speakerDynamics, structuralNotes.

OUTPUT FORMAT:
Return ONLY valid JSON matching this exact structure (no markdown fences, no extra text):
{
  "entities": [{"name": "...", "type": "...", "description": "...", "importance": 7, "aliases": [], "frequency": 1}],
  "quotes": [{"text": "...", "speaker": "...", "context": "...", "importance": 6}],
  "insights": [{"title": "...", "description": "...", "insightType": "conceptual", "confidence": 8, "supportingEntities": ["..."]}],
  "relationships": [{"source": "...", "target": "...", "type": "...", "description": "...", "confidence": 7, "evidence": "..."}],
  "conversationAnalysis": {"topicSummary": "...", "completeness": "complete", "keyThemes": [], "speakerDynamics": "...", "structuralNotes": "..."}
}

IMPORTANT: Output raw JSON only. No markdown code fences. No text before or after the JSON.`

// EpisodeContext carries episode-level framing for the prompt header.
type EpisodeContext struct {
	PodcastName string
	EpisodeName string
}

// UnitInput is the slice of a MeaningfulUnit the extractor needs: its id
// and its rendered text with inline speaker+time markers.
type UnitInput struct {
	UnitID string
	Text   string // pre-rendered "[speaker MM:SS] text" lines
}

// Extract issues one LLM call for unit and returns the merged, clamped,
// filtered result. Empty unit text short-circuits without calling the LLM.
func Extract(ctx context.Context, provider llm.Provider, model string, unit UnitInput, episodeCtx EpisodeContext) (Result, error) {
	start := time.Now()
	if strings.TrimSpace(unit.Text) == "" {
		return Result{UnitID: unit.UnitID, Timestamp: start}, nil
	}

	userPrompt := buildUserPrompt(unit, episodeCtx)

	var resp Result
	callResp, err := llm.CallJSON(ctx, provider, userPrompt, llm.CallJSONOptions{
		Model:        model,
		SystemPrompt: systemPrompt,
		Temperature:  0.2,
		MaxTokens:    4096,
	}, &resp)
	if err != nil {
		return Result{}, &Error{UnitID: unit.UnitID, Reason: err.Error()}
	}

	resp.UnitID = unit.UnitID
	resp.Timestamp = start
	resp.TokenCount = callResp.InputTokens + callResp.OutputTokens
	resp.ProcessingTime = time.Since(start)

	resp.Entities = mergeAndClampEntities(resp.Entities)
	resp.Quotes = filterShortQuotes(resp.Quotes)
	resp.Insights = clampInsights(resp.Insights)
	resp.Relationships = clampRelationships(resp.Relationships)

	return resp, nil
}

func buildUserPrompt(unit UnitInput, episodeCtx EpisodeContext) string {
	var b strings.Builder
	if episodeCtx.PodcastName != "" {
		fmt.Fprintf(&b, "PODCAST: %s\n", episodeCtx.PodcastName)
	}
	if episodeCtx.EpisodeName != "" {
		fmt.Fprintf(&b, "EPISODE: %s\n", episodeCtx.EpisodeName)
	}
	b.WriteString("\nSEGMENT:\n")
	b.WriteString(unit.Text)
	return b.String()
}

func clamp(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

func filterShortQuotes(quotes []RawQuote) []RawQuote {
	out := quotes[:0:0]
	for _, q := range quotes {
		if len(strings.TrimSpace(q.Text)) < minQuoteLength {
			continue
		}
		q.Importance = clamp(q.Importance)
		out = append(out, q)
	}
	return out
}

func clampInsights(insights []RawInsight) []RawInsight {
	for i := range insights {
		insights[i].Confidence = clamp(insights[i].Confidence)
	}
	return insights
}

func clampRelationships(rels []RawRelationship) []RawRelationship {
	for i := range rels {
		rels[i].Confidence = clamp(rels[i].Confidence)
	}
	return rels
}

// mergeAndClampEntities merges duplicates within the unit keyed by
// (canonicalName, type), summing frequency, and clamps importance.
func mergeAndClampEntities(entities []RawEntity) []RawEntity {
	type key struct{ name, typ string }
	index := make(map[key]int, len(entities))
	var out []RawEntity

	for _, e := range entities {
		e.Importance = clamp(e.Importance)
		if e.Frequency <= 0 {
			e.Frequency = 1
		}
		k := key{name: domain.NormalizeName(e.Name), typ: strings.ToLower(e.Type)}
		if idx, ok := index[k]; ok {
			out[idx].Frequency += e.Frequency
			if e.Importance > out[idx].Importance {
				out[idx].Importance = e.Importance
			}
			out[idx].Aliases = mergeAliases(out[idx].Aliases, e.Aliases)
			continue
		}
		index[k] = len(out)
		out = append(out, e)
	}
	return out
}

func mergeAliases(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
