// Package structure implements the Conversation Structurer (C2): one LLM
// call that groups a flat cue sequence into a small number of
// MeaningfulUnits, with validation, overlap repair, and a deterministic
// fallback when the call or its output can't be trusted.
package structure

import (
	"context"
	"fmt"
	"strings"

	"github.com/podknow/seeder/internal/domain"
	"github.com/podknow/seeder/internal/llm"
	"github.com/podknow/seeder/internal/vtt"
)

// UnitSpec is the structurer's output shape before it is turned into fully
// populated domain.MeaningfulUnit values by the orchestrator (which knows
// episode id and cue timings).
type UnitSpec struct {
	StartIndex   int                  `json:"startIndex"`
	EndIndex     int                  `json:"endIndex"`
	UnitType     domain.UnitType      `json:"unitType"`
	Summary      string               `json:"summary"`
	Themes       []string             `json:"themes"`
	Completeness domain.Completeness  `json:"completeness"`
}

type structureResponse struct {
	Units []UnitSpec `json:"units"`
	Themes []string  `json:"themes"`
	Boundaries []int  `json:"boundaries"`
	Flow struct {
		Arc       string `json:"arc"`
		Pacing    string `json:"pacing"`
		Coherence string `json:"coherence"`
	} `json:"flow"`
	Insights struct {
		Fragmentation string `json:"fragmentation"`
		CoherenceObs  string `json:"coherence_obs"`
	} `json:"insights"`
	TotalSegments int `json:"totalSegments"`
}

const systemPrompt = `You analyze podcast transcripts and identify their conversational structure.

A MeaningfulUnit is a coherent span of discourse: a complete Q&A exchange, a story, a topic segment, an introduction, a sponsor break. Arbitrary caption boundaries are not meaningful units; a unit groups many consecutive cues into one semantically complete object.

Every cue must belong to exactly one unit. Units must not overlap: unit[i].endIndex must be less than unit[i+1].startIndex.

OUTPUT FORMAT:
Return ONLY valid JSON matching this exact structure (no markdown fences, no extra text):
{
  "units": [
    {"startIndex": 0, "endIndex": 12, "unitType": "introduction", "summary": "...", "themes": ["..."], "completeness": "complete"}
  ],
  "themes": ["..."],
  "boundaries": [12],
  "flow": {"arc": "...", "pacing": "...", "coherence": "..."},
  "insights": {"fragmentation": "...", "coherence_obs": "..."},
  "totalSegments": 1
}

unitType must be one of: introduction, topic_discussion, story, qa_exchange, tangent, conclusion, other.
completeness must be one of: complete, incomplete, fragmented.

IMPORTANT: Output raw JSON only. No markdown code fences. No text before or after the JSON.`

// ConversationContext carries episode-level framing the prompt can use.
type ConversationContext struct {
	PodcastName string
	EpisodeName string
}

// Structure issues one LLM call to segment cues into MeaningfulUnits. It
// never returns an error: any failure (call error, invalid structure that
// can't be repaired) falls back to a single fragmented unit covering the
// whole transcript, per the contract's deterministic-fallback rule.
func Structure(ctx context.Context, provider llm.Provider, model string, cues []vtt.Cue, episodeCtx ConversationContext) []UnitSpec {
	if len(cues) == 0 {
		return []UnitSpec{{
			StartIndex: 0, EndIndex: 0,
			UnitType: domain.UnitOther, Summary: domain.FallbackSentinel,
			Completeness: domain.CompletenessFragmented,
		}}
	}
	if len(cues) == 1 {
		return []UnitSpec{{
			StartIndex: 0, EndIndex: 0,
			UnitType: domain.UnitOther, Summary: "single-cue episode",
			Completeness: domain.CompletenessComplete,
		}}
	}

	userPrompt := buildUserPrompt(cues, episodeCtx)

	var resp structureResponse
	_, err := llm.CallJSON(ctx, provider, userPrompt, llm.CallJSONOptions{
		Model:        model,
		SystemPrompt: systemPrompt,
		Temperature:  0.2,
		MaxTokens:    4096,
	}, &resp)
	if err != nil {
		return fallback(len(cues))
	}

	units, ok := validateAndRepair(resp.Units, len(cues))
	if !ok {
		return fallback(len(cues))
	}
	return units
}

func fallback(cueCount int) []UnitSpec {
	return []UnitSpec{{
		StartIndex:   0,
		EndIndex:     cueCount - 1,
		UnitType:     domain.UnitOther,
		Summary:      domain.FallbackSentinel,
		Completeness: domain.CompletenessFragmented,
	}}
}

func buildUserPrompt(cues []vtt.Cue, episodeCtx ConversationContext) string {
	var b strings.Builder
	if episodeCtx.PodcastName != "" {
		fmt.Fprintf(&b, "PODCAST: %s\n", episodeCtx.PodcastName)
	}
	if episodeCtx.EpisodeName != "" {
		fmt.Fprintf(&b, "EPISODE: %s\n", episodeCtx.EpisodeName)
	}
	b.WriteString("\nTRANSCRIPT:\n")
	for _, c := range cues {
		speaker := c.Speaker
		if speaker == "" {
			speaker = "unknown"
		}
		fmt.Fprintf(&b, "[%d] [%s %s] %s\n", c.Index, speaker, formatMMSS(c.StartSec), c.Text)
	}
	return b.String()
}

func formatMMSS(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
