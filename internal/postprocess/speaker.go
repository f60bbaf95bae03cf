// Package postprocess implements Post-Processing (C9): speaker label
// disambiguation, nearest-centroid cluster assignment, and graph analysis
// queries, all run once per episode after persist.
package postprocess

import (
	"context"
	"fmt"
	"strings"

	"github.com/podknow/seeder/internal/domain"
	"github.com/podknow/seeder/internal/llm"
)

const speakerSystemPrompt = `You consolidate speaker labels within a single podcast episode's transcript.

Raw transcripts often give the same person multiple labels ("Speaker 1", "John", "JOHN SMITH", "Host"). Given the list of distinct raw labels seen across this episode's units, along with short text samples for each, return a mapping from every raw label to one canonical display name. Labels that are clearly the same person must map to the same canonical name. Never invent a canonical name for a label with no evidence; in that case map it to itself.

OUTPUT FORMAT: Return ONLY valid JSON: {"mapping": {"raw label": "canonical name", ...}}`

type speakerMappingResponse struct {
	Mapping map[string]string `json:"mapping"`
}

// RawLabelSample is one distinct speaker label observed in an episode, with
// a few sample lines to give the model enough context to disambiguate.
type RawLabelSample struct {
	Label   string
	Samples []string
}

// DisambiguateSpeakers issues one LLM call restricted to this episode's own
// labels (no cross-episode state, so the same label in a different episode
// never shares a decision) and returns a raw-label -> canonical-name map.
// On any failure it falls back to the identity mapping, since an
// unconsolidated but intact labeling is safer than blocking persistence.
func DisambiguateSpeakers(ctx context.Context, provider llm.Provider, model string, labels []RawLabelSample) (map[string]string, error) {
	identity := func() map[string]string {
		m := make(map[string]string, len(labels))
		for _, l := range labels {
			m[l.Label] = l.Label
		}
		return m
	}

	if len(labels) == 0 {
		return map[string]string{}, nil
	}
	if len(labels) == 1 {
		return identity(), nil
	}

	var resp speakerMappingResponse
	_, err := llm.CallJSON(ctx, provider, buildSpeakerPrompt(labels), llm.CallJSONOptions{
		Model:        model,
		SystemPrompt: speakerSystemPrompt,
		Temperature:  0,
		MaxTokens:    1024,
	}, &resp)
	if err != nil || len(resp.Mapping) == 0 {
		return identity(), nil
	}

	out := identity()
	for _, l := range labels {
		if canonical, ok := resp.Mapping[l.Label]; ok && strings.TrimSpace(canonical) != "" {
			out[l.Label] = canonical
		}
	}
	return out, nil
}

func buildSpeakerPrompt(labels []RawLabelSample) string {
	var b strings.Builder
	b.WriteString("RAW LABELS:\n")
	for _, l := range labels {
		fmt.Fprintf(&b, "- %q, samples: %s\n", l.Label, strings.Join(l.Samples, " | "))
	}
	return b.String()
}

// ApplySpeakerMapping rewrites a unit's PrimarySpeaker and
// SpeakerDistribution keys through mapping, merging distribution weights
// for labels that collapse onto the same canonical name.
func ApplySpeakerMapping(unit domain.MeaningfulUnit, mapping map[string]string) domain.MeaningfulUnit {
	if unit.PrimarySpeaker != "" {
		if canonical, ok := mapping[unit.PrimarySpeaker]; ok {
			unit.PrimarySpeaker = canonical
		}
	}
	if len(unit.SpeakerDistribution) == 0 {
		return unit
	}

	merged := make(map[string]float64, len(unit.SpeakerDistribution))
	for raw, pct := range unit.SpeakerDistribution {
		canonical := raw
		if c, ok := mapping[raw]; ok {
			canonical = c
		}
		merged[canonical] += pct
	}
	unit.SpeakerDistribution = merged
	return unit
}
