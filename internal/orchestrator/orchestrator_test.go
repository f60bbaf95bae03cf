package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/podknow/seeder/internal/domain"
	"github.com/podknow/seeder/internal/extract"
	"github.com/podknow/seeder/internal/llm"
	"github.com/podknow/seeder/internal/postprocess"
	"github.com/podknow/seeder/internal/structure"
	"github.com/podknow/seeder/internal/vtt"
)

type fakeProvider struct {
	text string
	err  error
}

func (f fakeProvider) Complete(ctx context.Context, req llm.CompleteRequest) (llm.CompleteResponse, error) {
	if f.err != nil {
		return llm.CompleteResponse{}, f.err
	}
	return llm.CompleteResponse{Text: f.text, InputTokens: 10, OutputTokens: 20}, nil
}

func newTestOrchestrator(p llm.Provider) *Orchestrator {
	return New(DefaultConfig(), Models{StructureModel: "struct-model", ExtractModel: "extract-model"}, p, nil, nil, nil, nil, nil, nil)
}

func TestProcessOneUnit_ResolvesEntityIDsAcrossInsightsAndRelationships(t *testing.T) {
	resp := `{
		"entities": [{"name": "Ada Lovelace", "type": "person", "description": "pioneer", "importance": 8, "aliases": [], "frequency": 2},
		             {"name": "Charles Babbage", "type": "person", "description": "engineer", "importance": 6, "aliases": [], "frequency": 1}],
		"quotes": [{"text": "the analytical engine weaves algebraic patterns", "speaker": "Ada Lovelace", "context": "on computing", "importance": 9}],
		"insights": [{"title": "Early computing vision", "description": "d", "insightType": "conceptual", "confidence": 7, "supportingEntities": ["Ada Lovelace"]}],
		"relationships": [{"source": "Ada Lovelace", "target": "Charles Babbage", "type": "collaborated_with", "description": "d", "confidence": 8, "evidence": "e"}],
		"conversationAnalysis": {"topicSummary": "s", "completeness": "complete", "keyThemes": [], "speakerDynamics": "", "structuralNotes": ""}
	}`
	o := newTestOrchestrator(fakeProvider{text: resp})

	unit := domain.MeaningfulUnit{ID: "unit-1", EpisodeID: "ep-1", Text: "[Ada 00:00] the analytical engine weaves algebraic patterns"}
	oc, err := o.processOneUnit(context.Background(), "ep-1", unit, extract.EpisodeContext{})
	if err != nil {
		t.Fatalf("processOneUnit: %v", err)
	}
	if len(oc.persist.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(oc.persist.Entities))
	}
	if len(oc.persist.Insights) != 1 || len(oc.persist.Insights[0].SupportedByEntityIDs) != 1 {
		t.Fatalf("expected 1 insight resolved to 1 entity id, got %+v", oc.persist.Insights)
	}
	if len(oc.persist.Relationships) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(oc.persist.Relationships))
	}
	rel := oc.persist.Relationships[0]
	if rel.SourceID == "" || rel.TargetID == "" || rel.SourceID == rel.TargetID {
		t.Errorf("relationship ids not resolved distinctly: %+v", rel)
	}
}

func TestProcessOneUnit_DropsRelationshipToUnknownEntity(t *testing.T) {
	resp := `{
		"entities": [{"name": "Ada Lovelace", "type": "person", "description": "", "importance": 5, "aliases": [], "frequency": 1}],
		"quotes": [],
		"insights": [],
		"relationships": [{"source": "Ada Lovelace", "target": "Someone Unextracted", "type": "knows", "description": "", "confidence": 5, "evidence": ""}],
		"conversationAnalysis": {"topicSummary": "", "completeness": "complete", "keyThemes": [], "speakerDynamics": "", "structuralNotes": ""}
	}`
	o := newTestOrchestrator(fakeProvider{text: resp})

	unit := domain.MeaningfulUnit{ID: "unit-1", EpisodeID: "ep-1", Text: "some text"}
	oc, err := o.processOneUnit(context.Background(), "ep-1", unit, extract.EpisodeContext{})
	if err != nil {
		t.Fatalf("processOneUnit: %v", err)
	}
	if len(oc.persist.Relationships) != 0 {
		t.Errorf("expected relationship to unresolved target to be dropped, got %+v", oc.persist.Relationships)
	}
}

func TestProcessOneUnit_ProviderErrorClassifiesAsTransient(t *testing.T) {
	o := newTestOrchestrator(fakeProvider{err: context.DeadlineExceeded})
	unit := domain.MeaningfulUnit{ID: "unit-1", EpisodeID: "ep-1", Text: "some text"}
	_, err := o.processOneUnit(context.Background(), "ep-1", unit, extract.EpisodeContext{})
	if err == nil {
		t.Fatal("expected an error when the provider fails")
	}
	if domain.Classify(err) != domain.FailureTransient {
		t.Errorf("expected provider failure to classify as transient, got %v", domain.Classify(err))
	}
}

func TestProcessOneUnit_EmptyTextShortCircuitsWithoutCallingProvider(t *testing.T) {
	o := newTestOrchestrator(fakeProvider{err: context.DeadlineExceeded})
	unit := domain.MeaningfulUnit{ID: "unit-1", EpisodeID: "ep-1", Text: "   "}
	oc, err := o.processOneUnit(context.Background(), "ep-1", unit, extract.EpisodeContext{})
	if err != nil {
		t.Fatalf("expected blank unit text to short-circuit in extract.Extract without a provider error, got %v", err)
	}
	if len(oc.persist.Entities) != 0 {
		t.Errorf("expected no entities for blank unit text")
	}
}

func TestBuildUnits_RendersTextAndSpeakerDistribution(t *testing.T) {
	cues := []vtt.Cue{
		{Index: 0, StartSec: 0, EndSec: 5, Speaker: "Ada", Text: "hello"},
		{Index: 1, StartSec: 5, EndSec: 10, Speaker: "Ada", Text: "world"},
		{Index: 2, StartSec: 10, EndSec: 15, Speaker: "Charles", Text: "hi"},
	}
	specs := []structure.UnitSpec{
		{StartIndex: 0, EndIndex: 2, UnitType: domain.UnitTopicDiscussion, Summary: "s", Completeness: domain.CompletenessComplete},
	}
	units := buildUnits("ep-1", cues, specs)
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
	u := units[0]
	if u.PrimarySpeaker != "Ada" {
		t.Errorf("expected dominant speaker Ada, got %q", u.PrimarySpeaker)
	}
	if len(u.SpeakerDistribution) != 2 {
		t.Errorf("expected 2 distinct speakers, got %+v", u.SpeakerDistribution)
	}
	if u.SegmentIndices[0] != 0 || u.SegmentIndices[2] != 2 {
		t.Errorf("segment indices not preserved: %+v", u.SegmentIndices)
	}
}

func TestEpisodeTitle_FallsBackToFileBaseName(t *testing.T) {
	got := episodeTitle(vtt.Metadata{}, "/data/podcasts/show/episode-42.vtt")
	if got != "episode-42" {
		t.Errorf("got %q", got)
	}
	got = episodeTitle(vtt.Metadata{Episode: "My Episode"}, "/data/anything.vtt")
	if got != "My Episode" {
		t.Errorf("got %q", got)
	}
}

func TestHashPayload_SameBytesSameHash(t *testing.T) {
	a := hashPayload([]byte("hello"))
	b := hashPayload([]byte("hello"))
	c := hashPayload([]byte("world"))
	if a != b {
		t.Error("same bytes should hash the same")
	}
	if a == c {
		t.Error("different bytes should hash differently")
	}
}

func TestLastCueEnd_EmptyReturnsZero(t *testing.T) {
	if lastCueEnd(nil) != 0 {
		t.Error("expected 0 for no cues")
	}
	if lastCueEnd([]vtt.Cue{{EndSec: 42}}) != 42 {
		t.Error("expected last cue's end")
	}
}

func TestDefaultConfig_HasSaneTimeouts(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.UnitTimeout < time.Minute {
		t.Errorf("unit timeout too small: %v", cfg.UnitTimeout)
	}
}

func TestRawSpeakerLabels_DedupsAndCapsSamples(t *testing.T) {
	cues := []vtt.Cue{
		{Speaker: "Ada", Text: "one"},
		{Speaker: "Ada", Text: "two"},
		{Speaker: "Ada", Text: "three"},
		{Speaker: "Ada", Text: "four"},
		{Speaker: "Charles", Text: "hi"},
		{Speaker: "", Text: "unattributed"},
	}
	labels := rawSpeakerLabels(cues)
	if len(labels) != 2 {
		t.Fatalf("expected 2 distinct labels, got %d", len(labels))
	}
	if labels[0].Label != "Ada" || len(labels[0].Samples) != 3 {
		t.Errorf("expected Ada capped at 3 samples, got %+v", labels[0])
	}
	if labels[1].Label != "Charles" || len(labels[1].Samples) != 1 {
		t.Errorf("expected Charles with 1 sample, got %+v", labels[1])
	}
}

func TestDiversityLabels_FormatsTypeAndCount(t *testing.T) {
	got := diversityLabels([]postprocess.DiversityStat{{EntityType: "Person", Count: 3}, {EntityType: "Place", Count: 1}})
	if len(got) != 2 || got[0] != "Person:3" || got[1] != "Place:1" {
		t.Errorf("unexpected diversity labels: %+v", got)
	}
}
