package structure

import (
	"context"
	"strings"
	"testing"

	"github.com/podknow/seeder/internal/domain"
	"github.com/podknow/seeder/internal/llm"
	"github.com/podknow/seeder/internal/vtt"
)

type fakeProvider struct {
	text string
	err  error
}

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompleteRequest) (llm.CompleteResponse, error) {
	if f.err != nil {
		return llm.CompleteResponse{}, f.err
	}
	return llm.CompleteResponse{Text: f.text}, nil
}

func makeCues(n int) []vtt.Cue {
	cues := make([]vtt.Cue, n)
	for i := range cues {
		cues[i] = vtt.Cue{Index: i, StartSec: float64(i * 5), EndSec: float64(i*5 + 5), Text: "some text"}
	}
	return cues
}

func TestStructure_ValidResponseUsedAsIs(t *testing.T) {
	p := &fakeProvider{text: `{"units":[{"startIndex":0,"endIndex":4,"unitType":"introduction","summary":"intro","completeness":"complete"},{"startIndex":5,"endIndex":9,"unitType":"topic_discussion","summary":"topic","completeness":"complete"}]}`}
	units := Structure(context.Background(), p, "model", makeCues(10), ConversationContext{})
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d: %+v", len(units), units)
	}
	if units[0].EndIndex != 4 || units[1].StartIndex != 5 {
		t.Fatalf("unexpected ranges: %+v", units)
	}
}

func TestStructure_RepairsOverlap(t *testing.T) {
	p := &fakeProvider{text: `{"units":[{"startIndex":0,"endIndex":6,"unitType":"introduction","summary":"intro","completeness":"complete"},{"startIndex":5,"endIndex":9,"unitType":"topic_discussion","summary":"topic","completeness":"complete"}]}`}
	units := Structure(context.Background(), p, "model", makeCues(10), ConversationContext{})
	if len(units) != 2 {
		t.Fatalf("expected 2 units after repair, got %d: %+v", len(units), units)
	}
	if units[0].EndIndex >= units[1].StartIndex {
		t.Fatalf("overlap not repaired: %+v", units)
	}
}

func TestStructure_FallsBackOnProviderError(t *testing.T) {
	p := &fakeProvider{err: context.DeadlineExceeded}
	units := Structure(context.Background(), p, "model", makeCues(5), ConversationContext{})
	if len(units) != 1 {
		t.Fatalf("expected single fallback unit, got %d", len(units))
	}
	if !strings.Contains(units[0].Summary, domain.FallbackSentinel) {
		t.Fatalf("expected sentinel in summary, got %q", units[0].Summary)
	}
	if units[0].Completeness != domain.CompletenessFragmented {
		t.Fatalf("expected fragmented completeness, got %v", units[0].Completeness)
	}
}

func TestStructure_FallsBackOnInvalidRanges(t *testing.T) {
	p := &fakeProvider{text: `{"units":[{"startIndex":0,"endIndex":99,"unitType":"other","summary":"bad","completeness":"complete"}]}`}
	units := Structure(context.Background(), p, "model", makeCues(5), ConversationContext{})
	if len(units) != 1 || !strings.Contains(units[0].Summary, domain.FallbackSentinel) {
		t.Fatalf("expected fallback for out-of-range unit, got %+v", units)
	}
}

func TestStructure_EmptyTranscript(t *testing.T) {
	units := Structure(context.Background(), &fakeProvider{}, "model", nil, ConversationContext{})
	if len(units) != 1 || units[0].Completeness != domain.CompletenessFragmented {
		t.Fatalf("expected single fragmented unit for empty transcript, got %+v", units)
	}
}

func TestStructure_SingleCueEpisode(t *testing.T) {
	units := Structure(context.Background(), &fakeProvider{}, "model", makeCues(1), ConversationContext{})
	if len(units) != 1 || units[0].StartIndex != 0 || units[0].EndIndex != 0 {
		t.Fatalf("expected single unit covering the one cue, got %+v", units)
	}
}
