package postprocess

import (
	"context"
	"strings"
	"testing"
)

type fakeQuerier struct {
	byFragment map[string][]map[string]any
}

func (f fakeQuerier) Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	for fragment, rows := range f.byFragment {
		if strings.Contains(cypher, fragment) {
			return rows, nil
		}
	}
	return nil, nil
}

func TestRunAnalysis_AggregatesAllThreeQueries(t *testing.T) {
	q := fakeQuerier{byFragment: map[string][]map[string]any{
		"NOT (e)<-[:SUPPORTED_BY]-(:Insight)": {
			{"name": "Ada Lovelace", "mentions": int64(5)},
		},
		"count(DISTINCT e) AS count": {
			{"type": "Person", "count": int64(3)},
		},
		"NOT (a)-[:RELATES_TO]-(b)": {
			{"source": "Ada Lovelace", "target": "Charles Babbage", "unitId": "unit-1"},
		},
	}}

	analysis, err := RunAnalysis(context.Background(), q, "ep-1")
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}
	if len(analysis.KnowledgeGaps) != 1 || analysis.KnowledgeGaps[0].EntityName != "Ada Lovelace" {
		t.Errorf("KnowledgeGaps = %+v", analysis.KnowledgeGaps)
	}
	if len(analysis.Diversity) != 1 || analysis.Diversity[0].Count != 3 {
		t.Errorf("Diversity = %+v", analysis.Diversity)
	}
	if len(analysis.MissingLinks) != 1 || analysis.MissingLinks[0].TargetName != "Charles Babbage" {
		t.Errorf("MissingLinks = %+v", analysis.MissingLinks)
	}
}

func TestRunAnalysis_EmptyGraphReturnsEmptySlices(t *testing.T) {
	q := fakeQuerier{byFragment: map[string][]map[string]any{}}
	analysis, err := RunAnalysis(context.Background(), q, "ep-1")
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}
	if len(analysis.KnowledgeGaps) != 0 || len(analysis.Diversity) != 0 || len(analysis.MissingLinks) != 0 {
		t.Errorf("expected all empty, got %+v", analysis)
	}
}
