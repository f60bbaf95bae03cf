package metrics

import (
	"strings"
	"testing"
)

func TestPipeline_RegistersAllNamedMetrics(t *testing.T) {
	p := New()
	p.FilesProcessed.Inc()
	p.UnitsCreated.Add(3)
	p.MemoryMB.Set(512)
	p.UnitProcessingDuration.Observe(1.5)

	out := p.reg.Render()
	for _, name := range []string{"files_processed", "units_created", "memory_mb", "unit_processing_duration_s"} {
		if !strings.Contains(out, name) {
			t.Errorf("render missing %s:\n%s", name, out)
		}
	}
}

func TestRecordAPICall_TalliesFailures(t *testing.T) {
	p := New()
	p.RecordAPICall(true)
	p.RecordAPICall(false)
	p.RecordAPICall(false)

	if p.APICalls.Value() != 3 {
		t.Errorf("APICalls = %d", p.APICalls.Value())
	}
	if p.APIFailures.Value() != 2 {
		t.Errorf("APIFailures = %d", p.APIFailures.Value())
	}
}

func TestAnomalyTracker_FiresOnceWhenRateCrossesThreshold(t *testing.T) {
	tr := NewAnomalyTracker(10, 0.20)
	var fired []Anomaly
	tr.Subscribe(func(a Anomaly) { fired = append(fired, a) })

	for i := 0; i < 10; i++ {
		tr.Record(i >= 3) // 3 failures / 10 = 30% > 20%
	}
	if len(fired) != 1 {
		t.Fatalf("expected exactly 1 fire, got %d", len(fired))
	}
	if fired[0].Rate < 0.29 || fired[0].Rate > 0.31 {
		t.Errorf("rate = %v", fired[0].Rate)
	}
}

func TestAnomalyTracker_DoesNotFireRepeatedlyWhileStaysAboveThreshold(t *testing.T) {
	tr := NewAnomalyTracker(5, 0.20)
	var fireCount int
	tr.Subscribe(func(a Anomaly) { fireCount++ })

	for round := 0; round < 3; round++ {
		for i := 0; i < 5; i++ {
			tr.Record(i != 0) // 1 failure / 5 = 20%, not > 20%, stays at threshold boundary
		}
	}
	if fireCount != 0 {
		t.Errorf("expected no fire at exactly threshold, got %d", fireCount)
	}

	for i := 0; i < 5; i++ {
		tr.Record(false) // 100% failure, well above
	}
	if fireCount != 1 {
		t.Errorf("expected exactly 1 fire after crossing, got %d", fireCount)
	}
}

func TestAnomalyTracker_DoesNotFireBeforeWindowFills(t *testing.T) {
	tr := NewAnomalyTracker(10, 0.20)
	var fireCount int
	tr.Subscribe(func(a Anomaly) { fireCount++ })

	for i := 0; i < 9; i++ {
		tr.Record(false)
	}
	if fireCount != 0 {
		t.Errorf("expected no fire before window fills, got %d", fireCount)
	}
}
