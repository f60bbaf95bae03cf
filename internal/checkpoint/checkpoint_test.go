package checkpoint

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestBegin_FirstRunSetsRunning(t *testing.T) {
	m := newTestManager(t)
	if err := m.Begin("ep-1", StageParse, "hash-a"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	records, err := m.Status("ep-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(records) != 1 || records[0].Status != StatusRunning {
		t.Fatalf("records = %+v", records)
	}
}

func TestBegin_ReturnsAlreadyDoneWhenHashMatchesCompleteRecord(t *testing.T) {
	m := newTestManager(t)
	if err := m.Begin("ep-1", StageParse, "hash-a"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.Complete("ep-1", StageParse, "hash-a"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	err := m.Begin("ep-1", StageParse, "hash-a")
	var already *AlreadyDoneError
	if !errors.As(err, &already) {
		t.Fatalf("expected *AlreadyDoneError, got %v", err)
	}
}

func TestBegin_ReRunsWhenPayloadHashChanged(t *testing.T) {
	m := newTestManager(t)
	if err := m.Begin("ep-1", StageParse, "hash-a"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.Complete("ep-1", StageParse, "hash-a"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if err := m.Begin("ep-1", StageParse, "hash-b"); err != nil {
		t.Fatalf("Begin with changed hash should not short-circuit: %v", err)
	}
	records, _ := m.Status("ep-1")
	if records[0].Status != StatusRunning || records[0].PayloadHash != "hash-b" {
		t.Fatalf("records = %+v", records)
	}
}

func TestCompleteWithData_SurvivesThroughAlreadyDoneError(t *testing.T) {
	m := newTestManager(t)
	if err := m.Begin("ep-1", StageStructure, "hash-a"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	type cached struct {
		Units []string `json:"units"`
	}
	if err := m.CompleteWithData("ep-1", StageStructure, "hash-a", cached{Units: []string{"unit-1", "unit-2"}}); err != nil {
		t.Fatalf("CompleteWithData: %v", err)
	}

	err := m.Begin("ep-1", StageStructure, "hash-a")
	var already *AlreadyDoneError
	if !errors.As(err, &already) {
		t.Fatalf("expected *AlreadyDoneError, got %v", err)
	}
	var got cached
	if derr := json.Unmarshal(already.Record.Data, &got); derr != nil {
		t.Fatalf("decode cached data: %v", derr)
	}
	if len(got.Units) != 2 || got.Units[0] != "unit-1" {
		t.Fatalf("cached data not round-tripped: %+v", got)
	}
}

func TestFail_IncrementsAttempts(t *testing.T) {
	m := newTestManager(t)
	_ = m.Begin("ep-1", StageExtract, "h")
	_ = m.Fail("ep-1", StageExtract, "provider timeout")
	_ = m.Fail("ep-1", StageExtract, "provider timeout again")

	records, _ := m.Status("ep-1")
	if records[0].Attempts != 2 || records[0].Status != StatusFailed {
		t.Fatalf("records = %+v", records)
	}
}

func TestStatus_ReturnsStagesInPipelineOrder(t *testing.T) {
	m := newTestManager(t)
	_ = m.Begin("ep-1", StageEmbed, "h")
	_ = m.Begin("ep-1", StageParse, "h")
	_ = m.Begin("ep-1", StageCluster, "h")

	records, _ := m.Status("ep-1")
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Stage != StageParse || records[1].Stage != StageEmbed || records[2].Stage != StageCluster {
		t.Fatalf("order = %+v", records)
	}
}

func TestStatus_UnknownEpisodeReturnsEmpty(t *testing.T) {
	m := newTestManager(t)
	records, err := m.Status("never-seen")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %+v", records)
	}
}

func TestSave_WritesAtomicallyViaRename(t *testing.T) {
	m := newTestManager(t)
	if err := m.Begin("ep-1", StageParse, "h"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	path := filepath.Join(m.dir, "ep-1", "stages.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stages.json not written: %v", err)
	}
	leftovers, err := filepath.Glob(filepath.Join(m.dir, "ep-1", ".stages-*.tmp"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind instead of renamed: %v", leftovers)
	}
	if _, err := m.load("ep-1"); err != nil {
		t.Fatalf("load: %v", err)
	}
}
