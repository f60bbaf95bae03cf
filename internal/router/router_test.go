package router

import (
	"context"
	"testing"

	"github.com/podknow/seeder/internal/config"
	"github.com/podknow/seeder/internal/vtt"
)

func TestResolvePodcastID_PrefersNoteBlockMetadata(t *testing.T) {
	meta := vtt.Metadata{PodcastID: "from-note"}
	got := ResolvePodcastID(meta, "/data/podcasts/other-id/ep1.vtt")
	if got != "from-note" {
		t.Errorf("got %q, want %q", got, "from-note")
	}
}

func TestResolvePodcastID_FallsBackToPodcastsPathSegment(t *testing.T) {
	got := ResolvePodcastID(vtt.Metadata{}, "/data/podcasts/my-show/episodes/ep1.vtt")
	if got != "my-show" {
		t.Errorf("got %q, want %q", got, "my-show")
	}
}

func TestResolvePodcastID_FallsBackToLegacyTranscriptsSegmentNormalized(t *testing.T) {
	got := ResolvePodcastID(vtt.Metadata{}, "/data/transcripts/My Old Show/ep1.vtt")
	if got != "my_old_show" {
		t.Errorf("got %q, want %q", got, "my_old_show")
	}
}

func TestResolvePodcastID_FallsBackToUnknown(t *testing.T) {
	got := ResolvePodcastID(vtt.Metadata{}, "/data/random/ep1.vtt")
	if got != UnknownPodcastID {
		t.Errorf("got %q, want %q", got, UnknownPodcastID)
	}
}

func TestLowerSnake_CollapsesPunctuationAndSpaces(t *testing.T) {
	got := lowerSnake("Café World!! Tour")
	if got != "caf_world_tour" {
		t.Errorf("got %q", got)
	}
}

func TestStore_UnregisteredPodcastReturnsError(t *testing.T) {
	reg := &config.PodcastRegistry{Version: "1.0"}
	r := New(reg)
	_, err := r.Store(context.Background(), "ghost-show")
	if err == nil {
		t.Fatal("expected error for unregistered podcast")
	}
}
