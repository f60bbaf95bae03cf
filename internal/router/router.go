// Package router implements the Multi-Podcast Router (C10): it resolves
// which podcast a VTT file belongs to and maintains one graph store
// connection per podcast, so a write can never cross podcast boundaries.
package router

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/podknow/seeder/internal/config"
	"github.com/podknow/seeder/internal/graphstore"
	"github.com/podknow/seeder/internal/vtt"
)

// UnknownPodcastID is the terminal fallback when no resolution rule
// matches, mirroring LegacyRegistry's single fallback entry.
const UnknownPodcastID = "unknown_podcast"

var (
	podcastSegmentRe = regexp.MustCompile(`[/\\]podcasts[/\\]([^/\\]+)[/\\]`)
	legacySegmentRe  = regexp.MustCompile(`[/\\]transcripts[/\\]([^/\\]+)[/\\]`)
	snakeNonAlnumRe  = regexp.MustCompile(`[^a-z0-9]+`)
)

// ResolvePodcastID applies the four-step resolution order: NOTE-block
// podcast_id, then a /podcasts/<id>/ path segment, then a legacy
// /transcripts/<name>/ segment normalized to lower_snake_case, then
// UnknownPodcastID.
func ResolvePodcastID(meta vtt.Metadata, vttPath string) string {
	if meta.PodcastID != "" {
		return meta.PodcastID
	}

	cleaned := filepath.ToSlash(vttPath)
	if m := podcastSegmentRe.FindStringSubmatch(cleaned + "/"); m != nil {
		return m[1]
	}
	if m := legacySegmentRe.FindStringSubmatch(cleaned + "/"); m != nil {
		return lowerSnake(m[1])
	}
	return UnknownPodcastID
}

func lowerSnake(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = snakeNonAlnumRe.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// UnregisteredPodcastError signals a resolved podcast id with no matching
// registry entry; the caller decides whether to route to unknown_podcast
// or reject the file.
type UnregisteredPodcastError struct {
	PodcastID string
}

func (e *UnregisteredPodcastError) Error() string {
	return fmt.Sprintf("router: podcast %q is not registered", e.PodcastID)
}

// Router owns one bounded pool of driver connections per registered
// podcast and hands out a *graphstore.Store scoped to exactly one
// podcast's database, so cross-podcast writes are structurally
// impossible above this layer too.
type Router struct {
	registry *config.PodcastRegistry

	mu      sync.Mutex
	drivers map[string]neo4j.DriverWithContext
	stores  map[string]*graphstore.Store
}

// New builds a Router over a static podcast registry. Driver connections
// are created lazily on first Store(id) call and cached for reuse,
// bounding total open connections to one pool per podcast rather than one
// per episode.
func New(registry *config.PodcastRegistry) *Router {
	return &Router{
		registry: registry,
		drivers:  make(map[string]neo4j.DriverWithContext),
		stores:   make(map[string]*graphstore.Store),
	}
}

// Store returns the graph store bound to podcastID, creating its driver
// connection on first use.
func (r *Router) Store(ctx context.Context, podcastID string) (*graphstore.Store, error) {
	entry := r.registry.GetPodcast(podcastID)
	if entry == nil {
		return nil, &UnregisteredPodcastError{PodcastID: podcastID}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[podcastID]; ok {
		return s, nil
	}

	driver, err := neo4j.NewDriverWithContext(entry.Database.URI, neo4j.BasicAuth(entry.Database.Username, entry.Database.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("router: connect podcast %q: %w", podcastID, err)
	}
	r.drivers[podcastID] = driver

	store := graphstore.NewStore(driver, entry.Database.DatabaseName, podcastID)
	r.stores[podcastID] = store
	return store, nil
}

// Close tears down every podcast's driver connection.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, d := range r.drivers {
		if err := d.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("router: close podcast %q: %w", id, err)
		}
	}
	return firstErr
}

// RouteAndOpen resolves a VTT's podcast identity and returns its bound
// store in one call, the common path used by the orchestrator when
// picking up a new file.
func (r *Router) RouteAndOpen(ctx context.Context, meta vtt.Metadata, vttPath string) (string, *graphstore.Store, error) {
	podcastID := ResolvePodcastID(meta, vttPath)
	store, err := r.Store(ctx, podcastID)
	if err != nil {
		return podcastID, nil, err
	}
	return podcastID, store, nil
}
