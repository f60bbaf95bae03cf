// Package orchestrator implements the Pipeline Orchestrator: the stage
// graph that drives one VTT file from parse through structure, combined
// extraction, embedding, graph persistence, clustering, and analysis,
// bounded by an episode pool and a per-episode unit pool and resumable via the
// Checkpoint Manager.
//
// The dual-pool shape (bounded episode concurrency, a separate bounded
// pool for the much larger number of per-unit tasks within each episode)
// follows cmd/ingest/main.go's worker-pool-over-a-channel idiom,
// regrounded on golang.org/x/sync/errgroup.Group.SetLimit for the episode
// pool and pkg/fn.ParMapResult for the unit pool, since unit tasks are a
// known-size slice rather than an unbounded channel.
package orchestrator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/podknow/seeder/internal/checkpoint"
	"github.com/podknow/seeder/internal/domain"
	"github.com/podknow/seeder/internal/embedding"
	"github.com/podknow/seeder/internal/extract"
	"github.com/podknow/seeder/internal/graphstore"
	"github.com/podknow/seeder/internal/llm"
	"github.com/podknow/seeder/internal/metrics"
	"github.com/podknow/seeder/internal/postprocess"
	"github.com/podknow/seeder/internal/router"
	"github.com/podknow/seeder/internal/structure"
	"github.com/podknow/seeder/internal/vtt"
	"github.com/podknow/seeder/pkg/fn"
	"github.com/podknow/seeder/pkg/resilience"
)

// Models names the model identifiers the structurer and extractor call
// with; kept distinct so providers.yaml can route each to a different
// model tier.
type Models struct {
	StructureModel string
	ExtractModel   string
}

// Orchestrator wires every pipeline component and drives episodes through
// the full stage graph.
type Orchestrator struct {
	cfg    Config
	models Models

	provider llm.Provider
	embedder *embedding.Service
	vectors  *embedding.Store

	router     *router.Router
	checkpoint *checkpoint.Manager
	metrics    *metrics.Pipeline

	clusterThreshold float32

	breakers map[string]*resilience.Breaker

	log *slog.Logger
}

// New builds an Orchestrator. provider should be a *RotatingProvider (or
// any llm.Provider) so C2/C3 calls are rate-limited and rotated
// transparently.
func New(cfg Config, models Models, provider llm.Provider, embedder *embedding.Service, vectors *embedding.Store, rtr *router.Router, cpm *checkpoint.Manager, mp *metrics.Pipeline, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:              cfg,
		models:           models,
		provider:         provider,
		embedder:         embedder,
		vectors:          vectors,
		router:           rtr,
		checkpoint:       cpm,
		metrics:          mp,
		clusterThreshold: cfg.ClusterThreshold,
		breakers:         make(map[string]*resilience.Breaker),
		log:              log,
	}
}

// runStage gates one checkpoint stage: if Begin reports the stage already
// completed for this payloadHash, work is never called and the stage's
// cached data (if any) is returned instead, satisfying the "zero LLM and
// zero write calls on a completed stage" guarantee. Otherwise work runs,
// its error (if any) is recorded via Fail, and its return value is cached
// on the completion record for a future resumed run.
func (o *Orchestrator) runStage(episodeID string, stage checkpoint.Stage, payloadHash string, work func() (any, error)) (cached json.RawMessage, alreadyDone bool, err error) {
	if err := o.checkpoint.Begin(episodeID, stage, payloadHash); err != nil {
		var already *checkpoint.AlreadyDoneError
		if errors.As(err, &already) {
			return already.Record.Data, true, nil
		}
		return nil, false, err
	}

	data, werr := work()
	if werr != nil {
		if ferr := o.checkpoint.Fail(episodeID, stage, werr.Error()); ferr != nil {
			o.log.Warn("checkpoint fail write failed", "episode", episodeID, "stage", string(stage), "error", ferr)
		}
		return nil, false, werr
	}
	if cerr := o.checkpoint.CompleteWithData(episodeID, stage, payloadHash, data); cerr != nil {
		o.log.Warn("checkpoint complete write failed", "episode", episodeID, "stage", string(stage), "error", cerr)
	}
	return nil, false, nil
}

func (o *Orchestrator) breakerFor(podcastID string) *resilience.Breaker {
	if b, ok := o.breakers[podcastID]; ok {
		return b
	}
	b := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	o.breakers[podcastID] = b
	return b
}

// RunDirectory walks dir for .vtt files and processes each through
// ProcessFile, bounding concurrency to cfg.MaxEpisodesConcurrent. It
// returns the first Fatal-classified error encountered; Transient/
// Permanent failures on individual files are logged and do not stop the
// walk.
func (o *Orchestrator) RunDirectory(ctx context.Context, dir string) error {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".vtt") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("orchestrator: walk %s: %w", dir, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxEpisodesConcurrent)
	for _, p := range paths {
		p := p
		g.Go(func() error {
			if err := o.ProcessFile(gctx, p); err != nil {
				if domain.Classify(err) == domain.FailureFatal {
					return err
				}
				o.log.Error("episode failed", "path", p, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ProcessFile runs one VTT file through the full stage graph: parse,
// route, structure, extract+embed per unit, persist, cluster, analyze.
// Each stage is bracketed by checkpoint Begin/Complete/Fail calls so a
// re-run skips whatever already completed with the same input.
func (o *Orchestrator) ProcessFile(ctx context.Context, vttPath string) error {
	data, err := os.ReadFile(vttPath)
	if err != nil {
		return &domain.StorageUnavailableError{PodcastID: "", Wrapped: err}
	}
	payloadHash := hashPayload(data)

	meta, cues, warnings, err := vtt.Parse(bytes.NewReader(data))
	if err != nil {
		return domain.NewValidationError("vtt_parse", vttPath, err)
	}
	for _, w := range warnings {
		o.log.Warn("vtt warning", "path", vttPath, "cue", w.CueIndex, "reason", w.Reason)
	}

	podcastID, store, err := o.router.RouteAndOpen(ctx, meta, vttPath)
	if err != nil {
		return err
	}

	episodeID := domain.EpisodeID(podcastID, episodeTitle(meta, vttPath), meta.PublishedDate)
	ep := domain.Episode{
		ID:               episodeID,
		PodcastID:        podcastID,
		Title:            episodeTitle(meta, vttPath),
		YoutubeURL:       meta.YouTubeURL,
		VTTPath:          vttPath,
		DurationSeconds:  lastCueEnd(cues),
		ProcessingStatus: domain.StatusParsed,
	}
	if t, perr := time.Parse(time.RFC3339, meta.PublishedDate); perr == nil {
		ep.PublishedDate = t
	}

	if _, _, err := o.runStage(episodeID, checkpoint.StageParse, payloadHash, func() (any, error) {
		return nil, store.UpsertEpisode(ctx, ep)
	}); err != nil {
		return err
	}

	var units []domain.MeaningfulUnit
	cachedUnits, structureDone, err := o.runStage(episodeID, checkpoint.StageStructure, payloadHash, func() (any, error) {
		episodeCtx := structure.ConversationContext{PodcastName: podcastID, EpisodeName: ep.Title}
		specs := structure.Structure(ctx, o.provider, o.models.StructureModel, cues, episodeCtx)
		built := buildUnits(episodeID, cues, specs)

		if labels := rawSpeakerLabels(cues); len(labels) > 0 {
			mapping, serr := postprocess.DisambiguateSpeakers(ctx, o.provider, o.models.StructureModel, labels)
			if serr != nil {
				o.log.Warn("speaker disambiguation failed", "episode", episodeID, "error", serr)
			} else {
				for i := range built {
					built[i] = postprocess.ApplySpeakerMapping(built[i], mapping)
				}
			}
		}
		units = built
		return built, nil
	})
	if err != nil {
		return err
	}
	if structureDone {
		if err := json.Unmarshal(cachedUnits, &units); err != nil {
			return fmt.Errorf("orchestrator: decode cached units for %s: %w", episodeID, err)
		}
	}

	clusterCollection := podcastID + "_clusters"
	unitCollection := podcastID + "_units"

	var unassigned []postprocess.UnassignedUnit
	cachedUnassigned, extractDone, err := o.runStage(episodeID, checkpoint.StageExtract, payloadHash, func() (any, error) {
		result, perr := o.processUnits(ctx, store, podcastID, episodeID, unitCollection, units, extract.EpisodeContext{PodcastName: podcastID, EpisodeName: ep.Title})
		if perr != nil {
			return nil, perr
		}
		unassigned = result
		if cerr := o.checkpoint.Complete(episodeID, checkpoint.StageEmbed, payloadHash); cerr != nil {
			o.log.Warn("checkpoint complete write failed", "episode", episodeID, "stage", string(checkpoint.StageEmbed), "error", cerr)
		}
		if cerr := o.checkpoint.Complete(episodeID, checkpoint.StagePersist, payloadHash); cerr != nil {
			o.log.Warn("checkpoint complete write failed", "episode", episodeID, "stage", string(checkpoint.StagePersist), "error", cerr)
		}
		return result, nil
	})
	if err != nil {
		return err
	}
	if extractDone && len(cachedUnassigned) > 0 {
		if err := json.Unmarshal(cachedUnassigned, &unassigned); err != nil {
			return fmt.Errorf("orchestrator: decode cached unassigned units for %s: %w", episodeID, err)
		}
	}

	if _, _, err := o.runStage(episodeID, checkpoint.StageCluster, payloadHash, func() (any, error) {
		if o.vectors != nil && len(unassigned) > 0 {
			searcher := postprocess.EmbeddingSearcher{Store: o.vectors}
			if _, aerr := postprocess.AssignClusters(ctx, searcher, store, clusterCollection, unassigned, o.clusterThreshold); aerr != nil {
				o.log.Warn("cluster assignment failed", "episode", episodeID, "error", aerr)
			}
		}
		return nil, nil
	}); err != nil {
		return err
	}

	if _, _, err := o.runStage(episodeID, checkpoint.StageAnalyze, payloadHash, func() (any, error) {
		if analysis, aerr := postprocess.RunAnalysis(ctx, store, episodeID); aerr != nil {
			o.log.Warn("analysis failed", "episode", episodeID, "error", aerr)
		} else if uerr := store.UpsertEpisodeAnalysis(ctx, episodeID, len(analysis.KnowledgeGaps), len(analysis.MissingLinks), diversityLabels(analysis.Diversity)); uerr != nil {
			o.log.Warn("analysis persist failed", "episode", episodeID, "error", uerr)
		}
		return nil, nil
	}); err != nil {
		return err
	}

	ep.ProcessingStatus = domain.StatusComplete
	if err := store.UpsertEpisode(ctx, ep); err != nil {
		return err
	}
	if o.metrics != nil {
		o.metrics.FilesProcessed.Inc()
	}
	return nil
}

// unitOutcome is one unit's result after the extract+embed stage, ready
// for persistence, or skipped per the skip-unit-continue-episode policy.
type unitOutcome struct {
	unit    domain.MeaningfulUnit
	persist graphstore.UnitPersistence
	skip    bool
}

// processUnits runs extract+embed for every unit with bounded concurrency,
// persists each successful unit's full write set, and returns the units
// still needing cluster assignment.
func (o *Orchestrator) processUnits(ctx context.Context, store *graphstore.Store, podcastID, episodeID, unitCollection string, units []domain.MeaningfulUnit, episodeCtx extract.EpisodeContext) ([]postprocess.UnassignedUnit, error) {
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}
	vecs, err := o.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return nil, &domain.TransientProviderError{Provider: "embedding", Wrapped: err}
	}
	for i := range units {
		units[i].Embedding = vecs[i]
	}

	if o.vectors != nil && len(vecs) > 0 {
		dims := len(vecs[0])
		if err := o.vectors.EnsureCollection(ctx, unitCollection, dims); err != nil {
			o.log.Warn("ensure unit collection failed", "collection", unitCollection, "error", err)
		}
	}

	tasks := make([]func() fn.Result[unitOutcome], len(units))
	for i, u := range units {
		u := u
		tasks[i] = func() fn.Result[unitOutcome] {
			oc, err := o.processOneUnit(ctx, episodeID, u, episodeCtx)
			if err != nil {
				if domain.Classify(err) == domain.FailureFatal {
					return fn.Err[unitOutcome](err)
				}
				o.log.Warn("unit extract skipped", "unit", u.ID, "error", err)
				return fn.Ok(unitOutcome{unit: u, skip: true})
			}
			return fn.Ok(oc)
		}
	}

	results := fn.ParMapResult(indices(len(tasks)), o.cfg.MaxConcurrentUnits, func(i int) fn.Result[unitOutcome] {
		return tasks[i]()
	})

	var unassigned []postprocess.UnassignedUnit
	breaker := o.breakerFor(podcastID)
	for _, r := range results {
		oc, err := r.Unwrap()
		if err != nil {
			return unassigned, err
		}
		if oc.skip {
			continue
		}
		start := time.Now()
		perr := breaker.Call(ctx, func(ctx context.Context) error {
			return store.PersistUnit(ctx, oc.persist)
		})
		if o.metrics != nil {
			o.metrics.DBWriteLatencyMS.Observe(float64(time.Since(start).Milliseconds()))
		}
		if perr != nil {
			return unassigned, &domain.StorageUnavailableError{PodcastID: podcastID, Wrapped: perr}
		}
		if o.metrics != nil {
			o.metrics.UnitsCreated.Inc()
		}
		if o.vectors != nil {
			rec := embedding.Record{
				ID:        oc.unit.ID,
				Embedding: oc.unit.Embedding,
				Payload:   map[string]any{"podcast_id": podcastID, "episode_id": episodeID, "unit_id": oc.unit.ID, "kind": "unit"},
			}
			if err := o.vectors.Upsert(ctx, unitCollection, []embedding.Record{rec}); err != nil {
				o.log.Warn("unit vector upsert failed", "unit", oc.unit.ID, "error", err)
			}
		}
		unassigned = append(unassigned, postprocess.UnassignedUnit{UnitID: oc.unit.ID, Embedding: oc.unit.Embedding})
	}
	return unassigned, nil
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// processOneUnit runs the Combined Extractor for one unit under a
// per-unit timeout and translates its raw result into the resolved
// persistence payload (entity name -> id, relationship name-tuples ->
// id-tuples).
func (o *Orchestrator) processOneUnit(ctx context.Context, episodeID string, u domain.MeaningfulUnit, episodeCtx extract.EpisodeContext) (unitOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.UnitTimeout)
	defer cancel()

	start := time.Now()
	result, err := extract.Extract(ctx, o.provider, o.models.ExtractModel, extract.UnitInput{UnitID: u.ID, Text: u.Text}, episodeCtx)
	ok := err == nil
	if o.metrics != nil {
		o.metrics.RecordAPICall(ok)
		o.metrics.UnitProcessingDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return unitOutcome{}, &domain.TransientProviderError{Provider: "extract", Wrapped: err}
	}

	entityIDs := make(map[string]string, len(result.Entities))
	resolvedEntities := make([]graphstore.ResolvedEntity, 0, len(result.Entities))
	for _, re := range result.Entities {
		canonicalName := domain.NormalizeName(re.Name)
		entityType := graphstore.NormalizeEntityType(re.Type)
		id := domain.EntityID(canonicalName, entityType)
		entityIDs[canonicalName] = id
		resolvedEntities = append(resolvedEntities, graphstore.ResolvedEntity{
			Entity: domain.Entity{
				ID:              id,
				Name:            re.Name,
				CanonicalName:   canonicalName,
				Type:            entityType,
				Description:     re.Description,
				Importance:      int(re.Importance),
				FirstSeenUnitID: u.ID,
				Aliases:         re.Aliases,
			},
			Mention: domain.EntityMention{Context: "", Frequency: re.Frequency, Importance: int(re.Importance)},
		})
	}

	quotes := make([]domain.Quote, 0, len(result.Quotes))
	for _, rq := range result.Quotes {
		quotes = append(quotes, domain.Quote{
			ID:          domain.QuoteID(u.ID, rq.Text),
			Text:        rq.Text,
			Speaker:     rq.Speaker,
			Context:     rq.Context,
			IsMemorable: rq.Importance >= 8,
		})
	}

	insights := make([]graphstore.ResolvedInsight, 0, len(result.Insights))
	for _, ri := range result.Insights {
		var ids []string
		for _, name := range ri.SupportingEntities {
			if id, ok := entityIDs[domain.NormalizeName(name)]; ok {
				ids = append(ids, id)
			}
		}
		insights = append(insights, graphstore.ResolvedInsight{
			Insight: domain.Insight{
				ID:          domain.InsightID(u.ID, ri.Title),
				Title:       ri.Title,
				Description: ri.Description,
				InsightType: ri.InsightType,
				Confidence:  int(ri.Confidence),
				SupportedBy: ri.SupportingEntities,
			},
			SupportedByEntityIDs: ids,
		})
	}

	relationships := make([]graphstore.ResolvedRelationship, 0, len(result.Relationships))
	for _, rr := range result.Relationships {
		srcID, srcOK := entityIDs[domain.NormalizeName(rr.Source)]
		dstID, dstOK := entityIDs[domain.NormalizeName(rr.Target)]
		if !srcOK || !dstOK {
			continue
		}
		relationships = append(relationships, graphstore.ResolvedRelationship{
			Relationship: domain.EntityRelationship{
				SourceEntityName: rr.Source,
				TargetEntityName: rr.Target,
				Type:             rr.Type,
				Description:      rr.Description,
				Confidence:       int(rr.Confidence),
				Evidence:         rr.Evidence,
				SourceUnitID:     u.ID,
			},
			SourceID: srcID,
			TargetID: dstID,
		})
	}

	return unitOutcome{
		unit: u,
		persist: graphstore.UnitPersistence{
			Unit:          u,
			Entities:      resolvedEntities,
			Quotes:        quotes,
			Insights:      insights,
			Relationships: relationships,
		},
	}, nil
}

func buildUnits(episodeID string, cues []vtt.Cue, specs []structure.UnitSpec) []domain.MeaningfulUnit {
	units := make([]domain.MeaningfulUnit, 0, len(specs))
	for _, spec := range specs {
		slice := cues[spec.StartIndex : spec.EndIndex+1]
		units = append(units, domain.MeaningfulUnit{
			ID:                  domain.UnitID(episodeID, slice[0].StartSec, slice[len(slice)-1].EndSec),
			EpisodeID:           episodeID,
			StartSec:            slice[0].StartSec,
			EndSec:              slice[len(slice)-1].EndSec,
			Text:                renderUnitText(slice),
			UnitType:            spec.UnitType,
			Summary:             spec.Summary,
			Themes:              spec.Themes,
			PrimarySpeaker:      dominantSpeaker(slice),
			SpeakerDistribution: speakerDistribution(slice),
			Completeness:        spec.Completeness,
			SegmentIndices:      segmentIndices(slice),
		})
	}
	return units
}

func renderUnitText(cues []vtt.Cue) string {
	var b strings.Builder
	for _, c := range cues {
		speaker := c.Speaker
		if speaker == "" {
			speaker = "unknown"
		}
		fmt.Fprintf(&b, "[%s %02d:%02d] %s\n", speaker, int(c.StartSec)/60, int(c.StartSec)%60, c.Text)
	}
	return b.String()
}

func segmentIndices(cues []vtt.Cue) []int {
	out := make([]int, len(cues))
	for i, c := range cues {
		out[i] = c.Index
	}
	return out
}

func dominantSpeaker(cues []vtt.Cue) string {
	dist := speakerDistribution(cues)
	best, bestPct := "", -1.0
	for speaker, pct := range dist {
		if pct > bestPct {
			best, bestPct = speaker, pct
		}
	}
	return best
}

func speakerDistribution(cues []vtt.Cue) map[string]float64 {
	counts := make(map[string]int)
	total := 0
	for _, c := range cues {
		speaker := c.Speaker
		if speaker == "" {
			continue
		}
		counts[speaker]++
		total++
	}
	if total == 0 {
		return nil
	}
	out := make(map[string]float64, len(counts))
	for speaker, n := range counts {
		out[speaker] = float64(n) / float64(total) * 100
	}
	return out
}

// rawSpeakerLabels collects every distinct raw speaker label in a cue
// sequence with up to three sample lines each, the input
// postprocess.DisambiguateSpeakers needs to consolidate labels within one
// episode.
func rawSpeakerLabels(cues []vtt.Cue) []postprocess.RawLabelSample {
	const maxSamples = 3
	var order []string
	samples := make(map[string][]string)
	for _, c := range cues {
		if c.Speaker == "" {
			continue
		}
		if _, seen := samples[c.Speaker]; !seen {
			order = append(order, c.Speaker)
		}
		if len(samples[c.Speaker]) < maxSamples {
			samples[c.Speaker] = append(samples[c.Speaker], c.Text)
		}
	}
	out := make([]postprocess.RawLabelSample, 0, len(order))
	for _, label := range order {
		out = append(out, postprocess.RawLabelSample{Label: label, Samples: samples[label]})
	}
	return out
}

// diversityLabels flattens analysis diversity stats into "Type:Count"
// strings, the shape a Neo4j node property can actually hold.
func diversityLabels(stats []postprocess.DiversityStat) []string {
	out := make([]string, 0, len(stats))
	for _, s := range stats {
		out = append(out, fmt.Sprintf("%s:%d", s.EntityType, s.Count))
	}
	return out
}

func episodeTitle(meta vtt.Metadata, vttPath string) string {
	if meta.Episode != "" {
		return meta.Episode
	}
	base := filepath.Base(vttPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func lastCueEnd(cues []vtt.Cue) float64 {
	if len(cues) == 0 {
		return 0
	}
	return cues[len(cues)-1].EndSec
}

func hashPayload(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
