// Command ingest watches a directory tree of VTT transcripts and drives
// each file through the knowledge-graph ingestion pipeline: parse,
// structure, extract, embed, persist, cluster, analyze.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/podknow/seeder/internal/checkpoint"
	"github.com/podknow/seeder/internal/config"
	"github.com/podknow/seeder/internal/credential"
	"github.com/podknow/seeder/internal/embedding"
	"github.com/podknow/seeder/internal/llm"
	"github.com/podknow/seeder/internal/metrics"
	"github.com/podknow/seeder/internal/orchestrator"
	"github.com/podknow/seeder/internal/router"
	"github.com/podknow/seeder/pkg/mid"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		dataDir       = flag.String("dir", envOr("TRANSCRIPT_OUTPUT_DIR", "data/transcripts"), "directory tree to scan for .vtt files")
		podcastsPath  = flag.String("podcasts", envOr("PODCASTS_CONFIG", "podcasts.yaml"), "podcast registry YAML path")
		providersPath = flag.String("providers", envOr("PROVIDERS_CONFIG", "providers.yaml"), "LLM/embedding providers YAML path")
		interval      = flag.Duration("interval", time.Duration(envInt("SCAN_INTERVAL_SECONDS", 60))*time.Second, "directory rescan interval")
		once          = flag.Bool("once", false, "scan the directory once and exit instead of polling")
		adminAddr     = flag.String("admin-addr", envOr("ADMIN_ADDR", ":9091"), "address for the /healthz and /metrics admin server")
	)
	flag.Parse()

	log := newLogger(envOr("LOG_LEVEL", "INFO"))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pipelineCfg := config.DefaultPipelineConfig()

	registry, err := config.LoadPodcastRegistry(*podcastsPath)
	if err != nil {
		log.Warn("podcasts.yaml not usable, falling back to a single legacy podcast", "path", *podcastsPath, "error", err)
		registry = config.LegacyRegistry(envOr("NEO4J_URL", "neo4j://localhost:7687"), envOr("NEO4J_DATABASE", ""))
	}

	providersFile, err := config.LoadProvidersFile(*providersPath)
	if err != nil {
		log.Warn("providers.yaml not usable, falling back to environment-driven defaults", "path", *providersPath, "error", err)
		providersFile = nil
	}

	rotator := buildRotator(pipelineCfg)

	llmBuild := llmProviderBuilder(providersFile, pipelineCfg.LLMServiceType)
	provider := orchestrator.NewRotatingProvider(rotator, llmBuild)

	embedProvider, err := buildEmbeddingProvider(providersFile)
	if err != nil {
		log.Error("embedding provider setup failed", "error", err)
		return int(config.ExitConfigError)
	}
	embedder := embedding.NewService(embedProvider, envOr("EMBEDDING_MODEL_ID", "default"), pipelineCfg.EmbedBatch)

	var vectors *embedding.Store
	if addr := os.Getenv("QDRANT_ADDR"); addr != "" {
		vectors, err = embedding.NewStore(addr)
		if err != nil {
			log.Error("qdrant connect failed", "error", err)
			return int(config.ExitStorageUnavailable)
		}
		defer vectors.Close()
		log.Info("connected to Qdrant", "addr", addr)
	} else {
		log.Warn("QDRANT_ADDR unset, running without cluster assignment or semantic search")
	}

	rtr := router.New(registry)
	defer rtr.Close(context.Background())

	cpm, err := checkpoint.NewManager(pipelineCfg.CheckpointDir)
	if err != nil {
		log.Error("checkpoint manager setup failed", "error", err)
		return int(config.ExitConfigError)
	}

	mp := metrics.New()
	mp.OnAnomaly(func(a metrics.Anomaly) {
		log.Warn("anomaly detected", "metric", a.Metric, "rate", a.Rate, "threshold", a.Threshold, "window", a.Window)
	})

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.MaxEpisodesConcurrent = pipelineCfg.MaxEpisodesConcurrent
	orchCfg.MaxConcurrentUnits = pipelineCfg.MaxConcurrentUnits
	orchCfg.UnitTimeout = pipelineCfg.KnowledgeExtractionTimeout

	models := orchestrator.Models{
		StructureModel: envOr("STRUCTURE_MODEL", "claude-sonnet-4-5"),
		ExtractModel:   envOr("EXTRACT_MODEL", "claude-sonnet-4-5"),
	}

	o := orchestrator.New(orchCfg, models, provider, embedder, vectors, rtr, cpm, mp, log)

	adminSrv := startAdminServer(*adminAddr, mp, log)
	defer adminSrv.Close()

	log.Info("ingest starting", "dir", *dataDir, "interval", *interval, "once", *once)

	runOnce := func() {
		if err := o.RunDirectory(ctx, *dataDir); err != nil {
			log.Error("directory run failed", "dir", *dataDir, "error", err)
		}
	}

	runOnce()
	if *once {
		return int(config.ExitSuccess)
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return int(config.ExitInterrupted)
		case <-ticker.C:
			runOnce()
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// startAdminServer exposes /healthz and /metrics on a separate listener
// from the ingest pipeline itself, mirroring the api server's mid.Chain
// wiring but without CORS, since this endpoint is operator-only.
func startAdminServer(addr string, mp *metrics.Pipeline, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", mp.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mid.Chain(mux, mid.Recover(log), mid.Logger(log)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin server failed", "error", err)
		}
	}()
	return srv
}

// buildRotator assembles the credential pool from ANTHROPIC_API_KEYS (a
// comma-separated list) and per-credential rate limits, persisting
// rotation state under the pipeline's state directory so cooldowns
// survive a restart.
func buildRotator(cfg config.PipelineConfig) *credential.Rotator {
	keys := strings.Split(os.Getenv("ANTHROPIC_API_KEYS"), ",")
	limits := credential.Limits{
		RPM: envInt("CREDENTIAL_RPM", 50),
		TPM: envInt("CREDENTIAL_TPM", 100000),
		RPD: envInt("CREDENTIAL_RPD", 1000),
	}
	creds := make(map[string]credential.Limits)
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		creds[k] = limits
	}
	if len(creds) == 0 {
		creds[""] = limits // falls back to ANTHROPIC_API_KEY via the SDK's own env lookup
	}
	statePath := cfg.StateDir + "rotation_state.json"
	return credential.NewRotator(creds, statePath)
}

// llmProviderBuilder returns the factory RotatingProvider uses to build
// one llm.Provider per leased credential key, selecting the provider
// class from providers.yaml when present and falling back to
// serviceType otherwise.
func llmProviderBuilder(pf config.ProvidersFile, serviceType string) func(apiKey string) llm.Provider {
	class := serviceType
	cfgMap := map[string]any{}
	if pf != nil {
		if spec, err := pf.Select("llm", serviceType); err == nil {
			class = spec.Class
			cfgMap = spec.Config
		}
	}
	return func(apiKey string) llm.Provider {
		merged := make(map[string]any, len(cfgMap)+1)
		for k, v := range cfgMap {
			merged[k] = v
		}
		merged["api_key"] = apiKey
		p, err := llm.Build(class, merged)
		if err != nil {
			return llm.NewAnthropicProvider(apiKey)
		}
		return p
	}
}

// buildEmbeddingProvider selects the embedding provider named in
// providers.yaml, falling back to a local Ollama instance so the
// pipeline still runs end to end without any external embedding service.
func buildEmbeddingProvider(pf config.ProvidersFile) (embedding.Provider, error) {
	name := envOr("EMBEDDING_PROVIDER", "ollama")
	if pf != nil {
		if spec, err := pf.Select("embedding", name); err == nil {
			return embedding.Build(spec.Class, spec.Config)
		}
	}
	return embedding.Build("ollama", map[string]any{
		"base_url":   envOr("OLLAMA_URL", "http://localhost:11434"),
		"model":      envOr("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		"dimensions": envInt("EMBEDDING_DIMENSIONS", 768),
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
