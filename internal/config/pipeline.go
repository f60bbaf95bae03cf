package config

import (
	"os"
	"strconv"
	"time"
)

// PipelineConfig is the single typed configuration object constructed once
// at startup, per the "Configuration objects with many optional keys"
// design note: unknown YAML keys are rejected at load time (above);
// environment overrides are applied here, explicitly, field by field.
type PipelineConfig struct {
	StateDir            string
	CheckpointDir        string
	TranscriptOutputDir string
	LogLevel             string
	LLMServiceType       string

	MaxMemoryMB           int
	MaxEpisodesConcurrent int
	MaxConcurrentUnits    int
	EmbedBatch            int
	DBBatch               int
	MaxWaitForCredential  time.Duration
	KnowledgeExtractionTimeout time.Duration
}

// DefaultPipelineConfig returns the resource ceilings from §5, overridden
// by any recognised environment variable from §6.
func DefaultPipelineConfig() PipelineConfig {
	cfg := PipelineConfig{
		StateDir:             envOr("STATE_DIR", "data/"),
		TranscriptOutputDir:  envOr("TRANSCRIPT_OUTPUT_DIR", "data/transcripts"),
		LogLevel:             envOr("LOG_LEVEL", "INFO"),
		LLMServiceType:       envOr("LLM_SERVICE_TYPE", "anthropic"),
		MaxMemoryMB:           envInt("MAX_MEMORY_MB", 2048),
		MaxEpisodesConcurrent: envInt("MAX_EPISODES_CONCURRENT", 2),
		MaxConcurrentUnits:    envInt("MAX_CONCURRENT_UNITS", 4),
		EmbedBatch:            32,
		DBBatch:               500,
		MaxWaitForCredential:  120 * time.Second,
		KnowledgeExtractionTimeout: time.Duration(envInt("KNOWLEDGE_EXTRACTION_TIMEOUT", 1800)) * time.Second,
	}
	cfg.CheckpointDir = envOr("CHECKPOINT_DIR", cfg.StateDir+"checkpoints")
	return cfg
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

// ExitCode maps a top-level pipeline outcome to the process exit codes of §6.
type ExitCode int

const (
	ExitSuccess            ExitCode = 0
	ExitGenericError       ExitCode = 1
	ExitConfigError        ExitCode = 2
	ExitStorageUnavailable ExitCode = 3
	ExitCredentialsExhausted ExitCode = 4
	ExitInterrupted        ExitCode = 130
)
