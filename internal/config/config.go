// Package config loads and validates the YAML configuration described in
// §6 of the design: podcasts.yaml (podcast registry, per-podcast database
// routing and processing overrides) and providers.yaml (LLM/embedding
// provider selection). Unknown keys are rejected to catch typos early,
// per the "Configuration objects with many optional keys" design note.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults holds processing defaults applied to any podcast that does not
// override them.
type Defaults struct {
	BatchSize          int  `yaml:"batch_size"`
	MaxRetries         int  `yaml:"max_retries"`
	EnableFlowAnalysis bool `yaml:"enable_flow_analysis"`
}

// DatabaseConfig describes how to reach a podcast's graph database.
type DatabaseConfig struct {
	URI          string `yaml:"uri"`
	DatabaseName string `yaml:"database_name,omitempty"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
}

// Processing carries per-podcast overrides of the global defaults.
type Processing struct {
	BatchSize      int  `yaml:"batch_size,omitempty"`
	MaxRetries     int  `yaml:"max_retries,omitempty"`
	UseLargeContext bool `yaml:"use_large_context,omitempty"`
}

// PodcastMetadata is descriptive configuration, distinct from domain.PodcastMetadata.
type PodcastMetadata struct {
	Description string   `yaml:"description,omitempty"`
	Language    string   `yaml:"language,omitempty"`
	Category    string   `yaml:"category,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Host        string   `yaml:"host,omitempty"`
	Website     string   `yaml:"website,omitempty"`
}

// PodcastEntry is one entry of the podcasts.yaml registry.
type PodcastEntry struct {
	ID             string          `yaml:"id"`
	Name           string          `yaml:"name"`
	Enabled        bool            `yaml:"enabled"`
	Database       DatabaseConfig  `yaml:"database"`
	Processing     Processing      `yaml:"processing,omitempty"`
	Metadata       PodcastMetadata `yaml:"metadata,omitempty"`
	TranscriptDir  string          `yaml:"transcript_dir,omitempty"`
	ProcessedDir   string          `yaml:"processed_dir,omitempty"`
	CheckpointDir  string          `yaml:"checkpoint_dir,omitempty"`
}

// PodcastRegistry is the root of podcasts.yaml.
type PodcastRegistry struct {
	Version  string         `yaml:"version"`
	Defaults Defaults       `yaml:"defaults,omitempty"`
	Podcasts []PodcastEntry `yaml:"podcasts"`
}

// ProviderSpec names a concrete provider implementation and its config.
type ProviderSpec struct {
	Class   string         `yaml:"class"`
	Version string         `yaml:"version,omitempty"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// ProvidersFile is the root of providers.yaml: provider type -> provider
// name -> spec. E.g. providersFile["llm"]["anthropic-sonnet"] = {...}.
type ProvidersFile map[string]map[string]ProviderSpec

// LoadProvidersFile reads and validates providers.yaml.
func LoadProvidersFile(path string) (ProvidersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var pf ProvidersFile
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return pf, nil
}

// Select returns the named provider spec within a type bucket (e.g.
// Select("llm", "anthropic-sonnet")), or an error if absent.
func (pf ProvidersFile) Select(providerType, name string) (ProviderSpec, error) {
	bucket, ok := pf[providerType]
	if !ok {
		return ProviderSpec{}, fmt.Errorf("config: no providers of type %q", providerType)
	}
	spec, ok := bucket[name]
	if !ok {
		return ProviderSpec{}, fmt.Errorf("config: no provider %q of type %q", name, providerType)
	}
	return spec, nil
}

// LoadPodcastRegistry reads and validates podcasts.yaml. A read failure,
// including a missing file, is returned as an error; callers fall back to a
// legacy single-podcast registry via LegacyRegistry, mirroring
// original_source's PodcastDatabaseConfig.
func LoadPodcastRegistry(path string) (*PodcastRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var reg PodcastRegistry
	if err := dec.Decode(&reg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := validateRegistry(&reg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &reg, nil
}

func validateRegistry(reg *PodcastRegistry) error {
	if reg.Version == "" {
		return fmt.Errorf("missing version")
	}
	seen := make(map[string]bool, len(reg.Podcasts))
	for _, p := range reg.Podcasts {
		if p.ID == "" {
			return fmt.Errorf("podcast entry missing id")
		}
		if !validPodcastID(p.ID) {
			return fmt.Errorf("podcast id %q: must match [a-z0-9_-]+", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate podcast id %q", p.ID)
		}
		seen[p.ID] = true
		if p.Database.URI == "" {
			return fmt.Errorf("podcast %q: database.uri required", p.ID)
		}
	}
	return nil
}

func validPodcastID(id string) bool {
	for _, r := range id {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
		if !ok {
			return false
		}
	}
	return len(id) > 0
}

// LegacyRegistry builds a single-podcast fallback registry from
// environment defaults, used when no podcasts.yaml is present.
func LegacyRegistry(neo4jURI, neo4jDatabase string) *PodcastRegistry {
	return &PodcastRegistry{
		Version: "1.0",
		Podcasts: []PodcastEntry{
			{
				ID:      "unknown_podcast",
				Name:    "Unknown Podcast",
				Enabled: true,
				Database: DatabaseConfig{
					URI:          neo4jURI,
					DatabaseName: neo4jDatabase,
				},
			},
		},
	}
}

// GetPodcast returns the entry for id, or nil if not registered.
func (r *PodcastRegistry) GetPodcast(id string) *PodcastEntry {
	for i := range r.Podcasts {
		if r.Podcasts[i].ID == id {
			return &r.Podcasts[i]
		}
	}
	return nil
}

// EnabledPodcasts returns the ids of all enabled podcasts.
func (r *PodcastRegistry) EnabledPodcasts() []string {
	var ids []string
	for _, p := range r.Podcasts {
		if p.Enabled {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
