package config

import (
	"strings"

	"github.com/XiaoConstantine/ace-go/pkg/ace"
	"github.com/XiaoConstantine/ace-go/pkg/cache"
	"github.com/XiaoConstantine/ace-go/pkg/core"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/llms"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// This file is the bridge from the file surface to the programmatic options:
// each method converts one configuration section into the constructor
// arguments of the component it describes.

// QualifiedModelID returns the provider-qualified model identifier the LLM
// factory expects.
func (c LLMConfig) QualifiedModelID() core.ModelID {
	if strings.HasPrefix(c.ModelID, c.Provider+":") {
		return core.ModelID(c.ModelID)
	}
	return core.ModelID(c.Provider + ":" + c.ModelID)
}

// GenerateOptions returns the generation parameters as per-call options for
// the roles.
func (c LLMConfig) GenerateOptions() []core.GenerateOption {
	var opts []core.GenerateOption
	if c.MaxTokens > 0 {
		opts = append(opts, core.WithMaxTokens(c.MaxTokens))
	}
	if c.Temperature > 0 {
		opts = append(opts, core.WithTemperature(c.Temperature))
	}
	return opts
}

// BuildLLM constructs the configured provider behind the standard decorator
// chain, wrapped in the completion cache when one is enabled.
func (c *Config) BuildLLM() (core.LLM, error) {
	llm, err := llms.NewLLM(c.LLM.APIKey(), c.LLM.QualifiedModelID())
	if err != nil {
		return nil, err
	}
	if !c.Cache.Enabled {
		return llm, nil
	}

	store, err := cache.NewCache(c.cacheConfig())
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to build completion cache")
	}
	var opts []cache.CachedLLMOption
	if c.Cache.TTL > 0 {
		opts = append(opts, cache.WithTTL(c.Cache.TTL))
	}
	return cache.NewCachedLLM(llm, store, opts...), nil
}

func (c *Config) cacheConfig() cache.CacheConfig {
	return cache.CacheConfig{
		Type:         c.Cache.Backend,
		DefaultTTL:   c.Cache.TTL,
		SQLiteConfig: cache.SQLiteConfig{Path: c.Cache.Path, EnableWAL: true},
	}
}

// MergerConfig maps the playbook section onto the merger's configuration.
// Unset thresholds keep their defaults; max_bullets maps directly, so an
// explicit zero disables maintenance.
func (c *Config) MergerConfig() playbook.MergerConfig {
	mc := playbook.DefaultMergerConfig()
	mc.MaxBullets = c.Playbook.MaxBullets
	if c.Playbook.SimilarityThreshold > 0 {
		mc.SimilarityThreshold = c.Playbook.SimilarityThreshold
	}
	if c.Playbook.PruneMargin > 0 {
		mc.PruneMargin = c.Playbook.PruneMargin
	}
	if c.Playbook.MinEvidence > 0 {
		mc.MinEvidence = c.Playbook.MinEvidence
	}
	return mc
}

// LoadPlaybook opens the configured snapshot file, or starts an empty
// playbook when no path is set or nothing has been saved there yet.
func (c *Config) LoadPlaybook() (*playbook.Playbook, error) {
	if c.Playbook.Path == "" {
		return playbook.New(), nil
	}
	pb, err := playbook.Load(c.Playbook.Path)
	if errors.HasCode(err, errors.NotFound) {
		return playbook.New(), nil
	}
	if err != nil {
		return nil, err
	}
	return pb, nil
}

// BuildMerger loads the configured playbook and wraps it in a merger using
// the configured maintenance settings.
func (c *Config) BuildMerger() (*playbook.Merger, error) {
	pb, err := c.LoadPlaybook()
	if err != nil {
		return nil, err
	}
	return playbook.NewMerger(pb, playbook.WithMergerConfig(c.MergerConfig())), nil
}

// AdapterOptions returns the driver options from the adaptation section.
func (c *Config) AdapterOptions() []ace.AdapterOption {
	var opts []ace.AdapterOption
	if c.Adaptation.ReflectionWindow > 0 {
		opts = append(opts, ace.WithReflectionWindow(c.Adaptation.ReflectionWindow))
	}
	if c.Adaptation.RefinementRounds > 0 {
		opts = append(opts, ace.WithMaxRefinementRounds(c.Adaptation.RefinementRounds))
	}
	return opts
}

// GeneratorOptions returns the generator options from the adaptation and
// llm sections.
func (c *Config) GeneratorOptions() []ace.GeneratorOption {
	opts := []ace.GeneratorOption{
		ace.WithGeneratorGenerateOptions(c.LLM.GenerateOptions()...),
	}
	if c.Adaptation.MaxRetries > 0 {
		opts = append(opts, ace.WithGeneratorRetries(c.Adaptation.MaxRetries))
	}
	return opts
}

// ReflectorOptions returns the reflector options from the adaptation and
// llm sections.
func (c *Config) ReflectorOptions() []ace.ReflectorOption {
	opts := []ace.ReflectorOption{
		ace.WithReflectorGenerateOptions(c.LLM.GenerateOptions()...),
	}
	if c.Adaptation.MaxRetries > 0 {
		opts = append(opts, ace.WithReflectorRetries(c.Adaptation.MaxRetries))
	}
	return opts
}

// CuratorOptions returns the curator options from the adaptation and llm
// sections.
func (c *Config) CuratorOptions() []ace.CuratorOption {
	opts := []ace.CuratorOption{
		ace.WithContextBudget(c.Adaptation.ContextBudget),
		ace.WithCuratorGenerateOptions(c.LLM.GenerateOptions()...),
	}
	if c.Adaptation.MaxRetries > 0 {
		opts = append(opts, ace.WithCuratorRetries(c.Adaptation.MaxRetries))
	}
	return opts
}

// BuildOfflineAdapter assembles the whole offline pipeline: LLM (cached if
// enabled), playbook, merger, and the three roles.
func (c *Config) BuildOfflineAdapter() (*ace.OfflineAdapter, error) {
	llm, merger, err := c.buildPipeline()
	if err != nil {
		return nil, err
	}
	return ace.NewOfflineAdapter(merger,
		ace.NewGenerator(llm, c.GeneratorOptions()...),
		ace.NewReflector(llm, c.ReflectorOptions()...),
		ace.NewCurator(llm, c.CuratorOptions()...),
		c.AdapterOptions()...), nil
}

// BuildOnlineAdapter assembles the online pipeline from the same sections.
func (c *Config) BuildOnlineAdapter() (*ace.OnlineAdapter, error) {
	llm, merger, err := c.buildPipeline()
	if err != nil {
		return nil, err
	}
	return ace.NewOnlineAdapter(merger,
		ace.NewGenerator(llm, c.GeneratorOptions()...),
		ace.NewReflector(llm, c.ReflectorOptions()...),
		ace.NewCurator(llm, c.CuratorOptions()...),
		c.AdapterOptions()...), nil
}

func (c *Config) buildPipeline() (core.LLM, *playbook.Merger, error) {
	llm, err := c.BuildLLM()
	if err != nil {
		return nil, nil, err
	}
	merger, err := c.BuildMerger()
	if err != nil {
		return nil, nil, err
	}
	return llm, merger, nil
}

// LogSeverity parses the configured log level.
func (c *Config) LogSeverity() logging.Severity {
	return logging.ParseSeverity(c.Logging.Level)
}
