// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads riskcrew configuration from defaults, YAML files,
// environment variables and command line overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides.
// RISKCREW_LLM_BASE_URL maps to llm.base_url: the first underscore after the
// prefix separates the section from the key.
const EnvPrefix = "RISKCREW_"

// AllProjects is the pseudo project that aggregates every project.
const AllProjects = "All Projects"

type Config struct {
	App       AppConfig       `koanf:"app"`
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Vector    VectorConfig    `koanf:"vector"`
	Embedder  EmbedderConfig  `koanf:"embedder"`
	Store     StoreConfig     `koanf:"store"`
	Chat      ChatConfig      `koanf:"chat"`
	Cache     CacheConfig     `koanf:"cache"`
	Alerts    AlertsConfig    `koanf:"alerts"`
	Crew      CrewConfig      `koanf:"crew"`
	Refresh   RefreshConfig   `koanf:"refresh"`
	Web       WebConfig       `koanf:"web"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Risk      RiskConfig      `koanf:"risk"`
	Projects  ProjectsConfig  `koanf:"projects"`
}

type AppConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
	Debug   bool   `koanf:"debug"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider    string            `koanf:"provider"` // ollama, mock
	Model       string            `koanf:"model"`
	BaseURL     string            `koanf:"base_url"`
	Temperature float64           `koanf:"temperature"`
	Timeout     time.Duration     `koanf:"timeout"`
	Models      map[string]string `koanf:"models"` // agent id -> model
}

// ModelFor returns the model configured for an agent, falling back to the default.
func (c LLMConfig) ModelFor(agentID string) string {
	if m := strings.TrimSpace(c.Models[agentID]); m != "" {
		return m
	}
	return c.Model
}

type VectorConfig struct {
	Provider         string `koanf:"provider"` // qdrant, memory, none
	QdrantAddr       string `koanf:"qdrant_addr"`
	CollectionPrefix string `koanf:"collection_prefix"`
}

type EmbedderConfig struct {
	Provider  string `koanf:"provider"` // ollama, hash
	BaseURL   string `koanf:"base_url"`
	Model     string `koanf:"model"`
	Dimension int    `koanf:"dimension"`
}

type StoreConfig struct {
	SQLitePath string `koanf:"sqlite_path"`
}

type ChatConfig struct {
	HistoryPath string `koanf:"history_path"`
	MaxHistory  int    `koanf:"max_history"`
	Guardrails  bool   `koanf:"guardrails"`
}

type CacheConfig struct {
	Provider  string        `koanf:"provider"` // memory, redis
	TTL       time.Duration `koanf:"ttl"`
	RedisAddr string        `koanf:"redis_addr"`
	RedisDB   int           `koanf:"redis_db"`
}

type AlertsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

type CrewConfig struct {
	Process       string `koanf:"process"` // sequential, parallel
	MaxIterations int           `koanf:"max_iterations"`
	Definition    string        `koanf:"definition"`
	ToolTimeout   time.Duration `koanf:"tool_timeout"`
}

type RefreshConfig struct {
	Interval time.Duration `koanf:"interval"`
}

type WebConfig struct {
	Addr string `koanf:"addr"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// LevelConfig defines a risk level and the highest score it covers.
type LevelConfig struct {
	Name      string `koanf:"name"`
	Color     string `koanf:"color"`
	Threshold int    `koanf:"threshold"`
}

type RiskConfig struct {
	Categories []string           `koanf:"categories"`
	Levels     []LevelConfig      `koanf:"levels"`
	Weights    map[string]float64 `koanf:"weights"` // percent, default 100
}

type ProjectsConfig struct {
	Defaults []string `koanf:"defaults"`
}

// DefaultCategories are the risk categories shown in the UI filters.
var DefaultCategories = []string{
	"Resource",
	"Schedule",
	"Budget",
	"Technical",
	"Quality",
	"Scope",
	"Communication",
	"External",
	"Vendor",
	"Regulatory",
	"Market",
	"Security",
}

// DefaultProjects are the project names offered by the project selector.
var DefaultProjects = []string{
	"Cloud Migration",
	"Mobile App Development",
	"ERP Implementation",
	"E-commerce Platform",
	"Data Warehouse Project",
}

func setDefaults(k *koanf.Koanf) {
	k.Set("app.name", "AI Project Risk Management System")
	k.Set("app.version", "1.0.0")
	k.Set("app.debug", false)

	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "llama3")
	k.Set("llm.base_url", "http://localhost:11434")
	k.Set("llm.temperature", 0.2)
	k.Set("llm.timeout", "120s")

	k.Set("vector.provider", "memory")
	k.Set("vector.qdrant_addr", "localhost:6334")
	k.Set("vector.collection_prefix", "project-risks")

	k.Set("embedder.provider", "ollama")
	k.Set("embedder.base_url", "http://localhost:11434")
	k.Set("embedder.model", "nomic-embed-text")
	k.Set("embedder.dimension", 256)

	k.Set("store.sqlite_path", "riskcrew.db")

	k.Set("chat.history_path", "chat_history.json")
	k.Set("chat.max_history", 50)
	k.Set("chat.guardrails", true)

	k.Set("cache.provider", "memory")
	k.Set("cache.ttl", "5m")
	k.Set("cache.redis_addr", "localhost:6379")
	k.Set("cache.redis_db", 0)

	k.Set("alerts.nats_url", "")
	k.Set("alerts.subject_prefix", "riskcrew")

	k.Set("crew.process", "sequential")
	k.Set("crew.max_iterations", 6)
	k.Set("crew.tool_timeout", "30s")
	k.Set("crew.definition", "")

	k.Set("refresh.interval", "1h")
	k.Set("web.addr", ":8501")

	k.Set("telemetry.exporter", "none")

	k.Set("risk.categories", DefaultCategories)
	k.Set("risk.levels", []map[string]any{
		{"name": "Low", "color": "#26eb77", "threshold": 30},
		{"name": "Medium", "color": "#f0cc45", "threshold": 70},
		{"name": "High", "color": "#eb4034", "threshold": 100},
	})
	k.Set("projects.defaults", DefaultProjects)
}

// Load reads configuration from an optional YAML file and the environment.
func Load(path string) (*Config, error) {
	return load(path, "", nil)
}

// LoadWithCLI parses --config, --profile and --set key=value arguments and
// loads configuration with CLI overrides applied last.
func LoadWithCLI(args []string) (*Config, error) {
	opts, err := parseCLIArgs(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, opts.overrides)
}

// LoadOptions loads configuration from explicit values, as used by the CLI.
func LoadOptions(path, profile string, overrides []string) (*Config, error) {
	parsed, err := parseOverrides(overrides)
	if err != nil {
		return nil, err
	}
	return load(path, profile, parsed)
}

func load(path, profile string, overrides map[string]string) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if profile != "" {
			profilePath := ProfilePath(path, profile)
			if _, err := os.Stat(profilePath); err == nil {
				if err := k.Load(file.Provider(profilePath), yaml.Parser()); err != nil {
					return nil, fmt.Errorf("load profile %s: %w", profilePath, err)
				}
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}

// ProfilePath returns the profile file next to the base config:
// config.yaml + dev -> config.dev.yaml.
func ProfilePath(path, profile string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if ext == "" {
		ext = ".yaml"
	}
	return base + "." + profile + ext
}

// Validate checks enumerated values and level ordering.
func (c *Config) Validate() error {
	switch c.Crew.Process {
	case "sequential", "parallel":
	default:
		return fmt.Errorf("crew.process must be sequential or parallel, got %q", c.Crew.Process)
	}
	switch c.Vector.Provider {
	case "qdrant", "memory", "none":
	default:
		return fmt.Errorf("unknown vector.provider %q", c.Vector.Provider)
	}
	switch c.Cache.Provider {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache.provider %q", c.Cache.Provider)
	}
	if len(c.Risk.Levels) == 0 {
		return fmt.Errorf("risk.levels must not be empty")
	}
	prev := -1
	for _, lvl := range c.Risk.Levels {
		if lvl.Name == "" {
			return fmt.Errorf("risk level name is required")
		}
		if lvl.Threshold <= prev {
			return fmt.Errorf("risk level %q threshold %d must be greater than %d", lvl.Name, lvl.Threshold, prev)
		}
		prev = lvl.Threshold
	}
	if c.Chat.MaxHistory <= 0 {
		c.Chat.MaxHistory = 50
	}
	if c.Crew.MaxIterations <= 0 {
		c.Crew.MaxIterations = 6
	}
	return nil
}

type cliOptions struct {
	path      string
	profile   string
	overrides map[string]string
}

func parseCLIArgs(args []string) (cliOptions, error) {
	var opts cliOptions
	var sets []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--config", "--profile", "--set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return opts, fmt.Errorf("%s requires a value", name)
			}
			i++
			value = args[i]
		}
		switch name {
		case "--config":
			opts.path = value
		case "--profile":
			opts.profile = value
		case "--set":
			sets = append(sets, value)
		}
	}
	overrides, err := parseOverrides(sets)
	if err != nil {
		return opts, err
	}
	opts.overrides = overrides
	return opts, nil
}

func parseOverrides(sets []string) (map[string]string, error) {
	out := make(map[string]string, len(sets))
	for _, set := range sets {
		key, value, ok := strings.Cut(set, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q, expected key=value", set)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
