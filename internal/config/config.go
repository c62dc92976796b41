package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for deskbot.
type Config struct {
	General       GeneralConfig            `json:"general"`
	Backends      map[string]BackendConfig `json:"backends"`
	Safety        SafetyConfig             `json:"safety"`
	Routing       RoutingConfig            `json:"routing"`
	Responders    RespondersConfig         `json:"responders"`
	Handoff       HandoffConfig            `json:"handoff"`
	Conversations ConversationsConfig      `json:"conversations"`
	Knowledge     KnowledgeConfig          `json:"knowledge"`
	Breaker       BreakerConfig            `json:"breaker"`
	Metrics       MetricsConfig            `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string   `json:"logLevel"`
	LogFile               string   `json:"logFile,omitempty"`
	DefaultBackend        string   `json:"defaultBackend"`
	FailoverChain         []string `json:"failoverChain,omitempty"` // backend failover order
	MaxConcurrentMessages int      `json:"maxConcurrentMessages"`
	RequestTimeoutSeconds int      `json:"requestTimeoutSeconds"` // per backend call
}

// BackendConfig configures one completion backend (OpenAI-compatible HTTP API).
type BackendConfig struct {
	Enabled         bool   `json:"enabled"`
	APIBase         string `json:"apiBase,omitempty"`
	APIKey          string `json:"apiKey,omitempty"`
	DefaultModel    string `json:"defaultModel,omitempty"`
	RateLimitPerMin int    `json:"rateLimitPerMinute,omitempty"`
}

// SafetyConfig tunes the content safety filter.
type SafetyConfig struct {
	ToxicWords     []string `json:"toxicWords,omitempty"` // extends the built-in vocabulary
	RefusalMessage string   `json:"refusalMessage,omitempty"`
	MinReplyLength int      `json:"minReplyLength"` // validator floor, default 10
}

// RoutingConfig tunes the intent classifier.
type RoutingConfig struct {
	Strategy         string              `json:"strategy"` // "backend" | "keyword"
	Keywords         map[string][]string `json:"keywords,omitempty"`
	PrimaryLanguage  string              `json:"primaryLanguage"`
	ExtraLanguages   []string            `json:"extraLanguages,omitempty"`
	MinConfidence    float64             `json:"minConfidence"` // below this, routing demands a human
	FallbackCategory string              `json:"fallbackCategory"`
}

// RespondersConfig holds per-responder overrides plus an optional directory
// of YAML profile files.
type RespondersConfig struct {
	ProfilesDir string                      `json:"profilesDir,omitempty"`
	Profiles    map[string]ResponderProfile `json:"profiles,omitempty"`
}

// ResponderProfile overrides one responder's tuning. Zero values keep the
// built-in defaults.
type ResponderProfile struct {
	Keywords            []string `json:"keywords,omitempty" yaml:"keywords"`
	SimilarityThreshold float64  `json:"similarityThreshold,omitempty" yaml:"similarityThreshold"`
	CannedReply         string   `json:"cannedReply,omitempty" yaml:"cannedReply"`
	MaxPassages         int      `json:"maxPassages,omitempty" yaml:"maxPassages"`
}

type HandoffConfig struct {
	EscalationCap         int      `json:"escalationCap"`         // default 3
	LongConversationLimit int      `json:"longConversationLimit"` // default 10
	HumanKeywords         []string `json:"humanKeywords,omitempty"`
	ComplexKeywords       []string `json:"complexKeywords,omitempty"`
}

type ConversationsConfig struct {
	Store          string `json:"store"` // "memory" | "sqlite"
	DBPath         string `json:"dbPath,omitempty"`
	RetentionHours int    `json:"retentionHours"` // inactivity window, default 24
}

type KnowledgeConfig struct {
	Enabled      bool   `json:"enabled"`
	DBPath       string `json:"dbPath,omitempty"`
	ChunkSize    int    `json:"chunkSize"`    // words per chunk
	ChunkOverlap int    `json:"chunkOverlap"` // overlapping words
	SearchTopK   int    `json:"searchTopK"`
}

type BreakerConfig struct {
	FailureThreshold       int `json:"failureThreshold"`       // default 5
	RecoveryTimeoutSeconds int `json:"recoveryTimeoutSeconds"` // default 300
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen,omitempty"` // exposition address, default 127.0.0.1:9090
}

// DefaultConfigDir returns the default config directory (~/.deskbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".deskbot"
	}
	return filepath.Join(home, ".deskbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Conversations.DBPath = ExpandPath(cfg.Conversations.DBPath)
	cfg.Knowledge.DBPath = ExpandPath(cfg.Knowledge.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Responders.ProfilesDir = ExpandPath(cfg.Responders.ProfilesDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	if cfg.General.RequestTimeoutSeconds < 1 || cfg.General.RequestTimeoutSeconds > 300 {
		errs = append(errs, "general.requestTimeoutSeconds must be between 1 and 300")
	}

	switch cfg.Routing.Strategy {
	case "", "backend", "keyword":
		// valid
	default:
		errs = append(errs, "routing.strategy must be one of: backend, keyword")
	}
	if cfg.Routing.MinConfidence < 0 || cfg.Routing.MinConfidence > 1 {
		errs = append(errs, "routing.minConfidence must be in [0,1]")
	}

	switch cfg.Conversations.Store {
	case "", "memory", "sqlite":
		// valid
	default:
		errs = append(errs, "conversations.store must be one of: memory, sqlite")
	}
	if cfg.Conversations.Store == "sqlite" && cfg.Conversations.DBPath == "" {
		errs = append(errs, "conversations.dbPath is required for the sqlite store")
	}
	if cfg.Conversations.RetentionHours < 1 {
		errs = append(errs, "conversations.retentionHours must be >= 1")
	}

	if cfg.Breaker.FailureThreshold < 1 {
		errs = append(errs, "breaker.failureThreshold must be >= 1")
	}
	if cfg.Breaker.RecoveryTimeoutSeconds < 1 {
		errs = append(errs, "breaker.recoveryTimeoutSeconds must be >= 1")
	}

	if cfg.Handoff.EscalationCap < 1 {
		errs = append(errs, "handoff.escalationCap must be >= 1")
	}
	if cfg.Handoff.LongConversationLimit < 1 {
		errs = append(errs, "handoff.longConversationLimit must be >= 1")
	}

	// Validate failover chain references exist in backends.
	for _, name := range cfg.General.FailoverChain {
		if _, ok := cfg.Backends[name]; !ok {
			errs = append(errs, fmt.Sprintf("general.failoverChain references unknown backend: %s", name))
		}
	}

	// Validate backend configs.
	for name, bc := range cfg.Backends {
		if bc.Enabled && bc.APIBase == "" && name != "ollama" {
			errs = append(errs, fmt.Sprintf("backends.%s: apiBase is required", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
