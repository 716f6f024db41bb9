package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for MathsGPT.
type Config struct {
	General   GeneralConfig             `json:"general" yaml:"general"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Agent     AgentConfig               `json:"agent" yaml:"agent"`
	Tools     ToolsConfig               `json:"tools" yaml:"tools"`
	RunLog    RunLogConfig              `json:"runLog" yaml:"runLog"`
	HTTP      HTTPConfig                `json:"http" yaml:"http"`
}

type GeneralConfig struct {
	LogLevel        string   `json:"logLevel" yaml:"logLevel"`                               // debug | info | warn | error
	LogFormat       string   `json:"logFormat" yaml:"logFormat"`                             // text | json
	LogFile         string   `json:"logFile,omitempty" yaml:"logFile,omitempty"`             // optional log file path
	DefaultProvider string   `json:"defaultProvider" yaml:"defaultProvider"`                 // provider used for the oracle
	FailoverChain   []string `json:"failoverChain,omitempty" yaml:"failoverChain,omitempty"` // tried in order after the default
}

type ProviderConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	APIBase      string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty" yaml:"defaultModel,omitempty"`
	// RateLimitPerMin throttles oracle calls; 0 disables the limiter.
	RateLimitPerMin int `json:"rateLimitPerMinute,omitempty" yaml:"rateLimitPerMinute,omitempty"`
	RateLimitBurst  int `json:"rateLimitBurst,omitempty" yaml:"rateLimitBurst,omitempty"`
}

// ResolvedAPIKey expands ${VAR} references, so the built-in defaults can
// point at GROQ_API_KEY without a config file.
func (p ProviderConfig) ResolvedAPIKey() string {
	key := ExpandEnvVars(p.APIKey)
	if envVarPattern.MatchString(key) {
		return ""
	}
	return key
}

// AgentConfig tunes the reasoning loop.
type AgentConfig struct {
	MaxIterations int     `json:"maxIterations" yaml:"maxIterations"`
	MaxTokens     int     `json:"maxTokens" yaml:"maxTokens"`
	Temperature   float64 `json:"temperature" yaml:"temperature"`
	PromptPrefix  string  `json:"promptPrefix,omitempty" yaml:"promptPrefix,omitempty"`
}

type ToolsConfig struct {
	// Allowed, if non-empty, restricts the agent to these tools. Denied always wins.
	Allowed    []string             `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Denied     []string             `json:"denied,omitempty" yaml:"denied,omitempty"`
	Calculator CalculatorToolConfig `json:"calculator" yaml:"calculator"`
	Wikipedia  WikipediaToolConfig  `json:"wikipedia" yaml:"wikipedia"`
	Reasoning  ReasoningToolConfig  `json:"reasoning" yaml:"reasoning"`
}

type CalculatorToolConfig struct {
	Enabled   bool `json:"enabled" yaml:"enabled"`
	MaxTokens int  `json:"maxTokens" yaml:"maxTokens"`
}

type WikipediaToolConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Language string `json:"language" yaml:"language"`
	TopK     int    `json:"topK" yaml:"topK"`
	MaxChars int    `json:"maxChars" yaml:"maxChars"`
	APIBase  string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"` // overrides https://<language>.wikipedia.org/w/api.php
}

type ReasoningToolConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	MaxTokens   int     `json:"maxTokens" yaml:"maxTokens"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// RunLogConfig configures the SQLite audit trail of finished runs.
type RunLogConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	DBPath        string `json:"dbPath" yaml:"dbPath"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays"`
}

type HTTPConfig struct {
	TimeoutSeconds int `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	MaxRetries     int `json:"maxRetries" yaml:"maxRetries"`
}

// DefaultConfigDir returns the default config directory (~/.mathsgpt).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mathsgpt"
	}
	return filepath.Join(home, ".mathsgpt")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a JSON or YAML config (chosen by extension) on top of Defaults.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.RunLog.DBPath = ExpandPath(cfg.RunLog.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to Defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(ExpandPath(path)); os.IsNotExist(err) {
		cfg := Defaults()
		cfg.RunLog.DBPath = ExpandPath(cfg.RunLog.DBPath)
		return cfg, nil
	}
	return Load(path)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match // keep the reference so it can be reported later
		}
		return val
	})
}

// Save writes cfg as JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// The file may hold API keys.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	if cfg.Agent.MaxIterations < 1 || cfg.Agent.MaxIterations > 200 {
		errs = append(errs, "agent.maxIterations must be between 1 and 200")
	}
	if cfg.Agent.MaxTokens < 1 {
		errs = append(errs, "agent.maxTokens must be >= 1")
	}
	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		errs = append(errs, "agent.temperature must be between 0 and 2")
	}

	if pc, ok := cfg.Providers[cfg.General.DefaultProvider]; !ok {
		errs = append(errs, fmt.Sprintf("general.defaultProvider references unknown provider: %s", cfg.General.DefaultProvider))
	} else if !pc.Enabled {
		errs = append(errs, fmt.Sprintf("general.defaultProvider %s is disabled", cfg.General.DefaultProvider))
	}
	for _, provName := range cfg.General.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("general.failoverChain references unknown provider: %s", provName))
		}
	}
	for name, pc := range cfg.Providers {
		if pc.Enabled && pc.APIBase == "" && name != "ollama" {
			errs = append(errs, fmt.Sprintf("providers.%s: apiBase is required", name))
		}
		if pc.RateLimitPerMin < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s: rateLimitPerMinute must be >= 0", name))
		}
	}

	if cfg.Tools.Wikipedia.Enabled {
		if cfg.Tools.Wikipedia.TopK < 1 || cfg.Tools.Wikipedia.TopK > 20 {
			errs = append(errs, "tools.wikipedia.topK must be between 1 and 20")
		}
		if cfg.Tools.Wikipedia.MaxChars < 100 {
			errs = append(errs, "tools.wikipedia.maxChars must be >= 100")
		}
	}
	if cfg.Tools.Reasoning.Temperature < 0 || cfg.Tools.Reasoning.Temperature > 2 {
		errs = append(errs, "tools.reasoning.temperature must be between 0 and 2")
	}

	if cfg.RunLog.Enabled && cfg.RunLog.DBPath == "" {
		errs = append(errs, "runLog.dbPath is required when the run log is enabled")
	}
	if cfg.RunLog.RetentionDays < 0 {
		errs = append(errs, "runLog.retentionDays must be >= 0")
	}
	if cfg.HTTP.TimeoutSeconds < 1 {
		errs = append(errs, "http.timeoutSeconds must be >= 1")
	}
	if cfg.HTTP.MaxRetries < 0 || cfg.HTTP.MaxRetries > 10 {
		errs = append(errs, "http.maxRetries must be between 0 and 10")
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
