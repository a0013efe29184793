package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// MaxBundleItems is the maximum number of content items a bundle may reference.
	MaxBundleItems int `json:"max_bundle_items"`

	// DraftTTLHours is how long a saved form draft stays restorable.
	// Older drafts load as empty.
	DraftTTLHours int `json:"draft_ttl_hours"`

	// PromptsFile is an optional YAML file with system prompt and template overrides.
	// Relative paths are resolved against the base directory. Reloaded on change while serving.
	PromptsFile string `json:"prompts_file,omitempty"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.bundler/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "bundle", "attempt", "content", "prompt", "draft", "job".
	DisabledTypes []string `json:"disabled_types,omitempty"`

	LLM     LLMConfig    `json:"llm"`
	Workers WorkerConfig `json:"workers"`
	Server  ServerConfig `json:"server"`
}

// LLMConfig configures the OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	// When the variable is empty a mock client is used.
	APIKeyEnv string `json:"api_key_env,omitempty"`

	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	MaxRetries     int `json:"max_retries,omitempty"`
}

// APIKey reads the API key from the configured environment variable.
func (c LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
}

// WorkerConfig configures the background job runner.
type WorkerConfig struct {
	Count                int `json:"count,omitempty"`
	QueueSize            int `json:"queue_size,omitempty"`
	SweepIntervalSeconds int `json:"sweep_interval_seconds,omitempty"`
}

// ServerConfig configures the REST API.
type ServerConfig struct {
	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`

	// APIKeyEnv names the environment variable holding the API key clients must send.
	// Unset or empty disables authentication.
	APIKeyEnv string `json:"api_key_env,omitempty"`
}

// APIKey reads the server API key from the configured environment variable.
func (c ServerConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxBundleItems: 50,
		DraftTTLHours:  168,
		LLM: LLMConfig{
			BaseURL:        "https://openrouter.ai/api/v1",
			Model:          "openai/gpt-4o-mini",
			APIKeyEnv:      "OPENROUTER_API_KEY",
			TimeoutSeconds: 120,
			MaxRetries:     3,
		},
		Workers: WorkerConfig{
			Count:                2,
			QueueSize:            100,
			SweepIntervalSeconds: 30,
		},
		Server: ServerConfig{
			Bind:      "127.0.0.1",
			Port:      8787,
			APIKeyEnv: "BUNDLER_API_KEY",
		},
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.bundler) and repo (.bundler) directories.
// Repo config is found by walking upward from startDir to find the nearest .bundler/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// LoadEnv loads KEY=VALUE pairs from baseDir/.env into the process environment.
// Variables already set are not overridden. A missing file is not an error.
func LoadEnv(baseDir string) error {
	path := filepath.Join(baseDir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// FindRepoConfig walks upward from startDir to find the nearest .bundler/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".bundler", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ResolvePromptsFile returns the absolute prompts file path, or "" when none is configured.
func (c *Config) ResolvePromptsFile(baseDir string) string {
	if c.PromptsFile == "" {
		return ""
	}
	if filepath.IsAbs(c.PromptsFile) {
		return c.PromptsFile
	}
	return filepath.Join(baseDir, c.PromptsFile)
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.MaxBundleItems = orInt(overlay.MaxBundleItems, base.MaxBundleItems)
	result.DraftTTLHours = orInt(overlay.DraftTTLHours, base.DraftTTLHours)
	result.PromptsFile = orString(overlay.PromptsFile, base.PromptsFile)
	result.DBMaxOpenConns = orInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = orInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.LLM = LLMConfig{
		BaseURL:        orString(overlay.LLM.BaseURL, base.LLM.BaseURL),
		Model:          orString(overlay.LLM.Model, base.LLM.Model),
		APIKeyEnv:      orString(overlay.LLM.APIKeyEnv, base.LLM.APIKeyEnv),
		TimeoutSeconds: orInt(overlay.LLM.TimeoutSeconds, base.LLM.TimeoutSeconds),
		MaxRetries:     orInt(overlay.LLM.MaxRetries, base.LLM.MaxRetries),
	}
	result.Workers = WorkerConfig{
		Count:                orInt(overlay.Workers.Count, base.Workers.Count),
		QueueSize:            orInt(overlay.Workers.QueueSize, base.Workers.QueueSize),
		SweepIntervalSeconds: orInt(overlay.Workers.SweepIntervalSeconds, base.Workers.SweepIntervalSeconds),
	}
	result.Server = ServerConfig{
		Bind:      orString(overlay.Server.Bind, base.Server.Bind),
		Port:      orInt(overlay.Server.Port, base.Server.Port),
		APIKeyEnv: orString(overlay.Server.APIKeyEnv, base.Server.APIKeyEnv),
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func orInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func orString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
