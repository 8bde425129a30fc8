package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"ermtutor/internal/domain"
)

// MaterialsConfig points at the directory of course files.
type MaterialsConfig struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// CacheConfig configures the Redis embedding cache.
type CacheConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Addrs     []string `yaml:"addrs"`
	Password  string   `yaml:"password"`
	TTLHours  int      `yaml:"ttl_hours"`
	KeyPrefix string   `yaml:"key_prefix"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string      `yaml:"type"`
	Model       string      `yaml:"model"`
	Dimensions  int         `yaml:"dimensions"`
	BatchSize   int         `yaml:"batch_size"`
	TimeoutSecs int         `yaml:"timeout_secs"`
	BaseURL     string      `yaml:"base_url"`
	APIKeyEnv   string      `yaml:"api_key_env"`
	Cache       CacheConfig `yaml:"cache"`
}

// MemoryStoreConfig configures the in-process vector store.
type MemoryStoreConfig struct {
	SnapshotPath string `yaml:"snapshot_path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type             string            `yaml:"type"`
	RebuildOnCorrupt *bool             `yaml:"rebuild_on_corrupt,omitempty"`
	Memory           MemoryStoreConfig `yaml:"memory"`
	Qdrant           QdrantConfig      `yaml:"qdrant"`
}

// RetrievalConfig controls how many chunks feed a prompt.
type RetrievalConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// GeneratorConfig configures the hosted chat model.
type GeneratorConfig struct {
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	Retries     int     `yaml:"retries"`
}

// PromptConfig overrides the prompt template. It must contain {context} and {question}.
type PromptConfig struct {
	Template string `yaml:"template"`
}

// ChatConfig controls post-processing of answers.
type ChatConfig struct {
	ShowSources  bool `yaml:"show_sources"`
	PreviewChars int  `yaml:"preview_chars"`
}

// HTTPConfig configures the web front-end.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Materials   MaterialsConfig   `yaml:"materials"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Prompt      PromptConfig      `yaml:"prompt"`
	Chat        ChatConfig        `yaml:"chat"`
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, expanding ${VAR} references and applying defaults.
func Parse(data []byte) (*AppConfig, error) {
	cfg := baseConfig()
	if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w: %w", domain.ErrConfiguration, err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ermtutor/config.yaml.
// If neither exists, it writes defaults to ~/.config/ermtutor/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks values that defaults cannot repair.
func (c *AppConfig) Validate() error {
	if c.Chunker.ChunkOverlap < 0 {
		return fmt.Errorf("chunker.chunk_overlap must be >= 0: %w", domain.ErrConfiguration)
	}
	if c.Chunker.ChunkSize <= c.Chunker.ChunkOverlap {
		return fmt.Errorf("chunker.chunk_size (%d) must be greater than chunk_overlap (%d): %w",
			c.Chunker.ChunkSize, c.Chunker.ChunkOverlap, domain.ErrConfiguration)
	}
	switch c.Embedder.Type {
	case "openai", "hashing":
	default:
		return fmt.Errorf("unknown embedder type %q: %w", c.Embedder.Type, domain.ErrConfiguration)
	}
	if c.Embedder.Dimensions <= 0 {
		return fmt.Errorf("embedder.dimensions must be > 0: %w", domain.ErrConfiguration)
	}
	if c.Embedder.Cache.Enabled && len(c.Embedder.Cache.Addrs) == 0 {
		return fmt.Errorf("embedder.cache.addrs is required when the cache is enabled: %w", domain.ErrConfiguration)
	}
	switch c.VectorStore.Type {
	case "memory":
	case "qdrant":
		if c.VectorStore.Qdrant.URL == "" || c.VectorStore.Qdrant.Collection == "" {
			return fmt.Errorf("vector_store.qdrant url and collection are required: %w", domain.ErrConfiguration)
		}
	default:
		return fmt.Errorf("unknown vector store type %q: %w", c.VectorStore.Type, domain.ErrConfiguration)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0: %w", domain.ErrConfiguration)
	}
	if c.Generator.Retries < 0 {
		return fmt.Errorf("generator.retries must be >= 0: %w", domain.ErrConfiguration)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range: %w", c.HTTP.Port, domain.ErrConfiguration)
	}
	return nil
}

// RebuildOnCorrupt reports whether an unusable persisted index triggers a rebuild.
func (c *AppConfig) RebuildOnCorrupt() bool {
	return c.VectorStore.RebuildOnCorrupt == nil || *c.VectorStore.RebuildOnCorrupt
}

// GeneratorAPIKey resolves the chat model credential from the environment.
func (c *AppConfig) GeneratorAPIKey() (string, error) {
	return apiKey(c.Generator.APIKeyEnv)
}

// EmbedderAPIKey resolves the embedding credential from the environment.
func (c *AppConfig) EmbedderAPIKey() (string, error) {
	return apiKey(c.Embedder.APIKeyEnv)
}

func apiKey(envName string) (string, error) {
	key := strings.TrimSpace(os.Getenv(envName))
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set: %w", envName, domain.ErrConfiguration)
	}
	return key, nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ermtutor", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := baseConfig()
	applyConfigDefaults(cfg)
	return cfg
}

// baseConfig holds the defaults whose zero value is meaningful, so YAML can override them.
func baseConfig() *AppConfig {
	return &AppConfig{
		Chunker: ChunkerConfig{ChunkOverlap: 100},
		Chat:    ChatConfig{ShowSources: true},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Materials.Dir == "" {
		cfg.Materials.Dir = "materials"
	}
	if cfg.Materials.Pattern == "" {
		cfg.Materials.Pattern = "*.pdf"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	// The hashing embedder has no model to select; its name derives from the dimension.
	if cfg.Embedder.Model == "" && cfg.Embedder.Type == "openai" {
		cfg.Embedder.Model = "text-embedding-3-small"
	}
	if cfg.Embedder.Dimensions == 0 {
		if cfg.Embedder.Type == "hashing" {
			cfg.Embedder.Dimensions = 384
		} else {
			cfg.Embedder.Dimensions = 1536
		}
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.Embedder.APIKeyEnv == "" {
		cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedder.Cache.TTLHours == 0 {
		cfg.Embedder.Cache.TTLHours = 24 * 30
	}
	if cfg.Embedder.Cache.KeyPrefix == "" {
		cfg.Embedder.Cache.KeyPrefix = "ermtutor:emb:"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Memory.SnapshotPath == "" {
		cfg.VectorStore.Memory.SnapshotPath = filepath.Join("index", "index.gob")
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "erm_materials"
	}
	if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
		cfg.VectorStore.Qdrant.TimeoutSecs = 15
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "gpt-4o"
	}
	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}
	if cfg.Chat.PreviewChars == 0 {
		cfg.Chat.PreviewChars = 160
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ReadTimeoutSec == 0 {
		cfg.HTTP.ReadTimeoutSec = 30
	}
	if cfg.HTTP.WriteTimeoutSec == 0 {
		cfg.HTTP.WriteTimeoutSec = 120
	}
	if cfg.HTTP.ShutdownSec == 0 {
		cfg.HTTP.ShutdownSec = 10
	}
	if cfg.Logging.Env == "" {
		cfg.Logging.Env = "local"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
