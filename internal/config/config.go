package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"document-rag/internal/models"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	DriverPgdriver = "pgdriver"
	DriverPq       = "pq"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	RankerExact   = "exact"
	RankerChromem = "chromem"
)

const (
	defaultChunkSize    = 1000 // bytes
	defaultChunkOverlap = 200  // bytes
	defaultTopK         = 5
	defaultTimeout      = 10 * time.Second
	defaultOllamaURL    = "http://localhost:11434"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	ChatLLM  LLMConfig      `yaml:"chat_llm"`
	RAG      RAGConfig      `yaml:"rag"`
}

type DatabaseConfig struct {
	Backend  string        `yaml:"backend"`
	Driver   string        `yaml:"driver"`
	DSN      string        `yaml:"dsn"`
	Password string        `yaml:"password"`
	Debug    bool          `yaml:"debug"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Key      string `yaml:"key"`
}

type RAGConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
	Ranker       string `yaml:"ranker"`
	// ScoreWorkers > 1 scores candidates in parallel.
	ScoreWorkers   int    `yaml:"score_workers"`
	DefaultPersona string `yaml:"default_persona"`
	Classify       bool   `yaml:"classify"`
}

// LoadConfig reads the yaml file at path. ${VAR} references are expanded from
// the environment, which is first populated from a .env file when present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config that needs no external services for storage.
func Default() *Config {
	cfg := &Config{Database: DatabaseConfig{Backend: BackendMemory}}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Database.Backend == "" {
		c.Database.Backend = BackendPostgres
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPgdriver
	}
	if c.Database.Timeout == 0 {
		c.Database.Timeout = defaultTimeout
	}
	for _, llm := range []*LLMConfig{&c.EmbedLLM, &c.ChatLLM} {
		if llm.Provider == "" {
			llm.Provider = ProviderOllama
		}
		if llm.Provider == ProviderOllama && llm.BaseURL == "" {
			llm.BaseURL = defaultOllamaURL
		}
	}
	if c.RAG.ChunkSize <= 0 {
		c.RAG.ChunkSize = defaultChunkSize
	}
	if c.RAG.ChunkOverlap <= 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		c.RAG.ChunkOverlap = min(defaultChunkOverlap, c.RAG.ChunkSize/2)
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.RAG.Ranker == "" {
		c.RAG.Ranker = RankerExact
	}
	if c.RAG.ScoreWorkers <= 0 {
		c.RAG.ScoreWorkers = 1
	}
	if c.RAG.DefaultPersona == "" {
		c.RAG.DefaultPersona = models.PersonaGeneral
	}
}

func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the %s backend", BackendPostgres)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown database.backend %q", c.Database.Backend)
	}
	if c.Database.Driver != DriverPgdriver && c.Database.Driver != DriverPq {
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	for name, llm := range map[string]LLMConfig{"embed_llm": c.EmbedLLM, "chat_llm": c.ChatLLM} {
		if llm.Provider != ProviderOllama && llm.Provider != ProviderOpenAI {
			return fmt.Errorf("unknown %s.provider %q", name, llm.Provider)
		}
	}
	if c.RAG.Ranker != RankerExact && c.RAG.Ranker != RankerChromem {
		return fmt.Errorf("unknown rag.ranker %q", c.RAG.Ranker)
	}
	return nil
}
