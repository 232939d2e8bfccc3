package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cleanse/internal/domain"
)

// CorpusConfig points at the SQLite corpus database.
type CorpusConfig struct {
	Path string `yaml:"path"`
}

// RedditTarget pairs a champion name with the subreddit searched for it.
type RedditTarget struct {
	Champion  string `yaml:"champion"`
	Subreddit string `yaml:"subreddit"`
}

// RedditConfig configures the Reddit collector.
type RedditConfig struct {
	ClientIDEnv       string         `yaml:"client_id_env"`
	ClientSecretEnv   string         `yaml:"client_secret_env"`
	UserAgent         string         `yaml:"user_agent"`
	PostLimit         int            `yaml:"post_limit"`
	CommentsLimit     int            `yaml:"comments_limit"`
	MinCommentScore   int            `yaml:"min_comment_score"`
	RequestsPerSecond float64        `yaml:"requests_per_second"`
	TimeoutSecs       int            `yaml:"timeout_secs"`
	Targets           []RedditTarget `yaml:"targets"`
}

// NATSConfig configures optional publication of collected posts.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type    string `yaml:"type"`
	Size    int    `yaml:"size"`
	Overlap int    `yaml:"overlap"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChromemConfig configures the on-disk vector index.
type ChromemConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Addr        string `yaml:"addr"`
	Collection  string `yaml:"collection"`
	StatePath   string `yaml:"state_path"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type    string         `yaml:"type"`
	Chromem *ChromemConfig `yaml:"chromem,omitempty"`
	Qdrant  *QdrantConfig  `yaml:"qdrant,omitempty"`
}

// LLMConfig configures the hosted answer generator.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// ChatConfig configures retrieval, the prompt and the conversation policy.
type ChatConfig struct {
	TopK           int    `yaml:"top_k"`
	Memory         bool   `yaml:"memory"`
	HistoryTurns   int    `yaml:"history_turns"`
	Persona        string `yaml:"persona"`
	FallbackPhrase string `yaml:"fallback_phrase"`
	EmptyQuery     string `yaml:"empty_query_message"`
	Failure        string `yaml:"failure_message"`
	Unreachable    string `yaml:"unreachable_message"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	BackendURL string `yaml:"backend_url"`
}

// DiscordConfig configures the Discord bot.
type DiscordConfig struct {
	TokenEnv string `yaml:"token_env"`
	GuildID  string `yaml:"guild_id"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Corpus      CorpusConfig      `yaml:"corpus"`
	Reddit      RedditConfig      `yaml:"reddit"`
	NATS        NATSConfig        `yaml:"nats"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Chat        ChatConfig        `yaml:"chat"`
	Server      ServerConfig      `yaml:"server"`
	Discord     DiscordConfig     `yaml:"discord"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	// Keys missing from the file keep their defaults.
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/cleanse/config.yaml.
// If neither exists, it writes defaults to ~/.config/cleanse/config.yaml and returns them.
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

// Secret reads the credential named by envKey from the environment.
// A missing value is a configuration error.
func Secret(envKey string) (string, error) {
	if envKey == "" {
		return "", domain.NewConfigurationError("credential", "no environment variable configured")
	}
	v := strings.TrimSpace(os.Getenv(envKey))
	if v == "" {
		return "", domain.NewConfigurationError(envKey, "environment variable is not set")
	}
	return v, nil
}

// Timeout converts a seconds setting into a duration.
func Timeout(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "cleanse", "config.yaml"), nil
}

// DefaultTargets are the champion subreddits searched when none are configured.
func DefaultTargets() []RedditTarget {
	return []RedditTarget{
		{Champion: "Smolder", Subreddit: "SmolderMains"},
		{Champion: "Kayn", Subreddit: "KaynMains"},
		{Champion: "Jhin", Subreddit: "JhinMains"},
		{Champion: "Ambessa", Subreddit: "AmbessaMains"},
	}
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Corpus:      CorpusConfig{Path: "reddit_rag_data.db"},
		Reddit:      RedditConfig{Targets: DefaultTargets(), MinCommentScore: 2},
		NATS:        NATSConfig{Subject: "cleanse.corpus.posts"},
		Chunker:     ChunkerConfig{Type: "window", Size: 1000, Overlap: 150},
		Embedder:    EmbedderConfig{Type: "openai", OpenAI: &OpenAIEmbedderConfig{}},
		VectorStore: VectorStoreConfig{Type: "chromem", Chromem: &ChromemConfig{}},
		Chat:        ChatConfig{Memory: true},
	}
	applyConfigDefaults(cfg)
	return cfg
}

// applyConfigDefaults fills settings whose zero value is never valid.
// Settings where zero is meaningful, such as chunk overlap and the minimum
// comment score, only take their default from defaultConfig.
func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Corpus.Path == "" {
		cfg.Corpus.Path = "reddit_rag_data.db"
	}

	r := &cfg.Reddit
	if r.ClientIDEnv == "" {
		r.ClientIDEnv = "CLIENT_ID"
	}
	if r.ClientSecretEnv == "" {
		r.ClientSecretEnv = "CLIENT_SECRET"
	}
	if r.UserAgent == "" {
		r.UserAgent = "script:cleanse-collector:v1.0"
	}
	if r.PostLimit == 0 {
		r.PostLimit = 50
	}
	if r.CommentsLimit == 0 {
		r.CommentsLimit = 5
	}
	if r.RequestsPerSecond == 0 {
		r.RequestsPerSecond = 1
	}
	if r.TimeoutSecs == 0 {
		r.TimeoutSecs = 30
	}
	if len(r.Targets) == 0 {
		r.Targets = DefaultTargets()
	}

	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "cleanse.corpus.posts"
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "window"
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 1000
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = GeminiOpenAIBaseURL
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "GOOGLE_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-004"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 120
		}
		if o.BatchSize == 0 {
			o.BatchSize = 32
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromem"
	}
	switch cfg.VectorStore.Type {
	case "chromem":
		if cfg.VectorStore.Chromem == nil {
			cfg.VectorStore.Chromem = &ChromemConfig{}
		}
		if cfg.VectorStore.Chromem.Path == "" {
			cfg.VectorStore.Chromem.Path = "vector_index"
		}
		if cfg.VectorStore.Chromem.Collection == "" {
			cfg.VectorStore.Chromem.Collection = "reddit"
		}
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.Addr == "" {
			q.Addr = "localhost:6334"
		}
		if q.Collection == "" {
			q.Collection = "reddit"
		}
		if q.StatePath == "" {
			q.StatePath = "vector_index"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 120
		}
	}

	l := &cfg.LLM
	if l.BaseURL == "" {
		l.BaseURL = GeminiOpenAIBaseURL
	}
	if l.APIKeyEnv == "" {
		l.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if l.Model == "" {
		l.Model = "gemini-2.5-pro"
	}
	if l.TimeoutSecs == 0 {
		l.TimeoutSecs = 120
	}

	c := &cfg.Chat
	if c.TopK == 0 {
		c.TopK = 4
	}
	if c.HistoryTurns == 0 {
		c.HistoryTurns = 3
	}
	if c.Persona == "" {
		c.Persona = DefaultPersona
	}
	if c.FallbackPhrase == "" {
		c.FallbackPhrase = DefaultFallbackPhrase
	}
	if c.EmptyQuery == "" {
		c.EmptyQuery = "Por favor, faça uma pergunta."
	}
	if c.Failure == "" {
		c.Failure = "Desculpe, ocorreu um erro ao processar sua pergunta."
	}
	if c.Unreachable == "" {
		c.Unreachable = "Não consegui me conectar ao cérebro do bot. Tente novamente mais tarde."
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Discord.TokenEnv == "" {
		cfg.Discord.TokenEnv = "DISCORD_TOKEN"
	}
}

const (
	// GeminiOpenAIBaseURL is Google's OpenAI-compatible endpoint.
	GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

	DefaultPersona        = "Você é um assistente especialista em League of Legends."
	DefaultFallbackPhrase = "Com base nos dados que tenho, não encontrei uma resposta para isso."
)
