package config

import (
	"encoding/json"
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/xxxsen/common/logger"
)

const (
	PairFinderExact = "exact"
	PairFinderHNSW  = "hnsw"
)

type Config struct {
	Port        int              `json:"port"`
	JWTSecret   string           `json:"jwt_secret"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Database    DatabaseConfig   `json:"database"`
	CORSOrigins []string         `json:"cors_origins"`
	AI          AIConfig         `json:"ai"`
	Relevance   RelevanceConfig  `json:"relevance"`
	Suggest     SuggestConfig    `json:"suggest"`
	AutoLink    AutoLinkConfig   `json:"autolink"`
	Graph       GraphConfig      `json:"graph"`
	Chat        ChatConfig       `json:"chat"`
	Jobs        JobsConfig       `json:"jobs"`
	RateLimit   RateLimitConfig  `json:"rate_limit"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

// AIProviderConfig selects one registered provider. Data is handed to the
// provider factory as is.
type AIProviderConfig struct {
	Name     string      `json:"name"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Generators           []AIProviderConfig `json:"generators"`
	Taggers              []AIProviderConfig `json:"taggers"`
	Embedders            []AIProviderConfig `json:"embedders"`
	Timeout              int                `json:"timeout"`
	MaxInputChars        int                `json:"max_input_chars"`
	EmbeddingDim         int                `json:"embedding_dim"`
	EmbedCacheSize       int                `json:"embed_cache_size"`
	EmbedCacheTTLSeconds int                `json:"embed_cache_ttl_seconds"`
}

type RelevanceConfig struct {
	Concurrency       int    `json:"concurrency"`
	PairwiseWarnAbove int    `json:"pairwise_warn_above"`
	PairFinder        string `json:"pair_finder"`
	HNSWNeighbors     int    `json:"hnsw_neighbors"`
}

type SuggestConfig struct {
	TagMarker          string  `json:"tag_marker"`
	MaxTags            int     `json:"max_tags"`
	RelatedSmallSetMax int     `json:"related_small_set_max"`
	RelatedTopN        int     `json:"related_top_n"`
	RelatedMinScore    float64 `json:"related_min_score"`
}

type AutoLinkConfig struct {
	MinChars          int     `json:"min_chars"`
	DebounceMs        int     `json:"debounce_ms"`
	TopN              int     `json:"top_n"`
	MinScore          float64 `json:"min_score"`
	SessionSize       int     `json:"session_size"`
	SessionTTLSeconds int     `json:"session_ttl_seconds"`
}

type GraphConfig struct {
	SemanticThreshold float64 `json:"semantic_threshold"`
	CacheSize         int     `json:"cache_size"`
	CacheTTLSeconds   int     `json:"cache_ttl_seconds"`
}

type ChatConfig struct {
	PersistHistory    bool `json:"persist_history"`
	SessionSize       int  `json:"session_size"`
	SessionTTLSeconds int  `json:"session_ttl_seconds"`
}

type JobsConfig struct {
	EmbeddingSyncSpec         string  `json:"embedding_sync_spec"`
	EmbeddingCacheCleanupSpec string  `json:"embedding_cache_cleanup_spec"`
	BatchSize                 int     `json:"batch_size"`
	RequestsPerSecond         float64 `json:"requests_per_second"`
	EmbedDelaySeconds         int64   `json:"embed_delay_seconds"`
	CacheRetentionDays        int     `json:"cache_retention_days"`
}

type RateLimitConfig struct {
	AIRequestsPerSecond float64 `json:"ai_requests_per_second"`
	AIBurst             int     `json:"ai_burst"`
}

// Load reads a JSON config file. ${VAR} references are expanded from the
// environment before decoding, so secrets can stay out of the file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(raw))))
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 30
	}
	if c.AI.MaxInputChars == 0 {
		c.AI.MaxInputChars = 20000
	}
	if c.AI.EmbedCacheSize == 0 {
		c.AI.EmbedCacheSize = 10000
	}
	if c.AI.EmbedCacheTTLSeconds == 0 {
		c.AI.EmbedCacheTTLSeconds = 7200
	}
	if c.Relevance.Concurrency == 0 {
		c.Relevance.Concurrency = 4
	}
	if c.Relevance.PairwiseWarnAbove == 0 {
		c.Relevance.PairwiseWarnAbove = 500
	}
	if c.Relevance.PairFinder == "" {
		c.Relevance.PairFinder = PairFinderExact
	}
	if c.Relevance.HNSWNeighbors == 0 {
		c.Relevance.HNSWNeighbors = 16
	}
	if c.Suggest.TagMarker == "" {
		c.Suggest.TagMarker = "ai:"
	}
	if c.Suggest.MaxTags == 0 {
		c.Suggest.MaxTags = 5
	}
	if c.Suggest.RelatedSmallSetMax == 0 {
		c.Suggest.RelatedSmallSetMax = 10
	}
	if c.Suggest.RelatedTopN == 0 {
		c.Suggest.RelatedTopN = 5
	}
	if c.Suggest.RelatedMinScore == 0 {
		c.Suggest.RelatedMinScore = 0.5
	}
	if c.AutoLink.MinChars == 0 {
		c.AutoLink.MinChars = 50
	}
	if c.AutoLink.DebounceMs == 0 {
		c.AutoLink.DebounceMs = 600
	}
	if c.AutoLink.TopN == 0 {
		c.AutoLink.TopN = 5
	}
	if c.AutoLink.MinScore == 0 {
		c.AutoLink.MinScore = 0.6
	}
	if c.AutoLink.SessionSize == 0 {
		c.AutoLink.SessionSize = 1000
	}
	if c.AutoLink.SessionTTLSeconds == 0 {
		c.AutoLink.SessionTTLSeconds = 1800
	}
	if c.Graph.SemanticThreshold == 0 {
		c.Graph.SemanticThreshold = 0.75
	}
	if c.Graph.CacheSize == 0 {
		c.Graph.CacheSize = 1000
	}
	if c.Graph.CacheTTLSeconds == 0 {
		c.Graph.CacheTTLSeconds = 600
	}
	if c.Chat.SessionSize == 0 {
		c.Chat.SessionSize = 1000
	}
	if c.Chat.SessionTTLSeconds == 0 {
		c.Chat.SessionTTLSeconds = 3600
	}
	if c.Jobs.EmbeddingSyncSpec == "" {
		c.Jobs.EmbeddingSyncSpec = "*/5 * * * *"
	}
	if c.Jobs.EmbeddingCacheCleanupSpec == "" {
		c.Jobs.EmbeddingCacheCleanupSpec = "30 3 * * *"
	}
	if c.Jobs.BatchSize == 0 {
		c.Jobs.BatchSize = 50
	}
	if c.Jobs.RequestsPerSecond == 0 {
		c.Jobs.RequestsPerSecond = 2
	}
	if c.Jobs.EmbedDelaySeconds == 0 {
		c.Jobs.EmbedDelaySeconds = 30
	}
	if c.Jobs.CacheRetentionDays == 0 {
		c.Jobs.CacheRetentionDays = 30
	}
	if c.RateLimit.AIRequestsPerSecond == 0 {
		c.RateLimit.AIRequestsPerSecond = 1
	}
	if c.RateLimit.AIBurst == 0 {
		c.RateLimit.AIBurst = 5
	}
}

func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.JWTSecret, validation.Required),
	); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.AI.Validate(); err != nil {
		return fmt.Errorf("ai: %w", err)
	}
	if err := validation.ValidateStruct(&c.Relevance,
		validation.Field(&c.Relevance.PairFinder, validation.In(PairFinderExact, PairFinderHNSW)),
		validation.Field(&c.Relevance.Concurrency, validation.Min(1)),
		validation.Field(&c.Relevance.HNSWNeighbors, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("relevance: %w", err)
	}
	if err := validation.ValidateStruct(&c.Suggest,
		validation.Field(&c.Suggest.MaxTags, validation.Min(1)),
		validation.Field(&c.Suggest.RelatedSmallSetMax, validation.Min(0)),
		validation.Field(&c.Suggest.RelatedMinScore, validation.Min(-1.0), validation.Max(1.0)),
	); err != nil {
		return fmt.Errorf("suggest: %w", err)
	}
	if err := validation.ValidateStruct(&c.AutoLink,
		validation.Field(&c.AutoLink.MinChars, validation.Min(1)),
		validation.Field(&c.AutoLink.DebounceMs, validation.Min(1)),
		validation.Field(&c.AutoLink.MinScore, validation.Min(-1.0), validation.Max(1.0)),
	); err != nil {
		return fmt.Errorf("autolink: %w", err)
	}
	if err := validation.ValidateStruct(&c.Graph,
		validation.Field(&c.Graph.SemanticThreshold, validation.Min(0.0), validation.Max(1.0)),
	); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.DSN != "" {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.DBName, validation.Required),
		validation.Field(&c.Port, validation.Min(1), validation.Max(65535)),
	)
}

func (c *AIConfig) Validate() error {
	for _, group := range [][]AIProviderConfig{c.Generators, c.Taggers, c.Embedders} {
		for i := range group {
			item := &group[i]
			if err := validation.ValidateStruct(item,
				validation.Field(&item.Provider, validation.Required),
				validation.Field(&item.Model, validation.Required),
			); err != nil {
				return err
			}
		}
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.EmbeddingDim, validation.Min(0)),
		validation.Field(&c.Timeout, validation.Min(1)),
	)
}
