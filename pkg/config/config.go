package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Neo4j     Neo4jConfig
	Redis     RedisConfig
	SQLite    SQLiteConfig
	LLM       LLMConfig
	Retrieval RetrievalConfig
	Context   ContextConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	// TTLs in seconds.
	ResponseTTL  int
	EmbeddingTTL int
}

type SQLiteConfig struct {
	Path string
}

type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
}

// RetrievalConfig holds the similarity-search parameters. The relaxed
// values are used for the single retry performed when the default
// parameters return no chunks.
type RetrievalConfig struct {
	IndexName       string
	TopK            int
	MinScore        float64
	RelaxedTopK     int
	RelaxedMinScore float64
}

// ContextConfig bounds the context assembled for the LLM call.
type ContextConfig struct {
	MaxTokens      int
	OverheadTokens int
	MaxChunkChars  int
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/bog-assistant")

	viper.SetEnvPrefix("BOG_ASSISTANT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "password")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.responseTTL", 3600)
	viper.SetDefault("redis.embeddingTTL", 86400)

	viper.SetDefault("sqlite.path", "./data/bog_assistant.db")

	viper.SetDefault("llm.model", "llama-3.3-70b-versatile")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)

	viper.SetDefault("retrieval.indexName", "chunkVectorIndex")
	viper.SetDefault("retrieval.topK", 100)
	viper.SetDefault("retrieval.minScore", 0.5)
	viper.SetDefault("retrieval.relaxedTopK", 150)
	viper.SetDefault("retrieval.relaxedMinScore", 0.3)

	viper.SetDefault("context.maxTokens", 5500)
	viper.SetDefault("context.overheadTokens", 200)
	viper.SetDefault("context.maxChunkChars", 1200)

	viper.SetDefault("ratelimit.maxRequestsPerMinute", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
