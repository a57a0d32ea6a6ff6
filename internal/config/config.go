package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

type MainConfig struct {
	AppName string `toml:"appName"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

type LogConfig struct {
	LogPath string `toml:"logPath"`
}

type RedisConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"poolSize"`
	MinIdleConns int    `toml:"minIdleConns"`
}

type MilvusConfig struct {
	Address    string `toml:"address"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	DBName     string `toml:"dbName"`
	MetricType string `toml:"metricType"`
}

type EmbeddingConfig struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"apiKey"`
	BaseURL        string `toml:"baseURL"`
	Model          string `toml:"model"`
	Dimensions     int    `toml:"dimensions"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
	BatchSize      int    `toml:"batchSize"`
}

type ChunkingConfig struct {
	Strategy     string `toml:"strategy"` // word | recursive
	ChunkSize    int    `toml:"chunkSize"`
	ChunkOverlap int    `toml:"chunkOverlap"`
}

type CacheConfig struct {
	MemoryCapacity     int `toml:"memoryCapacity"`
	EmbeddingTTLHours  int `toml:"embeddingTTLHours"`
	SearchTTLMinutes   int `toml:"searchTTLMinutes"`
	PromotedTTLMinutes int `toml:"promotedTTLMinutes"`
}

type RetryPolicyConfig struct {
	MaxAttempts int     `toml:"maxAttempts"`
	BaseDelayMs int     `toml:"baseDelayMs"`
	MaxDelayMs  int     `toml:"maxDelayMs"`
	Multiplier  float64 `toml:"multiplier"`
}

type BreakerConfig struct {
	FailureThreshold    int `toml:"failureThreshold"`
	ResetTimeoutSeconds int `toml:"resetTimeoutSeconds"`
	HalfOpenProbes      int `toml:"halfOpenProbes"`
}

type ResilienceConfig struct {
	Embedding   RetryPolicyConfig `toml:"embedding"`
	DocStore    RetryPolicyConfig `toml:"docStore"`
	VectorStore RetryPolicyConfig `toml:"vectorStore"`
	Breaker     BreakerConfig     `toml:"breaker"`
}

type WorkerConfig struct {
	PoolSize           int    `toml:"poolSize"`
	TaskRetentionHours int    `toml:"taskRetentionHours"`
	JanitorCron        string `toml:"janitorCron"`
	AutoSyncCron       string `toml:"autoSyncCron"`
}

type ExtractionConfig struct {
	TimeoutSeconds int    `toml:"timeoutSeconds"`
	MaxCrawlDepth  int    `toml:"maxCrawlDepth"`
	MaxCrawlPages  int    `toml:"maxCrawlPages"`
	UploadDir      string `toml:"uploadDir"`
}

type Config struct {
	MainConfig       `toml:"mainConfig"`
	MysqlConfig      `toml:"mysqlConfig"`
	RedisConfig      `toml:"redisConfig"`
	MilvusConfig     `toml:"milvusConfig"`
	EmbeddingConfig  `toml:"embeddingConfig"`
	ChunkingConfig   `toml:"chunkingConfig"`
	CacheConfig      `toml:"cacheConfig"`
	ResilienceConfig `toml:"resilienceConfig"`
	WorkerConfig     `toml:"workerConfig"`
	ExtractionConfig `toml:"extractionConfig"`
	LogConfig        `toml:"logConfig"`
}

// Load 从 TOML 文件加载配置并填充默认值
func Load(path string) (*Config, error) {
	conf := new(Config)
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	conf.applyDefaults()
	return conf, nil
}

// Default 返回一份带默认值的配置（测试与本地启动用）
func Default() *Config {
	conf := new(Config)
	conf.applyDefaults()
	return conf
}

func (c *Config) applyDefaults() {
	if c.MainConfig.AppName == "" {
		c.MainConfig.AppName = "semhub"
	}
	if c.MainConfig.Port == 0 {
		c.MainConfig.Port = 8090
	}
	if c.EmbeddingConfig.Provider == "" {
		c.EmbeddingConfig.Provider = "mock"
	}
	if c.EmbeddingConfig.Dimensions <= 0 {
		c.EmbeddingConfig.Dimensions = 768
	}
	if c.EmbeddingConfig.TimeoutSeconds <= 0 {
		c.EmbeddingConfig.TimeoutSeconds = 30
	}
	if c.EmbeddingConfig.BatchSize <= 0 {
		c.EmbeddingConfig.BatchSize = 100
	}
	if c.ChunkingConfig.Strategy == "" {
		c.ChunkingConfig.Strategy = "word"
	}
	if c.ChunkingConfig.ChunkSize <= 0 {
		c.ChunkingConfig.ChunkSize = 400
	}
	if c.ChunkingConfig.ChunkOverlap < 0 {
		c.ChunkingConfig.ChunkOverlap = 0
	}
	if c.CacheConfig.MemoryCapacity <= 0 {
		c.CacheConfig.MemoryCapacity = 1000
	}
	if c.CacheConfig.EmbeddingTTLHours <= 0 {
		c.CacheConfig.EmbeddingTTLHours = 24
	}
	if c.CacheConfig.SearchTTLMinutes <= 0 {
		c.CacheConfig.SearchTTLMinutes = 30
	}
	if c.CacheConfig.PromotedTTLMinutes <= 0 {
		c.CacheConfig.PromotedTTLMinutes = 10
	}
	if c.ResilienceConfig.Embedding.MaxAttempts <= 0 {
		c.ResilienceConfig.Embedding = RetryPolicyConfig{MaxAttempts: 3, BaseDelayMs: 5000, MaxDelayMs: 30000, Multiplier: 2}
	}
	if c.ResilienceConfig.DocStore.MaxAttempts <= 0 {
		c.ResilienceConfig.DocStore = RetryPolicyConfig{MaxAttempts: 3, BaseDelayMs: 1000, MaxDelayMs: 10000, Multiplier: 2}
	}
	if c.ResilienceConfig.VectorStore.MaxAttempts <= 0 {
		// 向量库在高负载下最易出错，给更多重试机会
		c.ResilienceConfig.VectorStore = RetryPolicyConfig{MaxAttempts: 5, BaseDelayMs: 2000, MaxDelayMs: 30000, Multiplier: 2}
	}
	if c.ResilienceConfig.Breaker.FailureThreshold <= 0 {
		c.ResilienceConfig.Breaker = BreakerConfig{FailureThreshold: 5, ResetTimeoutSeconds: 60, HalfOpenProbes: 2}
	}
	if c.WorkerConfig.PoolSize <= 0 {
		c.WorkerConfig.PoolSize = 8
	}
	if c.WorkerConfig.TaskRetentionHours <= 0 {
		c.WorkerConfig.TaskRetentionHours = 24
	}
	if c.WorkerConfig.JanitorCron == "" {
		c.WorkerConfig.JanitorCron = "0 * * * *"
	}
	if c.ExtractionConfig.TimeoutSeconds <= 0 {
		c.ExtractionConfig.TimeoutSeconds = 30
	}
	if c.ExtractionConfig.MaxCrawlDepth <= 0 {
		c.ExtractionConfig.MaxCrawlDepth = 2
	}
	if c.ExtractionConfig.MaxCrawlPages <= 0 {
		c.ExtractionConfig.MaxCrawlPages = 20
	}
	if c.ExtractionConfig.UploadDir == "" {
		c.ExtractionConfig.UploadDir = "uploads"
	}
	if c.MilvusConfig.MetricType == "" {
		c.MilvusConfig.MetricType = "COSINE"
	}
	if c.MilvusConfig.DBName == "" {
		c.MilvusConfig.DBName = "semhub"
	}
}
