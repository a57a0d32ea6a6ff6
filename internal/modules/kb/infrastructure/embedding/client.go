package embedding

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/internal/modules/kb/domain/repository"
	"SemHub/internal/modules/kb/infrastructure/cache"
	"SemHub/internal/modules/kb/infrastructure/resilience"
	"SemHub/pkg/zlog"

	"go.uber.org/zap"
)

// Client 在原始提供方外面套一层缓存与批量控制。
// 文档嵌入与查询嵌入走不同的缓存键空间，互不污染。
type Client struct {
	provider  repository.EmbeddingProvider
	cache     repository.Cache
	engine    *resilience.Engine
	batchSize int
	docTTL    time.Duration
	queryTTL  time.Duration
}

type ClientOptions struct {
	BatchSize int
	DocTTL    time.Duration
	QueryTTL  time.Duration
}

func NewClient(provider repository.EmbeddingProvider, c repository.Cache, engine *resilience.Engine, opts ClientOptions) *Client {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.DocTTL <= 0 {
		opts.DocTTL = 24 * time.Hour
	}
	if opts.QueryTTL <= 0 {
		opts.QueryTTL = 24 * time.Hour
	}
	return &Client{
		provider:  provider,
		cache:     c,
		engine:    engine,
		batchSize: opts.BatchSize,
		docTTL:    opts.DocTTL,
		queryTTL:  opts.QueryTTL,
	}
}

func (c *Client) Model() string { return c.provider.Model() }

func (c *Client) Dim() int { return c.provider.Dim() }

// EmbedDocuments 返回与 texts 严格同序的向量。
// 先逐条探测缓存，只把未命中的文本分批发给提供方，
// 单批不超过 batchSize，结果按原始下标写回。
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	results := make([][]float64, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	model := c.provider.Model()
	var missIdx []int
	for i, text := range texts {
		if vec, ok := c.probe(ctx, cache.KeyEmbedding(model, text)); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return results, nil
	}

	for start := 0; start < len(missIdx); start += c.batchSize {
		end := start + c.batchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		batchIdx := missIdx[start:end]
		batch := make([]string, len(batchIdx))
		for j, idx := range batchIdx {
			batch[j] = texts[idx]
		}

		vecs, err := c.callProvider(ctx, batch)
		if err != nil {
			return nil, err
		}

		for j, idx := range batchIdx {
			results[idx] = vecs[j]
			c.store(ctx, cache.KeyEmbedding(model, texts[idx]), vecs[j], c.docTTL)
		}
	}
	return results, nil
}

// EmbedQuery 是搜索路径上的低延迟入口，单条文本，独立键空间
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	key := cache.KeyQueryEmbedding(c.provider.Model(), text)
	if vec, ok := c.probe(ctx, key); ok {
		return vec, nil
	}

	var vec []float64
	op := func() error {
		v, err := c.provider.EmbedQuery(ctx, text)
		if err != nil {
			return classifyProviderErr(err)
		}
		vec = v
		return nil
	}
	var err error
	if c.engine != nil {
		err = c.engine.Execute(ctx, resilience.ServiceEmbedding, op)
	} else {
		err = op()
	}
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, vec, c.queryTTL)
	return vec, nil
}

func (c *Client) callProvider(ctx context.Context, batch []string) ([][]float64, error) {
	var vecs [][]float64
	op := func() error {
		v, err := c.provider.EmbedDocuments(ctx, batch)
		if err != nil {
			return classifyProviderErr(err)
		}
		if len(v) != len(batch) {
			return &knowledge.EmbeddingProviderError{
				Cause: knowledge.EmbedCauseTransient,
				Err:   errVectorCountMismatch(len(batch), len(v)),
			}
		}
		vecs = v
		return nil
	}
	if c.engine == nil {
		if err := op(); err != nil {
			return nil, err
		}
		return vecs, nil
	}
	if err := c.engine.Execute(ctx, resilience.ServiceEmbedding, op); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (c *Client) probe(ctx context.Context, key string) ([]float64, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, ok := c.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil {
		zlog.Warn("嵌入缓存条目损坏，按未命中处理", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *Client) store(ctx context.Context, key string, vec []float64, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	c.cache.Set(ctx, key, raw, ttl)
}

type vectorCountError struct {
	want, got int
}

func errVectorCountMismatch(want, got int) error {
	return &vectorCountError{want: want, got: got}
}

func (e *vectorCountError) Error() string {
	return "provider vector count mismatch"
}

// classifyProviderErr 把提供方的裸错误归入鉴权/配额/瞬时三类。
// 鉴权类不可重试，配额与瞬时类可以。
func classifyProviderErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	cause := knowledge.EmbedCauseTransient
	switch {
	case strings.Contains(msg, "401") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "invalid_api_key") ||
		strings.Contains(msg, "authentication"):
		cause = knowledge.EmbedCauseAuth
	case strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "too many requests"):
		cause = knowledge.EmbedCauseQuota
	}
	return &knowledge.EmbeddingProviderError{Cause: cause, Err: err}
}
