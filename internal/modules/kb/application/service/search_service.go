package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"SemHub/internal/modules/kb/application/dto/request"
	"SemHub/internal/modules/kb/application/dto/respond"
	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/internal/modules/kb/domain/repository"
	"SemHub/internal/modules/kb/infrastructure/cache"
	"SemHub/internal/modules/kb/infrastructure/embedding"
	"SemHub/internal/modules/kb/infrastructure/resilience"
	"SemHub/pkg/xerr"
	"SemHub/pkg/zlog"

	"go.uber.org/zap"
)

const (
	defaultTopK = 5
	maxTopK     = 50
)

type SearchService interface {
	Search(ctx context.Context, req request.SearchRequest) (*respond.SearchRespond, error)
	CacheStats() repository.CacheStats
}

type searchService struct {
	repo      repository.KnowledgeRepository
	vs        repository.VectorStore
	embedder  *embedding.Client
	cache     repository.Cache
	engine    *resilience.Engine
	searchTTL time.Duration
}

func NewSearchService(repo repository.KnowledgeRepository, vs repository.VectorStore, embedder *embedding.Client, c repository.Cache, engine *resilience.Engine, searchTTL time.Duration) SearchService {
	if searchTTL <= 0 {
		searchTTL = 30 * time.Minute
	}
	return &searchService{repo: repo, vs: vs, embedder: embedder, cache: c, engine: engine, searchTTL: searchTTL}
}

// Search 语义检索：查询嵌入 → 搜索缓存 → 向量库 → 后处理。
// 缓存存的是向量库原始命中，按文档过滤与重排在两条路径上都执行，
// 这样同一查询加不同过滤条件可以共享缓存条目。
// 空结果是正常返回，不是错误。
func (s *searchService) Search(ctx context.Context, req request.SearchRequest) (*respond.SearchRespond, error) {
	start := time.Now()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, xerr.New(xerr.BadRequest, "missing query")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	var steps []respond.SearchStepRespond
	addStep := func(step, detail string, since time.Time) {
		if req.WithSteps {
			steps = append(steps, respond.SearchStepRespond{
				Step: step, Detail: detail, DurationMs: time.Since(since).Milliseconds(),
			})
		}
	}

	col, err := s.repo.GetCollection(ctx, req.CollectionID)
	if errors.Is(err, knowledge.ErrCollectionNotFound) {
		return nil, xerr.New(xerr.NotFound, "collection not found")
	}
	if err != nil {
		return nil, xerr.ErrServerError
	}

	// 查询扩展只拼接嵌入输入，不改默认路径的输出
	embedText := query
	if terms := joinTerms(req.ExpandTerms); terms != "" {
		embedText = query + " " + terms
		addStep("expand_query", embedText, start)
	}

	embedStart := time.Now()
	vec, err := s.embedder.EmbedQuery(ctx, embedText)
	if err != nil {
		if errors.Is(err, knowledge.ErrCircuitOpen) {
			return nil, xerr.New(xerr.ServiceUnavailable, "embedding service temporarily unavailable")
		}
		return nil, xerr.New(xerr.ServiceUnavailable, "embedding failed")
	}
	embedMs := time.Since(embedStart).Milliseconds()
	addStep("embed_query", "", embedStart)

	vec32 := make([]float32, len(vec))
	for i, v := range vec {
		vec32[i] = float32(v)
	}

	key := cache.KeySearch(col.VectorName, cache.HashVector(vec), topK, req.ScoreThreshold)
	lookupStart := time.Now()
	hits, fromCache := s.cachedHits(ctx, key)
	if fromCache {
		addStep("cache_lookup", "hit", lookupStart)
	} else {
		addStep("cache_lookup", "miss", lookupStart)
	}
	var searchMs int64
	if !fromCache {
		searchStart := time.Now()
		err = s.engine.Execute(ctx, resilience.ServiceVectorStore, func() error {
			h, err := s.vs.Query(ctx, col.VectorName, vec32, topK, req.ScoreThreshold)
			if err != nil {
				return err
			}
			hits = h
			return nil
		})
		if err != nil {
			if errors.Is(err, knowledge.ErrCircuitOpen) {
				return nil, xerr.New(xerr.ServiceUnavailable, "vector store temporarily unavailable")
			}
			return nil, xerr.New(xerr.ServiceUnavailable, "vector search failed")
		}
		searchMs = time.Since(searchStart).Milliseconds()
		addStep("vector_search", fmt.Sprintf("%d hits", len(hits)), searchStart)
		s.storeHits(ctx, key, hits)
	}

	postStart := time.Now()
	totalHits := len(hits)
	if req.DocumentUuid != "" {
		filtered := make([]repository.VectorHit, 0, len(hits))
		for _, h := range hits {
			if h.DocumentUuid == req.DocumentUuid {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}
	if req.Rerank {
		hits = rerankHits(hits)
	}
	postMs := time.Since(postStart).Milliseconds()
	if req.DocumentUuid != "" || req.Rerank {
		addStep("post_process", fmt.Sprintf("%d -> %d", totalHits, len(hits)), postStart)
	}

	out := make([]respond.SearchHitRespond, 0, len(hits))
	for _, h := range hits {
		out = append(out, respond.SearchHitRespond{
			DocumentUuid: h.DocumentUuid,
			ChunkIndex:   h.ChunkIndex,
			Score:        h.Score,
			Content:      h.Content,
			Metadata:     h.MetadataJSON,
		})
	}

	res := &respond.SearchRespond{
		Query:         query,
		Hits:          out,
		TotalHits:     totalHits,
		IsEmpty:       len(out) == 0,
		FromCache:     fromCache,
		DurationMs:    time.Since(start).Milliseconds(),
		EmbeddingMs:   embedMs,
		SearchMs:      searchMs,
		PostProcessMs: postMs,
		Steps:         steps,
	}
	zlog.Info("语义检索",
		zap.Int64("collectionId", col.Id),
		zap.Int("topK", topK),
		zap.Int("hits", len(out)),
		zap.Bool("fromCache", fromCache),
		zap.Int64("durationMs", res.DurationMs))
	return res, nil
}

func (s *searchService) CacheStats() repository.CacheStats {
	if s.cache == nil {
		return repository.CacheStats{}
	}
	return s.cache.Stats()
}

func (s *searchService) cachedHits(ctx context.Context, key string) ([]repository.VectorHit, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok := s.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var hits []repository.VectorHit
	if err := json.Unmarshal(raw, &hits); err != nil {
		zlog.Warn("搜索缓存条目损坏", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return hits, true
}

func (s *searchService) storeHits(ctx context.Context, key string, hits []repository.VectorHit) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(hits)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, raw, s.searchTTL)
}

func joinTerms(terms []string) string {
	kept := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " ")
}

// rerankHits 相似度为主、内容长度为辅的混合重排：
// 得分相近时偏向信息量更大的 chunk
func rerankHits(hits []repository.VectorHit) []repository.VectorHit {
	if len(hits) < 2 {
		return hits
	}
	maxLen := 0
	for _, h := range hits {
		if len(h.Content) > maxLen {
			maxLen = len(h.Content)
		}
	}
	if maxLen == 0 {
		return hits
	}
	reranked := make([]repository.VectorHit, len(hits))
	copy(reranked, hits)
	sort.SliceStable(reranked, func(i, j int) bool {
		si := float64(reranked[i].Score)*0.9 + float64(len(reranked[i].Content))/float64(maxLen)*0.1
		sj := float64(reranked[j].Score)*0.9 + float64(len(reranked[j].Content))/float64(maxLen)*0.1
		return si > sj
	})
	return reranked
}
