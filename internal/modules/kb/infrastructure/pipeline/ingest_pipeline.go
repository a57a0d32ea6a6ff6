package pipeline

import (
	"context"
	"fmt"
	"time"

	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/internal/modules/kb/domain/repository"
	"SemHub/internal/modules/kb/infrastructure/chunking"
	"SemHub/internal/modules/kb/infrastructure/embedding"
	"SemHub/internal/modules/kb/infrastructure/extract"
	"SemHub/internal/modules/kb/infrastructure/resilience"
	"SemHub/pkg/zlog"

	"go.uber.org/zap"
)

// IngestPipeline 文档入库流水线：抽取 → 切分 → 嵌入 → 向量写入。
// 每个外部依赖调用都经过 resilience.Engine 的重试+熔断保护。
type IngestPipeline struct {
	extractor *extract.Extractor
	embedder  *embedding.Client
	vs        repository.VectorStore
	repo      repository.KnowledgeRepository
	engine    *resilience.Engine
	strategy  string // word | recursive
}

type IngestResult struct {
	DocumentUuid  string
	ChunkCount    int
	TokenEstimate int
	Characters    int
	Duration      time.Duration
}

func NewIngestPipeline(
	extractor *extract.Extractor,
	embedder *embedding.Client,
	vs repository.VectorStore,
	repo repository.KnowledgeRepository,
	engine *resilience.Engine,
	strategy string,
) *IngestPipeline {
	if strategy == "" {
		strategy = "word"
	}
	return &IngestPipeline{
		extractor: extractor,
		embedder:  embedder,
		vs:        vs,
		repo:      repo,
		engine:    engine,
		strategy:  strategy,
	}
}

// Run 处理单个文档。状态流转由流水线负责：
// processing → completed，任一阶段最终失败则 failed 并把错误写入 metadata。
// 返回 error 的同时文档状态已落库，调用方只需记录结果。
func (p *IngestPipeline) Run(ctx context.Context, col *knowledge.Collection, doc *knowledge.Document) (*IngestResult, error) {
	start := time.Now()

	if err := p.updateStatus(ctx, doc.Id, knowledge.DocStatusProcessing, ""); err != nil {
		return nil, err
	}

	res, err := p.run(ctx, col, doc)
	if err != nil {
		zlog.Error("文档入库失败",
			zap.Int64("documentId", doc.Id),
			zap.String("documentUuid", doc.DocumentUuid),
			zap.Error(err))
		if serr := p.updateStatus(ctx, doc.Id, knowledge.DocStatusFailed, err.Error()); serr != nil {
			zlog.Error("写入失败状态也失败了", zap.Int64("documentId", doc.Id), zap.Error(serr))
		}
		return nil, err
	}

	res.Duration = time.Since(start)
	if err := p.updateResult(ctx, doc.Id, res.ChunkCount, res.TokenEstimate); err != nil {
		return nil, err
	}

	zlog.Info("文档入库完成",
		zap.Int64("documentId", doc.Id),
		zap.String("documentUuid", doc.DocumentUuid),
		zap.Int("chunks", res.ChunkCount),
		zap.Int("tokens", res.TokenEstimate),
		zap.Int64("durationMs", res.Duration.Milliseconds()))
	return res, nil
}

func (p *IngestPipeline) run(ctx context.Context, col *knowledge.Collection, doc *knowledge.Document) (*IngestResult, error) {
	// 阶段一：抽取
	var text string
	err := p.engine.Execute(ctx, resilience.ServiceExtraction, func() error {
		t, err := p.extractor.Extract(ctx, doc.SourceKind, doc.SourceLocator)
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 阶段二：切分
	chunker, err := p.newChunker(col)
	if err != nil {
		return nil, err
	}
	chunks, err := chunker.Chunk(ctx, text)
	if err != nil {
		return nil, err
	}

	// 重跑前清掉旧向量，避免 chunk 数变少后残留
	err = p.engine.Execute(ctx, resilience.ServiceVectorStore, func() error {
		return p.vs.DeleteByDocument(ctx, col.VectorName, doc.DocumentUuid)
	})
	if err != nil {
		return nil, err
	}

	if len(chunks) == 0 {
		return &IngestResult{DocumentUuid: doc.DocumentUuid, Characters: len(text)}, nil
	}

	// 阶段三：嵌入（Client 内部已带缓存/批量/保护）
	vecs, err := p.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, err
	}

	// 阶段四：向量写入
	points := make([]repository.VectorPoint, 0, len(chunks))
	tokens := 0
	for i, chunk := range chunks {
		vec32 := make([]float32, len(vecs[i]))
		for j, v := range vecs[i] {
			vec32[j] = float32(v)
		}
		points = append(points, repository.VectorPoint{
			// 确定性 ID：重跑同一文档覆盖而不是追加
			ID:           fmt.Sprintf("%s_%d", doc.DocumentUuid, i),
			Vector:       vec32,
			DocumentUuid: doc.DocumentUuid,
			ChunkIndex:   i,
			Content:      chunk,
			MetadataJSON: doc.MetadataJson,
		})
		tokens += chunking.EstimateTokens(chunk)
	}
	err = p.engine.Execute(ctx, resilience.ServiceVectorStore, func() error {
		_, err := p.vs.Upsert(ctx, col.VectorName, points)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &IngestResult{
		DocumentUuid:  doc.DocumentUuid,
		ChunkCount:    len(chunks),
		TokenEstimate: tokens,
		Characters:    len(text),
	}, nil
}

func (p *IngestPipeline) newChunker(col *knowledge.Collection) (chunking.Chunker, error) {
	if p.strategy == "recursive" {
		return chunking.NewRecursiveChunker(col.ChunkSize, col.ChunkOverlap)
	}
	return chunking.NewWordChunker(col.ChunkSize, col.ChunkOverlap)
}

func (p *IngestPipeline) updateStatus(ctx context.Context, docID int64, status, errMsg string) error {
	return p.engine.Execute(ctx, resilience.ServiceDocStore, func() error {
		return p.repo.UpdateDocumentStatus(ctx, docID, status, errMsg)
	})
}

func (p *IngestPipeline) updateResult(ctx context.Context, docID int64, chunkCount, tokenEstimate int) error {
	return p.engine.Execute(ctx, resilience.ServiceDocStore, func() error {
		return p.repo.UpdateDocumentResult(ctx, docID, knowledge.DocStatusCompleted, chunkCount, tokenEstimate)
	})
}
